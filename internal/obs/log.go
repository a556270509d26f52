package obs

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggerOnce sync.Once
	logger     *logrus.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "ts",
				logrus.FieldKeyMsg:  "msg",
			},
		})
		logger.SetLevel(logrus.InfoLevel)
	})
	return logger
}

// SetLevel adjusts the shared logger level. Unknown levels fall back to info.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger().SetLevel(lvl)
}

// LogRequest emits a structured log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	fields := make(logrus.Fields, len(entry))
	for k, v := range entry {
		if k == "msg" {
			continue
		}
		fields[k] = v
	}
	msg, _ := entry["msg"].(string)
	if msg == "" {
		msg = "request"
	}
	l := Logger().WithFields(fields)
	if status, ok := entry["status"].(int); ok && status >= 500 {
		l.Error(msg)
		return
	}
	l.Info(msg)
}
