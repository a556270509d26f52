package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Build identifies the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

var (
	buildMu sync.RWMutex
	build   = Build{Version: "dev", Commit: "unknown", GoVersion: runtime.Version()}

	buildGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "neocompliance",
			Name:      "build_info",
			Help:      "Always 1; labels carry the running version, commit and Go toolchain.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetBuild records the binary's version and commit. Empty values keep the
// defaults. Only the latest label set is exported.
func SetBuild(version, commit string) Build {
	buildMu.Lock()
	defer buildMu.Unlock()
	if version != "" {
		build.Version = version
	}
	if commit != "" {
		build.Commit = commit
	}
	buildGauge.Reset()
	buildGauge.WithLabelValues(build.Version, build.Commit, build.GoVersion).Set(1)
	return build
}

// CurrentBuild returns what SetBuild last recorded.
func CurrentBuild() Build {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return build
}
