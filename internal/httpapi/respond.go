package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/obs"
)

var errEmptyBody = errors.New("request body is required")

// envelope is the uniform response shape.
type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, code int, msg string, data any) {
	writeJSON(w, code, envelope{Success: true, Message: msg, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="neocompliance"`)
	}
	writeJSON(w, code, envelope{
		Success:   false,
		Message:   msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// writeDomainError maps an apperr kind to its status. Unclassified errors are
// logged and reported as a generic server error.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	msg, ok := apperr.Message(err)
	if !ok {
		obs.Logger().WithError(err).WithFields(map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		}).Error("request_failed")
		writeError(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeError(w, r, statusFor(err), msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// decodeJSON reads exactly one JSON value, rejecting unknown fields.
// An empty body yields errEmptyBody.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.BadRequest("Request body too large.")
		}
		return apperr.BadRequest("Invalid JSON body: " + err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.BadRequest("Unexpected data after JSON body.")
	}
	return nil
}

// bind decodes a required body and writes the error response on failure.
func bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		if errors.Is(err, errEmptyBody) {
			err = apperr.BadRequest("Request body is required.")
		}
		writeDomainError(w, r, err)
		return false
	}
	return true
}

// bindOptional is bind for routes whose every field has a default.
func bindOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil && !errors.Is(err, errEmptyBody) {
		writeDomainError(w, r, err)
		return false
	}
	return true
}
