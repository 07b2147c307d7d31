// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/character-chat/internal/apperr"
	"github.com/capitalize-ai/character-chat/internal/middleware"
	"github.com/capitalize-ai/character-chat/pkg/logger"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Limit   int    `json:"limit,omitempty"`
	Used    int    `json:"used,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its kind and status. Errors without a kind are
// reported as storage failures since they can only come from infrastructure.
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(apperr.KindStorageFailed, "internal error", err)
	}

	status := appErr.Status()
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("kind", string(appErr.Kind)),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		hub.CaptureException(err)
	}

	writeJSON(w, status, errorResponse{
		Error:   string(appErr.Kind),
		Message: appErr.Message,
		Limit:   appErr.Limit,
		Used:    appErr.Used,
	})
}

// decodeJSON reads a bounded JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Invalid("invalid request body")
	}
	return nil
}
