package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zatekoja/telehealth-meet/internal/api/session"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/telehealth-meet/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps an AppError type to its HTTP status. Callers
// without calendar credentials are pointed at the sign-in flow.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeValidation:
		status = http.StatusBadRequest
	case apperrors.ErrorTypeUnauthorized:
		respondWithJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   errorMessage(err),
			"authUrl": session.AuthPath,
		})
		return
	case apperrors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	logger := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request rejected")
	}

	respondWithError(w, status, errorMessage(err))
}

func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Detail()
	}
	return err.Error()
}
