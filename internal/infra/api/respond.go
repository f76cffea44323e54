package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"membership-payments/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, kind, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Code: code, Message: msg}})
}

// statusFor maps an error kind onto the HTTP status the client sees.
func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindProvider:
		return http.StatusBadGateway
	case domain.KindRetryLater:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a use case error. Only *domain.Error messages reach the
// client; anything else is logged and reported as internal.
func writeError(w http.ResponseWriter, log *zerolog.Logger, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	var de *domain.Error
	msg := "internal error"
	if errors.As(err, &de) && kind != domain.KindInternal && kind != domain.KindPersistence {
		msg = de.Msg
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("kind", string(kind)).Msg("request rejected")
	}
	writeJSONError(w, status, string(kind), domain.CodeOf(err), msg)
}
