package api

import (
	"errors"
	"io"
	"net/http"

	"membership-payments/internal/domain"
	"membership-payments/internal/infra/logging"
)

const maxWebhookBody = 64 << 10

// webhook verifies the provider signature over the raw body and hands the
// event to the engine. Any settled outcome answers 200 so the provider stops
// retrying; retryable failures answer 500 so it redelivers.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, string(domain.KindValidation), "payload_too_large", "payload too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, string(domain.KindValidation), "unreadable_body", "could not read body")
		return
	}

	ev, err := s.events.ParseEvent(payload, r.Header.Get(s.opts.SignatureHeader))
	if err != nil {
		log.Warn().Err(err).Msg("webhook rejected")
		writeError(w, log, err)
		return
	}

	outcome, err := s.members.HandleProviderEvent(r.Context(), ev)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": outcome})
}
