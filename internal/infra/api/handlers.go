package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"membership-payments/internal/domain/model"
	"membership-payments/internal/infra/logging"
)

func (s *Server) listPrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prices": s.members.ListPrices(r.Context())})
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	t, d, err := parsePlan(chi.URLParam(r, "type"), chi.URLParam(r, "duration"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	p, err := s.members.GetPrice(r.Context(), t, d)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createIntent(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	var req createIntentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	t, d, err := parsePlan(req.MembershipType, req.Duration)
	if err != nil {
		writeError(w, log, err)
		return
	}
	h, err := s.members.CreateIntent(r.Context(), principalFrom(r.Context()).UserID, t, d, req.Amount)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) confirmPayment(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	var req confirmPaymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	t, d, err := parsePlan(req.MembershipType, req.Duration)
	if err != nil {
		writeError(w, log, err)
		return
	}
	res, err := s.members.ConfirmPayment(r.Context(), principalFrom(r.Context()).UserID, req.PaymentIntentRef, t, d, req.UserDetails)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) membershipStatus(w http.ResponseWriter, r *http.Request) {
	v, err := s.members.GetMembershipStatus(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) renew(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	var req renewRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
	}
	res, err := s.members.RenewMembership(r.Context(), principalFrom(r.Context()).UserID, chi.URLParam(r, "id"), req.PaymentMethodRef)
	if err != nil {
		writeError(w, log, err)
		return
	}
	status := http.StatusOK
	if res.Pending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *Server) transactionHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	q := r.URL.Query()

	var f model.TransactionFilter
	f.Status = model.TransactionStatus(q.Get("status"))
	f.Purpose = model.TransactionPurpose(q.Get("purpose"))
	var err error
	if f.From, err = parseDate(q.Get("from")); err != nil {
		writeError(w, log, err)
		return
	}
	if f.To, err = parseDate(q.Get("to")); err != nil {
		writeError(w, log, err)
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	h, err := s.members.GetTransactionHistory(r.Context(), principalFrom(r.Context()).UserID, f, model.Page{Page: page, Limit: limit})
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) refund(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	var req refundRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
	}
	t, err := s.members.InitiateRefund(r.Context(), principalFrom(r.Context()).UserID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) overrideStatus(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	var req overrideStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	m, err := s.admin.OverrideMembershipStatus(r.Context(), principalFrom(r.Context()).UserID, chi.URLParam(r, "id"),
		model.MembershipStatus(req.Status), req.Reason)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) grant(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	var req grantRequest
	if err := decode(r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	t, d, err := parsePlan(req.MembershipType, req.Duration)
	if err != nil {
		writeError(w, log, err)
		return
	}
	m, err := s.admin.GrantMembershipManually(r.Context(), req.UserID, t, d, principalFrom(r.Context()).UserID, req.Reason)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) approveRefund(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	var req refundRequest
	if err := decode(r, &req); err != nil {
		writeError(w, log, err)
		return
	}
	t, err := s.admin.ApproveRefund(r.Context(), principalFrom(r.Context()).UserID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	var f, t time.Time
	if from != nil {
		f = *from
	}
	if to != nil {
		t = *to
	}
	a, err := s.admin.PaymentAnalytics(r.Context(), principalFrom(r.Context()).UserID, f, t)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.admin.TriggerSweep(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, logging.With(r.Context(), s.log), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}
