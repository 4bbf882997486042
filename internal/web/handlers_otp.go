package web

import (
	"encoding/json"
	"net/http"

	"github.com/mitie-ops/custodia/internal/logging"
)

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"codigo"`
}

// handleSendCode issues a signature code and mails it to the corporate
// address in the body.
func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.service.SendCode(r.Context(), req.Email); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("signature code sent", "email", req.Email)
	respondJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

// handleVerifyCode redeems a code without recording an event. The
// delivery endpoint redeems inline; this exists for two-step clients
// that verify before submitting the form.
func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	ok, err := s.service.RedeemCode(r.Context(), req.Email, req.Code)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}
