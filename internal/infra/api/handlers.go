package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/usecase"
)

type checkPaymentResponse struct {
	PaymentID   string `json:"payment_id"`
	Outcome     string `json:"outcome"`
	Status      string `json:"status"`
	Generations int64  `json:"generations"`
	Balance     int64  `json:"balance"`
}

type activatePromoRequest struct {
	Code string `json:"code"`
}

type createPromoRequest struct {
	Generations int64 `json:"generations"`
	UsageLimit  int   `json:"usage_limit"`
}

type promoCodeResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Generations int64  `json:"generations"`
	UsageLimit  int    `json:"usage_limit"`
	UsageCount  int    `json:"usage_count"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	code, body := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Msg(msg)
	}
	writeJSONError(w, code, body)
}

// callerTgID reads the telegram id carried in a user token subject.
func callerTgID(r *http.Request) (int64, bool) {
	c := claimsFrom(r.Context())
	if c == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleCheckPayment(w http.ResponseWriter, r *http.Request) {
	tgID, ok := callerTgID(r)
	if !ok {
		writeJSONError(w, http.StatusForbidden, "token subject is not a telegram id")
		return
	}
	ctx := logging.WithTgID(r.Context(), tgID)
	res, err := s.payUC.CheckPayment(ctx, chi.URLParam(r, "id"), tgID)
	if err != nil {
		s.fail(w, r.WithContext(ctx), err, "manual check failed")
		return
	}
	writeJSON(w, http.StatusOK, checkPaymentResponse{
		PaymentID:   res.Payment.ID,
		Outcome:     string(res.Outcome),
		Status:      string(res.Payment.Status),
		Generations: res.Payment.Generations,
		Balance:     res.Balance,
	})
}

func (s *Server) handleActivatePromo(w http.ResponseWriter, r *http.Request) {
	tgID, ok := callerTgID(r)
	if !ok {
		writeJSONError(w, http.StatusForbidden, "token subject is not a telegram id")
		return
	}
	var req activatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := logging.WithTgID(r.Context(), tgID)
	u, err := s.userUC.GetByTelegramID(ctx, tgID)
	if err != nil {
		s.fail(w, r, err, "promo user lookup failed")
		return
	}
	res, err := s.promoUC.Activate(logging.WithUserID(ctx, u.ID), u.ID, req.Code)
	if err != nil {
		s.fail(w, r, err, "promo activation failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req createPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pc, err := s.promoUC.Create(r.Context(), req.Generations, req.UsageLimit)
	if err != nil {
		s.fail(w, r, err, "promo creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, toPromoResponse(pc))
}

func toPromoResponse(pc *model.PromoCode) promoCodeResponse {
	return promoCodeResponse{
		ID:          pc.ID,
		Code:        pc.Code,
		Generations: pc.Generations,
		UsageLimit:  pc.UsageLimit,
		UsageCount:  pc.UsageCount,
	}
}

// handleDebit takes one generation for the image generator. Outcomes other
// than debited are reported with a non-2xx status and the same body shape.
func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(userID); err != nil {
		writeJSONError(w, http.StatusBadRequest, "user id must be a uuid")
		return
	}
	res, err := s.balanceUC.DebitOne(logging.WithUserID(r.Context(), userID), userID)
	if err != nil {
		s.fail(w, r, err, "debit failed")
		return
	}
	code := http.StatusOK
	switch res.Outcome {
	case usecase.DebitOutcomeNotFound:
		code = http.StatusNotFound
	case usecase.DebitOutcomeInsufficient:
		code = http.StatusPaymentRequired
	}
	writeJSON(w, code, res)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(userID); err != nil {
		writeJSONError(w, http.StatusBadRequest, "user id must be a uuid")
		return
	}
	bal, err := s.balanceUC.Balance(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err, "balance lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": bal})
}
