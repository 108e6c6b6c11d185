package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/usecase"
)

// Server exposes the gateway callbacks and the /api/v1 surface.
type Server struct {
	payUC       usecase.PaymentUseCase
	promoUC     usecase.PromoUseCase
	balanceUC   usecase.BalanceUseCase
	userUC      usecase.UserUseCase
	auth        *Authenticator
	botUsername string
	timeout     time.Duration
	log         *zerolog.Logger
}

func NewServer(
	payUC usecase.PaymentUseCase,
	promoUC usecase.PromoUseCase,
	balanceUC usecase.BalanceUseCase,
	userUC usecase.UserUseCase,
	auth *Authenticator,
	botUsername string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		payUC:       payUC,
		promoUC:     promoUC,
		balanceUC:   balanceUC,
		userUC:      userUC,
		auth:        auth,
		botUsername: botUsername,
		timeout:     30 * time.Second,
		log:         &l,
	}
}

// Router builds the chi tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.log), TraceID(), RequestLog(s.log), Timeout(s.timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/robokassa", func(r chi.Router) {
		r.Get("/result", s.handleResult)
		r.Post("/result", s.handleResult)
		r.Get("/success", s.handleSuccess)
		r.Post("/success", s.handleSuccess)
		r.Get("/fail", s.handleFail)
		r.Post("/fail", s.handleFail)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.auth.RequireRole(RoleUser, RoleAdmin)).Post("/payments/{id}/check", s.handleCheckPayment)
		r.With(s.auth.RequireRole(RoleUser)).Post("/promo-codes/activate", s.handleActivatePromo)
		r.With(s.auth.RequireRole(RoleAdmin)).Post("/promo-codes", s.handleCreatePromo)
		r.With(s.auth.RequireRole(RoleService, RoleAdmin)).Post("/users/{id}/debit", s.handleDebit)
		r.With(s.auth.RequireRole(RoleService, RoleAdmin)).Get("/users/{id}/balance", s.handleBalance)
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps the domain error taxonomy onto HTTP. Persistence details
// never leak to the body.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature), errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case usecase.IsValidationError(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "payment gateway unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
