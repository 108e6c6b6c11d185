package api

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/infra/metrics"
	"telegram-generation-billing/internal/usecase"
)

// webhookReason is a bounded label for payment_webhook_requests_total.
func webhookReason(f adapter.WebhookFields, err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrInvalidSignature):
		return "bad_signature"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		if f.OutSum == "" || f.InvID == "" || f.Signature == "" || f.PaymentID == "" {
			return "missing_params"
		}
		return "bad_payment_id"
	default:
		return "internal"
	}
}

// handleResult is the ResultURL: the only unauthenticated mutation, guarded
// by the gateway signature.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	f := adapter.WebhookFields{
		OutSum:    r.Form.Get("OutSum"),
		InvID:     r.Form.Get("InvId"),
		Signature: r.Form.Get("SignatureValue"),
		PaymentID: r.Form.Get("shp_payment_id"),
	}
	ctx := logging.WithPaymentID(r.Context(), f.PaymentID)
	l := logging.With(ctx, s.log)

	ack, err := s.payUC.HandleWebhook(ctx, f)
	reason := webhookReason(f, err)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound) || usecase.IsValidationError(err):
		result = "reject"
		l.Warn().Bool("security", true).Err(err).Str("reason", reason).
			Str("inv_id", f.InvID).Str("out_sum", f.OutSum).Msg("webhook rejected")
	default:
		result = "error"
		l.Error().Err(err).Str("inv_id", f.InvID).Msg("webhook processing failed")
	}
	metrics.PaymentWebhookRequests.WithLabelValues(result, reason).Inc()
	metrics.PaymentWebhookDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	if err != nil {
		code, msg := statusFor(err)
		http.Error(w, msg, code)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ack))
}

// The success and fail redirects are unauthenticated and never mutate state;
// the user confirms through the bot or the webhook settles it.
func (s *Server) handleSuccess(w http.ResponseWriter, r *http.Request) {
	s.renderHTML(w, http.StatusOK, true,
		"Payment received. Generations are credited as soon as Robokassa confirms it; you can also press \"Check payment\" in the bot.")
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	s.renderHTML(w, http.StatusOK, false,
		"The payment was not completed. No money was charged; you can start a new purchase in the bot.")
}

var page = template.Must(template.New("result").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>{{if .OK}}Payment received{{else}}Payment not completed{{end}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
.btn{display:inline-block;margin-top:16px;padding:10px 16px;border-radius:8px;border:1px solid #888;text-decoration:none}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{if .OK}}ok{{else}}fail{{end}}">{{if .OK}}Payment received{{else}}Payment not completed{{end}}</h2>
  <p>{{.Msg}}</p>
  {{if .BotUsername}}<a class="btn" href="https://t.me/{{.BotUsername}}">Back to Telegram</a>{{end}}
</div>
</body>
</html>`))

func (s *Server) renderHTML(w http.ResponseWriter, code int, ok bool, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = page.Execute(w, struct {
		OK          bool
		Msg         string
		BotUsername string
	}{OK: ok, Msg: msg, BotUsername: s.botUsername})
}
