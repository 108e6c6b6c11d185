//go:build !integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/repository"
	"telegram-generation-billing/internal/infra/adapters/payment"
	"telegram-generation-billing/internal/infra/api"
	"telegram-generation-billing/internal/infra/db/memory"
	"telegram-generation-billing/internal/usecase"
)

const secret = "test-secret"

type env struct {
	srv     http.Handler
	auth    *api.Authenticator
	users   repository.UserRepository
	gateway *payment.NoopPaymentGateway
	payUC   usecase.PaymentUseCase
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store := memory.NewStore()
	users := memory.NewUserRepo(store)
	payments := memory.NewPaymentRepo(store)
	promos := memory.NewPromoCodeRepo(store)
	gw := payment.NewNoopPaymentGateway()

	balance := usecase.NewBalanceUseCase(users, store, &logger)
	payUC := usecase.NewPaymentUseCase(payments, users, balance, store, gw, nil, nil, nil,
		usecase.PaymentSettings{PendingTTL: time.Hour, Pricing: []model.PricingTier{{Generations: 10, Price: 15000, Currency: "RUB"}}},
		&logger)
	promoUC := usecase.NewPromoUseCase(promos, balance, store, nil, &logger)
	userUC := usecase.NewUserUseCase(users, balance, usecase.RegistrationPolicy{}, &logger)

	auth := api.NewAuthenticator(secret, "test")
	s := api.NewServer(payUC, promoUC, balance, userUC, auth, "gen_bot", &logger)
	return &env{srv: s.Router(), auth: auth, users: users, gateway: gw, payUC: payUC}
}

func (e *env) addUser(t *testing.T, tgID, balance int64) *model.User {
	t.Helper()
	u, err := model.NewUser(uuid.NewString(), tgID, "Ann", "ann", balance)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.users.Save(context.Background(), nil, u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (e *env) balanceOf(t *testing.T, id string) int64 {
	t.Helper()
	u, err := e.users.FindByID(context.Background(), nil, id)
	if err != nil {
		t.Fatal(err)
	}
	return u.Balance
}

func (e *env) token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := e.auth.Mint(sub, role, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *env) do(method, target, token string, body []byte) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	if rec := e.do(http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
	if rec := e.do(http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestRobokassaResult(t *testing.T) {
	e := newEnv(t)
	u := e.addUser(t, 700, 0)
	p, err := e.payUC.Initiate(context.Background(), u.ID, 10)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	form := func(sum, sig, id string) url.Values {
		v := url.Values{}
		v.Set("OutSum", sum)
		v.Set("InvId", p.InvoiceID)
		v.Set("SignatureValue", sig)
		v.Set("shp_payment_id", id)
		return v
	}
	good := e.gateway.Signature(p.ID)

	rejects := []struct {
		name string
		form url.Values
		code int
	}{
		{"missing fields", url.Values{"OutSum": {"150.00"}}, http.StatusBadRequest},
		{"malformed id", form("150.00", "noop-x", "not-a-uuid"), http.StatusBadRequest},
		{"bad signature", form("150.00", "forged", p.ID), http.StatusForbidden},
		{"unknown payment", form("150.00", e.gateway.Signature(uuid.Nil.String()), uuid.Nil.String()), http.StatusNotFound},
		{"amount mismatch", form("1.50", good, p.ID), http.StatusBadRequest},
	}
	for _, tc := range rejects {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, "/robokassa/result?"+tc.form.Encode(), "", nil)
			if rec.Code != tc.code {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tc.code, rec.Body.String())
			}
			if e.balanceOf(t, u.ID) != 0 {
				t.Fatal("rejected webhook mutated the balance")
			}
		})
	}

	t.Run("post credits once across redeliveries", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodPost, "/robokassa/result", strings.NewReader(form("150.00", good, p.ID).Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			e.srv.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK || rec.Body.String() != "OK"+p.InvoiceID {
				t.Fatalf("delivery %d: %d %q", i, rec.Code, rec.Body.String())
			}
		}
		if got := e.balanceOf(t, u.ID); got != 10 {
			t.Fatalf("balance = %d, want 10", got)
		}
	})
}

func TestRobokassaRedirectPages(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/robokassa/success", "/robokassa/fail"} {
		rec := e.do(http.MethodGet, path+"?InvId=1", "", nil)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
			t.Fatalf("%s: %d %s", path, rec.Code, rec.Header().Get("Content-Type"))
		}
		if !strings.Contains(rec.Body.String(), "t.me/gen_bot") {
			t.Fatalf("%s: missing bot link", path)
		}
	}
}

func TestAPIv1_Auth(t *testing.T) {
	e := newEnv(t)
	target := "/api/v1/promo-codes"
	body := []byte(`{"generations":5,"usage_limit":2}`)

	if rec := e.do(http.MethodPost, target, "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := e.do(http.MethodPost, target, "garbage", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", rec.Code)
	}
	if rec := e.do(http.MethodPost, target, e.token(t, "1", api.RoleUser), body); rec.Code != http.StatusForbidden {
		t.Fatalf("user role: %d", rec.Code)
	}
	other := api.NewAuthenticator("other-secret", "test")
	forged, _ := other.Mint("1", api.RoleAdmin, time.Minute)
	if rec := e.do(http.MethodPost, target, forged, body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign secret: %d", rec.Code)
	}
}

func TestAPIv1_PromoFlow(t *testing.T) {
	e := newEnv(t)
	u := e.addUser(t, 900, 1)

	rec := e.do(http.MethodPost, "/api/v1/promo-codes", e.token(t, "admin", api.RoleAdmin), []byte(`{"generations":5,"usage_limit":1}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || len(created.Code) != 8 {
		t.Fatalf("created: %s", rec.Body.String())
	}

	userTok := e.token(t, "900", api.RoleUser)
	activate := func() usecase.PromoResult {
		rec := e.do(http.MethodPost, "/api/v1/promo-codes/activate", userTok, []byte(`{"code":"`+strings.ToLower(created.Code)+`"}`))
		if rec.Code != http.StatusOK {
			t.Fatalf("activate: %d %s", rec.Code, rec.Body.String())
		}
		var res usecase.PromoResult
		_ = json.Unmarshal(rec.Body.Bytes(), &res)
		return res
	}
	if res := activate(); res.Outcome != usecase.PromoOutcomeSuccess || res.Balance != 6 {
		t.Fatalf("first activation: %+v", res)
	}
	if res := activate(); res.Outcome != usecase.PromoOutcomeAlreadyUsed {
		t.Fatalf("second activation: %+v", res)
	}
	if got := e.balanceOf(t, u.ID); got != 6 {
		t.Fatalf("balance = %d", got)
	}

	t.Run("bad input", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/api/v1/promo-codes", e.token(t, "admin", api.RoleAdmin), []byte(`{"generations":0,"usage_limit":1}`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("zero generations: %d", rec.Code)
		}
	})
}

func TestAPIv1_Debit(t *testing.T) {
	e := newEnv(t)
	u := e.addUser(t, 901, 1)
	tok := e.token(t, "image-generator", api.RoleService)

	rec := e.do(http.MethodPost, "/api/v1/users/"+u.ID+"/debit", tok, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"debited"`) {
		t.Fatalf("debit: %d %s", rec.Code, rec.Body.String())
	}
	if rec := e.do(http.MethodPost, "/api/v1/users/"+u.ID+"/debit", tok, nil); rec.Code != http.StatusPaymentRequired {
		t.Fatalf("empty balance: %d", rec.Code)
	}
	if rec := e.do(http.MethodPost, "/api/v1/users/"+uuid.NewString()+"/debit", tok, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user: %d", rec.Code)
	}
	if rec := e.do(http.MethodPost, "/api/v1/users/nope/debit", tok, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
	if e.balanceOf(t, u.ID) != 0 {
		t.Fatal("balance went negative or was not debited")
	}
}

func TestAPIv1_CheckPayment(t *testing.T) {
	e := newEnv(t)
	owner := e.addUser(t, 950, 0)
	e.addUser(t, 951, 0)
	p, err := e.payUC.Initiate(context.Background(), owner.ID, 10)
	if err != nil {
		t.Fatal(err)
	}

	if rec := e.do(http.MethodPost, "/api/v1/payments/"+p.ID+"/check", e.token(t, "951", api.RoleUser), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign payment: %d", rec.Code)
	}

	rec := e.do(http.MethodPost, "/api/v1/payments/"+p.ID+"/check", e.token(t, "950", api.RoleUser), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check: %d %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["outcome"] != "credited" || body["balance"].(float64) != 10 {
		t.Fatalf("unexpected body %v", body)
	}
}
