//go:build !integration

package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"telegram-generation-billing/internal/config"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/infra/adapters/payment"
)

const (
	testPaymentID = "6f1c7a52-3d0b-4c8e-9a51-2f7d9e0c4b11"
	testInvoiceNo = 4217
	testInvID     = "4217"
)

func newGateway(t *testing.T, statusURL string) *payment.RobokassaGateway {
	t.Helper()
	g, err := payment.NewRobokassaGateway(config.RobokassaConfig{
		MerchantLogin: "shop",
		Password1:     "p1",
		Password2:     "p2",
		TestMode:      true,
		StatusURL:     statusURL,
	}, nil)
	if err != nil {
		t.Fatalf("NewRobokassaGateway: %v", err)
	}
	return g
}

func TestNewRobokassaGateway_Validation(t *testing.T) {
	if _, err := payment.NewRobokassaGateway(config.RobokassaConfig{}, nil); err == nil {
		t.Fatal("expected error for empty login")
	}
	if _, err := payment.NewRobokassaGateway(config.RobokassaConfig{MerchantLogin: "shop", Password1: "p1"}, nil); err == nil {
		t.Fatal("expected error for missing password2")
	}
}

func TestCreatePaymentLink(t *testing.T) {
	g := newGateway(t, "")
	link, corr, err := g.CreatePaymentLink(context.Background(), testPaymentID, testInvoiceNo, 15000, "10 generations")
	if err != nil {
		t.Fatalf("CreatePaymentLink: %v", err)
	}
	if corr != testInvID {
		t.Fatalf("correlation id = %q, want %q", corr, testInvID)
	}

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if !strings.HasPrefix(link, "https://auth.robokassa.ru/Merchant/Index.aspx?") {
		t.Fatalf("unexpected base: %s", link)
	}
	q := u.Query()
	checks := map[string]string{
		"MerchantLogin":  "shop",
		"OutSum":         "150.00",
		"InvId":          corr,
		"IsTest":         "1",
		"shp_payment_id": testPaymentID,
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if len(q.Get("SignatureValue")) != 32 {
		t.Errorf("SignatureValue should be md5 hex, got %q", q.Get("SignatureValue"))
	}
	if !strings.Contains(q.Get("Receipt"), `"sno":"usn_income"`) {
		t.Errorf("receipt missing sno: %s", q.Get("Receipt"))
	}

	t.Run("receipt sum is numeric", func(t *testing.T) {
		var rcpt struct {
			Items []struct {
				Sum json.RawMessage `json:"sum"`
			} `json:"items"`
		}
		if err := json.Unmarshal([]byte(q.Get("Receipt")), &rcpt); err != nil {
			t.Fatalf("decode receipt: %v", err)
		}
		if len(rcpt.Items) != 1 || string(rcpt.Items[0].Sum) != "150.00" {
			t.Fatalf("receipt = %s, want items[0].sum to be the number 150.00", q.Get("Receipt"))
		}
	})

	t.Run("distinct invoice numbers give distinct InvIds", func(t *testing.T) {
		_, other, err := g.CreatePaymentLink(context.Background(), testPaymentID, testInvoiceNo+1, 15000, "10 generations")
		if err != nil {
			t.Fatalf("CreatePaymentLink: %v", err)
		}
		if other == corr {
			t.Fatalf("InvId %s reused for a different invoice number", other)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		if _, _, err := g.CreatePaymentLink(context.Background(), "", testInvoiceNo, 100, "x"); err == nil {
			t.Fatal("expected error for empty payment id")
		}
		if _, _, err := g.CreatePaymentLink(context.Background(), testPaymentID, 0, 100, "x"); err == nil {
			t.Fatal("expected error for missing invoice number")
		}
		if _, _, err := g.CreatePaymentLink(context.Background(), testPaymentID, 1<<31, 100, "x"); err == nil {
			t.Fatal("expected error for invoice number above the InvId range")
		}
		if _, _, err := g.CreatePaymentLink(context.Background(), testPaymentID, testInvoiceNo, 0, "x"); err == nil {
			t.Fatal("expected error for zero amount")
		}
	})
}

func TestVerifySignature(t *testing.T) {
	g := newGateway(t, "")
	invID := testInvID
	sig := g.ResultSignature("150.00", invID, testPaymentID)

	cases := []struct {
		name string
		f    adapter.WebhookFields
		want bool
	}{
		{"valid", adapter.WebhookFields{OutSum: "150.00", InvID: invID, Signature: sig, PaymentID: testPaymentID}, true},
		{"upper case", adapter.WebhookFields{OutSum: "150.00", InvID: invID, Signature: strings.ToUpper(sig), PaymentID: testPaymentID}, true},
		{"tampered sum", adapter.WebhookFields{OutSum: "1.00", InvID: invID, Signature: sig, PaymentID: testPaymentID}, false},
		{"other payment", adapter.WebhookFields{OutSum: "150.00", InvID: invID, Signature: sig, PaymentID: "00000000-0000-0000-0000-000000000000"}, false},
		{"empty signature", adapter.WebhookFields{OutSum: "150.00", InvID: invID, PaymentID: testPaymentID}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.VerifySignature(tc.f); got != tc.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tc.want)
			}
		})
	}
}

func opStateXML(resultCode, stateCode string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<OperationStateResponse xmlns="http://merchant.roboxchange.com/WebService/">
  <Result><Code>` + resultCode + `</Code><Description>d</Description></Result>
  <State><Code>` + stateCode + `</Code><RequestDate>2026-01-01T10:00:00</RequestDate></State>
</OperationStateResponse>`
}

func TestQueryStatus(t *testing.T) {
	cases := []struct {
		name    string
		result  string
		state   string
		status  int
		want    model.PaymentStatus
		wantErr bool
	}{
		{"paid 100", "0", "100", http.StatusOK, model.PaymentStatusSuccess, false},
		{"paid 50", "0", "50", http.StatusOK, model.PaymentStatusSuccess, false},
		{"initiated", "0", "5", http.StatusOK, model.PaymentStatusPending, false},
		{"cancelled", "0", "10", http.StatusOK, model.PaymentStatusPending, false},
		{"refunded", "0", "60", http.StatusOK, model.PaymentStatusFailed, false},
		{"suspended", "0", "80", http.StatusOK, model.PaymentStatusFailed, false},
		{"unknown state", "0", "777", http.StatusOK, model.PaymentStatusPending, false},
		{"not found", "3", "0", http.StatusOK, model.PaymentStatusPending, false},
		{"bad signature", "1", "0", http.StatusOK, "", true},
		{"http error", "0", "100", http.StatusBadGateway, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("MerchantLogin") != "shop" || r.URL.Query().Get("InvoiceID") != "42" {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(opStateXML(tc.result, tc.state)))
			}))
			defer srv.Close()

			g := newGateway(t, srv.URL)
			got, err := g.QueryStatus(context.Background(), "42")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("QueryStatus: %v", err)
			}
			if got != tc.want {
				t.Fatalf("status = %q, want %q", got, tc.want)
			}
		})
	}

	t.Run("garbage body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not xml"))
		}))
		defer srv.Close()
		if _, err := newGateway(t, srv.URL).QueryStatus(context.Background(), "42"); err == nil {
			t.Fatal("expected decode error")
		}
	})
}
