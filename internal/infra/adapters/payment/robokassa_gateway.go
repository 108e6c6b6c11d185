// File: internal/infra/adapters/payment/robokassa_gateway.go
package payment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"telegram-generation-billing/internal/config"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*RobokassaGateway)(nil)

const (
	defaultPayURL    = "https://auth.robokassa.ru/Merchant/Index.aspx"
	defaultStatusURL = "https://auth.robokassa.ru/Merchant/WebService/Service.asmx/OpStateExt"

	// shpPaymentID is the custom parameter echoed back on the result callback.
	shpPaymentID = "shp_payment_id"

	// resultCodeNotFound: the invoice was never opened on the Robokassa side.
	resultCodeNotFound = 3
)

// RobokassaGateway implements adapter.PaymentGateway on top of the Robokassa
// merchant interface: signed redirect links, OpStateExt status queries and
// MD5-signed ResultURL callbacks.
type RobokassaGateway struct {
	login     string
	password1 string
	password2 string
	test      bool
	payURL    string
	statusURL string
	client    *http.Client
}

// NewRobokassaGateway validates credentials. A nil client gets a 15s timeout client.
func NewRobokassaGateway(cfg config.RobokassaConfig, client *http.Client) (*RobokassaGateway, error) {
	if cfg.MerchantLogin == "" {
		return nil, errors.New("robokassa: merchant login empty")
	}
	if cfg.Password1 == "" || cfg.Password2 == "" {
		return nil, errors.New("robokassa: password1 and password2 are required")
	}
	g := &RobokassaGateway{
		login:     cfg.MerchantLogin,
		password1: cfg.Password1,
		password2: cfg.Password2,
		test:      cfg.TestMode,
		payURL:    cfg.PayURL,
		statusURL: cfg.StatusURL,
		client:    client,
	}
	if g.payURL == "" {
		g.payURL = defaultPayURL
	}
	if g.statusURL == "" {
		g.statusURL = defaultStatusURL
	}
	for _, raw := range []string{g.payURL, g.statusURL} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return nil, fmt.Errorf("robokassa: invalid url %q: %w", raw, err)
		}
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: 15 * time.Second}
	}
	return g, nil
}

func (g *RobokassaGateway) Name() string { return "robokassa" }

// maxInvID is the largest InvId Robokassa accepts.
const maxInvID = 1<<31 - 1

// outSum renders minor units as the decimal string both sides sign.
func outSum(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

func md5Hex(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

type receiptItem struct {
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Sum      json.Number `json:"sum"`
	Method   string      `json:"payment_method"`
	Object   string      `json:"payment_object"`
	Tax      string      `json:"tax"`
}

type receipt struct {
	SNO   string        `json:"sno"`
	Items []receiptItem `json:"items"`
}

// fiscalReceipt builds the single-service fiscal receipt attached to every link.
// sum is written as a JSON number.
func fiscalReceipt(description string, sum string) (string, error) {
	b, err := json.Marshal(receipt{
		SNO: "usn_income",
		Items: []receiptItem{{
			Name:     description,
			Quantity: 1,
			Sum:      json.Number(sum),
			Method:   "full_payment",
			Object:   "service",
			Tax:      "none",
		}},
	})
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}
	return string(b), nil
}

// CreatePaymentLink signs MerchantLogin:OutSum:InvId:Receipt:Password1:shp_payment_id=<id>.
// InvId is invoiceNo, which the store keeps unique.
func (g *RobokassaGateway) CreatePaymentLink(ctx context.Context, paymentID string, invoiceNo int64, amount int64, description string) (string, string, error) {
	if paymentID == "" {
		return "", "", errors.New("robokassa: payment id empty")
	}
	if invoiceNo <= 0 || invoiceNo > maxInvID {
		return "", "", fmt.Errorf("robokassa: invoice number %d out of range", invoiceNo)
	}
	if amount <= 0 {
		return "", "", fmt.Errorf("robokassa: invalid amount %d", amount)
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	invID := strconv.FormatInt(invoiceNo, 10)
	sum := outSum(amount)
	rcpt, err := fiscalReceipt(description, sum)
	if err != nil {
		return "", "", err
	}
	shp := shpPaymentID + "=" + paymentID
	sig := md5Hex(g.login, sum, invID, rcpt, g.password1, shp)

	q := url.Values{}
	q.Set("MerchantLogin", g.login)
	q.Set("OutSum", sum)
	q.Set("InvId", invID)
	q.Set("Description", description)
	q.Set("Receipt", rcpt)
	q.Set("SignatureValue", sig)
	q.Set(shpPaymentID, paymentID)
	q.Set("Culture", "ru")
	if g.test {
		q.Set("IsTest", "1")
	}
	return g.payURL + "?" + q.Encode(), invID, nil
}

type opStateResponse struct {
	XMLName xml.Name `xml:"OperationStateResponse"`
	Result  struct {
		Code        int    `xml:"Code"`
		Description string `xml:"Description"`
	} `xml:"Result"`
	State struct {
		Code int `xml:"Code"`
	} `xml:"State"`
}

// mapState translates an OpStateExt state code.
func mapState(code int) model.PaymentStatus {
	switch code {
	case 50, 100:
		return model.PaymentStatusSuccess
	case 60, 80:
		return model.PaymentStatusFailed
	default:
		// 5, 10 and anything undocumented
		return model.PaymentStatusPending
	}
}

// QueryStatus calls OpStateExt for the numeric invoice id.
func (g *RobokassaGateway) QueryStatus(ctx context.Context, correlationID string) (model.PaymentStatus, error) {
	if correlationID == "" {
		return "", errors.New("robokassa: correlation id empty")
	}
	q := url.Values{}
	q.Set("MerchantLogin", g.login)
	q.Set("InvoiceID", correlationID)
	q.Set("Signature", md5Hex(g.login, correlationID, g.password2))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.statusURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("robokassa opstate: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("robokassa opstate read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("robokassa opstate: http %d", resp.StatusCode)
	}

	var out opStateResponse
	if err := xml.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("robokassa opstate decode: %w", err)
	}
	switch out.Result.Code {
	case 0:
		return mapState(out.State.Code), nil
	case resultCodeNotFound:
		return model.PaymentStatusPending, nil
	default:
		return "", fmt.Errorf("robokassa opstate: code=%d %s", out.Result.Code, out.Result.Description)
	}
}

// VerifySignature checks OutSum:InvId:Password2:shp_payment_id=<id>, case-insensitively.
func (g *RobokassaGateway) VerifySignature(f adapter.WebhookFields) bool {
	if f.Signature == "" || f.OutSum == "" || f.InvID == "" || f.PaymentID == "" {
		return false
	}
	want := md5Hex(f.OutSum, f.InvID, g.password2, shpPaymentID+"="+f.PaymentID)
	return strings.EqualFold(want, strings.TrimSpace(f.Signature))
}

// ResultSignature computes the signature Robokassa sends to ResultURL.
func (g *RobokassaGateway) ResultSignature(sum, invID, paymentID string) string {
	return md5Hex(sum, invID, g.password2, shpPaymentID+"="+paymentID)
}
