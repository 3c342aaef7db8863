package paymob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/mediavault/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/mediavault/internal/payment/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	providerName       = "paymob"
	defaultTimeout     = 10 * time.Second
	paymentKeyLifetime = 3600
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" || strings.TrimSpace(cfg.APIKey) == "" || cfg.IntegrationID == 0 || strings.TrimSpace(cfg.IframeID) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "EGP"
	}

	return &Adapter{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		hmacSecret:    cfg.HMACSecret,
		integrationID: cfg.IntegrationID,
		iframeID:      cfg.IframeID,
		currency:      currency,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type Adapter struct {
	baseURL       string
	apiKey        string
	hmacSecret    string
	integrationID int64
	iframeID      string
	currency      string
	client        *http.Client
}

func (a *Adapter) Provider() string {
	return providerName
}

// CreateOrder authenticates, registers an order and requests a payment key.
// The returned URL is the hosted iframe checkout for that key.
func (a *Adapter) CreateOrder(ctx context.Context, req paymentdomain.OrderRequest) (*paymentdomain.Order, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = a.currency
	}

	var auth authResponse
	if _, err := a.post(ctx, "/api/auth/tokens", map[string]any{"api_key": a.apiKey}, &auth); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if auth.Token == "" {
		return nil, fmt.Errorf("authenticate: empty token")
	}

	var order orderResponse
	rawOrder, err := a.post(ctx, "/api/ecommerce/orders", map[string]any{
		"auth_token":        auth.Token,
		"delivery_needed":   false,
		"amount_cents":      req.AmountCents,
		"currency":          currency,
		"merchant_order_id": req.MerchantReference,
		"items": []map[string]any{{
			"name":         req.PlanName,
			"amount_cents": req.AmountCents,
			"description":  "Subscription: " + req.PlanName,
			"quantity":     1,
		}},
	}, &order)
	if err != nil {
		return nil, fmt.Errorf("register order: %w", err)
	}
	orderID := order.ID.String()
	if orderID == "" {
		return nil, fmt.Errorf("register order: missing order id")
	}

	var key paymentKeyResponse
	if _, err := a.post(ctx, "/api/acceptance/payment_keys", map[string]any{
		"auth_token":     auth.Token,
		"amount_cents":   req.AmountCents,
		"expiration":     paymentKeyLifetime,
		"order_id":       orderID,
		"currency":       currency,
		"integration_id": a.integrationID,
		"billing_data":   billingData(req),
	}, &key); err != nil {
		return nil, fmt.Errorf("payment key: %w", err)
	}
	if key.Token == "" {
		return nil, fmt.Errorf("payment key: empty token")
	}

	paymentURL := fmt.Sprintf("%s/api/acceptance/iframes/%s?payment_token=%s",
		a.baseURL, url.PathEscape(a.iframeID), url.QueryEscape(key.Token))

	return &paymentdomain.Order{
		OrderID:    orderID,
		PaymentURL: paymentURL,
		Raw:        rawOrder,
	}, nil
}

func (a *Adapter) Verify(payload []byte, signature string) error {
	return adapters.VerifySHA512(a.hmacSecret, payload, signature)
}

func (a *Adapter) Parse(payload []byte) (*paymentdomain.PaymentEvent, error) {
	var callback transactionCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if callback.Type != "" && !strings.EqualFold(callback.Type, "TRANSACTION") {
		return nil, paymentdomain.ErrEventIgnored
	}

	txn := callback.Obj
	txnID := txn.ID.String()
	orderID := txn.Order.ID.String()
	if txnID == "" || orderID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if txn.Pending {
		return nil, paymentdomain.ErrEventIgnored
	}

	eventType := paymentdomain.EventTypePaymentFailed
	if txn.Success {
		eventType = paymentdomain.EventTypePaymentSucceeded
	}
	occurredAt := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(txn.CreatedAt)); err == nil {
		occurredAt = parsed.UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:        providerName,
		ProviderEventID: txnID,
		OrderID:         orderID,
		Type:            eventType,
		Success:         txn.Success,
		Amount:          txn.AmountCents,
		Currency:        strings.ToUpper(strings.TrimSpace(txn.Currency)),
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) post(ctx context.Context, path string, body any, out any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return raw, nil
}

// billingData fills the fields the gateway requires; unknown values use its "NA" convention.
func billingData(req paymentdomain.OrderRequest) map[string]string {
	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		email = "NA"
	}
	first, last := "NA", "NA"
	if name := strings.Fields(req.CustomerName); len(name) > 0 {
		first = name[0]
		if len(name) > 1 {
			last = strings.Join(name[1:], " ")
		}
	}
	return map[string]string{
		"email":           email,
		"first_name":      first,
		"last_name":       last,
		"phone_number":    "NA",
		"apartment":       "NA",
		"floor":           "NA",
		"street":          "NA",
		"building":        "NA",
		"shipping_method": "NA",
		"postal_code":     "NA",
		"city":            "NA",
		"country":         "NA",
		"state":           "NA",
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type authResponse struct {
	Token string `json:"token"`
}

type orderResponse struct {
	ID flexibleID `json:"id"`
}

type paymentKeyResponse struct {
	Token string `json:"token"`
}

type transactionCallback struct {
	Type string      `json:"type"`
	Obj  transaction `json:"obj"`
}

type transaction struct {
	ID          flexibleID `json:"id"`
	Pending     bool       `json:"pending"`
	Success     bool       `json:"success"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	CreatedAt   string     `json:"created_at"`
	Order       struct {
		ID flexibleID `json:"id"`
	} `json:"order"`
}

// flexibleID accepts ids encoded as JSON numbers or strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*f = ""
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		*f = flexibleID(strings.TrimSpace(unquoted))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

func (f flexibleID) String() string {
	return string(f)
}
