package gateway

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	clickActionPrepare  = "0"
	clickActionComplete = "1"
	clickPaymentSuccess = 2
)

type Click struct {
	cfg    ClickConfig
	client *http.Client
}

func NewClick(cfg ClickConfig) *Click {
	cfg.setDefaults()
	return &Click{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Click) Name() string { return "click" }

// CreatePayment builds the Click checkout link. Click amounts are in major
// units with two decimals.
func (c *Click) CreatePayment(_ context.Context, amountCents int64, orderID, _ string) (*Checkout, error) {
	if c.cfg.ServiceID == "" || c.cfg.MerchantID == "" {
		return nil, fmt.Errorf("click: merchant is not configured")
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("click: amount must be positive")
	}

	params := url.Values{}
	params.Set("service_id", c.cfg.ServiceID)
	params.Set("merchant_id", c.cfg.MerchantID)
	params.Set("amount", formatMajor(amountCents))
	params.Set("transaction_param", orderID)
	if c.cfg.ReturnURL != "" {
		params.Set("return_url", c.cfg.ReturnURL)
	}

	paymentURL := c.cfg.CheckoutURL + "?" + params.Encode()
	raw, _ := json.Marshal(map[string]any{"payment_url": paymentURL, "order_id": orderID, "amount": formatMajor(amountCents)})
	return &Checkout{PaymentURL: paymentURL, Raw: raw}, nil
}

type clickStatusResponse struct {
	ErrorCode     int    `json:"error_code"`
	ErrorNote     string `json:"error_note"`
	PaymentStatus int    `json:"payment_status"`
}

func (c *Click) CheckPayment(ctx context.Context, ref PaymentRef) (Status, json.RawMessage, error) {
	if ref.ExternalID == "" {
		return c.checkByOrder(ctx, ref.OrderID)
	}

	body, err := json.Marshal(map[string]string{
		"click_trans_id":    ref.ExternalID,
		"merchant_trans_id": ref.OrderID,
		"service_id":        c.cfg.ServiceID,
		"sign":              md5Hex(ref.ExternalID + c.cfg.ServiceID + c.cfg.SecretKey + ref.OrderID),
	})
	if err != nil {
		return "", nil, err
	}
	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/v2/merchant/payment/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.status(req)
}

// checkByOrder looks a payment up by our order id, for payments whose Click
// id never reached us.
func (c *Click) checkByOrder(ctx context.Context, orderID string) (Status, json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/v2/merchant/payment/status_by_mti/%s/%s",
		strings.TrimRight(c.cfg.APIURL, "/"), url.PathEscape(c.cfg.ServiceID), url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, err
	}
	q := req.URL.Query()
	q.Set("sign", md5Hex(orderID+c.cfg.ServiceID+c.cfg.SecretKey))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	return c.status(req)
}

func (c *Click) status(req *http.Request) (Status, json.RawMessage, error) {
	var resp clickStatusResponse
	raw, err := do(c.client, req, &resp)
	if err != nil {
		return "", raw, fmt.Errorf("click: %w", err)
	}
	if resp.ErrorCode != 0 {
		return "", raw, fmt.Errorf("click: error %d: %s", resp.ErrorCode, resp.ErrorNote)
	}

	switch {
	case resp.PaymentStatus == clickPaymentSuccess:
		return StatusSucceeded, raw, nil
	case resp.PaymentStatus < 0:
		return StatusFailed, raw, nil
	default:
		return StatusPending, raw, nil
	}
}

// ParseCallback handles the form-encoded Click SHOP-API request. The prepare
// action only announces click_trans_id; the complete action carries the
// outcome.
func (c *Click) ParseCallback(_ http.Header, body []byte) (*Callback, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	action := form.Get("action")
	var prepareID string
	switch action {
	case clickActionPrepare:
	case clickActionComplete:
		prepareID = form.Get("merchant_prepare_id")
	default:
		return nil, fmt.Errorf("%w: action %q", ErrMalformedCallback, action)
	}

	if c.cfg.SecretKey != "" {
		expected := md5Hex(form.Get("click_trans_id") + form.Get("service_id") + c.cfg.SecretKey +
			form.Get("merchant_trans_id") + prepareID + form.Get("amount") +
			action + form.Get("sign_time"))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(form.Get("sign_string"))) != 1 {
			return nil, ErrInvalidSignature
		}
	}

	id, err := parseOrderID(form.Get("merchant_trans_id"))
	if err != nil {
		return nil, err
	}
	status := StatusPending
	if action == clickActionComplete {
		code, err := strconv.Atoi(form.Get("error"))
		if err != nil {
			return nil, fmt.Errorf("%w: error code %q", ErrMalformedCallback, form.Get("error"))
		}
		status = StatusSucceeded
		if code < 0 {
			status = StatusFailed
		}
	}

	var amountCents int64
	if a := form.Get("amount"); a != "" {
		amount, err := decimal.NewFromString(a)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", ErrMalformedCallback, a)
		}
		amountCents = amount.Shift(2).Round(0).IntPart()
	}

	flat := make(map[string]string, len(form))
	for k := range form {
		flat[k] = form.Get(k)
	}
	payload, _ := json.Marshal(flat)

	return &Callback{
		TransactionID: id,
		ExternalID:    form.Get("click_trans_id"),
		Status:        status,
		AmountCents:   amountCents,
		Payload:       payload,
	}, nil
}

func formatMajor(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

var _ Gateway = (*Click)(nil)
