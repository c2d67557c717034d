package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const paymeCallbackUser = "Paycom"

// Payme settlement states reported by CheckTransaction.
const (
	paymeStatePerformed = 2
)

type Payme struct {
	cfg    PaymeConfig
	client *http.Client
}

func NewPayme(cfg PaymeConfig) *Payme {
	cfg.setDefaults()
	return &Payme{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (p *Payme) Name() string { return "payme" }

type paymeCheckout struct {
	Merchant string `json:"m"`
	Account  struct {
		OrderID string `json:"order_id"`
	} `json:"ac"`
	Amount   int64  `json:"a"`
	Comment  string `json:"c"`
	Currency string `json:"cr"`
	Lang     string `json:"l"`
}

// CreatePayment builds the hosted checkout link. Payme assigns its own
// transaction id later, when it calls back.
func (p *Payme) CreatePayment(_ context.Context, amountCents int64, orderID, description string) (*Checkout, error) {
	if p.cfg.MerchantID == "" {
		return nil, fmt.Errorf("payme: merchant id is not configured")
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("payme: amount must be positive")
	}

	params := paymeCheckout{Merchant: p.cfg.MerchantID, Amount: amountCents, Comment: description, Currency: "UZS", Lang: "uz"}
	params.Account.OrderID = orderID
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	paymentURL := fmt.Sprintf("%s/%s?%s", strings.TrimRight(p.cfg.CheckoutURL, "/"), p.cfg.MerchantID,
		base64.URLEncoding.EncodeToString(encoded))
	raw, _ := json.Marshal(map[string]any{"payment_url": paymentURL, "order_id": orderID, "amount": amountCents})
	return &Checkout{PaymentURL: paymentURL, Raw: raw}, nil
}

type paymeRPCError struct {
	Code    int    `json:"code"`
	Message any    `json:"message"`
	Data    string `json:"data,omitempty"`
}

type paymeCheckResponse struct {
	Result *struct {
		State int `json:"state"`
	} `json:"result"`
	Error *paymeRPCError `json:"error"`
}

func (p *Payme) CheckPayment(ctx context.Context, ref PaymentRef) (Status, json.RawMessage, error) {
	if ref.ExternalID == "" {
		return StatusPending, nil, nil
	}

	body, err := json.Marshal(map[string]any{
		"method": "CheckTransaction",
		"params": map[string]string{"id": ref.ExternalID},
	})
	if err != nil {
		return "", nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.SetBasicAuth(p.cfg.MerchantID, p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	var resp paymeCheckResponse
	raw, err := do(p.client, req, &resp)
	if err != nil {
		return "", raw, fmt.Errorf("payme: %w", err)
	}
	if resp.Error != nil {
		return "", raw, fmt.Errorf("payme: rpc error %d: %v", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == nil {
		return "", raw, fmt.Errorf("payme: empty result")
	}

	switch {
	case resp.Result.State == paymeStatePerformed:
		return StatusSucceeded, raw, nil
	case resp.Result.State < 0:
		return StatusFailed, raw, nil
	default:
		return StatusPending, raw, nil
	}
}

type paymeCallback struct {
	Method string `json:"method"`
	Params struct {
		ID      string `json:"id"`
		Amount  int64  `json:"amount"`
		Account struct {
			OrderID string `json:"order_id"`
		} `json:"account"`
		Reason *int `json:"reason,omitempty"`
	} `json:"params"`
}

// ParseCallback handles merchant API notifications. PerformTransaction and
// CancelTransaction carry an outcome; CreateTransaction only announces the
// Payme transaction id, which CheckPayment needs later.
func (p *Payme) ParseCallback(header http.Header, body []byte) (*Callback, error) {
	if p.cfg.SecretKey != "" && !p.authorized(header.Get("Authorization")) {
		return nil, ErrInvalidSignature
	}

	var cb paymeCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	var status Status
	switch cb.Method {
	case "PerformTransaction":
		status = StatusSucceeded
	case "CancelTransaction":
		status = StatusFailed
	case "CreateTransaction":
		status = StatusPending
	default:
		return nil, ErrIgnoredEvent
	}

	id, err := parseOrderID(cb.Params.Account.OrderID)
	if err != nil {
		return nil, err
	}
	return &Callback{
		TransactionID: id,
		ExternalID:    cb.Params.ID,
		Status:        status,
		AmountCents:   cb.Params.Amount,
		Payload:       json.RawMessage(body),
	}, nil
}

func (p *Payme) authorized(header string) bool {
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(paymeCallbackUser+":"+p.cfg.SecretKey))
	return subtle.ConstantTimeCompare([]byte(header), []byte(want)) == 1
}

var _ Gateway = (*Payme)(nil)
