package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const stripeSignatureTolerance = 5 * time.Minute

type Stripe struct {
	cfg    StripeConfig
	client *http.Client
	now    func() time.Time
}

func NewStripe(cfg StripeConfig) *Stripe {
	cfg.setDefaults()
	return &Stripe{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, now: time.Now}
}

func (s *Stripe) Name() string { return "stripe" }

type stripeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Metadata     struct {
		TransactionID string `json:"transaction_id"`
	} `json:"metadata"`
}

// CreatePayment opens a PaymentIntent. The idempotency key is derived from the
// order id so a retried call never opens a second intent.
func (s *Stripe) CreatePayment(ctx context.Context, amountCents int64, orderID, description string) (*Checkout, error) {
	if s.cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe: secret key is not configured")
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("stripe: amount must be positive")
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", strings.ToLower(s.cfg.Currency))
	form.Set("description", description)
	form.Set("metadata[transaction_id]", orderID)
	form.Set("automatic_payment_methods[enabled]", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/v1/payment_intents"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.NewSHA1(uuid.NameSpaceOID, []byte("payment_intent:"+orderID)).String())
	s.authorize(req)

	var intent stripeIntent
	raw, err := do(s.client, req, &intent)
	if err != nil {
		return nil, fmt.Errorf("stripe: %w", err)
	}
	return &Checkout{ClientSecret: intent.ClientSecret, ExternalID: intent.ID, Raw: raw}, nil
}

func (s *Stripe) CheckPayment(ctx context.Context, ref PaymentRef) (Status, json.RawMessage, error) {
	if ref.ExternalID == "" {
		return StatusPending, nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("/v1/payment_intents/"+url.PathEscape(ref.ExternalID)), nil)
	if err != nil {
		return "", nil, err
	}
	s.authorize(req)

	var intent stripeIntent
	raw, err := do(s.client, req, &intent)
	if err != nil {
		return "", raw, fmt.Errorf("stripe: %w", err)
	}
	return intentStatus(intent.Status), raw, nil
}

func intentStatus(status string) Status {
	switch status {
	case "succeeded":
		return StatusSucceeded
	case "canceled":
		return StatusFailed
	default:
		return StatusPending
	}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (s *Stripe) ParseCallback(header http.Header, body []byte) (*Callback, error) {
	if s.cfg.WebhookSecret != "" {
		if err := s.verifySignature(header.Get("Stripe-Signature"), body); err != nil {
			return nil, err
		}
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	var status Status
	switch event.Type {
	case "payment_intent.succeeded":
		status = StatusSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		status = StatusFailed
	default:
		return nil, ErrIgnoredEvent
	}

	var intent stripeIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	id, err := parseOrderID(intent.Metadata.TransactionID)
	if err != nil {
		return nil, err
	}
	return &Callback{
		TransactionID: id,
		ExternalID:    intent.ID,
		Status:        status,
		AmountCents:   intent.Amount,
		Payload:       event.Data.Object,
	}, nil
}

// verifySignature checks a "t=<unix>,v1=<hex>" header against
// HMAC-SHA256(secret, "<t>.<body>").
func (s *Stripe) verifySignature(header string, body []byte) error {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || len(signatures) == 0 {
		return ErrInvalidSignature
	}
	if age := s.now().Sub(time.Unix(ts, 0)); age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err == nil && hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (s *Stripe) endpoint(path string) string {
	return strings.TrimRight(s.cfg.APIURL, "/") + path
}

func (s *Stripe) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)
}

var _ Gateway = (*Stripe)(nil)
