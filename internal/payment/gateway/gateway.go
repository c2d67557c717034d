// Package gateway abstracts the payment providers a booking can be settled with.
// Each adapter receives its configuration at construction and talks to the
// provider over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
)

//go:generate mockgen -source=gateway.go -destination=mock_gateway.go -package=gateway

var (
	ErrUnknownGateway    = errors.New("unknown payment gateway")
	ErrMalformedCallback = errors.New("malformed payment callback")
	ErrInvalidSignature  = errors.New("invalid callback signature")
	// ErrIgnoredEvent marks a well-formed callback that carries no final outcome.
	ErrIgnoredEvent = errors.New("callback carries no payment outcome")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Checkout is what the client needs to complete a payment.
type Checkout struct {
	PaymentURL   string
	ClientSecret string
	ExternalID   string
	Raw          json.RawMessage
}

// PaymentRef identifies a payment on both sides: OrderID is our transaction id,
// ExternalID is the provider's.
type PaymentRef struct {
	OrderID    string
	ExternalID string
}

// Callback is a parsed provider notification.
type Callback struct {
	TransactionID int64
	ExternalID    string
	Status        Status
	AmountCents   int64
	Payload       json.RawMessage
}

type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, amountCents int64, orderID, description string) (*Checkout, error)
	CheckPayment(ctx context.Context, ref PaymentRef) (Status, json.RawMessage, error)
	ParseCallback(header http.Header, body []byte) (*Callback, error)
}

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseOrderID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: order id %q", ErrMalformedCallback, s)
	}
	return id, nil
}
