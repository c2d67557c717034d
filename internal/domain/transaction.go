package domain

import (
	"encoding/json"
	"time"
)

type TransactionType string

const (
	TransactionTypePayment TransactionType = "PAYMENT"
	TransactionTypeRefund  TransactionType = "REFUND"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Transaction is a ledger entry. Amount and type never change after insert;
// a PAYMENT moves from PENDING to COMPLETED or FAILED exactly once.
type Transaction struct {
	ID               int64
	UserID           int64
	AmountCents      int64
	Type             TransactionType
	Status           TransactionStatus
	ReferenceID      string
	Description      string
	Gateway          string
	GatewayReference string
	GatewayResponse  json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type TransactionFilter struct {
	ReferenceID   string
	Type          TransactionType
	Status        TransactionStatus
	CreatedBefore time.Time
	Limit         int
}
