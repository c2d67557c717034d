package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/kafka"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/payment/gateway"
	"github.com/Domenick1991/airways/internal/repository"
	"github.com/Domenick1991/airways/internal/service/inventory"
)

type PaymentUseCase interface {
	HasGateway(name string) bool
	InitiatePayment(ctx context.Context, reference string, userID int64, gatewayName string) (*gateway.Checkout, error)
	ApplyOutcome(ctx context.Context, outcome Outcome) (Result, error)
	HandleCallback(ctx context.Context, gatewayName string, header http.Header, body []byte) (Result, error)
	SyncPending(ctx context.Context) (int, error)
}

type Gateways interface {
	Get(name string) (gateway.Gateway, error)
}

type Events interface {
	Emit(ctx context.Context, event kafka.Event)
}

// Outcome is a final payment result reported by a provider.
type Outcome struct {
	TransactionID int64
	Status        domain.TransactionStatus
	// AmountCents is checked against the ledger when non-zero.
	AmountCents int64
	// Gateway and ExternalID name the provider payment. They are stored when
	// the transaction has no provider reference yet.
	Gateway    string
	ExternalID string
	Payload    json.RawMessage
}

type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultRejected  Result = "rejected"
	ResultIgnored   Result = "ignored"
	// ResultRecorded means a non-final callback taught us the provider's id.
	ResultRecorded Result = "recorded"
)

type PaymentServiceOption func(*PaymentService)

func WithEvents(e Events) PaymentServiceOption {
	return func(s *PaymentService) {
		s.events = e
	}
}

func WithClock(now func() time.Time) PaymentServiceOption {
	return func(s *PaymentService) {
		s.now = now
	}
}

// WithPendingCheck sets how old a PENDING payment must be before SyncPending
// asks its gateway, and how many are checked per run.
func WithPendingCheck(age time.Duration, batch int) PaymentServiceOption {
	return func(s *PaymentService) {
		if age > 0 {
			s.pendingAge = age
		}
		if batch > 0 {
			s.batch = batch
		}
	}
}

type PaymentService struct {
	store      repository.Store
	gateways   Gateways
	events     Events
	log        logger.Logger
	now        func() time.Time
	pendingAge time.Duration
	batch      int
}

func NewPaymentService(store repository.Store, gateways Gateways, log logger.Logger, opts ...PaymentServiceOption) *PaymentService {
	s := &PaymentService{
		store:      store,
		gateways:   gateways,
		log:        log,
		now:        time.Now,
		pendingAge: 15 * time.Minute,
		batch:      100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PaymentService) HasGateway(name string) bool {
	_, err := s.gateways.Get(name)
	return err == nil
}

// InitiatePayment opens a provider payment for the booking's pending PAYMENT
// transaction. A provider failure marks the transaction FAILED.
func (s *PaymentService) InitiatePayment(ctx context.Context, reference string, userID int64, gatewayName string) (*gateway.Checkout, error) {
	g, err := s.gateways.Get(gatewayName)
	if err != nil {
		return nil, domain.InvalidInput(err.Error())
	}

	txs, err := s.store.Queries().ListTransactions(ctx, domain.TransactionFilter{
		ReferenceID: reference,
		Type:        domain.TransactionTypePayment,
	})
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 || (userID != 0 && txs[0].UserID != userID) {
		return nil, domain.NotFound("payment not found")
	}
	tx := txs[0]
	if tx.Status != domain.TransactionStatusPending {
		return nil, domain.InvalidState(fmt.Sprintf("payment is already %s", tx.Status))
	}

	checkout, err := g.CreatePayment(ctx, tx.AmountCents, strconv.FormatInt(tx.ID, 10), tx.Description)
	if err != nil {
		s.log.Error("payment initiation failed",
			logger.F("gateway", gatewayName),
			logger.F("transaction_id", tx.ID),
			logger.Err(err))
		s.failInitiation(context.WithoutCancel(ctx), &tx, gatewayName, err)
		return nil, domain.Gateway(fmt.Sprintf("%s: payment could not be started", gatewayName))
	}

	if err := s.store.Queries().SetTransactionGateway(ctx, tx.ID, gatewayName, checkout.ExternalID, checkout.Raw); err != nil {
		return nil, err
	}
	s.log.Info("payment initiated",
		logger.F("gateway", gatewayName),
		logger.F("transaction_id", tx.ID),
		logger.F("reference", reference))
	return checkout, nil
}

// failInitiation marks the transaction FAILED and gives the unpaid seats back,
// the same way a FAILED provider outcome does.
func (s *PaymentService) failInitiation(ctx context.Context, tx *domain.Transaction, gatewayName string, cause error) {
	payload, _ := json.Marshal(map[string]string{"gateway": gatewayName, "error": cause.Error()})
	var changed bool
	err := s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		ok, err := q.UpdateTransactionStatus(ctx, tx.ID, domain.TransactionStatusPending, domain.TransactionStatusFailed, payload)
		if err != nil || !ok {
			return err
		}
		changed = true
		return releaseUnpaid(ctx, q, tx.ReferenceID)
	})
	if err != nil {
		s.log.Error("failed to mark transaction failed", logger.F("transaction_id", tx.ID), logger.Err(err))
		return
	}
	if changed {
		tx.Status = domain.TransactionStatusFailed
		s.emit(ctx, domain.EventPaymentFailed, tx)
	}
}

// ApplyOutcome records a provider outcome exactly once. Replays and late
// contradicting outcomes leave the ledger untouched.
func (s *PaymentService) ApplyOutcome(ctx context.Context, outcome Outcome) (Result, error) {
	if outcome.Status != domain.TransactionStatusCompleted && outcome.Status != domain.TransactionStatusFailed {
		return "", domain.InvalidInput(fmt.Sprintf("outcome status %q is not final", outcome.Status))
	}

	var (
		result  Result
		applied domain.Transaction
	)
	err := s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		result = ""
		tx, err := q.GetTransaction(ctx, outcome.TransactionID, repository.LockUpdate)
		if errors.Is(err, domain.ErrNotFound) {
			result = ResultIgnored
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case tx.Type != domain.TransactionTypePayment:
			result = ResultIgnored
			return nil
		case outcome.AmountCents != 0 && outcome.AmountCents != tx.AmountCents:
			s.log.Warn("payment callback amount mismatch",
				logger.F("transaction_id", tx.ID),
				logger.F("expected_cents", tx.AmountCents),
				logger.F("reported_cents", outcome.AmountCents))
			result = ResultRejected
			return nil
		case tx.Status == outcome.Status:
			result = ResultDuplicate
			return nil
		case tx.Status.Terminal():
			result = ResultRejected
			return nil
		}

		if _, err := recordReference(ctx, q, tx, outcome.Gateway, outcome.ExternalID); err != nil {
			return err
		}
		ok, err := q.UpdateTransactionStatus(ctx, tx.ID, domain.TransactionStatusPending, outcome.Status, outcome.Payload)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Conflict("transaction changed concurrently")
		}

		if outcome.Status == domain.TransactionStatusCompleted {
			_, err = q.UpdateTicketStatus(ctx, domain.TicketFilter{
				Reference: tx.ReferenceID,
				Statuses:  []domain.TicketStatus{domain.TicketStatusBooked},
			}, domain.TicketStatusConfirmed)
		} else {
			err = releaseUnpaid(ctx, q, tx.ReferenceID)
		}
		if err != nil {
			return err
		}

		tx.Status = outcome.Status
		applied = *tx
		result = ResultApplied
		return nil
	})
	if err != nil {
		return "", err
	}

	switch result {
	case ResultApplied:
		s.log.Info("payment outcome applied",
			logger.F("transaction_id", applied.ID),
			logger.F("reference", applied.ReferenceID),
			logger.F("status", applied.Status))
		eventType := domain.EventPaymentCompleted
		if applied.Status == domain.TransactionStatusFailed {
			eventType = domain.EventPaymentFailed
		}
		s.emit(ctx, eventType, &applied)
	case ResultIgnored:
		s.log.Warn("payment outcome for unknown transaction dropped", logger.F("transaction_id", outcome.TransactionID))
	case ResultRejected:
		s.log.Warn("payment outcome rejected",
			logger.F("transaction_id", outcome.TransactionID),
			logger.F("status", outcome.Status))
	}
	return result, nil
}

// recordReference stores the provider's payment id on a transaction that has
// none, so SyncPending can ask the provider about it later.
func recordReference(ctx context.Context, q repository.Queries, tx *domain.Transaction, gatewayName, externalID string) (bool, error) {
	if externalID == "" || gatewayName == "" || tx.GatewayReference != "" {
		return false, nil
	}
	if tx.Gateway != "" && tx.Gateway != gatewayName {
		return false, nil
	}
	if err := q.SetTransactionGateway(ctx, tx.ID, gatewayName, externalID, nil); err != nil {
		return false, err
	}
	tx.Gateway = gatewayName
	tx.GatewayReference = externalID
	return true, nil
}

// releaseUnpaid cancels the still-BOOKED tickets of a booking whose payment
// failed and gives their seats back.
func releaseUnpaid(ctx context.Context, q repository.Queries, reference string) error {
	tickets, err := q.ListTickets(ctx, domain.TicketFilter{
		Reference: reference,
		Statuses:  []domain.TicketStatus{domain.TicketStatusBooked},
	}, repository.LockUpdate)
	if err != nil || len(tickets) == 0 {
		return err
	}
	flight, err := q.GetFlight(ctx, tickets[0].FlightID, repository.LockNone)
	if err != nil {
		return err
	}
	ids := make([]int64, len(tickets))
	seats := make([]int64, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
		seats[i] = t.SeatID
	}
	n, err := q.UpdateTicketStatus(ctx, domain.TicketFilter{
		IDs:      ids,
		Statuses: []domain.TicketStatus{domain.TicketStatusBooked},
	}, domain.TicketStatusCancelled)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return domain.Conflict("tickets changed concurrently")
	}
	return inventory.ReleaseSeats(ctx, q, flight.PlaneID, seats)
}

// HandleCallback parses a provider notification and applies it.
func (s *PaymentService) HandleCallback(ctx context.Context, gatewayName string, header http.Header, body []byte) (Result, error) {
	g, err := s.gateways.Get(gatewayName)
	if err != nil {
		return "", domain.InvalidInput(err.Error())
	}

	cb, err := g.ParseCallback(header, body)
	switch {
	case errors.Is(err, gateway.ErrIgnoredEvent):
		return ResultIgnored, nil
	case errors.Is(err, gateway.ErrInvalidSignature):
		s.log.Warn("payment callback signature rejected", logger.F("gateway", gatewayName))
		return "", domain.Forbidden("invalid callback signature")
	case err != nil:
		// Redelivering a malformed notification cannot fix it.
		s.log.Warn("malformed payment callback dropped", logger.F("gateway", gatewayName), logger.Err(err))
		return ResultIgnored, nil
	}

	status, final := transactionStatus(cb.Status)
	if !final {
		return s.recordPending(ctx, gatewayName, cb)
	}
	return s.ApplyOutcome(ctx, Outcome{
		TransactionID: cb.TransactionID,
		Status:        status,
		AmountCents:   cb.AmountCents,
		Gateway:       gatewayName,
		ExternalID:    cb.ExternalID,
		Payload:       cb.Payload,
	})
}

// recordPending keeps the provider id announced by a non-final callback, such
// as Payme's CreateTransaction or Click's prepare step.
func (s *PaymentService) recordPending(ctx context.Context, gatewayName string, cb *gateway.Callback) (Result, error) {
	if cb.ExternalID == "" {
		return ResultIgnored, nil
	}
	result := ResultIgnored
	err := s.store.InTx(ctx, func(ctx context.Context, q repository.Queries) error {
		result = ResultIgnored
		tx, err := q.GetTransaction(ctx, cb.TransactionID, repository.LockUpdate)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if tx.Type != domain.TransactionTypePayment || tx.Status != domain.TransactionStatusPending {
			return nil
		}
		if cb.AmountCents != 0 && cb.AmountCents != tx.AmountCents {
			return nil
		}
		recorded, err := recordReference(ctx, q, tx, gatewayName, cb.ExternalID)
		if err != nil {
			return err
		}
		if recorded {
			result = ResultRecorded
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if result == ResultRecorded {
		s.log.Info("provider payment id recorded",
			logger.F("gateway", gatewayName),
			logger.F("transaction_id", cb.TransactionID),
			logger.F("external_id", cb.ExternalID))
	}
	return result, nil
}

// SyncPending polls gateways for payments that stayed PENDING too long and
// returns how many outcomes were applied.
func (s *PaymentService) SyncPending(ctx context.Context) (int, error) {
	txs, err := s.store.Queries().ListTransactions(ctx, domain.TransactionFilter{
		Type:          domain.TransactionTypePayment,
		Status:        domain.TransactionStatusPending,
		CreatedBefore: s.now().Add(-s.pendingAge),
		Limit:         s.batch,
	})
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, tx := range txs {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}
		// never sent to a provider
		if tx.Gateway == "" {
			continue
		}
		g, err := s.gateways.Get(tx.Gateway)
		if err != nil {
			s.log.Warn("pending payment has unknown gateway", logger.F("transaction_id", tx.ID), logger.F("gateway", tx.Gateway))
			continue
		}
		st, raw, err := g.CheckPayment(ctx, gateway.PaymentRef{
			OrderID:    strconv.FormatInt(tx.ID, 10),
			ExternalID: tx.GatewayReference,
		})
		if err != nil {
			s.log.Warn("payment status check failed", logger.F("transaction_id", tx.ID), logger.Err(err))
			continue
		}
		status, final := transactionStatus(st)
		if !final {
			continue
		}
		res, err := s.ApplyOutcome(ctx, Outcome{TransactionID: tx.ID, Status: status, Payload: raw})
		if err != nil {
			s.log.Error("payment sync apply failed", logger.F("transaction_id", tx.ID), logger.Err(err))
			continue
		}
		if res == ResultApplied {
			applied++
		}
	}
	return applied, nil
}

func transactionStatus(st gateway.Status) (domain.TransactionStatus, bool) {
	switch st {
	case gateway.StatusSucceeded:
		return domain.TransactionStatusCompleted, true
	case gateway.StatusFailed:
		return domain.TransactionStatusFailed, true
	default:
		return "", false
	}
}

func (s *PaymentService) emit(ctx context.Context, eventType string, tx *domain.Transaction) {
	if s.events == nil {
		return
	}
	event := kafka.NewEvent(eventType)
	event.OccurredAt = s.now().UTC()
	event.Reference = tx.ReferenceID
	event.UserID = tx.UserID
	event.TransactionID = tx.ID
	event.AmountCents = tx.AmountCents
	s.events.Emit(ctx, event)
}

var _ PaymentUseCase = (*PaymentService)(nil)
