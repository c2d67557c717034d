package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.AddFlight(domain.Flight{ID: 1, FlightNumber: "HY101", PlaneID: 10, Status: domain.FlightStatusScheduled, IsActive: true})
	s.AddSeats(
		domain.Seat{ID: 100, PlaneID: 10, ClassID: 1, SeatNumber: "1A", IsAvailable: true},
		domain.Seat{ID: 101, PlaneID: 10, ClassID: 1, SeatNumber: "1B", IsAvailable: true},
		domain.Seat{ID: 200, PlaneID: 20, ClassID: 1, SeatNumber: "1A", IsAvailable: true},
	)
	return s
}

func TestInTx_RollbackDiscardsWrites(t *testing.T) {
	s := seeded(t)
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, q repository.Queries) error {
		require.NoError(t, q.FlipSeats(ctx, 10, []int64{100}, false))
		require.NoError(t, q.InsertTickets(ctx, []*domain.Ticket{{BookingReference: "BK1", FlightID: 1, SeatID: 100, Status: domain.TicketStatusBooked}}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	seat, _ := s.Seat(100)
	assert.True(t, seat.IsAvailable)
	assert.Empty(t, s.Tickets())
}

func TestFlipSeats_MismatchChangesNothing(t *testing.T) {
	s := seeded(t)
	q := s.Queries()
	ctx := context.Background()

	require.NoError(t, q.FlipSeats(ctx, 10, []int64{101}, false))

	err := q.FlipSeats(ctx, 10, []int64{100, 101}, false)
	assert.ErrorIs(t, err, repository.ErrSeatStateMismatch)
	seat, _ := s.Seat(100)
	assert.True(t, seat.IsAvailable)

	err = q.FlipSeats(ctx, 10, []int64{200}, false)
	assert.ErrorIs(t, err, repository.ErrSeatStateMismatch)
}

func TestGetFlight_CountsAvailableSeats(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	f, err := s.Queries().GetFlight(ctx, 1, repository.LockNone)
	require.NoError(t, err)
	assert.Equal(t, 2, f.AvailableSeats)

	_, err = s.Queries().GetFlight(ctx, 99, repository.LockNone)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertTickets_RejectsSecondActiveTicketForSeat(t *testing.T) {
	s := seeded(t)
	q := s.Queries()
	ctx := context.Background()

	require.NoError(t, q.InsertTickets(ctx, []*domain.Ticket{{BookingReference: "BK1", FlightID: 1, SeatID: 100, Status: domain.TicketStatusBooked}}))
	err := q.InsertTickets(ctx, []*domain.Ticket{{BookingReference: "BK2", FlightID: 1, SeatID: 100, Status: domain.TicketStatusBooked}})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = q.UpdateTicketStatus(ctx, domain.TicketFilter{Reference: "BK1"}, domain.TicketStatusCancelled)
	require.NoError(t, err)
	require.NoError(t, q.InsertTickets(ctx, []*domain.Ticket{{BookingReference: "BK2", FlightID: 1, SeatID: 100, Status: domain.TicketStatusBooked}}))
}

func TestInsertTransaction_OnePaymentPerReference(t *testing.T) {
	s := seeded(t)
	q := s.Queries()
	ctx := context.Background()

	pay := &domain.Transaction{Type: domain.TransactionTypePayment, Status: domain.TransactionStatusPending, ReferenceID: "BK1", AmountCents: 100}
	require.NoError(t, q.InsertTransaction(ctx, pay))
	assert.NotZero(t, pay.ID)

	dup := &domain.Transaction{Type: domain.TransactionTypePayment, Status: domain.TransactionStatusPending, ReferenceID: "BK1", AmountCents: 100}
	assert.ErrorIs(t, q.InsertTransaction(ctx, dup), domain.ErrConflict)

	refund := &domain.Transaction{Type: domain.TransactionTypeRefund, Status: domain.TransactionStatusCompleted, ReferenceID: "BK1", AmountCents: -100}
	require.NoError(t, q.InsertTransaction(ctx, refund))
}

func TestUpdateTransactionStatus_CompareAndSet(t *testing.T) {
	s := seeded(t)
	q := s.Queries()
	ctx := context.Background()

	pay := &domain.Transaction{Type: domain.TransactionTypePayment, Status: domain.TransactionStatusPending, ReferenceID: "BK1"}
	require.NoError(t, q.InsertTransaction(ctx, pay))

	ok, err := q.UpdateTransactionStatus(ctx, pay.ID, domain.TransactionStatusPending, domain.TransactionStatusCompleted, []byte(`{"state":2}`))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.UpdateTransactionStatus(ctx, pay.ID, domain.TransactionStatusPending, domain.TransactionStatusFailed, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := q.GetTransaction(ctx, pay.ID, repository.LockNone)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, got.Status)
	assert.JSONEq(t, `{"state":2}`, string(got.GatewayResponse))
}

func TestInTx_SerializesConcurrentSeatClaims(t *testing.T) {
	s := seeded(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(context.Background(), func(ctx context.Context, q repository.Queries) error {
				return q.FlipSeats(ctx, 10, []int64{100, 101}, false)
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSeedDemo(t *testing.T) {
	s := NewStore()
	s.SeedDemo(time.Now())

	f, err := s.Queries().GetFlight(context.Background(), DemoFlightID, repository.LockNone)
	require.NoError(t, err)
	assert.Equal(t, DemoSeatCount, f.AvailableSeats)

	business, err := s.Queries().ListSeats(context.Background(), domain.SeatFilter{PlaneID: DemoPlaneID, ClassID: DemoBusinessClass})
	require.NoError(t, err)
	assert.Len(t, business, DemoBusinessSeats)
}
