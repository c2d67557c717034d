package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/fare"
	"github.com/Domenick1991/airways/internal/idgen"
	"github.com/Domenick1991/airways/internal/kafka"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/payment/gateway"
	"github.com/Domenick1991/airways/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSeatHolder struct {
	mock.Mock
}

func (m *MockSeatHolder) HoldSeats(ctx context.Context, flightID int64, seatIDs []int64, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, flightID, seatIDs, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockSeatHolder) ReleaseSeats(ctx context.Context, flightID int64, seatIDs []int64, token string) error {
	args := m.Called(ctx, flightID, seatIDs, token)
	return args.Error(0)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) HasGateway(name string) bool {
	return m.Called(name).Bool(0)
}

func (m *MockPayments) InitiatePayment(ctx context.Context, reference string, userID int64, gatewayName string) (*gateway.Checkout, error) {
	args := m.Called(ctx, reference, userID, gatewayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Checkout), args.Error(1)
}

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) Emit(ctx context.Context, event kafka.Event) {
	m.Called(ctx, event)
}

type sequenceRefs struct {
	mu   sync.Mutex
	refs []string
}

func (g *sequenceRefs) NextReference() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.refs) == 0 {
		return "", errors.New("out of references")
	}
	ref := g.refs[0]
	g.refs = g.refs[1:]
	return ref, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *memory.Store {
	store := memory.NewStore(memory.WithClock(func() time.Time { return testNow }))
	store.SeedDemo(testNow)
	return store
}

func newTestService(t *testing.T, store *memory.Store, opts ...BookingServiceOption) *BookingService {
	t.Helper()
	refs, err := idgen.NewReferenceGenerator(1)
	require.NoError(t, err)
	opts = append([]BookingServiceOption{WithClock(func() time.Time { return testNow })}, opts...)
	return NewBookingService(store, fare.NewCalculator(fare.DefaultTaxRate), refs, logger.Nop(), opts...)
}

func economyInput(seats ...int64) CreateBookingInput {
	return CreateBookingInput{
		UserID:     7,
		FlightID:   memory.DemoFlightID,
		ClassID:    memory.DemoEconomyClassID,
		SeatIDs:    seats,
		Passengers: len(seats),
	}
}

func TestCreateBooking_Success(t *testing.T) {
	store := newTestStore()
	events := &MockEvents{}
	events.On("Emit", mock.Anything, mock.MatchedBy(func(e kafka.Event) bool {
		return e.Type == domain.EventBookingCreated && e.AmountCents == 179200 && len(e.TicketIDs) == 2
	})).Once()

	svc := newTestService(t, store, WithEvents(events))

	input := economyInput(20, 21)
	input.Details = []PassengerDetails{{Name: "Ann Lee", Passport: "AA1234567"}}
	res, err := svc.CreateBooking(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, res.Booking)
	assert.Nil(t, res.Checkout)

	b := res.Booking
	assert.Equal(t, int64(179200), b.GrandTotalCents)
	require.Len(t, b.Tickets, 2)
	assert.Equal(t, "Ann Lee", b.Tickets[0].PassengerName)
	assert.Equal(t, "AA1234567", b.Tickets[0].PassengerPassport)
	assert.Equal(t, "Passenger 2", b.Tickets[1].PassengerName)

	var sum int64
	for _, tk := range store.Tickets() {
		assert.Equal(t, domain.TicketStatusBooked, tk.Status)
		assert.Equal(t, b.Reference, tk.BookingReference)
		assert.Equal(t, int64(80000), tk.PriceCents)
		sum += tk.TotalPriceCents
	}
	assert.Equal(t, int64(179200), sum)

	for _, id := range []int64{20, 21} {
		seat, ok := store.Seat(id)
		require.True(t, ok)
		assert.False(t, seat.IsAvailable)
	}

	txs := store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionTypePayment, txs[0].Type)
	assert.Equal(t, domain.TransactionStatusPending, txs[0].Status)
	assert.Equal(t, int64(179200), txs[0].AmountCents)
	assert.Equal(t, b.Reference, txs[0].ReferenceID)
	assert.Equal(t, "Flight booking "+b.Reference, txs[0].Description)

	events.AssertExpectations(t)
}

func TestCreateBooking_OneSeatUnavailable(t *testing.T) {
	store := newTestStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, economyInput(10))
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, economyInput(9, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, "not enough available seats", err.Error())

	assert.Len(t, store.Tickets(), 1)
	assert.Len(t, store.Transactions(), 1)
	seat, _ := store.Seat(9)
	assert.True(t, seat.IsAvailable)
}

func TestCreateBooking_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, store *memory.Store)
		input   CreateBookingInput
		wantErr error
		wantMsg string
	}{
		{
			name:    "flight not found",
			input:   CreateBookingInput{UserID: 7, FlightID: 99, ClassID: 1, SeatIDs: []int64{9}, Passengers: 1},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "flight cancelled",
			setup: func(t *testing.T, store *memory.Store) {
				require.NoError(t, store.Queries().SetFlightStatus(context.Background(), memory.DemoFlightID, domain.FlightStatusCancelled))
			},
			input:   economyInput(9),
			wantErr: domain.ErrInvalidState,
			wantMsg: "flight is not available for booking",
		},
		{
			name: "flight departed",
			setup: func(_ *testing.T, store *memory.Store) {
				store.AddFlight(domain.Flight{
					ID: memory.DemoFlightID, FlightNumber: "HY101", PlaneID: memory.DemoPlaneID,
					DepartureTime: testNow.Add(-time.Hour), ArrivalTime: testNow.Add(7 * time.Hour),
					BasePriceCents: memory.DemoBasePriceCents, Status: domain.FlightStatusScheduled, IsActive: true,
				})
			},
			input:   economyInput(9),
			wantErr: domain.ErrInvalidState,
			wantMsg: "flight is not available for booking",
		},
		{
			name: "seat on another plane",
			setup: func(_ *testing.T, store *memory.Store) {
				store.AddSeats(domain.Seat{ID: 500, PlaneID: 2, ClassID: 1, SeatNumber: "1A", IsAvailable: true})
			},
			input:   economyInput(9, 500),
			wantErr: domain.ErrInvalidState,
			wantMsg: "seat does not belong to flight",
		},
		{
			name:    "business seat at economy fare",
			input:   economyInput(3, 9),
			wantErr: domain.ErrInvalidState,
			wantMsg: "seat 3 is not in the requested class",
		},
		{
			name:    "unknown seat",
			input:   economyInput(9, 999),
			wantErr: domain.ErrInvalidState,
			wantMsg: "seat does not belong to flight",
		},
		{
			name: "passengers differ from seats",
			input: CreateBookingInput{
				UserID: 7, FlightID: memory.DemoFlightID, ClassID: memory.DemoEconomyClassID,
				SeatIDs: []int64{9, 10}, Passengers: 3,
			},
			wantErr: domain.ErrInvalidState,
			wantMsg: "not enough available seats",
		},
		{
			name: "class not found",
			input: CreateBookingInput{
				UserID: 7, FlightID: memory.DemoFlightID, ClassID: 42,
				SeatIDs: []int64{9}, Passengers: 1,
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "duplicate seat",
			input:   CreateBookingInput{UserID: 7, FlightID: 1, ClassID: 1, SeatIDs: []int64{9, 9}, Passengers: 2},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "missing user",
			input:   CreateBookingInput{FlightID: 1, ClassID: 1, SeatIDs: []int64{9}, Passengers: 1},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name: "unknown gateway",
			input: CreateBookingInput{
				UserID: 7, FlightID: 1, ClassID: 1, SeatIDs: []int64{9}, Passengers: 1, Gateway: "paypal",
			},
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			if tt.setup != nil {
				tt.setup(t, store)
			}
			svc := newTestService(t, store)

			_, err := svc.CreateBooking(context.Background(), tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
			assert.Empty(t, store.Tickets())
			assert.Empty(t, store.Transactions())
		})
	}
}

func TestCreateBooking_ConcurrentOverlappingSeats(t *testing.T) {
	store := newTestStore()
	svc := newTestService(t, store)

	const workers = 30
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		losses    int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			// Every request shares seat 30 with every other one.
			seats := []int64{30, int64(31 + i%10)}
			_, err := svc.CreateBooking(context.Background(), economyInput(seats...))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrConflict) {
				losses++
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, losses)
	assert.Len(t, store.Tickets(), 2)
	assert.Len(t, store.Transactions(), 1)

	booked := 0
	for id := int64(30); id <= 40; id++ {
		seat, _ := store.Seat(id)
		if !seat.IsAvailable {
			booked++
		}
	}
	assert.Equal(t, 2, booked)
}

func TestCreateBooking_SeatHoldConflict(t *testing.T) {
	store := newTestStore()
	holder := &MockSeatHolder{}
	holder.On("HoldSeats", mock.Anything, memory.DemoFlightID, []int64{9}, time.Minute).Return("", false, nil).Once()

	svc := newTestService(t, store, WithSeatHolder(holder, time.Minute))
	_, err := svc.CreateBooking(context.Background(), economyInput(9))

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, store.Tickets())
	holder.AssertExpectations(t)
}

func TestCreateBooking_SeatHoldReleasedAfterCommit(t *testing.T) {
	store := newTestStore()
	holder := &MockSeatHolder{}
	holder.On("HoldSeats", mock.Anything, memory.DemoFlightID, []int64{9}, time.Minute).Return("tok", true, nil).Once()
	holder.On("ReleaseSeats", mock.Anything, memory.DemoFlightID, []int64{9}, "tok").Return(nil).Once()

	svc := newTestService(t, store, WithSeatHolder(holder, time.Minute))
	_, err := svc.CreateBooking(context.Background(), economyInput(9))

	require.NoError(t, err)
	holder.AssertExpectations(t)
}

func TestCreateBooking_SeatHoldDownFallsBackToStore(t *testing.T) {
	store := newTestStore()
	holder := &MockSeatHolder{}
	holder.On("HoldSeats", mock.Anything, memory.DemoFlightID, []int64{9}, time.Minute).Return("", false, errors.New("redis down")).Once()

	svc := newTestService(t, store, WithSeatHolder(holder, time.Minute))
	_, err := svc.CreateBooking(context.Background(), economyInput(9))

	require.NoError(t, err)
	assert.Len(t, store.Tickets(), 1)
	holder.AssertExpectations(t)
}

func TestCreateBooking_RetriesTakenReference(t *testing.T) {
	store := newTestStore()
	refs := &sequenceRefs{refs: []string{"BKTAKEN", "BKTAKEN", "BKFRESH"}}
	svc := NewBookingService(store, fare.NewCalculator(fare.DefaultTaxRate), refs, logger.Nop(), WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, economyInput(9))
	require.NoError(t, err)
	assert.Equal(t, "BKTAKEN", first.Booking.Reference)

	second, err := svc.CreateBooking(ctx, economyInput(10))
	require.NoError(t, err)
	assert.Equal(t, "BKFRESH", second.Booking.Reference)
}

func TestCreateBooking_GivesUpAfterReferenceAttempts(t *testing.T) {
	store := newTestStore()
	refs := &sequenceRefs{refs: []string{"BKTAKEN", "BKTAKEN", "BKTAKEN"}}
	svc := NewBookingService(store, fare.NewCalculator(fare.DefaultTaxRate), refs, logger.Nop(), WithClock(func() time.Time { return testNow }), WithReferenceAttempts(2))
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, economyInput(9))
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, economyInput(10))
	assert.ErrorIs(t, err, errReferenceTaken)
	seat, _ := store.Seat(10)
	assert.True(t, seat.IsAvailable)
}

func TestCreateBooking_WithGateway(t *testing.T) {
	store := newTestStore()
	payments := &MockPayments{}
	payments.On("HasGateway", "stripe").Return(true)
	payments.On("InitiatePayment", mock.Anything, mock.AnythingOfType("string"), int64(7), "stripe").
		Return(&gateway.Checkout{ClientSecret: "pi_1_secret", ExternalID: "pi_1"}, nil).Once()

	svc := newTestService(t, store, WithPayments(payments))
	input := economyInput(9)
	input.Gateway = "stripe"

	res, err := svc.CreateBooking(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, res.Checkout)
	assert.Equal(t, "pi_1_secret", res.Checkout.ClientSecret)
	payments.AssertExpectations(t)
}

func TestCreateBooking_GatewayFailureCompensates(t *testing.T) {
	store := newTestStore()
	payments := &MockPayments{}
	payments.On("HasGateway", "payme").Return(true)
	payments.On("InitiatePayment", mock.Anything, mock.AnythingOfType("string"), int64(7), "payme").
		Return(nil, domain.Gateway("payme: connection refused")).Once()

	events := &MockEvents{}
	events.On("Emit", mock.Anything, mock.Anything).Maybe()

	svc := newTestService(t, store, WithPayments(payments), WithEvents(events))
	input := economyInput(9, 10)
	input.Gateway = "payme"

	_, err := svc.CreateBooking(context.Background(), input)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGateway)
	events.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)

	for _, tk := range store.Tickets() {
		assert.Equal(t, domain.TicketStatusCancelled, tk.Status)
	}
	for _, id := range []int64{9, 10} {
		seat, _ := store.Seat(id)
		assert.True(t, seat.IsAvailable)
	}
	txs := store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionStatusFailed, txs[0].Status)
	payments.AssertExpectations(t)
}

func TestCreateBooking_InitiationStoreErrorCompensates(t *testing.T) {
	store := newTestStore()
	payments := &MockPayments{}
	payments.On("HasGateway", "click").Return(true)
	payments.On("InitiatePayment", mock.Anything, mock.AnythingOfType("string"), int64(7), "click").
		Return(nil, errors.New("set transaction gateway: connection reset")).Once()

	events := &MockEvents{}
	events.On("Emit", mock.Anything, mock.Anything).Maybe()

	svc := newTestService(t, store, WithPayments(payments), WithEvents(events))
	input := economyInput(11, 12)
	input.Gateway = "click"

	res, err := svc.CreateBooking(context.Background(), input)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "connection reset")

	require.Len(t, store.Tickets(), 2)
	for _, tk := range store.Tickets() {
		assert.Equal(t, domain.TicketStatusCancelled, tk.Status)
	}
	for _, id := range []int64{11, 12} {
		seat, _ := store.Seat(id)
		assert.True(t, seat.IsAvailable)
	}
	txs := store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionStatusFailed, txs[0].Status)
	events.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
	payments.AssertExpectations(t)

	// the seats can be booked again right away
	_, err = svc.CreateBooking(context.Background(), economyInput(11, 12))
	require.NoError(t, err)
}

func TestGetBooking(t *testing.T) {
	store := newTestStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	res, err := svc.CreateBooking(ctx, economyInput(9, 10))
	require.NoError(t, err)
	ref := res.Booking.Reference

	got, err := svc.GetBooking(ctx, ref, 7)
	require.NoError(t, err)
	assert.Equal(t, ref, got.Reference)
	assert.Equal(t, int64(179200), got.GrandTotalCents)
	assert.Equal(t, domain.TicketStatusBooked, got.Status())

	got, err = svc.GetBooking(ctx, ref, 0)
	require.NoError(t, err)
	assert.Len(t, got.Tickets, 2)

	_, err = svc.GetBooking(ctx, ref, 8)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetBooking(ctx, "BKMISSING", 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckIn(t *testing.T) {
	store := newTestStore()
	events := &MockEvents{}
	events.On("Emit", mock.Anything, mock.MatchedBy(func(e kafka.Event) bool { return e.Type == domain.EventBookingCreated })).Once()
	events.On("Emit", mock.Anything, mock.MatchedBy(func(e kafka.Event) bool { return e.Type == domain.EventBookingCheckedIn })).Once()

	svc := newTestService(t, store, WithEvents(events))
	ctx := context.Background()

	res, err := svc.CreateBooking(ctx, economyInput(9))
	require.NoError(t, err)
	ref := res.Booking.Reference

	_, err = svc.CheckIn(ctx, ref, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound, "BOOKED tickets cannot check in")

	_, err = store.Queries().UpdateTicketStatus(ctx, domain.TicketFilter{Reference: ref}, domain.TicketStatusConfirmed)
	require.NoError(t, err)

	b, err := svc.CheckIn(ctx, ref, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCheckedIn, b.Status())

	_, err = svc.CheckIn(ctx, ref, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	events.AssertExpectations(t)
}
