package memory

import (
	"context"
	"encoding/json"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/repository"
)

// queries runs against tx when inside InTx, otherwise against the live state
// with the store mutex held for the single call.
type queries struct {
	store *Store
	tx    *state
}

func (q *queries) acquire() (*state, func()) {
	if q.tx != nil {
		return q.tx, func() {}
	}
	q.store.mu.Lock()
	return q.store.state, q.store.mu.Unlock
}

func (st *state) availableSeats(planeID int64) int {
	n := 0
	for _, seat := range st.seats {
		if seat.PlaneID == planeID && seat.IsAvailable {
			n++
		}
	}
	return n
}

func (q *queries) ListFlights(_ context.Context) ([]domain.Flight, error) {
	st, unlock := q.acquire()
	defer unlock()

	out := make([]domain.Flight, 0, len(st.flights))
	for _, id := range sortedKeys(st.flights) {
		f := st.flights[id]
		if !f.IsActive {
			continue
		}
		f.AvailableSeats = st.availableSeats(f.PlaneID)
		out = append(out, f)
	}
	return out, nil
}

func (q *queries) GetFlight(_ context.Context, id int64, _ repository.LockMode) (*domain.Flight, error) {
	st, unlock := q.acquire()
	defer unlock()

	f, ok := st.flights[id]
	if !ok {
		return nil, domain.NotFound("flight not found")
	}
	f.AvailableSeats = st.availableSeats(f.PlaneID)
	return &f, nil
}

func (q *queries) SetFlightStatus(_ context.Context, id int64, status domain.FlightStatus) error {
	st, unlock := q.acquire()
	defer unlock()

	f, ok := st.flights[id]
	if !ok {
		return domain.NotFound("flight not found")
	}
	f.Status = status
	f.UpdatedAt = q.store.now()
	st.flights[id] = f
	return nil
}

func (q *queries) DeactivateFlight(_ context.Context, id int64) error {
	st, unlock := q.acquire()
	defer unlock()

	f, ok := st.flights[id]
	if !ok {
		return domain.NotFound("flight not found")
	}
	f.IsActive = false
	f.UpdatedAt = q.store.now()
	st.flights[id] = f
	return nil
}

func (q *queries) ListFlightsWithTickets(_ context.Context, status domain.FlightStatus, ticketStatuses []domain.TicketStatus) ([]int64, error) {
	st, unlock := q.acquire()
	defer unlock()

	filter := domain.TicketFilter{Statuses: ticketStatuses}
	var ids []int64
	for _, id := range sortedKeys(st.flights) {
		if st.flights[id].Status != status {
			continue
		}
		filter.FlightID = id
		for _, t := range st.tickets {
			if filter.Matches(&t) {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (q *queries) GetClass(_ context.Context, id int64) (*domain.Class, error) {
	st, unlock := q.acquire()
	defer unlock()

	c, ok := st.classes[id]
	if !ok {
		return nil, domain.NotFound("class not found")
	}
	return &c, nil
}

func (q *queries) ListSeats(_ context.Context, filter domain.SeatFilter) ([]domain.Seat, error) {
	st, unlock := q.acquire()
	defer unlock()

	wanted := make(map[int64]bool, len(filter.IDs))
	for _, id := range filter.IDs {
		wanted[id] = true
	}

	var out []domain.Seat
	for _, id := range sortedKeys(st.seats) {
		seat := st.seats[id]
		switch {
		case filter.PlaneID != 0 && seat.PlaneID != filter.PlaneID:
			continue
		case len(wanted) > 0 && !wanted[seat.ID]:
			continue
		case filter.ClassID != 0 && seat.ClassID != filter.ClassID:
			continue
		case filter.OnlyAvailable && !seat.IsAvailable:
			continue
		}
		out = append(out, seat)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (q *queries) FlipSeats(_ context.Context, planeID int64, seatIDs []int64, available bool) error {
	st, unlock := q.acquire()
	defer unlock()

	for _, id := range seatIDs {
		seat, ok := st.seats[id]
		if !ok || seat.PlaneID != planeID || seat.IsAvailable == available {
			return repository.ErrSeatStateMismatch
		}
	}
	now := q.store.now()
	for _, id := range seatIDs {
		seat := st.seats[id]
		seat.IsAvailable = available
		seat.UpdatedAt = now
		st.seats[id] = seat
	}
	return nil
}

func (q *queries) ReferenceExists(_ context.Context, reference string) (bool, error) {
	st, unlock := q.acquire()
	defer unlock()

	for _, t := range st.tickets {
		if t.BookingReference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (q *queries) InsertTickets(_ context.Context, tickets []*domain.Ticket) error {
	st, unlock := q.acquire()
	defer unlock()

	for i, t := range tickets {
		for _, existing := range st.tickets {
			if existing.FlightID == t.FlightID && existing.SeatID == t.SeatID && existing.Status != domain.TicketStatusCancelled {
				return domain.Conflict("seat is already booked")
			}
			if existing.BookingReference == t.BookingReference && existing.SeatID == t.SeatID {
				return domain.Conflict("seat is already booked")
			}
		}
		for _, other := range tickets[:i] {
			if other.SeatID == t.SeatID {
				return domain.Conflict("seat is already booked")
			}
		}
	}

	now := q.store.now()
	for _, t := range tickets {
		st.ticketSeq++
		t.ID = st.ticketSeq
		t.CreatedAt = now
		t.UpdatedAt = now
		stored := *t
		stored.SpecialRequests = cloneJSON(t.SpecialRequests)
		st.tickets[t.ID] = stored
	}
	return nil
}

func (q *queries) ListTickets(_ context.Context, filter domain.TicketFilter, _ repository.LockMode) ([]domain.Ticket, error) {
	st, unlock := q.acquire()
	defer unlock()

	var out []domain.Ticket
	for _, id := range sortedKeys(st.tickets) {
		t := st.tickets[id]
		if filter.Matches(&t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (q *queries) CountTickets(_ context.Context, filter domain.TicketFilter) (int, error) {
	st, unlock := q.acquire()
	defer unlock()

	n := 0
	for _, t := range st.tickets {
		if filter.Matches(&t) {
			n++
		}
	}
	return n, nil
}

func (q *queries) UpdateTicketStatus(_ context.Context, filter domain.TicketFilter, status domain.TicketStatus) (int64, error) {
	st, unlock := q.acquire()
	defer unlock()

	now := q.store.now()
	var n int64
	for id, t := range st.tickets {
		if !filter.Matches(&t) {
			continue
		}
		t.Status = status
		t.UpdatedAt = now
		st.tickets[id] = t
		n++
	}
	return n, nil
}

func (q *queries) InsertTransaction(_ context.Context, tx *domain.Transaction) error {
	st, unlock := q.acquire()
	defer unlock()

	if tx.Type == domain.TransactionTypePayment {
		for _, existing := range st.transactions {
			if existing.Type == domain.TransactionTypePayment && existing.ReferenceID == tx.ReferenceID {
				return domain.Conflict("payment already exists for reference")
			}
		}
	}

	now := q.store.now()
	st.txSeq++
	tx.ID = st.txSeq
	tx.CreatedAt = now
	tx.UpdatedAt = now
	stored := *tx
	stored.GatewayResponse = cloneJSON(tx.GatewayResponse)
	st.transactions[tx.ID] = stored
	return nil
}

func (q *queries) GetTransaction(_ context.Context, id int64, _ repository.LockMode) (*domain.Transaction, error) {
	st, unlock := q.acquire()
	defer unlock()

	tx, ok := st.transactions[id]
	if !ok {
		return nil, domain.NotFound("transaction not found")
	}
	return &tx, nil
}

func (q *queries) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	st, unlock := q.acquire()
	defer unlock()

	var out []domain.Transaction
	for _, id := range sortedKeys(st.transactions) {
		tx := st.transactions[id]
		switch {
		case filter.ReferenceID != "" && tx.ReferenceID != filter.ReferenceID:
			continue
		case filter.Type != "" && tx.Type != filter.Type:
			continue
		case filter.Status != "" && tx.Status != filter.Status:
			continue
		case !filter.CreatedBefore.IsZero() && !tx.CreatedAt.Before(filter.CreatedBefore):
			continue
		}
		out = append(out, tx)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (q *queries) UpdateTransactionStatus(_ context.Context, id int64, from, to domain.TransactionStatus, response json.RawMessage) (bool, error) {
	st, unlock := q.acquire()
	defer unlock()

	tx, ok := st.transactions[id]
	if !ok || tx.Status != from {
		return false, nil
	}
	tx.Status = to
	if len(response) > 0 {
		tx.GatewayResponse = cloneJSON(response)
	}
	tx.UpdatedAt = q.store.now()
	st.transactions[id] = tx
	return true, nil
}

func (q *queries) SetTransactionGateway(_ context.Context, id int64, gateway, gatewayReference string, response json.RawMessage) error {
	st, unlock := q.acquire()
	defer unlock()

	tx, ok := st.transactions[id]
	if !ok {
		return domain.NotFound("transaction not found")
	}
	tx.Gateway = gateway
	tx.GatewayReference = gatewayReference
	if len(response) > 0 {
		tx.GatewayResponse = cloneJSON(response)
	}
	tx.UpdatedAt = q.store.now()
	st.transactions[id] = tx
	return nil
}

var _ repository.Queries = (*queries)(nil)
