// Package memory is an in-process repository.Store. A transaction works on a
// copy of the state under the store mutex and swaps it in on commit, so
// concurrent transactions are serialized and a failed one leaves no trace.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/repository"
)

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Queries() repository.Queries {
	return &queries{store: s}
}

func (s *Store) InTx(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &queries{store: s, tx: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type state struct {
	flights      map[int64]domain.Flight
	classes      map[int64]domain.Class
	seats        map[int64]domain.Seat
	tickets      map[int64]domain.Ticket
	transactions map[int64]domain.Transaction
	ticketSeq    int64
	txSeq        int64
}

func newState() *state {
	return &state{
		flights:      make(map[int64]domain.Flight),
		classes:      make(map[int64]domain.Class),
		seats:        make(map[int64]domain.Seat),
		tickets:      make(map[int64]domain.Ticket),
		transactions: make(map[int64]domain.Transaction),
	}
}

func (st *state) clone() *state {
	c := &state{
		flights:      make(map[int64]domain.Flight, len(st.flights)),
		classes:      make(map[int64]domain.Class, len(st.classes)),
		seats:        make(map[int64]domain.Seat, len(st.seats)),
		tickets:      make(map[int64]domain.Ticket, len(st.tickets)),
		transactions: make(map[int64]domain.Transaction, len(st.transactions)),
		ticketSeq:    st.ticketSeq,
		txSeq:        st.txSeq,
	}
	for k, v := range st.flights {
		c.flights[k] = v
	}
	for k, v := range st.classes {
		c.classes[k] = v
	}
	for k, v := range st.seats {
		c.seats[k] = v
	}
	for k, v := range st.tickets {
		c.tickets[k] = v
	}
	for k, v := range st.transactions {
		c.transactions[k] = v
	}
	return c
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func cloneJSON(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

var _ repository.Store = (*Store)(nil)
