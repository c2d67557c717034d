package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/airways/internal/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func newTestConsumer(reader *fakeReader) *Consumer {
	return &Consumer{
		reader:  reader,
		log:     logger.Nop(),
		backOff: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) },
	}
}

func TestConsume_RetriesFailedMessageBeforeCommitting(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	c := newTestConsumer(reader)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []int64
	)
	failures := 2
	handler := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg.Offset)
		if msg.Offset == 1 && failures > 0 {
			failures--
			return errors.New("store unavailable")
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, handler) }()

	assert.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2}, reader.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 1, 1, 2}, seen)
}

func TestConsume_StopsWithoutCommittingFailingMessage(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{{Offset: 7}}}
	c := newTestConsumer(reader)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	handler := func(context.Context, kafka.Message) error {
		attempts.Add(1)
		return errors.New("store unavailable")
	}

	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, handler) }()

	assert.Eventually(t, func() bool { return attempts.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after cancel")
	}
	assert.Empty(t, reader.commits())
}
