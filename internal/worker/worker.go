// Package worker holds the background side of the system: Kafka consumers for
// payment callbacks and notifications, and the periodic reconciliation jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/kafka"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/service/payment"
	kafkaGo "github.com/segmentio/kafka-go"
)

type CallbackHandler interface {
	HandleCallback(ctx context.Context, gatewayName string, header http.Header, body []byte) (payment.Result, error)
}

type Notifier interface {
	Send(ctx context.Context, event kafka.Event) error
}

// PaymentCallbacks applies provider notifications relayed through Kafka.
// Undecodable and rejected messages are dropped since redelivery would not fix
// them. Any other failure is returned and the consumer retries the message.
func PaymentCallbacks(handler CallbackHandler, log logger.Logger) func(context.Context, kafkaGo.Message) error {
	return func(ctx context.Context, msg kafkaGo.Message) error {
		var cb kafka.CallbackMessage
		if err := json.Unmarshal(msg.Value, &cb); err != nil {
			log.Warn("dropping malformed callback message", logger.F("offset", msg.Offset), logger.Err(err))
			return nil
		}
		header := make(http.Header, len(cb.Headers))
		for k, v := range cb.Headers {
			header.Set(k, v)
		}

		res, err := handler.HandleCallback(ctx, cb.Gateway, header, cb.Body)
		switch {
		case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrForbidden):
			log.Warn("dropping rejected callback message",
				logger.F("gateway", cb.Gateway),
				logger.F("offset", msg.Offset),
				logger.Err(err))
			return nil
		case err != nil:
			return fmt.Errorf("%s callback: %w", cb.Gateway, err)
		}
		log.Info("payment callback processed", logger.F("gateway", cb.Gateway), logger.F("result", res))
		return nil
	}
}

func Notifications(sender Notifier, log logger.Logger) func(context.Context, kafkaGo.Message) error {
	return func(ctx context.Context, msg kafkaGo.Message) error {
		var event kafka.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn("decode event failed", logger.F("offset", msg.Offset), logger.Err(err))
			return nil
		}
		return sender.Send(ctx, event)
	}
}

// Job is a periodic task reporting how many items it handled.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// RunJobs ticks every job on its own interval until ctx is done.
func RunJobs(ctx context.Context, log logger.Logger, jobs ...Job) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.Interval <= 0 {
			log.Warn("job disabled", logger.F("job", job.Name))
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					runOnce(ctx, log, job)
				}
			}
		}(job)
	}
	wg.Wait()
}

func runOnce(ctx context.Context, log logger.Logger, job Job) {
	n, err := job.Run(ctx)
	if err != nil {
		log.Error("job failed", logger.F("job", job.Name), logger.F("handled", n), logger.Err(err))
		return
	}
	if n > 0 {
		log.Info("job finished", logger.F("job", job.Name), logger.F("handled", n))
	}
}
