package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/airways/config"
	"github.com/Domenick1991/airways/internal/cache"
	"github.com/Domenick1991/airways/internal/fare"
	"github.com/Domenick1991/airways/internal/idgen"
	"github.com/Domenick1991/airways/internal/kafka"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/Domenick1991/airways/internal/migrations"
	"github.com/Domenick1991/airways/internal/payment/gateway"
	"github.com/Domenick1991/airways/internal/repository"
	"github.com/Domenick1991/airways/internal/repository/memory"
	"github.com/Domenick1991/airways/internal/service/booking"
	"github.com/Domenick1991/airways/internal/service/cancellation"
	"github.com/Domenick1991/airways/internal/service/inventory"
	"github.com/Domenick1991/airways/internal/service/payment"
	"github.com/shopspring/decimal"
)

// Services is the wired application graph shared by the API and the worker.
type Services struct {
	Inventory    *inventory.InventoryService
	Bookings     *booking.BookingService
	Payments     *payment.PaymentService
	Cancellation *cancellation.CancellationService

	Store    repository.Store
	Gateways *gateway.Registry
	Producer *kafka.Producer

	closers []func() error
}

// Close releases connections in reverse order of acquisition.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func NewServices(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *Services, err error) {
	svc := &Services{}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	if svc.Store, err = openStore(ctx, cfg, log, svc); err != nil {
		return nil, err
	}

	taxRate, err := decimal.NewFromString(cfg.Booking.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("booking.tax_rate %q: %w", cfg.Booking.TaxRate, err)
	}
	refs, err := idgen.NewReferenceGenerator(cfg.Booking.NodeID)
	if err != nil {
		return nil, fmt.Errorf("reference generator: %w", err)
	}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache = cache.NewRedisCache(cfg.Redis, cfg.Booking.FlightsCacheTTL)
		svc.closers = append(svc.closers, redisCache.Close)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unreachable, continuing without warm cache", logger.Err(err))
		}
	}

	if redisCache != nil {
		svc.Inventory = inventory.NewInventoryService(svc.Store, redisCache, log)
	} else {
		svc.Inventory = inventory.NewInventoryService(svc.Store, nil, log)
	}

	var events *kafka.EventPublisher
	if cfg.Kafka.Enabled {
		svc.Producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		svc.closers = append(svc.closers, svc.Producer.Close)
		if err := svc.Producer.CheckConnection(ctx); err != nil {
			log.Warn("kafka unreachable, events will be retried per publish", logger.Err(err))
		}
		events = kafka.NewEventPublisher(svc.Producer, 3, log, cfg.Kafka.EventsTopic, cfg.Kafka.NotificationsTopic)
	}

	svc.Gateways = newGateways(cfg.Payment)
	log.Info("payment gateways configured", logger.F("gateways", svc.Gateways.Names()))

	paymentOpts := []payment.PaymentServiceOption{
		payment.WithPendingCheck(cfg.Payment.PendingCheckAge, cfg.Payment.SyncBatchSize),
	}
	bookingOpts := []booking.BookingServiceOption{
		booking.WithFlightCache(svc.Inventory),
		booking.WithReferenceAttempts(cfg.Booking.ReferenceAttempts),
	}
	cancelOpts := []cancellation.CancellationServiceOption{
		cancellation.WithFlightCache(svc.Inventory),
	}
	if events != nil {
		paymentOpts = append(paymentOpts, payment.WithEvents(events))
		bookingOpts = append(bookingOpts, booking.WithEvents(events))
		cancelOpts = append(cancelOpts, cancellation.WithEvents(events))
	}
	if redisCache != nil {
		bookingOpts = append(bookingOpts, booking.WithSeatHolder(redisCache, cfg.Booking.SeatHoldTTL))
	}

	svc.Payments = payment.NewPaymentService(svc.Store, svc.Gateways, log, paymentOpts...)
	bookingOpts = append(bookingOpts, booking.WithPayments(svc.Payments))
	svc.Bookings = booking.NewBookingService(svc.Store, fare.NewCalculator(taxRate), refs, log, bookingOpts...)
	svc.Cancellation = cancellation.NewCancellationService(svc.Store, log, cancelOpts...)
	return svc, nil
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger, svc *Services) (repository.Store, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		store := memory.NewStore()
		store.SeedDemo(time.Now().UTC())
		log.Warn("using in-memory storage, data is lost on restart")
		return store, nil
	}

	db, pool, err := repository.OpenPostgres(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, func() error { pool.Close(); return nil }, db.Close)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Up(db.DB); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("database migrations applied")
	}
	return repository.NewPGStore(db), nil
}

func newGateways(cfg config.PaymentConfig) *gateway.Registry {
	var gateways []gateway.Gateway
	if cfg.Payme.Enabled {
		gateways = append(gateways, gateway.NewPayme(cfg.Payme))
	}
	if cfg.Click.Enabled {
		gateways = append(gateways, gateway.NewClick(cfg.Click))
	}
	if cfg.Stripe.Enabled {
		gateways = append(gateways, gateway.NewStripe(cfg.Stripe))
	}
	return gateway.NewRegistry(gateways...)
}
