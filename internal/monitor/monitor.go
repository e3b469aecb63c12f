// Package monitor demotes posts whose pin has lapsed.
//
// The sweep is eventual: between ticks a post's stored pin flag may still be
// set after its expiry. Readers that need the exact state use
// Post.EffectivelyPinned instead of the flag.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ikolcov/pinboard/internal/models"
	"github.com/ikolcov/pinboard/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultPeriod = time.Minute

var (
	pinsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinboard",
		Name:      "pins_expired_total",
		Help:      "total posts demoted by the pin expiry sweep",
	})
	sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pinboard",
		Name:      "pin_sweep_errors_total",
		Help:      "total failed pin expiry sweeps",
	})
)

type Notifier interface {
	Publish(event models.BoardEvent)
}

type Monitor struct {
	storage   storage.Storage
	clock     clockwork.Clock
	scheduler Scheduler
	period    time.Duration
	logger    *slog.Logger
	notifier  Notifier
}

type Args struct {
	Storage storage.Storage
	Clock   clockwork.Clock
	// Scheduler defaults to a cron scheduler in UTC.
	Scheduler Scheduler
	Period    time.Duration
	Logger    *slog.Logger
	Notifier  Notifier
}

func New(args *Args) *Monitor {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}
	if args.Clock == nil {
		args.Clock = clockwork.NewRealClock()
	}
	if args.Scheduler == nil {
		args.Scheduler = NewCronScheduler()
	}
	if args.Period <= 0 {
		args.Period = DefaultPeriod
	}

	return &Monitor{
		storage:   args.Storage,
		clock:     args.Clock,
		scheduler: args.Scheduler,
		period:    args.Period,
		logger:    args.Logger.With("component", "pin-monitor"),
		notifier:  args.Notifier,
	}
}

// Sweep flips every lapsed pin once. Running it again at the same instant is
// a no-op.
func (m *Monitor) Sweep(ctx context.Context) ([]models.PostID, error) {
	now := m.clock.Now()
	expired, err := m.storage.ExpirePins(ctx, now)
	if err != nil {
		sweepErrors.Inc()
		return nil, fmt.Errorf("expire pins: %w", err)
	}

	for _, postId := range expired {
		m.logger.Info("pin expired", "post", postId)
	}
	pinsExpired.Add(float64(len(expired)))

	if len(expired) > 0 && m.notifier != nil {
		m.notifier.Publish(models.BoardEvent{
			Type:    models.EventPinsExpired,
			PostIds: expired,
			At:      now,
		})
	}
	return expired, nil
}

func (m *Monitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.period)
	defer cancel()

	if _, err := m.Sweep(ctx); err != nil {
		m.logger.Error("pin sweep failed", "err", err)
	}
}

func (m *Monitor) Start() error {
	if err := m.scheduler.Every(m.period, m.tick); err != nil {
		return fmt.Errorf("schedule pin sweep: %w", err)
	}
	m.scheduler.Start()
	m.logger.Info("pin monitor started", "period", m.period)
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	select {
	case <-m.scheduler.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
