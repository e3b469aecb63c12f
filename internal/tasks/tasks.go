// Package tasks runs the pin expiry sweep through a machinery broker, so that
// replicas sharing one database sweep once per period between them instead of
// once each.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/RichardKnop/machinery/v1"
	"github.com/RichardKnop/machinery/v1/config"
	"github.com/RichardKnop/machinery/v1/tasks"
)

const (
	ExpirePinsTask = "expire_pins"
	defaultQueue   = "pinboard_tasks"
	consumerTag    = "pinboard_worker"
)

var ErrNoLock = errors.New("distributed sweep needs a redis:// broker to hold its tick lock")

type Sweeper interface {
	Sweep(ctx context.Context) error
}

// SweepFunc adapts a plain function to Sweeper.
type SweepFunc func(ctx context.Context) error

func (f SweepFunc) Sweep(ctx context.Context) error {
	return f(ctx)
}

type Worker struct {
	server  *machinery.Server
	worker  *machinery.Worker
	sweeper Sweeper
	period  time.Duration
	logger  *slog.Logger
}

type Args struct {
	BrokerURL string
	Period    time.Duration
	Sweeper   Sweeper
	Logger    *slog.Logger
}

func NewWorker(args *Args) (*Worker, error) {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	lock, err := LockURL(args.BrokerURL)
	if err != nil {
		return nil, err
	}

	cnf := &config.Config{
		Broker:          args.BrokerURL,
		Lock:            lock,
		DefaultQueue:    defaultQueue,
		ResultBackend:   args.BrokerURL,
		ResultsExpireIn: int(args.Period.Seconds()) * 2,
	}
	server, err := machinery.NewServer(cnf)
	if err != nil {
		return nil, fmt.Errorf("create machinery server: %w", err)
	}

	w := &Worker{
		server:  server,
		sweeper: args.Sweeper,
		period:  args.Period,
		logger:  args.Logger.With("component", "sweep-worker"),
	}

	if err := server.RegisterTask(ExpirePinsTask, w.expirePins); err != nil {
		return nil, fmt.Errorf("register %s: %w", ExpirePinsTask, err)
	}
	return w, nil
}

// LockURL derives the machinery lock address from a redis broker URL. The
// periodic task takes this lock on every tick so that only one replica
// enqueues the sweep. Without it machinery falls back to a process-local lock.
func LockURL(brokerURL string) (string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return "", fmt.Errorf("parse broker url: %w", err)
	}
	if u.Scheme != "redis" || u.Host == "" {
		return "", fmt.Errorf("%w: got %q", ErrNoLock, u.Scheme+"://"+u.Host)
	}

	lock := "redis://"
	if password, ok := u.User.Password(); ok {
		lock += password + "@"
	}
	return lock + u.Host, nil
}

func (w *Worker) expirePins() error {
	ctx, cancel := context.WithTimeout(context.Background(), w.period)
	defer cancel()

	if err := w.sweeper.Sweep(ctx); err != nil {
		w.logger.Error("distributed pin sweep failed", "err", err)
		return err
	}
	return nil
}

// CronSpec is the schedule the periodic task is registered with.
func CronSpec(period time.Duration) string {
	return "@every " + period.String()
}

// Start registers the periodic task and launches the worker in the
// background. Worker errors are delivered on the returned channel.
func (w *Worker) Start() (<-chan error, error) {
	signature := &tasks.Signature{Name: ExpirePinsTask}
	if err := w.server.RegisterPeriodicTask(CronSpec(w.period), ExpirePinsTask, signature); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", ExpirePinsTask, err)
	}

	errs := make(chan error, 1)
	w.worker = w.server.NewWorker(consumerTag, 1)
	w.worker.LaunchAsync(errs)
	w.logger.Info("distributed pin sweep started", "period", w.period)
	return errs, nil
}

func (w *Worker) Stop() {
	if w.worker != nil {
		w.worker.Quit()
	}
}
