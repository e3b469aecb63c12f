package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikolcov/pinboard/internal/app"
	"github.com/ikolcov/pinboard/internal/board"
	"github.com/ikolcov/pinboard/internal/feed"
	"github.com/ikolcov/pinboard/internal/monitor"
	"github.com/ikolcov/pinboard/internal/payment"
	"github.com/ikolcov/pinboard/internal/storage"
	"github.com/ikolcov/pinboard/internal/tasks"
	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := cli.App{
		Name:   "pinboard",
		Usage:  "paid bulletin board with expiring pins",
		Action: run,
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:    "server-port",
				EnvVars: []string{"SERVER_PORT"},
				Value:   8080,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"PINBOARD_LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "storage",
				Usage:   "memory, mongo or postgres",
				EnvVars: []string{"STORAGE_MODE"},
				Value:   "memory",
			},
			&cli.StringFlag{
				Name:    "mongo-url",
				EnvVars: []string{"MONGO_URL"},
			},
			&cli.StringFlag{
				Name:    "mongo-db",
				EnvVars: []string{"MONGO_DBNAME"},
				Value:   "pinboard",
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				EnvVars: []string{"POSTGRES_DSN"},
			},
			&cli.StringFlag{
				Name:    "redis-url",
				EnvVars: []string{"REDIS_URL"},
			},
			&cli.StringFlag{
				Name:    "payment-mode",
				Usage:   "demo or bridge",
				EnvVars: []string{"PAYMENT_MODE"},
				Value:   "demo",
			},
			&cli.StringFlag{
				Name:    "bridge-url",
				EnvVars: []string{"PINBOARD_BRIDGE_URL"},
			},
			&cli.StringFlag{
				Name:    "bridge-api-key",
				EnvVars: []string{"PINBOARD_BRIDGE_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "bridge-recipient",
				EnvVars: []string{"PINBOARD_BRIDGE_RECIPIENT"},
			},
			&cli.StringFlag{
				Name:    "demo-balance",
				EnvVars: []string{"PINBOARD_DEMO_BALANCE"},
				Value:   "25.5",
			},
			&cli.StringFlag{
				Name:    "min-amount",
				EnvVars: []string{"PINBOARD_MIN_AMOUNT"},
				Value:   board.DefaultMinAmount.String(),
			},
			&cli.DurationFlag{
				Name:    "pin-duration",
				EnvVars: []string{"PINBOARD_PIN_DURATION"},
				Value:   board.DefaultPinDuration,
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				EnvVars: []string{"PINBOARD_SWEEP_INTERVAL"},
				Value:   monitor.DefaultPeriod,
			},
			&cli.StringFlag{
				Name:    "broker-url",
				Usage:   "machinery broker; sweeps are shared between replicas when set",
				EnvVars: []string{"PINBOARD_BROKER_URL"},
			},
			&cli.BoolFlag{
				Name:    "seed-demo",
				EnvVars: []string{"PINBOARD_SEED_DEMO"},
			},
		},
		ErrWriter: os.Stderr,
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("pinboard exited", "err", err)
		os.Exit(1)
	}
}

func newLogger(levelName string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func openStorage(ctx context.Context, cmd *cli.Context, l *slog.Logger) (storage.Storage, func(), error) {
	var s storage.Storage
	closeFn := func() {}

	switch mode := cmd.String("storage"); mode {
	case "memory":
		s = storage.NewInMemoryStorage()
	case "mongo":
		m, err := storage.NewMongoStorage(ctx, cmd.String("mongo-url"), cmd.String("mongo-db"))
		if err != nil {
			return nil, nil, err
		}
		s = m
		closeFn = func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.Close(closeCtx); err != nil {
				l.Error("close mongo", "err", err)
			}
		}
	case "postgres":
		p, err := storage.NewPostgresStorage(ctx, cmd.String("postgres-dsn"))
		if err != nil {
			return nil, nil, err
		}
		s = p
		closeFn = p.Close
	default:
		return nil, nil, fmt.Errorf("unknown storage mode %q", mode)
	}

	if redisUrl := cmd.String("redis-url"); redisUrl != "" {
		s = storage.NewCachedStorage(redisUrl, s, l)
	}
	return s, closeFn, nil
}

func newGateway(cmd *cli.Context, l *slog.Logger) (payment.Gateway, error) {
	switch mode := cmd.String("payment-mode"); mode {
	case "demo":
		balance, err := decimal.NewFromString(cmd.String("demo-balance"))
		if err != nil {
			return nil, fmt.Errorf("parse demo balance: %w", err)
		}
		return payment.NewDemoWallet(balance, l), nil
	case "bridge":
		return payment.NewBridgeClient(&payment.BridgeArgs{
			Endpoint:  cmd.String("bridge-url"),
			ApiKey:    cmd.String("bridge-api-key"),
			Recipient: cmd.String("bridge-recipient"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown payment mode %q", mode)
	}
}

var run = func(cmd *cli.Context) error {
	ctx, cancel := context.WithCancel(cmd.Context)
	defer cancel()

	l := newLogger(cmd.String("log-level"))
	slog.SetDefault(l)

	s, closeStorage, err := openStorage(ctx, cmd, l)
	if err != nil {
		return err
	}
	defer closeStorage()

	gateway, err := newGateway(cmd, l)
	if err != nil {
		return err
	}

	minAmount, err := decimal.NewFromString(cmd.String("min-amount"))
	if err != nil {
		return fmt.Errorf("parse min amount: %w", err)
	}

	hub := feed.NewHub(l)
	defer hub.Close()

	b := board.New(&board.Args{
		Storage:     s,
		Gateway:     gateway,
		PinDuration: cmd.Duration("pin-duration"),
		MinAmount:   minAmount,
		Logger:      l,
		Notifier:    hub,
	})

	m := monitor.New(&monitor.Args{
		Storage:  s,
		Period:   cmd.Duration("sweep-interval"),
		Logger:   l,
		Notifier: hub,
	})

	if cmd.Bool("seed-demo") {
		if err := b.SeedDemo(ctx); err != nil {
			return fmt.Errorf("seed demo posts: %w", err)
		}
	}

	var workerErrs <-chan error
	if brokerUrl := cmd.String("broker-url"); brokerUrl != "" && cmd.String("storage") != "memory" {
		worker, err := tasks.NewWorker(&tasks.Args{
			BrokerURL: brokerUrl,
			Period:    cmd.Duration("sweep-interval"),
			Sweeper: tasks.SweepFunc(func(ctx context.Context) error {
				_, err := m.Sweep(ctx)
				return err
			}),
			Logger: l,
		})
		if err != nil {
			return err
		}
		if workerErrs, err = worker.Start(); err != nil {
			return err
		}
		defer worker.Stop()
	} else {
		if err := m.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := m.Stop(stopCtx); err != nil {
				l.Error("stop pin monitor", "err", err)
			}
		}()
	}

	a := app.New(app.AppConfig{Port: uint16(cmd.Uint("server-port"))}, b, hub, l)
	serverErrs := make(chan error, 1)
	go func() {
		serverErrs <- a.Start()
	}()

	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-exitSignals:
		l.Info("received os exit signal", "signal", sig)
	case err := <-serverErrs:
		if err != nil {
			return err
		}
	case err := <-workerErrs:
		l.Error("sweep worker stopped", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return a.Shutdown(shutdownCtx)
}
