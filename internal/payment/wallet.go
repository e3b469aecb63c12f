package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DemoWallet settles payments against an in-process balance. It holds at most
// one transaction at a time.
type DemoWallet struct {
	mu      sync.Mutex
	balance decimal.Decimal
	pending bool
	logger  *slog.Logger
}

func NewDemoWallet(balance decimal.Decimal, logger *slog.Logger) *DemoWallet {
	if logger == nil {
		logger = slog.Default()
	}
	return &DemoWallet{
		balance: balance,
		logger:  logger.With("component", "demo-wallet"),
	}
}

func (w *DemoWallet) Balance() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

func (w *DemoWallet) Pay(ctx context.Context, req Request) (Receipt, error) {
	w.mu.Lock()
	if w.pending {
		w.mu.Unlock()
		return Receipt{}, ErrBusy
	}
	if !req.Amount.IsPositive() {
		w.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: amount must be positive", ErrFailed)
	}
	if w.balance.LessThan(req.Amount) {
		w.mu.Unlock()
		return Receipt{}, ErrInsufficientBalance
	}
	w.pending = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.pending = false
		w.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return Receipt{}, ErrTimeout
		}
		return Receipt{}, ErrCancelled
	}

	w.mu.Lock()
	w.balance = w.balance.Sub(req.Amount)
	w.mu.Unlock()

	reference := "tx_" + uuid.NewString()
	w.logger.Info("payment sent", "amount", req.Amount, "reference", reference)
	return Receipt{Reference: reference, Amount: req.Amount}, nil
}
