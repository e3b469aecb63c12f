package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ikolcov/pinboard/internal/models"
	"github.com/ikolcov/pinboard/internal/payment"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var submissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pinboard",
	Name:      "submissions_total",
	Help:      "total paid post submissions, by outcome",
}, []string{"status"})

var ErrNoGateway = errors.New("no payment gateway configured")

// submitTimeout bounds a payment once it no longer follows the submitter's
// context. It matches the validity window of a bridge transaction.
const submitTimeout = 10 * time.Minute

// Submission is a post paid for by the submitter.
type Submission struct {
	// Key identifies one form submission. Concurrent submits with the same
	// key share a single payment and a single post. The shared payment is
	// detached from every caller's context: a caller that gives up gets its
	// own context error while the payment goes on for the others.
	Key     string
	Title   string
	Content string
	Link    string
	Author  string
	Amount  decimal.Decimal
}

// Submit validates the submission, collects payment and then creates a pinned
// post with the confirmed amount. Nothing is stored unless the payment
// succeeds.
func (b *Board) Submit(ctx context.Context, sub Submission) (models.Post, error) {
	draft, err := Draft{
		Title:   sub.Title,
		Content: sub.Content,
		Link:    sub.Link,
		Author:  sub.Author,
		Pinned:  true,
		Amount:  sub.Amount,
	}.normalize()
	if err == nil && sub.Amount.LessThan(b.minAmount) {
		err = fmt.Errorf("%w (minimum %s)", models.ErrAmountTooLow, b.minAmount)
	}
	if err != nil {
		submissions.WithLabelValues("invalid").Inc()
		return models.Post{}, err
	}

	key := sub.Key
	if key == "" {
		key = uuid.NewString()
	}

	results := b.inflight.DoChan(key, func() (interface{}, error) {
		payCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
		defer cancel()
		return b.payAndCreate(payCtx, key, draft)
	})

	select {
	case res := <-results:
		if res.Shared {
			b.logger.Debug("joined in-flight submission", "key", key)
		}
		if res.Err != nil {
			return models.Post{}, res.Err
		}
		return res.Val.(models.Post), nil
	case <-ctx.Done():
		b.logger.Info("submitter left before payment settled", "key", key)
		return models.Post{}, ctx.Err()
	}
}

func (b *Board) payAndCreate(ctx context.Context, key string, draft Draft) (models.Post, error) {
	if b.gateway == nil {
		submissions.WithLabelValues("failed").Inc()
		return models.Post{}, ErrNoGateway
	}

	receipt, err := b.gateway.Pay(ctx, payment.Request{
		Amount:         draft.Amount,
		IdempotencyKey: key,
		Comment:        "pin: " + draft.Title,
	})
	if err != nil {
		submissions.WithLabelValues(paymentStatus(err)).Inc()
		b.logger.Warn("payment failed", "key", key, "amount", draft.Amount, "err", err)
		return models.Post{}, fmt.Errorf("pay for post: %w", err)
	}

	draft.Amount = receipt.Amount
	draft.PaymentReference = receipt.Reference

	now := b.clock.Now()
	post, err := b.insert(ctx, draft, now, now)
	if err != nil {
		submissions.WithLabelValues("failed").Inc()
		b.logger.Error("payment settled but post was not stored", "key", key, "reference", receipt.Reference, "err", err)
		return models.Post{}, err
	}
	submissions.WithLabelValues("ok").Inc()
	return post, nil
}

func paymentStatus(err error) string {
	switch {
	case errors.Is(err, payment.ErrCancelled):
		return "cancelled"
	case errors.Is(err, payment.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, payment.ErrTimeout):
		return "timeout"
	case errors.Is(err, payment.ErrBusy):
		return "busy"
	}
	return "failed"
}
