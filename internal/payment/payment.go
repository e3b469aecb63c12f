// Package payment talks to the wallet that settles pin payments. Signing and
// chain access stay on the wallet side; this package only asks for a payment
// and interprets the outcome.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrCancelled           = errors.New("transaction was cancelled by user")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTimeout             = errors.New("transaction timed out")
	ErrBusy                = errors.New("another transaction is in progress")
	ErrFailed              = errors.New("transaction failed")
)

type Request struct {
	Amount decimal.Decimal
	// IdempotencyKey lets the wallet drop replays of the same submission.
	IdempotencyKey string
	Comment        string
}

type Receipt struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
}

type Gateway interface {
	Pay(ctx context.Context, req Request) (Receipt, error)
}
