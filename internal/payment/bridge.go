package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ValidFor is how long the wallet may take to get the transfer approved.
const ValidFor = 600 * time.Second

type BridgeClient struct {
	cli       *http.Client
	endpoint  string
	apiKey    string
	recipient string
	now       func() time.Time
}

type BridgeArgs struct {
	Endpoint  string
	ApiKey    string
	Recipient string
	// Timeout bounds a single call; approval in the wallet is user paced.
	Timeout time.Duration
}

func NewBridgeClient(args *BridgeArgs) *BridgeClient {
	timeout := args.Timeout
	if timeout <= 0 {
		timeout = ValidFor
	}
	return &BridgeClient{
		cli: &http.Client{
			Timeout: timeout,
		},
		endpoint:  args.Endpoint,
		apiKey:    args.ApiKey,
		recipient: args.Recipient,
		now:       time.Now,
	}
}

type bridgeRequest struct {
	Recipient      string          `json:"recipient"`
	Amount         decimal.Decimal `json:"amount"`
	Comment        string          `json:"comment,omitempty"`
	ValidUntil     int64           `json:"validUntil"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

type bridgeResponse struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Error     string          `json:"error"`
}

var bridgeErrors = map[string]error{
	"cancelled":            ErrCancelled,
	"user_rejected":        ErrCancelled,
	"insufficient_balance": ErrInsufficientBalance,
	"timeout":              ErrTimeout,
	"busy":                 ErrBusy,
}

func (c *BridgeClient) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	payload := bridgeRequest{
		Recipient:      c.recipient,
		Amount:         req.Amount,
		Comment:        req.Comment,
		ValidUntil:     c.now().Add(ValidFor).Unix(),
		IdempotencyKey: req.IdempotencyKey,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/transactions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpReq, nil
}

func (c *BridgeClient) Pay(ctx context.Context, req Request) (Receipt, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrFailed, err)
	}

	resp, err := c.cli.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return Receipt{}, ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return Receipt{}, ErrCancelled
		}
		return Receipt{}, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	defer resp.Body.Close()

	var bridgeResp bridgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&bridgeResp); err != nil {
		io.Copy(io.Discard, resp.Body)
		return Receipt{}, fmt.Errorf("%w: received %d with undecodable body", ErrFailed, resp.StatusCode)
	}

	if bridgeResp.Error != "" {
		if mapped, ok := bridgeErrors[bridgeResp.Error]; ok {
			return Receipt{}, mapped
		}
		return Receipt{}, fmt.Errorf("%w: %s", ErrFailed, bridgeResp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return Receipt{}, fmt.Errorf("%w: received non-200 response code: %d", ErrFailed, resp.StatusCode)
	}
	if bridgeResp.Reference == "" {
		return Receipt{}, fmt.Errorf("%w: bridge returned no reference", ErrFailed)
	}

	amount := bridgeResp.Amount
	if amount.IsZero() {
		amount = req.Amount
	}
	return Receipt{Reference: bridgeResp.Reference, Amount: amount}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
