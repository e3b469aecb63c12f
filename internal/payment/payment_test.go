package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBridgeClient_Success(t *testing.T) {
	var got bridgeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("missing bearer key, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.Write([]byte(`{"reference":"boc123","amount":"0.5"}`))
	}))
	defer srv.Close()

	c := NewBridgeClient(&BridgeArgs{Endpoint: srv.URL, ApiKey: "secret", Recipient: "EQ-recipient"})
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	receipt, err := c.Pay(context.Background(), Request{
		Amount:         decimal.RequireFromString("0.5"),
		IdempotencyKey: "key-1",
		Comment:        "pin",
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if receipt.Reference != "boc123" || !receipt.Amount.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if got.Recipient != "EQ-recipient" || got.IdempotencyKey != "key-1" || got.Comment != "pin" {
		t.Fatalf("unexpected request body %+v", got)
	}
	if got.ValidUntil != fixed.Add(ValidFor).Unix() {
		t.Fatalf("unexpected validUntil %d", got.ValidUntil)
	}
}

func TestBridgeClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusOK, `{"error":"cancelled"}`, ErrCancelled},
		{http.StatusConflict, `{"error":"user_rejected"}`, ErrCancelled},
		{http.StatusPaymentRequired, `{"error":"insufficient_balance"}`, ErrInsufficientBalance},
		{http.StatusGatewayTimeout, `{"error":"timeout"}`, ErrTimeout},
		{http.StatusConflict, `{"error":"busy"}`, ErrBusy},
		{http.StatusBadGateway, `{"error":"node unreachable"}`, ErrFailed},
		{http.StatusInternalServerError, `{}`, ErrFailed},
		{http.StatusOK, `not json`, ErrFailed},
		{http.StatusOK, `{"amount":"1"}`, ErrFailed},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewBridgeClient(&BridgeArgs{Endpoint: srv.URL})
			_, err := c.Pay(context.Background(), Request{Amount: decimal.NewFromInt(1)})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v got %v", tt.want, err)
			}
		})
	}
}

func TestBridgeClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewBridgeClient(&BridgeArgs{Endpoint: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.Pay(ctx, Request{Amount: decimal.NewFromInt(1)}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout got %v", err)
	}
}

func TestDemoWallet(t *testing.T) {
	w := NewDemoWallet(decimal.RequireFromString("25.5"), nil)

	receipt, err := w.Pay(context.Background(), Request{Amount: decimal.NewFromInt(5)})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if !strings.HasPrefix(receipt.Reference, "tx_") {
		t.Fatalf("unexpected reference %q", receipt.Reference)
	}
	if !w.Balance().Equal(decimal.RequireFromString("20.5")) {
		t.Fatalf("expected balance 20.5 got %s", w.Balance())
	}

	if _, err := w.Pay(context.Background(), Request{Amount: decimal.NewFromInt(21)}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance got %v", err)
	}
	if !w.Balance().Equal(decimal.RequireFromString("20.5")) {
		t.Fatal("failed payment changed the balance")
	}
}

func TestDemoWallet_Busy(t *testing.T) {
	w := NewDemoWallet(decimal.NewFromInt(10), nil)
	w.pending = true

	if _, err := w.Pay(context.Background(), Request{Amount: decimal.NewFromInt(1)}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy got %v", err)
	}
}

func TestDemoWallet_Cancelled(t *testing.T) {
	w := NewDemoWallet(decimal.NewFromInt(10), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := w.Pay(ctx, Request{Amount: decimal.NewFromInt(1)}); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled got %v", err)
	}
	if !w.Balance().Equal(decimal.NewFromInt(10)) {
		t.Fatal("cancelled payment changed the balance")
	}
	if _, err := w.Pay(context.Background(), Request{Amount: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("wallet should be free after a cancelled payment: %v", err)
	}
}
