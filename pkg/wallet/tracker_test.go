package wallet

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubSource struct {
	balances *Balances
	err      error
	polls    atomic.Int32
}

func (s *stubSource) GetBalances(context.Context, common.Address) (*Balances, error) {
	s.polls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.balances, nil
}

func TestNew(t *testing.T) {
	logger := zap.NewNop()
	source := &stubSource{}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid_config",
			cfg:     &Config{Source: source, Address: owner, PollInterval: time.Minute, Logger: logger},
			wantErr: false,
		},
		{
			name:    "nil_config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name:    "nil_logger",
			cfg:     &Config{Source: source, Address: owner, PollInterval: time.Minute},
			wantErr: true,
		},
		{
			name:    "nil_source",
			cfg:     &Config{Address: owner, PollInterval: time.Minute, Logger: logger},
			wantErr: true,
		},
		{
			name:    "zero_poll_interval",
			cfg:     &Config{Source: source, Address: owner, Logger: logger},
			wantErr: true,
		},
		{
			name:    "negative_poll_interval",
			cfg:     &Config{Source: source, Address: owner, PollInterval: -time.Second, Logger: logger},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tracker.address != tt.cfg.Address {
				t.Errorf("New() address = %v, want %v", tracker.address, tt.cfg.Address)
			}
		})
	}
}

func TestTracker_Run_PollsUntilCancelled(t *testing.T) {
	source := &stubSource{balances: &Balances{
		Gas:        decimal.RequireFromString("0.05"),
		Collateral: decimal.RequireFromString("250"),
		Allowance:  decimal.RequireFromString("1000"),
	}}

	tracker, err := New(&Config{
		Source:       source,
		Address:      owner,
		PollInterval: 20 * time.Millisecond,
		MinGas:       decimal.RequireFromString("0.1"),
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if tracker.Latest() != nil {
		t.Error("Latest() before first poll should be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err = tracker.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want context.DeadlineExceeded", err)
	}

	if n := source.polls.Load(); n < 2 {
		t.Errorf("polls = %d, want at least 2", n)
	}

	latest := tracker.Latest()
	if latest == nil {
		t.Fatal("Latest() = nil after polling")
	}
	if !latest.Collateral.Equal(decimal.RequireFromString("250")) {
		t.Errorf("Latest().Collateral = %v, want 250", latest.Collateral)
	}
}

func TestTracker_Run_ImmediateCancellation(t *testing.T) {
	tracker, err := New(&Config{
		Source:       &stubSource{err: errors.New("rpc down")},
		Address:      owner,
		PollInterval: time.Minute,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- tracker.Run(ctx)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not exit after context cancellation")
	}

	if tracker.Latest() != nil {
		t.Error("Latest() should stay nil when every poll fails")
	}
}
