// Package worker runs periodic background jobs for a client session.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Ticker calls Func every Interval until stopped
type Ticker struct {
	name     string
	fn       func(ctx context.Context, now time.Time)
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	fireNow  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// TickerConfig configures a Ticker
type TickerConfig struct {
	Name     string
	Func     func(ctx context.Context, now time.Time)
	Logger   *slog.Logger
	Interval time.Duration
	// Clock defaults to time.Now
	Clock func() time.Time
	// RunImmediately fires once on Start before the first interval elapses
	RunImmediately bool
}

// NewTicker creates a new ticker
func NewTicker(cfg TickerConfig) (*Ticker, error) {
	if cfg.Func == nil {
		return nil, fmt.Errorf("tick function is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "ticker"
	}

	return &Ticker{
		name:     cfg.Name,
		fn:       cfg.Func,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		now:      cfg.Clock,
		fireNow:  cfg.RunImmediately,
	}, nil
}

// Start launches the tick loop. It fails when the ticker is already running.
func (t *Ticker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx != nil {
		return fmt.Errorf("%s already started", t.name)
	}

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.logger.Debug("Starting worker", "name", t.name, "interval", t.interval)

	t.wg.Add(1)
	go t.loop(t.ctx)
	return nil
}

// Stop ends the loop and waits for an in-flight tick to return. The ticker
// can be started again afterwards. Must not be called from Func.
func (t *Ticker) Stop() error {
	t.mu.Lock()
	if t.cancel == nil {
		t.mu.Unlock()
		return fmt.Errorf("%s not started", t.name)
	}
	t.cancel()
	t.ctx, t.cancel = nil, nil
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Debug("Worker stopped", "name", t.name)
	return nil
}

// Running reports whether the loop is active
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx != nil
}

func (t *Ticker) loop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if t.fireNow {
		t.fn(ctx, t.now())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fn(ctx, t.now())
		}
	}
}
