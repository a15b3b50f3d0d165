package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/barrier-gateway/internal/config"
	"github.com/tbourn/barrier-gateway/internal/domain"
	"github.com/tbourn/barrier-gateway/internal/repo"
)

// ---------- test helpers ----------

// memLedger is an in-memory Ledger with the same ordering rules as the
// gorm-backed store.
type memLedger struct {
	mu     sync.Mutex
	rows   []domain.Transaction
	nextID uint
}

func (l *memLedger) Append(_ context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	t.ID = l.nextID
	t.Sent = false
	t.SentAt = nil
	l.rows = append(l.rows, *t)
	cp := *t
	return &cp, nil
}

func (l *memLedger) Next(_ context.Context, laneID int, after time.Time, afterID uint) (*domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var best *domain.Transaction
	for i := range l.rows {
		r := &l.rows[i]
		if r.LaneID != laneID {
			continue
		}
		if !r.Created.After(after) && !(afterID != 0 && r.Created.Equal(after) && r.ID > afterID) {
			continue
		}
		if best == nil || r.Created.Before(best.Created) || (r.Created.Equal(best.Created) && r.ID < best.ID) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (l *memLedger) MarkSent(_ context.Context, id uint, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rows {
		if l.rows[i].ID != id {
			continue
		}
		if l.rows[i].Sent {
			return repo.ErrAlreadySent
		}
		l.rows[i].Sent = true
		l.rows[i].SentAt = &at
		return nil
	}
	return repo.ErrNotFound
}

func (l *memLedger) add(t domain.Transaction) domain.Transaction {
	saved, _ := l.Append(context.Background(), &t)
	return *saved
}

func (l *memLedger) get(id uint) domain.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.rows {
		if r.ID == id {
			return r
		}
	}
	return domain.Transaction{}
}

func (l *memLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// flakyLedger fails the first failures Appends, then delegates.
type flakyLedger struct {
	*memLedger
	failures atomic.Int32
}

func (l *flakyLedger) Append(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, errors.New("disk I/O error")
	}
	return l.memLedger.Append(ctx, t)
}

// stubAuth denies the plates listed in deny.
type stubAuth struct {
	deny map[string]string
}

func (a stubAuth) Reason(plate string, dir domain.Direction, _ domain.APIDownBehavior) (string, bool) {
	if dir != domain.Inbound {
		return "", false
	}
	r, ok := a.deny[plate]
	return r, ok
}

// countingActuator records calls and fails the test if Pulse is reentered.
type countingActuator struct {
	t       *testing.T
	ok      bool
	delay   time.Duration
	live    domain.Liveness
	block   chan struct{} // when non-nil, Pulse waits for it to close
	started chan struct{} // receives one value per Pulse start, if non-nil

	inflight atomic.Int32
	pulses   atomic.Int32
	probes   atomic.Int32

	mu      sync.Mutex
	retries []int
}

func (a *countingActuator) Pulse(_ context.Context, _, _ string, retries int) bool {
	if n := a.inflight.Add(1); n > 1 {
		a.t.Errorf("Pulse reentered: %d concurrent calls", n)
	}
	defer a.inflight.Add(-1)
	a.pulses.Add(1)
	a.mu.Lock()
	a.retries = append(a.retries, retries)
	a.mu.Unlock()
	if a.started != nil {
		a.started <- struct{}{}
	}
	if a.block != nil {
		<-a.block
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	return a.ok
}

func (a *countingActuator) Probe(context.Context, string, string) domain.Liveness {
	a.probes.Add(1)
	if a.live == domain.LivenessUnknown {
		return domain.LivenessUp
	}
	return a.live
}

func (a *countingActuator) lastRetries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.retries) == 0 {
		return -1
	}
	return a.retries[len(a.retries)-1]
}

func boolPtr(b bool) *bool { return &b }

func testDispatch() config.DispatchConfig {
	return config.DispatchConfig{SweepRetries: 3, ReactiveRetries: 0}
}

func newTestBarrier(t *testing.T, cfg config.BarrierConfig, l Ledger, a Authorizer, act Actuator) *Barrier {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "Barrier1"
	}
	if cfg.LaneID == 0 {
		cfg.LaneID = 1
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://gate.invalid/pulse"
	}
	if cfg.Cron == "" {
		cfg.Cron = "@every 1h"
	}
	return NewBarrier(cfg, testDispatch(), l, a, act)
}

// fixedClock returns a controllable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
