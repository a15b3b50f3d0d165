// Package services – Barrier and Fleet
//
// A Barrier is the long-lived state of one physical gate: its configuration,
// sweep cursor, indicator and liveness. All pulse attempts for a barrier,
// whether swept by the scheduler, triggered by a camera, or requested by an
// operator, go through SendPulse and are serialized by a per-barrier lock
// held across the whole validate, actuate, update sequence.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/barrier-gateway/internal/config"
	"github.com/tbourn/barrier-gateway/internal/domain"
	"github.com/tbourn/barrier-gateway/internal/repo"
)

// Ledger is the persistence contract the engine needs from the ledger store.
// Next returns (nil, nil) when no row follows the (after, afterID) watermark.
type Ledger interface {
	Append(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error)
	Next(ctx context.Context, laneID int, after time.Time, afterID uint) (*domain.Transaction, error)
	MarkSent(ctx context.Context, id uint, at time.Time) error
}

// Authorizer decides whether a plate may pass. The boolean is true when the
// plate is denied, in which case the string explains why.
type Authorizer interface {
	Reason(plate string, dir domain.Direction, behavior domain.APIDownBehavior) (string, bool)
}

// Actuator drives a barrier controller.
type Actuator interface {
	Pulse(ctx context.Context, endpoint, name string, retries int) bool
	Probe(ctx context.Context, endpoint, name string) domain.Liveness
}

// Pulse sources used in logs and metrics.
const (
	SourceCron    = "cron"
	SourceCamera  = "camera"
	SourceManual  = "manual"
	SourceStartup = "startup"
)

// PulseRequest describes one SendPulse invocation.
//
// Scheduled selects the sweep path: the subject row is read from the ledger
// and the enabled flag is honoured. Otherwise Txn, when set, is the subject
// and is marked sent after a successful pulse; a nil Txn pulses unconditionally.
type PulseRequest struct {
	Scheduled bool
	Source    string
	Txn       *domain.Transaction
}

// Barrier is safe for concurrent use.
type Barrier struct {
	name       string
	endpoint   string
	cron       string
	camera     string
	laneID     int
	behavior   domain.APIDownBehavior
	defaultDir domain.Direction

	ledger   Ledger
	auth     Authorizer
	actuator Actuator

	sweepRetries    int
	reactiveRetries int

	now func() time.Time
	log zerolog.Logger

	// pulseMu is the actuation lock.
	pulseMu sync.Mutex

	mu          sync.RWMutex
	enabled     bool
	indicator   domain.Indicator
	liveness    domain.Liveness
	cursor      time.Time
	cursorID    uint
	lastPlate   string
	lastPulseAt *time.Time
	observers   []func(domain.BarrierStatus)
}

// NewBarrier builds a barrier from its configuration. The cursor starts at
// the current time so rows persisted before startup are never replayed.
func NewBarrier(cfg config.BarrierConfig, d config.DispatchConfig, ledger Ledger, auth Authorizer, act Actuator) *Barrier {
	dir, ok := domain.ParseDirection(cfg.DefaultDirection)
	if !ok {
		dir = domain.Inbound
	}
	return &Barrier{
		name:            cfg.Name,
		endpoint:        cfg.Endpoint,
		cron:            cfg.Cron,
		camera:          cfg.Camera,
		laneID:          cfg.LaneID,
		behavior:        domain.ParseAPIDownBehavior(cfg.APIDownBehavior),
		defaultDir:      dir,
		ledger:          ledger,
		auth:            auth,
		actuator:        act,
		sweepRetries:    d.SweepRetries,
		reactiveRetries: d.ReactiveRetries,
		now:             time.Now,
		log:             log.With().Str("component", "barrier").Str("barrier", cfg.Name).Logger(),
		enabled:         cfg.IsEnabled(),
		cursor:          time.Now().UTC(),
	}
}

func (b *Barrier) Name() string                            { return b.name }
func (b *Barrier) LaneID() int                             { return b.laneID }
func (b *Barrier) Cron() string                            { return b.cron }
func (b *Barrier) Camera() string                          { return b.camera }
func (b *Barrier) DefaultDirection() domain.Direction      { return b.defaultDir }
func (b *Barrier) APIDownBehavior() domain.APIDownBehavior { return b.behavior }

// Enabled reports whether scheduled sweeps may actuate this barrier.
func (b *Barrier) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// SetEnabled toggles scheduled sweeps.
func (b *Barrier) SetEnabled(v bool) {
	b.mu.Lock()
	changed := b.enabled != v
	b.enabled = v
	b.mu.Unlock()
	if changed {
		b.log.Info().Bool("enabled", v).Msg("barrier toggled")
		b.notify()
	}
}

// Cursor returns the sweep watermark.
func (b *Barrier) Cursor() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor
}

func (b *Barrier) watermark() (time.Time, uint) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cursor, b.cursorID
}

// Status returns a snapshot of the barrier state.
func (b *Barrier) Status() domain.BarrierStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statusLocked()
}

func (b *Barrier) statusLocked() domain.BarrierStatus {
	st := domain.BarrierStatus{
		Name:            b.name,
		LaneID:          b.laneID,
		Enabled:         b.enabled,
		APIDownBehavior: b.behavior,
		Indicator:       b.indicator,
		Liveness:        b.liveness,
		Cursor:          b.cursor,
		LastPlate:       b.lastPlate,
	}
	if b.lastPulseAt != nil {
		t := *b.lastPulseAt
		st.LastPulseAt = &t
	}
	return st
}

// Subscribe registers fn to be called with a fresh snapshot after every
// state change. Callbacks run synchronously on the mutating goroutine and
// must not call back into SendPulse.
func (b *Barrier) Subscribe(fn func(domain.BarrierStatus)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

func (b *Barrier) notify() {
	b.mu.RLock()
	st := b.statusLocked()
	obs := append([]func(domain.BarrierStatus){}, b.observers...)
	b.mu.RUnlock()
	for _, fn := range obs {
		fn(st)
	}
}

func (b *Barrier) update(fn func()) {
	b.mu.Lock()
	fn()
	b.mu.Unlock()
	b.notify()
}

// SendPulse runs one actuation attempt and reports whether the barrier was
// pulsed successfully. It never returns an error: nothing to do, a denied
// plate, and controller failures are all logged negative outcomes.
func (b *Barrier) SendPulse(ctx context.Context, req PulseRequest) bool {
	if req.Source == "" {
		if req.Scheduled {
			req.Source = SourceCron
		} else {
			req.Source = SourceManual
		}
	}
	ctx, span := otel.Tracer("services/barrier").Start(ctx, "Barrier.SendPulse")
	defer span.End()
	span.SetAttributes(
		attribute.String("barrier.name", b.name),
		attribute.String("pulse.source", req.Source),
		attribute.Bool("pulse.scheduled", req.Scheduled),
	)

	b.pulseMu.Lock()
	defer b.pulseMu.Unlock()

	lg := b.log.With().Str("source", req.Source).Logger()

	if req.Scheduled && !b.Enabled() {
		pulseTotal.WithLabelValues(b.name, req.Source, "disabled").Inc()
		return false
	}

	subject := req.Txn
	retries := b.reactiveRetries
	if req.Scheduled {
		retries = b.sweepRetries
		after, afterID := b.watermark()
		next, err := b.ledger.Next(ctx, b.laneID, after, afterID)
		if err != nil {
			lg.Error().Err(err).Msg("ledger query failed")
			pulseTotal.WithLabelValues(b.name, req.Source, "error").Inc()
			return false
		}
		if next == nil {
			lg.Debug().Msg("no pending transactions")
			pulseTotal.WithLabelValues(b.name, req.Source, "idle").Inc()
			return false
		}
		subject = next
		b.update(func() {
			b.cursor = next.Created
			b.cursorID = next.ID
			b.lastPlate = next.Plate
		})
		lg.Info().Uint("txn", next.ID).Str("plate", next.Plate).Msg("processing transaction")
	} else if subject != nil {
		b.update(func() { b.lastPlate = subject.Plate })
	}

	if subject != nil && subject.Direction == domain.Inbound {
		if reason, denied := b.auth.Reason(subject.Plate, subject.Direction, b.behavior); denied {
			lg.Warn().Str("plate", subject.Plate).Str("reason", reason).Msg("inbound plate not authorized, pulse withheld")
			pulseTotal.WithLabelValues(b.name, req.Source, "denied").Inc()
			return false
		}
	}

	b.update(func() { b.indicator = domain.IndicatorSending })
	ok := b.actuator.Pulse(ctx, b.endpoint, b.name, retries)
	at := b.now().UTC()

	if ok && subject != nil && subject.ID != 0 {
		if err := b.ledger.MarkSent(ctx, subject.ID, at); err != nil {
			if errors.Is(err, repo.ErrAlreadySent) {
				lg.Debug().Uint("txn", subject.ID).Msg("transaction already marked sent")
			} else {
				lg.Error().Err(err).Uint("txn", subject.ID).Msg("mark sent failed")
			}
		}
	}

	outcome := "failed"
	b.update(func() {
		b.lastPulseAt = &at
		if ok {
			b.indicator = domain.IndicatorSucceeded
		} else {
			b.indicator = domain.IndicatorFailed
		}
	})
	if ok {
		outcome = "sent"
		lg.Info().Msg("pulse sent successfully")
	} else {
		lg.Warn().Msg("pulse failed")
	}
	pulseTotal.WithLabelValues(b.name, req.Source, outcome).Inc()
	span.SetAttributes(attribute.String("pulse.outcome", outcome))

	b.probeLocked(ctx)
	return ok
}

// Probe refreshes the liveness state without pulsing.
func (b *Barrier) Probe(ctx context.Context) domain.Liveness {
	b.pulseMu.Lock()
	defer b.pulseMu.Unlock()
	return b.probeLocked(ctx)
}

func (b *Barrier) probeLocked(ctx context.Context) domain.Liveness {
	l := b.actuator.Probe(ctx, b.endpoint, b.name)
	b.update(func() { b.liveness = l })
	return l
}

// Fleet is the ordered set of configured barriers.
type Fleet struct {
	units  []*Barrier
	byName map[string]*Barrier
	log    zerolog.Logger
}

// NewFleet keeps units in configuration order.
func NewFleet(units ...*Barrier) *Fleet {
	f := &Fleet{
		units:  units,
		byName: make(map[string]*Barrier, len(units)),
		log:    log.With().Str("component", "fleet").Logger(),
	}
	for _, u := range units {
		f.byName[u.name] = u
	}
	return f
}

// BuildFleet constructs one barrier per configuration entry.
func BuildFleet(cfgs []config.BarrierConfig, d config.DispatchConfig, ledger Ledger, auth Authorizer, act Actuator) *Fleet {
	units := make([]*Barrier, 0, len(cfgs))
	for _, c := range cfgs {
		units = append(units, NewBarrier(c, d, ledger, auth, act))
	}
	return NewFleet(units...)
}

// All returns the barriers in configuration order.
func (f *Fleet) All() []*Barrier { return append([]*Barrier(nil), f.units...) }

// ByName returns the named barrier or ErrBarrierNotFound.
func (f *Fleet) ByName(name string) (*Barrier, error) {
	if u, ok := f.byName[name]; ok {
		return u, nil
	}
	return nil, ErrBarrierNotFound
}

// ByLane returns the first barrier owning laneID, or nil.
func (f *Fleet) ByLane(laneID int) *Barrier {
	for _, u := range f.units {
		if u.laneID == laneID {
			return u
		}
	}
	return nil
}

// Resolve picks the barrier owning a detection from the given camera. The
// barrier whose configured camera matches wins; otherwise the first enabled
// barrier is used and fallback is true. Nil means nothing could be resolved.
func (f *Fleet) Resolve(camera string) (b *Barrier, fallback bool) {
	camera = strings.TrimSpace(camera)
	if camera != "" {
		for _, u := range f.units {
			if u.camera != "" && strings.EqualFold(u.camera, camera) {
				return u, false
			}
		}
	}
	for _, u := range f.units {
		if u.Enabled() {
			f.log.Info().Str("camera", camera).Str("barrier", u.name).Msg("no camera match, using first enabled barrier")
			return u, true
		}
	}
	return nil, true
}

// Statuses returns a snapshot of every barrier in configuration order.
func (f *Fleet) Statuses() []domain.BarrierStatus {
	out := make([]domain.BarrierStatus, 0, len(f.units))
	for _, u := range f.units {
		out = append(out, u.Status())
	}
	return out
}

// Pulse sends a manual pulse to the named barrier. The boolean reports the
// actuation outcome; the error is only ErrBarrierNotFound.
func (f *Fleet) Pulse(ctx context.Context, name string) (bool, domain.BarrierStatus, error) {
	u, err := f.ByName(name)
	if err != nil {
		return false, domain.BarrierStatus{}, err
	}
	ok := u.SendPulse(ctx, PulseRequest{Source: SourceManual})
	return ok, u.Status(), nil
}

// SetEnabled toggles scheduled sweeps on the named barrier.
func (f *Fleet) SetEnabled(name string, enabled bool) (domain.BarrierStatus, error) {
	u, err := f.ByName(name)
	if err != nil {
		return domain.BarrierStatus{}, err
	}
	u.SetEnabled(enabled)
	return u.Status(), nil
}

// ProbeAll refreshes liveness of every barrier concurrently.
func (f *Fleet) ProbeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, u := range f.units {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.Probe(ctx)
		}()
	}
	wg.Wait()
}

// PulseAll sends an unconditional pulse to every enabled barrier and returns
// how many succeeded.
func (f *Fleet) PulseAll(ctx context.Context, source string) int {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		n  int
	)
	for _, u := range f.units {
		if !u.Enabled() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if u.SendPulse(ctx, PulseRequest{Source: source}) {
				mu.Lock()
				n++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return n
}
