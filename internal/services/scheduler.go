// Package services – Scheduler
//
// Scheduler owns the periodic triggers: one sweep per barrier on the
// barrier's own cron expression, plus one global whitelist refresh. A sweep
// fire on a disabled barrier is a no-op, so toggling a barrier at runtime
// takes effect on its next tick. Fires for the same barrier are not
// coalesced here; they queue on the barrier's actuation lock.
package services

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Refresher is satisfied by WhitelistCache.
type Refresher interface {
	Refresh(ctx context.Context) bool
}

// CronParser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as @every 30s or @hourly.
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler is safe for concurrent Start/Stop.
type Scheduler struct {
	fleet          *Fleet
	whitelist      Refresher
	refreshSpec    string
	refreshOnStart bool
	log            zerolog.Logger

	mu         sync.Mutex
	cron       *cron.Cron
	running    bool
	registered bool
	jobs       map[string]cron.EntryID
	startup    sync.WaitGroup
}

// NewScheduler wires the fleet sweeps and the whitelist refresh. whitelist
// may be nil to disable refreshes.
func NewScheduler(fleet *Fleet, whitelist Refresher, refreshSpec string, refreshOnStart bool) *Scheduler {
	lg := log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		fleet:          fleet,
		whitelist:      whitelist,
		refreshSpec:    refreshSpec,
		refreshOnStart: refreshOnStart,
		log:            lg,
		cron: cron.New(
			cron.WithParser(CronParser),
			cron.WithChain(cron.Recover(cron.PrintfLogger(&lg))),
		),
		jobs: make(map[string]cron.EntryID),
	}
}

// Start registers the triggers on first use and starts firing them. Job
// contexts are detached from ctx cancellation so Stop drains rather than
// aborts in-flight pulses. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	jobCtx := context.WithoutCancel(ctx)

	if !s.registered {
		s.register(jobCtx)
		s.registered = true
	}
	s.cron.Start()
	s.running = true
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")

	if s.refreshOnStart && s.whitelist != nil {
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			s.whitelist.Refresh(jobCtx)
		}()
	}
}

func (s *Scheduler) register(ctx context.Context) {
	for _, b := range s.fleet.All() {
		id, err := s.cron.AddFunc(b.Cron(), func() {
			b.SendPulse(ctx, PulseRequest{Scheduled: true, Source: SourceCron})
		})
		if err != nil {
			s.log.Error().Err(err).Str("barrier", b.Name()).Str("cron", b.Cron()).Msg("invalid cron expression, sweep not scheduled")
			continue
		}
		s.jobs["sweep:"+b.Name()] = id
	}

	if s.whitelist == nil || s.refreshSpec == "" {
		return
	}
	id, err := s.cron.AddFunc(s.refreshSpec, func() { s.whitelist.Refresh(ctx) })
	if err != nil {
		s.log.Error().Err(err).Str("cron", s.refreshSpec).Msg("invalid whitelist refresh cron, refresh not scheduled")
		return
	}
	s.jobs["whitelist"] = id
}

// Scheduled reports whether a job with the given key is registered. Keys
// are "sweep:<barrier>" and "whitelist".
func (s *Scheduler) Scheduled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// Stop halts new fires and waits for running jobs to finish, or for ctx to
// end, whichever comes first. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cronDone := s.cron.Stop()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.startup.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out with jobs still running")
		return ctx.Err()
	}
}
