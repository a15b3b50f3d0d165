// Package services – WhitelistCache
//
// WhitelistCache holds the current set of authorized plates and their
// validity windows. It is refreshed from one or more credentialed HTTP
// sources and consulted by barrier units before actuating for inbound
// traffic.
//
// Snapshots are replaced wholesale: a concurrent IsValid sees either the
// pre-refresh or the post-refresh list, never a mix. Refresh itself is
// serialized so two callers never interleave their replacements.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/barrier-gateway/internal/config"
	"github.com/tbourn/barrier-gateway/internal/domain"
)

// maxWhitelistBody caps a single source response.
const maxWhitelistBody = 8 << 20

type whitelistSnapshot struct {
	entries []domain.AuthorizationEntry
	at      time.Time
}

// WhitelistCache is safe for concurrent use.
type WhitelistCache struct {
	sources []config.WhitelistSource
	client  *http.Client
	now     func() time.Time
	log     zerolog.Logger

	refreshMu sync.Mutex
	snap      atomic.Pointer[whitelistSnapshot]
	degraded  atomic.Bool
}

// NewWhitelistCache builds an empty cache over the given sources. A nil
// client gets a default one with the given per-request timeout.
func NewWhitelistCache(sources []config.WhitelistSource, client *http.Client, timeout time.Duration) *WhitelistCache {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	c := &WhitelistCache{
		sources: sources,
		client:  client,
		now:     time.Now,
		log:     log.With().Str("component", "whitelist").Logger(),
	}
	c.snap.Store(&whitelistSnapshot{})
	return c
}

// Refresh fetches every source concurrently and, if at least one succeeds,
// replaces the snapshot with the merged entries. It returns true iff a
// source succeeded. When all fail the previous snapshot stays in place and
// the cache reports Degraded.
func (c *WhitelistCache) Refresh(ctx context.Context) bool {
	ctx, span := otel.Tracer("services/whitelist").Start(ctx, "WhitelistCache.Refresh")
	defer span.End()

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if len(c.sources) == 0 {
		c.log.Warn().Msg("no whitelist sources configured")
		c.degraded.Store(true)
		return false
	}

	results := make([][]domain.AuthorizationEntry, len(c.sources))
	ok := make([]bool, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		g.Go(func() error {
			entries, err := c.fetch(gctx, src)
			if err != nil {
				whitelistRefreshTotal.WithLabelValues(src.Name, "error").Inc()
				c.log.Warn().Err(err).Str("source", src.Name).Msg("whitelist fetch failed")
				return nil
			}
			whitelistRefreshTotal.WithLabelValues(src.Name, "ok").Inc()
			results[i] = entries
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var merged []domain.AuthorizationEntry
	succeeded := 0
	for i := range results {
		if ok[i] {
			succeeded++
			merged = append(merged, results[i]...)
		}
	}
	span.SetAttributes(
		attribute.Int("whitelist.sources", len(c.sources)),
		attribute.Int("whitelist.succeeded", succeeded),
	)

	if succeeded == 0 {
		c.degraded.Store(true)
		c.log.Error().Int("sources", len(c.sources)).Msg("all whitelist sources failed, keeping previous snapshot")
		return false
	}

	if merged == nil {
		merged = []domain.AuthorizationEntry{}
	}
	c.snap.Store(&whitelistSnapshot{entries: merged, at: c.now()})
	c.degraded.Store(false)
	whitelistEntries.Set(float64(len(merged)))
	c.log.Info().Int("entries", len(merged)).Int("sources_ok", succeeded).Msg("whitelist refreshed")
	return true
}

// wireEntry accepts both zoned RFC 3339 timestamps and the zone-less
// layouts emitted by legacy authorities.
type wireEntry struct {
	Plate  string `json:"plate"`
	Start  string `json:"start"`
	Finish string `json:"finish"`
}

var whitelistTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseWhitelistTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range whitelistTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func (c *WhitelistCache) fetch(ctx context.Context, src config.WhitelistSource) ([]domain.AuthorizationEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	if src.Username != "" || src.Password != "" {
		req.SetBasicAuth(src.Username, src.Password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var wire []wireEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxWhitelistBody)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	out := make([]domain.AuthorizationEntry, 0, len(wire))
	for _, w := range wire {
		start, err := parseWhitelistTime(w.Start)
		if err != nil {
			c.log.Warn().Str("source", src.Name).Str("plate", w.Plate).Err(err).Msg("skipping entry with bad start")
			continue
		}
		finish, err := parseWhitelistTime(w.Finish)
		if err != nil {
			c.log.Warn().Str("source", src.Name).Str("plate", w.Plate).Err(err).Msg("skipping entry with bad finish")
			continue
		}
		out = append(out, domain.AuthorizationEntry{Plate: w.Plate, Start: start, Finish: finish})
	}
	return out, nil
}

// IsValid reports whether plate may pass in direction under behavior.
func (c *WhitelistCache) IsValid(plate string, dir domain.Direction, behavior domain.APIDownBehavior) bool {
	_, denied := c.Reason(plate, dir, behavior)
	return !denied
}

// Reason returns the human-readable cause when plate is not allowed to pass.
// The boolean is false when the plate is allowed (or no check applies).
//
// Outbound traffic is never checked. OpenAny always allows; DontOpen always
// denies. UseHistoric (and any unknown policy) requires an entry with the
// exact plate string whose window covers now.
func (c *WhitelistCache) Reason(plate string, dir domain.Direction, behavior domain.APIDownBehavior) (string, bool) {
	if dir != domain.Inbound {
		return "", false
	}
	switch behavior {
	case domain.OpenAny:
		return "", false
	case domain.DontOpen:
		if c.degraded.Load() {
			return "API down: DontOpen mode, barrier not opened", true
		}
		return "DontOpen mode: barrier not opened", true
	}

	now := c.now()
	entries := c.snap.Load().entries
	var first *domain.AuthorizationEntry
	for i := range entries {
		e := &entries[i]
		if e.Plate != plate {
			continue
		}
		if e.ActiveAt(now) {
			return "", false
		}
		if first == nil {
			first = e
		}
	}
	switch {
	case first == nil:
		return fmt.Sprintf("Plate '%s' not found in authorized list", plate), true
	case now.Before(first.Start):
		return fmt.Sprintf("Plate '%s' not yet valid (starts %s)", plate, first.Start.Format("2006-01-02 15:04")), true
	default:
		return fmt.Sprintf("Plate '%s' expired (ended %s)", plate, first.Finish.Format("2006-01-02 15:04")), true
	}
}

// Entries returns a copy of the current snapshot.
func (c *WhitelistCache) Entries() []domain.AuthorizationEntry {
	s := c.snap.Load()
	out := make([]domain.AuthorizationEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// LastRefresh returns when the snapshot was last replaced (zero if never).
func (c *WhitelistCache) LastRefresh() time.Time { return c.snap.Load().at }

// Degraded reports whether the most recent refresh failed for every source.
func (c *WhitelistCache) Degraded() bool { return c.degraded.Load() }
