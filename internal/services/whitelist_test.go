package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/barrier-gateway/internal/config"
	"github.com/tbourn/barrier-gateway/internal/domain"
)

// ---------- helpers ----------

type wireItem struct {
	Plate  string `json:"plate"`
	Start  string `json:"start"`
	Finish string `json:"finish"`
}

func whitelistServer(t *testing.T, user, pass string, items []wireItem) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(items)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func rfc(t time.Time) string { return t.Format(time.RFC3339) }

func cacheWith(entries ...domain.AuthorizationEntry) *WhitelistCache {
	c := NewWhitelistCache(nil, nil, time.Second)
	c.snap.Store(&whitelistSnapshot{entries: entries, at: time.Now()})
	return c
}

// ---------- Refresh ----------

func TestWhitelist_Refresh_MergesSourcesWithBasicAuth(t *testing.T) {
	now := time.Now()
	a := whitelistServer(t, "alice", "s3cret", []wireItem{{"AAA111", rfc(now.Add(-time.Hour)), rfc(now.Add(time.Hour))}})
	b := whitelistServer(t, "", "", []wireItem{{"BBB222", rfc(now.Add(-time.Hour)), rfc(now.Add(time.Hour))}})

	c := NewWhitelistCache([]config.WhitelistSource{
		{Name: "a", URL: a.URL, Username: "alice", Password: "s3cret"},
		{Name: "b", URL: b.URL},
	}, nil, 2*time.Second)

	if !c.Refresh(context.Background()) {
		t.Fatal("refresh should succeed")
	}
	if got := len(c.Entries()); got != 2 {
		t.Fatalf("want 2 merged entries, got %d", got)
	}
	if c.Degraded() {
		t.Fatal("cache must not be degraded after success")
	}
	if c.LastRefresh().IsZero() {
		t.Fatal("LastRefresh not set")
	}
	for _, p := range []string{"AAA111", "BBB222"} {
		if !c.IsValid(p, domain.Inbound, domain.UseHistoric) {
			t.Fatalf("%s should be valid", p)
		}
	}
}

func TestWhitelist_Refresh_PartialFailureStillSucceeds(t *testing.T) {
	now := time.Now()
	good := whitelistServer(t, "", "", []wireItem{{"GOOD1", rfc(now.Add(-time.Hour)), rfc(now.Add(time.Hour))}})
	bad := failingServer(t, http.StatusInternalServerError)
	wrongCreds := whitelistServer(t, "u", "p", nil)

	c := NewWhitelistCache([]config.WhitelistSource{
		{Name: "bad", URL: bad.URL},
		{Name: "good", URL: good.URL},
		{Name: "creds", URL: wrongCreds.URL, Username: "u", Password: "nope"},
	}, nil, 2*time.Second)

	if !c.Refresh(context.Background()) {
		t.Fatal("one good source must make refresh succeed")
	}
	if len(c.Entries()) != 1 || c.Entries()[0].Plate != "GOOD1" {
		t.Fatalf("unexpected entries %+v", c.Entries())
	}
}

func TestWhitelist_Refresh_AllFailKeepsSnapshot(t *testing.T) {
	now := time.Now()
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]wireItem{{"KEEP1", rfc(now.Add(-time.Hour)), rfc(now.Add(time.Hour))}})
	}))
	defer srv.Close()

	c := NewWhitelistCache([]config.WhitelistSource{{Name: "only", URL: srv.URL}}, nil, time.Second)
	if !c.Refresh(context.Background()) {
		t.Fatal("initial refresh should succeed")
	}
	before := c.LastRefresh()

	fail.Store(true)
	if c.Refresh(context.Background()) {
		t.Fatal("refresh must report failure when every source fails")
	}
	if !c.Degraded() {
		t.Fatal("cache should be degraded")
	}
	if !c.IsValid("KEEP1", domain.Inbound, domain.UseHistoric) {
		t.Fatal("entry present before failed refresh must still be present")
	}
	if !c.LastRefresh().Equal(before) {
		t.Fatal("LastRefresh must not move on failure")
	}
}

func TestWhitelist_Refresh_NoSources(t *testing.T) {
	c := NewWhitelistCache(nil, nil, time.Second)
	if c.Refresh(context.Background()) {
		t.Fatal("refresh without sources must fail")
	}
}

func TestWhitelist_Refresh_BadJSONCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	c := NewWhitelistCache([]config.WhitelistSource{{Name: "x", URL: srv.URL}}, nil, time.Second)
	if c.Refresh(context.Background()) {
		t.Fatal("undecodable body must fail")
	}
}

func TestWhitelist_Refresh_LegacyTimestampsAndCaseInsensitiveKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"Plate":"OLD1","Start":"2000-01-01T00:00:00","Finish":"2999-12-31T23:59:59"},
			{"plate":"OLD2","start":"2000-01-01 00:00:00","finish":"2999-12-31"},
			{"plate":"BROKEN","start":"yesterday","finish":"tomorrow"}
		]`))
	}))
	defer srv.Close()

	c := NewWhitelistCache([]config.WhitelistSource{{Name: "legacy", URL: srv.URL}}, nil, time.Second)
	if !c.Refresh(context.Background()) {
		t.Fatal("refresh should succeed")
	}
	if got := len(c.Entries()); got != 2 {
		t.Fatalf("want 2 parsed entries (broken one skipped), got %d", got)
	}
	for _, p := range []string{"OLD1", "OLD2"} {
		if !c.IsValid(p, domain.Inbound, domain.UseHistoric) {
			t.Fatalf("%s should be valid", p)
		}
	}
}

func TestWhitelist_Refresh_NonReentrant(t *testing.T) {
	var inflight, maxSeen atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewWhitelistCache([]config.WhitelistSource{{Name: "slow", URL: srv.URL}}, nil, 2*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Refresh(context.Background()) {
				t.Error("refresh failed")
			}
		}()
	}
	wg.Wait()
	if got := maxSeen.Load(); got != 1 {
		t.Fatalf("refreshes overlapped: max in-flight %d", got)
	}
}

// ---------- IsValid / Reason ----------

func TestWhitelist_OutboundAlwaysValid(t *testing.T) {
	c := cacheWith()
	for _, b := range []domain.APIDownBehavior{domain.UseHistoric, domain.OpenAny, domain.DontOpen} {
		if !c.IsValid("ANY", domain.Outbound, b) {
			t.Fatalf("outbound must be valid under %s", b)
		}
		if r, denied := c.Reason("ANY", domain.Outbound, b); denied || r != "" {
			t.Fatalf("outbound must have no reason under %s, got %q", b, r)
		}
	}
}

func TestWhitelist_OpenAny(t *testing.T) {
	c := cacheWith()
	if !c.IsValid("NOPE", domain.Inbound, domain.OpenAny) {
		t.Fatal("OpenAny must allow")
	}
	if _, denied := c.Reason("NOPE", domain.Inbound, domain.OpenAny); denied {
		t.Fatal("OpenAny must not give a reason")
	}
}

func TestWhitelist_DontOpen(t *testing.T) {
	now := time.Now()
	c := cacheWith(domain.AuthorizationEntry{Plate: "AB12CDE", Start: now.Add(-time.Hour), Finish: now.Add(time.Hour)})

	if c.IsValid("AB12CDE", domain.Inbound, domain.DontOpen) {
		t.Fatal("DontOpen must deny even whitelisted plates")
	}
	r, denied := c.Reason("AB12CDE", domain.Inbound, domain.DontOpen)
	if !denied || r == "" {
		t.Fatal("DontOpen must always give a reason")
	}
	if strings.HasPrefix(r, "API down") {
		t.Fatalf("healthy cache must not report API down, got %q", r)
	}

	c.degraded.Store(true)
	r, _ = c.Reason("AB12CDE", domain.Inbound, domain.DontOpen)
	if !strings.HasPrefix(r, "API down") {
		t.Fatalf("degraded cache must report API down, got %q", r)
	}
}

func TestWhitelist_UseHistoric_Reasons(t *testing.T) {
	now := time.Now()
	c := cacheWith(
		domain.AuthorizationEntry{Plate: "VALID1", Start: now.Add(-time.Hour), Finish: now.Add(time.Hour)},
		domain.AuthorizationEntry{Plate: "FUTURE1", Start: now.Add(time.Hour), Finish: now.Add(2 * time.Hour)},
		domain.AuthorizationEntry{Plate: "AB12CDE", Start: now.Add(-time.Hour), Finish: now.Add(-time.Minute)},
	)

	cases := []struct {
		plate, want string
		valid       bool
	}{
		{"VALID1", "", true},
		{"valid1", "not found", false},
		{"MISSING", "not found", false},
		{"FUTURE1", "not yet valid", false},
		{"AB12CDE", "expired", false},
	}
	for _, tc := range cases {
		if got := c.IsValid(tc.plate, domain.Inbound, domain.UseHistoric); got != tc.valid {
			t.Fatalf("%s: IsValid=%v want %v", tc.plate, got, tc.valid)
		}
		r, denied := c.Reason(tc.plate, domain.Inbound, domain.UseHistoric)
		if denied == tc.valid {
			t.Fatalf("%s: denied=%v inconsistent with valid=%v", tc.plate, denied, tc.valid)
		}
		if !strings.Contains(r, tc.want) {
			t.Fatalf("%s: reason %q does not contain %q", tc.plate, r, tc.want)
		}
	}
}

func TestWhitelist_UseHistoric_AnyMatchingEntryCounts(t *testing.T) {
	now := time.Now()
	c := cacheWith(
		domain.AuthorizationEntry{Plate: "TWICE", Start: now.Add(-2 * time.Hour), Finish: now.Add(-time.Hour)},
		domain.AuthorizationEntry{Plate: "TWICE", Start: now.Add(-time.Minute), Finish: now.Add(time.Minute)},
	)
	if !c.IsValid("TWICE", domain.Inbound, domain.UseHistoric) {
		t.Fatal("a later active entry must make the plate valid")
	}
}

func TestWhitelist_UnknownBehaviorActsAsUseHistoric(t *testing.T) {
	c := cacheWith()
	if c.IsValid("X", domain.Inbound, domain.APIDownBehavior("whatever")) {
		t.Fatal("unknown policy must fall back to UseHistoric and deny unknown plates")
	}
}

func TestWhitelist_EntriesIsACopy(t *testing.T) {
	c := cacheWith(domain.AuthorizationEntry{Plate: "A"})
	e := c.Entries()
	e[0].Plate = "mutated"
	if c.Entries()[0].Plate != "A" {
		t.Fatal("Entries must not expose the snapshot")
	}
}
