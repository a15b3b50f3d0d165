package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/barrier-gateway/internal/config"
	"github.com/tbourn/barrier-gateway/internal/domain"
	"github.com/tbourn/barrier-gateway/internal/repo"
	"github.com/tbourn/barrier-gateway/internal/services"
)

// ---------- test env ----------

type fakeActuator struct {
	ok     atomic.Bool
	pulses atomic.Int32
}

func (a *fakeActuator) Pulse(context.Context, string, string, int) bool {
	a.pulses.Add(1)
	return a.ok.Load()
}

func (a *fakeActuator) Probe(context.Context, string, string) domain.Liveness {
	return domain.LivenessUp
}

type stubWhitelist struct {
	entries  []domain.AuthorizationEntry
	refresh  bool
	calls    int
	degraded bool
	at       time.Time
}

func (w *stubWhitelist) Refresh(context.Context) bool {
	w.calls++
	if w.refresh {
		w.at = time.Now()
	}
	w.degraded = !w.refresh
	return w.refresh
}
func (w *stubWhitelist) Entries() []domain.AuthorizationEntry { return w.entries }
func (w *stubWhitelist) LastRefresh() time.Time               { return w.at }
func (w *stubWhitelist) Degraded() bool                       { return w.degraded }
func (w *stubWhitelist) Reason(string, domain.Direction, domain.APIDownBehavior) (string, bool) {
	return "", false
}

type testEnv struct {
	r   *gin.Engine
	db  *gorm.DB
	act *fakeActuator
	wl  *stubWhitelist
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.Migrate(db, repo.ModeKeep); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T, reactive bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	ledger := repo.GormLedger{DB: db}
	act := &fakeActuator{}
	act.ok.Store(true)
	wl := &stubWhitelist{refresh: true}

	fleet := services.BuildFleet([]config.BarrierConfig{
		{Name: "Barrier1", Endpoint: "http://gate1", Cron: "@every 1m", LaneID: 1, Camera: "101", DefaultDirection: "out"},
		{Name: "Barrier2", Endpoint: "http://gate2", Cron: "@every 1m", LaneID: 2, Camera: "102", DefaultDirection: "out"},
	}, config.DispatchConfig{SweepRetries: 3}, ledger, wl, act)
	gw := services.NewGateway(fleet, ledger, services.NewDuplicateSuppressor(30*time.Second, 0), reactive)

	h := New(gw, fleet, wl, services.NewTransactionService(db))
	r := gin.New()
	r.POST("/camera", h.PostCamera)
	r.GET("/barriers", h.ListBarriers)
	r.POST("/barriers/:name/pulse", h.PulseBarrier)
	r.PUT("/barriers/:name/enabled", h.SetBarrierEnabled)
	r.GET("/whitelist", h.GetWhitelist)
	r.POST("/whitelist/refresh", h.RefreshWhitelist)
	r.GET("/transactions", h.ListTransactions)
	r.GET("/transactions/:id", h.GetTransaction)
	return &testEnv{r: r, db: db, act: act, wl: wl}
}

func (e *testEnv) do(method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return v
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	n, err := repo.CountTransactions(context.Background(), db, repo.TransactionFilter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
