package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
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

type okActuator struct{}

func (okActuator) Pulse(context.Context, string, string, int) bool { return true }
func (okActuator) Probe(context.Context, string, string) domain.Liveness {
	return domain.LivenessUp
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
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

func newDeps(t *testing.T) Deps {
	t.Helper()
	db := newTestDB(t)
	ledger := repo.GormLedger{DB: db}
	wl := services.NewWhitelistCache(nil, nil, time.Second)
	fleet := services.BuildFleet([]config.BarrierConfig{
		{Name: "Barrier1", Endpoint: "http://gate1", Cron: "@every 1m", LaneID: 1, Camera: "101"},
	}, config.DispatchConfig{}, ledger, wl, okActuator{})
	return Deps{
		Ingest:       services.NewGateway(fleet, ledger, services.NewDuplicateSuppressor(30*time.Second, 0), true),
		Barriers:     fleet,
		Whitelist:    wl,
		Transactions: services.NewTransactionService(db),
	}
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath: "/api",
		RateRPS:     100,
		RateBurst:   50,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newDeps(t), cfg)
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newRouter(t, baseConfig())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected request id and security headers, got %v", w.Header())
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("http_requests_total")) {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/nope", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodPost, "/health", nil)); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := baseConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://ops.example.com"}}
	r := newRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://ops.example.com")
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://ops.example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_CameraToLedger(t *testing.T) {
	r := newRouter(t, baseConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/camera", bytes.NewBufferString(`{"vrm":"AB12CDE","cameraSerial":"101","direction":"out"}`))
	req.Header.Set("Content-Type", "application/json")
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("POST /api/camera = %d %s", w.Code, w.Body.String())
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/transactions = %d", w.Code)
	}
	var body struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Transactions) != 1 || body.Transactions[0].Plate != "AB12CDE" || !body.Transactions[0].Sent {
		t.Fatalf("expected one sent row, got %+v", body.Transactions)
	}
	if got := w.Header().Get("Cache-Control"); got != "private, no-cache" {
		t.Fatalf("transactions Cache-Control = %q", got)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/barriers", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"last_plate":"AB12CDE"`)) {
		t.Fatalf("GET /api/barriers = %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("barriers Cache-Control = %q", got)
	}
}

func TestRegisterRoutes_BasicAuth(t *testing.T) {
	cfg := baseConfig()
	cfg.Auth = config.AuthConfig{Username: "ops", Password: "secret"}
	r := newRouter(t, cfg)

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/api/barriers", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/barriers", nil)
	req.SetBasicAuth("ops", "secret")
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusOK {
		t.Fatalf("/health must stay public, got %d", w.Code)
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	r := newRouter(t, baseConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/whitelist", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := serve(r, req)
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip response, got %d %q", w.Code, w.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, _ := io.ReadAll(zr)
	if !bytes.Contains(raw, []byte(`"entries"`)) {
		t.Fatalf("unexpected body %s", raw)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := baseConfig()
	cfg.SwaggerEnabled = true
	r := newRouter(t, cfg)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("/barriers/{name}/pulse")) {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
}

func TestRegisterRoutes_RateLimitExemptsHealth(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	r := newRouter(t, cfg)

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/api/barriers", nil)); w.Code != http.StatusOK {
		t.Fatalf("first call = %d", w.Code)
	}
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/api/barriers", nil)); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second call = %d, want 429", w.Code)
	}
	for i := 0; i < 3; i++ {
		if w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusOK {
			t.Fatalf("/health limited: %d", w.Code)
		}
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := serve(r, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}

func Test_apiPath(t *testing.T) {
	for _, tc := range []struct{ prefix, want string }{
		{"", "/transactions"},
		{"/", "/transactions"},
		{"/api", "/api/transactions"},
		{"/api/", "/api/transactions"},
	} {
		if got := apiPath(tc.prefix, "/transactions"); got != tc.want {
			t.Fatalf("apiPath(%q) = %q; want %q", tc.prefix, got, tc.want)
		}
	}
}
