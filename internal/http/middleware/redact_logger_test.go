package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactingLogger_InfoAndRedactions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/transactions/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	q := "plate=AB12CDE&lane_id=1&contact=a.b+tag@example.com&ref=123e4567-e89b-12d3-a456-426614174000"
	req := httptest.NewRequest(http.MethodGet, "/transactions/7?"+q, nil)
	req.Header.Set("Authorization", "Basic b3BzOnNlY3JldA==")
	req.Header.Set("Cookie", "sid=topsecret")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set("X-Custom", "mail a@b.com id=123e4567-e89b-12d3-a456-426614174000")
	req.Header.Set(requestIDHeader, "rid-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	logs := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"path":"/transactions/:id"`,
		`"request_id":"rid-1"`,
		`plate=[REDACTED]`,
		`lane_id=1`,
		`[REDACTED:email]`,
		`[REDACTED:id]`,
		`"Authorization":"[REDACTED]"`,
		`"Cookie":"[REDACTED]"`,
		`"X-Api-Key":"[REDACTED]"`,
		`"X-Custom":"mail [REDACTED:email] id=[REDACTED:id]"`,
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("missing %s in log: %s", want, logs)
		}
	}
	if strings.Contains(logs, "AB12CDE") {
		t.Fatalf("plate leaked into log: %s", logs)
	}
}

func TestRedactingLogger_CustomQueryMask(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{MaskQueryParams: []string{"Token"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x?token=abc&plate=XY1", nil))

	logs := buf.String()
	if !strings.Contains(logs, "token=[REDACTED]") || !strings.Contains(logs, "plate=XY1") {
		t.Fatalf("custom mask should replace the default: %s", logs)
	}
}

func TestRedactingLogger_Levels_AndOperator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	authed := r.Group("", gin.BasicAuth(gin.Accounts{"ops": "pw"}))
	authed.GET("/warn", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/error", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	reqWarn := httptest.NewRequest(http.MethodGet, "/warn", nil)
	reqWarn.SetBasicAuth("ops", "pw")
	reqWarn.Header.Set(requestIDHeader, "rid-warn")
	r.ServeHTTP(httptest.NewRecorder(), reqWarn)

	reqErr := httptest.NewRequest(http.MethodGet, "/error", nil)
	reqErr.Header.Set(requestIDHeader, "rid-err")
	r.ServeHTTP(httptest.NewRecorder(), reqErr)

	logs := buf.String()
	if !strings.Contains(logs, `"level":"warn"`) || !strings.Contains(logs, `"request_id":"rid-warn"`) || !strings.Contains(logs, `"operator":"ops"`) {
		t.Fatalf("warn log missing fields: %s", logs)
	}
	if !strings.Contains(logs, `"level":"error"`) || !strings.Contains(logs, `"request_id":"rid-err"`) {
		t.Fatalf("error log missing fields: %s", logs)
	}
}

func TestRedactQuery(t *testing.T) {
	mask := lowerSet(nil, []string{"plate"})
	if got := redactQuery("", mask); got != "" {
		t.Fatalf("empty query = %q", got)
	}
	if got := redactQuery("PLATE=AB1&page=2", mask); got != "PLATE=[REDACTED]&page=2" {
		t.Fatalf("got %q", got)
	}
	if got := redactQuery("bad=%zz&plate=AB1", mask); strings.Contains(got, "[REDACTED]") {
		t.Fatalf("unparseable query should only be pattern-redacted, got %q", got)
	}
}
