package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/velinussage/pfp-animate/internal/gateway"
	"github.com/velinussage/pfp-animate/internal/http/handlers"
	"github.com/velinussage/pfp-animate/internal/infra"
)

type idleGateway struct{ calls int }

func (g *idleGateway) Generate(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error) {
	g.calls++
	return nil, nil
}

func (g *idleGateway) Configured() bool     { return true }
func (g *idleGateway) ProviderName() string { return "idle" }

func newTestRouter(rateLimit int) (http.Handler, *idleGateway) {
	gw := &idleGateway{}
	cfg := &infra.Config{
		GatewayProvider:    infra.ProviderReplicate,
		MaxImageBytes:      1 << 20,
		MaxSourceDimension: 2048,
		FrameCostUSD:       0.15,
		RateLimitPerMin:    rateLimit,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		DefaultLocale:      "en",
	}
	app := handlers.NewApp(handlers.Options{Config: cfg, Preprocess: gw, Frames: gw})
	return NewRouter(app, nil), gw
}

func TestRoutes(t *testing.T) {
	router, _ := newTestRouter(0)
	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/v1/healthz", http.StatusOK},
		{http.MethodGet, "/api/presets", http.StatusOK},
		{http.MethodGet, "/api/generate/plan?xSteps=3&ySteps=3", http.StatusOK},
		{http.MethodGet, "/api/motions", http.StatusOK},
		{http.MethodGet, "/api/animate/stream", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/generate/stream", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
		if rec.Code != tt.want {
			t.Fatalf("%s %s = %d, want %d", tt.method, tt.target, rec.Code, tt.want)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s %s: missing request id", tt.method, tt.target)
		}
	}
}

func TestInvalidGridIsLocalized(t *testing.T) {
	router, gw := newTestRouter(0)
	req := httptest.NewRequest(http.MethodPost, "/api/generate/stream", strings.NewReader(`{"xSteps":2,"ySteps":3}`))
	req.Header.Set("Accept-Language", "id-ID,id;q=0.9")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "invalid_grid" || !strings.HasPrefix(body["error"], "ukuran grid") {
		t.Fatalf("body = %v", body)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times", gw.calls)
	}
}

func TestProviderRoutesAreRateLimited(t *testing.T) {
	router, _ := newTestRouter(1)
	send := func(target string) int {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send("/api/preprocess"); code != http.StatusBadRequest {
		t.Fatalf("first request = %d", code)
	}
	if code := send("/api/generate/stream"); code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/presets", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog route must not be limited, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(0)
	req := httptest.NewRequest(http.MethodOptions, "/api/generate/stream", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin = %q", got)
	}
}

// slowGateway answers after delay unless the caller gives up first.
type slowGateway struct {
	delay time.Duration
	out   []byte
}

func (g *slowGateway) Generate(ctx context.Context, image []byte, prompt string, params gateway.Params) ([]byte, error) {
	select {
	case <-time.After(g.delay):
		return g.out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *slowGateway) Configured() bool     { return true }
func (g *slowGateway) ProviderName() string { return "slow" }

func TestPreprocessOutlivesServerWriteTimeout(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	portrait := buf.Bytes()

	cfg := &infra.Config{
		GatewayProvider:    infra.ProviderReplicate,
		MaxImageBytes:      1 << 20,
		MaxSourceDimension: 2048,
		ProviderTimeout:    5 * time.Second,
		HTTPReadTimeout:    time.Second,
		HTTPWriteTimeout:   200 * time.Millisecond,
		HTTPIdleTimeout:    time.Second,
		DefaultLocale:      "en",
	}
	gw := &slowGateway{delay: 600 * time.Millisecond, out: portrait}
	app := handlers.NewApp(handlers.Options{Config: cfg, Preprocess: gw, Frames: gw})
	server := infra.NewHTTPServer(cfg, NewRouter(app, nil), *infra.NopLogger())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = server.Serve(l) }()
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })

	body := `{"imageBase64":"` + base64.StdEncoding.EncodeToString(portrait) + `"}`
	resp, err := http.Post("http://"+l.Addr().String()+"/api/preprocess", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("no response: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Success     bool   `json:"success"`
		ImageBase64 string `json:"imageBase64"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || out.ImageBase64 != base64.StdEncoding.EncodeToString(portrait) {
		t.Fatalf("response = %+v", out)
	}
}
