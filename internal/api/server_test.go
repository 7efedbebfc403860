package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/config"
	"github.com/JakeFAU/spider/internal/crawl"
	"github.com/JakeFAU/spider/internal/pool"
	pubmemory "github.com/JakeFAU/spider/internal/publisher/memory"
	"github.com/JakeFAU/spider/internal/timer"
)

func TestServer_SubmitCrawl_Succeeds(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{}
	server := newTestServer(Deps{Crawler: crawler, Pool: fakePool{}})

	reqBody := []byte(`{"urls":["https://example.com","http://example.org/a"]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp crawlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"task-1", "task-2"}, resp.TaskIDs)
	require.Equal(t, []string{"https://example.com", "http://example.org/a"}, crawler.enqueued())
}

func TestServer_SubmitCrawl_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{Crawler: &fakeCrawler{}, Pool: fakePool{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitCrawl_MissingURLs(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{Crawler: &fakeCrawler{}, Pool: fakePool{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", bytes.NewBufferString(`{"urls":[]}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "urls required")
}

func TestServer_SubmitCrawl_MapsPoolErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "full", err: pool.ErrPoolFull, want: http.StatusTooManyRequests},
		{name: "closed", err: fmt.Errorf("submit x: %w", pool.ErrPoolClosed), want: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusRequestTimeout},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(Deps{Crawler: &fakeCrawler{failAfter: 1, err: tt.err}, Pool: fakePool{}})
			req := httptest.NewRequest(http.MethodPost, "/v1/crawl",
				bytes.NewBufferString(`{"urls":["https://a.example","https://b.example"]}`))
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code)
			require.Contains(t, rec.Body.String(), "task-1")
		})
	}
}

func TestServer_PoolState(t *testing.T) {
	t.Parallel()

	crawler := &fakeCrawler{stats: crawl.Stats{Submitted: 3, Succeeded: 2, Failed: 1}}
	server := newTestServer(Deps{Crawler: crawler, Pool: fakePool{state: pool.State{
		Kind:     "fixed",
		Status:   pool.StatusRunning,
		Capacity: 4,
		Queued:   2,
	}}})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pool", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Pool  pool.State  `json:"pool"`
		Crawl crawl.Stats `json:"crawl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "fixed", body.Pool.Kind)
	require.Equal(t, 4, body.Pool.Capacity)
	require.Equal(t, int64(1), body.Crawl.Failed)
}

func TestServer_SweepRoutes(t *testing.T) {
	t.Parallel()

	sweep := timer.New(nil, timer.WithInterval(time.Minute))
	server := newTestServer(Deps{Crawler: &fakeCrawler{}, Pool: fakePool{}, Sweep: sweep})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sweep", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"interval_seconds":60`)
	require.Contains(t, rec.Body.String(), `"status":"stopped"`)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/v1/sweep/interval",
		bytes.NewBufferString(`{"seconds":90}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 90*time.Second, sweep.Interval())

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/v1/sweep/interval",
		bytes.NewBufferString(`{"seconds":0}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 90*time.Second, sweep.Interval())
}

func TestServer_SweepDisabled(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{Crawler: &fakeCrawler{}, Pool: fakePool{}})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/v1/sweep/interval",
		bytes.NewBufferString(`{"seconds":5}`)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sweep", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Readiness(t *testing.T) {
	t.Parallel()

	ready := newTestServer(Deps{Crawler: &fakeCrawler{}, Pool: fakePool{}})
	rec := httptest.NewRecorder()
	ready.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	notReady := newTestServer(Deps{
		Crawler: &fakeCrawler{},
		Pool:    fakePool{},
		Ready:   func(context.Context) error { return errors.New("pool is closed") },
	})
	rec = httptest.NewRecorder()
	notReady.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "pool is closed")
}

func TestServer_Notifications(t *testing.T) {
	t.Parallel()

	pub := pubmemory.New()
	_, err := pub.Publish(context.Background(), "links", map[string]string{"link": "/a"})
	require.NoError(t, err)

	server := newTestServer(Deps{
		Crawler: &fakeCrawler{},
		Pool:    fakePool{},
		Notifications: func() ([]pubmemory.PublishedMessage, bool) {
			return pub.Messages(), true
		},
	})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/notifications", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"link":"/a"`)

	server = newTestServer(Deps{Crawler: &fakeCrawler{}, Pool: fakePool{}})
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/notifications", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{Crawler: &fakeCrawler{}, Pool: fakePool{}})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "spider_http_requests_total")
}

func TestServer_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	server := newTestServer(Deps{Crawler: panicCrawler{}, Pool: fakePool{}})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pool", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Auth: config.AuthConfig{
			Enabled: true,
			APIKey:  "secret",
		},
	}
	server := NewServer(Deps{Crawler: &fakeCrawler{}, Pool: fakePool{}}, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz?api_key=secret", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(Deps{Crawler: &fakeCrawler{}, Pool: fakePool{}}).Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeCrawler struct {
	mu        sync.Mutex
	urls      []string
	failAfter int
	err       error
	stats     crawl.Stats
}

func (f *fakeCrawler) Enqueue(_ context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && len(f.urls) >= f.failAfter {
		return "", f.err
	}
	f.urls = append(f.urls, rawURL)
	return fmt.Sprintf("task-%d", len(f.urls)), nil
}

func (f *fakeCrawler) Stats() crawl.Stats {
	return f.stats
}

func (f *fakeCrawler) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type panicCrawler struct{}

func (panicCrawler) Enqueue(context.Context, string) (string, error) { return "", nil }

func (panicCrawler) Stats() crawl.Stats { panic("stats unavailable") }

type fakePool struct {
	state pool.State
}

func (p fakePool) State() pool.State { return p.state }

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(deps Deps) *Server {
	return NewServer(deps, config.Config{}, zap.NewNop())
}
