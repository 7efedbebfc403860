package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/spider/internal/clock/system"
	"github.com/JakeFAU/spider/internal/extract"
	"github.com/JakeFAU/spider/internal/pool"
	"github.com/JakeFAU/spider/internal/storage"
	"github.com/JakeFAU/spider/internal/storage/memory"
	"github.com/JakeFAU/spider/internal/task"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	pages map[string]extract.Response
}

func (f *fakeFetcher) Get(_ context.Context, url string) (extract.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	resp, ok := f.pages[url]
	if !ok {
		return extract.Response{}, errors.New("connection refused")
	}
	return resp, nil
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("task-%d", s.n)
}

type harness struct {
	pipeline *Pipeline
	pool     *pool.Fixed
	sink     *memory.Sink
	fetcher  *fakeFetcher
	clock    *system.Frozen

	mu       sync.Mutex
	records  []Record
	failures map[string]error
}

func newHarness(t *testing.T, pages map[string]extract.Response) *harness {
	t.Helper()
	h := &harness{
		pool:     pool.NewFixed(pool.FixedConfig{Workers: 2}),
		sink:     memory.NewSink(),
		fetcher:  &fakeFetcher{pages: pages},
		clock:    system.NewFrozen(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
		failures: map[string]error{},
	}
	t.Cleanup(func() { _ = h.pool.Shutdown(context.Background()) })

	p, err := New(Config{
		Pool:    h.pool,
		Fetcher: h.fetcher,
		Sink:    h.sink,
		Clock:   h.clock,
		IDs:     &seqIDs{},
		OnRecord: func(r Record) {
			h.mu.Lock()
			h.records = append(h.records, r)
			h.mu.Unlock()
		},
		OnFailure: func(url string, err error) {
			h.mu.Lock()
			h.failures[url] = err
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func TestPipelineCrawlsAndPersists(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]extract.Response{
		"https://example.com/a?x=1": {
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"text/html"}, "Content-Length": {"300"}},
		},
		"http://other.org/": {StatusCode: http.StatusNotFound, Body: []byte("gone")},
	})
	ctx := context.Background()

	id, err := h.pipeline.Enqueue(ctx, "https://EXAMPLE.com/a?x=1#frag")
	require.NoError(t, err)
	require.Equal(t, "task-1", id)
	_, err = h.pipeline.Enqueue(ctx, "http://other.org/")
	require.NoError(t, err)

	require.NoError(t, h.pipeline.Wait(ctx))
	require.Equal(t, Stats{Submitted: 2, Succeeded: 2}, h.pipeline.Stats())

	sites := h.sink.Sites()
	require.Len(t, sites, 2)
	byDomain := map[string]storage.Site{}
	for _, s := range sites {
		byDomain[s.Domain] = s
	}
	require.True(t, byDomain["example.com"].UseSSL)
	require.False(t, byDomain["other.org"].UseSSL)

	links := h.sink.Links(byDomain["example.com"].ID)
	require.Len(t, links, 1)
	require.Equal(t, "/a?x=1", links[0].Path)
	require.Equal(t, int64(300), links[0].Size)
	require.Equal(t, h.clock.Now(), links[0].FetchedAt)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.records, 2)
	for _, rec := range h.records {
		require.NotEmpty(t, rec.TaskID)
		if rec.Link.Domain == "other.org" {
			require.Equal(t, http.StatusNotFound, rec.Page.StatusCode)
			require.Equal(t, int64(4), rec.Page.ContentLength)
		}
	}
}

func TestPipelineReportsFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.pipeline.Enqueue(ctx, "not a url")
	require.NoError(t, err)
	_, err = h.pipeline.Enqueue(ctx, "https://down.example/")
	require.NoError(t, err)
	require.NoError(t, h.pipeline.Wait(ctx))

	require.Equal(t, Stats{Submitted: 2, Failed: 2}, h.pipeline.Stats())
	require.Empty(t, h.sink.Sites())

	h.mu.Lock()
	defer h.mu.Unlock()
	var parseErr *extract.ParseError
	require.ErrorAs(t, h.failures["not a url"], &parseErr)
	var fetchErr *extract.FetchError
	require.ErrorAs(t, h.failures["https://down.example/"], &fetchErr)
}

func TestPipelineSweepReenqueues(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]extract.Response{
		"https://example.com/": {StatusCode: http.StatusOK},
	})
	sweep := h.pipeline.Sweep([]string{"https://example.com/"})
	ctx := context.Background()

	require.NoError(t, sweep(ctx))
	require.NoError(t, sweep(ctx))
	require.NoError(t, h.pipeline.Wait(ctx))

	require.Equal(t, int64(2), h.pipeline.Stats().Succeeded)
	require.Len(t, h.sink.Sites(), 1)
	require.Len(t, h.sink.Links(h.sink.Sites()[0].ID), 2)
}

func TestPipelineSubmitFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.pool.Shutdown(context.Background()))

	_, err := h.pipeline.Enqueue(context.Background(), "https://example.com/")
	require.ErrorIs(t, err, pool.ErrPoolClosed)
	require.NoError(t, h.pipeline.Wait(context.Background()))
	require.Zero(t, h.pipeline.Stats().Submitted)

	err = h.pipeline.Sweep([]string{"https://a.example/", "https://b.example/"})(context.Background())
	require.ErrorIs(t, err, pool.ErrPoolClosed)
}

func TestPipelineWaitHonorsContext(t *testing.T) {
	t.Parallel()

	blocking := submitterFunc(func(_ context.Context, _ task.Task) error { return nil })
	p, err := New(Config{
		Pool:    blocking,
		Fetcher: &fakeFetcher{},
		Sink:    memory.NewSink(),
		Clock:   system.New(),
		IDs:     &seqIDs{},
	})
	require.NoError(t, err)
	_, err = p.Enqueue(context.Background(), "https://example.com/")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.ErrorContains(t, err, "requires a pool")
	_, err = New(Config{Pool: submitterFunc(nil)})
	require.ErrorContains(t, err, "requires a fetcher")
	_, err = New(Config{Pool: submitterFunc(nil), Fetcher: &fakeFetcher{}})
	require.ErrorContains(t, err, "requires a sink")
	_, err = New(Config{Pool: submitterFunc(nil), Fetcher: &fakeFetcher{}, Sink: memory.NewSink()})
	require.ErrorContains(t, err, "requires a clock")
	_, err = New(Config{Pool: submitterFunc(nil), Fetcher: &fakeFetcher{}, Sink: memory.NewSink(), Clock: system.New()})
	require.ErrorContains(t, err, "requires an id generator")
}

type submitterFunc func(ctx context.Context, t task.Task) error

func (f submitterFunc) Submit(ctx context.Context, t task.Task) error { return f(ctx, t) }
