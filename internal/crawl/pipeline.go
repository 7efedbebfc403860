// Package crawl turns URLs into pool tasks that extract link and page
// metadata and persist them through a storage.Sink.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/spider/internal/extract"
	"github.com/JakeFAU/spider/internal/storage"
	"github.com/JakeFAU/spider/internal/task"
	"github.com/JakeFAU/spider/internal/timer"
)

// TaskName labels crawl tasks in logs and metrics.
const TaskName = "crawl_page"

// Submitter accepts tasks for execution.
type Submitter interface {
	Submit(ctx context.Context, t task.Task) error
}

// Clock supplies fetch timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies task ids.
type IDGenerator interface {
	TaskID() string
}

// Record is the result of crawling one URL.
type Record struct {
	TaskID    string               `json:"task_id"`
	URL       string               `json:"url"`
	Link      extract.LinkMetadata `json:"link"`
	Page      extract.PageMetadata `json:"page"`
	SiteID    int64                `json:"site_id"`
	LinkID    int64                `json:"link_id"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// Stats counts pipeline outcomes.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Config wires a Pipeline.
type Config struct {
	Pool    Submitter
	Fetcher extract.Fetcher
	Sink    storage.Sink
	Clock   Clock
	IDs     IDGenerator
	Logger  *zap.Logger
	// OnRecord and OnFailure observe task outcomes. Both are optional.
	OnRecord  func(Record)
	OnFailure func(url string, err error)
}

// Pipeline submits crawl tasks and tracks their completion.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger

	pending   sync.WaitGroup
	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// New validates cfg and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Pool == nil:
		return nil, errors.New("crawl pipeline requires a pool")
	case cfg.Fetcher == nil:
		return nil, errors.New("crawl pipeline requires a fetcher")
	case cfg.Sink == nil:
		return nil, errors.New("crawl pipeline requires a sink")
	case cfg.Clock == nil:
		return nil, errors.New("crawl pipeline requires a clock")
	case cfg.IDs == nil:
		return nil, errors.New("crawl pipeline requires an id generator")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, logger: logger.With(zap.String("component", "crawl"))}, nil
}

// Enqueue submits one crawl task for rawURL and returns its task id.
// Malformed URLs are still submitted; the task reports the ParseError.
func (p *Pipeline) Enqueue(ctx context.Context, rawURL string) (string, error) {
	target := rawURL
	if _, err := extract.LinkInfo(rawURL); err == nil {
		if normalized, err := extract.NormalizeURL(rawURL); err == nil {
			target = normalized
		}
	}
	id := p.cfg.IDs.TaskID()
	t := task.New(TaskName, p.run, target).
		WithID(id).
		WithCallbacks(
			func(v any) { p.succeed(id, target, v) },
			func(err error) { p.fail(target, err) },
		)

	p.pending.Add(1)
	if err := p.cfg.Pool.Submit(ctx, t); err != nil {
		p.pending.Done()
		return "", fmt.Errorf("submit %s: %w", target, err)
	}
	p.submitted.Add(1)
	return id, nil
}

// Wait blocks until every enqueued task has reported or ctx ends. Tasks
// abandoned by a pool shutdown never report.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for crawl tasks: %w", ctx.Err())
	}
}

// Stats returns a snapshot of outcome counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
}

// Sweep returns a timer handler that re-enqueues urls on every tick.
func (p *Pipeline) Sweep(urls []string) timer.Handler {
	batch := append([]string(nil), urls...)
	return func(ctx context.Context) error {
		var errs []error
		for _, u := range batch {
			if _, err := p.Enqueue(ctx, u); err != nil {
				errs = append(errs, err)
			}
		}
		p.logger.Info("sweep enqueued", zap.Int("urls", len(batch)), zap.Int("failed", len(errs)))
		return errors.Join(errs...)
	}
}

func (p *Pipeline) run(ctx context.Context, args task.Args) (any, error) {
	rawURL, err := args.String(0, "url")
	if err != nil {
		return nil, err
	}
	link, err := extract.LinkInfo(rawURL)
	if err != nil {
		return nil, err
	}
	page, err := extract.PageInfo(ctx, p.cfg.Fetcher, rawURL)
	if err != nil {
		return nil, err
	}
	path, err := extract.RequestPath(rawURL)
	if err != nil {
		return nil, err
	}

	siteID, err := p.cfg.Sink.SaveSite(ctx, storage.Site{Name: link.Domain, Domain: link.Domain, UseSSL: link.UseSSL})
	if err != nil {
		return nil, fmt.Errorf("save site: %w", err)
	}
	fetchedAt := p.cfg.Clock.Now()
	linkID, err := p.cfg.Sink.SaveLink(ctx, siteID, storage.Link{Path: path, Size: page.ContentLength, FetchedAt: fetchedAt})
	if err != nil {
		return nil, fmt.Errorf("save link: %w", err)
	}
	return Record{
		URL:       rawURL,
		Link:      link,
		Page:      page,
		SiteID:    siteID,
		LinkID:    linkID,
		FetchedAt: fetchedAt,
	}, nil
}

func (p *Pipeline) succeed(id, url string, v any) {
	rec, ok := v.(Record)
	if !ok {
		p.fail(url, fmt.Errorf("unexpected crawl result %T", v))
		return
	}
	defer p.pending.Done()
	rec.TaskID = id
	p.succeeded.Add(1)
	p.logger.Info("page crawled",
		zap.String("url", url),
		zap.Int("status", rec.Page.StatusCode),
		zap.Int64("size", rec.Page.ContentLength))
	if p.cfg.OnRecord != nil {
		p.cfg.OnRecord(rec)
	}
}

func (p *Pipeline) fail(url string, err error) {
	defer p.pending.Done()
	p.failed.Add(1)
	p.logger.Warn("page crawl failed", zap.String("url", url), zap.Error(err))
	if p.cfg.OnFailure != nil {
		p.cfg.OnFailure(url, err)
	}
}
