// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embedder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/northbound-system/axon/internal/apperr"
	"github.com/northbound-system/axon/internal/equeue"
	"github.com/northbound-system/axon/internal/jobhistory"
	"github.com/northbound-system/axon/internal/logger"
	"github.com/northbound-system/axon/internal/pipeline"
	"github.com/northbound-system/axon/internal/reconcile"
	"github.com/northbound-system/axon/internal/scrape"
	"github.com/northbound-system/axon/internal/sourceid"
)

func sourceIDForURL(u string) sourceid.SourceId { return sourceid.FromURL(u) }

func domainOf(u string) string { return sourceid.FromURL(u).Domain() }

// VectorStore is the slice of internal/vectorstore.Store the embedder needs
// to delete points reconciliation has marked stale.
type VectorStore interface {
	DeleteByUrlAndSourceCommand(ctx context.Context, collection, url, sourceCommand string) error
}

// Config bounds the BackgroundEmbedder's loop, grounded on
// internal/worker.StartWorkers's workerCount parameter but redesigned
// around a single poll loop with per-job bounded page concurrency, per
// spec.md §4.6/§5.
type Config struct {
	PollInterval  time.Duration
	MaxConcurrent int // per-job page embed fanout

	// JobTimeout bounds one job's page-embed fan-out. It is applied to a
	// context detached from the caller's shutdown signal, so a SIGTERM
	// during Run lets an in-flight job finish (or time out on its own
	// terms) instead of aborting every outstanding HTTP call immediately.
	JobTimeout time.Duration
}

// DefaultConfig matches spec.md's poll.intervalMs=10s and
// embedding.maxConcurrent=10 defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 10 * time.Second, MaxConcurrent: 10, JobTimeout: 5 * time.Minute}
}

// BackgroundEmbedder drains EmbedQueue jobs by polling an external
// scrape/crawl service for completed pages, embedding them through
// EmbedPipeline, and reconciling site state once a job's pages have all
// been seen. Grounded on the teacher's internal/worker.StartWorkers pool
// loop, collapsed to a single daemon loop since Queue.ClaimDue already
// serializes claims under the queue's in-process mutex.
type BackgroundEmbedder struct {
	queue     *equeue.Queue
	scrape    scrape.Client
	pipeline  *pipeline.Pipeline
	reconcile *reconcile.Store
	store     VectorStore
	log       *logger.Logger
	cfg       Config

	// jobHistory and baselines are the preflight-baseline/recent-job-history
	// stores from internal/jobhistory. Both are optional: a nil store is a
	// no-op, so a caller that doesn't care about job history can pass nil.
	jobHistory *jobhistory.JobHistoryStore
	baselines  *jobhistory.BaselineStore

	wake chan struct{}
}

// New builds a BackgroundEmbedder. jobHistory and baselines may be nil.
func New(q *equeue.Queue, scrapeClient scrape.Client, p *pipeline.Pipeline, recon *reconcile.Store, store VectorStore, log *logger.Logger, cfg Config, jobHistory *jobhistory.JobHistoryStore, baselines *jobhistory.BaselineStore) *BackgroundEmbedder {
	return &BackgroundEmbedder{
		queue:      q,
		scrape:     scrapeClient,
		pipeline:   p,
		reconcile:  recon,
		store:      store,
		log:        log,
		cfg:        cfg,
		jobHistory: jobHistory,
		baselines:  baselines,
		wake:       make(chan struct{}, 1),
	}
}

// Wake returns the channel internal/equeue.Queue.Watch can signal on to
// accelerate the next drain tick.
func (b *BackgroundEmbedder) Wake() chan<- struct{} {
	return b.wake
}

// Run loops until ctx is cancelled, claiming and draining due jobs every
// poll interval (or immediately on a Wake signal). On cancellation the
// current drain tick finishes the job it is processing, puts the tick's
// remaining claimed jobs back to pending, and Run returns.
func (b *BackgroundEmbedder) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := b.drainOnce(ctx); err != nil && b.log != nil {
			b.log.Errorf("embedder: drain tick failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-b.wake:
		}
	}
}

func (b *BackgroundEmbedder) drainOnce(ctx context.Context) error {
	jobs, err := b.queue.ClaimDue(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("claim due jobs: %w", err)
	}

	for i, job := range jobs {
		select {
		case <-ctx.Done():
			for _, rest := range jobs[i:] {
				if err := b.queue.Requeue(rest.ID); err != nil && b.log != nil {
					b.log.Errorf("embedder: requeue %s on shutdown: %v", rest.ID, err)
				}
			}
			return nil
		default:
		}

		if b.jobHistory != nil {
			if err := b.jobHistory.Record(job.JobID, job.URL, job.SourceCommand); err != nil && b.log != nil {
				b.log.Errorf("embedder: record job history for %s: %v", job.ID, err)
			}
		}

		b.processJob(ctx, job)
	}
	return nil
}

func (b *BackgroundEmbedder) processJob(ctx context.Context, job equeue.Job) {
	status, err := b.scrape.GetCrawlStatus(ctx, job.JobID)
	if err != nil {
		if scrape.IsJobNotFoundError(err) {
			if mErr := b.queue.MarkFailedPermanent(job.ID, err); mErr != nil && b.log != nil {
				b.log.Errorf("embedder: mark %s permanently failed: %v", job.ID, mErr)
			}
			return
		}
		if mErr := b.queue.MarkRetry(job.ID, err); mErr != nil && b.log != nil {
			b.log.Errorf("embedder: mark %s for retry: %v", job.ID, mErr)
		}
		return
	}

	switch status.Status {
	case scrape.StatusFailed:
		if mErr := b.queue.MarkFailedPermanent(job.ID, fmt.Errorf("upstream crawl job failed")); mErr != nil && b.log != nil {
			b.log.Errorf("embedder: mark %s permanently failed: %v", job.ID, mErr)
		}
	case scrape.StatusScraping:
		if mErr := b.queue.MarkRetry(job.ID, fmt.Errorf("still scraping")); mErr != nil && b.log != nil {
			b.log.Errorf("embedder: requeue %s (still scraping): %v", job.ID, mErr)
		}
	case scrape.StatusCompleted:
		b.checkDiscoveryGuardrail(job, status)
		b.embedCompletedJob(ctx, job, status)
	}
}

// checkDiscoveryGuardrail compares a completed job's actual page count
// against its recorded preflight baseline, recording one lazily from the
// upstream's own reported total the first time a job is seen (this module
// has no separate Map-based preflight step yet, so the crawl service's own
// total is the best available stand-in for spec.md's BaselineEntry).
func (b *BackgroundEmbedder) checkDiscoveryGuardrail(job equeue.Job, status scrape.CrawlStatus) {
	if b.baselines == nil {
		return
	}

	baseline, ok := b.baselines.Lookup(job.JobID)
	if !ok {
		if status.Total > 0 {
			if err := b.baselines.Record(job.JobID, job.URL, status.Total); err != nil && b.log != nil {
				b.log.Errorf("embedder: record baseline for %s: %v", job.ID, err)
			}
		}
		return
	}

	if jobhistory.CheckDiscoveryGuardrail(baseline, len(status.Pages), jobhistory.DefaultGuardrailRatio) && b.log != nil {
		b.log.Warnf("embedder: job %s for %s returned %d pages, far below baseline of %d", job.JobID, job.URL, len(status.Pages), baseline.ExpectedURLs)
	}
}

// embedCompletedJob fans out page embedding over a context detached from
// ctx's cancellation (but still bounded by its own JobTimeout): a shutdown
// signal on ctx must let an already-claimed job finish per spec.md §4.6,
// not abort every in-flight HTTP call. ctx itself is still consulted after
// the fact purely to tell a genuine shutdown apart from an ordinary
// failure when deciding whether to burn a retry attempt.
func (b *BackgroundEmbedder) embedCompletedJob(ctx context.Context, job equeue.Job, status scrape.CrawlStatus) {
	seen := make([]string, 0, len(status.Pages))
	var seenMu sync.Mutex

	jobTimeout := b.cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	embedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(embedCtx)
	g.SetLimit(b.cfg.MaxConcurrent)

	for _, page := range status.Pages {
		page := page
		g.Go(func() error {
			content, contentType := page.Markdown, "markdown"
			if content == "" {
				content, contentType = page.HTML, "html"
			}

			meta := pipeline.DocumentMeta{
				Source:        sourceIDForURL(page.SourceURL),
				Title:         page.Title,
				SourceCommand: "crawl",
				ContentType:   contentType,
				Collection:    job.Collection,
				HardSync:      job.HardSync,
			}
			if _, err := b.pipeline.AutoEmbed(gctx, content, meta); err != nil {
				return fmt.Errorf("embed page %s: %w", page.SourceURL, err)
			}

			seenMu.Lock()
			seen = append(seen, page.SourceURL)
			seenMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		b.retryOrRequeue(ctx, job, err, "page embed failure")
		return
	}

	domain := domainOf(job.URL)
	result, err := b.reconcile.Reconcile(domain, seen, reconcile.Options{HardSync: job.HardSync})
	if err != nil {
		b.retryOrRequeue(ctx, job, err, "reconcile failure")
		return
	}

	// All deletions happen after every upsert for this pass has completed,
	// so a delete can never race a fresh write of the same URL within the
	// same job (spec.md §4.6's ordering guarantee).
	for _, stale := range result.URLsToDelete {
		if err := b.store.DeleteByUrlAndSourceCommand(ctx, job.Collection, stale, "crawl"); err != nil {
			b.retryOrRequeue(ctx, job, err, "stale delete failure")
			return
		}
	}

	if err := b.queue.MarkCompleted(job.ID); err != nil && b.log != nil {
		b.log.Errorf("embedder: mark %s completed: %v", job.ID, err)
	}
}

// retryOrRequeue decides whether a failure inside embedCompletedJob was
// caused by shutdown (ctx, the caller's cancellable context, already
// cancelled) rather than a genuine transient error. A shutdown-induced
// failure is requeued retry-count-neutral per spec.md §5's "writes the
// in-flight job back to pending"; anything else burns a retry attempt so
// MaxRetries is eventually reached for jobs that keep failing on their own.
func (b *BackgroundEmbedder) retryOrRequeue(ctx context.Context, job equeue.Job, err error, reason string) {
	if ctx.Err() != nil || apperr.Is(err, apperr.Cancelled) {
		if rErr := b.queue.Requeue(job.ID); rErr != nil && b.log != nil {
			b.log.Errorf("embedder: requeue %s on shutdown (%s): %v", job.ID, reason, rErr)
		}
		return
	}
	if mErr := b.queue.MarkRetry(job.ID, err); mErr != nil && b.log != nil {
		b.log.Errorf("embedder: mark %s for retry after %s: %v", job.ID, reason, mErr)
	}
}
