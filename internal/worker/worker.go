// Package worker executes one fetch and extract task per entity reference.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Config controls Worker behavior.
type Config struct {
	// ArchiveRaw stores every fetched entity page through the blob store.
	ArchiveRaw  bool
	BlobPrefix  string
	ContentType string
}

// Result is what one task produced, plus the metadata progress events need.
type Result struct {
	Outcome  crawler.Outcome
	Status   int
	Bytes    int
	Duration time.Duration
	Degraded []string
	Headless bool
}

// Worker fetches an entity page, optionally archives it, and extracts a
// record. It is safe for concurrent use; all mutable state lives in the call.
type Worker struct {
	fetcher         crawler.Fetcher
	headlessFetcher crawler.Fetcher
	detector        crawler.HeadlessDetector
	extractor       crawler.Extractor
	pacer           crawler.Pacer
	blobStore       crawler.BlobStore
	hasher          crawler.Hasher
	clock           crawler.Clock
	cfg             Config
	logger          *zap.Logger
}

// Option configures optional Worker collaborators.
type Option func(*Worker)

// WithPacer delays each fetch until the pacer admits it.
func WithPacer(p crawler.Pacer) Option {
	return func(w *Worker) { w.pacer = p }
}

// WithArchive stores raw pages in blobs named by hasher.
func WithArchive(blobs crawler.BlobStore, hasher crawler.Hasher) Option {
	return func(w *Worker) {
		w.blobStore = blobs
		w.hasher = hasher
	}
}

// WithHeadless re-fetches script-dependent entity pages with a browser.
func WithHeadless(fetcher crawler.Fetcher, detector crawler.HeadlessDetector) Option {
	return func(w *Worker) {
		w.headlessFetcher = fetcher
		w.detector = detector
	}
}

// New constructs a Worker.
func New(
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.BlobPrefix == "" {
		cfg.BlobPrefix = "raw"
	}
	w := &Worker{
		fetcher:   fetcher,
		extractor: extractor,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process runs the task for ref. It never returns an error: failures and
// panics become failure outcomes.
func (w *Worker) Process(ctx context.Context, runID string, ref crawler.EntityRef) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			failure := crawler.PanicFailure(ref.URL, r)
			w.logger.Error("task panicked",
				zap.String("run_id", runID),
				zap.String("entity_id", ref.ID),
				zap.String("url", ref.URL),
				zap.Any("panic", r),
			)
			res = Result{Outcome: crawler.FailureOutcome(ref, failure), Duration: time.Since(start)}
		}
	}()

	if w.pacer != nil {
		if err := w.pacer.Wait(ctx, ref.URL); err != nil {
			failure := crawler.ClassifyFetchError(ref.URL, 0, fmt.Errorf("pacer wait: %w", err))
			return w.fail(runID, ref, failure, 0, start)
		}
	}

	page, err := w.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		return w.fail(runID, ref, crawler.ClassifyFetchError(ref.URL, page.StatusCode, err), page.StatusCode, start)
	}
	page = w.maybePromote(ctx, runID, ref, page)

	if w.cfg.ArchiveRaw {
		w.archive(ctx, runID, ref, page.Body)
	}

	rec, degraded := w.extractor.ExtractDetailed(page.Body, ref)
	rec.FetchedAt = w.now()
	if len(degraded) > 0 {
		w.logger.Debug("extraction degraded",
			zap.String("run_id", runID),
			zap.String("entity_id", ref.ID),
			zap.Strings("fields", degraded),
		)
	}
	return Result{
		Outcome:  crawler.SuccessOutcome(ref, rec),
		Status:   page.StatusCode,
		Bytes:    page.ContentLength(),
		Duration: time.Since(start),
		Degraded: degraded,
		Headless: page.Headless,
	}
}

func (w *Worker) fail(runID string, ref crawler.EntityRef, failure *crawler.FetchFailure, status int, start time.Time) Result {
	w.logger.Warn("entity fetch failed",
		zap.String("run_id", runID),
		zap.String("entity_id", ref.ID),
		zap.String("url", ref.URL),
		zap.String("failure_kind", string(failure.Kind)),
		zap.Error(failure),
	)
	return Result{
		Outcome:  crawler.FailureOutcome(ref, failure),
		Status:   status,
		Duration: time.Since(start),
	}
}

func (w *Worker) maybePromote(ctx context.Context, runID string, ref crawler.EntityRef, page crawler.Page) crawler.Page {
	if w.headlessFetcher == nil || w.detector == nil || !w.detector.ShouldPromote(page) {
		return page
	}
	rendered, err := w.headlessFetcher.Fetch(ctx, ref.URL)
	if err != nil {
		w.logger.Warn("headless promotion failed",
			zap.String("run_id", runID),
			zap.String("entity_id", ref.ID),
			zap.Error(err),
		)
		return page
	}
	return rendered
}

func (w *Worker) archive(ctx context.Context, runID string, ref crawler.EntityRef, body []byte) {
	if w.blobStore == nil || w.hasher == nil {
		return
	}
	hash, err := w.hasher.Hash(body)
	if err != nil {
		w.logger.Warn("hash page failed", zap.String("entity_id", ref.ID), zap.Error(err))
		return
	}
	uri, err := w.blobStore.PutObject(ctx, w.blobPath(runID, ref.ID, hash), w.cfg.ContentType, bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("archive page failed",
			zap.String("run_id", runID),
			zap.String("entity_id", ref.ID),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("page archived", zap.String("entity_id", ref.ID), zap.String("uri", uri))
}

func (w *Worker) blobPath(runID, entityID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	return fmt.Sprintf("%s/%s/%s-%s.html", prefix, runID, entityID, hash)
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now().UTC()
}
