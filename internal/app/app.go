// Package app builds the application's dependencies from configuration and
// runs them as a one-shot crawl or as an HTTP service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/api"
	"github.com/JakeFAU/roster-crawler/internal/clock/system"
	"github.com/JakeFAU/roster-crawler/internal/config"
	"github.com/JakeFAU/roster-crawler/internal/crawler"
	"github.com/JakeFAU/roster-crawler/internal/discovery"
	"github.com/JakeFAU/roster-crawler/internal/dispatcher"
	"github.com/JakeFAU/roster-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/roster-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/roster-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/roster-crawler/internal/hash/sha256"
	"github.com/JakeFAU/roster-crawler/internal/headless/detector"
	"github.com/JakeFAU/roster-crawler/internal/id/uuid"
	"github.com/JakeFAU/roster-crawler/internal/logging"
	"github.com/JakeFAU/roster-crawler/internal/metrics"
	"github.com/JakeFAU/roster-crawler/internal/pipeline"
	"github.com/JakeFAU/roster-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/roster-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/roster-crawler/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/roster-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/roster-crawler/internal/sink"
	gcsstorage "github.com/JakeFAU/roster-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/roster-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/roster-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/roster-crawler/internal/storage/postgres"
	s3storage "github.com/JakeFAU/roster-crawler/internal/storage/s3"
	sqlitestore "github.com/JakeFAU/roster-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/roster-crawler/internal/worker"
)

const (
	summaryTopN     = 10
	shutdownTimeout = 10 * time.Second
)

type recordDB interface {
	crawler.RecordStore
	api.RecordReader
}

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer

	runner    *pipeline.Runner
	hub       *progress.Hub
	blobs     crawler.BlobStore
	gcs       *gcsstorage.BlobStore
	records   recordDB
	publisher *gcppublisher.Publisher
	headless  *headlessfetcher.Fetcher
	transport http.RoundTripper
}

// Option customizes Build.
type Option func(*App)

// WithLogger replaces the logger built from cfg.Logging.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRegisterer sets where progress collectors are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithTransport overrides the HTTP transport of the entity fetcher.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *App) { a.transport = rt }
}

// Build creates the application's dependencies. Partially built resources
// are released when a later step fails.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	app := &App{cfg: cfg, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger, err = logging.New(logging.Config{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(app.logger)
	}
	metrics.Init()

	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()

	app.logger.Info("building application dependencies",
		zap.String("listing_url", cfg.Crawl.ListingURL),
		zap.String("output_backend", cfg.Output.Backend),
		zap.String("db_driver", cfg.DB.Driver),
	)

	if app.blobs, err = app.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err = app.setupDatabase(ctx); err != nil {
		return nil, err
	}
	if err = app.setupPublisher(ctx); err != nil {
		return nil, err
	}
	if err = app.setupProgress(ctx); err != nil {
		return nil, err
	}
	if err = app.setupRunner(); err != nil {
		return nil, err
	}
	return app, nil
}

// Runner exposes the built pipeline.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Crawl runs one batch bounded by crawl.batch_timeout.
func (a *App) Crawl(ctx context.Context) (pipeline.Report, error) {
	if a.cfg.Crawl.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Crawl.BatchTimeout)
		defer cancel()
	}
	report, err := a.runner.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("crawl run: %w", err)
	}
	return report, nil
}

// Serve starts the HTTP API and blocks until ctx is canceled or a signal
// arrives, then waits for an active run before returning.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runs := api.NewRunManager(ctx, a.runner, a.cfg.Crawl.BatchTimeout, a.logger.Named("runs"))
	opts := []api.Option{
		api.WithReadiness(func(context.Context) error { return ctx.Err() }),
	}
	if a.records != nil {
		opts = append(opts, api.WithRecordReader(a.records))
	}
	apiServer := api.NewServer(runs, system.New(), a.logger.Named("api"), opts...)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := runs.Wait(shutdownCtx); err != nil {
		a.logger.Warn("active run did not finish before shutdown", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.hub = nil
	}
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.records != nil {
		if err := a.records.Close(); err != nil {
			a.logger.Warn("record store close failed", zap.Error(err))
		}
		a.records = nil
	}
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	out := a.cfg.Output
	switch out.Backend {
	case config.BackendGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcs = store
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
		return store, nil
	case config.BackendS3:
		s3 := a.cfg.Storage.S3
		store, err := s3storage.New(s3storage.Config{
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Region:    s3.Region,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 blob store init failed: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("s3 bucket check failed: %w", err)
		}
		a.logger.Info("using S3 storage backend", zap.String("endpoint", s3.Endpoint), zap.String("bucket", s3.Bucket))
		return store, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: out.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", out.Dir))
		return store, nil
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	db := a.cfg.DB
	switch db.Driver {
	case config.DriverPostgres:
		store, err := pgstore.New(ctx, pgstore.Config{DSN: db.DSN, Table: db.Table, MaxConns: db.MaxConns})
		if err != nil {
			return fmt.Errorf("postgres record store init failed: %w", err)
		}
		a.records = store
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema init failed: %w", err)
		}
	case config.DriverSQLite:
		store, err := sqlitestore.New(ctx, sqlitestore.Config{Path: db.DSN, Table: db.Table})
		if err != nil {
			return fmt.Errorf("sqlite record store init failed: %w", err)
		}
		a.records = store
	default:
		a.logger.Info("no db.driver configured, records are not persisted to a database")
		return nil
	}
	a.logger.Info("record store initialized", zap.String("driver", db.Driver), zap.String("table", db.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	ps := a.cfg.PubSub
	if ps.Topic == "" {
		a.logger.Info("no pubsub.topic configured, run notifications disabled")
		return nil
	}
	pub, err := gcppublisher.New(ctx, ps.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized", zap.String("project", ps.ProjectID), zap.String("topic", ps.Topic))
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	promSink, err := progresssinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return fmt.Errorf("prometheus progress sink init failed: %w", err)
	}
	hubCfg := progress.Config{
		BaseContext: ctx,
		Logger:      a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	)
	return nil
}

func (a *App) setupRunner() error {
	opts := a.cfg.Options().WithDefaults()
	clock := system.New()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: opts.UserAgent,
		Timeout:   opts.RequestTimeout,
		Transport: a.transport,
	})
	disc := discovery.New(opts, fetcher, a.logger.Named("discovery"))

	var workerOpts []worker.Option
	if a.cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         opts.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavTimeout,
		})
		if err != nil {
			return fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = hf
		threshold := a.cfg.Headless.PromotionThreshold
		disc = disc.WithHeadless(hf, detector.NewHeuristic(threshold, opts.LinkMarker))
		workerOpts = append(workerOpts, worker.WithHeadless(hf, detector.NewHeuristic(threshold)))
		a.logger.Info("headless promotion enabled",
			zap.Int("max_parallel", a.cfg.Headless.MaxParallel),
			zap.Int("promotion_threshold", a.cfg.Headless.PromotionThreshold),
		)
	}
	if rps := a.cfg.Crawl.RequestsPerSecond; rps > 0 {
		workerOpts = append(workerOpts, worker.WithPacer(ratelimit.New(ratelimit.Config{RPS: rps, Burst: 1})))
		a.logger.Info("per-host pacing enabled", zap.Float64("rps", rps))
	}
	if a.cfg.Crawl.ArchiveRaw {
		workerOpts = append(workerOpts, worker.WithArchive(a.blobs, sha256.New()))
	}

	extractor := extract.New(extract.DefaultRules(), opts.Period, a.logger.Named("extract"))
	w := worker.New(fetcher, extractor, clock, worker.Config{ArchiveRaw: a.cfg.Crawl.ArchiveRaw},
		a.logger.Named("worker"), workerOpts...)
	disp := dispatcher.New(w, opts.ConcurrencyLimit, a.hub, clock, a.logger.Named("dispatcher"))

	var sinkOpts []sink.Option
	if a.records != nil {
		sinkOpts = append(sinkOpts, sink.WithRecordStore(a.records))
	}
	if a.publisher != nil {
		sinkOpts = append(sinkOpts, sink.WithPublisher(a.publisher))
	}
	writer := sink.New(a.blobs, sink.Config{
		Name:   a.cfg.Output.Name,
		Prefix: a.cfg.Output.Prefix,
		Topic:  a.cfg.PubSub.Topic,
	}, a.logger.Named("sink"), sinkOpts...)

	runner, err := pipeline.New(pipeline.Config{
		Discoverer: disc,
		Dispatcher: disp,
		Writer:     writer,
		Emitter:    a.hub,
		IDs:        uuid.New(),
		Clock:      clock,
		Logger:     a.logger.Named("pipeline"),
		TopN:       summaryTopN,
	})
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}
	a.runner = runner
	return nil
}
