// Command harvester is the aerc-harvester entrypoint: it wires
// config -> cache -> fetcher -> parser -> normalizer -> repository
// -> orchestrator/workers, then hands the assembled internal/cli.App
// to either the cobra operator CLI (a subcommand was given) or a
// ClockScheduler daemon loop (no subcommand: the long-running
// process a container/systemd unit supervises).
package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aerc-harvest/harvester/internal/aercparser"
	"github.com/aerc-harvest/harvester/internal/cache"
	"github.com/aerc-harvest/harvester/internal/cli"
	"github.com/aerc-harvest/harvester/internal/config"
	"github.com/aerc-harvest/harvester/internal/detail"
	"github.com/aerc-harvest/harvester/internal/detail/gemini"
	"github.com/aerc-harvest/harvester/internal/discovery"
	"github.com/aerc-harvest/harvester/internal/eventnorm"
	"github.com/aerc-harvest/harvester/internal/fetcher"
	"github.com/aerc-harvest/harvester/internal/geocode"
	"github.com/aerc-harvest/harvester/internal/geocode/googlegeo"
	"github.com/aerc-harvest/harvester/internal/geocode/nominatim"
	"github.com/aerc-harvest/harvester/internal/htmlnorm"
	"github.com/aerc-harvest/harvester/internal/mdconvert"
	"github.com/aerc-harvest/harvester/internal/metadata"
	"github.com/aerc-harvest/harvester/internal/repository"
	"github.com/aerc-harvest/harvester/internal/repository/memrepo"
	"github.com/aerc-harvest/harvester/internal/repository/postgres"
	"github.com/aerc-harvest/harvester/internal/robots"
	"github.com/aerc-harvest/harvester/internal/scheduler"
	"github.com/aerc-harvest/harvester/pkg/hashutil"
	"github.com/aerc-harvest/harvester/pkg/limiter"
	"github.com/aerc-harvest/harvester/pkg/retry"
	"github.com/aerc-harvest/harvester/pkg/timeutil"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("config error", zap.Error(err))
		os.Exit(cli.ExitConfigError)
	}
	if cfg.ScraperDebug() {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
	}

	app, cleanup, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("startup error", zap.Error(err))
		os.Exit(cli.ExitConfigError)
	}
	defer cleanup()

	root := cli.NewRootCmd(app)
	if len(os.Args) > 1 {
		root.SetArgs(os.Args[1:])
		err := root.Execute()
		os.Exit(cli.ExitCodeFor(err))
	}

	runDaemon(app, cfg, logger)
}

// loadConfig builds Config from AERC_CONFIG_FILE when set, or from
// WithDefault() plus environment-variable overrides otherwise. There
// is no flag-driven config path: the config surface is wide enough
// that an operator supplies it as a file or environment, then picks a
// subcommand to invoke against it.
func loadConfig() (config.Config, error) {
	if path := os.Getenv("AERC_CONFIG_FILE"); path != "" {
		return config.WithConfigFile(path)
	}

	builder := config.WithDefault().
		WithSeedSources([]config.SeedSourceConfig{
			{Name: "aerc-calendar", URLTemplate: "https://aerc.org/calendar/{year}"},
		}).
		WithAllowedHosts([]string{"aerc.org", "www.aerc.org"})

	if v := os.Getenv("DATABASE_URL"); v != "" {
		builder = builder.WithDatabaseURL(v)
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		builder = builder.WithGeminiAPIKey(v)
	}
	if v := os.Getenv("GEOCODING_API_KEY"); v != "" {
		builder = builder.WithGeocodingAPIKey(v)
	}
	if v := os.Getenv("GEOCODING_PROVIDER"); v != "" {
		builder = builder.WithGeocodingProvider(config.GeocodingProvider(v))
	}
	if v := os.Getenv("GEOCODING_USER_AGENT"); v != "" {
		builder = builder.WithGeocodingUserAgent(v)
	}
	return builder.Build()
}

// buildRetryParam turns the fetch retry section of Config into a
// pkg/retry.RetryParam, shared by GeocodeWorker and
// DetailEnrichmentWorker. The scrape path builds its own identical
// RetryParam in cli.App.retryParam.
func buildRetryParam(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.BaseDelay()/2,
		time.Now().UnixNano(),
		cfg.MaxRetries(),
		timeutil.NewBackoffParam(cfg.BaseDelay(), 2.0, 30*time.Second),
	)
}

// buildApp wires every collaborator cli.App needs. cleanup releases
// resources (the postgres pool) on process exit.
func buildApp(cfg config.Config, logger *zap.Logger) (*cli.App, func(), error) {
	metadataSink := metadata.NewRecorder()
	hashAlgo := hashutil.HashAlgo(hashutil.HashAlgoBLAKE3)

	diskBackend := cache.NewDiskBackend("./.cache/html", hashAlgo)
	contentCache := cache.NewContentCache(diskBackend, metadataSink, hashAlgo)

	rateLimiter := limiter.NewConcurrentRateLimiter(cfg.RequestsPerSecond(), cfg.Burst())
	httpFetcherVal := fetcher.NewHTTPFetcher(metadataSink, contentCache, rateLimiter, hashAlgo)
	httpFetcher := &httpFetcherVal

	htmlNormVal := htmlnorm.NewHTMLNormalizer(metadataSink)
	htmlNorm := &htmlNormVal
	parserVal := aercparser.NewAERCParser(metadataSink)
	parser := &parserVal
	eventNormVal := eventnorm.NewEventNormalizer(metadataSink, hashAlgo)
	eventNorm := &eventNormVal

	robot := robots.NewCachedRobot(metadataSink)
	robot.Init(cfg.UserAgent())
	robotAdapter := discovery.RobotAdapter(func(target url.URL) (bool, error) {
		decision, rerr := robot.Decide(target)
		if rerr != nil {
			return false, rerr
		}
		return decision.Allowed, nil
	})

	var repo repository.Repository
	var migrateFn func(ctx context.Context) error
	cleanup := func() {}

	if cfg.DatabaseURL() != "" {
		pool, perr := pgxpool.New(context.Background(), cfg.DatabaseURL())
		if perr != nil {
			return nil, func() {}, perr
		}
		repo = postgres.NewRepository(pool)
		migrateFn = func(ctx context.Context) error { return postgres.Migrate(ctx, pool) }
		cleanup = pool.Close
	} else {
		logger.Warn("database_url not set, using in-memory repository (data does not persist across runs)")
		repo = memrepo.NewRepository()
	}

	retryParam := buildRetryParam(cfg)
	httpClient := &http.Client{Timeout: cfg.RequestDeadline()}

	var geocoder geocode.Geocoder
	switch cfg.GeocodingProvider() {
	case config.GeocodingProviderGoogle:
		geocoder = googlegeo.NewClient(httpClient, cfg.GeocodingAPIKey())
	default:
		geocoder = nominatim.NewClient(httpClient, cfg.GeocodingUserAgent())
	}
	geocodeWorker := geocode.NewGeocodeWorker(
		metadataSink, repo, geocoder, string(cfg.GeocodingProvider()),
		cache.NewMemoryBackend(), hashAlgo,
		cfg.CacheTTLGeocode(), 6*time.Hour,
		retryParam,
	)

	var extractor detail.DetailExtractor = gemini.NewClient(httpClient, cfg.GeminiAPIKey())
	pageConverter := mdconvert.NewPageConverter(metadataSink)
	detailWorker := detail.NewWorker(
		metadataSink, repo, httpFetcher, htmlNorm, pageConverter, extractor,
		cfg.UserAgent(), cfg.CacheTTLHTML(), "./.cache/flyers", hashAlgo,
		cfg.DetailBatchSize(), retryParam,
	)

	app := &cli.App{
		Config:           cfg,
		MetadataSink:     metadataSink,
		Repo:             repo,
		HTMLFetcher:      httpFetcher,
		HTMLNorm:         htmlNorm,
		Parser:           parser,
		EventNorm:        eventNorm,
		RobotDecide:      robotAdapter,
		GeocodeWorker:    geocodeWorker,
		DetailWorker:     detailWorker,
		Now:              time.Now,
		MigrateFn:        migrateFn,
		LocationTriggers: make(chan geocode.LocationChangedEvent, 64),
	}
	return app, cleanup, nil
}

// runDaemon registers run-scrape/enrich-geocode/enrich-details as
// cron jobs on scrape_schedule/enrichment_schedule and blocks
// until SIGINT/SIGTERM, the long-running mode a supervisor invokes
// the binary in with no subcommand.
func runDaemon(app *cli.App, cfg config.Config, logger *zap.Logger) {
	clock := scheduler.NewClockScheduler(app.MetadataSink)

	registerOrFatal(clock, logger, scheduler.Job{
		Name: "scrape", Spec: cfg.ScrapeSchedule(),
		Run: func() {
			if _, err := app.RunScrape(context.Background(), ""); err != nil {
				logger.Error("run-scrape failed", zap.Error(err))
			}
		},
	})
	registerOrFatal(clock, logger, scheduler.Job{
		Name: "enrich-geocode", Spec: cfg.EnrichmentSchedule(),
		Run: func() {
			if _, derr := app.RunGeocode(context.Background(), 0); derr != nil {
				logger.Error("enrich-geocode failed", zap.Error(derr))
			}
		},
	})
	registerOrFatal(clock, logger, scheduler.Job{
		Name: "enrich-details", Spec: cfg.EnrichmentSchedule(),
		Run: func() {
			if _, derr := app.RunDetails(context.Background(), cfg.DetailBatchSize()); derr != nil {
				logger.Error("enrich-details failed", zap.Error(derr))
			}
		},
	})

	triggerCtx, cancelTriggers := context.WithCancel(context.Background())
	go app.GeocodeWorker.Listen(triggerCtx, app.LocationTriggers)

	clock.Start()
	logger.Info("harvester daemon started",
		zap.String("scrape_schedule", cfg.ScrapeSchedule()),
		zap.String("enrichment_schedule", cfg.EnrichmentSchedule()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancelTriggers()
	clock.Stop()
}

func registerOrFatal(clock *scheduler.ClockScheduler, logger *zap.Logger, job scheduler.Job) {
	if err := clock.Register(job); err != nil {
		logger.Fatal("invalid cron schedule", zap.String("job", job.Name), zap.Error(err))
	}
}
