package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"property-scraper/api"
	"property-scraper/browser"
	"property-scraper/config"
	"property-scraper/metrics"
	"property-scraper/models"
	"property-scraper/proxy"
	"property-scraper/queue"
	"property-scraper/scheduler"
	"property-scraper/scraper"
	"property-scraper/scraper/argenprop"
	"property-scraper/scraper/mercadolibre"
	"property-scraper/scraper/zonaprop"
	"property-scraper/services"
	"property-scraper/storage"
	"property-scraper/utils"
	"property-scraper/worker"

	"github.com/ternarybob/arbor"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a TOML or YAML config file")
	once := flag.Bool("once", false, "run one search synchronously, write CSV and exit")
	areas := flag.String("areas", "Palermo", "comma separated areas for -once")
	ownerOnly := flag.Bool("owner-only", false, "only owner listings for -once")
	maxPrice := flag.Float64("max-price-per-m2", 0, "price per m² cap for -once")
	timeRange := flag.String("time-range", "", "24h, 3d or 7d for -once")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := utils.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		criteria := models.SearchCriteria{
			Areas:         strings.Split(*areas, ","),
			OwnerOnly:     *ownerOnly,
			MaxPricePerM2: *maxPrice,
			TimeRange:     models.TimeRange(*timeRange),
		}
		if err := runOnce(ctx, cfg, logger, criteria); err != nil {
			logger.Error().Err(err).Msg("Search failed")
			os.Exit(1)
		}
		return
	}

	if err := runService(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Service failed")
		os.Exit(1)
	}
}

// scraping is everything needed to turn criteria into listings.
type scraping struct {
	browsers     *browser.Pool
	monitor      *services.Monitor
	orchestrator *services.Orchestrator
	pipeline     *services.Pipeline
	mode         services.Mode
}

func buildScraping(cfg *config.Config, m *metrics.Metrics, logger arbor.ILogger) (*scraping, error) {
	endpoints, err := cfg.ProxyEndpoints()
	if err != nil {
		return nil, err
	}
	rotator := proxy.NewRotator(endpoints, cfg.Proxy.Primary)

	browsers := browser.NewPool(cfg.Browser, browser.NewChromeLauncher(cfg.Browser, logger), rotator, logger)
	navigator := scraper.NewNavigator(rotator, cfg.Scraping.BlockMarkers, cfg.Scraping.RequestsPerHost.Std(), logger).WithRecorder(m)

	opts := scraper.AdapterOptions{
		Sessions:          browsers,
		Navigator:         navigator,
		MaxAttempts:       cfg.Scraping.MaxAttempts,
		NavigationTimeout: cfg.Browser.NavigationTimeout.Std(),
		ReadyTimeout:      cfg.Browser.ReadyTimeout.Std(),
		Logger:            logger,
	}
	if cfg.Scraping.StaticFallback {
		opts.Static = scraper.NewStaticFetcher(cfg.Browser.NavigationTimeout.Std(), cfg.Browser.AcceptLanguage, rotator)
	}

	adapters, err := buildAdapters(cfg.Scraping.Sources, opts)
	if err != nil {
		return nil, err
	}

	mode, err := services.ParseMode(cfg.Worker.Mode)
	if err != nil {
		return nil, err
	}

	monitor := services.NewMonitor()
	orchestrator := services.NewOrchestrator(adapters, logger, services.OrchestratorOptions{
		Cooldown: cfg.Scraping.AdapterCooldown.Std(),
		Fallback: true,
		Cache:    services.NewResultCache(cfg.Scraping.CacheTTL.Std()),
		Monitor:  monitor,
		Recorder: m,
	})

	return &scraping{
		browsers:     browsers,
		monitor:      monitor,
		orchestrator: orchestrator,
		pipeline:     services.NewPipeline(cfg.Scraping.MaxResults),
		mode:         mode,
	}, nil
}

func buildAdapters(sources []string, opts scraper.AdapterOptions) ([]scraper.Adapter, error) {
	adapters := make([]scraper.Adapter, 0, len(sources))
	for _, name := range sources {
		switch models.Source(strings.ToLower(strings.TrimSpace(name))) {
		case models.SourceZonaprop:
			adapters = append(adapters, zonaprop.New(opts))
		case models.SourceArgenprop:
			adapters = append(adapters, argenprop.New(opts))
		case models.SourceMercadoLibre:
			adapters = append(adapters, mercadolibre.New(opts))
		default:
			return nil, fmt.Errorf("unknown scraping source %q", name)
		}
	}
	return adapters, nil
}

func runOnce(ctx context.Context, cfg *config.Config, logger arbor.ILogger, criteria models.SearchCriteria) error {
	if err := criteria.Validate(); err != nil {
		return err
	}

	s, err := buildScraping(cfg, metrics.New(), logger)
	if err != nil {
		return err
	}
	defer s.browsers.Shutdown()

	if err := s.browsers.Init(ctx); err != nil {
		logger.Warn().Err(err).Msg("Browser unavailable, sources will use static fetch")
	}

	logger.Info().Str("criteria", criteria.String()).Str("mode", string(s.mode)).Msg("Search starting")
	listings := s.pipeline.Apply(s.orchestrator.Run(ctx, criteria, s.mode), criteria)
	if len(listings) == 0 {
		logger.Warn().Msg("No listings matched the search")
		return nil
	}

	if err := storage.NewCSVWriter(cfg.Output.CSVPath, logger).Write(listings); err != nil {
		return err
	}

	if cfg.Storage.Backend == "postgres" {
		pg, err := storage.NewPostgresListingStore(ctx, cfg.Storage.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		n, err := pg.UpsertBatch(ctx, listings)
		if err != nil {
			return err
		}
		logger.Info().Int("listings", n).Msg("Saved listings to PostgreSQL")
	}

	printSummary(listings)
	services.PrintReport(os.Stdout, services.GenerateReport(listings))
	return nil
}

func runService(ctx context.Context, cfg *config.Config, logger arbor.ILogger) error {
	m := metrics.New()

	s, err := buildScraping(cfg, m, logger)
	if err != nil {
		return err
	}
	defer s.browsers.Shutdown()

	db, err := storage.OpenBadger(cfg.Storage.BadgerPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	listings, err := openListingStore(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer listings.Close()

	q, err := openQueue(cfg, db, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	jobStore := storage.NewJobStore(db, logger)
	jobService := services.NewJobService(jobStore, q, listings, logger)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(jobService, cfg.Scheduler.Timezone, logger)
		if err != nil {
			return err
		}
		sched.Start()
	}

	pool, err := worker.NewPool(cfg.Worker, worker.Deps{
		Jobs:     jobStore,
		Queue:    q,
		Runner:   s.orchestrator,
		Pipeline: s.pipeline,
		Listings: listings,
		Notifier: scheduler.NewLogNotifier(logger),
		Recorder: m,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if err := s.browsers.Init(ctx); err != nil {
		logger.Warn().Err(err).Msg("Browser unavailable at start, will retry on first job")
	}

	pool.Start(ctx)

	server := api.NewServer(cfg.Server, jobService, s.monitor, sched, logger)
	server.Start()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, m, logger)
		metricsServer.Start()
	}

	logger.Info().
		Strs("sources", cfg.Scraping.Sources).
		Str("storage", cfg.Storage.Backend).
		Str("queue", cfg.Queue.Backend).
		Msg("Property scraper running")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("API shutdown")
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	pool.Stop()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics shutdown")
		}
	}

	stats := s.browsers.Stats()
	logger.Info().Int("sessions", stats.Sessions).Str("proxy", stats.ActiveProxy).Msg("Stopped")
	return nil
}

func openListingStore(ctx context.Context, cfg *config.Config, db *storage.BadgerDB, logger arbor.ILogger) (storage.ListingStore, error) {
	if cfg.Storage.Backend != "postgres" {
		return storage.NewBadgerListingStore(db, logger), nil
	}
	pg, err := storage.NewPostgresListingStore(ctx, cfg.Storage.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

func openQueue(cfg *config.Config, db *storage.BadgerDB, logger arbor.ILogger) (queue.Queue, error) {
	if cfg.Queue.Backend == "redis" {
		return queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Name, logger)
	}
	return queue.NewBadgerQueue(db.Store().Badger(), cfg.Queue.Name)
}

func printSummary(listings []models.Listing) {
	owners := 0
	for _, l := range listings {
		if l.IsOwner {
			owners++
		}
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║                SEARCH COMPLETE               ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Total listings : %-26d ║\n", len(listings))
	fmt.Printf("║  Owner listings : %-26d ║\n", owners)
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()
}
