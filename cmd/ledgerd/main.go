package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerkit/txledger/internal/alert"
	"github.com/ledgerkit/txledger/internal/blocktime"
	"github.com/ledgerkit/txledger/internal/config"
	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/pipeline/classifier"
	"github.com/ledgerkit/txledger/internal/pipeline/enrich"
	"github.com/ledgerkit/txledger/internal/pipeline/pricing"
	"github.com/ledgerkit/txledger/internal/pipeline/retry"
	"github.com/ledgerkit/txledger/internal/pipeline/scheduler"
	"github.com/ledgerkit/txledger/internal/pipeline/statcheck"
	"github.com/ledgerkit/txledger/internal/priceapi"
	"github.com/ledgerkit/txledger/internal/progress"
	"github.com/ledgerkit/txledger/internal/ratelimit"
	"github.com/ledgerkit/txledger/internal/recalc"
	"github.com/ledgerkit/txledger/internal/store"
	"github.com/ledgerkit/txledger/internal/store/postgres"
	"github.com/ledgerkit/txledger/internal/store/redis"
	"github.com/ledgerkit/txledger/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ledgerd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "ledgerd", cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.DB.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	stream, err := redis.NewStream(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer stream.Close()

	registry, err := config.LoadAssetRegistry(cfg.Pricing.AssetRegistryPath)
	if err != nil {
		return fmt.Errorf("load asset registry: %w", err)
	}

	clock := store.SystemClock{}
	rawRepo := postgres.NewRawTransactionRepo(db)
	eventRepo := postgres.NewEconomicEventRepo(db)
	txRepo := postgres.NewNormalizedTransactionRepo(db, clock)
	syncRepo := postgres.NewSyncStatusRepo(db)

	var alerter alert.Alerter
	if cfg.Alert.WebhookURL != "" {
		alerter = alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}

	limiter := ratelimit.NewPerMinute(cfg.Pricing.APIPermitsPerMin)
	priceClient := priceapi.NewClient(cfg.Pricing.APIBaseURL, limiter, logger)

	estimator := blocktime.NewAnchorEstimator()
	for network, anchor := range registry.Anchors() {
		estimator.Calibrate(network, blocktime.Anchor{
			BlockNumber:     anchor.BlockNumber,
			Timestamp:       anchor.Timestamp,
			AvgBlockSeconds: anchor.AvgBlockSeconds,
		})
	}

	swapPricer := enrich.NewSwapPricer(registry)
	nativePricer := classifier.NewNativePricer(priceClient, registry, logger)
	processor := classifier.NewProcessor(
		rawRepo, eventRepo, txRepo,
		classifier.NewPayloadClassifier(),
		estimator, nativePricer, swapPricer,
		model.DefaultGasBasisPolicy(),
		cfg.Classify.BatchSize, logger,
	)
	clarify := classifier.NewClarifyJob(txRepo, eventRepo, cfg.Pricing.MaxRetries, cfg.Classify.BatchSize, logger)

	external := pricing.NewExternalResolver(priceClient, registry, cfg.Pricing.CacheSize, cfg.Pricing.CacheTTL, logger)
	counterpartChain := pricing.NewChain(pricing.NewStablecoinResolver(registry), external)
	chain := pricing.NewChain(
		pricing.NewStablecoinResolver(registry),
		pricing.NewSwapDerivedResolver(counterpartChain),
		external,
	)
	pricingJob := pricing.NewJob(txRepo, chain, pricing.Config{
		MaxRetries: cfg.Pricing.MaxRetries,
		BatchSize:  cfg.Pricing.BatchSize,
	}, logger)

	statJob := statcheck.NewJob(txRepo, stream, alerter, clock, statcheck.Config{
		BatchSize: cfg.Stat.BatchSize,
	}, logger)

	tracker := progress.NewTracker(syncRepo, clock, progress.Config{
		RetryBaseMinutes: cfg.Sync.RetryBaseMinutes,
		RetryMaxMinutes:  cfg.Sync.RetryMaxMinutes,
	}, logger)

	engine := recalc.NewHTTPEngine(cfg.Recalc.EngineURL, retry.NewPolicy(cfg.Recalc.RetryBase), cfg.Recalc.MaxAttempts, logger)
	dispatcher := recalc.NewDispatcher(stream, engine, alerter, recalc.Config{
		Workers:         cfg.Recalc.Workers,
		ConsumerGroup:   cfg.Recalc.ConsumerGroup,
		ConsumerName:    cfg.Recalc.ConsumerName,
		ReclaimInterval: cfg.Recalc.ReclaimInterval,
		ReclaimMinIdle:  cfg.Recalc.ReclaimMinIdle,
	}, logger)

	classifyTick := func(ctx context.Context) error {
		statuses, err := syncRepo.List(ctx)
		if err != nil {
			return err
		}
		tracked := make(map[string]struct{}, len(statuses))
		for _, s := range statuses {
			tracked[s.WalletAddress] = struct{}{}
		}
		for _, s := range statuses {
			if err := processor.ProcessBatch(ctx, s.WalletAddress, s.NetworkID, tracked); err != nil {
				logger.Error("classification batch failed",
					"wallet", s.WalletAddress,
					"network", s.NetworkID,
					"error", err,
				)
				continue
			}
			if err := sweepProgress(ctx, rawRepo, tracker, s); err != nil {
				logger.Warn("progress sweep failed",
					"wallet", s.WalletAddress,
					"network", s.NetworkID,
					"error", err,
				)
			}
		}
		return nil
	}

	runner := scheduler.NewRunner(logger,
		scheduler.Stage{Name: "classify", Interval: cfg.Classify.Interval, Timeout: cfg.Classify.Interval, Run: classifyTick},
		scheduler.Stage{Name: "clarify", Interval: cfg.Classify.Interval, Timeout: cfg.Classify.Interval, Run: clarify.RunOnce},
		scheduler.Stage{Name: "pricing", Interval: cfg.Pricing.Interval, Timeout: cfg.Pricing.Interval, Run: pricingJob.RunOnce},
		scheduler.Stage{Name: "stat", Interval: cfg.Stat.Interval, Timeout: cfg.Stat.Interval, Run: statJob.RunOnce},
	)

	g, ctx := errgroup.WithContext(ctx)
	runner.Start(ctx, g)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return serveHealth(ctx, cfg.Server.HealthPort, db, logger)
	})

	logger.Info("ledgerd started", "health_port", cfg.Server.HealthPort)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("ledgerd stopped")
	return nil
}

// sweepProgress promotes a RUNNING pair to COMPLETE once raw fetching has
// finished and no raw transactions remain pending classification.
func sweepProgress(ctx context.Context, rawRepo store.RawTransactionRepository, tracker *progress.Tracker, s *model.SyncStatus) error {
	if s.Status != model.SyncRunning || !s.RawFetchComplete {
		return nil
	}
	pending, err := rawRepo.ListPending(ctx, s.WalletAddress, s.NetworkID, 1)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return nil
	}
	return tracker.SetComplete(ctx, s.WalletAddress, s.NetworkID)
}

func serveHealth(ctx context.Context, port int, db *postgres.DB, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown failed", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
