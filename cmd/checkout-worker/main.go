package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"insurance-checkout/internal/backend"
	"insurance-checkout/internal/checkout"
	"insurance-checkout/internal/checkout/documents"
	"insurance-checkout/internal/checkout/draft"
	"insurance-checkout/internal/checkout/finalize"
	"insurance-checkout/internal/checkout/payment"
	"insurance-checkout/internal/common/auth"
	awsx "insurance-checkout/internal/common/aws"
	"insurance-checkout/internal/common/camunda"
	"insurance-checkout/internal/common/clock"
	"insurance-checkout/internal/common/config"
	"insurance-checkout/internal/common/database"
	httpx "insurance-checkout/internal/common/http"
	"insurance-checkout/internal/common/logger"
	"insurance-checkout/internal/common/observability"
	"insurance-checkout/pkg/registry"

	fa "insurance-checkout/internal/workers/checkout/finalize-application"
	pp "insurance-checkout/internal/workers/checkout/process-payment"
	ud "insurance-checkout/internal/workers/checkout/upload-documents"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting checkout worker",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("otel exporter unavailable, step metrics disabled", zap.Error(err))
		obs = observability.NewNoop()
	}

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.Plaintext,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	ledger := finalize.NewPostgresLedger(pg.GetDB())
	if err := ledger.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("reconciliation schema failed", zap.Error(err))
	}

	deps, orchestrator := buildCheckout(ctx, cfg, rdb, ledger, obs, log)

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry failed", zap.Error(err))
	}

	workers, err := startWorkers(cfg, zeebe, reg, deps, orchestrator, log)
	if err != nil {
		zapLog.Fatal("worker registration failed", zap.Error(err))
	}
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	srv := newServer(cfg.Server.Address, &probes{
		zeebe:    zeebe,
		postgres: pg,
		redis:    rdb,
		ledger:   ledger,
	}, log)
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	for _, w := range workers {
		w.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Health/Metrics server shutdown failed", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("observability shutdown failed", zap.Error(err))
	}

	zapLog.Info("Checkout worker stopped")
}

// buildCheckout wires the shared checkout dependencies. Drafts, latches and
// upload markers live in Redis so that every replica sees the same keys.
func buildCheckout(ctx context.Context, cfg *config.Config, rdb *database.RedisClient, ledger finalize.Ledger, obs *observability.Observability, log logger.Logger) (checkout.Deps, *finalize.Orchestrator) {
	httpClient := httpx.NewClient(ctx, config.GetDuration(cfg.Backend.Timeout), auth.ClientCredentials{
		TokenURL:     cfg.Backend.Auth.TokenURL,
		ClientID:     cfg.Backend.Auth.ClientID,
		ClientSecret: cfg.Backend.Auth.ClientSecret,
		Scopes:       cfg.Backend.Auth.Scopes,
	})
	api := backend.NewClient(cfg.Backend.BaseURL, httpClient, log)

	prefix := cfg.Database.Redis.KeyPrefix
	draftTTL := config.GetDuration(cfg.Checkout.DraftTTL)
	latchTTL := config.GetDuration(cfg.Checkout.LatchTTL)
	clk := clock.NewReal()

	opts := finalize.Options{
		Updater:       api,
		Uploader:      documents.NewUploader(api, documents.NewFileSource(cfg.Checkout.DocumentRoot), log),
		Latch:         finalize.NewRedisLatch(rdb.GetClient(), prefix, latchTTL),
		Uploads:       finalize.NewRedisUploadTracker(rdb.GetClient(), prefix, latchTTL),
		Ledger:        ledger,
		Clock:         clk,
		Observability: obs,
		Logger:        log,
	}

	if cfg.Notifications.SMS.Enabled || cfg.Notifications.OpsAlerts.Enabled {
		awsCfg, err := awsx.LoadConfig(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			log.Warn("aws config unavailable, notifications disabled", map[string]interface{}{"error": err})
		} else {
			wireNotifications(&opts, cfg, awsCfg)
		}
	}

	orchestrator := finalize.New(opts)
	deps := checkout.Deps{
		Drafts:  draft.NewRegistry(api, draft.NewRedisStore(rdb.GetClient(), prefix, draftTTL), log),
		Gateway: api,
		Payment: payment.Config{
			PollInterval:           config.GetDuration(cfg.Payment.PollInterval),
			Countdown:              config.GetDuration(cfg.Payment.Countdown),
			CountdownStep:          config.GetDuration(cfg.Payment.CountdownStep),
			RequestTimeout:         config.GetDuration(cfg.Backend.Timeout),
			AccountReferencePrefix: cfg.Payment.AccountReferencePrefix,
			Description:            cfg.Payment.Description,
		},
		Finalizer:     orchestrator,
		Clock:         clk,
		Observability: obs,
		Logger:        log,
	}
	return deps, orchestrator
}

func wireNotifications(opts *finalize.Options, cfg *config.Config, awsCfg aws.Config) {
	if cfg.Notifications.SMS.Enabled {
		opts.Notifier = awsx.NewSMSNotifierFromConfig(awsCfg, cfg.Notifications.SMS.SenderID)
	}
	if cfg.Notifications.OpsAlerts.Enabled && len(cfg.Notifications.OpsAlerts.To) > 0 {
		opts.Alerter = awsx.NewEmailAlerterFromConfig(awsCfg, cfg.Notifications.OpsAlerts.FromEmail, cfg.Notifications.OpsAlerts.To)
	}
}

type jobWorker interface {
	camunda.JobHandler
	GetTaskType() string
	IsEnabled() bool
	Timeout() time.Duration
	MaxJobsActive() int
}

func startWorkers(cfg *config.Config, zeebe *camunda.Client, reg *registry.ActivityRegistry, deps checkout.Deps, orchestrator *finalize.Orchestrator, log logger.Logger) ([]*camunda.Worker, error) {
	activity := func(taskType string) *registry.Activity {
		a, _ := reg.Find(taskType)
		return a
	}

	process, err := pp.NewHandler(pp.HandlerOptions{
		AppConfig: cfg,
		Activity:  activity(pp.TaskType),
		Checkout:  deps,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	finalizeApp, err := fa.NewHandler(fa.HandlerOptions{
		AppConfig: cfg,
		Activity:  activity(fa.TaskType),
		Finalizer: orchestrator,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	upload, err := ud.NewHandler(ud.HandlerOptions{
		AppConfig: cfg,
		Activity:  activity(ud.TaskType),
		Uploader:  orchestrator,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	var started []*camunda.Worker
	for _, h := range []jobWorker{process, finalizeApp, upload} {
		if !h.IsEnabled() {
			log.Info("worker disabled", map[string]interface{}{"taskType": h.GetTaskType()})
			continue
		}
		started = append(started, camunda.NewWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      h.GetTaskType(),
			MaxJobsActive: h.MaxJobsActive(),
			Timeout:       h.Timeout(),
		}, h, log))
	}
	return started, nil
}
