package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/zailonsoft/carbot/internal/api"
	"github.com/zailonsoft/carbot/internal/catalog"
	"github.com/zailonsoft/carbot/internal/config"
	"github.com/zailonsoft/carbot/internal/flow"
	"github.com/zailonsoft/carbot/internal/lockfile"
	"github.com/zailonsoft/carbot/internal/media"
	"github.com/zailonsoft/carbot/internal/messaging"
	"github.com/zailonsoft/carbot/internal/metrics"
	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/scheduler"
	"github.com/zailonsoft/carbot/internal/store"
	"github.com/zailonsoft/carbot/internal/twiliowhatsapp"
	"github.com/zailonsoft/carbot/internal/whatsapp"
)

// redisPingTimeout bounds the startup connectivity check.
const redisPingTimeout = 5 * time.Second

// reportStore is the report log plus inbound dedup backing a deployment.
type reportStore interface {
	store.ReportLog
	store.DedupRepo
}

type memoryReportStore struct {
	*store.InMemoryReportLog
	*store.MemoryDedup
}

// run wires every module and blocks until SIGINT or SIGTERM.
func run(cfg Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release state lock", "error", err)
		}
	}()

	profile, err := loadProfile(cfg, flags)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	reports, err := openReportStore(flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := reports.Close(); err != nil {
			slog.Warn("Failed to close report store", "error", err)
		}
	}()

	throttle, err := buildThrottle(ctx, cfg, flags, profile)
	if err != nil {
		return err
	}
	uploads, err := buildMediaStore(ctx, cfg, flags)
	if err != nil {
		return err
	}
	catalogOpts, err := buildCatalogOptions(cfg, flags)
	if err != nil {
		return err
	}

	svc, apiOpts, err := buildChannel(ctx, cfg, flags, profile)
	if err != nil {
		return err
	}

	sessions := store.NewSessionStore()
	engineOpts := append(catalogOpts,
		flow.WithMedia(uploads),
		flow.WithThrottle(throttle),
		flow.WithReportLog(reports),
		flow.WithMetrics(m),
		flow.WithLocation(loadLocation(cfg.Timezone)),
	)
	engine := flow.NewEngine(svc, sessions, profile, engineOpts...)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(profile.SweepSchedule(), flow.NewReaper(engine).Job(ctx)); err != nil {
		return fmt.Errorf("failed to schedule idle sweep: %w", err)
	}

	apiOpts = append(buildAPIOptions(flags), apiOpts...)
	apiOpts = append(apiOpts,
		api.WithSessions(sessions),
		api.WithReportLog(reports),
		api.WithGatherer(reg),
	)
	server := api.NewServer(apiOpts...)
	apiErr := make(chan error, 1)
	go func() { apiErr <- server.Run(ctx) }()

	go consumeReceipts(svc.Receipts(), m)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			slog.Warn("Failed to stop messaging service", "error", err)
		}
	}()

	dispatcher := messaging.NewDispatcher(engine, messaging.WithDedup(reports), messaging.WithMetrics(m))
	go dispatcher.Run(ctx, svc.Inbound())
	slog.Info("carbot ready", "bot", profile.BotName, "dealership", profile.Dealership)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
		runErr = <-apiErr
	case runErr = <-apiErr:
		slog.Error("API server stopped", "error", runErr)
		stop()
	}
	dispatcher.Wait()
	return runErr
}

func loadProfile(cfg Config, flags Flags) (*config.Profile, error) {
	profile, err := config.Load(*flags.profileFile)
	if err != nil {
		return nil, err
	}
	if len(cfg.StaffContacts) > 0 {
		slog.Debug("STAFF_CONTACTS overrides profile staff contacts", "count", len(cfg.StaffContacts))
		profile.StaffContacts = cfg.StaffContacts
	}
	if len(profile.StaffContacts) == 0 {
		slog.Warn("No staff contacts configured; completed funnels will only be logged")
	}
	return profile, nil
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("Unknown timezone, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}

func openReportStore(flags Flags) (reportStore, error) {
	opts := buildStoreOptions(flags)
	if len(opts) == 0 {
		return memoryReportStore{store.NewInMemoryReportLog(), store.NewMemoryDedup(0)}, nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		s, err := store.NewPostgresStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	}
	s, err := store.NewSQLiteStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	return s, nil
}

func buildThrottle(ctx context.Context, cfg Config, flags Flags, profile *config.Profile) (store.Throttle, error) {
	if *flags.redisAddr == "" {
		return store.NewMemoryThrottle(profile.WelcomeCooldown), nil
	}
	client := redis.NewClient(&redis.Options{Addr: *flags.redisAddr, Password: cfg.RedisPassword})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", *flags.redisAddr, err)
	}
	slog.Info("Greeting throttle backed by Redis", "addr", *flags.redisAddr)
	return store.NewRedisThrottle(client, profile.WelcomeCooldown), nil
}

func buildMediaStore(ctx context.Context, cfg Config, flags Flags) (media.Store, error) {
	if cfg.MediaBucket == "" {
		return media.NewFSStore(filepath.Join(*flags.stateDir, DefaultDocumentsDir))
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	slog.Info("Uploads stored in S3", "bucket", cfg.MediaBucket, "prefix", cfg.MediaPrefix)
	return media.NewS3Store(s3.NewFromConfig(awsCfg), cfg.MediaBucket, cfg.MediaPrefix), nil
}

// buildCatalogOptions prefers the dealership service, then a local file.
func buildCatalogOptions(cfg Config, flags Flags) ([]flow.Option, error) {
	switch {
	case *flags.catalogURL != "":
		client, err := catalog.NewHTTPClient(*flags.catalogURL)
		if err != nil {
			return nil, err
		}
		cached := catalog.NewCached(client, cfg.CatalogCacheTTL)
		return []flow.Option{flow.WithCatalog(cached), flow.WithImages(cached), flow.WithClients(client)}, nil
	case *flags.catalogFile != "":
		cached := catalog.NewCached(catalog.NewFileCatalog(*flags.catalogFile), cfg.CatalogCacheTTL)
		return []flow.Option{flow.WithCatalog(cached), flow.WithImages(cached)}, nil
	default:
		slog.Warn("No catalog configured; the bot will offer an empty stock")
		return nil, nil
	}
}

// buildChannel creates the messaging service and the API options it needs.
func buildChannel(ctx context.Context, cfg Config, flags Flags, profile *config.Profile) (messaging.Service, []api.Option, error) {
	if *flags.useTwilio {
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create twilio client: %w", err)
		}
		base := cfg.PublicBaseURL
		if base == "" {
			base = profile.PublicMediaBaseURL
		}
		if base == "" {
			slog.Warn("No public base URL; media replies cannot be delivered through Twilio")
		}
		svc := messaging.NewTwilioService(client,
			messaging.WithPublicBaseURL(base),
			messaging.WithSignatureValidation(cfg.TwilioVerify))
		return svc, []api.Option{api.WithChannel("twilio", svc), api.WithTwilio(svc)}, nil
	}

	client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags, cfg.LogLevel)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create whatsapp client: %w", err)
	}
	svc := messaging.NewWhatsAppService(client)
	return svc, []api.Option{api.WithChannel("whatsapp", svc), api.WithQRCode(client.QRCodePNG)}, nil
}

// consumeReceipts counts delivery receipts until the channel closes.
func consumeReceipts(receipts <-chan models.Receipt, m *metrics.Metrics) {
	for r := range receipts {
		m.ObserveReceipt(string(r.Status))
	}
}
