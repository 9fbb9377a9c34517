// The admin binary runs the whole write side in one process: SQLite event
// store, command bus, projections, deferred-command scheduler, outbox
// publisher and the HTTP ingress. NATS can be embedded for single-binary
// deployments.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/slapcommerce/core-sub014/pkg/auth"
	"github.com/slapcommerce/core-sub014/pkg/commands"
	"github.com/slapcommerce/core-sub014/pkg/config"
	"github.com/slapcommerce/core-sub014/pkg/httpapi"
	"github.com/slapcommerce/core-sub014/pkg/imagestore"
	"github.com/slapcommerce/core-sub014/pkg/observability"
	"github.com/slapcommerce/core-sub014/pkg/outbox"
	"github.com/slapcommerce/core-sub014/pkg/projection"
	"github.com/slapcommerce/core-sub014/pkg/runner"
	"github.com/slapcommerce/core-sub014/pkg/scheduler"
	"github.com/slapcommerce/core-sub014/pkg/store/sqlite"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())

	st, err := sqlite.New(sqlite.WithDSN(cfg.DatabaseDSN))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	services := commands.NewServices(st, logger, nil)
	bus := commands.NewBus()
	bus.Use(commands.MetricsMiddleware(tel.Meter("commands")))
	bus.Use(commands.LoggingMiddleware(logger))
	bus.Use(commands.RecoveryMiddleware(logger))
	services.Register(bus)

	schedules := projection.NewScheduleList(st.DB())
	projCfg := projection.DefaultConfig()
	projCfg.PollInterval = cfg.ProjectionPollInterval
	projections := projection.NewRunner(st, st, projCfg, logger)
	projections.Register(
		projection.NewProductList(st.DB()),
		projection.NewVariantList(st.DB()),
		projection.NewCollectionList(st.DB()),
		projection.NewSlugDirectory(st.DB()),
		schedules,
	)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.PollInterval = cfg.SchedulerPollInterval
	schedCfg.MaxAttempts = cfg.SchedulerMaxAttempts
	sched := scheduler.New(schedules, services.Schedule, bus, schedCfg, nil, logger)

	natsURL := cfg.NATSURL
	var embedded *natsserver.Server
	if cfg.NATSEmbedded {
		embedded, err = startEmbeddedNATS(cfg.NATSStoreDir)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		defer embedded.Shutdown()
		natsURL = embedded.ClientURL()
		logger.Info("embedded nats started", slog.String("url", natsURL))
	}

	busCfg := outbox.DefaultBusConfig()
	busCfg.URL = natsURL
	eventBus, err := outbox.NewEventBus(busCfg)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer eventBus.Close()

	outCfg := outbox.DefaultConfig()
	outCfg.PublishInterval = cfg.OutboxPublishInterval
	publisher := outbox.NewPublisher(st.NewOutboxRepository(), eventBus, outCfg, nil, logger)

	bucket, err := blob.OpenBucket(ctx, cfg.ImageBucketURL)
	if err != nil {
		return fmt.Errorf("open image bucket: %w", err)
	}
	defer bucket.Close()
	images, err := imagestore.NewBlobStore(bucket, cfg.CDNBaseURL)
	if err != nil {
		return fmt.Errorf("create image store: %w", err)
	}

	api := httpapi.NewServer(httpapi.Config{
		Bus:               bus,
		Views:             projection.NewViews(st.DB()),
		Sessions:          auth.NewSessions([]byte(cfg.AuthSecret), cfg.SessionTTL, nil),
		Origins:           auth.NewOriginPolicy(cfg.AllowedOrigins()),
		Images:            images,
		Logger:            logger,
		AdminPrincipal:    cfg.AdminPrincipal,
		AdminPasswordHash: cfg.AdminPasswordHash,
		ClientIPHeader:    cfg.ClientIPHeader,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Background loops outlive the runner's startup contexts, so they run
	// on the process context and stop through their own Stop methods.
	r := runner.New([]runner.Service{
		runner.NewService("projections",
			func(context.Context) error { return projections.Start(ctx) },
			func(context.Context) error { projections.Stop(); return nil }),
		runner.NewService("scheduler",
			func(context.Context) error { sched.Start(ctx); return nil },
			func(context.Context) error { sched.Stop(); return nil }),
		runner.NewService("outbox-publisher",
			func(context.Context) error { publisher.Start(ctx); return nil },
			func(context.Context) error { publisher.Stop(); return nil }),
		runner.NewService("http", startHTTP(httpServer, logger), httpServer.Shutdown),
	}, runner.WithLogger(logger))

	logger.Info("admin service starting",
		slog.String("listen", cfg.ListenAddr),
		slog.String("environment", cfg.Environment),
		slog.String("version", version))
	return r.Run(ctx)
}

// startHTTP launches ListenAndServe in the background and surfaces bind
// errors through the runner's startup window.
func startHTTP(srv *http.Server, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		select {
		case err := <-errCh:
			return err
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func startEmbeddedNATS(storeDir string) (*natsserver.Server, error) {
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  storeDir,
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, err
	}
	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded nats not ready after 10s")
	}
	return srv, nil
}
