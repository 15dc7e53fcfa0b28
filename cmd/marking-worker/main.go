package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sellerhub/marking/cmd/marking-worker/clients"
	"github.com/sellerhub/marking/cmd/marking-worker/consumer"
	"github.com/sellerhub/marking/cmd/marking-worker/ingest"
	"github.com/sellerhub/marking/cmd/marking-worker/reaction"
	"github.com/sellerhub/marking/common/bootstrap"
	"github.com/sellerhub/marking/common/db"
	"github.com/sellerhub/marking/common/idempotency"
	"github.com/sellerhub/marking/common/lifecycle"
	"github.com/sellerhub/marking/common/queue"
	"github.com/sellerhub/marking/common/repository"
	"github.com/sellerhub/marking/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "marking-worker",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return db.Migrate(ctx, database)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	cfg := components.Config
	log := components.Logger
	log.Info("marking-worker starting")

	codes := repository.NewCodeRepository(components.DB)
	machine := lifecycle.NewService(codes, log)
	guard := idempotency.NewRedisGuard(components.Redis, cfg.Guard.TTL)
	uploads := queue.NewStreamPublisher(components.Redis, log)

	ordersAPI := clients.NewOrdersClient(cfg.Clients.OrdersBaseURL, cfg.Clients.Timeout, log)
	catalogAPI := clients.NewCatalogClient(cfg.Clients.CatalogBaseURL, cfg.Clients.Timeout,
		components.Cache, cfg.Cache.DefaultTTL, log)

	pipeline := ingest.NewPipeline(ingest.PipelineOpts{
		Log:     log,
		Runner:  components.DB,
		Codes:   codes,
		Catalog: catalogAPI,
		Uploads: uploads,
		Raster:  ingest.NewPopplerRasterizer(log, cfg.Ingest.RasterDPI, cfg.Ingest.BorderPx),
		Decoder: ingest.NewDataMatrixDecoder(),
		Config:  cfg.Ingest,
	})

	completion := reaction.NewCompletionHandler(log, guard, components.DB, codes, machine, ordersAPI)
	cancellation := reaction.NewCancellationHandler(log, guard, components.DB, codes, machine, ordersAPI)

	orderConsumer := consumer.NewOrderConsumer(components.Redis, log, completion, cancellation)
	ingestConsumer := consumer.NewIngestConsumer(components.Redis, log, pipeline)

	errChan := make(chan error, 3)
	go func() {
		if err := orderConsumer.Start(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("order consumer error: %w", err)
		}
	}()
	go func() {
		if err := ingestConsumer.Start(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("ingest consumer error: %w", err)
		}
	}()

	// health endpoint for liveness probes, backed by the shared components
	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHandler(components.Health))
	healthServer := server.New("marking-worker", cfg.Service.Port, mux, log)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("health server error: %w", err)
		}
	}()

	log.Info("marking-worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("worker failed", "error", err)
		os.Exit(1)
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}

	log.Info("marking-worker shutting down gracefully")
}
