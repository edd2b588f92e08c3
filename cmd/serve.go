package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"image-platform/internal/gallery"
	"image-platform/internal/ingest"
	"image-platform/internal/metrics"
	"image-platform/internal/monitor"
	"image-platform/internal/server"
	"image-platform/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP API, and the processing worker unless disabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := metrics.New(prometheus.DefaultRegisterer)

		records, err := openMetadata(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer records.Close()

		blobs, filesRoot, err := openBlobs(ctx, cfg, log)
		if err != nil {
			return err
		}

		dispatcher, err := openDispatcher(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer dispatcher.Close()

		coord := ingest.New(blobs, records, dispatcher, m, log,
			ingest.WithMaxBytes(cfg.MaxUploadBytes),
			ingest.WithDispatchTimeout(cfg.Dispatch.Timeout))

		srv := server.NewServer(coord, gallery.New(records), log, server.Options{
			Addr:           cfg.ServerAddr,
			FrontendURL:    cfg.FrontendURL,
			MaxUploadBytes: cfg.MaxUploadBytes,
			FilesRoot:      filesRoot,
			Gatherer:       prometheus.DefaultGatherer,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if cfg.Worker.Embedded {
			consumer, err := openConsumer(cfg, log)
			if err != nil {
				stop()
				_ = g.Wait()
				return err
			}
			if consumer != nil {
				defer consumer.Close()
				proc := worker.NewProcessor(records, blobs, m, log, worker.ConfigFrom(cfg.Worker))
				g.Go(func() error { return consumer.Consume(gctx, proc.Process) })
				log.Info("embedded worker started", zap.String("backend", cfg.Dispatch.Backend))
			}
		}

		pending := monitor.NewPending(records, m, log, cfg.Worker.PendingAfter, cfg.Worker.PendingInterval)
		g.Go(func() error { return pending.Run(gctx) })

		err = g.Wait()
		log.Info("waiting for in-flight dispatches")
		coord.Wait()
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	},
}
