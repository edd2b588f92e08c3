package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"image-platform/internal/metrics"
	"image-platform/internal/monitor"
	"image-platform/internal/server"
	"image-platform/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes processing triggers and completes image records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		consumer, err := openConsumer(cfg, log)
		if err != nil {
			return err
		}
		if consumer == nil {
			return errors.New("dispatch backend lambda has no in-process consumer")
		}
		defer consumer.Close()

		records, err := openMetadata(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer records.Close()

		blobs, _, err := openBlobs(ctx, cfg, log)
		if err != nil {
			return err
		}

		m := metrics.New(prometheus.DefaultRegisterer)
		proc := worker.NewProcessor(records, blobs, m, log, worker.ConfigFrom(cfg.Worker))
		pending := monitor.NewPending(records, m, log, cfg.Worker.PendingAfter, cfg.Worker.PendingInterval)

		log.Info("worker started", zap.String("backend", cfg.Dispatch.Backend))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return consumer.Consume(gctx, proc.Process) })
		g.Go(func() error { return pending.Run(gctx) })

		if cfg.Worker.MetricsAddr != "" {
			ms := server.NewMetricsServer(cfg.Worker.MetricsAddr, prometheus.DefaultGatherer, log)
			g.Go(ms.Start)
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return ms.Shutdown(shutdownCtx)
			})
		}
		return g.Wait()
	},
}
