package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpserver "github.com/fyrsmithlabs/cigen/internal/http"
	"github.com/fyrsmithlabs/cigen/internal/logging"
	"github.com/fyrsmithlabs/cigen/internal/workflows"
	"github.com/fyrsmithlabs/cigen/pkg/secrets"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal batch worker and its HTTP API",
	Long: `Run a Temporal worker that executes BatchEvaluationWorkflow, together with an
HTTP server exposing /health, /metrics and the batch API.

Examples:
  TEMPORAL_HOST=temporal:7233 cigen worker`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func dialTemporal(a *app) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  a.cfg.Temporal.Host,
		Namespace: a.cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalLogger(a.logger.Named("temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ev, err := a.evaluator(ctx)
	if err != nil {
		return err
	}

	c, err := dialTemporal(a)
	if err != nil {
		return err
	}
	defer c.Close()
	a.logger.Info(ctx, "temporal client connected", zap.String("host", a.cfg.Temporal.Host))

	queue := a.cfg.Temporal.TaskQueue
	w := worker.New(c, queue, worker.Options{})
	w.RegisterWorkflow(workflows.BatchEvaluationWorkflow)
	w.RegisterActivity(&workflows.Activities{Evaluator: ev, Logger: a.logger.Named("activities")})

	redactor, err := secrets.NewRedactor(nil)
	if err != nil {
		return fmt.Errorf("creating redactor: %w", err)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(workflows.Collectors()...)

	server, err := httpserver.NewServer(redactor, a.logger.Underlying(),
		&httpserver.Config{Host: a.cfg.Server.Host, Port: a.cfg.Server.Port},
		httpserver.WithBatches(workflows.NewBatchClient(c, queue)),
		httpserver.WithGatherer(reg),
		httpserver.WithMetrics(httpserver.NewRequestMetrics(a.telemetry.Meter(httpserver.InstrumentationName), a.logger.Underlying())),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info(gctx, "worker starting", zap.String("task_queue", queue))
		stop := make(chan interface{})
		go func() {
			<-gctx.Done()
			close(stop)
		}()
		if err := w.Run(stop); err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	a.logger.Info(ctx, "worker stopped")
	return err
}
