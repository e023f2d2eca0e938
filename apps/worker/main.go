package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/seminar"
	"github.com/trezcool/warsha/services/email"
	"github.com/trezcool/warsha/services/logger"
	"github.com/trezcool/warsha/services/queue"
	"github.com/trezcool/warsha/storage/database"
	"github.com/trezcool/warsha/storage/database/sqlboiler"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewZerolog(os.Stdout, "WORKER", conf), conf)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil {
		logger.Error("worker stopped", err)
		stop()
		logger.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, conf *core.Config, logger core.Logger) error {
	logger.Info(fmt.Sprintf("Worker initializing : version %q", conf.Build))

	db, err := database.Open(conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	if err = database.Ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(os.Stdout, conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}
	registry := seminar.JobKinds(boiledrepos.NewRegistrationRepository(db), mailSvc, conf)

	wmLogger := logsvc.NewWatermillAdapter(logger, conf.Debug)
	backend, err := queue.Open(conf.Queue, wmLogger, true)
	if err != nil {
		return errors.Wrap(err, "opening queue")
	}
	defer func() { _ = backend.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	worker, err := queue.NewWorker(backend, registry, conf.Queue, queue.NewMetrics(reg), logger, wmLogger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: conf.Worker.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	return serve(ctx, worker, srv, conf.Server.ShutdownTimeout, logger)
}

// serve runs worker and the metrics server until ctx is canceled or one of them fails.
func serve(ctx context.Context, worker *queue.Worker, srv *http.Server, shutdownTimeout time.Duration, logger core.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return errors.Wrap(worker.Run(ctx), "running worker")
	})
	g.Go(func() error {
		logger.Info("serving metrics on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "serving metrics")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Start shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return errors.Wrap(err, "stopping metrics server")
		}
		return nil
	})

	return g.Wait()
}
