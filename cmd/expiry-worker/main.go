package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/telehealth-scheduling/internal/app"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config load error")
	}
	log := logging.New(cfg.LogLevel, cfg.Env)
	log.WithFields(logrus.Fields{
		"env":             cfg.Env,
		"interval":        cfg.WorkerInterval,
		"pending_timeout": cfg.PendingTimeout,
	}).Info("expiry-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(rootCtx, 15*time.Second)
	application, err := app.Build(connectCtx, cfg, log)
	cancel()
	if err != nil {
		log.WithError(err).Error("startup failed")
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}()

	run(rootCtx, application, log)
}

func run(ctx context.Context, a *app.App, log logrus.FieldLogger) {
	runOnce(ctx, a, log)

	ticker := time.NewTicker(a.Config.WorkerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(ctx, a, log)
		}
	}
}

func runOnce(ctx context.Context, a *app.App, log logrus.FieldLogger) {
	runCtx, cancel := context.WithTimeout(ctx, a.Config.WorkerInterval)
	defer cancel()

	start := time.Now()
	n, err := a.Appointments.ExpirePendingAppointments(runCtx)
	entry := log.WithFields(logrus.Fields{"expired": n, "duration_ms": time.Since(start).Milliseconds()})
	if err != nil {
		entry.WithError(err).Error("expiry run failed")
		return
	}
	if n > 0 {
		entry.Info("expiry run complete")
	} else {
		entry.Debug("expiry run complete")
	}
}
