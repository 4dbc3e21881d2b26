// Package app wires the scheduling services from configuration. Both the API
// server and the expiry worker build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/telehealth-scheduling/internal/api"
	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/clinictime"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/lock"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
	"github.com/hackgods/telehealth-scheduling/internal/schedule"
)

type App struct {
	Config       config.Config
	Log          logrus.FieldLogger
	Metrics      *metrics.Collector
	Appointments *appointment.Service
	Schedules    *schedule.Service
	Dispatcher   *notify.Dispatcher

	// nil when the backend is not configured
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// Build connects the configured backends and assembles the services. The
// dispatcher is started; Close drains it and releases connections.
func Build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}

	var (
		store schedule.Store
		repo  appointment.Repository
		dir   notify.Directory
	)
	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		store = schedule.NewPgStore(pool)
		repo = appointment.NewPgRepository(pool)
		dir = notify.NewPgDirectory(pool)
		log.Info("connected to postgres")
	default:
		store = schedule.NewMemoryStore()
		repo = appointment.NewMemoryRepository()
		dir = notify.NewMemoryDirectory()
		log.Warn("using in-memory storage; data is lost on restart")
	}

	var locker lock.Locker
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			a.closeConns()
			return nil, err
		}
		a.Redis = rdb
		locker = redisclient.NewDoctorLocker(rdb, cfg.LockTTL)
		log.Info("connected to redis")
	default:
		locker = lock.NewLocal()
		log.Warn("using process-local doctor locks; run a single instance")
	}

	clock := clinictime.SystemClock{}
	cached := availability.NewCachedStore(store, cfg.ScheduleCache, clock)
	resolver := availability.NewResolver(cached, appointment.NewBookingSource(repo), clock,
		availability.WithStorageTimeout(cfg.StorageTimeout),
		availability.WithLogger(log),
	)

	a.Dispatcher = notify.NewDispatcher(notify.Options{
		Workers:   cfg.HookWorkers,
		QueueSize: cfg.HookQueueSize,
		Logger:    log,
		Metrics:   a.Metrics,
	}, subscribers(cfg, dir, log)...)
	a.Dispatcher.Start(ctx)

	a.Schedules = schedule.NewService(store, cached, schedule.Options{
		DefaultTimezone: cfg.DefaultTimezone,
		StorageTimeout:  cfg.StorageTimeout,
		Logger:          log,
	})
	a.Appointments = appointment.NewService(repo, resolver, locker, cfg,
		appointment.WithPublisher(a.Dispatcher),
		appointment.WithLogger(log),
		appointment.WithMetrics(a.Metrics),
	)
	return a, nil
}

func subscribers(cfg config.Config, dir notify.Directory, log logrus.FieldLogger) []notify.Subscriber {
	subs := []notify.Subscriber{
		notify.LogSubscriber{Log: log},
		notify.NewPaymentSubscriber(notify.LogGateway{Log: log}),
	}
	if cfg.SMTP.Enabled() {
		subs = append(subs, notify.NewSMTPNotifier(cfg.SMTP, dir))
	}
	if cfg.PushEnabled {
		subs = append(subs, notify.NewPushNotifier(expo.NewPushClient(nil), dir))
	}
	return subs
}

// RouterConfig exposes the services to the HTTP layer.
func (a *App) RouterConfig(version string) api.RouterConfig {
	rc := api.RouterConfig{
		Appointments: a.Appointments,
		Schedules:    a.Schedules,
		Metrics:      a.Metrics,
		Logger:       a.Log,
		Env:          a.Config.Env,
		Version:      version,
	}
	if a.Pool != nil {
		rc.Postgres = db.PoolPinger{Pool: a.Pool}
	}
	if a.Redis != nil {
		rc.Redis = redisclient.Pinger{Client: a.Redis}
	}
	return rc
}

// Close drains pending lifecycle hooks, then closes connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain hooks: %w", err))
		}
	}
	if err := a.closeConns(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeConns() error {
	var err error
	if a.Redis != nil {
		if cerr := a.Redis.Close(); cerr != nil {
			err = fmt.Errorf("close redis: %w", cerr)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return err
}
