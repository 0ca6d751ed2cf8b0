// Package app assembles the reservation service from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-co-op/gocron/v2"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/tee-time-reservation/internal/cache"
	"github.com/iliyamo/tee-time-reservation/internal/config"
	"github.com/iliyamo/tee-time-reservation/internal/database"
	"github.com/iliyamo/tee-time-reservation/internal/handler"
	"github.com/iliyamo/tee-time-reservation/internal/lib/logger/sl"
	"github.com/iliyamo/tee-time-reservation/internal/middleware"
	"github.com/iliyamo/tee-time-reservation/internal/notify"
	"github.com/iliyamo/tee-time-reservation/internal/queue"
	"github.com/iliyamo/tee-time-reservation/internal/repository"
	"github.com/iliyamo/tee-time-reservation/internal/reservation"
	"github.com/iliyamo/tee-time-reservation/internal/roster"
	"github.com/iliyamo/tee-time-reservation/internal/router"
	"github.com/iliyamo/tee-time-reservation/internal/scheduler"
)

// App owns every long-lived resource of the service.
type App struct {
	log   *slog.Logger
	cfg   config.Config
	db    *sql.DB
	rdb   *redis.Client
	coord *reservation.Coordinator
	echo  *echo.Echo
	sched gocron.Scheduler

	stopConsumer context.CancelFunc
	consumerDone sync.WaitGroup
}

// New opens the database, connects to Redis when reachable and wires the
// coordinator, background jobs and HTTP routes.  Without Redis the service
// runs uncached, unlimited and with the roster read from the database.
func New(log *slog.Logger, cfg config.Config) (*App, error) {
	const op = "app.New"

	db, err := openDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.DB.Migrate {
		if err := database.Migrate(context.Background(), db, cfg.DB.Driver); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	a := &App{log: log, cfg: cfg, db: db}
	a.rdb = config.NewRedisClient(cfg.Redis)
	if a.rdb == nil {
		log.Warn("redis unreachable, running without cache, rate limit and live events",
			slog.String("addr", cfg.Redis.Address()))
	}

	store := repository.NewReservationRepo(db)
	users := repository.NewUserRepo(db)

	emitters := notify.Multi{}
	if url := cfg.Notify.BrokerURL(); url != "" {
		emitters = append(emitters, notify.NewPublisher(log, url, cfg.Notify.Queue))
	}
	collab := reservation.Collaborators{
		Notifier: emitters,
		Profiles: users,
		Roster:   roster.NewStoreIndex(store),
	}
	if a.rdb != nil {
		emitters = append(emitters, notify.NewBroadcaster(a.rdb))
		collab.Notifier = emitters
		collab.Cache = cache.NewInvalidator(log, a.rdb, cfg.Cache.Prefix)
		collab.Roster = roster.NewRedisIndex(a.rdb, cfg.Redis.Prefix).WithFallback(store)
	}

	a.coord = reservation.New(log, store, collab, reservation.Options{
		MaxAttempts:     cfg.Reservation.MaxAttempts,
		InitialBackoff:  cfg.Reservation.InitialBackoff,
		MaxBackoff:      cfg.Reservation.MaxBackoff,
		AttemptTimeout:  cfg.Reservation.AttemptTimeout,
		DispatchTimeout: cfg.Reservation.DispatchTimeout,
	})

	a.echo = newEcho(log)
	deps := router.Deps{
		JWTSecret:    cfg.JWTSecret,
		Health:       handler.Health(db),
		Reservations: handler.NewReservationHandler(log, a.coord),
		Profiles:     handler.NewProfileHandler(log, users),
	}
	if a.rdb != nil {
		deps.Cache = middleware.NewRedisCache(log, cfg.Cache, a.rdb)
		deps.Limit = middleware.NewTokenBucket(log, cfg.RateLimit, a.rdb)
	}
	router.RegisterRoutes(a.echo, deps)
	return a, nil
}

func openDB(cfg config.DBConfig) (*sql.DB, error) {
	if cfg.Driver == database.DriverSQLite {
		return database.OpenSQLite(cfg.SQLitePath)
	}
	return database.Open(cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name)
}

// newEcho builds the server with panic recovery and slog request logging.
func newEcho(log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if uid := middleware.UserID(c); uid != "" {
				attrs = append(attrs, slog.String("user_id", uid))
			}
			if v.Error != nil {
				attrs = append(attrs, sl.Err(v.Error))
				log.LogAttrs(c.Request().Context(), slog.LevelError, "request failed", attrs...)
				return nil
			}
			log.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	}))
	return e
}

// Run starts the background jobs and serves HTTP until Stop is called.
func (a *App) Run() error {
	const op = "app.Run"

	sweeper := scheduler.NewSweeper(a.log, a.coord, a.cfg.Invitations.TTL, a.cfg.Invitations.SweepBatch)
	sched, err := sweeper.Start(a.cfg.Invitations.SweepInterval)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	a.sched = sched

	if a.cfg.Notify.ConsumerEnabled && a.cfg.Notify.BrokerURL() != "" {
		ctx, cancel := context.WithCancel(context.Background())
		a.stopConsumer = cancel
		consumer := queue.NewConsumer(a.log, a.cfg.Notify.BrokerURL(), a.cfg.Notify.Queue, a.cfg.Notify.LogDir)
		a.consumerDone.Add(1)
		go func() {
			defer a.consumerDone.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("notification consumer stopped", sl.Err(err))
			}
		}()
	}

	addr := ":" + a.cfg.Port
	a.log.Info("listening", slog.String("addr", addr))
	if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop drains HTTP traffic, stops background work, waits for pending
// post-commit dispatches and closes connections.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if err := a.echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if a.sched != nil {
		if err := a.sched.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
	}
	if a.stopConsumer != nil {
		a.stopConsumer()
		a.consumerDone.Wait()
	}
	a.coord.Wait()
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("db close: %w", err))
	}
	return errors.Join(errs...)
}

// Handler exposes the HTTP handler, for tests.
func (a *App) Handler() http.Handler { return a.echo }
