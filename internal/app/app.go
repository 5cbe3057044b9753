// Package app assembles the fulfillment core from configuration. Both the
// service binary and the operator CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"jobmate/fulfillment-service/internal/config"
	"jobmate/fulfillment-service/internal/conversion"
	"jobmate/fulfillment-service/internal/db"
	"jobmate/fulfillment-service/internal/directory"
	"jobmate/fulfillment-service/internal/events"
	"jobmate/fulfillment-service/internal/lifecycle"
	"jobmate/fulfillment-service/internal/matching"
	"jobmate/fulfillment-service/internal/notify"
	"jobmate/fulfillment-service/internal/outbox"
	"jobmate/fulfillment-service/internal/reminder"
	"jobmate/fulfillment-service/internal/store"
)

// Breaker settings for channel gateways.
const (
	breakerMaxFailures = 5
	breakerCoolDown    = 30 * time.Second
)

// App holds every wired component.
type App struct {
	Config *config.Config

	Store     *store.Store
	Redis     *redis.Client  // nil when REDIS_URL is unset
	Pool      *pgxpool.Pool  // nil unless the directory reads Postgres
	Outbox    *outbox.Outbox // nil when OUTBOX_DIR is unset
	Directory directory.Directory

	Engine     *matching.Engine
	Lifecycle  *lifecycle.Service
	Notify     *notify.Orchestrator
	Conversion *conversion.Orchestrator
	Reminders  *reminder.Worker

	closers []func() error
}

// New connects every backend named by cfg and wires the services. On error
// whatever was already opened is closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) (err error) {
	cfg := a.Config

	// ── Datastore ────────────────────────────────────────────────────────────
	a.Store, err = store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)

	// ── Redis ────────────────────────────────────────────────────────────────
	if cfg.RedisURL != "" {
		a.Redis, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, a.Redis.Close)
	}

	// ── Events ───────────────────────────────────────────────────────────────
	var pubs events.Multi
	if a.Redis != nil {
		pubs = append(pubs, events.NewRedisPublisher(a.Redis))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		pubs = append(pubs, kp)
		a.closers = append(a.closers, kp.Close)
	}

	// ── Provider directory ───────────────────────────────────────────────────
	if err := a.openDirectory(ctx); err != nil {
		return err
	}

	// ── Notifications ────────────────────────────────────────────────────────
	templates := notify.DefaultTemplates()
	if cfg.TemplatesFile != "" {
		if templates, err = notify.LoadTemplates(cfg.TemplatesFile); err != nil {
			return fmt.Errorf("templates: %w", err)
		}
	}
	opts := []notify.Option{notify.WithTemplates(templates)}
	if cfg.ChannelTimeout > 0 {
		opts = append(opts, notify.WithChannelTimeout(cfg.ChannelTimeout))
	}
	if cfg.OutboxDir != "" {
		a.Outbox, err = outbox.Open(cfg.OutboxDir)
		if err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
		a.closers = append(a.closers, a.Outbox.Close)
		opts = append(opts, notify.WithDeadLetters(a.Outbox))
	}
	a.Notify = notify.NewOrchestrator(senders(cfg), a.Store.Queries(), opts...)

	// ── Core services ────────────────────────────────────────────────────────
	a.Engine = matching.NewEngine(a.Directory, matching.WithTuning(cfg.Tuning))
	a.Lifecycle = lifecycle.NewService(a.Store, pubs, lifecycle.WithNotifier(a.Notify))
	a.Conversion = conversion.New(a.Store, a.Lifecycle, a.Directory,
		conversion.WithNotifier(a.Notify),
		conversion.WithPublisher(pubs),
		conversion.WithDefaultHours(cfg.DefaultEstimatedHours),
	)
	a.Reminders = reminder.NewWorker(a.Store, a.Notify)
	return nil
}

func (a *App) openDirectory(ctx context.Context) error {
	cfg := a.Config
	var dir directory.Directory
	switch driver, _ := db.DriverFor(cfg.DatabaseURL); {
	case cfg.DirectoryFile != "":
		static, err := directory.LoadStatic(cfg.DirectoryFile)
		if err != nil {
			return fmt.Errorf("directory: %w", err)
		}
		dir = static
	case driver == db.DriverPostgres:
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("directory: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		dir = directory.NewPostgres(pool)
	default:
		log.Println("[fulfillment] No DIRECTORY_FILE for a SQLite store; provider directory is empty")
		dir = directory.NewStatic(nil)
	}

	if a.Redis != nil && cfg.DirectoryCacheTTL > 0 {
		dir = directory.NewCached(dir, a.Redis, cfg.DirectoryCacheTTL)
	}
	a.Directory = dir
	return nil
}

// senders binds an HTTP gateway behind a circuit breaker to every channel
// with a configured URL and a log sender to the others.
func senders(cfg *config.Config) notify.Senders {
	bind := func(ch notify.Channel, url string) notify.Sender {
		if url == "" {
			return notify.LogSender{}
		}
		return notify.NewBreakerSender(string(ch), notify.NewHTTPSender(url, cfg.GatewayToken),
			breakerMaxFailures, breakerCoolDown)
	}
	return notify.Senders{
		Message: bind(notify.ChannelMessage, cfg.MessageGatewayURL),
		SMS:     bind(notify.ChannelSMS, cfg.SMSGatewayURL),
		Push:    bind(notify.ChannelPush, cfg.PushGatewayURL),
	}
}

// Close drains background notifications, then closes backends in reverse
// order of opening.
func (a *App) Close() error {
	if a.Notify != nil {
		a.Notify.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Describe summarises the wiring for the startup banner.
func (a *App) Describe() string {
	parts := []string{"store=" + storeKind(a.Config.DatabaseURL)}
	if a.Redis != nil {
		parts = append(parts, "redis")
	}
	if len(a.Config.KafkaBrokers) > 0 {
		parts = append(parts, "kafka="+a.Config.EventsTopic)
	}
	if a.Outbox != nil {
		parts = append(parts, "outbox="+a.Config.OutboxDir)
	}
	return strings.Join(parts, " ")
}

func storeKind(databaseURL string) string {
	driver, _ := db.DriverFor(databaseURL)
	return driver
}
