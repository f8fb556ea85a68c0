// Package bootstrap assembles the engine from configuration: the selected
// store backend, the optional Redis cache and event transport, the rule set
// and every command and query handler. The worker and the CLI share it.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/fiberfriends/companion-engine/config"
	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/application/eventhandler"
	"github.com/fiberfriends/companion-engine/internal/application/query"
	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/messaging"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/persistence/memory"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/persistence/mongodb"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/persistence/postgres"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/persistence/redis"
	"github.com/fiberfriends/companion-engine/pkg/circuitbreaker"
	"github.com/fiberfriends/companion-engine/pkg/logger"
	"github.com/fiberfriends/companion-engine/pkg/timeutil"
)

// Stores groups the persistence ports of one backend.
type Stores struct {
	Progress     progress.Repository
	Activity     ActivityStore
	Scores       impact.ScoreRepository
	Achievements impact.AchievementRepository
}

// ActivityStore reads and appends activity records.
type ActivityStore interface {
	impact.ActivitySource
	impact.ActivityRecorder
}

// Commands holds the write-side handlers.
type Commands struct {
	GrantPoints            *command.GrantPointsHandler
	RecordActivity         *command.RecordActivityHandler
	ResetProgress          *command.ResetProgressHandler
	AcknowledgeCelebration *command.AcknowledgeCelebrationHandler
	ResetCounters          *command.ResetCountersHandler
	CalculateImpact        *command.CalculateImpactHandler
}

// Queries holds the read-side handlers.
type Queries struct {
	TierProgress *query.GetTierProgressHandler
	PointHistory *query.GetPointHistoryHandler
	ImpactScore  *query.GetImpactScoreHandler
}

// App is a fully wired engine.
type App struct {
	Config   *config.Config
	Rules    *config.Rules
	Log      *logger.Logger
	Clock    clockwork.Clock
	Calendar *timeutil.Calendar

	Stores   Stores
	Cache    impact.ScoreCache
	EventBus shared.EventBus
	Commands Commands
	Queries  Queries

	// Postgres is set only for the postgres backend.
	Postgres *postgres.Connection

	closers []func(context.Context) error
}

// Options tweaks New.
type Options struct {
	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// SkipMigrations leaves the schema alone even when AutoMigrate is set.
	SkipMigrations bool
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	switch cfg.Observability.LogFormat {
	case "console", "text":
		opts.Format = logger.FormatConsole
	default:
		opts.Format = logger.FormatJSON
	}
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// New connects to the configured backends and wires every handler. On error
// anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	rules, err := config.LoadRules(cfg.Engine.RulesPath)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Rules:    rules,
		Log:      log,
		Clock:    opts.Clock,
		Calendar: timeutil.NewCalendar(cfg.App.Location, opts.Clock),
	}

	// Store and Redis connect independently.
	var (
		cache *redis.Cache
		g     errgroup.Group
	)
	g.Go(func() error {
		return app.openStores(ctx, opts)
	})
	if !cfg.Redis.Disabled {
		g.Go(func() error {
			c, err := redis.NewCache(redisConfig(cfg.Redis))
			if err != nil {
				return err
			}
			cache = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		_ = app.Close(context.Background())
		return nil, err
	}

	if err := app.wireEvents(cache); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	if err := app.wireHandlers(); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}

	log.Info("engine wired",
		logger.String("store", string(cfg.Store.Backend)),
		logger.Bool("redis", cache != nil),
		logger.Int("tiers", rules.Tiers.MaxLevel()),
		logger.Int("achievement_rules", len(rules.Achievements)),
	)
	return app, nil
}

func (a *App) openStores(ctx context.Context, opts Options) error {
	cfg := a.Config
	switch cfg.Store.Backend {
	case config.StoreMemory:
		a.Stores = Stores{
			Progress:     memory.NewProgressStore(a.Clock),
			Activity:     memory.NewActivityStore(),
			Scores:       memory.NewScoreStore(),
			Achievements: memory.NewAchievementStore(),
		}
		a.Log.Warn("using in-memory store, state is lost on exit")
		return nil

	case config.StorePostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Database.URL
		pgCfg.MaxConns = cfg.Database.MaxConns
		pgCfg.MinConns = cfg.Database.MinConns
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.Postgres = conn
		a.onClose(func(context.Context) error { conn.Close(); return nil })

		if cfg.Database.AutoMigrate && !opts.SkipMigrations {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.Log.Info("database schema is up to date", logger.Int("applied", applied))
		}

		a.Stores = Stores{
			Progress:     postgres.NewProgressRepository(conn, a.Clock.Now),
			Activity:     postgres.NewActivityRepository(conn),
			Scores:       postgres.NewScoreRepository(conn),
			Achievements: postgres.NewAchievementRepository(conn),
		}
		return nil

	case config.StoreMongo:
		client, err := mongodb.Connect(ctx, mongodb.Config{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
			MaxPoolSize:    cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			return fmt.Errorf("connect mongodb: %w", err)
		}
		a.onClose(client.Close)

		if err := client.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongodb indexes: %w", err)
		}

		a.Stores = Stores{
			Progress:     mongodb.NewProgressRepository(client, a.Clock.Now),
			Activity:     mongodb.NewActivityRepository(client),
			Scores:       mongodb.NewScoreRepository(client),
			Achievements: mongodb.NewAchievementRepository(client),
		}
		return nil
	}
	return fmt.Errorf("%w: unknown store backend %q", shared.ErrConfiguration, cfg.Store.Backend)
}

func (a *App) wireEvents(cache *redis.Cache) error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = a.Log

	if cache == nil {
		bus := messaging.NewInMemoryEventBus(local)
		a.EventBus = bus
		a.onClose(func(context.Context) error { return bus.Close() })
		return nil
	}

	a.onClose(func(context.Context) error { return cache.Close() })
	breaker := circuitbreaker.New("impact-cache",
		circuitbreaker.WithIsFailure(redis.IsCacheFailure),
		circuitbreaker.WithClock(a.Clock),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			a.Log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	)
	a.Cache = redis.NewScoreCache(cache, a.Config.Redis.ImpactCacheTTL).WithBreaker(breaker)

	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         redis.NewPubSub(cache),
		ChannelName:    a.Config.Redis.EventChannel,
		LocalBusConfig: local,
		Logger:         a.Log,
	})
	if err != nil {
		return fmt.Errorf("redis event bus: %w", err)
	}
	a.EventBus = bus
	// Registered after the cache so it closes first.
	a.onClose(func(context.Context) error { return bus.Close() })
	return nil
}

func (a *App) wireHandlers() error {
	scorer, err := impact.NewScorer(a.Rules.Impact, a.Calendar)
	if err != nil {
		return err
	}

	grants := command.NewGrantPointsHandler(
		a.Stores.Progress,
		a.Rules.Tiers,
		a.Rules.PointValues,
		a.EventBus,
		a.Clock,
		a.Log,
		command.GrantPointsHandlerConfig{ConflictRetries: a.Config.Engine.GrantConflictRetries},
	)
	calculate := command.NewCalculateImpactHandler(command.CalculateImpactDeps{
		Source:         a.Stores.Activity,
		Scorer:         scorer,
		Scores:         a.Stores.Scores,
		Achievements:   a.Stores.Achievements,
		Rules:          a.Rules.Achievements,
		Cache:          a.Cache,
		EventPublisher: a.EventBus,
		Clock:          a.Clock,
		Logger:         a.Log,
	})

	a.Commands = Commands{
		GrantPoints:            grants,
		RecordActivity:         command.NewRecordActivityHandler(a.Stores.Activity, grants, a.Rules.PointValues, a.Cache, a.Clock, a.Log),
		ResetProgress:          command.NewResetProgressHandler(a.Stores.Progress, a.EventBus, a.Clock, a.Log),
		AcknowledgeCelebration: command.NewAcknowledgeCelebrationHandler(a.Stores.Progress, a.EventBus, a.Clock, a.Log),
		ResetCounters:          command.NewResetCountersHandler(a.Stores.Progress, a.EventBus, a.Log),
		CalculateImpact:        calculate,
	}
	a.Queries = Queries{
		TierProgress: query.NewGetTierProgressHandler(a.Stores.Progress, a.Rules.Tiers, a.Clock),
		PointHistory: query.NewGetPointHistoryHandler(a.Stores.Progress),
		ImpactScore: query.NewGetImpactScoreHandler(
			a.Stores.Scores,
			a.Stores.Achievements,
			a.Cache,
			calculate,
			a.Config.Engine.ImpactStaleAfter,
			a.Clock,
			a.Log,
		),
	}

	streaks := eventhandler.NewOnImpactCalculatedHandler(grants, a.Stores.Progress, a.Calendar, nil, a.Log)
	if err := a.EventBus.Subscribe(shared.EventImpactScoreCalculated, streaks.Handle); err != nil {
		return fmt.Errorf("subscribe streak milestones: %w", err)
	}
	return nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i](ctx))
	}
	a.closers = nil
	return err
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	rc.MinIdleConns = c.MinIdleConns
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		rc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		rc.WriteTimeout = c.WriteTimeout
	}
	return rc
}

// ShutdownContext returns a context bounded by the configured shutdown timeout.
func ShutdownContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	timeout := cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
