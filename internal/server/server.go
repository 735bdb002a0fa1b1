package server

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"tower/internal/cache"
	"tower/internal/database"
	"tower/internal/game"
	"tower/internal/history"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the game wiring read from the environment.
type Config struct {
	Layout          string
	LayoutsFile     string
	LeaderboardSize int
	HistoryWorkers  int
	IdleTimeout     time.Duration
	RateLimit       int
	MigrationsPath  string
}

func ConfigFromEnv() Config {
	return Config{
		Layout:          getEnv("TOWER_LAYOUT", game.LayoutClassic),
		LayoutsFile:     getEnv("TOWER_LAYOUTS_FILE", ""),
		LeaderboardSize: history.LeaderboardSizeFromEnv(),
		HistoryWorkers:  getEnvAsInt("HISTORY_WORKERS", history.DEFAULT_RECORDER_WORKERS),
		IdleTimeout:     getEnvAsDuration("ROUND_IDLE_TIMEOUT", game.DEFAULT_IDLE_TIMEOUT),
		RateLimit:       getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
	}
}

type FiberServer struct {
	*fiber.App

	cfg      Config
	db       database.Service
	cache    cache.Service
	manager  *game.Manager
	hub      *game.Hub
	history  history.Store
	recorder *history.Recorder
	log      *zap.Logger
}

// Deps are the collaborators a FiberServer serves. DB and Cache may be nil
// when the process runs on in-process stores.
type Deps struct {
	DB       database.Service
	Cache    cache.Service
	Manager  *game.Manager
	Hub      *game.Hub
	History  history.Store
	Recorder *history.Recorder
}

// New connects to Redis and Postgres when they are reachable, falling back
// to in-process stores otherwise, and builds the game around them.
func New(cfg Config, logger *zap.Logger) (*FiberServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("server")

	layouts := game.DefaultLayouts()
	if cfg.LayoutsFile != "" {
		if err := layouts.LoadLayouts(cfg.LayoutsFile); err != nil {
			return nil, err
		}
		log.Info("loaded layouts", zap.String("file", cfg.LayoutsFile), zap.Strings("layouts", layouts.Names()))
	}
	if _, ok := layouts.Get(cfg.Layout); !ok {
		return nil, fmt.Errorf("%w: unknown default layout %q", game.ErrInvalidConfig, cfg.Layout)
	}

	var (
		store  game.RoundStore = game.NewMemoryRoundStore()
		ledger game.Ledger     = game.NewMemoryLedger()
		hist   history.Store   = history.NewMemoryStore(cfg.LeaderboardSize)
		db     database.Service
	)

	rdb, err := cache.New(cache.ConfigFromEnv(), logger)
	if err != nil {
		log.Warn("running without redis, rounds and balances are in-process only", zap.Error(err))
	} else {
		store = game.NewRedisRoundStore(rdb.GetClient())
		ledger = game.NewRedisLedger(rdb.GetClient())
	}

	if database.Configured() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err = database.Connect(ctx)
		cancel()
		if err != nil {
			log.Warn("running without postgres, history is in-process only", zap.Error(err))
		} else if err := database.RunMigrations(db.DB(), cfg.MigrationsPath); err != nil {
			log.Warn("running without postgres history, migrations failed", zap.Error(err))
			db.Close()
			db = nil
		} else {
			hist = history.NewPostgresStore(db.Pool(), cfg.LeaderboardSize)
		}
	}

	recorder, err := history.NewRecorder(hist, cfg.HistoryWorkers, logger)
	if err != nil {
		return nil, fmt.Errorf("history recorder: %w", err)
	}

	hub := game.NewHub(logger)
	manager := game.NewManager(layouts, store, ledger, logger,
		game.WithDefaultLayout(cfg.Layout),
		game.WithRecorder(recorder),
		game.WithHub(hub),
	)

	s := NewFiberServer(cfg, Deps{
		DB:       db,
		Cache:    rdb,
		Manager:  manager,
		Hub:      hub,
		History:  hist,
		Recorder: recorder,
	}, logger)
	return s, nil
}

func NewFiberServer(cfg Config, d Deps, logger *zap.Logger) *FiberServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader: "tower",
			AppName:      "tower",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
			JSONEncoder:  json.Marshal,
			JSONDecoder:  json.Unmarshal,
		}),
		cfg:      cfg,
		db:       d.DB,
		cache:    d.Cache,
		manager:  d.Manager,
		hub:      d.Hub,
		history:  d.History,
		recorder: d.Recorder,
		log:      logger.Named("server"),
	}

	s.App.Use(recover.New())
	if cfg.RateLimit > 0 {
		s.App.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimit,
			Expiration: 1 * time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/health" || c.Path() == "/metrics"
			},
		}))
	}
	return s
}

// Run serves the websocket hub and settles idle rounds until ctx is done.
func (s *FiberServer) Run(ctx context.Context) error {
	go s.hub.Run(ctx)
	return s.manager.RunSweeper(ctx, game.SWEEP_INTERVAL, s.cfg.IdleTimeout)
}

// Shutdown stops accepting requests, drains pending history writes and
// closes the stores.
func (s *FiberServer) Shutdown(timeout time.Duration) error {
	s.log.Info("shutting down")

	err := s.App.ShutdownWithTimeout(timeout)

	if s.recorder != nil {
		if rerr := s.recorder.Close(timeout); rerr != nil {
			s.log.Warn("history writes still pending at shutdown", zap.Error(rerr))
		}
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}
