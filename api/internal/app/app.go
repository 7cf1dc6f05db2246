// Package app wires configuration, storage, the model gateway and the
// orchestrator into one container shared by the server, the bot and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"parascope/api/internal/config"
	"parascope/api/internal/imageref"
	"parascope/api/internal/logger"
	"parascope/api/internal/notify"
	"parascope/api/internal/pipeline"
	"parascope/api/internal/report"
	"parascope/api/internal/sample"
	"parascope/api/internal/store"
	"parascope/api/internal/vision"
	"parascope/api/internal/vision/gemini"
	"parascope/api/internal/vision/openai"
)

type Samples interface {
	pipeline.SampleStore
	List(ctx context.Context, limit, offset int) ([]sample.Sample, error)
}

type Reports interface {
	pipeline.ReportStore
	Get(ctx context.Context, sampleID string) (*sample.Report, error)
	UpdateAnnotations(ctx context.Context, sampleID string, a sample.Annotations) (*sample.Report, error)
}

type App struct {
	Cfg      *config.Config
	Log      *logger.Logger
	DB       *sql.DB
	Samples  Samples
	Reports  Reports
	Images   *imageref.Fetcher
	Engine   vision.Engine
	Pipeline *pipeline.Orchestrator
	Renderer *report.Renderer

	closers []func() error
}

// New builds the container. The database is opened and pinged unless the
// memory store is selected; it is not migrated.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	var opts []imageref.Option
	if cfg.GCSEnabled {
		cl, err := storage.NewClient(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, cl.Close)
		opts = append(opts, imageref.WithGCS(cl))
	}
	a.Images = imageref.New(cfg.MaxImageBytes, opts...)

	engine, err := newEngine(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = engine

	var notifier pipeline.Notifier = notify.Nop{}
	if cfg.RedisAddr != "" {
		rn, err := notify.NewRedis(cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rn.Close)
		notifier = rn
		log.Info("status events enabled", "redis_addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	a.Pipeline = pipeline.New(a.Samples, a.Reports, vision.NewGateway(engine, a.Images),
		pipeline.WithTimeout(cfg.AnalysisTimeout),
		pipeline.WithInstruction(cfg.Instruction),
		pipeline.WithNotifier(notifier),
		pipeline.WithLogger(log),
	)

	a.Renderer, err = report.NewRenderer(report.DefaultLayout(), cfg.ReportFont)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("report font: %w", err)
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Cfg.Store {
	case "memory":
		m := store.NewMemory()
		a.Samples, a.Reports = m.Samples(), m.Reports()
		a.Log.Warn("using in-memory store; data is lost on exit")
		return nil
	case "", "postgres":
	default:
		return fmt.Errorf("unknown STORE %q; use postgres|memory", a.Cfg.Store)
	}

	if a.Cfg.DatabaseURL == "" {
		return errors.New("database DSN is empty: set DATABASE_URL or POSTGRES_* env vars")
	}
	db, err := sql.Open("pgx", a.Cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("db.Ping: %w", err)
	}
	a.Log.Info("db connected", "db", config.SafeDSNSummary(a.Cfg.DatabaseURL))

	a.DB = db
	a.closers = append(a.closers, db.Close)
	a.Samples = store.NewSampleRepo(db)
	a.Reports = store.NewReportRepo(db)
	return nil
}

func newEngine(cfg *config.Config) (vision.Engine, error) {
	switch cfg.Provider {
	case "", "gemini":
		return gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	case "openai":
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown VISION_PROVIDER %q; use gemini|openai", cfg.Provider)
	}
}

// Migrate applies the embedded schema. A no-op for the memory store.
func (a *App) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return store.Migrate(ctx, a.DB)
}

// Health pings the database; the memory store is always healthy.
func (a *App) Health(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.DB.PingContext(ctx)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
	a.Log.Sync()
}
