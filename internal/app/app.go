package app

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/pkg/logger"
)

type App struct {
	Name string
	Cfg  *Config
	Log  *slog.Logger
}

func New(name string, cfg *Config) *App {
	return &App{
		Name: name,
		Cfg:  cfg,
		Log:  logger.New(name, cfg.Log),
	}
}

func (a *App) Run(ctx context.Context) error {
	a.Log.Info("running payments engine", "storage", a.Cfg.Engine.StorageDriver)

	deps, err := a.initDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to init dependencies: %w", err)
	}

	return a.runServices(ctx, deps)
}

// Migrate только накатывает миграции и выходит
func (a *App) Migrate(ctx context.Context) error {
	if a.Cfg.Engine.StorageDriver == StorageDriverMemory {
		a.Log.Info("in-memory storage has no migrations")
		return nil
	}

	db, err := a.initPostgres(ctx, true)
	if err != nil {
		return err
	}
	defer db.Close()

	a.Log.Info("migrations applied")
	return nil
}
