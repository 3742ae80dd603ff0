package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	_ "roundtable-report/docs"
	"roundtable-report/internal/api"
	"roundtable-report/internal/api/handler"
	"roundtable-report/internal/config"
	"roundtable-report/internal/logging"
	"roundtable-report/internal/model"
	"roundtable-report/internal/pipeline"
	"roundtable-report/internal/store"
	"roundtable-report/pkg/router"
)

// @title Roundtable Report API
// @version 1.0
// @description Starts ridership report runs and reports their status, errors and produced tables.
// @host localhost:8080
// @BasePath /api/v1
func main() {
	s, err := config.LoadSettings()
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	logger := logging.New(s.LogLevel, s.LogFormat)

	if err := store.InitDB(s.Path(s.StoreDB)); err != nil {
		logger.Error("failed to open run store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	h := handler.NewRunHandler(func() (handler.Starter, error) {
		runner, closeSource, err := pipeline.Setup(context.Background(), s, time.Now(), logger)
		if err != nil {
			return nil, err
		}
		return &closingRunner{Runner: runner, close: closeSource}, nil
	}, logger)

	r := router.New()
	api.RegisterRoutes(r, h)

	logger.Info("listening", "addr", s.Addr)
	if err := r.Start(s.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// closingRunner releases the source database once its run is over.
type closingRunner struct {
	*pipeline.Runner
	close func() error
}

func (c *closingRunner) Run(ctx context.Context, runID string, spec model.RunSpec) error {
	defer c.close()
	return c.Runner.Run(ctx, runID, spec)
}
