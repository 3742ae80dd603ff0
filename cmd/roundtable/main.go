package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"roundtable-report/internal/config"
	"roundtable-report/internal/logging"
	"roundtable-report/internal/model"
	"roundtable-report/internal/pipeline"
	"roundtable-report/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "roundtable:", err)
		os.Exit(1)
	}
}

func run() error {
	dir := flag.String("dir", "", "root directory holding the params, reference data and databases (overrides ROUNDTABLE_ROOT_DIR)")
	phase := flag.String("phase", string(model.PhaseAll), "run phase: all, query or vis")
	reports := flag.String("reports", "", "comma separated report ids (default: every id in the params file)")
	flag.Parse()

	s, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if *dir != "" {
		s.RootDir = *dir
	}
	logger := logging.New(s.LogLevel, s.LogFormat)

	spec := model.RunSpec{Phase: model.Phase(*phase)}
	if !spec.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", model.ErrConfig, *phase)
	}
	for _, id := range strings.Split(*reports, ",") {
		if id = strings.TrimSpace(id); id != "" {
			spec.ReportIDs = append(spec.ReportIDs, id)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.InitDB(s.Path(s.StoreDB)); err != nil {
		return err
	}
	defer store.Close()

	runner, closeSource, err := pipeline.Setup(ctx, s, time.Now(), logger)
	if err != nil {
		return err
	}
	defer closeSource()

	runID := uuid.New().String()
	if err := store.SaveRun(runID, spec); err != nil {
		return err
	}
	return runner.Run(ctx, runID, spec)
}
