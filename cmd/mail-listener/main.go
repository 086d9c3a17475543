package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portal/internal/assignments"
	"portal/internal/config"
	"portal/internal/listener"
	"portal/internal/logging"
	"portal/internal/mailimport"
	"portal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := logging.New(cfg.LogLevel)
	must(err)
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	importer := assignments.NewImporter(db, assignments.WithLogger(logger), assignments.WithTechCard(cfg.TechCardRef()))
	processor := mailimport.NewProcessingService(db, importer, logger)
	svc := listener.NewService(db, processor, cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
