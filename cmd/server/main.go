package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/bikorot/auditsync/internal/data/db"
	"github.com/bikorot/auditsync/internal/data/repos/audits"
	apphttp "github.com/bikorot/auditsync/internal/http"
	"github.com/bikorot/auditsync/internal/http/handlers"
	"github.com/bikorot/auditsync/internal/platform/logger"
	"github.com/bikorot/auditsync/internal/realtime"
	"github.com/bikorot/auditsync/internal/reconcile"
	"github.com/bikorot/auditsync/internal/utils"
)

func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("init postgres failed", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("automigrate failed", "error", err)
	}
	if err := db.SeedReference(pg.DB()); err != nil {
		log.Fatal("seed reference data failed", "error", err)
	}
	theDB := pg.DB()

	// Change bus is optional; without redis the agents fall back to their
	// sync interval.
	var bus realtime.Bus
	if addr := utils.GetEnv("REDIS_ADDR", "", log); addr != "" {
		channel := utils.GetEnv("REDIS_CHANNEL", "audit-changes", log)
		bus, err = realtime.NewRedisBus(log, addr, channel)
		if err != nil {
			log.Fatal("init change bus failed", "error", err)
		}
		defer bus.Close()
	}

	auditRepo := audits.NewAuditRepo(theDB, log)
	answerRepo := audits.NewAnswerRepo(theDB, log)
	refRepo := audits.NewReferenceRepo(theDB, log)

	svc := reconcile.NewService(
		reconcile.NewGormTxRunner(theDB),
		auditRepo, answerRepo, refRepo,
		bus, log,
	)

	server := apphttp.NewServer(apphttp.RouterConfig{
		Log:              log,
		HealthHandler:    handlers.NewHealthHandler(),
		SyncHandler:      handlers.NewSyncHandler(log, svc),
		AuditHandler:     handlers.NewAuditHandler(log, auditRepo),
		ReferenceHandler: handlers.NewReferenceHandler(log, refRepo),
	})

	addr := utils.GetEnv("HTTP_ADDR", ":8080", log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("reconciliation service listening", "addr", addr)
		return server.Run(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("server stopped", "error", err)
	}
}
