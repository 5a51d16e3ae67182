package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bikorot/auditsync/internal/agent/store"
	"github.com/bikorot/auditsync/internal/agent/syncer"
	"github.com/bikorot/auditsync/internal/platform/logger"
	"github.com/bikorot/auditsync/internal/realtime"
	"github.com/bikorot/auditsync/internal/utils"
)

// Headless field agent: keeps a local SQLite replica in sync with the
// reconciliation service. Form editing happens in-process via the form
// package; this binary only drives the background sync loop.
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

	dbPath := utils.GetEnv("AGENT_DB", "agent.db", log)
	st, err := store.Open(dbPath, log)
	if err != nil {
		log.Fatal("open local store failed", "error", err)
	}
	defer st.Close()

	serverURL := utils.GetEnv("SERVER_URL", "http://localhost:8080", log)
	client := syncer.NewClient(serverURL, log)
	probe := syncer.NewHTTPProbe(serverURL)

	interval := time.Duration(utils.GetEnvAsInt("SYNC_INTERVAL_SECONDS", 30, log)) * time.Second

	var pullIDs []string
	if raw := utils.GetEnv("PULL_AUDIT_IDS", "", log); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				pullIDs = append(pullIDs, id)
			}
		}
	}

	engine := syncer.NewEngine(st, client, probe, log,
		syncer.WithInterval(interval),
		syncer.WithPullIDs(func() []string { return pullIDs }),
		syncer.WithStatusCallback(func(s syncer.Status) {
			log.Debug("sync status changed", "status", string(s))
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// With redis available the agent reacts to server-side merges instead
	// of waiting out the interval.
	if addr := utils.GetEnv("REDIS_ADDR", "", log); addr != "" {
		channel := utils.GetEnv("REDIS_CHANNEL", "audit-changes", log)
		bus, err := realtime.NewRedisBus(log, addr, channel)
		if err != nil {
			log.Warn("change bus unavailable, falling back to interval sync", "error", err)
		} else {
			defer bus.Close()
			if err := bus.StartForwarder(ctx, func(ev realtime.ChangeEvent) {
				engine.Nudge()
			}); err != nil {
				log.Warn("change bus subscribe failed", "error", err)
			}
		}
	}

	log.Info("agent sync engine starting", "server", serverURL, "db", dbPath, "interval", interval.String())
	engine.Run(ctx)
	log.Info("agent stopped")
}
