// Sentinel processes security findings from multiple detectors through a
// scoring, triage, and optional remediation pipeline, persisting the
// resulting alerts and exposing operator health/metrics/replay surfaces.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/sentinelpipe/sentinel/pkg/analysis"
	"github.com/sentinelpipe/sentinel/pkg/bus"
	"github.com/sentinelpipe/sentinel/pkg/cleanup"
	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/sentinelpipe/sentinel/pkg/database"
	"github.com/sentinelpipe/sentinel/pkg/dlq"
	"github.com/sentinelpipe/sentinel/pkg/ingress"
	"github.com/sentinelpipe/sentinel/pkg/masking"
	"github.com/sentinelpipe/sentinel/pkg/metrics"
	"github.com/sentinelpipe/sentinel/pkg/normalizer"
	"github.com/sentinelpipe/sentinel/pkg/notifier"
	"github.com/sentinelpipe/sentinel/pkg/orchestrator"
	"github.com/sentinelpipe/sentinel/pkg/remediation"
	"github.com/sentinelpipe/sentinel/pkg/scorer"
	"github.com/sentinelpipe/sentinel/pkg/slack"
	"github.com/sentinelpipe/sentinel/pkg/store"
	"github.com/sentinelpipe/sentinel/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	log.Printf("Starting %s", version.Full())
	log.Printf("HTTP Port: %s", httpPort)
	log.Printf("Config Directory: %s", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}

	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	log.Println("connected to PostgreSQL database")

	reg := metrics.New()

	// Storage layer (C8, C16): Store and persistent DLQ share one pool so
	// a Store outage and a DLQ write degrade on the same backpressure
	// signal, per pkg/database's design.
	alertStore := store.New(dbClient.Pool, cfg.Retention, reg.Store())
	deadLetters := dlq.New(dbClient.Pool, cfg.Retention, reg.DLQ())

	// Masking (C11) and Normalizer (C1).
	masker := masking.NewService(cfg.Masking)
	norm := normalizer.New(cfg, masker, reg.Normalizer())

	// Notifier (C7), backed by the Slack adapter when configured.
	var slackSvc *slack.Service
	if cfg.Slack != nil && cfg.Slack.Enabled {
		slackSvc = slack.NewService(slack.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.ConsoleURL,
		})
	}
	notify, err := notifier.New(cfg, slackSvc, reg.Notifier())
	if err != nil {
		log.Fatalf("Failed to construct notifier: %v", err)
	}

	// Oracle and effector clients (C4, C5, C6).
	scorerClient := scorer.NewClient(cfg.Oracles.MLOracleURL, cfg.Oracles.MLModelVersion, cfg.Oracles.MLDeadline, reg.Scorer())
	analysisClient := analysis.NewClient(cfg.Oracles.LLMOracleURL, cfg.Oracles.LLMDeadline, reg.Analysis())
	remediationClient := remediation.NewClient(cfg.Oracles.EffectorURL, cfg.Oracles.EffectorDeadline, reg.Remediation())

	// Orchestrator (C9) and Event Bus (C2): the Bus's Handler is the
	// Orchestrator's Run method directly, so one goroutine per partition
	// drives one event through the whole pipeline at a time.
	orch := orchestrator.New(cfg, scorerClient, analysisClient, remediationClient, notify, alertStore, deadLetters, masker, reg.Orchestrator())
	eventBus := bus.New(cfg.Bus, orch.Run, reg.Bus())
	eventBus.Start(ctx)

	// Retention/Cleanup loop (C15), sharing the same pool.
	cleanupSvc := cleanup.NewService(cfg.Retention, dbClient.Pool, deadLetters)
	cleanupSvc.Start(ctx)

	go pollQueueDepth(ctx, eventBus, reg)

	draining := false
	srv := ingress.New(norm, eventBus, deadLetters, &draining)

	httpSrv := &http.Server{
		Addr:    ":" + httpPort,
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")
	draining = true

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	eventBus.Stop()
	cleanupSvc.Stop()
	slog.Info("sentinel stopped cleanly")
	fmt.Println("goodbye")
}

// pollQueueDepth samples the Bus's total queue depth on a fixed interval
// and feeds it to the orchestrator_queue_depth gauge; Bus.Stats() is cheap
// but the gauge is a push metric, so something has to poll it rather than
// updating it on every enqueue/dequeue.
func pollQueueDepth(ctx context.Context, b *bus.Bus, reg *metrics.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.QueueDepth(b.Stats().TotalDepth)
		}
	}
}
