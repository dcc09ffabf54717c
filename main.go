package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gluk-w/claworc/llm-router/internal/api"
	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/backend"
	"github.com/gluk-w/claworc/llm-router/internal/config"
	"github.com/gluk-w/claworc/llm-router/internal/database"
	"github.com/gluk-w/claworc/llm-router/internal/discovery"
	"github.com/gluk-w/claworc/llm-router/internal/equivalence"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
	"github.com/gluk-w/claworc/llm-router/internal/proxy"
	"github.com/gluk-w/claworc/llm-router/internal/usage"
)

func main() {
	config.Load()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	// Apply custom upstream URLs for local providers
	if config.Cfg.OllamaURL != "" {
		providers.SetCustomUpstream("ollama", config.Cfg.OllamaURL)
	}
	if config.Cfg.LlamaCppURL != "" {
		providers.SetCustomUpstream("llamacpp", config.Cfg.LlamaCppURL)
	}

	store, err := authprofiles.Load(config.Cfg.ConfigDir)
	if err != nil {
		log.Fatalf("Auth profiles: %v", err)
	}

	tracker := usage.NewTracker()
	if err := tracker.Load(config.Cfg.UsageHistoryPath()); err != nil {
		log.Printf("Usage history not loaded: %v", err)
	}

	resolver := equivalence.New()
	if err := resolver.LoadOverrides(config.Cfg.EquivalenceOverridesPath()); err != nil {
		log.Fatalf("Model equivalents: %v", err)
	}

	srv := &api.Server{
		Store:     store,
		ConfigDir: config.Cfg.ConfigDir,
		Tracker:   tracker,
		Resolver:  resolver,
		Models: discovery.New(discovery.Options{
			Store:   store,
			Local:   config.Cfg.DiscoverLocal,
			Remote:  config.Cfg.DiscoverRemote,
			TTL:     config.Cfg.ModelsTTL,
			Timeout: config.Cfg.DiscoveryTimeout,
		}),
		Backend: backend.New(tracker),
	}
	proxyHandler := proxy.New(store, config.Cfg.ConfigDir, tracker)

	httpSrv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: api.NewRouter(srv, proxyHandler),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler, err := startMaintenance(tracker)
	if err != nil {
		log.Fatalf("Maintenance: %v", err)
	}

	go func() {
		log.Printf("LLM Router starting on %s", config.Cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	<-scheduler.Stop().Done()
	flushUsage(tracker)
	log.Println("LLM Router stopped")
}

// startMaintenance schedules the usage flush and audit prune jobs. Stopping
// the returned scheduler waits for a running job to finish.
func startMaintenance(tracker *usage.Tracker) (*cron.Cron, error) {
	interval := config.Cfg.UsageFlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), func() { flushUsage(tracker) }); err != nil {
		return nil, fmt.Errorf("schedule usage flush: %w", err)
	}
	if _, err := c.AddFunc("@hourly", pruneAudit); err != nil {
		return nil, fmt.Errorf("schedule audit prune: %w", err)
	}

	pruneAudit()
	c.Start()
	return c, nil
}

func flushUsage(tracker *usage.Tracker) {
	if err := tracker.Save(config.Cfg.UsageHistoryPath()); err != nil {
		log.Printf("Failed to save usage history: %v", err)
	}
}

func pruneAudit() {
	if config.Cfg.AuditRetention <= 0 {
		return
	}
	n, err := database.Prune(time.Now().Add(-config.Cfg.AuditRetention))
	if err != nil {
		log.Printf("Audit prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Pruned %d audit records", n)
	}
}
