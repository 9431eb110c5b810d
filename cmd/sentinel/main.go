package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kr1s57/sshsentinel/internal/adapter/controller/http/handlers"
	"github.com/kr1s57/sshsentinel/internal/adapter/controller/http/middleware"
	"github.com/kr1s57/sshsentinel/internal/adapter/external/firewall"
	"github.com/kr1s57/sshsentinel/internal/adapter/external/geoip"
	"github.com/kr1s57/sshsentinel/internal/adapter/external/mlscorer"
	"github.com/kr1s57/sshsentinel/internal/adapter/external/notify"
	"github.com/kr1s57/sshsentinel/internal/adapter/external/threatintel"
	"github.com/kr1s57/sshsentinel/internal/adapter/repository/badgerdb"
	"github.com/kr1s57/sshsentinel/internal/config"
	"github.com/kr1s57/sshsentinel/internal/usecase/alerts"
	"github.com/kr1s57/sshsentinel/internal/usecase/blocks"
	"github.com/kr1s57/sshsentinel/internal/usecase/classifier"
	"github.com/kr1s57/sshsentinel/internal/usecase/detection"
	"github.com/kr1s57/sshsentinel/internal/usecase/pipeline"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := config.SetupLogger(cfg)
	logger.Info("Starting SSH Sentinel",
		"env", cfg.App.Env,
		"port", cfg.App.Port,
	)

	// Persistence
	store, err := badgerdb.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("Failed to open store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Firewall backend
	var fw firewall.Firewall
	switch cfg.Firewall.Backend {
	case "noop":
		fw = firewall.NewNoop()
		logger.Warn("firewall in noop mode, blocks are not enforced")
	default:
		ipt := firewall.NewIPTables(cfg.Firewall.Chain, logger)
		if err := ipt.EnsureChain(context.Background()); err != nil {
			logger.Error("Failed to prepare firewall chain", "error", err)
			os.Exit(1)
		}
		fw = ipt
	}

	// Block lifecycle manager
	blockSvc, err := blocks.NewService(store, fw, logger)
	if err != nil {
		logger.Error("Failed to create block service", "error", err)
		os.Exit(1)
	}
	for _, cidr := range cfg.Blocks.WhitelistBootstrap {
		if err := blockSvc.AddWhitelist(context.Background(), cidr, "bootstrap", "config"); err != nil {
			logger.Warn("Failed to bootstrap whitelist entry", "cidr", cidr, "error", err)
		}
	}
	if restored, err := blockSvc.Restore(context.Background()); err != nil {
		logger.Warn("Failed to restore persisted blocks", "error", err)
	} else if restored > 0 {
		logger.Info("Restored persisted blocks", "count", restored)
	}

	// Threat intel providers
	intelCache := threatintel.NewCache(cfg.ThreatIntel.CacheSize, 24*time.Hour)
	if warmed, err := intelCache.AttachStore(store); err != nil {
		logger.Warn("Failed to warm reputation cache", "error", err)
	} else if warmed > 0 {
		logger.Info("Reputation cache warmed from store", "records", warmed)
	}
	providers := []threatintel.Provider{
		threatintel.NewAbuseIPDBClient(threatintel.AbuseIPDBConfig{
			APIKey:            cfg.ThreatIntel.AbuseIPDBKey,
			Timeout:           cfg.ThreatIntel.Timeout,
			CacheTTL:          cfg.ThreatIntel.AbuseIPDBTTL,
			RequestsPerMinute: cfg.ThreatIntel.AbuseIPDBRPM,
		}, intelCache),
		threatintel.NewVirusTotalClient(threatintel.VirusTotalConfig{
			APIKey:            cfg.ThreatIntel.VirusTotalKey,
			Timeout:           cfg.ThreatIntel.Timeout,
			CacheTTL:          cfg.ThreatIntel.VirusTotalTTL,
			RequestsPerMinute: cfg.ThreatIntel.VirusTotalRPM,
		}, intelCache),
		threatintel.NewShodanInternetDBClient(threatintel.ShodanConfig{
			Timeout:           cfg.ThreatIntel.Timeout,
			CacheTTL:          cfg.ThreatIntel.ShodanTTL,
			RequestsPerMinute: cfg.ThreatIntel.ShodanRPM,
		}, intelCache),
	}
	aggregator := threatintel.NewAggregator(providers, intelCache, logger)
	logger.Info("Threat intel providers configured", "providers", aggregator.ConfiguredProviders())

	// Geo enrichment
	var geo *geoip.Client
	if cfg.GeoIP.Enabled {
		geo = geoip.NewClient(geoip.Config{
			CacheTTL:     cfg.GeoIP.CacheTTL,
			Timeout:      cfg.GeoIP.Timeout,
			MaxCacheSize: 10000,
		})
	}

	// Optional ML scorer
	var scorer mlscorer.Scorer = mlscorer.Disabled{}
	if cfg.MLScorer.URL != "" {
		scorer = mlscorer.NewHTTPScorer(cfg.MLScorer.URL, cfg.MLScorer.Timeout, logger)
	}

	// Detection engine
	tuning := detection.DefaultTuning()
	if cfg.Detection.TuningPath != "" {
		loaded, err := detection.LoadTuning(cfg.Detection.TuningPath)
		if err != nil {
			logger.Error("Failed to load detection tuning", "path", cfg.Detection.TuningPath, "error", err)
			os.Exit(1)
		}
		tuning = loaded
	}
	detector := detection.NewEngine(detection.Config{
		WindowMaxEntries: cfg.Detection.WindowMaxEntries,
		WindowHorizon:    cfg.Detection.WindowHorizon,
		Tuning:           tuning,
	})

	// Classifier
	cls := classifier.NewService(blockSvc, classifier.Config{
		HighRiskCountries: cfg.Classifier.HighRiskCountries,
		OffHoursStart:     cfg.Classifier.OffHoursStart,
		OffHoursEnd:       cfg.Classifier.OffHoursEnd,
	}, logger)

	// Alerting: fan out to every configured channel
	var channels []notify.Notifier
	webhook := notify.NewWebhookClient(cfg.Notify.WebhookURL, "", cfg.Notify.Timeout)
	if webhook.IsConfigured() {
		channels = append(channels, webhook)
	}
	mailer := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:       cfg.Notify.SMTPHost,
		Port:       cfg.Notify.SMTPPort,
		Security:   cfg.Notify.SMTPSecurity,
		FromEmail:  cfg.Notify.SMTPFrom,
		Username:   cfg.Notify.SMTPUsername,
		Password:   cfg.Notify.SMTPPassword,
		Recipients: cfg.Notify.SMTPRecipients,
		Timeout:    cfg.Notify.Timeout,
	}, logger)
	if mailer.IsConfigured() {
		channels = append(channels, mailer)
	}
	if len(channels) == 0 {
		logger.Warn("no notification channel configured, alerts are logged only")
	}
	notifier := notify.NewMulti(channels...)
	alertSvc := alerts.NewService(notifier, alerts.Config{
		DedupWindow:  cfg.Alerts.DedupWindow,
		TopAttackers: cfg.Alerts.TopAttackers,
	}, logger)

	// Pipeline
	engine := pipeline.New(pipeline.Config{
		Workers:         cfg.Pipeline.Workers,
		QueueSize:       cfg.Pipeline.QueueSize,
		DrainTimeout:    cfg.Pipeline.DrainTimeout,
		SweepInterval:   cfg.Pipeline.SweepInterval,
		BatchInterval:   cfg.Alerts.BatchInterval,
		DigestInterval:  cfg.Alerts.DigestInterval,
		SummaryInterval: cfg.Alerts.SummaryInterval,
	}, detector, aggregator, cls, blockSvc, alertSvc, geo, scorer, logger)

	ctx := context.Background()
	engine.Start(ctx)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiting
	r.Use(httprate.LimitByIP(300, time.Minute))

	eventsHandler := handlers.NewEventsHandler(engine)
	blocksHandler := handlers.NewBlocksHandler(blockSvc)
	whitelistHandler := handlers.NewWhitelistHandler(blockSvc)
	reputationHandler := handlers.NewReputationHandler(aggregator)

	// Health check and metrics
	r.Get("/health", handlers.HealthCheck(cfg, map[string]func() error{
		"store": func() error { _, err := store.ListWhitelist(); return err },
	}))
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", eventsHandler.Submit)
		r.Get("/stats", eventsHandler.Stats)

		r.Route("/blocks", func(r chi.Router) {
			r.Get("/", blocksHandler.List)
			r.Post("/", blocksHandler.Create)
			r.Get("/{ip}", blocksHandler.Get)
			r.Delete("/{ip}", blocksHandler.Delete)
			r.Get("/{ip}/history", blocksHandler.History)
		})

		r.Route("/whitelist", func(r chi.Router) {
			r.Get("/", whitelistHandler.List)
			r.Post("/", whitelistHandler.Add)
			r.Delete("/{cidr}", whitelistHandler.Remove)
			r.Get("/check/{ip}", whitelistHandler.Check)
		})

		r.Route("/reputation", func(r chi.Router) {
			r.Get("/", reputationHandler.Sources)
			r.Get("/{ip}", reputationHandler.Check)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("Pipeline forced to shutdown", "error", err)
	}

	logger.Info("Stopped")
}
