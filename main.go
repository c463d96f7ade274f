package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/lynardsalingujay/lynardme-datafeed/src/config"
	"github.com/lynardsalingujay/lynardme-datafeed/src/database"
	"github.com/lynardsalingujay/lynardme-datafeed/src/handlers"
	"github.com/lynardsalingujay/lynardme-datafeed/src/logger"
	"github.com/lynardsalingujay/lynardme-datafeed/src/marketdata"
	"github.com/lynardsalingujay/lynardme-datafeed/src/matching"
	"github.com/lynardsalingujay/lynardme-datafeed/src/reconciliation"
	"github.com/lynardsalingujay/lynardme-datafeed/src/services"
	"github.com/lynardsalingujay/lynardme-datafeed/src/store"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Datafeed server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing report cache...")
	reportCache := cache.New(config.Cfg.ReportCacheExpiry, config.Cfg.ReportCacheCleanup)
	logger.L.Info("Report cache initialized.")

	logger.L.Info("Initializing market data client...", "status", config.Cfg.MarketDataStatus)
	marketDataClient, err := marketdata.NewClient(marketdata.Config{
		Status:  config.Cfg.MarketDataStatus,
		BaseURL: config.Cfg.MarketDataBaseURL,
		APIKey:  config.Cfg.MarketDataAPIKey,
		Timeout: config.Cfg.MarketDataTimeout,
	})
	if err != nil {
		logger.L.Error("Failed to initialize market data client", "error", err)
		stdlog.Fatalf("Failed to initialize market data client: %v", err)
	}

	logger.L.Info("Initializing services and handlers...")
	recordStore := store.NewSQLStore(database.DB)

	matcherCfg := matching.DefaultConfig()
	matcherCfg.TestSizeThreshold = config.Cfg.MatcherTestSizeThreshold
	matcherCfg.SpotCloseBand = config.Cfg.MatcherSpotCloseBand
	matcherCfg.PlausibilityFloor = config.Cfg.MatcherPlausibilityFloor

	recCfg := reconciliation.Config{Tolerance: config.Cfg.ReconciliationTolerance}

	reportService := services.NewReportService(recordStore, marketDataClient, matcherCfg, recCfg, reportCache)
	ingestService := services.NewIngestService(recordStore, reportService)

	ingestHandler := handlers.NewIngestHandler(ingestService)
	reportHandler := handlers.NewReportHandler(reportService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/ingest/{source}", ingestHandler.HandleIngest)
	apiRouter.HandleFunc("GET /api/reports/trades", reportHandler.HandleTradeReport)
	apiRouter.HandleFunc("GET /api/reports/reconciliation", reportHandler.HandleReconciliationReport)
	apiRouter.HandleFunc("GET /api/reports/valuation", reportHandler.HandleValuationReport)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Datafeed backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
