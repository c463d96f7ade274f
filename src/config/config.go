package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string
	DatabasePath       string
	LogLevel           string
	MaxUploadSizeBytes int64

	ReportCacheExpiry  time.Duration
	ReportCacheCleanup time.Duration

	// Trade matcher tunables. Empirically chosen values; the defaults are
	// the ones the heuristics were tuned with.
	MatcherTestSizeThreshold float64
	MatcherSpotCloseBand     float64
	MatcherPlausibilityFloor float64

	// Reconciliation agreement tolerance, in units of currency.
	ReconciliationTolerance float64

	// Market data client.
	MarketDataStatus  string // live, demo or mock
	MarketDataBaseURL string
	MarketDataAPIKey  string
	MarketDataTimeout time.Duration
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found. Relying on OS environment variables and defaults. Error (if any):", err)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	maxUploadSizeStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760") // 10 MB
	maxUploadSize, err := strconv.ParseInt(maxUploadSizeStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeStr, err)
		maxUploadSize = 10 * 1024 * 1024
	}

	marketDataStatus := getEnv("MARKET_DATA_STATUS", "mock")
	switch marketDataStatus {
	case "live", "demo", "mock":
	default:
		log.Printf("WARNING: Invalid MARKET_DATA_STATUS '%s'. Using 'mock'.", marketDataStatus)
		marketDataStatus = "mock"
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./datafeed.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxUploadSizeBytes: maxUploadSize,

		ReportCacheExpiry:  getEnvAsDuration("REPORT_CACHE_EXPIRY", 15*time.Minute),
		ReportCacheCleanup: getEnvAsDuration("REPORT_CACHE_CLEANUP", 30*time.Minute),

		MatcherTestSizeThreshold: getEnvAsFloat("MATCHER_TEST_SIZE_THRESHOLD", 100000),
		MatcherSpotCloseBand:     getEnvAsFloat("MATCHER_SPOT_CLOSE_BAND", 1.2),
		MatcherPlausibilityFloor: getEnvAsFloat("MATCHER_PLAUSIBILITY_FLOOR", 0.02),

		ReconciliationTolerance: getEnvAsFloat("RECONCILIATION_TOLERANCE", 1),

		MarketDataStatus:  marketDataStatus,
		MarketDataBaseURL: getEnv("MARKET_DATA_BASE_URL", "https://api-demo.exante.eu/md/1.0"),
		MarketDataAPIKey:  getEnv("MARKET_DATA_API_KEY", ""),
		MarketDataTimeout: getEnvAsDuration("MARKET_DATA_TIMEOUT", 10*time.Second),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, MarketData=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.MarketDataStatus)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid numeric value for %s ('%s'), using default: %v", key, valueStr, fallback)
	return fallback
}
