package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"skuradar/internal/pricing"
)

// Config carries everything the pipeline and its collaborators need. It is
// assembled once from the environment and passed in explicitly so components
// never read process-wide globals.
type Config struct {
	ClientID     string
	ClientSecret string
	Site         string

	ExchangeRate     float64
	CommissionRate   float64
	ShippingEstimate float64

	PacingDelay    time.Duration
	TokenCacheFile string
	ResultsDir     string

	// Optional Google Sheets mirror of the report.
	SpreadsheetID   string
	SheetRange      string
	CredentialsFile string

	// Optional ntfy run summary.
	NtfyEnabled  bool
	NtfyURL      string
	NtfyTopic    string
	NtfyPriority string
}

// Pricing returns the cost-model slice of the configuration.
func (c Config) Pricing() pricing.Config {
	return pricing.Config{
		ExchangeRate:     c.ExchangeRate,
		CommissionRate:   c.CommissionRate,
		ShippingEstimate: c.ShippingEstimate,
	}
}

// LoadConfig builds the runtime configuration from the environment.
// Marketplace credentials are required; everything else has defaults.
func LoadConfig() Config {
	return Config{
		ClientID:     GetRequiredEnv("ML_CLIENT_ID"),
		ClientSecret: GetRequiredEnv("ML_CLIENT_SECRET"),
		Site:         GetEnvWithDefault("ML_SITE", "MLA"),

		ExchangeRate:     getFloatEnv("EXCHANGE_RATE", pricing.DefaultConfig.ExchangeRate),
		CommissionRate:   getFloatEnv("COMMISSION_RATE", pricing.DefaultConfig.CommissionRate),
		ShippingEstimate: getFloatEnv("SHIPPING_ESTIMATE", pricing.DefaultConfig.ShippingEstimate),

		PacingDelay:    time.Duration(getIntEnv("PACING_DELAY_MS", 500)) * time.Millisecond,
		TokenCacheFile: GetEnvWithDefault("TOKEN_CACHE_FILE", "ml_token_cache.json"),
		ResultsDir:     GetEnvWithDefault("RESULTS_DIR", "results"),

		SpreadsheetID:   os.Getenv("SPREADSHEET_ID"),
		SheetRange:      GetEnvWithDefault("SPREADSHEET_RANGE", "Resultados!A1"),
		CredentialsFile: GetEnvWithDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json"),

		NtfyEnabled:  GetEnvWithDefault("NTFY_ENABLED", "false") == "true",
		NtfyURL:      GetEnvWithDefault("NTFY_URL", "https://ntfy.sh"),
		NtfyTopic:    GetEnvWithDefault("NTFY_TOPIC", "skuradar"),
		NtfyPriority: os.Getenv("NTFY_PRIORITY"),
	}
}

// SetupEnvironment loads .env file and configures zerolog output and log level.
func SetupEnvironment() {
	// Load .env file if it exists
	err := godotenv.Load()

	// Configure logging
	if os.Getenv("ENV") == "production" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(os.Stderr)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	levelStr := strings.ToLower(os.Getenv("LOGLEVEL"))
	switch levelStr {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	case "panic":
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	case "":
		// Default based on environment
		if os.Getenv("ENV") == "production" {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Warn().Msgf("Unknown LOGLEVEL '%s', defaulting to info.", levelStr)
	}

	// wait until now to report on the .env file so we have the chance to set up logging first
	if err == nil {
		log.Debug().Msg("Loaded environment variables from .env file.")
	} else {
		log.Debug().Msg("No .env file found or error loading .env file; proceeding with existing environment variables.")
	}
}

// GetRequiredEnv fetches a required environment variable or exits if not set.
func GetRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatal().Msgf("%s environment variable is required", key)
	}
	return value
}

// GetEnvWithDefault fetches an environment variable with a default fallback.
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getFloatEnv(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid numeric environment variable, using default")
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid numeric environment variable, using default")
		return defaultValue
	}
	return value
}
