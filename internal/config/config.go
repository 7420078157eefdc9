package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"optionscore/pkg/utils"
)

// Config is the full application configuration, loaded from environment
// variables with fail-fast validation of required secrets.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Broker   BrokerConfig
	Session  SessionConfig
	Strategy StrategyConfig
	Risk     RiskConfig
	Order    OrderConfig
	Strike   StrikeConfig
	Ledger   LedgerConfig
	Logging  LoggingConfig
}

// ServerConfig - the HTTP status/control surface.
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - Postgres connection for trades/settings persistence.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - operator auth and at-rest encryption.
type SecurityConfig struct {
	JWTSecret      string
	EncryptionKey  string
	SessionTimeout int
}

// BrokerConfig - broker endpoints, credentials, and trading mode.
type BrokerConfig struct {
	BaseURL    string
	FeedURL    string
	ClientID   string
	APIKey     string
	APISecret  string
	TOTPSecret string

	PaperTrading bool // enable_paper_trading
}

// SessionConfig - trading windows.
type SessionConfig struct {
	EntryWindowStart utils.ClockTime
	EntryWindowEnd   utils.ClockTime
	EodExitTime      utils.ClockTime
	Holidays         []string // "2006-01-02" dates

	TokenGraceToFlatten time.Duration
	DrainDeadline       time.Duration
	BarReadyGrace       time.Duration // g_bar_ready_grace
	DataGapThreshold    time.Duration
}

// StrategyConfig - strategy tunables.
type StrategyConfig struct {
	Underlying            string
	VixSymbol             string
	DailyADXThreshold     float64
	HourlyADXThreshold    float64
	RSIPeriod             int
	EMAPeriod             int
	RSIOversold           float64
	RSIOverbought         float64
	VolumeConfirmMult     float64
	InvalidateOnRecompute bool // strategy_invalidate_on_recompute
}

// RiskConfig - sizing and circuit breakers.
type RiskConfig struct {
	AccountBalance       float64
	BasePositionSizePct  float64
	MaxPositions         int
	MaxPositionSize      int
	OptionStopLossPct    float64
	TrailActivatePnlPct  float64
	TrailGapPct          float64
	DailyLossLimitPct    float64
	ConsecutiveLossLimit int
	VixThreshold         float64
	VixSpikeThreshold    float64
	VixResumeThreshold   float64
}

// OrderConfig - the retry ladder.
type OrderConfig struct {
	RetryStepsPct   []float64
	RetryBackoffs   []time.Duration
	MaxRetries      int
	TotalRetryCap   time.Duration
	FillTimeout     time.Duration
	GlobalRateLimit float64
}

// StrikeConfig - strike pool geometry.
type StrikeConfig struct {
	Increment         float64
	InitialRange      int
	SubscriptionCount int
}

// LedgerConfig - durable paths for the ledger and bar logs.
type LedgerConfig struct {
	Dir     string
	BarsDir string
}

// LoggingConfig - structured logger settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables. Missing broker
// credentials fail fast unless paper trading is enabled; the encryption key
// is always required since stored credentials are encrypted at rest.
func Load() (*Config, error) {
	entryStart, err := utils.ParseClockTime(getEnv("ENTRY_WINDOW_START", "10:00"))
	if err != nil {
		return nil, err
	}
	entryEnd, err := utils.ParseClockTime(getEnv("ENTRY_WINDOW_END", "14:30"))
	if err != nil {
		return nil, err
	}
	eodExit, err := utils.ParseClockTime(getEnv("EOD_EXIT_TIME", "15:20"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "optionscore"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
			EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
			SessionTimeout: getEnvAsInt("SESSION_TIMEOUT", 3600),
		},
		Broker: BrokerConfig{
			BaseURL:      getEnv("BROKER_BASE_URL", ""),
			FeedURL:      getEnv("BROKER_FEED_URL", ""),
			ClientID:     getEnv("BROKER_CLIENT_ID", ""),
			APIKey:       getEnv("BROKER_API_KEY", ""),
			APISecret:    getEnv("BROKER_API_SECRET", ""),
			TOTPSecret:   getEnv("BROKER_TOTP_SECRET", ""),
			PaperTrading: getEnvAsBool("ENABLE_PAPER_TRADING", false),
		},
		Session: SessionConfig{
			EntryWindowStart:    entryStart,
			EntryWindowEnd:      entryEnd,
			EodExitTime:         eodExit,
			Holidays:            getEnvAsList("NSE_HOLIDAYS"),
			TokenGraceToFlatten: getEnvAsDuration("TOKEN_GRACE_TO_FLATTEN", 180*time.Second),
			DrainDeadline:       getEnvAsDuration("DRAIN_DEADLINE", 60*time.Second),
			BarReadyGrace:       getEnvAsDuration("G_BAR_READY_GRACE", 120*time.Second),
			DataGapThreshold:    getEnvAsDuration("DATA_GAP_THRESHOLD", 60*time.Second),
		},
		Strategy: StrategyConfig{
			Underlying:            getEnv("UNDERLYING", "NIFTY"),
			VixSymbol:             getEnv("VIX_SYMBOL", "INDIA VIX"),
			DailyADXThreshold:     getEnvAsFloat("DAILY_ADX_THRESHOLD", 25),
			HourlyADXThreshold:    getEnvAsFloat("HOURLY_ADX_THRESHOLD", 20),
			RSIPeriod:             getEnvAsInt("RSI_PERIOD", 14),
			EMAPeriod:             getEnvAsInt("EMA_PERIOD", 20),
			RSIOversold:           getEnvAsFloat("RSI_OVERSOLD", 45),
			RSIOverbought:         getEnvAsFloat("RSI_OVERBOUGHT", 65),
			VolumeConfirmMult:     getEnvAsFloat("VOLUME_CONFIRM_MULT", 1.2),
			InvalidateOnRecompute: getEnvAsBool("STRATEGY_INVALIDATE_ON_RECOMPUTE", false),
		},
		Risk: RiskConfig{
			AccountBalance:       getEnvAsFloat("ACCOUNT_BALANCE", 500000),
			BasePositionSizePct:  getEnvAsFloat("BASE_POSITION_SIZE_PCT", 0.02),
			MaxPositions:         getEnvAsInt("MAX_POSITIONS", 1),
			MaxPositionSize:      getEnvAsInt("MAX_POSITION_SIZE", 1800),
			OptionStopLossPct:    getEnvAsFloat("OPTION_STOP_LOSS_PCT", 0.20),
			TrailActivatePnlPct:  getEnvAsFloat("TRAIL_ACTIVATE_PNL_PCT", 0.02),
			TrailGapPct:          getEnvAsFloat("TRAIL_GAP_PCT", 0.015),
			DailyLossLimitPct:    getEnvAsFloat("DAILY_LOSS_LIMIT_PCT", 0.03),
			ConsecutiveLossLimit: getEnvAsInt("CONSECUTIVE_LOSS_LIMIT", 3),
			VixThreshold:         getEnvAsFloat("VIX_THRESHOLD", 25),
			VixSpikeThreshold:    getEnvAsFloat("VIX_SPIKE_THRESHOLD", 30),
			VixResumeThreshold:   getEnvAsFloat("VIX_RESUME_THRESHOLD", 28),
		},
		Order: OrderConfig{
			RetryStepsPct:   getEnvAsFloats("ORDER_RETRY_STEPS_PCT", []float64{0, 0.0025, 0.0050, 0.0075, 0.0100}),
			RetryBackoffs:   getEnvAsDurations("ORDER_RETRY_BACKOFFS_SEC", []time.Duration{0, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}),
			MaxRetries:      getEnvAsInt("ORDER_MAX_RETRIES", 5),
			TotalRetryCap:   getEnvAsDuration("T_RETRY_CAP", 30*time.Second),
			FillTimeout:     getEnvAsDuration("PER_ATTEMPT_FILL_TIMEOUT", 60*time.Second),
			GlobalRateLimit: getEnvAsFloat("BROKER_GLOBAL_RATE", 8),
		},
		Strike: StrikeConfig{
			Increment:         getEnvAsFloat("STRIKE_INCREMENT", 50),
			InitialRange:      getEnvAsInt("INITIAL_STRIKE_RANGE", 4),
			SubscriptionCount: getEnvAsInt("STRIKE_SUBSCRIPTION_COUNT", 9),
		},
		Ledger: LedgerConfig{
			Dir:     getEnv("LEDGER_DIR", "data/ledger"),
			BarsDir: getEnv("BARS_DIR", "data/bars"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Security.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required for encrypting broker credentials")
	}
	if len(cfg.Security.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if !cfg.Broker.PaperTrading {
		if cfg.Broker.APIKey == "" || cfg.Broker.APISecret == "" {
			return nil, fmt.Errorf("BROKER_API_KEY and BROKER_API_SECRET are required for live trading")
		}
		if cfg.Broker.TOTPSecret == "" {
			return nil, fmt.Errorf("BROKER_TOTP_SECRET is required for live trading")
		}
	}
	if !cfg.Session.EntryWindowStart.Before(cfg.Session.EntryWindowEnd) {
		return nil, fmt.Errorf("entry window start %s must precede end %s",
			cfg.Session.EntryWindowStart, cfg.Session.EntryWindowEnd)
	}

	return cfg, nil
}

// Environment helpers.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsFloats parses a comma-separated float list.
func getEnvAsFloats(key string, defaultValue []float64) []float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []float64
	for _, p := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	return out
}

// getEnvAsDurations parses a comma-separated list of seconds.
func getEnvAsDurations(key string, defaultValue []time.Duration) []time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []time.Duration
	for _, p := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, time.Duration(v*float64(time.Second)))
	}
	return out
}
