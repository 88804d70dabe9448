package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by STORE_BACKEND and LEDGER_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	Port     string
	LogLevel string

	StoreBackend  string
	LedgerBackend string
	DatabaseURL   string
	RedisURL      string
	RedisPrefix   string

	AdminToken   string
	GatewayToken string
	StoragePath  string
	NotifyURL    string
	NotifyToken  string

	PublicBaseURL      string
	ArtifactLinkSecret string
	ArtifactLinkTTL    time.Duration

	KieAPIKey     string
	KieBaseURL    string
	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string

	StartBalance  int64
	CostStandard  int64
	CostPro       int64
	BonusAmount   int64
	WelcomeBonus  int64
	ReferralBonus int64
	PackagesFile  string

	BatchQuietPeriod   time.Duration
	ProviderTimeout    time.Duration
	WatchdogStaleAfter time.Duration
	WatchdogInterval   int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: strings.TrimSpace(os.Getenv("LOG_LEVEL")),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		LedgerBackend: strings.ToLower(os.Getenv("LEDGER_BACKEND")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		RedisPrefix:   getEnv("REDIS_PREFIX", "bananabot:"),

		AdminToken:   os.Getenv("ADMIN_TOKEN"),
		GatewayToken: os.Getenv("GATEWAY_TOKEN"),
		StoragePath:  getEnv("STORAGE_PATH", "./storage"),
		NotifyURL:    strings.TrimSpace(os.Getenv("NOTIFY_URL")),
		NotifyToken:  os.Getenv("NOTIFY_TOKEN"),

		PublicBaseURL:      strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")),
		ArtifactLinkSecret: os.Getenv("ARTIFACT_LINK_SECRET"),
		ArtifactLinkTTL:    getEnvDuration("ARTIFACT_LINK_TTL", time.Hour),

		KieAPIKey:     os.Getenv("KIE_API_KEY"),
		KieBaseURL:    getEnv("KIE_BASE_URL", "https://api.kie.ai/api/v1/jobs"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),

		StartBalance:  int64(getEnvInt("START_BALANCE", 3)),
		CostStandard:  int64(getEnvInt("COST_STANDARD", 1)),
		CostPro:       int64(getEnvInt("COST_PRO", 4)),
		BonusAmount:   int64(getEnvInt("BONUS_AMOUNT", 5)),
		WelcomeBonus:  int64(getEnvInt("WELCOME_BONUS", 3)),
		ReferralBonus: int64(getEnvInt("REFERRAL_BONUS", 2)),
		PackagesFile:  os.Getenv("PACKAGES_FILE"),

		BatchQuietPeriod:   getEnvDuration("BATCH_QUIET_PERIOD", 800*time.Millisecond),
		ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT", 4*time.Minute),
		WatchdogStaleAfter: getEnvDuration("WATCHDOG_STALE_AFTER", 5*time.Minute),
		WatchdogInterval:   getEnvInt("WATCHDOG_INTERVAL_MINUTES", 1),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	if cfg.LedgerBackend == "" {
		cfg.LedgerBackend = cfg.StoreBackend
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q", cfg.StoreBackend)
	}
	switch cfg.LedgerBackend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return nil, fmt.Errorf("unsupported LEDGER_BACKEND %q", cfg.LedgerBackend)
	}

	if cfg.DatabaseURL == "" && (cfg.StoreBackend == BackendPostgres || cfg.LedgerBackend == BackendPostgres) {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" && cfg.LedgerBackend == BackendRedis {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.LedgerBackend == BackendMemory && cfg.StoreBackend == BackendPostgres {
		return nil, fmt.Errorf("LEDGER_BACKEND=memory cannot be combined with STORE_BACKEND=postgres")
	}

	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("ADMIN_TOKEN is required")
	}
	if cfg.GatewayToken == "" {
		return nil, fmt.Errorf("GATEWAY_TOKEN is required")
	}
	if cfg.NotifyToken != "" && cfg.NotifyToken == cfg.AdminToken {
		return nil, fmt.Errorf("NOTIFY_TOKEN must differ from ADMIN_TOKEN")
	}
	if cfg.PublicBaseURL != "" && cfg.ArtifactLinkSecret == "" {
		return nil, fmt.Errorf("ARTIFACT_LINK_SECRET is required with PUBLIC_BASE_URL")
	}

	if cfg.BatchQuietPeriod <= 0 {
		cfg.BatchQuietPeriod = 800 * time.Millisecond
	}
	if cfg.ProviderTimeout >= cfg.WatchdogStaleAfter {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT (%s) must be shorter than WATCHDOG_STALE_AFTER (%s)", cfg.ProviderTimeout, cfg.WatchdogStaleAfter)
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
