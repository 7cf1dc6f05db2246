package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string `yaml:"port"`
	LogMode  string `yaml:"log_mode"`
	LogLevel string `yaml:"log_level"`

	// Store is "postgres" (default) or "memory".
	Store       string `yaml:"store"`
	DatabaseURL string `yaml:"database_url"`

	// Provider selects the vision backend: "gemini" or "openai".
	Provider        string        `yaml:"provider"`
	GeminiAPIKey    string        `yaml:"gemini_api_key"`
	GeminiModel     string        `yaml:"gemini_model"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	AnalysisTimeout time.Duration `yaml:"analysis_timeout"`
	Instruction     string        `yaml:"instruction"`

	MaxImageBytes int64 `yaml:"max_image_bytes"`
	GCSEnabled    bool  `yaml:"gcs_enabled"`

	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	WebhookURL       string `yaml:"webhook_url"`

	ReportFont string `yaml:"report_font"`

	StuckAfter time.Duration `yaml:"stuck_after"`
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func getInt64(k string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getBool(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Load reads .env (if present), then the environment, then overlays the YAML
// file named by CONFIG_FILE. Values set in the file win over the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8000"),
		LogMode:  getEnv("LOG_MODE", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Store:       strings.ToLower(getEnv("STORE", "postgres")),
		DatabaseURL: resolveDSN(),

		Provider:        strings.ToLower(getEnv("VISION_PROVIDER", "gemini")),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AnalysisTimeout: getDuration("ANALYSIS_TIMEOUT", 90*time.Second),
		Instruction:     getEnv("ANALYSIS_INSTRUCTION", ""),

		MaxImageBytes: getInt64("MAX_IMAGE_BYTES", 20<<20),
		GCSEnabled:    getBool("GCS_ENABLED"),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "sample-status"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		ReportFont: getEnv("REPORT_FONT", ""),

		StuckAfter: getDuration("STUCK_AFTER", 15*time.Minute),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	return cfg, nil
}

// ValidateVision checks that the selected provider has credentials.
func (c *Config) ValidateVision() error {
	switch c.Provider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("missing required env GEMINI_API_KEY")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("missing required env OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown VISION_PROVIDER %q; use gemini|openai", c.Provider)
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be > 0")
	}
	return nil
}

// VisionModel is the model name of the selected provider.
func (c *Config) VisionModel() string {
	if c.Provider == "openai" {
		return c.OpenAIModel
	}
	return c.GeminiModel
}

func resolveDSN() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	user := getEnv("POSTGRES_USER", "parascope")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getEnv("PGHOST", "db")
	port := getEnv("PGPORT", "5432")
	db := getEnv("POSTGRES_DB", "parascope")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SafeDSNSummary renders host/db/user without the password, for logs.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
