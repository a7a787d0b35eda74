package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "PAPER_TRIAGE_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	logFormatEnv      = "LOG_FORMAT"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	anthropicKeyEnv   = "ANTHROPIC_API_KEY"
	geminiKeyEnv      = "GEMINI_API_KEY"
	openAIKeyEnv      = "OPENAI_API_KEY"
	inferenceKeyEnv   = "INFERENCE_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Database drivers understood by the score store.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Reviewers     ReviewersConfig    `yaml:"reviewers"`
	Notifications NotificationConfig `yaml:"notifications"`
	Export        ExportConfig       `yaml:"export"`
	Gating        GatingConfig       `yaml:"gating"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// LoggingConfig sets the slog level (debug, info, warn, error) and the
// handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig selects the score store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines when the daily run fires.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ScoringConfig controls the scoring engine.
type ScoringConfig struct {
	Mode                  string           `yaml:"mode"`
	PromptVersion         string           `yaml:"promptVersion"`
	Workers               int              `yaml:"workers"`
	TopK                  int              `yaml:"topK"`
	RetryUnscoredOnResume bool             `yaml:"retryUnscoredOnResume"`
	Thresholds            ThresholdsConfig `yaml:"thresholds"`
	Retry                 RetryConfig      `yaml:"retry"`
}

// ThresholdsConfig tunes the agreement model.
type ThresholdsConfig struct {
	HighSpread     int `yaml:"highSpread"`
	ModerateSpread int `yaml:"moderateSpread"`
	EvidenceMargin int `yaml:"evidenceMargin"`
}

// RetryConfig is the reviewer retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Timeout     time.Duration `yaml:"timeout"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	MaxBackoff  time.Duration `yaml:"maxBackoff"`
}

// ReviewersConfig lists the reviewer backends.
type ReviewersConfig struct {
	Claude    ReviewerConfig `yaml:"claude"`
	Gemini    ReviewerConfig `yaml:"gemini"`
	OpenAI    ReviewerConfig `yaml:"openai"`
	Inference ReviewerConfig `yaml:"inference"`
}

// ReviewerConfig defines how to contact one model API.
type ReviewerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float64 `yaml:"temperature"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

// ExportConfig sets where run artifacts are written. An empty Dir disables export.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// GatingConfig controls the pre-review triage gate. Inline lists win over
// list files; with neither the built-in lists apply.
type GatingConfig struct {
	Enabled            bool     `yaml:"enabled"`
	AuditRate          float64  `yaml:"auditRate"`
	AuditSeed          uint64   `yaml:"auditSeed"`
	VenueWhitelist     []string `yaml:"venueWhitelist"`
	VenueWhitelistFile string   `yaml:"venueWhitelistFile"`
	Keywords           []string `yaml:"keywords"`
	KeywordsFile       string   `yaml:"keywordsFile"`
}

// SiteConfig describes a single site with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds the concrete endpoints to crawl (e.g., Arxiv category URLs).
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration over defaults and applies environment
// overrides. An empty path falls back to PAPER_TRIAGE_CONFIG; with neither
// set, defaults are used.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database dsn is empty")
	}
	if c.Scoring.Mode == "" {
		return fmt.Errorf("config: scoring mode is empty")
	}
	if c.Gating.AuditRate < 0 || c.Gating.AuditRate > 1 {
		return fmt.Errorf("config: gating auditRate %v outside [0, 1]", c.Gating.AuditRate)
	}
	if c.Scoring.Thresholds.HighSpread > c.Scoring.Thresholds.ModerateSpread {
		return fmt.Errorf("config: highSpread %d exceeds moderateSpread %d",
			c.Scoring.Thresholds.HighSpread, c.Scoring.Thresholds.ModerateSpread)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.Reviewers.Claude.APIKey = v
	}
	if v := os.Getenv(geminiKeyEnv); v != "" {
		c.Reviewers.Gemini.APIKey = v
	}
	if v := os.Getenv(openAIKeyEnv); v != "" {
		c.Reviewers.OpenAI.APIKey = v
	}
	if v := os.Getenv(inferenceKeyEnv); v != "" {
		c.Reviewers.Inference.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) normalize() {
	def := defaultConfig()

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Scoring.Workers < 1 {
		c.Scoring.Workers = 1
	}
	if c.Scoring.TopK < 0 {
		c.Scoring.TopK = 0
	}
	if c.Scoring.Thresholds == (ThresholdsConfig{}) {
		c.Scoring.Thresholds = def.Scoring.Thresholds
	}
	if c.Scoring.Retry.MaxAttempts < 1 {
		c.Scoring.Retry.MaxAttempts = 1
	}
	if len(c.Sites) == 0 {
		c.Sites = def.Sites
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("config: unknown timezone, reverting to default", "timezone", tz, "default", defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Database:  DatabaseConfig{Driver: DriverSQLite, DSN: "papertriage.db"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Scoring: ScoringConfig{
			Mode:          "tri-model-daily",
			PromptVersion: "v3",
			Workers:       4,
			TopK:          5,
			Thresholds:    ThresholdsConfig{HighSpread: 10, ModerateSpread: 20, EvidenceMargin: 2},
			Retry: RetryConfig{
				MaxAttempts: 2,
				Timeout:     30 * time.Second,
				BaseBackoff: 500 * time.Millisecond,
				MaxBackoff:  5 * time.Second,
			},
		},
		Reviewers: ReviewersConfig{
			Claude: ReviewerConfig{
				Enabled:   true,
				Endpoint:  "https://api.anthropic.com/v1/messages",
				Model:     "claude-sonnet-4-5",
				MaxTokens: 1024,
			},
			Gemini: ReviewerConfig{
				Enabled:   true,
				Endpoint:  "https://generativelanguage.googleapis.com/v1beta",
				Model:     "gemini-2.5-flash",
				MaxTokens: 1024,
			},
			OpenAI: ReviewerConfig{
				Endpoint:  "https://api.openai.com/v1/chat/completions",
				Model:     "gpt-4o-mini",
				MaxTokens: 1024,
			},
			Inference: ReviewerConfig{
				Endpoint: "https://ml.example.org",
				Model:    "relevance-ranker",
			},
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIBase: "https://api.telegram.org"},
		},
		Export: ExportConfig{Dir: "data/outputs"},
		Gating: GatingConfig{AuditRate: 0.02},
		Sites: []SiteConfig{
			{
				Name:    "arxiv-default",
				Scanner: "arxiv",
				Categories: []CategoryConfig{
					{Name: "q-bio.QM", URL: "https://export.arxiv.org/list/q-bio.QM/pastweek"},
				},
			},
		},
	}
}
