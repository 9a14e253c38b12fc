package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "PAPER_DIGEST_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	openAIKeyEnv      = "OPENAI_KEY"
	openAIEndpointEnv = "OPENAI_ENDPOINT"
	sendGridKeyEnv    = "SENDGRID_KEY"
	fromEmailEnv      = "FROM_EMAIL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	apiAddrEnv        = "API_ADDR"
)

// ErrMissingSetting marks a required setting that was not provided.
var ErrMissingSetting = errors.New("missing required setting")

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Email    EmailConfig    `yaml:"email"`
	Digest   DigestConfig   `yaml:"digest"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Telegram TelegramConfig `yaml:"telegram"`
	API      APIConfig      `yaml:"api"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the SQL store. Driver is "postgres" or "sqlite3".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ScraperConfig tunes the listing walk.
type ScraperConfig struct {
	Strategy   string        `yaml:"strategy"`
	BaseURL    string        `yaml:"baseUrl"`
	RSSBaseURL string        `yaml:"rssBaseUrl"`
	UserAgent  string        `yaml:"userAgent"`
	MaxPages   int           `yaml:"maxPages"`
	Pause      time.Duration `yaml:"pause"`
	Timeout    time.Duration `yaml:"timeout"`
}

// OpenAIConfig defines how to contact the language model.
type OpenAIConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"apiKey"`
	ClassifierModel string        `yaml:"classifierModel"`
	ReviewModel     string        `yaml:"reviewModel"`
	AnalysisModel   string        `yaml:"analysisModel"`
	Timeout         time.Duration `yaml:"timeout"`
	AnalysisTimeout time.Duration `yaml:"analysisTimeout"`
}

// EmailConfig wires the SendGrid sender.
type EmailConfig struct {
	SendGridKey string        `yaml:"sendgridKey"`
	Host        string        `yaml:"host"`
	FromEmail   string        `yaml:"fromEmail"`
	FromName    string        `yaml:"fromName"`
	MaxRetries  int           `yaml:"maxRetries"`
	Backoff     time.Duration `yaml:"backoff"`
}

// DigestConfig controls classification, reviews and rendering.
type DigestConfig struct {
	SiteURL        string        `yaml:"siteUrl"`
	SendEmpty      bool          `yaml:"sendEmpty"`
	ReadFullPDFs   bool          `yaml:"readFullPdfs"`
	MaxAuthors     int           `yaml:"maxAuthors"`
	MaxPDFChars    int           `yaml:"maxPdfChars"`
	MaxReviewChars int           `yaml:"maxReviewChars"`
	PDFTimeout     time.Duration `yaml:"pdfTimeout"`
}

// FeedbackConfig holds the learning-agent thresholds.
type FeedbackConfig struct {
	MinTotalVotes       int     `yaml:"minTotalVotes"`
	MinPositiveVotes    int     `yaml:"minPositiveVotes"`
	MinNegativeVotes    int     `yaml:"minNegativeVotes"`
	CooldownDays        int     `yaml:"cooldownDays"`
	FailureRetryDays    int     `yaml:"failureRetryDays"`
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	SampleSize          int     `yaml:"sampleSize"`
	SnippetChars        int     `yaml:"snippetChars"`
}

// TelegramConfig wires operator run reports. Empty token disables them.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
}

// APIConfig configures the feedback HTTP API.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := cfg.decode(raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// decode layers YAML over the current values; keys absent from raw keep them.
func (c *Config) decode(raw []byte) error {
	next := *c
	if err := yaml.Unmarshal(raw, &next); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{logLevelEnv, &c.Logging.Level},
		{databaseDriverEnv, &c.Database.Driver},
		{databaseDSNEnv, &c.Database.DSN},
		{openAIKeyEnv, &c.OpenAI.APIKey},
		{openAIEndpointEnv, &c.OpenAI.Endpoint},
		{sendGridKeyEnv, &c.Email.SendGridKey},
		{fromEmailEnv, &c.Email.FromEmail},
		{telegramTokenEnv, &c.Telegram.BotToken},
		{telegramChatIDEnv, &c.Telegram.ChatID},
		{apiAddrEnv, &c.API.Addr},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}
}

// Validate reports every missing setting the digest run cannot start without.
func (c Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{openAIKeyEnv, c.OpenAI.APIKey},
		{sendGridKeyEnv, c.Email.SendGridKey},
		{fromEmailEnv, c.Email.FromEmail},
		{databaseDSNEnv, c.Database.DSN},
	}

	var errs []error
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingSetting, r.name))
		}
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingSetting, telegramChatIDEnv))
	}
	return errors.Join(errs...)
}

// ValidateAPI checks the settings the feedback API needs.
func (c Config) ValidateAPI() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("%w: %s", ErrMissingSetting, databaseDSNEnv)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Driver: "postgres"},
		Scraper: ScraperConfig{
			Strategy:   "arxiv",
			BaseURL:    "https://arxiv.org",
			RSSBaseURL: "https://rss.arxiv.org/rss",
			UserAgent:  "Mozilla/5.0 (compatible; PaperDigest/1.0; Academic Research)",
			MaxPages:   5,
			Pause:      time.Second,
			Timeout:    30 * time.Second,
		},
		OpenAI: OpenAIConfig{
			Endpoint:        "https://api.openai.com/v1/",
			ClassifierModel: "gpt-4o",
			ReviewModel:     "gpt-4o-mini",
			AnalysisModel:   "gpt-4o",
			Timeout:         30 * time.Second,
			AnalysisTimeout: 120 * time.Second,
		},
		Email: EmailConfig{
			Host:       "https://api.sendgrid.com",
			FromName:   "Prompts & Papers",
			MaxRetries: 2,
			Backoff:    time.Second,
		},
		Digest: DigestConfig{
			SiteURL:        "https://promptsandpapers.com",
			SendEmpty:      true,
			ReadFullPDFs:   true,
			MaxAuthors:     10,
			MaxPDFChars:    50000,
			MaxReviewChars: 40000,
			PDFTimeout:     60 * time.Second,
		},
		Feedback: FeedbackConfig{
			MinTotalVotes:       20,
			MinPositiveVotes:    5,
			MinNegativeVotes:    3,
			CooldownDays:        14,
			FailureRetryDays:    1,
			ConfidenceThreshold: 0.75,
			SampleSize:          20,
			SnippetChars:        600,
		},
		Telegram: TelegramConfig{Endpoint: "https://api.telegram.org/bot%s/%s"},
		API:      APIConfig{Addr: ":8080"},
	}
}
