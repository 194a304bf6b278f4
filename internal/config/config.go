// Package config loads function configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Summarization backend names accepted in SUMMARY_BACKENDS.
const (
	BackendHosted  = "hosted"
	BackendOpenAI  = "openai"
	BackendBedrock = "bedrock"
)

// DefaultOpenAIURL is the API root used when OPENAI_URL is unset.
const DefaultOpenAIURL = "https://api.openai.com/v1"

// Error types for configuration problems.
var (
	ErrMissing = errors.New("missing required configuration")
	ErrInvalid = errors.New("invalid configuration")
)

// Config is the environment of every function in the system. Each entry
// point validates only the part it uses.
type Config struct {
	TableName       string
	AddressDomain   string
	LocalPartBytes  int
	ResolveInactive bool
	StoreTimeout    time.Duration

	TelegramBotToken string
	TelegramAPIURL   string
	WebhookSecret    string

	DownloadLinkTTL time.Duration

	SummaryBackends []string
	SummaryURL      string
	SummaryAPIKey   string
	OpenAIURL       string
	OpenAIAPIKey    string
	OpenAIModel     string
	SummaryModelID  string
	SummaryTimeout  time.Duration

	NotifyQueueURL string
	RawEmailBucket string
}

// Load reads the configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		TableName:       getEnvString("TABLE_NAME", ""),
		AddressDomain:   strings.ToLower(getEnvString("ADDRESS_DOMAIN", "")),
		LocalPartBytes:  getEnvInt("ADDRESS_LOCALPART_BYTES", 8),
		ResolveInactive: getEnvBool("RESOLVE_INACTIVE_ADDRESSES", true),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		TelegramBotToken: getEnvString("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:   getEnvString("TELEGRAM_API_URL", "https://api.telegram.org"),
		WebhookSecret:    getEnvString("WEBHOOK_SECRET", ""),

		DownloadLinkTTL: getEnvDuration("DOWNLOAD_LINK_TTL", 7*24*time.Hour),

		SummaryBackends: getEnvList("SUMMARY_BACKENDS", []string{BackendBedrock}),
		SummaryURL:      getEnvString("SUMMARY_URL", ""),
		SummaryAPIKey:   getEnvString("SUMMARY_API_KEY", ""),
		OpenAIURL:       getEnvString("OPENAI_URL", DefaultOpenAIURL),
		OpenAIAPIKey:    getEnvString("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnvString("OPENAI_MODEL", ""),
		SummaryModelID:  getEnvString("SUMMARY_MODEL_ID", ""),
		SummaryTimeout:  getEnvDuration("SUMMARY_TIMEOUT", 30*time.Second),

		NotifyQueueURL: getEnvString("NOTIFY_QUEUE_URL", ""),
		RawEmailBucket: getEnvString("RAW_EMAIL_BUCKET", ""),
	}
}

// ValidateNotify checks the settings used by the email notification function.
func (c Config) ValidateNotify() error {
	if err := require(map[string]string{
		"TABLE_NAME":         c.TableName,
		"TELEGRAM_BOT_TOKEN": c.TelegramBotToken,
	}); err != nil {
		return err
	}
	return c.validateSummary()
}

// ValidateWebhook checks the settings used by the Telegram webhook function.
// WEBHOOK_SECRET is optional; without it the secret header is not checked.
func (c Config) ValidateWebhook() error {
	if err := require(map[string]string{
		"TABLE_NAME":         c.TableName,
		"ADDRESS_DOMAIN":     c.AddressDomain,
		"TELEGRAM_BOT_TOKEN": c.TelegramBotToken,
	}); err != nil {
		return err
	}
	if c.LocalPartBytes < 3 {
		return fmt.Errorf("%w: ADDRESS_LOCALPART_BYTES must be at least 3, got %d", ErrInvalid, c.LocalPartBytes)
	}
	return nil
}

// ValidateReplay checks the settings used by the replay tool.
func (c Config) ValidateReplay() error {
	return require(map[string]string{
		"NOTIFY_QUEUE_URL": c.NotifyQueueURL,
	})
}

func (c Config) validateSummary() error {
	for _, name := range c.SummaryBackends {
		switch name {
		case BackendHosted:
			if c.SummaryURL == "" {
				return fmt.Errorf("%w: SUMMARY_URL (backend %q)", ErrMissing, name)
			}
		case BackendOpenAI:
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("%w: OPENAI_API_KEY (backend %q)", ErrMissing, name)
			}
		case BackendBedrock:
		default:
			return fmt.Errorf("%w: unknown summary backend %q", ErrInvalid, name)
		}
	}
	return nil
}

// require reports every empty variable in vars, sorted by name.
func require(vars map[string]string) error {
	var missing []string
	for name, value := range vars {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, lowercasing entries and
// dropping empty ones.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
