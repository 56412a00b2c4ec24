package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"voicemail-recorder/internal/calls"
)

// Config holds all configuration required by the voicemail process.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Vonage     VonageConfig
	Greeting   GreetingConfig
	Recording  RecordingConfig
	Webhooks   WebhookConfig
	Enrichment EnrichmentConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

type DBConfig struct {
	// URL is a postgres:// DSN. It contains secrets; never log it.
	URL string
}

type RedisConfig struct {
	// Addr is optional; empty disables the cross-process enrichment cap.
	Addr string
}

type VonageConfig struct {
	APIKey         string
	APISecret      string
	ApplicationID  string
	PrivateKeyPath string
	// RecordingHosts limits where the authenticated recording download may
	// go. Empty means the client's built-in platform hosts.
	RecordingHosts []string
}

type GreetingConfig struct {
	Message  string
	Language string
	Style    int
}

type RecordingConfig struct {
	MaxDuration     int
	Format          string
	EndOnSilence    int
	Dir             string
	DownloadTimeout time.Duration
}

type WebhookConfig struct {
	BaseURL      string
	AnswerURL    string
	EventURL     string
	RecordingURL string
}

type EnrichmentConfig struct {
	Enabled bool

	OpenAIAPIKey string
	MurekaAPIKey string
	SMSFrom      string

	MusicStyle            string
	TranscriptionLanguage string

	Workers     int
	QueueSize   int
	GlobalLimit int

	GenerationMaxAttempts int
	GenerationRetryDelay  time.Duration
	PollInterval          time.Duration
	PollTimeout           time.Duration
}

const (
	DefaultGreetingMessage = "お電話ありがとうございます。ただいま電話に出ることができません。発信音の後にメッセージをお残しください。"
	DefaultMusicStyle      = "j-pop, emotional, heartfelt, japanese"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = envOr("APP_ENV", "local")
	c.App.Port, parseErrs = intOr(parseErrs, "APP_PORT", 5000)
	c.App.LogLevel = envOr("LOG_LEVEL", "INFO")

	c.DB.URL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	c.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))

	c.Vonage.APIKey = strings.TrimSpace(os.Getenv("VONAGE_API_KEY"))
	c.Vonage.APISecret = os.Getenv("VONAGE_API_SECRET")
	c.Vonage.ApplicationID = strings.TrimSpace(os.Getenv("VONAGE_APPLICATION_ID"))
	c.Vonage.PrivateKeyPath = strings.TrimSpace(os.Getenv("VONAGE_PRIVATE_KEY_PATH"))
	c.Vonage.RecordingHosts = listOr("VONAGE_RECORDING_HOSTS")

	c.Greeting.Message = envOr("GREETING_MESSAGE", DefaultGreetingMessage)
	c.Greeting.Language = envOr("GREETING_LANGUAGE", "ja-JP")
	c.Greeting.Style, parseErrs = intOr(parseErrs, "GREETING_STYLE", 0)

	c.Recording.MaxDuration, parseErrs = intOr(parseErrs, "MAX_RECORDING_DURATION", 60)
	c.Recording.Format = strings.ToLower(envOr("RECORDING_FORMAT", "mp3"))
	c.Recording.EndOnSilence, parseErrs = intOr(parseErrs, "END_ON_SILENCE", 3)
	c.Recording.Dir = envOr("RECORDINGS_DIR", "recordings")
	c.Recording.DownloadTimeout, parseErrs = durationOr(parseErrs, "DOWNLOAD_TIMEOUT", 60*time.Second)

	c.Webhooks.BaseURL = strings.TrimSpace(os.Getenv("WEBHOOK_BASE_URL"))
	c.Webhooks.AnswerURL = strings.TrimSpace(os.Getenv("ANSWER_URL"))
	c.Webhooks.EventURL = strings.TrimSpace(os.Getenv("EVENT_URL"))
	c.Webhooks.RecordingURL = strings.TrimSpace(os.Getenv("RECORDING_URL"))

	c.Enrichment.Enabled = strings.EqualFold(strings.TrimSpace(os.Getenv("ENABLE_MUSIC_GENERATION")), "true")
	c.Enrichment.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Enrichment.MurekaAPIKey = os.Getenv("MUREKA_API_KEY")
	c.Enrichment.SMSFrom = strings.TrimSpace(os.Getenv("VONAGE_SMS_FROM"))
	c.Enrichment.MusicStyle = envOr("MUSIC_STYLE", DefaultMusicStyle)
	c.Enrichment.TranscriptionLanguage = envOr("TRANSCRIPTION_LANGUAGE", "ja")
	c.Enrichment.Workers, parseErrs = intOr(parseErrs, "ENRICHMENT_WORKERS", 2)
	c.Enrichment.QueueSize, parseErrs = intOr(parseErrs, "ENRICHMENT_QUEUE_SIZE", 32)
	c.Enrichment.GlobalLimit, parseErrs = intOr(parseErrs, "ENRICHMENT_GLOBAL_LIMIT", 0)
	c.Enrichment.GenerationMaxAttempts, parseErrs = intOr(parseErrs, "GENERATION_MAX_ATTEMPTS", 3)
	c.Enrichment.GenerationRetryDelay, parseErrs = durationOr(parseErrs, "GENERATION_RETRY_DELAY", 30*time.Second)
	c.Enrichment.PollInterval, parseErrs = durationOr(parseErrs, "POLL_INTERVAL", 10*time.Second)
	c.Enrichment.PollTimeout, parseErrs = durationOr(parseErrs, "POLL_TIMEOUT", 300*time.Second)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every setting, derives webhook URLs from the base URL,
// and reports all problems at once.
func (c *Config) Validate() error {
	var (
		missing []string
		errs    []error
	)

	if c.Vonage.APIKey == "" {
		missing = append(missing, "VONAGE_API_KEY")
	}
	if c.Vonage.APISecret == "" {
		missing = append(missing, "VONAGE_API_SECRET")
	}
	if c.Vonage.ApplicationID == "" {
		missing = append(missing, "VONAGE_APPLICATION_ID")
	}
	if c.Vonage.PrivateKeyPath == "" {
		missing = append(missing, "VONAGE_PRIVATE_KEY_PATH")
	}
	if c.Webhooks.BaseURL == "" {
		missing = append(missing, "WEBHOOK_BASE_URL")
	}
	if c.DB.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Enrichment.Enabled {
		if c.Enrichment.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if c.Enrichment.MurekaAPIKey == "" {
			missing = append(missing, "MUREKA_API_KEY")
		}
		if c.Enrichment.SMSFrom == "" {
			missing = append(missing, "VONAGE_SMS_FROM")
		}
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}

	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if !isValidLogLevel(c.App.LogLevel) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL, got %q", c.App.LogLevel))
	}

	if c.Recording.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("MAX_RECORDING_DURATION must be a positive integer, got %d", c.Recording.MaxDuration))
	}
	if c.Recording.EndOnSilence < 0 {
		errs = append(errs, fmt.Errorf("END_ON_SILENCE must be >= 0, got %d", c.Recording.EndOnSilence))
	}
	if c.Greeting.Style < 0 {
		errs = append(errs, fmt.Errorf("GREETING_STYLE must be >= 0, got %d", c.Greeting.Style))
	}
	c.Recording.Format = strings.ToLower(c.Recording.Format)
	if !calls.ValidFormat(c.Recording.Format) {
		errs = append(errs, fmt.Errorf("RECORDING_FORMAT must be one of mp3, wav, ogg, got %q", c.Recording.Format))
	}
	if c.Recording.DownloadTimeout <= 0 {
		c.Recording.DownloadTimeout = 60 * time.Second
	}

	if c.Enrichment.Workers <= 0 {
		c.Enrichment.Workers = 1
	}
	if c.Enrichment.QueueSize <= 0 {
		c.Enrichment.QueueSize = 1
	}
	if c.Enrichment.GlobalLimit < 0 {
		errs = append(errs, fmt.Errorf("ENRICHMENT_GLOBAL_LIMIT must be >= 0, got %d", c.Enrichment.GlobalLimit))
	}
	if c.Enrichment.GenerationMaxAttempts <= 0 {
		c.Enrichment.GenerationMaxAttempts = 3
	}
	if c.Enrichment.PollInterval <= 0 {
		c.Enrichment.PollInterval = 10 * time.Second
	}
	if c.Enrichment.PollTimeout <= 0 {
		c.Enrichment.PollTimeout = 300 * time.Second
	}

	c.deriveWebhookURLs()
	return joinErrors(errs)
}

// deriveWebhookURLs fills any webhook URL not set individually from the base URL.
func (c *Config) deriveWebhookURLs() {
	if c.Webhooks.BaseURL == "" {
		return
	}
	base := strings.TrimRight(c.Webhooks.BaseURL, "/")
	if c.Webhooks.AnswerURL == "" {
		c.Webhooks.AnswerURL = base + "/webhooks/answer"
	}
	if c.Webhooks.EventURL == "" {
		c.Webhooks.EventURL = base + "/webhooks/event"
	}
	if c.Webhooks.RecordingURL == "" {
		c.Webhooks.RecordingURL = base + "/webhooks/recording"
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// JobBudget is the longest one enrichment job can run: every generation
// attempt with its retry delay, the full poll window, and a margin for
// transcription and notification.
func (e EnrichmentConfig) JobBudget() time.Duration {
	attempts := e.GenerationMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts)*e.GenerationRetryDelay + e.PollTimeout + 5*time.Minute
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// listOr splits a comma-separated env var, dropping empty entries.
func listOr(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func intOr(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

// durationOr accepts Go durations ("30s") or a bare number of seconds.
func durationOr(errs []error, key string, def time.Duration) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func isValidLogLevel(v string) bool {
	switch strings.ToUpper(v) {
	case "DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
