// Package config loads and validates monitor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix namespaces every configuration key in the environment.
const EnvPrefix = "VINMON"

// DotEnvFile is loaded into the process environment when present.
var DotEnvFile = ".env"

// ErrNoIdentifiers is reported by RequireIdentifiers when no identifier
// survives trimming.
var ErrNoIdentifiers = errors.New("config: no identifiers configured")

// State backends.
const (
	BackendFile     = "file"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Config captures all monitor configuration knobs loaded via Viper.
type Config struct {
	Identifiers []string      `mapstructure:"identifiers"`
	State       StateConfig   `mapstructure:"state"`
	Search      SearchConfig  `mapstructure:"search"`
	Bing        BingConfig    `mapstructure:"bing"`
	Google      GoogleConfig  `mapstructure:"google"`
	Email       EmailConfig   `mapstructure:"email"`
	Slack       SlackConfig   `mapstructure:"slack"`
	PubSub      PubSubConfig  `mapstructure:"pubsub"`
	Notify      NotifyConfig  `mapstructure:"notify"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// StateConfig selects and locates the seen-set backend.
type StateConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSObject     string `mapstructure:"gcs_object"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// SearchConfig governs provider queries.
type SearchConfig struct {
	MaxResults       int     `mapstructure:"max_results"`
	UserAgent        string  `mapstructure:"user_agent"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	RatePerSecond    float64 `mapstructure:"rate_per_second"`
	Concurrency      int     `mapstructure:"concurrency"`
}

// Timeout is the per-request deadline.
func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (s SearchConfig) BackoffInitial() time.Duration {
	return time.Duration(s.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps retry delays.
func (s SearchConfig) BackoffMax() time.Duration {
	return time.Duration(s.BackoffMaxMs) * time.Millisecond
}

// BingConfig holds Bing Web Search credentials.
type BingConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// Enabled reports whether the provider is configured.
func (b BingConfig) Enabled() bool { return b.APIKey != "" }

// GoogleConfig holds Google Custom Search credentials.
type GoogleConfig struct {
	APIKey   string `mapstructure:"api_key"`
	EngineID string `mapstructure:"engine_id"`
	Endpoint string `mapstructure:"endpoint"`
}

// Enabled reports whether the provider is configured.
func (g GoogleConfig) Enabled() bool { return g.APIKey != "" && g.EngineID != "" }

// EmailConfig describes the SMTP channel.
type EmailConfig struct {
	To           []string `mapstructure:"to"`
	From         string   `mapstructure:"from"`
	SMTPServer   string   `mapstructure:"smtp_server"`
	SMTPPort     int      `mapstructure:"smtp_port"`
	SMTPUser     string   `mapstructure:"smtp_user"`
	SMTPPassword string   `mapstructure:"smtp_password"`
}

// Enabled reports whether the channel has a sender, recipients and a relay.
func (e EmailConfig) Enabled() bool {
	return len(e.To) > 0 && e.From != "" && e.SMTPServer != ""
}

// SlackConfig describes the Slack webhook channel.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// Enabled reports whether the channel is configured.
func (s SlackConfig) Enabled() bool { return s.WebhookURL != "" }

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether the channel is configured.
func (p PubSubConfig) Enabled() bool { return p.ProjectID != "" && p.TopicName != "" }

// NotifyConfig applies to every channel.
type NotifyConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Timeout is the per-channel delivery deadline.
func (n NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// MetricsConfig controls the optional Pushgateway push.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// keys lists every configuration key with the legacy environment variables
// that also feed it. Binding each key explicitly lets Unmarshal see values
// that only exist in the environment.
var keys = []struct {
	key    string
	legacy []string
}{
	{"identifiers", []string{"VIN"}},
	{"state.backend", nil},
	{"state.path", []string{"STATE_PATH"}},
	{"state.gcs_bucket", nil},
	{"state.gcs_object", nil},
	{"state.postgres_dsn", nil},
	{"state.postgres_table", nil},
	{"search.max_results", []string{"MAX_RESULTS"}},
	{"search.user_agent", []string{"USER_AGENT"}},
	{"search.timeout_seconds", nil},
	{"search.max_retries", nil},
	{"search.backoff_initial_ms", nil},
	{"search.backoff_max_ms", nil},
	{"search.rate_per_second", nil},
	{"search.concurrency", nil},
	{"bing.api_key", []string{"BING_KEY"}},
	{"bing.endpoint", nil},
	{"google.api_key", []string{"GOOGLE_CSE_KEY"}},
	{"google.engine_id", []string{"GOOGLE_CSE_ID"}},
	{"google.endpoint", nil},
	{"email.to", []string{"TO_EMAIL"}},
	{"email.from", []string{"FROM_EMAIL"}},
	{"email.smtp_server", []string{"SMTP_SERVER"}},
	{"email.smtp_port", []string{"SMTP_PORT"}},
	{"email.smtp_user", []string{"SMTP_USER"}},
	{"email.smtp_password", []string{"SMTP_PASS"}},
	{"slack.webhook_url", []string{"SLACK_WEBHOOK_URL"}},
	{"pubsub.project_id", nil},
	{"pubsub.topic_name", nil},
	{"notify.timeout_seconds", nil},
	{"metrics.pushgateway_url", nil},
	{"metrics.job", nil},
	{"logging.development", nil},
	{"logging.level", nil},
}

// Load builds a Config from defaults, an optional file, .env and the environment.
func Load(path string) (Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		names := append([]string{envName(k.key)}, k.legacy...)
		if err := v.BindEnv(append([]string{k.key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", k.key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Identifiers = SplitList(cfg.Identifiers)
	cfg.Email.To = SplitList(cfg.Email.To)
	cfg.State.Backend = strings.ToLower(strings.TrimSpace(cfg.State.Backend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// loadDotEnv copies variables from file into the environment without
// overriding ones already set. A missing file is not an error.
func loadDotEnv(file string) error {
	if file == "" {
		return nil
	}
	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

// SplitList flattens comma-separated entries, trims whitespace and drops
// empty values. Case is preserved.
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("state.backend", BackendFile)
	v.SetDefault("state.path", "state.json")
	v.SetDefault("state.gcs_object", "vinmonitor/state.json")
	v.SetDefault("state.postgres_table", "seen_urls")
	v.SetDefault("search.max_results", 25)
	v.SetDefault("search.user_agent", "vin-monitor/1.0 (+no-auto-scrape; search-api-only)")
	v.SetDefault("search.timeout_seconds", 30)
	v.SetDefault("search.max_retries", 2)
	v.SetDefault("search.backoff_initial_ms", 250)
	v.SetDefault("search.backoff_max_ms", 2000)
	v.SetDefault("search.rate_per_second", 2.0)
	v.SetDefault("search.concurrency", 1)
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("notify.timeout_seconds", 15)
	v.SetDefault("metrics.job", "vinmonitor")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// RequireIdentifiers fails with ErrNoIdentifiers when the list is empty.
// Commands that only inspect state do not need identifiers, so Validate does
// not check this.
func (c Config) RequireIdentifiers() error {
	if len(c.Identifiers) == 0 {
		return ErrNoIdentifiers
	}
	return nil
}

// Validate enforces required values and reasonable limits. All problems are
// reported together.
func (c Config) Validate() error {
	var errs []error
	switch c.State.Backend {
	case BackendFile, "":
	case BackendGCS:
		if c.State.GCSBucket == "" {
			errs = append(errs, fmt.Errorf("state.gcs_bucket must be set when state.backend is gcs"))
		}
	case BackendPostgres:
		if c.State.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("state.postgres_dsn must be set when state.backend is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state.backend %q", c.State.Backend))
	}
	if c.Search.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("search.max_results must be > 0"))
	}
	if c.Search.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("search.timeout_seconds must be > 0"))
	}
	if c.Search.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("search.max_retries must be >= 0"))
	}
	if c.Search.BackoffMaxMs < c.Search.BackoffInitialMs {
		errs = append(errs, fmt.Errorf("search.backoff_max_ms must be >= search.backoff_initial_ms"))
	}
	if c.Search.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("search.rate_per_second must be >= 0"))
	}
	if c.Search.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("search.concurrency must be > 0"))
	}
	if c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535 {
		errs = append(errs, fmt.Errorf("email.smtp_port must be between 1 and 65535"))
	}
	if c.Notify.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("notify.timeout_seconds must be > 0"))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}
