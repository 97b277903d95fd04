package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points DotEnvFile at a per-test location so a developer's .env
// never leaks into results.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := DotEnvFile
	DotEnvFile = filepath.Join(dir, ".env")
	t.Cleanup(func() { DotEnvFile = prev })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	t.Setenv("VINMON_IDENTIFIERS", "1HGCM82633A004352")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"1HGCM82633A004352"}, cfg.Identifiers)
	assert.Equal(t, BackendFile, cfg.State.Backend)
	assert.Equal(t, "state.json", cfg.State.Path)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, "vin-monitor/1.0 (+no-auto-scrape; search-api-only)", cfg.Search.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Search.Timeout())
	assert.Equal(t, 250*time.Millisecond, cfg.Search.BackoffInitial())
	assert.Equal(t, 2*time.Second, cfg.Search.BackoffMax())
	assert.Equal(t, 1, cfg.Search.Concurrency)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, 15*time.Second, cfg.Notify.Timeout())
	assert.Equal(t, "vinmonitor", cfg.Metrics.Job)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.False(t, cfg.Bing.Enabled())
	assert.False(t, cfg.Google.Enabled())
	assert.False(t, cfg.Email.Enabled())
	assert.False(t, cfg.Slack.Enabled())
	assert.False(t, cfg.PubSub.Enabled())
}

func TestLoadLegacyEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("VIN", " 1HGCM82633A004352 , ,5YJSA1E26HF000001,")
	t.Setenv("BING_KEY", "bing-key")
	t.Setenv("GOOGLE_CSE_KEY", "g-key")
	t.Setenv("GOOGLE_CSE_ID", "g-cx")
	t.Setenv("STATE_PATH", "/var/lib/vin/state.json")
	t.Setenv("MAX_RESULTS", "10")
	t.Setenv("USER_AGENT", "custom-agent")
	t.Setenv("TO_EMAIL", "ops@example.com, oncall@example.com")
	t.Setenv("FROM_EMAIL", "vin@example.com")
	t.Setenv("SMTP_SERVER", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_USER", "vin")
	t.Setenv("SMTP_PASS", "secret")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.example/T/B/X")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"1HGCM82633A004352", "5YJSA1E26HF000001"}, cfg.Identifiers)
	assert.Equal(t, "bing-key", cfg.Bing.APIKey)
	assert.True(t, cfg.Google.Enabled())
	assert.Equal(t, "/var/lib/vin/state.json", cfg.State.Path)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, "custom-agent", cfg.Search.UserAgent)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, cfg.Email.To)
	assert.Equal(t, 2525, cfg.Email.SMTPPort)
	assert.Equal(t, "secret", cfg.Email.SMTPPassword)
	assert.True(t, cfg.Email.Enabled())
	assert.True(t, cfg.Slack.Enabled())
}

func TestPrefixedEnvironmentWinsOverLegacy(t *testing.T) {
	isolate(t)
	t.Setenv("VIN", "LEGACY")
	t.Setenv("VINMON_IDENTIFIERS", "PREFIXED")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"PREFIXED"}, cfg.Identifiers)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
identifiers:
  - 1HGCM82633A004352
  - 5yjsa1e26hf000001
state:
  backend: GCS
  gcs_bucket: vin-state
search:
  max_results: 40
  concurrency: 4
  rate_per_second: 0.5
pubsub:
  project_id: proj
  topic_name: vin-matches
logging:
  development: true
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"1HGCM82633A004352", "5yjsa1e26hf000001"}, cfg.Identifiers, "case is preserved")
	assert.Equal(t, BackendGCS, cfg.State.Backend)
	assert.Equal(t, "vin-state", cfg.State.GCSBucket)
	assert.Equal(t, "vinmonitor/state.json", cfg.State.GCSObject)
	assert.Equal(t, 40, cfg.Search.MaxResults)
	assert.Equal(t, 4, cfg.Search.Concurrency)
	assert.InDelta(t, 0.5, cfg.Search.RatePerSecond, 0)
	assert.True(t, cfg.PubSub.Enabled())
	assert.True(t, cfg.Logging.Development)
}

func TestLoadDotEnvFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(DotEnvFile, []byte("VIN=FROMDOTENV\nBING_KEY=k\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("VIN")
		_ = os.Unsetenv("BING_KEY")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"FROMDOTENV"}, cfg.Identifiers)
	assert.True(t, cfg.Bing.Enabled())
}

func TestLoadMissingFile(t *testing.T) {
	isolate(t)
	t.Setenv("VIN", "X")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWithoutIdentifiers(t *testing.T) {
	isolate(t)
	t.Setenv("VIN", " , ")

	cfg, err := Load("")
	require.NoError(t, err, "state inspection works without identifiers")
	assert.Empty(t, cfg.Identifiers)
	assert.True(t, errors.Is(cfg.RequireIdentifiers(), ErrNoIdentifiers))
}

func TestValidateAggregatesProblems(t *testing.T) {
	t.Parallel()

	cfg := Config{
		State:   StateConfig{Backend: BackendPostgres},
		Search:  SearchConfig{MaxResults: 0, TimeoutSeconds: 0, Concurrency: 0, BackoffInitialMs: 10, BackoffMaxMs: 5},
		Email:   EmailConfig{SMTPPort: 70000},
		Notify:  NotifyConfig{TimeoutSeconds: 0},
		Logging: LoggingConfig{Level: "loud"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"state.postgres_dsn",
		"search.max_results",
		"search.timeout_seconds",
		"search.concurrency",
		"search.backoff_max_ms",
		"email.smtp_port",
		"notify.timeout_seconds",
		"logging.level",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Identifiers: []string{"X"},
		State:       StateConfig{Backend: "s3"},
		Search:      SearchConfig{MaxResults: 1, TimeoutSeconds: 1, Concurrency: 1},
		Email:       EmailConfig{SMTPPort: 25},
		Notify:      NotifyConfig{TimeoutSeconds: 1},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown state.backend "s3"`)
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "B", "c"}, SplitList([]string{" a ,B", "", " , c"}))
	assert.Nil(t, SplitList(nil))
}
