// Package config loads runtime settings for the intake service from a
// config file and the environment. Environment variables use the
// ROSTERFLOW_ prefix with underscores for key separators, so
// ROSTERFLOW_HTTP_ADDR overrides http.addr.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved service configuration.
type Config struct {
	HTTPAddr string

	StoreDriver string
	StoreDSN    string

	ArtifactDir string

	SessionTTL    time.Duration
	JanitorPeriod time.Duration

	JobWorkers    int
	JobQueueSize  int
	JobTimeout    time.Duration
	JobRetention  time.Duration
	WatchdogGrace time.Duration

	// KitNewKitTeams lists teams whose players always need a new kit this
	// season; KitDefaultNewRequired covers every other team.
	KitNewKitTeams        []string
	KitDefaultNewRequired bool

	PhraseProvider string
	PhraseModel    string
	AnthropicKey   string
	OpenAIKey      string

	LogLevel string
}

// Load resolves configuration from defaults, an optional config file, and
// the environment. configPath may be empty, in which case only a file named
// rosterflow.yaml in the working directory is considered.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROSTERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "rosterflow.db")
	v.SetDefault("artifact.dir", "artifacts")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.janitor_period", 10*time.Minute)
	v.SetDefault("job.workers", 4)
	v.SetDefault("job.queue_size", 64)
	v.SetDefault("job.timeout", 2*time.Minute)
	v.SetDefault("job.retention", 15*time.Minute)
	v.SetDefault("job.watchdog_grace", 30*time.Second)
	v.SetDefault("kit.new_kit_teams", []string{})
	v.SetDefault("kit.default_new_required", false)
	v.SetDefault("phrase.provider", "")
	v.SetDefault("phrase.model", "")
	v.SetDefault("log.level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("rosterflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		// A file that was named explicitly must load; the implicit
		// working-directory file is optional.
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPAddr:              v.GetString("http.addr"),
		StoreDriver:           v.GetString("store.driver"),
		StoreDSN:              v.GetString("store.dsn"),
		ArtifactDir:           v.GetString("artifact.dir"),
		SessionTTL:            v.GetDuration("session.ttl"),
		JanitorPeriod:         v.GetDuration("session.janitor_period"),
		JobWorkers:            v.GetInt("job.workers"),
		JobQueueSize:          v.GetInt("job.queue_size"),
		JobTimeout:            v.GetDuration("job.timeout"),
		JobRetention:          v.GetDuration("job.retention"),
		WatchdogGrace:         v.GetDuration("job.watchdog_grace"),
		KitNewKitTeams:        v.GetStringSlice("kit.new_kit_teams"),
		KitDefaultNewRequired: v.GetBool("kit.default_new_required"),

		PhraseProvider: v.GetString("phrase.provider"),
		PhraseModel:    v.GetString("phrase.model"),
		AnthropicKey:   v.GetString("anthropic.api_key"),
		OpenAIKey:      v.GetString("openai.api_key"),
		LogLevel:       v.GetString("log.level"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported store driver %q", c.StoreDriver)
	}
	switch c.PhraseProvider {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported phrase provider %q", c.PhraseProvider)
	}
	if c.PhraseProvider == "anthropic" && c.AnthropicKey == "" {
		return errors.New("phrase provider anthropic requires ROSTERFLOW_ANTHROPIC_API_KEY")
	}
	if c.PhraseProvider == "openai" && c.OpenAIKey == "" {
		return errors.New("phrase provider openai requires ROSTERFLOW_OPENAI_API_KEY")
	}
	if c.JobWorkers < 1 {
		return errors.New("job.workers must be at least 1")
	}
	return nil
}
