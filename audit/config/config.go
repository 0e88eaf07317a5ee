package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/theimaginaryfoundation/handoff-audit/audit"
)

// EnvPrefix prefixes every environment override, e.g. HANDOFF_AUDIT_R2R_BASE_URL.
const EnvPrefix = "HANDOFF_AUDIT"

// DefaultDocumentID is the ingested sales policy document searched by default.
const DefaultDocumentID = "d25939ce-cae7-5636-9f04-4345f7f9c088"

type ServiceConfig struct {
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	R2R     R2RConfig     `mapstructure:"r2r"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Handoff HandoffConfig `mapstructure:"handoff"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type OpenAIConfig struct {
	APIKey           string `mapstructure:"api_key"`
	BaseURL          string `mapstructure:"base_url"`
	Model            string `mapstructure:"model"`
	StructuredOutput bool   `mapstructure:"structured_output"`
}

type R2RConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	DocumentID string `mapstructure:"document_id"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type HandoffConfig struct {
	Lookahead int `mapstructure:"lookahead"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads service settings from defaults, an optional YAML file, and the environment, in increasing priority.
// An empty path skips the file.
func Load(path string) (ServiceConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// The conventional variable wins only when the prefixed one is unset.
	if err := v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return ServiceConfig{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ServiceConfig{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg ServiceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.trim()
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.structured_output", true)

	v.SetDefault("r2r.base_url", "http://localhost:7272")
	v.SetDefault("r2r.api_key", "")
	v.SetDefault("r2r.document_id", DefaultDocumentID)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("handoff.lookahead", audit.DefaultLookahead)

	v.SetDefault("store.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

func (c *ServiceConfig) trim() {
	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	c.OpenAI.BaseURL = strings.TrimSpace(c.OpenAI.BaseURL)
	c.OpenAI.Model = strings.TrimSpace(c.OpenAI.Model)
	c.R2R.BaseURL = strings.TrimSpace(c.R2R.BaseURL)
	c.R2R.APIKey = strings.TrimSpace(c.R2R.APIKey)
	c.R2R.DocumentID = strings.TrimSpace(c.R2R.DocumentID)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
}

// Validate checks settings every stage depends on.
func (c ServiceConfig) Validate() error {
	if c.Handoff.Lookahead <= 0 {
		return audit.NewError(audit.ErrorConfiguration, "handoff.lookahead must be > 0", nil)
	}
	return nil
}

// RequireRetrieval fails unless the retrieval service can be reached and scoped.
func (c ServiceConfig) RequireRetrieval() error {
	var missing []string
	if c.R2R.BaseURL == "" {
		missing = append(missing, "r2r.base_url")
	}
	if c.R2R.DocumentID == "" {
		missing = append(missing, "r2r.document_id")
	}
	if len(missing) > 0 {
		return audit.NewError(audit.ErrorConfiguration, "missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// RequireJudge fails unless the judge model can be called.
func (c ServiceConfig) RequireJudge() error {
	if c.OpenAI.APIKey == "" {
		return audit.NewError(audit.ErrorConfiguration, "missing openai.api_key", errors.New("set OPENAI_API_KEY or "+EnvPrefix+"_OPENAI_API_KEY"))
	}
	return nil
}
