package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"authmsg/internal/domain"
	"authmsg/internal/services/orchestrator"
)

const (
	KeyCacheMemory = "memory"
	KeyCacheFile   = "file"
	KeyCacheRedis  = "redis"

	minPassphraseLength = 12
)

// ErrInvalidConfig marks configuration problems.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds runtime wiring options.
type Config struct {
	Home      string          `yaml:"home"`
	Authority AuthorityConfig `yaml:"authority"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	KeyCache  KeyCacheConfig  `yaml:"keyCache"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Dev       DevConfig       `yaml:"dev"`
}

// AuthorityConfig selects the authority. An empty URL runs the development
// authority in process.
type AuthorityConfig struct {
	URL           string   `yaml:"url"`
	ClientID      string   `yaml:"clientId"`
	ClientSecret  string   `yaml:"clientSecret"`
	Scopes        []string `yaml:"scopes"`
	RetryAttempts int      `yaml:"retryAttempts"`
}

type WorkflowConfig struct {
	Sender                 string        `yaml:"sender"`
	Receiver               string        `yaml:"receiver"`
	Title                  string        `yaml:"title"`
	Body                   string        `yaml:"body"`
	Message                string        `yaml:"message"`
	VerificationTimeout    time.Duration `yaml:"verificationTimeout"`
	RefreshMargin          time.Duration `yaml:"refreshMargin"`
	ConcurrentVerification bool          `yaml:"concurrentVerification"`
	VerificationRate       float64       `yaml:"verificationRate"`
	VerificationBurst      int           `yaml:"verificationBurst"`
}

type KeyCacheConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Passphrase  string `yaml:"passphrase"`
	RedisAddr   string `yaml:"redisAddr"`
	RedisDB     int    `yaml:"redisDb"`
	RedisPrefix string `yaml:"redisPrefix"`
}

// LedgerConfig places the client-side redemption ledger. An empty path keeps
// it in memory.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DevConfig tunes the development authority.
type DevConfig struct {
	AccessTTL    time.Duration `yaml:"accessTtl"`
	IdentityTTL  time.Duration `yaml:"identityTtl"`
	ApproveDelay time.Duration `yaml:"approveDelay"`
	DenyUsers    []string      `yaml:"denyUsers"`
}

// DefaultConfig returns a configuration that runs the demo entirely in process.
func DefaultConfig() Config {
	return Config{
		Authority: AuthorityConfig{
			ClientID:      "authmsg-demo",
			ClientSecret:  "authmsg-demo-secret",
			Scopes:        []string{"verify", "keys"},
			RetryAttempts: 4,
		},
		Workflow: WorkflowConfig{
			Sender:              "alice",
			Receiver:            "bob",
			Title:               orchestrator.DefaultTitle,
			Body:                orchestrator.DefaultBody,
			Message:             orchestrator.DefaultMessage,
			VerificationTimeout: 5 * time.Minute,
			RefreshMargin:       orchestrator.DefaultRefreshMargin,
		},
		KeyCache: KeyCacheConfig{Backend: KeyCacheMemory},
		Log:      LogConfig{Format: "text", Level: "info"},
	}
}

// LoadConfig reads path over DefaultConfig and applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := ApplyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnvOverrides copies AUTHMSG_* variables found by lookup into cfg.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("AUTHMSG_HOME", &cfg.Home)
	str("AUTHMSG_AUTHORITY_URL", &cfg.Authority.URL)
	str("AUTHMSG_CLIENT_ID", &cfg.Authority.ClientID)
	str("AUTHMSG_CLIENT_SECRET", &cfg.Authority.ClientSecret)
	str("AUTHMSG_SENDER", &cfg.Workflow.Sender)
	str("AUTHMSG_RECEIVER", &cfg.Workflow.Receiver)
	str("AUTHMSG_KEY_CACHE", &cfg.KeyCache.Backend)
	str("AUTHMSG_KEY_CACHE_PATH", &cfg.KeyCache.Path)
	str("AUTHMSG_KEY_CACHE_PASSPHRASE", &cfg.KeyCache.Passphrase)
	str("AUTHMSG_REDIS_ADDR", &cfg.KeyCache.RedisAddr)
	str("AUTHMSG_LEDGER_PATH", &cfg.Ledger.Path)
	str("AUTHMSG_LOG_FORMAT", &cfg.Log.Format)
	str("AUTHMSG_LOG_LEVEL", &cfg.Log.Level)
	str("AUTHMSG_METRICS_LISTEN", &cfg.Metrics.Listen)

	if raw, ok := lookup("AUTHMSG_SCOPES"); ok && strings.TrimSpace(raw) != "" {
		cfg.Authority.Scopes = splitList(raw)
	}
	if raw, ok := lookup("AUTHMSG_CONCURRENT_VERIFICATION"); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%w: AUTHMSG_CONCURRENT_VERIFICATION: %v", ErrInvalidConfig, err)
		}
		cfg.Workflow.ConcurrentVerification = v
	}
	if raw, ok := lookup("AUTHMSG_REDIS_DB"); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%w: AUTHMSG_REDIS_DB: %v", ErrInvalidConfig, err)
		}
		cfg.KeyCache.RedisDB = v
	}
	return nil
}

// Validate reports the first problem that would stop the wiring.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if err := c.OrchestratorConfig().Validate(); err != nil {
		return invalid("%v", err)
	}
	switch c.KeyCache.Backend {
	case KeyCacheMemory:
	case KeyCacheFile:
		if !isSecurePassphrase(c.KeyCache.Passphrase) {
			return invalid("key cache passphrase must be at least %d characters with upper, lower, digit and symbol", minPassphraseLength)
		}
	case KeyCacheRedis:
		if c.KeyCache.RedisAddr == "" {
			return invalid("redis key cache needs redisAddr")
		}
	default:
		return invalid("unknown key cache backend %q", c.KeyCache.Backend)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return invalid("log format must be text or json, got %q", c.Log.Format)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return invalid("%v", err)
	}
	if c.Workflow.VerificationTimeout < 0 {
		return invalid("verification timeout must not be negative")
	}
	return nil
}

// OrchestratorConfig projects the workflow settings.
func (c Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		ClientID:               c.Authority.ClientID,
		ClientSecret:           c.Authority.ClientSecret,
		Scopes:                 append([]string(nil), c.Authority.Scopes...),
		Sender:                 domain.UserID(c.Workflow.Sender),
		Receiver:               domain.UserID(c.Workflow.Receiver),
		Title:                  c.Workflow.Title,
		Body:                   c.Workflow.Body,
		Message:                c.Workflow.Message,
		RefreshMargin:          c.Workflow.RefreshMargin,
		ConcurrentVerification: c.Workflow.ConcurrentVerification,
	}
}

// ResolveHome returns Home, defaulting to ~/.authmsg.
func (c Config) ResolveHome() (string, error) {
	if c.Home != "" {
		return c.Home, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".authmsg"), nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
