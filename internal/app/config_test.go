package app_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"authmsg/internal/app"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := app.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestLoadConfig_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authmsg.yaml")
	data := []byte(`
authority:
  clientId: my-app
workflow:
  receiver: carol
  verificationTimeout: 90s
keyCache:
  backend: redis
  redisAddr: 127.0.0.1:6379
log:
  format: json
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Authority.ClientID != "my-app" || cfg.Workflow.Receiver != "carol" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Workflow.Sender != "alice" || cfg.Authority.ClientSecret == "" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Workflow.VerificationTimeout != 90*time.Second {
		t.Fatalf("timeout = %s", cfg.Workflow.VerificationTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := app.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, app.ErrInvalidConfig) {
		t.Fatalf("missing file: %v", err)
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("workflow: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := app.LoadConfig(path); !errors.Is(err, app.ErrInvalidConfig) {
		t.Fatalf("bad yaml: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := app.DefaultConfig()
	err := app.ApplyEnvOverrides(&cfg, env(map[string]string{
		"AUTHMSG_AUTHORITY_URL":           "http://127.0.0.1:8080",
		"AUTHMSG_SENDER":                  " dave ",
		"AUTHMSG_SCOPES":                  "verify, keys,,",
		"AUTHMSG_CONCURRENT_VERIFICATION": "true",
		"AUTHMSG_REDIS_DB":                "3",
		"AUTHMSG_LOG_LEVEL":               "",
	}))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Authority.URL != "http://127.0.0.1:8080" || cfg.Workflow.Sender != "dave" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.Authority.Scopes) != 2 || cfg.Authority.Scopes[1] != "keys" {
		t.Fatalf("scopes = %v", cfg.Authority.Scopes)
	}
	if !cfg.Workflow.ConcurrentVerification || cfg.KeyCache.RedisDB != 3 {
		t.Fatalf("typed overrides not applied: %+v", cfg)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("blank variable should not override, got %q", cfg.Log.Level)
	}

	if err := app.ApplyEnvOverrides(&cfg, env(map[string]string{"AUTHMSG_CONCURRENT_VERIFICATION": "maybe"})); !errors.Is(err, app.ErrInvalidConfig) {
		t.Fatalf("bad bool: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*app.Config){
		"same users":       func(c *app.Config) { c.Workflow.Receiver = c.Workflow.Sender },
		"no client":        func(c *app.Config) { c.Authority.ClientID = "" },
		"unknown backend":  func(c *app.Config) { c.KeyCache.Backend = "etcd" },
		"weak passphrase":  func(c *app.Config) { c.KeyCache.Backend = app.KeyCacheFile; c.KeyCache.Passphrase = "password" },
		"redis no address": func(c *app.Config) { c.KeyCache.Backend = app.KeyCacheRedis },
		"log format":       func(c *app.Config) { c.Log.Format = "xml" },
		"log level":        func(c *app.Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := app.DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, app.ErrInvalidConfig) {
				t.Fatalf("expected invalid config, got %v", err)
			}
		})
	}

	cfg := app.DefaultConfig()
	cfg.KeyCache.Backend = app.KeyCacheFile
	cfg.KeyCache.Passphrase = "Correct-Horse-9"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("strong passphrase rejected: %v", err)
	}
}
