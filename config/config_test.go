package config

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mwantia/assetloader"
	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/resolver"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "assetloader.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Resolver.Tolerance != resolver.DefaultTolerance {
		t.Errorf("Expected default tolerance, got %s", cfg.Resolver.Tolerance)
	}
	if cfg.Resolver.IndexName != manifest.DefaultName {
		t.Errorf("Expected index name %s, got %s", manifest.DefaultName, cfg.Resolver.IndexName)
	}
	if len(cfg.Locators) != 1 || cfg.Locators[0].Type != TypeHTTP {
		t.Errorf("Expected a single http locator, got %v", cfg.Locators)
	}
	if !cfg.Crypt.SaltFromPassword || !cfg.CryptContext().SaltFromPassword {
		t.Error("Expected the password to be used as salt by default")
	}
}

func TestLoad_SaltFromEnvironment(t *testing.T) {
	t.Setenv(EnvSalt, "from-env")

	cfg, err := Load(writeConfig(t, "log:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Crypt.SaltFromPassword || cfg.Crypt.Salt != "from-env" {
		t.Errorf("Expected an explicit salt from the environment, got %+v", cfg.Crypt)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvPassword, "from-env")

	path := writeConfig(t, `
log:
  level: debug
cache:
  path: /var/cache/assets
crypt:
  salt: abcdefgh
  salt_from_password: false
  iterations: 1000
resolver:
  tolerance: 2s
  stale_on_error: true
locators:
  - type: http
    encrypted: true
    cache: true
    http:
      url: https://assets.example.com/Iceserver/
      read_timeout: 5s
  - name: bundled
    type: direct
    authoritative: false
    direct:
      path: ./assets
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Cache.Path != "/var/cache/assets" {
		t.Errorf("Unexpected log/cache section %v %v", cfg.Log, cfg.Cache)
	}
	if cfg.Crypt.Password != "from-env" || cfg.Crypt.Salt != "abcdefgh" || cfg.Crypt.Iterations != 1000 {
		t.Errorf("Unexpected crypt section %+v", cfg.Crypt)
	}
	if cfg.Crypt.Magic == "" {
		t.Error("Expected the default magic to survive")
	}
	if cc := cfg.CryptContext(); cc.SaltFromPassword || cc.Salt != "abcdefgh" {
		t.Errorf("Expected the configured salt to be used, got %+v", cc)
	}
	if cfg.Resolver.Tolerance != 2*time.Second || !cfg.Resolver.StaleOnError {
		t.Errorf("Unexpected resolver section %+v", cfg.Resolver)
	}

	if len(cfg.Locators) != 2 {
		t.Fatalf("Expected the file locators to replace the default, got %d", len(cfg.Locators))
	}
	if cfg.Locators[0].Name != "http" || cfg.Locators[0].HTTP.ReadTimeout != 5*time.Second {
		t.Errorf("Unexpected first locator %+v", cfg.Locators[0])
	}
	if a := cfg.Locators[1].Authoritative; a == nil || *a {
		t.Errorf("Expected bundled to be non-authoritative")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvConfig, "")
	if _, err := LoadFromEnv(); err == nil || !strings.Contains(err.Error(), EnvConfig) {
		t.Errorf("Expected an error naming %s, got %v", EnvConfig, err)
	}

	t.Setenv(EnvConfig, writeConfig(t, "log:\n  level: warn\n"))
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected level warn, got %s", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*Config)
		field  string
	}{
		"unknown type": {
			mutate: func(c *Config) {
				c.Locators = append(c.Locators, LocatorConfig{Name: "a", Type: "direct", Direct: &DirectConfig{Path: "."}}, LocatorConfig{Name: "b", Type: "ftp"})
			},
			field: `locators[2].type: unknown type "ftp"`,
		},
		"duplicate name": {
			mutate: func(c *Config) {
				c.Locators = append(c.Locators, c.Locators[0])
			},
			field: "locators[1].name: duplicate of locators[0]",
		},
		"log level": {
			mutate: func(c *Config) { c.Log.Level = "loud" },
			field:  "log.level",
		},
		"iterations": {
			mutate: func(c *Config) { c.Crypt.Iterations = 0 },
			field:  "crypt.iterations",
		},
		"tolerance": {
			mutate: func(c *Config) { c.Resolver.Tolerance = -time.Second },
			field:  "resolver.tolerance",
		},
		"http url": {
			mutate: func(c *Config) { c.Locators[0].HTTP.URL = "ftp://example.com" },
			field:  "locators[0].http.url",
		},
		"cache without path": {
			mutate: func(c *Config) { c.Cache.Path = "" },
			field:  "locators[0].cache: requires cache.path",
		},
		"s3 bucket": {
			mutate: func(c *Config) {
				c.Locators = append(c.Locators, LocatorConfig{Name: "s3", Type: TypeS3, S3: &S3Config{Endpoint: "localhost:9000"}})
			},
			field: "locators[1].s3.bucket",
		},
		"no locators": {
			mutate: func(c *Config) { c.Locators = nil },
			field:  "locators: at least one locator is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(tst *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				tst.Fatal("Expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				tst.Errorf("Expected error to contain %q, got %q", tt.field, err)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	assets := t.TempDir()
	os.MkdirAll(filepath.Join(assets, "tex"), 0755)
	os.WriteFile(filepath.Join(assets, "tex", "a.png"), []byte("png"), 0644)

	root := t.TempDir()
	cfg := Default()
	cfg.Cache.Path = filepath.Join(root, "cache")
	cfg.Mirror.Path = filepath.Join(root, "mirror.db")
	cfg.Metrics.Listen = "127.0.0.1:0"
	cfg.Locators = []LocatorConfig{
		{Name: "offline", Type: TypeCache},
		{Name: "local", Type: TypeDirect, Cache: true, Direct: &DirectConfig{Path: assets}},
		{Name: "blobs", Type: TypeSQLite, SQLite: &SQLiteConfig{Path: filepath.Join(root, "assets.db")}},
	}

	l, err := cfg.Build(t.Context(), assetloader.WithLogger(log.NewDiscardLogger()))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer l.Close(context.Background())

	var names []string
	for _, loc := range l.Locators() {
		names = append(names, loc.Name())
	}
	if strings.Join(names, ",") != "offline,local,blobs" {
		t.Errorf("Unexpected locator order %v", names)
	}

	if err := l.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := l.Index(t.Context()); err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if !l.Has("tex/a.png") {
		t.Error("Expected tex/a.png in the manifest")
	}

	stream, err := l.Open(t.Context(), "tex/a.png")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	content, _ := io.ReadAll(stream)
	stream.Close()
	if string(content) != "png" {
		t.Errorf("Unexpected content %q", content)
	}

	if _, err := os.Stat(filepath.Join(root, "cache", "tex", "a.png")); err != nil {
		t.Errorf("Expected the asset to be cached: %v", err)
	}

	if _, err := l.Open(t.Context(), "tex/missing.png"); !errors.Is(err, data.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBuild_Invalid(t *testing.T) {
	cfg := Default()
	cfg.Locators[0].Type = "ftp"

	if _, err := cfg.Build(t.Context(), assetloader.WithLogger(log.NewDiscardLogger())); err == nil {
		t.Error("Expected Build to reject an invalid configuration")
	}
}
