// Package config loads the YAML configuration of an asset loader and builds
// the loader from it.
//
// The configuration file is given by the --config flag or the
// ASSETLOADER_CONFIG environment variable. ASSETLOADER_PASSWORD and
// ASSETLOADER_SALT replace the decryption secrets of the file, so they do not
// have to be stored in it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/mwantia/assetloader/crypt"
	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/origin/server"
	"github.com/mwantia/assetloader/resolver"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfig   = "ASSETLOADER_CONFIG"
	EnvPassword = "ASSETLOADER_PASSWORD"
	EnvSalt     = "ASSETLOADER_SALT"
)

// Locator types.
const (
	TypeHTTP     = "http"
	TypeDirect   = "direct"
	TypeS3       = "s3"
	TypeConsul   = "consul"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeCache    = "cache"
)

type Config struct {
	Log      LogConfig       `yaml:"log"`
	Cache    CacheConfig     `yaml:"cache"`
	Crypt    CryptConfig     `yaml:"crypt"`
	Resolver ResolverConfig  `yaml:"resolver"`
	Mirror   MirrorConfig    `yaml:"mirror"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Locators []LocatorConfig `yaml:"locators"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	NoTerminal bool   `yaml:"no_terminal"`
}

type CacheConfig struct {
	// Path is the cache directory. Empty disables caching.
	Path string `yaml:"path"`
}

type CryptConfig struct {
	Magic      string `yaml:"magic"`
	Password   string `yaml:"password"`
	Salt       string `yaml:"salt"`
	Iterations int    `yaml:"iterations"`
	// SaltFromPassword uses the password as salt. Salt only applies when
	// this is false.
	SaltFromPassword bool `yaml:"salt_from_password"`
}

type ResolverConfig struct {
	Tolerance        time.Duration `yaml:"tolerance"`
	StaleOnError     bool          `yaml:"stale_on_error"`
	IndexName        string        `yaml:"index_name"`
	ArchiveExtension string        `yaml:"archive_extension"`
}

type MirrorConfig struct {
	// Path of the SQLite manifest mirror. Empty disables the mirror.
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	// Listen is the address `assetctl serve` exposes /metrics on.
	Listen string `yaml:"listen"`
}

// LocatorConfig describes one locator. Only the section matching Type is
// used.
type LocatorConfig struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Encrypted bool   `yaml:"encrypted"`
	Cache     bool   `yaml:"cache"`

	// Authoritative lets the locator's own manifest rule out assets it does
	// not list (default: true).
	Authoritative *bool `yaml:"authoritative,omitempty"`

	HTTP     *HTTPConfig     `yaml:"http,omitempty"`
	Direct   *DirectConfig   `yaml:"direct,omitempty"`
	S3       *S3Config       `yaml:"s3,omitempty"`
	Consul   *ConsulConfig   `yaml:"consul,omitempty"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

type HTTPConfig struct {
	URL            string        `yaml:"url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

type DirectConfig struct {
	Path string `yaml:"path"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

type ConsulConfig struct {
	Address    string `yaml:"address"`
	Token      string `yaml:"token"`
	Datacenter string `yaml:"datacenter"`
	Namespace  string `yaml:"namespace"`
	Prefix     string `yaml:"prefix"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// Default returns a configuration with a single HTTP locator on the default
// server root, cached below the user cache directory.
func Default() *Config {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}

	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			Path: filepath.Join(cacheDir, "assetloader"),
		},
		Crypt: CryptConfig{
			Magic:      crypt.DefaultMagic,
			Password:   crypt.DefaultPassword,
			Salt:       crypt.DefaultSalt,
			Iterations: crypt.DefaultIterations,

			SaltFromPassword: true,
		},
		Resolver: ResolverConfig{
			Tolerance:        resolver.DefaultTolerance,
			IndexName:        manifest.DefaultName,
			ArchiveExtension: resolver.DefaultArchiveExtension,
		},
		Locators: []LocatorConfig{
			{
				Name:  "server",
				Type:  TypeHTTP,
				Cache: true,
				HTTP: &HTTPConfig{
					URL:            server.DefaultURL,
					ConnectTimeout: server.DefaultTimeout,
					ReadTimeout:    server.DefaultTimeout,
				},
			},
		},
	}
}

// LoadFromEnv loads the file named by ASSETLOADER_CONFIG.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your configuration file, or use --config flag", EnvConfig)
	}

	return Load(path)
}

// Load reads path over the defaults, applies the environment overrides and
// validates the result. Locators of the file replace the default locator.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvironment()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvironment() {
	if password, ok := os.LookupEnv(EnvPassword); ok {
		c.Crypt.Password = password
	}
	if salt, ok := os.LookupEnv(EnvSalt); ok {
		c.Crypt.Salt = salt
		c.Crypt.SaltFromPassword = false
	}
}

// normalize fills locator names from their type.
func (c *Config) normalize() {
	for i := range c.Locators {
		if c.Locators[i].Name == "" {
			c.Locators[i].Name = c.Locators[i].Type
		}
	}
}

// Validate checks the configuration and names the offending field of every
// problem it finds.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}

	if _, err := log.Parse(c.Log.Level); err != nil {
		fail("log.level", "%v", err)
	}

	if c.Crypt.Magic == "" || len(c.Crypt.Magic) > 255 {
		fail("crypt.magic", "must be 1 to 255 bytes")
	}
	if c.Crypt.Iterations <= 0 {
		fail("crypt.iterations", "must be positive, got %d", c.Crypt.Iterations)
	}

	if c.Resolver.Tolerance < 0 {
		fail("resolver.tolerance", "must not be negative, got %s", c.Resolver.Tolerance)
	}
	if _, ok := data.CleanName(c.Resolver.IndexName); !ok {
		fail("resolver.index_name", "invalid name %q", c.Resolver.IndexName)
	}
	if c.Resolver.ArchiveExtension == "" {
		fail("resolver.archive_extension", "must not be empty")
	}

	if len(c.Locators) == 0 {
		fail("locators", "at least one locator is required")
	}

	names := make(map[string]int)
	for i, lc := range c.Locators {
		field := fmt.Sprintf("locators[%d]", i)

		if lc.Name == "" {
			fail(field+".name", "must not be empty")
		} else if first, exists := names[lc.Name]; exists {
			fail(field+".name", "duplicate of locators[%d]", first)
		} else {
			names[lc.Name] = i
		}

		if lc.Cache && c.Cache.Path == "" {
			fail(field+".cache", "requires cache.path")
		}

		switch lc.Type {
		case TypeHTTP:
			if lc.HTTP == nil {
				fail(field+".http", "section required for type %q", lc.Type)
				continue
			}
			u, err := url.Parse(lc.HTTP.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				fail(field+".http.url", "invalid url %q", lc.HTTP.URL)
			}
		case TypeDirect:
			if lc.Direct == nil || lc.Direct.Path == "" {
				fail(field+".direct.path", "required for type %q", lc.Type)
			}
		case TypeS3:
			if lc.S3 == nil {
				fail(field+".s3", "section required for type %q", lc.Type)
				continue
			}
			if lc.S3.Endpoint == "" {
				fail(field+".s3.endpoint", "must not be empty")
			}
			if lc.S3.Bucket == "" {
				fail(field+".s3.bucket", "must not be empty")
			}
		case TypeConsul:
			if lc.Consul == nil {
				fail(field+".consul", "section required for type %q", lc.Type)
			}
		case TypeSQLite:
			if lc.SQLite == nil || lc.SQLite.Path == "" {
				fail(field+".sqlite.path", "required for type %q", lc.Type)
			}
		case TypePostgres:
			if lc.Postgres == nil || lc.Postgres.DSN == "" {
				fail(field+".postgres.dsn", "required for type %q", lc.Type)
			}
		case TypeCache:
			if c.Cache.Path == "" {
				fail(field+".type", "type %q requires cache.path", lc.Type)
			}
		default:
			fail(field+".type", "unknown type %q", lc.Type)
		}
	}

	return errors.Join(errs...)
}
