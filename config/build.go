package config

import (
	"context"
	"fmt"

	"github.com/mwantia/assetloader"
	"github.com/mwantia/assetloader/archive"
	"github.com/mwantia/assetloader/cache"
	"github.com/mwantia/assetloader/crypt"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/manifest/mirror"
	"github.com/mwantia/assetloader/metrics"
	"github.com/mwantia/assetloader/origin"
	"github.com/mwantia/assetloader/origin/consul"
	"github.com/mwantia/assetloader/origin/direct"
	"github.com/mwantia/assetloader/origin/postgres"
	"github.com/mwantia/assetloader/origin/s3"
	"github.com/mwantia/assetloader/origin/server"
	"github.com/mwantia/assetloader/origin/sqlite"
	"github.com/mwantia/assetloader/resolver"
)

// CryptContext returns the decryption context described by the crypt section.
func (c *Config) CryptContext() *crypt.Context {
	cc := crypt.NewContext(c.Crypt.Password, c.Crypt.Salt)
	cc.Magic = c.Crypt.Magic
	cc.Iterations = c.Crypt.Iterations
	cc.SaltFromPassword = c.Crypt.SaltFromPassword
	return cc
}

// Build creates a loader with the configured locators attached in order. The
// locators are not opened and nothing is indexed yet.
func (c *Config) Build(ctx context.Context, opts ...assetloader.LoaderOption) (*assetloader.Loader, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	level, err := log.Parse(c.Log.Level)
	if err != nil {
		return nil, err
	}

	base := []assetloader.LoaderOption{
		assetloader.WithLogLevel(level),
		assetloader.WithLogFile(c.Log.File),
	}
	if c.Log.NoTerminal {
		base = append(base, assetloader.WithoutTerminalLog())
	}

	if c.Mirror.Path != "" {
		m, err := mirror.Open(c.Mirror.Path)
		if err != nil {
			return nil, fmt.Errorf("mirror.path: %w", err)
		}
		base = append(base, assetloader.WithManifestMirror(m))
	}

	l, err := assetloader.New(append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	if err := c.attach(ctx, l); err != nil {
		l.Close(ctx)
		return nil, err
	}

	if c.Metrics.Listen != "" {
		l.AddListener(metrics.NewListener())
	}

	return l, nil
}

func (c *Config) attach(ctx context.Context, l *assetloader.Loader) error {
	logger := l.Logger()

	var store *cache.Store
	if c.Cache.Path != "" {
		s, err := cache.New(c.Cache.Path, logger.Named("cache"))
		if err != nil {
			return fmt.Errorf("cache.path: %w", err)
		}
		store = s
	}

	decryption := c.CryptContext()
	extractor := archive.NewExtractor("", logger.Named("archive"))

	for i, lc := range c.Locators {
		o, err := c.newOrigin(ctx, lc, store, logger)
		if err != nil {
			return fmt.Errorf("locators[%d]: %w", i, err)
		}

		opts := []resolver.ResolverOption{
			resolver.WithName(lc.Name),
			resolver.WithTolerance(c.Resolver.Tolerance),
			resolver.WithIndexName(c.Resolver.IndexName),
			resolver.WithArchiveExtension(c.Resolver.ArchiveExtension),
			resolver.WithExtractor(extractor),
		}
		if lc.Cache && store != nil {
			opts = append(opts, resolver.WithCache(store))
		}
		if lc.Encrypted {
			opts = append(opts, resolver.WithDecryption(decryption))
		}
		if c.Resolver.StaleOnError {
			opts = append(opts, resolver.WithStaleOnError())
		}
		if lc.Authoritative != nil && !*lc.Authoritative {
			opts = append(opts, resolver.NotAuthoritative())
		}

		if _, err := l.Attach(o, opts...); err != nil {
			return fmt.Errorf("locators[%d]: %w", i, err)
		}
	}

	return nil
}

func (c *Config) newOrigin(ctx context.Context, lc LocatorConfig, store *cache.Store, logger *log.Logger) (origin.Origin, error) {
	switch lc.Type {
	case TypeHTTP:
		return server.NewOrigin(&server.Config{
			Name:           lc.Name,
			URL:            lc.HTTP.URL,
			ConnectTimeout: lc.HTTP.ConnectTimeout,
			ReadTimeout:    lc.HTTP.ReadTimeout,
		}, logger.Named(lc.Name))
	case TypeDirect:
		return direct.NewOrigin(lc.Name, lc.Direct.Path)
	case TypeS3:
		return s3.NewOrigin(&s3.Config{
			Name:       lc.Name,
			Endpoint:   lc.S3.Endpoint,
			BucketName: lc.S3.Bucket,
			AccessKey:  lc.S3.AccessKey,
			SecretKey:  lc.S3.SecretKey,
			UseSSL:     lc.S3.UseSSL,
			Prefix:     lc.S3.Prefix,
		})
	case TypeConsul:
		return consul.NewOrigin(&consul.Config{
			Name:       lc.Name,
			Address:    lc.Consul.Address,
			Token:      lc.Consul.Token,
			Datacenter: lc.Consul.Datacenter,
			Namespace:  lc.Consul.Namespace,
			Prefix:     lc.Consul.Prefix,
		})
	case TypeSQLite:
		return sqlite.NewOrigin(lc.Name, lc.SQLite.Path)
	case TypePostgres:
		return postgres.NewOrigin(ctx, lc.Name, lc.Postgres.DSN)
	case TypeCache:
		if store == nil {
			return nil, fmt.Errorf("type %q requires cache.path", lc.Type)
		}
		return cache.NewOrigin(store), nil
	}

	return nil, fmt.Errorf("unknown type %q", lc.Type)
}
