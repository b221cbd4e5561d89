package consul

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/origin"
)

// MaxValueSize is the Consul KV limit per value.
const MaxValueSize = 512 * 1024

// Origin serves small assets from the Consul KV store.
//
// Layout:
// - Every asset is one KV entry below the prefix, its value the raw bytes
// - The asset's last-modified time in milliseconds is kept in the entry's
// Flags (0 meaning unknown)
//
// Limitations:
// - Consul KV has a 512KB limit per value
// - Best suited for configuration files, small assets and manifests
type Origin struct {
	mu     sync.RWMutex
	client *api.Client
	kv     *api.KV

	config *Config
}

// Config contains configuration options for the Consul origin
type Config struct {
	// Name of the origin (default: "consul")
	Name string

	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Namespace for Consul Enterprise (optional)
	Namespace string

	// Prefix for all keys in Consul KV (default: "assets/")
	Prefix string
}

var (
	_ origin.Origin    = (*Origin)(nil)
	_ origin.Indexer   = (*Origin)(nil)
	_ origin.Publisher = (*Origin)(nil)
)

func NewOrigin(config *Config) (*Origin, error) {
	if config == nil {
		config = &Config{}
	}

	// Set defaults
	if config.Name == "" {
		config.Name = "consul"
	}
	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}

	config.Prefix = strings.Trim(config.Prefix, "/")
	if config.Prefix == "" {
		config.Prefix = "assets"
	}
	config.Prefix += "/"

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}
	if config.Namespace != "" {
		clientConfig.Namespace = config.Namespace
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &Origin{
		client: client,
		kv:     client.KV(),
		config: config,
	}, nil
}

// Name returns the identifier name defined for this origin
func (o *Origin) Name() string {
	return o.config.Name
}

// Open is part of the lifecycle behaviour and gets called before the first fetch.
func (o *Origin) Open(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.client.Status().Leader(); err != nil {
		return errs.OriginFailed(err, o.config.Name, o.config.Address)
	}
	return nil
}

// Close is part of the lifecycle behaviour and gets called when the loader shuts down.
func (o *Origin) Close(ctx context.Context) error {
	return nil
}

// GetCapabilities returns a list of capabilities supported by this origin.
func (o *Origin) GetCapabilities() *origin.Capabilities {
	return &origin.Capabilities{
		Capabilities: []origin.Capability{
			origin.CapabilityFetch,
			origin.CapabilityConditional,
			origin.CapabilityIndex,
			origin.CapabilityPublish,
		},
		MaxObjectSize: MaxValueSize,
	}
}

func (o *Origin) keyOf(name string) (string, error) {
	cleaned, ok := data.CleanName(name)
	if !ok {
		return "", errs.InvalidKey(nil, name)
	}
	return o.config.Prefix + cleaned, nil
}

func (o *Origin) Fetch(ctx context.Context, key string, opts origin.FetchOptions) (*origin.Response, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	kvKey, err := o.keyOf(key)
	if err != nil {
		return nil, err
	}

	pair, _, err := o.kv.Get(kvKey, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, errs.OriginFailed(err, o.config.Name, key)
	}
	if pair == nil {
		return nil, errs.AssetNotFound(nil, key)
	}

	lastModified := fromFlags(pair.Flags)
	if origin.NotModified(lastModified, opts.IfModifiedSince) {
		return origin.NotModifiedResponse(lastModified), nil
	}

	return &origin.Response{
		Body:         io.NopCloser(bytes.NewReader(pair.Value)),
		LastModified: lastModified,
		Size:         int64(len(pair.Value)),
	}, nil
}

func (o *Origin) Entries(ctx context.Context) ([]manifest.Entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	pairs, _, err := o.kv.List(o.config.Prefix, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, errs.OriginFailed(err, o.config.Name, o.config.Prefix)
	}

	entries := make([]manifest.Entry, 0, len(pairs))
	for _, pair := range pairs {
		// Folder placeholders
		if strings.HasSuffix(pair.Key, "/") {
			continue
		}

		name, ok := data.CleanName(strings.TrimPrefix(pair.Key, o.config.Prefix))
		if !ok {
			continue
		}
		entries = append(entries, manifest.NewEntry(name, fromFlags(pair.Flags), int64(len(pair.Value))))
	}

	return manifest.New("", data.UnknownTime, entries...).Entries(), nil
}

func (o *Origin) Put(ctx context.Context, key string, r io.Reader, size, lastModified int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	kvKey, err := o.keyOf(key)
	if err != nil {
		return err
	}

	if size > MaxValueSize {
		return errs.TooLarge(key, size, MaxValueSize)
	}

	value, err := io.ReadAll(io.LimitReader(r, MaxValueSize+1))
	if err != nil {
		return errs.OriginFailed(err, o.config.Name, key)
	}
	if len(value) > MaxValueSize {
		return errs.TooLarge(key, data.UnknownSize, MaxValueSize)
	}

	pair := &api.KVPair{
		Key:   kvKey,
		Flags: toFlags(lastModified),
		Value: value,
	}
	if _, err := o.kv.Put(pair, (&api.WriteOptions{}).WithContext(ctx)); err != nil {
		return errs.OriginFailed(err, o.config.Name, key)
	}
	return nil
}

func toFlags(lastModified int64) uint64 {
	if lastModified < 0 {
		return 0
	}
	return uint64(lastModified)
}

func fromFlags(flags uint64) int64 {
	if flags == 0 {
		return data.UnknownTime
	}
	return int64(flags)
}
