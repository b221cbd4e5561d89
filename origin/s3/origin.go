package s3

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/manifest"
	"github.com/mwantia/assetloader/origin"
)

// MetadataLastModified is the user metadata key holding an asset's
// last-modified time in milliseconds. Object storage sets its own
// LastModified on upload, so the asset's time travels separately.
const MetadataLastModified = "asset-last-modified"

type Origin struct {
	mu sync.RWMutex

	client *minio.Client
	config *Config
}

// Config contains configuration options for the S3 origin
type Config struct {
	// Name of the origin (default: "s3")
	Name string

	Endpoint   string
	BucketName string
	AccessKey  string
	SecretKey  string
	UseSSL     bool

	// Prefix is prepended to every asset name (optional)
	Prefix string
}

var (
	_ origin.Origin       = (*Origin)(nil)
	_ origin.RandomAccess = (*Origin)(nil)
	_ origin.Indexer      = (*Origin)(nil)
	_ origin.Publisher    = (*Origin)(nil)
)

func NewOrigin(config *Config) (*Origin, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Name == "" {
		config.Name = "s3"
	}
	config.Prefix = strings.Trim(config.Prefix, "/")

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &Origin{
		client: client,
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

	exists, err := o.client.BucketExists(ctx, o.config.BucketName)
	if err != nil {
		return errs.OriginFailed(err, o.config.Name, o.config.BucketName)
	}

	if !exists {
		return errs.AssetNotFound(nil, "bucket "+o.config.BucketName)
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
			origin.CapabilityRandomAccess,
			origin.CapabilityIndex,
			origin.CapabilityPublish,
		},
		// Single PUT limit of S3.
		MaxObjectSize: 5 << 40,
	}
}

func (o *Origin) objectName(key string) (string, error) {
	name, ok := data.CleanName(key)
	if !ok {
		return "", errs.InvalidKey(nil, key)
	}
	if o.config.Prefix == "" {
		return name, nil
	}
	return o.config.Prefix + "/" + name, nil
}

func (o *Origin) assetName(object string) (string, bool) {
	if o.config.Prefix == "" {
		return data.CleanName(object)
	}
	rest, ok := strings.CutPrefix(object, o.config.Prefix+"/")
	if !ok {
		return "", false
	}
	return data.CleanName(rest)
}

func (o *Origin) translate(err error, key string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return errs.AssetNotFound(err, key)
	}
	return errs.OriginFailed(err, o.config.Name, key)
}

func (o *Origin) stat(ctx context.Context, key string) (string, minio.ObjectInfo, error) {
	object, err := o.objectName(key)
	if err != nil {
		return "", minio.ObjectInfo{}, err
	}

	info, err := o.client.StatObject(ctx, o.config.BucketName, object, minio.StatObjectOptions{})
	if err != nil {
		return "", minio.ObjectInfo{}, o.translate(err, key)
	}
	return object, info, nil
}

func (o *Origin) Fetch(ctx context.Context, key string, opts origin.FetchOptions) (*origin.Response, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	object, info, err := o.stat(ctx, key)
	if err != nil {
		return nil, err
	}

	lastModified := lastModifiedOf(info)
	if origin.NotModified(lastModified, opts.IfModifiedSince) {
		return origin.NotModifiedResponse(lastModified), nil
	}

	obj, err := o.client.GetObject(ctx, o.config.BucketName, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, o.translate(err, key)
	}

	return &origin.Response{
		Body:         obj,
		LastModified: lastModified,
		Size:         info.Size,
	}, nil
}

// OpenReaderAt returns the object itself; minio issues ranged requests for
// every ReadAt.
func (o *Origin) OpenReaderAt(ctx context.Context, key string) (origin.ReaderAtCloser, int64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	object, info, err := o.stat(ctx, key)
	if err != nil {
		return nil, 0, err
	}

	obj, err := o.client.GetObject(ctx, o.config.BucketName, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, o.translate(err, key)
	}
	return obj, info.Size, nil
}

func (o *Origin) Entries(ctx context.Context) ([]manifest.Entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	prefix := ""
	if o.config.Prefix != "" {
		prefix = o.config.Prefix + "/"
	}

	var entries []manifest.Entry
	for info := range o.client.ListObjects(ctx, o.config.BucketName, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    true,
		WithMetadata: true,
	}) {
		if info.Err != nil {
			return nil, errs.OriginFailed(info.Err, o.config.Name, prefix)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}

		name, ok := o.assetName(info.Key)
		if !ok {
			continue
		}
		entries = append(entries, manifest.NewEntry(name, lastModifiedOf(info), info.Size))
	}

	return manifest.New("", data.UnknownTime, entries...).Entries(), nil
}

func (o *Origin) Put(ctx context.Context, key string, r io.Reader, size, lastModified int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	object, err := o.objectName(key)
	if err != nil {
		return err
	}

	opts := minio.PutObjectOptions{}
	if lastModified >= 0 {
		opts.UserMetadata = map[string]string{
			MetadataLastModified: strconv.FormatInt(lastModified, 10),
		}
	}

	if _, err := o.client.PutObject(ctx, o.config.BucketName, object, r, size, opts); err != nil {
		return errs.OriginFailed(err, o.config.Name, key)
	}
	return nil
}

// lastModifiedOf prefers the asset time from user metadata over the object's
// upload time. Header casing differs between stat and list responses.
func lastModifiedOf(info minio.ObjectInfo) int64 {
	for k, v := range info.UserMetadata {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if k != MetadataLastModified {
			continue
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			return ms
		}
	}
	return data.ToMillis(info.LastModified)
}
