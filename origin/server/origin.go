package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwantia/assetloader/data"
	errs "github.com/mwantia/assetloader/data/errors"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/origin"
)

const (
	DefaultURL     = "http://localhost:8080/Iceserver/"
	DefaultTimeout = 30 * time.Second
)

// Origin fetches assets from an HTTP server. Asset names are resolved
// relative to the root URL, one escaped path segment at a time.
type Origin struct {
	mu     sync.RWMutex
	client *http.Client
	logger *log.Logger

	root   string
	config *Config
}

// Config contains configuration options for the server origin
type Config struct {
	// Name of the origin (default: "server")
	Name string

	// URL is the root all asset names are resolved against (default:
	// DefaultURL). A missing trailing slash is added.
	URL string

	// ConnectTimeout bounds establishing the connection (default: 30s)
	ConnectTimeout time.Duration

	// ReadTimeout bounds waiting for the response headers and every single
	// body read (default: 30s)
	ReadTimeout time.Duration
}

var _ origin.Origin = (*Origin)(nil)

func NewOrigin(config *Config, logger *log.Logger) (*Origin, error) {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	if config.Name == "" {
		config.Name = "server"
	}
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultTimeout
	}

	root, err := url.Parse(config.URL)
	if err != nil {
		return nil, errs.InvalidKey(err, config.URL)
	}
	if root.Scheme != "http" && root.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", data.ErrInvalid, root.Scheme)
	}
	if !strings.HasSuffix(root.Path, "/") {
		root.Path += "/"
	}

	return &Origin{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   config.ConnectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   config.ConnectTimeout,
				ResponseHeaderTimeout: config.ReadTimeout,
			},
		},
		logger: logger,
		root:   root.String(),
		config: config,
	}, nil
}

// Name returns the identifier name defined for this origin
func (o *Origin) Name() string {
	return o.config.Name
}

// Root returns the root URL with its trailing slash.
func (o *Origin) Root() string {
	return o.root
}

// Open is part of the lifecycle behaviour and gets called before the first fetch.
func (o *Origin) Open(ctx context.Context) error {
	return nil
}

// Close is part of the lifecycle behaviour and gets called when the loader shuts down.
func (o *Origin) Close(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.client.CloseIdleConnections()
	return nil
}

// GetCapabilities returns a list of capabilities supported by this origin.
func (o *Origin) GetCapabilities() *origin.Capabilities {
	return &origin.Capabilities{
		Capabilities: []origin.Capability{
			origin.CapabilityFetch,
			origin.CapabilityConditional,
		},
	}
}

// URL returns the address key is fetched from.
func (o *Origin) URL(key string) (string, error) {
	name, ok := data.CleanName(key)
	if !ok {
		return "", errs.InvalidKey(nil, key)
	}
	return o.root + data.EscapePath(name), nil
}

func (o *Origin) Fetch(ctx context.Context, key string, opts origin.FetchOptions) (*origin.Response, error) {
	target, err := o.URL(key)
	if err != nil {
		return nil, err
	}

	o.mu.RLock()
	client := o.client
	o.mu.RUnlock()

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, errs.OriginFailed(err, o.Name(), key)
	}

	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if opts.IfModifiedSince >= 0 {
		req.Header.Set("If-Modified-Since", data.FromMillis(opts.IfModifiedSince).UTC().Format(http.TimeFormat))
	}

	o.logger.Debug("Fetch: GET %s (if-modified-since %d)", target, opts.IfModifiedSince)

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, errs.OriginFailed(err, o.Name(), key)
	}

	lastModified := parseLastModified(resp.Header.Get("Last-Modified"))

	switch resp.StatusCode {
	case http.StatusOK:
		return &origin.Response{
			Body:         newIdleBody(resp.Body, o.config.ReadTimeout, cancel),
			LastModified: lastModified,
			Size:         resp.ContentLength,
		}, nil

	case http.StatusNotModified:
		drain(resp.Body)
		cancel()
		return origin.NotModifiedResponse(lastModified), nil

	case http.StatusNotFound, http.StatusGone:
		drain(resp.Body)
		cancel()
		return nil, errs.AssetNotFound(nil, key)

	default:
		drain(resp.Body)
		cancel()
		return nil, errs.OriginFailed(fmt.Errorf("unexpected status %s", resp.Status), o.Name(), key)
	}
}

// parseLastModified returns the header value in milliseconds. A missing,
// malformed or zero header is unknown.
func parseLastModified(value string) int64 {
	if value == "" {
		return data.UnknownTime
	}

	t, err := http.ParseTime(value)
	if err != nil || t.Unix() <= 0 {
		return data.UnknownTime
	}
	return t.UnixMilli()
}

func drain(body io.ReadCloser) {
	io.CopyN(io.Discard, body, 4096)
	body.Close()
}

// idleBody cancels the request when a single read waits longer than the
// read timeout.
type idleBody struct {
	body     io.ReadCloser
	timeout  time.Duration
	timer    *time.Timer
	cancel   context.CancelFunc
	timedOut atomic.Bool
	closed   atomic.Bool
}

func newIdleBody(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleBody {
	b := &idleBody{
		body:    body,
		timeout: timeout,
		cancel:  cancel,
	}
	b.timer = time.AfterFunc(timeout, b.expire)
	b.timer.Stop()
	return b
}

func (b *idleBody) expire() {
	b.timedOut.Store(true)
	b.cancel()
}

func (b *idleBody) Read(p []byte) (int, error) {
	b.timer.Reset(b.timeout)
	n, err := b.body.Read(p)
	b.timer.Stop()

	if err != nil && !errors.Is(err, io.EOF) && b.timedOut.Load() {
		err = fmt.Errorf("%w: no data for %s: %w", data.ErrOriginFailed, b.timeout, err)
	}
	return n, err
}

func (b *idleBody) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.timer.Stop()
	err := b.body.Close()
	b.cancel()
	return err
}
