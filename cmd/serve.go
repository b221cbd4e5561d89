package cmd

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mwantia/assetloader"
	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/log"
	"github.com/mwantia/assetloader/metrics"
	"github.com/mwantia/assetloader/origin"
	"github.com/urfave/cli/v3"
)

// ServePrefix is the path below which assets are served. It matches the
// default root of the http locator.
const ServePrefix = "/Iceserver/"

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the configured locators over http",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "address to listen on",
				Value: "127.0.0.1:8080",
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	l, cfg, err := openLoader(ctx, cmd)
	if err != nil {
		return err
	}
	defer l.Close(context.Background())

	mux := http.NewServeMux()
	mux.Handle(ServePrefix, newAssetHandler(l, l.Logger().Named("serve")))
	mux.HandleFunc("POST /-/reindex", func(w http.ResponseWriter, r *http.Request) {
		if err := l.Reindex(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	listen := cmd.String("listen")
	if cfg.Metrics.Listen == "" || cfg.Metrics.Listen == listen {
		mux.Handle("/metrics", metrics.Handler())
	} else {
		go serveMetrics(ctx, cfg.Metrics.Listen, l.Logger())
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	printTitle(stdout(cmd), "serving %d locators on http://%s%s", len(l.Locators()), listen, ServePrefix)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger *log.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Serve: metrics listener on %s failed: %v", addr, err)
	}
}

// newAssetHandler answers GET requests below ServePrefix from the loader,
// honouring If-Modified-Since.
func newAssetHandler(l *assetloader.Loader, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, ServePrefix)
		logger := logger.With("remote", r.RemoteAddr)

		stream, err := l.Open(r.Context(), name)
		switch {
		case errors.Is(err, data.ErrNotFound):
			http.NotFound(w, r)
			return
		case errors.Is(err, data.ErrInvalid):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case err != nil:
			logger.Warn("Serve: failed to open %s: %v", name, err)
			http.Error(w, "failed to load asset", http.StatusBadGateway)
			return
		}
		defer stream.Close()

		lastModified := data.LastModifiedOf(stream)
		if ims, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil {
			if origin.NotModified(lastModified, data.ToMillis(ims)) {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}

		if lastModified >= 0 {
			w.Header().Set("Last-Modified", data.FromMillis(lastModified).UTC().Format(http.TimeFormat))
		}
		if size := data.SizeOf(stream); size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		}
		w.Header().Set("Content-Type", string(data.ContentTypeOf(name)))

		if r.Method == http.MethodHead {
			return
		}
		n, err := io.Copy(w, stream)
		if err != nil {
			logger.Debug("Serve: %s aborted after %d bytes: %v", name, n, err)
			return
		}
		logger.Debug("Serve: sent %s (%d bytes)", name, n)
	})
}
