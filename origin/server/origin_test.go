package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mwantia/assetloader/data"
	"github.com/mwantia/assetloader/origin"
)

var published = time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)

type recorded struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (r *recorded) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recorded) last() *http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

func newServer(t *testing.T) (*Origin, *recorded) {
	t.Helper()

	rec := &recorded{}
	mux := http.NewServeMux()
	mux.HandleFunc("/Iceserver/", func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)

		switch r.URL.EscapedPath() {
		case "/Iceserver/Textures/a.png":
			if ims := r.Header.Get("If-Modified-Since"); ims != "" {
				since, err := http.ParseTime(ims)
				if err == nil && !published.After(since) {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
			w.Header().Set("Last-Modified", published.Format(http.TimeFormat))
			w.Write([]byte("png bytes"))
		case "/Iceserver/With%20Space/b%23c.txt":
			w.Write([]byte("escaped"))
		case "/Iceserver/gone.txt":
			w.WriteHeader(http.StatusGone)
		case "/Iceserver/broken.txt":
			w.WriteHeader(http.StatusInternalServerError)
		case "/Iceserver/epoch.txt":
			w.Header().Set("Last-Modified", time.Unix(0, 0).UTC().Format(http.TimeFormat))
			w.Write([]byte("epoch"))
		default:
			http.NotFound(w, r)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	o, err := NewOrigin(&Config{URL: srv.URL + "/Iceserver"}, nil)
	if err != nil {
		t.Fatalf("NewOrigin failed: %v", err)
	}
	return o, rec
}

func TestOrigin_Fetch(t *testing.T) {
	o, rec := newServer(t)

	resp, err := o.Fetch(t.Context(), "Textures/a.png", origin.Unconditional())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.NotModified {
		t.Fatal("Expected a full response")
	}
	if resp.LastModified != published.UnixMilli() {
		t.Errorf("Expected last modified %d, got %d", published.UnixMilli(), resp.LastModified)
	}
	if resp.Size != int64(len("png bytes")) {
		t.Errorf("Expected size %d, got %d", len("png bytes"), resp.Size)
	}

	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "png bytes" {
		t.Errorf("Expected %q, got %q", "png bytes", got)
	}

	req := rec.last()
	if req.Header.Get("Cache-Control") != "no-cache" || req.Header.Get("Pragma") != "no-cache" {
		t.Errorf("Expected no-cache headers, got %v", req.Header)
	}
	if req.Header.Get("If-Modified-Since") != "" {
		t.Errorf("Expected no If-Modified-Since on an unconditional fetch")
	}
}

func TestOrigin_Conditional(t *testing.T) {
	o, rec := newServer(t)

	resp, err := o.Fetch(t.Context(), "Textures/a.png", origin.FetchOptions{
		IfModifiedSince: published.UnixMilli(),
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !resp.NotModified || resp.Body != nil {
		t.Fatalf("Expected not modified, got %+v", resp)
	}

	expected := published.Format(http.TimeFormat)
	if got := rec.last().Header.Get("If-Modified-Since"); got != expected {
		t.Errorf("Expected If-Modified-Since %q, got %q", expected, got)
	}

	resp, err = o.Fetch(t.Context(), "Textures/a.png", origin.FetchOptions{
		IfModifiedSince: published.Add(-time.Hour).UnixMilli(),
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.NotModified {
		t.Error("Expected a full response for an older If-Modified-Since")
	}
}

func TestOrigin_Escaping(t *testing.T) {
	o, _ := newServer(t)

	resp, err := o.Fetch(t.Context(), "With Space/b#c.txt", origin.Unconditional())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer resp.Body.Close()

	got, _ := io.ReadAll(resp.Body)
	if string(got) != "escaped" {
		t.Errorf("Expected %q, got %q", "escaped", got)
	}
}

func TestOrigin_Statuses(t *testing.T) {
	o, _ := newServer(t)

	tests := map[string]error{
		"missing.txt": data.ErrNotFound,
		"gone.txt":    data.ErrNotFound,
		"broken.txt":  data.ErrOriginFailed,
		"../escape":   data.ErrInvalid,
	}

	for key, expected := range tests {
		t.Run(key, func(tst *testing.T) {
			if _, err := o.Fetch(tst.Context(), key, origin.Unconditional()); !errors.Is(err, expected) {
				tst.Errorf("Expected %v, got %v", expected, err)
			}
		})
	}
}

func TestOrigin_ZeroLastModifiedIsUnknown(t *testing.T) {
	o, _ := newServer(t)

	resp, err := o.Fetch(t.Context(), "epoch.txt", origin.Unconditional())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.LastModified != data.UnknownTime {
		t.Errorf("Expected unknown last modified, got %d", resp.LastModified)
	}
}

func TestOrigin_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	address := srv.URL
	srv.Close()

	o, err := NewOrigin(&Config{URL: address, ConnectTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("NewOrigin failed: %v", err)
	}

	if _, err := o.Fetch(t.Context(), "a.txt", origin.Unconditional()); !errors.Is(err, data.ErrOriginFailed) {
		t.Errorf("Expected ErrOriginFailed, got %v", err)
	}
}

func TestOrigin_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	o, err := NewOrigin(&Config{URL: srv.URL, ReadTimeout: 100 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewOrigin failed: %v", err)
	}

	resp, err := o.Fetch(t.Context(), "slow.bin", origin.Unconditional())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if _, err := io.ReadAll(resp.Body); !errors.Is(err, data.ErrOriginFailed) {
		t.Errorf("Expected ErrOriginFailed after the read timeout, got %v", err)
	}
}

func TestNewOrigin_Defaults(t *testing.T) {
	o, err := NewOrigin(nil, nil)
	if err != nil {
		t.Fatalf("NewOrigin failed: %v", err)
	}
	if o.Name() != "server" || o.Root() != DefaultURL {
		t.Errorf("Unexpected defaults %q %q", o.Name(), o.Root())
	}

	if _, err := NewOrigin(&Config{URL: "ftp://example.com/"}, nil); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Expected ErrInvalid for ftp, got %v", err)
	}
}
