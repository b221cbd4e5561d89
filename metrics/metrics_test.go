package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestListener_TracksDownloads(t *testing.T) {
	l := NewListener()

	l.Requested("a")
	l.DownloadStarting("a", 100)
	l.DownloadProgress("a", 40)
	if l.InFlight() != 1 {
		t.Fatalf("Expected 1 in-flight download, got %d", l.InFlight())
	}

	l.DownloadProgress("a", 100)
	l.DownloadComplete("a")
	l.Supplied("a")

	if l.InFlight() != 0 {
		t.Errorf("Expected no in-flight downloads, got %d", l.InFlight())
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordResolution("http", OutcomeNetwork)
	RecordLockWait(5 * time.Millisecond)
	SetManifestEntries("http://index.dat", 3)
	RecordCacheWrite(true)
	RecordDownload(10, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"assetloader_resolutions_total",
		"assetloader_lock_wait_seconds",
		"assetloader_manifest_entries",
		"assetloader_cache_writes_total",
		"assetloader_download_bytes_total",
		"assetloader_downloads_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected %s in metrics output", name)
		}
	}
}
