package event

import (
	"fmt"
	"strings"
	"testing"
)

func TestBus_ReverseOrder(t *testing.T) {
	var calls []string
	record := func(id string) *Funcs {
		return &Funcs{
			OnRequested: func(key string) {
				calls = append(calls, fmt.Sprintf("%s:requested:%s", id, key))
			},
			OnDownloadStarting: func(key string, size int64) {
				calls = append(calls, fmt.Sprintf("%s:starting:%s:%d", id, key, size))
			},
			OnDownloadProgress: func(key string, total int64) {
				calls = append(calls, fmt.Sprintf("%s:progress:%s:%d", id, key, total))
			},
			OnDownloadComplete: func(key string) {
				calls = append(calls, fmt.Sprintf("%s:complete:%s", id, key))
			},
			OnSupplied: func(key string) {
				calls = append(calls, fmt.Sprintf("%s:supplied:%s", id, key))
			},
		}
	}

	bus := NewBus()
	bus.Add(record("first"))
	bus.Add(record("second"))
	bus.Add(nil)

	if bus.Len() != 2 {
		t.Fatalf("Expected 2 listeners, got %d", bus.Len())
	}

	bus.Requested("a")
	bus.DownloadStarting("a", 10)
	bus.DownloadProgress("a", 4)
	bus.DownloadComplete("a")
	bus.Supplied("a")

	expected := []string{
		"second:requested:a", "first:requested:a",
		"second:starting:a:10", "first:starting:a:10",
		"second:progress:a:4", "first:progress:a:4",
		"second:complete:a", "first:complete:a",
		"second:supplied:a", "first:supplied:a",
	}
	if strings.Join(calls, ",") != strings.Join(expected, ",") {
		t.Errorf("Unexpected event order:\n%v", calls)
	}
}

func TestBus_Remove(t *testing.T) {
	count := 0
	l := &Funcs{OnSupplied: func(string) { count++ }}

	bus := NewBus()
	bus.Add(l)
	bus.Supplied("x")

	if !bus.Remove(l) {
		t.Fatal("Expected Remove to find the listener")
	}
	if bus.Remove(l) {
		t.Error("Expected second Remove to report false")
	}

	bus.Supplied("x")
	if count != 1 {
		t.Errorf("Expected 1 delivered event, got %d", count)
	}
}

// TestBus_ListenerMutatesBus verifies that a listener may unregister itself
// while an event is being delivered.
func TestBus_ListenerMutatesBus(t *testing.T) {
	bus := NewBus()

	var self *Funcs
	self = &Funcs{OnRequested: func(string) { bus.Remove(self) }}
	bus.Add(self)

	bus.Requested("x")
	if bus.Len() != 0 {
		t.Errorf("Expected listener to remove itself, %d left", bus.Len())
	}
}

func TestFuncs_NilFields(t *testing.T) {
	var l Listener = &Funcs{}
	l.Requested("x")
	l.DownloadStarting("x", 1)
	l.DownloadProgress("x", 1)
	l.DownloadComplete("x")
	l.Supplied("x")
	Nop.Supplied("x")
}
