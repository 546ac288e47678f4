package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcher_DebouncesConfigChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "space.yaml", "space_id: a\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	changed := make(chan struct{}, 4)

	w := NewWatcher(zerolog.Nop(), 50*time.Millisecond)
	if err := w.Watch(ctx, []string{dir}, func() {
		calls.Add(1)
		changed <- struct{}{}
	}); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("space_id: b\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// Non-config files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification")
	}

	time.Sleep(200 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected burst of writes to collapse into 1 notification, got %d", got)
	}
}

func TestIsConfigFile(t *testing.T) {
	for name, want := range map[string]bool{
		"a.yaml": true,
		"a.YML":  true,
		"a.json": true,
		"a.txt":  false,
		"a":      false,
	} {
		if got := isConfigFile(name); got != want {
			t.Errorf("isConfigFile(%q) = %v, want %v", name, got, want)
		}
	}
}
