package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, fingerprint string) {
	t.Helper()
	yaml := `
backend:
  base_url: http://x/api
  fingerprint: ` + fingerprint + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.yaml")
	writeConfig(t, path, "fp-1")

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Backend.Fingerprint; got != "fp-1" {
		t.Errorf("fingerprint = %q, want fp-1", got)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.yaml")
	writeConfig(t, path, "fp-1")

	var mu sync.Mutex
	var oldFP, newFP string
	changed := make(chan struct{}, 1)

	w, err := NewWatcher(path, func(old, new *Config) {
		mu.Lock()
		oldFP = old.Backend.Fingerprint
		newFP = new.Backend.Fingerprint
		mu.Unlock()
		changed <- struct{}{}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Ensure the mtime moves even on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "fp-2")
	now := time.Now()
	os.Chtimes(path, now, now)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reported the change")
	}

	mu.Lock()
	defer mu.Unlock()
	if oldFP != "fp-1" || newFP != "fp-2" {
		t.Errorf("onChange saw %q -> %q", oldFP, newFP)
	}
	if got := w.Current().Backend.Fingerprint; got != "fp-2" {
		t.Errorf("Current fingerprint = %q, want fp-2", got)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.yaml")
	writeConfig(t, path, "fp-1")

	w, err := NewWatcher(path, func(_, _ *Config) {
		t.Error("onChange called for an invalid config")
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte("backend: {transport: morse}"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	now := time.Now()
	os.Chtimes(path, now, now)

	time.Sleep(100 * time.Millisecond)
	if got := w.Current().Backend.Fingerprint; got != "fp-1" {
		t.Errorf("fingerprint after invalid edit = %q, want fp-1", got)
	}
}
