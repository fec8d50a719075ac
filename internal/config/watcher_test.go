package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitForReload(t *testing.T, counter *int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(counter) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("Expected reload to be triggered")
}

func TestWatchConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("initial: content"), 0644); err != nil {
		t.Fatalf("Failed to write initial config: %v", err)
	}

	var reloadCount int32
	reloadFn := func(path string) error {
		atomic.AddInt32(&reloadCount, 1)
		return nil
	}

	watcher, err := WatchConfigFile(configPath, reloadFn)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Close()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configPath, []byte("updated: content"), 0644); err != nil {
		t.Fatalf("Failed to update config: %v", err)
	}

	waitForReload(t, &reloadCount)
}

func TestWatchConfigFileAtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("initial: content"), 0644); err != nil {
		t.Fatalf("Failed to write initial config: %v", err)
	}

	var reloadCount int32
	reloadFn := func(path string) error {
		atomic.AddInt32(&reloadCount, 1)
		return nil
	}

	watcher, err := WatchConfigFile(configPath, reloadFn)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Close()

	time.Sleep(100 * time.Millisecond)

	// Editor-style atomic save: write a temp file, then rename it over the
	// watched path.
	tempPath := filepath.Join(tmpDir, "config.yaml.tmp")
	if err := os.WriteFile(tempPath, []byte("updated: content"), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	if err := os.Rename(tempPath, configPath); err != nil {
		t.Fatalf("Failed to rename config: %v", err)
	}

	waitForReload(t, &reloadCount)
}

func TestWatchConfigFileIgnoresOtherFiles(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("initial: content"), 0644); err != nil {
		t.Fatalf("Failed to write initial config: %v", err)
	}

	var reloadCount int32
	reloadFn := func(path string) error {
		atomic.AddInt32(&reloadCount, 1)
		return nil
	}

	watcher, err := WatchConfigFile(configPath, reloadFn)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Close()

	time.Sleep(100 * time.Millisecond)

	otherPath := filepath.Join(tmpDir, "other.txt")
	if err := os.WriteFile(otherPath, []byte("unrelated"), 0644); err != nil {
		t.Fatalf("Failed to write other file: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if count := atomic.LoadInt32(&reloadCount); count != 0 {
		t.Errorf("Expected no reload for unrelated file, got %d", count)
	}
}

func TestWatchConfigFileReloadErrorKeepsWatching(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("initial: content"), 0644); err != nil {
		t.Fatalf("Failed to write initial config: %v", err)
	}

	var reloadCount int32
	reloadFn := func(path string) error {
		atomic.AddInt32(&reloadCount, 1)
		return errors.New("reload failed")
	}

	watcher, err := WatchConfigFile(configPath, reloadFn)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Close()

	time.Sleep(100 * time.Millisecond)

	// Two consecutive writes: the failing first reload must not stop the
	// watcher from delivering the second.
	if err := os.WriteFile(configPath, []byte("first: update"), 0644); err != nil {
		t.Fatalf("Failed to update config: %v", err)
	}
	waitForReload(t, &reloadCount)

	before := atomic.LoadInt32(&reloadCount)
	if err := os.WriteFile(configPath, []byte("second: update"), 0644); err != nil {
		t.Fatalf("Failed to update config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&reloadCount) > before {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("Expected watcher to survive a failed reload")
}

func TestWatchConfigFileMissingDirectory(t *testing.T) {
	_, err := WatchConfigFile("/nonexistent-dir-xyz/config.yaml", func(string) error { return nil })
	if err == nil {
		t.Error("Expected error for missing directory")
	}
}
