package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeProjectConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".loreleaf.yaml"), []byte(content), 0o644))
}

func startWatcher(t *testing.T, dir string, reloaded chan *Config) *Watcher {
	t.Helper()

	w, err := NewWatcher(dir, func(cfg *Config) { reloaded <- cfg }, discardLogger())
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { _ = w.Stop() })
	go func() { _ = w.Start(ctx) }()

	// Let the watch registration settle before mutating files.
	time.Sleep(20 * time.Millisecond)
	return w
}

func TestWatcher_ReloadsOnConfigWrite(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	writeProjectConfig(t, tmpDir, "fusion:\n  mode: fixed\n  alpha: 0.4\n")

	reloaded := make(chan *Config, 4)
	startWatcher(t, tmpDir, reloaded)

	writeProjectConfig(t, tmpDir, "fusion:\n  mode: fixed\n  alpha: 0.8\n")

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 0.8, cfg.Fusion.Alpha)
		assert.Equal(t, "fixed", cfg.Fusion.Mode)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after config write")
	}
}

func TestWatcher_InvalidEditKeepsPreviousValues(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	writeProjectConfig(t, tmpDir, "fusion:\n  mode: fixed\n  alpha: 0.4\n")

	reloaded := make(chan *Config, 4)
	startWatcher(t, tmpDir, reloaded)

	// Invalid edit: validation fails, no reload is delivered.
	writeProjectConfig(t, tmpDir, "fusion:\n  mode: fixed\n  alpha: 2.0\n")
	time.Sleep(300 * time.Millisecond)
	select {
	case cfg := <-reloaded:
		t.Fatalf("unexpected reload with alpha %f", cfg.Fusion.Alpha)
	default:
	}

	// A following valid edit is picked up normally.
	writeProjectConfig(t, tmpDir, "fusion:\n  mode: fixed\n  alpha: 0.6\n")
	select {
	case cfg := <-reloaded:
		assert.Equal(t, 0.6, cfg.Fusion.Alpha)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after valid config write")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	writeProjectConfig(t, tmpDir, "fusion:\n  mode: fixed\n  alpha: 0.4\n")

	reloaded := make(chan *Config, 4)
	startWatcher(t, tmpDir, reloaded)

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "notes.md"), []byte("scratch"), 0o644))
	time.Sleep(300 * time.Millisecond)

	select {
	case <-reloaded:
		t.Fatal("unrelated file triggered a reload")
	default:
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	w, err := NewWatcher(tmpDir, func(*Config) {}, discardLogger())
	require.NoError(t, err)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
