package server

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stegverse/stegagents/internal/registry"
	"github.com/stegverse/stegagents/pkg/clog"
)

// DebounceInterval lets bursts of events from one save settle before the
// registry is re-read.
const DebounceInterval = 200 * time.Millisecond

// RegistryWatcher re-validates the registry whenever its file changes and
// reports the outcome. Invocations always read the registry themselves; the
// watcher only surfaces broken edits early.
type RegistryWatcher struct {
	path     string
	debounce time.Duration
	onReload func(*registry.Registry, error)
	lastHash [sha256.Size]byte
}

func NewRegistryWatcher(path string, onReload func(*registry.Registry, error)) *RegistryWatcher {
	if onReload == nil {
		onReload = LogReload
	}
	return &RegistryWatcher{
		path:     path,
		debounce: DebounceInterval,
		onReload: onReload,
	}
}

// LogReload logs the result of re-validating the registry.
func LogReload(reg *registry.Registry, err error) {
	if err != nil {
		slog.Error("registry is invalid", clog.ErrorAttributeKey, err.Error())
		return
	}
	slog.Info("registry reloaded", "source", reg.Source, "agents", len(reg.Agents))
}

// Run watches until ctx is done.
func (w *RegistryWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Editors and deploy tools replace files by rename, so watch the directory.
	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	if h, err := hashFile(w.path); err == nil {
		w.lastHash = h
	}
	slog.InfoContext(ctx, "watching registry", "path", w.path)

	reload := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.check()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "fsnotify error", clog.ErrorAttributeKey, err.Error())
		}
	}
}

func (w *RegistryWatcher) check() {
	h, err := hashFile(w.path)
	if err == nil && h == w.lastHash {
		return
	}
	w.lastHash = h
	w.onReload(registry.Load(w.path))
}

func hashFile(path string) ([sha256.Size]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
