package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Markers are the files left behind by compute configuration.
type Markers struct {
	Initial  string // written once the first compute configuration completed
	Volatile string // written on every boot once configuration completed, on tmpfs
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (m Markers) InitialConfigComplete() bool {
	return exists(m.Initial)
}

func (m Markers) VolatileConfigComplete() bool {
	return exists(m.Volatile)
}

// WaitForVolatile blocks until the volatile marker exists when the host is
// between a reboot and the end of its compute configuration. It returns
// immediately on hosts that were never configured or are already done.
func (m Markers) WaitForVolatile(ctx context.Context) error {
	if !m.InitialConfigComplete() || m.VolatileConfigComplete() {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(m.Volatile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	// The marker may have shown up before the watch was in place.
	if m.VolatileConfigComplete() {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if filepath.Clean(event.Name) == target && (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			return fmt.Errorf("watching %s: %w", target, err)
		}
	}
}
