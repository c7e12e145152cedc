package config

import (
	"fmt"
	"log"

	"github.com/fsnotify/fsnotify"
)

// WatchFunc is invoked with a freshly reloaded Config whenever configPath
// changes on disk.
type WatchFunc func(*Config)

// Watch reloads configPath on every write/create event and invokes fn with
// the result, logging (rather than failing) a bad reload so a transient
// editor save doesn't take the engine down. The returned function stops
// the watch.
func Watch(configPath string, logger *log.Logger, fn WatchFunc) (stop func() error, err error) {
	if logger == nil {
		logger = log.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := w.Add(configPath); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", configPath, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(configPath)
				if err != nil {
					logger.Printf("config reload failed, keeping previous config: %v", err)
					continue
				}
				fn(cfg)
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Printf("config watcher error: %v", werr)
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return w.Close()
	}, nil
}
