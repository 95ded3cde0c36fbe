package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Live holds the current config and swaps it when the file changes.
type Live struct {
	path string
	cur  atomic.Pointer[Config]
	log  *zap.Logger
}

// NewLive loads path and returns a holder for it.
func NewLive(path string, log *zap.Logger) (*Live, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	l := &Live{path: path, log: log}
	l.cur.Store(cfg)
	return l, nil
}

// Get returns the current config.
func (l *Live) Get() *Config { return l.cur.Load() }

// Reload re-reads the file. On error the previous config stays active.
// Unlike Load, a missing file is an error: a config moved away while
// running does not fall back to the defaults.
func (l *Live) Reload() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	l.cur.Store(cfg)
	return cfg, nil
}

// Watch reloads the config whenever its file is written or replaced and
// calls onChange with the new value. It blocks until ctx is done.
func (l *Live) Watch(ctx context.Context, onChange func(*Config)) error {
	if l.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			cfg, err := l.Reload()
			if err != nil {
				l.log.Warn("config reload failed", zap.String("path", l.path), zap.Error(err))
				continue
			}
			l.log.Info("config reloaded", zap.String("path", l.path), zap.Int("facets", len(cfg.Facets)))
			if onChange != nil {
				onChange(cfg)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("config watcher error", zap.Error(err))
		}
	}
}
