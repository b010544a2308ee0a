package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/engine"
)

// DefaultDebounce is how long the reloader waits after the last change.
const DefaultDebounce = 500 * time.Millisecond

// reloadActor is recorded in the audit trail for file-triggered reloads.
const reloadActor = "watcher"

// RuleReloader is the part of the engine the watcher drives.
type RuleReloader interface {
	ReloadRules(ctx context.Context, actor string) (*engine.ReloadResult, error)
}

// Reloader watches the rule file and reloads the active set when it
// changes. The parent directory is watched so atomic replaces are seen.
type Reloader struct {
	watcher  *fsnotify.Watcher
	target   RuleReloader
	path     string
	debounce time.Duration
	logger   *zap.Logger
}

// NewReloader creates a watcher for path.
func NewReloader(target RuleReloader, path string, debounce time.Duration, logger *zap.Logger) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("rule file path is empty")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	return &Reloader{
		watcher:  watcher,
		target:   target,
		path:     abs,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Run reloads on changes to the rule file. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.debounce, func() { r.reload(ctx) })

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := r.target.ReloadRules(ctx, reloadActor)
	if err != nil {
		r.logger.Error("hot-reload failed", zap.String("path", r.path), zap.Error(err))
		return
	}
	if res.Changed {
		r.logger.Info("hot-reload: rules reloaded",
			zap.String("path", r.path),
			zap.Int("rules", res.Count),
			zap.String("ruleset_hash", res.Hash),
		)
	}
}
