package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/pkg/logger"
)

// Watcher reloads the config file whenever it is written and emits the
// freshly loaded, validated Config on Updates.
type Watcher struct {
	path    string
	flags   *pflag.FlagSet
	watcher *fsnotify.Watcher
	updates chan *Config
	logger  *logger.Logger

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher watches the directory containing path. Watching the directory
// rather than the file survives editors that replace the file on save.
func NewWatcher(path string, flags *pflag.FlagSet, logger *logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:    path,
		flags:   flags,
		watcher: fsw,
		updates: make(chan *Config, 1),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins processing file system events.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.watchLoop()
}

// Updates delivers reloaded configurations. Only the newest unread
// configuration is kept.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Stop stops watching and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// watchLoop handles file system events
func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Check if it's our config file
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path, w.flags)
	if err != nil {
		w.logger.Error("failed to reload config", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error("reloaded config is invalid, keeping previous", zap.String("path", w.path), zap.Error(err))
		return
	}

	// Replace any unread update with the newer one.
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- cfg:
		w.logger.Info("config reloaded", zap.String("path", w.path))
	default:
	}
}
