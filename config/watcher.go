package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher is implemented by anything that serves the live configuration
// and announces reloads.
type Watcher interface {
	GetCurrentConfig() *Config
	Subscribe() <-chan *Config
	Close() error
}

var _ Watcher = (*ConfigWatcher)(nil)

// ConfigWatcher reloads the configuration file when it changes on disk.
// A reload that fails to parse or validate is logged and the previous
// configuration stays in effect.
type ConfigWatcher struct {
	current    atomic.Pointer[Config]
	configPath string
	watcher    *fsnotify.Watcher
	logger     *zap.Logger

	mu          sync.Mutex
	subscribers []chan *Config
	done        chan struct{}
}

// NewConfigWatcher loads configPath and starts watching it.
func NewConfigWatcher(configPath string, logger *zap.Logger) (*ConfigWatcher, error) {
	initial, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load initial config: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors and ConfigMap mounts replace the file
	// with a rename, which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	cw := &ConfigWatcher{
		configPath: filepath.Clean(configPath),
		watcher:    watcher,
		logger:     logger,
		done:       make(chan struct{}),
	}
	cw.current.Store(initial)

	go cw.watch()
	return cw, nil
}

// Subscribe returns a channel that receives every successfully reloaded
// configuration. Slow subscribers miss intermediate versions.
func (cw *ConfigWatcher) Subscribe() <-chan *Config {
	ch := make(chan *Config, 1)
	cw.mu.Lock()
	cw.subscribers = append(cw.subscribers, ch)
	cw.mu.Unlock()
	return ch
}

// GetCurrentConfig returns the configuration currently in effect.
func (cw *ConfigWatcher) GetCurrentConfig() *Config {
	return cw.current.Load()
}

func (cw *ConfigWatcher) watch() {
	defer close(cw.done)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.configPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				cw.reload()
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

func (cw *ConfigWatcher) reload() {
	next, err := LoadFile(cw.configPath)
	if err != nil {
		cw.logger.Error("config reload rejected, keeping previous configuration",
			zap.String("path", cw.configPath),
			zap.Error(err),
		)
		return
	}

	cw.current.Store(next)

	cw.mu.Lock()
	for _, sub := range cw.subscribers {
		// Drop a stale pending value so the subscriber sees the newest one.
		select {
		case <-sub:
		default:
		}
		select {
		case sub <- next:
		default:
		}
	}
	cw.mu.Unlock()

	cw.logger.Info("configuration reloaded", zap.String("path", cw.configPath))
}

// Close stops watching. Subscriber channels are not closed.
func (cw *ConfigWatcher) Close() error {
	err := cw.watcher.Close()
	<-cw.done
	return err
}
