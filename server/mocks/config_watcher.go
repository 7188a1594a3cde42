package mocks

import (
	"sync"
	"sync/atomic"

	"github.com/coral-p2025/coral/config"
)

// MockConfigWatcher is a config.Watcher driven by UpdateConfig instead of
// file changes.
type MockConfigWatcher struct {
	current atomic.Pointer[config.Config]

	mu          sync.Mutex
	subscribers []chan *config.Config
}

var _ config.Watcher = (*MockConfigWatcher)(nil)

// NewMockConfigWatcher returns a watcher serving cfg.
func NewMockConfigWatcher(cfg *config.Config) *MockConfigWatcher {
	m := &MockConfigWatcher{}
	m.current.Store(cfg)
	return m
}

// GetCurrentConfig implements config.Watcher.
func (m *MockConfigWatcher) GetCurrentConfig() *config.Config {
	return m.current.Load()
}

// Subscribe implements config.Watcher.
func (m *MockConfigWatcher) Subscribe() <-chan *config.Config {
	ch := make(chan *config.Config, 1)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// Close implements config.Watcher. Subscriber channels are closed.
func (m *MockConfigWatcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	return nil
}

// UpdateConfig simulates a reload of cfg.
func (m *MockConfigWatcher) UpdateConfig(cfg *config.Config) {
	m.current.Store(cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- cfg:
		default:
		}
	}
}
