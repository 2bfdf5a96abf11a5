package sculpt

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Builder configures a Manager before initialization.
// Use NewBuilder() to create a builder and chain configuration methods.
type Builder struct {
	cfg        *Config
	configPath string
	registerer prometheus.Registerer
	journal    HistoryJournal
	cmd        CommandManager
	processors []Processor
	listeners  []Listener
	platforms  []Platform
}

// NewBuilder creates a new builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Config sets the configuration. Overrides ConfigFile.
func (b *Builder) Config(cfg *Config) *Builder {
	b.cfg = cfg
	return b
}

// ConfigFile loads the configuration from a YAML file at Init.
func (b *Builder) ConfigFile(path string) *Builder {
	b.configPath = path
	return b
}

// Metrics registers the core's instruments with reg at Init.
func (b *Builder) Metrics(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// Journal sets the history journal. Without one, Init opens a Badger
// journal when the config enables history and falls back to an in-memory
// journal otherwise.
func (b *Builder) Journal(j HistoryJournal) *Builder {
	b.journal = j
	return b
}

// Commands sets the external command layer forwarded to the platform active
// for CapUserCommands.
func (b *Builder) Commands(cm CommandManager) *Builder {
	b.cmd = cm
	return b
}

// Processor adds a global processor.
func (b *Builder) Processor(p Processor) *Builder {
	b.processors = append(b.processors, p)
	return b
}

// Listener subscribes an event listener.
func (b *Builder) Listener(l Listener) *Builder {
	b.listeners = append(b.listeners, l)
	return b
}

// Platform registers a platform at Init.
func (b *Builder) Platform(p Platform) *Builder {
	b.platforms = append(b.platforms, p)
	return b
}

// Init assembles the Manager with the configured settings. The returned
// Manager should be stored and shut down with Shutdown when the host stops.
// Multiple Manager instances can coexist for hosting isolated worlds.
func (b *Builder) Init() (*Manager, error) {
	cfg := b.cfg
	if cfg == nil {
		loaded, err := LoadConfig(b.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = &Config{}
	}

	journal := b.journal
	if journal == nil && cfg.History.Enabled {
		opened, err := OpenBadgerJournal(cfg.History.GetPath())
		if err != nil {
			return nil, err
		}
		journal = opened
	}

	m := newManager(cfg, NewMetrics(b.registerer), journal, b.cmd)
	for _, p := range b.processors {
		m.AddProcessor(p)
	}
	for _, l := range b.listeners {
		m.Subscribe(l)
	}
	for _, p := range b.platforms {
		if err := m.Register(p); err != nil {
			m.Shutdown()
			return nil, fmt.Errorf("sculpt: init: %w", err)
		}
	}
	return m, nil
}
