package sculpt

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Manager is the central coordinator: it arbitrates platform capabilities,
// owns the processor chain, the edit pipeline, the relight engine and the
// history journal, and exposes the scheduler facade. Multiple Manager
// instances can coexist in the same process for hosting isolated worlds.
type Manager struct {
	// registry arbitrates capabilities across registered platforms
	registry *capabilityRegistry

	// chain holds the global processors per phase
	chain *processorChain

	// engine runs relight jobs
	engine *relightEngine

	// serializer keeps overlapping edits from interleaving
	serializer *regionSerializer

	// postWorker runs deferred post-commit jobs in order
	postWorker *postWorker

	// journal persists change sets for undo
	journal HistoryJournal

	metrics   *Metrics
	listeners listenerSet

	// cmd is the external command layer forwarded to the platform active
	// for CapUserCommands, or nil
	cmd          CommandManager
	cmdMu        sync.Mutex
	cmdForwarded map[Platform]struct{}

	// facade task index: facade ids map to the issuing platform and its
	// own task id
	taskMu   sync.Mutex
	nextTask int64
	tasks    map[TaskID]facadeTask

	deferPost      bool
	watchdogBlocks int

	closed atomic.Bool
}

type facadeTask struct {
	platform Platform
	id       TaskID
}

// newManager wires a manager from its parts. Exposed through Builder.
func newManager(cfg *Config, metrics *Metrics, journal HistoryJournal, cmd CommandManager) *Manager {
	if cfg == nil {
		cfg = &Config{}
	}
	if journal == nil {
		journal = NewMemoryJournal()
	}
	return &Manager{
		registry:       &capabilityRegistry{},
		chain:          newProcessorChain(),
		engine:         newRelightEngine(cfg.Relight.GetWorkers(), metrics),
		serializer:     newRegionSerializer(),
		postWorker:     newPostWorker(),
		journal:        journal,
		metrics:        metrics,
		cmd:            cmd,
		cmdForwarded:   make(map[Platform]struct{}),
		nextTask:       1,
		tasks:          make(map[TaskID]facadeTask),
		deferPost:      cfg.Pipeline.DeferPostCommit,
		watchdogBlocks: cfg.Pipeline.GetWatchdogBlocks(),
	}
}

// Register adds the platform and re-arbitrates every capability. Capability
// hand-overs notify subscribed listeners; gaining CapGameHooks switches the
// platform's hooks on and the displaced platform's off.
func (m *Manager) Register(p Platform) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if p == nil {
		return fmt.Errorf("sculpt: register: nil platform")
	}

	changes := m.registry.register(p)
	slog.Info("sculpt: platform registered",
		"platform", PlatformID(p), "version", p.Version(), "data_version", p.DataVersion())

	m.listeners.emit(func(l Listener) {
		l.HandlePlatformRegistered(EventPlatformRegistered{Platform: p})
	})
	m.applyCapabilityChanges(changes)
	return nil
}

// Unregister removes the platform, cancels its outstanding scheduled tasks
// as a batch and re-arbitrates its capabilities. Reports whether the
// platform was registered.
func (m *Manager) Unregister(p Platform) bool {
	if p == nil {
		return false
	}
	removed, changes := m.registry.unregister(p)
	if !removed {
		return false
	}

	p.CancelAllTasks()
	m.purgeTasks(p)
	m.cmdMu.Lock()
	delete(m.cmdForwarded, p)
	m.cmdMu.Unlock()

	slog.Info("sculpt: platform unregistered", "platform", PlatformID(p))
	m.listeners.emit(func(l Listener) {
		l.HandlePlatformUnregistered(EventPlatformUnregistered{Platform: p})
	})
	m.applyCapabilityChanges(changes)
	return true
}

// applyCapabilityChanges reacts to arbitration hand-overs: game hooks follow
// CapGameHooks, command registration follows CapUserCommands, and every
// change notifies the listeners.
func (m *Manager) applyCapabilityChanges(changes []EventCapabilityChanged) {
	for _, change := range changes {
		switch change.Capability {
		case CapGameHooks:
			if change.Previous != nil {
				change.Previous.SetGameHooksEnabled(false)
			}
			if change.Current != nil {
				change.Current.SetGameHooksEnabled(true)
			}
		case CapUserCommands:
			if change.Current != nil {
				m.forwardCommands(change.Current)
			}
		}
		slog.Debug("sculpt: capability moved",
			"capability", change.Capability,
			"from", platformIDOrNone(change.Previous),
			"to", platformIDOrNone(change.Current))
		ev := change
		m.listeners.emit(func(l Listener) {
			l.HandleCapabilityChanged(ev)
		})
	}
}

// forwardCommands hands the command manager to the platform, once per
// platform.
func (m *Manager) forwardCommands(p Platform) {
	if m.cmd == nil {
		return
	}
	m.cmdMu.Lock()
	if _, done := m.cmdForwarded[p]; done {
		m.cmdMu.Unlock()
		return
	}
	m.cmdForwarded[p] = struct{}{}
	m.cmdMu.Unlock()
	p.RegisterCommands(m.cmd)
}

func platformIDOrNone(p Platform) string {
	if p == nil {
		return "none"
	}
	return PlatformID(p)
}

// Resolve returns the platform currently holding the capability, or
// ErrNoProvider when no eligible platform is registered.
func (m *Manager) Resolve(c Capability) (Platform, error) {
	return m.registry.resolve(c)
}

// Platforms returns the registered platforms in registration order.
func (m *Manager) Platforms() []Platform {
	return m.registry.platforms()
}

// FindPlatform returns the registered platform with the derived id. When
// ids collide the latest registration wins.
func (m *Manager) FindPlatform(id string) (Platform, bool) {
	return m.registry.find(id)
}

// AddProcessor registers a global processor; its declared phase decides
// where in the chain it runs. Platform processors always run before global
// ones within a phase.
func (m *Manager) AddProcessor(p Processor) {
	m.chain.add(p)
}

// Subscribe adds an event listener and returns the function that removes it.
func (m *Manager) Subscribe(l Listener) func() {
	return m.listeners.add(l)
}

// Schedule enqueues task on the active game-hooks platform's scheduler after
// delay ticks, repeating every period ticks; period 0 means one-shot. It
// returns InvalidTaskID when no platform holds CapGameHooks, the manager is
// closed, or the platform rejects the task.
func (m *Manager) Schedule(delay, period int64, task func()) TaskID {
	if m.closed.Load() || task == nil {
		return InvalidTaskID
	}
	p, err := m.registry.resolve(CapGameHooks)
	if err != nil {
		slog.Debug("sculpt: schedule rejected, no game hooks platform")
		return InvalidTaskID
	}

	m.taskMu.Lock()
	fid := TaskID(m.nextTask)
	m.nextTask++
	m.tasks[fid] = facadeTask{platform: p, id: InvalidTaskID}
	m.taskMu.Unlock()

	run := task
	if period <= 0 {
		run = func() {
			defer m.dropTask(fid)
			task()
		}
	}
	pid := p.Schedule(delay, period, run)
	if pid == InvalidTaskID {
		m.dropTask(fid)
		return InvalidTaskID
	}

	m.taskMu.Lock()
	if entry, ok := m.tasks[fid]; ok {
		entry.id = pid
		m.tasks[fid] = entry
	}
	m.taskMu.Unlock()
	return fid
}

// Cancel cancels a task issued through Schedule. Reports whether the task
// was still pending.
func (m *Manager) Cancel(id TaskID) bool {
	m.taskMu.Lock()
	entry, ok := m.tasks[id]
	delete(m.tasks, id)
	m.taskMu.Unlock()
	if !ok || entry.id == InvalidTaskID {
		return false
	}
	return entry.platform.CancelTask(entry.id)
}

func (m *Manager) dropTask(id TaskID) {
	m.taskMu.Lock()
	delete(m.tasks, id)
	m.taskMu.Unlock()
}

// purgeTasks drops the facade entries of a platform whose tasks were
// batch-cancelled.
func (m *Manager) purgeTasks(p Platform) {
	m.taskMu.Lock()
	for id, entry := range m.tasks {
		if entry.platform == p {
			delete(m.tasks, id)
		}
	}
	m.taskMu.Unlock()
}

// PendingTasks returns the number of facade tasks not yet finished or
// cancelled.
func (m *Manager) PendingTasks() int {
	m.taskMu.Lock()
	defer m.taskMu.Unlock()
	return len(m.tasks)
}

// TickCount returns the active game-hooks platform's current tick, or 0.
func (m *Manager) TickCount() int64 {
	p, err := m.registry.resolve(CapGameHooks)
	if err != nil {
		return 0
	}
	return p.TickCount()
}

// Worlds returns the worlds of the active world-access platform.
func (m *Manager) Worlds() []World {
	p, err := m.registry.resolve(CapWorldAccess)
	if err != nil {
		return nil
	}
	return p.Worlds()
}

// MatchWorld finds a world by case-insensitive name among the active
// world-access platform's worlds.
func (m *Manager) MatchWorld(name string) (World, bool) {
	for _, w := range m.Worlds() {
		if strings.EqualFold(w.Name(), name) {
			return w, true
		}
	}
	return nil, false
}

// Reload delegates to the active configuration platform.
func (m *Manager) Reload() error {
	p, err := m.registry.resolve(CapConfiguration)
	if err != nil {
		return fmt.Errorf("sculpt: reload: %w", err)
	}
	if err := p.Reload(); err != nil {
		return fmt.Errorf("sculpt: reload %s: %w", PlatformID(p), err)
	}
	return nil
}

// Journal returns the manager's history journal.
func (m *Manager) Journal() HistoryJournal {
	return m.journal
}

// Shutdown stops the manager: new edits are rejected, deferred post-commit
// work drains, facade tasks are cancelled, relight jobs are cancelled and
// the journal is closed. Idempotent.
func (m *Manager) Shutdown() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	m.taskMu.Lock()
	entries := make([]facadeTask, 0, len(m.tasks))
	for _, entry := range m.tasks {
		entries = append(entries, entry)
	}
	m.tasks = make(map[TaskID]facadeTask)
	m.taskMu.Unlock()
	for _, entry := range entries {
		if entry.id != InvalidTaskID {
			entry.platform.CancelTask(entry.id)
		}
	}

	m.postWorker.close()
	m.engine.Close()
	if err := m.journal.Close(); err != nil {
		slog.Error("sculpt: journal close failed", "error", err)
	}
	slog.Info("sculpt: manager stopped")
}
