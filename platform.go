package sculpt

import (
	"context"
	"strings"
	"sync/atomic"
)

// Platform is one runtime binding: a named, versioned implementation of the
// full contract that owns its registries, resource loader, data fixer,
// relighter factory, and tick scheduler. Multiple platforms may be registered
// concurrently (hot reload, multi-loader hosts); the Manager arbitrates which
// one is authoritative per capability.
//
// Optional extension points return nil to declare absence. Callers treat nil
// as "skip", never as an error.
type Platform interface {
	// Name returns the platform's display name. The stable platform id is
	// derived from it, see PlatformID.
	Name() string

	// Version returns the platform implementation version.
	Version() string

	// DataVersion returns the data version of the platform's world format.
	// Committed block states recorded at an older version are routed
	// through the DataFixer.
	DataVersion() int

	// Capabilities returns the preference the platform declares per
	// capability. Capabilities absent from the map count as PreferenceNone.
	Capabilities() map[Capability]Preference

	// SupportedSideEffects returns the side effects the platform can honor.
	SupportedSideEffects() SideEffectSet

	// Processor returns the platform's pre-commit chain link, or nil when
	// the platform needs none. fastMode selects the reduced variant used
	// for bulk edits.
	Processor(fastMode bool) Processor

	// PostProcessor returns the platform's post-commit chain link, or nil.
	PostProcessor(fastMode bool) Processor

	// PlacementProcessor returns a post-commit processor that corrects
	// placed block states, scoped to the extent, restricted to the mask's
	// block types, and bounded by the region. Returns nil when no fix-up is
	// required for this platform/version combination.
	PlacementProcessor(extent Extent, mask *BlockTypeMask, region Region) Processor

	// RelighterFactory returns the factory producing relighters for this
	// platform, or nil when the platform cannot relight.
	RelighterFactory() RelighterFactory

	// DataFixer returns the versioned data upgrader, or nil when stored
	// data never needs upgrading.
	DataFixer() DataFixer

	// ResourceLoader returns the platform's resource loader, or nil.
	ResourceLoader() ResourceLoader

	// Registries returns the platform's read-only lookups, or nil.
	Registries() Registries

	// Schedule enqueues task on the platform's tick scheduler after delay
	// ticks, repeating every period ticks; period 0 means one-shot. Returns
	// InvalidTaskID when the scheduler rejects the task.
	Schedule(delay, period int64, task func()) TaskID

	// CancelTask cancels one scheduled task. Reports whether the task was
	// still pending.
	CancelTask(id TaskID) bool

	// CancelAllTasks cancels every task outstanding on the platform's
	// scheduler. The manager calls this when the platform unregisters.
	CancelAllTasks()

	// TickCount returns the host's current game tick.
	TickCount() int64

	// WorldBounds returns the inclusive vertical build limits of the
	// platform's world format.
	WorldBounds() (minY, maxY int)

	// Worlds returns the worlds the platform currently serves.
	Worlds() []World

	// Reload reloads the platform's own configuration.
	Reload() error

	// RegisterCommands hands the external command layer to the platform so
	// it can populate its commands. The core never parses commands.
	RegisterCommands(cm CommandManager)

	// SetGameHooksEnabled toggles the platform's tick and event hooks. The
	// manager keeps hooks enabled on exactly one platform at a time: the
	// one active for CapGameHooks.
	SetGameHooksEnabled(enabled bool)

	// Watchdog returns the host's stall detector, or nil. The pipeline
	// pokes it during long commits.
	Watchdog() Watchdog
}

// DataFixer upgrades data recorded at an older data version to the
// platform's current one. The core invokes it only at commit time, and only
// for edits whose source data version predates the platform's.
type DataFixer interface {
	// UpgradeBlockState upgrades a block state recorded at fromVersion.
	UpgradeBlockState(state BlockState, fromVersion int) BlockState
}

// ResourceLoader loads named platform resources. The core never interprets
// the payload.
type ResourceLoader interface {
	Load(ctx context.Context, name string) ([]byte, error)
}

// Registries bundles the platform's read-only lookups.
type Registries interface {
	// Blocks returns the block registry.
	Blocks() BlockRegistry

	// Entities returns the entity registry.
	Entities() EntityRegistry
}

// BlockRegistry answers read-only block queries. Light levels range 0-15.
type BlockRegistry interface {
	// Opacity returns how much light the state absorbs per block.
	Opacity(state BlockState) uint8

	// Emission returns the light level the state emits.
	Emission(state BlockState) uint8
}

// EntityRegistry answers read-only entity queries.
type EntityRegistry interface {
	// IsValidEntity reports whether the named entity type exists on the
	// platform.
	IsValidEntity(name string) bool
}

// CommandManager is the external command layer. The core only forwards it to
// the platform holding CapUserCommands through RegisterCommands.
type CommandManager interface {
	// RegisterCommand registers one named command.
	RegisterCommand(name string, run func(ctx context.Context, args []string) error)
}

// Watchdog is the host's stall detector. Tick signals that the pipeline is
// alive during a long-running commit.
type Watchdog interface {
	Tick()
}

// PlatformID derives the stable identity key for a platform: the display
// name lower-cased and restricted to [a-z_.-], with every other rune mapped
// to '_'. Ids may collide across platforms; the manager's id index keeps the
// last registration.
func PlatformID(p Platform) string {
	return deriveID(p.Name())
}

func deriveID(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// BasePlatform is a neutral Platform for embedding. It declares no
// capabilities, supports no side effects, returns nil for every optional
// hook, and schedules onto the TickScheduler it is given. Embedders override
// only the methods their platform actually implements.
type BasePlatform struct {
	// PlatformName is reported by Name.
	PlatformName string

	// PlatformVersion is reported by Version.
	PlatformVersion string

	// Scheduler backs Schedule, CancelTask and CancelAllTasks. A nil
	// scheduler rejects every task with InvalidTaskID.
	Scheduler *TickScheduler

	hooks atomic.Bool
}

var _ Platform = (*BasePlatform)(nil)

// Name returns the configured display name.
func (b *BasePlatform) Name() string { return b.PlatformName }

// Version returns the configured version.
func (b *BasePlatform) Version() string { return b.PlatformVersion }

// DataVersion returns 0: stored data is never older than the platform.
func (b *BasePlatform) DataVersion() int { return 0 }

// Capabilities declares nothing.
func (b *BasePlatform) Capabilities() map[Capability]Preference { return nil }

// SupportedSideEffects returns the empty set.
func (b *BasePlatform) SupportedSideEffects() SideEffectSet { return 0 }

// Processor returns nil.
func (b *BasePlatform) Processor(fastMode bool) Processor { return nil }

// PostProcessor returns nil.
func (b *BasePlatform) PostProcessor(fastMode bool) Processor { return nil }

// PlacementProcessor returns nil: no fix-up required.
func (b *BasePlatform) PlacementProcessor(extent Extent, mask *BlockTypeMask, region Region) Processor {
	return nil
}

// RelighterFactory returns nil: the platform cannot relight.
func (b *BasePlatform) RelighterFactory() RelighterFactory { return nil }

// DataFixer returns nil: no upgrade needed.
func (b *BasePlatform) DataFixer() DataFixer { return nil }

// ResourceLoader returns nil.
func (b *BasePlatform) ResourceLoader() ResourceLoader { return nil }

// Registries returns nil.
func (b *BasePlatform) Registries() Registries { return nil }

// Schedule delegates to the embedded scheduler and rejects with
// InvalidTaskID when none is configured.
func (b *BasePlatform) Schedule(delay, period int64, task func()) TaskID {
	if b.Scheduler == nil {
		return InvalidTaskID
	}
	return b.Scheduler.Schedule(delay, period, task)
}

// CancelTask delegates to the embedded scheduler.
func (b *BasePlatform) CancelTask(id TaskID) bool {
	if b.Scheduler == nil {
		return false
	}
	return b.Scheduler.Cancel(id)
}

// CancelAllTasks delegates to the embedded scheduler.
func (b *BasePlatform) CancelAllTasks() {
	if b.Scheduler != nil {
		b.Scheduler.CancelAll()
	}
}

// TickCount returns the embedded scheduler's tick, or 0 without one.
func (b *BasePlatform) TickCount() int64 {
	if b.Scheduler == nil {
		return 0
	}
	return b.Scheduler.TickCount()
}

// WorldBounds returns the historical 0..255 build limits.
func (b *BasePlatform) WorldBounds() (minY, maxY int) { return 0, 255 }

// Worlds returns nil.
func (b *BasePlatform) Worlds() []World { return nil }

// Reload does nothing.
func (b *BasePlatform) Reload() error { return nil }

// RegisterCommands does nothing.
func (b *BasePlatform) RegisterCommands(cm CommandManager) {}

// SetGameHooksEnabled records the toggle; GameHooksEnabled reads it back.
func (b *BasePlatform) SetGameHooksEnabled(enabled bool) {
	b.hooks.Store(enabled)
}

// GameHooksEnabled reports whether game hooks are currently enabled.
func (b *BasePlatform) GameHooksEnabled() bool {
	return b.hooks.Load()
}

// Watchdog returns nil.
func (b *BasePlatform) Watchdog() Watchdog { return nil }
