package sculpt

import (
	"context"
	"sync"
	"testing"
)

// testPlatform embeds BasePlatform and overrides only what a test configures.
type testPlatform struct {
	*BasePlatform

	caps        map[Capability]Preference
	effects     SideEffectSet
	dataVersion int
	fixer       DataFixer
	worlds      []World
	factory     RelighterFactory
	pre         Processor
	post        Processor
	placement   func(extent Extent, mask *BlockTypeMask, region Region) Processor
	watchdog    Watchdog
	reload      func() error

	mu            sync.Mutex
	commandCalls  int
	lastFastMode  bool
	placementMask *BlockTypeMask
}

func newTestPlatform(name string, caps map[Capability]Preference) *testPlatform {
	return &testPlatform{
		BasePlatform: &BasePlatform{
			PlatformName:    name,
			PlatformVersion: "1.0",
			Scheduler:       NewTickScheduler(),
		},
		caps: caps,
	}
}

func (p *testPlatform) Capabilities() map[Capability]Preference { return p.caps }

func (p *testPlatform) SupportedSideEffects() SideEffectSet { return p.effects }

func (p *testPlatform) DataVersion() int { return p.dataVersion }

func (p *testPlatform) DataFixer() DataFixer { return p.fixer }

func (p *testPlatform) Worlds() []World { return p.worlds }

func (p *testPlatform) RelighterFactory() RelighterFactory { return p.factory }

func (p *testPlatform) Processor(fastMode bool) Processor {
	p.mu.Lock()
	p.lastFastMode = fastMode
	p.mu.Unlock()
	return p.pre
}

func (p *testPlatform) PostProcessor(fastMode bool) Processor { return p.post }

func (p *testPlatform) PlacementProcessor(extent Extent, mask *BlockTypeMask, region Region) Processor {
	p.mu.Lock()
	p.placementMask = mask
	p.mu.Unlock()
	if p.placement == nil {
		return nil
	}
	return p.placement(extent, mask, region)
}

func (p *testPlatform) Watchdog() Watchdog { return p.watchdog }

func (p *testPlatform) Reload() error {
	if p.reload == nil {
		return nil
	}
	return p.reload()
}

func (p *testPlatform) RegisterCommands(cm CommandManager) {
	p.mu.Lock()
	p.commandCalls++
	p.mu.Unlock()
}

func (p *testPlatform) commandRegistrations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commandCalls
}

// worldAccessPlatform is the usual pipeline fixture: everything supported,
// world access plus game hooks held with normal preference.
func worldAccessPlatform(name string) *testPlatform {
	p := newTestPlatform(name, map[Capability]Preference{
		CapWorldAccess: PreferenceNormal,
		CapGameHooks:   PreferenceNormal,
	})
	p.effects = AllSideEffects()
	return p
}

// recordingListener captures every event it is handed.
type recordingListener struct {
	mu           sync.Mutex
	registered   []EventPlatformRegistered
	unregistered []EventPlatformUnregistered
	capChanges   []EventCapabilityChanged
	committed    []EventEditCommitted
	aborted      []EventEditAborted
	relit        []EventRelightCompleted
}

func (l *recordingListener) HandlePlatformRegistered(e EventPlatformRegistered) {
	l.mu.Lock()
	l.registered = append(l.registered, e)
	l.mu.Unlock()
}

func (l *recordingListener) HandlePlatformUnregistered(e EventPlatformUnregistered) {
	l.mu.Lock()
	l.unregistered = append(l.unregistered, e)
	l.mu.Unlock()
}

func (l *recordingListener) HandleCapabilityChanged(e EventCapabilityChanged) {
	l.mu.Lock()
	l.capChanges = append(l.capChanges, e)
	l.mu.Unlock()
}

func (l *recordingListener) HandleEditCommitted(e EventEditCommitted) {
	l.mu.Lock()
	l.committed = append(l.committed, e)
	l.mu.Unlock()
}

func (l *recordingListener) HandleEditAborted(e EventEditAborted) {
	l.mu.Lock()
	l.aborted = append(l.aborted, e)
	l.mu.Unlock()
}

func (l *recordingListener) HandleRelightCompleted(e EventRelightCompleted) {
	l.mu.Lock()
	l.relit = append(l.relit, e)
	l.mu.Unlock()
}

func (l *recordingListener) committedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.committed)
}

func (l *recordingListener) abortedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.aborted)
}

func (l *recordingListener) relitCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.relit)
}

func (l *recordingListener) handovers(c Capability) []EventCapabilityChanged {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventCapabilityChanged
	for _, e := range l.capChanges {
		if e.Capability == c {
			out = append(out, e)
		}
	}
	return out
}

func TestPlatformIDDerivation(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Fabric", "fabric"},
		{"Paper 1.20", "paper__.__"},
		{"my-mod.core", "my-mod.core"},
		{"Über Loader", "_ber_loader"},
	}
	for _, c := range cases {
		p := newTestPlatform(c.name, nil)
		if got := PlatformID(p); got != c.want {
			t.Fatalf("PlatformID(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestBasePlatformDefaults(t *testing.T) {
	b := &BasePlatform{PlatformName: "base"}

	if b.Schedule(0, 0, func() {}) != InvalidTaskID {
		t.Fatalf("schedule without a scheduler must reject")
	}
	if b.CancelTask(1) {
		t.Fatalf("cancel without a scheduler must report false")
	}
	if b.Processor(false) != nil || b.PostProcessor(true) != nil {
		t.Fatalf("base platform declares no processors")
	}
	if b.PlacementProcessor(nil, nil, Region{}) != nil {
		t.Fatalf("base platform declares no placement fix-up")
	}
	if !b.SupportedSideEffects().IsEmpty() {
		t.Fatalf("base platform supports no side effects")
	}

	b.SetGameHooksEnabled(true)
	if !b.GameHooksEnabled() {
		t.Fatalf("hook toggle not recorded")
	}
	b.SetGameHooksEnabled(false)
	if b.GameHooksEnabled() {
		t.Fatalf("hook toggle not cleared")
	}
}

// staticRelighter lets tests hand Enqueue a canned outcome.
type staticRelighter struct {
	err   error
	calls func(ctx context.Context, region Region)
}

func (r *staticRelighter) Relight(ctx context.Context, region Region) error {
	if r.calls != nil {
		r.calls(ctx, region)
	}
	return r.err
}

type staticRelighterFactory struct {
	relighter Relighter
}

func (f *staticRelighterFactory) NewRelighter(world LightExtent) Relighter {
	return f.relighter
}
