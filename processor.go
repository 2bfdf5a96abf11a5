package sculpt

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Processor is one link of the batch processor chain: a transform over a
// pending edit. Within a phase, the active platform's links run first, then
// globally registered links in registration order.
//
// A processor may shrink the edit or veto staged changes, but can never grow
// it: the edit API rejects staging outside the requested region, and the
// extent handed to Process rejects writes outside it with ErrOutOfRegion.
type Processor interface {
	// Name identifies the processor in faults and logs.
	Name() string

	// Phase returns the phase the processor runs in.
	Phase() Phase

	// Process transforms the pending edit. Reads on world pass through to
	// the backing store; writes are bounded to the edit's requested region.
	// Pre-commit links never observe partially committed state; post-commit
	// links never observe pre-commit state. A non-nil error aborts and
	// rolls back the whole edit.
	Process(ctx context.Context, edit *Edit, world Extent) error
}

// processorFunc adapts a function to the Processor interface.
type processorFunc struct {
	name  string
	phase Phase
	fn    func(ctx context.Context, edit *Edit, world Extent) error
}

// NewProcessor wraps fn as a named Processor running in the given phase.
func NewProcessor(name string, phase Phase, fn func(ctx context.Context, edit *Edit, world Extent) error) Processor {
	return &processorFunc{name: name, phase: phase, fn: fn}
}

// Name returns the processor name.
func (p *processorFunc) Name() string { return p.name }

// Phase returns the declared phase.
func (p *processorFunc) Phase() Phase { return p.phase }

// Process invokes the wrapped function.
func (p *processorFunc) Process(ctx context.Context, edit *Edit, world Extent) error {
	return p.fn(ctx, edit, world)
}

// processorChain holds the globally registered processors per phase.
//
// Concurrency:
// add and forPhase are safe to call while edits are in flight; a running
// edit keeps the link slice it started with.
type processorChain struct {
	mu    sync.RWMutex
	links [phaseCount][]Processor
}

func newProcessorChain() *processorChain {
	return &processorChain{}
}

// add appends a processor to its declared phase in registration order.
func (c *processorChain) add(p Processor) {
	if p == nil {
		return
	}
	phase := p.Phase()
	if phase < 0 || phase >= phaseCount {
		slog.Warn("sculpt: processor declares unknown phase, ignored",
			"processor", p.Name(),
			"phase", int(phase),
		)
		return
	}
	c.mu.Lock()
	c.links[phase] = append(c.links[phase], p)
	c.mu.Unlock()
}

// forPhase returns the platform links followed by the global links of a
// phase. Nil platform links are skipped: absent hooks mean "no-op".
func (c *processorChain) forPhase(phase Phase, platformLinks ...Processor) []Processor {
	c.mu.RLock()
	global := c.links[phase]
	out := make([]Processor, 0, len(platformLinks)+len(global))
	for _, p := range platformLinks {
		if p != nil {
			out = append(out, p)
		}
	}
	out = append(out, global...)
	c.mu.RUnlock()
	return out
}

// runProcessors executes the links in order. The first failure wins and is
// wrapped as a ProcessorFault; the remaining links do not run.
func runProcessors(ctx context.Context, phase Phase, links []Processor, edit *Edit, world Extent) error {
	for _, p := range links {
		if err := runProcessor(ctx, p, edit, world); err != nil {
			return &ProcessorFault{Processor: p.Name(), Phase: phase, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return &ProcessorFault{Processor: p.Name(), Phase: phase, Err: err}
		}
	}
	return nil
}

// runProcessor invokes one link with panic recovery, so a buggy processor
// aborts only its own edit.
func runProcessor(ctx context.Context, p Processor, edit *Edit, world Extent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sculpt: processor panicked",
				"processor", p.Name(),
				"phase", p.Phase().String(),
				"edit", edit.ID().String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Process(ctx, edit, world)
}
