// Package sculpt provides a platform-agnostic world editing core for block
// game servers.
//
// Sculpt sits between editing tools and the game platform that owns the
// world data. It provides:
//   - Capability arbitration across concurrently registered platforms
//   - Side-effect negotiation per edit (lighting, neighbours, physics, ...)
//   - A two-phase processor chain with rollback on any fault
//   - Asynchronous relighting with overlap-superseding jobs
//   - A tick scheduler facade over the host's game loop
//   - A compressed history journal for undo
//
// # Quick Start
//
// Register your platform binding and apply edits through the manager:
//
//	mngr, err := sculpt.NewBuilder().
//	    Platform(myPlatform).
//	    Init()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mngr.Shutdown()
//
//	world, _ := mngr.MatchWorld("overworld")
//	edit := sculpt.NewEdit(region).
//	    RequestEffects(sculpt.AllSideEffects())
//	for _, pos := range positions {
//	    edit.SetBlock(pos, stone)
//	}
//	result, err := mngr.Apply(ctx, world, edit)
//
// # Platforms
//
// A Platform is one runtime binding to a concrete game engine. Platforms
// declare a preference per capability; the manager resolves each capability
// to the platform with the strongest preference, first registered winning
// ties. Embed BasePlatform and override what the engine supports.
//
// # Processors
//
// Processors hook the edit pipeline before or after the commit:
//
//	mngr.AddProcessor(sculpt.NewProcessor("limit", sculpt.PhasePreCommit,
//	    func(ctx context.Context, edit *sculpt.Edit, world sculpt.Extent) error {
//	        edit.Restrict(allowed)
//	        return nil
//	    }))
//
// A processor error or panic aborts the edit and rolls the world back to
// its pre-edit state.
package sculpt

// Version is the sculpt release version.
const Version = "1.0.0"
