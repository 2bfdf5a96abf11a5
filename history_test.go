package sculpt

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeSetRecordFirstWriteWins(t *testing.T) {
	cs := NewChangeSet(uuid.New())
	pos := BlockPos{1, 2, 3}

	cs.record(pos, Air, BlockState{Type: 1})
	cs.record(pos, BlockState{Type: 1}, BlockState{Type: 2})

	records := cs.Records()
	require.Len(t, records, 1)
	assert.Equal(t, Air, records[0].Previous, "the first observed state stays the rollback target")
	assert.Equal(t, BlockState{Type: 2}, records[0].Next, "the latest write stays the redo target")
	assert.Equal(t, 1, cs.Len())
}

func TestChangeSetUndoRestoresReverseOrder(t *testing.T) {
	world := NewMemoryExtent(NewRegion(BlockPos{0, 0, 0}, BlockPos{9, 9, 9}))
	require.NoError(t, world.SetBlock(BlockPos{1, 1, 1}, BlockState{Type: 10}))

	cs := NewChangeSet(uuid.New())
	scoped := recordExtent(world, cs)

	require.NoError(t, scoped.SetBlock(BlockPos{1, 1, 1}, BlockState{Type: 20}))
	require.NoError(t, scoped.SetBlock(BlockPos{2, 2, 2}, BlockState{Type: 21}))

	require.NoError(t, cs.Undo(world))
	assert.Equal(t, BlockState{Type: 10}, world.Block(BlockPos{1, 1, 1}))
	assert.True(t, world.Block(BlockPos{2, 2, 2}).IsAir())

	require.NoError(t, cs.Redo(world))
	assert.Equal(t, BlockState{Type: 20}, world.Block(BlockPos{1, 1, 1}))
	assert.Equal(t, BlockState{Type: 21}, world.Block(BlockPos{2, 2, 2}))
}

func TestChangeSetRegionUnion(t *testing.T) {
	cs := NewChangeSet(uuid.New())
	if _, ok := cs.Region(); ok {
		t.Fatalf("empty set has no region")
	}

	cs.record(BlockPos{-5, 0, 2}, Air, BlockState{Type: 1})
	cs.record(BlockPos{3, 7, -1}, Air, BlockState{Type: 1})

	region, ok := cs.Region()
	require.True(t, ok)
	assert.Equal(t, NewRegion(BlockPos{-5, 0, -1}, BlockPos{3, 7, 2}), region)
}

func TestRecordingExtentSkipsFailedWrites(t *testing.T) {
	world := NewMemoryExtent(NewRegion(BlockPos{0, 0, 0}, BlockPos{4, 4, 4}))
	cs := NewChangeSet(uuid.New())
	scoped := recordExtent(world, cs)

	err := scoped.SetBlock(BlockPos{9, 9, 9}, BlockState{Type: 1})
	assert.ErrorIs(t, err, ErrOutOfRegion)
	assert.Zero(t, cs.Len(), "a rejected write must not be journaled")
}

func TestChangeSetCodecRoundTrip(t *testing.T) {
	cs := NewChangeSet(uuid.New())
	cs.record(BlockPos{-1024, -64, 2047}, BlockState{Type: 4, Props: 11}, BlockState{Type: 900, Props: 3})
	cs.record(BlockPos{0, 0, 0}, Air, BlockState{Type: 1})
	cs.record(BlockPos{15, 319, -15}, BlockState{Type: 65535, Props: 65535}, Air)

	decoded, err := decodeChangeSet(encodeChangeSet(cs))
	require.NoError(t, err)

	assert.Equal(t, cs.EditID(), decoded.EditID())
	assert.Equal(t, cs.Records(), decoded.Records())
}

func TestDecodeChangeSetRejectsBadData(t *testing.T) {
	if _, err := decodeChangeSet(nil); err == nil {
		t.Fatalf("empty data must not decode")
	}
	if _, err := decodeChangeSet([]byte{99}); err == nil {
		t.Fatalf("unknown version must not decode")
	}
	if _, err := decodeChangeSet([]byte{changeSetVersion, 0xde, 0xad}); err == nil {
		t.Fatalf("garbage body must not decode")
	}

	// A valid frame truncated mid-record must error, not return a short set.
	cs := NewChangeSet(uuid.New())
	cs.record(BlockPos{1, 2, 3}, Air, BlockState{Type: 7})
	data := encodeChangeSet(cs)
	if _, err := decodeChangeSet(data[:len(data)-1]); err == nil {
		t.Fatalf("truncated data must not decode")
	}
}

func TestMemoryJournal(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()

	cs := NewChangeSet(uuid.New())
	cs.record(BlockPos{1, 1, 1}, Air, BlockState{Type: 2})

	require.NoError(t, j.Save(ctx, cs))
	assert.Equal(t, 1, j.Len())

	loaded, err := j.Load(ctx, cs.EditID())
	require.NoError(t, err)
	assert.Equal(t, cs.Records(), loaded.Records())

	_, err = j.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUnknownEdit)

	require.NoError(t, j.Delete(ctx, cs.EditID()))
	_, err = j.Load(ctx, cs.EditID())
	assert.ErrorIs(t, err, ErrUnknownEdit)

	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Save(ctx, cs), ErrJournalClosed)
	_, err = j.Load(ctx, cs.EditID())
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func TestBadgerJournal(t *testing.T) {
	j, err := OpenBadgerJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	cs := NewChangeSet(uuid.New())
	cs.record(BlockPos{-3, 60, 12}, BlockState{Type: 1}, BlockState{Type: 8, Props: 5})
	cs.record(BlockPos{-3, 61, 12}, Air, BlockState{Type: 8})

	require.NoError(t, j.Save(ctx, cs))

	loaded, err := j.Load(ctx, cs.EditID())
	require.NoError(t, err)
	assert.Equal(t, cs.EditID(), loaded.EditID())
	assert.Equal(t, cs.Records(), loaded.Records())

	_, err = j.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUnknownEdit)

	require.NoError(t, j.Delete(ctx, cs.EditID()))
	_, err = j.Load(ctx, cs.EditID())
	assert.ErrorIs(t, err, ErrUnknownEdit)
}

func TestBadgerJournalHonorsContext(t *testing.T) {
	j, err := OpenBadgerJournal(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cs := NewChangeSet(uuid.New())
	assert.ErrorIs(t, j.Save(ctx, cs), context.Canceled)
	_, err = j.Load(ctx, cs.EditID())
	assert.ErrorIs(t, err, context.Canceled)
}
