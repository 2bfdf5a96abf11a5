package sculpt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// ChangeRecord is one recorded block mutation: the value the position held
// before the edit first touched it, and the value it holds now.
type ChangeRecord struct {
	Pos      BlockPos
	Previous BlockState
	Next     BlockState
}

// ChangeSet is the ordered record of everything one edit wrote. It is the
// unit of rollback, undo and journal persistence. The first write to a
// position fixes Previous; later writes to the same position only update
// Next, so undoing the set restores the exact pre-edit block values.
//
// Concurrency:
// Safe for concurrent recording; Undo/Redo apply whole snapshots.
type ChangeSet struct {
	editID uuid.UUID

	mu      sync.Mutex
	records []ChangeRecord
	index   map[BlockPos]int
}

// NewChangeSet returns an empty change set for the edit.
func NewChangeSet(editID uuid.UUID) *ChangeSet {
	return &ChangeSet{
		editID: editID,
		index:  make(map[BlockPos]int),
	}
}

// EditID returns the id of the edit the set belongs to.
func (c *ChangeSet) EditID() uuid.UUID { return c.editID }

// record journals one write.
func (c *ChangeSet) record(pos BlockPos, prev, next BlockState) {
	c.mu.Lock()
	if i, ok := c.index[pos]; ok {
		c.records[i].Next = next
	} else {
		c.index[pos] = len(c.records)
		c.records = append(c.records, ChangeRecord{Pos: pos, Previous: prev, Next: next})
	}
	c.mu.Unlock()
}

// Len returns the number of distinct positions recorded.
func (c *ChangeSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a copy of the records in first-write order.
func (c *ChangeSet) Records() []ChangeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChangeRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Region returns the bounding region of all recorded positions and false
// when the set is empty.
func (c *ChangeSet) Region() (Region, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == 0 {
		return Region{}, false
	}
	r := NewRegion(c.records[0].Pos, c.records[0].Pos)
	for _, rec := range c.records[1:] {
		r = r.Union(NewRegion(rec.Pos, rec.Pos))
	}
	return r, true
}

// Undo writes every Previous value back in reverse record order, restoring
// the extent to its pre-edit state for all recorded positions.
func (c *ChangeSet) Undo(world Extent) error {
	for _, rec := range reverseRecords(c.Records()) {
		if err := world.SetBlock(rec.Pos, rec.Previous); err != nil {
			return fmt.Errorf("sculpt: undo %v: %w", rec.Pos, err)
		}
	}
	return nil
}

// Redo writes every Next value in record order, re-applying the edit.
func (c *ChangeSet) Redo(world Extent) error {
	for _, rec := range c.Records() {
		if err := world.SetBlock(rec.Pos, rec.Next); err != nil {
			return fmt.Errorf("sculpt: redo %v: %w", rec.Pos, err)
		}
	}
	return nil
}

func reverseRecords(records []ChangeRecord) []ChangeRecord {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records
}

// recordingExtent journals every write through it into a change set before
// forwarding to the target. The pipeline wraps the world store with it for
// the whole commit-and-post span, so rollback always has the authoritative
// in-memory record.
type recordingExtent struct {
	target Extent
	cs     *ChangeSet
}

var _ Extent = (*recordingExtent)(nil)

func recordExtent(target Extent, cs *ChangeSet) *recordingExtent {
	return &recordingExtent{target: target, cs: cs}
}

// Bounds returns the target's bounds.
func (r *recordingExtent) Bounds() Region {
	return r.target.Bounds()
}

// Block reads through to the target.
func (r *recordingExtent) Block(pos BlockPos) BlockState {
	return r.target.Block(pos)
}

// SetBlock records the prior value, then forwards the write. Failed writes
// are not recorded.
func (r *recordingExtent) SetBlock(pos BlockPos, state BlockState) error {
	prev := r.target.Block(pos)
	if err := r.target.SetBlock(pos, state); err != nil {
		return err
	}
	r.cs.record(pos, prev, state)
	return nil
}

// changeSetVersion is the journal encoding format version.
const changeSetVersion = 1

var (
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	zstdEnc, _ = zstd.NewWriter(nil)
	zstdDec, _ = zstd.NewReader(nil)
}

// encodeChangeSet serializes the set as varint records behind a version byte
// and compresses the body with zstd.
func encodeChangeSet(cs *ChangeSet) []byte {
	records := cs.Records()

	payload := make([]byte, 0, 16+len(records)*14)
	payload = append(payload, cs.editID[:]...)
	payload = binary.AppendUvarint(payload, uint64(len(records)))
	for _, rec := range records {
		payload = binary.AppendVarint(payload, int64(rec.Pos.X))
		payload = binary.AppendVarint(payload, int64(rec.Pos.Y))
		payload = binary.AppendVarint(payload, int64(rec.Pos.Z))
		payload = binary.AppendUvarint(payload, uint64(rec.Previous.Type))
		payload = binary.AppendUvarint(payload, uint64(rec.Previous.Props))
		payload = binary.AppendUvarint(payload, uint64(rec.Next.Type))
		payload = binary.AppendUvarint(payload, uint64(rec.Next.Props))
	}

	out := make([]byte, 1, len(payload)/2+64)
	out[0] = changeSetVersion
	return zstdEnc.EncodeAll(payload, out)
}

// decodeChangeSet reverses encodeChangeSet.
func decodeChangeSet(data []byte) (*ChangeSet, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("sculpt: change set data truncated")
	}
	if data[0] != changeSetVersion {
		return nil, fmt.Errorf("sculpt: unsupported change set version %d", data[0])
	}
	payload, err := zstdDec.DecodeAll(data[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("sculpt: change set decompress: %w", err)
	}
	if len(payload) < 16 {
		return nil, fmt.Errorf("sculpt: change set payload truncated")
	}

	var id uuid.UUID
	copy(id[:], payload[:16])
	cs := NewChangeSet(id)

	r := bytes.NewReader(payload[16:])
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("sculpt: change set record count: %w", err)
	}
	readPos := func() (BlockPos, error) {
		x, err := binary.ReadVarint(r)
		if err != nil {
			return BlockPos{}, err
		}
		y, err := binary.ReadVarint(r)
		if err != nil {
			return BlockPos{}, err
		}
		z, err := binary.ReadVarint(r)
		if err != nil {
			return BlockPos{}, err
		}
		return BlockPos{int(x), int(y), int(z)}, nil
	}
	readState := func() (BlockState, error) {
		t, err := binary.ReadUvarint(r)
		if err != nil {
			return Air, err
		}
		p, err := binary.ReadUvarint(r)
		if err != nil {
			return Air, err
		}
		return BlockState{Type: BlockType(t), Props: uint16(p)}, nil
	}
	for i := uint64(0); i < count; i++ {
		pos, err := readPos()
		if err != nil {
			return nil, fmt.Errorf("sculpt: change set record %d: %w", i, err)
		}
		prev, err := readState()
		if err != nil {
			return nil, fmt.Errorf("sculpt: change set record %d: %w", i, err)
		}
		next, err := readState()
		if err != nil {
			return nil, fmt.Errorf("sculpt: change set record %d: %w", i, err)
		}
		cs.record(pos, prev, next)
	}
	return cs, nil
}

// HistoryJournal persists change sets keyed by edit id so committed edits
// can be undone later. Journal failures never fail the edit that produced
// the set.
type HistoryJournal interface {
	// Save persists the change set.
	Save(ctx context.Context, cs *ChangeSet) error

	// Load returns the change set for the edit, or ErrUnknownEdit.
	Load(ctx context.Context, editID uuid.UUID) (*ChangeSet, error)

	// Delete removes the change set for the edit, if present.
	Delete(ctx context.Context, editID uuid.UUID) error

	// Close releases the journal's resources.
	Close() error
}

// MemoryJournal is the in-process HistoryJournal used when persistence is
// disabled.
//
// Concurrency:
// All methods are safe for concurrent use.
type MemoryJournal struct {
	mu     sync.RWMutex
	sets   map[uuid.UUID][]byte
	closed atomic.Bool
}

var _ HistoryJournal = (*MemoryJournal)(nil)

// NewMemoryJournal returns an empty in-process journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{sets: make(map[uuid.UUID][]byte)}
}

// Save stores the encoded change set.
func (j *MemoryJournal) Save(ctx context.Context, cs *ChangeSet) error {
	if j.closed.Load() {
		return ErrJournalClosed
	}
	data := encodeChangeSet(cs)
	j.mu.Lock()
	j.sets[cs.EditID()] = data
	j.mu.Unlock()
	return nil
}

// Load returns the stored change set, or ErrUnknownEdit.
func (j *MemoryJournal) Load(ctx context.Context, editID uuid.UUID) (*ChangeSet, error) {
	if j.closed.Load() {
		return nil, ErrJournalClosed
	}
	j.mu.RLock()
	data, ok := j.sets[editID]
	j.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownEdit
	}
	return decodeChangeSet(data)
}

// Delete removes the stored change set, if present.
func (j *MemoryJournal) Delete(ctx context.Context, editID uuid.UUID) error {
	if j.closed.Load() {
		return ErrJournalClosed
	}
	j.mu.Lock()
	delete(j.sets, editID)
	j.mu.Unlock()
	return nil
}

// Close empties the journal. Idempotent.
func (j *MemoryJournal) Close() error {
	if j.closed.CompareAndSwap(false, true) {
		j.mu.Lock()
		j.sets = nil
		j.mu.Unlock()
	}
	return nil
}

// Len returns the number of stored change sets.
func (j *MemoryJournal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.sets)
}

// BadgerJournal is the disk-backed HistoryJournal: one Badger store with
// zstd-compressed change set values keyed by edit id.
type BadgerJournal struct {
	db *badger.DB
}

var _ HistoryJournal = (*BadgerJournal)(nil)

// OpenBadgerJournal opens (or creates) the journal store in dir.
func OpenBadgerJournal(dir string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("sculpt: open history journal: %w", err)
	}
	return &BadgerJournal{db: db}, nil
}

func journalKey(editID uuid.UUID) []byte {
	return append([]byte("edit/"), editID[:]...)
}

// Save persists the encoded change set.
func (j *BadgerJournal) Save(ctx context.Context, cs *ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := encodeChangeSet(cs)
	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(cs.EditID()), data)
	})
	if err != nil {
		return fmt.Errorf("sculpt: journal save %s: %w", cs.EditID(), err)
	}
	return nil
}

// Load returns the stored change set, or ErrUnknownEdit.
func (j *BadgerJournal) Load(ctx context.Context, editID uuid.UUID) (*ChangeSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(journalKey(editID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrUnknownEdit
	}
	if err != nil {
		return nil, fmt.Errorf("sculpt: journal load %s: %w", editID, err)
	}
	return decodeChangeSet(data)
}

// Delete removes the stored change set, if present.
func (j *BadgerJournal) Delete(ctx context.Context, editID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(journalKey(editID))
	})
	if err != nil {
		return fmt.Errorf("sculpt: journal delete %s: %w", editID, err)
	}
	return nil
}

// Close closes the underlying store.
func (j *BadgerJournal) Close() error {
	return j.db.Close()
}
