package sculpt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderWiresEverything(t *testing.T) {
	platform := worldAccessPlatform("host")
	listener := &recordingListener{}
	journal := NewMemoryJournal()
	cmd := &nopCommandManager{}

	var ran []string
	m, err := NewBuilder().
		Config(&Config{}).
		Metrics(prometheus.NewRegistry()).
		Journal(journal).
		Commands(cmd).
		Processor(namedProbe("global", PhasePreCommit, &ran)).
		Listener(listener).
		Platform(platform).
		Init()
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)

	require.Len(t, listener.registered, 1, "builder listeners see init-time registrations")

	world := pipelineWorld()
	pos := BlockPos{X: 1, Y: 1, Z: 1}
	edit := stagedEdit(t, NewRegion(BlockPos{}, BlockPos{X: 3, Y: 3, Z: 3}), map[BlockPos]BlockState{
		pos: {Type: 1},
	})
	result, err := m.Apply(context.Background(), world, edit)
	require.NoError(t, err)
	require.NoError(t, result.Await(context.Background()))

	assert.Equal(t, []string{"global"}, ran)
	assert.Equal(t, 1, listener.committedCount())
	_, err = journal.Load(context.Background(), edit.ID())
	assert.NoError(t, err, "the provided journal holds the edit")
}

func TestBuilderOpensBadgerJournalWhenEnabled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	m, err := NewBuilder().
		Config(&Config{History: HistoryConfig{Enabled: true, Path: dir}}).
		Platform(worldAccessPlatform("host")).
		Init()
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)

	require.IsType(t, &BadgerJournal{}, m.Journal())

	world := pipelineWorld()
	edit := stagedEdit(t, NewRegion(BlockPos{}, BlockPos{X: 3, Y: 3, Z: 3}), map[BlockPos]BlockState{
		{X: 1, Y: 1, Z: 1}: {Type: 1},
	})
	result, err := m.Apply(context.Background(), world, edit)
	require.NoError(t, err)
	require.NoError(t, result.Await(context.Background()))

	cs, err := m.Journal().Load(context.Background(), edit.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, cs.Len())
}

func TestBuilderConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sculpt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  watchdog_blocks: 7\n"), 0o600))

	m, err := NewBuilder().ConfigFile(path).Init()
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)

	assert.Equal(t, 7, m.watchdogBlocks)
}

func TestBuilderConfigFileError(t *testing.T) {
	_, err := NewBuilder().ConfigFile(filepath.Join(t.TempDir(), "absent.yaml")).Init()
	assert.Error(t, err)
}

func TestBuilderDefaultsToMemoryJournal(t *testing.T) {
	m, err := NewBuilder().Init()
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)

	assert.IsType(t, &MemoryJournal{}, m.Journal())
}
