package sculpt

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.EditCommitted(10, time.Millisecond)
		m.EditAborted()
		m.RelightEnqueued()
		m.RelightSuperseded()
		m.RelightFinished(time.Millisecond)
		m.RelightQueueDepth(3)
		m.JournalFailure()
	})
}

func TestMetricsNilRegistererIsSafe(t *testing.T) {
	m := NewMetrics(nil)
	assert.Nil(t, m, "no registerer means no instruments")
}

func TestMetricsRegistersInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	m.EditCommitted(128, 5*time.Millisecond)
	m.EditAborted()
	m.RelightEnqueued()
	m.RelightFinished(time.Millisecond)
	m.RelightQueueDepth(1)
	m.JournalFailure()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["sculpt_edits_committed_total"], "committed counter missing")
	assert.True(t, names["sculpt_edits_aborted_total"], "aborted counter missing")
}

func TestMetricsDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotNil(t, NewMetrics(reg))
	assert.Panics(t, func() { NewMetrics(reg) }, "prometheus rejects duplicate collectors")
}
