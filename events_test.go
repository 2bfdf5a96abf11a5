package sculpt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingListener struct {
	NopListener
	committed int
}

func (l *countingListener) HandleEditCommitted(EventEditCommitted) {
	l.committed++
}

func TestListenerSetFanOut(t *testing.T) {
	var set listenerSet
	a := &countingListener{}
	b := &countingListener{}
	set.add(a)
	set.add(b)

	set.emit(func(l Listener) { l.HandleEditCommitted(EventEditCommitted{}) })

	assert.Equal(t, 1, a.committed)
	assert.Equal(t, 1, b.committed)
}

func TestListenerSetUnsubscribe(t *testing.T) {
	var set listenerSet
	a := &countingListener{}
	b := &countingListener{}
	unsubscribe := set.add(a)
	set.add(b)

	unsubscribe()
	unsubscribe()

	set.emit(func(l Listener) { l.HandleEditCommitted(EventEditCommitted{}) })

	assert.Zero(t, a.committed, "removed listener must not be notified")
	assert.Equal(t, 1, b.committed)
}

func TestListenerSetRemovesByIdentity(t *testing.T) {
	var set listenerSet
	a := &countingListener{}
	b := &countingListener{}
	set.add(a)
	removeB := set.add(b)

	removeB()
	set.emit(func(l Listener) { l.HandleEditCommitted(EventEditCommitted{}) })

	assert.Equal(t, 1, a.committed)
	assert.Zero(t, b.committed)
}

type panickyListener struct {
	NopListener
}

func (panickyListener) HandleEditCommitted(EventEditCommitted) {
	panic("listener bug")
}

func TestListenerSetContainsPanics(t *testing.T) {
	var set listenerSet
	after := &countingListener{}
	set.add(panickyListener{})
	set.add(after)

	require.NotPanics(t, func() {
		set.emit(func(l Listener) { l.HandleEditCommitted(EventEditCommitted{}) })
	})
	assert.Equal(t, 1, after.committed, "a panicking listener must not starve the rest")
}

func TestListenerSetSubscribeDuringEmit(t *testing.T) {
	var set listenerSet
	late := &countingListener{}

	hook := &hookListener{fn: func() { set.add(late) }}
	set.add(hook)

	set.emit(func(l Listener) { l.HandleEditCommitted(EventEditCommitted{}) })
	assert.Zero(t, late.committed, "emit runs against a snapshot")

	set.emit(func(l Listener) { l.HandleEditCommitted(EventEditCommitted{}) })
	assert.Equal(t, 1, late.committed)
}

type hookListener struct {
	NopListener
	fn func()
}

func (l *hookListener) HandleEditCommitted(EventEditCommitted) {
	l.fn()
}
