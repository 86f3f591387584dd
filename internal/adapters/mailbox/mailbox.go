// Package mailbox provides single-slot, latest-value-wins hand-off between a
// fast producer and a slower consumer.
//
// A Put never blocks and never waits for the reader: it atomically swaps the
// new value in and discards the previous one. Readers always observe a whole
// value, never a partially written one.
package mailbox

import (
	"sync/atomic"

	"github.com/okian/moodcam/pkg/metrics"
)

type entry[T any] struct {
	value *T
	seq   uint64
	read  atomic.Bool
}

// Mailbox holds at most one value of type T.
type Mailbox[T any] struct {
	name       string
	slot       atomic.Pointer[entry[T]]
	seq        atomic.Uint64
	overwrites atomic.Uint64
}

// New creates an empty mailbox.
func New[T any](opts ...Option) *Mailbox[T] {
	o := options{name: "mailbox"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Mailbox[T]{name: o.name}
}

// Put publishes v, replacing any previous value, and returns its sequence
// number. Values replaced before any reader observed them are counted as
// overwrites.
func (m *Mailbox[T]) Put(v *T) uint64 {
	e := &entry[T]{value: v, seq: m.seq.Add(1)}
	if old := m.slot.Swap(e); old != nil && !old.read.Load() {
		m.overwrites.Add(1)
		metrics.RecordMailboxOverwrite(m.name)
	}
	return e.seq
}

// Latest returns the current value and its sequence number without blocking.
// ok is false while nothing has been published.
func (m *Mailbox[T]) Latest() (v *T, seq uint64, ok bool) {
	e := m.slot.Load()
	if e == nil {
		return nil, 0, false
	}
	e.read.Store(true)
	return e.value, e.seq, true
}

// Peek is Latest without marking the value as observed.
func (m *Mailbox[T]) Peek() (v *T, seq uint64, ok bool) {
	e := m.slot.Load()
	if e == nil {
		return nil, 0, false
	}
	return e.value, e.seq, true
}

// Seq returns the sequence number of the last Put.
func (m *Mailbox[T]) Seq() uint64 {
	return m.seq.Load()
}

// Overwrites returns how many values were replaced unread.
func (m *Mailbox[T]) Overwrites() uint64 {
	return m.overwrites.Load()
}

// Name returns the mailbox label.
func (m *Mailbox[T]) Name() string {
	return m.name
}
