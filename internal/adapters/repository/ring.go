package repository

import "time"

// ring is a bounded FIFO deque. When full, pushing drops the oldest element.
type ring[T any] struct {
	buf  []T
	head int
	n    int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) len() int { return r.n }

func (r *ring[T]) at(i int) T {
	return r.buf[(r.head+i)%len(r.buf)]
}

// push appends v and reports whether the oldest element was dropped.
func (r *ring[T]) push(v T) bool {
	if r.n == len(r.buf) {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return true
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	return false
}

func (r *ring[T]) popFront() {
	var zero T
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
}

func (r *ring[T]) back() (T, bool) {
	if r.n == 0 {
		var zero T
		return zero, false
	}
	return r.at(r.n - 1), true
}

// evictBefore drops leading elements stamped before cutoff and returns the count.
func (r *ring[T]) evictBefore(cutoff time.Time, ts func(T) time.Time) int {
	dropped := 0
	for r.n > 0 && ts(r.at(0)).Before(cutoff) {
		r.popFront()
		dropped++
	}
	return dropped
}

// since copies out the elements stamped at or after cutoff, oldest first.
func (r *ring[T]) since(cutoff time.Time, ts func(T) time.Time) []T {
	out := make([]T, 0, r.n)
	for i := 0; i < r.n; i++ {
		v := r.at(i)
		if !ts(v).Before(cutoff) {
			out = append(out, v)
		}
	}
	return out
}
