// Package pq implements a priority queue on top of a sorted list.
//
// The element served next is the one at the tail of the list, i.e. the
// maximum under the queue's comparator. Callers that want the minimum first
// must pass a reversed comparator.
package pq

import (
	"errors"

	"heartwatch/internal/sortedlist"
)

// ErrFull is returned by Enqueue when the queue reached its capacity.
var ErrFull = errors.New("pq: queue is full")

// Queue is a priority queue. It is not safe for concurrent use.
type Queue[T any] struct {
	list *sortedlist.List[T]
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	capacity int
}

// WithCapacity bounds the queue. n <= 0 means unbounded.
func WithCapacity(n int) Option { return func(o *options) { o.capacity = n } }

func New[T any](cmp func(a, b T) int, opts ...Option) *Queue[T] {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return &Queue[T]{list: sortedlist.New(cmp, sortedlist.WithLimit(o.capacity))}
}

// Enqueue inserts v in order. On failure the queue is unchanged.
func (q *Queue[T]) Enqueue(v T) error {
	if q.list.Insert(v).IsEnd() {
		return ErrFull
	}
	return nil
}

// Dequeue removes and returns the maximum element.
func (q *Queue[T]) Dequeue() (T, bool) {
	return q.list.PopBack()
}

// Peek returns the maximum element without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if q.list.IsEmpty() {
		var zero T
		return zero, false
	}
	return q.list.End().Prev().Value(), true
}

func (q *Queue[T]) IsEmpty() bool { return q.list.IsEmpty() }

func (q *Queue[T]) Len() int { return q.list.Len() }

// Clear drops every element.
func (q *Queue[T]) Clear() {
	for !q.list.IsEmpty() {
		q.list.PopBack()
	}
}

// Erase removes the first element, scanning from the head, for which match
// returns true. It reports false when nothing matched.
func (q *Queue[T]) Erase(match func(T) bool) (T, bool) {
	end := q.list.End()
	where := q.list.FindIf(q.list.Begin(), end, match)
	if where.Equal(end) {
		var zero T
		return zero, false
	}
	v := where.Value()
	q.list.Remove(where)
	return v, true
}
