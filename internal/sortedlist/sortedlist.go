// Package sortedlist keeps values in a doubly linked sequence ordered by a
// caller supplied comparator.
//
//	              Time      Notes
//	Insert()      O(n)      linear search, O(1) link
//	Find*()       O(n)      over a half-open [from, to) range
//	Remove()      O(1)
//	PopFront()    O(1)
//	PopBack()     O(1)
//	Merge()       O(n+m)    relocates runs of nodes, values are never copied
//
// Positions are Iter values. End() is a valid range bound but holds no value.
// Passing positions of different lists to one call panics.
package sortedlist

import "fmt"

// Compare returns <0, 0 or >0 when a sorts before, equal to or after b.
type Compare[T any] func(a, b T) int

// List is a sorted sequence. It is not safe for concurrent use.
type List[T any] struct {
	root  node[T]
	len   int
	limit int
	cmp   Compare[T]
}

// Option configures a List.
type Option func(*options)

type options struct {
	limit int
}

// WithLimit caps the number of values the list accepts. Insert on a full
// list returns End() and leaves the list unchanged. n <= 0 means unbounded.
func WithLimit(n int) Option { return func(o *options) { o.limit = n } }

func New[T any](cmp func(a, b T) int, opts ...Option) *List[T] {
	if cmp == nil {
		panic("sortedlist: nil comparator")
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	l := &List[T]{cmp: cmp, limit: o.limit}
	l.root.initSentinel()
	return l
}

// Iter is a position in a List.
type Iter[T any] struct {
	list *List[T]
	n    *node[T]
}

// Equal reports whether both iterators denote the same position.
func (it Iter[T]) Equal(other Iter[T]) bool { return it.n == other.n }

// IsEnd reports whether it is the end position of its list.
func (it Iter[T]) IsEnd() bool { return it.list != nil && it.n == &it.list.root }

// Value returns the value at it. Reading End() panics.
func (it Iter[T]) Value() T {
	if it.n == nil || it.IsEnd() {
		panic("sortedlist: value read at end position")
	}
	return it.n.val
}

// Next returns the following position.
func (it Iter[T]) Next() Iter[T] { return Iter[T]{list: it.list, n: it.n.next} }

// Prev returns the preceding position.
func (it Iter[T]) Prev() Iter[T] { return Iter[T]{list: it.list, n: it.n.prev} }

func (l *List[T]) Begin() Iter[T] { return Iter[T]{list: l, n: l.root.next} }

func (l *List[T]) End() Iter[T] { return Iter[T]{list: l, n: &l.root} }

func (l *List[T]) Len() int { return l.len }

func (l *List[T]) IsEmpty() bool { return l.len == 0 }

// Insert places v in front of the first value greater than v, after any
// equal values, so iteration yields ties in insertion order.
func (l *List[T]) Insert(v T) Iter[T] {
	if l.limit > 0 && l.len >= l.limit {
		return l.End()
	}
	where := l.root.next
	for where != &l.root && l.cmp(where.val, v) <= 0 {
		where = where.next
	}
	n := insertBefore(where, v)
	l.len++
	return Iter[T]{list: l, n: n}
}

// Find returns the first position in [from, to) whose value compares equal
// to v, or to when there is none.
func (l *List[T]) Find(from, to Iter[T], v T) Iter[T] {
	return l.FindIf(from, to, func(x T) bool { return l.cmp(x, v) == 0 })
}

// FindIf returns the first position in [from, to) whose value satisfies
// match, or to when there is none.
func (l *List[T]) FindIf(from, to Iter[T], match func(T) bool) Iter[T] {
	l.mustOwn(from, to)
	for n := from.n; n != to.n; n = n.next {
		if match(n.val) {
			return Iter[T]{list: l, n: n}
		}
	}
	return to
}

// ForEach calls fn for every value in [from, to) and stops at the first error.
func (l *List[T]) ForEach(from, to Iter[T], fn func(T) error) error {
	l.mustOwn(from, to)
	for n := from.n; n != to.n; n = n.next {
		if err := fn(n.val); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the value at it and returns the following position.
func (l *List[T]) Remove(it Iter[T]) Iter[T] {
	l.mustOwn(it, it)
	if it.IsEnd() {
		panic("sortedlist: remove at end position")
	}
	next := unlink(it.n)
	l.len--
	return Iter[T]{list: l, n: next}
}

func (l *List[T]) PopFront() (T, bool) {
	if l.len == 0 {
		var zero T
		return zero, false
	}
	n := l.root.next
	unlink(n)
	l.len--
	return n.val, true
}

func (l *List[T]) PopBack() (T, bool) {
	if l.len == 0 {
		var zero T
		return zero, false
	}
	n := l.root.prev
	unlink(n)
	l.len--
	return n.val, true
}

// Values returns a copy of the values from head to tail.
func (l *List[T]) Values() []T {
	out := make([]T, 0, l.len)
	for n := l.root.next; n != &l.root; n = n.next {
		out = append(out, n.val)
	}
	return out
}

// Merge moves every value of src into l keeping l sorted. src ends empty.
// Both lists must be ordered by the same comparator. Values equal to values
// already in l are placed after them. The limit of l is not enforced.
func (l *List[T]) Merge(src *List[T]) {
	if src == nil || src == l {
		panic("sortedlist: merge with itself or nil")
	}
	where := l.root.next
	for src.len > 0 {
		from := src.root.next

		for where != &l.root && l.cmp(where.val, from.val) <= 0 {
			where = where.next
		}
		if where == &l.root {
			n := src.len
			splice(from, &src.root, where)
			l.len += n
			src.len = 0
			return
		}

		// from sorts strictly before where, so the run holds at least one node.
		to := from
		n := 0
		for to != &src.root && l.cmp(to.val, where.val) < 0 {
			to = to.next
			n++
		}
		splice(from, to, where)
		l.len += n
		src.len -= n
	}
}

func (l *List[T]) mustOwn(from, to Iter[T]) {
	if from.list != l || to.list != l {
		panic(fmt.Sprintf("sortedlist: positions do not belong to this list (%p)", l))
	}
}
