package sortedlist

// node is a link in a circular doubly linked ring. Each ring owns exactly one
// sentinel node that never carries a value.
type node[T any] struct {
	val  T
	prev *node[T]
	next *node[T]
}

func (n *node[T]) initSentinel() {
	n.prev = n
	n.next = n
}

// insertBefore links a new node holding v in front of where.
func insertBefore[T any](where *node[T], v T) *node[T] {
	n := &node[T]{val: v, prev: where.prev, next: where}
	where.prev.next = n
	where.prev = n
	return n
}

// unlink detaches n from its ring and returns its successor.
func unlink[T any](n *node[T]) *node[T] {
	next := n.next
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
	return next
}

// splice moves the run [from, to) in front of where. The run may come from
// another ring. from must differ from to and where must not lie inside the run.
func splice[T any](from, to, where *node[T]) {
	last := to.prev

	from.prev.next = to
	to.prev = from.prev

	before := where.prev
	before.next = from
	from.prev = before
	last.next = where
	where.prev = last
}
