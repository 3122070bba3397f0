package capture

// Buffer is an append-only sequence kept in arrival order. With a positive
// capacity it retains only the newest capacity items (oldest evicted first);
// with capacity <= 0 it grows without bound. Buffer is not safe for
// concurrent use; Session serializes access.
type Buffer[T any] struct {
	items    []T
	head     int // index of the oldest item once the ring is full
	capacity int
	total    int64
	evicted  int64
}

// NewBuffer creates a buffer. capacity <= 0 means unbounded.
func NewBuffer[T any](capacity int) *Buffer[T] {
	b := &Buffer[T]{capacity: capacity}
	if capacity > 0 {
		b.items = make([]T, 0, capacity)
	}
	return b
}

// Append adds items in order and returns how many older items were evicted.
func (b *Buffer[T]) Append(items ...T) int {
	evicted := 0
	for _, it := range items {
		b.total++
		if b.capacity <= 0 || len(b.items) < b.capacity {
			b.items = append(b.items, it)
			continue
		}
		b.items[b.head] = it
		b.head = (b.head + 1) % b.capacity
		evicted++
	}
	b.evicted += int64(evicted)
	return evicted
}

// Len returns the number of retained items.
func (b *Buffer[T]) Len() int { return len(b.items) }

// Total returns the number of items ever appended.
func (b *Buffer[T]) Total() int64 { return b.total }

// Evicted returns the number of items dropped by the ring.
func (b *Buffer[T]) Evicted() int64 { return b.evicted }

// Snapshot returns a copy of the retained items, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, 0, len(b.items))
	out = append(out, b.items[b.head:]...)
	out = append(out, b.items[:b.head]...)
	return out
}

// Latest holds only the most recent value written to it.
type Latest[T any] struct {
	v   T
	set bool
}

// Set overwrites the held value.
func (l *Latest[T]) Set(v T) {
	l.v = v
	l.set = true
}

// Get returns the held value and whether anything was ever set.
func (l *Latest[T]) Get() (T, bool) { return l.v, l.set }

// Ptr returns a pointer to a copy of the held value, or nil if unset.
func (l *Latest[T]) Ptr() *T {
	if !l.set {
		return nil
	}
	v := l.v
	return &v
}
