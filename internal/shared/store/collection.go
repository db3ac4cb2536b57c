package store

import "sync"

type ChangeKind string

const (
	ChangeReplaced ChangeKind = "replaced"
	ChangeInserted ChangeKind = "inserted"
	ChangeUpdated  ChangeKind = "updated"
	ChangeRemoved  ChangeKind = "removed"
)

// Change describes one mutation. Items holds the affected entries after the
// mutation (the full content for ChangeReplaced, the dropped entry for
// ChangeRemoved).
type Change[V any] struct {
	Kind  ChangeKind
	Items []V
}

// Collection is an ordered map of records keyed by identifier, most recent
// first. All mutations go through its methods; watchers are notified after
// the internal lock is released.
type Collection[K comparable, V any] struct {
	key func(V) K

	mu    sync.RWMutex
	order []K
	items map[K]V

	watchMu  sync.Mutex
	watchers map[int]func(Change[V])
	nextID   int
}

func New[K comparable, V any](key func(V) K) *Collection[K, V] {
	return &Collection[K, V]{
		key:      key,
		items:    make(map[K]V),
		watchers: make(map[int]func(Change[V])),
	}
}

// Replace swaps the whole content for a fresh page. Repeated keys keep their
// first occurrence.
func (c *Collection[K, V]) Replace(items []V) {
	c.mu.Lock()
	c.order = make([]K, 0, len(items))
	c.items = make(map[K]V, len(items))
	for _, item := range items {
		k := c.key(item)
		if _, dup := c.items[k]; dup {
			continue
		}
		c.order = append(c.order, k)
		c.items[k] = item
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(Change[V]{Kind: ChangeReplaced, Items: snapshot})
}

// Upsert inserts item if its key is unknown (at the front when front is set)
// or replaces the existing entry in place. It returns the previous value and
// whether one existed.
func (c *Collection[K, V]) Upsert(item V, front bool) (previous V, existed bool) {
	k := c.key(item)

	c.mu.Lock()
	previous, existed = c.items[k]
	c.items[k] = item
	if !existed {
		if front {
			c.order = append([]K{k}, c.order...)
		} else {
			c.order = append(c.order, k)
		}
	}
	c.mu.Unlock()

	kind := ChangeInserted
	if existed {
		kind = ChangeUpdated
	}
	c.notify(Change[V]{Kind: kind, Items: []V{item}})
	return previous, existed
}

// Patch mutates the entry stored under key. Absent keys are ignored. fn
// reports whether it changed anything; unchanged entries are not announced.
func (c *Collection[K, V]) Patch(key K, fn func(*V) bool) (found bool) {
	c.mu.Lock()
	item, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	changed := fn(&item)
	if changed {
		c.items[key] = item
	}
	c.mu.Unlock()

	if changed {
		c.notify(Change[V]{Kind: ChangeUpdated, Items: []V{item}})
	}
	return true
}

// PatchAll runs fn over every entry in order and returns the entries it changed.
func (c *Collection[K, V]) PatchAll(fn func(*V) bool) []V {
	c.mu.Lock()
	var changed []V
	for _, k := range c.order {
		item := c.items[k]
		if fn(&item) {
			c.items[k] = item
			changed = append(changed, item)
		}
	}
	c.mu.Unlock()

	if len(changed) > 0 {
		c.notify(Change[V]{Kind: ChangeUpdated, Items: changed})
	}
	return changed
}

func (c *Collection[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[key]
	return item, ok
}

// Items returns a copy of the content in display order.
func (c *Collection[K, V]) Items() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Remove drops the entry stored under key and reports whether there was one.
func (c *Collection[K, V]) Remove(key K) bool {
	c.mu.Lock()
	item, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.notify(Change[V]{Kind: ChangeRemoved, Items: []V{item}})
	return true
}

func (c *Collection[K, V]) Count(pred func(V) bool) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, k := range c.order {
		if pred(c.items[k]) {
			n++
		}
	}
	return n
}

// Watch registers fn for every subsequent change. The returned func removes it.
func (c *Collection[K, V]) Watch(fn func(Change[V])) (cancel func()) {
	c.watchMu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.watchMu.Unlock()

	return func() {
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
	}
}

func (c *Collection[K, V]) snapshotLocked() []V {
	out := make([]V, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.items[k])
	}
	return out
}

func (c *Collection[K, V]) notify(change Change[V]) {
	c.watchMu.Lock()
	fns := make([]func(Change[V]), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
