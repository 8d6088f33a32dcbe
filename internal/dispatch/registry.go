package dispatch

import (
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// registryKey orders the scheduled set by deadline, with the id breaking
// ties so that at equal deadlines the older task fires first.
type registryKey struct {
	dueAt int64
	id    uint64
}

func registryCmp(a, b any) int {
	ka, kb := a.(registryKey), b.(registryKey)
	switch {
	case ka.dueAt < kb.dueAt:
		return -1
	case ka.dueAt > kb.dueAt:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}

// scheduledRegistry is the time-ordered set of future-due tasks plus the
// id lookup used for cancellation. The tree belongs to the dispatcher
// goroutine alone; the id map is guarded by refMu so Cancel works from any
// goroutine.
type scheduledRegistry struct {
	tree *redblacktree.Tree

	refMu sync.Mutex
	ref   map[uint64]*ScheduledTask
}

func newScheduledRegistry() *scheduledRegistry {
	return &scheduledRegistry{
		tree: redblacktree.NewWith(registryCmp),
		ref:  make(map[uint64]*ScheduledTask),
	}
}

// insert places a merged task into the ordered set. Tasks cancelled while
// still in an inbox never reach the tree.
func (r *scheduledRegistry) insert(t *ScheduledTask) {
	if t.isCancelled() {
		return
	}
	r.tree.Put(registryKey{dueAt: t.dueAt, id: t.id}, t)
}

// nextDue returns the earliest deadline in the set.
func (r *scheduledRegistry) nextDue() (int64, bool) {
	node := r.tree.Left()
	if node == nil {
		return 0, false
	}
	return node.Key.(registryKey).dueAt, true
}

// erasePrefix removes the n earliest entries.
func (r *scheduledRegistry) erasePrefix(n int) {
	for i := 0; i < n; i++ {
		node := r.tree.Left()
		if node == nil {
			return
		}
		r.tree.Remove(node.Key)
	}
}

func (r *scheduledRegistry) len() int {
	return r.tree.Size()
}

// track records a freshly submitted task under its id so it can be
// cancelled while still sitting in an inbox.
func (r *scheduledRegistry) track(t *ScheduledTask) {
	r.refMu.Lock()
	r.ref[t.id] = t
	r.refMu.Unlock()
}

// dropRef forgets a fired or discarded task. Unknown ids are a no-op.
func (r *scheduledRegistry) dropRef(id uint64) {
	r.refMu.Lock()
	delete(r.ref, id)
	r.refMu.Unlock()
}

// cancelRef latches the task and removes its id entry. The tree entry, if
// one exists, stays until the dispatcher reaches its deadline and discards
// it, so invocation remains at-most-once.
func (r *scheduledRegistry) cancelRef(id uint64) {
	r.refMu.Lock()
	if t, ok := r.ref[id]; ok {
		t.cancel()
		delete(r.ref, id)
	}
	r.refMu.Unlock()
}
