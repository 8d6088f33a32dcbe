package dispatch

import (
	"runtime"
	"sync"
)

// TaskKind tells a running callable how it was dispatched.
type TaskKind uint8

const (
	KindNone TaskKind = iota
	KindEvent
	KindAsyncEvent
	KindScheduledEvent
	KindCycleEvent
)

func (k TaskKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindEvent:
		return "event"
	case KindAsyncEvent:
		return "async_event"
	case KindScheduledEvent:
		return "scheduled_event"
	case KindCycleEvent:
		return "cycle_event"
	default:
		return "unknown"
	}
}

// TaskContext describes the execution context of the callable currently
// running on this goroutine. A zero TaskContext means no dispatcher-managed
// task is running here.
type TaskContext struct {
	Group    TaskGroup
	Kind     TaskKind
	TaskName string
}

// IsAsync reports whether the current callable runs in a parallel stage.
// Callables seeing IsAsync() == false may treat world state as serially
// owned.
func (c TaskContext) IsAsync() bool {
	return c.Kind == KindAsyncEvent
}

// taskContexts maps goroutine id to its marker. Each entry is written only
// by its own goroutine; the map itself is shared between the dispatcher
// goroutine and pool workers.
var taskContexts sync.Map // goroutine id -> *TaskContext

// CurrentContext returns this goroutine's execution marker.
func CurrentContext() TaskContext {
	if v, ok := taskContexts.Load(goroutineID()); ok {
		return *v.(*TaskContext)
	}
	return TaskContext{}
}

// contextHere returns the mutable marker for the calling goroutine,
// creating it on first use.
func contextHere() *TaskContext {
	gid := goroutineID()
	if v, ok := taskContexts.Load(gid); ok {
		return v.(*TaskContext)
	}
	c := &TaskContext{}
	taskContexts.Store(gid, c)
	return c
}

func (c *TaskContext) set(group TaskGroup, kind TaskKind, name string) {
	c.Group = group
	c.Kind = kind
	c.TaskName = name
}

func (c *TaskContext) reset() {
	*c = TaskContext{}
}

// goroutineID parses the current goroutine's id out of the runtime.Stack
// header ("goroutine N [running]: ...").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
