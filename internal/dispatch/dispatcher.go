// Package dispatch is the task dispatcher at the heart of the game server:
// a single-consumer loop that serializes all world-state mutation, with a
// bounded parallel fan-out stage for CPU-heavy batches, fed by per-goroutine
// submission inboxes and a time-ordered scheduled-task registry.
package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zevecom/canary/internal/pool"
)

// Dispatcher owns the tick loop. Exactly one goroutine (started by Start)
// mutates the dispatcher-local task arrays and the registry's ordered set;
// producers on any goroutine only touch their own inbox and the wake
// channel.
type Dispatcher struct {
	log     *slog.Logger
	metrics *Metrics
	pool    *pool.Pool
	clock   *Clock

	inboxes  *inboxSet
	tasks    [groupLast][]*Task
	registry *scheduledRegistry

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	cycle        atomic.Uint64
	currentTick  atomic.Uint64
	inlineFanout atomic.Bool

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a dispatcher over the given worker pool. A nil logger falls
// back to slog.Default(); nil metrics disable instrumentation.
func New(p *pool.Pool, logger *slog.Logger, m *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		log:      logger,
		metrics:  m,
		pool:     p,
		clock:    NewClock(),
		inboxes:  newInboxSet(),
		registry: newScheduledRegistry(),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.started.Store(true)
		go d.loop()
	})
}

// Stop signals the loop and waits for it to exit. Tasks already merged
// into the current tick still run.
func (d *Dispatcher) Stop() {
	if !d.started.Load() {
		return
	}
	d.stopOnce.Do(func() {
		close(d.stop)
		<-d.done
	})
}

// Ready reports whether the first tick has refreshed the clock.
func (d *Dispatcher) Ready() bool {
	return d.clock.Ready()
}

// Cycle returns the count of successfully executed serial tasks.
func (d *Dispatcher) Cycle() uint64 {
	return d.cycle.Load()
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	d.log.Debug("dispatcher started", "workers", d.poolWorkers())

	for {
		select {
		case <-d.stop:
			d.log.Debug("dispatcher stopped", "ticks", d.currentTick.Load())
			return
		default:
		}

		d.currentTick.Add(1)
		start := time.Now()
		d.clock.Refresh()

		d.executeEvents(GroupSerial)
		d.executeScheduledEvents()
		pending := d.mergeEvents()

		if d.metrics != nil {
			d.metrics.TickDuration.Observe(float64(time.Since(start).Milliseconds()))
			d.metrics.ScheduledPending.Set(float64(d.registry.len()))
		}

		if pending {
			continue
		}
		d.waitNext()
	}
}

func (d *Dispatcher) poolWorkers() int {
	if d.pool == nil {
		return 0
	}
	return d.pool.Workers()
}

// waitNext blocks until the next scheduled deadline, a wake signal, or
// shutdown. With an empty registry there is no timeout ceiling.
func (d *Dispatcher) waitNext() {
	due, ok := d.registry.nextDue()
	if !ok {
		select {
		case <-d.wake:
		case <-d.stop:
		}
		return
	}

	delay := due - d.clock.Now()
	if delay < 0 {
		delay = 0
	}
	timer := time.NewTimer(time.Duration(delay) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-d.wake:
	case <-timer.C:
	case <-d.stop:
	}
}

// notify wakes the loop. Wakes are level-triggered in effect: the buffered
// channel coalesces them, and the loop re-evaluates pending work after
// every merge, so a lost wake is harmless.
func (d *Dispatcher) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// executeEvents runs the staged execution from the given group upward.
// An empty serial array ends the pass (the scheduled stage re-runs the
// parallel groups each tick); an empty parallel group is skipped so later
// groups still drain.
func (d *Dispatcher) executeEvents(start TaskGroup) {
	for g := start; g < groupLast; g++ {
		if g == GroupSerial {
			if len(d.tasks[g]) == 0 {
				return
			}
			d.executeSerialEvents()
			// serial work frequently posts async follow-ups that
			// belong to this same tick
			d.mergeAsyncEvents()
			continue
		}
		if len(d.tasks[g]) == 0 {
			continue
		}
		d.executeParallelEvents(g)
	}
}

func (d *Dispatcher) executeSerialEvents() {
	tasks := d.tasks[GroupSerial]
	d.tasks[GroupSerial] = nil

	ctx := contextHere()
	now := d.clock.Now()
	for _, t := range tasks {
		if t.expired(now) {
			if d.metrics != nil {
				d.metrics.TasksExpired.Inc()
			}
			continue
		}
		ctx.set(GroupSerial, KindEvent, t.name)
		if t.execute(d.log) {
			d.cycle.Add(1)
			if d.metrics != nil {
				d.metrics.TasksExecuted.WithLabelValues(GroupSerial.String()).Inc()
			}
		}
	}
	ctx.reset()
}

func (d *Dispatcher) executeParallelEvents(g TaskGroup) {
	tasks := d.tasks[g]
	d.tasks[g] = nil

	d.AsyncWait(len(tasks), func(i int) {
		ctx := contextHere()
		ctx.set(g, KindAsyncEvent, tasks[i].name)
		tasks[i].execute(d.log)
		ctx.reset()
	})

	if d.metrics != nil {
		d.metrics.TasksExecuted.WithLabelValues(g.String()).Add(float64(len(tasks)))
	}
}

// executeScheduledEvents fires every task whose deadline has passed, in
// (dueAt, id) order. Cycle tasks that ran re-arm through the loop
// goroutine's own inbox rather than straight into the tree, which keeps a
// burst of same-deadline cycles linear. Async work posted by the callbacks
// runs within this same tick.
func (d *Dispatcher) executeScheduledEvents() {
	now := d.clock.Now()
	own := d.inboxes.current()
	ctx := contextHere()

	fired := 0
	it := d.registry.tree.Iterator()
	for it.Next() {
		t := it.Value().(*ScheduledTask)
		if t.dueAt > now {
			break
		}
		fired++

		if t.isCancelled() {
			d.registry.dropRef(t.id)
			if d.metrics != nil {
				d.metrics.TasksDropped.Inc()
			}
			continue
		}

		kind := KindScheduledEvent
		if t.cycle {
			kind = KindCycleEvent
		}
		ctx.set(GroupSerial, kind, t.name)

		if t.execute(d.log) && t.cycle {
			t.advance()
			own.pushScheduled(t)
		} else {
			d.registry.dropRef(t.id)
		}
		if d.metrics != nil {
			d.metrics.TasksExecuted.WithLabelValues("scheduled").Inc()
		}
	}
	if fired > 0 {
		d.registry.erasePrefix(fired)
	}
	ctx.reset()

	d.mergeAsyncEvents()
	d.executeEvents(GroupGenericParallel)
}

// mergeEvents drains every inbox completely: all groups plus scheduled
// tasks. Each inbox is locked on its own, never all at once. Reports
// whether any group has work pending afterwards, in which case the loop
// skips sleeping.
func (d *Dispatcher) mergeEvents() bool {
	for _, in := range d.inboxes.snapshot() {
		in.mu.Lock()
		for g := TaskGroup(0); g < groupLast; g++ {
			d.stealTasks(in, g)
		}
		for _, t := range in.scheduled {
			d.registry.insert(t)
		}
		in.scheduled = nil
		in.mu.Unlock()
	}

	for g := TaskGroup(0); g < groupLast; g++ {
		if len(d.tasks[g]) > 0 {
			return true
		}
	}
	return false
}

// mergeAsyncEvents drains only the parallel groups. Serial work posted
// mid-tick must not race into this tick's serial stage, so it stays in the
// inboxes until the full end-of-tick merge.
func (d *Dispatcher) mergeAsyncEvents() {
	for _, in := range d.inboxes.snapshot() {
		in.mu.Lock()
		for g := GroupGenericParallel; g < groupLast; g++ {
			d.stealTasks(in, g)
		}
		in.mu.Unlock()
	}
}

// stealTasks moves one inbox group into the dispatcher array. The caller
// holds the inbox lock. When the dispatcher side is empty the backing
// array changes hands without a copy.
func (d *Dispatcher) stealTasks(in *inbox, g TaskGroup) {
	if len(in.tasks[g]) == 0 {
		return
	}
	if len(d.tasks[g]) == 0 {
		d.tasks[g], in.tasks[g] = in.tasks[g], nil
		return
	}
	d.tasks[g] = append(d.tasks[g], in.tasks[g]...)
	in.tasks[g] = nil
}

// Post appends a serial task to the calling goroutine's inbox and wakes
// the loop. It runs in a later tick, one at a time, on the loop goroutine.
func (d *Dispatcher) Post(fn func(), name string) {
	d.PostExpiring(fn, name, 0)
}

// PostExpiring is Post with a relative deadline: if the task is reached
// more than expiresAfter past submission it is dropped without invocation.
// Zero means no expiry.
func (d *Dispatcher) PostExpiring(fn func(), name string, expiresAfter time.Duration) {
	t := newTask(d.clock.Now(), expiresAfter.Milliseconds(), fn, name)
	d.inboxes.current().push(GroupSerial, t)
	d.notify()
}

// PostAsync appends a task under the given parallel group. Called from
// inside a running task it adopts that task's context label. Async work
// posted from a serial or timer callback runs in the same tick's parallel
// stage.
func (d *Dispatcher) PostAsync(fn func(), group TaskGroup) {
	if group == GroupSerial || group >= groupLast {
		group = GroupGenericParallel
	}
	t := newTask(d.clock.Now(), 0, fn, CurrentContext().TaskName)
	d.inboxes.current().push(group, t)
	d.notify()
}

// Schedule registers fn to run after period, returning the cancellation
// id. Cycle tasks re-arm every period until cancelled.
func (d *Dispatcher) Schedule(period time.Duration, fn func(), name string, cycle bool) uint64 {
	t := newScheduledTask(d.clock.Now(), period.Milliseconds(), fn, name, cycle)
	d.registry.track(t)
	d.inboxes.current().pushScheduled(t)
	d.notify()
	return t.id
}

// Cancel latches the scheduled task off. Safe from any goroutine; an
// unknown id (already fired, or never existed) is a no-op.
func (d *Dispatcher) Cancel(id uint64) {
	d.registry.cancelRef(id)
}

// TryPost runs fn inline when the calling context is not async (already
// serial on the loop goroutine, or plain caller code), otherwise posts it.
// Call sites keep serial semantics regardless of where they run.
func (d *Dispatcher) TryPost(fn func(), name string) {
	if fn == nil {
		return
	}
	if CurrentContext().IsAsync() {
		d.Post(fn, name)
		return
	}
	fn()
}
