// Package dispatch is the named-channel thread dispatcher: one thread
// (or worker pool, or the main thread in single-thread mode) per
// concern, so a stuck plugin call on one channel can never stall
// another. Channels are a general-purpose named registry any subsystem
// can ask for work on, built on the same reader-owns-its-writer pool
// shape the scan pipeline uses for its reader pool.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hexwalker/vertex/vxerr"
)

// ChannelName identifies one dispatch channel.
type ChannelName string

const (
	ChannelFreeze         ChannelName = "freeze"
	ChannelDebuggerWorker ChannelName = "debugger-worker"
	ChannelSymbolLoad     ChannelName = "symbol-load"
)

// ReaderPool names the i'th scan reader's dispatch channel.
func ReaderPool(i int) ChannelName {
	return ChannelName(fmt.Sprintf("reader-pool-%d", i))
}

// Status is a dispatch attempt's outcome.
type Status int

const (
	StatusOK Status = iota
	StatusBusy
	StatusUnknownChannel
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBusy:
		return "busy"
	case StatusUnknownChannel:
		return "unknown-channel"
	default:
		return "unknown"
	}
}

// Task is one unit of work handed to a channel.
type Task func(ctx context.Context) error

// Future resolves to a dispatched Task's error once it has run.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the task completes or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type taskItem struct {
	task Task
	fut  *Future
}

type channelKind int

const (
	kindSingle channelKind = iota
	kindPool
	kindMainThread
)

const queueCapacity = 16

type channel struct {
	kind ChannelName
	k    channelKind

	queue chan taskItem // kindSingle

	workers   []chan taskItem // kindPool
	nextIdx   atomic.Uint32
	busyCount atomic.Int32

	busy atomic.Bool // kindSingle

	stop chan struct{}
}

// Dispatcher owns the named-channel registry. In single-thread mode
// every channel folds onto a shared main-thread queue that something
// external (a CLI command loop, a TUI tick) drains with DrainMain.
// The plugin's declared feature flag determines single-thread mode at
// startup.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[ChannelName]*channel

	singleThreadMode bool
	mainQueue        chan taskItem
	mainBusy         atomic.Bool
}

// New builds a Dispatcher. singleThreadMode mirrors the plugin's
// declared feature flag.
func New(singleThreadMode bool) *Dispatcher {
	d := &Dispatcher{
		channels:         make(map[ChannelName]*channel),
		singleThreadMode: singleThreadMode,
	}
	if singleThreadMode {
		d.mainQueue = make(chan taskItem, 256)
	}
	return d
}

// CreateChannel registers name as a single-worker channel backed by
// its own goroutine, or folds it onto the main thread in
// single-thread mode.
func (d *Dispatcher) CreateChannel(name ChannelName) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.channels[name]; exists {
		return vxerr.New(vxerr.KindInvalidParameter, "dispatch.CreateChannel", "channel already exists")
	}

	if d.singleThreadMode {
		d.channels[name] = &channel{kind: name, k: kindMainThread}
		return nil
	}

	ch := &channel{kind: name, k: kindSingle, queue: make(chan taskItem, queueCapacity), stop: make(chan struct{})}
	d.channels[name] = ch
	go d.runSingle(ch)
	return nil
}

// CreateWorkerPool registers name as a fixed-size pool of n workers,
// or folds it onto the main thread in single-thread mode (n is then
// ignored).
func (d *Dispatcher) CreateWorkerPool(name ChannelName, n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.channels[name]; exists {
		return vxerr.New(vxerr.KindInvalidParameter, "dispatch.CreateWorkerPool", "channel already exists")
	}
	if n <= 0 {
		return vxerr.New(vxerr.KindInvalidParameter, "dispatch.CreateWorkerPool", "pool size must be positive")
	}

	if d.singleThreadMode {
		d.channels[name] = &channel{kind: name, k: kindMainThread}
		return nil
	}

	ch := &channel{kind: name, k: kindPool, stop: make(chan struct{}), workers: make([]chan taskItem, n)}
	for i := range ch.workers {
		ch.workers[i] = make(chan taskItem, queueCapacity)
		go d.runPoolWorker(ch, ch.workers[i])
	}
	d.channels[name] = ch
	return nil
}

// DestroyWorkerPool stops and removes a pool channel created by
// CreateWorkerPool.
func (d *Dispatcher) DestroyWorkerPool(name ChannelName) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.channels[name]
	if !ok {
		return vxerr.New(vxerr.KindInvalidParameter, "dispatch.DestroyWorkerPool", "no such channel")
	}
	if ch.k == kindPool {
		close(ch.stop)
	}
	delete(d.channels, name)
	return nil
}

func (d *Dispatcher) lookup(name ChannelName) (*channel, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[name]
	if !ok {
		return nil, vxerr.New(vxerr.KindInvalidParameter, "dispatch", "unknown channel "+string(name))
	}
	return ch, nil
}

// Dispatch enqueues task on name and returns a Future for its result.
// It may block if the channel's queue is full; callers that must
// never block use DispatchFireAndForget instead.
func (d *Dispatcher) Dispatch(ctx context.Context, name ChannelName, task Task) (*Future, error) {
	ch, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	fut := newFuture()
	item := taskItem{task: task, fut: fut}

	switch ch.k {
	case kindMainThread:
		select {
		case d.mainQueue <- item:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case kindPool:
		idx := int(ch.nextIdx.Add(1)-1) % len(ch.workers)
		select {
		case ch.workers[idx] <- item:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	default:
		select {
		case ch.queue <- item:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return fut, nil
}

// DispatchFireAndForget enqueues task on name without ever blocking.
// On a single-worker channel, a task already running makes it report
// StatusBusy immediately rather than queuing behind it, giving callers
// single-flight semantics: at most one task in flight plus nothing
// queued behind it. On a pool or the main-thread queue, StatusBusy
// means no worker or queue slot was free.
func (d *Dispatcher) DispatchFireAndForget(ctx context.Context, name ChannelName, task Task) Status {
	ch, err := d.lookup(name)
	if err != nil {
		return StatusUnknownChannel
	}
	item := taskItem{task: task}

	switch ch.k {
	case kindMainThread:
		select {
		case d.mainQueue <- item:
			return StatusOK
		default:
			return StatusBusy
		}
	case kindPool:
		for i := 0; i < len(ch.workers); i++ {
			idx := int(ch.nextIdx.Add(1)-1) % len(ch.workers)
			select {
			case ch.workers[idx] <- item:
				return StatusOK
			default:
			}
		}
		return StatusBusy
	default:
		if ch.busy.Load() {
			return StatusBusy
		}
		select {
		case ch.queue <- item:
			return StatusOK
		default:
			return StatusBusy
		}
	}
}

// EnqueueOnWorker targets one specific worker of a pool channel by
// index, bypassing round-robin assignment.
func (d *Dispatcher) EnqueueOnWorker(ctx context.Context, name ChannelName, workerIndex int, task Task) (*Future, error) {
	ch, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	if ch.k != kindPool {
		return nil, vxerr.New(vxerr.KindInvalidParameter, "dispatch.EnqueueOnWorker", "channel is not a worker pool")
	}
	if workerIndex < 0 || workerIndex >= len(ch.workers) {
		return nil, vxerr.New(vxerr.KindInvalidParameter, "dispatch.EnqueueOnWorker", "worker index out of range")
	}
	fut := newFuture()
	select {
	case ch.workers[workerIndex] <- taskItem{task: task, fut: fut}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return fut, nil
}

// IsChannelBusy reports whether name currently has no spare capacity:
// for a single-worker channel, a task is executing; for a pool, every
// worker is executing; in single-thread mode, the shared main queue is
// currently running a task.
func (d *Dispatcher) IsChannelBusy(name ChannelName) bool {
	ch, err := d.lookup(name)
	if err != nil {
		return false
	}
	switch ch.k {
	case kindMainThread:
		return d.mainBusy.Load()
	case kindPool:
		return int(ch.busyCount.Load()) >= len(ch.workers)
	default:
		return ch.busy.Load()
	}
}

// DrainMain runs every task currently queued on the shared main-thread
// queue (single-thread mode only) and returns how many ran. Something
// external, a CLI command loop or a TUI tick, must call this
// periodically or fire-and-forget work never executes.
func (d *Dispatcher) DrainMain(ctx context.Context) int {
	if d.mainQueue == nil {
		return 0
	}
	n := 0
	for {
		select {
		case item := <-d.mainQueue:
			d.mainBusy.Store(true)
			err := item.task(ctx)
			d.mainBusy.Store(false)
			if item.fut != nil {
				item.fut.complete(err)
			}
			n++
		default:
			return n
		}
	}
}

func (d *Dispatcher) runSingle(ch *channel) {
	for {
		select {
		case item := <-ch.queue:
			ch.busy.Store(true)
			err := item.task(context.Background())
			ch.busy.Store(false)
			if item.fut != nil {
				item.fut.complete(err)
			}
		case <-ch.stop:
			return
		}
	}
}

func (d *Dispatcher) runPoolWorker(ch *channel, q chan taskItem) {
	for {
		select {
		case item := <-q:
			ch.busyCount.Add(1)
			err := item.task(context.Background())
			ch.busyCount.Add(-1)
			if item.fut != nil {
				item.fut.complete(err)
			}
		case <-ch.stop:
			return
		}
	}
}

// FreezeAdapter satisfies monitor.FreezeDispatcher by routing freeze
// writes through a Dispatcher channel, normally ChannelFreeze.
type FreezeAdapter struct {
	D       *Dispatcher
	Channel ChannelName
}

// TryFreeze attempts a fire-and-forget dispatch of fn and reports
// whether it was accepted.
func (a FreezeAdapter) TryFreeze(fn func()) bool {
	status := a.D.DispatchFireAndForget(context.Background(), a.Channel, func(ctx context.Context) error {
		fn()
		return nil
	})
	return status == StatusOK
}
