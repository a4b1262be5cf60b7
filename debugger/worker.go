package debugger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hexwalker/vertex/internal/vlog"
	"github.com/hexwalker/vertex/plugin"
)

const (
	commandQueueDepth = 32
	eventQueueDepth   = 256
)

// Worker is the single goroutine that owns the debugger command queue
// and drives the plugin's debug event loop: a long-lived goroutine
// selecting between an inbound command channel and an inbound
// plugin-event channel, publishing out to a buffered, non-blocking
// event channel so a slow subscriber can never stall the worker.
type Worker struct {
	gw  *plugin.Gateway
	bps *BreakpointRegistry
	wps *WatchpointRegistry

	cmds chan Command
	out  chan Event

	mu    sync.RWMutex
	state State

	log *slog.Logger
}

// NewWorker builds a Worker in the Detached state. Call Run in its own
// goroutine to start the command/event loop.
func NewWorker(gw *plugin.Gateway, bps *BreakpointRegistry, wps *WatchpointRegistry) *Worker {
	return &Worker{
		gw:    gw,
		bps:   bps,
		wps:   wps,
		cmds:  make(chan Command, commandQueueDepth),
		out:   make(chan Event, eventQueueDepth),
		state: StateDetached,
		log:   vlog.For("debugger"),
	}
}

// Submit enqueues a command without blocking the caller. If the queue
// is full the command is dropped and logged; commands never block the
// UI thread.
func (w *Worker) Submit(cmd Command) {
	select {
	case w.cmds <- cmd:
	default:
		w.log.Warn("command queue full, dropping command", "kind", cmd.Kind)
	}
}

// Events returns the channel subscribers read emitted events from.
func (w *Worker) Events() <-chan Event { return w.out }

// State reports the worker's current state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Run drives the command/event loop until ctx is cancelled. Callers
// invoke it as `go worker.Run(ctx)`.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.cmds:
			w.handleCommand(ctx, cmd)
		case ev, ok := <-w.gw.DebugEvents():
			if !ok {
				return
			}
			w.handlePluginEvent(ev)
		}
	}
}

func (w *Worker) handleCommand(ctx context.Context, cmd Command) {
	st := w.State()

	switch cmd.Kind {
	case CmdAttach:
		// Non-re-entrant: a second Attach while already attached is
		// silently discarded.
		if st != StateDetached {
			return
		}
		if err := w.gw.DebuggerAttach(ctx); err != nil {
			w.emitError(fmt.Sprintf("attach failed: %v", err))
			w.transition(st, StateDetached)
			return
		}
		w.transition(st, StateAttached)

	case CmdDetach:
		if !canDetach(st) {
			return
		}
		if err := w.gw.DebuggerDetach(ctx); err != nil {
			w.emitError(fmt.Sprintf("detach failed: %v", err))
		}
		w.bps.clear()
		w.wps.clear()
		w.transition(st, StateDetached)

	case CmdContinue:
		if !canContinue(st) {
			return
		}
		if err := w.gw.DebuggerContinue(ctx, false); err != nil {
			w.emitError(fmt.Sprintf("continue failed: %v", err))
			return
		}
		w.transition(st, StateRunning)

	case CmdPause:
		if !canPause(st) {
			return
		}
		if err := w.gw.DebuggerPause(ctx); err != nil {
			w.emitError(fmt.Sprintf("pause failed: %v", err))
			return
		}
		w.transition(st, StatePaused)

	case CmdStepInto, CmdStepOver, CmdStepOut:
		if !canStep(st) {
			return
		}
		if err := w.gw.DebuggerStep(ctx, stepModeFor(cmd.Kind)); err != nil {
			w.emitError(fmt.Sprintf("step failed: %v", err))
			return
		}
		w.transition(st, StateStepping)

	case CmdRunToAddress:
		if !canContinue(st) {
			return
		}
		if err := w.gw.DebuggerRunToAddress(ctx, cmd.Address); err != nil {
			w.emitError(fmt.Sprintf("run to address failed: %v", err))
			return
		}
		w.transition(st, StateRunning)
	}
}

func stepModeFor(k CommandKind) plugin.StepMode {
	switch k {
	case CmdStepOver:
		return plugin.StepOver
	case CmdStepOut:
		return plugin.StepOut
	default:
		return plugin.StepInto
	}
}

// handlePluginEvent translates a plugin-originated debug event into a
// state transition plus an outbound Event.
func (w *Worker) handlePluginEvent(ev plugin.DebugEvent) {
	st := w.State()

	switch ev.Kind {
	case plugin.EventBreakpointHit:
		w.bps.recordHit(ev.Address)
		w.transition(st, StateBreakpointHit)
		w.emit(Event{Kind: EventBreakpointHit, BreakpointID: ev.BreakpointID, Address: ev.Address, ThreadID: ev.ThreadID})

	case plugin.EventWatchpointHit:
		w.wps.recordHit(ev.WatchpointID, ev.AccessorIP)
		w.transition(st, StatePaused)
		w.emit(Event{Kind: EventWatchpointHit, WatchpointID: ev.WatchpointID, AccessorIP: ev.AccessorIP, ThreadID: ev.ThreadID})

	case plugin.EventException:
		w.transition(st, StateException)
		w.emit(Event{Kind: EventException, Code: ev.Code, Address: ev.Address, ThreadID: ev.ThreadID})

	case plugin.EventModuleLoaded:
		w.emit(Event{Kind: EventModuleLoaded, Text: ev.Text, Address: ev.Address})

	case plugin.EventModuleUnloaded:
		w.emit(Event{Kind: EventModuleUnloaded, Text: ev.Text, Address: ev.Address})

	case plugin.EventThreadCreated:
		w.emit(Event{Kind: EventThreadCreated, ThreadID: ev.ThreadID})

	case plugin.EventThreadExited:
		w.emit(Event{Kind: EventThreadExited, ThreadID: ev.ThreadID})

	case plugin.EventProcessExited:
		w.bps.clear()
		w.wps.clear()
		w.transition(st, StateDetached)
		w.emit(Event{Kind: EventProcessExited, ExitCode: ev.ExitCode})

	case plugin.EventOutputString:
		w.emit(Event{Kind: EventOutputString, Text: ev.Text})
	}
}

func (w *Worker) transition(old, new State) {
	w.mu.Lock()
	w.state = new
	w.mu.Unlock()
	w.log.Debug("state transition", "from", old, "to", new)
	w.emit(Event{Kind: EventStateChanged, OldState: old, NewState: new})
}

func (w *Worker) emitError(msg string) {
	w.log.Warn("debugger command failed", "error", msg)
	w.emit(Event{Kind: EventError, Text: msg})
}

// emit is a non-blocking send: a slow or absent subscriber drops the
// event rather than stalling the worker goroutine.
func (w *Worker) emit(ev Event) {
	select {
	case w.out <- ev:
	default:
		w.log.Warn("event queue full, dropping event", "kind", ev.Kind)
	}
}
