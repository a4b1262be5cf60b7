package debugger_test

import (
	"context"
	"testing"
	"time"

	"github.com/hexwalker/vertex/debugger"
	"github.com/hexwalker/vertex/plugin"
	"github.com/hexwalker/vertex/plugin/mockplugin"
)

func newWorker(t *testing.T) (*debugger.Worker, *mockplugin.Process, context.CancelFunc) {
	t.Helper()
	proc := mockplugin.NewProcess()
	gw := plugin.NewGateway(proc.VTable())
	w := debugger.NewWorker(gw, debugger.NewBreakpointRegistry(), debugger.NewWatchpointRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	return w, proc, cancel
}

func waitForEvent(t *testing.T, w *debugger.Worker, kind debugger.EventKind) debugger.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func waitForState(t *testing.T, w *debugger.Worker, want debugger.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for w.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state %v, have %v", want, w.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWorker_AttachTransitionsToAttached(t *testing.T) {
	w, _, cancel := newWorker(t)
	defer cancel()

	if w.State() != debugger.StateDetached {
		t.Fatalf("initial state = %v, want Detached", w.State())
	}

	w.Submit(debugger.Attach())
	waitForState(t, w, debugger.StateAttached)
}

func TestWorker_AttachIsNonReentrant(t *testing.T) {
	w, _, cancel := newWorker(t)
	defer cancel()

	w.Submit(debugger.Attach())
	waitForState(t, w, debugger.StateAttached)

	// A second Attach while already attached is discarded: submit a
	// Continue right after and confirm it's the Continue transition
	// that lands, not a stray re-attach.
	w.Submit(debugger.Attach())
	w.Submit(debugger.Continue())
	waitForState(t, w, debugger.StateRunning)
}

func TestWorker_FullLifecycleToDetach(t *testing.T) {
	w, _, cancel := newWorker(t)
	defer cancel()

	w.Submit(debugger.Attach())
	waitForState(t, w, debugger.StateAttached)

	w.Submit(debugger.Continue())
	waitForState(t, w, debugger.StateRunning)

	w.Submit(debugger.Pause())
	waitForState(t, w, debugger.StatePaused)

	w.Submit(debugger.StepInto())
	waitForState(t, w, debugger.StateStepping)

	w.Submit(debugger.Detach())
	waitForState(t, w, debugger.StateDetached)
}

func TestWorker_BreakpointHitIncrementsRegistryAndEmitsEvent(t *testing.T) {
	proc := mockplugin.NewProcess()
	gw := plugin.NewGateway(proc.VTable())
	reg := debugger.NewBreakpointRegistry()
	w := debugger.NewWorker(gw, reg, debugger.NewWatchpointRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	ctrl := debugger.NewBreakpointController(gw, reg)
	bp, err := ctrl.Set(context.Background(), 0x8000, plugin.BreakpointExecute)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	w.Submit(debugger.Attach())
	waitForState(t, w, debugger.StateAttached)
	w.Submit(debugger.Continue())
	waitForState(t, w, debugger.StateRunning)

	proc.PushEvent(plugin.DebugEvent{Kind: plugin.EventBreakpointHit, BreakpointID: bp.ID, Address: 0x8000, ThreadID: 1})

	ev := waitForEvent(t, w, debugger.EventBreakpointHit)
	if ev.BreakpointID != bp.ID || ev.Address != 0x8000 {
		t.Errorf("unexpected breakpoint-hit event: %+v", ev)
	}
	waitForState(t, w, debugger.StateBreakpointHit)

	if got := reg.ByAddress(0x8000); got == nil || got.HitCount != 1 {
		t.Errorf("expected hit count 1, got %+v", got)
	}
}

func TestWorker_ProcessExitedReturnsToDetached(t *testing.T) {
	w, proc, cancel := newWorker(t)
	defer cancel()

	w.Submit(debugger.Attach())
	waitForState(t, w, debugger.StateAttached)
	w.Submit(debugger.Continue())
	waitForState(t, w, debugger.StateRunning)

	proc.PushEvent(plugin.DebugEvent{Kind: plugin.EventProcessExited, ExitCode: 0})

	waitForEvent(t, w, debugger.EventProcessExited)
	waitForState(t, w, debugger.StateDetached)
}
