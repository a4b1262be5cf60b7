package debugger_test

import (
	"context"
	"testing"

	"github.com/hexwalker/vertex/debugger"
	"github.com/hexwalker/vertex/plugin"
	"github.com/hexwalker/vertex/plugin/mockplugin"
)

func newBreakpointController(t *testing.T) (*debugger.BreakpointController, *debugger.BreakpointRegistry) {
	t.Helper()
	proc := mockplugin.NewProcess()
	gw := plugin.NewGateway(proc.VTable())
	reg := debugger.NewBreakpointRegistry()
	return debugger.NewBreakpointController(gw, reg), reg
}

func TestBreakpointController_SetRegistersUnderPluginID(t *testing.T) {
	ctrl, reg := newBreakpointController(t)
	ctx := context.Background()

	bp, err := ctrl.Set(ctx, 0x8000, plugin.BreakpointExecute)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if bp.ID == 0 {
		t.Fatal("expected a nonzero plugin-assigned id")
	}
	if got := reg.ByAddress(0x8000); got == nil || got.ID != bp.ID {
		t.Fatal("breakpoint not registered by address")
	}
	if got := reg.ByID(bp.ID); got == nil || got.Address != 0x8000 {
		t.Fatal("breakpoint not registered by id")
	}
	if !reg.HasBreakpointAt(0x8000) {
		t.Error("HasBreakpointAt should be true")
	}
}

func TestBreakpointController_RemoveClearsBothIndexes(t *testing.T) {
	ctrl, reg := newBreakpointController(t)
	ctx := context.Background()

	bp, err := ctrl.Set(ctx, 0x8004, plugin.BreakpointExecute)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := ctrl.Remove(ctx, bp.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if reg.ByID(bp.ID) != nil {
		t.Error("breakpoint still present by id after remove")
	}
	if reg.HasBreakpointAt(0x8004) {
		t.Error("breakpoint still present by address after remove")
	}
}

func TestBreakpointController_RemoveUnknownIDErrors(t *testing.T) {
	ctrl, _ := newBreakpointController(t)
	if err := ctrl.Remove(context.Background(), 999); err == nil {
		t.Error("expected an error removing an unregistered id")
	}
}

func TestBreakpointController_ToggleAtAddsThenRemoves(t *testing.T) {
	ctrl, reg := newBreakpointController(t)
	ctx := context.Background()

	added, err := ctrl.ToggleAt(ctx, 0x8008)
	if err != nil {
		t.Fatalf("ToggleAt (add): %v", err)
	}
	if !added {
		t.Fatal("expected first toggle to add a breakpoint")
	}
	if !reg.HasBreakpointAt(0x8008) {
		t.Fatal("breakpoint not present after add toggle")
	}

	added, err = ctrl.ToggleAt(ctx, 0x8008)
	if err != nil {
		t.Fatalf("ToggleAt (remove): %v", err)
	}
	if added {
		t.Error("expected second toggle to remove the breakpoint")
	}
	if reg.HasBreakpointAt(0x8008) {
		t.Error("breakpoint still present after remove toggle")
	}
}

func TestBreakpointController_SetEnabledUpdatesState(t *testing.T) {
	ctrl, reg := newBreakpointController(t)
	ctx := context.Background()

	bp, err := ctrl.Set(ctx, 0x800C, plugin.BreakpointExecute)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := ctrl.SetEnabled(ctx, bp.ID, false); err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}
	if reg.ByID(bp.ID).State != debugger.BreakpointDisabled {
		t.Error("expected Disabled state")
	}
	if err := ctrl.SetEnabled(ctx, bp.ID, true); err != nil {
		t.Fatalf("SetEnabled(true): %v", err)
	}
	if reg.ByID(bp.ID).State != debugger.BreakpointEnabled {
		t.Error("expected Enabled state")
	}
}

func TestBreakpointRegistry_AllAndCount(t *testing.T) {
	ctrl, reg := newBreakpointController(t)
	ctx := context.Background()

	if _, err := ctrl.Set(ctx, 0x8010, plugin.BreakpointExecute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := ctrl.Set(ctx, 0x8014, plugin.BreakpointWrite); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if reg.Count() != 2 {
		t.Errorf("Count() = %d, want 2", reg.Count())
	}
	if len(reg.All()) != 2 {
		t.Errorf("len(All()) = %d, want 2", len(reg.All()))
	}
}
