package plugin_test

import (
	"context"
	"testing"

	"github.com/hexwalker/vertex/plugin"
	"github.com/hexwalker/vertex/plugin/mockplugin"
	"github.com/hexwalker/vertex/vxerr"
)

func TestGateway_NoPluginLoaded(t *testing.T) {
	gw := plugin.NewGateway(nil)

	if gw.Active() {
		t.Error("Active should be false with a nil vtable")
	}

	err := gw.OpenProcess(context.Background(), 123)
	if !vxerr.Is(err, vxerr.KindPluginNotActive) {
		t.Errorf("expected KindPluginNotActive, got %v", err)
	}
}

func TestGateway_ReadWriteMemory(t *testing.T) {
	proc := mockplugin.NewProcess()
	gw := plugin.NewGateway(proc.VTable())

	if !gw.Active() {
		t.Fatal("gateway should be active with a mock vtable")
	}

	addr := uint64(0x00020000)
	if err := gw.WriteMemory(context.Background(), addr, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteMemory failed: %v", err)
	}

	out := make([]byte, 4)
	n, err := gw.ReadMemory(context.Background(), addr, out)
	if err != nil {
		t.Fatalf("ReadMemory failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 bytes read, got %d", n)
	}
	if out[0] != 1 || out[3] != 4 {
		t.Errorf("unexpected memory contents: %v", out)
	}
}

func TestGateway_WriteMemoryDeniedOnExecuteOnlySegment(t *testing.T) {
	proc := mockplugin.NewProcess()
	gw := plugin.NewGateway(proc.VTable())

	err := gw.WriteMemory(context.Background(), 0x00008000, []byte{0xFF})
	if !vxerr.Is(err, vxerr.KindMemoryWrite) {
		t.Errorf("expected KindMemoryWrite, got %v", err)
	}
}

func TestGateway_MissingCapability(t *testing.T) {
	proc := mockplugin.NewProcess()
	vt := proc.VTable()
	vt.WriteProcessMemory = nil
	gw := plugin.NewGateway(vt)

	if gw.Features().Has(plugin.FeatureMemoryWrite) {
		t.Error("FeatureMemoryWrite should be unset after nilling WriteProcessMemory")
	}

	err := gw.WriteMemory(context.Background(), 0x00020000, []byte{1})
	if !vxerr.Is(err, vxerr.KindPluginFunctionMissing) {
		t.Errorf("expected KindPluginFunctionMissing, got %v", err)
	}
}

func TestGateway_BreakpointRoundTrip(t *testing.T) {
	proc := mockplugin.NewProcess()
	gw := plugin.NewGateway(proc.VTable())
	ctx := context.Background()

	id, err := gw.SetBreakpoint(ctx, 0x00008100, plugin.BreakpointExecute)
	if err != nil {
		t.Fatalf("SetBreakpoint failed: %v", err)
	}

	if err := gw.EnableBreakpoint(ctx, id, false); err != nil {
		t.Fatalf("EnableBreakpoint failed: %v", err)
	}

	if err := gw.RemoveBreakpoint(ctx, id); err != nil {
		t.Fatalf("RemoveBreakpoint failed: %v", err)
	}

	if err := gw.RemoveBreakpoint(ctx, id); err == nil {
		t.Error("expected error removing an already-removed breakpoint")
	}
}

func TestGateway_RegistersRoundTrip(t *testing.T) {
	proc := mockplugin.NewProcess()
	gw := plugin.NewGateway(proc.VTable())
	ctx := context.Background()

	tid, err := gw.CurrentThread(ctx)
	if err != nil {
		t.Fatalf("CurrentThread failed: %v", err)
	}

	regs, err := gw.Registers(ctx, tid)
	if err != nil {
		t.Fatalf("Registers failed: %v", err)
	}
	if _, ok := regs["pc"]; !ok {
		t.Error("expected a pc register in the snapshot")
	}
}

func TestGateway_AddressRange(t *testing.T) {
	proc := mockplugin.NewProcess()
	gw := plugin.NewGateway(proc.VTable())

	lo, hi, err := gw.AddressRange(context.Background())
	if err != nil {
		t.Fatalf("AddressRange failed: %v", err)
	}
	if lo == 0 || hi <= lo {
		t.Errorf("unexpected address range [0x%X, 0x%X)", lo, hi)
	}
}

func TestFeatures_Missing(t *testing.T) {
	proc := mockplugin.NewProcess()
	vt := proc.VTable()
	vt.SetWatchpoint = nil
	gw := plugin.NewGateway(vt)

	missing := gw.Features().Missing()
	found := false
	for _, m := range missing {
		if m == "watchpoints" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected \"watchpoints\" in Missing(), got %v", missing)
	}
}
