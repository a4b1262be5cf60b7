package disasm_test

import (
	"context"
	"testing"

	"github.com/hexwalker/vertex/disasm"
	"github.com/hexwalker/vertex/plugin"
	"github.com/hexwalker/vertex/plugin/mockplugin"
)

func newWindow(t *testing.T) *disasm.Window {
	t.Helper()
	proc := mockplugin.NewProcess()
	gw := plugin.NewGateway(proc.VTable())
	return disasm.New(gw)
}

func TestWindow_DisassembleAtCapsAt500Lines(t *testing.T) {
	w := newWindow(t)
	if err := w.DisassembleAt(context.Background(), 0x8000); err != nil {
		t.Fatalf("DisassembleAt: %v", err)
	}
	lines := w.Lines()
	// 4096 bytes / 4-byte instructions = 1024 possible, capped to 500.
	if len(lines) != 500 {
		t.Fatalf("len(lines) = %d, want 500", len(lines))
	}
	if lines[0].Address != 0x8000 {
		t.Errorf("first line address = %#x, want 0x8000", lines[0].Address)
	}
	for i := 1; i < len(lines); i++ {
		if lines[i].Address <= lines[i-1].Address {
			t.Fatalf("lines not strictly ascending at %d", i)
		}
	}
}

func TestWindow_IndexOfMatchesLines(t *testing.T) {
	w := newWindow(t)
	if err := w.DisassembleAt(context.Background(), 0x8000); err != nil {
		t.Fatalf("DisassembleAt: %v", err)
	}
	lines := w.Lines()
	idx, ok := w.IndexOf(lines[10].Address)
	if !ok || idx != 10 {
		t.Errorf("IndexOf(%#x) = (%d, %v), want (10, true)", lines[10].Address, idx, ok)
	}
	if _, ok := w.IndexOf(0xDEADBEEF); ok {
		t.Error("IndexOf should miss an address never decoded")
	}
}

func TestWindow_ExtendDownAppendsPastEnd(t *testing.T) {
	w := newWindow(t)
	if err := w.DisassembleAt(context.Background(), 0x8000); err != nil {
		t.Fatalf("DisassembleAt: %v", err)
	}
	_, end, ok := w.Range()
	if !ok {
		t.Fatal("expected a non-empty range")
	}

	if err := w.ExtendDown(context.Background(), 64); err != nil {
		t.Fatalf("ExtendDown: %v", err)
	}
	_, newEnd, _ := w.Range()
	if newEnd <= end {
		t.Errorf("ExtendDown should grow the window end, got %#x -> %#x", end, newEnd)
	}
}

func TestWindow_ExtendUpPrependsBeforeStart(t *testing.T) {
	w := newWindow(t)
	if err := w.DisassembleAt(context.Background(), 0x8100); err != nil {
		t.Fatalf("DisassembleAt: %v", err)
	}
	start, _, ok := w.Range()
	if !ok {
		t.Fatal("expected a non-empty range")
	}

	if err := w.ExtendUp(context.Background(), 64); err != nil {
		t.Fatalf("ExtendUp: %v", err)
	}
	newStart, _, _ := w.Range()
	if newStart >= start {
		t.Errorf("ExtendUp should shrink the window start, got %#x -> %#x", start, newStart)
	}
}

func TestWindow_InRangeAndSetCurrent(t *testing.T) {
	w := newWindow(t)
	if err := w.DisassembleAt(context.Background(), 0x8000); err != nil {
		t.Fatalf("DisassembleAt: %v", err)
	}
	lines := w.Lines()
	mid := lines[len(lines)/2].Address

	if !w.InRange(mid) {
		t.Error("expected mid-window address to be InRange")
	}
	if w.InRange(0xDEADBEEF) {
		t.Error("expected an unrelated address to be out of range")
	}

	w.SetCurrent(mid)
	for _, l := range w.Lines() {
		if l.Address == mid && !l.IsCurrent {
			t.Error("expected the line at mid to be marked current")
		}
		if l.Address != mid && l.IsCurrent {
			t.Error("expected only the current line to be marked current")
		}
	}
}

func TestWindow_ExtendBeforeDisassembleAtErrors(t *testing.T) {
	w := newWindow(t)
	if err := w.ExtendUp(context.Background(), 64); err == nil {
		t.Error("expected ExtendUp on an empty window to error")
	}
	if err := w.ExtendDown(context.Background(), 64); err == nil {
		t.Error("expected ExtendDown on an empty window to error")
	}
}
