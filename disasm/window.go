// Package disasm holds the bounded, ordered disassembly-line buffer
// around the current instruction pointer: an ordered line buffer with
// a side map for O(1) address lookup, a byte-range invariant, and a
// hard size cap instead of an unbounded instruction listing.
package disasm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hexwalker/vertex/plugin"
)

const (
	// MaxDisassemblyLines bounds the window regardless of scrolling.
	MaxDisassemblyLines = 2000
	// TrimLinesCount is trimmed from the far end on overflow.
	TrimLinesCount = 500

	disassembleAtByteCount = 4096 // 4 KiB
	disassembleAtMaxLines  = 500
)

// Line is one disassembled instruction.
type Line struct {
	Address         uint64
	RawBytes        []byte
	Mnemonic        string
	Operands        string
	BranchKind      plugin.BranchKind
	BranchTarget    uint64
	HasBranchTarget bool
	IsCurrent       bool
}

// Disassembler is the subset of the plugin gateway the window needs.
type Disassembler interface {
	Disassemble(ctx context.Context, addr uint64, byteCount uint32) ([]plugin.DecodedInstruction, error)
}

// Window is the sliding disassembly buffer. Lines are always kept in
// strictly ascending address order with addrToIndex in sync.
type Window struct {
	mu          sync.RWMutex
	d           Disassembler
	lines       []Line
	addrToIndex map[uint64]int
	current     uint64
}

// New builds an empty window over d.
func New(d Disassembler) *Window {
	return &Window{d: d, addrToIndex: make(map[uint64]int)}
}

// DisassembleAt replaces the window with up to 500 instructions
// decoded from a 4 KiB range starting at addr, and sets the current
// address.
func (w *Window) DisassembleAt(ctx context.Context, addr uint64) error {
	insns, err := w.d.Disassemble(ctx, addr, disassembleAtByteCount)
	if err != nil {
		return err
	}
	if len(insns) > disassembleAtMaxLines {
		insns = insns[:disassembleAtMaxLines]
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = addr
	w.setLines(toLines(insns, w.current))
	return nil
}

// ExtendUp decodes [start-byteCount, start) and prepends instructions
// whose address precedes the window's current start, trimming
// TrimLinesCount lines from the tail if the result overflows
// MaxDisassemblyLines.
func (w *Window) ExtendUp(ctx context.Context, byteCount uint32) error {
	w.mu.RLock()
	if len(w.lines) == 0 {
		w.mu.RUnlock()
		return fmt.Errorf("disasm: window is empty, call DisassembleAt first")
	}
	start := w.lines[0].Address
	w.mu.RUnlock()

	base := uint64(0)
	if start > uint64(byteCount) {
		base = start - uint64(byteCount)
	}

	insns, err := w.d.Disassemble(ctx, base, byteCount)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	var prefix []Line
	for _, ins := range toLines(insns, w.current) {
		if ins.Address < start {
			prefix = append(prefix, ins)
		}
	}
	merged := append(prefix, w.lines...)
	if len(merged) > MaxDisassemblyLines {
		cut := len(merged) - TrimLinesCount
		if cut < 0 {
			cut = 0
		}
		merged = merged[:cut]
	}
	w.setLines(merged)
	return nil
}

// ExtendDown decodes [end, end+byteCount) and appends instructions
// past the window's current end, trimming TrimLinesCount lines from
// the head if the result overflows MaxDisassemblyLines.
func (w *Window) ExtendDown(ctx context.Context, byteCount uint32) error {
	w.mu.RLock()
	if len(w.lines) == 0 {
		w.mu.RUnlock()
		return fmt.Errorf("disasm: window is empty, call DisassembleAt first")
	}
	last := w.lines[len(w.lines)-1]
	from := last.Address + uint64(len(last.RawBytes))
	w.mu.RUnlock()

	insns, err := w.d.Disassemble(ctx, from, byteCount)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	var suffix []Line
	for _, ins := range toLines(insns, w.current) {
		if ins.Address >= from {
			suffix = append(suffix, ins)
		}
	}
	merged := append(append([]Line(nil), w.lines...), suffix...)
	if len(merged) > MaxDisassemblyLines {
		merged = merged[TrimLinesCount:]
	}
	w.setLines(merged)
	return nil
}

// setLines installs lines (already in ascending order) and rebuilds
// the address index. Caller must hold w.mu for writing.
func (w *Window) setLines(lines []Line) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].Address < lines[j].Address })
	for i := range lines {
		lines[i].IsCurrent = lines[i].Address == w.current
	}
	w.lines = lines
	w.addrToIndex = make(map[uint64]int, len(lines))
	for i, l := range lines {
		w.addrToIndex[l.Address] = i
	}
}

// Lines returns a copy of the current window contents.
func (w *Window) Lines() []Line {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Line, len(w.lines))
	copy(out, w.lines)
	return out
}

// IndexOf is the O(1) address→index lookup backing the renderer.
func (w *Window) IndexOf(addr uint64) (int, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	idx, ok := w.addrToIndex[addr]
	return idx, ok
}

// Range reports the window's [start, end] address span. ok is false
// for an empty window.
func (w *Window) Range() (start, end uint64, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.lines) == 0 {
		return 0, 0, false
	}
	last := w.lines[len(w.lines)-1]
	return w.lines[0].Address, last.Address + uint64(len(last.RawBytes)), true
}

// InRange reports whether addr falls within the window's current
// span; callers use this to decide whether crossing the IP outside
// the window should trigger a DisassembleAt replace.
func (w *Window) InRange(addr uint64) bool {
	start, end, ok := w.Range()
	if !ok {
		return false
	}
	return addr >= start && addr < end
}

// SetCurrent marks addr as the current instruction, updating
// IsCurrent on whichever line matches (if any).
func (w *Window) SetCurrent(addr uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = addr
	for i := range w.lines {
		w.lines[i].IsCurrent = w.lines[i].Address == addr
	}
}

func toLines(insns []plugin.DecodedInstruction, current uint64) []Line {
	out := make([]Line, len(insns))
	for i, d := range insns {
		out[i] = Line{
			Address:         d.Address,
			RawBytes:        d.Raw,
			Mnemonic:        d.Mnemonic,
			Operands:        d.Operands,
			BranchKind:      d.Branch,
			BranchTarget:    d.Target,
			HasBranchTarget: d.HasTarget,
			IsCurrent:       d.Address == current,
		}
	}
	return out
}
