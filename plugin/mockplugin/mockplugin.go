// Package mockplugin is a fake target process used by tests and by
// `vertex --plugin=mock`: a fixed set of named, permissioned memory
// regions backed by plain byte slices, found by linear scan on every
// access. It has no alignment enforcement, since Vertex scans and
// patches arbitrary byte ranges, and it never panics, returning
// plugin.StatusErr instead.
package mockplugin

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/hexwalker/vertex/plugin"
)

type segment struct {
	base uint64
	data []byte
	perm plugin.Permission
	name string
}

// Process is an in-memory stand-in for a live target: a handful of
// named segments, a synthetic thread with a register file, and a
// breakpoint/watchpoint table that never actually traps since nothing
// executes here. SetBreakpoint/SetWatchpoint just record state so the
// debugger worker and registry can be exercised end to end.
type Process struct {
	mu       sync.Mutex
	segments []*segment
	valid    bool

	threadID uint32
	regs     map[string]uint64

	nextBPID uint32
	bps      map[uint32]struct{}
	nextWPID uint32
	wps      map[uint32]struct{}

	events chan plugin.DebugEvent
}

// NewProcess builds a Process with code/data/heap/stack segments
// sized down for test speed.
func NewProcess() *Process {
	p := &Process{
		valid:    true,
		threadID: 1,
		regs: map[string]uint64{
			"pc": 0x00010000, "sp": 0x00041000, "r0": 0, "r1": 0,
		},
		bps:    map[uint32]struct{}{},
		wps:    map[uint32]struct{}{},
		events: make(chan plugin.DebugEvent, 64),
	}
	p.addSegment("code", 0x00008000, 0x10000, plugin.PermRead|plugin.PermExecute)
	p.addSegment("data", 0x00020000, 0x10000, plugin.PermRead|plugin.PermWrite)
	p.addSegment("heap", 0x00030000, 0x10000, plugin.PermRead|plugin.PermWrite)
	p.addSegment("stack", 0x00040000, 0x10000, plugin.PermRead|plugin.PermWrite)
	return p
}

func (p *Process) addSegment(name string, base uint64, size int, perm plugin.Permission) {
	p.segments = append(p.segments, &segment{base: base, data: make([]byte, size), perm: perm, name: name})
}

// Poke seeds raw bytes into a segment directly, bypassing permission
// checks, for test setup.
func (p *Process) Poke(addr uint64, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seg, off, ok := p.find(addr)
	if !ok {
		return
	}
	copy(seg.data[off:], data)
}

// PushEvent injects a debug event as if the plugin's callback-driven
// loop had raised it, for exercising the debugger worker in tests.
func (p *Process) PushEvent(ev plugin.DebugEvent) {
	p.events <- ev
}

// PokeUint32 writes a little-endian uint32 value at addr via Poke.
func (p *Process) PokeUint32(addr uint64, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	p.Poke(addr, b[:])
}

func (p *Process) find(addr uint64) (*segment, uint64, bool) {
	for _, s := range p.segments {
		if addr >= s.base && addr < s.base+uint64(len(s.data)) {
			return s, addr - s.base, true
		}
	}
	return nil, 0, false
}

// VTable builds the *plugin.VTable exposing this process's surface.
// Every field is wired; mockplugin implements the full ABI so tests
// can exercise capability-gated paths by swapping in a VTable with
// fields nilled out explicitly, rather than by lacking support here.
func (p *Process) VTable() *plugin.VTable {
	return &plugin.VTable{
		OpenProcess:    p.openProcess,
		CloseProcess:   p.closeProcess,
		KillProcess:    p.killProcess,
		IsProcessValid: p.isProcessValid,

		ReadProcessMemory:  p.readMemory,
		WriteProcessMemory: p.writeMemory,

		QueryMemoryRegions: p.queryRegions,
		MinProcessAddress:  p.minAddress,
		MaxProcessAddress:  p.maxAddress,

		DisassembleRange: p.disassemble,

		DebuggerAttach:       p.attach,
		DebuggerDetach:       p.detach,
		DebuggerContinue:     p.cont,
		DebuggerPause:        p.pause,
		DebuggerStep:         p.step,
		DebuggerRunToAddress: p.runTo,
		DebugEvents:          p.debugEvents,

		SetBreakpoint:    p.setBreakpoint,
		RemoveBreakpoint: p.removeBreakpoint,
		EnableBreakpoint: p.enableBreakpoint,

		SetWatchpoint:    p.setWatchpoint,
		RemoveWatchpoint: p.removeWatchpoint,
		EnableWatchpoint: p.enableWatchpoint,

		GetThreads:       p.getThreads,
		GetCurrentThread: p.getCurrentThread,
		GetRegisters:     p.getRegisters,
		ReadRegister:     p.readRegister,
		WriteRegister:    p.writeRegister,
		SuspendThread:    p.suspendThread,
		ResumeThread:     p.resumeThread,
	}
}

func (p *Process) openProcess(ctx context.Context, pid int) plugin.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valid = true
	return plugin.StatusOK
}

func (p *Process) closeProcess(ctx context.Context) plugin.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valid = false
	return plugin.StatusOK
}

func (p *Process) killProcess(ctx context.Context) plugin.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valid = false
	p.events <- plugin.DebugEvent{Kind: plugin.EventProcessExited, ExitCode: -1}
	return plugin.StatusOK
}

func (p *Process) isProcessValid(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valid
}

func (p *Process) readMemory(ctx context.Context, addr uint64, out []byte) (int, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for n < len(out) {
		seg, off, ok := p.find(addr + uint64(n))
		if !ok || seg.perm&plugin.PermRead == 0 {
			if n > 0 {
				return n, plugin.StatusOK
			}
			return 0, plugin.StatusErr
		}
		out[n] = seg.data[off]
		n++
	}
	return n, plugin.StatusOK
}

func (p *Process) writeMemory(ctx context.Context, addr uint64, in []byte) plugin.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, b := range in {
		seg, off, ok := p.find(addr + uint64(i))
		if !ok || seg.perm&plugin.PermWrite == 0 {
			return plugin.StatusErr
		}
		seg.data[off] = b
	}
	return plugin.StatusOK
}

func (p *Process) queryRegions(ctx context.Context) ([]plugin.MemoryRegion, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]plugin.MemoryRegion, 0, len(p.segments))
	for _, s := range p.segments {
		out = append(out, plugin.MemoryRegion{Base: s.base, Size: uint64(len(s.data)), Perm: s.perm, Name: s.name})
	}
	return out, plugin.StatusOK
}

func (p *Process) minAddress(ctx context.Context) (uint64, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	min := uint64(0)
	for i, s := range p.segments {
		if i == 0 || s.base < min {
			min = s.base
		}
	}
	return min, plugin.StatusOK
}

func (p *Process) maxAddress(ctx context.Context) (uint64, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	max := uint64(0)
	for _, s := range p.segments {
		end := s.base + uint64(len(s.data))
		if end > max {
			max = end
		}
	}
	return max, plugin.StatusOK
}

// disassemble returns one synthetic four-byte instruction per aligned
// word in the requested range; it knows nothing about any real
// instruction set and exists only to exercise the disasm package.
func (p *Process) disassemble(ctx context.Context, addr uint64, byteCount uint32) ([]plugin.DecodedInstruction, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []plugin.DecodedInstruction
	for off := uint32(0); off+4 <= byteCount; off += 4 {
		a := addr + uint64(off)
		seg, segOff, ok := p.find(a)
		if !ok {
			break
		}
		raw := append([]byte(nil), seg.data[segOff:segOff+4]...)
		out = append(out, plugin.DecodedInstruction{
			Address:  a,
			Raw:      raw,
			Mnemonic: "nop",
			Operands: "",
			Branch:   plugin.BranchNone,
		})
	}
	return out, plugin.StatusOK
}

func (p *Process) attach(ctx context.Context) plugin.StatusCode {
	return plugin.StatusOK
}

func (p *Process) detach(ctx context.Context) plugin.StatusCode {
	return plugin.StatusOK
}

func (p *Process) cont(ctx context.Context, passException bool) plugin.StatusCode {
	return plugin.StatusOK
}

func (p *Process) pause(ctx context.Context) plugin.StatusCode {
	return plugin.StatusOK
}

func (p *Process) step(ctx context.Context, mode plugin.StepMode) plugin.StatusCode {
	p.mu.Lock()
	p.regs["pc"] += 4
	p.mu.Unlock()
	return plugin.StatusOK
}

func (p *Process) runTo(ctx context.Context, addr uint64) plugin.StatusCode {
	p.mu.Lock()
	p.regs["pc"] = addr
	p.mu.Unlock()
	return plugin.StatusOK
}

func (p *Process) debugEvents() <-chan plugin.DebugEvent {
	return p.events
}

func (p *Process) setBreakpoint(ctx context.Context, addr uint64, kind plugin.BreakpointKind) (uint32, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextBPID++
	p.bps[p.nextBPID] = struct{}{}
	return p.nextBPID, plugin.StatusOK
}

func (p *Process) removeBreakpoint(ctx context.Context, id uint32) plugin.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.bps[id]; !ok {
		return plugin.StatusErr
	}
	delete(p.bps, id)
	return plugin.StatusOK
}

func (p *Process) enableBreakpoint(ctx context.Context, id uint32, enable bool) plugin.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.bps[id]; !ok {
		return plugin.StatusErr
	}
	return plugin.StatusOK
}

func (p *Process) setWatchpoint(ctx context.Context, desc plugin.WatchpointDesc) (uint32, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextWPID++
	p.wps[p.nextWPID] = struct{}{}
	return p.nextWPID, plugin.StatusOK
}

func (p *Process) removeWatchpoint(ctx context.Context, id uint32) plugin.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.wps[id]; !ok {
		return plugin.StatusErr
	}
	delete(p.wps, id)
	return plugin.StatusOK
}

func (p *Process) enableWatchpoint(ctx context.Context, id uint32, enable bool) plugin.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.wps[id]; !ok {
		return plugin.StatusErr
	}
	return plugin.StatusOK
}

func (p *Process) getThreads(ctx context.Context) ([]uint32, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return []uint32{p.threadID}, plugin.StatusOK
}

func (p *Process) getCurrentThread(ctx context.Context) (uint32, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threadID, plugin.StatusOK
}

func (p *Process) getRegisters(ctx context.Context, tid uint32) (map[string]uint64, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tid != p.threadID {
		return nil, plugin.StatusErr
	}
	out := make(map[string]uint64, len(p.regs))
	for k, v := range p.regs {
		out[k] = v
	}
	return out, plugin.StatusOK
}

func (p *Process) readRegister(ctx context.Context, tid uint32, name string) ([]byte, plugin.StatusCode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.regs[name]
	if tid != p.threadID || !ok {
		return nil, plugin.StatusErr
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:], plugin.StatusOK
}

func (p *Process) writeRegister(ctx context.Context, tid uint32, name string, value []byte) plugin.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tid != p.threadID || len(value) < 8 {
		return plugin.StatusErr
	}
	p.regs[name] = binary.LittleEndian.Uint64(value)
	return plugin.StatusOK
}

func (p *Process) suspendThread(ctx context.Context, tid uint32) plugin.StatusCode {
	if tid != p.threadID {
		return plugin.StatusErr
	}
	return plugin.StatusOK
}

func (p *Process) resumeThread(ctx context.Context, tid uint32) plugin.StatusCode {
	if tid != p.threadID {
		return plugin.StatusErr
	}
	return plugin.StatusOK
}
