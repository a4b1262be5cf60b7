// Package plugin is the thin typed wrapper over the plugin ABI. The
// ABI itself is modeled as a vtable of function pointers, the Go
// analogue of a C-ABI struct-of-function-pointers resolved from a
// dynamically loaded library: the gateway owns an optional vtable and
// probes capability by checking which fields are non-nil.
package plugin

import "context"

// StatusCode is the raw integer status every ABI call returns; zero is
// success, nonzero identifies an error kind the Gateway translates.
type StatusCode int

const (
	StatusOK StatusCode = 0
	StatusErr StatusCode = 1
)

// Permission mirrors the target memory region's protection bits.
type Permission uint8

const (
	PermNone    Permission = 0
	PermRead    Permission = 1 << 0
	PermWrite   Permission = 1 << 1
	PermExecute Permission = 1 << 2
)

// MemoryRegion is one entry of query_memory_regions.
type MemoryRegion struct {
	Base uint64
	Size uint64
	Perm Permission
	Name string
}

// BranchKind classifies a decoded instruction's control-flow effect.
type BranchKind int

const (
	BranchNone BranchKind = iota
	BranchUnconditional
	BranchConditional
	BranchCall
	BranchReturn
)

// DecodedInstruction is one entry of disassemble_range's result vector:
// addr, raw_bytes, size, mnemonic, operands, branch_type, target_addr.
type DecodedInstruction struct {
	Address    uint64
	Raw        []byte
	Mnemonic   string
	Operands   string
	Branch     BranchKind
	Target     uint64
	HasTarget  bool
}

// BreakpointKind is the breakpoint trigger condition.
type BreakpointKind int

const (
	BreakpointExecute BreakpointKind = iota
	BreakpointRead
	BreakpointWrite
	BreakpointReadWrite
)

// WatchKind is the watchpoint trigger condition.
type WatchKind int

const (
	WatchRead WatchKind = iota
	WatchWrite
	WatchReadWrite
	WatchExecute
)

// WatchpointDesc is the descriptor passed to set_watchpoint.
type WatchpointDesc struct {
	Address uint64
	Size    uint8 // one of 1, 2, 4, 8
	Kind    WatchKind
}

// StepMode selects the debugger's single-step granularity.
type StepMode int

const (
	StepInto StepMode = iota
	StepOver
	StepOut
)

// DebugEventKind tags the plugin-originated debug events.
type DebugEventKind int

const (
	EventBreakpointHit DebugEventKind = iota
	EventWatchpointHit
	EventException
	EventModuleLoaded
	EventModuleUnloaded
	EventThreadCreated
	EventThreadExited
	EventProcessExited
	EventOutputString
)

// DebugEvent is a single event the plugin's callback-driven loop
// raises; the debugger worker consumes these off the channel returned
// by VTable.DebugEvents.
type DebugEvent struct {
	Kind         DebugEventKind
	BreakpointID uint32
	WatchpointID uint32
	Address      uint64
	AccessorIP   uint64
	ThreadID     uint32
	Code         uint32
	ExitCode     int32
	Text         string
}

// VTable is the set of function pointers a loaded plugin resolves and
// exposes. Every field is independently nilable, since a plugin need
// not implement the full surface (a read-only inspector plugin might
// leave every write and debugger entry nil). The Gateway probes
// capability by checking which fields are set; it never calls through
// a nil field itself.
type VTable struct {
	OpenProcess    func(ctx context.Context, pid int) StatusCode
	CloseProcess   func(ctx context.Context) StatusCode
	KillProcess    func(ctx context.Context) StatusCode
	IsProcessValid func(ctx context.Context) bool

	ReadProcessMemory  func(ctx context.Context, addr uint64, out []byte) (int, StatusCode)
	WriteProcessMemory func(ctx context.Context, addr uint64, in []byte) StatusCode

	QueryMemoryRegions func(ctx context.Context) ([]MemoryRegion, StatusCode)
	MinProcessAddress  func(ctx context.Context) (uint64, StatusCode)
	MaxProcessAddress  func(ctx context.Context) (uint64, StatusCode)

	DisassembleRange func(ctx context.Context, addr uint64, byteCount uint32) ([]DecodedInstruction, StatusCode)

	DebuggerAttach       func(ctx context.Context) StatusCode
	DebuggerDetach       func(ctx context.Context) StatusCode
	DebuggerContinue     func(ctx context.Context, passException bool) StatusCode
	DebuggerPause        func(ctx context.Context) StatusCode
	DebuggerStep         func(ctx context.Context, mode StepMode) StatusCode
	DebuggerRunToAddress func(ctx context.Context, addr uint64) StatusCode
	DebugEvents          func() <-chan DebugEvent

	SetBreakpoint    func(ctx context.Context, addr uint64, kind BreakpointKind) (uint32, StatusCode)
	RemoveBreakpoint func(ctx context.Context, id uint32) StatusCode
	EnableBreakpoint func(ctx context.Context, id uint32, enable bool) StatusCode

	SetWatchpoint    func(ctx context.Context, desc WatchpointDesc) (uint32, StatusCode)
	RemoveWatchpoint func(ctx context.Context, id uint32) StatusCode
	EnableWatchpoint func(ctx context.Context, id uint32, enable bool) StatusCode

	GetThreads       func(ctx context.Context) ([]uint32, StatusCode)
	GetCurrentThread func(ctx context.Context) (uint32, StatusCode)
	GetRegisters     func(ctx context.Context, tid uint32) (map[string]uint64, StatusCode)
	ReadRegister     func(ctx context.Context, tid uint32, name string) ([]byte, StatusCode)
	WriteRegister    func(ctx context.Context, tid uint32, name string, value []byte) StatusCode
	SuspendThread    func(ctx context.Context, tid uint32) StatusCode
	ResumeThread     func(ctx context.Context, tid uint32) StatusCode
}
