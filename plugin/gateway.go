package plugin

import (
	"context"
	"log/slog"

	"github.com/hexwalker/vertex/internal/vlog"
	"github.com/hexwalker/vertex/vxerr"
)

// Gateway is the checked adapter over a *VTable. It never retries and
// never calls through a nil field: every method first
// confirms a plugin is active, then confirms the specific capability
// is present, then translates the raw StatusCode into a *vxerr.Error.
// Retry policy, if any, belongs to the caller.
type Gateway struct {
	vt       *VTable
	features Features
	log      *slog.Logger
}

func NewGateway(vt *VTable) *Gateway {
	return &Gateway{vt: vt, features: probe(vt), log: vlog.For("plugin")}
}

// Active reports whether a plugin vtable is currently installed.
func (g *Gateway) Active() bool { return g.vt != nil }

// Features returns the capability bitset probed at construction.
func (g *Gateway) Features() Features { return g.features }

func (g *Gateway) checkActive(op string) *vxerr.Error {
	if g.vt == nil {
		return vxerr.New(vxerr.KindPluginNotActive, op, "no plugin loaded")
	}
	return nil
}

func (g *Gateway) checkFn(op string, ok bool) *vxerr.Error {
	if !ok {
		return vxerr.New(vxerr.KindPluginFunctionMissing, op, "plugin does not implement this function")
	}
	return nil
}

func (g *Gateway) OpenProcess(ctx context.Context, pid int) error {
	const op = "plugin.OpenProcess"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.OpenProcess != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindProcessNotFound, g.vt.OpenProcess(ctx, pid))
}

func (g *Gateway) CloseProcess(ctx context.Context) error {
	const op = "plugin.CloseProcess"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.CloseProcess != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindProcessInvalid, g.vt.CloseProcess(ctx))
}

func (g *Gateway) KillProcess(ctx context.Context) error {
	const op = "plugin.KillProcess"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.KillProcess != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindProcessInvalid, g.vt.KillProcess(ctx))
}

func (g *Gateway) IsProcessValid(ctx context.Context) bool {
	if g.vt == nil || g.vt.IsProcessValid == nil {
		return false
	}
	return g.vt.IsProcessValid(ctx)
}

func (g *Gateway) ReadMemory(ctx context.Context, addr uint64, out []byte) (int, error) {
	const op = "plugin.ReadMemory"
	if err := g.checkActive(op); err != nil {
		return 0, err
	}
	if err := g.checkFn(op, g.vt.ReadProcessMemory != nil); err != nil {
		return 0, err
	}
	n, code := g.vt.ReadProcessMemory(ctx, addr, out)
	if err := wrapStatus(op, vxerr.KindMemoryRead, code); err != nil {
		return n, err
	}
	return n, nil
}

func (g *Gateway) WriteMemory(ctx context.Context, addr uint64, in []byte) error {
	const op = "plugin.WriteMemory"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.WriteProcessMemory != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindMemoryWrite, g.vt.WriteProcessMemory(ctx, addr, in))
}

func (g *Gateway) QueryMemoryRegions(ctx context.Context) ([]MemoryRegion, error) {
	const op = "plugin.QueryMemoryRegions"
	if err := g.checkActive(op); err != nil {
		return nil, err
	}
	if err := g.checkFn(op, g.vt.QueryMemoryRegions != nil); err != nil {
		return nil, err
	}
	regions, code := g.vt.QueryMemoryRegions(ctx)
	if err := wrapStatus(op, vxerr.KindProcessInvalid, code); err != nil {
		return nil, err
	}
	return regions, nil
}

func (g *Gateway) AddressRange(ctx context.Context) (lo, hi uint64, err error) {
	const op = "plugin.AddressRange"
	if e := g.checkActive(op); e != nil {
		return 0, 0, e
	}
	if e := g.checkFn(op, g.vt.MinProcessAddress != nil && g.vt.MaxProcessAddress != nil); e != nil {
		return 0, 0, e
	}
	lo, code := g.vt.MinProcessAddress(ctx)
	if err = wrapStatus(op, vxerr.KindProcessInvalid, code); err != nil {
		return 0, 0, err
	}
	hi, code = g.vt.MaxProcessAddress(ctx)
	if err = wrapStatus(op, vxerr.KindProcessInvalid, code); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func (g *Gateway) Disassemble(ctx context.Context, addr uint64, byteCount uint32) ([]DecodedInstruction, error) {
	const op = "plugin.Disassemble"
	if err := g.checkActive(op); err != nil {
		return nil, err
	}
	if err := g.checkFn(op, g.vt.DisassembleRange != nil); err != nil {
		return nil, err
	}
	insns, code := g.vt.DisassembleRange(ctx, addr, byteCount)
	if err := wrapStatus(op, vxerr.KindProcessInvalid, code); err != nil {
		return nil, err
	}
	return insns, nil
}

func (g *Gateway) DebuggerAttach(ctx context.Context) error {
	const op = "plugin.DebuggerAttach"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.DebuggerAttach != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindProcessAccessDenied, g.vt.DebuggerAttach(ctx))
}

func (g *Gateway) DebuggerDetach(ctx context.Context) error {
	const op = "plugin.DebuggerDetach"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.DebuggerDetach != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindProcessInvalid, g.vt.DebuggerDetach(ctx))
}

func (g *Gateway) DebuggerContinue(ctx context.Context, passException bool) error {
	const op = "plugin.DebuggerContinue"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.DebuggerContinue != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindProcessInvalid, g.vt.DebuggerContinue(ctx, passException))
}

func (g *Gateway) DebuggerPause(ctx context.Context) error {
	const op = "plugin.DebuggerPause"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.DebuggerPause != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindProcessInvalid, g.vt.DebuggerPause(ctx))
}

func (g *Gateway) DebuggerStep(ctx context.Context, mode StepMode) error {
	const op = "plugin.DebuggerStep"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.DebuggerStep != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindProcessInvalid, g.vt.DebuggerStep(ctx, mode))
}

func (g *Gateway) DebuggerRunToAddress(ctx context.Context, addr uint64) error {
	const op = "plugin.DebuggerRunToAddress"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.DebuggerRunToAddress != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindProcessInvalid, g.vt.DebuggerRunToAddress(ctx, addr))
}

// DebugEvents returns the plugin's event channel, or nil if the plugin
// exposes none. Callers must treat a nil channel as "no events will
// ever arrive" rather than blocking a receive on it directly.
func (g *Gateway) DebugEvents() <-chan DebugEvent {
	if g.vt == nil || g.vt.DebugEvents == nil {
		return nil
	}
	return g.vt.DebugEvents()
}

func (g *Gateway) SetBreakpoint(ctx context.Context, addr uint64, kind BreakpointKind) (uint32, error) {
	const op = "plugin.SetBreakpoint"
	if err := g.checkActive(op); err != nil {
		return 0, err
	}
	if err := g.checkFn(op, g.vt.SetBreakpoint != nil); err != nil {
		return 0, err
	}
	id, code := g.vt.SetBreakpoint(ctx, addr, kind)
	if err := wrapStatus(op, vxerr.KindInvalidParameter, code); err != nil {
		return 0, err
	}
	return id, nil
}

func (g *Gateway) RemoveBreakpoint(ctx context.Context, id uint32) error {
	const op = "plugin.RemoveBreakpoint"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.RemoveBreakpoint != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindInvalidParameter, g.vt.RemoveBreakpoint(ctx, id))
}

func (g *Gateway) EnableBreakpoint(ctx context.Context, id uint32, enable bool) error {
	const op = "plugin.EnableBreakpoint"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.EnableBreakpoint != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindInvalidParameter, g.vt.EnableBreakpoint(ctx, id, enable))
}

func (g *Gateway) SetWatchpoint(ctx context.Context, desc WatchpointDesc) (uint32, error) {
	const op = "plugin.SetWatchpoint"
	if err := g.checkActive(op); err != nil {
		return 0, err
	}
	if err := g.checkFn(op, g.vt.SetWatchpoint != nil); err != nil {
		return 0, err
	}
	id, code := g.vt.SetWatchpoint(ctx, desc)
	if err := wrapStatus(op, vxerr.KindInvalidParameter, code); err != nil {
		return 0, err
	}
	return id, nil
}

func (g *Gateway) RemoveWatchpoint(ctx context.Context, id uint32) error {
	const op = "plugin.RemoveWatchpoint"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.RemoveWatchpoint != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindInvalidParameter, g.vt.RemoveWatchpoint(ctx, id))
}

func (g *Gateway) EnableWatchpoint(ctx context.Context, id uint32, enable bool) error {
	const op = "plugin.EnableWatchpoint"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.EnableWatchpoint != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindInvalidParameter, g.vt.EnableWatchpoint(ctx, id, enable))
}

func (g *Gateway) Threads(ctx context.Context) ([]uint32, error) {
	const op = "plugin.Threads"
	if err := g.checkActive(op); err != nil {
		return nil, err
	}
	if err := g.checkFn(op, g.vt.GetThreads != nil); err != nil {
		return nil, err
	}
	tids, code := g.vt.GetThreads(ctx)
	if err := wrapStatus(op, vxerr.KindThreadNotFound, code); err != nil {
		return nil, err
	}
	return tids, nil
}

func (g *Gateway) CurrentThread(ctx context.Context) (uint32, error) {
	const op = "plugin.CurrentThread"
	if err := g.checkActive(op); err != nil {
		return 0, err
	}
	if err := g.checkFn(op, g.vt.GetCurrentThread != nil); err != nil {
		return 0, err
	}
	tid, code := g.vt.GetCurrentThread(ctx)
	if err := wrapStatus(op, vxerr.KindThreadNotFound, code); err != nil {
		return 0, err
	}
	return tid, nil
}

func (g *Gateway) Registers(ctx context.Context, tid uint32) (map[string]uint64, error) {
	const op = "plugin.Registers"
	if err := g.checkActive(op); err != nil {
		return nil, err
	}
	if err := g.checkFn(op, g.vt.GetRegisters != nil); err != nil {
		return nil, err
	}
	regs, code := g.vt.GetRegisters(ctx, tid)
	if err := wrapStatus(op, vxerr.KindThreadContextFailed, code); err != nil {
		return nil, err
	}
	return regs, nil
}

func (g *Gateway) ReadRegister(ctx context.Context, tid uint32, name string) ([]byte, error) {
	const op = "plugin.ReadRegister"
	if err := g.checkActive(op); err != nil {
		return nil, err
	}
	if err := g.checkFn(op, g.vt.ReadRegister != nil); err != nil {
		return nil, err
	}
	val, code := g.vt.ReadRegister(ctx, tid, name)
	if err := wrapStatus(op, vxerr.KindRegisterNotFound, code); err != nil {
		return nil, err
	}
	return val, nil
}

func (g *Gateway) WriteRegister(ctx context.Context, tid uint32, name string, value []byte) error {
	const op = "plugin.WriteRegister"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.WriteRegister != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindRegisterWriteFailed, g.vt.WriteRegister(ctx, tid, name, value))
}

func (g *Gateway) SuspendThread(ctx context.Context, tid uint32) error {
	const op = "plugin.SuspendThread"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.SuspendThread != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindThreadSuspendFailed, g.vt.SuspendThread(ctx, tid))
}

func (g *Gateway) ResumeThread(ctx context.Context, tid uint32) error {
	const op = "plugin.ResumeThread"
	if err := g.checkActive(op); err != nil {
		return err
	}
	if err := g.checkFn(op, g.vt.ResumeThread != nil); err != nil {
		return err
	}
	return wrapStatus(op, vxerr.KindThreadResumeFailed, g.vt.ResumeThread(ctx, tid))
}

// wrapStatus returns nil on StatusOK and a typed *vxerr.Error
// otherwise; it also satisfies callers that want a plain `error`
// rather than the concrete pointer type.
func wrapStatus(op string, kind vxerr.Kind, code StatusCode) error {
	if code == StatusOK {
		return nil
	}
	return vxerr.New(kind, op, "plugin returned an error status")
}
