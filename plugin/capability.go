package plugin

// Features is a bitset of capabilities a loaded plugin actually
// implements, probed once at load time and cached so callers don't
// reprobe per call. cmd/vertex's attach path prints the name of any
// bit that's unset rather than letting the gateway's per-call errors
// surface the gap lazily.
type Features uint32

const (
	FeatureMemoryRead Features = 1 << iota
	FeatureMemoryWrite
	FeatureRegionQuery
	FeatureDisassemble
	FeatureDebugAttach
	FeatureDebugStep
	FeatureBreakpoints
	FeatureWatchpoints
	FeatureRegisterRead
	FeatureRegisterWrite
	FeatureThreadControl
	FeatureKillProcess
)

var featureNames = []struct {
	bit  Features
	name string
}{
	{FeatureMemoryRead, "memory-read"},
	{FeatureMemoryWrite, "memory-write"},
	{FeatureRegionQuery, "region-query"},
	{FeatureDisassemble, "disassemble"},
	{FeatureDebugAttach, "debug-attach"},
	{FeatureDebugStep, "debug-step"},
	{FeatureBreakpoints, "breakpoints"},
	{FeatureWatchpoints, "watchpoints"},
	{FeatureRegisterRead, "register-read"},
	{FeatureRegisterWrite, "register-write"},
	{FeatureThreadControl, "thread-control"},
	{FeatureKillProcess, "kill-process"},
}

// Has reports whether every bit in want is set.
func (f Features) Has(want Features) bool { return f&want == want }

// Missing returns the human-readable names of every feature bit not
// set in f, drawn from the full feature list.
func (f Features) Missing() []string {
	var out []string
	for _, fn := range featureNames {
		if !f.Has(fn.bit) {
			out = append(out, fn.name)
		}
	}
	return out
}

// probe derives the Features bitset from which VTable entries are
// non-nil, without calling through any of them.
func probe(v *VTable) Features {
	if v == nil {
		return 0
	}
	var f Features
	if v.ReadProcessMemory != nil {
		f |= FeatureMemoryRead
	}
	if v.WriteProcessMemory != nil {
		f |= FeatureMemoryWrite
	}
	if v.QueryMemoryRegions != nil {
		f |= FeatureRegionQuery
	}
	if v.DisassembleRange != nil {
		f |= FeatureDisassemble
	}
	if v.DebuggerAttach != nil && v.DebuggerDetach != nil {
		f |= FeatureDebugAttach
	}
	if v.DebuggerStep != nil {
		f |= FeatureDebugStep
	}
	if v.SetBreakpoint != nil && v.RemoveBreakpoint != nil {
		f |= FeatureBreakpoints
	}
	if v.SetWatchpoint != nil && v.RemoveWatchpoint != nil {
		f |= FeatureWatchpoints
	}
	if v.ReadRegister != nil || v.GetRegisters != nil {
		f |= FeatureRegisterRead
	}
	if v.WriteRegister != nil {
		f |= FeatureRegisterWrite
	}
	if v.SuspendThread != nil && v.ResumeThread != nil {
		f |= FeatureThreadControl
	}
	if v.KillProcess != nil {
		f |= FeatureKillProcess
	}
	return f
}
