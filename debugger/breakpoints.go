// Package debugger drives the plugin's debug event loop on a single
// worker goroutine and keeps the breakpoint/watchpoint registries that
// back it. The registry is an address-keyed map plus a monotonic id
// counter, with a second by-id index and the Kind/State/ModuleHint/
// Extras fields a plugin-backed breakpoint model needs.
package debugger

import (
	"context"
	"sync"

	"github.com/hexwalker/vertex/plugin"
	"github.com/hexwalker/vertex/vxerr"
)

// BreakpointState tracks a breakpoint's plugin-acknowledgement status.
type BreakpointState int

const (
	BreakpointEnabled BreakpointState = iota
	BreakpointDisabled
	BreakpointPending
	BreakpointError
)

func (s BreakpointState) String() string {
	switch s {
	case BreakpointEnabled:
		return "Enabled"
	case BreakpointDisabled:
		return "Disabled"
	case BreakpointPending:
		return "Pending"
	case BreakpointError:
		return "Error"
	default:
		return "Unknown"
	}
}

// CondOrAction is a breakpoint's optional conditional-hit expression or
// attached action; the plugin is responsible for evaluating it. Vertex
// itself carries it opaquely.
type CondOrAction struct {
	Condition string
	Action    string
}

// Breakpoint is one registry entry. ID is assigned by the plugin and
// stable across enable/disable.
type Breakpoint struct {
	ID         uint32
	Address    uint64
	Kind       plugin.BreakpointKind
	State      BreakpointState
	HitCount   uint32
	ModuleHint string
	Extras     *CondOrAction
}

// BreakpointRegistry is the plugin-acknowledged breakpoint table: a
// by-id map for deletion/lookup-by-id and an order-preserving
// by-address map for the disassembly renderer's O(1)
// has-breakpoint-at check.
type BreakpointRegistry struct {
	mu        sync.RWMutex
	byID      map[uint32]*Breakpoint
	byAddress map[uint64]*Breakpoint
}

// NewBreakpointRegistry creates an empty registry.
func NewBreakpointRegistry() *BreakpointRegistry {
	return &BreakpointRegistry{
		byID:      make(map[uint32]*Breakpoint),
		byAddress: make(map[uint64]*Breakpoint),
	}
}

// add inserts a breakpoint into both indexes. Unexported: entries only
// enter the registry once the plugin has acknowledged them, which is
// BreakpointController's job.
func (r *BreakpointRegistry) add(bp *Breakpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[bp.ID] = bp
	r.byAddress[bp.Address] = bp
}

func (r *BreakpointRegistry) remove(id uint32) *Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	delete(r.byAddress, bp.Address)
	return bp
}

// ByID looks up a breakpoint by its plugin-assigned id.
func (r *BreakpointRegistry) ByID(id uint32) *Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// ByAddress is the O(1) hot read the disassembly renderer calls for
// every visible line.
func (r *BreakpointRegistry) ByAddress(addr uint64) *Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byAddress[addr]
}

// HasBreakpointAt reports presence without handing out the pointer.
func (r *BreakpointRegistry) HasBreakpointAt(addr uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byAddress[addr]
	return ok
}

// All returns every registered breakpoint in no particular order.
func (r *BreakpointRegistry) All() []*Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Breakpoint, 0, len(r.byID))
	for _, bp := range r.byID {
		out = append(out, bp)
	}
	return out
}

// Count returns the number of registered breakpoints.
func (r *BreakpointRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// clear empties both indexes; called on detach.
func (r *BreakpointRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[uint32]*Breakpoint)
	r.byAddress = make(map[uint64]*Breakpoint)
}

// recordHit increments the hit count of the breakpoint at addr and
// returns a copy, or nil if none is registered there. Only the
// debugger worker goroutine calls this.
func (r *BreakpointRegistry) recordHit(addr uint64) *Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byAddress[addr]
	if !ok {
		return nil
	}
	bp.HitCount++
	cp := *bp
	return &cp
}

// BreakpointController is the checked facade over the plugin gateway
// and a BreakpointRegistry: breakpoints enter the registry only after
// the plugin acknowledges them, and leave it on explicit removal or
// detach.
type BreakpointController struct {
	gw  *plugin.Gateway
	reg *BreakpointRegistry
}

// NewBreakpointController pairs a gateway with the registry it backs.
func NewBreakpointController(gw *plugin.Gateway, reg *BreakpointRegistry) *BreakpointController {
	return &BreakpointController{gw: gw, reg: reg}
}

// Set asks the plugin to install a breakpoint and, on success,
// registers it under the plugin-assigned id.
func (c *BreakpointController) Set(ctx context.Context, addr uint64, kind plugin.BreakpointKind) (*Breakpoint, error) {
	id, err := c.gw.SetBreakpoint(ctx, addr, kind)
	if err != nil {
		return nil, err
	}
	bp := &Breakpoint{ID: id, Address: addr, Kind: kind, State: BreakpointEnabled}
	c.reg.add(bp)
	return bp, nil
}

// Remove asks the plugin to uninstall a breakpoint and drops it from
// the registry.
func (c *BreakpointController) Remove(ctx context.Context, id uint32) error {
	bp := c.reg.ByID(id)
	if bp == nil {
		return vxerr.New(vxerr.KindInvalidParameter, "debugger.RemoveBreakpoint", "no such breakpoint")
	}
	if err := c.gw.RemoveBreakpoint(ctx, id); err != nil {
		return err
	}
	c.reg.remove(id)
	return nil
}

// SetEnabled toggles a breakpoint's Enabled/Disabled state through the
// plugin, updating the registry only once the plugin confirms.
func (c *BreakpointController) SetEnabled(ctx context.Context, id uint32, enable bool) error {
	bp := c.reg.ByID(id)
	if bp == nil {
		return vxerr.New(vxerr.KindInvalidParameter, "debugger.EnableBreakpoint", "no such breakpoint")
	}
	if err := c.gw.EnableBreakpoint(ctx, id, enable); err != nil {
		return err
	}
	if enable {
		bp.State = BreakpointEnabled
	} else {
		bp.State = BreakpointDisabled
	}
	return nil
}

// ToggleAt removes the breakpoint at addr if one exists, otherwise
// adds a software Execute breakpoint there. The bool result reports
// whether a breakpoint now exists at addr.
func (c *BreakpointController) ToggleAt(ctx context.Context, addr uint64) (bool, error) {
	if bp := c.reg.ByAddress(addr); bp != nil {
		return false, c.Remove(ctx, bp.ID)
	}
	_, err := c.Set(ctx, addr, plugin.BreakpointExecute)
	if err != nil {
		return false, err
	}
	return true, nil
}
