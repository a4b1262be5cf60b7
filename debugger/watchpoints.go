package debugger

import (
	"context"
	"sync"

	"github.com/hexwalker/vertex/plugin"
	"github.com/hexwalker/vertex/vxerr"
)

// Watchpoint is one registry entry: a plugin-backed hardware/software
// trap rather than a value-change-polling watchpoint. The plugin
// reports hits with the instruction pointer that caused them.
type Watchpoint struct {
	ID             uint32
	Address        uint64
	Size           uint8 // one of 1, 2, 4, 8
	Kind           plugin.WatchKind
	Enabled        bool
	HitCount       uint32
	LastAccessorIP uint64
}

// WatchpointRegistry is the plugin-acknowledged watchpoint table,
// keyed by id. Unlike breakpoints, watchpoints have no by-address hot
// path here, so a single map suffices.
type WatchpointRegistry struct {
	mu   sync.RWMutex
	byID map[uint32]*Watchpoint
}

// NewWatchpointRegistry creates an empty registry.
func NewWatchpointRegistry() *WatchpointRegistry {
	return &WatchpointRegistry{byID: make(map[uint32]*Watchpoint)}
}

func (r *WatchpointRegistry) add(wp *Watchpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[wp.ID] = wp
}

func (r *WatchpointRegistry) remove(id uint32) *Watchpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	return wp
}

// ByID looks up a watchpoint by its plugin-assigned id.
func (r *WatchpointRegistry) ByID(id uint32) *Watchpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// All returns every registered watchpoint in no particular order.
func (r *WatchpointRegistry) All() []*Watchpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Watchpoint, 0, len(r.byID))
	for _, wp := range r.byID {
		out = append(out, wp)
	}
	return out
}

// Count returns the number of registered watchpoints.
func (r *WatchpointRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// clear empties the registry; called on detach.
func (r *WatchpointRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[uint32]*Watchpoint)
}

// recordHit increments the hit count of the watchpoint with id,
// records the accessor IP, and returns a copy, or nil if unknown.
// Only the debugger worker goroutine calls this.
func (r *WatchpointRegistry) recordHit(id uint32, accessorIP uint64) *Watchpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.byID[id]
	if !ok {
		return nil
	}
	wp.HitCount++
	wp.LastAccessorIP = accessorIP
	cp := *wp
	return &cp
}

// WatchpointController is the checked facade over the plugin gateway
// and a WatchpointRegistry, mirroring BreakpointController.
type WatchpointController struct {
	gw  *plugin.Gateway
	reg *WatchpointRegistry
}

// NewWatchpointController pairs a gateway with the registry it backs.
func NewWatchpointController(gw *plugin.Gateway, reg *WatchpointRegistry) *WatchpointController {
	return &WatchpointController{gw: gw, reg: reg}
}

// Set asks the plugin to install a watchpoint and, on success,
// registers it under the plugin-assigned id.
func (c *WatchpointController) Set(ctx context.Context, addr uint64, size uint8, kind plugin.WatchKind) (*Watchpoint, error) {
	id, err := c.gw.SetWatchpoint(ctx, plugin.WatchpointDesc{Address: addr, Size: size, Kind: kind})
	if err != nil {
		return nil, err
	}
	wp := &Watchpoint{ID: id, Address: addr, Size: size, Kind: kind, Enabled: true}
	c.reg.add(wp)
	return wp, nil
}

// Remove asks the plugin to uninstall a watchpoint and drops it from
// the registry.
func (c *WatchpointController) Remove(ctx context.Context, id uint32) error {
	wp := c.reg.ByID(id)
	if wp == nil {
		return vxerr.New(vxerr.KindInvalidParameter, "debugger.RemoveWatchpoint", "no such watchpoint")
	}
	if err := c.gw.RemoveWatchpoint(ctx, id); err != nil {
		return err
	}
	c.reg.remove(id)
	return nil
}

// SetEnabled toggles a watchpoint's enabled state through the plugin.
func (c *WatchpointController) SetEnabled(ctx context.Context, id uint32, enable bool) error {
	wp := c.reg.ByID(id)
	if wp == nil {
		return vxerr.New(vxerr.KindInvalidParameter, "debugger.EnableWatchpoint", "no such watchpoint")
	}
	if err := c.gw.EnableWatchpoint(ctx, id, enable); err != nil {
		return err
	}
	wp.Enabled = enable
	return nil
}
