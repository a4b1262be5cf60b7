// Package monitor tracks a small set of addresses a user has pinned
// for continuous display, plus the "freeze" loop that pins a subset of
// them to a fixed value. Its saved-address list is a mutex-protected
// slice in the same shape as a breakpoint registry, generalized from
// breakpoint bookkeeping to periodic read-back and write-back.
package monitor

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
	"unicode/utf16"
	"unsafe"

	"github.com/hexwalker/vertex/internal/vlog"
	"github.com/hexwalker/vertex/scanpipeline"
	"github.com/hexwalker/vertex/vxerr"
)

// tickInterval is the freeze loop's sleep between passes.
const tickInterval = 50 * time.Millisecond

// SavedAddress is one monitored entry. The invariant Frozen ⇒
// FrozenBytes != nil is enforced by Monitor.SetFrozen and
// Monitor.SetFrozenValue; callers never
// construct or mutate a SavedAddress directly.
type SavedAddress struct {
	Address        uint64
	ValueType      scanpipeline.ValueType
	Endianness     scanpipeline.Endianness
	Frozen         bool
	FrozenBytes    []byte
	FormattedValue string
}

// MemoryReadWriter is the subset of the plugin gateway the monitor
// needs; satisfied by *plugin.Gateway.
type MemoryReadWriter interface {
	ReadMemory(ctx context.Context, addr uint64, out []byte) (int, error)
	WriteMemory(ctx context.Context, addr uint64, in []byte) error
}

// FreezeDispatcher abstracts the dispatcher's Freeze channel.
// TryFreeze runs fn asynchronously and returns true, or returns false
// without running fn if the channel is already busy with a prior
// write.
type FreezeDispatcher interface {
	TryFreeze(fn func()) bool
}

// inlineFreezeDispatcher runs fn synchronously and is never busy. It
// stands in for a real dispatch.FreezeAdapter when nothing needs a
// dedicated Freeze channel, for example a one-off test.
type inlineFreezeDispatcher struct{}

// TryFreeze always runs fn immediately and reports success.
func (inlineFreezeDispatcher) TryFreeze(fn func()) bool {
	fn()
	return true
}

// Monitor owns the saved-address list, the read-back operation, and
// the freeze loop.
type Monitor struct {
	mu   sync.Mutex
	rw   MemoryReadWriter
	disp FreezeDispatcher
	log  *slog.Logger

	addrs []*SavedAddress

	stop chan struct{}
	done chan struct{}
}

// New builds a Monitor over rw. A nil dispatcher falls back to an
// inline one that runs every freeze write synchronously, useful for
// tests and other standalone use.
func New(rw MemoryReadWriter, disp FreezeDispatcher) *Monitor {
	if disp == nil {
		disp = inlineFreezeDispatcher{}
	}
	return &Monitor{rw: rw, disp: disp, log: vlog.For("monitor")}
}

// Add registers addr for tracking and returns its entry.
func (m *Monitor) Add(addr uint64, vt scanpipeline.ValueType, end scanpipeline.Endianness) *SavedAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa := &SavedAddress{Address: addr, ValueType: vt, Endianness: end}
	m.addrs = append(m.addrs, sa)
	return sa
}

// Remove drops addr from the tracked set. Reports whether it was
// present.
func (m *Monitor) Remove(addr uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sa := range m.addrs {
		if sa.Address == addr {
			m.addrs = append(m.addrs[:i], m.addrs[i+1:]...)
			return true
		}
	}
	return false
}

// All returns a snapshot copy of the tracked entries.
func (m *Monitor) All() []SavedAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SavedAddress, len(m.addrs))
	for i, sa := range m.addrs {
		out[i] = *sa
	}
	return out
}

// Refresh reads every tracked address once and formats its value into
// FormattedValue per its type, endianness, and hexMode. A single
// address's read failure is logged and skipped; it does not abort the
// remaining refreshes.
func (m *Monitor) Refresh(ctx context.Context, hexMode bool) error {
	m.mu.Lock()
	snapshot := make([]*SavedAddress, len(m.addrs))
	copy(snapshot, m.addrs)
	m.mu.Unlock()

	for _, sa := range snapshot {
		size := sa.ValueType.Size()
		if size == 0 {
			size = len(sa.FrozenBytes)
		}
		if size == 0 {
			continue
		}
		buf := make([]byte, size)
		if _, err := m.rw.ReadMemory(ctx, sa.Address, buf); err != nil {
			m.log.Warn("monitor refresh read failed", "address", sa.Address, "error", err)
			continue
		}
		formatted := formatValue(sa.ValueType, sa.Endianness, buf, hexMode)

		m.mu.Lock()
		for _, cur := range m.addrs {
			if cur.Address == sa.Address {
				cur.FormattedValue = formatted
				break
			}
		}
		m.mu.Unlock()
	}
	return nil
}

// SetFrozen pins or releases addr. Freezing on with no prior
// FrozenBytes captures the address's current value first, preserving
// the invariant Frozen ⇒ FrozenBytes != nil.
func (m *Monitor) SetFrozen(ctx context.Context, addr uint64, frozen bool) error {
	m.mu.Lock()
	var sa *SavedAddress
	for _, cur := range m.addrs {
		if cur.Address == addr {
			sa = cur
			break
		}
	}
	m.mu.Unlock()
	if sa == nil {
		return vxerr.New(vxerr.KindInvalidParameter, "monitor.SetFrozen", "address not tracked")
	}

	if !frozen {
		m.mu.Lock()
		sa.Frozen = false
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	needsCapture := sa.FrozenBytes == nil
	m.mu.Unlock()
	if needsCapture {
		size := sa.ValueType.Size()
		if size == 0 {
			return vxerr.New(vxerr.KindInvalidParameter, "monitor.SetFrozen", "variable-width types cannot be frozen without an explicit value")
		}
		buf := make([]byte, size)
		if _, err := m.rw.ReadMemory(ctx, addr, buf); err != nil {
			return err
		}
		m.mu.Lock()
		sa.FrozenBytes = buf
		m.mu.Unlock()
	}

	m.mu.Lock()
	sa.Frozen = true
	m.mu.Unlock()
	return nil
}

// SetFrozenValue pins addr to an explicit byte value, freezing it.
func (m *Monitor) SetFrozenValue(addr uint64, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sa := range m.addrs {
		if sa.Address == addr {
			sa.FrozenBytes = append([]byte(nil), value...)
			sa.Frozen = true
			return nil
		}
	}
	return vxerr.New(vxerr.KindInvalidParameter, "monitor.SetFrozenValue", "address not tracked")
}

// StartFreezeLoop starts the dedicated freeze-tick goroutine. It runs
// until ctx is cancelled; callers should not call it twice on the same
// Monitor without an intervening ctx cancellation.
func (m *Monitor) StartFreezeLoop(ctx context.Context) {
	m.mu.Lock()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.runFreezeLoop(ctx)
}

// StopFreezeLoop signals the freeze goroutine to exit and waits for it.
func (m *Monitor) StopFreezeLoop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (m *Monitor) runFreezeLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.freezeTick(ctx)
		}
	}
}

// freezeTick snapshots the frozen entries under lock, releases it,
// then asks the dispatcher to issue the writes; if the Freeze channel
// is already busy the tick is skipped entirely.
func (m *Monitor) freezeTick(ctx context.Context) {
	m.mu.Lock()
	var pinned []SavedAddress
	for _, sa := range m.addrs {
		if sa.Frozen && sa.FrozenBytes != nil {
			pinned = append(pinned, SavedAddress{Address: sa.Address, FrozenBytes: sa.FrozenBytes})
		}
	}
	m.mu.Unlock()
	if len(pinned) == 0 {
		return
	}

	ok := m.disp.TryFreeze(func() {
		for _, sa := range pinned {
			if err := m.rw.WriteMemory(ctx, sa.Address, sa.FrozenBytes); err != nil {
				m.log.Warn("freeze write failed", "address", sa.Address, "error", err)
			}
		}
	})
	if !ok {
		m.log.Debug("freeze tick skipped, channel busy")
	}
}

// formatValue renders raw bytes of the given type/endianness as a
// display string, honouring hexMode for integer types.
func formatValue(vt scanpipeline.ValueType, end scanpipeline.Endianness, data []byte, hexMode bool) string {
	order := byteOrder(end)
	switch vt {
	case scanpipeline.ValueI8:
		return formatInt(int64(int8(data[0])), hexMode, 1)
	case scanpipeline.ValueU8:
		return formatUint(uint64(data[0]), hexMode, 1)
	case scanpipeline.ValueI16:
		return formatInt(int64(int16(order.Uint16(data))), hexMode, 2)
	case scanpipeline.ValueU16:
		return formatUint(uint64(order.Uint16(data)), hexMode, 2)
	case scanpipeline.ValueI32:
		return formatInt(int64(int32(order.Uint32(data))), hexMode, 4)
	case scanpipeline.ValueU32:
		return formatUint(uint64(order.Uint32(data)), hexMode, 4)
	case scanpipeline.ValueI64:
		return formatInt(int64(order.Uint64(data)), hexMode, 8)
	case scanpipeline.ValueU64:
		return formatUint(order.Uint64(data), hexMode, 8)
	case scanpipeline.ValueF32:
		return fmt.Sprintf("%g", math.Float32frombits(order.Uint32(data)))
	case scanpipeline.ValueF64:
		return fmt.Sprintf("%g", math.Float64frombits(order.Uint64(data)))
	case scanpipeline.ValueASCIIString:
		return string(data)
	case scanpipeline.ValueUTF16String:
		return utf16ToString(data, order)
	default:
		return fmt.Sprintf("% x", data)
	}
}

func formatInt(v int64, hexMode bool, width int) string {
	if hexMode {
		return fmt.Sprintf("0x%0*X", width*2, uint64(v))
	}
	return fmt.Sprintf("%d", v)
}

func formatUint(v uint64, hexMode bool, width int) string {
	if hexMode {
		return fmt.Sprintf("0x%0*X", width*2, v)
	}
	return fmt.Sprintf("%d", v)
}

func byteOrder(e scanpipeline.Endianness) binary.ByteOrder {
	switch e {
	case scanpipeline.EndianBig:
		return binary.BigEndian
	case scanpipeline.EndianHost:
		return hostByteOrder
	default:
		return binary.LittleEndian
	}
}

// hostByteOrder resolves to the runtime's native order at init time.
var hostByteOrder = func() binary.ByteOrder {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	if b[0] == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()

func utf16ToString(data []byte, order binary.ByteOrder) string {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = order.Uint16(data[i*2:])
	}
	return string(utf16.Decode(units))
}
