package scanpipeline

import "sync/atomic"

// cacheLinePad is sized for Apple Silicon's 128-byte
// destructive-interference size; on x86-64's 64-byte lines it covers
// two lines, which still prevents false sharing there.
const cacheLinePad = 128

// paddedUint64 is a single atomic counter padded to its own cache
// line, so concurrent readers hammering unrelated counters don't
// false-share a line. Padding bytes follow the value since Go
// guarantees the first field of a struct is at offset zero, which
// keeps v's address alignment obvious.
type paddedUint64 struct {
	v   atomic.Uint64
	_   [cacheLinePad - 8]byte
}

func (p *paddedUint64) Load() uint64        { return p.v.Load() }
func (p *paddedUint64) Store(n uint64)      { p.v.Store(n) }
func (p *paddedUint64) Add(delta uint64) uint64 { return p.v.Add(delta) }

// paddedBool is a cache-line-padded atomic flag.
type paddedBool struct {
	v atomic.Bool
	_ [cacheLinePad - 1]byte
}

func (p *paddedBool) Load() bool   { return p.v.Load() }
func (p *paddedBool) Store(b bool) { p.v.Store(b) }
