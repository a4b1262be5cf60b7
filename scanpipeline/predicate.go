package scanpipeline

import (
	"bytes"
	"encoding/binary"
	"math"
	"unsafe"
)

// Comparator is the resolved, pinned-for-the-scan predicate function.
// current/previous are the value bytes read this iteration and stored
// from the prior iteration (previous is nil on an initial scan);
// input1/input2 are the configuration's Primary/Secondary buffers.
type Comparator func(current, previous, input1, input2 []byte) bool

// predicateKey is the cache/dispatch key: value type, scan mode,
// endianness, hex mode, and whether this is a next-scan.
type predicateKey struct {
	valueType  ValueType
	scanMode   ScanMode
	endianness Endianness
	hexMode    bool
	isNextScan bool
}

// ResolveComparator pins a single comparator for the duration of a
// scan so the reader hot loop never branches on mode. The hex mode
// bit participates in the cache key even though it doesn't change
// numeric comparison semantics here, since Primary/Secondary already
// arrive as decoded bytes; it stays part of a resolved predicate's
// identity in case a future value type needs to special-case it.
func ResolveComparator(c Configuration) Comparator {
	key := predicateKey{
		valueType:  c.ValueType,
		scanMode:   c.ScanMode,
		endianness: c.Endianness,
		hexMode:    c.HexMode,
		isNextScan: c.IsNextScan,
	}
	return resolve(key)
}

func resolve(key predicateKey) Comparator {
	if key.valueType.IsVariable() {
		return variableComparator(key)
	}
	return numericComparator(key)
}

func variableComparator(key predicateKey) Comparator {
	switch key.scanMode {
	case ModeExact:
		return func(current, previous, input1, input2 []byte) bool {
			return bytes.Equal(current, input1)
		}
	case ModeUnknown:
		return func(current, previous, input1, input2 []byte) bool { return true }
	case ModeChanged:
		return func(current, previous, input1, input2 []byte) bool {
			return !bytes.Equal(current, previous)
		}
	case ModeUnchanged:
		return func(current, previous, input1, input2 []byte) bool {
			return bytes.Equal(current, previous)
		}
	default:
		return func(current, previous, input1, input2 []byte) bool {
			return bytes.Equal(current, input1)
		}
	}
}

func numericComparator(key predicateKey) Comparator {
	load := numericLoader(key.valueType, key.endianness)

	switch key.scanMode {
	case ModeExact:
		// Byte-exact rather than via the float64 loader: two equal
		// fixed-width values under one endianness always share the
		// same byte pattern, and this avoids float64's 53-bit mantissa
		// losing precision on large i64/u64/f64 inputs.
		return func(current, previous, input1, input2 []byte) bool {
			return bytes.Equal(current, input1)
		}
	case ModeGreaterThan:
		return func(current, previous, input1, input2 []byte) bool {
			return load(current) > load(input1)
		}
	case ModeLessThan:
		return func(current, previous, input1, input2 []byte) bool {
			return load(current) < load(input1)
		}
	case ModeBetween:
		return func(current, previous, input1, input2 []byte) bool {
			v := load(current)
			lo, hi := load(input1), load(input2)
			if lo > hi {
				lo, hi = hi, lo
			}
			return v >= lo && v <= hi
		}
	case ModeUnknown:
		return func(current, previous, input1, input2 []byte) bool { return true }
	case ModeChanged:
		return func(current, previous, input1, input2 []byte) bool {
			return !bytes.Equal(current, previous)
		}
	case ModeUnchanged:
		return func(current, previous, input1, input2 []byte) bool {
			return bytes.Equal(current, previous)
		}
	case ModeIncreased:
		return func(current, previous, input1, input2 []byte) bool {
			return load(current) > load(previous)
		}
	case ModeDecreased:
		return func(current, previous, input1, input2 []byte) bool {
			return load(current) < load(previous)
		}
	case ModeIncreasedBy:
		return func(current, previous, input1, input2 []byte) bool {
			return load(current)-load(previous) == load(input1)
		}
	case ModeDecreasedBy:
		return func(current, previous, input1, input2 []byte) bool {
			return load(previous)-load(current) == load(input1)
		}
	default:
		return func(current, previous, input1, input2 []byte) bool { return false }
	}
}

// numericLoader returns a function decoding a byte slice of the
// type's fixed width into a float64 comparison domain, honouring
// endianness. Used only by the ordering comparators (GreaterThan,
// LessThan, Between, Increased, Decreased, IncreasedBy, DecreasedBy);
// equality comparators compare raw bytes instead so i64/u64/f64
// values near the edge of float64's 53-bit mantissa still match
// exactly.
func numericLoader(vt ValueType, end Endianness) func([]byte) float64 {
	order := byteOrder(end)
	switch vt {
	case ValueI8:
		return func(b []byte) float64 { return float64(int8(b[0])) }
	case ValueU8:
		return func(b []byte) float64 { return float64(b[0]) }
	case ValueI16:
		return func(b []byte) float64 { return float64(int16(order.Uint16(b))) }
	case ValueU16:
		return func(b []byte) float64 { return float64(order.Uint16(b)) }
	case ValueI32:
		return func(b []byte) float64 { return float64(int32(order.Uint32(b))) }
	case ValueU32:
		return func(b []byte) float64 { return float64(order.Uint32(b)) }
	case ValueI64:
		return func(b []byte) float64 { return float64(int64(order.Uint64(b))) }
	case ValueU64:
		return func(b []byte) float64 { return float64(order.Uint64(b)) }
	case ValueF32:
		return func(b []byte) float64 { return float64(math.Float32frombits(order.Uint32(b))) }
	case ValueF64:
		return func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }
	default:
		return func(b []byte) float64 { return 0 }
	}
}

func byteOrder(e Endianness) binary.ByteOrder {
	switch e {
	case EndianBig:
		return binary.BigEndian
	case EndianHost:
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
