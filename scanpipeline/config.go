package scanpipeline

import "fmt"

// ValueType is the scanned value's representation.
type ValueType int

const (
	ValueI8 ValueType = iota
	ValueU8
	ValueI16
	ValueU16
	ValueI32
	ValueU32
	ValueI64
	ValueU64
	ValueF32
	ValueF64
	ValueASCIIString
	ValueUTF16String
	ValueByteArray
)

// Size returns the fixed value size in bytes, or 0 for variable-width
// types (strings, byte arrays), whose length instead comes from the
// encoded input buffer.
func (v ValueType) Size() int {
	switch v {
	case ValueI8, ValueU8:
		return 1
	case ValueI16, ValueU16:
		return 2
	case ValueI32, ValueU32, ValueF32:
		return 4
	case ValueI64, ValueU64, ValueF64:
		return 8
	default:
		return 0
	}
}

// IsVariable reports whether the type's byte length comes from the
// input buffer rather than from Size().
func (v ValueType) IsVariable() bool {
	return v == ValueASCIIString || v == ValueUTF16String || v == ValueByteArray
}

// IsNumeric reports whether the type participates in ordering
// comparisons (GreaterThan, LessThan, Increased, ...).
func (v ValueType) IsNumeric() bool {
	return !v.IsVariable()
}

// ScanMode selects the comparator applied against the current (and,
// for next-scans, previous) bytes.
type ScanMode int

const (
	ModeExact ScanMode = iota
	ModeGreaterThan
	ModeLessThan
	ModeBetween
	ModeUnknown
	ModeChanged
	ModeUnchanged
	ModeIncreased
	ModeDecreased
	ModeIncreasedBy
	ModeDecreasedBy
)

// IsNextScanOnly reports whether mode is only meaningful relative to
// a prior iteration's stored value.
func (m ScanMode) IsNextScanOnly() bool {
	switch m {
	case ModeChanged, ModeUnchanged, ModeIncreased, ModeDecreased, ModeIncreasedBy, ModeDecreasedBy:
		return true
	default:
		return false
	}
}

// Endianness selects numeric byte order for load-before-compare.
type Endianness int

const (
	EndianLittle Endianness = iota
	EndianBig
	EndianHost
)

// Configuration is the immutable per-scan configuration.
type Configuration struct {
	ValueType      ValueType
	ScanMode       ScanMode
	AlignmentOn    bool
	AlignmentBytes int
	Endianness     Endianness
	HexMode        bool
	IsNextScan     bool
	Primary        []byte
	Secondary      []byte // ModeBetween only
}

// Stride returns the byte step between candidate offsets within a
// chunk: AlignmentBytes when alignment is enabled, 1 otherwise.
func (c Configuration) Stride() int {
	if c.AlignmentOn && c.AlignmentBytes > 0 {
		return c.AlignmentBytes
	}
	return 1
}

// ValueSize returns the comparison width: the fixed type size, or the
// input buffer's length for variable-width types.
func (c Configuration) ValueSize() int {
	if c.ValueType.IsVariable() {
		return len(c.Primary)
	}
	return c.ValueType.Size()
}

// Validate rejects configurations the controller must refuse before
// ever touching the target.
func (c Configuration) Validate() error {
	if c.ScanMode == ModeBetween && len(c.Secondary) == 0 {
		return fmt.Errorf("scanpipeline: Between mode requires a secondary input")
	}
	if c.ScanMode.IsNextScanOnly() && !c.IsNextScan {
		return fmt.Errorf("scanpipeline: mode %v is only valid on a next-scan", c.ScanMode)
	}
	if !c.ValueType.IsVariable() && c.ValueType.Size() == 0 {
		return fmt.Errorf("scanpipeline: unresolvable value size for type %v", c.ValueType)
	}
	return nil
}

// Region is one contiguous address range to scan.
type Region struct {
	Base uint64
	Size uint64
}
