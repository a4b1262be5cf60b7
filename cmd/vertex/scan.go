package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hexwalker/vertex/plugin"
	"github.com/hexwalker/vertex/scancontrol"
	"github.com/hexwalker/vertex/scanpipeline"
)

const scanPollInterval = 5 * time.Millisecond

func newScanCmd() *cobra.Command {
	var (
		valueTypeName string
		modeName      string
		endianName    string
		primaryStr    string
		secondaryStr  string
		alignBytes    int
		sessionDir    string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run an initial memory scan against the target process",
		Long: "Scan runs a single initial scan against the built-in " +
			"mock process driver's address space and prints matching addresses. " +
			"A real OS plugin loader is out of scope.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}

			vt, err := parseValueType(valueTypeName)
			if err != nil {
				return err
			}
			mode, err := parseScanMode(modeName)
			if err != nil {
				return err
			}
			endian, err := parseEndianness(endianName)
			if err != nil {
				return err
			}

			primary, err := encodeValue(vt, endian, primaryStr)
			if err != nil {
				return fmt.Errorf("--value: %w", err)
			}
			var secondary []byte
			if secondaryStr != "" {
				secondary, err = encodeValue(vt, endian, secondaryStr)
				if err != nil {
					return fmt.Errorf("--value2: %w", err)
				}
			}

			cfg := scanpipeline.Configuration{
				ValueType:      vt,
				ScanMode:       mode,
				AlignmentOn:    alignBytes > 0,
				AlignmentBytes: alignBytes,
				Endianness:     endian,
				Primary:        primary,
				Secondary:      secondary,
			}

			gw, err := openPlugin()
			if err != nil {
				return err
			}

			regions, err := scanRegions(cmd.Context(), gw)
			if err != nil {
				return err
			}

			if sessionDir == "" {
				sessionDir = filepath.Join(os.TempDir(), "vertex-scan-"+uuid.NewString())
			}
			ctrl := scancontrol.New(sessionDir, gw, s.GetInt("memoryScan.readerThreads"), s.GetInt("memoryScan.threadBufferSizeMB"))

			if err := ctrl.InitializeScan(cmd.Context(), cfg, regions); err != nil {
				return err
			}

			for {
				stats := ctrl.Stats()
				if stats.Complete {
					break
				}
				time.Sleep(scanPollInterval)
			}

			entries, err := ctrl.Results(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("scanned %d region(s), %d match(es)\n", len(regions), len(entries))
			for _, e := range entries {
				fmt.Printf("  0x%08X  % x\n", e.Address, e.Current)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&valueTypeName, "type", "u32", "value type: i8,u8,i16,u16,i32,u32,i64,u64,f32,f64")
	cmd.Flags().StringVar(&modeName, "mode", "exact", "scan mode: exact,gt,lt,between,unknown")
	cmd.Flags().StringVar(&endianName, "endian", "little", "endianness: little,big,host")
	cmd.Flags().StringVar(&primaryStr, "value", "0", "primary scan value")
	cmd.Flags().StringVar(&secondaryStr, "value2", "", "secondary scan value (mode=between only)")
	cmd.Flags().IntVar(&alignBytes, "align", 0, "alignment stride in bytes, 0 disables alignment")
	cmd.Flags().StringVar(&sessionDir, "session", "", "scan session directory (default: a temp directory)")
	return cmd
}

// scanRegions queries the plugin's memory map and returns every
// readable region as a scan region: the CLI has no region picker, so
// it scans the whole address space.
func scanRegions(ctx context.Context, gw *plugin.Gateway) ([]scanpipeline.Region, error) {
	regions, err := gw.QueryMemoryRegions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]scanpipeline.Region, 0, len(regions))
	for _, r := range regions {
		if r.Perm&plugin.PermRead == 0 {
			continue
		}
		out = append(out, scanpipeline.Region{Base: r.Base, Size: r.Size})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no readable regions reported by the plugin")
	}
	return out, nil
}

func parseValueType(name string) (scanpipeline.ValueType, error) {
	switch strings.ToLower(name) {
	case "i8":
		return scanpipeline.ValueI8, nil
	case "u8":
		return scanpipeline.ValueU8, nil
	case "i16":
		return scanpipeline.ValueI16, nil
	case "u16":
		return scanpipeline.ValueU16, nil
	case "i32":
		return scanpipeline.ValueI32, nil
	case "u32":
		return scanpipeline.ValueU32, nil
	case "i64":
		return scanpipeline.ValueI64, nil
	case "u64":
		return scanpipeline.ValueU64, nil
	case "f32":
		return scanpipeline.ValueF32, nil
	case "f64":
		return scanpipeline.ValueF64, nil
	default:
		return 0, fmt.Errorf("unknown --type %q", name)
	}
}

func parseScanMode(name string) (scanpipeline.ScanMode, error) {
	switch strings.ToLower(name) {
	case "exact":
		return scanpipeline.ModeExact, nil
	case "gt", "greater":
		return scanpipeline.ModeGreaterThan, nil
	case "lt", "less":
		return scanpipeline.ModeLessThan, nil
	case "between":
		return scanpipeline.ModeBetween, nil
	case "unknown":
		return scanpipeline.ModeUnknown, nil
	default:
		return 0, fmt.Errorf("unknown --mode %q", name)
	}
}

func parseEndianness(name string) (scanpipeline.Endianness, error) {
	switch strings.ToLower(name) {
	case "little", "":
		return scanpipeline.EndianLittle, nil
	case "big":
		return scanpipeline.EndianBig, nil
	case "host":
		return scanpipeline.EndianHost, nil
	default:
		return 0, fmt.Errorf("unknown --endian %q", name)
	}
}

// encodeValue parses s as the given value type/endianness into its
// fixed-width byte encoding, the inverse of monitor's formatValue.
func encodeValue(vt scanpipeline.ValueType, endian scanpipeline.Endianness, s string) ([]byte, error) {
	order := scanByteOrder(endian)
	switch vt {
	case scanpipeline.ValueI8, scanpipeline.ValueU8:
		v, err := strconv.ParseInt(s, 0, 16)
		if err != nil {
			return nil, err
		}
		return []byte{byte(v)}, nil
	case scanpipeline.ValueI16, scanpipeline.ValueU16:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 2)
		order.PutUint16(b, uint16(v))
		return b, nil
	case scanpipeline.ValueI32, scanpipeline.ValueU32:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 4)
		order.PutUint32(b, uint32(v))
		return b, nil
	case scanpipeline.ValueI64, scanpipeline.ValueU64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 8)
		order.PutUint64(b, uint64(v))
		return b, nil
	case scanpipeline.ValueF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 4)
		order.PutUint32(b, float32bits(float32(v)))
		return b, nil
	case scanpipeline.ValueF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 8)
		order.PutUint64(b, float64bits(v))
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported value type for CLI scan")
	}
}

// scanByteOrder mirrors monitor's byteOrder helper: EndianHost resolves
// to the machine's native order at encode time rather than being
// carried as a symbolic value through the pipeline.
func scanByteOrder(e scanpipeline.Endianness) binary.ByteOrder {
	switch e {
	case scanpipeline.EndianBig:
		return binary.BigEndian
	case scanpipeline.EndianHost:
		var x uint16 = 1
		if *(*byte)(unsafe.Pointer(&x)) == 1 {
			return binary.LittleEndian
		}
		return binary.BigEndian
	default:
		return binary.LittleEndian
	}
}

func float32bits(v float32) uint32 { return math.Float32bits(v) }
func float64bits(v float64) uint64 { return math.Float64bits(v) }
