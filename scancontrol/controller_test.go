package scancontrol_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexwalker/vertex/scancontrol"
	"github.com/hexwalker/vertex/scanpipeline"
	"github.com/hexwalker/vertex/vxerr"
)

type fakeMemory struct {
	base uint64
	data []byte
}

func (f *fakeMemory) ReadMemory(ctx context.Context, addr uint64, out []byte) (int, error) {
	off := int(addr - f.base)
	if off < 0 || off >= len(f.data) {
		return 0, nil
	}
	n := copy(out, f.data[off:])
	return n, nil
}

func exactI32Config(primary uint32) scanpipeline.Configuration {
	return scanpipeline.Configuration{
		ValueType:      scanpipeline.ValueI32,
		ScanMode:       scanpipeline.ModeExact,
		AlignmentOn:    true,
		AlignmentBytes: 4,
		Endianness:     scanpipeline.EndianHost,
		Primary:        []byte{byte(primary), byte(primary >> 8), byte(primary >> 16), byte(primary >> 24)},
	}
}

func TestController_InitialScanThenUndo(t *testing.T) {
	mem := &fakeMemory{base: 0x1000, data: make([]byte, 4096)}
	put := func(off int, v uint32) {
		mem.data[off] = byte(v)
		mem.data[off+1] = byte(v >> 8)
		mem.data[off+2] = byte(v >> 16)
		mem.data[off+3] = byte(v >> 24)
	}
	put(0x10, 0x1234)
	put(0x400, 0x1234)
	put(0xF00, 0x1234)

	ctrl := scancontrol.New(t.TempDir(), mem, 2, 1)
	ctx := context.Background()

	require.NoError(t, ctrl.InitializeScan(ctx, exactI32Config(0x1234), []scanpipeline.Region{{Base: 0x1000, Size: 4096}}))

	waitControllerComplete(t, ctrl)
	results, err := ctrl.Results(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	put(0x400, 0x5678)
	nextCfg := scanpipeline.Configuration{ValueType: scanpipeline.ValueI32, ScanMode: scanpipeline.ModeChanged, Endianness: scanpipeline.EndianHost}
	require.NoError(t, ctrl.InitializeNextScan(ctx, nextCfg))
	waitControllerComplete(t, ctrl)

	narrowed, err := ctrl.Results(ctx)
	require.NoError(t, err)
	require.Len(t, narrowed, 1)

	require.NoError(t, ctrl.UndoScan())
	restored, err := ctrl.Results(ctx)
	require.NoError(t, err)
	require.Len(t, restored, 3)
}

func TestController_UndoWithoutHistory(t *testing.T) {
	mem := &fakeMemory{base: 0, data: make([]byte, 16)}
	ctrl := scancontrol.New(t.TempDir(), mem, 1, 1)

	err := ctrl.UndoScan()
	require.True(t, vxerr.Is(err, vxerr.KindNoUndoAvailable))
}

func TestController_InitializeScanRejectsEmptyRegions(t *testing.T) {
	mem := &fakeMemory{base: 0, data: make([]byte, 16)}
	ctrl := scancontrol.New(t.TempDir(), mem, 1, 1)

	err := ctrl.InitializeScan(context.Background(), exactI32Config(1), nil)
	require.True(t, vxerr.Is(err, vxerr.KindInvalidParameter))
}

func TestController_StopScanIsANoOpBeforeAnyScan(t *testing.T) {
	mem := &fakeMemory{base: 0, data: make([]byte, 16)}
	ctrl := scancontrol.New(t.TempDir(), mem, 1, 1)

	require.NoError(t, ctrl.StopScan())
}

func waitControllerComplete(t *testing.T, c *scancontrol.Controller) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !c.Stats().Complete {
		if time.Now().After(deadline) {
			t.Fatal("controller scan did not complete")
		}
		time.Sleep(time.Millisecond)
	}
}
