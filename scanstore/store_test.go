package scanstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexwalker/vertex/scanstore"
)

func TestStore_AppendAndReadRange(t *testing.T) {
	dir := t.TempDir()
	s, err := scanstore.Create(filepath.Join(dir, "scan_0_writer_0.store"))
	require.NoError(t, err)
	defer s.Close()

	entries := []scanstore.Entry{
		{Address: 0x1010, Current: []byte{0x34, 0x12, 0x00, 0x00}, Previous: []byte{0x34, 0x12, 0x00, 0x00}, First: []byte{0x34, 0x12, 0x00, 0x00}},
		{Address: 0x1400, Current: []byte{0x34, 0x12, 0x00, 0x00}, Previous: []byte{0x34, 0x12, 0x00, 0x00}, First: []byte{0x34, 0x12, 0x00, 0x00}},
		{Address: 0x1F00, Current: []byte{0x34, 0x12, 0x00, 0x00}, Previous: []byte{0x34, 0x12, 0x00, 0x00}, First: []byte{0x34, 0x12, 0x00, 0x00}},
	}

	for _, e := range entries {
		_, err := s.Append(e)
		require.NoError(t, err)
	}

	require.EqualValues(t, 3, s.Count())

	got, err := s.ReadRange(0, 3)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestStore_ReadRangeClampsToCount(t *testing.T) {
	dir := t.TempDir()
	s, err := scanstore.Create(filepath.Join(dir, "scan_0_writer_0.store"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(scanstore.Entry{Address: 1, Current: []byte{1}, Previous: []byte{1}, First: []byte{1}})
	require.NoError(t, err)

	got, err := s.ReadRange(0, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.ReadRange(5, 10)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStore_EnumerateAllMatchesAppendOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := scanstore.Create(filepath.Join(dir, "scan_0_writer_0.store"))
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 5; i++ {
		_, err := s.Append(scanstore.Entry{
			Address:  uint64(0x1000 + i),
			Current:  []byte{byte(i)},
			Previous: []byte{byte(i)},
			First:    []byte{byte(i)},
		})
		require.NoError(t, err)
	}

	all, err := s.EnumerateAll()
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, e := range all {
		require.EqualValues(t, 0x1000+i, e.Address)
	}
}

func TestStore_Truncate(t *testing.T) {
	dir := t.TempDir()
	s, err := scanstore.Create(filepath.Join(dir, "scan_0_writer_0.store"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(scanstore.Entry{Address: 1, Current: []byte{1}, Previous: []byte{1}, First: []byte{1}})
	require.NoError(t, err)

	require.NoError(t, s.Truncate())
	require.EqualValues(t, 0, s.Count())

	all, err := s.EnumerateAll()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestStore_OpenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan_0_writer_0.store")

	s, err := scanstore.Create(path)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := s.Append(scanstore.Entry{
			Address:  uint64(0x2000 + i),
			Current:  []byte{0xAA, byte(i)},
			Previous: []byte{0xAA, byte(i)},
			First:    []byte{0xAA, byte(i)},
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	reopened, err := scanstore.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.EqualValues(t, 4, reopened.Count())
	all, err := reopened.EnumerateAll()
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.EqualValues(t, 0x2000, all[0].Address)
}

func TestStore_Release(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan_0_writer_0.store")

	s, err := scanstore.Create(path)
	require.NoError(t, err)
	require.NoError(t, s.Release())

	_, err = scanstore.Open(path)
	require.Error(t, err)
}

func TestStore_RejectsMismatchedLengths(t *testing.T) {
	dir := t.TempDir()
	s, err := scanstore.Create(filepath.Join(dir, "scan_0_writer_0.store"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Append(scanstore.Entry{Address: 1, Current: []byte{1, 2}, Previous: []byte{1}, First: []byte{1}})
	require.Error(t, err)
}
