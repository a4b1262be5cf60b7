// Package scanstore is the disk-backed, append-only result store for
// one writer region of one scan iteration. Layout on disk is
// [count:u64][tuple...], tuple = [address:u64][len:u32][current][previous][first].
// Single writer, many readers: the writer flushes tuple bytes to the
// backing file before publishing the new count, so a reader that
// observes count==n via Count() is guaranteed the first n tuples are
// durable and decodable.
package scanstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

const headerSize = 8

// Entry is one scan result tuple.
type Entry struct {
	Address  uint64
	Current  []byte
	Previous []byte
	First    []byte
}

func (e Entry) encodedSize() int64 {
	return 8 + 4 + 3*int64(len(e.Current))
}

// Store is one writer region's append-only backing file.
type Store struct {
	path string
	f    *os.File

	// count is loaded/stored with acquire/release semantics: the
	// writer bumps it only after the corresponding tuple bytes have
	// been written to the backing file.
	count atomic.Uint64

	mu      sync.RWMutex // guards offsets and writer-side appends
	offsets []int64      // offsets[i] = byte offset of tuple i within f
}

// Create makes a fresh store at path, truncating any existing file.
func Create(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("scanstore: create %s: %w", path, err)
	}
	s := &Store{path: path, f: f}
	if err := s.writeHeader(0); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Open reopens an existing store, rebuilding the offset index by
// walking the recorded tuples.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("scanstore: open %s: %w", path, err)
	}
	s := &Store{path: path, f: f}
	count, err := s.readHeaderCount()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := s.rebuildIndex(count); err != nil {
		f.Close()
		return nil, err
	}
	s.count.Store(count)
	return s, nil
}

func (s *Store) writeHeader(count uint64) error {
	var b [headerSize]byte
	binary.LittleEndian.PutUint64(b[:], count)
	if _, err := s.f.WriteAt(b[:], 0); err != nil {
		return fmt.Errorf("scanstore: write header: %w", err)
	}
	return nil
}

func (s *Store) readHeaderCount() (uint64, error) {
	var b [headerSize]byte
	if _, err := s.f.ReadAt(b[:], 0); err != nil {
		return 0, fmt.Errorf("scanstore: read header: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (s *Store) rebuildIndex(count uint64) error {
	s.offsets = make([]int64, 0, count)
	off := int64(headerSize)
	for i := uint64(0); i < count; i++ {
		s.offsets = append(s.offsets, off)
		var hdr [12]byte
		if _, err := s.f.ReadAt(hdr[:], off); err != nil {
			return fmt.Errorf("scanstore: rebuild index at tuple %d: %w", i, err)
		}
		valLen := binary.LittleEndian.Uint32(hdr[8:12])
		off += 12 + 3*int64(valLen)
	}
	return nil
}

// Append writes one entry at the end of the store and publishes the
// new count. It returns the entry's zero-based index within this
// store.
func (s *Store) Append(e Entry) (int, error) {
	if len(e.Current) != len(e.Previous) || len(e.Current) != len(e.First) {
		return 0, fmt.Errorf("scanstore: current/previous/first length mismatch (%d/%d/%d)",
			len(e.Current), len(e.Previous), len(e.First))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	off := int64(headerSize)
	if len(s.offsets) > 0 {
		last := s.offsets[len(s.offsets)-1]
		var hdr [12]byte
		if _, err := s.f.ReadAt(hdr[:], last); err != nil {
			return 0, fmt.Errorf("scanstore: append: locate tail: %w", err)
		}
		valLen := binary.LittleEndian.Uint32(hdr[8:12])
		off = last + 12 + 3*int64(valLen)
	}

	buf := make([]byte, 12+3*len(e.Current))
	binary.LittleEndian.PutUint64(buf[0:8], e.Address)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(e.Current)))
	copy(buf[12:], e.Current)
	copy(buf[12+len(e.Current):], e.Previous)
	copy(buf[12+2*len(e.Current):], e.First)

	if _, err := s.f.WriteAt(buf, off); err != nil {
		return 0, fmt.Errorf("scanstore: append: write tuple: %w", err)
	}

	idx := len(s.offsets)
	s.offsets = append(s.offsets, off)

	newCount := uint64(idx + 1)
	if err := s.writeHeader(newCount); err != nil {
		return 0, err
	}
	s.count.Store(newCount) // release: publishes after tuple+header are on disk

	return idx, nil
}

// Count returns the number of durable entries (acquire-load).
func (s *Store) Count() uint64 {
	return s.count.Load()
}

// ReadRange reads entries [start, start+n) in insertion order. The
// range is clamped to Count(); requesting past the end returns
// whatever is available, which may be fewer than n entries.
func (s *Store) ReadRange(start, n int) ([]Entry, error) {
	count := int(s.count.Load())
	if start >= count || n <= 0 {
		return nil, nil
	}
	end := start + n
	if end > count {
		end = count
	}

	s.mu.RLock()
	offs := make([]int64, end-start)
	copy(offs, s.offsets[start:end])
	s.mu.RUnlock()

	out := make([]Entry, 0, len(offs))
	for _, off := range offs {
		e, err := s.readAt(off)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) readAt(off int64) (Entry, error) {
	var hdr [12]byte
	if _, err := s.f.ReadAt(hdr[:], off); err != nil {
		return Entry{}, fmt.Errorf("scanstore: read tuple header: %w", err)
	}
	addr := binary.LittleEndian.Uint64(hdr[0:8])
	valLen := binary.LittleEndian.Uint32(hdr[8:12])

	body := make([]byte, 3*valLen)
	if _, err := s.f.ReadAt(body, off+12); err != nil {
		return Entry{}, fmt.Errorf("scanstore: read tuple body: %w", err)
	}

	return Entry{
		Address:  addr,
		Current:  append([]byte(nil), body[:valLen]...),
		Previous: append([]byte(nil), body[valLen:2*valLen]...),
		First:    append([]byte(nil), body[2*valLen:3*valLen]...),
	}, nil
}

// EnumerateAll reads every entry currently in the store.
func (s *Store) EnumerateAll() ([]Entry, error) {
	return s.ReadRange(0, int(s.count.Load()))
}

// Truncate discards every entry, resetting the store to empty. The
// backing file is truncated to just its header.
func (s *Store) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.f.Truncate(headerSize); err != nil {
		return fmt.Errorf("scanstore: truncate: %w", err)
	}
	if err := s.writeHeader(0); err != nil {
		return err
	}
	s.offsets = s.offsets[:0]
	s.count.Store(0)
	return nil
}

// Release closes the store and removes its backing file, used when
// an undo snapshot is evicted or a scan iteration is discarded.
func (s *Store) Release() error {
	path := s.path
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("scanstore: release: close: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scanstore: release: remove %s: %w", path, err)
	}
	return nil
}

// Close closes the backing file without removing it.
func (s *Store) Close() error {
	return s.f.Close()
}

// Path returns the store's backing file path.
func (s *Store) Path() string { return s.path }
