package scanpipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hexwalker/vertex/internal/vlog"
	"github.com/hexwalker/vertex/scanstore"
)

// MemoryReader is the subset of the plugin gateway the pipeline needs;
// narrowed to one method so tests can fake it without a real plugin.
type MemoryReader interface {
	ReadMemory(ctx context.Context, addr uint64, out []byte) (int, error)
}

const (
	minThreadBufferMB = 1
	maxThreadBufferMB = 512
	oneMiB            = 1 << 20
	nextScanBundleGap = 512 // bundle previous-addresses <=512 bytes apart
)

// Pipeline is one scan iteration's reader pool. Each reader is its
// own writer: reader i owns its assigned region bucket and writers[i],
// with no central writer thread and no cross-reader contention on the
// result store.
type Pipeline struct {
	cfg        Configuration
	comparator Comparator
	reader     MemoryReader
	writers    []*scanstore.Store
	bufferSize int // bytes per plugin read, clamped from threadBufferSizeMB

	regionsScanned paddedUint64
	totalRegions   paddedUint64
	scanAbort      paddedBool

	activeReaders   atomic.Int64
	pendingPerWriter []paddedUint64

	wg sync.WaitGroup
}

// New builds a pipeline with one writer store per reader. Callers
// provide the already-created stores for this iteration, one per
// reader thread.
func New(cfg Configuration, reader MemoryReader, writers []*scanstore.Store, threadBufferSizeMB int) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(writers) == 0 {
		return nil, fmt.Errorf("scanpipeline: at least one writer region is required")
	}
	if threadBufferSizeMB < minThreadBufferMB {
		threadBufferSizeMB = minThreadBufferMB
	}
	if threadBufferSizeMB > maxThreadBufferMB {
		threadBufferSizeMB = maxThreadBufferMB
	}

	p := &Pipeline{
		cfg:              cfg,
		comparator:       ResolveComparator(cfg),
		reader:           reader,
		writers:          writers,
		bufferSize:       threadBufferSizeMB * oneMiB,
		pendingPerWriter: make([]paddedUint64, len(writers)),
	}
	return p, nil
}

// RunInitialScan partitions regions across the reader pool by bytes
// (greedy least-loaded assignment) and scans each region independently.
// It returns once every task has been dispatched; scan progress and
// completion are observed via RegionsScanned/IsComplete, not by
// blocking here.
func (p *Pipeline) RunInitialScan(ctx context.Context, regions []Region) error {
	if len(regions) == 0 {
		return fmt.Errorf("scanpipeline: InvalidParameter: empty region list")
	}

	p.totalRegions.Store(uint64(len(regions)))
	p.regionsScanned.Store(0)

	buckets := partitionByBytes(regions, len(p.writers))

	p.activeReaders.Store(int64(len(p.writers)))
	for i, tasks := range buckets {
		p.wg.Add(1)
		go p.runReader(ctx, i, tasks)
	}
	return nil
}

func (p *Pipeline) runReader(ctx context.Context, writerIdx int, regions []Region) {
	defer p.wg.Done()
	defer p.activeReaders.Add(-1)

	for _, r := range regions {
		if p.scanAbort.Load() {
			return
		}
		p.scanRegion(ctx, writerIdx, r)
		p.regionsScanned.Add(1)
	}
}

func (p *Pipeline) scanRegion(ctx context.Context, writerIdx int, region Region) {
	valueSize := p.cfg.ValueSize()
	if valueSize <= 0 {
		return
	}
	stride := p.cfg.Stride()

	chunkSize := p.bufferSize
	if uint64(chunkSize) > region.Size {
		chunkSize = int(region.Size)
	}
	buf := make([]byte, chunkSize)

	var sinceCheckpoint int

	for off := uint64(0); off < region.Size; {
		if p.scanAbort.Load() {
			return
		}

		remaining := region.Size - off
		want := uint64(chunkSize)
		if want > remaining {
			want = remaining
		}
		n, err := p.reader.ReadMemory(ctx, region.Base+off, buf[:want])
		if err != nil || n == 0 {
			// Scan readers log-and-skip the failing region rather than
			// abort the whole scan.
			vlog.For("scan").Warn("region read failed, skipping region",
				"base", region.Base, "offset", off, "read", n, "error", err)
			return
		}

		for local := 0; local+valueSize <= n; local += stride {
			sinceCheckpoint += stride
			if sinceCheckpoint >= oneMiB {
				sinceCheckpoint = 0
				if p.scanAbort.Load() {
					return
				}
			}

			addr := region.Base + off + uint64(local)
			current := buf[local : local+valueSize]
			if !p.comparator(current, nil, p.cfg.Primary, p.cfg.Secondary) {
				continue
			}

			entry := scanstore.Entry{
				Address:  addr,
				Current:  append([]byte(nil), current...),
				Previous: append([]byte(nil), current...),
				First:    append([]byte(nil), current...),
			}
			p.appendResult(writerIdx, entry)
		}

		off += want
	}
}

func (p *Pipeline) appendResult(writerIdx int, e scanstore.Entry) {
	p.pendingPerWriter[writerIdx].Add(1)
	defer p.pendingPerWriter[writerIdx].Add(^uint64(0)) // -1
	if _, err := p.writers[writerIdx].Append(e); err != nil {
		// Append failures are store-level I/O errors, not scan misses;
		// the entry is dropped and the failure is not reported to the
		// controller.
		return
	}
}

// RunNextScan re-scans only the previous iteration's result addresses,
// bundling addresses that are <=512 bytes apart into a single plugin
// read per bundle.
func (p *Pipeline) RunNextScan(ctx context.Context, previous [][]scanstore.Entry) error {
	if len(previous) != len(p.writers) {
		return fmt.Errorf("scanpipeline: previous entry set must have one slice per writer")
	}

	p.totalRegions.Store(uint64(len(p.writers)))
	p.regionsScanned.Store(0)
	p.activeReaders.Store(int64(len(p.writers)))

	for i, entries := range previous {
		p.wg.Add(1)
		go func(writerIdx int, entries []scanstore.Entry) {
			defer p.wg.Done()
			defer p.activeReaders.Add(-1)
			p.rescanBundles(ctx, writerIdx, entries)
			p.regionsScanned.Add(1)
		}(i, entries)
	}
	return nil
}

func (p *Pipeline) rescanBundles(ctx context.Context, writerIdx int, entries []scanstore.Entry) {
	for _, bundle := range bundleAdjacent(entries, nextScanBundleGap) {
		if p.scanAbort.Load() {
			return
		}
		p.rescanBundle(ctx, writerIdx, bundle)
	}
}

func (p *Pipeline) rescanBundle(ctx context.Context, writerIdx int, bundle []scanstore.Entry) {
	if len(bundle) == 0 {
		return
	}
	valueSize := p.cfg.ValueSize()
	if valueSize <= 0 {
		return
	}

	lo := bundle[0].Address
	hi := bundle[len(bundle)-1].Address + uint64(valueSize)
	span := int(hi - lo)
	buf := make([]byte, span)

	n, err := p.reader.ReadMemory(ctx, lo, buf)
	if err != nil || n < span {
		return
	}

	for _, prev := range bundle {
		off := int(prev.Address - lo)
		if off+valueSize > n {
			continue
		}
		current := buf[off : off+valueSize]
		if !p.comparator(current, prev.Current, p.cfg.Primary, p.cfg.Secondary) {
			continue
		}
		entry := scanstore.Entry{
			Address:  prev.Address,
			Current:  append([]byte(nil), current...),
			Previous: append([]byte(nil), prev.Current...),
			First:    append([]byte(nil), prev.First...),
		}
		p.appendResult(writerIdx, entry)
	}
}

// Abort requests cooperative shutdown; readers observe it at the top
// of each region/bundle loop and at every 1 MiB inner checkpoint.
func (p *Pipeline) Abort() { p.scanAbort.Store(true) }

// Wait blocks until every reader goroutine has returned. It has no
// upper bound: a stuck plugin read can keep it waiting indefinitely.
func (p *Pipeline) Wait() { p.wg.Wait() }

// RegionsScanned and TotalRegions report scan progress.
func (p *Pipeline) RegionsScanned() uint64 { return p.regionsScanned.Load() }
func (p *Pipeline) TotalRegions() uint64   { return p.totalRegions.Load() }

// IsComplete reports whether every reader has exited and every
// writer's pending-append counter has drained.
func (p *Pipeline) IsComplete() bool {
	if p.activeReaders.Load() != 0 {
		return false
	}
	for i := range p.pendingPerWriter {
		if p.pendingPerWriter[i].Load() != 0 {
			return false
		}
	}
	return true
}

// partitionByBytes assigns regions to n buckets by always placing the
// next region into the currently least-loaded bucket (by accumulated
// bytes), approximating the spec's "round-robin over region bytes."
func partitionByBytes(regions []Region, n int) [][]Region {
	buckets := make([][]Region, n)
	loads := make([]uint64, n)
	for _, r := range regions {
		idx := 0
		for i := 1; i < n; i++ {
			if loads[i] < loads[idx] {
				idx = i
			}
		}
		buckets[idx] = append(buckets[idx], r)
		loads[idx] += r.Size
	}
	return buckets
}

// bundleAdjacent groups entries (already in address order from the
// store's insertion order... not guaranteed sorted across a scan, so
// this sorts first) into runs separated by at most gap bytes.
func bundleAdjacent(entries []scanstore.Entry, gap uint64) [][]scanstore.Entry {
	if len(entries) == 0 {
		return nil
	}
	sorted := append([]scanstore.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	var bundles [][]scanstore.Entry
	current := []scanstore.Entry{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		prev := current[len(current)-1]
		if sorted[i].Address-prev.Address <= gap {
			current = append(current, sorted[i])
			continue
		}
		bundles = append(bundles, current)
		current = []scanstore.Entry{sorted[i]}
	}
	bundles = append(bundles, current)
	return bundles
}
