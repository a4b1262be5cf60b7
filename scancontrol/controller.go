// Package scancontrol orchestrates a scan's lifecycle: starting an
// initial scan, narrowing with a next-scan, undoing to a prior
// iteration, and stopping a scan in flight. It owns the on-disk
// session directory of writer-region stores and the bounded undo
// deque.
package scancontrol

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/hexwalker/vertex/internal/vlog"
	"github.com/hexwalker/vertex/scanpipeline"
	"github.com/hexwalker/vertex/scanstore"
	"github.com/hexwalker/vertex/vxerr"
)

const maxUndoDepth = 10

// snapshot is one entry of the undo deque: the writer stores and
// configuration of a completed scan iteration.
type snapshot struct {
	iteration uint32
	writers   []*scanstore.Store
	cfg       scanpipeline.Configuration
}

// Stats reports a scan's live progress.
type Stats struct {
	Iteration      uint32
	RegionsScanned uint64
	TotalRegions   uint64
	ResultCount    uint64
	Complete       bool
}

// Controller owns one scan session's lifecycle.
type Controller struct {
	sessionDir    string
	readerThreads int
	bufferSizeMB  int
	reader        scanpipeline.MemoryReader

	iteration uint32
	writers   []*scanstore.Store
	cfg       scanpipeline.Configuration
	pipeline  *scanpipeline.Pipeline

	undo []snapshot

	log *slog.Logger
}

// New creates a controller rooted at sessionDir (created on demand).
// reader is the plugin gateway's memory-read surface; readerThreads
// and bufferSizeMB come from settings (memoryScan.readerThreads,
// memoryScan.threadBufferSizeMB).
func New(sessionDir string, reader scanpipeline.MemoryReader, readerThreads, bufferSizeMB int) *Controller {
	if readerThreads < 1 {
		readerThreads = 1
	}
	return &Controller{
		sessionDir:    sessionDir,
		readerThreads: readerThreads,
		bufferSizeMB:  bufferSizeMB,
		reader:        reader,
		log:           vlog.For("scan"),
	}
}

func (c *Controller) writerPath(iteration uint32, writer int) string {
	return filepath.Join(c.sessionDir, fmt.Sprintf("scan_%d_writer_%d.store", iteration, writer))
}

// InitializeScan starts a fresh generation: clears the undo history
// (releasing its backing stores), allocates N writer regions, and
// launches the reader pool against regions.
func (c *Controller) InitializeScan(ctx context.Context, cfg scanpipeline.Configuration, regions []scanpipeline.Region) error {
	if len(regions) == 0 {
		return vxerr.New(vxerr.KindInvalidParameter, "scancontrol.InitializeScan", "empty region list")
	}
	if err := cfg.Validate(); err != nil {
		return vxerr.Wrap(vxerr.KindInputValidation, "scancontrol.InitializeScan", err)
	}
	if err := os.MkdirAll(c.sessionDir, 0o755); err != nil {
		return vxerr.Wrap(vxerr.KindGeneral, "scancontrol.InitializeScan", err)
	}

	c.releaseUndoHistory()
	c.closeAndReleaseWriters(c.writers)
	c.writers = nil

	c.iteration = 1
	writers, err := c.createWriters(c.iteration)
	if err != nil {
		return err
	}

	pl, err := scanpipeline.New(cfg, c.reader, writers, c.bufferSizeMB)
	if err != nil {
		return vxerr.Wrap(vxerr.KindInputValidation, "scancontrol.InitializeScan", err)
	}
	if err := pl.RunInitialScan(ctx, regions); err != nil {
		return vxerr.Wrap(vxerr.KindInvalidParameter, "scancontrol.InitializeScan", err)
	}

	c.writers = writers
	c.cfg = cfg
	c.pipeline = pl
	c.log.Info("initial scan started", "regions", len(regions), "readers", len(writers))
	return nil
}

// InitializeNextScan pushes the current iteration onto the undo deque
// (evicting and releasing the oldest at depth 10) and narrows the
// result set under the new configuration.
func (c *Controller) InitializeNextScan(ctx context.Context, cfg scanpipeline.Configuration) error {
	if c.pipeline == nil {
		return vxerr.New(vxerr.KindGeneral, "scancontrol.InitializeNextScan", "no active scan to narrow")
	}
	if !c.pipeline.IsComplete() {
		return vxerr.New(vxerr.KindGeneral, "scancontrol.InitializeNextScan", "previous scan iteration is still running")
	}
	cfg.IsNextScan = true
	if err := cfg.Validate(); err != nil {
		return vxerr.Wrap(vxerr.KindInputValidation, "scancontrol.InitializeNextScan", err)
	}

	previous, err := c.enumerateCurrentWriters(ctx)
	if err != nil {
		return vxerr.Wrap(vxerr.KindGeneral, "scancontrol.InitializeNextScan", err)
	}

	c.pushUndo()

	nextIteration := c.iteration + 1
	writers, err := c.createWriters(nextIteration)
	if err != nil {
		return err
	}

	pl, err := scanpipeline.New(cfg, c.reader, writers, c.bufferSizeMB)
	if err != nil {
		return vxerr.Wrap(vxerr.KindInputValidation, "scancontrol.InitializeNextScan", err)
	}
	if err := pl.RunNextScan(ctx, previous); err != nil {
		return vxerr.Wrap(vxerr.KindGeneral, "scancontrol.InitializeNextScan", err)
	}

	c.iteration = nextIteration
	c.writers = writers
	c.cfg = cfg
	c.pipeline = pl
	c.log.Info("next scan started", "iteration", c.iteration)
	return nil
}

// UndoScan restores the most recently pushed snapshot, discarding the
// current iteration's backing stores.
func (c *Controller) UndoScan() error {
	if len(c.undo) == 0 {
		return vxerr.New(vxerr.KindNoUndoAvailable, "scancontrol.UndoScan", "undo deque is empty")
	}

	last := len(c.undo) - 1
	snap := c.undo[last]
	c.undo = c.undo[:last]

	c.closeAndReleaseWriters(c.writers)

	c.iteration = snap.iteration
	c.writers = snap.writers
	c.cfg = snap.cfg
	c.pipeline = nil // the restored generation has no in-flight reader pool
	c.log.Info("scan undone", "iteration", c.iteration)
	return nil
}

// StopScan aborts the active pipeline and joins every reader,
// preserving whatever partial results were already written.
func (c *Controller) StopScan() error {
	if c.pipeline == nil {
		return nil
	}
	c.pipeline.Abort()
	c.pipeline.Wait()
	return nil
}

// Stats reports the active pipeline's progress, or a zero-progress,
// complete Stats if no scan is running.
func (c *Controller) Stats() Stats {
	var resultCount uint64
	for _, w := range c.writers {
		resultCount += w.Count()
	}
	if c.pipeline == nil {
		return Stats{Iteration: c.iteration, ResultCount: resultCount, Complete: true}
	}
	return Stats{
		Iteration:      c.iteration,
		RegionsScanned: c.pipeline.RegionsScanned(),
		TotalRegions:   c.pipeline.TotalRegions(),
		ResultCount:    resultCount,
		Complete:       c.pipeline.IsComplete(),
	}
}

// Results enumerates every writer region's current entries in writer
// order.
func (c *Controller) Results(ctx context.Context) ([]scanstore.Entry, error) {
	perWriter, err := c.enumerateCurrentWriters(ctx)
	if err != nil {
		return nil, err
	}
	var all []scanstore.Entry
	for _, entries := range perWriter {
		all = append(all, entries...)
	}
	return all, nil
}

func (c *Controller) createWriters(iteration uint32) ([]*scanstore.Store, error) {
	writers := make([]*scanstore.Store, c.readerThreads)
	var g errgroup.Group
	for i := 0; i < c.readerThreads; i++ {
		i := i
		g.Go(func() error {
			s, err := scanstore.Create(c.writerPath(iteration, i))
			if err != nil {
				return err
			}
			writers[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, vxerr.Wrap(vxerr.KindGeneral, "scancontrol.createWriters", err)
	}
	return writers, nil
}

func (c *Controller) enumerateCurrentWriters(ctx context.Context) ([][]scanstore.Entry, error) {
	out := make([][]scanstore.Entry, len(c.writers))
	var g errgroup.Group
	for i, w := range c.writers {
		i, w := i, w
		g.Go(func() error {
			entries, err := w.EnumerateAll()
			if err != nil {
				return err
			}
			out[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Controller) pushUndo() {
	c.undo = append(c.undo, snapshot{iteration: c.iteration, writers: c.writers, cfg: c.cfg})
	if len(c.undo) > maxUndoDepth {
		evicted := c.undo[0]
		c.undo = c.undo[1:]
		c.closeAndReleaseWriters(evicted.writers)
	}
}

func (c *Controller) releaseUndoHistory() {
	for _, snap := range c.undo {
		c.closeAndReleaseWriters(snap.writers)
	}
	c.undo = nil
}

func (c *Controller) closeAndReleaseWriters(writers []*scanstore.Store) {
	for _, w := range writers {
		if w != nil {
			w.Release()
		}
	}
}
