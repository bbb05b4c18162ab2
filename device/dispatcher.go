// Package device provides the data-parallel execution primitives the compute
// stages run on: a persistent worker pool processing an index space in
// cooperative blocks, and bounded arenas with atomic write cursors.
package device

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/sightfield/vision"
)

// serialThreshold is the minimum work-item count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const serialThreshold = 64

// Block is a contiguous range of work items (lanes) handled by one
// cooperative block.
type Block struct {
	Start, End int
}

// Scratch holds per-worker reusable buffers. Units is the block-shared
// staging area unit batches are copied into before lanes evaluate against
// them; staging happens at block scope, before any lane-dependent control
// flow, so every lane observes a fully staged batch. The remaining slices
// are per-lane accumulators, one element per lane in the current block.
type Scratch struct {
	Units     []vision.UnitContribution
	IslandIdx []int

	Eyes    []vision.Vec3
	Skip    []bool
	Dist    []float32
	Point   []float32
	Nearest []uint32
}

// Kernel processes one block of lanes using the worker's scratch.
type Kernel func(b Block, s *Scratch)

// workItem pairs a block with the kernel to run on it.
type workItem struct {
	block  Block
	kernel Kernel
}

// Dispatcher owns the persistent worker pool.
type Dispatcher struct {
	numWorkers   int
	blockSize    int
	stagingBatch int

	scratches []Scratch

	workChan chan workItem
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewDispatcher creates a dispatcher. workers <= 0 means one per logical CPU.
func NewDispatcher(workers, blockSize, stagingBatch int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if blockSize <= 0 {
		blockSize = 64
	}
	if stagingBatch <= 0 {
		stagingBatch = 32
	}
	scratches := make([]Scratch, workers)
	for i := range scratches {
		scratches[i].Units = make([]vision.UnitContribution, 0, stagingBatch)
		scratches[i].IslandIdx = make([]int, 0, vision.MaxIslands)
		scratches[i].Eyes = make([]vision.Vec3, blockSize)
		scratches[i].Skip = make([]bool, blockSize)
		scratches[i].Dist = make([]float32, blockSize)
		scratches[i].Point = make([]float32, blockSize)
		scratches[i].Nearest = make([]uint32, blockSize)
	}
	return &Dispatcher{
		numWorkers:   workers,
		blockSize:    blockSize,
		stagingBatch: stagingBatch,
		scratches:    scratches,
	}
}

// BlockSize returns the lane count per block.
func (d *Dispatcher) BlockSize() int { return d.blockSize }

// StagingBatch returns the unit staging batch width.
func (d *Dispatcher) StagingBatch() int { return d.stagingBatch }

// Start launches the persistent worker goroutines.
func (d *Dispatcher) Start() {
	if d.running {
		return
	}
	d.workChan = make(chan workItem, d.numWorkers)
	d.doneChan = make(chan struct{}, d.numWorkers)
	d.stopChan = make(chan struct{})
	d.running = true

	for i := 0; i < d.numWorkers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop signals all workers to exit and waits for them.
func (d *Dispatcher) Stop() {
	if !d.running {
		return
	}
	close(d.stopChan)
	d.wg.Wait()
	close(d.workChan)
	close(d.doneChan)
	d.running = false
}

// worker runs in a goroutine, processing blocks until stopped.
func (d *Dispatcher) worker(workerID int) {
	defer d.wg.Done()
	scratch := &d.scratches[workerID]

	for {
		select {
		case <-d.stopChan:
			return
		case item, ok := <-d.workChan:
			if !ok {
				return
			}
			item.kernel(item.block, scratch)
			d.doneChan <- struct{}{}
		}
	}
}

// Run executes kernel over the index space [0, n), split into blocks. It
// returns once every block has completed; blocks may execute in any order
// and concurrently, so kernels must only write through disjoint regions or
// atomic cursors.
func (d *Dispatcher) Run(n int, kernel Kernel) {
	if n <= 0 {
		return
	}
	if n < serialThreshold || !d.running {
		// Single-threaded for small dispatches, same block structure.
		scratch := &d.scratches[0]
		for start := 0; start < n; start += d.blockSize {
			end := min(start+d.blockSize, n)
			kernel(Block{Start: start, End: end}, scratch)
		}
		return
	}

	dispatched := 0
	for start := 0; start < n; start += d.blockSize {
		end := min(start+d.blockSize, n)
		d.workChan <- workItem{block: Block{Start: start, End: end}, kernel: kernel}
		dispatched++
	}
	for i := 0; i < dispatched; i++ {
		<-d.doneChan
	}
}

// WorkSize is a per-group dispatch descriptor: how many blocks stage 3 needs
// for the group's candidate count, computed without reading counts back to
// the host.
type WorkSize struct {
	Items  int
	Blocks int
}

// SizeFor ceiling-divides an item count by the block width.
func (d *Dispatcher) SizeFor(items int) WorkSize {
	if items <= 0 {
		return WorkSize{}
	}
	return WorkSize{
		Items:  items,
		Blocks: (items + d.blockSize - 1) / d.blockSize,
	}
}
