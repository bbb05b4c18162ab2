// Package pipeline runs the per-cycle visibility computation: it aggregates
// the entity store into flat input arrays, executes the fog, broad-phase and
// ray-march stages on the dispatcher, ships confirmed entries through the
// latency-tolerant transfer queue, and diffs published snapshots into
// enter/exit events.
package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/sightfield/config"
	"github.com/pthm-cable/sightfield/device"
	"github.com/pthm-cable/sightfield/telemetry"
	"github.com/pthm-cable/sightfield/vision"
	"github.com/pthm-cable/sightfield/world"
)

// Pipeline owns all per-cycle state. It is not safe for concurrent Cycle
// calls; readers consume results through Snapshot, which is safe from any
// goroutine.
type Pipeline struct {
	cfg   *config.Config
	world *world.World
	dev   *device.Dispatcher
	perf  *telemetry.PerfCollector

	frame      frame
	unitBuf    []vision.UnitContribution
	seeableBuf []vision.SeeableEntity

	maxUnits    int
	maxSeeables int

	candidates *device.Arena[vision.Candidate]
	entries    *device.Arena[vision.Entry]
	work       [vision.MaxGroups]device.WorkSize

	// groupOrder is the dispatch order for the per-group stages. Results
	// must not depend on it; it only exists so the stages have a defined
	// iteration seam.
	groupOrder [vision.MaxGroups]int

	fog        *FogVolume
	fogElapsed float32
	transfer   *Transfer
	detector   *Detector

	cycle  uint64
	events []telemetry.Event
	stats  CycleStats
}

// CycleStats reports what the most recent cycle dropped or lost. All fields
// zero means the cycle ran clean.
type CycleStats struct {
	Cycle            uint64
	UnitDrops        int
	SeeableDrops     int
	CandidateDrops   int
	EntryDrops       int
	TransferFailures int
}

func (s CycleStats) any() bool {
	return s.UnitDrops+s.SeeableDrops+s.CandidateDrops+s.EntryDrops+s.TransferFailures > 0
}

// New validates the configuration and preallocates every buffer the pipeline
// will ever use. A config that cannot produce a working pipeline is rejected
// here rather than discovered mid-cycle.
func New(cfg *config.Config, w *world.World, dev *device.Dispatcher, perf *telemetry.PerfCollector) (*Pipeline, error) {
	pc := cfg.Pipeline
	if pc.MaxUnits <= 0 || pc.MaxSeeables <= 0 {
		return nil, fmt.Errorf("pipeline: unit/seeable capacities must be positive (units=%d seeables=%d)", pc.MaxUnits, pc.MaxSeeables)
	}
	if pc.MaxCandidatesPerGroup <= 0 || pc.MaxVisiblePerGroup <= 0 {
		return nil, fmt.Errorf("pipeline: per-group capacities must be positive (candidates=%d visible=%d)", pc.MaxCandidatesPerGroup, pc.MaxVisiblePerGroup)
	}
	if cfg.Transfer.LatencyCycles < 0 {
		return nil, fmt.Errorf("pipeline: transfer latency must be >= 0, got %d", cfg.Transfer.LatencyCycles)
	}
	if cfg.Fog.Enabled && cfg.Fog.UpdateInterval <= 0 {
		return nil, fmt.Errorf("pipeline: fog update interval must be positive, got %d", cfg.Fog.UpdateInterval)
	}

	p := &Pipeline{
		cfg:         cfg,
		world:       w,
		dev:         dev,
		perf:        perf,
		unitBuf:     make([]vision.UnitContribution, pc.MaxUnits),
		seeableBuf:  make([]vision.SeeableEntity, 0, pc.MaxSeeables),
		maxUnits:    pc.MaxUnits,
		maxSeeables: pc.MaxSeeables,
		candidates:  device.NewArena[vision.Candidate](vision.MaxGroups, pc.MaxCandidatesPerGroup),
		entries:     device.NewArena[vision.Entry](vision.MaxGroups, pc.MaxVisiblePerGroup),
		transfer:    NewTransfer(vision.MaxGroups, pc.MaxVisiblePerGroup, cfg.Transfer.LatencyCycles),
		detector:    NewDetector(),
	}
	p.frame.islands = make([]vision.Island, 0, vision.MaxIslands)
	for g := range p.groupOrder {
		p.groupOrder[g] = g
	}

	if cfg.Fog.Enabled {
		fog, err := NewFogVolume(cfg)
		if err != nil {
			return nil, err
		}
		p.fog = fog
	}
	return p, nil
}

// Cycle advances the pipeline by one step. Order matters: results from an
// earlier cycle are polled and diffed before this cycle's inputs are rebuilt,
// so a reader never observes a half-written state.
func (p *Pipeline) Cycle(dt float32) {
	if p.perf != nil {
		p.perf.StartCycle()
		p.perf.StartPhase(telemetry.PhasePoll)
	}
	published, failures := p.transfer.Poll()
	if failures > 0 {
		slog.Warn("result transfer failed, keeping previous snapshot",
			"cycle", p.cycle, "failures", failures)
	}

	if p.perf != nil {
		p.perf.StartPhase(telemetry.PhaseDetect)
	}
	p.events = p.events[:0]
	for _, snap := range published {
		p.events = p.detector.Process(snap, p.events)
	}

	p.cycle++

	if p.perf != nil {
		p.perf.StartPhase(telemetry.PhaseAggregate)
	}
	p.aggregate()
	p.candidates.Reset()
	p.entries.Reset()

	if p.perf != nil {
		p.perf.StartPhase(telemetry.PhaseFog)
	}
	if p.fog != nil {
		// Fog runs on its own interval; decay must cover the whole span
		// since the last pass, not just this cycle's dt.
		p.fogElapsed += dt
		if p.cycle%uint64(p.cfg.Fog.UpdateInterval) == 0 {
			p.runFog(p.fogElapsed)
			p.fogElapsed = 0
		}
	}

	if p.perf != nil {
		p.perf.StartPhase(telemetry.PhaseBroadphase)
	}
	p.runBroadphase()
	for g := 0; g < vision.MaxGroups; g++ {
		p.work[g] = p.dev.SizeFor(p.candidates.Count(g))
	}

	if p.perf != nil {
		p.perf.StartPhase(telemetry.PhaseRaymarch)
	}
	p.runRaymarch()

	if p.perf != nil {
		p.perf.StartPhase(telemetry.PhaseTransfer)
	}
	p.transfer.Request(p.cycle, p.entries)
	if p.perf != nil {
		p.perf.EndCycle()
	}

	p.stats = CycleStats{
		Cycle:            p.cycle,
		UnitDrops:        p.frame.unitDrops,
		SeeableDrops:     p.frame.seeableDrops,
		CandidateDrops:   sumDrops(p.candidates),
		EntryDrops:       sumDrops(p.entries),
		TransferFailures: failures,
	}
	if p.stats.any() {
		slog.Warn("cycle capacity drops",
			"cycle", p.stats.Cycle,
			"units", p.stats.UnitDrops,
			"seeables", p.stats.SeeableDrops,
			"candidates", p.stats.CandidateDrops,
			"entries", p.stats.EntryDrops,
			"transfer_failures", p.stats.TransferFailures)
	}
}

func sumDrops[T any](a *device.Arena[T]) int {
	total := 0
	for g := 0; g < vision.MaxGroups; g++ {
		total += int(a.Drops(g))
	}
	return total
}

// Drain polls any in-flight result transfers to completion so the final
// snapshot and events cover the last cycle that ran. Call after the cycle
// loop stops; the events it produces replace the ones from the last Cycle.
func (p *Pipeline) Drain() {
	p.events = p.events[:0]
	for p.transfer.Pending() > 0 {
		published, failures := p.transfer.Poll()
		if failures > 0 {
			slog.Warn("result transfer failed during drain", "failures", failures)
		}
		for _, snap := range published {
			p.events = p.detector.Process(snap, p.events)
		}
	}
}

// Cycle number of the most recently completed cycle.
func (p *Pipeline) CycleCount() uint64 { return p.cycle }

// Snapshot returns the latest published result set. Safe to call from any
// goroutine; the returned snapshot is immutable until two further publishes.
func (p *Pipeline) Snapshot() *ResultSnapshot { return p.transfer.Active() }

// Events returns the enter/exit events produced by the last Cycle call. The
// slice is reused on the next call; copy it to keep it.
func (p *Pipeline) Events() []telemetry.Event { return p.events }

// Stats returns the drop counters from the last Cycle call.
func (p *Pipeline) Stats() CycleStats { return p.stats }

// Fog returns the fog volume, or nil when fog is disabled.
func (p *Pipeline) Fog() *FogVolume { return p.fog }
