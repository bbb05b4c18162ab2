package telemetry

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Phase names for one pipeline cycle.
const (
	PhasePoll       = "poll"
	PhaseAggregate  = "aggregate"
	PhaseFog        = "fog"
	PhaseBroadphase = "broadphase"
	PhaseRaymarch   = "raymarch"
	PhaseTransfer   = "transfer"
	PhaseDetect     = "detect"
)

// phaseOrder fixes the CSV/log ordering.
var phaseOrder = []string{
	PhasePoll, PhaseAggregate, PhaseFog, PhaseBroadphase,
	PhaseRaymarch, PhaseTransfer, PhaseDetect,
}

// PerfSample holds timing data for a single cycle.
type PerfSample struct {
	CycleDuration time.Duration
	Phases        map[string]time.Duration
}

// PerfCollector tracks performance metrics over a rolling window of cycles.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	cycleStart    time.Time
	phaseStart    time.Time
	lastPhase     string

	// scratch for gonum aggregation, reused between Stats calls
	durs []float64
}

// NewPerfCollector creates a collector averaging over windowSize cycles.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
		durs:          make([]float64, 0, windowSize),
	}
}

// StartCycle begins timing a new pipeline cycle.
func (p *PerfCollector) StartCycle() {
	p.cycleStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase begins timing a specific phase, ending the previous one.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndCycle finishes timing the current cycle and records the sample.
func (p *PerfCollector) EndCycle() {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		CycleDuration: now.Sub(p.cycleStart),
		Phases:        p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics for one window.
type PerfStats struct {
	AvgCycleDuration time.Duration
	StdCycleDuration time.Duration
	MinCycleDuration time.Duration
	MaxCycleDuration time.Duration

	// Phase percentages of total cycle time
	PhasePct map[string]float64

	CyclesPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{PhasePct: make(map[string]float64)}
	}

	p.durs = p.durs[:0]
	var minCycle, maxCycle time.Duration
	phaseSum := make(map[string]time.Duration)

	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		p.durs = append(p.durs, float64(s.CycleDuration))

		if i == 0 || s.CycleDuration < minCycle {
			minCycle = s.CycleDuration
		}
		if s.CycleDuration > maxCycle {
			maxCycle = s.CycleDuration
		}
		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}
	}

	mean, std := stat.MeanStdDev(p.durs, nil)
	avg := time.Duration(mean)

	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg := sum / time.Duration(p.sampleCount)
		if avg > 0 {
			phasePct[phase] = float64(phaseAvg) / float64(avg) * 100
		}
	}

	var cyclesPerSec float64
	if avg > 0 {
		cyclesPerSec = float64(time.Second) / float64(avg)
	}

	out := PerfStats{
		AvgCycleDuration: avg,
		MinCycleDuration: minCycle,
		MaxCycleDuration: maxCycle,
		PhasePct:         phasePct,
		CyclesPerSecond:  cyclesPerSec,
	}
	if p.sampleCount > 1 {
		out.StdCycleDuration = time.Duration(std)
	}
	return out
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_cycle_us", s.AvgCycleDuration.Microseconds(),
		"std_cycle_us", s.StdCycleDuration.Microseconds(),
		"min_cycle_us", s.MinCycleDuration.Microseconds(),
		"max_cycle_us", s.MaxCycleDuration.Microseconds(),
		"cycles_per_sec", int(s.CyclesPerSecond),
	}
	for _, phase := range phaseOrder {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_cycle_us", s.AvgCycleDuration.Microseconds()),
		slog.Int64("min_cycle_us", s.MinCycleDuration.Microseconds()),
		slog.Int64("max_cycle_us", s.MaxCycleDuration.Microseconds()),
		slog.Float64("cycles_per_sec", s.CyclesPerSecond),
	}
	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd     uint64  `csv:"window_end"`
	AvgCycleUS    int64   `csv:"avg_cycle_us"`
	StdCycleUS    int64   `csv:"std_cycle_us"`
	MinCycleUS    int64   `csv:"min_cycle_us"`
	MaxCycleUS    int64   `csv:"max_cycle_us"`
	CyclesPerSec  float64 `csv:"cycles_per_sec"`
	PollPct       float64 `csv:"poll_pct"`
	AggregatePct  float64 `csv:"aggregate_pct"`
	FogPct        float64 `csv:"fog_pct"`
	BroadphasePct float64 `csv:"broadphase_pct"`
	RaymarchPct   float64 `csv:"raymarch_pct"`
	TransferPct   float64 `csv:"transfer_pct"`
	DetectPct     float64 `csv:"detect_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd uint64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:     windowEnd,
		AvgCycleUS:    s.AvgCycleDuration.Microseconds(),
		StdCycleUS:    s.StdCycleDuration.Microseconds(),
		MinCycleUS:    s.MinCycleDuration.Microseconds(),
		MaxCycleUS:    s.MaxCycleDuration.Microseconds(),
		CyclesPerSec:  s.CyclesPerSecond,
		PollPct:       s.PhasePct[PhasePoll],
		AggregatePct:  s.PhasePct[PhaseAggregate],
		FogPct:        s.PhasePct[PhaseFog],
		BroadphasePct: s.PhasePct[PhaseBroadphase],
		RaymarchPct:   s.PhasePct[PhaseRaymarch],
		TransferPct:   s.PhasePct[PhaseTransfer],
		DetectPct:     s.PhasePct[PhaseDetect],
	}
}
