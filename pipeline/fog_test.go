package pipeline

import (
	"testing"

	"github.com/pthm-cable/sightfield/config"
	"github.com/pthm-cable/sightfield/vision"
	"github.com/pthm-cable/sightfield/world"
)

// fogTestConfig enables a small fog grid over a compact world box and
// recomputes the derived quantities the fog volume reads.
func fogTestConfig(t *testing.T, interval int) *config.Config {
	t.Helper()
	cfg := testConfig(t)
	cfg.Fog.Enabled = true
	cfg.Fog.PlayerGroup = 0
	cfg.Fog.GridX, cfg.Fog.GridY, cfg.Fog.GridZ = 16, 4, 16
	cfg.Fog.UpdateInterval = interval
	cfg.World.MinX, cfg.World.MinY, cfg.World.MinZ = -40, -10, -40
	cfg.World.MaxX, cfg.World.MaxY, cfg.World.MaxZ = 40, 10, 40
	cfg.ComputeDerived()
	return cfg
}

func TestFogSeenAndDecay(t *testing.T) {
	cfg := fogTestConfig(t, 1)

	w := world.New()
	unit := spawnWatcher(w, 0, vision.Vec3{}, 12, 100)

	p := newTestPipeline(t, cfg, w)
	for i := 0; i < 6; i++ {
		p.Cycle(0.1)
	}

	fog := p.Fog()
	if fog == nil {
		t.Fatalf("fog volume not built")
	}
	near := fog.Sample(vision.Vec3{})
	if near < 0.5 {
		t.Fatalf("visibility at the unit = %v, want > 0.5", near)
	}
	if far := fog.Sample(vision.Vec3{X: 38, Z: 38}); far > 0.05 {
		t.Fatalf("visibility at far corner = %v, want ~0", far)
	}
	// Outside the grid reads as unseen.
	if out := fog.Sample(vision.Vec3{X: 500}); out != 0 {
		t.Fatalf("visibility outside grid = %v, want 0", out)
	}

	// The unit goes dark; its footprint decays instead of vanishing.
	w.VisionSource(unit).Enabled = false
	p.Cycle(0.1)
	after1 := fog.Sample(vision.Vec3{})
	if after1 >= near {
		t.Fatalf("fog did not decay after the unit went dark (%v -> %v)", near, after1)
	}
	if after1 < near*0.5 {
		t.Fatalf("fog vanished instead of decaying (%v -> %v)", near, after1)
	}
	for i := 0; i < 40; i++ {
		p.Cycle(0.1)
	}
	if residual := fog.Sample(vision.Vec3{}); residual > 0.05 {
		t.Fatalf("fog residual after long decay = %v, want ~0", residual)
	}
}

// Dissipation covers the span since the last fog pass, so a slow update
// interval decays just as much per simulated second as a per-cycle one.
func TestFogDissipationScalesWithInterval(t *testing.T) {
	decayRatio := func(interval int) float32 {
		cfg := fogTestConfig(t, interval)
		w := world.New()
		unit := spawnWatcher(w, 0, vision.Vec3{}, 12, 100)

		p := newTestPipeline(t, cfg, w)
		for i := 0; i < 8; i++ {
			p.Cycle(0.1)
		}
		seeded := p.Fog().Sample(vision.Vec3{})
		if seeded <= 0 {
			t.Fatalf("interval %d: fog not seeded", interval)
		}

		w.VisionSource(unit).Enabled = false
		for i := 0; i < 8; i++ {
			p.Cycle(0.1)
		}
		return p.Fog().Sample(vision.Vec3{}) / seeded
	}

	r1 := decayRatio(1)
	r4 := decayRatio(4)
	if r1 >= 1 || r4 >= 1 {
		t.Fatalf("fog did not decay (ratios %v, %v)", r1, r4)
	}
	// Both runs cover 0.8s of decay; the multipliers must match.
	diff := r1 - r4
	if diff < 0 {
		diff = -diff
	}
	if diff > 1e-3 {
		t.Errorf("decay over the same span differs by interval: %v vs %v", r1, r4)
	}
}

func TestFogUpdateInterval(t *testing.T) {
	cfg := fogTestConfig(t, 4)

	w := world.New()
	spawnWatcher(w, 0, vision.Vec3{}, 12, 100)

	p := newTestPipeline(t, cfg, w)
	for i := 0; i < 3; i++ {
		p.Cycle(0.1)
	}
	if v := p.Fog().Sample(vision.Vec3{}); v != 0 {
		t.Fatalf("fog updated before the interval elapsed (value %v)", v)
	}
	p.Cycle(0.1)
	if v := p.Fog().Sample(vision.Vec3{}); v <= 0 {
		t.Fatalf("fog not updated on the interval cycle")
	}
}
