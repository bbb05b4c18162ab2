package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mlange-42/ark/ecs"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/sightfield/components"
	"github.com/pthm-cable/sightfield/config"
	"github.com/pthm-cable/sightfield/device"
	"github.com/pthm-cable/sightfield/islands"
	"github.com/pthm-cable/sightfield/pipeline"
	"github.com/pthm-cable/sightfield/telemetry"
	"github.com/pthm-cable/sightfield/vision"
	"github.com/pthm-cable/sightfield/world"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	cycles := flag.Int("cycles", 0, "Stop after N cycles (0 = unlimited)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	groups := flag.Int("groups", 4, "Vision groups in the demo scene")
	unitsPerGroup := flag.Int("units", 12, "Vision units per group")
	drifters := flag.Int("seeables", 160, "Drifting seeable entities")
	islandCount := flag.Int("islands", 6, "Occluder islands on the ring")
	islandCache := flag.String("island-cache", "", "Directory for baked island volumes (empty = bake in memory)")
	rate := flag.Float64("rate", 20, "Target cycles per second (0 = uncapped)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs")
	logStats := flag.Bool("log-stats", false, "Output perf stats via slog")
	fog := flag.Bool("fog", false, "Enable the fog volume for group 0")

	flag.Parse()

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *fog {
		cfg.Fog.Enabled = true
		cfg.ComputeDerived()
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	if *islandCache != "" {
		if err := os.MkdirAll(*islandCache, 0755); err != nil {
			slog.Error("failed to create island cache directory", "error", err)
			os.Exit(1)
		}
	}

	w := world.New()
	movers := buildScene(w, rng, sceneParams{
		groups:      *groups,
		unitsPer:    *unitsPerGroup,
		drifters:    *drifters,
		islands:     *islandCount,
		islandCache: *islandCache,
	})

	dev := device.NewDispatcher(cfg.Device.Workers, cfg.Device.BlockSize, cfg.Device.StagingBatch)
	dev.Start()
	defer dev.Stop()

	perf := telemetry.NewPerfCollector(cfg.Telemetry.StatsWindow)
	p, err := pipeline.New(cfg, w, dev, perf)
	if err != nil {
		slog.Error("invalid pipeline configuration", "error", err)
		os.Exit(1)
	}

	out, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	if out != nil {
		defer out.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting visibility pipeline",
		"seed", rngSeed,
		"groups", *groups,
		"units_per_group", *unitsPerGroup,
		"seeables", *drifters,
		"islands", *islandCount,
		"max_cycles", *cycles,
	)

	dt := float32(1.0 / 20)
	var ticker *time.Ticker
	if *rate > 0 {
		dt = float32(1.0 / *rate)
		ticker = time.NewTicker(time.Duration(float64(time.Second) / *rate))
		defer ticker.Stop()
	}

	eventCh := make(chan []telemetry.Event, 8)
	g, ctx := errgroup.WithContext(ctx)

	// Event drain: decouples CSV writes from the cycle loop.
	g.Go(func() error {
		for batch := range eventCh {
			if out == nil {
				continue
			}
			if err := out.WriteEvents(batch); err != nil {
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(eventCh)
		statsWindow := uint64(cfg.Telemetry.StatsWindow)
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			p.Cycle(dt)
			drift(w, rng, movers, dt)

			if evs := p.Events(); len(evs) > 0 {
				batch := make([]telemetry.Event, len(evs))
				copy(batch, evs)
				select {
				case eventCh <- batch:
				case <-ctx.Done():
					return nil
				}
			}

			if statsWindow > 0 && p.CycleCount()%statsWindow == 0 {
				stats := perf.Stats()
				if *logStats || cfg.Telemetry.LogStats {
					slog.Info("perf window", "cycle", p.CycleCount(), "stats", stats)
				}
				if out != nil {
					if err := out.WritePerf(stats, p.CycleCount()); err != nil {
						return err
					}
				}
			}

			if *cycles > 0 && p.CycleCount() >= uint64(*cycles) {
				return nil
			}
			if ticker != nil {
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}

	// The last cycle's request is still in flight; drain it so the final
	// snapshot and event log cover every cycle that ran.
	p.Drain()
	if out != nil && len(p.Events()) > 0 {
		if err := out.WriteEvents(p.Events()); err != nil {
			slog.Error("flushing final events", "error", err)
		}
	}
	slog.Info("simulation complete",
		"cycles", p.CycleCount(),
		"visible_entries", p.Snapshot().Total(),
	)
}

type sceneParams struct {
	groups      int
	unitsPer    int
	drifters    int
	islands     int
	islandCache string
}

// buildScene places the demo world: group camps on a ring facing the center,
// neutral drifters wandering between them, and box islands blocking some of
// the sightlines. Returns the entities drift moves each cycle.
func buildScene(w *world.World, rng *rand.Rand, params sceneParams) []ecs.Entity {
	groups := params.groups
	if groups > vision.MaxGroups {
		groups = vision.MaxGroups
	}
	if groups < 1 {
		groups = 1
	}
	const ringRadius = 150

	nextID := uint32(1)
	for gi := 0; gi < groups; gi++ {
		angle := 2 * math.Pi * float64(gi) / float64(groups)
		base := vision.Vec3{
			X: float32(math.Cos(angle)) * ringRadius,
			Z: float32(math.Sin(angle)) * ringRadius,
		}
		toCenter := base.Scale(-1).Normalized()

		w.SetGroupPolicy(gi, world.GroupPolicy{
			VisibilityMask:  0xff &^ (1 << gi),
			MaxViewDistance: 220,
		})

		for u := 0; u < params.unitsPer; u++ {
			pos := base.Add(vision.Vec3{
				X: (rng.Float32() - 0.5) * 50,
				Z: (rng.Float32() - 0.5) * 50,
			})
			src := components.VisionSource{Enabled: true}
			switch u % 3 {
			case 0:
				src.Type = vision.VisionSphere
				src.Radius = 30 + rng.Float32()*15
			case 1:
				src.Type = vision.VisionSphereCone
				src.Radius = 12
				src.Secondary = float32(math.Pi / 5) // cone half-angle
			default:
				src.Type = vision.VisionDualSphere
				src.Radius = 22
				src.Secondary = 14 // forward lobe radius
			}
			w.SpawnUnitSeeable(pos, toCenter, uint8(gi), src, components.Seeable{
				EntityID:       nextID,
				HeightOffset:   1.7,
				BoundingRadius: 1,
				SeeableBy:      0xff,
				Enabled:        true,
			})
			nextID++
		}
	}

	movers := make([]ecs.Entity, 0, params.drifters)
	for i := 0; i < params.drifters; i++ {
		pos := vision.Vec3{
			X: (rng.Float32() - 0.5) * 2 * ringRadius,
			Z: (rng.Float32() - 0.5) * 2 * ringRadius,
		}
		e := w.SpawnSeeable(pos, uint8(i%groups), components.Seeable{
			EntityID:       nextID,
			HeightOffset:   1.2,
			BoundingRadius: 0.8,
			SeeableBy:      0xff,
			Enabled:        true,
		})
		nextID++
		movers = append(movers, e)
	}

	// Box islands between the camps and the center.
	for i := 0; i < min(params.islands, vision.MaxIslands); i++ {
		angle := 2*math.Pi*float64(i)/float64(max(params.islands, 1)) + 0.3
		dist := 60 + rng.Float32()*60
		center := vision.Vec3{
			X: float32(math.Cos(angle)) * dist,
			Y: 8,
			Z: float32(math.Sin(angle)) * dist,
		}
		he := vision.Vec3{X: 10 + rng.Float32()*8, Y: 16, Z: 10 + rng.Float32()*8}
		field, err := bakeOrLoadIsland(params.islandCache, i, he)
		if err != nil {
			slog.Error("failed to bake island field", "slot", i, "error", err)
			continue
		}
		w.RegisterIsland(vision.Island{
			Center:      center,
			Rotation:    vision.QuatAxisAngle(vision.Vec3{Y: 1}, rng.Float32()*2*math.Pi),
			HalfExtents: field.HalfExtents,
			Resolution:  uint32(field.Resolution),
			SlotIndex:   uint32(i),
			SDFScale:    1,
			Flags:       vision.IslandValid,
		}, field)
	}

	return movers
}

// bakeOrLoadIsland returns a baked wall volume for the slot, preferring the
// on-disk cache when one is configured.
func bakeOrLoadIsland(cacheDir string, slot int, he vision.Vec3) (*islands.Field, error) {
	var path string
	if cacheDir != "" {
		path = filepath.Join(cacheDir, fmt.Sprintf("island_%02d.sdf", slot))
		if f, err := islands.Load(path); err == nil {
			return f, nil
		}
	}

	wall := vision.Vec3{X: he.X * 0.7, Y: he.Y * 0.9, Z: he.Z * 0.7}
	f, err := islands.FromFunc(24, he, func(p vision.Vec3) float32 {
		return boxDistance(p, wall)
	})
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := islands.Save(path, f); err != nil {
			slog.Warn("failed to cache island field", "path", path, "error", err)
		}
	}
	return f, nil
}

// drift wanders the neutral seeables so sightlines keep changing and the
// detector has work to do.
func drift(w *world.World, rng *rand.Rand, movers []ecs.Entity, dt float32) {
	const speed = 12
	for _, e := range movers {
		tr := w.Transform(e)
		if tr == nil {
			continue
		}
		tr.Position.X += (rng.Float32() - 0.5) * 2 * speed * dt
		tr.Position.Z += (rng.Float32() - 0.5) * 2 * speed * dt
	}
}

func boxDistance(p, half vision.Vec3) float32 {
	qx := abs32(p.X) - half.X
	qy := abs32(p.Y) - half.Y
	qz := abs32(p.Z) - half.Z
	ox := max(qx, 0)
	oy := max(qy, 0)
	oz := max(qz, 0)
	outside := float32(math.Sqrt(float64(ox*ox + oy*oy + oz*oz)))
	return outside + min(max(qx, max(qy, qz)), 0)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
