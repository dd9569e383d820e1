package rep

import (
	"fmt"
	"math/rand"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
)

// SyntheticConfig configures the synthetic dataset generator.
type SyntheticConfig struct {
	Shape        domain.FrameShape `json:"shape"`
	Trajectories int               `json:"trajectories"`
	Length       int               `json:"length"`
	ActionDim    int               `json:"actionDim"`
	Seed         int64             `json:"seed"`
}

// DefaultSyntheticConfig returns a small dataset of 84x84 RGB frames.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Shape:        domain.FrameShape{C: 3, H: 84, W: 84},
		Trajectories: 8,
		Length:       50,
		ActionDim:    4,
	}
}

// GenerateSynthetic produces a random-walk dataset: each trajectory is a
// bright square drifting across a noisy background, driven by a random
// action vector per step. Useful for smoke tests and benchmarks; the
// temporal structure is real, so contrastive objectives have signal.
func GenerateSynthetic(cfg SyntheticConfig) (*domain.TrajectoryDataset, error) {
	if err := cfg.Shape.Validate(); err != nil {
		return nil, err
	}
	if cfg.Trajectories <= 0 || cfg.Length <= 0 {
		return nil, fmt.Errorf("need positive trajectory count and length, got %d x %d", cfg.Trajectories, cfg.Length)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	ds := &domain.TrajectoryDataset{Shape: cfg.Shape, ActionDim: cfg.ActionDim}

	blob := cfg.Shape.H / 6
	if blob < 1 {
		blob = 1
	}
	for t := 0; t < cfg.Trajectories; t++ {
		traj := domain.Trajectory{ID: t}
		y := float64(rng.Intn(cfg.Shape.H))
		x := float64(rng.Intn(cfg.Shape.W))
		for step := 0; step < cfg.Length; step++ {
			var action []float64
			if cfg.ActionDim > 0 {
				action = make([]float64, cfg.ActionDim)
				for i := range action {
					action[i] = rng.NormFloat64()
				}
				y += action[0]
				x += action[1%cfg.ActionDim]
			} else {
				y += rng.NormFloat64()
				x += rng.NormFloat64()
			}
			y = wrap(y, cfg.Shape.H)
			x = wrap(x, cfg.Shape.W)

			traj.Frames = append(traj.Frames, renderFrame(rng, cfg.Shape, int(y), int(x), blob))
			if action != nil {
				traj.Actions = append(traj.Actions, action)
			}
			traj.Timesteps = append(traj.Timesteps, step)
			traj.Dones = append(traj.Dones, step == cfg.Length-1)
		}
		ds.Trajectories = append(ds.Trajectories, traj)
	}
	return ds, nil
}

func wrap(v float64, size int) float64 {
	for v < 0 {
		v += float64(size)
	}
	for v >= float64(size) {
		v -= float64(size)
	}
	return v
}

func renderFrame(rng *rand.Rand, shape domain.FrameShape, y, x, blob int) []float64 {
	f := make([]float64, shape.Size())
	for i := range f {
		f[i] = rng.Float64() * 32
	}
	plane := shape.H * shape.W
	for c := 0; c < shape.C; c++ {
		for dy := 0; dy < blob; dy++ {
			for dx := 0; dx < blob; dx++ {
				py := (y + dy) % shape.H
				px := (x + dx) % shape.W
				f[c*plane+py*shape.W+px] = 255
			}
		}
	}
	return f
}
