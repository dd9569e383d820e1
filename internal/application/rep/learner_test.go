package rep

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
	infra "github.com/poppingtonic/eirli/internal/infrastructure/rep"
)

var smokeShape = domain.FrameShape{C: 1, H: 8, W: 8}

func smokeDataset(t *testing.T) *domain.TrajectoryDataset {
	t.Helper()
	ds, err := GenerateSynthetic(SyntheticConfig{
		Shape:        smokeShape,
		Trajectories: 3,
		Length:       10,
		ActionDim:    4,
		Seed:         11,
	})
	if err != nil {
		t.Fatalf("GenerateSynthetic: %v", err)
	}
	return ds
}

// smokeOverrides shrinks every preset to a configuration that trains in
// milliseconds on the synthetic dataset.
func smokeOverrides() domain.Overrides {
	repDim := 8
	batch := 8
	maxSteps := 2
	actionDim := 4
	minTraj := 2
	arch := domain.Architecture{
		Conv: []domain.ConvLayerSpec{
			{OutChannels: 4, Kernel: 3, Stride: 1},
			{OutChannels: 8, Kernel: 3, Stride: 1},
		},
	}
	return domain.Overrides{
		RepresentationDim: &repDim,
		BatchSize:         &batch,
		MaxTrainSteps:     &maxSteps,
		ActionDim:         &actionDim,
		MinTrajSize:       &minTraj,
		Architecture:      &arch,
	}
}

func TestLearnSmokeAcrossPresets(t *testing.T) {
	ds := smokeDataset(t)
	for name, makePreset := range domain.Presets() {
		t.Run(name, func(t *testing.T) {
			cfg, err := makePreset().Apply(smokeOverrides())
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			learner, err := NewRepresentationLearner(cfg, smokeShape, 3, nil)
			if err != nil {
				t.Fatalf("NewRepresentationLearner: %v", err)
			}
			stats, err := learner.Learn(context.Background(), ds, 2)
			if err != nil {
				t.Fatalf("Learn: %v", err)
			}
			if stats.Epochs != 2 {
				t.Errorf("ran %d epochs, want 2", stats.Epochs)
			}
			if stats.Steps != 4 {
				t.Errorf("ran %d steps, want 4 (2 per epoch)", stats.Steps)
			}
			if math.IsNaN(stats.LastEpochLoss) || math.IsInf(stats.LastEpochLoss, 0) {
				t.Errorf("final loss %v is not finite", stats.LastEpochLoss)
			}
		})
	}
}

func TestLearnWritesCheckpoints(t *testing.T) {
	ds := smokeDataset(t)
	root := t.TempDir()
	cfg, err := domain.TemporalCPC().Apply(smokeOverrides())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	cfg.CheckpointRoot = root
	cfg.SaveInterval = 2

	learner, err := NewRepresentationLearner(cfg, smokeShape, 3, nil)
	if err != nil {
		t.Fatalf("NewRepresentationLearner: %v", err)
	}
	if _, err := learner.Learn(context.Background(), ds, 4); err != nil {
		t.Fatalf("Learn: %v", err)
	}

	for _, kind := range []string{infra.CheckpointEncoder} {
		for _, epoch := range []string{"2_epochs.json", "4_epochs.json"} {
			path := filepath.Join(root, kind, epoch)
			if _, err := os.Stat(path); err != nil {
				t.Errorf("missing checkpoint %s: %v", path, err)
			}
		}
		if _, err := os.Stat(filepath.Join(root, kind, "1_epochs.json")); err == nil {
			t.Error("checkpoint written off the save interval")
		}
	}

	path, epoch, err := infra.LatestCheckpoint(root, infra.CheckpointEncoder)
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if epoch != 4 {
		t.Errorf("latest epoch = %d, want 4", epoch)
	}
	ckpt, err := infra.LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if err := ckpt.Restore(learner.Encoder().Params()); err != nil {
		t.Errorf("snapshot does not restore into its own architecture: %v", err)
	}
}

func TestLearnSchedulerDecaysLR(t *testing.T) {
	ds := smokeDataset(t)
	cfg, err := domain.TemporalCPC().Apply(smokeOverrides())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	cfg.Scheduler = &domain.SchedulerConfig{WarmupEpochs: 1, TotalEpochs: 4, MinLR: 1e-5}

	learner, err := NewRepresentationLearner(cfg, smokeShape, 3, nil)
	if err != nil {
		t.Fatalf("NewRepresentationLearner: %v", err)
	}
	stats, err := learner.Learn(context.Background(), ds, 4)
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if stats.FinalLR >= cfg.Optimizer.LearningRate {
		t.Errorf("final lr %v did not decay below base %v", stats.FinalLR, cfg.Optimizer.LearningRate)
	}
	if stats.FinalLR < 1e-5 {
		t.Errorf("final lr %v fell below the floor", stats.FinalLR)
	}
}

func TestLearnRecordsScalars(t *testing.T) {
	ds := smokeDataset(t)
	cfg, err := domain.SimCLR().Apply(smokeOverrides())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	sink := &captureSink{}
	learner, err := NewRepresentationLearner(cfg, smokeShape, 3, sink)
	if err != nil {
		t.Fatalf("NewRepresentationLearner: %v", err)
	}
	if _, err := learner.Learn(context.Background(), ds, 1); err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if sink.counts["loss"] != 2 {
		t.Errorf("recorded %d loss points, want 2", sink.counts["loss"])
	}
	if sink.counts["epoch_loss"] != 1 || sink.counts["lr"] != 1 {
		t.Errorf("epoch scalars missing: %v", sink.counts)
	}
}

type captureSink struct {
	counts map[string]int
}

func (s *captureSink) RecordScalar(name string, _ int, _ float64) {
	if s.counts == nil {
		s.counts = map[string]int{}
	}
	s.counts[name]++
}

func TestLearnPreconditions(t *testing.T) {
	ds := smokeDataset(t)
	cfg, err := domain.TemporalCPC().Apply(smokeOverrides())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	learner, err := NewRepresentationLearner(cfg, smokeShape, 3, nil)
	if err != nil {
		t.Fatalf("NewRepresentationLearner: %v", err)
	}

	if _, err := learner.Learn(context.Background(), ds, 0); err == nil {
		t.Error("expected error for zero epochs")
	}

	wrongShape := smokeDataset(t)
	wrongShape.Shape = domain.FrameShape{C: 1, H: 4, W: 4}
	if _, err := learner.Learn(context.Background(), wrongShape, 1); err == nil {
		t.Error("expected error for mismatched dataset shape")
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := learner.Learn(cancelled, ds, 1); err == nil {
		t.Error("expected error from a cancelled context")
	}
}

func TestLearnerConstructionErrors(t *testing.T) {
	cfg := domain.DefaultLearnerConfig()
	cfg.RepresentationDim = 0
	if _, err := NewRepresentationLearner(cfg, smokeShape, 1, nil); err == nil {
		t.Error("expected error for invalid config")
	}

	good, err := domain.TemporalCPC().Apply(smokeOverrides())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := NewRepresentationLearner(good, domain.FrameShape{C: 0, H: 8, W: 8}, 1, nil); err == nil {
		t.Error("expected error for invalid frame shape")
	}
}
