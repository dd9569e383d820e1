package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	appRep "github.com/poppingtonic/eirli/internal/application/rep"
	domain "github.com/poppingtonic/eirli/internal/domain/rep"
)

// Benchmark command flags
var (
	benchmarkPreset string
	benchmarkSteps  int
	benchmarkBatch  int
	benchmarkSize   int
)

// BenchmarkCmd times training throughput on a synthetic dataset.
var BenchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Benchmark training throughput",
	Long: `Run a short training loop of one preset on an in-memory synthetic
dataset and report steps per second. The architecture is scaled down so the
benchmark measures the engine, not the default 84x84 stack.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		makePreset, ok := domain.Presets()[benchmarkPreset]
		if !ok {
			return fmt.Errorf("unknown preset %q, run 'eirli presets' for the list", benchmarkPreset)
		}
		preset := makePreset()

		shape := domain.FrameShape{C: 3, H: benchmarkSize, W: benchmarkSize}
		ds, err := appRep.GenerateSynthetic(appRep.SyntheticConfig{
			Shape:        shape,
			Trajectories: 4,
			Length:       benchmarkBatch + 2,
			ActionDim:    4,
			Seed:         1,
		})
		if err != nil {
			return err
		}

		repDim := 64
		actionDim := 4
		arch := domain.Architecture{
			Conv: []domain.ConvLayerSpec{
				{OutChannels: 8, Kernel: 4, Stride: 2},
				{OutChannels: 16, Kernel: 3, Stride: 1},
			},
		}
		cfg, err := preset.Apply(domain.Overrides{
			RepresentationDim: &repDim,
			BatchSize:         &benchmarkBatch,
			ActionDim:         &actionDim,
			Architecture:      &arch,
			MaxTrainSteps:     &benchmarkSteps,
		})
		if err != nil {
			return err
		}

		learner, err := appRep.NewRepresentationLearner(cfg, shape, 1, appRep.NopSink{})
		if err != nil {
			return err
		}

		fmt.Printf("Benchmarking %s: %d steps, batch %d, %dx%d frames...\n",
			preset.Name, benchmarkSteps, benchmarkBatch, benchmarkSize, benchmarkSize)

		start := time.Now()
		stats, err := learner.Learn(context.Background(), ds, 1)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		perStep := elapsed / time.Duration(stats.Steps)
		fmt.Printf("%d steps in %s (%.2f steps/s, %s/step), final loss %.4f\n",
			stats.Steps, elapsed.Round(time.Millisecond),
			float64(stats.Steps)/elapsed.Seconds(), perStep.Round(time.Microsecond),
			stats.LastEpochLoss)
		return nil
	},
}

func init() {
	BenchmarkCmd.Flags().StringVarP(&benchmarkPreset, "preset", "p", "temporal_cpc", "Algorithm preset")
	BenchmarkCmd.Flags().IntVarP(&benchmarkSteps, "steps", "s", 10, "Training steps to time")
	BenchmarkCmd.Flags().IntVarP(&benchmarkBatch, "batch-size", "b", 16, "Batch size")
	BenchmarkCmd.Flags().IntVar(&benchmarkSize, "frame-size", 16, "Frame height and width")
}
