// Package commands provides CLI command implementations.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appRep "github.com/poppingtonic/eirli/internal/application/rep"
	domain "github.com/poppingtonic/eirli/internal/domain/rep"
	"github.com/poppingtonic/eirli/internal/infrastructure/storage"
)

// Train command flags
var (
	trainPreset         string
	trainDataset        string
	trainDriver         string
	trainDSN            string
	trainEpochs         int
	trainSeed           int64
	trainBatchSize      int
	trainRepDim         int
	trainLR             float64
	trainTemporalOffset int
	trainMaxSteps       int
	trainCheckpointRoot string
	trainLogDir         string
	trainWarmupEpochs   int
)

// TrainCmd runs representation learning on a stored dataset.
var TrainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a representation encoder",
	Long: `Train a representation encoder on a stored trajectory dataset using one
of the algorithm presets. Checkpoints and metric logs are written per run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		makePreset, ok := domain.Presets()[trainPreset]
		if !ok {
			return fmt.Errorf("unknown preset %q, run 'eirli presets' for the list", trainPreset)
		}
		preset := makePreset()

		overrides := domain.Overrides{}
		if cmd.Flags().Changed("batch-size") {
			overrides.BatchSize = &trainBatchSize
		}
		if cmd.Flags().Changed("representation-dim") {
			overrides.RepresentationDim = &trainRepDim
		}
		if cmd.Flags().Changed("lr") {
			overrides.LearningRate = &trainLR
		}
		if cmd.Flags().Changed("temporal-offset") {
			overrides.TemporalOffset = &trainTemporalOffset
		}
		if cmd.Flags().Changed("max-steps") {
			overrides.MaxTrainSteps = &trainMaxSteps
		}
		if trainCheckpointRoot != "" {
			overrides.CheckpointRoot = &trainCheckpointRoot
		}
		if cmd.Flags().Changed("warmup-epochs") {
			overrides.Scheduler = &domain.SchedulerConfig{
				WarmupEpochs: trainWarmupEpochs,
				TotalEpochs:  trainEpochs,
			}
		}

		store, err := storage.NewDatasetStore(storage.DatasetStoreConfig{Driver: trainDriver, DSN: trainDSN})
		if err != nil {
			return err
		}
		defer store.Close()

		dataset, err := store.LoadDataset(trainDataset)
		if err != nil {
			return err
		}
		if dataset.ActionDim > 0 {
			overrides.ActionDim = &dataset.ActionDim
		}

		cfg, err := preset.Apply(overrides)
		if err != nil {
			return err
		}

		var sink appRep.ScalarSink = appRep.NopSink{}
		var logger *appRep.TrainLogger
		if trainLogDir != "" {
			if logger, err = appRep.NewTrainLogger(trainLogDir); err != nil {
				return err
			}
			defer logger.Close()
			sink = logger
		}

		learner, err := appRep.NewRepresentationLearner(cfg, dataset.Shape, trainSeed, sink)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		fmt.Printf("Training %s on %q for %d epochs...\n", preset.Name, trainDataset, trainEpochs)
		if logger != nil {
			logger.Printf("preset=%s dataset=%s epochs=%d seed=%d", preset.Name, trainDataset, trainEpochs, trainSeed)
		}

		stats, err := learner.Learn(ctx, dataset, trainEpochs)
		if err != nil {
			return err
		}

		output, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(output))
		return nil
	},
}

func init() {
	TrainCmd.Flags().StringVarP(&trainPreset, "preset", "p", "temporal_cpc", "Algorithm preset")
	TrainCmd.Flags().StringVarP(&trainDataset, "dataset", "d", "", "Stored dataset name (required)")
	TrainCmd.Flags().StringVar(&trainDriver, "db-driver", storage.DriverSQLite, "Dataset store driver (sqlite or postgres)")
	TrainCmd.Flags().StringVar(&trainDSN, "db-dsn", "eirli.db", "Dataset store path or connection string")
	TrainCmd.Flags().IntVarP(&trainEpochs, "epochs", "e", 10, "Number of training epochs")
	TrainCmd.Flags().Int64Var(&trainSeed, "seed", 42, "Random seed")
	TrainCmd.Flags().IntVarP(&trainBatchSize, "batch-size", "b", 256, "Batch size")
	TrainCmd.Flags().IntVar(&trainRepDim, "representation-dim", 512, "Representation dimensionality")
	TrainCmd.Flags().Float64Var(&trainLR, "lr", 1e-3, "Learning rate")
	TrainCmd.Flags().IntVar(&trainTemporalOffset, "temporal-offset", 1, "Temporal pair offset")
	TrainCmd.Flags().IntVar(&trainMaxSteps, "max-steps", 0, "Cap batches per epoch (0 = no cap)")
	TrainCmd.Flags().StringVar(&trainCheckpointRoot, "checkpoint-root", "checkpoints", "Checkpoint directory root")
	TrainCmd.Flags().StringVar(&trainLogDir, "log-dir", "", "Metrics log directory (empty disables logging)")
	TrainCmd.Flags().IntVar(&trainWarmupEpochs, "warmup-epochs", 0, "Enable LR warmup plus cosine decay")
	TrainCmd.MarkFlagRequired("dataset")
}
