package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	appRep "github.com/poppingtonic/eirli/internal/application/rep"
	domain "github.com/poppingtonic/eirli/internal/domain/rep"
	"github.com/poppingtonic/eirli/internal/infrastructure/storage"
)

// Dataset command flags
var (
	datasetDriver string
	datasetDSN    string

	generateName         string
	generateTrajectories int
	generateLength       int
	generateChannels     int
	generateHeight       int
	generateWidth        int
	generateActionDim    int
	generateSeed         int64

	deleteName string
)

// DatasetCmd is the parent command for dataset operations.
var DatasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Dataset management commands",
	Long:  `Commands for generating, listing and deleting trajectory datasets.`,
}

var datasetGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic dataset",
	Long:  `Generate a synthetic random-walk trajectory dataset and store it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := appRep.GenerateSynthetic(appRep.SyntheticConfig{
			Shape:        domain.FrameShape{C: generateChannels, H: generateHeight, W: generateWidth},
			Trajectories: generateTrajectories,
			Length:       generateLength,
			ActionDim:    generateActionDim,
			Seed:         generateSeed,
		})
		if err != nil {
			return err
		}

		store, err := storage.NewDatasetStore(storage.DatasetStoreConfig{Driver: datasetDriver, DSN: datasetDSN})
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.SaveDataset(generateName, ds)
		if err != nil {
			return err
		}
		fmt.Printf("Stored dataset %q (%s): %d trajectories of %d frames\n",
			generateName, id, generateTrajectories, generateLength)
		return nil
	},
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewDatasetStore(storage.DatasetStoreConfig{Driver: datasetDriver, DSN: datasetDSN})
		if err != nil {
			return err
		}
		defer store.Close()

		infos, err := store.ListDatasets()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No datasets stored")
			return nil
		}
		output, _ := json.MarshalIndent(infos, "", "  ")
		fmt.Println(string(output))
		return nil
	},
}

var datasetDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a stored dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewDatasetStore(storage.DatasetStoreConfig{Driver: datasetDriver, DSN: datasetDSN})
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteDataset(deleteName); err != nil {
			return err
		}
		fmt.Printf("Deleted dataset %q\n", deleteName)
		return nil
	},
}

func init() {
	DatasetCmd.PersistentFlags().StringVar(&datasetDriver, "db-driver", storage.DriverSQLite, "Dataset store driver (sqlite or postgres)")
	DatasetCmd.PersistentFlags().StringVar(&datasetDSN, "db-dsn", "eirli.db", "Dataset store path or connection string")

	datasetGenerateCmd.Flags().StringVarP(&generateName, "name", "n", "", "Dataset name (required)")
	datasetGenerateCmd.Flags().IntVarP(&generateTrajectories, "trajectories", "t", 8, "Number of trajectories")
	datasetGenerateCmd.Flags().IntVarP(&generateLength, "length", "l", 50, "Frames per trajectory")
	datasetGenerateCmd.Flags().IntVar(&generateChannels, "channels", 3, "Frame channels")
	datasetGenerateCmd.Flags().IntVar(&generateHeight, "height", 84, "Frame height")
	datasetGenerateCmd.Flags().IntVar(&generateWidth, "width", 84, "Frame width")
	datasetGenerateCmd.Flags().IntVar(&generateActionDim, "action-dim", 4, "Action dimensionality (0 disables actions)")
	datasetGenerateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "Random seed")
	datasetGenerateCmd.MarkFlagRequired("name")
	DatasetCmd.AddCommand(datasetGenerateCmd)

	DatasetCmd.AddCommand(datasetListCmd)

	datasetDeleteCmd.Flags().StringVarP(&deleteName, "name", "n", "", "Dataset name (required)")
	datasetDeleteCmd.MarkFlagRequired("name")
	DatasetCmd.AddCommand(datasetDeleteCmd)
}
