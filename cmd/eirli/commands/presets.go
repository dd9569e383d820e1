package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
)

// PresetsCmd lists the registered algorithm presets.
var PresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List algorithm presets",
	Long:  `List every registered algorithm preset with its component graph.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := domain.Presets()
		names := make([]string, 0, len(registry))
		for name := range registry {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			p := registry[name]()
			cfg := p.Config
			fmt.Printf("%-36s encoder=%s decoder=%s loss=%s pairs=%s augment=%s extender=%s\n",
				name, cfg.Encoder, cfg.Decoder, cfg.Loss, cfg.PairConstructor, cfg.Augmenter, cfg.BatchExtender)
			fmt.Printf("%-36s hardcoded: %s\n", "", strings.Join(p.ControlledFields(), ", "))
		}
		return nil
	},
}
