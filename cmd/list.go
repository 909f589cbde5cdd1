package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/editbench/internal/config"
	"github.com/signalnine/editbench/internal/metric"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured tasks and registered metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Println("Tasks:")
			for _, t := range cfg.Tasks {
				layout := t.Layout
				if layout == "" {
					layout = "auto"
				}
				fmt.Printf("  - %s [%s] %s\n", t.Name, layout, t.Annotations)
			}
			fmt.Println("\nMetrics:")
			for _, name := range metric.Registered() {
				d := metric.Lookup(name)
				fmt.Printf("  - %s (%s): %s\n", name, d.Kind, strings.Join(d.Keys, ", "))
			}
			fmt.Println("\nOther metric names use the generic single-key parser.")
			return nil
		},
	}
}
