package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/agent"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the detection capabilities in the catalog",
	RunE:  runCapabilities,
}

func runCapabilities(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}
	catalog, err := agent.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, capability := range catalog.All() {
		fmt.Fprintf(out, "%s\n", capability.Name)
		fmt.Fprintf(out, "  %s\n", capability.Description)
		if len(capability.RequiredKinds) > 0 {
			fmt.Fprintf(out, "  requires: %s\n", strings.Join(capability.RequiredKinds, ", "))
		}
		if len(capability.Prerequisites) > 0 {
			fmt.Fprintf(out, "  after: %s\n", strings.Join(capability.Prerequisites, ", "))
		}
		depths := make([]string, 0, len(capability.Depths))
		for _, d := range capability.Depths {
			depths = append(depths, string(d))
		}
		if len(depths) > 0 {
			fmt.Fprintf(out, "  default at: %s\n", strings.Join(depths, ", "))
		}
		if capability.Optional {
			fmt.Fprintf(out, "  optional\n")
		}
		fmt.Fprintln(out)
	}
	return nil
}
