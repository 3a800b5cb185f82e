package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the ledger tools exposed by the MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ag, err := buildAgent(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range ag.Tools() {
			fmt.Fprintf(out, "%s  %s\n", color.GreenString(t.Name()), t.Description())
		}
		return nil
	},
}
