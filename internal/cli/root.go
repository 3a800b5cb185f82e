package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/expensecat/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  ___ __ __ ___  ___ _  _  ___ ___ ___ __ _ _____\n" +
		" | __|\\ \\/ /| _ \\| __| \\| |/ __| __/ __/ _` |_   _|\n" +
		" | _|  >  < |  _/| _|| .` |\\__ \\ _| (_| (_| | | |\n" +
		" |___|/_/\\_\\|_|  |___|_|\\_||___/___\\___\\__,_| |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "expensecat",
	Short: "expensecat - expense ledger worker",
	Long:  color.CyanString(logo) + "\nTurns chat messages into expense ledger operations through an LLM agent.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "expensecat %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(requestsCmd)
}

func printHeader(cmd *cobra.Command, title string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.CyanString(logo))
	if title != "" {
		fmt.Fprintln(out, title)
		fmt.Fprintln(out, "─────────────────────")
	}
}
