package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KafClaw/expensecat/internal/config"
	"github.com/KafClaw/expensecat/internal/doctor"
	"github.com/KafClaw/expensecat/internal/tools"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity to the stream backend and the MCP server",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the report as JSON")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log, logOutput))

	opts := doctor.Options{
		Backend:       cfg.Stream.Backend,
		RedisAddr:     cfg.RedisAddr(),
		RedisUsername: cfg.Redis.Username,
		RedisPassword: cfg.Redis.Password,
		Brokers:       cfg.Kafka.Brokers,
		Streams:       []string{cfg.Stream.Requests, cfg.Stream.Results},
		MCPURL:        cfg.MCP.ServerURL,
	}
	if strings.TrimSpace(cfg.MCP.ServerURL) != "" && strings.TrimSpace(cfg.MCP.SecretKey) != "" {
		client := tools.NewMCPClient(cfg.MCP.ServerURL, cfg.MCP.SecretKey, cfg.MCP.Timeout)
		defer client.Close()
		opts.MCP = client
	}

	report := doctor.Run(cmd.Context(), opts)
	out := cmd.OutOrStdout()
	if doctorJSON {
		if err := report.WriteJSON(out); err != nil {
			return err
		}
	} else {
		printHeader(cmd, "🩺 expensecat doctor")
		report.Print(out)
	}
	failures := 0
	for _, st := range report.Summary {
		failures += st.FAIL
	}
	if failures > 0 {
		return fmt.Errorf("doctor found %d failing check(s)", failures)
	}
	return nil
}
