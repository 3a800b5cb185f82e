package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KafClaw/expensecat/internal/config"
	"github.com/KafClaw/expensecat/internal/journal"
)

var errJournalDisabled = errors.New("request journal is disabled (JOURNAL_PATH=off)")

var (
	requestsStatus string
	requestsLimit  int
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List recently handled requests from the journal",
	RunE:  runRequests,
}

func init() {
	requestsCmd.Flags().StringVar(&requestsStatus, "status", "", "Only show requests with this status (pending, completed, failed)")
	requestsCmd.Flags().IntVarP(&requestsLimit, "limit", "n", 20, "Maximum number of requests to show")
}

func runRequests(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return errJournalDisabled
	}
	switch requestsStatus {
	case "", journal.StatusPending, journal.StatusCompleted, journal.StatusFailed:
	default:
		return fmt.Errorf("unknown status %q (want %s, %s or %s)", requestsStatus,
			journal.StatusPending, journal.StatusCompleted, journal.StatusFailed)
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(cfg.Journal.Path); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(out, "No requests recorded.")
		return nil
	}

	jr, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer jr.Close()

	recs, err := jr.List(cmd.Context(), requestsStatus, requestsLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "No requests recorded.")
		return nil
	}
	for _, rec := range recs {
		fmt.Fprintf(out, "%s %-36s %-13s deliveries=%d  %s\n",
			statusTag(rec.Status), rec.RequestID, rec.Event, rec.Deliveries,
			rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		switch {
		case rec.ErrorText != "":
			fmt.Fprintf(out, "          error: %s\n", truncate(rec.ErrorText, 120))
		case rec.ResultText != "":
			fmt.Fprintf(out, "          result: %s\n", truncate(rec.ResultText, 120))
		}
	}
	return nil
}

func statusTag(status string) string {
	switch status {
	case journal.StatusCompleted:
		return color.GreenString("%-9s", status)
	case journal.StatusFailed:
		return color.RedString("%-9s", status)
	default:
		return color.YellowString("%-9s", status)
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
