package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KafClaw/expensecat/internal/guard"
	"github.com/KafClaw/expensecat/internal/handler"
	"github.com/KafClaw/expensecat/internal/runner"
	"github.com/KafClaw/expensecat/internal/stream"
)

var (
	runInstruction string
	runEvent       string
	runSender      string
	runMembers     string
	runLedgerID    string
	runMessageID   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Handle one instruction locally and print the result",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runInstruction, "instruction", "i", "", "Chat message to handle")
	runCmd.Flags().StringVarP(&runEvent, "event", "e", stream.EventMessageCreate, "Event type (messageCreate or messageDelete)")
	runCmd.Flags().StringVar(&runSender, "sender", "cli", "Sender name")
	runCmd.Flags().StringVar(&runMembers, "members", "[]", "Group members as a JSON array")
	runCmd.Flags().StringVar(&runLedgerID, "ledger", "", "Ledger ID")
	runCmd.Flags().StringVar(&runMessageID, "message-id", "", "Chat message ID (generated when empty)")
}

func runOnce(cmd *cobra.Command, args []string) error {
	if runInstruction == "" && runEvent != stream.EventMessageDelete {
		return errors.New("--instruction is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ag, err := buildAgent(ctx, cfg)
	if err != nil {
		return err
	}

	messageID := runMessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	req := &stream.Request{
		RequestID:    uuid.NewString(),
		Event:        runEvent,
		Instruction:  runInstruction,
		Sender:       runSender,
		GroupMembers: runMembers,
		LedgerID:     runLedgerID,
		ChannelID:    "cli",
		MessageID:    messageID,
	}

	results := stream.NewChannelStream(1)
	defer results.Close()
	dispatcher := handler.NewDispatcher(ag, results, runner.New(guard.DefaultChain()), cfg.Runner.MaxAttempts)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", color.CyanString("expensecat"), cfg.Model.Name)
	outcome, err := dispatcher.Handle(ctx, req)
	if err != nil {
		return err
	}
	if !outcome.Published {
		return fmt.Errorf("no result: %s", outcome.Failure)
	}
	res := <-results.Results()
	if outcome.Failed() {
		fmt.Fprintln(out, color.RedString(res.Result))
		return errors.New("instruction failed")
	}
	fmt.Fprintln(out, res.Result)
	return nil
}
