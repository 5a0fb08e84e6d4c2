package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
	"github.com/Diduck/notion-idea-pipeline/internal/output"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send every line in the inbox to Notion once",
	Long: `Read month.txt, results.txt and product.txt from the inbox directory,
create one Notion page per non-blank line, then empty each file that had
content. Failed lines are reported and not retried.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

type syncReport struct {
	Summary ideasync.Summary         `json:"summary"`
	Records []ideasync.AttemptRecord `json:"records"`
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := syncOnce(ctx, a)
	if err != nil {
		return describeSyncError(err)
	}
	return printRun(a, summary)
}

func syncOnce(ctx context.Context, a *app) (ideasync.Summary, error) {
	creds, err := a.credentials()
	if err != nil {
		return ideasync.Summary{}, err
	}
	logger.Debug("sync target", "base_url", a.writer.BaseURL(), "inbox", a.inbox.Root())
	// A started run always completes; each write is bounded by the client timeout.
	return a.orchestrator.Sync(context.WithoutCancel(ctx), creds, a.inbox)
}

// printRun renders the records produced by one run followed by its summary.
func printRun(a *app, summary ideasync.Summary) error {
	records := runRecords(a.orchestrator.Log(), summary)
	if jsonOutput {
		return output.JSON(syncReport{Summary: summary, Records: records})
	}
	fmt.Fprint(output.Writer, output.FormatActivity(records))
	fmt.Fprintln(output.Writer, output.FormatSummary(summary))
	if summary.NetworkWarning {
		fmt.Fprintln(output.Writer, output.NetworkWarningBanner())
	}
	for _, clearErr := range summary.ClearErrors {
		output.Warning("input not cleared: %s", clearErr)
	}
	return nil
}

// runRecords returns the summary's records newest first.
func runRecords(log *ideasync.ActivityLog, summary ideasync.Summary) []ideasync.AttemptRecord {
	records := make([]ideasync.AttemptRecord, 0, len(summary.RecordIDs))
	for i := len(summary.RecordIDs) - 1; i >= 0; i-- {
		if record, ok := log.Get(summary.RecordIDs[i]); ok {
			records = append(records, record)
		}
	}
	return records
}
