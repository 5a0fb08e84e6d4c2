package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
	"github.com/Diduck/notion-idea-pipeline/internal/inbox"
	"github.com/Diduck/notion-idea-pipeline/internal/output"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync the inbox every time one of its files changes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := newInboxWatcher(a, func(summary ideasync.Summary) {
		if err := printRun(a, summary); err != nil {
			logger.Error("print run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	output.Info("Watching %s (Ctrl+C to stop)", a.inbox.Root())
	return watcher.Run(ctx)
}

// newInboxWatcher builds a watcher that syncs on change and hands completed
// runs to report. Runs that found nothing to do are not reported.
func newInboxWatcher(a *app, report func(ideasync.Summary)) (*inbox.Watcher, error) {
	return inbox.NewWatcher(a.inbox, inbox.WatcherOptions{
		Debounce:     a.cfg.Inbox.Debounce.Std(),
		PollInterval: a.cfg.Inbox.PollInterval.Std(),
		Logger:       logger,
		OnChange: func(ctx context.Context) {
			summary, err := syncOnce(ctx, a)
			switch {
			case err == nil:
				if report != nil {
					report(summary)
				}
			case errors.Is(err, ideasync.ErrEmptyInput), errors.Is(err, ideasync.ErrSyncInProgress):
				logger.Debug("watch sync skipped", "reason", err)
			default:
				logger.Error("watch sync failed", "error", describeSyncError(err))
			}
		},
	})
}
