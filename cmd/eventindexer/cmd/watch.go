package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/eventindexer/internal/config"
	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/index"
	"github.com/Aman-CERP/eventindexer/internal/output"
	"github.com/Aman-CERP/eventindexer/internal/watcher"
)

type watchOptions struct {
	poll         bool
	pollInterval time.Duration
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest objects as they are written to the blob root",
		Long: `Watch blob.root for new objects and ingest each one as it settles.

Every file written below <root>/<bucket>/ is handled like
'eventindexer ingest --bucket <bucket> --key <key>'. Objects already present
when watching starts are not ingested; use 'ingest --all' for a backlog.
Failed objects are logged and recorded, and watching continues.

Requires the file blob provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll the directory tree instead of using file system notifications")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 0, "Scan interval in polling mode (default 5s)")

	return cmd
}

func runWatch(cmd *cobra.Command, root *rootOptions, opts watchOptions) error {
	cfg := root.cfg
	if cfg != nil && cfg.Blob.Provider != config.ProviderFile {
		return errors.ValidationError(fmt.Sprintf("watch needs the file blob provider, got %s", cfg.Blob.Provider), nil).
			WithSuggestion("Use 'eventindexer ingest --event -' from a notification consumer instead")
	}

	rt, err := openRuntime(cmd.Context(), cfg, runtimeNeeds{blobs: true, ledger: true})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	coord, err := rt.coordinator()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(rt.files.Root(), 0755); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to create blob root %s", rt.files.Root()), err)
	}
	debounce, err := cfg.DebounceWindow()
	if err != nil {
		return errors.ConfigError("invalid watch.debounce", err)
	}
	w, err := watcher.New(rt.files.Root(), watcher.Options{
		DebounceWindow: debounce,
		PollInterval:   opts.pollInterval,
		ForcePolling:   opts.poll,
	})
	if err != nil {
		return errors.ConfigError("failed to watch blob root", err)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("👀", "watching %s (%s)", w.Root(), w.Mode())

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		err := w.Start(ctx)
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		consumeWatch(ctx, w, rt.files, coord, rt.cluster.Release, out)
		return nil
	})
	err = g.Wait()
	_ = w.Stop()

	slog.Info("watch_stopped", slog.Uint64("discarded_batches", w.DiscardedBatches()))
	return err
}

// consumeWatch handles batches one notification at a time until the watcher
// closes its channels or ctx is done. release runs after every batch so idle
// partitions are not held open against other processes.
func consumeWatch(ctx context.Context, w *watcher.ObjectWatcher, loc watcher.Locator, coord *index.Coordinator, release func(), out *output.Writer) {
	events, errs := w.Events(), w.Errors()
	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			for _, n := range watcher.Notifications(loc, batch) {
				if ctx.Err() != nil {
					return
				}
				res, err := coord.Handle(ctx, n)
				if err != nil {
					out.Errorf("%s: %v [%s]", n, err, errors.GetCode(err))
					continue
				}
				printSummary(out, summarize(res))
			}
			release()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}
