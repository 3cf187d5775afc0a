package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/index"
	"github.com/Aman-CERP/eventindexer/internal/output"
)

type sweepOptions struct {
	dryRun bool
	days   int
	json   bool
}

func newSweepCmd(root *rootOptions) *cobra.Command {
	var opts sweepOptions

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete partitions older than the retention window",
		Long: `Delete every managed partition whose embedded timestamp is older than
now minus retention.days_to_keep days. Indexes whose names do not follow the
partition naming convention are never touched.

Ingest already sweeps after every load; this command runs a sweep on its own.`,
		Example: `  # Show what would be deleted
  eventindexer sweep --dry-run

  # Keep only the last two days
  eventindexer sweep --days 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "List expired partitions without deleting them")
	cmd.Flags().IntVar(&opts.days, "days", -1, "Retention in days (default: retention.days_to_keep)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output the sweep result as JSON")

	return cmd
}

func runSweep(cmd *cobra.Command, root *rootOptions, opts sweepOptions) error {
	ctx := cmd.Context()

	rt, err := openRuntime(ctx, root.cfg, runtimeNeeds{})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	days := rt.cfg.Retention.DaysToKeep
	if cmd.Flags().Changed("days") {
		if opts.days < 0 {
			return errors.ValidationError("--days must not be negative", nil)
		}
		days = opts.days
	}

	sweeper := index.NewSweeper(rt.cluster, rt.namer)
	var res *index.SweepResult
	if opts.dryRun {
		res, err = sweeper.DryRun(ctx, days)
	} else {
		res, err = sweeper.Sweep(ctx, days)
	}
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.json {
		return out.JSON(sweepJSON(res))
	}

	out.Statusf("📅", "cutoff %s (%d days)", res.Cutoff.Format("2006-01-02 15:04:05 MST"), days)
	switch {
	case len(res.Expired) == 0:
		out.Success("nothing to delete")
	case res.DryRun:
		out.Warningf("%d partitions would be deleted", len(res.Expired))
		for _, name := range res.Expired {
			out.Status("", name)
		}
	default:
		deleted := res.Deleted()
		out.Successf("deleted %d partitions", len(deleted))
		for _, name := range deleted {
			out.Status("", name)
		}
		if len(res.AlreadyGone) > 0 {
			out.Warningf("already gone: %s", strings.Join(res.AlreadyGone, ", "))
		}
	}
	if len(res.Unmanaged) > 0 {
		out.Statusf("ℹ️ ", "%d unmanaged indexes left alone", len(res.Unmanaged))
	}
	return nil
}

type sweepReport struct {
	Cutoff      string   `json:"cutoff"`
	DryRun      bool     `json:"dry_run"`
	Managed     int      `json:"managed"`
	Expired     []string `json:"expired"`
	Deleted     []string `json:"deleted"`
	AlreadyGone []string `json:"already_gone"`
	Unmanaged   []string `json:"unmanaged"`
}

func sweepJSON(res *index.SweepResult) sweepReport {
	nonNil := func(s []string) []string {
		if s == nil {
			return []string{}
		}
		return s
	}
	return sweepReport{
		Cutoff:      res.Cutoff.UTC().Format("2006-01-02T15:04:05Z"),
		DryRun:      res.DryRun,
		Managed:     res.Managed,
		Expired:     nonNil(res.Expired),
		Deleted:     nonNil(res.Deleted()),
		AlreadyGone: nonNil(res.AlreadyGone),
		Unmanaged:   nonNil(res.Unmanaged),
	}
}
