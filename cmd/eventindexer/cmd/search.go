package cmd

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/output"
	"github.com/Aman-CERP/eventindexer/internal/store"
)

// defaultSearchFields are the stored fields shown per hit in text output.
var defaultSearchFields = []string{
	"event.collector_tstamp",
	"event.event",
	"event.app_id",
	"event.domain_userid",
	"meta.source_location.key",
}

type searchOptions struct {
	limit  int
	fields []string
	json   bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <partition> [query]",
		Short: "Query one partition",
		Long: `Run a query string query against one partition. Without a query every
document matches.

Identifier fields (names ending in id, fingerprint or ipaddress, and names
starting with ip) are keywords and match exactly, including case.`,
		Example: `  eventindexer search snowplow_events_2021-01-05-00-00-00 'event.app_id:shop'
  eventindexer search snowplow_events_2021-01-05-00-00-00 'event.event:page_view' --limit 5 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, root, args[0], strings.Join(args[1:], " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of hits")
	cmd.Flags().StringSliceVarP(&opts.fields, "field", "f", nil, "Field to show per hit (repeatable)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output hits as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, partitionName, query string, opts searchOptions) error {
	ctx := cmd.Context()

	rt, err := openRuntime(ctx, root.cfg, runtimeNeeds{})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	res, err := rt.cluster.Search(ctx, partitionName, query, opts.limit)
	if err != nil {
		if stderrors.Is(err, store.ErrIndexBusy) {
			return errors.BackendError(fmt.Sprintf("partition %s is in use by another process", partitionName), err).
				WithSuggestion("Retry once the running ingest finishes, or raise search.open_timeout")
		}
		if stderrors.Is(err, store.ErrIndexNotFound) {
			return errors.ValidationError(fmt.Sprintf("partition %s does not exist", partitionName), err).
				WithSuggestion("Run 'eventindexer partitions' to list partitions")
		}
		return errors.ValidationError(fmt.Sprintf("search in %s failed", partitionName), err)
	}

	out := output.New(cmd.OutOrStdout())
	if opts.json {
		return out.JSON(res)
	}

	out.Statusf("🔍", "%d hits in %s (%s), showing %d", res.Total, partitionName, res.Took.Round(time.Microsecond), len(res.Hits))
	fields := opts.fields
	if len(fields) == 0 {
		fields = defaultSearchFields
	}
	for _, hit := range res.Hits {
		out.Newline()
		out.Statusf("•", "%s  score=%.3f", hit.ID, hit.Score)
		for _, f := range fields {
			if v, ok := hit.Fields[f]; ok {
				out.Status("", fmt.Sprintf("%s: %v", f, v))
			}
		}
	}
	return nil
}
