package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/index"
	"github.com/Aman-CERP/eventindexer/internal/output"
	"github.com/Aman-CERP/eventindexer/internal/trigger"
)

type ingestOptions struct {
	event  string
	bucket string
	key    string
	all    bool
	prefix string
	json   bool
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest one object into its partition and sweep old partitions",
		Long: `Ingest a single event log object, then delete partitions older than
retention.days_to_keep.

The object is named either by a storage notification (S3 "Records" or Cloud
Storage object shape) or directly by bucket and key. With --all, every object
in a file-provider bucket is ingested in key order, stopping at the first
failure.`,
		Example: `  # From a notification file, or stdin
  eventindexer ingest --event notification.json
  cat notification.json | eventindexer ingest --event -

  # By bucket and key
  eventindexer ingest --bucket events --key logs/enriched/good/run=2021-01-05-00-00-00/part-0001.gz

  # Replay a bucket
  eventindexer ingest --bucket events --all --prefix logs/enriched/good/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.event, "event", "e", "", "Notification JSON file, or - for stdin")
	cmd.Flags().StringVarP(&opts.bucket, "bucket", "b", "", "Bucket of the object")
	cmd.Flags().StringVarP(&opts.key, "key", "k", "", "Key of the object")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Ingest every object in --bucket (file provider only)")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "With --all, only keys starting with this prefix")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output results as JSON")
	cmd.MarkFlagsMutuallyExclusive("event", "bucket")
	cmd.MarkFlagsMutuallyExclusive("event", "all")
	cmd.MarkFlagsMutuallyExclusive("key", "all")

	return cmd
}

func runIngest(cmd *cobra.Command, root *rootOptions, opts ingestOptions) error {
	ctx := cmd.Context()

	rt, err := openRuntime(ctx, root.cfg, runtimeNeeds{blobs: true, ledger: true})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	notifications, err := ingestTargets(ctx, cmd.InOrStdin(), rt, opts)
	if err != nil {
		return err
	}

	coord, err := rt.coordinator()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	var summaries []ingestSummary
	for _, n := range notifications {
		res, err := coord.Handle(ctx, n)
		if err != nil {
			if opts.json {
				_ = out.JSON(summaries)
			}
			return err
		}
		s := summarize(res)
		summaries = append(summaries, s)
		if !opts.json {
			printSummary(out, s)
		}
	}
	if opts.json {
		return out.JSON(summaries)
	}
	if len(notifications) == 0 {
		out.Warningf("no objects found in %s with prefix %q", opts.bucket, opts.prefix)
	}
	return nil
}

// ingestTargets resolves the flags into the notifications to process.
func ingestTargets(ctx context.Context, stdin io.Reader, rt *runtime, opts ingestOptions) ([]trigger.Notification, error) {
	switch {
	case opts.event != "":
		n, err := readNotification(stdin, opts.event)
		if err != nil {
			return nil, err
		}
		return []trigger.Notification{n}, nil

	case opts.all:
		if opts.bucket == "" {
			return nil, errors.ValidationError("--all requires --bucket", nil)
		}
		if rt.files == nil {
			return nil, errors.ValidationError("--all is only supported with the file blob provider", nil)
		}
		keys, err := rt.files.List(ctx, opts.bucket, opts.prefix)
		if err != nil {
			return nil, err
		}
		out := make([]trigger.Notification, 0, len(keys))
		for _, k := range keys {
			out = append(out, trigger.Notification{Bucket: opts.bucket, Key: k})
		}
		return out, nil

	case opts.bucket != "" || opts.key != "":
		n := trigger.Notification{Bucket: opts.bucket, Key: opts.key}
		if err := n.Validate(); err != nil {
			return nil, err
		}
		return []trigger.Notification{n}, nil
	}

	return nil, errors.ValidationError("nothing to ingest", nil).
		WithSuggestion("Pass --event <file|->, or --bucket with --key or --all")
}

func readNotification(stdin io.Reader, source string) (trigger.Notification, error) {
	if source == "-" {
		return trigger.Read(stdin)
	}
	f, err := os.Open(source)
	if err != nil {
		return trigger.Notification{}, errors.New(errors.ErrCodeInvalidNotification,
			fmt.Sprintf("failed to open notification %s", source), err)
	}
	defer func() { _ = f.Close() }()
	return trigger.Read(f)
}

// ingestSummary is the printable outcome of one ingest.
type ingestSummary struct {
	Bucket         string   `json:"bucket"`
	Key            string   `json:"key"`
	Partition      string   `json:"partition"`
	Classification string   `json:"classification"`
	Documents      int      `json:"documents"`
	Deleted        []string `json:"deleted"`
	DurationMS     int64    `json:"duration_ms"`
}

func summarize(res *index.Result) ingestSummary {
	s := ingestSummary{
		Bucket:         res.Notification.Bucket,
		Key:            res.Notification.Key,
		Partition:      res.Partition,
		Classification: res.Classification,
		Documents:      res.Documents,
		DurationMS:     res.Duration.Milliseconds(),
		Deleted:        []string{},
	}
	if res.Sweep != nil {
		if d := res.Sweep.Deleted(); d != nil {
			s.Deleted = d
		}
	}
	return s
}

func printSummary(out *output.Writer, s ingestSummary) {
	if s.Documents == 0 {
		out.Warningf("%s/%s: nothing to index", s.Bucket, s.Key)
	} else {
		out.Successf("%s/%s: %d documents indexed into %s", s.Bucket, s.Key, s.Documents, s.Partition)
	}
	if len(s.Deleted) > 0 {
		out.Statusf("🗑 ", "deleted %d expired partitions: %s", len(s.Deleted), strings.Join(s.Deleted, ", "))
	}
}
