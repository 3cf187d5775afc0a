package cmd

import (
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/output"
	"github.com/Aman-CERP/eventindexer/internal/partition"
	"github.com/Aman-CERP/eventindexer/internal/store"
)

type partitionInfo struct {
	Name      string `json:"name"`
	Managed   bool   `json:"managed"`
	Created   string `json:"created,omitempty"`
	Documents uint64 `json:"documents"`
	Expired   bool   `json:"expired"`
	Busy      bool   `json:"busy,omitempty"`
}

func newPartitionsCmd(root *rootOptions) *cobra.Command {
	var jsonOutput, managedOnly bool

	cmd := &cobra.Command{
		Use:   "partitions [pattern]",
		Short: "List partitions with their document counts",
		Long: `List the indexes on the search endpoint, oldest first. The optional
pattern is a glob such as 'snowplow_events_2021-01-*'.

Managed partitions show the creation time parsed from their name and whether
the next sweep would delete them. --managed hides every other index.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return runPartitions(cmd, root, pattern, managedOnly, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&managedOnly, "managed", false, "Only list partitions named <prefix>_<timestamp>")

	return cmd
}

func runPartitions(cmd *cobra.Command, root *rootOptions, pattern string, managedOnly, jsonOutput bool) error {
	ctx := cmd.Context()

	rt, err := openRuntime(ctx, root.cfg, runtimeNeeds{})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if pattern == "" {
		pattern = "*"
		if managedOnly {
			pattern = rt.namer.Prefix() + "_*"
		}
	}
	names, err := rt.cluster.ListIndices(ctx, pattern)
	if err != nil {
		return errors.ValidationError("failed to list partitions", err)
	}

	cutoff := partition.Cutoff(time.Now(), rt.cfg.Retention.DaysToKeep)
	infos := make([]partitionInfo, 0, len(names))
	for _, name := range names {
		info := partitionInfo{Name: name}
		if ts, err := rt.namer.ParseTimestamp(name); err == nil {
			info.Managed = true
			info.Created = ts.Format(time.RFC3339)
			info.Expired = ts.Before(cutoff)
		} else if managedOnly {
			continue
		}
		count, err := rt.cluster.DocCount(ctx, name)
		if stderrors.Is(err, store.ErrIndexBusy) {
			info.Busy = true
			infos = append(infos, info)
			continue
		}
		if err != nil {
			return errors.BackendError("failed to count documents in "+name, err)
		}
		info.Documents = count
		infos = append(infos, info)
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(infos)
	}
	if len(infos) == 0 {
		out.Status("ℹ️ ", "no partitions")
		return nil
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		created := info.Created
		if !info.Managed {
			created = "(unmanaged)"
		}
		status := ""
		if info.Expired {
			status = "expired"
		}
		docs := strconv.FormatUint(info.Documents, 10)
		if info.Busy {
			docs = "-"
			status = strings.TrimPrefix(status+", in use", ", ")
		}
		rows = append(rows, []string{info.Name, created, docs, status})
	}
	return out.Table([]string{"partition", "created", "docs", "status"}, rows)
}
