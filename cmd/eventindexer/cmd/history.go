package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/ledger"
	"github.com/Aman-CERP/eventindexer/internal/output"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent ingest runs from the ledger",
		Long: `Show the most recent ingest runs, newest first. Every run is recorded,
including failures and repeated ingests of the same object.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, root, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", ledger.DefaultListLimit, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type historyEntry struct {
	ID             string   `json:"id"`
	Started        string   `json:"started"`
	Bucket         string   `json:"bucket"`
	Key            string   `json:"key"`
	Partition      string   `json:"partition,omitempty"`
	Classification string   `json:"classification,omitempty"`
	Documents      int      `json:"documents"`
	Deleted        []string `json:"deleted"`
	Status         string   `json:"status"`
	ErrorCode      string   `json:"error_code,omitempty"`
	Error          string   `json:"error,omitempty"`
	DurationMS     int64    `json:"duration_ms"`
}

func runHistory(cmd *cobra.Command, root *rootOptions, limit int, jsonOutput bool) error {
	ctx := cmd.Context()

	if root.cfg != nil && !root.cfg.Ledger.Enabled {
		return errors.ConfigError("the ingest ledger is disabled", nil).
			WithSuggestion("Set ledger.enabled: true in the config file")
	}

	rt, err := openRuntime(ctx, root.cfg, runtimeNeeds{ledger: true})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	runs, err := rt.ledger.List(ctx, limit)
	if err != nil {
		return errors.InternalError("failed to read the ledger", err)
	}

	entries := make([]historyEntry, 0, len(runs))
	for _, r := range runs {
		deleted := r.Deleted
		if deleted == nil {
			deleted = []string{}
		}
		entries = append(entries, historyEntry{
			ID:             r.ID,
			Started:        r.Started.UTC().Format(time.RFC3339),
			Bucket:         r.Bucket,
			Key:            r.Key,
			Partition:      r.Partition,
			Classification: r.Classification,
			Documents:      r.Documents,
			Deleted:        deleted,
			Status:         r.Status,
			ErrorCode:      r.ErrorCode,
			Error:          r.Error,
			DurationMS:     r.Duration.Milliseconds(),
		})
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(entries)
	}
	if len(entries) == 0 {
		out.Status("ℹ️ ", "no ingest runs recorded")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := e.Status
		if e.ErrorCode != "" {
			status += " " + e.ErrorCode
		}
		rows = append(rows, []string{
			e.Started,
			e.Bucket + "/" + e.Key,
			e.Partition,
			strconv.Itoa(e.Documents),
			strconv.Itoa(len(e.Deleted)),
			status,
		})
	}
	return out.Table([]string{"started", "object", "partition", "docs", "swept", "status"}, rows)
}
