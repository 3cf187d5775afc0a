package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/eventindexer/internal/blob"
	"github.com/Aman-CERP/eventindexer/internal/decode"
	ierrors "github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/partition"
	"github.com/Aman-CERP/eventindexer/internal/store"
	"github.com/Aman-CERP/eventindexer/internal/trigger"
)

// Recorder keeps an audit trail of pipeline runs.
type Recorder interface {
	Record(ctx context.Context, res *Result, runErr error) error
}

// Dependencies contains the injected collaborators of a Coordinator.
type Dependencies struct {
	// Backend is the search cluster (required).
	Backend store.Backend

	// Blobs fetches object bodies (required).
	Blobs blob.Store

	// Decoder turns object bodies into documents (required).
	Decoder *decode.Decoder

	// Namer derives partition names (required).
	Namer *partition.Namer

	// Definition is what new partitions are created with (required).
	Definition *store.IndexDefinition

	// RetentionDays is the sweep window.
	RetentionDays int

	// Recorder receives a record of every run (optional).
	Recorder Recorder

	// Clock replaces the wall clock for sweeps (optional).
	Clock func() time.Time
}

// StageTimings tracks the duration of each pipeline stage.
type StageTimings struct {
	Provision time.Duration
	Decode    time.Duration
	Load      time.Duration
	Sweep     time.Duration
}

// Result is the outcome of handling one notification. On failure it holds
// whatever was known when the pipeline stopped.
type Result struct {
	Notification   trigger.Notification
	Partition      string
	Classification string
	Documents      int
	Load           *LoadResult
	Sweep          *SweepResult
	Started        time.Time
	Duration       time.Duration
	Stages         StageTimings
}

// Coordinator runs the per-notification pipeline.
type Coordinator struct {
	blobs         blob.Store
	decoder       *decode.Decoder
	namer         *partition.Namer
	provisioner   *Provisioner
	loader        *Loader
	sweeper       *Sweeper
	recorder      Recorder
	retentionDays int
}

// NewCoordinator creates a Coordinator with injected dependencies.
func NewCoordinator(deps Dependencies) (*Coordinator, error) {
	if deps.Backend == nil {
		return nil, fmt.Errorf("search backend is required")
	}
	if deps.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if deps.Decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if deps.Namer == nil {
		return nil, fmt.Errorf("partition namer is required")
	}
	if deps.Definition == nil {
		return nil, fmt.Errorf("index definition is required")
	}
	if deps.RetentionDays < 0 {
		return nil, fmt.Errorf("retention days must not be negative, got %d", deps.RetentionDays)
	}

	return &Coordinator{
		blobs:         deps.Blobs,
		decoder:       deps.Decoder,
		namer:         deps.Namer,
		provisioner:   NewProvisioner(deps.Backend, deps.Definition),
		loader:        NewLoader(deps.Backend),
		sweeper:       NewSweeper(deps.Backend, deps.Namer, WithClock(deps.Clock)),
		recorder:      deps.Recorder,
		retentionDays: deps.RetentionDays,
	}, nil
}

// Sweeper returns the retention sweeper the coordinator runs after each load.
func (c *Coordinator) Sweeper() *Sweeper {
	return c.sweeper
}

// RetentionDays returns the configured retention window.
func (c *Coordinator) RetentionDays() int {
	return c.retentionDays
}

// Handle ingests the object named by n and then runs a retention sweep.
// Nothing is retried; the first failure is returned.
func (c *Coordinator) Handle(ctx context.Context, n trigger.Notification) (*Result, error) {
	res := &Result{Notification: n, Started: time.Now()}
	err := c.handle(ctx, n, res)
	res.Duration = time.Since(res.Started)

	if err != nil {
		attrs := append([]any{slog.String("bucket", n.Bucket), slog.String("key", n.Key)}, ierrors.LogAttrs(err)...)
		slog.Error("ingest_failed", attrs...)
	} else {
		slog.Info("ingest_complete",
			slog.String("bucket", n.Bucket),
			slog.String("key", n.Key),
			slog.String("partition", res.Partition),
			slog.Int("documents", res.Documents),
			slog.Duration("duration", res.Duration))
	}

	if c.recorder != nil {
		if recErr := c.recorder.Record(ctx, res, err); recErr != nil {
			slog.Warn("ledger_record_failed", slog.String("key", n.Key), slog.String("error", recErr.Error()))
		}
	}
	return res, err
}

func (c *Coordinator) handle(ctx context.Context, n trigger.Notification, res *Result) error {
	if err := n.Validate(); err != nil {
		return err
	}
	slog.Info("ingest_started", slog.String("bucket", n.Bucket), slog.String("key", n.Key))

	name, err := c.namer.Derive(n.Key)
	if err != nil {
		return err
	}
	res.Partition = name
	res.Classification = decode.Classify(n.Key)

	stage := time.Now()
	if err := c.provisioner.EnsureIndex(ctx, name); err != nil {
		return err
	}
	res.Stages.Provision = time.Since(stage)

	stage = time.Now()
	docs, err := c.fetchAndDecode(ctx, n)
	res.Stages.Decode = time.Since(stage)
	if err != nil {
		return err
	}
	res.Documents = len(docs)

	stage = time.Now()
	load, err := c.loader.Load(ctx, name, docs)
	res.Stages.Load = time.Since(stage)
	if err != nil {
		return err
	}
	res.Load = load

	stage = time.Now()
	sweep, err := c.sweeper.Sweep(ctx, c.retentionDays)
	res.Stages.Sweep = time.Since(stage)
	if err != nil {
		return err
	}
	res.Sweep = sweep
	return nil
}

func (c *Coordinator) fetchAndDecode(ctx context.Context, n trigger.Notification) ([]*decode.Document, error) {
	body, err := c.blobs.Get(ctx, n.Bucket, n.Key)
	if err != nil {
		if _, ok := ierrors.As(err); ok {
			return nil, err
		}
		return nil, ierrors.New(ierrors.ErrCodeObjectFetchFailed, fmt.Sprintf("failed to fetch object %s", n), err)
	}
	defer func() { _ = body.Close() }()

	compressed := strings.HasSuffix(n.Key, ".gz")
	return decode.Collect(c.decoder.Decode(n.Bucket, n.Key, compressed, body))
}
