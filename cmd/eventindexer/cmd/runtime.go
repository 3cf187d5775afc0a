package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/eventindexer/internal/blob"
	"github.com/Aman-CERP/eventindexer/internal/config"
	"github.com/Aman-CERP/eventindexer/internal/decode"
	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/index"
	"github.com/Aman-CERP/eventindexer/internal/ledger"
	"github.com/Aman-CERP/eventindexer/internal/partition"
	"github.com/Aman-CERP/eventindexer/internal/schema"
	"github.com/Aman-CERP/eventindexer/internal/store"
)

// runtime is the set of collaborators a command works with. Fields a command
// did not ask for stay nil.
type runtime struct {
	cfg     *config.Config
	cluster *store.BleveCluster
	namer   *partition.Namer
	blobs   blob.Store
	files   *blob.FileStore
	ledger  *ledger.Ledger

	closers []func() error
}

// runtimeNeeds selects the optional parts of a runtime.
type runtimeNeeds struct {
	blobs  bool
	ledger bool
}

func openRuntime(ctx context.Context, cfg *config.Config, needs runtimeNeeds) (*runtime, error) {
	if cfg == nil {
		return nil, errors.InternalError("configuration was not loaded", nil)
	}
	rt := &runtime{
		cfg:   cfg,
		namer: partition.NewNamer(cfg.Partition.Prefix, cfg.Partition.DateBucketLen),
	}

	openTimeout, _ := cfg.OpenTimeout()
	cluster, err := store.OpenCluster(cfg.Search.Endpoint, cfg.Search.OpenIndexCache, store.WithOpenTimeout(openTimeout))
	if err != nil {
		return nil, errors.BackendError(fmt.Sprintf("failed to open search cluster at %s", cfg.Search.Endpoint), err).
			WithSuggestion("Check search.endpoint in the config file or ES_END_POINT")
	}
	rt.cluster = cluster
	rt.closers = append(rt.closers, cluster.Close)

	if needs.blobs {
		if err := rt.openBlobs(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	if needs.ledger && cfg.Ledger.Enabled {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			_ = rt.Close()
			return nil, errors.New(errors.ErrCodeInternal, fmt.Sprintf("failed to open ledger at %s", cfg.Ledger.Path), err)
		}
		rt.ledger = l
		rt.closers = append(rt.closers, l.Close)
	}
	return rt, nil
}

func (rt *runtime) openBlobs(ctx context.Context) error {
	switch rt.cfg.Blob.Provider {
	case config.ProviderGCS:
		gcs, err := blob.NewGCSStore(ctx)
		if err != nil {
			return errors.New(errors.ErrCodeObjectFetchFailed, "failed to create Cloud Storage client", err).
				WithSuggestion("Check application default credentials, or set STORAGE_EMULATOR_HOST")
		}
		rt.blobs = gcs
		rt.closers = append(rt.closers, gcs.Close)
	default:
		fs, err := blob.NewFileStore(rt.cfg.Blob.Root)
		if err != nil {
			return err
		}
		rt.blobs = fs
		rt.files = fs
	}
	return nil
}

// coordinator builds the ingest pipeline over the runtime.
func (rt *runtime) coordinator() (*index.Coordinator, error) {
	registry := schema.Snowplow()
	def, err := index.Definition(registry)
	if err != nil {
		return nil, err
	}
	deps := index.Dependencies{
		Backend:       rt.cluster,
		Blobs:         rt.blobs,
		Decoder:       decode.New(registry, decode.WithMaxLineBytes(rt.cfg.Decode.MaxLineBytes)),
		Namer:         rt.namer,
		Definition:    def,
		RetentionDays: rt.cfg.Retention.DaysToKeep,
	}
	// A nil *Ledger must not become a non-nil Recorder.
	if rt.ledger != nil {
		deps.Recorder = rt.ledger
	}
	return index.NewCoordinator(deps)
}

// Close releases everything in reverse order of opening.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if err := stderrors.Join(errs...); err != nil {
		slog.Warn("runtime_close_failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
