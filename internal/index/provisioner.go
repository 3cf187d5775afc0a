// Package index runs the ingestion pipeline: it provisions partition indexes,
// bulk-loads decoded documents and sweeps partitions past retention.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/eventindexer/configs"
	ierrors "github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/schema"
	"github.com/Aman-CERP/eventindexer/internal/store"
)

// EventFieldRoot is the document path holding the paired event fields.
const EventFieldRoot = "event"

// Definition builds the index definition every partition is created with:
// the embedded mapping template applied to the registry's fields.
func Definition(reg *schema.Registry) (*store.IndexDefinition, error) {
	tmpl, err := store.ParseTemplate(configs.IndexMapping)
	if err != nil {
		return nil, ierrors.InternalError("embedded index mapping is invalid", err)
	}
	return &store.IndexDefinition{
		Template:  tmpl,
		Fields:    reg.Fields(),
		FieldRoot: EventFieldRoot,
	}, nil
}

// Provisioner creates partition indexes on first use.
type Provisioner struct {
	backend store.Backend
	def     *store.IndexDefinition
}

// NewProvisioner creates a Provisioner that creates indexes with def.
func NewProvisioner(backend store.Backend, def *store.IndexDefinition) *Provisioner {
	return &Provisioner{backend: backend, def: def}
}

// EnsureIndex makes sure the named index exists. Losing a creation race to
// another writer counts as success.
func (p *Provisioner) EnsureIndex(ctx context.Context, name string) error {
	exists, err := p.backend.IndexExists(ctx, name)
	if err != nil {
		return ierrors.BackendError(fmt.Sprintf("failed to check index %s", name), err).
			WithDetail("partition", name)
	}
	if exists {
		slog.Debug("index_exists", slog.String("partition", name))
		return nil
	}

	err = p.backend.CreateIndex(ctx, name, p.def)
	if errors.Is(err, store.ErrIndexExists) {
		slog.Info("index_created_concurrently", slog.String("partition", name))
		return nil
	}
	if err != nil {
		return ierrors.New(ierrors.ErrCodeIndexCreateFailed, fmt.Sprintf("failed to create index %s", name), err).
			WithDetail("partition", name)
	}

	slog.Info("index_created", slog.String("partition", name))
	return nil
}
