package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/eventindexer/internal/decode"
	ierrors "github.com/Aman-CERP/eventindexer/internal/errors"
)

func testDocs(n int) []*decode.Document {
	docs := make([]*decode.Document, n)
	for i := range docs {
		docs[i] = &decode.Document{
			Meta:    decode.Meta{Source: decode.Source, Classification: decode.ClassEnrichedGood},
			Message: "line",
		}
	}
	return docs
}

func TestLoad_Empty_NoBackendCall(t *testing.T) {
	// Given: an empty batch
	b := newFakeBackend()
	l := NewLoader(b)

	// When: loading it
	res, err := l.Load(context.Background(), "p", nil)

	// Then: it succeeds without a write
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Zero(t, res.Indexed)
	assert.Empty(t, b.bulkCalls)
}

func TestLoad_SingleBulkCall(t *testing.T) {
	// Given: three documents
	b := newFakeBackend("p")
	l := NewLoader(b)
	docs := testDocs(3)

	// When: loading them
	res, err := l.Load(context.Background(), "p", docs)

	// Then: one bulk call carries every document with a unique id
	require.NoError(t, err)
	assert.Equal(t, 3, res.Indexed)
	require.Len(t, b.bulkCalls, 1)

	ids := make(map[string]bool)
	for i, item := range b.bulkCalls[0] {
		assert.Equal(t, "p", item.Index)
		assert.Equal(t, decode.DocType, item.Type)
		assert.Same(t, docs[i], item.Document)
		assert.NotEmpty(t, item.ID)
		ids[item.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestLoad_PartialFailure_FailsLoud(t *testing.T) {
	// Given: a backend rejecting the second item
	b := newFakeBackend("p")
	b.failPositions = map[int]bool{1: true}
	l := NewLoader(b)

	// When: loading three documents
	res, err := l.Load(context.Background(), "p", testDocs(3))

	// Then: the failure is surfaced with the rejected item
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, ierrors.ErrCodeBulkFailed, ierrors.GetCode(err))

	var bulkErr *BulkError
	require.True(t, errors.As(err, &bulkErr))
	assert.Equal(t, 3, bulkErr.Total)
	require.Len(t, bulkErr.Failed, 1)
	assert.Equal(t, 400, bulkErr.Failed[0].Status)
	assert.Contains(t, err.Error(), "1 of 3 documents rejected by p")
}

func TestLoad_TransportFailure(t *testing.T) {
	b := newFakeBackend("p")
	b.bulkErr = errors.New("connection reset")
	l := NewLoader(b)

	_, err := l.Load(context.Background(), "p", testDocs(1))
	require.Error(t, err)
	assert.Equal(t, ierrors.ErrCodeBackendUnavailable, ierrors.GetCode(err))
}
