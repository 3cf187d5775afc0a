package index

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/eventindexer/internal/blob"
	"github.com/Aman-CERP/eventindexer/internal/decode"
	ierrors "github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/partition"
	"github.com/Aman-CERP/eventindexer/internal/schema"
	"github.com/Aman-CERP/eventindexer/internal/store"
	"github.com/Aman-CERP/eventindexer/internal/trigger"
)

const e2eKey = "logs/enriched/good/run=2021-01-05-00-00-00/part-0001.gz"

var e2eNow = time.Date(2021, 1, 6, 12, 0, 0, 0, time.UTC)

type recorded struct {
	res *Result
	err error
}

type fakeRecorder struct {
	runs []recorded
	err  error
}

func (r *fakeRecorder) Record(_ context.Context, res *Result, runErr error) error {
	r.runs = append(r.runs, recorded{res: res, err: runErr})
	return r.err
}

// fullLine builds a tab-separated line with one value per schema column.
func fullLine(reg *schema.Registry, overrides map[string]string) string {
	fields := reg.Fields()
	tokens := make([]string, len(fields))
	for i, f := range fields {
		if v, ok := overrides[f]; ok {
			tokens[i] = v
			continue
		}
		tokens[i] = "v" + f
	}
	return strings.Join(tokens, "\t")
}

func gzipString(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type harness struct {
	coord    *Coordinator
	blobs    *blob.FileStore
	recorder *fakeRecorder
}

func newHarness(t *testing.T, backend store.Backend, retentionDays int) *harness {
	t.Helper()
	blobs, err := blob.NewFileStore(t.TempDir())
	require.NoError(t, err)
	rec := &fakeRecorder{}
	reg := schema.Snowplow()
	coord, err := NewCoordinator(Dependencies{
		Backend:       backend,
		Blobs:         blobs,
		Decoder:       decode.New(reg),
		Namer:         partition.NewNamer("", 4),
		Definition:    testDefinition(t),
		RetentionDays: retentionDays,
		Recorder:      rec,
		Clock:         func() time.Time { return e2eNow },
	})
	require.NoError(t, err)
	return &harness{coord: coord, blobs: blobs, recorder: rec}
}

func (h *harness) put(t *testing.T, key string, body []byte) {
	t.Helper()
	require.NoError(t, h.blobs.Put(context.Background(), "events", key, bytes.NewReader(body)))
}

func TestHandle_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cluster, err := store.OpenCluster(store.MemoryEndpoint, 0)
	require.NoError(t, err)
	defer func() { _ = cluster.Close() }()

	// Given: a gzip object with two full-length enriched events
	h := newHarness(t, cluster, 7)
	reg := schema.Snowplow()
	body := fullLine(reg, map[string]string{"app_id": "shop", "domain_userid": "UserAbc123"}) + "\n" +
		fullLine(reg, map[string]string{"app_id": "blog"}) + "\n"
	h.put(t, e2eKey, gzipString(t, body))

	// When: handling its notification
	res, err := h.coord.Handle(ctx, trigger.Notification{Bucket: "events", Key: e2eKey})

	// Then: both documents land in the derived partition
	require.NoError(t, err)
	assert.Equal(t, "snowplow_events_2021-01-05-00-00-00", res.Partition)
	assert.Equal(t, decode.ClassEnrichedGood, res.Classification)
	assert.Equal(t, 2, res.Documents)
	require.NotNil(t, res.Load)
	assert.Equal(t, 2, res.Load.Indexed)

	count, err := cluster.DocCount(ctx, res.Partition)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	// And: identifier fields are searchable as exact keywords
	hits, err := cluster.Search(ctx, res.Partition, "event.domain_userid:UserAbc123", 10)
	require.NoError(t, err)
	require.Len(t, hits.Hits, 1)

	// And: the sweep ran and kept the fresh partition
	require.NotNil(t, res.Sweep)
	assert.Empty(t, res.Sweep.Expired)

	// And: the run was recorded
	require.Len(t, h.recorder.runs, 1)
	assert.Same(t, res, h.recorder.runs[0].res)
	assert.NoError(t, h.recorder.runs[0].err)
}

func TestHandle_ReprocessingDuplicates(t *testing.T) {
	ctx := context.Background()
	cluster, err := store.OpenCluster(store.MemoryEndpoint, 0)
	require.NoError(t, err)
	defer func() { _ = cluster.Close() }()

	h := newHarness(t, cluster, 7)
	h.put(t, e2eKey, gzipString(t, "a\tb\nc\td\n"))
	n := trigger.Notification{Bucket: "events", Key: e2eKey}

	// When: the same object is delivered twice
	_, err = h.coord.Handle(ctx, n)
	require.NoError(t, err)
	res, err := h.coord.Handle(ctx, n)
	require.NoError(t, err)

	// Then: its documents are indexed twice
	count, err := cluster.DocCount(ctx, res.Partition)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
}

func TestHandle_PlainObject(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b, 7)
	key := "logs/enriched/bad/run=2021-01-05-00-00-00/part-0001.txt"
	h.put(t, key, []byte("x\ty\n\nz\n"))

	res, err := h.coord.Handle(context.Background(), trigger.Notification{Bucket: "events", Key: key})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, "enriched_bad", res.Classification)

	require.Len(t, b.bulkCalls, 1)
	for _, item := range b.bulkCalls[0] {
		doc := item.Document.(*decode.Document)
		assert.Nil(t, doc.Event)
	}
}

func TestHandle_EmptyObject_StillSweeps(t *testing.T) {
	// Given: an expired partition and an object with no lines
	b := newFakeBackend("snowplow_events_2020-01-01-00-00-00")
	h := newHarness(t, b, 7)
	h.put(t, e2eKey, gzipString(t, "\n\n"))

	// When: handling it
	res, err := h.coord.Handle(context.Background(), trigger.Notification{Bucket: "events", Key: e2eKey})

	// Then: nothing is written but retention still runs
	require.NoError(t, err)
	assert.True(t, res.Load.Empty)
	assert.Empty(t, b.bulkCalls)
	require.Len(t, b.deleteCalls, 1)
	assert.Equal(t, []string{"snowplow_events_2020-01-01-00-00-00"}, b.deleteCalls[0])
}

func TestHandle_MalformedKey(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b, 7)

	res, err := h.coord.Handle(context.Background(), trigger.Notification{Bucket: "events", Key: "part-0001.gz"})
	require.Error(t, err)
	assert.Equal(t, ierrors.ErrCodeMalformedKey, ierrors.GetCode(err))
	assert.Empty(t, res.Partition)
	assert.Empty(t, b.createCalls)
	assert.Zero(t, b.existsCalls)

	// And: the failure is recorded
	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, err, h.recorder.runs[0].err)
}

func TestHandle_InvalidNotification(t *testing.T) {
	h := newHarness(t, newFakeBackend(), 7)
	_, err := h.coord.Handle(context.Background(), trigger.Notification{Key: e2eKey})
	assert.Equal(t, ierrors.ErrCodeInvalidNotification, ierrors.GetCode(err))
}

func TestHandle_MissingObject(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b, 7)

	_, err := h.coord.Handle(context.Background(), trigger.Notification{Bucket: "events", Key: e2eKey})
	require.Error(t, err)
	assert.Equal(t, ierrors.ErrCodeObjectNotFound, ierrors.GetCode(err))
	assert.Empty(t, b.bulkCalls)
	assert.Empty(t, b.deleteCalls)
}

func TestHandle_CorruptObject(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b, 7)
	h.put(t, e2eKey, []byte("not gzip at all"))

	_, err := h.coord.Handle(context.Background(), trigger.Notification{Bucket: "events", Key: e2eKey})
	assert.Equal(t, ierrors.ErrCodeObjectCorrupt, ierrors.GetCode(err))
	assert.Empty(t, b.bulkCalls)
}

func TestHandle_BulkFailure_StopsBeforeSweep(t *testing.T) {
	b := newFakeBackend("snowplow_events_2020-01-01-00-00-00")
	b.failPositions = map[int]bool{0: true}
	h := newHarness(t, b, 7)
	h.put(t, e2eKey, gzipString(t, "a\n"))

	res, err := h.coord.Handle(context.Background(), trigger.Notification{Bucket: "events", Key: e2eKey})
	require.Error(t, err)
	assert.Equal(t, ierrors.ErrCodeBulkFailed, ierrors.GetCode(err))
	assert.Nil(t, res.Sweep)
	assert.Empty(t, b.deleteCalls)
}

func TestHandle_RecorderFailureIsNotPropagated(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b, 7)
	h.recorder.err = errors.New("ledger locked")
	h.put(t, e2eKey, gzipString(t, "a\n"))

	_, err := h.coord.Handle(context.Background(), trigger.Notification{Bucket: "events", Key: e2eKey})
	assert.NoError(t, err)
	assert.Len(t, h.recorder.runs, 1)
}

func TestNewCoordinator_RequiresDependencies(t *testing.T) {
	reg := schema.Snowplow()
	blobs, err := blob.NewFileStore(t.TempDir())
	require.NoError(t, err)
	full := Dependencies{
		Backend:    newFakeBackend(),
		Blobs:      blobs,
		Decoder:    decode.New(reg),
		Namer:      partition.NewNamer("", 4),
		Definition: testDefinition(t),
	}

	tests := []struct {
		name   string
		mutate func(*Dependencies)
	}{
		{"backend", func(d *Dependencies) { d.Backend = nil }},
		{"blobs", func(d *Dependencies) { d.Blobs = nil }},
		{"decoder", func(d *Dependencies) { d.Decoder = nil }},
		{"namer", func(d *Dependencies) { d.Namer = nil }},
		{"definition", func(d *Dependencies) { d.Definition = nil }},
		{"negative retention", func(d *Dependencies) { d.RetentionDays = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.mutate(&deps)
			_, err := NewCoordinator(deps)
			assert.Error(t, err)
		})
	}

	c, err := NewCoordinator(full)
	require.NoError(t, err)
	assert.NotNil(t, c.Sweeper())
	assert.Zero(t, c.RetentionDays())
}
