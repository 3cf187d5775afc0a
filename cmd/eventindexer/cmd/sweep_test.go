package cmd

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/index"
	"github.com/Aman-CERP/eventindexer/internal/schema"
)

// seedPartitions ingests one object per run start with a retention window
// wide enough that nothing is swept on the way.
func seedPartitions(t *testing.T, env *cliEnv, starts ...time.Time) {
	t.Helper()
	for _, ts := range starts {
		key := runKey(ts, "part-0001.gz")
		env.putEvents(t, key, "app")
		_, err := env.run(t, "", "ingest", "--bucket", testBucket, "--key", key)
		require.NoError(t, err)
	}
}

func TestSweepCmd_DryRunThenDelete(t *testing.T) {
	// Given: one expired partition, one fresh one and an unmanaged index
	env := newCLIEnv(t, 36500)
	old := time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)
	fresh := recentRun()
	seedPartitions(t, env, old, fresh)

	c := env.cluster(t)
	def, err := index.Definition(schema.Snowplow())
	require.NoError(t, err)
	require.NoError(t, c.CreateIndex(t.Context(), "kibana_settings", def))
	require.NoError(t, c.Close())

	// When: dry-running a seven day sweep
	out, err := env.run(t, "", "sweep", "--days", "7", "--dry-run", "--json")
	require.NoError(t, err)

	// Then: the old partition is selected but kept
	var report sweepReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.DryRun)
	assert.Equal(t, []string{partitionFor(old)}, report.Expired)
	assert.Empty(t, report.Deleted)
	assert.Equal(t, []string{"kibana_settings"}, report.Unmanaged)
	assert.Equal(t, 2, report.Managed)

	// When: sweeping for real
	out, err = env.run(t, "", "sweep", "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 partitions")
	assert.Contains(t, out, partitionFor(old))

	// Then: only the expired partition is gone
	names, err := env.cluster(t).ListIndices(t.Context(), "*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{partitionFor(fresh), "kibana_settings"}, names)
}

func TestSweepCmd_NothingToDelete(t *testing.T) {
	env := newCLIEnv(t, 7)
	seedPartitions(t, env, recentRun())

	out, err := env.run(t, "", "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to delete")
}

func TestSweepCmd_NegativeDays(t *testing.T) {
	env := newCLIEnv(t, 7)

	_, err := env.run(t, "", "sweep", "--days", "-2")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestSweepCmd_HugeDaysKeepsPartitions(t *testing.T) {
	// Given: an old partition
	env := newCLIEnv(t, 36500)
	old := time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)
	seedPartitions(t, env, old)

	// When: sweeping with a window wider than time.Duration can hold
	out, err := env.run(t, "", "sweep", "--days", "200000")

	// Then: nothing is deleted
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to delete")
	names, err := env.cluster(t).ListIndices(t.Context(), "*")
	require.NoError(t, err)
	assert.Equal(t, []string{partitionFor(old)}, names)
}
