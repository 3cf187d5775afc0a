package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("🔍", "Listing partitions")

	assert.Equal(t, "🔍 Listing partitions\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "detail")
	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_Levels(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing one message per level
	w.Successf("indexed %d documents", 3)
	w.Warningf("%d partitions already gone", 1)
	w.Errorf("sweep failed: %s", "boom")

	// Then: each line carries its icon
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "✅ indexed 3 documents", lines[0])
	assert.Contains(t, lines[1], "⚠️")
	assert.Contains(t, lines[1], "1 partitions already gone")
	assert.Equal(t, "❌ sweep failed: boom", lines[2])
}

func TestWriter_Code_IndentsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("a\nb")
	assert.Equal(t, "\n  a\n  b\n\n", buf.String())
}

func TestWriter_Table_AlignsColumns(t *testing.T) {
	// Given: rows of uneven width
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a table
	err := w.Table([]string{"partition", "docs"}, [][]string{
		{"snowplow_events_2021-01-05-00-00-00", "2"},
		{"x", "10"},
	})
	require.NoError(t, err)

	// Then: the header is upper-cased and the second column lines up
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "PARTITION"))
	col := strings.Index(lines[0], "DOCS")
	assert.Equal(t, col, strings.LastIndex(lines[1], "2"))
	assert.Equal(t, col, strings.LastIndex(lines[2], "10"))
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).JSON(map[string]int{"deleted": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["deleted"])
	assert.Contains(t, buf.String(), "\n  \"deleted\"")
}
