package pgstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestNodeAndGet(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.IngestNode(Node{ID: "n1", Label: "Person", Props: map[string]string{"name": "Ada"}}))

	got, ok, err := db.GetNode("n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Person", got.Label)
	assert.Equal(t, "Ada", got.Props["name"])
}

func TestIngestNodeDuplicateRejected(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.IngestNode(Node{ID: "n1", Label: "Person"}))

	err := db.IngestNode(Node{ID: "n1", Label: "Person"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadRecord))
}

func TestIngestNodeRejectsSeparatorByte(t *testing.T) {
	db := openTestDB(t)
	err := db.IngestNode(Node{ID: "bad\x00id", Label: "Person"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadRecord))
}

func TestIngestNodeRejectsEmptyID(t *testing.T) {
	db := openTestDB(t)
	err := db.IngestNode(Node{ID: "", Label: "Person"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadRecord))
}

func TestIngestEdgeAndGet(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.IngestNode(Node{ID: "a", Label: "Person"}))
	require.NoError(t, db.IngestNode(Node{ID: "b", Label: "Person"}))
	require.NoError(t, db.IngestEdge(Edge{ID: "e1", Label: "KNOWS", Src: "a", Dst: "b", Directed: true}))

	got, ok, err := db.GetEdge("e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.Src)
	assert.Equal(t, "b", got.Dst)
	assert.True(t, got.Directed)
}

func TestIngestEdgeDuplicateRejected(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.IngestEdge(Edge{ID: "e1", Label: "KNOWS", Src: "a", Dst: "b", Directed: true}))
	err := db.IngestEdge(Edge{ID: "e1", Label: "KNOWS", Src: "a", Dst: "b", Directed: true})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadRecord))
}

func TestIngestFileCountsAndSchema(t *testing.T) {
	db := openTestDB(t)
	nodes := strings.Join([]string{
		"@id|@label|name",
		"n1|Person|Ada",
		"n2|Person|Grace",
	}, "\n")
	edges := strings.Join([]string{
		"@id|@label|@dir|@out|@in|since",
		"e1|KNOWS|T|n1|n2|2020",
	}, "\n")

	result, err := db.IngestFile(strings.NewReader(nodes))
	require.NoError(t, err)
	assert.Equal(t, 2, result.NodesIngested)
	assert.Empty(t, result.Skipped)

	result, err = db.IngestFile(strings.NewReader(edges))
	require.NoError(t, err)
	assert.Equal(t, 1, result.EdgesIngested)
	assert.Empty(t, result.Skipped)

	count, err := db.CountNodes()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	ecount, err := db.CountEdges()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ecount)

	schema, err := db.NodeSchema()
	require.NoError(t, err)
	_, hasName := schema["Person"]["name"]
	assert.True(t, hasName)

	byLabel, err := db.EdgeCountByLabel()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), byLabel["KNOWS"])
}

func TestIngestFileBatchedGroupingPreservesCounts(t *testing.T) {
	db, err := OpenInMemory(Options{BatchSize: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var lines []string
	lines = append(lines, "@id|@label|")
	for i := 0; i < 10; i++ {
		lines = append(lines, "n"+string(rune('a'+i))+"|Thing")
	}
	data := strings.Join(lines, "\n")

	result, err := db.IngestFile(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 10, result.NodesIngested)

	count, err := db.CountNodes()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), count)
}

func TestIngestFileSkipsBadRecordsLeniently(t *testing.T) {
	db := openTestDB(t)
	data := strings.Join([]string{
		"@id|@label|",
		"n1|Person",
		"n1|Person", // duplicate within file
		"n2|Person",
	}, "\n")

	result, err := db.IngestFile(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, result.NodesIngested)
	assert.Len(t, result.Skipped, 1)
}

func TestIngestFileStrictStopsAtFirstBadRecord(t *testing.T) {
	db, err := OpenInMemory(Options{Strict: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	data := strings.Join([]string{
		"@id|@label|",
		"n1|Person",
		"n1|Person",
		"n2|Person",
	}, "\n")

	result, err := db.IngestFile(strings.NewReader(data))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadRecord))
	assert.Equal(t, 1, result.NodesIngested)
}

func TestIngestFileStrictCommitsPriorRecordsInSameBatch(t *testing.T) {
	db, err := OpenInMemory(Options{Strict: true, BatchSize: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// All three lines land in one batch (BatchSize=3); n1's duplicate is
	// the second record in that same group. n1 must still be committed
	// even though the group as a whole halts on its duplicate.
	data := strings.Join([]string{
		"@id|@label|",
		"n1|Person",
		"n1|Person",
		"n3|Person",
	}, "\n")

	result, err := db.IngestFile(strings.NewReader(data))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadRecord))
	assert.Equal(t, 1, result.NodesIngested)

	_, ok, err := db.GetNode("n1")
	require.NoError(t, err)
	assert.True(t, ok, "n1 must be committed despite the group halting on n1's duplicate")

	_, ok, err = db.GetNode("n3")
	require.NoError(t, err)
	assert.False(t, ok, "n3 was never reached after the strict halt")
}
