package pgstore

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorCloseIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.IngestNode(Node{ID: "n1", Label: "Thing"}))

	cur, err := db.IterAllNodes()
	require.NoError(t, err)
	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())
}

func TestCursorDrainedAfterExhaustion(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.IngestNode(Node{ID: "n1", Label: "Thing"}))

	cur, err := db.IterAllNodes()
	require.NoError(t, err)
	defer cur.Close()

	_, ok, err := cur.Next()
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = cur.Next()
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cur.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorTracksOutstandingCount(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.IngestNode(Node{ID: "n1", Label: "Thing"}))

	cur, err := db.IterAllNodes()
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&db.cursors))

	require.NoError(t, cur.Close())
	assert.Equal(t, int64(0), atomic.LoadInt64(&db.cursors))
}

func TestCollectAllReleasesCursor(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.IngestNode(Node{ID: "n1", Label: "Thing"}))

	cur, err := db.IterAllNodes()
	require.NoError(t, err)
	_, err = CollectAll(cur)
	require.NoError(t, err)
	assert.Equal(t, int64(0), atomic.LoadInt64(&db.cursors))
}
