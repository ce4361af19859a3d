package pgstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory(Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestOpenInMemoryAndClose(t *testing.T) {
	db, err := OpenInMemory(Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestCloseIsIdempotent(t *testing.T) {
	db, err := OpenInMemory(Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestOperationsAfterCloseReturnUsageError(t *testing.T) {
	db, err := OpenInMemory(Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, _, err = db.GetNode("n1")
	require.Error(t, err)
	require.True(t, IsKind(err, KindUsageError))
}

func TestCloseRejectedWithOutstandingCursors(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.IngestNode(Node{ID: "n1", Label: "Person"}))

	cur, err := db.IterAllNodes()
	require.NoError(t, err)

	err = db.Close()
	require.Error(t, err)
	require.True(t, IsKind(err, KindUsageError))

	require.NoError(t, cur.Close())
	require.NoError(t, db.Close())
}
