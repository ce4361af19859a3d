package pgdf

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, text string) []Record {
	t.Helper()
	r := NewReader(strings.NewReader(text))
	var recs []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	return recs
}

func TestParseNodeRecords(t *testing.T) {
	text := "@id|@label|name|country\n" +
		"user_101|User|Ana|Mexico\n" +
		"user_102|User|Bob|USA\n"
	recs := readAll(t, text)
	require.Len(t, recs, 2)
	assert.Equal(t, "user_101", recs[0].Node.ID)
	assert.Equal(t, "User", recs[0].Node.Label)
	assert.Equal(t, map[string]string{"name": "Ana", "country": "Mexico"}, recs[0].Node.Props)
}

func TestParseEdgeRecords(t *testing.T) {
	text := "@id|@label|@dir|@out|@in|since\n" +
		"edge_50|KNOWS|T|user_101|user_102|2020\n"
	recs := readAll(t, text)
	require.Len(t, recs, 1)
	e := recs[0].Edge
	require.NotNil(t, e)
	assert.Equal(t, "edge_50", e.ID)
	assert.True(t, e.Directed)
	assert.Equal(t, "user_101", e.Src)
	assert.Equal(t, "user_102", e.Dst)
	assert.Equal(t, "2020", e.Props["since"])
}

func TestUndirectedEdge(t *testing.T) {
	text := "@id|@label|@dir|@out|@in|\n" +
		"edge_1|FRIENDS|F|a|b|\n"
	recs := readAll(t, text)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Edge.Directed)
}

func TestCommentsAndBlankLinesSkipped(t *testing.T) {
	text := "# a comment\n\n@id|@label|\n\n# another\nuser_1|User|\n"
	recs := readAll(t, text)
	require.Len(t, recs, 1)
	assert.Equal(t, "user_1", recs[0].Node.ID)
}

func TestMissingTrailingFieldsAreEmpty(t *testing.T) {
	text := "@id|@label|name|country\nuser_1|User|Ana\n"
	recs := readAll(t, text)
	require.Len(t, recs, 1)
	assert.Equal(t, "Ana", recs[0].Node.Props["name"])
	assert.Equal(t, "", recs[0].Node.Props["country"])
}

func TestEmptyFieldsBecomeEmptyString(t *testing.T) {
	text := "@id|@label|name|country\nuser_1|User||\n"
	recs := readAll(t, text)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].Node.Props["name"])
	assert.Equal(t, "", recs[0].Node.Props["country"])
}

func TestBadDirFlagIsParseError(t *testing.T) {
	text := "@id|@label|@dir|@out|@in|\nedge_1|KNOWS|X|a|b|\n"
	r := NewReader(strings.NewReader(text))
	_, err := r.Next()
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
}

func TestMissingHeaderIsParseError(t *testing.T) {
	text := "user_1|User|\n"
	r := NewReader(strings.NewReader(text))
	_, err := r.Next()
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestMissingIDIsParseError(t *testing.T) {
	text := "@id|@label|\n|User|\n"
	r := NewReader(strings.NewReader(text))
	_, err := r.Next()
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}
