package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	assert.NoError(t, ValidateToken("user_101", true))
	assert.NoError(t, ValidateToken("", false))
	assert.ErrorIs(t, ValidateToken("", true), ErrEmptyToken)
	assert.ErrorIs(t, ValidateToken("a\x00b", true), ErrSeparatorInToken)
}

func TestNodeValueRoundtrip(t *testing.T) {
	in := NodeValue{Label: "User", Props: map[string]string{"name": "Ana", "country": "Mexico"}}
	out, err := DecodeNode(EncodeNode(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNodeValueRoundtripEmptyLabelAndProps(t *testing.T) {
	in := NodeValue{Label: "", Props: map[string]string{}}
	out, err := DecodeNode(EncodeNode(in))
	require.NoError(t, err)
	assert.Equal(t, "", out.Label)
	assert.Empty(t, out.Props)
}

func TestEdgeValueRoundtrip(t *testing.T) {
	in := EdgeValue{Label: "KNOWS", Src: "user_101", Dst: "user_102", Directed: true,
		Props: map[string]string{"since": "2020"}}
	out, err := DecodeEdge(EncodeEdge(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEdgeValueRoundtripUndirected(t *testing.T) {
	in := EdgeValue{Label: "FRIENDS", Src: "a", Dst: "b", Directed: false, Props: nil}
	out, err := DecodeEdge(EncodeEdge(in))
	require.NoError(t, err)
	assert.False(t, out.Directed)
}

func TestEncodeNodeIsDeterministic(t *testing.T) {
	v := NodeValue{Label: "User", Props: map[string]string{"b": "2", "a": "1", "c": "3"}}
	first := EncodeNode(v)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, EncodeNode(v))
	}
}

func TestUint64Roundtrip(t *testing.T) {
	for _, n := range []uint64{0, 1, 42, 1 << 40} {
		got, err := DecodeUint64(EncodeUint64(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	zero, err := DecodeUint64(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), zero)
}

func TestStringSetRoundtrip(t *testing.T) {
	set := map[string]struct{}{"name": {}, "country": {}}
	got, err := DecodeStringSet(EncodeStringSet(set))
	require.NoError(t, err)
	assert.Equal(t, set, got)

	empty, err := DecodeStringSet(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestKeyPrefixesUnambiguous(t *testing.T) {
	k1 := PropIndexKey("country", "Mexico", "user_101")
	prefix := PropIndexPrefix("country", "Mexico")
	assert.True(t, len(k1) >= len(prefix))
	assert.Equal(t, prefix, k1[:len(prefix)])
	assert.Equal(t, "user_101", ExtractIDAfterPrefix(k1, len(prefix)))
}
