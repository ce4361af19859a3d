package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// formatVersion is a 1-byte header on every encoded value so a future
// format change is detectable instead of silently misparsed.
const formatVersion = 0x01

// ErrDecode wraps any failure to parse a stored value, corresponding
// to the Decode error kind of spec.md §7.
type ErrDecode struct {
	Reason string
}

func (e *ErrDecode) Error() string { return fmt.Sprintf("codec: decode failed: %s", e.Reason) }

func decodeErr(reason string) error { return &ErrDecode{Reason: reason} }

// NodeValue is the decoded form of a NODES value.
type NodeValue struct {
	Label string
	Props map[string]string
}

// EdgeValue is the decoded form of an EDGES value.
type EdgeValue struct {
	Label    string
	Src      string
	Dst      string
	Directed bool
	Props    map[string]string
}

// EncodeNode serializes a node's label and properties deterministically.
func EncodeNode(v NodeValue) []byte {
	var buf bytes.Buffer
	buf.WriteByte(formatVersion)
	writeString(&buf, v.Label)
	writeProps(&buf, v.Props)
	return buf.Bytes()
}

// DecodeNode parses a NODES value produced by EncodeNode.
func DecodeNode(data []byte) (NodeValue, error) {
	r := bytes.NewReader(data)
	if err := checkVersion(r); err != nil {
		return NodeValue{}, err
	}
	label, err := readString(r)
	if err != nil {
		return NodeValue{}, decodeErr("label: " + err.Error())
	}
	props, err := readProps(r)
	if err != nil {
		return NodeValue{}, decodeErr("props: " + err.Error())
	}
	return NodeValue{Label: label, Props: props}, nil
}

// EncodeEdge serializes an edge's label, endpoints, direction flag and
// properties deterministically.
func EncodeEdge(v EdgeValue) []byte {
	var buf bytes.Buffer
	buf.WriteByte(formatVersion)
	writeString(&buf, v.Label)
	writeString(&buf, v.Src)
	writeString(&buf, v.Dst)
	if v.Directed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeProps(&buf, v.Props)
	return buf.Bytes()
}

// DecodeEdge parses an EDGES value produced by EncodeEdge.
func DecodeEdge(data []byte) (EdgeValue, error) {
	r := bytes.NewReader(data)
	if err := checkVersion(r); err != nil {
		return EdgeValue{}, err
	}
	label, err := readString(r)
	if err != nil {
		return EdgeValue{}, decodeErr("label: " + err.Error())
	}
	src, err := readString(r)
	if err != nil {
		return EdgeValue{}, decodeErr("src: " + err.Error())
	}
	dst, err := readString(r)
	if err != nil {
		return EdgeValue{}, decodeErr("dst: " + err.Error())
	}
	dirByte, err := r.ReadByte()
	if err != nil {
		return EdgeValue{}, decodeErr("directed: " + err.Error())
	}
	props, err := readProps(r)
	if err != nil {
		return EdgeValue{}, decodeErr("props: " + err.Error())
	}
	return EdgeValue{Label: label, Src: src, Dst: dst, Directed: dirByte != 0, Props: props}, nil
}

// EncodeUint64 encodes a META counter value.
func EncodeUint64(n uint64) []byte {
	b := make([]byte, binary.MaxVarintLen64)
	written := binary.PutUvarint(b, n)
	return b[:written]
}

// DecodeUint64 decodes a META counter value; a missing/empty value
// decodes as zero.
func DecodeUint64(data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	n, read := binary.Uvarint(data)
	if read <= 0 {
		return 0, decodeErr("counter")
	}
	return n, nil
}

// EncodeStringSet serializes a set of strings (e.g. a label's property
// key schema) in sorted order, deterministically.
func EncodeStringSet(set map[string]struct{}) []byte {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte(formatVersion)
	writeUvarint(&buf, uint64(len(keys)))
	for _, k := range keys {
		writeString(&buf, k)
	}
	return buf.Bytes()
}

// DecodeStringSet parses a value produced by EncodeStringSet. A
// missing/empty value decodes as an empty set.
func DecodeStringSet(data []byte) (map[string]struct{}, error) {
	set := map[string]struct{}{}
	if len(data) == 0 {
		return set, nil
	}
	r := bytes.NewReader(data)
	if err := checkVersion(r); err != nil {
		return nil, err
	}
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, decodeErr("set length: " + err.Error())
	}
	for i := uint64(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, decodeErr("set member: " + err.Error())
		}
		set[s] = struct{}{}
	}
	return set, nil
}

func checkVersion(r *bytes.Reader) error {
	v, err := r.ReadByte()
	if err != nil {
		return decodeErr("missing version header")
	}
	if v != formatVersion {
		return decodeErr(fmt.Sprintf("unsupported format version %d", v))
	}
	return nil
}

func writeUvarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	written := binary.PutUvarint(tmp[:], n)
	buf.Write(tmp[:written])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// writeProps writes a property map as count followed by (key, value)
// pairs in sorted-by-key order, so encoding is deterministic across
// runs regardless of map iteration order.
func writeProps(buf *bytes.Buffer, props map[string]string) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		writeString(buf, k)
		writeString(buf, props[k])
	}
}

func readProps(r *bytes.Reader) (map[string]string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	props := make(map[string]string, n)
	for i := uint64(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		props[k] = v
	}
	return props, nil
}
