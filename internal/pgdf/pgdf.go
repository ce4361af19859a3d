// Package pgdf reads the line-oriented, pipe-separated .pgdf graph
// exchange format. Its only obligation to callers is to yield parsed
// node and edge records; it knows nothing about storage.
package pgdf

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// NodeRecord is one parsed node line.
type NodeRecord struct {
	ID    string
	Label string
	Props map[string]string
}

// EdgeRecord is one parsed edge line.
type EdgeRecord struct {
	ID       string
	Label    string
	Directed bool
	Src      string
	Dst      string
	Props    map[string]string
}

// Record is either a NodeRecord or an EdgeRecord; exactly one of Node
// or Edge is non-nil.
type Record struct {
	Node *NodeRecord
	Edge *EdgeRecord
	Line int
}

const (
	nodeHeaderPrefix = "@id|@label|"
	edgeHeaderPrefix = "@id|@label|@dir|@out|@in|"
)

// ParseError reports a malformed or rule-violating line, with the
// 1-based line number it occurred on.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pgdf: line %d: %s", e.Line, e.Reason)
}

// header describes a parsed header line: whether it's an edge header,
// and the names of the trailing user-property columns.
type header struct {
	isEdge    bool
	propNames []string
}

// Reader reads a .pgdf file one record at a time. Create with
// NewReader and call Next in a loop until it returns io.EOF.
type Reader struct {
	sc      *bufio.Scanner
	line    int
	hdr     *header
	hdrLine int
}

// NewReader wraps r to read .pgdf records from it.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{sc: sc}
}

// Next returns the next parsed record, or io.EOF once the stream is
// exhausted. Comment lines (#) and blank lines are skipped
// transparently. The first non-empty, non-comment line must be a
// header; Next returns a *ParseError if it is not, or if a later line
// fails to parse against the established header.
func (r *Reader) Next() (Record, error) {
	for {
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return Record{}, fmt.Errorf("pgdf: scan: %w", err)
			}
			return Record{}, io.EOF
		}
		r.line++
		line := r.sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if r.hdr == nil {
			h, err := parseHeader(trimmed)
			if err != nil {
				return Record{}, &ParseError{Line: r.line, Reason: err.Error()}
			}
			r.hdr = h
			r.hdrLine = r.line
			continue
		}

		rec, err := parseDataLine(trimmed, r.hdr)
		if err != nil {
			return Record{}, &ParseError{Line: r.line, Reason: err.Error()}
		}
		rec.Line = r.line
		return rec, nil
	}
}

func parseHeader(line string) (*header, error) {
	switch {
	case strings.HasPrefix(line, edgeHeaderPrefix):
		fields := strings.Split(line, "|")
		// @id|@label|@dir|@out|@in| + props...
		if len(fields) < 5 {
			return nil, fmt.Errorf("edge header missing required columns")
		}
		return &header{isEdge: true, propNames: fields[5:]}, nil
	case strings.HasPrefix(line, nodeHeaderPrefix):
		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			return nil, fmt.Errorf("node header missing required columns")
		}
		return &header{isEdge: false, propNames: fields[2:]}, nil
	default:
		return nil, fmt.Errorf("expected a header line starting with %q or %q", nodeHeaderPrefix, edgeHeaderPrefix)
	}
}

func parseDataLine(line string, h *header) (Record, error) {
	fields := strings.Split(line, "|")
	if h.isEdge {
		return parseEdgeLine(fields, h)
	}
	return parseNodeLine(fields, h)
}

func parseNodeLine(fields []string, h *header) (Record, error) {
	const fixed = 2 // id, label
	id := field(fields, 0)
	if id == "" {
		return Record{}, fmt.Errorf("node record missing @id")
	}
	label := field(fields, 1)
	props := extractProps(fields, fixed, h.propNames)
	return Record{Node: &NodeRecord{ID: id, Label: label, Props: props}}, nil
}

func parseEdgeLine(fields []string, h *header) (Record, error) {
	const fixed = 5 // id, label, dir, out, in
	id := field(fields, 0)
	if id == "" {
		return Record{}, fmt.Errorf("edge record missing @id")
	}
	label := field(fields, 1)
	dirField := field(fields, 2)
	var directed bool
	switch dirField {
	case "T":
		directed = true
	case "F":
		directed = false
	default:
		return Record{}, fmt.Errorf("edge @dir must be T or F, got %q", dirField)
	}
	src := field(fields, 3)
	dst := field(fields, 4)
	props := extractProps(fields, fixed, h.propNames)
	return Record{Edge: &EdgeRecord{ID: id, Label: label, Directed: directed, Src: src, Dst: dst, Props: props}}, nil
}

// field returns fields[i] or "" if the line ended early (missing
// trailing fields are treated as empty, per the format spec).
func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func extractProps(fields []string, fixedCols int, names []string) map[string]string {
	props := make(map[string]string, len(names))
	for i, name := range names {
		if name == "" {
			continue
		}
		props[name] = field(fields, fixedCols+i)
	}
	return props
}
