package pgstore

import (
	"errors"
	"fmt"
	"io"

	"github.com/pgstore/pgstore/internal/codec"
	"github.com/pgstore/pgstore/internal/kv"
	"github.com/pgstore/pgstore/internal/pgdf"
)

// ingestCache tracks counters and label-schema sets read from the
// engine once and updated in memory across every record of a single
// ingest group, so that grouping several .pgdf records into one
// physical write batch (Options.BatchSize) still produces the correct
// cumulative META values instead of each record racing to overwrite
// the others' increment. Safe only because the engine is documented
// single-writer (spec.md §5) — no concurrent ingest can observe or
// interleave with a half-built cache.
type ingestCache struct {
	engineGet func(ks codec.Keyspace, key []byte) ([]byte, bool, error)
	counters  map[string]uint64
	schemas   map[string]map[string]struct{}
}

func newIngestCache(db *DB) *ingestCache {
	return &ingestCache{
		engineGet: func(ks codec.Keyspace, key []byte) ([]byte, bool, error) {
			return db.engine.Get(byte(ks), key)
		},
		counters: map[string]uint64{},
		schemas:  map[string]map[string]struct{}{},
	}
}

func (c *ingestCache) nextCounter(ks codec.Keyspace, key []byte) (uint64, error) {
	cacheKey := string(key)
	if n, ok := c.counters[cacheKey]; ok {
		c.counters[cacheKey] = n + 1
		return n + 1, nil
	}
	data, _, err := c.engineGet(ks, key)
	if err != nil {
		return 0, newErr(KindStorageIO, "read counter", err)
	}
	n, err := codec.DecodeUint64(data)
	if err != nil {
		return 0, newErr(KindDecode, "counter", err)
	}
	c.counters[cacheKey] = n + 1
	return n + 1, nil
}

func (c *ingestCache) unionSchema(ks codec.Keyspace, key []byte, keys map[string]string) (map[string]struct{}, error) {
	cacheKey := string(key)
	set, ok := c.schemas[cacheKey]
	if !ok {
		data, _, err := c.engineGet(ks, key)
		if err != nil {
			return nil, newErr(KindStorageIO, "read schema set", err)
		}
		decoded, err := codec.DecodeStringSet(data)
		if err != nil {
			return nil, newErr(KindDecode, "schema set", err)
		}
		set = decoded
		c.schemas[cacheKey] = set
	}
	for k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

func validateNode(n Node) error {
	if err := codec.ValidateToken(n.ID, true); err != nil {
		return newErr(KindBadRecord, "node id", err)
	}
	if err := codec.ValidateToken(n.Label, false); err != nil {
		return newErr(KindBadRecord, "node label", err)
	}
	return validateProps(n.Props)
}

func validateEdge(e Edge) error {
	if err := codec.ValidateToken(e.ID, true); err != nil {
		return newErr(KindBadRecord, "edge id", err)
	}
	if err := codec.ValidateToken(e.Label, false); err != nil {
		return newErr(KindBadRecord, "edge label", err)
	}
	if err := codec.ValidateToken(e.Src, true); err != nil {
		return newErr(KindBadRecord, "edge src", err)
	}
	if err := codec.ValidateToken(e.Dst, true); err != nil {
		return newErr(KindBadRecord, "edge dst", err)
	}
	return validateProps(e.Props)
}

func validateProps(props map[string]string) error {
	for k, v := range props {
		if err := codec.ValidateToken(k, true); err != nil {
			return newErr(KindBadRecord, "property key", err)
		}
		if err := codec.ValidateToken(v, false); err != nil {
			return newErr(KindBadRecord, "property value", err)
		}
	}
	return nil
}

// nodeOps assembles the ops for a node record using cache for its
// META reads/increments.
func nodeOps(cache *ingestCache, n Node) ([]kv.Op, error) {
	ops := []kv.Op{
		kv.Put(byte(codec.Nodes), codec.NodeKey(n.ID), codec.EncodeNode(codec.NodeValue{Label: n.Label, Props: n.Props})),
	}
	for k, v := range n.Props {
		ops = append(ops, kv.Put(byte(codec.NodePropIndex), codec.PropIndexKey(k, v, n.ID), nil))
	}

	total, err := cache.nextCounter(codec.Meta, codec.MetaSimpleKey(codec.MetaNodesTotal))
	if err != nil {
		return nil, err
	}
	ops = append(ops, kv.Put(byte(codec.Meta), codec.MetaSimpleKey(codec.MetaNodesTotal), codec.EncodeUint64(total)))

	schemaKey := codec.MetaLabelKey(codec.MetaNodeLabelSchema, n.Label)
	schema, err := cache.unionSchema(codec.Meta, schemaKey, n.Props)
	if err != nil {
		return nil, err
	}
	ops = append(ops, kv.Put(byte(codec.Meta), schemaKey, codec.EncodeStringSet(schema)))

	return ops, nil
}

// edgeOps assembles the ops for an edge record using cache for its
// META reads/increments.
func edgeOps(cache *ingestCache, e Edge) ([]kv.Op, error) {
	ops := []kv.Op{
		kv.Put(byte(codec.Edges), codec.EdgeKey(e.ID), codec.EncodeEdge(codec.EdgeValue{
			Label: e.Label, Src: e.Src, Dst: e.Dst, Directed: e.Directed, Props: e.Props,
		})),
		kv.Put(byte(codec.EdgesByLabel), codec.EdgesByLabelKey(e.Label, e.ID), nil),
	}

	// Adjacency: per SPEC_FULL.md §7, every edge gets a row under both
	// endpoints so iter_neighbours sees both directions. Directed edges
	// record which side is which; undirected edges record both as "out"
	// since direction is meaningless for them.
	if e.Directed {
		ops = append(ops,
			kv.Put(byte(codec.Adjacency), codec.AdjacencyKey(e.Src, e.ID), []byte{codec.AdjRoleOut}),
			kv.Put(byte(codec.Adjacency), codec.AdjacencyKey(e.Dst, e.ID), []byte{codec.AdjRoleIn}),
		)
	} else {
		ops = append(ops,
			kv.Put(byte(codec.Adjacency), codec.AdjacencyKey(e.Src, e.ID), []byte{codec.AdjRoleOut}),
			kv.Put(byte(codec.Adjacency), codec.AdjacencyKey(e.Dst, e.ID), []byte{codec.AdjRoleOut}),
		)
	}

	for k, v := range e.Props {
		ops = append(ops, kv.Put(byte(codec.EdgePropIndex), codec.PropIndexKey(k, v, e.ID), nil))
	}

	total, err := cache.nextCounter(codec.Meta, codec.MetaSimpleKey(codec.MetaEdgesTotal))
	if err != nil {
		return nil, err
	}
	ops = append(ops, kv.Put(byte(codec.Meta), codec.MetaSimpleKey(codec.MetaEdgesTotal), codec.EncodeUint64(total)))

	labelCountKey := codec.MetaLabelKey(codec.MetaEdgeLabelCount, e.Label)
	labelCount, err := cache.nextCounter(codec.Meta, labelCountKey)
	if err != nil {
		return nil, err
	}
	ops = append(ops, kv.Put(byte(codec.Meta), labelCountKey, codec.EncodeUint64(labelCount)))

	schemaKey := codec.MetaLabelKey(codec.MetaEdgeLabelSchema, e.Label)
	schema, err := cache.unionSchema(codec.Meta, schemaKey, e.Props)
	if err != nil {
		return nil, err
	}
	ops = append(ops, kv.Put(byte(codec.Meta), schemaKey, codec.EncodeStringSet(schema)))

	return ops, nil
}

// IngestNode validates and writes a single node, atomically updating
// NODES, NODE_PROP_IDX, and the node_label_schema/nodes_total META
// entries. Returns a *Error of KindBadRecord if id/label/prop keys are
// invalid or id is a duplicate.
func (db *DB) IngestNode(n Node) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if err := validateNode(n); err != nil {
		return err
	}

	ops, err := nodeOps(newIngestCache(db), n)
	if err != nil {
		return err
	}

	dup, err := db.engine.WriteGroupedIfAbsent([]kv.CheckedBatch{{
		CheckKeyspace: byte(codec.Nodes), CheckKey: codec.NodeKey(n.ID), Ops: ops,
	}})
	if err != nil {
		return newErr(KindStorageIO, "ingest node", err)
	}
	if dup[0] {
		return newErr(KindBadRecord, fmt.Sprintf("duplicate node id %q", n.ID), nil)
	}
	return nil
}

// IngestEdge validates and writes a single edge, atomically updating
// EDGES, EDGES_BY_LABEL, ADJ (both endpoints, per the adjacency design
// of SPEC_FULL.md §7), EDGE_PROP_IDX, and the edges_total/
// edge_label_count/edge_label_schema META entries. Returns a *Error of
// KindBadRecord if id/label/prop keys are invalid or id is a duplicate.
func (db *DB) IngestEdge(e Edge) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if err := validateEdge(e); err != nil {
		return err
	}

	ops, err := edgeOps(newIngestCache(db), e)
	if err != nil {
		return err
	}

	dup, err := db.engine.WriteGroupedIfAbsent([]kv.CheckedBatch{{
		CheckKeyspace: byte(codec.Edges), CheckKey: codec.EdgeKey(e.ID), Ops: ops,
	}})
	if err != nil {
		return newErr(KindStorageIO, "ingest edge", err)
	}
	if dup[0] {
		return newErr(KindBadRecord, fmt.Sprintf("duplicate edge id %q", e.ID), nil)
	}
	return nil
}

// IngestResult tallies what happened during an IngestFile call.
type IngestResult struct {
	NodesIngested int
	EdgesIngested int
	Skipped       []error // BadRecord errors for records skipped (empty in Strict mode, which stops at the first one)
}

type pendingRecord struct {
	line   int
	isNode bool
	node   Node
	edge   Edge
}

// IngestFile streams records from r (parsed as .pgdf) and writes them.
// Up to Options.BatchSize consecutive records are grouped into one
// underlying write batch for throughput; atomicity is still per record
// — a duplicate or invalid record in a group is skipped without
// discarding its batch-mates. Malformed or rule-violating records are
// skipped and recorded in the result's Skipped list unless
// Options.Strict is set, in which case IngestFile stops and returns
// the first BadRecord error.
func (db *DB) IngestFile(r io.Reader) (IngestResult, error) {
	if err := db.checkOpen(); err != nil {
		return IngestResult{}, err
	}

	reader := pgdf.NewReader(r)
	var result IngestResult
	var group []pendingRecord

	flush := func() (stop bool, err error) {
		if len(group) == 0 {
			return false, nil
		}
		stop, err = db.ingestGroup(group, &result)
		group = group[:0]
		return stop, err
	}

	for {
		rec, err := reader.Next()
		if err == io.EOF {
			_, ferr := flush()
			return result, ferr
		}
		if err != nil {
			var pe *pgdf.ParseError
			if !errors.As(err, &pe) {
				return result, newErr(KindFileIO, "read .pgdf record", err)
			}
			bad := newErr(KindBadRecord, "parse .pgdf record", err)
			if db.strict {
				if stop, ferr := flush(); stop || ferr != nil {
					return result, ferr
				}
				return result, bad
			}
			db.logger.Printf("pgstore: skipping line %d: %v", pe.Line, bad)
			result.Skipped = append(result.Skipped, bad)
			continue
		}

		switch {
		case rec.Node != nil:
			group = append(group, pendingRecord{line: rec.Line, isNode: true,
				node: Node{ID: rec.Node.ID, Label: rec.Node.Label, Props: rec.Node.Props}})
		case rec.Edge != nil:
			group = append(group, pendingRecord{line: rec.Line, edge: Edge{
				ID: rec.Edge.ID, Label: rec.Edge.Label, Src: rec.Edge.Src, Dst: rec.Edge.Dst,
				Directed: rec.Edge.Directed, Props: rec.Edge.Props,
			}})
		}

		if len(group) >= db.batch {
			stop, err := flush()
			if err != nil {
				return result, err
			}
			if stop {
				return result, nil
			}
		}
	}
}

// ingestGroup validates and builds ops for every pending record, skips
// records that fail validation or turn out to be duplicates (tracking
// intra-group duplicates too, since a group can introduce the same id
// twice before either is committed), then commits the survivors in one
// atomic write. In Strict mode, a bad record halts scanning the rest of
// the group, but every record already staged before the bad one is
// still committed — per-record atomicity means only the offending
// record (and anything after it) is dropped, not its batch-mates that
// already passed validation. stop reports Strict mode having halted
// ingestion; when stop is true, err is the record that caused it.
func (db *DB) ingestGroup(group []pendingRecord, result *IngestResult) (stop bool, err error) {
	cache := newIngestCache(db)
	seenNodes := map[string]bool{}
	seenEdges := map[string]bool{}

	type staged struct {
		rec   pendingRecord
		batch kv.CheckedBatch
	}
	var batches []staged
	var haltErr error

	skip := func(line int, cause error) bool {
		if db.strict {
			haltErr = cause
			return true
		}
		db.logger.Printf("pgstore: skipping line %d: %v", line, cause)
		result.Skipped = append(result.Skipped, cause)
		return false
	}

records:
	for _, rec := range group {
		if rec.isNode {
			if err := validateNode(rec.node); err != nil {
				if skip(rec.line, err) {
					break records
				}
				continue
			}
			if seenNodes[rec.node.ID] {
				if skip(rec.line, newErr(KindBadRecord, fmt.Sprintf("duplicate node id %q", rec.node.ID), nil)) {
					break records
				}
				continue
			}
			if exists, err := db.engine.Has(byte(codec.Nodes), codec.NodeKey(rec.node.ID)); err != nil {
				return false, newErr(KindStorageIO, "check node existence", err)
			} else if exists {
				if skip(rec.line, newErr(KindBadRecord, fmt.Sprintf("duplicate node id %q", rec.node.ID), nil)) {
					break records
				}
				continue
			}
			ops, err := nodeOps(cache, rec.node)
			if err != nil {
				return false, err
			}
			seenNodes[rec.node.ID] = true
			batches = append(batches, staged{rec: rec, batch: kv.CheckedBatch{
				CheckKeyspace: byte(codec.Nodes), CheckKey: codec.NodeKey(rec.node.ID), Ops: ops,
			}})
			continue
		}

		if err := validateEdge(rec.edge); err != nil {
			if skip(rec.line, err) {
				break records
			}
			continue
		}
		if seenEdges[rec.edge.ID] {
			if skip(rec.line, newErr(KindBadRecord, fmt.Sprintf("duplicate edge id %q", rec.edge.ID), nil)) {
				break records
			}
			continue
		}
		if exists, err := db.engine.Has(byte(codec.Edges), codec.EdgeKey(rec.edge.ID)); err != nil {
			return false, newErr(KindStorageIO, "check edge existence", err)
		} else if exists {
			if skip(rec.line, newErr(KindBadRecord, fmt.Sprintf("duplicate edge id %q", rec.edge.ID), nil)) {
				break records
			}
			continue
		}
		ops, err := edgeOps(cache, rec.edge)
		if err != nil {
			return false, err
		}
		seenEdges[rec.edge.ID] = true
		batches = append(batches, staged{rec: rec, batch: kv.CheckedBatch{
			CheckKeyspace: byte(codec.Edges), CheckKey: codec.EdgeKey(rec.edge.ID), Ops: ops,
		}})
	}

	if len(batches) == 0 {
		return haltErr != nil, haltErr
	}

	checked := make([]kv.CheckedBatch, len(batches))
	for i, b := range batches {
		checked[i] = b.batch
	}
	dups, err := db.engine.WriteGroupedIfAbsent(checked)
	if err != nil {
		return false, newErr(KindStorageIO, "ingest batch", err)
	}

	for i, b := range batches {
		if dups[i] {
			// Lost a race against an external writer despite the
			// single-writer contract; still surfaced as BadRecord. The
			// commit already happened for every non-duplicate batch in
			// this call, so there is nothing to roll back here — just
			// record the cause and keep tallying the rest.
			cause := newErr(KindBadRecord, "duplicate id detected at commit", nil)
			skip(b.rec.line, cause)
			continue
		}
		if b.rec.isNode {
			result.NodesIngested++
		} else {
			result.EdgesIngested++
		}
	}
	return haltErr != nil, haltErr
}
