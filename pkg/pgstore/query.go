package pgstore

import (
	"fmt"

	"github.com/pgstore/pgstore/internal/codec"
)

// validateFacadeToken checks a user-supplied id/label/property key or
// value at a query entry point, before it is woven into a composite
// key. A violation is a UsageError, matching SPEC_FULL.md §6.1's
// separator-byte rule applying at the façade boundary, not just during
// ingestion (see validateNode/validateEdge/validateProps in ingest.go
// for the ingestion-side counterpart, which wraps the same
// codec.ValidateToken call as BadRecord instead).
func validateFacadeToken(field, s string, requireNonEmpty bool) error {
	if err := codec.ValidateToken(s, requireNonEmpty); err != nil {
		return newErr(KindUsageError, field, err)
	}
	return nil
}

// GetNode performs a single NODES point-get. ok is false if id is absent.
func (db *DB) GetNode(id string) (node Node, ok bool, err error) {
	if err := db.checkOpen(); err != nil {
		return Node{}, false, err
	}
	if err := validateFacadeToken("node id", id, true); err != nil {
		return Node{}, false, err
	}
	data, found, err := db.engine.Get(byte(codec.Nodes), codec.NodeKey(id))
	if err != nil {
		return Node{}, false, newErr(KindStorageIO, "get node", err)
	}
	if !found {
		return Node{}, false, nil
	}
	v, err := codec.DecodeNode(data)
	if err != nil {
		return Node{}, false, newErr(KindDecode, "node "+id, err)
	}
	return Node{ID: id, Label: v.Label, Props: v.Props}, true, nil
}

// GetEdge performs a single EDGES point-get. ok is false if id is absent.
func (db *DB) GetEdge(id string) (edge Edge, ok bool, err error) {
	if err := db.checkOpen(); err != nil {
		return Edge{}, false, err
	}
	if err := validateFacadeToken("edge id", id, true); err != nil {
		return Edge{}, false, err
	}
	data, found, err := db.engine.Get(byte(codec.Edges), codec.EdgeKey(id))
	if err != nil {
		return Edge{}, false, newErr(KindStorageIO, "get edge", err)
	}
	if !found {
		return Edge{}, false, nil
	}
	v, err := codec.DecodeEdge(data)
	if err != nil {
		return Edge{}, false, newErr(KindDecode, "edge "+id, err)
	}
	return Edge{ID: id, Label: v.Label, Src: v.Src, Dst: v.Dst, Directed: v.Directed, Props: v.Props}, true, nil
}

func (db *DB) nodeEntryDecoder() decodeFunc[NodeEntry] {
	return func(key, value []byte) (NodeEntry, error) {
		v, err := codec.DecodeNode(value)
		if err != nil {
			return NodeEntry{}, newErr(KindDecode, "node "+string(key), err)
		}
		return NodeEntry{ID: string(key), Node: Node{ID: string(key), Label: v.Label, Props: v.Props}}, nil
	}
}

func (db *DB) edgeEntryDecoder() decodeFunc[EdgeEntry] {
	return func(key, value []byte) (EdgeEntry, error) {
		v, err := codec.DecodeEdge(value)
		if err != nil {
			return EdgeEntry{}, newErr(KindDecode, "edge "+string(key), err)
		}
		return EdgeEntry{ID: string(key), Edge: Edge{ID: string(key), Label: v.Label, Src: v.Src, Dst: v.Dst, Directed: v.Directed, Props: v.Props}}, nil
	}
}

// IterAllNodes returns a cursor over every node, in byte-lexicographic
// id order.
func (db *DB) IterAllNodes() (*Cursor[NodeEntry], error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	sc, err := db.engine.NewScanner(byte(codec.Nodes), nil)
	if err != nil {
		return nil, newErr(KindStorageIO, "iter all nodes", err)
	}
	return newCursor(db, sc, db.nodeEntryDecoder()), nil
}

// IterAllEdges returns a cursor over every edge, in byte-lexicographic
// id order.
func (db *DB) IterAllEdges() (*Cursor[EdgeEntry], error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	sc, err := db.engine.NewScanner(byte(codec.Edges), nil)
	if err != nil {
		return nil, newErr(KindStorageIO, "iter all edges", err)
	}
	return newCursor(db, sc, db.edgeEntryDecoder()), nil
}

// joinEdge fetches an edge by id extracted from a secondary-index key,
// raising IndexInconsistency if the primary row is missing — a
// defensive contract, since the ingestion discipline never leaves an
// index row dangling (spec.md §4.5).
func (db *DB) joinEdge(edgeID string) (EdgeEntry, error) {
	data, found, err := db.engine.Get(byte(codec.Edges), codec.EdgeKey(edgeID))
	if err != nil {
		return EdgeEntry{}, newErr(KindStorageIO, "join edge "+edgeID, err)
	}
	if !found {
		return EdgeEntry{}, newErr(KindIndexInconsistency, fmt.Sprintf("edge %q referenced by index but missing from EDGES", edgeID), nil)
	}
	v, err := codec.DecodeEdge(data)
	if err != nil {
		return EdgeEntry{}, newErr(KindDecode, "edge "+edgeID, err)
	}
	return EdgeEntry{ID: edgeID, Edge: Edge{ID: edgeID, Label: v.Label, Src: v.Src, Dst: v.Dst, Directed: v.Directed, Props: v.Props}}, nil
}

func (db *DB) joinNode(nodeID string) (NodeEntry, error) {
	data, found, err := db.engine.Get(byte(codec.Nodes), codec.NodeKey(nodeID))
	if err != nil {
		return NodeEntry{}, newErr(KindStorageIO, "join node "+nodeID, err)
	}
	if !found {
		return NodeEntry{}, newErr(KindIndexInconsistency, fmt.Sprintf("node %q referenced by index but missing from NODES", nodeID), nil)
	}
	v, err := codec.DecodeNode(data)
	if err != nil {
		return NodeEntry{}, newErr(KindDecode, "node "+nodeID, err)
	}
	return NodeEntry{ID: nodeID, Node: Node{ID: nodeID, Label: v.Label, Props: v.Props}}, nil
}

// IterEdgesByLabel returns a cursor over every edge with the given
// label, ordered by edge id, joining EDGES_BY_LABEL against EDGES.
func (db *DB) IterEdgesByLabel(label string) (*Cursor[EdgeEntry], error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateFacadeToken("edge label", label, false); err != nil {
		return nil, err
	}
	prefix := codec.EdgesByLabelPrefix(label)
	sc, err := db.engine.NewScanner(byte(codec.EdgesByLabel), prefix)
	if err != nil {
		return nil, newErr(KindStorageIO, "iter edges by label", err)
	}
	decode := func(key, _ []byte) (EdgeEntry, error) {
		edgeID := codec.ExtractIDAfterPrefix(key, len(prefix))
		return db.joinEdge(edgeID)
	}
	return newCursor(db, sc, decode), nil
}

// adjRole selects which adjacency rows iterNeighboursFiltered yields:
// both, out-only, or in-only.
type adjRole int

const (
	adjAny adjRole = iota
	adjOut
	adjIn
)

func (db *DB) iterNeighboursFiltered(nodeID string, role adjRole) (*Cursor[EdgeEntry], error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateFacadeToken("node id", nodeID, true); err != nil {
		return nil, err
	}
	prefix := codec.AdjacencyPrefix(nodeID)
	sc, err := db.engine.NewScanner(byte(codec.Adjacency), prefix)
	if err != nil {
		return nil, newErr(KindStorageIO, "iter neighbours", err)
	}
	decode := func(key, value []byte) (EdgeEntry, error) {
		if role != adjAny {
			want := codec.AdjRoleOut
			if role == adjIn {
				want = codec.AdjRoleIn
			}
			if len(value) == 0 || value[0] != want {
				return EdgeEntry{}, errSkipItem
			}
		}
		edgeID := codec.ExtractIDAfterPrefix(key, len(prefix))
		return db.joinEdge(edgeID)
	}
	return newCursor(db, sc, decode), nil
}

// IterNeighbours returns a cursor over every edge incident to node —
// both outgoing and incoming for directed edges, both rows (under
// each endpoint) for undirected edges. See SPEC_FULL.md §7 for the
// adjacency-law decision this implements.
func (db *DB) IterNeighbours(nodeID string) (*Cursor[EdgeEntry], error) {
	return db.iterNeighboursFiltered(nodeID, adjAny)
}

// IterOutgoing returns a cursor over directed edges for which node is
// the source, plus every undirected edge touching node, since an
// undirected edge is filed with the "out" role on both sides.
func (db *DB) IterOutgoing(nodeID string) (*Cursor[EdgeEntry], error) {
	return db.iterNeighboursFiltered(nodeID, adjOut)
}

// IterIncoming returns a cursor over directed edges for which node is
// the destination.
func (db *DB) IterIncoming(nodeID string) (*Cursor[EdgeEntry], error) {
	return db.iterNeighboursFiltered(nodeID, adjIn)
}

// IterNodesByProperty returns a cursor over every node carrying
// property (key, value), joining NODE_PROP_IDX against NODES.
func (db *DB) IterNodesByProperty(key, value string) (*Cursor[NodeEntry], error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateFacadeToken("property key", key, true); err != nil {
		return nil, err
	}
	if err := validateFacadeToken("property value", value, false); err != nil {
		return nil, err
	}
	prefix := codec.PropIndexPrefix(key, value)
	sc, err := db.engine.NewScanner(byte(codec.NodePropIndex), prefix)
	if err != nil {
		return nil, newErr(KindStorageIO, "iter nodes by property", err)
	}
	decode := func(k, _ []byte) (NodeEntry, error) {
		nodeID := codec.ExtractIDAfterPrefix(k, len(prefix))
		return db.joinNode(nodeID)
	}
	return newCursor(db, sc, decode), nil
}

// IterEdgesByProperty returns a cursor over every edge carrying
// property (key, value), joining EDGE_PROP_IDX against EDGES.
func (db *DB) IterEdgesByProperty(key, value string) (*Cursor[EdgeEntry], error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateFacadeToken("property key", key, true); err != nil {
		return nil, err
	}
	if err := validateFacadeToken("property value", value, false); err != nil {
		return nil, err
	}
	prefix := codec.PropIndexPrefix(key, value)
	sc, err := db.engine.NewScanner(byte(codec.EdgePropIndex), prefix)
	if err != nil {
		return nil, newErr(KindStorageIO, "iter edges by property", err)
	}
	decode := func(k, _ []byte) (EdgeEntry, error) {
		edgeID := codec.ExtractIDAfterPrefix(k, len(prefix))
		return db.joinEdge(edgeID)
	}
	return newCursor(db, sc, decode), nil
}

// CountNodes reads the nodes_total META counter.
func (db *DB) CountNodes() (uint64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	return db.readMetaCounter(codec.MetaSimpleKey(codec.MetaNodesTotal))
}

// CountEdges reads the edges_total META counter.
func (db *DB) CountEdges() (uint64, error) {
	if err := db.checkOpen(); err != nil {
		return 0, err
	}
	return db.readMetaCounter(codec.MetaSimpleKey(codec.MetaEdgesTotal))
}

func (db *DB) readMetaCounter(key []byte) (uint64, error) {
	data, _, err := db.engine.Get(byte(codec.Meta), key)
	if err != nil {
		return 0, newErr(KindStorageIO, "read meta counter", err)
	}
	n, err := codec.DecodeUint64(data)
	if err != nil {
		return 0, newErr(KindDecode, "meta counter", err)
	}
	return n, nil
}

// EdgeCountByLabel reads every edge_label_count META entry into a map.
func (db *DB) EdgeCountByLabel() (map[string]uint64, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	prefix := codec.MetaLabelPrefix(codec.MetaEdgeLabelCount)
	sc, err := db.engine.NewScanner(byte(codec.Meta), prefix)
	if err != nil {
		return nil, newErr(KindStorageIO, "edge count by label", err)
	}
	defer sc.Close()

	out := map[string]uint64{}
	for {
		key, value, ok, err := sc.Next()
		if err != nil {
			return nil, newErr(KindStorageIO, "edge count by label", err)
		}
		if !ok {
			break
		}
		label := codec.ExtractIDAfterPrefix(key, len(prefix))
		n, err := codec.DecodeUint64(value)
		if err != nil {
			return nil, newErr(KindDecode, "edge label count for "+label, err)
		}
		out[label] = n
	}
	return out, nil
}

func (db *DB) readLabelSchema(metaName string) (map[string]map[string]struct{}, error) {
	prefix := codec.MetaLabelPrefix(metaName)
	sc, err := db.engine.NewScanner(byte(codec.Meta), prefix)
	if err != nil {
		return nil, newErr(KindStorageIO, "read label schema", err)
	}
	defer sc.Close()

	out := map[string]map[string]struct{}{}
	for {
		key, value, ok, err := sc.Next()
		if err != nil {
			return nil, newErr(KindStorageIO, "read label schema", err)
		}
		if !ok {
			break
		}
		label := codec.ExtractIDAfterPrefix(key, len(prefix))
		set, err := codec.DecodeStringSet(value)
		if err != nil {
			return nil, newErr(KindDecode, "schema for "+label, err)
		}
		out[label] = set
	}
	return out, nil
}

// NodeSchema reads every node_label_schema META entry: for each
// label, the union of property keys across all ingested nodes of that
// label.
func (db *DB) NodeSchema() (map[string]map[string]struct{}, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.readLabelSchema(codec.MetaNodeLabelSchema)
}

// EdgeSchema reads every edge_label_schema META entry.
func (db *DB) EdgeSchema() (map[string]map[string]struct{}, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.readLabelSchema(codec.MetaEdgeLabelSchema)
}

// Stats gathers every metadata query into one snapshot.
func (db *DB) Stats() (Stats, error) {
	nodeCount, err := db.CountNodes()
	if err != nil {
		return Stats{}, err
	}
	edgeCount, err := db.CountEdges()
	if err != nil {
		return Stats{}, err
	}
	byLabel, err := db.EdgeCountByLabel()
	if err != nil {
		return Stats{}, err
	}
	nodeSchema, err := db.NodeSchema()
	if err != nil {
		return Stats{}, err
	}
	edgeSchema, err := db.EdgeSchema()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		NodeCount:        nodeCount,
		EdgeCount:        edgeCount,
		EdgeCountByLabel: byLabel,
		NodeSchema:       nodeSchema,
		EdgeSchema:       edgeSchema,
	}, nil
}

// Sync forces a durability checkpoint without closing the database.
func (db *DB) Sync() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if err := db.engine.Sync(); err != nil {
		return newErr(KindStorageIO, "sync", err)
	}
	return nil
}
