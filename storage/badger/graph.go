package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/skewballfox/papermill/storage"
)

// GraphRepository implements storage.GraphRepository for BadgerDB.
type GraphRepository struct {
	backend *Backend
}

var _ storage.GraphRepository = (*GraphRepository)(nil)

// NewGraphRepository creates a new GraphRepository.
func NewGraphRepository(backend *Backend) *GraphRepository {
	return &GraphRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *GraphRepository) Close() error {
	return nil
}

// SaveGraph writes a change set in one transaction.
func (r *GraphRepository) SaveGraph(ctx context.Context, change *storage.GraphChange) error {
	if change.Empty() {
		return nil
	}
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		for _, node := range change.Nodes {
			if err := tx.Set(makeNodeKey(node.ID), storage.MarshalNode(node)); err != nil {
				return err
			}
		}
		for _, edge := range change.Edges {
			if err := tx.Set(makeEdgeKey(edge.Key), storage.MarshalEdge(edge)); err != nil {
				return err
			}
		}
		for _, alias := range change.Aliases {
			if err := tx.Set(makeAliasKey(alias.Key), storage.MarshalAlias(alias)); err != nil {
				return err
			}
		}
		for _, event := range change.Events {
			if err := tx.Set(makeEventKey(event.ID), storage.MarshalEvent(event)); err != nil {
				return err
			}
		}
		for _, key := range change.DeletedEdges {
			if err := tx.Delete(makeEdgeKey(key)); err != nil {
				return err
			}
		}
		for _, id := range change.DeletedEvents {
			if err := tx.Delete(makeEventKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadGraph reads every graph record.
func (r *GraphRepository) LoadGraph(ctx context.Context) (*storage.GraphChange, error) {
	graph := &storage.GraphChange{}
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		if err := scan(tx, []byte(nodePrefix), func(_, val []byte) error {
			node, err := storage.UnmarshalNode(val)
			if err != nil {
				return err
			}
			graph.Nodes = append(graph.Nodes, node)
			return nil
		}); err != nil {
			return err
		}
		if err := scan(tx, []byte(edgePrefix), func(_, val []byte) error {
			edge, err := storage.UnmarshalEdge(val)
			if err != nil {
				return err
			}
			graph.Edges = append(graph.Edges, edge)
			return nil
		}); err != nil {
			return err
		}
		if err := scan(tx, []byte(aliasPrefix), func(_, val []byte) error {
			alias, err := storage.UnmarshalAlias(val)
			if err != nil {
				return err
			}
			graph.Aliases = append(graph.Aliases, alias)
			return nil
		}); err != nil {
			return err
		}
		return scan(tx, []byte(eventPrefix), func(_, val []byte) error {
			event, err := storage.UnmarshalEvent(val)
			if err != nil {
				return err
			}
			graph.Events = append(graph.Events, event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return graph, nil
}
