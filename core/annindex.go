package core

// In-memory HNSW approximate nearest-neighbour index over grain embeddings,
// rebuildable from the durable store. Parameters: M=16 max connectivity,
// efSearch=200, cosine distance. The graph has no separate efConstruction
// setting: insertion uses the same search breadth (200) as queries.

import (
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

const (
	annM        = 16
	annEfSearch = 200
)

func cosineDistance(a, b []float32) float32 {
	return float32(1 - CosineSimilarity(a, b))
}

// AnnIndex wraps an HNSW graph keyed by grain id, guarded for concurrent
// search/add/rebuild access: readers take the shared lock for Search, the
// writer takes the exclusive lock for Add and Rebuild.
type AnnIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[[32]byte]
}

// NewAnnIndex constructs an empty index configured to the reference
// parameters. EfSearch is fixed once here rather than toggled per call: the
// underlying graph field isn't safe to mutate under a read lock, and a
// single search breadth shared by construction and query time is the
// reference implementation's actual behaviour in practice.
func NewAnnIndex() *AnnIndex {
	g := hnsw.NewGraph[[32]byte]()
	g.M = annM
	g.EfSearch = annEfSearch
	g.Distance = cosineDistance
	return &AnnIndex{graph: g}
}

// Add inserts a grain's embedding into the index under its content id.
func (idx *AnnIndex) Add(id [32]byte, vec []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.graph.Add(hnsw.MakeNode(id, vec))
}

// Search returns up to k nearest grain ids to query.
func (idx *AnnIndex) Search(query []float32, k int) ([][32]byte, error) {
	if k <= 0 {
		return nil, fmt.Errorf("annindex: k must be positive, got %d", k)
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	nodes, err := idx.graph.Search(query, k)
	if err != nil {
		return nil, err
	}
	out := make([][32]byte, len(nodes))
	for i, n := range nodes {
		out[i] = n.Key
	}
	return out, nil
}

// Len reports how many vectors the index currently holds.
func (idx *AnnIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Len()
}

// IsEmpty reports whether the index holds no vectors.
func (idx *AnnIndex) IsEmpty() bool { return idx.Len() == 0 }

// Rebuild discards the current graph and re-inserts every grain from store,
// used after a crash or when an index corruption is suspected; the ANN
// index is never the durability boundary, the Store is.
func (idx *AnnIndex) Rebuild(store *Store) error {
	fresh := NewAnnIndex()
	err := store.AllGrains(func(g *Grain) bool {
		fresh.graph.Add(hnsw.MakeNode(g.ID, g.Vector))
		return true
	})
	if err != nil {
		return fmt.Errorf("annindex: rebuild: %w", err)
	}
	idx.mu.Lock()
	idx.graph = fresh.graph
	idx.mu.Unlock()
	return nil
}
