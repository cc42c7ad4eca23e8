package roster

import (
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-organizer/internal/face"
)

// Candidate ANN parameters, same shape as a typical small-world graph for
// face embeddings.
const indexMaxNeighbors = 16

// MatchIndex is an optional in-memory HNSW index over all person embeddings.
// It pre-selects candidate people for matching on large rosters; callers
// still score candidates with exact distances through the database.
type MatchIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	owner map[string]string // embedding id -> person id
}

// NewMatchIndex creates an empty index.
func NewMatchIndex() *MatchIndex {
	return &MatchIndex{owner: make(map[string]string)}
}

// Rebuild replaces the index contents with the given roster snapshot.
// Embeddings that fail to decode are left out.
func (x *MatchIndex) Rebuild(people []KnownPerson) {
	g := hnsw.NewGraph[string]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	owner := make(map[string]string)
	for _, p := range people {
		for _, e := range p.Embeddings {
			vec, err := face.DecodeEmbedding(e.Embedding)
			if err != nil {
				continue
			}
			g.Add(hnsw.MakeNode(e.ID, vec))
			owner[e.ID] = p.ID
		}
	}

	x.mu.Lock()
	x.graph = g
	x.owner = owner
	x.mu.Unlock()
}

// Len returns the number of indexed embeddings.
func (x *MatchIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.owner)
}

// Candidates returns the distinct person ids owning the k nearest indexed
// embeddings to the query, nearest first.
func (x *MatchIndex) Candidates(query face.Vector, k int) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || len(x.owner) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var people []string
	for _, n := range x.graph.Search(query, k) {
		personID, ok := x.owner[n.Key]
		if !ok || seen[personID] {
			continue
		}
		seen[personID] = true
		people = append(people, personID)
	}
	return people
}
