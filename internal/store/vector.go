package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/coder/hnsw"
)

// graphIndex is an immutable HNSW graph over one collection snapshot.
type graphIndex struct {
	graph   *hnsw.Graph[string]
	version int64
}

// newGraph builds a cosine HNSW graph from normalized vectors.
func newGraph(ids []string, vectors [][]float32) *hnsw.Graph[string] {
	graph := hnsw.NewGraph[string]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 100
	graph.Ml = 0.25

	nodes := make([]hnsw.Node[string], len(ids))
	for i, id := range ids {
		nodes[i] = hnsw.MakeNode(id, vectors[i])
	}
	if len(nodes) > 0 {
		graph.Add(nodes...)
	}
	return graph
}

// search returns up to k neighbors of the normalized query.
func (g *graphIndex) search(query []float32, k int) []Hit {
	if g.graph.Len() == 0 {
		return nil
	}
	nodes := g.graph.Search(query, k)
	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, Hit{ID: node.Key, Distance: g.graph.Distance(query, node.Value)})
	}
	sortHits(hits)
	return hits
}

type candidate struct {
	id     string
	vector []float32
}

// exactSearch ranks every candidate against the normalized query.
func exactSearch(query []float32, candidates []candidate, k int) []Hit {
	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, Hit{ID: c.id, Distance: cosineDistance(query, c.vector)})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
}

// cosineDistance expects unit vectors.
func cosineDistance(a, b []float32) float32 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(1 - dot)
}

// normalize returns a unit-length copy of v.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSquares float64
	for _, val := range out {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return out
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range out {
		out[i] *= invMagnitude
	}
	return out
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
