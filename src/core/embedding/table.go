// Package embedding holds the precomputed entity embedding table.
//
// A Table is built once at startup and never mutated afterwards, so it is safe
// for unsynchronized concurrent reads.
package embedding

import (
	"container/heap"
	"math"
	"strings"

	"algomind/src/core/model"
)

// Entity is the metadata attached to one row of the table
type Entity struct {
	ID    string           `json:"id"`
	Title string           `json:"title"`
	Type  model.EntityType `json:"type"`
	Tags  []string         `json:"tags"`
}

// Neighbor is one nearest-neighbor candidate
type Neighbor struct {
	ID    string
	Score float64
}

type Table struct {
	dim      int
	entities []Entity // ascending id order
	vectors  [][]float32
	norms    []float64
	index    map[string]int
	byTitle  map[string]string // lower-cased title -> id
}

// Dimension returns the vector length shared by every row
func (t *Table) Dimension() int { return t.dim }

// Len returns the number of rows
func (t *Table) Len() int { return len(t.entities) }

// Has reports whether id is a row of the table
func (t *Table) Has(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Entity returns the metadata for id
func (t *Table) Entity(id string) (Entity, bool) {
	i, ok := t.index[id]
	if !ok {
		return Entity{}, false
	}
	return t.entities[i], true
}

// Entities returns all rows in ascending id order. The slice must not be modified.
func (t *Table) Entities() []Entity { return t.entities }

// Vector returns the embedding for id. The slice must not be modified.
func (t *Table) Vector(id string) ([]float32, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return t.vectors[i], true
}

// Title returns the display title for id
func (t *Table) Title(id string) (string, bool) {
	e, ok := t.Entity(id)
	return e.Title, ok
}

// IDForTitle resolves a title case-insensitively
func (t *Table) IDForTitle(title string) (string, bool) {
	id, ok := t.byTitle[strings.ToLower(strings.TrimSpace(title))]
	return id, ok
}

// Nearest returns the n rows most similar to id by cosine similarity, highest first.
// Equal scores are ordered by ascending id. The row for id itself is a candidate like
// any other. It returns nil when id is absent.
func (t *Table) Nearest(id string, n int) []Neighbor {
	qi, ok := t.index[id]
	if !ok || n <= 0 {
		return nil
	}
	q, qn := t.vectors[qi], t.norms[qi]

	h := &neighborHeap{}
	for i := range t.entities {
		cand := Neighbor{ID: t.entities[i].ID, Score: cosine(q, qn, t.vectors[i], t.norms[i])}
		if h.Len() < n {
			heap.Push(h, cand)
			continue
		}
		if better(cand, (*h)[0]) {
			(*h)[0] = cand
			heap.Fix(h, 0)
		}
	}

	out := make([]Neighbor, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Neighbor)
	}
	return out
}

// Similarity returns the cosine similarity between two rows
func (t *Table) Similarity(a, b string) (float64, bool) {
	ai, ok := t.index[a]
	if !ok {
		return 0, false
	}
	bi, ok := t.index[b]
	if !ok {
		return 0, false
	}
	return cosine(t.vectors[ai], t.norms[ai], t.vectors[bi], t.norms[bi]), true
}

// CosineSimilarity computes the cosine similarity of two vectors clamped to [-1,1]
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return cosine(a, norm(a), b, norm(b))
}

func cosine(a []float32, na float64, b []float32, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return clamp(dot / (na * nb))
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func clamp(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return s
	}
}

// better orders neighbors by descending score, then ascending id
func better(a, b Neighbor) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// neighborHeap keeps the worst retained neighbor at the root
type neighborHeap []Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
