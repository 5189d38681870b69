// Package similarity recommends entities that are close to a focus entity in the
// embedding space.
package similarity

import (
	"context"
	"sort"
	"time"

	"algomind/src/core/embedding"
	"algomind/src/core/model"
	"algomind/src/log"
)

// Index answers nearest-neighbor queries for rows of the embedding table. The focus
// row may appear among the results.
type Index interface {
	Nearest(ctx context.Context, id string, n int) ([]embedding.Neighbor, error)
}

// TableIndex scans the in-memory table
type TableIndex struct {
	Table *embedding.Table
}

func (ti TableIndex) Nearest(_ context.Context, id string, n int) ([]embedding.Neighbor, error) {
	return ti.Table.Nearest(id, n), nil
}

type Config struct {
	// Floor excludes candidates scoring below it
	Floor   float64
	Timeout time.Duration
}

type Recommender struct {
	table *embedding.Table
	index Index
	cfg   Config
}

// NewRecommender builds a recommender over table. A nil index scans the table directly.
func NewRecommender(table *embedding.Table, index Index, cfg Config) *Recommender {
	if index == nil && table != nil {
		index = TableIndex{Table: table}
	}
	return &Recommender{table: table, index: index, cfg: cfg}
}

// Recommend returns at most k entities most similar to focusID, best first, never
// including focusID itself. An unknown focusID yields an empty list.
func (r *Recommender) Recommend(ctx context.Context, focusID string, k int) []model.RecommendationItem {
	items := []model.RecommendationItem{}
	if r.table == nil || k <= 0 || !r.table.Has(focusID) {
		return items
	}

	for _, n := range r.candidates(ctx, focusID, k+1) {
		if n.ID == focusID {
			continue
		}
		score := clamp(n.Score)
		if score < r.cfg.Floor {
			continue
		}
		e, ok := r.table.Entity(n.ID)
		if !ok {
			continue
		}
		items = append(items, model.RecommendationItem{
			ID:     e.ID,
			Title:  e.Title,
			Score:  score,
			Tags:   e.Tags,
			Source: model.SourceEmbedding,
		})
		if len(items) == k {
			break
		}
	}
	return items
}

// candidates asks the configured index and falls back to the table scan when a
// remote index fails
func (r *Recommender) candidates(ctx context.Context, focusID string, n int) []embedding.Neighbor {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cands, err := r.index.Nearest(ctx, focusID, n)
	if err != nil {
		log.Error(err, "similarity index failed, scanning embedding table", "entity", focusID)
		return r.table.Nearest(focusID, n)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].ID < cands[j].ID
	})
	return cands
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
