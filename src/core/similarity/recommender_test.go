package similarity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algomind/src/core/embedding"
	"algomind/src/core/model"
)

const artifact = `{
  "dimension": 3,
  "entities": [
    {"id": "p2", "title": "Climbing Stairs", "type": "Problem", "tags": ["dp"], "vector": [1, 0.1, 0]},
    {"id": "a1", "title": "动态规划", "type": "Algorithm", "vector": [1, 0, 0]},
    {"id": "p1", "title": "House Robber", "type": "Problem", "tags": ["dp", "array"], "vector": [1, 0, 0]},
    {"id": "p3", "title": "Two Sum", "type": "Problem", "tags": ["hash"], "vector": [0, 1, 0]},
    {"id": "p4", "title": "Opposite", "type": "Problem", "vector": [-1, 0, 0]}
  ]
}`

func loadTable(t *testing.T) *embedding.Table {
	t.Helper()
	table, err := embedding.Decode(strings.NewReader(artifact))
	require.NoError(t, err)
	return table
}

func ids(items []model.RecommendationItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestRecommend(t *testing.T) {
	r := NewRecommender(loadTable(t), nil, Config{Floor: 0})

	tests := []struct {
		name  string
		focus string
		k     int
		want  []string
	}{
		// a1 duplicates p1's vector and sorts before it, so the self match is not first
		{"duplicate vector ahead of self", "p1", 2, []string{"a1", "p2"}},
		{"floor drops negative scores", "p1", 5, []string{"a1", "p2", "p3"}},
		{"single", "p3", 1, []string{"p2"}},
		{"absent focus", "missing", 3, []string{}},
		{"zero k", "p1", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Recommend(context.Background(), tt.focus, tt.k)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestRecommendItemFields(t *testing.T) {
	r := NewRecommender(loadTable(t), nil, Config{})

	got := r.Recommend(context.Background(), "a1", 1)
	require.Len(t, got, 1)
	assert.Equal(t, model.RecommendationItem{
		ID:     "p1",
		Title:  "House Robber",
		Score:  1,
		Tags:   []string{"dp", "array"},
		Source: model.SourceEmbedding,
	}, got[0])
}

func TestRecommendWithoutTable(t *testing.T) {
	r := NewRecommender(nil, nil, Config{})
	assert.Equal(t, []model.RecommendationItem{}, r.Recommend(context.Background(), "p1", 3))
}

type failingIndex struct{ calls int }

func (f *failingIndex) Nearest(context.Context, string, int) ([]embedding.Neighbor, error) {
	f.calls++
	return nil, errors.New("weaviate unavailable")
}

func TestRecommendFallsBackToTable(t *testing.T) {
	idx := &failingIndex{}
	r := NewRecommender(loadTable(t), idx, Config{})

	got := r.Recommend(context.Background(), "p1", 2)
	assert.Equal(t, 1, idx.calls)
	assert.Equal(t, []string{"a1", "p2"}, ids(got))
}

type staticIndex []embedding.Neighbor

func (s staticIndex) Nearest(context.Context, string, int) ([]embedding.Neighbor, error) {
	return append([]embedding.Neighbor(nil), s...), nil
}

func TestRecommendOrdersRemoteResults(t *testing.T) {
	idx := staticIndex{
		{ID: "p3", Score: 0.2},
		{ID: "p1", Score: 1.0000002},
		{ID: "p2", Score: 0.9},
		{ID: "a1", Score: 0.9},
		{ID: "gone", Score: 0.95},
	}
	r := NewRecommender(loadTable(t), idx, Config{Floor: 0.5})

	got := r.Recommend(context.Background(), "p1", 3)
	// unknown ids are skipped and scores are clamped
	assert.Equal(t, []string{"a1", "p2"}, ids(got))
	for _, it := range got {
		assert.LessOrEqual(t, it.Score, 1.0)
	}
}
