package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"algomind/src/core/embedding"
)

func genTable(t *rapid.T) *embedding.Table {
	n := rapid.IntRange(1, 25).Draw(t, "rows")
	type row struct {
		ID     string    `json:"id"`
		Title  string    `json:"title"`
		Type   string    `json:"type"`
		Vector []float32 `json:"vector"`
	}
	rows := make([]row, n)
	for i := range rows {
		vec := make([]float32, 3)
		for j := range vec {
			// small integer range produces plenty of duplicate and opposite vectors
			vec[j] = float32(rapid.IntRange(-2, 2).Draw(t, fmt.Sprintf("v%d_%d", i, j)))
		}
		rows[i] = row{ID: fmt.Sprintf("e%02d", i), Title: fmt.Sprintf("Entity %02d", i), Type: "Problem", Vector: vec}
	}

	data, err := json.Marshal(map[string]any{"dimension": 3, "entities": rows})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	table, err := embedding.Decode(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return table
}

func TestRecommendProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		table := genTable(t)
		focus := fmt.Sprintf("e%02d", rapid.IntRange(0, table.Len()-1).Draw(t, "focus"))
		k := rapid.IntRange(0, 10).Draw(t, "k")
		floor := rapid.SampledFrom([]float64{-1, 0, 0.5}).Draw(t, "floor")

		got := NewRecommender(table, nil, Config{Floor: floor}).Recommend(context.Background(), focus, k)

		if len(got) > k {
			t.Fatalf("got %d items, k=%d", len(got), k)
		}
		seen := make(map[string]bool)
		for i, it := range got {
			if it.ID == focus {
				t.Fatalf("focus %s returned in its own recommendations", focus)
			}
			if it.Score < floor {
				t.Fatalf("item %s score %f below floor %f", it.ID, it.Score, floor)
			}
			if seen[it.ID] {
				t.Fatalf("duplicate item %s", it.ID)
			}
			seen[it.ID] = true
			if i > 0 {
				prev := got[i-1]
				if prev.Score < it.Score || (prev.Score == it.Score && prev.ID > it.ID) {
					t.Fatalf("items out of order: %+v before %+v", prev, it)
				}
			}
		}

		// every eligible row is returned when k exceeds the table size
		if k >= table.Len() {
			want := 0
			for _, e := range table.Entities() {
				if e.ID == focus {
					continue
				}
				if s, _ := table.Similarity(focus, e.ID); s >= floor {
					want++
				}
			}
			if len(got) != want {
				t.Fatalf("got %d items, want %d eligible rows", len(got), want)
			}
		}
	})
}
