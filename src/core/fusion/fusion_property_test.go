package fusion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"algomind/src/core/graphquery"
	"algomind/src/core/model"
)

var labelPool = []string{"动态规划", "Two Sum", "two sum", "哈希表", "Heap", "heap", "BFS", "DFS", "Greedy", ""}

func genNode(t *rapid.T, label string) graphquery.Node {
	i := rapid.IntRange(0, len(labelPool)-1).Draw(t, label)
	return graphquery.Node{ID: fmt.Sprintf("g%d", i), Label: labelPool[i], Type: "Algorithm"}
}

func genInputs(t *rapid.T) (graphquery.Result, []model.RecommendationItem, Fallback) {
	var graph graphquery.Result
	for i := range rapid.IntRange(0, 8).Draw(t, "triples") {
		graph.Triples = append(graph.Triples, graphquery.Triple{
			Source:   genNode(t, fmt.Sprintf("src%d", i)),
			Relation: rapid.SampledFrom([]string{graphquery.RelUsesAlgorithm, graphquery.RelSimilarTo}).Draw(t, fmt.Sprintf("rel%d", i)),
			Target:   genNode(t, fmt.Sprintf("dst%d", i)),
		})
	}

	var recs []model.RecommendationItem
	for i := range rapid.IntRange(0, 8).Draw(t, "recs") {
		recs = append(recs, model.RecommendationItem{
			Title:  rapid.SampledFrom(labelPool).Draw(t, fmt.Sprintf("rec%d", i)),
			Score:  rapid.Float64Range(0, 1).Draw(t, fmt.Sprintf("score%d", i)),
			Source: model.SourceEmbedding,
		})
	}

	fallback := Fallback{
		Examples:   rapid.SliceOfN(rapid.SampledFrom(labelPool), 0, 5).Draw(t, "examples"),
		Principles: rapid.SliceOfN(rapid.SampledFrom(labelPool), 0, 5).Draw(t, "principles"),
	}
	return graph, recs, fallback
}

func TestFuseProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		focus := model.Entity{
			ID:   rapid.SampledFrom([]string{"g0", "g1", "other", ""}).Draw(t, "focus_id"),
			Name: rapid.SampledFrom(labelPool[:len(labelPool)-1]).Draw(t, "focus_name"),
		}
		graph, recs, fallback := genInputs(t)
		cfg := Config{
			MaxGraphNodes:          rapid.IntRange(0, 6).Draw(t, "max_graph"),
			MaxRecommendationNodes: rapid.IntRange(0, 5).Draw(t, "max_recs"),
			MaxExampleNodes:        rapid.IntRange(0, 3).Draw(t, "max_examples"),
			MaxPrincipleNodes:      rapid.IntRange(0, 3).Draw(t, "max_principles"),
		}
		e := New(cfg)

		g := e.Fuse(focus, graph, recs, fallback)
		if g == nil {
			return
		}

		if len(g.Nodes) <= 1 || len(g.Edges) == 0 {
			t.Fatalf("non-nil graph with %d nodes and %d edges", len(g.Nodes), len(g.Edges))
		}

		ids := make(map[string]bool)
		centers := 0
		for _, n := range g.Nodes {
			if ids[n.ID] {
				t.Fatalf("duplicate node id %s", n.ID)
			}
			ids[n.ID] = true
			if n.IsCenter {
				centers++
			}
		}
		if centers != 1 || !ids[g.CenterID] {
			t.Fatalf("center %q missing or repeated (%d centers)", g.CenterID, centers)
		}
		degree := make(map[string]int)
		for _, edge := range g.Edges {
			if !ids[edge.Source] || !ids[edge.Target] {
				t.Fatalf("edge %+v references a missing node", edge)
			}
			degree[edge.Source]++
			degree[edge.Target]++
		}
		for _, n := range g.Nodes {
			if !n.IsCenter && degree[n.ID] == 0 {
				t.Fatalf("node %s (%s) has no edges", n.ID, n.Label)
			}
		}

		first, err := json.Marshal(g)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		second, err := json.Marshal(e.Fuse(focus, graph, recs, fallback))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, second) {
			t.Fatalf("fusion is not deterministic:\n%s\n%s", first, second)
		}
	})
}
