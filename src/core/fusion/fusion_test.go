package fusion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algomind/src/core/graphquery"
	"algomind/src/core/knowledgebase"
	"algomind/src/core/model"
)

var dp = model.Entity{ID: "a1", Name: "动态规划", Type: model.EntityAlgorithm}

func recs(titles ...string) []model.RecommendationItem {
	out := make([]model.RecommendationItem, len(titles))
	for i, title := range titles {
		out[i] = model.RecommendationItem{
			ID:     fmt.Sprintf("p%d", i+1),
			Title:  title,
			Score:  0.9 - float64(i)*0.1,
			Tags:   []string{"dp"},
			Source: model.SourceEmbedding,
		}
	}
	return out
}

func TestFuseConceptWithRecommendations(t *testing.T) {
	e := New(DefaultConfig())

	g := e.Fuse(dp, graphquery.Result{}, recs("爬楼梯", "打家劫舍", "最长公共子序列"), Fallback{})
	require.NotNil(t, g)

	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 3)
	assert.Equal(t, "center:a1", g.CenterID)
	assert.Equal(t, LayoutRadial, g.Layout)
	assert.True(t, g.Nodes[0].IsCenter)
	assert.Equal(t, "动态规划", g.Nodes[0].Label)
	for _, edge := range g.Edges {
		assert.Equal(t, RelRelatedTo, edge.Label)
		assert.Equal(t, g.CenterID, edge.Source)
		assert.Contains(t, edge.Properties, "strength")
	}
}

func TestFuseSuppressesEmptyGraphs(t *testing.T) {
	e := New(DefaultConfig())

	tests := []struct {
		name     string
		graph    graphquery.Result
		recs     []model.RecommendationItem
		fallback Fallback
	}{
		{"all empty", graphquery.Result{}, nil, Fallback{}},
		{"empty recommendation list", graphquery.Result{}, []model.RecommendationItem{}, Fallback{}},
		{"only the focus itself", graphquery.Result{}, recs("动态规划"), Fallback{}},
		{"blank titles", graphquery.Result{}, recs("", "  "), Fallback{}},
		{"graph self loop", graphquery.Result{Triples: []graphquery.Triple{{
			Source:   graphquery.Node{ID: "a1", Label: "动态规划"},
			Relation: graphquery.RelRelatedTo,
			Target:   graphquery.Node{ID: "x", Label: "动态规划"},
		}}}, nil, Fallback{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, e.Fuse(dp, tt.graph, tt.recs, tt.fallback))
		})
	}
}

func TestFuseCapsPerSource(t *testing.T) {
	e := New(DefaultConfig())
	concept, ok := knowledgebase.Default().Lookup("动态规划")
	require.True(t, ok)

	fallback := FromConcept(concept)
	fallback.Examples = append(fallback.Examples, "编辑距离", "背包问题")

	g := e.Fuse(dp, graphquery.Result{}, recs("r1", "r2", "r3", "r4", "r5", "r6", "r7"), fallback)
	require.NotNil(t, g)

	counts := map[string]int{}
	for _, edge := range g.Edges {
		counts[edge.Label]++
	}
	assert.Equal(t, 5, counts[RelRelatedTo])
	assert.Equal(t, 3, counts[RelExampleOf])
	assert.Equal(t, 3, counts[RelHasPrinciple])
	assert.Len(t, g.Nodes, 1+5+3+3)
}

func TestFuseDeduplicatesByLabel(t *testing.T) {
	e := New(DefaultConfig())
	graph := graphquery.Result{Triples: []graphquery.Triple{{
		Source:   graphquery.Node{ID: "a1", Label: "动态规划", Type: "Algorithm"},
		Relation: graphquery.RelRelatedTo,
		Target:   graphquery.Node{ID: "lc-70", Label: "Climbing Stairs", Type: "Problem"},
	}}}

	items := []model.RecommendationItem{
		{ID: "lc-70", Title: "climbing stairs", Score: 0.9, Source: model.SourceEmbedding},
		{ID: "lc-198", Title: "House Robber", Score: 0.8, Source: model.SourceEmbedding},
	}

	g := e.Fuse(dp, graph, items, Fallback{Examples: []string{"HOUSE ROBBER"}})
	require.NotNil(t, g)

	labels := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		labels[i] = n.Label
	}
	assert.Equal(t, []string{"动态规划", "Climbing Stairs", "House Robber"}, labels)
	assert.Equal(t, LayoutForce, g.Layout)

	// "climbing stairs" repeats the graph edge and is dropped; the example adds a second edge to n2
	assert.Equal(t, []model.GraphEdge{
		{Source: "center:a1", Target: "n1", Label: graphquery.RelRelatedTo, Properties: map[string]any{"source": model.SourceGraph}},
		{Source: "center:a1", Target: "n2", Label: RelRelatedTo, Properties: map[string]any{"strength": 0.8, "source": model.SourceEmbedding}},
		{Source: "center:a1", Target: "n2", Label: RelExampleOf, Properties: map[string]any{"source": model.SourceStatic}},
	}, g.Edges)
}

func TestFusePreservesGraphTopology(t *testing.T) {
	e := New(DefaultConfig())
	graph := graphquery.Result{Triples: []graphquery.Triple{
		{
			Source:   graphquery.Node{ID: "lc-1", Label: "两数之和", Type: "Problem"},
			Relation: graphquery.RelUsesDataStructure,
			Target:   graphquery.Node{ID: "ds-hash", Label: "哈希表", Type: "DataStructure"},
		},
		{
			Source:   graphquery.Node{ID: "ds-hash", Label: "哈希表", Type: "DataStructure"},
			Relation: graphquery.RelSupports,
			Target:   graphquery.Node{ID: "t-lookup", Label: "O(1) lookup", Type: "Technique"},
		},
	}}
	focus := model.Entity{ID: "lc-1", Name: "两数之和", Type: model.EntityProblem}

	g := e.Fuse(focus, graph, nil, Fallback{})
	require.NotNil(t, g)
	require.Len(t, g.Edges, 2)
	assert.Equal(t, "center:lc-1", g.Edges[0].Source)
	assert.Equal(t, g.Edges[0].Target, g.Edges[1].Source)
	assert.Equal(t, graphquery.RelSupports, g.Edges[1].Label)
	assert.Equal(t, "DataStructure", g.Nodes[1].Type)
}

func TestFuseProblemGraphPassesThrough(t *testing.T) {
	twoSum := model.Entity{ID: "lc-1", Name: "两数之和", Type: model.EntityProblem}
	graph := graphquery.Result{Triples: star(25)}

	g := New(DefaultConfig()).Fuse(twoSum, graph, recs("a", "b", "c", "d", "e", "f"), Fallback{Examples: []string{"x", "y", "z", "w"}})
	require.NotNil(t, g)

	assert.Equal(t, "center:lc-1", g.CenterID)
	assert.Len(t, g.Nodes, 26+5+3)
	assert.Len(t, g.Edges, 25+5+3)

	capped := New(Config{MaxGraphNodes: 10}).Fuse(twoSum, graph, nil, Fallback{})
	require.NotNil(t, capped)
	assert.Len(t, capped.Nodes, 11)
	assert.Len(t, capped.Edges, 10)
}

func TestFuseGraphCapLeavesNoIsolatedNodes(t *testing.T) {
	graph := graphquery.Result{Triples: []graphquery.Triple{
		{
			Source:   graphquery.Node{ID: "a1", Label: "动态规划", Type: "Algorithm"},
			Relation: graphquery.RelUsesAlgorithm,
			Target:   graphquery.Node{ID: "lc-70", Label: "爬楼梯", Type: "Problem"},
		},
		{
			Source:   graphquery.Node{ID: "lc-198", Label: "打家劫舍", Type: "Problem"},
			Relation: graphquery.RelSimilarTo,
			Target:   graphquery.Node{ID: "lc-213", Label: "打家劫舍 II", Type: "Problem"},
		},
		{
			Source:   graphquery.Node{ID: "lc-70", Label: "爬楼梯", Type: "Problem"},
			Relation: graphquery.RelSimilarTo,
			Target:   graphquery.Node{ID: "lc-746", Label: "使用最小花费爬楼梯", Type: "Problem"},
		},
		{
			Source:   graphquery.Node{ID: "lc-322", Label: "零钱兑换", Type: "Problem"},
			Relation: graphquery.RelSimilarTo,
			Target:   graphquery.Node{ID: "lc-322-dup", Label: "零钱兑换", Type: "Problem"},
		},
	}}

	tests := []struct {
		name       string
		maxNodes   int
		wantLabels []string
	}{
		{"room for one", 1, []string{"动态规划", "爬楼梯"}},
		{"pair does not fit", 2, []string{"动态规划", "爬楼梯", "使用最小花费爬楼梯"}},
		{"pair fits", 3, []string{"动态规划", "爬楼梯", "打家劫舍", "打家劫舍 II"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Config{MaxGraphNodes: tt.maxNodes}).Fuse(dp, graph, nil, Fallback{})
			require.NotNil(t, g)

			labels := make([]string, len(g.Nodes))
			for i, n := range g.Nodes {
				labels[i] = n.Label
			}
			assert.Equal(t, tt.wantLabels, labels)

			degree := map[string]int{}
			for _, e := range g.Edges {
				degree[e.Source]++
				degree[e.Target]++
			}
			for _, n := range g.Nodes[1:] {
				assert.Positive(t, degree[n.ID], "node %s has no edges", n.Label)
			}
		})
	}
}

func star(n int) []graphquery.Triple {
	center := graphquery.Node{ID: "lc-1", Label: "两数之和", Type: "Problem"}
	out := make([]graphquery.Triple, n)
	for i := range out {
		out[i] = graphquery.Triple{
			Source:   center,
			Relation: graphquery.RelUsesAlgorithm,
			Target:   graphquery.Node{ID: fmt.Sprintf("n%02d", i), Label: fmt.Sprintf("Node %02d", i), Type: "Algorithm"},
		}
	}
	return out
}
