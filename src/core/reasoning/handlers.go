package reasoning

import (
	"context"
	"fmt"
	"strings"

	"algomind/src/core/fusion"
	"algomind/src/core/graphquery"
	"algomind/src/core/knowledgebase"
	"algomind/src/core/model"
	"algomind/src/core/similarity"
)

// Query is what a handler sees of the run it serves
type Query struct {
	Request  model.QueryRequest
	Intent   model.Intent
	Mentions []model.EntityMention
	// Focus is nil when no mention was resolved
	Focus *model.Entity

	step func(title, content string)
}

// Step reports one completed sub-action
func (q *Query) Step(title, content string) {
	if q.step != nil {
		q.step(title, content)
	}
}

// Knowledge is everything a handler retrieved for the answer
type Knowledge struct {
	Concept         *knowledgebase.Concept
	Graph           graphquery.Result
	Recommendations []model.RecommendationItem
}

// Fallback returns the static knowledge to fuse. It is only offered when the
// graph and the recommendations came back empty.
func (k Knowledge) Fallback() fusion.Fallback {
	if k.Concept == nil || !k.Graph.Empty() || len(k.Recommendations) > 0 {
		return fusion.Fallback{}
	}
	return fusion.FromConcept(*k.Concept)
}

// Handler serves one intent
type Handler interface {
	// Retrieve gathers knowledge, reporting every sub-action it performs through q.Step
	Retrieve(ctx context.Context, q *Query) Knowledge
	// Compose renders the system and user prompts for text generation
	Compose(q *Query, k Knowledge) (system, prompt string, err error)
}

// Sources are the knowledge sources shared by all handlers. Any of them may be nil.
type Sources struct {
	Graph      *graphquery.Builder
	Similarity *similarity.Recommender
	Catalog    *knowledgebase.Catalog

	GraphDepth int
	GraphLimit int
	TopK       int
}

type retrieval func(ctx context.Context, s *Sources, q *Query, k *Knowledge)

// strategy runs its retrievals in order and shares the answer prompt
type strategy struct {
	sources    *Sources
	retrievals []retrieval
}

func (h *strategy) Retrieve(ctx context.Context, q *Query) Knowledge {
	var k Knowledge
	for _, r := range h.retrievals {
		r(ctx, h.sources, q, &k)
	}
	return k
}

func (h *strategy) Compose(q *Query, k Knowledge) (string, string, error) {
	prompt, err := renderPrompt(q, k)
	if err != nil {
		return "", "", err
	}
	return tutorSystem, prompt, nil
}

// DefaultHandlers returns the handler table keyed by intent
func DefaultHandlers(s *Sources) map[model.Intent]Handler {
	return map[model.Intent]Handler{
		model.IntentConceptExplanation:    &strategy{s, []retrieval{lookupConcept, recommendSimilar, queryGraph}},
		model.IntentProblemRecommendation: &strategy{s, []retrieval{lookupConcept, queryGraph, recommendFromGraph, recommendSimilar, recommendStatic}},
		model.IntentSimilarProblems:       &strategy{s, []retrieval{recommendSimilar, queryGraph, recommendFromGraph}},
		model.IntentGeneralQuery:          &strategy{s, []retrieval{lookupConcept, recommendSimilar}},
	}
}

func lookupConcept(_ context.Context, s *Sources, q *Query, k *Knowledge) {
	if q.Focus == nil || s.Catalog == nil {
		return
	}
	c, ok := s.Catalog.Lookup(q.Focus.Name)
	if !ok {
		for _, m := range q.Mentions {
			if c, ok = s.Catalog.Lookup(m.Text); ok {
				break
			}
		}
	}
	if !ok {
		q.Step("检索知识库", fmt.Sprintf("知识库中没有「%s」的条目", q.Focus.Name))
		return
	}
	k.Concept = &c
	q.Step("检索知识库", fmt.Sprintf("找到「%s」的定义，包含 %d 条核心原理和 %d 个经典例题",
		c.Name, len(c.Principles), len(c.Examples)))
}

func queryGraph(ctx context.Context, s *Sources, q *Query, k *Knowledge) {
	if q.Focus == nil || s.Graph == nil {
		return
	}
	res := s.Graph.BuildAndRun(ctx, *q.Focus, q.Focus.Type, s.GraphDepth, s.GraphLimit)
	k.Graph = res

	switch {
	case res.Degraded:
		q.Step("查询知识图谱", "知识图谱暂时不可用，已跳过图谱检索")
	case res.Empty():
		q.Step("查询知识图谱", fmt.Sprintf("知识图谱中没有找到与「%s」关联的节点", q.Focus.Name))
	default:
		q.Step("查询知识图谱", fmt.Sprintf("使用 %s 模板（深度 %d）找到 %d 条关系、%d 个节点",
			res.Spec.Template, res.Spec.Depth, len(res.Triples), len(res.Nodes())))
	}
}

func recommendSimilar(ctx context.Context, s *Sources, q *Query, k *Knowledge) {
	if q.Focus == nil || s.Similarity == nil {
		return
	}
	recs := s.Similarity.Recommend(ctx, q.Focus.ID, s.TopK)
	if len(recs) == 0 {
		q.Step("相似度检索", fmt.Sprintf("嵌入空间中没有与「%s」足够相似的条目", q.Focus.Name))
		return
	}
	k.Recommendations = mergeRecommendations(k.Recommendations, recs)
	q.Step("相似度检索", fmt.Sprintf("找到 %d 个相似条目：%s", len(recs), joinTitles(recs)))
}

// recommendFromGraph turns Problem nodes of the traversal into recommendations
func recommendFromGraph(_ context.Context, s *Sources, q *Query, k *Knowledge) {
	if q.Focus == nil || k.Graph.Empty() {
		return
	}
	recs := graphRecommendations(*q.Focus, k.Graph, q.Request.Difficulty, s.TopK)
	if len(recs) == 0 {
		q.Step("图谱推荐", "图谱结果中没有符合条件的题目")
		return
	}
	k.Recommendations = mergeRecommendations(k.Recommendations, recs)
	q.Step("图谱推荐", fmt.Sprintf("从知识图谱中选出 %d 道题目：%s", len(recs), joinTitles(recs)))
}

// recommendStatic offers the catalog's examples when no other source recommended anything
func recommendStatic(_ context.Context, s *Sources, q *Query, k *Knowledge) {
	if k.Concept == nil || len(k.Recommendations) > 0 {
		return
	}
	var recs []model.RecommendationItem
	for _, title := range k.Concept.Examples {
		recs = append(recs, model.RecommendationItem{
			Title:  title,
			Tags:   []string{k.Concept.Name},
			Source: model.SourceStatic,
		})
		if s.TopK > 0 && len(recs) == s.TopK {
			break
		}
	}
	if len(recs) == 0 {
		return
	}
	k.Recommendations = recs
	q.Step("静态推荐", fmt.Sprintf("使用知识库中的经典例题：%s", joinTitles(recs)))
}

func graphRecommendations(focus model.Entity, res graphquery.Result, difficulty string, limit int) []model.RecommendationItem {
	var out []model.RecommendationItem
	seen := map[string]bool{focus.ID: true}
	for _, t := range res.Triples {
		for _, n := range []graphquery.Node{t.Source, t.Target} {
			if seen[n.ID] || n.Type != string(model.EntityProblem) {
				continue
			}
			seen[n.ID] = true
			if !matchesDifficulty(n, difficulty) {
				continue
			}
			item := model.RecommendationItem{
				ID:     n.ID,
				Title:  n.Label,
				Score:  edgeStrength(t.Properties),
				Tags:   []string{t.Relation},
				Source: model.SourceGraph,
			}
			if d, ok := n.Properties["difficulty"].(string); ok && d != "" {
				item.Tags = append(item.Tags, d)
			}
			out = append(out, item)
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}

// matchesDifficulty passes nodes without a difficulty property
func matchesDifficulty(n graphquery.Node, difficulty string) bool {
	if difficulty == "" {
		return true
	}
	d, ok := n.Properties["difficulty"].(string)
	if !ok || d == "" {
		return true
	}
	return strings.EqualFold(d, difficulty)
}

// edgeStrength reads a [0,1] score from relationship properties, defaulting to 1
func edgeStrength(props map[string]any) float64 {
	for _, key := range []string{"strength", "score", "weight"} {
		var v float64
		switch x := props[key].(type) {
		case float64:
			v = x
		case int64:
			v = float64(x)
		default:
			continue
		}
		switch {
		case v < 0:
			return 0
		case v > 1:
			return 1
		default:
			return v
		}
	}
	return 1
}

// mergeRecommendations appends add to base, skipping titles already present
func mergeRecommendations(base, add []model.RecommendationItem) []model.RecommendationItem {
	seen := make(map[string]bool, len(base))
	for _, r := range base {
		seen[strings.ToLower(r.Title)] = true
	}
	for _, r := range add {
		key := strings.ToLower(r.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		base = append(base, r)
	}
	return base
}

func joinTitles(recs []model.RecommendationItem) string {
	titles := make([]string, len(recs))
	for i, r := range recs {
		titles[i] = r.Title
	}
	return strings.Join(titles, "、")
}
