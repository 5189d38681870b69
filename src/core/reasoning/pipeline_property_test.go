package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"algomind/src/core/model"
)

func TestRunProtocolProperties(t *testing.T) {
	texts := []string{
		"请解释动态规划的概念",
		"推荐几道爬楼梯类似的题",
		"两数之和有哪些相似题目",
		"今天学什么",
		"what is dp",
		"",
	}
	hints := []model.Intent{"", model.IntentConceptExplanation, model.IntentProblemRecommendation, model.IntentSimilarProblems, model.IntentGeneralQuery}

	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		switch rapid.IntRange(0, 2).Draw(rt, "generator") {
		case 1:
			f.gen.err = errors.New("llm unreachable")
		case 2:
			f.gen.answer = "   "
		}
		if rapid.Bool().Draw(rt, "graph_down") {
			f.store.err = errors.New("graph down")
		}
		f.timeout = time.Second
		p := f.pipeline(t)

		req := model.QueryRequest{
			Text:       rapid.SampledFrom(texts).Draw(rt, "text"),
			IntentHint: rapid.SampledFrom(hints).Draw(rt, "hint"),
		}

		var events []Event
		for ev := range p.Stream(context.Background(), req) {
			events = append(events, ev)
		}

		terminals, next := 0, 0
		for i, ev := range events {
			if ev.Terminal() {
				terminals++
				if i != len(events)-1 {
					rt.Fatalf("terminal event at %d of %d", i, len(events))
				}
				continue
			}
			step, ok := ev.Step()
			if !ok {
				rt.Fatalf("event %d is neither a step nor terminal: %+v", i, ev)
			}
			if step.ID != next {
				rt.Fatalf("step id %d, want %d", step.ID, next)
			}
			next++
		}
		if terminals != 1 {
			rt.Fatalf("got %d terminal events", terminals)
		}

		if res, ok := events[len(events)-1].Result(); ok && res.GraphData != nil {
			ids := make(map[string]bool)
			for _, n := range res.GraphData.Nodes {
				ids[n.ID] = true
			}
			for _, e := range res.GraphData.Edges {
				if !ids[e.Source] || !ids[e.Target] {
					rt.Fatalf("dangling edge %+v", e)
				}
			}
		}
	})
}
