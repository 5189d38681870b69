package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-logr/logr"

	"algomind/src/core/classifier"
	"algomind/src/core/model"
	"algomind/src/log"
)

// run is one request's pass through the pipeline
type run struct {
	p       *Pipeline
	req     model.QueryRequest
	ctx     context.Context
	callCtx context.Context // external calls outlive a disconnected caller
	yield   func(Event) bool
	logger  logr.Logger

	id      string
	state   State
	start   time.Time
	intent  model.Intent
	steps   []model.ReasoningStep
	stopped bool // the consumer stopped iterating
	inYield bool

	result *model.PipelineResult
	err    error
}

func (p *Pipeline) newRun(ctx context.Context, req model.QueryRequest, yield func(Event) bool) *run {
	id := p.ids.Generate().String()
	return &run{
		p:       p,
		req:     req,
		ctx:     ctx,
		callCtx: context.WithoutCancel(ctx),
		yield:   yield,
		logger:  log.WithValues("request_id", id, "session_id", req.SessionID),
		id:      id,
		state:   StateReceived,
		start:   time.Now(),
	}
}

func (r *run) execute() {
	defer r.finish()
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if r.inYield {
			// the consumer's loop body panicked; it is not ours to absorb
			panic(rec)
		}
		r.fail(fmt.Errorf("pipeline panic in state %s: %v", r.state, rec))
	}()

	if err := r.stages(); err != nil {
		r.fail(err)
	}
}

func (r *run) stages() error {
	r.transition(StateClassifying)
	req := r.req
	req.Context = r.conversation()
	cls := r.p.classifier.ClassifyRequest(r.callCtx, req)
	r.intent = cls.Intent
	r.step("识别意图", fmt.Sprintf("识别到意图：%s（%s）", intentNames[cls.Intent], methodNames[cls.Method]))

	r.transition(StateExtractingEntities)
	mentions := cls.Mentions
	if mentions == nil {
		mentions = []model.EntityMention{}
	}
	var focus *model.Entity
	if m, ok := model.Focus(mentions); ok {
		focus = r.p.entity(m)
	}
	r.step("识别实体", describeEntities(mentions, focus))

	r.transition(StateDispatching)
	q := &Query{
		Request:  req,
		Intent:   cls.Intent,
		Mentions: mentions,
		Focus:    focus,
		step:     r.step,
	}
	h := r.p.handler(cls.Intent)
	knowledge := h.Retrieve(r.callCtx, q)
	system, prompt, err := h.Compose(q, knowledge)
	if err != nil {
		return fmt.Errorf("compose prompt: %w", err)
	}

	r.transition(StateGenerating)
	answer, err := r.generate(system, prompt)
	if err != nil {
		return err
	}
	r.step("生成回答", fmt.Sprintf("已生成 %d 字的回答", utf8.RuneCountInString(answer)))

	r.transition(StateFusing)
	var graph *model.GraphData
	if focus != nil {
		graph = r.p.fusion.Fuse(*focus, knowledge.Graph, knowledge.Recommendations, knowledge.Fallback())
	}
	if graph == nil {
		r.step("融合知识", "没有可展示的关联图谱")
	} else {
		r.step("融合知识", fmt.Sprintf("构建了包含 %d 个节点、%d 条边的知识图谱", len(graph.Nodes), len(graph.Edges)))
	}

	r.transition(StateFinalizing)
	recs := knowledge.Recommendations
	if recs == nil {
		recs = []model.RecommendationItem{}
	}
	r.result = &model.PipelineResult{
		ResponseID:      r.id,
		Intent:          cls.Intent,
		Entities:        mentions,
		Answer:          answer,
		Steps:           r.steps,
		Recommendations: recs,
		GraphData:       graph,
		Duration:        time.Since(r.start),
	}

	r.transition(StateCompleted)
	r.emit(Event{Type: EventFinalResponse, Content: r.result})
	return nil
}

// conversation returns the request's context, loading it from the session store
// when the request carries none
func (r *run) conversation() []model.Turn {
	if len(r.req.Context) > 0 || r.p.sessions == nil || r.req.SessionID == "" {
		return r.req.Context
	}

	ctx := r.callCtx
	if t := r.p.cfg.SessionTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	turns, err := r.p.sessions.RecentTurns(ctx, r.req.SessionID, r.p.cfg.ContextTurns)
	if err != nil {
		r.logger.Error(err, "failed to load conversation, continuing without it")
		return nil
	}
	return turns
}

func (r *run) generate(system, prompt string) (string, error) {
	if r.p.generator == nil {
		return "", fmt.Errorf("%w: no text generator configured", ErrGeneration)
	}

	ctx := r.callCtx
	if t := r.p.cfg.GenerationTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	start := time.Now()
	answer, err := r.p.generator.Generate(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	r.logger.V(1).Info("answer generated", "elapsed", time.Since(start).String(), "length", len(answer))
	return answer, nil
}

func (r *run) transition(to State) {
	if !canTransition(r.state, to) {
		panic(fmt.Sprintf("invalid transition %s -> %s", r.state, to))
	}
	r.state = to
}

// step records a completed sub-action and emits it
func (r *run) step(title, content string) {
	s := model.ReasoningStep{
		ID:        len(r.steps),
		Title:     title,
		Content:   content,
		Timestamp: time.Now(),
	}
	r.steps = append(r.steps, s)
	r.emit(Event{Type: EventReasoningStep, Content: &s})
}

func (r *run) emit(ev Event) {
	if r.stopped {
		return
	}
	r.inYield = true
	ok := r.yield(ev)
	r.inYield = false
	if !ok {
		r.stopped = true
		r.logger.Info("consumer stopped, finishing run without emitting", "state", string(r.state))
	}
}

// fail moves the run to Errored and emits the error event. A run that already
// reached a terminal state is left alone.
func (r *run) fail(err error) {
	if r.state.Terminal() {
		r.logger.Error(err, "error after terminal state", "state", string(r.state))
		return
	}
	r.err = err
	r.state = StateErrored
	r.emit(Event{Type: EventError, Content: ErrorContent{Message: apology, ResponseID: r.id}})
}

func (r *run) finish() {
	if r.inYield {
		return
	}
	if !r.state.Terminal() {
		r.fail(errors.New("pipeline stopped before reaching a terminal state"))
	}

	elapsed := time.Since(r.start)
	kv := []any{"intent", string(r.intent), "state", string(r.state), "steps", len(r.steps), "duration", elapsed.String()}
	if r.err != nil {
		r.logger.Error(r.err, "pipeline errored", kv...)
	} else {
		r.logger.Info("pipeline completed", kv...)
	}

	if r.p.observer != nil {
		answer := ""
		if r.state == StateCompleted && r.result != nil {
			answer = r.result.Answer
		}
		r.p.observer.PipelineCompleted(r.callCtx, Completion{
			ResponseID: r.id,
			SessionID:  r.req.SessionID,
			Question:   r.req.Text,
			Answer:     answer,
			Intent:     r.intent,
			State:      r.state,
			Steps:      len(r.steps),
			Duration:   elapsed,
			Err:        r.err,
		})
	}
}

var intentNames = map[model.Intent]string{
	model.IntentConceptExplanation:    "概念解释",
	model.IntentProblemRecommendation: "题目推荐",
	model.IntentSimilarProblems:       "相似题目",
	model.IntentGeneralQuery:          "通用问答",
}

var methodNames = map[classifier.Method]string{
	classifier.MethodHint:     "请求指定",
	classifier.MethodRule:     "关键词匹配",
	classifier.MethodLLM:      "语言模型判断",
	classifier.MethodFallback: "默认",
}

func describeEntities(mentions []model.EntityMention, focus *model.Entity) string {
	if len(mentions) == 0 {
		return "没有识别到具体的算法或题目实体"
	}
	names := make([]string, len(mentions))
	for i, m := range mentions {
		names[i] = m.Text
		if !m.Resolved() {
			names[i] += "（未收录）"
		}
	}
	out := fmt.Sprintf("识别到 %d 个实体：%s", len(mentions), strings.Join(names, "、"))
	if focus != nil {
		out += fmt.Sprintf("；以「%s」为核心", focus.Name)
	}
	return out
}
