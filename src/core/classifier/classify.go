/*
Package classifier maps raw query text to one intent and the entity mentions it contains.

Classification never fails: input that cannot be understood yields general_query.
*/
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"algomind/src/core/model"
	"algomind/src/log"
)

// Generator is the text-generation capability used when the rules are inconclusive
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Method records how the intent was decided
type Method string

const (
	MethodHint     Method = "hint"
	MethodRule     Method = "rule"
	MethodLLM      Method = "llm"
	MethodFallback Method = "fallback"
)

// Result is the classification of one query
type Result struct {
	Intent   model.Intent
	Mentions []model.EntityMention
	Method   Method
}

type intentRule struct {
	intent   model.Intent
	keywords []string
}

// intentRules are checked in order; the first rule with a matching keyword wins
var intentRules = []intentRule{
	{model.IntentSimilarProblems, []string{"相似", "类似", "相近", "同类", "similar", "alike"}},
	{model.IntentProblemRecommendation, []string{"推荐", "练习", "刷题", "题目", "习题", "recommend", "practice", "exercise"}},
	{model.IntentConceptExplanation, []string{"解释", "什么是", "概念", "原理", "讲解", "介绍", "explain", "what is", "what's", "how does", "concept"}},
}

type Classifier struct {
	lexicon   *Lexicon
	generator Generator
	timeout   time.Duration
}

// New creates a classifier. generator may be nil, in which case inconclusive
// queries fall straight back to general_query.
func New(lexicon *Lexicon, generator Generator, timeout time.Duration) *Classifier {
	if lexicon == nil {
		lexicon = NewLexicon(nil)
	}
	return &Classifier{
		lexicon:   lexicon,
		generator: generator,
		timeout:   timeout,
	}
}

// Classify decides the intent of text and extracts its entity mentions. Prior turns
// are scanned for mentions only when text itself names no entity.
func (c *Classifier) Classify(ctx context.Context, text string, turns []model.Turn) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Intent: model.IntentGeneralQuery, Method: MethodFallback}
	}

	mentions := c.mentions(text, turns)

	if intent, ok := matchRules(text); ok {
		return Result{Intent: intent, Mentions: mentions, Method: MethodRule}
	}

	if c.generator != nil {
		res, err := c.classifyWithLLM(ctx, text, mentions)
		if err == nil {
			return res
		}
		log.Info("llm classification failed, using fallback", "error", err.Error())
	}

	return Result{Intent: model.IntentGeneralQuery, Mentions: mentions, Method: MethodFallback}
}

// ClassifyRequest classifies req. A valid intent hint replaces the detected intent
// and skips the language model; mentions are extracted either way.
func (c *Classifier) ClassifyRequest(ctx context.Context, req model.QueryRequest) Result {
	hint, ok := model.ParseIntent(string(req.IntentHint))
	if !ok {
		return c.Classify(ctx, req.Text, req.Context)
	}
	return Result{
		Intent:   hint,
		Mentions: c.mentions(strings.TrimSpace(req.Text), req.Context),
		Method:   MethodHint,
	}
}

func (c *Classifier) mentions(text string, turns []model.Turn) []model.EntityMention {
	if found := c.lexicon.Scan(text); len(found) > 0 {
		return found
	}
	return c.mentionsFromContext(turns)
}

func matchRules(text string) (model.Intent, bool) {
	lower := strings.ToLower(text)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent, true
			}
		}
	}
	return "", false
}

func (c *Classifier) mentionsFromContext(turns []model.Turn) []model.EntityMention {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != "user" {
			continue
		}
		if found := c.lexicon.Scan(turns[i].Content); len(found) > 0 {
			return found
		}
	}
	return nil
}

type llmClassification struct {
	Intent   string   `json:"intent"`
	Entities []string `json:"entities"`
}

const classifySystem = "You classify questions about algorithms and data structures. Respond with JSON only."

func (c *Classifier) classifyWithLLM(ctx context.Context, text string, known []model.EntityMention) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.generator.Generate(ctx, classifySystem, buildClassifyPrompt(text))
	if err != nil {
		return Result{}, fmt.Errorf("generate: %w", err)
	}

	parsed, err := parseClassifyResponse(resp)
	if err != nil {
		return Result{}, err
	}
	intent, ok := model.ParseIntent(parsed.Intent)
	if !ok {
		return Result{}, fmt.Errorf("unknown intent %q", parsed.Intent)
	}

	return Result{
		Intent:   intent,
		Mentions: c.mergeMentions(text, known, parsed.Entities),
		Method:   MethodLLM,
	}, nil
}

// mergeMentions adds model-extracted names to the lexicon matches, keeping the
// first-occurrence order of the raw text. Names absent from the text go last.
func (c *Classifier) mergeMentions(text string, known []model.EntityMention, names []string) []model.EntityMention {
	type positioned struct {
		pos     int
		mention model.EntityMention
	}
	lower := strings.ToLower(text)
	position := func(s string) int {
		if i := strings.Index(lower, strings.ToLower(s)); i >= 0 {
			return i
		}
		return len(lower)
	}

	seenID := make(map[string]bool)
	seenText := make(map[string]bool)
	var all []positioned
	for _, m := range known {
		seenID[m.ID] = true
		seenText[strings.ToLower(m.Text)] = true
		all = append(all, positioned{position(m.Text), m})
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seenText[key] {
			continue
		}
		seenText[key] = true
		m := model.EntityMention{Text: name, Type: model.EntityUnknown}
		if e, ok := c.lexicon.Lookup(name); ok {
			if seenID[e.ID] {
				continue
			}
			seenID[e.ID] = true
			m.ID, m.Type = e.ID, e.Type
		}
		all = append(all, positioned{position(name), m})
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].pos < all[j].pos })
	out := make([]model.EntityMention, len(all))
	for i, p := range all {
		out[i] = p.mention
	}
	return out
}

func buildClassifyPrompt(text string) string {
	return fmt.Sprintf(`Classify this question and extract the algorithm, data structure or problem names it mentions.

QUESTION:
%s

Respond in JSON format only:
{
  "intent": "concept_explanation|problem_recommendation|similar_problems|general_query",
  "entities": ["name1", "name2"]
}

CLASSIFICATION RULES:
- "concept_explanation": asks what a concept is or how it works
- "problem_recommendation": asks for problems to practice
- "similar_problems": asks for problems similar to a given problem
- "general_query": anything else

JSON ONLY, no explanation:`, text)
}

func parseClassifyResponse(response string) (*llmClassification, error) {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimSuffix(response, "```")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
	}
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		response = response[start : end+1]
	}

	var result llmClassification
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return &result, nil
}
