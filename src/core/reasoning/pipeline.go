/*
Package reasoning runs the query pipeline: classify, extract entities, retrieve
knowledge, generate an answer and fuse the response graph.

A run is a cooperative, single-threaded state machine. It reports progress as an
ordered sequence of events that ends with exactly one terminal event.
*/
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"

	"algomind/src/core/classifier"
	"algomind/src/core/embedding"
	"algomind/src/core/fusion"
	"algomind/src/core/graphquery"
	"algomind/src/core/model"
)

var (
	ErrGeneration     = errors.New("text generation failed")
	ErrInvalidRequest = errors.New("invalid request")
)

// MaxQueryLength bounds the query text in runes
const MaxQueryLength = 2000

// apology is shown to the caller when a run errors
const apology = "抱歉，生成回答时出现问题，请稍后再试。"

// Generator is the text-generation capability
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// SessionStore provides prior turns of a conversation
type SessionStore interface {
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]model.Turn, error)
}

// Completion summarizes a finished run
type Completion struct {
	ResponseID string
	SessionID  string
	Question   string
	// Answer is empty unless the run completed
	Answer   string
	Intent   model.Intent
	State    State
	Steps    int
	Duration time.Duration
	Err      error
}

// Observer is notified once per run after its terminal event
type Observer interface {
	PipelineCompleted(ctx context.Context, c Completion)
}

// DefaultTopK is the recommendation count when neither Config nor Sources set one
const DefaultTopK = 5

// Config holds the run limits. GraphDepth, GraphLimit and TopK fill the matching
// Sources fields left at zero.
type Config struct {
	GraphDepth        int
	GraphLimit        int
	TopK              int
	GenerationTimeout time.Duration
	SessionTimeout    time.Duration
	ContextTurns      int
	// NodeID seeds response ids and must be unique per process
	NodeID int64
}

type Dependencies struct {
	Classifier *classifier.Classifier
	Fusion     *fusion.Engine
	Sources    *Sources
	// Table resolves canonical entity names and may be nil
	Table     *embedding.Table
	Generator Generator
	Sessions  SessionStore
	Observer  Observer
	// Handlers overrides DefaultHandlers
	Handlers map[model.Intent]Handler
}

type Pipeline struct {
	classifier *classifier.Classifier
	fusion     *fusion.Engine
	table      *embedding.Table
	generator  Generator
	sessions   SessionStore
	observer   Observer
	handlers   map[model.Intent]Handler
	sources    *Sources
	ids        *snowflake.Node
	cfg        Config
}

func New(deps Dependencies, cfg Config) (*Pipeline, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 6
	}

	sources := &Sources{}
	if deps.Sources != nil {
		*sources = *deps.Sources
	}
	if sources.GraphDepth <= 0 {
		sources.GraphDepth = cfg.GraphDepth
	}
	if sources.GraphDepth <= 0 {
		sources.GraphDepth = graphquery.DefaultDepth
	}
	if sources.GraphLimit <= 0 {
		sources.GraphLimit = cfg.GraphLimit
	}
	if sources.TopK <= 0 {
		sources.TopK = cfg.TopK
	}
	if sources.TopK <= 0 {
		sources.TopK = DefaultTopK
	}
	handlers := deps.Handlers
	if handlers == nil {
		handlers = DefaultHandlers(sources)
	}
	if _, ok := handlers[model.IntentGeneralQuery]; !ok {
		return nil, fmt.Errorf("no handler for %s", model.IntentGeneralQuery)
	}

	cls := deps.Classifier
	if cls == nil {
		cls = classifier.New(nil, nil, 0)
	}
	fus := deps.Fusion
	if fus == nil {
		fus = fusion.New(fusion.DefaultConfig())
	}

	return &Pipeline{
		classifier: cls,
		fusion:     fus,
		table:      deps.Table,
		generator:  deps.Generator,
		sessions:   deps.Sessions,
		observer:   deps.Observer,
		handlers:   handlers,
		sources:    sources,
		ids:        node,
		cfg:        cfg,
	}, nil
}

// Validate checks a request before it is accepted
func Validate(req model.QueryRequest) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return fmt.Errorf("%w: text exceeds %d characters", ErrInvalidRequest, MaxQueryLength)
	}
	if req.IntentHint != "" {
		if _, ok := model.ParseIntent(string(req.IntentHint)); !ok {
			return fmt.Errorf("%w: unknown intent hint %q", ErrInvalidRequest, req.IntentHint)
		}
	}
	for i, t := range req.Context {
		if t.Role != "user" && t.Role != "assistant" {
			return fmt.Errorf("%w: context turn %d has role %q", ErrInvalidRequest, i, t.Role)
		}
	}
	return nil
}

// Stream returns the lazy event sequence of one run. The sequence can be iterated
// once; the consumer may stop early, in which case the run still completes
// without emitting further events.
func (p *Pipeline) Stream(ctx context.Context, req model.QueryRequest) iter.Seq[Event] {
	var used atomic.Bool
	return func(yield func(Event) bool) {
		if used.Swap(true) {
			return
		}
		p.newRun(ctx, req, yield).execute()
	}
}

// Process runs the pipeline to completion and returns only the final result
func (p *Pipeline) Process(ctx context.Context, req model.QueryRequest) (*model.PipelineResult, error) {
	r := p.newRun(ctx, req, func(Event) bool { return true })
	r.execute()
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

func (p *Pipeline) handler(intent model.Intent) Handler {
	if h, ok := p.handlers[intent]; ok {
		return h
	}
	return p.handlers[model.IntentGeneralQuery]
}

// entity turns the focus mention into an entity with its canonical name
func (p *Pipeline) entity(m model.EntityMention) *model.Entity {
	name := m.Text
	if strings.HasPrefix(m.ID, classifier.ConceptIDPrefix) {
		name = strings.TrimPrefix(m.ID, classifier.ConceptIDPrefix)
	} else if p.table != nil {
		if title, ok := p.table.Title(m.ID); ok {
			name = title
		}
	}
	return &model.Entity{ID: m.ID, Name: name, Type: m.Type}
}
