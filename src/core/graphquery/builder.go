// Package graphquery turns a focus entity into a bounded graph traversal and runs it
// against the graph store. Store failures never escape: they yield an empty result.
package graphquery

import (
	"context"
	"time"

	"algomind/src/core/model"
	"algomind/src/log"
)

const (
	MinDepth        = 1
	MaxDepth        = 5
	DefaultMaxLimit = 50
	DefaultDepth    = 2
)

// Node is a graph-store node
type Node struct {
	ID         string
	Label      string
	Type       string
	Properties map[string]any
}

// Triple is one (node, relationship, node) match
type Triple struct {
	Source     Node
	Relation   string
	Properties map[string]any
	Target     Node
}

// TraversalSpec is everything the store needs to execute one traversal
type TraversalSpec struct {
	Template string
	Focus    model.Entity
	Depth    int
	Limit    int
	Cypher   string
	Params   map[string]any
}

// Store is the graph-store capability
type Store interface {
	RunQuery(ctx context.Context, spec TraversalSpec) ([]Triple, error)
}

// Result is the outcome of one traversal. Degraded is set when the store failed or
// timed out and the triples are therefore empty.
type Result struct {
	Spec     TraversalSpec
	Triples  []Triple
	Degraded bool
}

// Empty reports whether the traversal matched nothing
func (r Result) Empty() bool { return len(r.Triples) == 0 }

// Nodes returns the distinct nodes of the result in first-seen order
func (r Result) Nodes() []Node {
	seen := make(map[string]bool)
	var out []Node
	for _, t := range r.Triples {
		for _, n := range []Node{t.Source, t.Target} {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			out = append(out, n)
		}
	}
	return out
}

type Config struct {
	MaxLimit int
	Timeout  time.Duration
}

type Builder struct {
	store Store
	cfg   Config
}

func NewBuilder(store Store, cfg Config) *Builder {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	return &Builder{store: store, cfg: cfg}
}

// Build clamps the bounds and renders the traversal for focus
func (b *Builder) Build(focus model.Entity, entityType model.EntityType, depth, limit int) TraversalSpec {
	tmpl := TemplateFor(entityType)

	depth = clampInt(depth, MinDepth, MaxDepth)
	if tmpl.MaxDepth > 0 && depth > tmpl.MaxDepth {
		depth = tmpl.MaxDepth
	}
	if limit <= 0 || limit > b.cfg.MaxLimit {
		limit = b.cfg.MaxLimit
	}

	return TraversalSpec{
		Template: tmpl.Name,
		Focus:    focus,
		Depth:    depth,
		Limit:    limit,
		Cypher:   cypher(tmpl, depth),
		Params: map[string]any{
			"id":    focus.ID,
			"name":  focus.Name,
			"limit": int64(limit),
		},
	}
}

// BuildAndRun builds the traversal and executes it. It never returns an error: a
// missing store, a store error or a timeout all produce an empty result.
func (b *Builder) BuildAndRun(ctx context.Context, focus model.Entity, entityType model.EntityType, depth, limit int) Result {
	spec := b.Build(focus, entityType, depth, limit)
	res := Result{Spec: spec}
	if b.store == nil {
		return res
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	triples, err := b.store.RunQuery(ctx, spec)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Error(err, "graph query failed, continuing without graph results",
			"entity", focus.Name, "template", spec.Template, "elapsed", time.Since(start).String())
		res.Degraded = true
		return res
	}

	if len(triples) > spec.Limit {
		triples = triples[:spec.Limit]
	}
	res.Triples = triples
	log.Debug("graph query finished", "entity", focus.Name, "template", spec.Template,
		"triples", len(triples), "elapsed", time.Since(start).String())
	return res
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
