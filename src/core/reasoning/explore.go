package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"algomind/src/core/classifier"
	"algomind/src/core/fusion"
	"algomind/src/core/model"
)

var ErrUnknownEntity = errors.New("unknown entity")

// ResolveEntity finds the entity named by key, which may be an embedding id, an
// embedding title or a catalog concept name or alias
func (p *Pipeline) ResolveEntity(key string) (model.Entity, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return model.Entity{}, false
	}
	if p.table != nil {
		id := key
		if !p.table.Has(id) {
			id, _ = p.table.IDForTitle(key)
		}
		if e, ok := p.table.Entity(id); ok {
			return model.Entity{ID: e.ID, Name: e.Title, Type: e.Type}, true
		}
	}
	if p.sources.Catalog != nil {
		if c, ok := p.sources.Catalog.Lookup(key); ok {
			return model.Entity{ID: classifier.ConceptIDPrefix + c.Name, Name: c.Name, Type: c.Type}, true
		}
	}
	return model.Entity{}, false
}

// EntityGraph fuses the graph neighborhood of one entity. Unknown names are still
// looked up in the graph store by name. The result is nil when there is nothing
// worth drawing.
func (p *Pipeline) EntityGraph(ctx context.Context, key string, typ model.EntityType, depth, limit int) *model.GraphData {
	focus, ok := p.ResolveEntity(key)
	if !ok {
		focus = model.Entity{Name: strings.TrimSpace(key), Type: model.EntityUnknown}
	}
	if typ != "" && typ != model.EntityUnknown {
		focus.Type = typ
	}
	if depth <= 0 {
		depth = p.sources.GraphDepth
	}
	if limit <= 0 {
		limit = p.sources.GraphLimit
	}
	if p.sources.Graph == nil || focus.Name == "" {
		return nil
	}

	res := p.sources.Graph.BuildAndRun(context.WithoutCancel(ctx), focus, focus.Type, depth, limit)
	return p.fusion.Fuse(focus, res, nil, fusion.Fallback{})
}

// Similar recommends up to k entities close to the embedding row id
func (p *Pipeline) Similar(ctx context.Context, id string, k int) ([]model.RecommendationItem, error) {
	if p.table == nil || !p.table.Has(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	if k <= 0 {
		k = p.sources.TopK
	}
	if p.sources.Similarity == nil {
		return []model.RecommendationItem{}, nil
	}
	return p.sources.Similarity.Recommend(context.WithoutCancel(ctx), id, k), nil
}

// Ready reports which knowledge sources are configured
func (p *Pipeline) Ready() map[string]bool {
	return map[string]bool{
		"embedding":  p.table != nil,
		"graph":      p.sources.Graph != nil,
		"similarity": p.sources.Similarity != nil,
		"catalog":    p.sources.Catalog != nil,
		"generator":  p.generator != nil,
	}
}
