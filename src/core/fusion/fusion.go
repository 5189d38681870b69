// Package fusion merges graph-store matches, similarity recommendations and static
// knowledge into one deduplicated GraphData centered on the focus entity.
package fusion

import (
	"fmt"
	"strings"

	"algomind/src/core/graphquery"
	"algomind/src/core/knowledgebase"
	"algomind/src/core/model"
)

// Edge labels for sources that carry no relationship of their own
const (
	RelRelatedTo    = "RELATED_TO"
	RelExampleOf    = "EXAMPLE_OF"
	RelHasPrinciple = "HAS_PRINCIPLE"
)

// Layout hints
const (
	LayoutForce  = "force"
	LayoutRadial = "radial"
)

// Node types for nodes not sourced from the graph store
const (
	TypeRecommendation = "Recommendation"
	TypeExample        = "Example"
	TypePrinciple      = "Principle"
)

// Config caps the number of nodes each source may add
type Config struct {
	MaxGraphNodes          int
	MaxRecommendationNodes int
	MaxExampleNodes        int
	MaxPrincipleNodes      int
}

func DefaultConfig() Config {
	return Config{
		MaxGraphNodes:          graphquery.DefaultMaxLimit,
		MaxRecommendationNodes: 5,
		MaxExampleNodes:        3,
		MaxPrincipleNodes:      3,
	}
}

// Fallback is the static knowledge attached to the focus entity
type Fallback struct {
	Examples   []string
	Principles []string
}

// Empty reports whether the fallback has nothing to contribute
func (f Fallback) Empty() bool {
	return len(f.Examples) == 0 && len(f.Principles) == 0
}

// FromConcept extracts the fallback entries of a catalog concept
func FromConcept(c knowledgebase.Concept) Fallback {
	return Fallback{Examples: c.Examples, Principles: c.Principles}
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Fuse builds the response graph. Sources are applied in order: graph matches,
// recommendations, fallback examples, fallback principles. It returns nil when the
// result would hold a single node or no edges.
func (e *Engine) Fuse(focus model.Entity, graph graphquery.Result, recs []model.RecommendationItem, fallback Fallback) *model.GraphData {
	b := newBuilder(focus)

	graphNodes := b.addGraph(focus, graph.Triples, e.cfg.MaxGraphNodes)

	added := 0
	for _, rec := range recs {
		props := map[string]any{
			"strength": rec.Score,
			"source":   rec.Source,
		}
		nodeProps := map[string]any{
			"score":  rec.Score,
			"tags":   append([]string{}, rec.Tags...),
			"source": rec.Source,
		}
		if rec.ID != "" {
			nodeProps["entity_id"] = rec.ID
		}
		if b.attach(rec.Title, TypeRecommendation, nodeProps, RelRelatedTo, props, added < e.cfg.MaxRecommendationNodes) {
			added++
		}
	}

	b.attachStatic(fallback.Examples, TypeExample, RelExampleOf, e.cfg.MaxExampleNodes)
	b.attachStatic(fallback.Principles, TypePrinciple, RelHasPrinciple, e.cfg.MaxPrincipleNodes)

	if len(b.nodes) <= 1 || len(b.edges) == 0 {
		return nil
	}

	layout := LayoutRadial
	if graphNodes > 0 {
		layout = LayoutForce
	}
	return &model.GraphData{
		Nodes:    b.nodes,
		Edges:    b.edges,
		CenterID: b.centerID,
		Layout:   layout,
	}
}

type edgeKey struct {
	source, target, label string
}

type builder struct {
	centerID string
	nodes    []model.GraphNode
	edges    []model.GraphEdge
	byKey    map[string]string // lower-cased label -> node id
	edgeSeen map[edgeKey]bool
	seq      int
}

func newBuilder(focus model.Entity) *builder {
	anchor := focus.ID
	if anchor == "" {
		anchor = semanticKey(focus.Name)
	}
	b := &builder{
		centerID: "center:" + anchor,
		byKey:    make(map[string]string),
		edgeSeen: make(map[edgeKey]bool),
	}

	props := map[string]any{}
	if focus.ID != "" {
		props["entity_id"] = focus.ID
	}
	b.nodes = append(b.nodes, model.GraphNode{
		ID:         b.centerID,
		Label:      focus.Name,
		Type:       string(focus.Type),
		Properties: props,
		IsCenter:   true,
	})
	b.byKey[semanticKey(focus.Name)] = b.centerID
	return b
}

// semanticKey is the deduplication key of a node label
func semanticKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// node returns the id of the node with label, creating it when allowed
func (b *builder) node(label, typ string, props map[string]any, allowNew bool) (id string, created, ok bool) {
	key := semanticKey(label)
	if key == "" {
		return "", false, false
	}
	if id, ok := b.byKey[key]; ok {
		return id, false, true
	}
	if !allowNew {
		return "", false, false
	}

	b.seq++
	id = fmt.Sprintf("n%d", b.seq)
	b.byKey[key] = id
	b.nodes = append(b.nodes, model.GraphNode{ID: id, Label: label, Type: typ, Properties: props})
	return id, true, true
}

func (b *builder) edge(source, target, label string, props map[string]any) {
	if source == target {
		return
	}
	k := edgeKey{source, target, label}
	if b.edgeSeen[k] {
		return
	}
	b.edgeSeen[k] = true
	b.edges = append(b.edges, model.GraphEdge{Source: source, Target: target, Label: label, Properties: props})
}

// attach links a center-adjacent node and reports whether a new node was created
func (b *builder) attach(label, typ string, nodeProps map[string]any, rel string, edgeProps map[string]any, allowNew bool) bool {
	id, created, ok := b.node(label, typ, nodeProps, allowNew)
	if !ok {
		return false
	}
	b.edge(b.centerID, id, rel, edgeProps)
	return created
}

func (b *builder) attachStatic(labels []string, typ, rel string, max int) {
	added := 0
	for _, label := range labels {
		props := map[string]any{"source": model.SourceStatic}
		if b.attach(label, typ, props, rel, map[string]any{"source": model.SourceStatic}, added < max) {
			added++
		}
	}
}

// addGraph keeps the store's topology with endpoints remapped to response ids. The
// focus node of the store maps onto the center. A triple is kept only when both of its
// endpoints fit under max, so every added node carries at least one edge. It returns
// the number of nodes added.
func (b *builder) addGraph(focus model.Entity, triples []graphquery.Triple, max int) int {
	ids := make(map[string]string) // store node id -> response id
	if focus.ID != "" {
		ids[focus.ID] = b.centerID
	}

	lookup := func(n graphquery.Node) (id string, known, ok bool) {
		if id, ok := ids[n.ID]; ok {
			return id, true, true
		}
		key := semanticKey(n.Label)
		if key == "" {
			return "", false, false
		}
		if id, ok := b.byKey[key]; ok {
			ids[n.ID] = id
			return id, true, true
		}
		return "", false, true
	}

	added := 0
	create := func(n graphquery.Node) string {
		props := copyProps(n.Properties)
		props["source"] = model.SourceGraph
		id, _, _ := b.node(n.Label, n.Type, props, true)
		ids[n.ID] = id
		added++
		return id
	}

	for _, t := range triples {
		src, srcKnown, ok := lookup(t.Source)
		if !ok {
			continue
		}
		dst, dstKnown, ok := lookup(t.Target)
		if !ok {
			continue
		}

		need := 0
		switch {
		case srcKnown && dstKnown:
			if src == dst {
				continue
			}
		case !srcKnown && !dstKnown:
			if semanticKey(t.Source.Label) == semanticKey(t.Target.Label) {
				continue
			}
			need = 2
		default:
			need = 1
		}
		if added+need > max {
			continue
		}

		if !srcKnown {
			src = create(t.Source)
		}
		if !dstKnown {
			dst = create(t.Target)
		}
		props := copyProps(t.Properties)
		props["source"] = model.SourceGraph
		b.edge(src, dst, t.Relation, props)
	}
	return added
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
