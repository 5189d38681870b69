package graphquery

import (
	"fmt"
	"strings"

	"algomind/src/core/model"
)

// Direction of the relationships a template follows from the focus node
type Direction int

const (
	Outgoing Direction = iota
	Any
)

// Relationship kinds stored in the graph
const (
	RelUsesAlgorithm     = "USES_ALGORITHM"
	RelUsesDataStructure = "USES_DATA_STRUCTURE"
	RelUsesTechnique     = "USES_TECHNIQUE"
	RelSimilarTo         = "SIMILAR_TO"
	RelHasDifficulty     = "HAS_DIFFICULTY"
	RelBelongsToPlatform = "BELONGS_TO_PLATFORM"
	RelRelatedTo         = "RELATED_TO"
	RelPrerequisiteOf    = "PREREQUISITE_OF"
	RelImplementedWith   = "IMPLEMENTED_WITH"
	RelSupports          = "SUPPORTS"
)

// Template describes one traversal shape
type Template struct {
	Name          string
	Label         string // node label of the focus, empty matches any label
	Relationships []string
	Direction     Direction
	MaxDepth      int // 0 means the global bound
}

var defaultTemplate = Template{
	Name:      "generic",
	Direction: Any,
	MaxDepth:  1,
}

var templates = map[model.EntityType]Template{
	model.EntityProblem: {
		Name:  "problem",
		Label: "Problem",
		Relationships: []string{
			RelUsesAlgorithm, RelUsesDataStructure, RelUsesTechnique,
			RelSimilarTo, RelHasDifficulty, RelBelongsToPlatform,
		},
		Direction: Outgoing,
	},
	model.EntityAlgorithm: {
		Name:  "algorithm",
		Label: "Algorithm",
		Relationships: []string{
			RelUsesAlgorithm, RelRelatedTo, RelPrerequisiteOf, RelImplementedWith,
		},
		// USES_ALGORITHM points from problems to the algorithm, so problems are only
		// reachable against the edge direction
		Direction: Any,
	},
	model.EntityDataStructure: {
		Name:  "data_structure",
		Label: "DataStructure",
		Relationships: []string{
			RelUsesDataStructure, RelImplementedWith, RelSupports, RelRelatedTo,
		},
		// incoming USES_DATA_STRUCTURE edges lead to the problems using it
		Direction: Any,
	},
}

// TemplateFor selects the traversal template for an entity type. Unknown types get
// the generic one-hop template.
func TemplateFor(t model.EntityType) Template {
	if tmpl, ok := templates[t]; ok {
		return tmpl
	}
	return defaultTemplate
}

// cypher renders a template. Depth and limit are clamped integers and labels and
// relationship kinds come from the fixed template table, so only the focus values
// travel as parameters.
func cypher(tmpl Template, depth int) string {
	var b strings.Builder

	b.WriteString("MATCH (n")
	if tmpl.Label != "" {
		b.WriteString(":" + tmpl.Label)
	}
	b.WriteString(")\n")
	b.WriteString("WHERE n.id = $id OR toLower(n.name) = toLower($name) OR toLower(n.title) = toLower($name)\n")
	b.WriteString("WITH n LIMIT 1\n")

	single := len(tmpl.Relationships) == 0 && depth == 1
	kinds := ""
	if len(tmpl.Relationships) > 0 {
		kinds = ":" + strings.Join(tmpl.Relationships, "|")
	}
	rel := "[r]"
	if !single {
		rel = fmt.Sprintf("[%s*1..%d]", kinds, depth)
	}
	arrow := "-" + rel + "-"
	if tmpl.Direction == Outgoing {
		arrow += ">"
	}

	if single {
		fmt.Fprintf(&b, "MATCH (n)%s(m)\n", arrow)
	} else {
		fmt.Fprintf(&b, "MATCH p = (n)%s(m)\n", arrow)
		b.WriteString("UNWIND relationships(p) AS r\n")
		b.WriteString("WITH DISTINCT r\n")
	}
	b.WriteString("RETURN startNode(r) AS source, type(r) AS relation, properties(r) AS props, endNode(r) AS target\n")
	b.WriteString("LIMIT $limit")
	return b.String()
}
