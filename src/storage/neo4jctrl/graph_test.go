package neo4jctrl

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
)

func TestConvertNode(t *testing.T) {
	tests := []struct {
		name      string
		node      neo4j.Node
		wantID    string
		wantLabel string
		wantType  string
	}{
		{
			name:      "domain id and name",
			node:      neo4j.Node{ElementId: "4:abc:1", Labels: []string{"Problem"}, Props: map[string]any{"id": "lc-1", "name": "两数之和"}},
			wantID:    "lc-1",
			wantLabel: "两数之和",
			wantType:  "Problem",
		},
		{
			name:      "title fallback",
			node:      neo4j.Node{ElementId: "4:abc:2", Labels: []string{"Algorithm", "Concept"}, Props: map[string]any{"title": "Greedy"}},
			wantID:    "4:abc:2",
			wantLabel: "Greedy",
			wantType:  "Algorithm",
		},
		{
			name:      "bare node",
			node:      neo4j.Node{ElementId: "4:abc:3"},
			wantID:    "4:abc:3",
			wantLabel: "4:abc:3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertNode(tt.node)
			assert.Equal(t, tt.wantID, got.ID)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.Equal(t, tt.wantType, got.Type)
			assert.NotNil(t, got.Properties)
		})
	}
}

func TestRecordHelpers(t *testing.T) {
	record := &neo4j.Record{
		Keys:   []string{"relation", "props", "source"},
		Values: []any{"USES_ALGORITHM", map[string]any{"weight": 0.5}, "not a node"},
	}

	assert.Equal(t, "USES_ALGORITHM", getStringFromRecord(record, "relation"))
	assert.Equal(t, "", getStringFromRecord(record, "missing"))
	assert.Equal(t, map[string]any{"weight": 0.5}, getMapFromRecord(record, "props"))
	assert.Equal(t, map[string]any{}, getMapFromRecord(record, "relation"))

	_, ok := getNodeFromRecord(record, "source")
	assert.False(t, ok)
}
