package weaviate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algomind/src/core/embedding"
)

func TestParseObjects(t *testing.T) {
	get := map[string]interface{}{
		"AlgoEntity": []interface{}{
			map[string]interface{}{
				"entityId":    "p1",
				"_additional": map[string]interface{}{"id": "uuid-1", "distance": 0.0},
			},
			map[string]interface{}{
				"entityId":    "p2",
				"_additional": map[string]interface{}{"id": "uuid-2", "distance": 0.25},
			},
			"not an object",
		},
	}

	results := parseObjects(get, "AlgoEntity")
	require.Len(t, results, 2)
	assert.Equal(t, "uuid-2", results[1].ID)
	assert.Equal(t, 0.25, results[1].Distance)
	assert.Equal(t, map[string]interface{}{"entityId": "p2"}, results[1].Properties)

	assert.Nil(t, parseObjects(get, "Other"))
	assert.Nil(t, parseObjects(nil, "AlgoEntity"))
}

func TestToNeighbors(t *testing.T) {
	got := toNeighbors([]QueryResult{
		{Distance: 0, Properties: map[string]interface{}{"entityId": "p1"}},
		{Distance: 0.25, Properties: map[string]interface{}{"entityId": "p2"}},
		{Distance: 0.1, Properties: map[string]interface{}{}},
	})
	assert.Equal(t, []embedding.Neighbor{{ID: "p1", Score: 1}, {ID: "p2", Score: 0.75}}, got)
}

func TestTableObjects(t *testing.T) {
	table, err := embedding.Decode(strings.NewReader(`{
		"dimension": 2,
		"entities": [
			{"id": "b", "title": "B", "type": "Problem", "tags": ["z", "a"], "vector": [0, 1]},
			{"id": "a", "title": "A", "type": "Algorithm", "vector": [1, 0]}
		]
	}`))
	require.NoError(t, err)

	objs := tableObjects(table)
	require.Len(t, objs, 2)
	assert.Equal(t, "a", objs[0].Properties["entityId"])
	assert.Equal(t, []string{"a", "z"}, objs[1].Properties["tags"])
	assert.Equal(t, []float32{0, 1}, objs[1].Vector)
	assert.Equal(t, ObjectID("b"), objs[1].ID)
}

func TestObjectIDIsStable(t *testing.T) {
	assert.Equal(t, ObjectID("lc-1"), ObjectID("lc-1"))
	assert.NotEqual(t, ObjectID("lc-1"), ObjectID("lc-2"))
}

func TestDialRejectsBadURLs(t *testing.T) {
	_, err := Dial("://nope")
	assert.Error(t, err)
	_, err = Dial("localhost")
	assert.Error(t, err)
}
