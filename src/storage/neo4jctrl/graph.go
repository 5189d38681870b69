package neo4jctrl

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"algomind/src/core/graphquery"
)

// GraphStore executes traversals against Neo4j
type GraphStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewGraphStore creates a driver for uri. The driver connects lazily.
func NewGraphStore(uri, user, password, database string) (*GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &GraphStore{driver: driver, database: database}, nil
}

// RunQuery implements graphquery.Store
func (s *GraphStore) RunQuery(ctx context.Context, spec graphquery.TraversalSpec) ([]graphquery.Triple, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, spec.Cypher, spec.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to run traversal %s: %w", spec.Template, err)
	}

	var triples []graphquery.Triple
	for result.Next(ctx) {
		record := result.Record()
		source, ok := getNodeFromRecord(record, "source")
		if !ok {
			continue
		}
		target, ok := getNodeFromRecord(record, "target")
		if !ok {
			continue
		}
		triples = append(triples, graphquery.Triple{
			Source:     source,
			Relation:   getStringFromRecord(record, "relation"),
			Properties: getMapFromRecord(record, "props"),
			Target:     target,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read traversal results: %w", err)
	}

	return triples, nil
}

// Ping verifies connectivity to the server
func (s *GraphStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close releases the driver
func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func getNodeFromRecord(record *neo4j.Record, key string) (graphquery.Node, bool) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return graphquery.Node{}, false
	}
	node, ok := val.(neo4j.Node)
	if !ok {
		return graphquery.Node{}, false
	}
	return convertNode(node), true
}

// convertNode prefers the domain id and name properties over the server element id
func convertNode(node neo4j.Node) graphquery.Node {
	props := node.Props
	if props == nil {
		props = map[string]any{}
	}

	id := stringProp(props, "id")
	if id == "" {
		id = node.ElementId
	}
	label := stringProp(props, "name")
	if label == "" {
		label = stringProp(props, "title")
	}
	if label == "" {
		label = id
	}
	typ := ""
	if len(node.Labels) > 0 {
		typ = node.Labels[0]
	}

	return graphquery.Node{ID: id, Label: label, Type: typ, Properties: props}
}

func stringProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getMapFromRecord(record *neo4j.Record, key string) map[string]any {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return map[string]any{}
	}
	if m, ok := val.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
