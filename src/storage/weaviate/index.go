package weaviate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/weaviate/weaviate/entities/models"

	"algomind/src/core/embedding"
	"algomind/src/log"
)

const DefaultClass = "AlgoEntity"

// Property names stored on every entity object
const (
	propEntityID = "entityId"
	propTitle    = "title"
	propType     = "entityType"
	propTags     = "tags"
)

var entityProperties = []*models.Property{
	{Name: propEntityID, DataType: []string{"text"}},
	{Name: propTitle, DataType: []string{"text"}},
	{Name: propType, DataType: []string{"text"}},
	{Name: propTags, DataType: []string{"text[]"}},
}

// NeighborIndex answers nearest-neighbor queries for embedding rows with a
// Weaviate class holding the same vectors
type NeighborIndex struct {
	sdk   *SDK
	class string
	table *embedding.Table
}

func NewNeighborIndex(sdk *SDK, class string, table *embedding.Table) *NeighborIndex {
	if class == "" {
		class = DefaultClass
	}
	return &NeighborIndex{sdk: sdk, class: class, table: table}
}

// Nearest implements similarity.Index. Scores are cosine similarities derived
// from the class's cosine distance.
func (ni *NeighborIndex) Nearest(ctx context.Context, id string, n int) ([]embedding.Neighbor, error) {
	vec, ok := ni.table.Vector(id)
	if !ok || n <= 0 {
		return nil, nil
	}

	results, err := ni.sdk.QueryVectors(ctx, ni.class, vec, QueryConfig{
		Fields: []string{propEntityID},
		Limit:  n,
	})
	if err != nil {
		return nil, err
	}
	return toNeighbors(results), nil
}

func toNeighbors(results []QueryResult) []embedding.Neighbor {
	out := make([]embedding.Neighbor, 0, len(results))
	for _, r := range results {
		id, _ := r.Properties[propEntityID].(string)
		if id == "" {
			continue
		}
		out = append(out, embedding.Neighbor{ID: id, Score: 1 - r.Distance})
	}
	return out
}

// SyncTable writes every row of table into class, creating the class when
// missing. Object ids are derived from entity ids, so a re-sync overwrites.
// progress is called with the number of rows written after each batch.
func (w *SDK) SyncTable(ctx context.Context, class string, table *embedding.Table, batchSize int, progress func(int)) error {
	if class == "" {
		class = DefaultClass
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	err := w.CreateSchema(ctx, class, entityProperties, "none")
	switch {
	case err == nil:
		log.Info("created weaviate class", "class", class)
	case errors.Is(err, ErrClassExists):
	default:
		return err
	}

	batch := make([]VectorObject, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.BatchAddVectors(ctx, class, batch); err != nil {
			return err
		}
		if progress != nil {
			progress(len(batch))
		}
		batch = batch[:0]
		return nil
	}

	for _, obj := range tableObjects(table) {
		batch = append(batch, obj)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("failed to sync embedding table: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("failed to sync embedding table: %w", err)
	}
	return nil
}

// tableObjects converts rows to objects in id order
func tableObjects(table *embedding.Table) []VectorObject {
	entities := table.Entities()
	out := make([]VectorObject, 0, len(entities))
	for _, e := range entities {
		vec, _ := table.Vector(e.ID)
		tags := append([]string{}, e.Tags...)
		sort.Strings(tags)
		out = append(out, VectorObject{
			ID:     ObjectID(e.ID),
			Vector: vec,
			Properties: map[string]interface{}{
				propEntityID: e.ID,
				propTitle:    e.Title,
				propType:     string(e.Type),
				propTags:     tags,
			},
		})
	}
	return out
}
