package embedding

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"sort"
	"strings"
	"sync"

	"algomind/src/core/model"
	"algomind/src/fsutil"
	"algomind/src/log"
)

var (
	ErrArtifactNotFound  = errors.New("embedding artifact not found")
	ErrArtifactMalformed = errors.New("embedding artifact malformed")
)

// artifact is the on-disk layout of the embedding table
type artifact struct {
	Dimension int              `json:"dimension"`
	Entities  []artifactEntity `json:"entities"`
}

type artifactEntity struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Type   string    `json:"type"`
	Tags   []string  `json:"tags"`
	Vector []float32 `json:"vector"`
}

// Load reads and validates the artifact at path. Progress, when not nil, receives
// every byte read from the file.
func Load(store fsutil.FileStore, path string, progress io.Writer) (*Table, error) {
	rc, err := store.ReadFileAsStream(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("failed to open embedding artifact: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if progress != nil {
		r = io.TeeReader(rc, progress)
	}
	return Decode(r)
}

// Decode parses an artifact from r and builds the table
func Decode(r io.Reader) (*Table, error) {
	var a artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactMalformed, err)
	}
	return build(a)
}

func build(a artifact) (*Table, error) {
	if a.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrArtifactMalformed, a.Dimension)
	}
	if len(a.Entities) == 0 {
		return nil, fmt.Errorf("%w: no entities", ErrArtifactMalformed)
	}

	rows := make([]artifactEntity, len(a.Entities))
	copy(rows, a.Entities)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	t := &Table{
		dim:      a.Dimension,
		entities: make([]Entity, len(rows)),
		vectors:  make([][]float32, len(rows)),
		norms:    make([]float64, len(rows)),
		index:    make(map[string]int, len(rows)),
		byTitle:  make(map[string]string, len(rows)),
	}

	for i, row := range rows {
		if row.ID == "" {
			return nil, fmt.Errorf("%w: entity %d has an empty id", ErrArtifactMalformed, i)
		}
		if _, dup := t.index[row.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrArtifactMalformed, row.ID)
		}
		title := strings.TrimSpace(row.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: entity %q has an empty title", ErrArtifactMalformed, row.ID)
		}
		key := strings.ToLower(title)
		if other, dup := t.byTitle[key]; dup {
			return nil, fmt.Errorf("%w: title %q used by %q and %q", ErrArtifactMalformed, title, other, row.ID)
		}
		if len(row.Vector) != a.Dimension {
			return nil, fmt.Errorf("%w: entity %q has %d components, want %d",
				ErrArtifactMalformed, row.ID, len(row.Vector), a.Dimension)
		}
		for _, x := range row.Vector {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return nil, fmt.Errorf("%w: entity %q has a non-finite component", ErrArtifactMalformed, row.ID)
			}
		}

		tags := row.Tags
		if tags == nil {
			tags = []string{}
		}
		t.entities[i] = Entity{ID: row.ID, Title: title, Type: model.ParseEntityType(row.Type), Tags: tags}
		t.vectors[i] = row.Vector
		t.norms[i] = norm(row.Vector)
		t.index[row.ID] = i
		t.byTitle[key] = row.ID
	}

	return t, nil
}

var (
	sharedOnce  sync.Once
	sharedTable *Table
	sharedErr   error
)

// Shared loads the process-wide table on first use. Later calls return the same
// table (or the same error) regardless of their arguments.
func Shared(store fsutil.FileStore, path string, progress io.Writer) (*Table, error) {
	sharedOnce.Do(func() {
		sharedTable, sharedErr = Load(store, path, progress)
		if sharedErr == nil {
			log.Info("embedding table loaded", "path", path, "entities", sharedTable.Len(), "dimension", sharedTable.Dimension())
		}
	})
	return sharedTable, sharedErr
}
