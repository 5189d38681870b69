package classifier

import (
	"sort"
	"strings"
	"unicode"

	"algomind/src/core/embedding"
	"algomind/src/core/knowledgebase"
	"algomind/src/core/model"
)

// ConceptIDPrefix marks ids of catalog concepts that have no embedding row
const ConceptIDPrefix = "concept:"

// Entry is one surface form the lexicon recognizes
type Entry struct {
	Name string
	ID   string
	Type model.EntityType
}

type span struct {
	start, end int // rune offsets, end exclusive
	entry      *Entry
}

// Lexicon finds known entity names in free text
type Lexicon struct {
	entries []Entry
	byFirst map[rune][]int // candidates per first rune, longest name first
	names   [][]rune       // lower-cased names parallel to entries
	byName  map[string]int
}

// NewLexicon indexes entries. When two entries share a name the first one wins.
func NewLexicon(entries []Entry) *Lexicon {
	l := &Lexicon{
		byFirst: make(map[rune][]int),
		byName:  make(map[string]int),
	}
	for _, e := range entries {
		name := lowerRunes(strings.TrimSpace(e.Name))
		if len(name) == 0 || e.ID == "" {
			continue
		}
		key := string(name)
		if _, dup := l.byName[key]; dup {
			continue
		}
		idx := len(l.entries)
		l.entries = append(l.entries, e)
		l.names = append(l.names, name)
		l.byName[key] = idx
		l.byFirst[name[0]] = append(l.byFirst[name[0]], idx)
	}
	for r, idxs := range l.byFirst {
		sort.SliceStable(idxs, func(i, j int) bool {
			return len(l.names[idxs[i]]) > len(l.names[idxs[j]])
		})
		l.byFirst[r] = idxs
	}
	return l
}

// BuildLexicon combines embedding titles and catalog names. A catalog concept whose
// name or alias is also an embedding title shares that row's id.
func BuildLexicon(table *embedding.Table, catalog *knowledgebase.Catalog) *Lexicon {
	var entries []Entry
	if table != nil {
		for _, e := range table.Entities() {
			entries = append(entries, Entry{Name: e.Title, ID: e.ID, Type: e.Type})
		}
	}
	for _, c := range catalog.Entries() {
		id := ConceptIDPrefix + c.Name
		if table != nil {
			for _, name := range c.Names() {
				if tid, ok := table.IDForTitle(name); ok {
					id = tid
					break
				}
			}
		}
		for _, name := range c.Names() {
			entries = append(entries, Entry{Name: name, ID: id, Type: c.Type})
		}
	}
	return NewLexicon(entries)
}

// Len returns the number of distinct surface forms
func (l *Lexicon) Len() int { return len(l.entries) }

// Lookup resolves an exact name, ignoring case
func (l *Lexicon) Lookup(name string) (Entry, bool) {
	idx, ok := l.byName[string(lowerRunes(strings.TrimSpace(name)))]
	if !ok {
		return Entry{}, false
	}
	return l.entries[idx], true
}

// Scan returns the mentions in text in order of first occurrence. Matching is
// greedy left to right, longest name first, and never overlaps. A canonical id is
// reported once.
func (l *Lexicon) Scan(text string) []model.EntityMention {
	spans := l.spans(text)
	src := []rune(text)
	seen := make(map[string]bool)
	var out []model.EntityMention
	for _, s := range spans {
		if seen[s.entry.ID] {
			continue
		}
		seen[s.entry.ID] = true
		out = append(out, model.EntityMention{
			Text: string(src[s.start:s.end]),
			ID:   s.entry.ID,
			Type: s.entry.Type,
		})
	}
	return out
}

func (l *Lexicon) spans(text string) []span {
	lower := lowerRunes(text)
	var out []span
	for i := 0; i < len(lower); {
		matched := false
		for _, idx := range l.byFirst[lower[i]] {
			name := l.names[idx]
			end := i + len(name)
			if end > len(lower) || !equalRunes(lower[i:end], name) {
				continue
			}
			if !boundaryOK(lower, i, end) {
				continue
			}
			out = append(out, span{start: i, end: end, entry: &l.entries[idx]})
			i = end
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	return out
}

// boundaryOK rejects latin matches glued to other latin letters or digits so that
// "dp" does not match inside "dpkg". CJK names need no boundary.
func boundaryOK(text []rune, start, end int) bool {
	if isWordRune(text[start]) && start > 0 && isWordRune(text[start-1]) {
		return false
	}
	if isWordRune(text[end-1]) && end < len(text) && isWordRune(text[end]) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func lowerRunes(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
