package taxonomy

import (
	"slices"
	"sort"
	"strings"

	"github.com/jonathan/talent-match/internal/types"
)

// Resolution is the result of resolving free text to a canonical skill.
type Resolution struct {
	CanonicalID string `json:"canonicalId"`
	Category    string `json:"category"`
}

type entryMeta struct {
	DisplayName string
	Category    string
}

// Snapshot is an immutable view of the taxonomy at one version.
// A nil *Snapshot behaves as an empty taxonomy at version 0.
type Snapshot struct {
	version  int64
	meta     map[string]entryMeta
	synonyms map[string]string
	entries  map[string]types.SkillTaxonomyEntry
	terms    []string
}

// NormalizeKey lowercases s, trims it and collapses internal whitespace.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func buildSnapshot(version int64, meta map[string]entryMeta, synonyms map[string]string) *Snapshot {
	bySkill := make(map[string][]string, len(meta))
	for key, id := range synonyms {
		if key != id {
			bySkill[id] = append(bySkill[id], key)
		}
	}

	entries := make(map[string]types.SkillTaxonomyEntry, len(meta))
	for id, m := range meta {
		syns := bySkill[id]
		sort.Strings(syns)
		if syns == nil {
			syns = []string{}
		}
		entries[id] = types.SkillTaxonomyEntry{
			CanonicalID: id,
			DisplayName: m.DisplayName,
			Category:    m.Category,
			Synonyms:    syns,
		}
	}

	terms := make([]string, 0, len(synonyms))
	for key := range synonyms {
		terms = append(terms, key)
	}
	sort.Strings(terms)

	return &Snapshot{
		version:  version,
		meta:     meta,
		synonyms: synonyms,
		entries:  entries,
		terms:    terms,
	}
}

// Version returns the taxonomy version this snapshot was taken at.
func (s *Snapshot) Version() int64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Resolve maps free text to a canonical skill by exact, case-insensitive match.
func (s *Snapshot) Resolve(raw string) (Resolution, bool) {
	if s == nil {
		return Resolution{}, false
	}
	id, ok := s.synonyms[NormalizeKey(raw)]
	if !ok {
		return Resolution{}, false
	}
	return Resolution{CanonicalID: id, Category: s.meta[id].Category}, true
}

// Canonical re-resolves a stored skill id, returning it unchanged when unknown.
func (s *Snapshot) Canonical(id string) string {
	if res, ok := s.Resolve(id); ok {
		return res.CanonicalID
	}
	return id
}

// Entry returns the entry for a canonical id.
func (s *Snapshot) Entry(id string) (types.SkillTaxonomyEntry, bool) {
	if s == nil {
		return types.SkillTaxonomyEntry{}, false
	}
	entry, ok := s.entries[NormalizeKey(id)]
	if !ok {
		return types.SkillTaxonomyEntry{}, false
	}
	entry.Synonyms = slices.Clone(entry.Synonyms)
	return entry, true
}

// Entries returns all entries sorted by canonical id.
func (s *Snapshot) Entries() []types.SkillTaxonomyEntry {
	if s == nil {
		return []types.SkillTaxonomyEntry{}
	}
	out := make([]types.SkillTaxonomyEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entry.Synonyms = slices.Clone(entry.Synonyms)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CanonicalID < out[j].CanonicalID
	})
	return out
}

// Terms returns every resolvable key (canonical ids and synonyms), sorted.
func (s *Snapshot) Terms() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.terms)
}
