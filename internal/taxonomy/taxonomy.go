// Package taxonomy provides the versioned skill vocabulary and synonym resolution.
package taxonomy

import (
	_ "embed"
	"maps"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/talent-match/internal/logger"
	"github.com/jonathan/talent-match/internal/types"
)

// DefaultCategory is assigned to entries defined without a category.
const DefaultCategory = "general"

//go:embed seed.yaml
var defaultSeed []byte

// DefaultSeed returns the embedded seed vocabulary.
func DefaultSeed() []byte {
	return defaultSeed
}

// Taxonomy is the mutable vocabulary. Mutations are serialized and publish a
// new immutable Snapshot; readers never block.
type Taxonomy struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	logger  *zap.Logger
}

// New creates an empty taxonomy at version 0.
func New(log *zap.Logger) *Taxonomy {
	t := &Taxonomy{logger: logger.Named(log, "taxonomy")}
	t.current.Store(buildSnapshot(0, map[string]entryMeta{}, map[string]string{}))
	return t
}

// Snapshot returns the current immutable view.
func (t *Taxonomy) Snapshot() *Snapshot {
	return t.current.Load()
}

// Version returns the current taxonomy version.
func (t *Taxonomy) Version() int64 {
	return t.Snapshot().Version()
}

// Resolve resolves raw text against the current snapshot.
func (t *Taxonomy) Resolve(raw string) (Resolution, bool) {
	return t.Snapshot().Resolve(raw)
}

// Entries returns every entry in the current snapshot.
func (t *Taxonomy) Entries() []types.SkillTaxonomyEntry {
	return t.Snapshot().Entries()
}

// Entry returns one entry from the current snapshot.
func (t *Taxonomy) Entry(id string) (types.SkillTaxonomyEntry, bool) {
	return t.Snapshot().Entry(id)
}

type builder struct {
	meta     map[string]entryMeta
	synonyms map[string]string
	logger   *zap.Logger
}

// mutate applies fn to a copy of the current state and publishes a new
// snapshot with version+1 when the state changed.
func (t *Taxonomy) mutate(fn func(b *builder) error) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.current.Load()
	b := &builder{
		meta:     maps.Clone(cur.meta),
		synonyms: maps.Clone(cur.synonyms),
		logger:   t.logger,
	}
	if err := fn(b); err != nil {
		return false, err
	}

	if maps.Equal(b.meta, cur.meta) && maps.Equal(b.synonyms, cur.synonyms) {
		return false, nil
	}

	next := buildSnapshot(cur.version+1, b.meta, b.synonyms)
	t.current.Store(next)
	t.logger.Debug("taxonomy updated", zap.Int64(logger.FieldTaxonomyVersion, next.version))
	return true, nil
}

// bind maps key to id, logging when an existing mapping is overwritten.
func (b *builder) bind(key, id string) error {
	if key == "" {
		return nil
	}
	prev, ok := b.synonyms[key]
	if ok && prev == id {
		return nil
	}
	if _, isCanonical := b.meta[key]; isCanonical && key != id {
		return &InvalidEntryError{Field: "synonym", Message: "cannot remap canonical id " + key}
	}
	if ok {
		b.logger.Warn("taxonomy conflict",
			zap.String("synonym", key),
			zap.String("previous", prev),
			zap.String("canonical_id", id))
	}
	b.synonyms[key] = id
	return nil
}

// put records the entry's metadata and self-mapping and returns its id.
func (b *builder) put(entry types.SkillTaxonomyEntry) (string, error) {
	id := NormalizeKey(entry.CanonicalID)
	if id == "" {
		return "", &InvalidEntryError{Field: "canonicalId", Message: "must not be empty"}
	}

	display := entry.DisplayName
	if NormalizeKey(display) == "" {
		display = entry.CanonicalID
	}
	category := NormalizeKey(entry.Category)
	if category == "" {
		category = DefaultCategory
	}

	// The id may previously have been a synonym of another entry.
	if prev, ok := b.synonyms[id]; ok && prev != id {
		b.logger.Warn("taxonomy conflict",
			zap.String("synonym", id),
			zap.String("previous", prev),
			zap.String("canonical_id", id))
	}
	b.meta[id] = entryMeta{DisplayName: display, Category: category}
	b.synonyms[id] = id
	return id, nil
}

func (b *builder) define(entry types.SkillTaxonomyEntry) error {
	id, err := b.put(entry)
	if err != nil {
		return err
	}

	// Replacing an entry replaces its synonym set.
	for key, target := range b.synonyms {
		if target == id && key != id {
			delete(b.synonyms, key)
		}
	}

	if err := b.bind(NormalizeKey(display), id); err != nil {
		return err
	}
	for _, syn := range entry.Synonyms {
		if err := b.bind(NormalizeKey(syn), id); err != nil {
			return err
		}
	}
	return nil
}

// Define adds or replaces an entry. Synonyms claimed by other entries move to
// this one and are logged as conflicts.
func (t *Taxonomy) Define(entry types.SkillTaxonomyEntry) (bool, error) {
	return t.mutate(func(b *builder) error {
		return b.define(entry)
	})
}

// Register maps synonym to an existing canonical id. The last write wins.
func (t *Taxonomy) Register(synonym, canonicalID string) (bool, error) {
	key := NormalizeKey(synonym)
	if key == "" {
		return false, &InvalidEntryError{Field: "synonym", Message: "must not be empty"}
	}
	id := NormalizeKey(canonicalID)

	return t.mutate(func(b *builder) error {
		if _, ok := b.meta[id]; !ok {
			return &UnknownSkillError{CanonicalID: canonicalID}
		}
		return b.bind(key, id)
	})
}

// Restore replaces the whole vocabulary with persisted entries at the given version.
func (t *Taxonomy) Restore(entries []types.SkillTaxonomyEntry, version int64) error {
	b := &builder{
		meta:     map[string]entryMeta{},
		synonyms: map[string]string{},
		logger:   zap.NewNop(),
	}
	// Only persisted synonym lists are bound; a display-name key may belong
	// to another entry.
	ids := make([]string, len(entries))
	for i, entry := range entries {
		id, err := b.put(entry)
		if err != nil {
			return err
		}
		ids[i] = id
	}
	for i, entry := range entries {
		for _, syn := range entry.Synonyms {
			if err := b.bind(NormalizeKey(syn), ids[i]); err != nil {
				return err
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.Store(buildSnapshot(version, b.meta, b.synonyms))
	return nil
}

type seedFile struct {
	Skills []types.SkillTaxonomyEntry `yaml:"skills"`
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) ([]types.SkillTaxonomyEntry, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, &SeedError{Message: "failed to parse seed", Cause: err}
	}
	if len(seed.Skills) == 0 {
		return nil, &SeedError{Message: "seed defines no skills"}
	}
	return seed.Skills, nil
}

// LoadSeed defines every entry in a YAML seed as a single version bump.
func (t *Taxonomy) LoadSeed(data []byte) (bool, error) {
	entries, err := ParseSeed(data)
	if err != nil {
		return false, err
	}
	return t.mutate(func(b *builder) error {
		for _, entry := range entries {
			if err := b.define(entry); err != nil {
				return err
			}
		}
		return nil
	})
}
