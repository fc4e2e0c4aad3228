// Package types provides type definitions for structured data used throughout the matching engine.
//
//nolint:revive // types is a standard Go package name pattern
package types

// SkillTaxonomyEntry is one canonical skill and the synonyms that resolve to it.
type SkillTaxonomyEntry struct {
	CanonicalID string   `json:"canonicalId" yaml:"id"`
	DisplayName string   `json:"displayName" yaml:"name"`
	Category    string   `json:"category" yaml:"category"`
	Synonyms    []string `json:"synonyms" yaml:"synonyms"`
}
