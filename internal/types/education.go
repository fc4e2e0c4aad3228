// Package types provides type definitions for structured data used throughout the matching engine.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"fmt"
)

// EducationLevel is an ordinal education enum. Higher values dominate lower ones.
type EducationLevel int

// Education levels in ascending order. EducationUnspecified means "not stated".
const (
	EducationUnspecified EducationLevel = iota
	EducationHighSchool
	EducationAssociate
	EducationBachelor
	EducationMaster
	EducationPhD
)

var educationNames = [...]string{
	EducationUnspecified: "",
	EducationHighSchool:  "high_school",
	EducationAssociate:   "associate",
	EducationBachelor:    "bachelor",
	EducationMaster:      "master",
	EducationPhD:         "phd",
}

// String returns the canonical lowercase name, or "" when unspecified.
func (e EducationLevel) String() string {
	if e < EducationUnspecified || e > EducationPhD {
		return fmt.Sprintf("EducationLevel(%d)", int(e))
	}
	return educationNames[e]
}

// Ordinal returns the numeric rank used in scoring.
func (e EducationLevel) Ordinal() int {
	return int(e)
}

// Valid reports whether e is one of the defined levels.
func (e EducationLevel) Valid() bool {
	return e >= EducationUnspecified && e <= EducationPhD
}

// ParseEducationLevel parses a canonical education name. Only the exact canonical
// spellings are accepted here; free-text synonyms are handled by the normalizer.
func ParseEducationLevel(s string) (EducationLevel, bool) {
	for level, name := range educationNames {
		if name == s {
			return EducationLevel(level), true
		}
	}
	return EducationUnspecified, false
}

// MarshalJSON encodes the level as its canonical name.
func (e EducationLevel) MarshalJSON() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("invalid education level %d", int(e))
	}
	return json.Marshal(e.String())
}

// UnmarshalJSON decodes a canonical name. null decodes to unspecified.
func (e *EducationLevel) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = EducationUnspecified
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("education level must be a string: %w", err)
	}
	level, ok := ParseEducationLevel(s)
	if !ok {
		return fmt.Errorf("unknown education level %q", s)
	}
	*e = level
	return nil
}
