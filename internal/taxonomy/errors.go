package taxonomy

import "fmt"

// UnknownSkillError is returned when a synonym targets a canonical id that is not defined.
type UnknownSkillError struct {
	CanonicalID string
}

func (e *UnknownSkillError) Error() string {
	return fmt.Sprintf("unknown canonical skill: %s", e.CanonicalID)
}

// InvalidEntryError is returned for structurally invalid taxonomy mutations.
type InvalidEntryError struct {
	Field   string
	Message string
}

func (e *InvalidEntryError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid taxonomy entry in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid taxonomy entry: %s", e.Message)
}

// SeedError wraps failures to parse a seed document.
type SeedError struct {
	Message string
	Cause   error
}

func (e *SeedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("taxonomy seed error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("taxonomy seed error: %s", e.Message)
}

func (e *SeedError) Unwrap() error {
	return e.Cause
}
