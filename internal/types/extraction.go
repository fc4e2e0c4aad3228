// Package types provides type definitions for structured data used throughout the matching engine.
//
//nolint:revive // types is a standard Go package name pattern
package types

// ExtractionStatus describes how an extraction attempt ended.
type ExtractionStatus string

// Extraction outcomes. Only ExtractionOK means the draft is considered complete.
const (
	ExtractionOK                ExtractionStatus = "ok"
	ExtractionLowConfidence     ExtractionStatus = "low_confidence"
	ExtractionUnsupportedFormat ExtractionStatus = "unsupported_format"
	ExtractionTimeout           ExtractionStatus = "timeout"
	ExtractionCancelled         ExtractionStatus = "cancelled"
	ExtractionFailed            ExtractionStatus = "failed"
)

// EducationEntry is one education line found in a document.
type EducationEntry struct {
	Degree      string `json:"degree,omitempty"`
	Institution string `json:"institution,omitempty"`
	Year        int    `json:"year,omitempty"`
}

// WorkExperience is one employment entry found in a document.
type WorkExperience struct {
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	Duration    string `json:"duration,omitempty"`
	Description string `json:"description,omitempty"`
}

// ExtractionDraft is a best-effort, unvalidated suggestion for profile fields.
// It is never written to a profile without explicit user confirmation.
type ExtractionDraft struct {
	Headline           *string          `json:"headline,omitempty"`
	CurrentPosition    *string          `json:"currentPosition,omitempty"`
	CurrentCompany     *string          `json:"currentCompany,omitempty"`
	YearsOfExperience  *int             `json:"yearsOfExperience,omitempty"`
	EducationLevel     *string          `json:"educationLevel,omitempty"`
	Skills             []string         `json:"skills,omitempty"`
	PreferredLocations []string         `json:"preferredLocations,omitempty"`
	Education          []EducationEntry `json:"education,omitempty"`
	WorkExperience     []WorkExperience `json:"workExperience,omitempty"`

	Status       ExtractionStatus `json:"extractionStatus"`
	Partial      bool             `json:"partial"`
	DocumentHash string           `json:"documentHash,omitempty"`
	Extractor    string           `json:"extractor,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// FieldCount returns how many top-level profile fields the draft carries.
func (d *ExtractionDraft) FieldCount() int {
	if d == nil {
		return 0
	}
	count := 0
	for _, present := range []bool{
		d.Headline != nil,
		d.CurrentPosition != nil,
		d.CurrentCompany != nil,
		d.YearsOfExperience != nil,
		d.EducationLevel != nil,
		len(d.Skills) > 0,
		len(d.PreferredLocations) > 0,
	} {
		if present {
			count++
		}
	}
	return count
}

// ClearFields drops every extracted field while keeping status metadata.
func (d *ExtractionDraft) ClearFields() {
	*d = ExtractionDraft{
		Status:       d.Status,
		Partial:      d.Partial,
		DocumentHash: d.DocumentHash,
		Extractor:    d.Extractor,
		Message:      d.Message,
	}
}
