package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jonathan/talent-match/internal/types"
)

// RawSkill is a skill as submitted by a user or extracted from a document.
// It decodes from either a bare JSON string or an object.
type RawSkill struct {
	Name        string `json:"name"`
	Proficiency int    `json:"proficiency,omitempty" validate:"gte=0,lte=5"`
	Importance  int    `json:"importance,omitempty" validate:"gte=0,lte=5"`
}

// UnmarshalJSON accepts "go" as well as {"name":"go","proficiency":3}.
func (s *RawSkill) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*s = RawSkill{Name: name}
		return nil
	}

	type plain RawSkill
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("skill must be a string or an object: %w", err)
	}
	*s = RawSkill(p)
	return nil
}

// RawProfile is the unvalidated input for profile normalization.
// YearsOfExperience accepts numbers and numeric strings.
type RawProfile struct {
	Headline           string     `json:"headline,omitempty"`
	CurrentPosition    string     `json:"currentPosition,omitempty"`
	CurrentCompany     string     `json:"currentCompany,omitempty"`
	Skills             []RawSkill `json:"skills,omitempty"`
	YearsOfExperience  any        `json:"yearsOfExperience,omitempty"`
	EducationLevel     string     `json:"educationLevel,omitempty"`
	PreferredLocations []string   `json:"preferredLocations,omitempty"`
	PreferredJobTypes  []string   `json:"preferredJobTypes,omitempty"`
	ActivelyLooking    *bool      `json:"activelyLooking,omitempty"`
}

// RawJob is the unvalidated input for job normalization.
type RawJob struct {
	Title                   string     `json:"title,omitempty"`
	RequiredSkills          []RawSkill `json:"requiredSkills,omitempty"`
	MinYearsExperience      any        `json:"minYearsExperience,omitempty"`
	PreferredEducationLevel string     `json:"preferredEducationLevel,omitempty"`
	Locations               []string   `json:"locations,omitempty"`
	JobType                 string     `json:"jobType"`
	Status                  string     `json:"status,omitempty"`
}

// ToRawProfile renders canonical fields back into raw form.
func ToRawProfile(f types.ProfileFields) RawProfile {
	skills := make([]RawSkill, 0, len(f.Skills))
	for _, s := range f.Skills {
		skills = append(skills, RawSkill{Name: s.SkillID, Proficiency: s.Proficiency})
	}
	jobTypes := make([]string, 0, len(f.PreferredJobTypes))
	for _, jt := range f.PreferredJobTypes {
		jobTypes = append(jobTypes, string(jt))
	}
	active := f.ActivelyLooking

	return RawProfile{
		Headline:           f.Headline,
		CurrentPosition:    f.CurrentPosition,
		CurrentCompany:     f.CurrentCompany,
		Skills:             skills,
		YearsOfExperience:  f.YearsOfExperience,
		EducationLevel:     f.EducationLevel.String(),
		PreferredLocations: append([]string(nil), f.PreferredLocations...),
		PreferredJobTypes:  jobTypes,
		ActivelyLooking:    &active,
	}
}

// ToRawJob renders a canonical requirement set back into raw form.
func ToRawJob(f types.JobFields) RawJob {
	skills := make([]RawSkill, 0, len(f.RequiredSkills))
	for _, s := range f.RequiredSkills {
		skills = append(skills, RawSkill{Name: s.SkillID, Importance: s.Importance})
	}

	return RawJob{
		Title:                   f.Title,
		RequiredSkills:          skills,
		MinYearsExperience:      f.MinYearsExperience,
		PreferredEducationLevel: f.PreferredEducationLevel.String(),
		Locations:               append([]string(nil), f.Locations...),
		JobType:                 string(f.JobType),
		Status:                  string(f.Status),
	}
}

// RawProfileFromDraft pre-fills a raw profile from an extraction draft for user review.
func RawProfileFromDraft(d *types.ExtractionDraft) RawProfile {
	var raw RawProfile
	if d == nil {
		return raw
	}
	if d.Headline != nil {
		raw.Headline = *d.Headline
	}
	if d.CurrentPosition != nil {
		raw.CurrentPosition = *d.CurrentPosition
	}
	if d.CurrentCompany != nil {
		raw.CurrentCompany = *d.CurrentCompany
	}
	if d.YearsOfExperience != nil {
		raw.YearsOfExperience = *d.YearsOfExperience
	}
	if d.EducationLevel != nil {
		raw.EducationLevel = *d.EducationLevel
	}
	for _, name := range d.Skills {
		raw.Skills = append(raw.Skills, RawSkill{Name: name})
	}
	raw.PreferredLocations = append(raw.PreferredLocations, d.PreferredLocations...)
	return raw
}
