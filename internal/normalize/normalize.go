// Package normalize provides canonicalization of raw profiles and job requirement sets.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/talent-match/internal/taxonomy"
	"github.com/jonathan/talent-match/internal/types"
)

// DefaultImportance is used for required skills submitted without an importance.
const DefaultImportance = 3

// Resolver resolves free text to a canonical skill. *taxonomy.Snapshot implements it.
type Resolver interface {
	Resolve(raw string) (taxonomy.Resolution, bool)
}

// Normalizer canonicalizes raw inputs. It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	validate *validator.Validate
}

// New creates a Normalizer.
func New() *Normalizer {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Normalizer{validate: v}
}

// NormalizeProfile canonicalizes raw profile fields against a taxonomy snapshot.
func (n *Normalizer) NormalizeProfile(raw RawProfile, resolver Resolver) (*types.ProfileFields, error) {
	skills, err := n.candidateSkills(raw.Skills, resolver)
	if err != nil {
		return nil, err
	}

	years, err := parseYears("yearsOfExperience", raw.YearsOfExperience)
	if err != nil {
		return nil, err
	}

	education, ok := ParseEducation(raw.EducationLevel)
	if !ok {
		return nil, &ValidationError{Field: "educationLevel", Message: fmt.Sprintf("unrecognized education level %q", raw.EducationLevel)}
	}

	jobTypes := make([]types.JobType, 0, len(raw.PreferredJobTypes))
	seen := make(map[types.JobType]bool, len(raw.PreferredJobTypes))
	for _, s := range raw.PreferredJobTypes {
		if strings.TrimSpace(s) == "" {
			continue
		}
		jt, ok := parseJobType(s)
		if !ok {
			return nil, &ValidationError{Field: "preferredJobTypes", Message: fmt.Sprintf("unsupported job type %q", s)}
		}
		if !seen[jt] {
			seen[jt] = true
			jobTypes = append(jobTypes, jt)
		}
	}
	sort.Slice(jobTypes, func(i, j int) bool { return jobTypes[i] < jobTypes[j] })

	active := true
	if raw.ActivelyLooking != nil {
		active = *raw.ActivelyLooking
	}

	return &types.ProfileFields{
		Headline:           strings.TrimSpace(raw.Headline),
		CurrentPosition:    strings.TrimSpace(raw.CurrentPosition),
		CurrentCompany:     strings.TrimSpace(raw.CurrentCompany),
		Skills:             skills,
		YearsOfExperience:  years,
		EducationLevel:     education,
		PreferredLocations: NormalizeLocations(raw.PreferredLocations),
		PreferredJobTypes:  jobTypes,
		ActivelyLooking:    active,
	}, nil
}

// NormalizeJob canonicalizes a raw job requirement set against a taxonomy snapshot.
func (n *Normalizer) NormalizeJob(raw RawJob, resolver Resolver) (*types.JobFields, error) {
	skills, err := n.requiredSkills(raw.RequiredSkills, resolver)
	if err != nil {
		return nil, err
	}

	years, err := parseYears("minYearsExperience", raw.MinYearsExperience)
	if err != nil {
		return nil, err
	}

	education, ok := ParseEducation(raw.PreferredEducationLevel)
	if !ok {
		return nil, &ValidationError{Field: "preferredEducationLevel", Message: fmt.Sprintf("unrecognized education level %q", raw.PreferredEducationLevel)}
	}

	if strings.TrimSpace(raw.JobType) == "" {
		return nil, &ValidationError{Field: "jobType", Message: "is required"}
	}
	jobType, ok := parseJobType(raw.JobType)
	if !ok {
		return nil, &ValidationError{Field: "jobType", Message: fmt.Sprintf("unsupported job type %q", raw.JobType)}
	}

	status := types.JobStatusActive
	if s := strings.ToLower(strings.TrimSpace(raw.Status)); s != "" {
		status = types.JobStatus(s)
		if !status.Valid() {
			return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", raw.Status)}
		}
	}

	return &types.JobFields{
		Title:                   strings.TrimSpace(raw.Title),
		RequiredSkills:          skills,
		MinYearsExperience:      years,
		PreferredEducationLevel: education,
		Locations:               NormalizeLocations(raw.Locations),
		JobType:                 jobType,
		Status:                  status,
	}, nil
}

type resolvedSkill struct {
	id       string
	category string
	level    int
}

// resolveSkills validates, splits, resolves and de-duplicates raw skills.
// level picks proficiency or importance from each raw skill.
func (n *Normalizer) resolveSkills(field string, raw []RawSkill, resolver Resolver, level func(RawSkill) int) ([]resolvedSkill, error) {
	byID := make(map[string]*resolvedSkill, len(raw))
	for i, skill := range raw {
		if err := n.validate.Struct(skill); err != nil {
			return nil, toValidationError(fmt.Sprintf("%s[%d]", field, i), err)
		}

		for _, part := range strings.Split(skill.Name, ",") {
			name := taxonomy.NormalizeKey(part)
			if name == "" {
				continue
			}

			id, category := name, types.CategoryUnclassified
			if resolver != nil {
				if res, ok := resolver.Resolve(name); ok {
					id, category = res.CanonicalID, res.Category
				}
			}

			lvl := level(skill)
			if existing, ok := byID[id]; ok {
				existing.level = max(existing.level, lvl)
				continue
			}
			byID[id] = &resolvedSkill{id: id, category: category, level: lvl}
		}
	}

	out := make([]resolvedSkill, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

func (n *Normalizer) candidateSkills(raw []RawSkill, resolver Resolver) ([]types.CandidateSkill, error) {
	resolved, err := n.resolveSkills("skills", raw, resolver, func(s RawSkill) int { return s.Proficiency })
	if err != nil {
		return nil, err
	}
	skills := make([]types.CandidateSkill, 0, len(resolved))
	for _, s := range resolved {
		skills = append(skills, types.CandidateSkill{SkillID: s.id, Category: s.category, Proficiency: s.level})
	}
	return skills, nil
}

func (n *Normalizer) requiredSkills(raw []RawSkill, resolver Resolver) ([]types.RequiredSkill, error) {
	resolved, err := n.resolveSkills("requiredSkills", raw, resolver, func(s RawSkill) int {
		if s.Importance == 0 {
			return DefaultImportance
		}
		return s.Importance
	})
	if err != nil {
		return nil, err
	}
	skills := make([]types.RequiredSkill, 0, len(resolved))
	for _, s := range resolved {
		skills = append(skills, types.RequiredSkill{SkillID: s.id, Category: s.category, Importance: s.level})
	}
	return skills, nil
}

func toValidationError(prefix string, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{
			Field:   prefix + "." + fe.Field(),
			Message: fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param()),
		}
	}
	return &ValidationError{Field: prefix, Message: err.Error()}
}

// NormalizeLocations lowercases, trims, collapses whitespace, de-duplicates and sorts.
func NormalizeLocations(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, loc := range raw {
		key := strings.Join(strings.Fields(strings.ToLower(loc)), " ")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func parseJobType(s string) (types.JobType, bool) {
	key := strings.Join(strings.Fields(strings.ToLower(s)), "_")
	key = strings.ReplaceAll(key, "-", "_")
	jt := types.JobType(key)
	return jt, jt.Valid()
}

const maxYears = 100

func parseYears(field string, v any) (int, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case float64:
		f = x
	case float32:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, &ValidationError{Field: field, Message: fmt.Sprintf("not a number: %q", x.String())}
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, &ValidationError{Field: field, Message: fmt.Sprintf("not a number: %q", x)}
		}
		f = parsed
	default:
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("must be a number, got %T", v)}
	}

	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0, &ValidationError{Field: field, Message: "must be a finite number"}
	case f < 0:
		return 0, &ValidationError{Field: field, Message: "must not be negative"}
	case f > maxYears:
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("must not exceed %d", maxYears)}
	}
	return int(math.Floor(f)), nil
}
