// Package scoring provides the deterministic, componentized match scoring engine.
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/talent-match/internal/types"
)

// DefaultProficiencyTarget is the proficiency at which a skill earns full credit.
const DefaultProficiencyTarget = 3

const maxScore = 100

// Vocabulary re-resolves stored skill ids at the taxonomy version being scored against.
// *taxonomy.Snapshot implements it.
type Vocabulary interface {
	Canonical(id string) string
	Version() int64
}

// Config controls the scoring policy.
type Config struct {
	Weights           Weights `mapstructure:"weights"`
	ProficiencyCredit bool    `mapstructure:"proficiency_credit"`
	ProficiencyTarget int     `mapstructure:"proficiency_target"`
}

// DefaultConfig returns the default weights with proficiency credit disabled.
func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		ProficiencyTarget: DefaultProficiencyTarget,
	}
}

// Engine scores one job against one candidate. It is immutable and safe for concurrent use.
type Engine struct {
	cfg     Config
	weights [5]int64
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.ProficiencyTarget <= 0 {
		cfg.ProficiencyTarget = DefaultProficiencyTarget
	}
	return &Engine{cfg: cfg, weights: cfg.Weights.basisPoints()}, nil
}

// halfUp divides n by d rounding halves away from zero, for n >= 0 and d > 0.
func halfUp(n, d int64) int64 {
	return (2*n + d) / (2 * d)
}

type identityVocabulary struct{}

func (identityVocabulary) Canonical(id string) string { return id }
func (identityVocabulary) Version() int64             { return 0 }

// Score computes the match record for job and candidate. It never fails and
// does not stamp ComputedAt.
func (e *Engine) Score(job *types.CanonicalJob, candidate *types.CanonicalProfile, vocab Vocabulary) types.MatchRecord {
	if job == nil {
		job = &types.CanonicalJob{}
	}
	if candidate == nil {
		candidate = &types.CanonicalProfile{}
	}
	if vocab == nil {
		vocab = identityVocabulary{}
	}

	skill := e.computeSkillMatch(job.RequiredSkills, candidate.Skills, vocab)
	scores := types.ComponentScores{
		SkillMatch:      skill.score,
		ExperienceMatch: computeExperienceMatch(candidate.YearsOfExperience, job.MinYearsExperience),
		EducationMatch:  computeEducationMatch(candidate.EducationLevel, job.PreferredEducationLevel),
		LocationMatch:   computeLocationMatch(job.Locations, candidate.PreferredLocations),
		JobTypeMatch:    computeJobTypeMatch(job.JobType, candidate.PreferredJobTypes),
	}

	return types.MatchRecord{
		JobID:           job.JobID,
		CandidateID:     candidate.CandidateID,
		OverallScore:    e.overall(scores),
		ComponentScores: scores,
		ComputedAtRevisions: types.Revisions{
			JobRevision:       job.Revision,
			CandidateRevision: candidate.Revision,
			TaxonomyVersion:   vocab.Version(),
		},
		MatchedSkills: skill.matched,
		MissingSkills: skill.missing,
		Notes:         buildNotes(job, candidate, scores, skill),
	}
}

func (e *Engine) overall(c types.ComponentScores) int {
	components := [5]int64{
		int64(c.SkillMatch),
		int64(c.ExperienceMatch),
		int64(c.EducationMatch),
		int64(c.LocationMatch),
		int64(c.JobTypeMatch),
	}
	var num, den int64
	for i, w := range e.weights {
		num += w * components[i]
		den += w
	}
	return clamp(halfUp(num, den))
}

func clamp(v int64) int {
	if v < 0 {
		return 0
	}
	if v > maxScore {
		return maxScore
	}
	return int(v)
}

type skillResult struct {
	score   int
	matched []string
	missing []string
}

// computeSkillMatch returns importance-weighted coverage of the job's required skills.
func (e *Engine) computeSkillMatch(required []types.RequiredSkill, held []types.CandidateSkill, vocab Vocabulary) skillResult {
	res := skillResult{score: maxScore, matched: []string{}, missing: []string{}}
	if len(required) == 0 {
		return res
	}

	proficiency := make(map[string]int, len(held))
	for _, s := range held {
		id := vocab.Canonical(s.SkillID)
		if p, ok := proficiency[id]; !ok || s.Proficiency > p {
			proficiency[id] = s.Proficiency
		}
	}

	target := int64(1)
	if e.cfg.ProficiencyCredit {
		target = int64(e.cfg.ProficiencyTarget)
	}

	// Duplicate requirements after re-resolution keep the highest importance.
	importance := make(map[string]int64, len(required))
	for _, r := range required {
		id := vocab.Canonical(r.SkillID)
		w := int64(r.Importance)
		if w <= 0 {
			w = 1
		}
		if w > importance[id] {
			importance[id] = w
		}
	}

	ids := make([]string, 0, len(importance))
	for id := range importance {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var num, den int64
	for _, id := range ids {
		w := importance[id]
		den += w * target
		p, ok := proficiency[id]
		if !ok {
			res.missing = append(res.missing, id)
			continue
		}
		res.matched = append(res.matched, id)
		credit := target
		if e.cfg.ProficiencyCredit && p > 0 {
			credit = min(int64(p), target)
		}
		num += w * credit
	}

	res.score = clamp(halfUp(maxScore*num, den))
	return res
}

// computeExperienceMatch scales linearly up to the job minimum.
func computeExperienceMatch(years, minYears int) int {
	if years >= minYears {
		return maxScore
	}
	return clamp(halfUp(maxScore*int64(max(years, 0)), int64(max(1, minYears))))
}

// computeEducationMatch uses floor division so a near miss never rounds up to a pass.
func computeEducationMatch(candidate, preferred types.EducationLevel) int {
	if preferred == types.EducationUnspecified || candidate.Ordinal() >= preferred.Ordinal() {
		return maxScore
	}
	return clamp(int64(maxScore*candidate.Ordinal()) / int64(preferred.Ordinal()))
}

// computeLocationMatch is binary. An empty set on either side is no constraint.
func computeLocationMatch(jobLocations, preferred []string) int {
	if len(jobLocations) == 0 || len(preferred) == 0 {
		return maxScore
	}
	wanted := make(map[string]bool, len(preferred))
	for _, loc := range preferred {
		key := strings.ToLower(strings.TrimSpace(loc))
		if key == types.LocationRemote {
			return maxScore
		}
		wanted[key] = true
	}
	for _, loc := range jobLocations {
		key := strings.ToLower(strings.TrimSpace(loc))
		if key == types.LocationRemote || wanted[key] {
			return maxScore
		}
	}
	return 0
}

func computeJobTypeMatch(jobType types.JobType, preferred []types.JobType) int {
	if len(preferred) == 0 {
		return maxScore
	}
	for _, jt := range preferred {
		if jt == jobType {
			return maxScore
		}
	}
	return 0
}

func buildNotes(job *types.CanonicalJob, candidate *types.CanonicalProfile, scores types.ComponentScores, skill skillResult) string {
	var parts []string

	if len(skill.matched)+len(skill.missing) == 0 {
		parts = append(parts, "skills: no requirements")
	} else {
		parts = append(parts, fmt.Sprintf("skills: %d/%d required matched (%d)",
			len(skill.matched), len(skill.matched)+len(skill.missing), scores.SkillMatch))
	}

	parts = append(parts, fmt.Sprintf("experience: %dy of %dy required (%d)",
		candidate.YearsOfExperience, job.MinYearsExperience, scores.ExperienceMatch))

	if job.PreferredEducationLevel == types.EducationUnspecified {
		parts = append(parts, "education: no preference")
	} else {
		have := candidate.EducationLevel.String()
		if have == "" {
			have = "unspecified"
		}
		parts = append(parts, fmt.Sprintf("education: %s vs %s preferred (%d)",
			have, job.PreferredEducationLevel, scores.EducationMatch))
	}

	if scores.LocationMatch == maxScore {
		parts = append(parts, "location: compatible")
	} else {
		parts = append(parts, "location: no overlap")
	}

	if scores.JobTypeMatch == maxScore {
		parts = append(parts, fmt.Sprintf("job type: %s accepted", job.JobType))
	} else {
		parts = append(parts, fmt.Sprintf("job type: %s not preferred", job.JobType))
	}

	return strings.Join(parts, "; ")
}
