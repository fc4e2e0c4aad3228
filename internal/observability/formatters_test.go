package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/talent-match/internal/types"
)

func strPtr(s string) *string { return &s }

func TestPrintMatchRecord(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintMatchRecord(&types.MatchRecord{
		JobID:        "job-1",
		CandidateID:  "cand-1",
		OverallScore: 47,
		ComponentScores: types.ComponentScores{
			ExperienceMatch: 33,
			EducationMatch:  100,
			LocationMatch:   100,
			JobTypeMatch:    100,
		},
		MatchedSkills: []string{},
		MissingSkills: []string{"go", "kubernetes"},
		Stale:         true,
	})
	output := buf.String()

	assert.Contains(t, output, "MATCH")
	assert.Contains(t, output, "job-1")
	assert.Contains(t, output, "47/100")
	assert.Contains(t, output, "(stale)")
	assert.Contains(t, output, "experience    33")
	assert.Contains(t, output, "kubernetes")
	assert.NotContains(t, output, "Matched:")
}

func TestPrintMatchRecord_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintMatchRecord(nil)
	assert.Empty(t, buf.String())
}

func TestPrintRanking(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRanking("CANDIDATES", []*types.MatchRecord{
		{JobID: "j", CandidateID: "alice", OverallScore: 90},
		{JobID: "j", CandidateID: "bob", OverallScore: 40},
	}, false)
	output := buf.String()

	assert.Contains(t, output, " 1. alice")
	assert.Contains(t, output, " 2. bob")

	buf.Reset()
	p.PrintRanking("JOBS", nil, true)
	assert.Contains(t, buf.String(), "no matches")
}

func TestPrintExtractionDraft(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	years := 8
	p.PrintExtractionDraft(&types.ExtractionDraft{
		Headline:          strPtr("Senior Backend Engineer"),
		YearsOfExperience: &years,
		Skills:            []string{"Go", "Python", "SQL", "Docker", "Kubernetes", "Terraform", "Rust"},
		WorkExperience:    []types.WorkExperience{{Title: "Engineer", Company: "Acme"}},
		Status:            types.ExtractionTimeout,
		Partial:           true,
		Extractor:         "hybrid",
	})
	output := buf.String()

	assert.Contains(t, output, "EXTRACTION DRAFT")
	assert.Contains(t, output, "(partial)")
	assert.Contains(t, output, "8 years")
	assert.Contains(t, output, "Engineer @ Acme")
	assert.Contains(t, output, "... and 2 more")
	assert.Contains(t, output, "Company:    -")
}

func TestPrintNormalizedFields(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintJobFields(&types.JobFields{
		Title:          "Backend Engineer",
		RequiredSkills: []types.RequiredSkill{{SkillID: "go", Importance: 5}},
		JobType:        types.JobTypeFullTime,
		Status:         types.JobStatusActive,
	})
	p.PrintProfileFields(&types.ProfileFields{
		Skills:            []types.CandidateSkill{{SkillID: "go", Proficiency: 4}, {SkillID: "sql"}},
		YearsOfExperience: 5,
	})
	output := buf.String()

	assert.Contains(t, output, "NORMALIZED JOB")
	assert.Contains(t, output, "go (importance 5)")
	assert.Contains(t, output, "NORMALIZED PROFILE")
	assert.Contains(t, output, "go (4)")
	assert.Contains(t, output, "• sql")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("ä", 100))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Len(t, lines, 5)
	for _, line := range lines {
		assert.Equal(t, boxWidth, len([]rune(line)))
	}
	assert.Contains(t, lines[3], "...")
}
