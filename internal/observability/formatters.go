package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/talent-match/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer renders engine results as boxes for the CLI.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if runes := []rune(line); len(runes) > boxWidth-4 {
			line = string(runes[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(label + ":\n")
	count := min(len(items), maxItemsToShow)
	for _, item := range items[:count] {
		fmt.Fprintf(sb, "  • %s\n", item)
	}
	if len(items) > maxItemsToShow {
		fmt.Fprintf(sb, "  ... and %d more\n", len(items)-maxItemsToShow)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// PrintMatchRecord outputs the overall score, the component breakdown and the skill gap.
func (p *Printer) PrintMatchRecord(record *types.MatchRecord) {
	if record == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job:        %s\n", orDash(record.JobID))
	fmt.Fprintf(&sb, "Candidate:  %s\n", orDash(record.CandidateID))
	fmt.Fprintf(&sb, "Overall:    %d/100", record.OverallScore)
	if record.Stale {
		sb.WriteString("  (stale)")
	}
	sb.WriteString("\n\n")

	c := record.ComponentScores
	fmt.Fprintf(&sb, "  skills       %3d\n", c.SkillMatch)
	fmt.Fprintf(&sb, "  experience   %3d\n", c.ExperienceMatch)
	fmt.Fprintf(&sb, "  education    %3d\n", c.EducationMatch)
	fmt.Fprintf(&sb, "  location     %3d\n", c.LocationMatch)
	fmt.Fprintf(&sb, "  job type     %3d\n", c.JobTypeMatch)
	sb.WriteString("\n")

	writeList(&sb, "Matched", record.MatchedSkills)
	writeList(&sb, "Missing", record.MissingSkills)
	if record.Notes != "" {
		sb.WriteString(record.Notes)
	}

	p.printBox("MATCH", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRanking outputs one line per record, best first.
func (p *Printer) PrintRanking(title string, records []*types.MatchRecord, byJob bool) {
	var sb strings.Builder
	if len(records) == 0 {
		sb.WriteString("no matches")
	}
	for i, r := range records {
		id := r.CandidateID
		if byJob {
			id = r.JobID
		}
		fmt.Fprintf(&sb, "%2d. %-30s %3d\n", i+1, id, r.OverallScore)
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintExtractionDraft outputs the fields found in a document and the outcome.
func (p *Printer) PrintExtractionDraft(draft *types.ExtractionDraft) {
	if draft == nil {
		return
	}

	deref := func(s *string) string {
		if s == nil {
			return "-"
		}
		return *s
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status:     %s", draft.Status)
	if draft.Partial {
		sb.WriteString(" (partial)")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Extractor:  %s\n", orDash(draft.Extractor))
	if draft.Message != "" {
		fmt.Fprintf(&sb, "Message:    %s\n", draft.Message)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Headline:   %s\n", deref(draft.Headline))
	fmt.Fprintf(&sb, "Position:   %s\n", deref(draft.CurrentPosition))
	fmt.Fprintf(&sb, "Company:    %s\n", deref(draft.CurrentCompany))
	if draft.YearsOfExperience != nil {
		fmt.Fprintf(&sb, "Experience: %d years\n", *draft.YearsOfExperience)
	}
	fmt.Fprintf(&sb, "Education:  %s\n", deref(draft.EducationLevel))
	sb.WriteString("\n")

	writeList(&sb, "Skills", draft.Skills)
	writeList(&sb, "Locations", draft.PreferredLocations)

	if len(draft.WorkExperience) > 0 {
		roles := make([]string, 0, len(draft.WorkExperience))
		for _, w := range draft.WorkExperience {
			role := w.Title
			if w.Company != "" {
				role += " @ " + w.Company
			}
			roles = append(roles, role)
		}
		writeList(&sb, "Work", roles)
	}

	p.printBox("EXTRACTION DRAFT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintJobFields outputs a normalized job.
func (p *Printer) PrintJobFields(fields *types.JobFields) {
	if fields == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Title:      %s\n", orDash(fields.Title))
	fmt.Fprintf(&sb, "Type:       %s\n", fields.JobType)
	fmt.Fprintf(&sb, "Status:     %s\n", fields.Status)
	fmt.Fprintf(&sb, "Experience: %d+ years\n", fields.MinYearsExperience)
	fmt.Fprintf(&sb, "Education:  %s\n", orDash(string(fields.PreferredEducationLevel)))
	sb.WriteString("\n")

	skills := make([]string, 0, len(fields.RequiredSkills))
	for _, s := range fields.RequiredSkills {
		skills = append(skills, fmt.Sprintf("%s (importance %d)", s.SkillID, s.Importance))
	}
	writeList(&sb, "Required", skills)
	writeList(&sb, "Locations", fields.Locations)

	p.printBox("NORMALIZED JOB", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintProfileFields outputs a normalized candidate profile.
func (p *Printer) PrintProfileFields(fields *types.ProfileFields) {
	if fields == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Headline:   %s\n", orDash(fields.Headline))
	fmt.Fprintf(&sb, "Experience: %d years\n", fields.YearsOfExperience)
	fmt.Fprintf(&sb, "Education:  %s\n", orDash(string(fields.EducationLevel)))
	fmt.Fprintf(&sb, "Looking:    %t\n", fields.ActivelyLooking)
	sb.WriteString("\n")

	skills := make([]string, 0, len(fields.Skills))
	for _, s := range fields.Skills {
		if s.Proficiency > 0 {
			skills = append(skills, fmt.Sprintf("%s (%d)", s.SkillID, s.Proficiency))
			continue
		}
		skills = append(skills, s.SkillID)
	}
	writeList(&sb, "Skills", skills)
	writeList(&sb, "Locations", fields.PreferredLocations)

	p.printBox("NORMALIZED PROFILE", strings.TrimSuffix(sb.String(), "\n"))
}
