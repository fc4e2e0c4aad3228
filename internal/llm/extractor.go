package llm

import (
	"fmt"
	"strings"

	"github.com/jonathan/talent-match/internal/prompts"
)

const promptFile = "extraction.json"

// ExtractionSchema describes the JSON object a prompt asks the model to return.
type ExtractionSchema struct {
	Name        string
	Description string
	Fields      []SchemaField
}

// SchemaField is one output field of an ExtractionSchema.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // type hint shown to the model
	Description string
	Required    bool
}

// BuildExtractionPrompt renders schema and the input text into a prompt.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = `"string"`
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		fmt.Fprintf(&sb, "  %q: %s%s", field.Name, typeHint, requiredHint)
		if field.Description != "" {
			fmt.Fprintf(&sb, " // %s", field.Description)
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString(prompts.MustGet(promptFile, "output-rules"))
	sb.WriteString("\n\n")
	sb.WriteString(prompts.Format(prompts.MustGet(promptFile, "input-block"), map[string]string{"Text": inputText}))
	sb.WriteString("\n")

	return sb.String()
}

// ResumeProfileSchema asks for the profile fields of a job seeker's resume.
// Field names match the extraction draft JSON.
func ResumeProfileSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "ResumeProfile",
		Description: prompts.MustGet(promptFile, "resume-profile"),
		Fields: []SchemaField{
			{
				Name:        "headline",
				Description: "Professional headline or summary title",
			},
			{
				Name:        "currentPosition",
				Description: "Title of the most recent or current role",
			},
			{
				Name:        "currentCompany",
				Description: "Employer of the most recent or current role",
			},
			{
				Name:        "yearsOfExperience",
				Type:        "integer",
				Description: "Total years of professional experience, whole years",
			},
			{
				Name:        "educationLevel",
				Type:        `"high_school" | "associate" | "bachelor" | "master" | "phd"`,
				Description: "Highest completed degree",
			},
			{
				Name:        "skills",
				Type:        `["string"]`,
				Description: "Technical and professional skills, one per entry",
				Required:    true,
			},
			{
				Name:        "preferredLocations",
				Type:        `["string"]`,
				Description: "Cities the person lives in or wants to work in, or \"remote\"",
			},
			{
				Name:        "education",
				Type:        `[{"degree": "string", "institution": "string", "year": integer}]`,
				Description: "Education history",
			},
			{
				Name:        "workExperience",
				Type:        `[{"title": "string", "company": "string", "duration": "string", "description": "string"}]`,
				Description: "Employment history, most recent first",
			},
		},
	}
}
