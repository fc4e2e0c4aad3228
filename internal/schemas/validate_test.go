package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nameSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string"}
	}
}`

func TestValidateJSONString_Valid(t *testing.T) {
	assert.NoError(t, ValidateJSONString(nameSchema, `{"name": "test"}`))
}

func TestValidateJSONString_Invalid(t *testing.T) {
	err := ValidateJSONString(nameSchema, `{"age": 30}`)
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.NotEmpty(t, validationErr.Errors)
	assert.Equal(t, "(root)", validationErr.Errors[0].Field)
}

func TestValidateJSONString_BadSchema(t *testing.T) {
	var loadErr *SchemaLoadError
	assert.ErrorAs(t, ValidateJSONString(`{"type": 12}`, `{}`), &loadErr)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "name", Message: "is required"},
			{Field: "age", Message: "must be a number"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "validation failed")
	assert.Contains(t, msg, "1. name: is required")
	assert.Contains(t, msg, "2. age: must be a number")
}

func TestExtractionDraftSchema_IsValidJSON(t *testing.T) {
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(ExtractionDraftSchema()), &decoded))
	assert.Equal(t, "object", decoded["type"])
}

func TestValidateDraft(t *testing.T) {
	tests := []struct {
		name      string
		document  string
		wantField string
	}{
		{
			name: "complete draft",
			document: `{
				"headline": "Backend engineer",
				"currentPosition": "Staff Engineer",
				"yearsOfExperience": 8,
				"educationLevel": "master",
				"skills": ["Go", "PostgreSQL"],
				"education": [{"degree": "MSc", "institution": "TU Berlin", "year": 2014}],
				"workExperience": [{"title": "Staff Engineer", "company": "Acme"}]
			}`,
		},
		{name: "empty object", document: `{}`},
		{name: "nulls allowed", document: `{"headline": null, "yearsOfExperience": null, "educationLevel": null}`},
		{name: "extra fields ignored", document: `{"skills": ["go"], "confidence": 0.9}`},
		{name: "negative years", document: `{"yearsOfExperience": -2}`, wantField: "yearsOfExperience"},
		{name: "fractional years", document: `{"yearsOfExperience": 2.5}`, wantField: "yearsOfExperience"},
		{name: "unknown education", document: `{"educationLevel": "wizard"}`, wantField: "educationLevel"},
		{name: "skills not array", document: `{"skills": "go, sql"}`, wantField: "skills"},
		{name: "empty skill", document: `{"skills": [""]}`, wantField: "skills.0"},
		{name: "bad year", document: `{"education": [{"year": 1066}]}`, wantField: "education.0.year"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDraft(tt.document)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			fields := make([]string, 0, len(validationErr.Errors))
			for _, fe := range validationErr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateDraft_MalformedJSON(t *testing.T) {
	assert.Error(t, ValidateDraft(`{"skills": [`))
}
