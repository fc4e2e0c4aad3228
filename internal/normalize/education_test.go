package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/talent-match/internal/types"
)

func TestParseEducation(t *testing.T) {
	tests := []struct {
		input string
		want  types.EducationLevel
		ok    bool
	}{
		{"", types.EducationUnspecified, true},
		{"high-school", types.EducationHighSchool, true},
		{"High School", types.EducationHighSchool, true},
		{"high_school", types.EducationHighSchool, true},
		{"Associate's", types.EducationAssociate, true},
		{"Bachelor's", types.EducationBachelor, true},
		{"B.Sc.", types.EducationBachelor, true},
		{"BSc", types.EducationBachelor, true},
		{"MBA", types.EducationMaster, true},
		{"Master’s degree", types.EducationMaster, true},
		{"PhD", types.EducationPhD, true},
		{"Ph.D.", types.EducationPhD, true},
		{"doctorate", types.EducationPhD, true},
		{"bootcamp", types.EducationUnspecified, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseEducation(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHighestEducationIn(t *testing.T) {
	tests := []struct {
		name string
		text string
		want types.EducationLevel
	}{
		{"degree phrase", "Bachelor's in Computer Science, Stanford University", types.EducationBachelor},
		{"highest wins", "B.Sc. Physics 2012\nM.Sc. Applied Math 2014", types.EducationMaster},
		{"phd", "Ph.D. candidate, MIT", types.EducationPhD},
		{"ambiguous words ignored", "worked as a developer on ms teams", types.EducationUnspecified},
		{"nothing", "Shipped features quickly", types.EducationUnspecified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HighestEducationIn(tt.text))
		})
	}
}
