package normalize

import (
	"strings"

	"github.com/jonathan/talent-match/internal/types"
)

var educationSynonyms = map[string]types.EducationLevel{
	"":                    types.EducationUnspecified,
	"none":                types.EducationUnspecified,
	"unspecified":         types.EducationUnspecified,
	"high school":         types.EducationHighSchool,
	"highschool":          types.EducationHighSchool,
	"high school diploma": types.EducationHighSchool,
	"secondary":           types.EducationHighSchool,
	"hs":                  types.EducationHighSchool,
	"ged":                 types.EducationHighSchool,
	"associate":           types.EducationAssociate,
	"associates":          types.EducationAssociate,
	"associate degree":    types.EducationAssociate,
	"associates degree":   types.EducationAssociate,
	"aa":                  types.EducationAssociate,
	"as":                  types.EducationAssociate,
	"aas":                 types.EducationAssociate,
	"bachelor":            types.EducationBachelor,
	"bachelors":           types.EducationBachelor,
	"bachelor degree":     types.EducationBachelor,
	"bachelors degree":    types.EducationBachelor,
	"undergraduate":       types.EducationBachelor,
	"ba":                  types.EducationBachelor,
	"bs":                  types.EducationBachelor,
	"bsc":                 types.EducationBachelor,
	"beng":                types.EducationBachelor,
	"master":              types.EducationMaster,
	"masters":             types.EducationMaster,
	"master degree":       types.EducationMaster,
	"masters degree":      types.EducationMaster,
	"graduate":            types.EducationMaster,
	"ma":                  types.EducationMaster,
	"ms":                  types.EducationMaster,
	"msc":                 types.EducationMaster,
	"meng":                types.EducationMaster,
	"mba":                 types.EducationMaster,
	"phd":                 types.EducationPhD,
	"doctorate":           types.EducationPhD,
	"doctoral":            types.EducationPhD,
	"doctor":              types.EducationPhD,
	"dphil":               types.EducationPhD,
}

// Short abbreviations collide with ordinary words and are only honored when
// they are the whole value, never when scanning free text.
var ambiguousAbbreviations = map[string]bool{
	"as": true, "aa": true, "hs": true, "ba": true, "bs": true, "ma": true, "ms": true,
	"doctor": true, "graduate": true, "secondary": true, "none": true,
}

func educationKey(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("'", "", "’", "", ".", "", "-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ParseEducation maps an education string or one of its common spellings to the enum.
func ParseEducation(s string) (types.EducationLevel, bool) {
	level, ok := educationSynonyms[educationKey(s)]
	return level, ok
}

// HighestEducationIn scans free text for degree keywords and returns the highest level found.
func HighestEducationIn(text string) types.EducationLevel {
	words := strings.FieldsFunc(educationKey(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != ' '
	})

	best := types.EducationUnspecified
	for _, chunk := range words {
		tokens := strings.Fields(chunk)
		for i := range tokens {
			candidates := []string{tokens[i]}
			if i+1 < len(tokens) {
				candidates = append(candidates, tokens[i]+" "+tokens[i+1])
			}
			for _, c := range candidates {
				if ambiguousAbbreviations[c] {
					continue
				}
				if level, ok := educationSynonyms[c]; ok && level > best {
					best = level
				}
			}
		}
	}
	return best
}
