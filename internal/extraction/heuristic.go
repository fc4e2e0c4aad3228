package extraction

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jonathan/talent-match/internal/normalize"
	"github.com/jonathan/talent-match/internal/types"
)

// FieldExtractor pulls profile fields out of cleaned document text.
type FieldExtractor interface {
	Name() string
	Extract(ctx context.Context, text string) (*types.ExtractionDraft, error)
}

type section string

const (
	sectionPreamble   section = "preamble"
	sectionSummary    section = "summary"
	sectionExperience section = "experience"
	sectionEducation  section = "education"
	sectionSkills     section = "skills"
	sectionOther      section = "other"
)

var sectionHeadings = map[string]section{
	"summary":                 sectionSummary,
	"profile":                 sectionSummary,
	"professional summary":    sectionSummary,
	"professional profile":    sectionSummary,
	"about":                   sectionSummary,
	"about me":                sectionSummary,
	"objective":               sectionSummary,
	"career objective":        sectionSummary,
	"overview":                sectionSummary,
	"experience":              sectionExperience,
	"work experience":         sectionExperience,
	"professional experience": sectionExperience,
	"relevant experience":     sectionExperience,
	"employment":              sectionExperience,
	"employment history":      sectionExperience,
	"work history":            sectionExperience,
	"career history":          sectionExperience,
	"education":               sectionEducation,
	"education and training":  sectionEducation,
	"academic background":     sectionEducation,
	"qualifications":          sectionEducation,
	"academic qualifications": sectionEducation,
	"skills":                  sectionSkills,
	"technical skills":        sectionSkills,
	"core skills":             sectionSkills,
	"key skills":              sectionSkills,
	"core competencies":       sectionSkills,
	"competencies":            sectionSkills,
	"technologies":            sectionSkills,
	"tech stack":              sectionSkills,
	"skills and tools":        sectionSkills,
	"tools and technologies":  sectionSkills,
	"projects":                sectionOther,
	"certifications":          sectionOther,
	"certificates":            sectionOther,
	"languages":               sectionOther,
	"interests":               sectionOther,
	"hobbies":                 sectionOther,
	"references":              sectionOther,
	"awards":                  sectionOther,
	"publications":            sectionOther,
	"volunteering":            sectionOther,
	"volunteer experience":    sectionOther,
	"achievements":            sectionOther,
	"contact":                 sectionOther,
}

const monthPattern = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`

var (
	dateRangePattern = regexp.MustCompile(`(?i)\b(?:(` + monthPattern + `)\s+|(\d{1,2})/)?((?:19|20)\d{2})\s*(?:-|–|—|to|until)\s*(?:(present|current|now|today)|(?:(` + monthPattern + `)\s+|(\d{1,2})/)?((?:19|20)\d{2}))\b`)
	explicitYears    = regexp.MustCompile(`(?i)\b(\d{1,3})\s*\+?\s*(?:years?|yrs?)\.?\s+(?:of\s+)?(?:[a-z-]+\s+){0,3}?experience\b`)
	yearPattern      = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	roleSeparator    = regexp.MustCompile(`(?i)\s+(?:at|@)\s+`)
	skillSeparator   = regexp.MustCompile(`[,;|•·]`)
	locationSplit    = regexp.MustCompile(`(?i)\s*(?:[,;/|]|\s+or\s+)\s*`)
	remoteMention    = regexp.MustCompile(`(?i)\bremote\b`)
	digitRun         = regexp.MustCompile(`\d`)
)

var monthNumbers = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var locationPrefixes = []string{"preferred locations:", "locations:", "location:", "based in", "located in"}

const (
	maxHeadlineLength = 120
	maxSkillLength    = 60
	minLexiconTerm    = 3
)

// HeuristicExtractor finds profile fields with deterministic text rules.
type HeuristicExtractor struct {
	terms func() []string
	now   func() time.Time
}

// NewHeuristicExtractor creates a HeuristicExtractor. terms supplies the
// skill vocabulary used when a document has no skills section; now resolves
// "present" in date ranges.
func NewHeuristicExtractor(terms func() []string, now func() time.Time) *HeuristicExtractor {
	if terms == nil {
		terms = func() []string { return nil }
	}
	if now == nil {
		now = time.Now
	}
	return &HeuristicExtractor{terms: terms, now: now}
}

// Name implements FieldExtractor.
func (h *HeuristicExtractor) Name() string { return string(ModeHeuristic) }

// Extract implements FieldExtractor.
func (h *HeuristicExtractor) Extract(ctx context.Context, text string) (*types.ExtractionDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sections := splitSections(text)
	draft := &types.ExtractionDraft{Extractor: h.Name()}

	if headline := findHeadline(sections); headline != "" {
		draft.Headline = &headline
	}
	draft.PreferredLocations = findLocations(append(sections[sectionPreamble], sections[sectionSummary]...))

	jobs := parseWorkHistory(sections[sectionExperience], h.now())
	for _, j := range jobs {
		draft.WorkExperience = append(draft.WorkExperience, j.WorkExperience)
	}
	if current, ok := currentJob(jobs); ok {
		if current.Title != "" {
			title := current.Title
			draft.CurrentPosition = &title
		}
		if current.Company != "" {
			company := current.Company
			draft.CurrentCompany = &company
		}
	}
	if years, ok := statedYears(text); ok {
		draft.YearsOfExperience = &years
	} else if years, ok := yearsFromHistory(jobs); ok {
		draft.YearsOfExperience = &years
	}

	educationText := text
	if lines, ok := sections[sectionEducation]; ok {
		educationText = strings.Join(lines, "\n")
		draft.Education = parseEducation(lines)
	}
	if level := normalize.HighestEducationIn(educationText); level != types.EducationUnspecified {
		name := level.String()
		draft.EducationLevel = &name
	}

	if lines, ok := sections[sectionSkills]; ok {
		draft.Skills = parseSkillLines(lines)
	} else {
		draft.Skills = scanLexicon(text, h.terms())
	}

	return draft, nil
}

// splitSections groups non-empty lines under the heading that precedes them.
// Lines before the first heading belong to the preamble.
func splitSections(text string) map[section][]string {
	out := make(map[section][]string)
	current := sectionPreamble
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if sec, rest, ok := headingOf(line); ok {
			current = sec
			if _, seen := out[sec]; !seen {
				out[sec] = nil
			}
			if rest == "" {
				continue
			}
			line = rest
		}
		out[current] = append(out[current], line)
	}
	return out
}

func headingKey(s string) string {
	s = strings.TrimSpace(strings.TrimLeft(s, "#"))
	s = strings.TrimRight(s, ": ")
	s = strings.ReplaceAll(strings.ToLower(s), "&", "and")
	return strings.Join(strings.Fields(s), " ")
}

// headingOf recognizes "Skills", "## Work Experience" and inline forms such
// as "Skills: Go, SQL", returning the text after the colon.
func headingOf(line string) (section, string, bool) {
	if before, after, found := strings.Cut(line, ":"); found {
		// Inline labels such as "Languages: Go" inside a skills list are not headings.
		if sec, ok := sectionHeadings[headingKey(before)]; ok && sec != sectionOther {
			return sec, strings.TrimSpace(after), true
		}
	}
	if utf8.RuneCountInString(line) > 40 {
		return "", "", false
	}
	sec, ok := sectionHeadings[headingKey(line)]
	return sec, "", ok
}

func stripBullet(line string) string {
	if isBulletLine(line) {
		return strings.TrimSpace(line[2:])
	}
	return line
}

func looksLikeContact(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range []string{"@", "http", "www.", "linkedin", "github.com", "phone", "tel:"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	for _, prefix := range locationPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return len(digitRun.FindAllString(line, -1)) >= 7
}

func findHeadline(sections map[section][]string) string {
	preamble := sections[sectionPreamble]
	for _, line := range preamble {
		for _, prefix := range []string{"headline:", "title:"} {
			if strings.HasPrefix(strings.ToLower(line), prefix) {
				return strings.TrimSpace(line[len(prefix):])
			}
		}
	}

	// The first preamble line is taken to be the candidate's name.
	if len(preamble) > 1 {
		for _, line := range preamble[1:] {
			if looksLikeContact(line) || dateRangePattern.MatchString(line) {
				continue
			}
			if utf8.RuneCountInString(line) <= maxHeadlineLength {
				return stripBullet(line)
			}
		}
	}

	if summary := sections[sectionSummary]; len(summary) > 0 {
		first := stripBullet(summary[0])
		if i := strings.Index(first, ". "); i > 0 {
			first = first[:i]
		}
		first = strings.TrimSuffix(first, ".")
		if utf8.RuneCountInString(first) <= maxHeadlineLength {
			return first
		}
	}
	return ""
}

func findLocations(lines []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(loc string) {
		loc = strings.Trim(strings.TrimSpace(loc), ".")
		key := strings.ToLower(loc)
		if loc == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, loc)
	}

	remote := false
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, prefix := range locationPrefixes {
			if strings.HasPrefix(lower, prefix) {
				for _, part := range locationSplit.Split(strings.TrimSpace(line[len(prefix):]), -1) {
					add(part)
				}
				break
			}
		}
		if remoteMention.MatchString(line) {
			remote = true
		}
	}
	if remote {
		add("remote")
	}
	return out
}

// workEntry is a parsed employment entry with its span in months since year 0.
// A zero end means no usable span.
type workEntry struct {
	types.WorkExperience
	start, end int
	present    bool
}

func monthOf(name, number string) int {
	if name != "" {
		return monthNumbers[strings.ToLower(name)[:3]]
	}
	if n, err := strconv.Atoi(number); err == nil && n >= 1 && n <= 12 {
		return n
	}
	return 0
}

// spanOf converts a date range match to [start, end) month indexes. A
// month-qualified end includes that month; a bare end year means the range
// stops when that year begins.
func spanOf(m []string, now time.Time) (start, end int, present bool) {
	startYear, _ := strconv.Atoi(m[3])
	start = startYear * 12
	if month := monthOf(m[1], m[2]); month > 0 {
		start += month - 1
	}

	switch {
	case m[4] != "":
		present = true
		end = now.Year()*12 + int(now.Month())
	default:
		endYear, _ := strconv.Atoi(m[7])
		end = endYear * 12
		if month := monthOf(m[5], m[6]); month > 0 {
			end += month
		}
	}

	nowIndex := now.Year()*12 + int(now.Month())
	if end > nowIndex {
		end = nowIndex
	}
	if end <= start {
		return 0, 0, present
	}
	return start, end, present
}

func trimRoleHeader(s string) string {
	s = strings.ReplaceAll(s, "()", "")
	s = strings.ReplaceAll(s, "[]", "")
	return strings.Trim(strings.TrimSpace(s), " ,|-–—@()[]:")
}

func splitRole(header string) (title, company string) {
	if loc := roleSeparator.FindStringIndex(header); loc != nil {
		return trimRoleHeader(header[:loc[0]]), trimRoleHeader(header[loc[1]:])
	}
	for _, sep := range []string{" | ", " — ", " – ", " - ", ", "} {
		if before, after, ok := strings.Cut(header, sep); ok {
			return trimRoleHeader(before), trimRoleHeader(after)
		}
	}
	return trimRoleHeader(header), ""
}

// parseWorkHistory starts a new entry at every line carrying a date range.
// When the date stands alone, the preceding plain line is the role header.
func parseWorkHistory(lines []string, now time.Time) []workEntry {
	var (
		entries []workEntry
		details [][]string
		pending []string
	)

	for _, line := range lines {
		loc := dateRangePattern.FindStringSubmatchIndex(line)
		if loc == nil {
			if len(entries) == 0 {
				pending = append(pending, line)
			} else {
				details[len(details)-1] = append(details[len(details)-1], line)
			}
			continue
		}

		match := make([]string, len(loc)/2)
		for g := range match {
			if loc[2*g] >= 0 {
				match[g] = line[loc[2*g]:loc[2*g+1]]
			}
		}

		header := trimRoleHeader(line[:loc[0]] + " " + line[loc[1]:])
		if header == "" {
			if n := len(details); n > 0 && len(details[n-1]) > 0 && !isBulletLine(details[n-1][len(details[n-1])-1]) {
				last := details[n-1]
				header = last[len(last)-1]
				details[n-1] = last[:len(last)-1]
			} else if len(entries) == 0 && len(pending) > 0 {
				header = pending[len(pending)-1]
			}
		}

		entry := workEntry{}
		entry.Title, entry.Company = splitRole(header)
		entry.Duration = strings.TrimSpace(match[0])
		entry.start, entry.end, entry.present = spanOf(match, now)
		entries = append(entries, entry)
		details = append(details, nil)
	}

	for i := range entries {
		parts := make([]string, 0, len(details[i]))
		for _, d := range details[i] {
			parts = append(parts, stripBullet(d))
		}
		entries[i].Description = strings.Join(parts, " ")
	}
	return entries
}

// currentJob prefers an entry running to the present, then the latest end.
func currentJob(entries []workEntry) (workEntry, bool) {
	for _, e := range entries {
		if e.present && (e.Title != "" || e.Company != "") {
			return e, true
		}
	}
	best, found := workEntry{}, false
	for _, e := range entries {
		if e.end > best.end && (e.Title != "" || e.Company != "") {
			best, found = e, true
		}
	}
	return best, found
}

func statedYears(text string) (int, bool) {
	m := explicitYears.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > 100 {
		return 0, false
	}
	return n, true
}

// yearsFromHistory sums the union of all spans so overlapping jobs count once.
func yearsFromHistory(entries []workEntry) (int, bool) {
	spans := make([][2]int, 0, len(entries))
	for _, e := range entries {
		if e.end > e.start {
			spans = append(spans, [2]int{e.start, e.end})
		}
	}
	if len(spans) == 0 {
		return 0, false
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	months := 0
	cur := spans[0]
	for _, s := range spans[1:] {
		if s[0] <= cur[1] {
			cur[1] = max(cur[1], s[1])
			continue
		}
		months += cur[1] - cur[0]
		cur = s
	}
	months += cur[1] - cur[0]
	return months / 12, true
}

func splitEducationLine(s string) (string, string, bool) {
	if loc := roleSeparator.FindStringIndex(s); loc != nil {
		return s[:loc[0]], s[loc[1]:], true
	}
	for _, sep := range []string{", ", " | ", " — ", " – ", " - "} {
		if before, after, ok := strings.Cut(s, sep); ok {
			return before, after, true
		}
	}
	return s, "", false
}

func parseEducation(lines []string) []types.EducationEntry {
	var out []types.EducationEntry
	for _, raw := range lines {
		line := stripBullet(raw)
		year := 0
		if years := yearPattern.FindAllString(line, -1); len(years) > 0 {
			year, _ = strconv.Atoi(years[len(years)-1])
		}
		rest := trimRoleHeader(dateRangePattern.ReplaceAllString(line, ""))
		rest = trimRoleHeader(yearPattern.ReplaceAllString(rest, ""))
		if rest == "" && year == 0 {
			continue
		}

		hasDegree := normalize.HighestEducationIn(rest) != types.EducationUnspecified
		if !hasDegree && year == 0 && len(out) > 0 && out[len(out)-1].Institution == "" {
			out[len(out)-1].Institution = rest
			continue
		}

		entry := types.EducationEntry{Year: year}
		first, second, split := splitEducationLine(rest)
		first, second = trimRoleHeader(first), trimRoleHeader(second)
		switch {
		case split && normalize.HighestEducationIn(first) == types.EducationUnspecified &&
			normalize.HighestEducationIn(second) != types.EducationUnspecified:
			entry.Degree, entry.Institution = second, first
		case split:
			entry.Degree, entry.Institution = first, second
		case hasDegree:
			entry.Degree = first
		default:
			entry.Institution = first
		}
		out = append(out, entry)
	}
	return out
}

func parseSkillLines(lines []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range lines {
		line := stripBullet(raw)
		if label, rest, ok := strings.Cut(line, ":"); ok && utf8.RuneCountInString(label) <= 30 {
			line = rest
		}
		for _, part := range skillSeparator.Split(line, -1) {
			skill := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "."))
			key := strings.ToLower(skill)
			if skill == "" || utf8.RuneCountInString(skill) > maxSkillLength || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, skill)
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wordIndex returns the first occurrence of term in text that is not part of
// a longer word, or -1.
func wordIndex(text, term string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(term)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return start
		}
		offset = start + 1
	}
}

// scanLexicon returns vocabulary terms found in text, in order of first
// appearance. Very short terms are skipped since they collide with prose.
func scanLexicon(text string, terms []string) []string {
	lower := strings.ToLower(text)
	type hit struct {
		pos  int
		term string
	}
	var hits []hit
	for _, term := range terms {
		if utf8.RuneCountInString(term) < minLexiconTerm {
			continue
		}
		if pos := wordIndex(lower, term); pos >= 0 {
			hits = append(hits, hit{pos: pos, term: term})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].term < hits[j].term
	})

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.term)
	}
	return out
}
