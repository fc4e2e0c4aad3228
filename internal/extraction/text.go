package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	spaceRun     = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLineRun = regexp.MustCompile(`\n{3,}`)
)

var bulletPrefixes = []string{"- ", "* ", "• ", "· ", "– ", "▪ ", "‣ "}

// CleanText normalizes line endings, trims and collapses spaces on every
// line, and reduces runs of blank lines to one.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = cleanLine(line)
	}

	result := blankLineRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(result)
}

func cleanLine(line string) string {
	line = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	if strings.HasPrefix(line, "#") {
		return line
	}
	for _, prefix := range bulletPrefixes {
		if strings.HasPrefix(line, prefix) {
			return "- " + strings.TrimSpace(line[len(prefix):])
		}
	}
	return line
}

// isBulletLine reports whether a cleaned line is a list item.
func isBulletLine(line string) bool {
	return strings.HasPrefix(line, "- ")
}

// DocumentHash returns the hex SHA-256 of the raw document bytes.
func DocumentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
