package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"crlf", "line one\r\nline two\rline three", "line one\nline two\nline three"},
		{"collapses spaces", "  Senior   Engineer \t at  Acme  ", "Senior Engineer at Acme"},
		{"blank line runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"whitespace-only lines", "a\n   \n\t\nb", "a\n\nb"},
		{"bullets normalized", "• Go\n  * Python\n· SQL", "- Go\n- Python\n- SQL"},
		{"headings kept", "  ## Skills  ", "## Skills"},
		{"non-breaking space", "Berlin\u00a0\u00a0Germany", "Berlin Germany"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.input))
		})
	}
}

func TestDocumentHash(t *testing.T) {
	a := DocumentHash([]byte("resume"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, DocumentHash([]byte("resume")))
	assert.NotEqual(t, a, DocumentHash([]byte("resume ")))
}
