package extraction

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// Format is a supported document format.
type Format string

// Supported formats. FormatUnknown documents are reported as unsupported.
const (
	FormatUnknown  Format = ""
	FormatPlain    Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

var mediaTypeFormats = map[string]Format{
	"text/plain":            FormatPlain,
	"text/markdown":         FormatMarkdown,
	"text/x-markdown":       FormatMarkdown,
	"text/html":             FormatHTML,
	"application/xhtml+xml": FormatHTML,
	"application/pdf":       FormatPDF,
}

var extensionFormats = map[string]Format{
	".txt":      FormatPlain,
	".text":     FormatPlain,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xhtml":    FormatHTML,
	".pdf":      FormatPDF,
}

// UnsupportedFormatError means the document cannot be turned into text.
type UnsupportedFormatError struct {
	Format Format
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Format == FormatUnknown {
		return "unsupported document format: " + e.Reason
	}
	return fmt.Sprintf("unsupported %s document: %s", e.Format, e.Reason)
}

// DetectFormat picks a format from the declared content type, then the file
// extension, then the content itself.
func DetectFormat(contentType, filename string, data []byte) Format {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if f, ok := mediaTypeFormats[strings.ToLower(mediaType)]; ok {
				return f
			}
		}
	}

	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}

	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		mediaType, _, _ := strings.Cut(m.String(), ";")
		if f, ok := mediaTypeFormats[mediaType]; ok {
			return f
		}
	}
	return FormatUnknown
}

// ExtractText converts a document body to cleaned text.
func ExtractText(format Format, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch format {
	case FormatPlain, FormatMarkdown:
		if !utf8.Valid(data) {
			return "", &UnsupportedFormatError{Format: format, Reason: "content is not valid UTF-8"}
		}
		text = string(data)
	case FormatHTML:
		text, err = htmlText(data)
	case FormatPDF:
		text, err = pdfText(data)
	default:
		return "", &UnsupportedFormatError{Format: format, Reason: "no text extractor for this format"}
	}
	if err != nil {
		return "", err
	}
	return CleanText(text), nil
}

func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", &UnsupportedFormatError{Format: FormatHTML, Reason: "failed to parse HTML"}
	}

	doc.Find("script, style, noscript, template").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, section, article, header, footer, dt, dd").
		Each(func(_ int, s *goquery.Selection) {
			s.AppendHtml("\n")
		})

	body := doc.Find("body")
	if body.Length() == 0 {
		return doc.Text(), nil
	}
	return body.Text(), nil
}

func pdfText(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &UnsupportedFormatError{Format: FormatPDF, Reason: fmt.Sprintf("malformed PDF: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &UnsupportedFormatError{Format: FormatPDF, Reason: "failed to open PDF"}
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", &UnsupportedFormatError{Format: FormatPDF, Reason: "failed to read PDF text"}
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", &UnsupportedFormatError{Format: FormatPDF, Reason: "failed to read PDF text"}
	}
	if !utf8.Valid(out) {
		out = bytes.ToValidUTF8(out, []byte(" "))
	}
	return string(out), nil
}
