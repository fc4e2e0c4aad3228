// Package extraction turns uploaded or referenced resume documents into
// unvalidated profile drafts.
//
// A Pipeline opens a document through a DocumentSource, detects its format,
// extracts and cleans the text, and runs one or more FieldExtractors over it.
// Extraction never fails loudly: every outcome is reported through the draft's
// status so callers can show the user what was found.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxBytes caps the size of a document read from any source.
const DefaultMaxBytes int64 = 10 << 20

// DefaultUserAgent is sent with HTTP document fetches.
const DefaultUserAgent = "Mozilla/5.0 (compatible; TalentMatch/1.0)"

// DocumentRef points at a document. Inline Content takes precedence over URI.
type DocumentRef struct {
	URI         string `json:"uri,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Content     []byte `json:"content,omitempty"`
}

// Name returns the best available file name for the reference.
func (r DocumentRef) Name() string {
	if r.Filename != "" {
		return r.Filename
	}
	if u, err := url.Parse(r.URI); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(r.URI)
}

// Document is the raw content behind a DocumentRef.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// DocumentSource resolves references into documents.
type DocumentSource interface {
	Open(ctx context.Context, ref DocumentRef) (*Document, error)
}

// ReferenceError means a reference could not be resolved to a document.
type ReferenceError struct {
	URI     string
	Message string
	Cause   error
}

func (e *ReferenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("document %s: %s: %v", e.URI, e.Message, e.Cause)
	}
	return fmt.Sprintf("document %s: %s", e.URI, e.Message)
}

func (e *ReferenceError) Unwrap() error {
	return e.Cause
}

// TooLargeError means a document exceeded the configured size limit.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("document exceeds the %d byte limit", e.Limit)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &TooLargeError{Limit: limit}
	}
	return data, nil
}

// LocalSource reads documents below a root directory. References cannot
// escape the root.
type LocalSource struct {
	root     string
	maxBytes int64
}

// NewLocalSource creates a LocalSource. maxBytes <= 0 uses DefaultMaxBytes.
func NewLocalSource(root string, maxBytes int64) *LocalSource {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &LocalSource{root: filepath.Clean(root), maxBytes: maxBytes}
}

// Resolve maps a reference path to a file below the root.
func (s *LocalSource) Resolve(ref string) (string, error) {
	p := strings.TrimPrefix(ref, "file://")
	if p == "" {
		return "", &ReferenceError{URI: ref, Message: "empty path"}
	}
	full := filepath.Join(s.root, filepath.Clean(string(filepath.Separator)+p))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &ReferenceError{URI: ref, Message: "path escapes the document root"}
	}
	return full, nil
}

// Open reads the referenced file.
func (s *LocalSource) Open(ctx context.Context, ref DocumentRef) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.Resolve(ref.URI)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ReferenceError{URI: ref.URI, Message: "file not found"}
		}
		return nil, &ReferenceError{URI: ref.URI, Message: "failed to open file", Cause: err}
	}
	defer func() { _ = f.Close() }()

	data, err := readLimited(f, s.maxBytes)
	if err != nil {
		var tooLarge *TooLargeError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &ReferenceError{URI: ref.URI, Message: "failed to read file", Cause: err}
	}
	return &Document{Name: ref.Name(), ContentType: ref.ContentType, Data: data}, nil
}

// HTTPOptions configures HTTPSource.
type HTTPOptions struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	MaxBytes  int64
}

// HTTPSource fetches documents by URL.
type HTTPSource struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPSource creates an HTTPSource with the given options.
func NewHTTPSource(opts HTTPOptions) *HTTPSource {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &HTTPSource{client: &http.Client{Timeout: opts.Timeout}, opts: opts}
}

// Open fetches the referenced URL. Any non-2xx response is an error.
func (s *HTTPSource) Open(ctx context.Context, ref DocumentRef) (*Document, error) {
	parsed, err := url.Parse(ref.URI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &ReferenceError{URI: ref.URI, Message: "invalid URL", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URI, nil)
	if err != nil {
		return nil, &ReferenceError{URI: ref.URI, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	for key, value := range s.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ReferenceError{URI: ref.URI, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ReferenceError{URI: ref.URI, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	data, err := readLimited(resp.Body, s.opts.MaxBytes)
	if err != nil {
		var tooLarge *TooLargeError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ReferenceError{URI: ref.URI, Message: "failed to read response body", Cause: err}
	}

	contentType := ref.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return &Document{Name: ref.Name(), ContentType: contentType, Data: data}, nil
}

// Router dispatches references to a source by URI scheme. Inline content is
// served directly.
type Router struct {
	Local    *LocalSource
	HTTP     *HTTPSource
	MaxBytes int64
}

// Open implements DocumentSource.
func (r *Router) Open(ctx context.Context, ref DocumentRef) (*Document, error) {
	if len(ref.Content) > 0 {
		limit := r.MaxBytes
		if limit <= 0 {
			limit = DefaultMaxBytes
		}
		if int64(len(ref.Content)) > limit {
			return nil, &TooLargeError{Limit: limit}
		}
		return &Document{Name: ref.Name(), ContentType: ref.ContentType, Data: ref.Content}, nil
	}
	if strings.TrimSpace(ref.URI) == "" {
		return nil, &ReferenceError{URI: ref.URI, Message: "reference has neither uri nor content"}
	}

	scheme := ""
	if u, err := url.Parse(ref.URI); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}
	switch scheme {
	case "http", "https":
		if r.HTTP == nil {
			return nil, &ReferenceError{URI: ref.URI, Message: "HTTP documents are disabled"}
		}
		return r.HTTP.Open(ctx, ref)
	case "", "file":
		if r.Local == nil {
			return nil, &ReferenceError{URI: ref.URI, Message: "local documents are disabled"}
		}
		return r.Local.Open(ctx, ref)
	default:
		return nil, &ReferenceError{URI: ref.URI, Message: fmt.Sprintf("unsupported scheme %q", scheme)}
	}
}
