package extraction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/types"
)

// stubExtractor counts calls and either returns a fixed draft, fails, or
// blocks until its context ends.
type stubExtractor struct {
	name  string
	draft *types.ExtractionDraft
	err   error
	block bool
	inner FieldExtractor
	calls atomic.Int32
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(ctx context.Context, text string) (*types.ExtractionDraft, error) {
	s.calls.Add(1)
	switch {
	case s.block:
		<-ctx.Done()
		return nil, ctx.Err()
	case s.err != nil:
		return nil, s.err
	case s.inner != nil:
		return s.inner.Extract(ctx, text)
	default:
		return cloneDraft(s.draft), nil
	}
}

func strPtr(s string) *string { return &s }

func writeDocs(t *testing.T, docs map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

type pipelineFixture struct {
	pipeline  *Pipeline
	heuristic *stubExtractor
}

func newPipelineFixture(t *testing.T, cfg Config, model FieldExtractor) *pipelineFixture {
	t.Helper()
	root := writeDocs(t, map[string]string{
		"resume.txt": sampleResume,
		"short.txt":  "Skills: Go",
		"photo.png":  "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR",
	})

	heuristic := &stubExtractor{name: "heuristic", inner: newHeuristic()}
	opts := []Option{WithMetrics(observability.NewMetrics())}
	if model != nil {
		opts = append(opts, WithLLM(model))
	}
	p := NewPipeline(&Router{Local: NewLocalSource(root, 0)}, heuristic, cfg, opts...)
	return &pipelineFixture{pipeline: p, heuristic: heuristic}
}

func TestPipeline_HeuristicOK(t *testing.T) {
	f := newPipelineFixture(t, Config{}, nil)

	draft := f.pipeline.Extract(context.Background(), DocumentRef{URI: "resume.txt"}, 0)
	assert.Equal(t, types.ExtractionOK, draft.Status)
	assert.False(t, draft.Partial)
	assert.Equal(t, "heuristic", draft.Extractor)
	assert.Equal(t, DocumentHash([]byte(sampleResume)), draft.DocumentHash)
	assert.Equal(t, "Senior Backend Engineer", *draft.Headline)
}

func TestPipeline_CachesDeterministicOutcomes(t *testing.T) {
	f := newPipelineFixture(t, Config{}, nil)
	ctx := context.Background()

	first := f.pipeline.Extract(ctx, DocumentRef{URI: "resume.txt"}, 0)
	*first.Headline = "changed by caller"
	first.Skills[0] = "changed"

	second := f.pipeline.Extract(ctx, DocumentRef{URI: "resume.txt"}, 0)
	assert.Equal(t, int32(1), f.heuristic.calls.Load())
	assert.Equal(t, "Senior Backend Engineer", *second.Headline)
	assert.Equal(t, "Go", second.Skills[0])

	inline := f.pipeline.Extract(ctx, DocumentRef{Content: []byte(sampleResume)}, 0)
	assert.Equal(t, int32(1), f.heuristic.calls.Load())
	assert.Equal(t, second, inline)
}

func TestPipeline_CacheFollowsVocabularyVersion(t *testing.T) {
	root := writeDocs(t, map[string]string{"notes.txt": "Worked on Kubernetes clusters and Terraform modules."})
	ctx := context.Background()

	var (
		version atomic.Int64
		terms   atomic.Pointer[[]string]
	)
	version.Store(1)
	terms.Store(&[]string{"kubernetes"})
	heuristic := &stubExtractor{name: "heuristic", inner: NewHeuristicExtractor(func() []string { return *terms.Load() }, fixedClock)}
	p := NewPipeline(&Router{Local: NewLocalSource(root, 0)}, heuristic, Config{},
		WithVocabularyVersion(version.Load))

	first := p.Extract(ctx, DocumentRef{URI: "notes.txt"}, 0)
	assert.Equal(t, []string{"kubernetes"}, first.Skills)

	again := p.Extract(ctx, DocumentRef{URI: "notes.txt"}, 0)
	assert.Equal(t, first, again)
	assert.Equal(t, int32(1), heuristic.calls.Load())

	terms.Store(&[]string{"kubernetes", "terraform"})
	version.Store(2)

	updated := p.Extract(ctx, DocumentRef{URI: "notes.txt"}, 0)
	assert.Equal(t, int32(2), heuristic.calls.Load())
	assert.Equal(t, []string{"kubernetes", "terraform"}, updated.Skills)
}

func TestPipeline_LowConfidence(t *testing.T) {
	f := newPipelineFixture(t, Config{}, nil)

	draft := f.pipeline.Extract(context.Background(), DocumentRef{URI: "short.txt"}, 0)
	assert.Equal(t, types.ExtractionLowConfidence, draft.Status)
	assert.Equal(t, []string{"Go"}, draft.Skills)
}

func TestPipeline_UnsupportedFormat(t *testing.T) {
	f := newPipelineFixture(t, Config{}, nil)
	ctx := context.Background()

	draft := f.pipeline.Extract(ctx, DocumentRef{URI: "photo.png"}, 0)
	assert.Equal(t, types.ExtractionUnsupportedFormat, draft.Status)
	assert.Equal(t, 0, draft.FieldCount())
	assert.NotEmpty(t, draft.Message)

	again := f.pipeline.Extract(ctx, DocumentRef{URI: "photo.png"}, 0)
	assert.Equal(t, draft, again)
	assert.Equal(t, int32(0), f.heuristic.calls.Load())
}

func TestPipeline_Oversized(t *testing.T) {
	f := newPipelineFixture(t, Config{MaxBytes: 16}, nil)

	draft := f.pipeline.Extract(context.Background(), DocumentRef{Content: []byte(sampleResume)}, 0)
	assert.Equal(t, types.ExtractionUnsupportedFormat, draft.Status)
	assert.Contains(t, draft.Message, "16 byte limit")
	assert.Equal(t, 0, draft.FieldCount())
}

func TestPipeline_UnresolvableReference(t *testing.T) {
	f := newPipelineFixture(t, Config{}, nil)

	draft := f.pipeline.Extract(context.Background(), DocumentRef{URI: "missing.pdf"}, 0)
	assert.Equal(t, types.ExtractionFailed, draft.Status)
	assert.Contains(t, draft.Message, "file not found")
	assert.Empty(t, draft.DocumentHash)
}

func TestPipeline_Cancelled(t *testing.T) {
	f := newPipelineFixture(t, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	draft := f.pipeline.Extract(ctx, DocumentRef{URI: "resume.txt"}, 0)
	assert.Equal(t, types.ExtractionCancelled, draft.Status)
	assert.Equal(t, 0, draft.FieldCount())
}

func TestPipeline_LLMMode(t *testing.T) {
	model := &stubExtractor{name: "llm", draft: &types.ExtractionDraft{
		Headline: strPtr("Staff Engineer"),
		Skills:   []string{"Go"},
	}}
	f := newPipelineFixture(t, Config{Mode: ModeLLM}, model)

	draft := f.pipeline.Extract(context.Background(), DocumentRef{URI: "resume.txt"}, 0)
	assert.Equal(t, types.ExtractionOK, draft.Status)
	assert.Equal(t, "llm", draft.Extractor)
	assert.Equal(t, "Staff Engineer", *draft.Headline)
	assert.Nil(t, draft.CurrentCompany)
	assert.Equal(t, int32(0), f.heuristic.calls.Load())
}

func TestPipeline_LLMModeNotConfigured(t *testing.T) {
	f := newPipelineFixture(t, Config{}, nil)

	draft := f.pipeline.ExtractMode(context.Background(), DocumentRef{URI: "resume.txt"}, ModeLLM, 0)
	assert.Equal(t, types.ExtractionFailed, draft.Status)
}

func TestPipeline_LLMModeTimeout(t *testing.T) {
	model := &stubExtractor{name: "llm", block: true}
	f := newPipelineFixture(t, Config{}, model)

	draft := f.pipeline.ExtractMode(context.Background(), DocumentRef{URI: "resume.txt"}, ModeLLM, 20*time.Millisecond)
	assert.Equal(t, types.ExtractionTimeout, draft.Status)
	assert.True(t, draft.Partial)
	assert.Equal(t, 0, draft.FieldCount())
}

func TestPipeline_HybridMergesModelFields(t *testing.T) {
	model := &stubExtractor{name: "llm", draft: &types.ExtractionDraft{
		Headline: strPtr("Staff Engineer"),
		Skills:   []string{"Go", "Distributed Systems"},
	}}
	f := newPipelineFixture(t, Config{Mode: ModeHybrid}, model)

	draft := f.pipeline.Extract(context.Background(), DocumentRef{URI: "resume.txt"}, 0)
	assert.Equal(t, types.ExtractionOK, draft.Status)
	assert.Equal(t, "hybrid", draft.Extractor)
	assert.Equal(t, "Staff Engineer", *draft.Headline)
	assert.Equal(t, []string{"Go", "Distributed Systems"}, draft.Skills)
	assert.Equal(t, "Acme Corp", *draft.CurrentCompany)
	assert.Equal(t, 8, *draft.YearsOfExperience)
}

func TestPipeline_HybridFallsBackOnModelFailure(t *testing.T) {
	model := &stubExtractor{name: "llm", err: errors.New("quota exhausted")}
	f := newPipelineFixture(t, Config{Mode: ModeHybrid}, model)
	ctx := context.Background()

	draft := f.pipeline.Extract(ctx, DocumentRef{URI: "resume.txt"}, 0)
	assert.Equal(t, types.ExtractionOK, draft.Status)
	assert.Equal(t, "Senior Backend Engineer", *draft.Headline)
	assert.Contains(t, draft.Message, "heuristic fields only")

	f.pipeline.Extract(ctx, DocumentRef{URI: "resume.txt"}, 0)
	assert.Equal(t, int32(2), model.calls.Load())
}

func TestPipeline_HybridTimeoutKeepsHeuristicFields(t *testing.T) {
	model := &stubExtractor{name: "llm", block: true}
	f := newPipelineFixture(t, Config{Mode: ModeHybrid}, model)

	draft := f.pipeline.Extract(context.Background(), DocumentRef{URI: "resume.txt"}, 20*time.Millisecond)
	assert.Equal(t, types.ExtractionTimeout, draft.Status)
	assert.True(t, draft.Partial)
	require.NotNil(t, draft.Headline)
	assert.Equal(t, "Senior Backend Engineer", *draft.Headline)
	assert.Equal(t, "hybrid", draft.Extractor)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeHeuristic, false},
		{"LLM", ModeLLM, false},
		{" hybrid ", ModeHybrid, false},
		{"magic", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
