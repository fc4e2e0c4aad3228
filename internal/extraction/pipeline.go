package extraction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/jonathan/talent-match/internal/logger"
	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/types"
)

// Mode selects which field extractors run.
type Mode string

// Extraction modes.
const (
	ModeHeuristic Mode = "heuristic"
	ModeLLM       Mode = "llm"
	ModeHybrid    Mode = "hybrid"
)

// ParseMode parses a mode name. An empty name is heuristic.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeHeuristic, nil
	case ModeHeuristic, ModeLLM, ModeHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("unknown extraction mode %q", s)
	}
}

// Config tunes the pipeline.
type Config struct {
	Mode     Mode          `mapstructure:"mode"`
	MaxBytes int64         `mapstructure:"max_bytes"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Mode:     ModeHeuristic,
		MaxBytes: DefaultMaxBytes,
		Timeout:  30 * time.Second,
		CacheTTL: time.Hour,
	}
}

// Pipeline extracts profile drafts from documents.
type Pipeline struct {
	source    DocumentSource
	heuristic FieldExtractor
	llm       FieldExtractor
	cfg       Config
	cache     *cache.Cache
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	vocab     func() int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLLM enables the llm and hybrid modes.
func WithLLM(e FieldExtractor) Option {
	return func(p *Pipeline) { p.llm = e }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger.Named(log, "extraction") }
}

// WithMetrics records extraction outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces the clock used to time extractions.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithVocabularyVersion keys cached heuristic and hybrid outcomes by the
// version of the vocabulary the heuristic lexicon scan reads.
func WithVocabularyVersion(version func() int64) Option {
	return func(p *Pipeline) { p.vocab = version }
}

// NewPipeline creates a Pipeline reading from source.
func NewPipeline(source DocumentSource, heuristic FieldExtractor, cfg Config, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	p := &Pipeline{
		source:    source,
		heuristic: heuristic,
		cfg:       cfg,
		cache:     cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:    logger.Named(nil, "extraction"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultMode returns the configured mode.
func (p *Pipeline) DefaultMode() Mode { return p.cfg.Mode }

// Extract runs the configured mode. It never fails; the outcome is in the
// draft's status.
func (p *Pipeline) Extract(ctx context.Context, ref DocumentRef, timeout time.Duration) *types.ExtractionDraft {
	return p.ExtractMode(ctx, ref, p.cfg.Mode, timeout)
}

// ExtractMode runs one mode with a deadline. A non-positive timeout uses the
// configured default.
func (p *Pipeline) ExtractMode(ctx context.Context, ref DocumentRef, mode Mode, timeout time.Duration) *types.ExtractionDraft {
	if mode == "" {
		mode = p.cfg.Mode
	}
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	start := p.now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	draft := p.run(ctx, ref, mode)
	draft.Extractor = string(mode)

	p.metrics.RecordExtraction(string(mode), string(draft.Status), p.now().Sub(start))
	p.logger.Debug("extraction finished",
		zap.String("mode", string(mode)),
		zap.String("status", string(draft.Status)),
		zap.Int("fields", draft.FieldCount()),
		zap.String("document", logger.Truncate(draft.DocumentHash, 12)))
	return draft
}

func (p *Pipeline) run(ctx context.Context, ref DocumentRef, mode Mode) *types.ExtractionDraft {
	if mode != ModeHeuristic && mode != ModeLLM && mode != ModeHybrid {
		return &types.ExtractionDraft{Status: types.ExtractionFailed, Message: fmt.Sprintf("unknown extraction mode %q", mode)}
	}

	doc, err := p.source.Open(ctx, ref)
	if err != nil {
		return p.openFailure(ctx, err)
	}

	hash := DocumentHash(doc.Data)
	key := p.cacheKey(hash, mode)
	if cached, ok := p.cache.Get(key); ok {
		return cloneDraft(cached.(*types.ExtractionDraft))
	}

	draft, cacheable := p.extractFields(ctx, doc, mode)
	draft.DocumentHash = hash
	if draft.Status == "" {
		draft.Status = types.ExtractionOK
		if draft.FieldCount() < 2 {
			draft.Status = types.ExtractionLowConfidence
		}
	}

	if cacheable {
		switch draft.Status {
		case types.ExtractionOK, types.ExtractionLowConfidence, types.ExtractionUnsupportedFormat:
			stored := cloneDraft(draft)
			stored.Extractor = string(mode)
			p.cache.SetDefault(key, stored)
		}
	}
	return draft
}

// extractFields returns the draft and whether it is a deterministic result
// for this document and mode.
func (p *Pipeline) extractFields(ctx context.Context, doc *Document, mode Mode) (*types.ExtractionDraft, bool) {
	if int64(len(doc.Data)) > p.cfg.MaxBytes {
		return &types.ExtractionDraft{
			Status:  types.ExtractionUnsupportedFormat,
			Message: (&TooLargeError{Limit: p.cfg.MaxBytes}).Error(),
		}, true
	}

	format := DetectFormat(doc.ContentType, doc.Name, doc.Data)
	text, err := ExtractText(format, doc.Data)
	if err != nil {
		return &types.ExtractionDraft{Status: types.ExtractionUnsupportedFormat, Message: err.Error()}, true
	}
	if ctx.Err() != nil {
		return interrupted(ctx, nil), false
	}

	if mode == ModeLLM {
		if p.llm == nil {
			return &types.ExtractionDraft{Status: types.ExtractionFailed, Message: "model extraction is not configured"}, false
		}
		draft, err := p.llm.Extract(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(ctx, nil), false
			}
			return &types.ExtractionDraft{Status: types.ExtractionFailed, Message: err.Error()}, false
		}
		return draft, true
	}

	heuristic, err := p.heuristic.Extract(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx, nil), false
		}
		return &types.ExtractionDraft{Status: types.ExtractionFailed, Message: err.Error()}, false
	}
	if mode == ModeHeuristic {
		return heuristic, true
	}

	if p.llm == nil {
		heuristic.Message = "model extraction is not configured; heuristic fields only"
		return heuristic, false
	}
	fromModel, err := p.llm.Extract(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(ctx, heuristic), false
		}
		p.logger.Warn("model extraction failed, keeping heuristic fields", zap.Error(err))
		heuristic.Message = "model extraction failed; heuristic fields only"
		return heuristic, false
	}
	return mergeDrafts(heuristic, fromModel), true
}

func (p *Pipeline) openFailure(ctx context.Context, err error) *types.ExtractionDraft {
	if ctx.Err() != nil {
		return interrupted(ctx, nil)
	}
	var tooLarge *TooLargeError
	if errors.As(err, &tooLarge) {
		return &types.ExtractionDraft{Status: types.ExtractionUnsupportedFormat, Message: err.Error()}
	}
	return &types.ExtractionDraft{Status: types.ExtractionFailed, Message: err.Error()}
}

// interrupted reports a deadline as a partial timeout carrying whatever was
// found so far, and a cancellation as an empty cancelled draft.
func interrupted(ctx context.Context, found *types.ExtractionDraft) *types.ExtractionDraft {
	draft := &types.ExtractionDraft{}
	if found != nil {
		draft = cloneDraft(found)
	}
	draft.Message = ""
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		draft.Status = types.ExtractionTimeout
		draft.Partial = true
		draft.Message = "extraction deadline exceeded"
		return draft
	}
	draft.Status = types.ExtractionCancelled
	draft.Message = "extraction cancelled"
	draft.ClearFields()
	return draft
}

// mergeDrafts overlays every field the model found onto the heuristic draft.
func mergeDrafts(base, overlay *types.ExtractionDraft) *types.ExtractionDraft {
	out := cloneDraft(base)
	if overlay.Headline != nil {
		out.Headline = overlay.Headline
	}
	if overlay.CurrentPosition != nil {
		out.CurrentPosition = overlay.CurrentPosition
	}
	if overlay.CurrentCompany != nil {
		out.CurrentCompany = overlay.CurrentCompany
	}
	if overlay.YearsOfExperience != nil {
		out.YearsOfExperience = overlay.YearsOfExperience
	}
	if overlay.EducationLevel != nil {
		out.EducationLevel = overlay.EducationLevel
	}
	if len(overlay.Skills) > 0 {
		out.Skills = slices.Clone(overlay.Skills)
	}
	if len(overlay.PreferredLocations) > 0 {
		out.PreferredLocations = slices.Clone(overlay.PreferredLocations)
	}
	if len(overlay.Education) > 0 {
		out.Education = slices.Clone(overlay.Education)
	}
	if len(overlay.WorkExperience) > 0 {
		out.WorkExperience = slices.Clone(overlay.WorkExperience)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneDraft(d *types.ExtractionDraft) *types.ExtractionDraft {
	out := *d
	out.Headline = clonePtr(d.Headline)
	out.CurrentPosition = clonePtr(d.CurrentPosition)
	out.CurrentCompany = clonePtr(d.CurrentCompany)
	out.YearsOfExperience = clonePtr(d.YearsOfExperience)
	out.EducationLevel = clonePtr(d.EducationLevel)
	out.Skills = slices.Clone(d.Skills)
	out.PreferredLocations = slices.Clone(d.PreferredLocations)
	out.Education = slices.Clone(d.Education)
	out.WorkExperience = slices.Clone(d.WorkExperience)
	return &out
}

// cacheKey identifies an outcome. Modes that run the heuristic also depend on
// the vocabulary version.
func (p *Pipeline) cacheKey(hash string, mode Mode) string {
	key := hash + ":" + string(mode)
	if p.vocab != nil && mode != ModeLLM {
		key += fmt.Sprintf(":v%d", p.vocab())
	}
	return key
}
