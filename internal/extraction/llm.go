package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/jonathan/talent-match/internal/llm"
	"github.com/jonathan/talent-match/internal/logger"
	"github.com/jonathan/talent-match/internal/observability"
	"github.com/jonathan/talent-match/internal/resilience"
	"github.com/jonathan/talent-match/internal/schemas"
	"github.com/jonathan/talent-match/internal/types"
)

const (
	llmOperation       = "llm.extract_profile"
	maxPromptTextRunes = 30000
)

// llmDraft mirrors the JSON the model is asked to produce.
type llmDraft struct {
	Headline           *string  `json:"headline"`
	CurrentPosition    *string  `json:"currentPosition"`
	CurrentCompany     *string  `json:"currentCompany"`
	YearsOfExperience  *int     `json:"yearsOfExperience"`
	EducationLevel     *string  `json:"educationLevel"`
	Skills             []string `json:"skills"`
	PreferredLocations []string `json:"preferredLocations"`
	Education          []struct {
		Degree      *string `json:"degree"`
		Institution *string `json:"institution"`
		Year        *int    `json:"year"`
	} `json:"education"`
	WorkExperience []struct {
		Title       *string `json:"title"`
		Company     *string `json:"company"`
		Duration    *string `json:"duration"`
		Description *string `json:"description"`
	} `json:"workExperience"`
}

// LLMExtractor asks a language model for profile fields and validates the
// answer against the draft schema.
type LLMExtractor struct {
	client   llm.Client
	tier     llm.ModelTier
	executor *resilience.Executor
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewLLMExtractor wraps client. A nil executor runs each call once.
func NewLLMExtractor(client llm.Client, tier llm.ModelTier, executor *resilience.Executor, metrics *observability.Metrics, log *zap.Logger) *LLMExtractor {
	if tier == "" {
		tier = llm.TierLite
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1}, log)
	}
	return &LLMExtractor{
		client:   client,
		tier:     tier,
		executor: executor,
		metrics:  metrics,
		logger:   logger.Named(log, "llm_extractor"),
	}
}

// Name implements FieldExtractor.
func (e *LLMExtractor) Name() string { return string(ModeLLM) }

// Extract implements FieldExtractor.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (*types.ExtractionDraft, error) {
	prompt := llm.BuildExtractionPrompt(llm.ResumeProfileSchema(), truncateRunes(text, maxPromptTextRunes))

	var answer string
	err := e.executor.Execute(ctx, llmOperation, func(ctx context.Context) error {
		out, err := e.client.GenerateJSON(ctx, prompt, e.tier)
		if err != nil {
			return err
		}
		answer = out
		return nil
	}, classifyLLMError)
	if err != nil {
		e.metrics.RecordLLMCall(llmCallStatus(err))
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	if err := schemas.ValidateDraft(answer); err != nil {
		e.metrics.RecordLLMCall("invalid")
		e.logger.Warn("model answer failed validation",
			zap.Error(err),
			zap.String("answer", logger.Truncate(answer, 200)))
		return nil, err
	}
	e.metrics.RecordLLMCall("ok")

	var parsed llmDraft
	if err := json.Unmarshal([]byte(answer), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode model answer: %w", err)
	}
	return parsed.toDraft(e.Name()), nil
}

func (d llmDraft) toDraft(extractor string) *types.ExtractionDraft {
	draft := &types.ExtractionDraft{
		Headline:           nonEmpty(d.Headline),
		CurrentPosition:    nonEmpty(d.CurrentPosition),
		CurrentCompany:     nonEmpty(d.CurrentCompany),
		YearsOfExperience:  d.YearsOfExperience,
		EducationLevel:     nonEmpty(d.EducationLevel),
		Skills:             compactStrings(d.Skills),
		PreferredLocations: compactStrings(d.PreferredLocations),
		Extractor:          extractor,
	}
	for _, e := range d.Education {
		entry := types.EducationEntry{Degree: deref(e.Degree), Institution: deref(e.Institution)}
		if e.Year != nil {
			entry.Year = *e.Year
		}
		if entry != (types.EducationEntry{}) {
			draft.Education = append(draft.Education, entry)
		}
	}
	for _, w := range d.WorkExperience {
		entry := types.WorkExperience{
			Title:       deref(w.Title),
			Company:     deref(w.Company),
			Duration:    deref(w.Duration),
			Description: deref(w.Description),
		}
		if entry != (types.WorkExperience{}) {
			draft.WorkExperience = append(draft.WorkExperience, entry)
		}
	}
	return draft
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func nonEmpty(s *string) *string {
	v := deref(s)
	if v == "" {
		return nil
	}
	return &v
}

func compactStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// classifyLLMError retries throttling, server errors and network failures.
func classifyLLMError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code)
	}
	var coded interface{ HTTPCode() int }
	if errors.As(err, &coded) && coded.HTTPCode() > 0 {
		return classifyStatus(coded.HTTPCode())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func classifyStatus(code int) resilience.ErrorClassification {
	switch {
	case code == 429 || code >= 500:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case code >= 400:
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func llmCallStatus(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case resilience.IsCircuitOpen(err):
		return "circuit_open"
	default:
		return "error"
	}
}
