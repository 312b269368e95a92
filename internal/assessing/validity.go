package assessing

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/auto-apply/internal/ai"
	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/knowledge"
)

const (
	ValidityGateName = "validity_gate"
	validityBucket   = "answer_validity"

	DefaultTopK        = 6
	DefaultConcurrency = 4

	noEvidenceReason = "No supporting evidence found in profile/CV/cover letter."
)

//go:embed prompt.md
var promptTemplate string

var validityRequirements = []string{
	"Only answer if the evidence explicitly contains the required information.",
	"If the answer would involve guessing (e.g., government IDs, salary expectations), set can_answer=false and needs_user_input=true.",
	"When quoting experience or numbers, cite which evidence chunk you used in the provenance field.",
}

var validityOutputSchema = map[string]string{
	"can_answer":       "boolean",
	"field_name":       "string",
	"extracted_answer": "string | null",
	"needs_user_input": "boolean",
	"reasoning":        "string",
	"provenance":       "string | null",
}

// Searcher retrieves evidence chunks for a query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.Chunk, error)
}

// ValidityConfig controls the validity gate.
type ValidityConfig struct {
	TopK        int `mapstructure:"top-k" validate:"gte=0"`
	Concurrency int `mapstructure:"concurrency" validate:"gte=0"`
}

// ValidityGate approves answers only when retrieved evidence backs them.
type ValidityGate struct {
	disabled    bool
	reason      string
	topK        int
	concurrency int
	searcher    Searcher
	generator   ai.Generator
	logger      *zap.Logger
	assessments []*application.AnswerAssessment
}

func NewValidityGate(cfg ValidityConfig, searcher Searcher, generator ai.Generator, logger *zap.Logger) *ValidityGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if ai.IsOrdered(generator) {
		// Sequence responses are matched to fields in field order.
		concurrency = 1
	}
	return &ValidityGate{
		topK:        topK,
		concurrency: concurrency,
		searcher:    searcher,
		generator:   generator,
		logger:      logger,
	}
}

func (g *ValidityGate) Name() string { return ValidityGateName }

func (g *ValidityGate) Disable(reason string) {
	g.disabled = true
	g.reason = reason
}

func (g *ValidityGate) IsEnabled() bool { return !g.disabled }

func (g *ValidityGate) Apply(ctx context.Context, appCtx *application.Context, fields []*application.FieldDescriptor) (Result, error) {
	pending := Unanswered(appCtx, fields)
	initial := len(pending)

	assessments, err := g.Assess(ctx, pending)
	if err != nil {
		return Result{}, err
	}
	g.assessments = assessments

	byID := make(map[string]*application.FieldDescriptor, len(pending))
	for _, field := range pending {
		byID[field.ID] = field
	}

	for _, assessment := range assessments {
		if !assessment.CanAnswer || assessment.ExtractedAnswer == "" {
			continue
		}
		if appCtx.IsAnswered(assessment.FieldID) {
			continue
		}
		field := byID[assessment.FieldID]
		if err := appCtx.RecordAnswer(&application.AnswerRecord{
			FieldID:     assessment.FieldID,
			Answer:      assessment.ExtractedAnswer,
			Source:      application.SourceKnowledgeBase,
			Provenance:  assessment.Provenance,
			ApprovedBy:  application.ApproverValidity,
			DisplayName: field.DisplayName(),
		}); err != nil {
			return Result{}, err
		}
	}

	return result(appCtx, fields, initial), nil
}

// Assessments returns the verdicts of the last Apply call in field order.
func (g *ValidityGate) Assessments() []*application.AnswerAssessment {
	return g.assessments
}

func (g *ValidityGate) Status() Status {
	return Status{
		Name:    g.Name(),
		Enabled: g.IsEnabled(),
		Reason:  g.reason,
		Details: map[string]string{
			"top_k":       strconv.Itoa(g.topK),
			"concurrency": strconv.Itoa(g.concurrency),
		},
	}
}

// Assess produces one verdict per field, in field order. Inference for distinct fields runs concurrently
// unless the generator is ordered, in which case fields are assessed one after another.
func (g *ValidityGate) Assess(ctx context.Context, fields []*application.FieldDescriptor) ([]*application.AnswerAssessment, error) {
	results := make([]*application.AnswerAssessment, len(fields))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.concurrency)
	for i, field := range fields {
		group.Go(func() error {
			results[i] = g.assessField(groupCtx, field)
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (g *ValidityGate) assessField(ctx context.Context, field *application.FieldDescriptor) *application.AnswerAssessment {
	assessment := &application.AnswerAssessment{
		FieldID:        field.ID,
		FieldName:      field.DisplayName(),
		NeedsUserInput: true,
	}

	chunks, err := g.searcher.Search(ctx, Query(field), g.topK)
	if err != nil {
		g.logger.Warn("evidence search failed", zap.String("field_id", field.ID), zap.Error(err))
		assessment.Reasoning = fmt.Sprintf("evidence search failed: %v", err)
		return assessment
	}
	if len(chunks) == 0 {
		assessment.Reasoning = noEvidenceReason
		return assessment
	}

	prompt, err := buildPrompt(field, chunks)
	if err != nil {
		assessment.Reasoning = err.Error()
		return assessment
	}

	response, err := g.generator.GenerateJSON(ctx, prompt, map[string]string{
		ai.MetaBucket:    validityBucket,
		ai.MetaFieldID:   field.ID,
		ai.MetaFieldName: field.Label,
	})
	if err != nil {
		g.logger.Warn("validity inference failed", zap.String("field_id", field.ID), zap.Error(err))
		assessment.Reasoning = fmt.Sprintf("inference failed: %v", err)
		return assessment
	}

	assessment.CanAnswer = ai.CoerceBool(response["can_answer"])
	assessment.ExtractedAnswer = ai.CoerceString(response["extracted_answer"])
	assessment.NeedsUserInput = ai.CoerceBool(response["needs_user_input"])
	assessment.Reasoning = ai.CoerceString(response["reasoning"])
	assessment.Provenance = ai.CoerceString(response["provenance"])

	g.logger.Debug("field assessed",
		zap.String("field_id", field.ID),
		zap.Bool("can_answer", assessment.CanAnswer),
		zap.Bool("needs_user_input", assessment.NeedsUserInput),
	)
	return assessment
}

// Query builds the evidence search query for a field.
func Query(field *application.FieldDescriptor) string {
	parts := []string{field.Label, field.Question, field.Placeholder, field.NameAttr, field.Meta("data-question")}
	kept := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}

func buildPrompt(field *application.FieldDescriptor, chunks []knowledge.Chunk) (string, error) {
	instructions := map[string]any{
		"field": map[string]any{
			"field_id":    field.ID,
			"label":       field.Label,
			"question":    field.Question,
			"placeholder": field.Placeholder,
			"name_attr":   field.NameAttr,
			"input_type":  field.InputType,
			"kind":        field.Kind,
			"required":    field.Required,
			"options":     field.Options,
			"metadata":    field.Metadata,
		},
		"evidence":      chunks,
		"requirements":  validityRequirements,
		"output_schema": validityOutputSchema,
	}

	payload, err := json.MarshalIndent(instructions, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal validity prompt: %w", err)
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "{{INSTRUCTIONS_JSON}}"
	}
	return strings.ReplaceAll(template, "{{INSTRUCTIONS_JSON}}", string(payload)), nil
}
