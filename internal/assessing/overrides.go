package assessing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/ai"
	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/utils"
)

const OverridesName = "debug_answers"

// overrideEntry is the object form of a debug answer.
type overrideEntry struct {
	Answer      any    `mapstructure:"answer"`
	Value       any    `mapstructure:"value"`
	DisplayName string `mapstructure:"display_name"`
	Label       string `mapstructure:"label"`
	Source      string `mapstructure:"source"`
	ApprovedBy  string `mapstructure:"approved_by"`
}

// Overrides answers fields from a user-supplied debug answers file instead of any automated logic.
type Overrides struct {
	disabled bool
	reason   string
	path     string
	logger   *zap.Logger
}

func NewOverrides(path string, logger *zap.Logger) *Overrides {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Overrides{path: strings.TrimSpace(path), logger: logger}
}

func (o *Overrides) Name() string { return OverridesName }

func (o *Overrides) Disable(reason string) {
	o.disabled = true
	o.reason = reason
}

func (o *Overrides) IsEnabled() bool { return !o.disabled }

func (o *Overrides) Apply(_ context.Context, appCtx *application.Context, fields []*application.FieldDescriptor) (Result, error) {
	initial := len(Unanswered(appCtx, fields))

	answers, err := LoadOverrides(o.path)
	if err != nil {
		return Result{}, err
	}

	lower := make(map[string]any, len(answers))
	for key, value := range answers {
		lower[strings.ToLower(key)] = value
	}

	for _, field := range fields {
		record, ok := resolveOverride(field, answers, lower)
		if !ok {
			continue
		}
		if err := appCtx.RecordAnswer(record); err != nil {
			o.logger.Warn("ignoring debug answer", zap.String("field_id", field.ID), zap.Error(err))
			continue
		}
		o.logger.Debug("field answered from debug file", zap.String("field_id", field.ID))
	}

	return result(appCtx, fields, initial), nil
}

func (o *Overrides) Status() Status {
	return Status{Name: o.Name(), Enabled: o.IsEnabled(), Reason: o.reason, Details: map[string]string{"path": o.path}}
}

// LoadOverrides reads the debug answers file. Any problem with it means a human has to fix the file.
func LoadOverrides(path string) (map[string]any, error) {
	if path == "" {
		return nil, application.NewPendingUserInput("debug answers file is not set")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &application.PendingUserInputError{
			Message: fmt.Sprintf("debug answers file not found: %s", path),
			Err:     err,
		}
	}

	var payload any
	if err := utils.ReadJSON(path, &payload); err != nil {
		return nil, &application.PendingUserInputError{
			Message: fmt.Sprintf("debug answers file invalid: %v", err),
			Err:     err,
		}
	}

	answers, ok := payload.(map[string]any)
	if !ok {
		return nil, application.NewPendingUserInput("debug answers file must be a JSON object of field_id to answer")
	}
	return answers, nil
}

func resolveOverride(field *application.FieldDescriptor, answers, lower map[string]any) (*application.AnswerRecord, bool) {
	for _, candidate := range []string{field.ID, field.Label, field.Question, field.NameAttr} {
		if candidate == "" {
			continue
		}
		entry, ok := answers[candidate]
		if !ok {
			entry, ok = lower[strings.ToLower(candidate)]
		}
		if !ok {
			continue
		}
		if record, ok := parseOverride(field, entry); ok {
			return record, true
		}
	}
	return nil, false
}

func parseOverride(field *application.FieldDescriptor, entry any) (*application.AnswerRecord, bool) {
	record := &application.AnswerRecord{
		FieldID:     field.ID,
		Source:      application.SourceDebugAnswers,
		ApprovedBy:  application.ApproverDebug,
		DisplayName: field.DisplayName(),
	}

	switch v := entry.(type) {
	case string:
		record.Answer = v
	case map[string]any:
		var parsed overrideEntry
		if err := mapstructure.Decode(v, &parsed); err != nil {
			return nil, false
		}
		answer := parsed.Answer
		if answer == nil || ai.CoerceString(answer) == "" {
			answer = parsed.Value
		}
		record.Answer = ai.CoerceString(answer)
		if name := firstNonEmpty(parsed.DisplayName, parsed.Label); name != "" {
			record.DisplayName = name
		}
		record.Provenance = strings.TrimSpace(parsed.Source)
		if approver := strings.TrimSpace(parsed.ApprovedBy); approver != "" {
			record.ApprovedBy = application.Approver(approver)
		}
	default:
		return nil, false
	}

	if record.Answer == "" {
		return nil, false
	}
	return record, true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}
