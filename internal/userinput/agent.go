package userinput

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/application"
)

const (
	skipKeyword = "skip"
	skipConfirm = "skip!"
)

type responseKind int

const (
	responseBlank responseKind = iota
	responseAnswer
	responseSkip
)

type response struct {
	kind  responseKind
	value string
}

// Agent turns unanswered fields into a pause for human input.
type Agent struct {
	prompter    Prompter
	pending     *PendingStore
	prefillPath string
	logger      *zap.Logger
}

func NewAgent(prompter Prompter, pending *PendingStore, prefillPath string, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{prompter: prompter, pending: pending, prefillPath: prefillPath, logger: logger}
}

// Collect persists the pending questions and, when wait is set, prompts for each field and records the answers.
// Without wait it returns a PendingUserInputError right after persisting.
func (a *Agent) Collect(ctx context.Context, appCtx *application.Context, fields []*application.FieldDescriptor, reasons map[string]string, wait bool) error {
	if len(fields) == 0 {
		return nil
	}

	for _, field := range fields {
		if _, ok := appCtx.Pending[field.ID]; !ok {
			appCtx.RecordPending(field, reasons[field.ID])
		}
	}

	req, err := a.pending.WriteAwaiting(appCtx, fields, reasons)
	if err != nil {
		return err
	}

	a.logger.Info("pending questions written",
		zap.Int("count", len(fields)),
		zap.String("path", a.pending.JSONPath),
		zap.Bool("wait_for_user", wait),
	)

	if !wait {
		return application.NewPendingUserInput("user input required for %d field(s), see %s", len(fields), a.pending.JSONPath)
	}

	defaults := LoadPrefill(a.prefillPath, a.logger)
	responses := make([]response, len(fields))

	a.prompter.Say("\n=== Additional Information Required ===")
	for i, field := range fields {
		a.prompter.Say(header(field, reasons[field.ID]))
		resp, err := a.askField(ctx, field, defaults[field.ID])
		if err != nil {
			return err
		}
		responses[i] = resp
	}
	a.prompter.Say("\nThanks! Continuing with the workflow...\n")

	for i, field := range fields {
		if err := a.record(appCtx, field, responses[i]); err != nil {
			return err
		}
	}

	return a.pending.WriteResolved(req)
}

func (a *Agent) record(appCtx *application.Context, field *application.FieldDescriptor, resp response) error {
	switch resp.kind {
	case responseAnswer:
		return appCtx.RecordAnswer(&application.AnswerRecord{
			FieldID:     field.ID,
			Answer:      resp.value,
			Source:      application.SourceUserProvided,
			ApprovedBy:  application.ApproverUser,
			DisplayName: field.DisplayName(),
		})
	case responseSkip:
		if field.IsCheckbox() {
			return appCtx.RecordAnswer(&application.AnswerRecord{
				FieldID:     field.ID,
				Answer:      "false",
				Source:      application.SourceUserSkipped,
				ApprovedBy:  application.ApproverUser,
				DisplayName: field.DisplayName(),
			})
		}
		appCtx.RecordSkip(field)
	default:
		// A blank reply means no answer, including one recorded earlier.
		appCtx.ClearAnswer(field.ID)
	}
	return nil
}

func (a *Agent) askField(ctx context.Context, field *application.FieldDescriptor, fallback string) (response, error) {
	label := "Enter answer"
	if fallback != "" {
		label = fmt.Sprintf("Enter answer [default: %s]", fallback)
	}

	for {
		line, err := a.prompter.Ask(ctx, label)
		if err != nil {
			return response{}, err
		}

		input := strings.TrimSpace(line)
		if input == "" && fallback != "" {
			input = fallback
		}

		if input == "" && !field.Required && !field.IsCheckbox() {
			return response{kind: responseBlank}, nil
		}

		if strings.EqualFold(input, skipKeyword) {
			if field.Required {
				confirm, err := a.prompter.Ask(ctx, "Field is required. Type 'skip!' to confirm or provide a value")
				if err != nil {
					return response{}, err
				}
				if strings.ToLower(strings.TrimSpace(confirm)) != skipConfirm {
					continue
				}
			}
			return response{kind: responseSkip}, nil
		}

		if input == "" {
			a.prompter.Say("A value is required; please provide one or type 'skip'.")
			continue
		}

		value, hint := interpret(field, input)
		if hint != "" {
			a.prompter.Say(hint)
			continue
		}
		return response{kind: responseAnswer, value: value}, nil
	}
}

func header(field *application.FieldDescriptor, reason string) string {
	required := "optional"
	if field.Required {
		required = "required"
	}

	lines := []string{
		"",
		fmt.Sprintf("%s (%s)", field.Prompt(), required),
		"Type: " + DescribeKind(field),
	}
	if reason != "" {
		lines = append(lines, "Reason: "+reason)
	}
	if field.HasOptions() {
		lines = append(lines, "Options:")
		for i, option := range field.Options {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, option))
		}
	}
	lines = append(lines, "(Enter 'skip' to leave blank)")
	return strings.Join(lines, "\n")
}
