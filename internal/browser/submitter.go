package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/utils"
)

var submitKeywords = []string{"submit", "finish", "send", "apply", "complete"}

var truthyValues = map[string]bool{"1": true, "true": true, "yes": true, "y": true}

// Submitter reopens the application, fills every answered field and clicks submit.
type Submitter struct {
	logger       *zap.Logger
	loadSettle   time.Duration
	reopenSettle time.Duration
}

func NewSubmitter(logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{logger: logger, loadSettle: time.Second, reopenSettle: 2 * time.Second}
}

// Submit fills the form detected by the navigator.
// A required field without a valid answer yields *application.PendingUserInputError before anything is typed.
// A driver failure on a single field yields *application.FieldSubmissionError.
func (s *Submitter) Submit(ctx context.Context, page Page, appCtx *application.Context) (*application.SubmissionResult, error) {
	nav := appCtx.Navigation
	if nav == nil || len(nav.Fields) == 0 {
		return nil, errors.New("navigation result missing, navigate before submitting")
	}

	s.logger.Info("reopening job page", zap.String("url", appCtx.JobURL))
	if err := page.Goto(ctx, appCtx.JobURL); err != nil {
		return nil, err
	}
	if err := utils.WaitFor(ctx, s.loadSettle); err != nil {
		return nil, err
	}
	if err := s.reopenApplication(ctx, page, nav.ApplyMethods); err != nil {
		return nil, err
	}

	var missing []string
	for _, field := range nav.Fields {
		if field.Required && !appCtx.HasValidAnswer(field) {
			missing = append(missing, field.ID)
		}
	}
	if len(missing) > 0 {
		return nil, application.NewPendingUserInput("missing validated answers for: %s", strings.Join(missing, ", "))
	}

	var steps []string
	for _, field := range nav.Fields {
		record := appCtx.Answers[field.ID]
		if record == nil || record.Answer == "" {
			steps = append(steps, fmt.Sprintf("Skipped %s: no answer provided", field.DisplayName()))
			s.logger.Info("skipping field without answer", zap.String("field_id", field.ID))
			continue
		}

		step, err := s.fillField(ctx, page, appCtx, field, record.Answer)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &application.FieldSubmissionError{Field: field, Message: err.Error(), Err: err}
		}
		steps = append(steps, step)
	}

	steps = append(steps, s.clickSubmit(ctx, page))
	return &application.SubmissionResult{Message: "Application submitted", Steps: steps}, nil
}

func (s *Submitter) reopenApplication(ctx context.Context, page Page, methods []*application.ApplyMethod) error {
	for _, method := range methods {
		if method.Selector == "" && method.Label == "" {
			continue
		}
		s.logger.Debug("replaying apply method", zap.String("label", method.Label), zap.String("selector", method.Selector))
		if err := clickApplyMethod(ctx, page, method); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		return utils.WaitFor(ctx, s.reopenSettle)
	}
	return nil
}

func (s *Submitter) fillField(ctx context.Context, page Page, appCtx *application.Context, field *application.FieldDescriptor, answer string) (string, error) {
	label := field.DisplayName()

	if field.IsFile() {
		selector := resolveSelector(field)
		if selector == "" {
			return fmt.Sprintf("Skipped %s: no selector available", label), nil
		}
		if strings.Contains(strings.ToLower(label), "cover letter") && appCtx.CoverLetterPath != "" {
			s.logger.Info("uploading cover letter", zap.String("field_id", field.ID))
			return fmt.Sprintf("Uploaded cover letter for %s", label), page.Upload(ctx, selector, appCtx.CoverLetterPath)
		}
		s.logger.Info("uploading cv", zap.String("field_id", field.ID))
		return fmt.Sprintf("Uploaded CV for %s", label), page.Upload(ctx, selector, appCtx.CVPath)
	}

	switch field.Kind {
	case application.KindCheckbox:
		selector := resolveSelector(field)
		if selector == "" {
			return fmt.Sprintf("Skipped %s: missing selector for checkbox", label), nil
		}
		checked := truthyValues[strings.ToLower(strings.TrimSpace(answer))]
		state := "OFF"
		if checked {
			state = "ON"
		}
		return fmt.Sprintf("Set checkbox %s=%s", label, state), page.SetChecked(ctx, selector, checked)

	case application.KindRadio:
		selector := lookupFold(field.OptionSelectors, answer)
		if selector == "" {
			s.logger.Warn("radio option not found", zap.String("field_id", field.ID), zap.String("answer", answer))
			return fmt.Sprintf("Skipped %s: option '%s' not found", label, answer), nil
		}
		return fmt.Sprintf("Selected %s: %s", label, answer), page.Click(ctx, selector)

	case application.KindSelect:
		selector := resolveSelector(field)
		if selector == "" {
			s.logger.Warn("missing selector for select", zap.String("field_id", field.ID))
			return fmt.Sprintf("Skipped %s: missing selector for select", label), nil
		}
		value := lookupFold(field.OptionValues, answer)
		if value == "" {
			value = answer
		}
		return fmt.Sprintf("Selected option for %s: %s", label, answer), page.SelectOption(ctx, selector, value)

	case application.KindCombobox:
		selector := resolveSelector(field)
		if selector == "" {
			s.logger.Warn("missing selector for combobox", zap.String("field_id", field.ID))
			return fmt.Sprintf("Skipped %s: missing selector for combobox", label), nil
		}
		return fmt.Sprintf("Selected %s: %s", label, answer), page.SelectCombobox(ctx, selector, answer, listboxID(field))
	}

	selector := resolveSelector(field)
	if selector == "" {
		s.logger.Warn("missing selector", zap.String("field_id", field.ID))
		return fmt.Sprintf("Skipped %s: no selector available", label), nil
	}
	s.logger.Info("filling field", zap.String("field_id", field.ID))
	return fmt.Sprintf("Filled %s", label), page.Fill(ctx, selector, answer)
}

// clickSubmit clicks the first button or link whose text contains a submit keyword and returns the step taken.
func (s *Submitter) clickSubmit(ctx context.Context, page Page) string {
	html, err := page.HTML(ctx)
	if err != nil {
		s.logger.Warn("unable to read dom before submit", zap.Error(err))
		return "Could not retrieve DOM before submit"
	}
	doc, err := parseHTML(html)
	if err != nil {
		s.logger.Warn("unable to parse dom before submit", zap.Error(err))
		return "Could not retrieve DOM before submit"
	}

	clicked := ""
	doc.Find("button, a").EachWithBreak(func(_ int, button *goquery.Selection) bool {
		text := cleanText(button.Text())
		if !containsAny(strings.ToLower(text), submitKeywords) {
			return true
		}

		var err error
		if selector := buttonSelector(button); selector != "" {
			err = page.Click(ctx, selector)
		} else {
			err = page.ClickText(ctx, text)
		}
		if err != nil {
			s.logger.Debug("submit candidate click failed", zap.String("text", text), zap.Error(err))
			return ctx.Err() == nil
		}
		clicked = text
		return false
	})

	if clicked == "" {
		s.logger.Warn("no submit button detected")
		return "No submit button detected; manual review may be required"
	}
	s.logger.Info("clicked submit button", zap.String("text", clicked))
	return "Clicked submit button: " + clicked
}

func resolveSelector(field *application.FieldDescriptor) string {
	if field.Selector != "" {
		return field.Selector
	}
	if field.NameAttr != "" {
		return attrSelector("name", field.NameAttr)
	}
	return ""
}

// lookupFold finds key in m, ignoring case and surrounding spaces.
func lookupFold(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	key = strings.TrimSpace(key)
	for k, v := range m {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v
		}
	}
	return ""
}

func listboxID(field *application.FieldDescriptor) string {
	for _, key := range []string{"aria-controls", "aria-owns"} {
		if id := strings.TrimSpace(field.Meta(key)); id != "" {
			return strings.Fields(id)[0]
		}
	}
	return ""
}
