package assessing

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/application"
)

const HeuristicsName = "heuristics"

type rule struct {
	name    string
	matches func(descriptor string, field *application.FieldDescriptor) bool
	resolve func(h *heuristicInput, field *application.FieldDescriptor) (string, application.Source)
}

type heuristicInput struct {
	appCtx   *application.Context
	meta     application.ProfileMeta
	location location
}

// rules are evaluated in order. The first rule whose keywords match decides the field.
var rules = []rule{
	{
		name:    "resume",
		matches: isResumeField,
		resolve: func(h *heuristicInput, _ *application.FieldDescriptor) (string, application.Source) {
			return h.appCtx.CVPath, application.SourceAutoResume
		},
	},
	{
		name:    "cover_letter",
		matches: containsAny("cover letter"),
		resolve: func(h *heuristicInput, field *application.FieldDescriptor) (string, application.Source) {
			if field.IsFile() {
				return h.appCtx.CoverLetterPath, application.SourceAutoCoverLetter
			}
			return h.appCtx.CoverLetter, application.SourceAutoCoverLetter
		},
	},
	{
		name:    "phone",
		matches: containsAny("phone"),
		resolve: func(h *heuristicInput, _ *application.FieldDescriptor) (string, application.Source) {
			return h.meta.Contact.Phone, application.SourceProfilePhone
		},
	},
	{
		name:    "email",
		matches: containsAny("email"),
		resolve: func(h *heuristicInput, _ *application.FieldDescriptor) (string, application.Source) {
			return h.meta.Contact.Email, application.SourceProfileEmail
		},
	},
	{
		name:    "city",
		matches: containsAny("city", "town", "locality"),
		resolve: func(h *heuristicInput, _ *application.FieldDescriptor) (string, application.Source) {
			return h.location.City, application.SourceProfileLocation
		},
	},
	{
		name:    "country",
		matches: containsAny("country", "nation"),
		resolve: func(h *heuristicInput, field *application.FieldDescriptor) (string, application.Source) {
			option, _ := matchOption(field, h.location.CountryFull)
			return option, application.SourceProfileLocation
		},
	},
	{
		name:    "postal_code",
		matches: containsAny("postcode", "postal", "zip"),
		resolve: func(h *heuristicInput, _ *application.FieldDescriptor) (string, application.Source) {
			return h.location.Postal, application.SourceProfileLocation
		},
	},
	{
		name:    "address",
		matches: containsAny("address"),
		resolve: func(h *heuristicInput, _ *application.FieldDescriptor) (string, application.Source) {
			return h.location.Full, application.SourceProfileLocation
		},
	},
	{
		name:    "work_authorization",
		matches: containsAny("right to work", "work author"),
		resolve: func(h *heuristicInput, field *application.FieldDescriptor) (string, application.Source) {
			preference := workAuthorization(h.meta.WorkAuthorization, h.location.CountryFull)
			option, _ := matchOption(field, preference)
			return option, application.SourceWorkAuthorization
		},
	},
}

// Heuristics answers fields that need no inference: uploads, contact details, location and work authorization.
type Heuristics struct {
	disabled bool
	reason   string
	logger   *zap.Logger
}

func NewHeuristics(logger *zap.Logger) *Heuristics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heuristics{logger: logger}
}

func (h *Heuristics) Name() string { return HeuristicsName }

func (h *Heuristics) Disable(reason string) {
	h.disabled = true
	h.reason = reason
}

func (h *Heuristics) IsEnabled() bool { return !h.disabled }

func (h *Heuristics) Apply(_ context.Context, appCtx *application.Context, fields []*application.FieldDescriptor) (Result, error) {
	pending := Unanswered(appCtx, fields)
	initial := len(pending)

	input := &heuristicInput{appCtx: appCtx}
	if appCtx.Profile != nil {
		input.meta = appCtx.Profile.Meta
	}
	input.location = deriveLocation(input.meta)

	for _, field := range pending {
		descriptor := describe(field)
		if descriptor == "" {
			continue
		}

		for _, r := range rules {
			if !r.matches(descriptor, field) {
				continue
			}
			answer, source := r.resolve(input, field)
			if answer == "" {
				h.logger.Debug("heuristic matched without a value",
					zap.String("field_id", field.ID),
					zap.String("rule", r.name),
				)
				break
			}

			if err := appCtx.RecordAnswer(&application.AnswerRecord{
				FieldID:     field.ID,
				Answer:      answer,
				Source:      source,
				ApprovedBy:  application.ApproverHeuristics,
				DisplayName: field.DisplayName(),
			}); err != nil {
				return Result{}, err
			}

			h.logger.Debug("field answered by heuristic",
				zap.String("field_id", field.ID),
				zap.String("rule", r.name),
				zap.String("source", string(source)),
			)
			break
		}
	}

	return result(appCtx, fields, initial), nil
}

func (h *Heuristics) Status() Status {
	return Status{Name: h.Name(), Enabled: h.IsEnabled(), Reason: h.reason}
}

// describe builds the lowercase text the rules match against.
func describe(field *application.FieldDescriptor) string {
	descriptor := strings.TrimSpace(strings.ToLower(field.Label + " " + field.Question))
	if descriptor != "" {
		return descriptor
	}
	if name := strings.TrimSpace(field.NameAttr); name != "" {
		return strings.ToLower(name)
	}
	return strings.ToLower(strings.TrimSpace(field.ID))
}

func containsAny(keywords ...string) func(string, *application.FieldDescriptor) bool {
	return func(descriptor string, _ *application.FieldDescriptor) bool {
		for _, keyword := range keywords {
			if strings.Contains(descriptor, keyword) {
				return true
			}
		}
		return false
	}
}

func isResumeField(descriptor string, field *application.FieldDescriptor) bool {
	if containsAny("resume", "cv", "curriculum")(descriptor, field) {
		return true
	}
	return field.IsFile() && containsAny("apply", "attachment")(descriptor, field)
}
