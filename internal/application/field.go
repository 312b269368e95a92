package application

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldKind is the closed set of form controls the workflow knows how to answer and fill.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextarea FieldKind = "textarea"
	KindCheckbox FieldKind = "checkbox"
	KindRadio    FieldKind = "radio"
	KindSelect   FieldKind = "select"
	KindCombobox FieldKind = "combobox"
	KindFile     FieldKind = "file"
	KindDate     FieldKind = "date"
)

// FieldDescriptor describes one detected form input. It is immutable once the navigator hands it over.
type FieldDescriptor struct {
	ID          string `json:"field_id" validate:"required"`
	Label       string `json:"label"`
	Question    string `json:"question"`
	Placeholder string `json:"placeholder,omitempty"`
	NameAttr    string `json:"name_attr,omitempty"`
	// InputType is the raw tag reported by the detector (e.g. "input:email").
	// It is kept for artifacts and prompts only; behaviour is driven by Kind.
	InputType       string            `json:"input_type"`
	Kind            FieldKind         `json:"kind" validate:"required,oneof=text textarea checkbox radio select combobox file date"`
	Required        bool              `json:"required"`
	Options         []string          `json:"options,omitempty"`
	OptionValues    map[string]string `json:"option_values,omitempty"`
	OptionSelectors map[string]string `json:"option_selectors,omitempty" validate:"required_if=Kind radio"`
	Selector        string            `json:"selector,omitempty" validate:"required_unless=Kind radio"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	StepIndex       int               `json:"step_index"`
}

var fieldValidator = validator.New()

// Validate checks that the descriptor carries an id, a known kind and a way to locate it on the page.
func (f *FieldDescriptor) Validate() error {
	return fieldValidator.Struct(f)
}

// DisplayName returns the best available human label for the field.
func (f *FieldDescriptor) DisplayName() string {
	for _, candidate := range []string{f.Label, f.Question, f.ID} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

// Prompt returns the text used when asking a human about the field.
func (f *FieldDescriptor) Prompt() string {
	for _, candidate := range []string{f.Question, f.Label, f.ID} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	return ""
}

func (f *FieldDescriptor) IsCheckbox() bool { return f.Kind == KindCheckbox }

func (f *FieldDescriptor) IsFile() bool { return f.Kind == KindFile }

func (f *FieldDescriptor) HasOptions() bool { return len(f.Options) > 0 }

// Meta returns a metadata value or an empty string.
func (f *FieldDescriptor) Meta(key string) string {
	if f.Metadata == nil {
		return ""
	}
	return f.Metadata[key]
}

// ApplyMethod is one detected way to open the application flow.
type ApplyMethod struct {
	Label      string  `json:"label"`
	Selector   string  `json:"selector,omitempty"`
	Element    string  `json:"element_type"`
	Href       string  `json:"href,omitempty"`
	Confidence float64 `json:"confidence"`
	Clicked    bool    `json:"clicked"`
	Notes      string  `json:"notes,omitempty"`
}

// NavigatorResult is what the navigator found on the job page.
type NavigatorResult struct {
	JobURL       string             `json:"job_url"`
	JobName      string             `json:"job_name"`
	ApplyMethods []*ApplyMethod     `json:"apply_methods"`
	Fields       []*FieldDescriptor `json:"fields"`
	SnapshotPath string             `json:"snapshot_path,omitempty"`
	StepCount    int                `json:"step_count"`
}

// HasApplyFlow reports whether both an apply mechanism and at least one field were detected.
func (r *NavigatorResult) HasApplyFlow() bool {
	return r != nil && len(r.ApplyMethods) > 0 && len(r.Fields) > 0
}

// SubmissionResult is the outcome of a successful submit.
type SubmissionResult struct {
	Message string   `json:"message"`
	Steps   []string `json:"steps"`
}
