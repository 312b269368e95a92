package userinput

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/utils"
)

const (
	StatusAwaitingUser = "awaiting_user"
	StatusResolved     = "resolved"

	pendingJSON = "output/pending_questions.json"
	pendingMD   = "output/pending_questions.md"

	pendingInstructions = "Answer the prompts directly in the terminal (type 'skip' to leave blank) or optionally pre-fill " +
		"input/user_answers.json with field_id → answer pairs to auto-populate the prompts."
	resolvedMarkdown = "All pending questions have been answered. ✅\n"
)

// Question is one entry of the pending-questions artifact.
type Question struct {
	FieldID   string `json:"field_id"`
	Question  string `json:"question"`
	InputType string `json:"input_type"`
	Required  bool   `json:"required"`
	Reason    string `json:"reason"`
}

// Request is the pending-questions artifact.
type Request struct {
	Status       string     `json:"status"`
	JobName      string     `json:"job_name"`
	JobURL       string     `json:"job_url"`
	Questions    []Question `json:"questions"`
	Instructions string     `json:"instructions"`
}

// PendingStore writes the pending-questions artifact and its Markdown mirror.
type PendingStore struct {
	JSONPath     string
	MarkdownPath string
}

func NewPendingStore(baseDir string) *PendingStore {
	return &PendingStore{
		JSONPath:     filepath.Join(baseDir, pendingJSON),
		MarkdownPath: filepath.Join(baseDir, pendingMD),
	}
}

// WriteAwaiting persists the questions in the awaiting_user state.
func (p *PendingStore) WriteAwaiting(appCtx *application.Context, fields []*application.FieldDescriptor, reasons map[string]string) (*Request, error) {
	req := &Request{
		Status:       StatusAwaitingUser,
		JobName:      appCtx.JobName(),
		JobURL:       appCtx.JobURL,
		Questions:    make([]Question, 0, len(fields)),
		Instructions: pendingInstructions,
	}
	for _, field := range fields {
		question := strings.TrimSpace(field.Question)
		if question == "" {
			question = field.Label
		}
		req.Questions = append(req.Questions, Question{
			FieldID:   field.ID,
			Question:  question,
			InputType: field.InputType,
			Required:  field.Required,
			Reason:    reasons[field.ID],
		})
	}

	if err := utils.WriteJSON(p.JSONPath, req); err != nil {
		return nil, fmt.Errorf("write pending questions: %w", err)
	}
	if err := utils.WriteText(p.MarkdownPath, markdown(req)); err != nil {
		return nil, fmt.Errorf("write pending questions markdown: %w", err)
	}
	return req, nil
}

// WriteResolved rewrites the artifact once every question is answered.
func (p *PendingStore) WriteResolved(req *Request) error {
	req.Status = StatusResolved
	if err := utils.WriteJSON(p.JSONPath, req); err != nil {
		return fmt.Errorf("write resolved questions: %w", err)
	}
	if err := utils.WriteText(p.MarkdownPath, resolvedMarkdown); err != nil {
		return fmt.Errorf("write resolved questions markdown: %w", err)
	}
	return nil
}

func markdown(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Pending Questions for %s\n\n", req.JobName)
	fmt.Fprintf(&b, "Job URL: %s\n\n", req.JobURL)
	b.WriteString("You can answer interactively in the CLI or edit `input/user_answers.json` with entries like:\n\n")
	b.WriteString("```json\n{\n")
	for _, q := range req.Questions {
		fmt.Fprintf(&b, "  %q: \"<your answer>\",\n", q.FieldID)
	}
	b.WriteString("}\n```\n\n## Questions\n")
	for _, q := range req.Questions {
		fmt.Fprintf(&b, "- **%s**: %s (required: %t) | Reason: %s\n", q.FieldID, q.Question, q.Required, q.Reason)
	}
	return b.String()
}
