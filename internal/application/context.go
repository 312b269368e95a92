package application

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is used for every timestamp persisted by a run.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

const defaultJobName = "job-application"

// Context is the mutable record of one application run.
// It is owned by the orchestrator and mutated only from the goroutine running it.
type Context struct {
	RunID               string
	JobURL              string
	CoverLetter         string
	CoverLetterPath     string
	CVPath              string
	ProfilePath         string
	Profile             *Profile
	AnswersOverridePath string
	DebugAnswersOnly    bool
	Timestamp           string

	Answers    map[string]*AnswerRecord
	Pending    map[string]PendingQuestion
	Skipped    map[string]*SkipRecord
	Navigation *NavigatorResult

	jobName string
	now     func() time.Time
}

// NewContext creates the context for one run. The timestamp is captured once here.
func NewContext(jobURL string) *Context {
	c := &Context{
		RunID:   uuid.NewString(),
		JobURL:  strings.TrimSpace(jobURL),
		Answers: make(map[string]*AnswerRecord),
		Pending: make(map[string]PendingQuestion),
		Skipped: make(map[string]*SkipRecord),
		Profile: &Profile{Raw: map[string]any{}},
		now:     time.Now,
	}
	c.Timestamp = c.stamp()
	return c
}

func (c *Context) stamp() string {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return now().UTC().Format(TimestampLayout)
}

// JobName returns the artifact key derived from the job URL. It is computed once.
func (c *Context) JobName() string {
	if c.jobName != "" {
		return c.jobName
	}

	slug := strings.TrimRight(c.JobURL, "/")
	if idx := strings.LastIndex(slug, "/"); idx != -1 {
		slug = slug[idx+1:]
	}
	slug = strings.SplitN(slug, "?", 2)[0]
	slug = strings.ReplaceAll(slug, ".html", "")
	slug = strings.ReplaceAll(slug, ".htm", "")
	slug = strings.ReplaceAll(slug, "#", "-")

	if slug == "" {
		slug = defaultJobName
	}

	c.jobName = strings.ToLower(slug)
	return c.jobName
}

// RecordAnswer stores an approved answer and clears any pending question or skip marker for the field.
func (c *Context) RecordAnswer(record *AnswerRecord) error {
	if record == nil || strings.TrimSpace(record.FieldID) == "" {
		return fmt.Errorf("answer record must carry a field id")
	}
	if record.Answer == "" {
		return fmt.Errorf("field %q: %w", record.FieldID, ErrEmptyAnswer)
	}
	if record.DisplayName == "" {
		record.DisplayName = record.FieldID
	}
	if record.Timestamp == "" {
		record.Timestamp = c.stamp()
	}

	delete(c.Pending, record.FieldID)
	delete(c.Skipped, record.FieldID)
	c.Answers[record.FieldID] = record
	return nil
}

// RecordSkip marks a field as deliberately left blank by the user.
func (c *Context) RecordSkip(field *FieldDescriptor) {
	delete(c.Pending, field.ID)
	delete(c.Answers, field.ID)
	c.Skipped[field.ID] = &SkipRecord{
		FieldID:     field.ID,
		Source:      SourceUserSkipped,
		ApprovedBy:  ApproverUser,
		DisplayName: field.DisplayName(),
		Timestamp:   c.stamp(),
	}
}

// RecordPending registers a field that needs a human answer.
func (c *Context) RecordPending(field *FieldDescriptor, reason string) {
	c.Pending[field.ID] = PendingQuestion{
		Question:  field.Prompt(),
		Reason:    reason,
		InputType: field.InputType,
		Required:  field.Required,
	}
}

// ClearAnswer drops any recorded answer for the field and resolves its pending question.
func (c *Context) ClearAnswer(fieldID string) {
	delete(c.Answers, fieldID)
	delete(c.Pending, fieldID)
}

// IsAnswered reports whether an answer is recorded for the field.
func (c *Context) IsAnswered(fieldID string) bool {
	_, ok := c.Answers[fieldID]
	return ok
}

// HasValidAnswer reports whether the field can be submitted as is.
// Checkboxes only need a record since "false" is a valid state.
func (c *Context) HasValidAnswer(field *FieldDescriptor) bool {
	record, ok := c.Answers[field.ID]
	if !ok {
		return false
	}
	if field.IsCheckbox() {
		return true
	}
	return strings.TrimSpace(record.Answer) != ""
}

// AnswersPayload returns the recorded answers keyed by display name.
func (c *Context) AnswersPayload() map[string]*AnswerRecord {
	ids := make([]string, 0, len(c.Answers))
	for id := range c.Answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	payload := make(map[string]*AnswerRecord, len(c.Answers))
	for _, id := range ids {
		record := c.Answers[id]
		key := strings.TrimSpace(record.DisplayName)
		if key == "" {
			key = record.FieldID
		}
		if existing, ok := payload[key]; ok && existing.FieldID != record.FieldID {
			key = fmt.Sprintf("%s (%s)", key, record.FieldID)
		}
		payload[key] = record
	}
	return payload
}
