package workflow

import (
	"context"
	"time"

	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/browser"
	"github.com/spigell/auto-apply/internal/knowledge"
)

type fakeSession struct {
	closed int
}

func (s *fakeSession) Goto(context.Context, string) error                           { return nil }
func (s *fakeSession) HTML(context.Context) (string, error)                         { return "", nil }
func (s *fakeSession) Click(context.Context, string) error                          { return nil }
func (s *fakeSession) ClickText(context.Context, string) error                      { return nil }
func (s *fakeSession) Fill(context.Context, string, string) error                   { return nil }
func (s *fakeSession) SetChecked(context.Context, string, bool) error               { return nil }
func (s *fakeSession) SelectOption(context.Context, string, string) error           { return nil }
func (s *fakeSession) SelectCombobox(context.Context, string, string, string) error { return nil }
func (s *fakeSession) Upload(context.Context, string, string) error                 { return nil }
func (s *fakeSession) WaitVisible(context.Context, string, time.Duration) error     { return nil }
func (s *fakeSession) Close()                                                       { s.closed++ }

type fakeNavigator struct {
	result *application.NavigatorResult
	err    error
	seen   *application.Context
}

func (n *fakeNavigator) Navigate(_ context.Context, _ browser.Page, appCtx *application.Context) (*application.NavigatorResult, error) {
	n.seen = appCtx
	if n.err != nil {
		return nil, n.err
	}
	return n.result, nil
}

// fakeSubmitter returns the queued errors first and then succeeds.
type fakeSubmitter struct {
	errs  []error
	calls int
	panic bool
}

func (s *fakeSubmitter) Submit(context.Context, browser.Page, *application.Context) (*application.SubmissionResult, error) {
	s.calls++
	if s.panic {
		panic("submit exploded")
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &application.SubmissionResult{Message: "Application submitted", Steps: []string{"Filled Email", "Clicked submit button: Submit"}}, nil
}

// fakeCollector answers every field it is given with answer, unless err is set.
type fakeCollector struct {
	answer  string
	err     error
	calls   int
	fields  [][]*application.FieldDescriptor
	reasons []map[string]string
	waits   []bool
}

func (c *fakeCollector) Collect(_ context.Context, appCtx *application.Context, fields []*application.FieldDescriptor, reasons map[string]string, wait bool) error {
	c.calls++
	c.fields = append(c.fields, fields)
	c.reasons = append(c.reasons, reasons)
	c.waits = append(c.waits, wait)
	if c.err != nil {
		return c.err
	}
	for _, field := range fields {
		if err := appCtx.RecordAnswer(&application.AnswerRecord{
			FieldID:    field.ID,
			Answer:     c.answer,
			Source:     application.SourceUserProvided,
			ApprovedBy: application.ApproverUser,
		}); err != nil {
			return err
		}
	}
	return nil
}

type fakeKnowledge struct {
	chunks     []knowledge.Chunk
	profile    map[string]any
	profileErr error
	coverText  string
	searches   int
}

func (k *fakeKnowledge) Search(context.Context, string, int) ([]knowledge.Chunk, error) {
	k.searches++
	return k.chunks, nil
}

func (k *fakeKnowledge) PersistProfile(string) (map[string]any, error) {
	return k.profile, k.profileErr
}

func (k *fakeKnowledge) ParseAndPersistCV(path string) (*knowledge.ParsedCV, error) {
	return &knowledge.ParsedCV{SourcePDF: path}, nil
}

func (k *fakeKnowledge) PersistCoverLetter(text string) error {
	k.coverText = text
	return nil
}

func (k *fakeKnowledge) CoverLetterPath() string { return "/store/cover_letter.txt" }
