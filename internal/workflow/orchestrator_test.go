package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/auto-apply/internal/ai"
	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/artifacts"
	"github.com/spigell/auto-apply/internal/knowledge"
	"github.com/spigell/auto-apply/internal/userinput"
)

const jobURL = "https://jobs.example.com/roles/platform-engineer"

var (
	emailField = &application.FieldDescriptor{ID: "email", Label: "Email", Kind: application.KindText, Required: true}
	rtwField   = &application.FieldDescriptor{
		ID:       "rtw",
		Label:    "Do you have the right to work in the UK?",
		Kind:     application.KindSelect,
		Options:  []string{"Yes", "No"},
		Required: true,
	}
	salaryField = &application.FieldDescriptor{ID: "salary", Label: "Expected salary", Kind: application.KindText, Required: true}
	notesField  = &application.FieldDescriptor{ID: "notes", Label: "Anything else?", Kind: application.KindTextarea}
)

// panicPrompter fails the test if the human loop ever reaches the terminal.
type panicPrompter struct{ t *testing.T }

func (p panicPrompter) Say(string) { p.t.Fatal("prompter must not be used") }

func (p panicPrompter) Ask(context.Context, string) (string, error) {
	p.t.Fatal("prompter must not be used")
	return "", nil
}

type harness struct {
	dir       string
	session   *fakeSession
	navigator *fakeNavigator
	submitter *fakeSubmitter
	collector *fakeCollector
	knowledge *fakeKnowledge
	generator *ai.Mock
	writer    *artifacts.Writer
	cfg       Config
	openErr   error
}

func newHarness(t *testing.T, fields ...*application.FieldDescriptor) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{
		dir:     dir,
		session: &fakeSession{},
		navigator: &fakeNavigator{result: &application.NavigatorResult{
			JobURL:       jobURL,
			ApplyMethods: []*application.ApplyMethod{{Label: "Apply now", Selector: "#apply"}},
			Fields:       fields,
		}},
		submitter: &fakeSubmitter{},
		collector: &fakeCollector{answer: "42"},
		knowledge: &fakeKnowledge{},
		generator: ai.NewMock(nil, nil),
		writer:    artifacts.NewWriter(dir),
		cfg:       Config{WaitForUser: true},
	}
}

func (h *harness) orchestrator(collector Collector) *Orchestrator {
	if collector == nil {
		collector = h.collector
	}
	return New(h.cfg, Deps{
		OpenSession: func(context.Context) (Session, error) {
			if h.openErr != nil {
				return nil, h.openErr
			}
			return h.session, nil
		},
		Knowledge: h.knowledge,
		Generator: h.generator,
		Navigator: h.navigator,
		Submitter: h.submitter,
		Collector: collector,
		Artifacts: h.writer,
	})
}

func (h *harness) run(t *testing.T, appCtx *application.Context) *Result {
	t.Helper()
	return h.orchestrator(nil).Run(context.Background(), appCtx)
}

func newAppContext(t *testing.T) *application.Context {
	t.Helper()
	appCtx := application.NewContext(jobURL)
	appCtx.CVPath = "/tmp/cv.pdf"
	profile, err := application.DecodeProfile(map[string]any{
		"meta": map[string]any{
			"location":           "London, UK",
			"contact":            map[string]any{"email": "ada@example.com"},
			"work_authorization": map[string]any{"uk": "Yes"},
		},
	})
	require.NoError(t, err)
	appCtx.Profile = profile
	return appCtx
}

func TestRunApplyFlowMissing(t *testing.T) {
	h := newHarness(t)
	h.navigator.result = &application.NavigatorResult{JobURL: jobURL}
	appCtx := newAppContext(t)

	result := h.run(t, appCtx)

	assert.False(t, result.Applied)
	assert.Equal(t, ReasonApplyFlowMissing, result.Reason)
	assert.Equal(t, h.writer.FailurePath(appCtx), result.Artifact)
	assert.FileExists(t, result.Artifact)
	assert.Zero(t, h.submitter.calls)
	assert.Equal(t, 1, h.session.closed)
}

func TestRunHeuristicsAnswerWithoutGate(t *testing.T) {
	h := newHarness(t, emailField, rtwField)
	appCtx := newAppContext(t)

	result := h.run(t, appCtx)

	require.True(t, result.Applied, result.Message)
	assert.Equal(t, h.writer.SuccessPath(appCtx), result.Artifact)
	assert.FileExists(t, result.Artifact)
	assert.Equal(t, []string{"Filled Email", "Clicked submit button: Submit"}, result.Steps)

	rtw := appCtx.Answers["rtw"]
	require.NotNil(t, rtw)
	assert.Equal(t, "Yes", rtw.Answer)
	assert.Equal(t, application.SourceWorkAuthorization, rtw.Source)
	assert.Equal(t, application.ApproverHeuristics, rtw.ApprovedBy)

	assert.Zero(t, h.generator.Calls())
	assert.Zero(t, h.knowledge.searches)
	assert.Zero(t, h.collector.calls)
	assert.Equal(t, 1, h.session.closed)
}

func TestRunPendingFieldGoesToHuman(t *testing.T) {
	h := newHarness(t, emailField, salaryField)
	appCtx := newAppContext(t)

	result := h.run(t, appCtx)

	require.True(t, result.Applied, result.Message)
	require.Equal(t, 1, h.collector.calls)
	require.Len(t, h.collector.fields[0], 1)
	assert.Equal(t, "salary", h.collector.fields[0][0].ID)
	assert.NotEmpty(t, h.collector.reasons[0]["salary"])
	assert.True(t, h.collector.waits[0])
	assert.Zero(t, h.generator.Calls(), "no evidence means no inference")
	assert.Equal(t, "42", appCtx.Answers["salary"].Answer)
	assert.Empty(t, appCtx.Pending)
}

func TestRunGateApprovesFromEvidence(t *testing.T) {
	h := newHarness(t, salaryField)
	h.knowledge.chunks = []knowledge.Chunk{{Text: "Expected salary: 90k GBP", Source: knowledge.SourceProfile}}
	h.generator = ai.NewMock(map[string]any{
		"answer_validity": map[string]any{
			"salary": map[string]any{
				"can_answer":       true,
				"extracted_answer": "90k GBP",
				"needs_user_input": false,
				"reasoning":        "stated in profile",
				"provenance":       "profile chunk 1",
			},
		},
	}, nil)
	appCtx := newAppContext(t)

	result := h.run(t, appCtx)

	require.True(t, result.Applied, result.Message)
	assert.Equal(t, 1, h.generator.Calls())
	assert.Zero(t, h.collector.calls)
	record := appCtx.Answers["salary"]
	require.NotNil(t, record)
	assert.Equal(t, "90k GBP", record.Answer)
	assert.Equal(t, application.SourceKnowledgeBase, record.Source)
	assert.Equal(t, "profile chunk 1", record.Provenance)
}

func TestRunWithoutWaitingForUser(t *testing.T) {
	h := newHarness(t, emailField, salaryField)
	h.cfg.WaitForUser = false
	appCtx := newAppContext(t)

	agent := userinput.NewAgent(panicPrompter{t: t}, userinput.NewPendingStore(h.dir), filepath.Join(h.dir, "input", "user_answers.json"), nil)
	result := h.orchestrator(agent).Run(context.Background(), appCtx)

	assert.False(t, result.Applied)
	assert.Equal(t, ReasonUserInputMissing, result.Reason)
	assert.FileExists(t, result.Artifact)
	assert.FileExists(t, filepath.Join(h.dir, "output", "pending_questions.json"))
	assert.Zero(t, h.submitter.calls)
	assert.Contains(t, appCtx.Pending, "salary")
	assert.NotContains(t, appCtx.Answers, "salary")
}

func TestRunRetriesFieldFailures(t *testing.T) {
	h := newHarness(t, emailField)
	fieldErr := &application.FieldSubmissionError{Field: emailField, Message: "element is not editable"}
	h.submitter.errs = []error{fieldErr, fieldErr}
	appCtx := newAppContext(t)

	result := h.run(t, appCtx)

	require.True(t, result.Applied, result.Message)
	assert.Equal(t, 3, h.submitter.calls)
	assert.Equal(t, 2, h.collector.calls)
	assert.Contains(t, h.collector.reasons[0]["email"], "Browser error while filling 'Email': element is not editable")
	assert.True(t, h.collector.waits[1])
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, emailField)
	fieldErr := &application.FieldSubmissionError{Field: emailField, Message: "boom"}
	h.submitter.errs = []error{fieldErr, fieldErr, fieldErr, fieldErr}

	result := h.run(t, newAppContext(t))

	assert.False(t, result.Applied)
	assert.Equal(t, ReasonUserInputMissing, result.Reason)
	assert.Contains(t, result.Message, "Repeated submission failures for email")
	assert.Equal(t, DefaultMaxSubmitAttempts, h.submitter.calls)
	assert.Equal(t, DefaultMaxSubmitAttempts, h.collector.calls)
}

func TestRunFieldFailureWithoutWaiting(t *testing.T) {
	h := newHarness(t, emailField)
	h.cfg.WaitForUser = false
	h.submitter.errs = []error{&application.FieldSubmissionError{Field: emailField, Message: "boom"}}

	result := h.run(t, newAppContext(t))

	assert.False(t, result.Applied)
	assert.Equal(t, ReasonUserInputMissing, result.Reason)
	assert.Equal(t, "Submission blocked on field email: boom", result.Message)
	assert.Zero(t, h.collector.calls)
}

func TestRunDebugAnswers(t *testing.T) {
	h := newHarness(t, emailField, salaryField, notesField)
	path := filepath.Join(h.dir, "answers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Email": "debug@example.com"}`), 0o644))

	appCtx := newAppContext(t)
	appCtx.AnswersOverridePath = path
	appCtx.DebugAnswersOnly = true

	result := h.run(t, appCtx)

	require.True(t, result.Applied, result.Message)
	assert.Equal(t, "debug@example.com", appCtx.Answers["email"].Answer)
	assert.Equal(t, application.SourceDebugAnswers, appCtx.Answers["email"].Source)

	require.Equal(t, 1, h.collector.calls)
	require.Len(t, h.collector.fields[0], 1)
	assert.Equal(t, "salary", h.collector.fields[0][0].ID)
	assert.Equal(t, debugMissingReason, h.collector.reasons[0]["salary"])
	assert.Zero(t, h.generator.Calls())
	assert.Zero(t, h.knowledge.searches)
}

func TestRunMalformedDebugAnswers(t *testing.T) {
	h := newHarness(t, emailField)
	path := filepath.Join(h.dir, "answers.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0o644))

	appCtx := newAppContext(t)
	appCtx.AnswersOverridePath = path
	appCtx.DebugAnswersOnly = true

	result := h.run(t, appCtx)

	assert.False(t, result.Applied)
	assert.Equal(t, ReasonUserInputMissing, result.Reason)
	assert.Zero(t, h.collector.calls)
	assert.Zero(t, h.submitter.calls)
}

func TestRunBrowserFailures(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		h := newHarness(t, emailField)
		h.openErr = errors.New("chrome not found")

		result := h.run(t, newAppContext(t))
		assert.Equal(t, ReasonBrowserError, result.Reason)
		assert.FileExists(t, result.Artifact)
		assert.Zero(t, h.session.closed)
	})

	t.Run("navigate", func(t *testing.T) {
		h := newHarness(t, emailField)
		h.navigator.err = &application.BrowserError{Op: "navigate", Err: errors.New("net::ERR_NAME_NOT_RESOLVED")}

		result := h.run(t, newAppContext(t))
		assert.Equal(t, ReasonBrowserError, result.Reason)
		assert.Contains(t, result.Message, "ERR_NAME_NOT_RESOLVED")
		assert.Equal(t, 1, h.session.closed)
	})
}

func TestRunRecoversPanics(t *testing.T) {
	h := newHarness(t, emailField)
	h.submitter.panic = true

	result := h.run(t, newAppContext(t))

	assert.False(t, result.Applied)
	assert.Equal(t, ReasonUnexpected, result.Reason)
	assert.Equal(t, "Unexpected error: submit exploded", result.Message)
	assert.FileExists(t, result.Artifact)
	assert.Equal(t, 1, h.session.closed)
}

func TestApplyPreparesContext(t *testing.T) {
	h := newHarness(t, emailField)
	h.knowledge.profile = map[string]any{"meta": map[string]any{"contact": map[string]any{"email": "ada@example.com"}}}

	result := h.orchestrator(nil).Apply(context.Background(), Inputs{
		JobURL:      jobURL,
		CoverLetter: "Dear hiring team, I would love to join.",
		ProfilePath: "/in/profile.json",
		CVPath:      "/in/cv.pdf",
	})

	require.True(t, result.Applied, result.Message)
	appCtx := h.navigator.seen
	require.NotNil(t, appCtx)
	assert.Equal(t, "Dear hiring team, I would love to join.", appCtx.CoverLetter)
	assert.Equal(t, "Dear hiring team, I would love to join.", h.knowledge.coverText)
	assert.Equal(t, "/store/cover_letter.txt", appCtx.CoverLetterPath)
	assert.Equal(t, "/in/cv.pdf", appCtx.CVPath)
	assert.False(t, appCtx.DebugAnswersOnly)
	assert.Equal(t, "ada@example.com", appCtx.Profile.Meta.Contact.Email)
	assert.Equal(t, "ada@example.com", appCtx.Answers["email"].Answer)
}

func TestApplyPrepareFailure(t *testing.T) {
	h := newHarness(t, emailField)
	h.knowledge.profileErr = errors.New("read profile: no such file")

	result := h.orchestrator(nil).Apply(context.Background(), Inputs{JobURL: jobURL, ProfilePath: "/missing.json"})

	assert.False(t, result.Applied)
	assert.Equal(t, ReasonUnexpected, result.Reason)
	assert.FileExists(t, result.Artifact)
	assert.Nil(t, h.navigator.seen)
}

func TestResolveCoverLetter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "letter.txt")
	require.NoError(t, os.WriteFile(path, []byte("From file"), 0o644))

	text, err := ResolveCoverLetter(path)
	require.NoError(t, err)
	assert.Equal(t, "From file", text)

	text, err = ResolveCoverLetter("Inline letter")
	require.NoError(t, err)
	assert.Equal(t, "Inline letter", text)
}
