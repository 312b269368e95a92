package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/ai"
	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/assessing"
	"github.com/spigell/auto-apply/internal/browser"
	"github.com/spigell/auto-apply/internal/logger"
)

const (
	DefaultMaxSubmitAttempts = 3

	applyFlowMissingMessage = "No apply button or form detected on the target page."
	debugMissingReason      = "No answer provided in debug answers file."
	defaultPendingReason    = "Validation agent requires confirmation."
)

// Session is a browser page owned by one run.
type Session interface {
	browser.Page
	Close()
}

// SessionOpener starts the browser session for a run.
type SessionOpener func(ctx context.Context) (Session, error)

type Navigator interface {
	Navigate(ctx context.Context, page browser.Page, appCtx *application.Context) (*application.NavigatorResult, error)
}

type Submitter interface {
	Submit(ctx context.Context, page browser.Page, appCtx *application.Context) (*application.SubmissionResult, error)
}

// Collector is the human loop.
type Collector interface {
	Collect(ctx context.Context, appCtx *application.Context, fields []*application.FieldDescriptor, reasons map[string]string, wait bool) error
}

type ArtifactWriter interface {
	WriteSuccess(appCtx *application.Context, submission *application.SubmissionResult) (string, error)
	WriteFailure(appCtx *application.Context, reason string) (string, error)
}

type Config struct {
	WaitForUser       bool
	MaxSubmitAttempts int                      `mapstructure:"max-attempts" validate:"gte=0"`
	Validity          assessing.ValidityConfig `mapstructure:"validity"`
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	OpenSession SessionOpener
	Knowledge   KnowledgeBase
	Generator   ai.Generator
	Navigator   Navigator
	Submitter   Submitter
	Collector   Collector
	Artifacts   ArtifactWriter
	Logger      *zap.Logger
}

// Result is printed to stdout at the end of a run.
type Result struct {
	Applied  bool     `json:"applied"`
	Reason   string   `json:"reason,omitempty"`
	Artifact string   `json:"artifact"`
	Steps    []string `json:"steps,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Orchestrator drives one application from navigation to a terminal artifact.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.MaxSubmitAttempts <= 0 {
		cfg.MaxSubmitAttempts = DefaultMaxSubmitAttempts
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: deps.Logger}
}

// Apply builds the run context from the inputs and runs the workflow.
// A failure while preparing the context is reported like any other failure.
func (o *Orchestrator) Apply(ctx context.Context, in Inputs) *Result {
	appCtx := application.NewContext(in.JobURL)
	if err := prepare(appCtx, o.deps.Knowledge, in); err != nil {
		o.log.Error("failed to prepare application context", zap.Error(err))
		return o.fail(appCtx, o.log, classify(err))
	}
	return o.Run(ctx, appCtx)
}

// state is one step of the workflow. Handlers run in order until one does not return Continue.
type state struct {
	name   string
	handle func(ctx context.Context, r *run) Outcome
}

// run carries what the states share during one Run call.
type run struct {
	appCtx      *application.Context
	page        browser.Page
	nav         *application.NavigatorResult
	assessments []*application.AnswerAssessment
	log         *zap.Logger
}

// Run executes navigate, assess, resolve_pending and submit on appCtx and always writes one artifact.
func (o *Orchestrator) Run(ctx context.Context, appCtx *application.Context) (result *Result) {
	log := logger.WithRun(o.log, appCtx.RunID, appCtx.JobName())

	defer func() {
		if r := recover(); r != nil {
			log.Error("workflow panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			result = o.fail(appCtx, log, Fatal(ReasonUnexpected, fmt.Sprintf("Unexpected error: %v", r)))
		}
	}()

	log.Info("starting workflow", zap.String("url", appCtx.JobURL), zap.Bool("debug_answers", appCtx.DebugAnswersOnly))

	session, err := o.deps.OpenSession(ctx)
	if err != nil {
		log.Error("failed to open browser session", zap.Error(err))
		outcome := classify(err)
		if outcome.Kind == OutcomeFatal && outcome.Reason == ReasonUnexpected {
			outcome = Fatal(ReasonBrowserError, "Browser session failure: "+err.Error())
		}
		return o.fail(appCtx, log, outcome)
	}
	defer session.Close()

	r := &run{appCtx: appCtx, page: session, log: log}
	states := []state{
		{name: "navigate", handle: o.navigate},
		{name: "assess", handle: o.assess},
		{name: "resolve_pending", handle: o.resolvePending},
		{name: "submit", handle: o.submit},
	}

	for _, st := range states {
		outcome := st.handle(ctx, r)
		log.Debug("state finished", zap.String("state", st.name), zap.Stringer("outcome", outcome.Kind))

		switch outcome.Kind {
		case OutcomeContinue:
			continue
		case OutcomeDone:
			return o.succeed(appCtx, log, outcome.Submission)
		default:
			log.Warn("workflow stopped", zap.String("state", st.name), zap.String("reason", outcome.Reason), zap.String("message", outcome.Message))
			return o.fail(appCtx, log, outcome)
		}
	}

	return o.fail(appCtx, log, Fatal(ReasonUnexpected, "Unexpected error: workflow ended without submitting"))
}

func (o *Orchestrator) navigate(ctx context.Context, r *run) Outcome {
	r.log.Info("step 1/4: navigating")
	nav, err := o.deps.Navigator.Navigate(ctx, r.page, r.appCtx)
	if err != nil {
		return classify(err)
	}
	if !nav.HasApplyFlow() {
		r.log.Warn("no apply flow detected", zap.Int("apply_methods", len(nav.ApplyMethods)), zap.Int("fields", len(nav.Fields)))
		return Fatal(ReasonApplyFlowMissing, applyFlowMissingMessage)
	}
	r.nav = nav
	r.appCtx.Navigation = nav
	return Continue()
}

func (o *Orchestrator) assess(ctx context.Context, r *run) Outcome {
	steps := o.steps(r.appCtx, r.log)
	r.log.Info("step 2/4: assessing fields", zap.Int("fields", len(r.nav.Fields)), zap.Any("steps", assessing.Describe(steps)))

	assessments, err := assessing.Run(ctx, r.log, steps, r.appCtx, r.nav.Fields)
	if err != nil {
		return classify(err)
	}
	r.assessments = assessments
	return Continue()
}

// steps lists every answering pass; the ones that do not apply to the mode of this run are disabled.
func (o *Orchestrator) steps(appCtx *application.Context, log *zap.Logger) []assessing.Step {
	steps := []assessing.Step{
		assessing.NewOverrides(appCtx.AnswersOverridePath, log),
		assessing.NewHeuristics(log),
		assessing.NewValidityGate(o.cfg.Validity, o.deps.Knowledge, o.deps.Generator, log),
	}

	if appCtx.DebugAnswersOnly {
		assessing.DisableByName(steps, assessing.HeuristicsName, "debug answers only")
		assessing.DisableByName(steps, assessing.ValidityGateName, "debug answers only")
	} else {
		assessing.DisableByName(steps, assessing.OverridesName, "no debug answers file")
	}
	return steps
}

func (o *Orchestrator) resolvePending(ctx context.Context, r *run) Outcome {
	var fields []*application.FieldDescriptor
	reasons := map[string]string{}

	if r.appCtx.DebugAnswersOnly {
		for _, field := range r.nav.Fields {
			if !field.Required || r.appCtx.HasValidAnswer(field) {
				continue
			}
			fields = append(fields, field)
			reasons[field.ID] = debugMissingReason
		}
	} else {
		verdicts := make(map[string]*application.AnswerAssessment, len(r.assessments))
		for _, assessment := range r.assessments {
			verdicts[assessment.FieldID] = assessment
		}
		for _, field := range r.nav.Fields {
			assessment, ok := verdicts[field.ID]
			if !ok || !assessment.NeedsHuman() {
				continue
			}
			reason := assessment.Reasoning
			if reason == "" {
				reason = defaultPendingReason
			}
			fields = append(fields, field)
			reasons[field.ID] = reason
		}
	}

	if len(fields) == 0 {
		return Continue()
	}

	for _, field := range fields {
		r.appCtx.RecordPending(field, reasons[field.ID])
	}

	r.log.Info("step 3/4: waiting for user input", zap.Int("fields", len(fields)), zap.Bool("wait_for_user", o.cfg.WaitForUser))
	if err := o.deps.Collector.Collect(ctx, r.appCtx, fields, reasons, o.cfg.WaitForUser); err != nil {
		return classify(err)
	}
	return Continue()
}

// submit retries a single-field failure through the human loop until MaxSubmitAttempts is exceeded.
func (o *Orchestrator) submit(ctx context.Context, r *run) Outcome {
	attempt := 1
	for {
		r.log.Info("step 4/4: submitting", zap.Int("attempt", attempt))

		submission, err := o.deps.Submitter.Submit(ctx, r.page, r.appCtx)
		if err == nil {
			return Done(submission)
		}

		var fieldErr *application.FieldSubmissionError
		if !errors.As(err, &fieldErr) || fieldErr.Field == nil {
			return classify(err)
		}

		field := fieldErr.Field
		if !o.cfg.WaitForUser {
			return NeedsHuman(fmt.Sprintf("Submission blocked on field %s: %s", field.ID, fieldErr.Message))
		}

		reason := fmt.Sprintf(
			"Browser error while filling '%s': %s. Please adjust your answer or type 'skip' if you'd like to leave it blank.",
			field.DisplayName(), fieldErr.Message,
		)
		r.log.Warn("field submission failed, asking for a new answer",
			zap.String(logger.FieldFieldID, field.ID),
			zap.String("error", fieldErr.Message),
		)

		if err := o.deps.Collector.Collect(ctx, r.appCtx, []*application.FieldDescriptor{field}, map[string]string{field.ID: reason}, true); err != nil {
			return classify(err)
		}

		attempt++
		if attempt > o.cfg.MaxSubmitAttempts {
			return NeedsHuman(fmt.Sprintf("Repeated submission failures for %s; please review manually.", field.ID))
		}
	}
}

func (o *Orchestrator) succeed(appCtx *application.Context, log *zap.Logger, submission *application.SubmissionResult) *Result {
	artifact, err := o.deps.Artifacts.WriteSuccess(appCtx, submission)
	if err != nil {
		log.Error("failed to write success artifact", zap.Error(err))
	}

	result := &Result{Applied: true, Artifact: artifact}
	if submission != nil {
		result.Steps = submission.Steps
		result.Message = submission.Message
	}
	log.Info("workflow completed", zap.String("artifact", artifact))
	return result
}

func (o *Orchestrator) fail(appCtx *application.Context, log *zap.Logger, outcome Outcome) *Result {
	artifact, err := o.deps.Artifacts.WriteFailure(appCtx, outcome.Message)
	if err != nil {
		log.Error("failed to write failure artifact", zap.Error(err))
	}
	return &Result{
		Applied:  false,
		Reason:   outcome.Reason,
		Artifact: artifact,
		Message:  outcome.Message,
	}
}
