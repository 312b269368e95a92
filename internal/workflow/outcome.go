package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/auto-apply/internal/application"
)

// Reason codes reported in the result and used by artifact consumers.
const (
	ReasonApplyFlowMissing = "apply_flow_missing"
	ReasonUserInputMissing = "user_input_missing"
	ReasonBrowserError     = "playwright_error"
	ReasonUnexpected       = "unexpected_error"
)

type OutcomeKind int

const (
	OutcomeContinue OutcomeKind = iota
	OutcomeDone
	OutcomeNeedsHuman
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeDone:
		return "done"
	case OutcomeNeedsHuman:
		return "needs_human"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is what a state handler hands back to the orchestrator loop.
type Outcome struct {
	Kind       OutcomeKind
	Reason     string
	Message    string
	Submission *application.SubmissionResult
}

func Continue() Outcome { return Outcome{Kind: OutcomeContinue} }

func Done(submission *application.SubmissionResult) Outcome {
	return Outcome{Kind: OutcomeDone, Submission: submission}
}

func NeedsHuman(message string) Outcome {
	return Outcome{Kind: OutcomeNeedsHuman, Reason: ReasonUserInputMissing, Message: message}
}

func Fatal(reason, message string) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason, Message: message}
}

// classify maps an error returned by a collaborator to the outcome that ends the run.
func classify(err error) Outcome {
	var pending *application.PendingUserInputError
	if errors.As(err, &pending) {
		return NeedsHuman(pending.Error())
	}

	var browserErr *application.BrowserError
	if errors.As(err, &browserErr) {
		return Fatal(ReasonBrowserError, "Browser session failure: "+err.Error())
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal(ReasonUnexpected, "Run interrupted: "+err.Error())
	}

	return Fatal(ReasonUnexpected, "Unexpected error: "+err.Error())
}
