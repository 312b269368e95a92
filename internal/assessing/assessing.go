package assessing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/application"
)

// Step is a single answering pass over the detected fields.
type Step interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, appCtx *application.Context, fields []*application.FieldDescriptor) (Result, error)
}

// Result describes the effect of executing one step.
type Result struct {
	Initial  int
	Answered int
	Left     int
}

// Status represents runtime information about a step.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

type assessmentCollector interface {
	Assessments() []*application.AnswerAssessment
}

// DisableByName marks a step with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Step, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the enabled steps in order and returns the assessments produced by steps that make them.
func Run(ctx context.Context, logger *zap.Logger, steps []Step, appCtx *application.Context, fields []*application.FieldDescriptor) ([]*application.AnswerAssessment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var assessments []*application.AnswerAssessment
	for _, step := range steps {
		if !step.IsEnabled() {
			logger.Info("assess step disabled", zap.String("name", step.Name()))
			continue
		}

		info, err := step.Apply(ctx, appCtx, fields)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		logger.Info("assess step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("answered", info.Answered),
			zap.Int("left", info.Left),
		)

		if collector, ok := step.(assessmentCollector); ok {
			assessments = append(assessments, collector.Assessments()...)
		}
	}

	return assessments, nil
}

// Describe returns status entries for the provided steps.
func Describe(steps []Step) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// Unanswered returns the fields without a recorded answer, keeping their order.
func Unanswered(appCtx *application.Context, fields []*application.FieldDescriptor) []*application.FieldDescriptor {
	left := make([]*application.FieldDescriptor, 0, len(fields))
	for _, field := range fields {
		if !appCtx.IsAnswered(field.ID) {
			left = append(left, field)
		}
	}
	return left
}

func result(appCtx *application.Context, fields []*application.FieldDescriptor, initial int) Result {
	left := len(Unanswered(appCtx, fields))
	return Result{Initial: initial, Answered: initial - left, Left: left}
}
