package artifacts

import (
	"fmt"
	"path/filepath"

	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/utils"
)

const (
	appliedDir    = "answers/applied"
	notAppliedDir = "answers/not_applied"

	StatusSuccessful = "successful_application"
)

// Success is the artifact written after the form was submitted.
type Success struct {
	JobURL          string                               `json:"job_url"`
	JobName         string                               `json:"job_name"`
	Applied         bool                                 `json:"applied"`
	AnswersUsed     map[string]*application.AnswerRecord `json:"answers_used"`
	Timestamp       string                               `json:"timestamp"`
	Status          string                               `json:"status"`
	SubmissionSteps []string                             `json:"submission_steps"`
}

// Failure explains why the run did not apply.
type Failure struct {
	JobURL             string                               `json:"job_url"`
	JobName            string                               `json:"job_name"`
	Applied            bool                                 `json:"applied"`
	RecommendedAnswers map[string]*application.AnswerRecord `json:"recommended_answers"`
	Reason             string                               `json:"reason"`
	Timestamp          string                               `json:"timestamp"`
}

// Writer stores terminal artifacts below a base directory.
type Writer struct {
	baseDir string
}

func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

func (w *Writer) SuccessPath(appCtx *application.Context) string {
	return filepath.Join(w.baseDir, appliedDir, fileName(appCtx))
}

func (w *Writer) FailurePath(appCtx *application.Context) string {
	return filepath.Join(w.baseDir, notAppliedDir, fileName(appCtx))
}

// WriteSuccess records the answers used and the submission steps.
func (w *Writer) WriteSuccess(appCtx *application.Context, submission *application.SubmissionResult) (string, error) {
	steps := []string{}
	if submission != nil && submission.Steps != nil {
		steps = submission.Steps
	}

	payload := Success{
		JobURL:          appCtx.JobURL,
		JobName:         appCtx.JobName(),
		Applied:         true,
		AnswersUsed:     appCtx.AnswersPayload(),
		Timestamp:       appCtx.Timestamp,
		Status:          StatusSuccessful,
		SubmissionSteps: steps,
	}

	path := w.SuccessPath(appCtx)
	if err := utils.WriteJSON(path, payload); err != nil {
		return "", fmt.Errorf("write success artifact: %w", err)
	}
	return path, nil
}

// WriteFailure records the reason together with whatever answers were approved so far.
func (w *Writer) WriteFailure(appCtx *application.Context, reason string) (string, error) {
	payload := Failure{
		JobURL:             appCtx.JobURL,
		JobName:            appCtx.JobName(),
		Applied:            false,
		RecommendedAnswers: appCtx.AnswersPayload(),
		Reason:             reason,
		Timestamp:          appCtx.Timestamp,
	}

	path := w.FailurePath(appCtx)
	if err := utils.WriteJSON(path, payload); err != nil {
		return "", fmt.Errorf("write failure artifact: %w", err)
	}
	return path, nil
}

func fileName(appCtx *application.Context) string {
	return "a_" + appCtx.JobName() + ".json"
}
