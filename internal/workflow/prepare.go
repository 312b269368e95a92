package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spigell/auto-apply/internal/application"
	"github.com/spigell/auto-apply/internal/knowledge"
)

// Inputs are the arguments of one run as given on the command line.
type Inputs struct {
	JobURL string
	// CoverLetter is a path to a text file or, when no such file exists, the letter itself.
	CoverLetter string
	ProfilePath string
	CVPath      string
	// AnswersJSON switches the run to debug mode when set.
	AnswersJSON string
}

// KnowledgeBase persists the candidate documents and serves evidence for them.
type KnowledgeBase interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.Chunk, error)
	PersistProfile(path string) (map[string]any, error)
	ParseAndPersistCV(path string) (*knowledge.ParsedCV, error)
	PersistCoverLetter(text string) error
	CoverLetterPath() string
}

// ResolveCoverLetter reads arg as a file when it names one and returns it verbatim otherwise.
func ResolveCoverLetter(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil || info.IsDir() {
		return arg, nil
	}

	raw, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("read cover letter: %w", err)
	}
	return string(raw), nil
}

// prepare fills appCtx from the inputs and indexes the candidate documents.
func prepare(appCtx *application.Context, kb KnowledgeBase, in Inputs) error {
	coverLetter, err := ResolveCoverLetter(in.CoverLetter)
	if err != nil {
		return err
	}

	raw, err := kb.PersistProfile(in.ProfilePath)
	if err != nil {
		return err
	}
	profile, err := application.DecodeProfile(raw)
	if err != nil {
		return err
	}
	if _, err := kb.ParseAndPersistCV(in.CVPath); err != nil {
		return err
	}
	if err := kb.PersistCoverLetter(coverLetter); err != nil {
		return err
	}

	appCtx.Profile = profile
	appCtx.ProfilePath = in.ProfilePath
	appCtx.CVPath = in.CVPath
	appCtx.CoverLetter = coverLetter
	appCtx.CoverLetterPath = kb.CoverLetterPath()
	appCtx.AnswersOverridePath = strings.TrimSpace(in.AnswersJSON)
	appCtx.DebugAnswersOnly = appCtx.AnswersOverridePath != ""
	return nil
}
