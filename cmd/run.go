package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/auto-apply/internal/ai"
	"github.com/spigell/auto-apply/internal/ai/gemini"
	"github.com/spigell/auto-apply/internal/artifacts"
	"github.com/spigell/auto-apply/internal/browser"
	"github.com/spigell/auto-apply/internal/knowledge"
	"github.com/spigell/auto-apply/internal/logger"
	"github.com/spigell/auto-apply/internal/secrets"
	"github.com/spigell/auto-apply/internal/userinput"
	"github.com/spigell/auto-apply/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run <job_url> <cover_letter_file> <profile_json> <cv_pdf>",
	Short: "Apply to a single job posting",
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("no-wait-for-user", false, "write pending questions and stop instead of prompting on the terminal")
	runCmd.Flags().String("answers-json", "", "debug mode: take every answer from this JSON file and skip inference")
}

// run is the main command for the cli. It always prints a result and never exits with an error code.
func run(cmd *cobra.Command, args []string) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating logger: %s", err)
	}
	defer logger.Sync() //nolint:errcheck

	printResult(cmd.OutOrStdout(), apply(cmd, args, logger), logger)
}

func apply(cmd *cobra.Command, args []string, logger *zap.Logger) *workflow.Result {
	config, err := getConfig()
	if err != nil {
		logger.Error("reading config", zap.Error(err))
		return setupFailure(err)
	}

	noWait, _ := cmd.Flags().GetBool("no-wait-for-user")
	answersJSON, _ := cmd.Flags().GetString("answers-json")

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator, err := newOrchestrator(ctx, config, !noWait, logger)
	if err != nil {
		logger.Error("preparing workflow", zap.Error(err))
		return setupFailure(err)
	}

	return orchestrator.Apply(ctx, workflow.Inputs{
		JobURL:      args[0],
		CoverLetter: args[1],
		ProfilePath: args[2],
		CVPath:      args[3],
		AnswersJSON: answersJSON,
	})
}

// setupFailure reports an error that happened before a run could start. No artifact exists for it.
func setupFailure(err error) *workflow.Result {
	return &workflow.Result{
		Applied: false,
		Reason:  workflow.ReasonUnexpected,
		Message: fmt.Sprintf("Setup failed: %v", err),
	}
}

func newOrchestrator(ctx context.Context, config *Config, wait bool, logger *zap.Logger) (*workflow.Orchestrator, error) {
	store, err := knowledge.NewStore(config.BaseDir, logger.With(zap.String("component", "knowledge")))
	if err != nil {
		return nil, err
	}

	generator, err := newGenerator(ctx, config.AI, logger.With(zap.String("component", "ai")))
	if err != nil {
		return nil, err
	}

	prefill := config.PrefillFile
	if prefill != "" && !filepath.IsAbs(prefill) {
		prefill = filepath.Join(config.BaseDir, prefill)
	}
	collector := userinput.NewAgent(
		userinput.NewConsole(),
		userinput.NewPendingStore(config.BaseDir),
		prefill,
		logger.With(zap.String("component", "userinput")),
	)

	browserLogger := logger.With(zap.String("component", "browser"))
	openSession := func(ctx context.Context) (workflow.Session, error) {
		return browser.Open(ctx, config.Browser, browserLogger)
	}

	return workflow.New(
		workflow.Config{
			WaitForUser:       wait,
			MaxSubmitAttempts: config.Submit.MaxAttempts,
			Validity:          config.Validity,
		},
		workflow.Deps{
			OpenSession: openSession,
			Knowledge:   store,
			Generator:   generator,
			Navigator:   browser.NewNavigator(config.BaseDir, browserLogger),
			Submitter:   browser.NewSubmitter(browserLogger),
			Collector:   collector,
			Artifacts:   artifacts.NewWriter(config.BaseDir),
			Logger:      logger.With(zap.String("component", "workflow")),
		},
	), nil
}

func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Generator, error) {
	switch cfg.Provider {
	case "mock":
		logger.Info("using canned model responses", zap.String("file", cfg.MockResponses))
		return ai.LoadMock(cfg.MockResponses, logger)
	case gemini.Provider:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  cfg.Gemini.APIKeyFile,
			Value: cfg.Gemini.APIKey,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
		}

		return gemini.NewGenerator(ctx, apiKey, gemini.Config{
			Model:        cfg.Gemini.Model,
			MaxRetries:   cfg.Gemini.MaxRetries,
			Temperature:  cfg.Gemini.Temperature,
			MaxLogLength: cfg.Gemini.MaxLogLength,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

func printResult(w io.Writer, result *workflow.Result, logger *zap.Logger) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Error("encoding result", zap.Error(err))
		return
	}
	fmt.Fprintln(w, string(out))
}
