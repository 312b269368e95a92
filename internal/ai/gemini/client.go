package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/auto-apply/internal/ai"
	"github.com/spigell/auto-apply/internal/logger"
	"github.com/spigell/auto-apply/internal/utils"
)

const (
	Provider = "gemini"

	defaultModel             = "gemini-2.5-flash"
	defaultMaxRetries        = 3
	defaultTemperature       = 0.05
	defaultMaxLogLength      = 200
	defaultSystemInstruction = "You are a strict validation agent. Only approve answers that are explicitly backed by the provided user data. " +
		"If there is any doubt or the field requires brand-new information, request user input."

	// maxRetryDelay is the longest server-requested delay the generator is willing to wait for.
	maxRetryDelay = 30 * time.Second
	baseBackoff   = 2 * time.Second
)

var sleep = time.Sleep

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*s`)

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds the knobs of the gemini generator.
type Config struct {
	Model             string
	MaxRetries        int
	Temperature       float32
	MaxLogLength      int
	SystemInstruction string
}

// Generator implements ai.Generator on top of the Google GenAI client.
type Generator struct {
	models      modelsAPI
	model       string
	maxRetries  int
	temperature float32
	system      string
	maxLogLen   int
	logger      *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, cfg, log), nil
}

func newGenerator(models modelsAPI, cfg Config, log *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}
	system := strings.TrimSpace(cfg.SystemInstruction)
	if system == "" {
		system = defaultSystemInstruction
	}

	return &Generator{
		models:      models,
		model:       model,
		maxRetries:  retries,
		temperature: temperature,
		system:      system,
		maxLogLen:   maxLogLen,
		logger:      logger.WithCommonFields(log, Provider, model),
	}
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// GenerateJSON sends the prompt with a JSON response type and decodes the returned object.
func (g *Generator) GenerateJSON(ctx context.Context, prompt string, meta map[string]string) (map[string]any, error) {
	fields := []zap.Field{
		zap.String("field_id", meta[ai.MetaFieldID]),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	}
	g.logger.Debug("gemini generate content request", fields...)

	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("gemini generate content response",
		zap.String("field_id", meta[ai.MetaFieldID]),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, g.maxLogLen)),
	)

	data, err := ai.DecodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	return data, nil
}

func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: g.system}}},
		ResponseMIMEType:  "application/json",
		Temperature:       &temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err == nil {
			return responseText(resp)
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == g.maxRetries {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := waitFor(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("generate content: %w", lastErr)
}

func waitFor(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	sleep(d)
	return ctx.Err()
}

// retryDelay reports whether err is transient and how long to wait before the next attempt.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	apiErr, ok := asAPIError(err)
	if !ok {
		return 0, false
	}
	if apiErr.Code != http.StatusTooManyRequests && apiErr.Code < http.StatusInternalServerError {
		return 0, false
	}

	if requested, found := requestedDelay(apiErr); found {
		if requested > maxRetryDelay {
			return 0, false
		}
		return requested, true
	}

	return time.Duration(attempt) * baseBackoff, true
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func requestedDelay(apiErr genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil {
			return d, true
		}
	}

	if match := retryAfterPattern.FindStringSubmatch(apiErr.Message); len(match) == 2 {
		seconds, err := strconv.ParseFloat(match[1], 64)
		if err == nil {
			return time.Duration(seconds * float64(time.Second)), true
		}
	}

	return 0, false
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned empty response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}
