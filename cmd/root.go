package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/auto-apply/internal/assessing"
	"github.com/spigell/auto-apply/internal/browser"
)

const (
	app = "auto-apply"
)

type Config struct {
	BaseDir     string                   `mapstructure:"base-dir" validate:"required"`
	PrefillFile string                   `mapstructure:"prefill-file"`
	Browser     browser.Config           `mapstructure:"browser"`
	AI          *AIConfig                `mapstructure:"ai" validate:"required"`
	Validity    assessing.ValidityConfig `mapstructure:"validity"`
	Submit      SubmitConfig             `mapstructure:"submit"`
}

type AIConfig struct {
	Provider      string        `mapstructure:"provider" validate:"oneof=gemini mock"`
	MockResponses string        `mapstructure:"mock-responses"`
	Gemini        *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string  `mapstructure:"api-key"`
	APIKeyFile   string  `mapstructure:"api-key-file"`
	Model        string  `mapstructure:"model"`
	MaxRetries   int     `mapstructure:"max-retries" validate:"gte=0"`
	Temperature  float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxLogLength int     `mapstructure:"max-log-length" validate:"gte=0"`
}

type SubmitConfig struct {
	MaxAttempts int `mapstructure:"max-attempts" validate:"gte=0"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "auto-apply fills and submits job application forms, asking a human only when the evidence runs out",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"ai.gemini.api-key":      "GEMINI_API_KEY",
		"ai.gemini.model":        "AUTO_APPLY_GEMINI_MODEL",
		"ai.mock-responses":      "MOCK_LLM_RESPONSES",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("base-dir", ".")
	viper.SetDefault("prefill-file", "input/user_answers.json")
	viper.SetDefault("browser.headless", true)
	viper.SetDefault("browser.navigation-timeout", 45*time.Second)
	viper.SetDefault("browser.action-timeout", 15*time.Second)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("validity.top-k", assessing.DefaultTopK)
	viper.SetDefault("validity.concurrency", assessing.DefaultConcurrency)
	viper.SetDefault("submit.max-attempts", 3)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is auto-apply.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if runCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional, but a broken one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	// Canned responses always win over a live model.
	if config.AI.MockResponses != "" {
		config.AI.Provider = "mock"
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}

	if err := validator.New().Struct(config); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
