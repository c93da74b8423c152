package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ZyroChat/internal/backend"
	"ZyroChat/internal/chatbot"
	"ZyroChat/internal/config"
	"ZyroChat/internal/persona"
	"ZyroChat/internal/telemetry"
	"ZyroChat/internal/ui"
)

// Version is set at build time
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.LookupEnv).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	var configPath string
	var flags config.Config

	cmd := &cobra.Command{
		Use:           "zyrochat",
		Short:         "Zyro AI, a study companion in your terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, configPath, flags, lookupEnv)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "Config file (default: <user config dir>/zyrochat/config.toml)")
	f.StringVar(&flags.Backend, "backend", config.BackendGemini, "LLM backend (gemini|openai|ollama|anthropic)")
	f.StringVar(&flags.Model, "model", "", "Model name (default depends on backend)")
	f.StringVar(&flags.BaseURL, "base-url", "", "Base URL for OpenAI-compatible or Anthropic APIs")
	f.StringVar(&flags.OllamaURL, "ollama-url", config.DefaultOllamaURL, "Ollama server URL")
	f.BoolVar(&flags.Plain, "plain", false, "Use the line-oriented chat instead of the full-screen UI")
	f.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	f.BoolVar(&flags.Telemetry, "telemetry", false, "Export OpenTelemetry traces and metrics to the log dir")
	f.StringVar(&flags.LogDir, "log-dir", "logs", "Directory for logs and telemetry")
	f.StringVar(&flags.DBPath, "db-path", "", "Exchange log database (empty: <log-dir>/exchanges.db, \"off\" disables)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zyrochat %s\n", Version)
		},
	})

	return cmd
}

// resolveConfig layers the config file, the environment and explicitly set flags
func resolveConfig(cmd *cobra.Command, configPath string, flags config.Config, lookupEnv func(string) (string, bool)) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(lookupEnv)

	f := cmd.Flags()
	if f.Changed("backend") {
		cfg.Backend = flags.Backend
		// the credential variable depends on the backend
		cfg.ApplyEnv(lookupEnv)
	}
	if f.Changed("model") {
		cfg.Model = flags.Model
	}
	if f.Changed("base-url") {
		cfg.BaseURL = flags.BaseURL
	}
	if f.Changed("ollama-url") {
		cfg.OllamaURL = flags.OllamaURL
	}
	if f.Changed("plain") {
		cfg.Plain = flags.Plain
	}
	if f.Changed("debug") {
		cfg.Debug = flags.Debug
	}
	if f.Changed("telemetry") {
		cfg.Telemetry = flags.Telemetry
	}
	if f.Changed("log-dir") {
		cfg.LogDir = flags.LogDir
	}
	if f.Changed("db-path") {
		cfg.DBPath = flags.DBPath
	}

	if err := cfg.Finalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdown()

	var recorder chatbot.Recorder
	if cfg.DBPath != "off" {
		store, err := telemetry.OpenStore(cfg.DBPath)
		if err != nil {
			logger.Warn("exchange log disabled", "path", cfg.DBPath, "error", err)
		} else {
			defer store.Close()
			recorder = store
		}
	}

	factory, err := backend.NewFactory(cfg)
	if err != nil {
		return err
	}

	bot := chatbot.New(ctx, factory, chatbot.Options{
		Backend:           cfg.Backend,
		Model:             cfg.Model,
		SystemInstruction: cfg.SystemInstruction,
		Greeting:          persona.Greeting,
		Logger:            logger,
		Tracer:            tracer,
		Meter:             meter,
		Recorder:          recorder,
	})

	if cfg.Plain {
		return bot.Run(ctx)
	}

	p := tea.NewProgram(ui.New(ctx, bot), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run UI: %w", err)
	}
	return nil
}
