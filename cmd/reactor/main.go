package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/martinemde/reactor/runloop"
	"github.com/martinemde/reactor/thinking"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reactor",
		Short:         "Bounded think-act-observe loops for reasoning agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(runCmd())
	cmd.AddCommand(toolsCmd())
	return cmd
}

func runCmd() *cobra.Command {
	var (
		provider      string
		model         string
		maxIterations int
		showEvents    bool
	)
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task to completion or budget exhaustion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if provider != "" {
				cfg.Provider = provider
			}
			if model != "" {
				cfg.Model = model
			}
			if maxIterations > 0 {
				cfg.MaxIterations = maxIterations
			}
			return runTask(cmd.Context(), cfg, args[0], showEvents)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (overrides REACTOR_PROVIDER)")
	cmd.Flags().StringVar(&model, "model", "", "model name (overrides REACTOR_MODEL)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "iteration budget (overrides REACTOR_MAX_ITERATIONS)")
	cmd.Flags().BoolVar(&showEvents, "events", false, "print loop lifecycle events")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools",
		Run: func(cmd *cobra.Command, args []string) {
			tools := builtinTools()
			for _, name := range tools.Names() {
				tool := tools.Get(name)
				fmt.Printf("%-12s %s\n", name, tool.Description())
			}
		},
	}
}

func runTask(ctx context.Context, cfg Config, task string, showEvents bool) error {
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stageOpts := []thinking.GollmStageOption{
		thinking.WithMaxTokens(cfg.MaxTokens),
		thinking.WithTimeout(cfg.ThinkTimeout),
		thinking.WithLogger(logger),
	}
	if cfg.APIKey != "" {
		stageOpts = append(stageOpts, thinking.WithAPIKey(cfg.APIKey))
	}
	if cfg.Model != "" {
		stageOpts = append(stageOpts, thinking.WithModel(cfg.Model))
	}
	stage, err := thinking.NewGollmStage(cfg.Provider, stageOpts...)
	if err != nil {
		return fmt.Errorf("initializing reasoning stage: %w", err)
	}

	dispatcher := runloop.NewDispatcher(builtinTools(), &runloop.DispatcherConfig{
		AttemptTimeout: cfg.ToolTimeout,
		Logger:         logger,
	})
	controller := runloop.NewController(
		stage,
		dispatcher,
		runloop.NewTransactionLog(),
		runloop.NewLoopRegistry(),
		&runloop.ControllerConfig{
			ThinkTimeout: cfg.ThinkTimeout,
			Logger:       logger,
		},
	)

	var wg sync.WaitGroup
	if showEvents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range controller.Events() {
				logger.Info().
					Str("event", string(ev.Kind)).
					Str("loop", ev.LoopKey).
					Fields(ev.Data).
					Msg("loop event")
			}
		}()
	}

	result, err := controller.RunLoop(ctx, runloop.LoopParams{
		AgentID:       "reactor-cli",
		TaskID:        uuid.New().String(),
		Task:          task,
		MaxIterations: cfg.MaxIterations,
	})
	controller.Close()
	wg.Wait()
	if err != nil {
		return err
	}

	if result.Success {
		fmt.Println(result.Result)
		return nil
	}
	if result.Err != nil {
		return fmt.Errorf("loop failed after %d iterations: %w", result.Iterations, result.Err)
	}
	return fmt.Errorf("stopped after %d iterations (%s); last output:\n%s", result.Iterations, result.Reason, result.Result)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}
