package thinking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/teilomillet/gollm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GollmStage implements Stage over a gollm.LLM instance. It translates
// a Request into a single-shot gollm prompt, classifies provider errors
// into the package taxonomy, and retries retryable faults.
type GollmStage struct {
	provider string
	model    string
	llm      gollm.LLM
	retry    RetryPolicy
	timeout  time.Duration
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// GollmStageOption configures a GollmStage.
type GollmStageOption func(*gollmStageConfig)

type gollmStageConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	retry       RetryPolicy
	timeout     time.Duration
	logger      zerolog.Logger
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the provider API key. If empty, gollm reads it from
// environment variables.
func WithAPIKey(key string) GollmStageOption {
	return func(c *gollmStageConfig) { c.apiKey = key }
}

// WithModel sets the model identifier.
func WithModel(model string) GollmStageOption {
	return func(c *gollmStageConfig) { c.model = model }
}

// WithMaxTokens sets the response token budget.
func WithMaxTokens(n int) GollmStageOption {
	return func(c *gollmStageConfig) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GollmStageOption {
	return func(c *gollmStageConfig) { c.temperature = t }
}

// WithRetryPolicy overrides the provider-call retry policy.
func WithRetryPolicy(p RetryPolicy) GollmStageOption {
	return func(c *gollmStageConfig) { c.retry = p }
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) GollmStageOption {
	return func(c *gollmStageConfig) { c.timeout = d }
}

// WithLogger sets the stage logger.
func WithLogger(logger zerolog.Logger) GollmStageOption {
	return func(c *gollmStageConfig) { c.logger = logger }
}

// WithGollmOptions appends extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmStageOption {
	return func(c *gollmStageConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmStage creates a reasoning stage backed by the given provider.
func NewGollmStage(provider string, opts ...GollmStageOption) (*GollmStage, error) {
	cfg := &gollmStageConfig{
		maxTokens:   4096,
		temperature: 0.7,
		retry:       DefaultRetryPolicy(),
		timeout:     120 * time.Second,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		case "openai":
			model = "gpt-4o-mini"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries handled by the stage
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmStage{
		provider: provider,
		model:    model,
		llm:      llm,
		retry:    cfg.retry,
		timeout:  cfg.timeout,
		logger:   cfg.logger,
		tracer:   otel.Tracer("thinking"),
	}, nil
}

// NewGollmStageFromLLM wraps an existing gollm.LLM instance.
func NewGollmStageFromLLM(provider string, llm gollm.LLM) *GollmStage {
	return &GollmStage{
		provider: provider,
		llm:      llm,
		retry:    DefaultRetryPolicy(),
		timeout:  120 * time.Second,
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer("thinking"),
	}
}

// Provider returns the provider identifier.
func (s *GollmStage) Provider() string { return s.provider }

// Think sends one reasoning call and returns the raw output.
func (s *GollmStage) Think(ctx context.Context, req Request) (*Thought, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "thinking.think", trace.WithAttributes(
		attribute.String("agent.id", req.AgentID),
		attribute.String("task.id", req.TaskID),
		attribute.String("llm.provider", s.provider),
		attribute.String("llm.model", s.model),
	))
	defer span.End()

	instructions := BuildInstructions(req.Task, req.Tools)
	body := RenderHistory(req.History, req.Feedback)

	prompt := gollm.NewPrompt(body,
		gollm.WithSystemPrompt(strings.TrimSpace(instructions), gollm.CacheTypeEphemeral),
	)

	text, err := Retry(ctx, s.retry, func(ctx context.Context) (string, error) {
		out, genErr := s.llm.Generate(ctx, prompt)
		if genErr != nil {
			return "", s.classifyError(genErr)
		}
		return out, nil
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Debug().
			Str("agent_id", req.AgentID).
			Str("task_id", req.TaskID).
			Err(err).
			Msg("think call failed")
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		err := &EmptyOutputError{StageError: StageError{
			Message: fmt.Sprintf("provider %s returned no usable output", s.provider),
		}}
		span.RecordError(err)
		return nil, err
	}

	return &Thought{
		RawText: text,
		Model:   s.model,
		Usage: Usage{
			// gollm does not expose provider usage; estimate from length.
			InputTokens:  (len(instructions) + len(body)) / 4,
			OutputTokens: len(text) / 4,
			TotalTokens:  (len(instructions) + len(body) + len(text)) / 4,
		},
	}, nil
}

// classifyError converts a gollm error into the stage error taxonomy
// based on the error message content.
func (s *GollmStage) classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	base := StageError{Message: msg, Cause: err}
	provider := func(status int, retryable bool) ProviderError {
		return ProviderError{StageError: base, Provider: s.provider, StatusCode: status, Retryable: retryable}
	}

	msgLower := strings.ToLower(msg)
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		return &AuthenticationError{ProviderError: provider(401, false)}
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return &AccessDeniedError{ProviderError: provider(403, false)}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: provider(429, true)}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: provider(413, false)}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		return &ServerError{ProviderError: provider(500, true)}
	case strings.Contains(msgLower, "content filter") || strings.Contains(msgLower, "safety"):
		return &ContentFilterError{ProviderError: provider(0, false)}
	case strings.Contains(msgLower, "timeout") || strings.Contains(msgLower, "deadline exceeded"):
		return &RequestTimeoutError{StageError: base}
	case strings.Contains(msgLower, "connection") || strings.Contains(msgLower, "no such host"):
		return &NetworkError{StageError: base}
	default:
		// Unknown errors default to retryable provider errors.
		pe := provider(0, true)
		return &pe
	}
}
