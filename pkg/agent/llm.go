package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/devicelab-dev/command-runner/pkg/core"
	"github.com/devicelab-dev/command-runner/pkg/logger"
)

// Provider names a chat model API.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderClaude    Provider = "claude"
	ProviderOllama    Provider = "ollama"
	ProviderArk       Provider = "ark"
	ProviderDashScope Provider = "dashscope"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderGemini    Provider = "gemini"
)

// Providers lists the supported providers.
var Providers = []Provider{
	ProviderOpenAI, ProviderClaude, ProviderOllama, ProviderArk,
	ProviderDashScope, ProviderDeepSeek, ProviderGemini,
}

// LLMConfig configures a chat model backend.
type LLMConfig struct {
	Provider    Provider
	BaseURL     string
	APIKey      string
	APIKeyEnv   string // Read when APIKey is empty
	Model       string
	Temperature *float32
	MaxTokens   int
	Timeout     time.Duration
}

// ResolveAPIKey returns the configured key, falling back to the environment.
func (c LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

// Generator produces a completion for an agent's instructions and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// LLM sends each prompt to a chat model, with the agent's instructions as
// the system message.
type LLM struct {
	dir       string
	model     string
	generator Generator
	timeout   time.Duration
}

// NewLLM creates an LLM backend using the given generator.
func NewLLM(dir string, gen Generator, timeout time.Duration) *LLM {
	return &LLM{dir: dir, generator: gen, timeout: timeout}
}

// NewLLMFromConfig builds the generator for cfg.Provider.
func NewLLMFromConfig(ctx context.Context, dir string, cfg LLMConfig) (*LLM, error) {
	gen, err := NewGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	l := NewLLM(dir, gen, cfg.Timeout)
	l.model = cfg.Model
	return l, nil
}

// Invoke implements core.Invoker.
func (l *LLM) Invoke(ctx context.Context, inv core.Invocation) (string, error) {
	def, err := Load(l.dir, inv.Agent)
	if err != nil {
		return "", err
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := l.generator.Generate(ctx, def.Body, inv.Prompt)
	logger.Debug("agent %s: model %s responded in %v", inv.Agent, l.model, time.Since(start))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", core.ErrStepTimeout.WithCause(err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", core.ErrStepExecution.WithCause(err)
	}
	return strings.TrimSpace(out), nil
}

// ChatGenerator adapts an eino chat model to Generator.
type ChatGenerator struct {
	Model model.BaseChatModel
}

// Generate implements Generator.
func (g *ChatGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	var msgs []*schema.Message
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	msgs = append(msgs, schema.UserMessage(prompt))

	resp, err := g.Model.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("empty response from model")
	}
	return resp.Content, nil
}

// NewGenerator creates the Generator for a provider.
func NewGenerator(ctx context.Context, cfg LLMConfig) (Generator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm backend requires a model for provider %q", cfg.Provider)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 16 * 1024
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 600 * time.Second
	}
	apiKey := cfg.ResolveAPIKey()

	var (
		cm  model.BaseChatModel
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		cm, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      apiKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   &cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	case ProviderDeepSeek:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
		cm, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     baseURL,
			APIKey:      apiKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   &cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	case ProviderDashScope:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
		}
		cm, err = qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL:     baseURL,
			APIKey:      apiKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   &cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	case ProviderArk:
		cm, err = ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      apiKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   &cfg.MaxTokens,
		})
	case ProviderOllama:
		cm, err = ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case ProviderClaude:
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		cm, err = claude.NewChatModel(ctx, &claude.Config{
			BaseURL:     baseURL,
			APIKey:      apiKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case ProviderGemini:
		return NewGeminiGenerator(ctx, apiKey, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s chat model: %w", cfg.Provider, err)
	}
	return &ChatGenerator{Model: cm}, nil
}
