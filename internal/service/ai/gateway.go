package ai

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"testcasegpt/internal/config"
	"testcasegpt/internal/metrics"
)

// Request is one single-shot completion.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Gateway is the uniform completion interface over the configured provider.
// A Gateway built from an unconfigured GatewayConfig answers every call with
// ErrUnconfigured and never touches the network.
type Gateway struct {
	cfg       config.GatewayConfig
	chatModel model.BaseChatModel
}

// NewGateway builds the chat model for cfg.Provider. transport may be nil.
func NewGateway(ctx context.Context, cfg config.GatewayConfig, transport http.RoundTripper) (*Gateway, error) {
	if !cfg.Configured() {
		return &Gateway{cfg: config.GatewayConfig{Provider: config.ProviderNone}}, nil
	}
	httpClient := newHTTPClient(transport, cfg.Timeout)

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch cfg.Provider {
	case config.ProviderAzure:
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			ByAzure:    true,
			BaseURL:    cfg.Endpoint,
			APIVersion: cfg.APIVersion,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		})
	case config.ProviderHuggingFace, config.ProviderGroq:
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			HTTPClient: httpClient,
		})
	case config.ProviderAnthropic:
		var baseURLPtr *string
		if cfg.Endpoint != "" {
			baseURLPtr = &cfg.Endpoint
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    baseURLPtr,
			MaxTokens:  3000,
			HTTPClient: httpClient,
		})
	case config.ProviderGemini:
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     cfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
	}
	return newGateway(cfg, chatModel), nil
}

func newGateway(cfg config.GatewayConfig, chatModel model.BaseChatModel) *Gateway {
	return &Gateway{cfg: cfg, chatModel: chatModel}
}

// Provider names the resolved provider, "none" when unconfigured.
func (g *Gateway) Provider() string {
	return string(g.cfg.Provider)
}

// Model is the model or deployment identifier, empty when unconfigured.
func (g *Gateway) Model() string {
	return g.cfg.Model
}

func (g *Gateway) Configured() bool {
	return g.chatModel != nil
}

// Complete sends one system + user message pair and returns the reply text.
// There is a single attempt per call.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	if g.chatModel == nil {
		metrics.ObserveGateway(g.Provider(), Kind(ErrUnconfigured), 0)
		return "", &GatewayError{Kind: ErrUnconfigured, Provider: g.Provider()}
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	messages := make([]*schema.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, &schema.Message{Role: schema.System, Content: req.System})
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: req.Prompt})

	opts := []model.Option{model.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	start := time.Now()
	ctx, p := withCallRecord(ctx)
	resp, err := g.chatModel.Generate(ctx, messages, opts...)
	elapsed := time.Since(start)
	if err != nil {
		ge := classify(g.Provider(), err, p)
		log.Printf("llm %s/%s failed after %s: %v", g.Provider(), g.Model(), elapsed.Round(time.Millisecond), ge)
		metrics.ObserveGateway(g.Provider(), Kind(ge), elapsed)
		return "", ge
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		ge := &GatewayError{Kind: ErrMalformedResponse, Provider: g.Provider(), Err: fmt.Errorf("empty completion")}
		log.Printf("llm %s/%s returned no content after %s", g.Provider(), g.Model(), elapsed.Round(time.Millisecond))
		metrics.ObserveGateway(g.Provider(), Kind(ge), elapsed)
		return "", ge
	}
	log.Printf("llm %s/%s prompt=%dB reply=%dB in %s", g.Provider(), g.Model(), len(req.Prompt), len(resp.Content), elapsed.Round(time.Millisecond))
	metrics.ObserveGateway(g.Provider(), Kind(nil), elapsed)
	return resp.Content, nil
}
