// pkg/oracle/gemini.go

package oracle

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/guidecap-cli/internal/config"
	"github.com/xkilldash9x/guidecap-cli/pkg/action"
)

// Gemini is the production Oracle backed by the Gemini API.
type Gemini struct {
	client  *genai.Client
	cfg     config.OracleConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ Oracle = (*Gemini)(nil)

// NewGemini builds a Gemini oracle from config. The API key is required.
func NewGemini(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle: api key is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: creating genai client: %w", err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &Gemini{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rpm/60.0), 1),
		logger:  logger.Named("oracle"),
	}, nil
}

// NextAction asks the model for the next step. A response that cannot be
// parsed degrades to a wait action instead of failing the run.
func (g *Gemini) NextAction(ctx context.Context, q Query) (action.Action, error) {
	prompt := buildActionPrompt(q, g.cfg.MaxElements, g.cfg.HistoryWindow)
	raw, err := g.generate(ctx, prompt, q.Screenshot)
	if err != nil {
		return action.Action{}, err
	}
	a, err := DecodeAction(raw)
	if err != nil {
		g.logger.Warn("Unparseable model response, waiting instead.", zap.Error(err))
		return FallbackWait("model response could not be parsed"), nil
	}
	return a, nil
}

// AssessLogin asks the model to classify an authentication page.
func (g *Gemini) AssessLogin(ctx context.Context, q LoginQuery) (LoginDecision, error) {
	prompt := buildLoginPrompt(q, g.cfg.MaxElements)
	raw, err := g.generate(ctx, prompt, q.Screenshot)
	if err != nil {
		return LoginDecision{}, err
	}
	return DecodeLoginDecision(raw)
}

func (g *Gemini) generate(ctx context.Context, prompt string, screenshot []byte) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("oracle: rate limit wait: %w", err)
	}
	if g.cfg.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.APITimeout)
		defer cancel()
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(screenshot) > 0 {
		parts = append(parts, genai.NewPartFromBytes(screenshot, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(g.cfg.Temperature),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("oracle: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("oracle: model returned no candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
