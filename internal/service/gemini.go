package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	providerGemini     = "gemini"
	defaultGeminiModel = "gemini-2.0-flash"
)

// contentGenerator is the subset of genai.Models the oracle uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOracle ranks through the Google GenAI API.
type GeminiOracle struct {
	models    contentGenerator
	modelName string
}

// NewGeminiOracle creates an oracle configured for the Gemini API backend.
func NewGeminiOracle(ctx context.Context, apiKey, model string) (*GeminiOracle, error) {
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

	return newGeminiOracle(client.Models, model), nil
}

func newGeminiOracle(models contentGenerator, model string) *GeminiOracle {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	return &GeminiOracle{models: models, modelName: model}
}

func (g *GeminiOracle) Name() string { return providerGemini }

func (g *GeminiOracle) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

// Complete sends the prompt in JSON mode and returns the concatenated text parts.
func (g *GeminiOracle) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", &OracleError{Kind: ErrRankingUnavailable, Provider: providerGemini, Err: errors.New("gemini oracle is not initialized")}
	}

	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if strings.TrimSpace(systemPrompt) != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}

	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(userPrompt), cfg)
	if err != nil {
		kind, status := classifyGeminiError(err)
		return "", &OracleError{Kind: kind, StatusCode: status, Provider: providerGemini, Err: fmt.Errorf("generate content: %w", err)}
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
		return "", &OracleError{Kind: ErrRankingUnavailable, Provider: providerGemini, Err: errors.New("gemini api returned empty response")}
	}
	return output, nil
}
