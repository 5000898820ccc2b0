// ABOUTME: Gemini engine using google.golang.org/genai with a translation-only prompt
// ABOUTME: Language tags are mapped to English language names for the prompt

package translate

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// contentGenerator is the subset of *genai.Models the engine needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini translates by prompting a Gemini model.
type Gemini struct {
	models contentGenerator
	model  string
}

// NewGemini creates a Gemini engine backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newGeminiWith(client.Models, model), nil
}

func newGeminiWith(models contentGenerator, model string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{models: models, model: model}
}

// Name implements Engine.
func (g *Gemini) Name() string { return EngineGemini }

// Code implements Engine.
func (g *Gemini) Code(tag string) string { return lookupCode(languageNames, tag) }

// Translate implements Engine.
func (g *Gemini) Translate(ctx context.Context, text, language string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following English text into %s. Reply with the translation only, without quotes or commentary.\n\n%s",
		language, text,
	)

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", ErrEmptyTranslation
	}
	return out, nil
}
