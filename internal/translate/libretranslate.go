// ABOUTME: LibreTranslate engine for the hosted or self-hosted translation API
// ABOUTME: Posts {q, source, target, format, api_key} and reads {translatedText}

package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// LibreTranslate translates through a LibreTranslate-compatible API.
type LibreTranslate struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLibreTranslate creates a LibreTranslate engine.
func NewLibreTranslate(baseURL, apiKey string, timeout time.Duration) *LibreTranslate {
	return &LibreTranslate{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Engine.
func (l *LibreTranslate) Name() string { return EngineLibreTranslate }

// Code implements Engine. LibreTranslate already speaks two-letter tags.
func (l *LibreTranslate) Code(tag string) string { return tag }

// Translate implements Engine.
func (l *LibreTranslate) Translate(ctx context.Context, text, code string) (string, error) {
	body, err := json.Marshal(libreRequest{
		Q:      text,
		Source: SourceLanguage,
		Target: code,
		Format: "text",
		APIKey: l.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var result libreResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("libretranslate returned status %d: %s", resp.StatusCode, result.Error)
	}
	if result.TranslatedText == "" {
		return "", ErrEmptyTranslation
	}
	return result.TranslatedText, nil
}
