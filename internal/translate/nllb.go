// ABOUTME: NLLB engine talking to a local model server over HTTP
// ABOUTME: Sends {text, src_lang, tgt_lang} and accepts either a list or a single translation object

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

// nllbRequest is the pipeline-style request body.
type nllbRequest struct {
	Text    string `json:"text"`
	SrcLang string `json:"src_lang"`
	TgtLang string `json:"tgt_lang"`
}

type nllbResult struct {
	TranslationText string `json:"translation_text"`
}

// NLLB translates through a model server exposing POST {url}/translate.
type NLLB struct {
	baseURL string
	client  *http.Client
}

// NewNLLB creates an NLLB engine for the server at baseURL.
func NewNLLB(baseURL string, timeout time.Duration) *NLLB {
	return &NLLB{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Engine.
func (n *NLLB) Name() string { return EngineNLLB }

// Code implements Engine.
func (n *NLLB) Code(tag string) string { return lookupCode(nllbCodes, tag) }

// Translate implements Engine.
func (n *NLLB) Translate(ctx context.Context, text, code string) (string, error) {
	body, err := json.Marshal(nllbRequest{
		Text:    text,
		SrcLang: nllbCodes[SourceLanguage],
		TgtLang: code,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nllb server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return parseNLLBResponse(respBody)
}

// parseNLLBResponse accepts [{"translation_text": ...}] or {"translation_text": ...}.
func parseNLLBResponse(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", ErrEmptyTranslation
	}

	var result nllbResult
	if trimmed[0] == '[' {
		var results []nllbResult
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return "", fmt.Errorf("decoding response: %w", err)
		}
		if len(results) == 0 {
			return "", ErrEmptyTranslation
		}
		result = results[0]
	} else if err := json.Unmarshal(trimmed, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if result.TranslationText == "" {
		return "", ErrEmptyTranslation
	}
	return result.TranslationText, nil
}
