// ABOUTME: Engine interface for machine translation backends and config-driven selection
// ABOUTME: Engines are chosen by name from configuration, never by probing what is installed

package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceLanguage is the tag of the language every reply template is written in.
const SourceLanguage = "en"

// Engine names accepted in configuration.
const (
	EnginePassthrough    = "passthrough"
	EngineNLLB           = "nllb"
	EngineLibreTranslate = "libretranslate"
	EngineGemini         = "gemini"
)

// ErrEmptyTranslation is returned by engines that answered without any text.
var ErrEmptyTranslation = errors.New("engine returned empty translation")

// Engine translates English text into a target language.
//
// Code maps a two-letter tag to the engine's own dialect code. Translate
// receives the mapped code, not the original tag.
type Engine interface {
	Name() string
	Code(tag string) string
	Translate(ctx context.Context, text, code string) (string, error)
}

// EngineConfig selects and configures an engine.
type EngineConfig struct {
	Engine string // one of the Engine* names; empty means passthrough

	URL    string // base URL for nllb and libretranslate
	APIKey string // libretranslate or gemini key
	Model  string // gemini model name

	// HTTPTimeout bounds a single HTTP request made by an engine. The adapter's
	// own timeout still applies on top of it.
	HTTPTimeout time.Duration
}

// NewEngine builds the engine named in cfg.
func NewEngine(ctx context.Context, cfg EngineConfig) (Engine, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", EnginePassthrough:
		return Passthrough{}, nil
	case EngineNLLB:
		if cfg.URL == "" {
			return nil, fmt.Errorf("nllb engine requires a url")
		}
		return NewNLLB(cfg.URL, cfg.HTTPTimeout), nil
	case EngineLibreTranslate:
		if cfg.URL == "" {
			return nil, fmt.Errorf("libretranslate engine requires a url")
		}
		return NewLibreTranslate(cfg.URL, cfg.APIKey, cfg.HTTPTimeout), nil
	case EngineGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini engine requires an api key")
		}
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown translation engine %q", cfg.Engine)
	}
}

// Passthrough is an Engine that returns its input unchanged.
type Passthrough struct{}

// Name implements Engine.
func (Passthrough) Name() string { return EnginePassthrough }

// Code implements Engine.
func (Passthrough) Code(tag string) string { return tag }

// Translate implements Engine.
func (Passthrough) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}
