// ABOUTME: Deterministic templated reply generator for chat turns
// ABOUTME: Quotes a bounded prefix of the user's text and localizes it unless the target is English

package reply

import (
	"context"
	"fmt"
)

// PrefixRunes is how many runes of the user's text the reply quotes.
const PrefixRunes = 30

// English is the tag for which replies are returned untranslated.
const English = "en"

// Translator localizes text. Implementations must not fail; on any problem
// they return the input unchanged.
type Translator interface {
	Translate(ctx context.Context, text, tag string) string
}

// Generator builds replies for chat turns.
type Generator struct {
	translator Translator
}

// NewGenerator creates a Generator that localizes through t.
func NewGenerator(t Translator) *Generator {
	return &Generator{translator: t}
}

// Template returns the English reply for userText.
func Template(userText string) string {
	return fmt.Sprintf("That's interesting! Tell me more about '%s...' in the context of language learning.", prefix(userText))
}

// Generate returns the reply to userText in targetLang. English replies never
// touch the translator.
func (g *Generator) Generate(ctx context.Context, userText, targetLang string) string {
	text := Template(userText)
	if targetLang == English || g.translator == nil {
		return text
	}
	return g.translator.Translate(ctx, text, targetLang)
}

// prefix truncates s to PrefixRunes runes without splitting a multi-byte character.
func prefix(s string) string {
	n := 0
	for i := range s {
		if n == PrefixRunes {
			return s[:i]
		}
		n++
	}
	return s
}
