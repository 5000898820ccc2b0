// ABOUTME: Static language tag tables mapping two-letter tags to engine-specific codes
// ABOUTME: Unknown tags are returned unmodified so callers can pass engine codes directly

package translate

import "strings"

// nllbCodes maps two-letter tags to NLLB-200 script-qualified codes.
var nllbCodes = map[string]string{
	"en": "eng_Latn",
	"es": "spa_Latn",
	"fr": "fra_Latn",
	"de": "deu_Latn",
	"zh": "zho_Hans",
	"ja": "jpn_Jpan",
	"pt": "por_Latn",
	"it": "ita_Latn",
	"ko": "kor_Hang",
	"ru": "rus_Cyrl",
}

// languageNames maps the same tags to English language names for prompt-based engines.
var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"zh": "Simplified Chinese",
	"ja": "Japanese",
	"pt": "Portuguese",
	"it": "Italian",
	"ko": "Korean",
	"ru": "Russian",
}

// lookupCode returns table[tag], matching case-insensitively, or tag itself when unknown.
func lookupCode(table map[string]string, tag string) string {
	if code, ok := table[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return code
	}
	return tag
}
