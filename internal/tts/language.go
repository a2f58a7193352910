package tts

import (
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"

	"speechd/internal/domain"
)

// Language is an ISO 639-1 code from the closed supported set.
type Language string

const (
	LangEnglish    Language = "en"
	LangSpanish    Language = "es"
	LangFrench     Language = "fr"
	LangGerman     Language = "de"
	LangItalian    Language = "it"
	LangPortuguese Language = "pt"
)

// LanguageAuto asks the orchestrator to run detection on the request text.
const LanguageAuto = "auto"

// SupportedLanguages is the closed detection and voice-selection set. Order
// matters: it mirrors matchTags for the explicit-code matcher.
var SupportedLanguages = []Language{
	LangEnglish, LangSpanish, LangFrench, LangGerman, LangItalian, LangPortuguese,
}

var matchTags = []language.Tag{
	language.English,
	language.Spanish,
	language.French,
	language.German,
	language.Italian,
	language.Portuguese,
}

var languageMatcher = language.NewMatcher(matchTags)

// ParseLanguage resolves an explicit language code (possibly with a region,
// like "en-US") against the supported set. Codes outside the set are invalid
// input: the automatic-detection fallback is reserved for detection, not for
// explicit requests.
func ParseLanguage(code string) (Language, error) {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("unknown language %q: %w", code, domain.ErrInvalidInput)
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf < language.High {
		return "", fmt.Errorf("unsupported language %q: %w", code, domain.ErrInvalidInput)
	}
	return SupportedLanguages[idx], nil
}

// Detector classifies text into the supported language set.
type Detector struct {
	inner lingua.LanguageDetector
}

// NewDetector builds a detector restricted to the supported set. Construction
// loads language models; share one instance per process.
func NewDetector() *Detector {
	inner := lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.English,
			lingua.Spanish,
			lingua.French,
			lingua.German,
			lingua.Italian,
			lingua.Portuguese,
		).
		Build()
	return &Detector{inner: inner}
}

// Detect returns the detected language and true, or false when the text does
// not classify into the supported set. Unsupported is not an error condition;
// the caller substitutes its fallback language.
func (d *Detector) Detect(text string) (Language, bool) {
	detected, ok := d.inner.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	switch detected {
	case lingua.English:
		return LangEnglish, true
	case lingua.Spanish:
		return LangSpanish, true
	case lingua.French:
		return LangFrench, true
	case lingua.German:
		return LangGerman, true
	case lingua.Italian:
		return LangItalian, true
	case lingua.Portuguese:
		return LangPortuguese, true
	}
	return "", false
}
