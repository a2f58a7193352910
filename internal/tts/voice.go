package tts

import (
	"fmt"

	"speechd/internal/domain"
)

type voiceKey struct {
	lang    Language
	quality domain.Quality
}

var defaultVoices = map[voiceKey]string{
	{LangEnglish, domain.QualityStandard}:    "Matthew",
	{LangEnglish, domain.QualityNeural}:      "Joanna",
	{LangSpanish, domain.QualityStandard}:    "Conchita",
	{LangSpanish, domain.QualityNeural}:      "Lucia",
	{LangFrench, domain.QualityStandard}:     "Celine",
	{LangFrench, domain.QualityNeural}:       "Lea",
	{LangGerman, domain.QualityStandard}:     "Marlene",
	{LangGerman, domain.QualityNeural}:       "Vicki",
	{LangItalian, domain.QualityStandard}:    "Carla",
	{LangItalian, domain.QualityNeural}:      "Bianca",
	{LangPortuguese, domain.QualityStandard}: "Ines",
	{LangPortuguese, domain.QualityNeural}:   "Camila",
}

// VoiceTable maps (language, quality) to a provider voice id. The mapping is
// total over the supported set: a gap is a configuration defect surfaced by
// NewVoiceTable at startup, never a per-request error.
type VoiceTable struct {
	voices map[voiceKey]string
}

// NewVoiceTable builds the default table and verifies completeness over
// SupportedLanguages x quality tiers.
func NewVoiceTable() (*VoiceTable, error) {
	voices := make(map[voiceKey]string, len(defaultVoices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for _, lang := range SupportedLanguages {
		for _, q := range []domain.Quality{domain.QualityStandard, domain.QualityNeural} {
			if voices[voiceKey{lang, q}] == "" {
				return nil, fmt.Errorf("voice table: no voice for language %q quality %q", lang, q)
			}
		}
	}
	return &VoiceTable{voices: voices}, nil
}

// Select returns the voice id for a supported (language, quality) pair.
func (t *VoiceTable) Select(lang Language, quality domain.Quality) string {
	return t.voices[voiceKey{lang, quality}]
}
