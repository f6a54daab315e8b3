package parse

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// detectionSample caps how much text feeds the language detector; a few
// kilobytes is plenty for a confident classification.
const detectionSample = 4096

type languageDetector struct {
	detector lingua.LanguageDetector
}

// newLanguageDetector builds a detector over the languages the agent is
// likely to encounter. Restricting the set keeps model loading cheap.
func newLanguageDetector() *languageDetector {
	languages := []lingua.Language{
		lingua.English,
		lingua.Spanish,
		lingua.French,
		lingua.German,
		lingua.Italian,
		lingua.Portuguese,
		lingua.Dutch,
		lingua.Russian,
		lingua.Japanese,
		lingua.Chinese,
		lingua.Korean,
		lingua.Arabic,
	}
	return &languageDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build(),
	}
}

// detect returns the lowercase ISO 639-1 code of the dominant language, or
// an empty string when detection is inconclusive.
func (d *languageDetector) detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if len(text) > detectionSample {
		text = text[:detectionSample]
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}
