package soniox

import (
	"github.com/google/uuid"

	"github.com/verbatim-ai/streamasr/pkg/asr"
)

// Soniox pseudo-tokens marking control events inside a token stream.
const (
	finToken = "<fin>"
	endToken = "<end>"
)

// token is one Soniox token as it appears on the wire. Regular transcript
// tokens carry timestamps; translation tokens carry a translation status and
// are not part of the transcript.
type token struct {
	Text              string  `json:"text"`
	StartMS           int64   `json:"start_ms"`
	EndMS             int64   `json:"end_ms"`
	IsFinal           bool    `json:"is_final"`
	Confidence        float64 `json:"confidence"`
	Speaker           string  `json:"speaker"`
	Language          string  `json:"language"`
	TranslationStatus string  `json:"translation_status"`
	SourceLanguage    string  `json:"source_language"`
}

// isControl reports pseudo-tokens that carry no transcript text.
func (t token) isControl() bool {
	return t.IsFinal && (t.Text == finToken || t.Text == endToken)
}

// isTranslation reports tokens belonging to a translation stream rather than
// the transcript.
func (t token) isTranslation() bool {
	return t.TranslationStatus != "" && t.SourceLanguage != ""
}

// language returns the token's language code, defaulting to English when the
// model did not identify one.
func (t token) language() string {
	if t.Language == "" {
		return "en"
	}
	return t.Language
}

// normalizeTokens turns one message's token list into results. Final tokens
// are emitted before non-final ones, each group split further into per-language
// runs so a code-switching utterance produces one result per language. The
// second return value reports whether a finalize acknowledgement (<fin>) was
// present.
func normalizeTokens(tokens []token) ([]asr.Result, bool) {
	var finals, nonFinals []token
	fin := false

	for _, t := range tokens {
		switch {
		case t.isControl():
			if t.Text == finToken {
				fin = true
			}
		case t.isTranslation():
			// Translations are a separate output stream; not transcript text.
		case t.IsFinal:
			finals = append(finals, t)
		default:
			nonFinals = append(nonFinals, t)
		}
	}

	var results []asr.Result
	results = append(results, groupByLanguage(finals, true)...)
	results = append(results, groupByLanguage(nonFinals, false)...)
	return results, fin
}

// groupByLanguage splits a token run at every language change and builds one
// result per segment.
func groupByLanguage(tokens []token, final bool) []asr.Result {
	if len(tokens) == 0 {
		return nil
	}

	var results []asr.Result
	start := 0
	lang := tokens[0].language()
	for i, t := range tokens {
		if t.language() != lang {
			results = append(results, buildResult(tokens[start:i], lang, final))
			start = i
			lang = t.language()
		}
	}
	results = append(results, buildResult(tokens[start:], lang, final))
	return results
}

// buildResult assembles one result from a non-empty single-language token run.
// Timestamps stay on the vendor clock; the session realigns them.
func buildResult(tokens []token, lang string, final bool) asr.Result {
	words := make([]asr.Word, 0, len(tokens))
	text := ""
	for _, t := range tokens {
		words = append(words, asr.Word{
			Text:       t.Text,
			StartMS:    t.StartMS,
			DurationMS: t.EndMS - t.StartMS,
			Stable:     t.IsFinal,
		})
		text += t.Text
	}

	return asr.Result{
		ID:         uuid.NewString(),
		Text:       text,
		Final:      final,
		StartMS:    tokens[0].StartMS,
		DurationMS: tokens[len(tokens)-1].EndMS - tokens[0].StartMS,
		Language:   lang,
		Words:      words,
	}
}
