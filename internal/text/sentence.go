package text

import (
	"regexp"
	"strings"
)

var sentenceBoundary = regexp.MustCompile(`([.!?])[` + spaceClass + `]+`)

var abbreviations = []string{
	"Dr.", "Mr.", "Mrs.", "Ms.", "Prof.", "Sr.", "Jr.", "St.", "Ave.", "Rd.", "Blvd.",
	"Dept.", "Inc.", "Ltd.", "Co.", "Corp.", "etc.", "vs.", "i.e.", "e.g.", "Ph.D.",
}

// SplitSentences splits text at [.!?] followed by whitespace, skipping
// boundaries that close a known abbreviation. Each sentence keeps its
// punctuation and trailing whitespace. The result is never empty.
func SplitSentences(text string) []string {
	matches := sentenceBoundary.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}

	var sentences []string
	lastEnd := 0

	for _, m := range matches {
		if m[0] < lastEnd {
			continue
		}

		candidate := strings.TrimSpace(text[lastEnd:m[0]]) + text[m[0]:m[0]+1]
		if endsWithAbbreviation(candidate) {
			continue
		}

		sentences = append(sentences, text[lastEnd:m[1]])
		lastEnd = m[1]
	}

	if lastEnd < len(text) {
		sentences = append(sentences, text[lastEnd:])
	}

	if len(sentences) == 0 {
		return []string{text}
	}

	return sentences
}

// SentenceList returns the trimmed, non-empty sentences of text.
func SentenceList(text string) []string {
	raw := SplitSentences(text)

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}

	return out
}

func endsWithAbbreviation(s string) bool {
	for _, a := range abbreviations {
		if strings.HasSuffix(s, a) {
			return true
		}
	}

	return false
}
