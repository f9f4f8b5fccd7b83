package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidLanguage is returned when a language code is not in the supported set.
var ErrInvalidLanguage = errors.New("invalid language")

var emojiPattern = regexp.MustCompile(
	`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F700}-\x{1F77F}` +
		`\x{1F780}-\x{1F7FF}\x{1F800}-\x{1F8FF}\x{1F900}-\x{1F9FF}\x{1FA00}-\x{1FA6F}` +
		`\x{1FA70}-\x{1FAFF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}\x{1F1E6}-\x{1F1FF}]+`,
)

// symbolReplacer maps typographic variants to ASCII and drops decorative
// symbols. Every key is a single code point and no output is itself a key,
// so one pass equals applying the pairs in order.
var symbolReplacer = strings.NewReplacer(
	"–", "-",
	"‑", "-",
	"—", "-",
	"_", " ",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
	"´", "'",
	"`", "'",
	"[", " ",
	"]", " ",
	"|", " ",
	"/", " ",
	"#", " ",
	"→", " ",
	"←", " ",
	"♥", "",
	"☆", "",
	"♡", "",
	"©", "",
	`\`, "",
)

var expressions = []struct{ from, to string }{
	{"@", " at "},
	{"e.g.,", "for example, "},
	{"i.e.,", "that is, "},
}

// spaceClass matches Unicode white space, not just ASCII.
const spaceClass = `\s\v\x{85}\p{Z}`

var (
	spaceBeforePunct = regexp.MustCompile(`[` + spaceClass + `]+([,.!?;:'])`)
	whitespaceRun    = regexp.MustCompile(`[` + spaceClass + `]+`)
	terminalPunct    = regexp.MustCompile(`[.!?;:,'"\x{201C}\x{201D}\x{2018}\x{2019})\]}…。」』】〉》›»]$`)
)

// Clean canonicalizes raw text without validating or tagging a language.
// Clean is idempotent.
func Clean(s string) string {
	s = norm.NFKD.String(s)
	s = emojiPattern.ReplaceAllString(s, "")
	s = symbolReplacer.Replace(s)

	// Removing a space before punctuation can form a new "e.g.," so the
	// rewrites repeat until the text is stable.
	for {
		prev := s

		for _, e := range expressions {
			s = strings.ReplaceAll(s, e.from, e.to)
		}

		s = spaceBeforePunct.ReplaceAllString(s, "$1")
		s = collapseRepeats(s, `""`, `"`)
		s = collapseRepeats(s, "''", "'")

		if s == prev {
			break
		}
	}

	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if s != "" && !terminalPunct.MatchString(s) {
		s += "."
	}

	return s
}

// Normalize cleans s and wraps it in a <lang>...</lang> tag. The language is
// checked after cleaning and before wrapping.
func Normalize(s, lang string) (string, error) {
	cleaned := Clean(s)

	if !IsSupported(lang) {
		return "", fmt.Errorf("%w: %q (available: %s)", ErrInvalidLanguage, lang, strings.Join(LanguageCodes(), ", "))
	}

	return "<" + lang + ">" + cleaned + "</" + lang + ">", nil
}

func collapseRepeats(s, pair, single string) string {
	for strings.Contains(s, pair) {
		s = strings.ReplaceAll(s, pair, single)
	}

	return s
}
