package text

// Language is a supported synthesis language.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Display returns the "en - English" form shown to users.
func (l Language) Display() string {
	return l.Code + " - " + l.Name
}

const (
	// DefaultMaxChunkLength bounds chunk size for space-delimited languages.
	DefaultMaxChunkLength = 300
	// KoreanMaxChunkLength bounds chunk size for Korean.
	KoreanMaxChunkLength = 120
)

var languages = []Language{
	{Code: "en", Name: "English"},
	{Code: "ko", Name: "Korean"},
	{Code: "es", Name: "Spanish"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "fr", Name: "French"},
}

// Languages returns the supported languages in display order.
func Languages() []Language {
	return append([]Language(nil), languages...)
}

// LanguageCodes returns the supported language codes.
func LanguageCodes() []string {
	codes := make([]string, len(languages))
	for i, l := range languages {
		codes[i] = l.Code
	}

	return codes
}

// IsSupported reports whether lang is a supported language code.
func IsSupported(lang string) bool {
	for _, l := range languages {
		if l.Code == lang {
			return true
		}
	}

	return false
}

// MaxChunkLength returns the chunk length bound for lang.
func MaxChunkLength(lang string) int {
	if lang == "ko" {
		return KoreanMaxChunkLength
	}

	return DefaultMaxChunkLength
}
