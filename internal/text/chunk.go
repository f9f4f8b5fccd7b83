package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var paragraphBreak = regexp.MustCompile(`\n[` + spaceClass + `]*\n`)

// Chunk splits text into ordered synthesis units of at most maxLen characters.
// Paragraphs that fit are kept whole. Longer paragraphs are packed sentence
// by sentence, then comma part by comma part, then word by word. A single
// word longer than maxLen is emitted as its own chunk. Empty input yields
// exactly one empty chunk.
func Chunk(text string, maxLen int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{""}
	}

	if maxLen <= 0 {
		return []string{text}
	}

	p := &packer{maxLen: maxLen}

	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if utf8.RuneCountInString(para) <= maxLen {
			p.emit(para)
			continue
		}

		for _, sentence := range SplitSentences(para) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}

			if utf8.RuneCountInString(sentence) <= maxLen {
				p.add(sentence, " ")
				continue
			}

			p.flush()
			p.addParts(sentence)
		}

		p.flush()
	}

	if len(p.chunks) == 0 {
		return []string{""}
	}

	return p.chunks
}

// packer greedily fills a running buffer and flushes it as a chunk when the
// next unit would overflow maxLen.
type packer struct {
	maxLen  int
	chunks  []string
	current strings.Builder
	runes   int // characters in current
}

func (p *packer) add(unit, sep string) {
	n := utf8.RuneCountInString(unit)

	if p.runes > 0 && p.runes+utf8.RuneCountInString(sep)+n > p.maxLen {
		p.flush()
	}

	if p.runes > 0 {
		p.current.WriteString(sep)
		p.runes += utf8.RuneCountInString(sep)
	}

	p.current.WriteString(unit)
	p.runes += n
}

// addParts packs the comma-separated parts of an oversized sentence.
func (p *packer) addParts(sentence string) {
	for _, part := range strings.Split(sentence, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if utf8.RuneCountInString(part) <= p.maxLen {
			p.add(part, ", ")
			continue
		}

		p.flush()

		for _, word := range strings.Fields(part) {
			p.add(word, " ")
		}

		p.flush()
	}
}

func (p *packer) flush() {
	if p.current.Len() == 0 {
		return
	}

	p.emit(p.current.String())
	p.current.Reset()
	p.runes = 0
}

func (p *packer) emit(chunk string) {
	chunk = strings.TrimSpace(chunk)
	if chunk != "" {
		p.chunks = append(p.chunks, chunk)
	}
}
