package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-supertonic-tts/internal/asset"
	"github.com/example/go-supertonic-tts/internal/text"
)

// ErrIndexLoad is returned when the code point index table cannot be loaded.
var ErrIndexLoad = errors.New("index load failed")

// UnicodeIndexer maps code points to ids through a fixed lookup table.
type UnicodeIndexer struct {
	table []int64
}

// NewUnicodeIndexer wraps an already decoded table.
func NewUnicodeIndexer(table []int64) *UnicodeIndexer {
	return &UnicodeIndexer{table: append([]int64(nil), table...)}
}

// LoadUnicodeIndexer reads a JSON int array from src.
func LoadUnicodeIndexer(src asset.Source) (*UnicodeIndexer, error) {
	data, err := asset.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}

	idx, err := ParseUnicodeIndexer(data)
	if err != nil {
		return nil, err
	}

	slog.Debug("loaded unicode indexer", "source", src.Name(), "entries", idx.Len())

	return idx, nil
}

// ParseUnicodeIndexer decodes a JSON int array indexed by code point.
func ParseUnicodeIndexer(data []byte) (*UnicodeIndexer, error) {
	var table []int64
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrIndexLoad, err)
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("%w: table is empty", ErrIndexLoad)
	}

	return &UnicodeIndexer{table: table}, nil
}

// Len returns the number of table entries.
func (u *UnicodeIndexer) Len() int {
	return len(u.table)
}

// IDs maps every code point of s to its id. Code points past the table map
// to UnknownID.
func (u *UnicodeIndexer) IDs(s string) []int64 {
	ids := make([]int64, 0, len(s))
	for _, r := range s {
		ids = append(ids, u.lookup(r))
	}

	return ids
}

func (u *UnicodeIndexer) lookup(r rune) int64 {
	if r < 0 || int(r) >= len(u.table) {
		return UnknownID
	}

	return u.table[r]
}

// Encode normalizes each text for its language and builds a padded batch.
// Any invalid language fails the whole batch.
func (u *UnicodeIndexer) Encode(texts, langs []string) (Batch, error) {
	if len(texts) == 0 {
		return Batch{}, errors.New("encode: empty batch")
	}

	if len(texts) != len(langs) {
		return Batch{}, fmt.Errorf("encode: %d texts but %d languages", len(texts), len(langs))
	}

	b := Batch{
		Texts:   make([]string, len(texts)),
		Lengths: make([]int, len(texts)),
		Size:    len(texts),
	}

	rows := make([][]int64, len(texts))
	for i, t := range texts {
		normalized, err := text.Normalize(t, langs[i])
		if err != nil {
			return Batch{}, fmt.Errorf("encode text %d: %w", i, err)
		}

		rows[i] = u.IDs(normalized)
		b.Texts[i] = normalized
		b.Lengths[i] = len(rows[i])
		b.MaxLen = max(b.MaxLen, len(rows[i]))
	}

	b.IDs = make([]int64, b.Size*b.MaxLen)
	for i, row := range rows {
		copy(b.IDs[i*b.MaxLen:], row)
	}

	b.Mask = LengthToMask(b.Lengths, b.MaxLen)

	return b, nil
}
