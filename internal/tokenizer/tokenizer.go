// Package tokenizer maps normalized text to model input ids. The Supertonic
// models consume one id per Unicode code point, looked up in a table that
// ships with the model as unicode_indexer.json.
package tokenizer

// Tokenizer encodes a batch of texts, each with its own language, into padded
// ids and an attention mask.
type Tokenizer interface {
	Encode(texts, langs []string) (Batch, error)
}

const (
	// PadID fills positions past a sequence's length.
	PadID int64 = 0
	// UnknownID marks code points outside the index table.
	UnknownID int64 = -1
)

// Batch is a right-padded id matrix with its attention mask.
type Batch struct {
	// IDs is row-major [Size, MaxLen].
	IDs []int64
	// Mask is row-major [Size, 1, MaxLen] with 1 on real positions.
	Mask []float32
	// Lengths holds each sequence's pre-padding length.
	Lengths []int
	// Texts holds the normalized, language-tagged inputs.
	Texts  []string
	Size   int
	MaxLen int
}

// IDShape returns the shape of IDs.
func (b Batch) IDShape() []int64 {
	return []int64{int64(b.Size), int64(b.MaxLen)}
}

// MaskShape returns the shape of Mask.
func (b Batch) MaskShape() []int64 {
	return []int64{int64(b.Size), 1, int64(b.MaxLen)}
}

// LengthToMask builds a flat [len(lengths), 1, maxLen] mask with 1 for
// positions below each length and 0 elsewhere.
func LengthToMask(lengths []int, maxLen int) []float32 {
	mask := make([]float32, len(lengths)*maxLen)
	for i, n := range lengths {
		row := mask[i*maxLen : (i+1)*maxLen]
		for j := 0; j < n && j < maxLen; j++ {
			row[j] = 1
		}
	}

	return mask
}
