package voice

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/example/go-supertonic-tts/internal/asset"
)

// StyleDir is the model-relative directory holding the built-in styles.
const StyleDir = "voice_styles"

// ErrUnknownVoice is returned when a voice argument names no known style.
var ErrUnknownVoice = errors.New("unknown voice")

// Voice describes one built-in voice.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Display renders the voice as "M1 - Male Voice 1".
func (v Voice) Display() string {
	return v.ID + " - " + v.Name
}

var builtin = []Voice{
	{ID: "M1", Name: "Male Voice 1"},
	{ID: "M2", Name: "Male Voice 2"},
	{ID: "M3", Name: "Male Voice 3"},
	{ID: "M4", Name: "Male Voice 4"},
	{ID: "M5", Name: "Male Voice 5"},
	{ID: "F1", Name: "Female Voice 1"},
	{ID: "F2", Name: "Female Voice 2"},
	{ID: "F3", Name: "Female Voice 3"},
	{ID: "F4", Name: "Female Voice 4"},
	{ID: "F5", Name: "Female Voice 5"},
}

// Builtin returns the built-in voices in display order.
func Builtin() []Voice {
	return append([]Voice(nil), builtin...)
}

// IDs returns the built-in voice IDs.
func IDs() []string {
	ids := make([]string, len(builtin))
	for i, v := range builtin {
		ids[i] = v.ID
	}

	return ids
}

// StyleFile returns the model-relative path of a built-in voice style.
func StyleFile(id string) string {
	return StyleDir + "/" + id + ".json"
}

// DirStyles maps every built-in voice to its file under modelDir.
func DirStyles(modelDir string) map[string]asset.Source {
	out := make(map[string]asset.Source, len(builtin))
	for _, v := range builtin {
		out[v.ID] = asset.File(filepath.Join(modelDir, filepath.FromSlash(StyleFile(v.ID))))
	}

	return out
}

// Manager resolves voice arguments to style sources.
type Manager struct {
	styles map[string]asset.Source
	cache  *StyleCache
}

func NewManager(styles map[string]asset.Source) *Manager {
	m := &Manager{
		styles: make(map[string]asset.Source, len(styles)),
		cache:  NewStyleCache(),
	}

	maps.Copy(m.styles, styles)

	return m
}

// ListVoices returns the built-in voices that have a style source.
func (m *Manager) ListVoices() []Voice {
	out := make([]Voice, 0, len(builtin))
	for _, v := range builtin {
		if _, ok := m.styles[v.ID]; ok {
			out = append(out, v)
		}
	}

	return out
}

// Resolve maps a voice ID, or a direct path ending in .json, to its source.
func (m *Manager) Resolve(voice string) (asset.Source, error) {
	if strings.HasSuffix(strings.ToLower(voice), ".json") {
		return asset.File(voice), nil
	}

	src, ok := m.styles[voice]
	if !ok {
		known := make([]string, 0, len(m.styles))
		for id := range m.styles {
			known = append(known, id)
		}

		slices.Sort(known)

		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownVoice, voice, strings.Join(known, ", "))
	}

	return src, nil
}

// Style resolves voice and returns its cached style.
func (m *Manager) Style(voice string) (*Style, error) {
	src, err := m.Resolve(voice)
	if err != nil {
		return nil, err
	}

	return m.cache.Get(src)
}
