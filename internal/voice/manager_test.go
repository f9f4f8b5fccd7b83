package voice

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-supertonic-tts/internal/asset"
)

func TestBuiltin(t *testing.T) {
	voices := Builtin()
	if len(voices) != 10 {
		t.Fatalf("len(Builtin()) = %d, want 10", len(voices))
	}

	if got := voices[0].Display(); got != "M1 - Male Voice 1" {
		t.Errorf("first display = %q", got)
	}

	if got := voices[9].Display(); got != "F5 - Female Voice 5" {
		t.Errorf("last display = %q", got)
	}

	if StyleFile("F3") != "voice_styles/F3.json" {
		t.Errorf("StyleFile(F3) = %q", StyleFile("F3"))
	}
}

func TestDirStyles(t *testing.T) {
	styles := DirStyles("/models")
	if len(styles) != 10 {
		t.Fatalf("len = %d, want 10", len(styles))
	}

	path, ok := asset.Path(styles["M2"])
	if !ok || path != filepath.Join("/models", "voice_styles", "M2.json") {
		t.Fatalf("M2 path = %q, %v", path, ok)
	}
}

func TestManagerResolve(t *testing.T) {
	m := NewManager(map[string]asset.Source{
		"M1": asset.Bytes("M1", styleJSON(1, 1, 1, 1, 1)),
	})

	tests := []struct {
		name     string
		voice    string
		wantName string
		wantErr  bool
	}{
		{name: "builtin id", voice: "M1", wantName: "M1"},
		{name: "direct path", voice: "/tmp/custom.json", wantName: "/tmp/custom.json"},
		{name: "upper-case suffix", voice: "/tmp/Custom.JSON", wantName: "/tmp/Custom.JSON"},
		{name: "unknown id", voice: "Z9", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src, err := m.Resolve(tc.voice)
			if tc.wantErr {
				if !errors.Is(err, ErrUnknownVoice) {
					t.Fatalf("error = %v, want ErrUnknownVoice", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}

			if src.Name() != tc.wantName {
				t.Fatalf("Name() = %q, want %q", src.Name(), tc.wantName)
			}
		})
	}
}

func TestManagerListVoices(t *testing.T) {
	m := NewManager(map[string]asset.Source{
		"F1": asset.Bytes("F1", nil),
		"M1": asset.Bytes("M1", nil),
	})

	got := m.ListVoices()
	if len(got) != 2 || got[0].ID != "M1" || got[1].ID != "F1" {
		t.Fatalf("ListVoices = %+v, want [M1 F1] in display order", got)
	}
}

func TestManagerStyle(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "mine.json")

	if err := os.WriteFile(custom, styleJSON(0.1, 1, 2, 1, 1), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := NewManager(DirStyles(dir))

	s, err := m.Style(custom)
	if err != nil {
		t.Fatalf("Style(custom): %v", err)
	}

	if s.TTL().Dim(2) != 2 {
		t.Fatalf("TTL shape = %v", s.TTL().Shape())
	}

	if _, err := m.Style("M1"); !errors.Is(err, ErrStyleLoad) {
		t.Fatalf("Style(M1) error = %v, want ErrStyleLoad for missing file", err)
	}
}
