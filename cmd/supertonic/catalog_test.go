package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSentences(t *testing.T) {
	out, _, err := runCLI(t, nil, "sentences", "--text", "Hello there. How are you?")
	if err != nil {
		t.Fatalf("sentences: %v", err)
	}

	want := "0\tHello there.\n1\tHow are you?\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestSentences_JSONFromStdin(t *testing.T) {
	out, _, err := runCLI(t, strings.NewReader("One. Two."), "sentences", "--json")
	if err != nil {
		t.Fatalf("sentences: %v", err)
	}

	var got []string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}

	if len(got) != 2 || got[0] != "One." || got[1] != "Two." {
		t.Errorf("sentences = %q", got)
	}
}

func TestVoicesAndLanguages(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"voices", []string{"voices"}, []string{"M1 - Male Voice 1", "F5 - Female Voice 5"}},
		{"voices json", []string{"voices", "--json"}, []string{`"id": "M3"`}},
		{"languages", []string{"languages"}, []string{"en - English", "ko - Korean", "fr - French"}},
		{"languages json", []string{"languages", "--json"}, []string{`"code": "pt"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := runCLI(t, nil, tt.args...)
			if err != nil {
				t.Fatalf("%v: %v", tt.args, err)
			}

			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}
