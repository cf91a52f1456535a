package llm

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced json",
			in:   "Here you go:\n```json\n{\"a\": 1}\n```\nthanks",
			want: `{"a": 1}`,
		},
		{
			name: "fenced without language",
			in:   "```\n{\"a\": 2}\n```",
			want: `{"a": 2}`,
		},
		{
			name: "fence wins over surrounding braces",
			in:   "{ignored} ```json {\"a\": 3} ``` {also}",
			want: `{"a": 3}`,
		},
		{
			name: "bare object",
			in:   "Result: {\"a\": {\"b\": 4}} done",
			want: `{"a": {"b": 4}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if err != nil {
				t.Fatalf("ExtractJSON() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONMissing(t *testing.T) {
	for _, in := range []string{"", "no braces", "} backwards {"} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrNoJSON) {
			t.Fatalf("ExtractJSON(%q) error = %v, want ErrNoJSON", in, err)
		}
	}
}

func TestDecodeJSONInvalid(t *testing.T) {
	var v map[string]any
	if err := DecodeJSON("{not json}", &v); err == nil {
		t.Fatal("expected decode error")
	}
}
