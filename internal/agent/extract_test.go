package agent

import (
	"testing"

	"novabot/internal/domain"
)

func TestExtractName(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"my name is Alex", "Alex"},
		{"My name is Alex.", "Alex"},
		{"hey, my name is Sam!", "Sam"},
		{"my name is", ""},
		{"the name is Alex", ""},
	}
	for _, tc := range cases {
		got := extractProfileUpdates(tc.message)
		if tc.want == "" {
			if _, ok := got[domain.FieldName]; ok {
				t.Errorf("%q: unexpected name %q", tc.message, got[domain.FieldName])
			}
			continue
		}
		if got[domain.FieldName] != tc.want {
			t.Errorf("%q: name = %q, want %q", tc.message, got[domain.FieldName], tc.want)
		}
	}
}

func TestExtractLocation(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"i live in Berlin", "Berlin"},
		{"I live in New York. It's loud here.", "New York"},
		{"btw I live in São Paulo", "São Paulo"},
		{"i lived in Berlin", ""},
	}
	for _, tc := range cases {
		got := extractProfileUpdates(tc.message)
		if tc.want == "" {
			if _, ok := got[domain.FieldLocation]; ok {
				t.Errorf("%q: unexpected location %q", tc.message, got[domain.FieldLocation])
			}
			continue
		}
		if got[domain.FieldLocation] != tc.want {
			t.Errorf("%q: location = %q, want %q", tc.message, got[domain.FieldLocation], tc.want)
		}
	}
}

func TestExtractBoth(t *testing.T) {
	got := extractProfileUpdates("my name is Alex and i live in Berlin")
	if got[domain.FieldName] != "Alex" {
		t.Errorf("name = %q", got[domain.FieldName])
	}
	if got[domain.FieldLocation] != "Berlin" {
		t.Errorf("location = %q", got[domain.FieldLocation])
	}
}
