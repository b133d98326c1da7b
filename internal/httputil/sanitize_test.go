package httputil

import "testing"

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://example.com/page", false},
		{"valid with query", "https://example.com/embed?id=42", false},
		{"http rejected", "http://example.com", true},
		{"ftp rejected", "ftp://example.com", true},
		{"no host", "https://", true},
		{"garbage", "://nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"numeric", "75043", false},
		{"slug path", "filme/o-exorcista-75043", false},
		{"empty", "", true},
		{"shell metacharacters", "42; rm -rf /", true},
		{"path traversal", "a/../b", true},
		{"spaces", "bad id", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"The Matrix", "the-matrix"},
		{"São Paulo em Chamas", "sao-paulo-em-chamas"},
		{"Amélie", "amelie"},
		{"Mission: Impossible — Fallout", "mission-impossible-fallout"},
		{"  spaced   out  ", "spaced-out"},
		{"UPPER lower 123", "upper-lower-123"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.expected {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBuildURL(t *testing.T) {
	got := BuildURL("https://example.com/", "embed", "tt 42")
	want := "https://example.com/embed/tt%2042"
	if got != want {
		t.Errorf("BuildURL = %q, want %q", got, want)
	}
}
