package visit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomTokenIssuer_Generate(t *testing.T) {
	issuer := NewTokenIssuer()

	t.Run("produces 32 hex characters", func(t *testing.T) {
		token := issuer.Generate()
		assert.Len(t, token, 32)
		assert.Regexp(t, "^[0-9a-f]+$", token)
	})

	t.Run("does not repeat across a batch", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 1000; i++ {
			token := issuer.Generate()
			_, dup := seen[token]
			require.False(t, dup, "token %q generated twice", token)
			seen[token] = struct{}{}
		}
	})
}

func TestArtifactEncode(t *testing.T) {
	issuer := NewTokenIssuer()
	v := &Visit{
		SessionToken:   "abc123",
		VisitorName:    "Jordan Reyes",
		VisitorCompany: "Acme",
		Purpose:        "Meeting",
	}
	artifact := issuer.Bind(v, "Sam Host")
	assert.Equal(t, "abc123", artifact.Token)
	assert.Equal(t, "Sam Host", artifact.Host)

	encoded := artifact.Encode()
	assert.NotContains(t, encoded, "=", "bundle must be raw base64url")
	assert.Equal(t, "abc123", ExtractToken(encoded))
}

func TestExtractToken(t *testing.T) {
	bundle := Artifact{Token: "tok-777", Visitor: "A"}.Encode()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"encoded bundle", bundle, "tok-777"},
		{"bare token", "deadbeefdeadbeefdeadbeefdeadbeef", "deadbeefdeadbeefdeadbeefdeadbeef"},
		{"url with query parameter", "https://gate.example.com/verify?token=tok-42", "tok-42"},
		{"url with path segment", "https://gate.example.com/v/tok-42", "tok-42"},
		{"url with both prefers query", "https://gate.example.com/v/other?token=tok-42", "tok-42"},
		{"surrounding whitespace", "  tok-9  ", "tok-9"},
		{"empty input", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractToken(tt.input))
		})
	}
}
