package github

import (
	"strings"
	"testing"
)

func TestStripHTMLComments(t *testing.T) {
	in := "a<!-- x -->b<!--y-->c"
	if got := StripHTMLComments(in); got != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
}

func TestStripInvisibleCharacters(t *testing.T) {
	in := "a\u200Bb\u0007c\u00ADd\u202Ae"
	if got := StripInvisibleCharacters(in); got != "abcde" {
		t.Fatalf("got %q", got)
	}
}

func TestRedactGitHubTokens(t *testing.T) {
	token := "ghp_" + strings.Repeat("a", 36)
	got := RedactGitHubTokens("token " + token + " leaked")
	if strings.Contains(got, token) {
		t.Fatalf("token not redacted: %q", got)
	}
	if !strings.Contains(got, "[REDACTED_GITHUB_TOKEN]") {
		t.Fatalf("missing redaction marker: %q", got)
	}
}

func TestSanitizeContent(t *testing.T) {
	in := "  Plan<!-- hidden -->\u200B for github_pat_" + strings.Repeat("x", 20) + "  "
	got := SanitizeContent(in)
	if strings.Contains(got, "hidden") || strings.Contains(got, "\u200B") || strings.Contains(got, "github_pat_") {
		t.Fatalf("SanitizeContent left unsafe content: %q", got)
	}
	if !strings.HasPrefix(got, "Plan") {
		t.Fatalf("SanitizeContent = %q, want trimmed text", got)
	}
	if SanitizeContent("") != "" {
		t.Fatal("empty input should stay empty")
	}
}
