package anyllm

import "testing"

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "some-model"); err == nil {
		t.Error("expected error for empty providerName")
	}
	if _, err := New("ollama", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("abacus", "some-model"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

// TestNew_KnownProviders checks that every documented backend constructs.
func TestNew_KnownProviders(t *testing.T) {
	names := []string{
		"openai", "anthropic", "gemini", "ollama", "deepseek",
		"mistral", "groq", "llamacpp", "llamafile",
	}
	for _, name := range names {
		g, err := New(name, "some-model")
		if err != nil {
			t.Errorf("New(%q) unexpected error: %v", name, err)
			continue
		}
		if g.Name() != name {
			t.Errorf("Name() = %q, want %q", g.Name(), name)
		}
	}
}
