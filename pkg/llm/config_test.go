package llm

import "testing"

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  bool
	}{
		{"openai", "openai", false},
		{"anthropic", "anthropic", false},
		{"ollama", "ollama", false},
		{"case insensitive", "OpenAI", false},
		{"unknown", "gemini", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(Config{Provider: tt.provider, Model: "m"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProvider(%q) err = %v, wantErr %v", tt.provider, err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MAX_TOKENS", "")
	cfg := LoadConfig()
	if cfg.Provider != "openai" {
		t.Fatalf("expected default provider openai, got %q", cfg.Provider)
	}
	if cfg.MaxTokens != 4096 {
		t.Fatalf("expected default max tokens 4096, got %d", cfg.MaxTokens)
	}
}
