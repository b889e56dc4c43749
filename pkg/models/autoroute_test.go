package models

import "testing"

func TestClassifierDefaults(t *testing.T) {
	c := NewClassifier("qwen-coder", "llama-general", nil)

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"coding keyword", "please debug this function for me", "qwen-coder"},
		{"case insensitive", "My PYTHON script crashes", "qwen-coder"},
		{"stack trace phrase", "here is the stack trace from prod", "qwen-coder"},
		{"general chat", "what should I cook for dinner tonight", "llama-general"},
		{"empty prompt", "", "llama-general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.prompt); got != tt.want {
				t.Fatalf("Classify(%q) = %s, want %s", tt.prompt, got, tt.want)
			}
		})
	}
}

func TestClassifierCustomKeywords(t *testing.T) {
	c := NewClassifier("coder", "general", []string{"Kubernetes"})

	if got := c.Classify("my kubernetes pod is pending"); got != "coder" {
		t.Fatalf("custom keyword match = %s, want coder", got)
	}
	// Default keywords are replaced, not extended.
	if got := c.Classify("debug this python code"); got != "general" {
		t.Fatalf("default keyword leaked through: got %s", got)
	}
}
