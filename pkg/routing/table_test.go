package routing

import (
	"testing"

	"arunlabs/synapse/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Backends: map[string]config.BackendConfig{
			"llama-router":   {URL: "http://llama:8080/", Type: "llm", Health: "/health"},
			"whisper-stt":    {URL: "http://whisper:9000", Type: "stt", Health: "/health"},
			"chatterbox-tts": {URL: "http://chatterbox:8004", Type: "tts", Health: "/api/ui/initial-data"},
		},
		Routes: map[string]string{
			"/v1/chat/completions": "llama-router",
			"/v1/embeddings":       "llama-router",
			"/stt/*":               "whisper-stt",
			"/stt/special/*":       "chatterbox-tts",
		},
	}
}

func TestTableResolution(t *testing.T) {
	table, err := NewTable(testConfig())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		backend string
		found   bool
	}{
		{"exact route", "/v1/chat/completions", "llama-router", true},
		{"prefix route", "/stt/transcribe", "whisper-stt", true},
		{"longest prefix wins", "/stt/special/thing", "chatterbox-tts", true},
		{"bare prefix matches", "/stt", "whisper-stt", true},
		{"no partial segment match", "/sttx", "", false},
		{"unrouted", "/nowhere", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := table.Resolve(tt.path)
			if ok != tt.found {
				t.Fatalf("Resolve(%q) found = %v, want %v", tt.path, ok, tt.found)
			}
			if ok && b.Name != tt.backend {
				t.Fatalf("Resolve(%q) = %s, want %s", tt.path, b.Name, tt.backend)
			}
		})
	}
}

func TestTableResolvePathRewrite(t *testing.T) {
	table, err := NewTable(testConfig())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	tests := []struct {
		path        string
		backendPath string
	}{
		{"/v1/embeddings", "/v1/embeddings"},
		{"/stt/transcribe", "/transcribe"},
		{"/stt", "/"},
		{"/stt/special/x", "/x"},
	}
	for _, tt := range tests {
		_, got, ok := table.ResolvePath(tt.path)
		if !ok {
			t.Fatalf("ResolvePath(%q) not found", tt.path)
		}
		if got != tt.backendPath {
			t.Fatalf("ResolvePath(%q) = %q, want %q", tt.path, got, tt.backendPath)
		}
	}
}

func TestTableBackendMetadata(t *testing.T) {
	table, err := NewTable(testConfig())
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	b, ok := table.Backend("llama-router")
	if !ok {
		t.Fatal("llama-router missing from registry")
	}
	if b.BaseURL != "http://llama:8080" {
		t.Fatalf("BaseURL = %q, want trailing slash trimmed", b.BaseURL)
	}
	if b.Timeout != ClassLLM {
		t.Fatalf("Timeout = %s, want llm class", b.Timeout)
	}
	if b.HealthURL() != "http://llama:8080/health" {
		t.Fatalf("HealthURL = %q", b.HealthURL())
	}
}

func TestTableRejectsUnknownTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Routes["/bad"] = "missing-backend"
	if _, err := NewTable(cfg); err == nil {
		t.Fatal("expected error for route targeting unknown backend")
	}
}
