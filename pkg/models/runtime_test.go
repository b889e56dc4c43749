package models

import (
	"reflect"
	"testing"
)

func TestParseRuntimeArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]int
	}{
		{"flag with value", []string{"--model", "/models/llama.gguf", "--ctx-size", "8192"}, map[string]int{"runtime_ctx_size": 8192}},
		{"flag absent", []string{"--model", "/models/llama.gguf"}, map[string]int{}},
		{"flag without value", []string{"--ctx-size"}, map[string]int{}},
		{"non-numeric value", []string{"--ctx-size", "lots"}, map[string]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRuntimeArgs(tt.args); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parseRuntimeArgs(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}

func TestApplyRuntimeArgs(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		values map[string]int
		want   []string
	}{
		{
			name:   "replace existing value",
			args:   []string{"--model", "m.gguf", "--ctx-size", "4096"},
			values: map[string]int{"runtime_ctx_size": 8192},
			want:   []string{"--model", "m.gguf", "--ctx-size", "8192"},
		},
		{
			name:   "append missing flag",
			args:   []string{"--model", "m.gguf"},
			values: map[string]int{"runtime_ctx_size": 8192},
			want:   []string{"--model", "m.gguf", "--ctx-size", "8192"},
		},
		{
			name:   "no values leaves args alone",
			args:   []string{"--model", "m.gguf"},
			values: map[string]int{},
			want:   []string{"--model", "m.gguf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyRuntimeArgs(tt.args, tt.values)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("applyRuntimeArgs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyRuntimeArgsDoesNotMutateInput(t *testing.T) {
	args := []string{"--ctx-size", "4096"}
	applyRuntimeArgs(args, map[string]int{"runtime_ctx_size": 8192})
	if args[1] != "4096" {
		t.Fatal("applyRuntimeArgs mutated its input slice")
	}
}

func TestExtractContainerArgs(t *testing.T) {
	deployment := map[string]any{
		"spec": map[string]any{
			"template": map[string]any{
				"spec": map[string]any{
					"containers": []any{
						map[string]any{"name": "sidecar", "args": []any{"--quiet"}},
						map[string]any{"name": "runtime", "args": []any{"--ctx-size", "8192"}},
					},
				},
			},
		},
	}

	args, err := extractContainerArgs(deployment, "runtime")
	if err != nil {
		t.Fatalf("extractContainerArgs: %v", err)
	}
	if !reflect.DeepEqual(args, []string{"--ctx-size", "8192"}) {
		t.Fatalf("args = %v", args)
	}

	if _, err := extractContainerArgs(deployment, "missing"); err == nil {
		t.Fatal("expected error for unknown container")
	}
	if _, err := extractContainerArgs(map[string]any{}, "runtime"); err == nil {
		t.Fatal("expected error for deployment without containers")
	}
}
