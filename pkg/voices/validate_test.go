package voices

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateWAV(t *testing.T) {
	valid := wavBytes("audio")

	tests := []struct {
		name string
		file ReferenceFile
		ok   bool
	}{
		{"wav extension", ReferenceFile{Filename: "a.wav", Data: valid}, true},
		{"uppercase extension", ReferenceFile{Filename: "A.WAV", Data: valid}, true},
		{"wav content type, odd name", ReferenceFile{Filename: "clip", ContentType: "audio/x-wav", Data: valid}, true},
		{"charset suffix stripped", ReferenceFile{Filename: "clip", ContentType: "audio/wav; charset=binary", Data: valid}, true},
		{"octet-stream with signature", ReferenceFile{Filename: "clip", ContentType: "application/octet-stream", Data: valid}, true},
		{"wrong content type", ReferenceFile{Filename: "clip.mp3", ContentType: "audio/mpeg", Data: valid}, false},
		{"missing signature", ReferenceFile{Filename: "a.wav", Data: []byte(strings.Repeat("x", 100))}, false},
		{"truncated header", ReferenceFile{Filename: "a.wav", Data: []byte("RIFF1234WAVE")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateWAV(tt.file, 1<<20)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("error = %v, want *ValidationError", err)
				}
			}
		})
	}
}

func TestValidateWAVSizeLimit(t *testing.T) {
	big := wavBytes(strings.Repeat("x", 100))
	err := validateWAV(ReferenceFile{Filename: "a.wav", Data: big}, 50)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError for oversized file", err)
	}
}

func TestValidateReferencesCount(t *testing.T) {
	one := []ReferenceFile{wavRef("a.wav", "x")}
	if err := validateReferences(one, 2, 1<<20); err != nil {
		t.Fatalf("single file rejected: %v", err)
	}
	if err := validateReferences(nil, 2, 1<<20); err == nil {
		t.Fatal("empty file list accepted")
	}
	three := []ReferenceFile{wavRef("a.wav", "x"), wavRef("b.wav", "x"), wavRef("c.wav", "x")}
	if err := validateReferences(three, 2, 1<<20); err == nil {
		t.Fatal("over-limit file list accepted")
	}
}
