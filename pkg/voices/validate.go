package voices

import (
	"bytes"
	"fmt"
	"strings"
)

// allowedWAVContentTypes are the content types accepted for reference
// uploads. Browsers are inconsistent here, so the empty string and the
// generic octet-stream are accepted as long as the payload carries a WAV
// signature.
var allowedWAVContentTypes = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
	"audio/wav":                true,
	"audio/wave":               true,
	"audio/x-wav":              true,
	"audio/vnd.wave":           true,
}

// wavHeaderSize is the minimum RIFF/WAVE header length.
const wavHeaderSize = 44

// ReferenceFile is one uploaded reference audio file.
type ReferenceFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// validateReferences enforces the reference upload contract: 1..maxFiles
// files, each a WAV (by signature) within maxBytes.
func validateReferences(files []ReferenceFile, maxFiles int, maxBytes int64) error {
	if len(files) == 0 || len(files) > maxFiles {
		return &ValidationError{
			Field:   "files",
			Message: fmt.Sprintf("provide 1-%d WAV reference files", maxFiles),
		}
	}
	for _, f := range files {
		if err := validateWAV(f, maxBytes); err != nil {
			return err
		}
	}
	return nil
}

func validateWAV(f ReferenceFile, maxBytes int64) error {
	contentType := strings.ToLower(strings.TrimSpace(f.ContentType))
	if semi := strings.Index(contentType, ";"); semi >= 0 {
		contentType = strings.TrimSpace(contentType[:semi])
	}
	isWAVName := strings.HasSuffix(strings.ToLower(f.Filename), ".wav")
	if !isWAVName && !allowedWAVContentTypes[contentType] {
		return &ValidationError{
			Field:   f.Filename,
			Message: fmt.Sprintf("only WAV files are supported (content type %q)", f.ContentType),
		}
	}
	if int64(len(f.Data)) > maxBytes {
		return &ValidationError{
			Field:   f.Filename,
			Message: fmt.Sprintf("file too large (max %d bytes)", maxBytes),
		}
	}
	if len(f.Data) < wavHeaderSize ||
		!bytes.HasPrefix(f.Data, []byte("RIFF")) ||
		!bytes.Equal(f.Data[8:12], []byte("WAVE")) {
		return &ValidationError{
			Field:   f.Filename,
			Message: "missing WAV signature",
		}
	}
	return nil
}
