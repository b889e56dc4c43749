package voices

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/routing"
)

const (
	metadataFilename = "metadata.json"
	referencesDir    = "references"

	// legacyReferenceFilename is the pre-library single-reference layout.
	// Voices stored that way are migrated on first access.
	legacyReferenceFilename = "reference.wav"
)

// Voice describes one stored voice and its reference files.
type Voice struct {
	VoiceID    string    `json:"voice_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	References []string  `json:"references"`
}

// metadata is the on-disk metadata.json payload.
type metadata struct {
	VoiceID   string    `json:"voice_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Config configures a voice library.
type Config struct {
	// Dir is the library root. Each voice lives under Dir/<voice_id>/.
	Dir string

	// MaxReferenceFiles and MaxReferenceBytes bound reference uploads.
	MaxReferenceFiles int
	MaxReferenceBytes int64

	// Client and TTSBackend are used to upload references to the speech
	// backend when a synthesis request needs a voice resolved.
	Client     *backend.Client
	TTSBackend *routing.Backend

	Logger *slog.Logger
}

// Library manages the on-disk voice store and the upload cache that tracks
// which reference each voice has on the TTS backend.
//
// All mutations of a single voice are serialized by a per-voice lock, so a
// delete cannot race a synthesis upload for the same voice.
type Library struct {
	dir      string
	maxFiles int
	maxBytes int64
	client   *backend.Client
	tts      *routing.Backend
	logger   *slog.Logger
	cache    *uploadCache

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLibrary creates a library rooted at cfg.Dir, creating the directory if
// needed.
func NewLibrary(cfg Config) (*Library, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("voice library directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create voice library directory: %w", err)
	}
	if cfg.MaxReferenceFiles <= 0 {
		cfg.MaxReferenceFiles = 10
	}
	if cfg.MaxReferenceBytes <= 0 {
		cfg.MaxReferenceBytes = 50 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		dir:      cfg.Dir,
		maxFiles: cfg.MaxReferenceFiles,
		maxBytes: cfg.MaxReferenceBytes,
		client:   cfg.Client,
		tts:      cfg.TTSBackend,
		logger:   logger.With("component", "voices.library"),
		cache:    newUploadCache(),
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// voiceLock returns the mutex serializing mutations of one voice.
func (l *Library) voiceLock(voiceID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[voiceID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[voiceID] = lock
	}
	return lock
}

// validVoiceID rejects ids that could escape the library directory. Stored
// ids are UUIDs, but the id also arrives from request paths.
func validVoiceID(voiceID string) bool {
	if voiceID == "" || voiceID == "." || voiceID == ".." {
		return false
	}
	for _, r := range voiceID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

func (l *Library) voiceDir(voiceID string) string {
	return filepath.Join(l.dir, voiceID)
}

// Create stores a new voice with the given display name and reference files
// and returns it. A partially written voice is removed if any step fails.
func (l *Library) Create(name string, files []ReferenceFile) (*Voice, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "voice name is required"}
	}
	if err := validateReferences(files, l.maxFiles, l.maxBytes); err != nil {
		return nil, err
	}

	voiceID := uuid.NewString()
	dir := l.voiceDir(voiceID)
	refsDir := filepath.Join(dir, referencesDir)
	if err := os.MkdirAll(refsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create voice directory: %w", err)
	}

	meta := metadata{VoiceID: voiceID, Name: name, CreatedAt: time.Now().UTC()}
	if err := l.writeVoice(dir, meta, files, 0); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			l.logger.Warn("failed to clean up partial voice", "voice_id", voiceID, "error", rmErr)
		}
		return nil, err
	}

	l.logger.Info("voice created", "voice_id", voiceID, "name", name, "references", len(files))
	return l.load(voiceID)
}

// AddReferences appends reference files to an existing voice. The upload
// cache entry is dropped before any file is written, so a concurrent
// synthesis cannot observe the voice half updated.
func (l *Library) AddReferences(voiceID string, files []ReferenceFile) (*Voice, error) {
	if !validVoiceID(voiceID) {
		return nil, &NotFoundError{VoiceID: voiceID}
	}
	lock := l.voiceLock(voiceID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := l.load(voiceID)
	if err != nil {
		return nil, err
	}
	if len(existing.References)+len(files) > l.maxFiles {
		return nil, &ValidationError{
			Field:   "files",
			Message: fmt.Sprintf("voice already has %d references (max %d)", len(existing.References), l.maxFiles),
		}
	}
	if err := validateReferences(files, l.maxFiles, l.maxBytes); err != nil {
		return nil, err
	}

	l.cache.invalidate(voiceID)

	dir := l.voiceDir(voiceID)
	meta := metadata{VoiceID: existing.VoiceID, Name: existing.Name, CreatedAt: existing.CreatedAt}
	if err := l.writeVoice(dir, meta, files, len(existing.References)); err != nil {
		return nil, err
	}
	return l.load(voiceID)
}

// writeVoice persists metadata and reference files numbered from startIndex.
func (l *Library) writeVoice(dir string, meta metadata, files []ReferenceFile, startIndex int) error {
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode voice metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFilename), encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write voice metadata: %w", err)
	}
	for i, f := range files {
		name := fmt.Sprintf("ref_%03d.wav", startIndex+i+1)
		path := filepath.Join(dir, referencesDir, name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write reference file %s: %w", name, err)
		}
	}
	return nil
}

// Delete removes a voice and all its references. The cached upload entry is
// dropped before the files go away.
func (l *Library) Delete(voiceID string) error {
	if !validVoiceID(voiceID) {
		return &NotFoundError{VoiceID: voiceID}
	}
	lock := l.voiceLock(voiceID)
	lock.Lock()
	defer lock.Unlock()

	dir := l.voiceDir(voiceID)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return &NotFoundError{VoiceID: voiceID}
	}

	l.cache.invalidate(voiceID)

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete voice %s: %w", voiceID, err)
	}
	l.logger.Info("voice deleted", "voice_id", voiceID)
	return nil
}

// Get returns one voice by id.
func (l *Library) Get(voiceID string) (*Voice, error) {
	if !validVoiceID(voiceID) {
		return nil, &NotFoundError{VoiceID: voiceID}
	}
	return l.load(voiceID)
}

// List returns all stored voices sorted by creation time, newest first.
func (l *Library) List() ([]*Voice, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice library: %w", err)
	}
	voices := make([]*Voice, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		voice, err := l.load(entry.Name())
		if err != nil {
			l.logger.Warn("skipping unreadable voice directory", "voice_id", entry.Name(), "error", err)
			continue
		}
		voices = append(voices, voice)
	}
	sort.Slice(voices, func(i, j int) bool {
		return voices[i].CreatedAt.After(voices[j].CreatedAt)
	})
	return voices, nil
}

// load reads one voice from disk, migrating the legacy single-file layout
// if present.
func (l *Library) load(voiceID string) (*Voice, error) {
	dir := l.voiceDir(voiceID)
	raw, err := os.ReadFile(filepath.Join(dir, metadataFilename))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{VoiceID: voiceID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read voice metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("voice %s has corrupt metadata: %w", voiceID, err)
	}

	if err := l.migrateLegacy(dir); err != nil {
		return nil, err
	}

	refs, err := l.referenceNames(dir)
	if err != nil {
		return nil, err
	}
	return &Voice{
		VoiceID:    voiceID,
		Name:       meta.Name,
		CreatedAt:  meta.CreatedAt,
		References: refs,
	}, nil
}

// migrateLegacy moves a bare reference.wav into the references directory.
func (l *Library) migrateLegacy(dir string) error {
	legacy := filepath.Join(dir, legacyReferenceFilename)
	if _, err := os.Stat(legacy); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	refsDir := filepath.Join(dir, referencesDir)
	if err := os.MkdirAll(refsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create references directory: %w", err)
	}
	target := filepath.Join(refsDir, "ref_001.wav")
	if err := os.Rename(legacy, target); err != nil {
		return fmt.Errorf("failed to migrate legacy reference: %w", err)
	}
	l.logger.Info("migrated legacy voice layout", "dir", dir)
	return nil
}

func (l *Library) referenceNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dir, referencesDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read references: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReferencePaths returns absolute paths of a voice's reference files in
// order, for callers that send the audio itself rather than a filename.
func (l *Library) ReferencePaths(voiceID string) ([]string, error) {
	voice, err := l.Get(voiceID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(voice.References))
	for i, name := range voice.References {
		paths[i] = filepath.Join(l.voiceDir(voiceID), referencesDir, name)
	}
	return paths, nil
}

// InvalidateUpload drops the cached backend filename for a voice. The
// filesystem watcher calls this when reference files change outside the
// library API.
func (l *Library) InvalidateUpload(voiceID string) {
	l.cache.invalidate(voiceID)
}

// ResolveForSynthesis returns the filename the TTS backend knows the voice
// by, uploading the primary reference if no valid cache entry exists.
//
// The uploaded filename is prefixed with the voice id so two voices with a
// reference named the same cannot collide on the backend.
func (l *Library) ResolveForSynthesis(ctx context.Context, voiceID string) (string, error) {
	if !validVoiceID(voiceID) {
		return "", &NotFoundError{VoiceID: voiceID}
	}
	lock := l.voiceLock(voiceID)
	lock.Lock()
	defer lock.Unlock()

	if name, ok := l.cache.get(voiceID); ok {
		return name, nil
	}

	voice, err := l.load(voiceID)
	if err != nil {
		return "", err
	}
	if len(voice.References) == 0 {
		return "", &ValidationError{Field: "voice_id", Message: "voice has no reference files"}
	}

	primary := voice.References[0]
	data, err := os.ReadFile(filepath.Join(l.voiceDir(voiceID), referencesDir, primary))
	if err != nil {
		return "", fmt.Errorf("failed to read reference file: %w", err)
	}

	externalName := voiceID + "_" + primary
	uploaded, err := l.upload(ctx, externalName, data)
	if err != nil {
		return "", err
	}

	l.cache.put(voiceID, uploaded)
	l.logger.Info("voice reference uploaded", "voice_id", voiceID, "external_name", uploaded)
	return uploaded, nil
}

// upload sends one reference file to the TTS backend and returns the
// filename the backend reports back.
func (l *Library) upload(ctx context.Context, filename string, data []byte) (string, error) {
	if l.client == nil || l.tts == nil {
		return "", fmt.Errorf("voice library has no TTS backend configured")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	header := make(http.Header)
	header.Set("Content-Type", writer.FormDataContentType())
	resp, err := l.client.Do(ctx, backend.Request{
		Backend: l.tts,
		Method:  http.MethodPost,
		Path:    "/upload_reference",
		Body:    buf.Bytes(),
		Header:  header,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &backend.UpstreamError{
			Backend:    l.tts.Name,
			StatusCode: resp.StatusCode,
			Message:    string(msg),
		}
	}

	var envelope struct {
		UploadedFiles []string `json:"uploaded_files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || len(envelope.UploadedFiles) == 0 {
		return "", &backend.UpstreamError{
			Backend:    l.tts.Name,
			StatusCode: http.StatusBadGateway,
			Message:    "reference upload returned no uploaded_files",
		}
	}
	return envelope.UploadedFiles[0], nil
}

// CachedUploads reports the number of live upload cache entries.
func (l *Library) CachedUploads() int {
	return l.cache.len()
}
