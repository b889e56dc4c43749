package voices

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates upload cache entries when reference files change on
// disk outside the library API, for example when an operator drops a new
// WAV into a voice directory by hand.
type Watcher struct {
	lib     *Library
	fs      *fsnotify.Watcher
	logger  *slog.Logger
	done    chan struct{}
	started bool
}

// NewWatcher creates a watcher over the library root and every existing
// voice's references directory.
func NewWatcher(lib *Library, logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		lib:    lib,
		fs:     fs,
		logger: logger.With("component", "voices.watcher"),
		done:   make(chan struct{}),
	}

	if err := fs.Add(lib.dir); err != nil {
		fs.Close()
		return nil, err
	}
	voices, err := lib.List()
	if err != nil {
		fs.Close()
		return nil, err
	}
	for _, voice := range voices {
		w.watchVoice(voice.VoiceID)
	}
	return w, nil
}

func (w *Watcher) watchVoice(voiceID string) {
	dir := filepath.Join(w.lib.dir, voiceID, referencesDir)
	if err := w.fs.Add(dir); err != nil {
		w.logger.Debug("cannot watch voice references", "voice_id", voiceID, "error", err)
	}
}

// Start runs the watch loop until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	w.started = true
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fs.Events:
				if !ok {
					return
				}
				w.handle(event)
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				w.logger.Warn("voice watcher error", "error", err)
			}
		}
	}()
}

// handle maps a filesystem event to the voice it belongs to and drops that
// voice's upload cache entry.
func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.lib.dir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	voiceID := parts[0]
	if !validVoiceID(voiceID) {
		return
	}

	// A new voice directory appearing at the root gets its references
	// watched; anything deeper is a reference change.
	if len(parts) == 1 {
		if event.Has(fsnotify.Create) {
			w.watchVoice(voiceID)
		}
		return
	}

	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.lib.InvalidateUpload(voiceID)
		w.logger.Debug("reference change detected, upload cache invalidated",
			"voice_id", voiceID, "path", event.Name, "op", event.Op.String())
	}
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	if w.started {
		<-w.done
	}
	return err
}
