// Package voices manages the cloned-voice library: durable storage of voice
// metadata and WAV reference files under a directory tree, validation of
// uploads, and an upload cache tracking which reference the speech backend
// currently holds for each voice.
//
// Layout on disk:
//
//	<dir>/<voice_id>/metadata.json
//	<dir>/<voice_id>/references/ref_001.wav
//	<dir>/<voice_id>/references/ref_002.wav
//
// The backend stores uploaded references by filename only, so the library
// prefixes every upload with the voice id to keep two voices with
// identically named references from overwriting each other.
package voices
