package server

import (
	"encoding/json"
	"math"
	"net/http"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/routing"
	"arunlabs/synapse/pkg/voices"
)

// defaultPredefinedVoice is the speech backend's stock voice used when a
// request names no cloned voice.
const defaultPredefinedVoice = "Alice.wav"

type synthesizeRequest struct {
	Text           string  `json:"text"`
	VoiceID        string  `json:"voice_id"`
	Language       string  `json:"language"`
	Speed          float64 `json:"speed"`
	SplitSentences *bool   `json:"split_sentences"`
}

func (req *synthesizeRequest) validate() error {
	if req.Text == "" {
		return &voices.ValidationError{Field: "text", Message: "text is required"}
	}
	if len(req.Text) > 5000 {
		return &voices.ValidationError{Field: "text", Message: "text exceeds 5000 characters"}
	}
	if req.Speed == 0 {
		req.Speed = 1.0
	}
	if req.Speed < 0.5 || req.Speed > 2.0 {
		return &voices.ValidationError{Field: "speed", Message: "speed must be between 0.5 and 2.0"}
	}
	return nil
}

func (req *synthesizeRequest) splitText() bool {
	return req.SplitSentences == nil || *req.SplitSentences
}

// ttsPayload builds the speech backend's synthesis body.
func (req *synthesizeRequest) ttsPayload() map[string]any {
	payload := map[string]any{
		"text":       req.Text,
		"split_text": req.splitText(),
	}
	if req.Language != "" {
		payload["language"] = req.Language
	}
	if req.Speed != 1.0 {
		payload["speed_factor"] = req.Speed
	}
	return payload
}

// handleSynthesize synthesizes speech. A voice_id selects clone mode: the
// voice's primary reference is resolved on the speech backend (cached
// upload or fresh upload) and named in the synthesis call.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON body"})
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}
	s.synthesizeClone(w, r, &req, "synapse_tts.wav")
}

// handleSynthesizeStream streams synthesized audio. Cloned voices fall back
// to the non-chunked synthesis path because the backend's OpenAI-compatible
// streaming endpoint does not support clone mode.
func (s *Server) handleSynthesizeStream(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON body"})
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}

	if req.VoiceID != "" {
		s.synthesizeClone(w, r, &req, "synapse_tts.wav")
		return
	}

	tts, ok := s.ttsBackend()
	if !ok {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "no TTS backend configured"})
		return
	}
	body, _ := json.Marshal(map[string]any{
		"model": "chatterbox",
		"input": req.Text,
		"voice": defaultPredefinedVoice,
		"speed": req.Speed,
	})
	resp, err := s.client.DoJSON(r.Context(), backend.Request{
		Backend: tts,
		Method:  http.MethodPost,
		Path:    "/v1/audio/speech",
		Body:    body,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer resp.Body.Close()
	s.relay(w, resp)
}

type voiceWeight struct {
	VoiceID string  `json:"voice_id"`
	Weight  float64 `json:"weight"`
}

type interpolateRequest struct {
	Text     string        `json:"text"`
	Voices   []voiceWeight `json:"voices"`
	Language string        `json:"language"`
	Speed    float64       `json:"speed"`
}

// handleInterpolate blends voices for synthesis. The speech backend has no
// native interpolation, so the highest-weighted voice drives the clone.
func (s *Server) handleInterpolate(w http.ResponseWriter, r *http.Request) {
	var req interpolateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON body"})
		return
	}
	if req.Text == "" {
		s.writeError(w, &voices.ValidationError{Field: "text", Message: "text is required"})
		return
	}
	if len(req.Voices) < 2 || len(req.Voices) > 5 {
		s.writeError(w, &voices.ValidationError{Field: "voices", Message: "provide 2-5 weighted voices"})
		return
	}
	total := 0.0
	primary := req.Voices[0]
	for _, vw := range req.Voices {
		total += vw.Weight
		if vw.Weight > primary.Weight {
			primary = vw
		}
	}
	if math.Abs(total-1.0) > 0.01 {
		s.writeError(w, &voices.ValidationError{Field: "voices", Message: "voice weights must sum to 1.0"})
		return
	}

	synth := synthesizeRequest{
		Text:     req.Text,
		VoiceID:  primary.VoiceID,
		Language: req.Language,
		Speed:    req.Speed,
	}
	if err := synth.validate(); err != nil {
		s.writeError(w, err)
		return
	}
	s.synthesizeClone(w, r, &synth, "synapse_interpolate.wav")
}

// synthesizeClone performs the synthesis call, resolving the voice first
// when one is named.
func (s *Server) synthesizeClone(w http.ResponseWriter, r *http.Request, req *synthesizeRequest, filename string) {
	tts, ok := s.ttsBackend()
	if !ok {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "no TTS backend configured"})
		return
	}

	payload := req.ttsPayload()
	if req.VoiceID != "" {
		remote, err := s.voices.ResolveForSynthesis(r.Context(), req.VoiceID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		payload["voice_mode"] = "clone"
		payload["reference_audio_filename"] = remote
	} else {
		payload["voice_mode"] = "predefined"
		payload["predefined_voice_id"] = defaultPredefinedVoice
	}

	body, _ := json.Marshal(payload)
	resp, err := s.client.DoJSON(r.Context(), backend.Request{
		Backend: tts,
		Method:  http.MethodPost,
		Path:    "/tts",
		Body:    body,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		w.Header().Set("Content-Disposition", `attachment; filename=`+filename)
	}
	s.relay(w, resp)
}

// supportedLanguages is the speech backend's language matrix (ISO 639-1).
var supportedLanguages = []map[string]string{
	{"code": "en", "name": "English"},
	{"code": "de", "name": "German"},
	{"code": "es", "name": "Spanish"},
	{"code": "fr", "name": "French"},
	{"code": "hi", "name": "Hindi"},
	{"code": "it", "name": "Italian"},
	{"code": "ja", "name": "Japanese"},
	{"code": "ko", "name": "Korean"},
	{"code": "nl", "name": "Dutch"},
	{"code": "pl", "name": "Polish"},
	{"code": "pt", "name": "Portuguese"},
	{"code": "ru", "name": "Russian"},
	{"code": "tr", "name": "Turkish"},
	{"code": "zh", "name": "Chinese"},
	{"code": "ar", "name": "Arabic"},
	{"code": "cs", "name": "Czech"},
	{"code": "da", "name": "Danish"},
	{"code": "fi", "name": "Finnish"},
	{"code": "hu", "name": "Hungarian"},
	{"code": "nb", "name": "Norwegian"},
	{"code": "ro", "name": "Romanian"},
	{"code": "sv", "name": "Swedish"},
	{"code": "uk", "name": "Ukrainian"},
}

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, supportedLanguages)
}

func (s *Server) ttsBackend() (*routing.Backend, bool) {
	return s.table.Backend(s.cfg.Voices.TTSBackend)
}
