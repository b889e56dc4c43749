// Package models orchestrates model lifecycle on the single-slot LLM
// runtime: load/unload, persisted per-model profiles, runtime
// reconfiguration, and auto-routing for un-pinned chat requests.
//
// The manager never owns ground truth about model state; the backing
// runtime does. All the manager does is drive transitions and wait for the
// runtime to report them.
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"arunlabs/synapse/pkg/backend"
	"arunlabs/synapse/pkg/routing"
)

// Model status values as reported by the backing runtime.
const (
	StatusUnloaded = "unloaded"
	StatusLoading  = "loading"
	StatusLoaded   = "loaded"
	StatusFailed   = "failed"
)

// ModelState is one model's runtime-reported state.
type ModelState struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Manager orchestrates load/unload and profile application for the backing
// runtime. One mutex serializes all lifecycle operations: the runtime has a
// single model slot, so per-model locking would only hide races between
// conflicting reconfigure patches.
type Manager struct {
	client     *backend.Client
	runtime    *routing.Backend
	store      *ProfileStore
	controller RuntimeController // nil disables runtime reconfiguration
	classifier *Classifier
	logger     *slog.Logger

	singleSlot         bool
	pollInterval       time.Duration
	reconfigureTimeout time.Duration
	loadTimeout        time.Duration

	mu sync.Mutex
}

// ManagerConfig wires a Manager's collaborators.
type ManagerConfig struct {
	Client             *backend.Client
	Runtime            *routing.Backend
	Store              *ProfileStore
	Controller         RuntimeController
	Classifier         *Classifier
	SingleSlot         bool
	PollInterval       time.Duration
	ReconfigureTimeout time.Duration

	// LoadTimeout bounds how long Load waits for the runtime to report a
	// model loaded. Default: 300s, the same ceiling as LLM calls.
	LoadTimeout time.Duration

	Logger *slog.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ReconfigureTimeout <= 0 {
		cfg.ReconfigureTimeout = 180 * time.Second
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 300 * time.Second
	}
	return &Manager{
		client:             cfg.Client,
		runtime:            cfg.Runtime,
		store:              cfg.Store,
		controller:         cfg.Controller,
		classifier:         cfg.Classifier,
		singleSlot:         cfg.SingleSlot,
		pollInterval:       cfg.PollInterval,
		reconfigureTimeout: cfg.ReconfigureTimeout,
		loadTimeout:        cfg.LoadTimeout,
		logger:             logger.With("component", "models.manager"),
	}
}

// Store exposes the profile store for the profile HTTP handlers.
func (m *Manager) Store() *ProfileStore {
	return m.store
}

// ListModels queries the backing runtime for its model states.
func (m *Manager) ListModels(ctx context.Context) ([]ModelState, error) {
	resp, err := m.client.Do(ctx, backend.Request{
		Backend: m.runtime,
		Method:  http.MethodGet,
		Path:    "/models",
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &backend.UpstreamError{
			Backend:    m.runtime.Name,
			StatusCode: resp.StatusCode,
			Message:    "model list request failed",
		}
	}

	var envelope struct {
		Models []ModelState `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &backend.UpstreamError{
			Backend: m.runtime.Name,
			Message: fmt.Sprintf("unexpected model list envelope: %v", err),
		}
	}
	return envelope.Models, nil
}

// Load loads a model, applying profile fields first. Runtime-affecting
// fields that differ from the deployed configuration trigger a bounded
// runtime reconfigure before the load call. On a single-slot runtime a
// currently loaded model is unloaded first. Load blocks until the runtime
// reports loaded or failed, ctx expires, or the load timeout elapses.
func (m *Manager) Load(ctx context.Context, modelID string, fields map[string]any) error {
	if modelID == "" {
		return &ValidationError{Field: "model", Message: "model id is required"}
	}
	if err := ValidateFields(fields); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	profile, err := m.persistFields(ctx, modelID, fields)
	if err != nil {
		return err
	}

	_, runtimeValues := SplitFields(profile)
	if len(runtimeValues) > 0 {
		if err := m.reconfigureIfNeeded(ctx, runtimeValues); err != nil {
			return err
		}
	}

	states, err := m.ListModels(ctx)
	if err != nil {
		return err
	}
	if !modelKnown(states, modelID) {
		return &NotFoundError{Model: modelID}
	}

	if m.singleSlot {
		for _, st := range states {
			if st.Status == StatusLoaded && st.ID != modelID {
				m.logger.Info("evicting loaded model for single-slot runtime",
					"evicting", st.ID, "loading", modelID)
				if err := m.unloadLocked(ctx, st.ID); err != nil {
					return fmt.Errorf("failed to unload %q before loading %q: %w", st.ID, modelID, err)
				}
			}
		}
	}

	if err := m.postLifecycle(ctx, "/models/load", modelID); err != nil {
		return err
	}
	return m.waitForStatus(ctx, modelID)
}

// Unload asks the backing runtime to unload a model. The persisted profile
// is untouched.
func (m *Manager) Unload(ctx context.Context, modelID string) error {
	if modelID == "" {
		return &ValidationError{Field: "model", Message: "model id is required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unloadLocked(ctx, modelID)
}

func (m *Manager) unloadLocked(ctx context.Context, modelID string) error {
	return m.postLifecycle(ctx, "/models/unload", modelID)
}

// ResolveChatModel resolves the model for a chat request. An explicit,
// non-alias model passes through unchanged. Omitted or "auto" models are
// classified from the prompt and the resolved model is loaded if needed.
func (m *Manager) ResolveChatModel(ctx context.Context, requested, prompt string) (string, error) {
	if requested != "" && requested != AutoModelAlias {
		return requested, nil
	}

	resolved := m.classifier.Classify(prompt)
	m.logger.Debug("auto-routed chat request", "model", resolved)

	states, err := m.ListModels(ctx)
	if err != nil {
		return "", err
	}
	for _, st := range states {
		if st.ID == resolved && st.Status == StatusLoaded {
			return resolved, nil
		}
	}
	if err := m.Load(ctx, resolved, nil); err != nil {
		return "", err
	}
	return resolved, nil
}

// ApplyPersistedDefaults injects persisted generation fields into a chat
// request payload. Request-supplied values always win. A persisted
// system_prompt becomes a leading system message when the request has none.
func (m *Manager) ApplyPersistedDefaults(ctx context.Context, modelID string, payload map[string]any) (map[string]any, error) {
	profile, err := m.store.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	generation, _ := SplitFields(profile)

	for field, value := range generation {
		if field == "system_prompt" {
			injectSystemPrompt(payload, value)
			continue
		}
		if _, present := payload[field]; !present {
			payload[field] = value
		}
	}
	return payload, nil
}

// ApplyProfile pushes a model's persisted runtime fields to the runtime
// host without loading the model, waiting for the rollout like Load does.
// It returns the effective profile.
func (m *Manager) ApplyProfile(ctx context.Context, modelID string) (map[string]any, error) {
	if modelID == "" {
		return nil, &ValidationError{Field: "model", Message: "model id is required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, err := m.store.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	_, runtimeValues := SplitFields(profile)
	if len(runtimeValues) > 0 {
		if err := m.reconfigureIfNeeded(ctx, runtimeValues); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// persistFields patches the profile when the load request carries fields,
// and returns the effective profile either way.
func (m *Manager) persistFields(ctx context.Context, modelID string, fields map[string]any) (map[string]any, error) {
	if len(fields) == 0 {
		return m.store.Get(ctx, modelID)
	}
	return m.store.Patch(ctx, modelID, fields)
}

// reconfigureIfNeeded patches the runtime host when desired runtime values
// differ from the deployed ones, then waits for the rollout and for the
// runtime to answer health checks again. The wait is bounded by the
// configured reconfigure timeout.
func (m *Manager) reconfigureIfNeeded(ctx context.Context, desired map[string]any) error {
	if m.controller == nil {
		return &ValidationError{
			Field:   "runtime_ctx_size",
			Message: "runtime reconfiguration is not enabled on this gateway",
		}
	}

	intValues := make(map[string]int, len(desired))
	for field, value := range desired {
		num, ok := asFloat(value)
		if !ok {
			return &ValidationError{Field: field, Message: "expected a number"}
		}
		intValues[field] = int(num)
	}

	current, err := m.controller.CurrentValues(ctx)
	if err != nil {
		return fmt.Errorf("failed to read deployed runtime values: %w", err)
	}
	same := true
	for field, want := range intValues {
		if current[field] != want {
			same = false
			break
		}
	}
	if same {
		return nil
	}

	patched, err := m.controller.Apply(ctx, intValues)
	if err != nil {
		return fmt.Errorf("failed to patch runtime deployment: %w", err)
	}
	if !patched {
		return nil
	}

	m.logger.Info("runtime reconfigure issued, waiting for rollout", "values", intValues)
	return m.waitForRuntime(ctx)
}

// waitForRuntime blocks until the patched runtime host finishes rolling
// out and answers health checks, or the reconfigure timeout elapses.
func (m *Manager) waitForRuntime(ctx context.Context) error {
	deadline := time.Now().Add(m.reconfigureTimeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			return &ReconfigureTimeoutError{Timeout: m.reconfigureTimeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		rolled, err := m.controller.RolloutComplete(ctx)
		if err != nil || !rolled {
			continue
		}
		if m.runtimeHealthy(ctx) {
			return nil
		}
	}
}

func (m *Manager) runtimeHealthy(ctx context.Context) bool {
	resp, err := m.client.Do(ctx, backend.Request{
		Backend: m.runtime,
		Method:  http.MethodGet,
		Path:    m.runtime.HealthPath,
		Timeout: 5 * time.Second,
		NoRetry: true,
	})
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (m *Manager) postLifecycle(ctx context.Context, path, modelID string) error {
	body, err := json.Marshal(map[string]string{"model": modelID})
	if err != nil {
		return err
	}
	resp, err := m.client.DoJSON(ctx, backend.Request{
		Backend: m.runtime,
		Method:  http.MethodPost,
		Path:    path,
		Body:    body,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Model: modelID}
	case resp.StatusCode >= 400:
		return &backend.UpstreamError{
			Backend:    m.runtime.Name,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s rejected for model %q", path, modelID),
		}
	}
	return nil
}

// waitForStatus polls the runtime until the model reports loaded or
// failed. The wait is bounded by the load timeout: the caller holds the
// lifecycle lock, so a model stuck in loading must not block forever.
func (m *Manager) waitForStatus(ctx context.Context, modelID string) error {
	deadline := time.Now().Add(m.loadTimeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		states, err := m.ListModels(ctx)
		if err != nil {
			return err
		}
		for _, st := range states {
			if st.ID != modelID {
				continue
			}
			switch st.Status {
			case StatusLoaded:
				return nil
			case StatusFailed:
				return &backend.UpstreamError{
					Backend: m.runtime.Name,
					Message: fmt.Sprintf("model %q failed to load", modelID),
				}
			}
		}

		if time.Now().After(deadline) {
			return &backend.DeadlineError{Backend: m.runtime.Name, Timeout: m.loadTimeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func modelKnown(states []ModelState, modelID string) bool {
	for _, st := range states {
		if st.ID == modelID {
			return true
		}
	}
	return false
}

// injectSystemPrompt prepends a system message when the request's messages
// array carries none.
func injectSystemPrompt(payload map[string]any, prompt any) {
	messages, ok := payload["messages"].([]any)
	if !ok {
		return
	}
	for _, raw := range messages {
		if msg, ok := raw.(map[string]any); ok && msg["role"] == "system" {
			return
		}
	}
	system := map[string]any{"role": "system", "content": prompt}
	payload["messages"] = append([]any{system}, messages...)
}
