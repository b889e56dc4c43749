package models

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// RuntimeController reconfigures the backing inference runtime when
// runtime-affecting profile fields change. Implementations patch whatever
// hosts the runtime process and report the values currently deployed.
type RuntimeController interface {
	// CurrentValues returns the runtime profile values currently deployed.
	CurrentValues(ctx context.Context) (map[string]int, error)

	// Apply patches the runtime with the given values. It returns true
	// when a patch was issued, false when the deployed values already
	// match. Apply does not wait for the new instance to become ready.
	Apply(ctx context.Context, values map[string]int) (bool, error)

	// RolloutComplete reports whether the runtime host has finished
	// rolling out the most recent patch.
	RolloutComplete(ctx context.Context) (bool, error)
}

// runtimeArgFlags maps profile field names to runtime argv flags.
var runtimeArgFlags = map[string]string{
	"runtime_ctx_size": "--ctx-size",
}

const (
	serviceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	serviceAccountCAPath    = "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"
)

// KubeRuntimeController applies runtime values by patching the args of the
// runtime container in a Kubernetes deployment, using the in-cluster
// service account.
type KubeRuntimeController struct {
	namespace  string
	deployment string
	container  string

	// apiBase and http are overridable for tests.
	apiBase string
	http    *http.Client
}

// NewKubeRuntimeController creates a controller for the named deployment.
func NewKubeRuntimeController(namespace, deployment, container string) *KubeRuntimeController {
	return &KubeRuntimeController{
		namespace:  namespace,
		deployment: deployment,
		container:  container,
	}
}

func (c *KubeRuntimeController) deploymentPath() string {
	return fmt.Sprintf("/apis/apps/v1/namespaces/%s/deployments/%s", c.namespace, c.deployment)
}

func (c *KubeRuntimeController) baseURL() string {
	if c.apiBase != "" {
		return c.apiBase
	}
	host := os.Getenv("KUBERNETES_SERVICE_HOST")
	if host == "" {
		return "https://kubernetes.default.svc"
	}
	port := os.Getenv("KUBERNETES_SERVICE_PORT_HTTPS")
	if port == "" {
		port = "443"
	}
	return fmt.Sprintf("https://%s:%s", host, port)
}

func (c *KubeRuntimeController) client() (*http.Client, error) {
	if c.http != nil {
		return c.http, nil
	}
	tlsConfig := &tls.Config{}
	if caPEM, err := os.ReadFile(serviceAccountCAPath); err == nil {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(caPEM)
		tlsConfig.RootCAs = pool
	}
	c.http = &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}
	return c.http, nil
}

func (c *KubeRuntimeController) token() (string, error) {
	raw, err := os.ReadFile(serviceAccountTokenPath)
	if err != nil {
		return "", fmt.Errorf("service account token not available; runtime reconfigure is only supported in-cluster: %w", err)
	}
	return string(bytes.TrimSpace(raw)), nil
}

func (c *KubeRuntimeController) request(ctx context.Context, method, path string, body any, contentType string) (map[string]any, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}
	httpClient, err := c.client()
	if err != nil {
		return nil, err
	}

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode patch body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kubernetes API %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("kubernetes API %s %s returned status %d", method, path, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("kubernetes API returned invalid JSON for %s %s: %w", method, path, err)
	}
	return payload, nil
}

// CurrentValues implements RuntimeController.
func (c *KubeRuntimeController) CurrentValues(ctx context.Context) (map[string]int, error) {
	args, err := c.fetchContainerArgs(ctx)
	if err != nil {
		return nil, err
	}
	return parseRuntimeArgs(args), nil
}

// Apply implements RuntimeController.
func (c *KubeRuntimeController) Apply(ctx context.Context, values map[string]int) (bool, error) {
	current, err := c.fetchContainerArgs(ctx)
	if err != nil {
		return false, err
	}
	updated := applyRuntimeArgs(current, values)
	if equalArgs(current, updated) {
		return false, nil
	}

	patch := map[string]any{
		"spec": map[string]any{
			"template": map[string]any{
				"spec": map[string]any{
					"containers": []map[string]any{
						{"name": c.container, "args": updated},
					},
				},
			},
		},
	}
	_, err = c.request(ctx, http.MethodPatch, c.deploymentPath(), patch,
		"application/strategic-merge-patch+json")
	if err != nil {
		return false, err
	}
	return true, nil
}

// RolloutComplete implements RuntimeController. The rollout is complete
// when the deployment controller has observed the latest generation and all
// replicas run the updated pod template.
func (c *KubeRuntimeController) RolloutComplete(ctx context.Context) (bool, error) {
	payload, err := c.request(ctx, http.MethodGet, c.deploymentPath(), nil, "")
	if err != nil {
		return false, err
	}

	metadata, _ := payload["metadata"].(map[string]any)
	status, _ := payload["status"].(map[string]any)
	spec, _ := payload["spec"].(map[string]any)

	generation := intField(metadata, "generation")
	observed := intField(status, "observedGeneration")
	replicas := intField(spec, "replicas")
	if replicas == 0 {
		replicas = 1
	}
	updated := intField(status, "updatedReplicas")
	available := intField(status, "availableReplicas")

	return observed >= generation && updated >= replicas && available >= 1, nil
}

func intField(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func (c *KubeRuntimeController) fetchContainerArgs(ctx context.Context) ([]string, error) {
	payload, err := c.request(ctx, http.MethodGet, c.deploymentPath(), nil, "")
	if err != nil {
		return nil, err
	}
	return extractContainerArgs(payload, c.container)
}

// extractContainerArgs digs the named container's args out of a deployment
// object.
func extractContainerArgs(deployment map[string]any, container string) ([]string, error) {
	spec, _ := deployment["spec"].(map[string]any)
	template, _ := spec["template"].(map[string]any)
	podSpec, _ := template["spec"].(map[string]any)
	containers, ok := podSpec["containers"].([]any)
	if !ok {
		return nil, fmt.Errorf("deployment spec has no containers list")
	}
	for _, raw := range containers {
		entry, ok := raw.(map[string]any)
		if !ok || entry["name"] != container {
			continue
		}
		rawArgs, _ := entry["args"].([]any)
		args := make([]string, 0, len(rawArgs))
		for _, a := range rawArgs {
			args = append(args, fmt.Sprint(a))
		}
		return args, nil
	}
	return nil, fmt.Errorf("container %q not found in deployment", container)
}

// parseRuntimeArgs extracts known runtime profile values from an argv list.
func parseRuntimeArgs(args []string) map[string]int {
	parsed := make(map[string]int)
	for field, flag := range runtimeArgFlags {
		for i, arg := range args {
			if arg != flag || i+1 >= len(args) {
				continue
			}
			if v, err := strconv.Atoi(args[i+1]); err == nil {
				parsed[field] = v
			}
			break
		}
	}
	return parsed
}

// applyRuntimeArgs returns a copy of args with the given runtime values
// set, appending flags that are not yet present.
func applyRuntimeArgs(args []string, values map[string]int) []string {
	updated := append([]string(nil), args...)
	for field, flag := range runtimeArgFlags {
		value, ok := values[field]
		if !ok {
			continue
		}
		rendered := strconv.Itoa(value)
		idx := -1
		for i, arg := range updated {
			if arg == flag {
				idx = i
				break
			}
		}
		switch {
		case idx >= 0 && idx+1 < len(updated):
			updated[idx+1] = rendered
		case idx >= 0:
			updated = append(updated, rendered)
		default:
			updated = append(updated, flag, rendered)
		}
	}
	return updated
}

func equalArgs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
