// Package client is the Go client for the Nimbus orchestrator API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nimbuside/nimbus/pkg/types"
)

// Client is an HTTP client for the Nimbus API.
type Client struct {
	baseURL    string
	apiKey     string
	provider   string
	httpClient *http.Client
}

// New creates a new Nimbus API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// WithProvider returns a client that pins every sandbox operation to one
// provider, bypassing the orchestrator's session lookup, probing, and
// failover. An empty name returns the receiver unchanged.
func (c *Client) WithProvider(name string) *Client {
	if name == "" {
		return c
	}
	cp := *c
	cp.provider = name
	return &cp
}

// doRequest performs an HTTP request with API key authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// doJSON performs a request and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sandboxPath builds a sandbox-scoped path with the client's provider
// override applied.
func (c *Client) sandboxPath(suffix string) string {
	return c.withProvider("/sandboxes" + suffix)
}

// withProvider appends the provider override, if configured.
func (c *Client) withProvider(path string) string {
	if c.provider == "" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "provider=" + url.QueryEscape(c.provider)
}

// CreateSandbox creates a new sandbox. Without WithProvider the
// orchestrator chooses the backend.
func (c *Client) CreateSandbox(ctx context.Context, opts types.CreateOptions) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := c.doJSON(ctx, http.MethodPost, c.sandboxPath(""), opts, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// GetSandbox fetches a sandbox by ID.
func (c *Client) GetSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := c.doJSON(ctx, http.MethodGet, c.sandboxPath("/"+url.PathEscape(id)), nil, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// ListSandboxes lists sandboxes across all providers, or from one when
// the client is provider-pinned.
func (c *Client) ListSandboxes(ctx context.Context) ([]types.Sandbox, error) {
	var out struct {
		Sandboxes []types.Sandbox `json:"sandboxes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.sandboxPath(""), nil, &out); err != nil {
		return nil, err
	}
	return out.Sandboxes, nil
}

// UpdateSandbox applies mutable fields to a sandbox.
func (c *Client) UpdateSandbox(ctx context.Context, id string, opts types.UpdateOptions) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := c.doJSON(ctx, http.MethodPatch, c.sandboxPath("/"+url.PathEscape(id)), opts, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// DeleteSandbox removes a sandbox.
func (c *Client) DeleteSandbox(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, c.sandboxPath("/"+url.PathEscape(id)), nil, nil)
}

// StartSandbox starts a stopped sandbox.
func (c *Client) StartSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	return c.lifecycle(ctx, id, "start")
}

// StopSandbox stops a running sandbox.
func (c *Client) StopSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	return c.lifecycle(ctx, id, "stop")
}

// RestartSandbox stops then starts a sandbox.
func (c *Client) RestartSandbox(ctx context.Context, id string) (*types.Sandbox, error) {
	return c.lifecycle(ctx, id, "restart")
}

func (c *Client) lifecycle(ctx context.Context, id, action string) (*types.Sandbox, error) {
	var sb types.Sandbox
	if err := c.doJSON(ctx, http.MethodPost, c.sandboxPath("/"+url.PathEscape(id)+"/"+action), nil, &sb); err != nil {
		return nil, err
	}
	return &sb, nil
}

// Exec runs a command in a sandbox. Non-zero exits come back in the
// result, not as an error.
func (c *Client) Exec(ctx context.Context, id, command string, opts types.ExecOptions) (*types.ExecutionResult, error) {
	req := struct {
		Command string            `json:"command"`
		Options types.ExecOptions `json:"options"`
	}{command, opts}
	var res types.ExecutionResult
	if err := c.doJSON(ctx, http.MethodPost, c.sandboxPath("/"+url.PathEscape(id)+"/exec"), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListFiles lists one directory level inside the sandbox workspace.
func (c *Client) ListFiles(ctx context.Context, id, path string) ([]types.FileEntry, error) {
	var out struct {
		Entries []types.FileEntry `json:"entries"`
	}
	p := c.sandboxPath("/" + url.PathEscape(id) + "/files?path=" + url.QueryEscape(path))
	if err := c.doJSON(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// ReadFile returns a file's content.
func (c *Client) ReadFile(ctx context.Context, id, path string) (string, error) {
	p := c.sandboxPath("/" + url.PathEscape(id) + "/files/content?path=" + url.QueryEscape(path))
	resp, err := c.doRequest(ctx, http.MethodGet, p, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(content), nil
}

// WriteFile writes content to a path inside the sandbox workspace.
func (c *Client) WriteFile(ctx context.Context, id, path, content string) error {
	p := c.sandboxPath("/" + url.PathEscape(id) + "/files/content?path=" + url.QueryEscape(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+p, bytes.NewReader([]byte(content)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// DeleteFile removes a file or directory from the sandbox workspace.
func (c *Client) DeleteFile(ctx context.Context, id, path string) error {
	p := c.sandboxPath("/" + url.PathEscape(id) + "/files?path=" + url.QueryEscape(path))
	return c.doJSON(ctx, http.MethodDelete, p, nil, nil)
}

// CreateSnapshot captures the sandbox filesystem.
func (c *Client) CreateSnapshot(ctx context.Context, id, name string) (*types.Snapshot, error) {
	req := struct {
		Name string `json:"name"`
	}{name}
	var snap types.Snapshot
	if err := c.doJSON(ctx, http.MethodPost, c.sandboxPath("/"+url.PathEscape(id)+"/snapshots"), req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// RestoreSnapshot restores a snapshot into the sandbox.
func (c *Client) RestoreSnapshot(ctx context.Context, id, snapshotID string, opts types.RestoreOptions) error {
	p := c.sandboxPath("/" + url.PathEscape(id) + "/snapshots/" + url.PathEscape(snapshotID) + "/restore")
	return c.doJSON(ctx, http.MethodPost, p, opts, nil)
}

// GetMetrics returns current resource usage, or nil when unmeasured.
func (c *Client) GetMetrics(ctx context.Context, id string) (*types.SandboxMetrics, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.sandboxPath("/"+url.PathEscape(id)+"/metrics"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	var m types.SandboxMetrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &m, nil
}

// GetLogs returns the sandbox's recent command history.
func (c *Client) GetLogs(ctx context.Context, id string, limit int) ([]types.LogEntry, error) {
	path := "/" + url.PathEscape(id) + "/logs"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out struct {
		Logs []types.LogEntry `json:"logs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.sandboxPath(path), nil, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// ListSessions returns the orchestrator's active sessions. A
// provider-pinned client filters to that provider's sessions.
func (c *Client) ListSessions(ctx context.Context) ([]types.Session, error) {
	var out struct {
		Sessions []types.Session `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.withProvider("/sessions"), nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// ListProviders returns registered provider names.
func (c *Client) ListProviders(ctx context.Context) ([]string, error) {
	var out struct {
		Providers []string `json:"providers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/providers", nil, &out); err != nil {
		return nil, err
	}
	return out.Providers, nil
}

// ProviderCapabilities returns a provider's declared capabilities.
func (c *Client) ProviderCapabilities(ctx context.Context, name string) (*types.Capabilities, error) {
	var caps types.Capabilities
	if err := c.doJSON(ctx, http.MethodGet, "/providers/"+url.PathEscape(name)+"/capabilities", nil, &caps); err != nil {
		return nil, err
	}
	return &caps, nil
}
