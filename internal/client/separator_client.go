package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/makeasinger/separator/internal/config"
	"github.com/makeasinger/separator/internal/model"
)

// SeparationAPI is the remote worker contract. Implementations must not
// retry on their own; the scheduler owns the retry policy.
type SeparationAPI interface {
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error)
	Status(ctx context.Context, remoteJobID string) (*RemoteStatus, error)
	Cancel(ctx context.Context, remoteJobID string) error
}

// SubmitRequest asks the remote worker to separate one audio input
type SubmitRequest struct {
	AudioURL    string `json:"audio_url"`
	TimeoutHint int    `json:"timeout_hint"` // seconds
	Reference   string `json:"reference,omitempty"`
}

// SubmitResponse is the remote handle for an accepted job
type SubmitResponse struct {
	RemoteJobID string `json:"job_id"`
}

// RemoteStatus is the remote worker's view of a job
type RemoteStatus struct {
	State    model.RemoteState `json:"state"`
	Progress int               `json:"progress,omitempty"`
	Outputs  map[string]string `json:"outputs,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// SeparatorClient implements SeparationAPI over HTTP
type SeparatorClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewSeparatorClient creates a client for the remote separation API.
// Per-call deadlines come from the context, so the http.Client only
// carries a generous upper bound.
func NewSeparatorClient(cfg *config.SeparatorConfig) *SeparatorClient {
	return &SeparatorClient{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// Submit starts a remote separation job
func (c *SeparatorClient) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	var result SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/separate", req, &result); err != nil {
		return nil, err
	}
	if result.RemoteJobID == "" {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Body: "missing job_id in submit response"}
	}
	return &result, nil
}

// Status fetches the remote lifecycle of a job
func (c *SeparatorClient) Status(ctx context.Context, remoteJobID string) (*RemoteStatus, error) {
	var result RemoteStatus
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/separate/%s", remoteJobID), nil, &result); err != nil {
		return nil, err
	}
	result.State = normalizeState(string(result.State))
	return &result, nil
}

// Cancel asks the remote worker to drop a job
func (c *SeparatorClient) Cancel(ctx context.Context, remoteJobID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/separate/%s", remoteJobID), nil, nil)
}

// IsConfigured returns true if the client has a remote endpoint
func (c *SeparatorClient) IsConfigured() bool {
	return c.baseURL != ""
}

func (c *SeparatorClient) do(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Separator API] %s %s failed: %v", method, endpoint, err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Separator API] %s %s -> %d", method, endpoint, resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// normalizeState folds the spellings seen from separation backends
func normalizeState(s string) model.RemoteState {
	switch strings.ToLower(s) {
	case "succeeded", "completed", "success", "done":
		return model.RemoteSucceeded
	case "failed", "error":
		return model.RemoteFailed
	case "running", "processing", "started":
		return model.RemoteRunning
	default:
		return model.RemoteQueued
	}
}
