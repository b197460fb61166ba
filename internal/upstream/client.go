// Package upstream is the generation gateway: it forwards already
// authorized requests to the video-generation provider and hands the raw
// response back for the task manager to interpret.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	generatePath    = "/api/v1/video/sora-pro"
	checkResultPath = "/api/video-generations/check-result"
)

// ErrTimeout marks an upstream call that exceeded its bounded deadline.
// The account is never debited for a timed-out call and the client may
// retry.
var ErrTimeout = errors.New("upstream request timed out")

// HTTPError is a non-2xx upstream transport response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// AcceptResponse is the provider's answer to a generation request. Code 0
// with a task id means the job was accepted.
type AcceptResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

// Accepted reports whether the provider took the job.
func (r *AcceptResponse) Accepted() bool {
	return r.Code == 0 && r.Data.TaskID != ""
}

// Client talks to the provider with bounded timeouts per call type.
type Client struct {
	baseURL      string
	genClient    *http.Client
	statusClient *http.Client
}

func New(baseURL string, generateTimeout, statusTimeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		genClient:    &http.Client{Timeout: generateTimeout},
		statusClient: &http.Client{Timeout: statusTimeout},
	}
}

// GenerationPayload is the request the provider expects, built from the
// client's generation request.
type GenerationPayload struct {
	Model           string `json:"model"`
	Prompt          string `json:"prompt"`
	AspectRatio     string `json:"aspectRatio"`
	RemoveWatermark bool   `json:"removeWatermark"`
	NFrames         string `json:"nFrames"`
}

// BuildPayload maps the client-facing model and aspect ratio onto the
// provider's request shape.
func BuildPayload(clientModel, prompt, aspectRatio string, pro bool) GenerationPayload {
	apiRatio := "landscape"
	if aspectRatio == "9:16" {
		apiRatio = "portrait"
	}

	frames := "10"
	if pro {
		frames = "15"
	}

	return GenerationPayload{
		Model:           "sora-2-text-to-video",
		Prompt:          prompt,
		AspectRatio:     apiRatio,
		RemoveWatermark: true,
		NFrames:         frames,
	}
}

// Generate submits a generation request with the given credential.
func (c *Client) Generate(ctx context.Context, payload GenerationPayload, credential string) (*AcceptResponse, error) {
	body, err := c.post(ctx, c.genClient, c.baseURL+generatePath, payload, credential)
	if err != nil {
		return nil, err
	}

	var accept AcceptResponse
	if err := json.Unmarshal(body, &accept); err != nil {
		return nil, fmt.Errorf("decode upstream accept response: %w", err)
	}
	return &accept, nil
}

// CheckResult polls the provider for a task's status and returns the raw
// payload unmodified, plus the extracted data.status string (empty when
// absent). The raw payload passes through to the client; only the status
// feeds reconciliation.
func (c *Client) CheckResult(ctx context.Context, taskID, credential string) (map[string]any, string, error) {
	body, err := c.post(ctx, c.statusClient, c.baseURL+checkResultPath,
		map[string]string{"taskId": taskID}, credential)
	if err != nil {
		return nil, "", err
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", fmt.Errorf("decode upstream status response: %w", err)
	}

	status := ""
	if data, ok := payload["data"].(map[string]any); ok {
		if s, ok := data["status"].(string); ok {
			status = s
		}
	}
	return payload, status, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, url string, payload any, credential string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode upstream payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := client.Do(req)
	if err != nil {
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, ErrTimeout
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}
	return body, nil
}
