package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/duychung-keytechx/speech-demo/internal/pcm"
)

// Client talks to the streaming ASR service. A session is started once,
// fed raw PCM chunks strictly in capture order, and finished to obtain the
// final transcript. The client performs no retries: any failed call is a
// hard failure of that call, and the caller decides what to do with the
// session.
type Client struct {
	config     Config
	httpClient *http.Client
}

// Config contains transcription client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// ChunkResult is the incremental response to a pushed chunk.
type ChunkResult struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// FinalResult is the response to finishing a session.
type FinalResult struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// APIError describes a non-success response from the ASR service.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

// NewClient creates a transcription API client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// StartSession opens a new transcription session and returns its id.
func (c *Client) StartSession(ctx context.Context) (string, error) {
	body, err := c.post(ctx, "start session", "/api/start", "", nil, "")
	if err != nil {
		return "", err
	}

	var resp startResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("start session: parse response: %w", err)
	}

	if resp.SessionID == "" {
		return "", fmt.Errorf("start session: empty session_id in response")
	}

	return resp.SessionID, nil
}

// PushChunk sends one fixed-length chunk of target-rate samples and returns
// the partial transcript known after it. Chunks must be pushed one at a
// time, in capture order.
func (c *Client) PushChunk(ctx context.Context, sessionID string, samples []float32) (ChunkResult, error) {
	body, err := c.post(ctx, "push chunk", "/api/chunk", sessionID, pcm.Encode(samples), pcm.ContentType)
	if err != nil {
		return ChunkResult{}, err
	}

	var resp ChunkResult
	if err := json.Unmarshal(body, &resp); err != nil {
		return ChunkResult{}, fmt.Errorf("push chunk: parse response: %w", err)
	}

	return resp, nil
}

// FinishSession closes the session and returns the final transcript.
func (c *Client) FinishSession(ctx context.Context, sessionID string) (FinalResult, error) {
	body, err := c.post(ctx, "finish session", "/api/finish", sessionID, nil, "")
	if err != nil {
		return FinalResult{}, err
	}

	var resp FinalResult
	if err := json.Unmarshal(body, &resp); err != nil {
		return FinalResult{}, fmt.Errorf("finish session: parse response: %w", err)
	}

	return resp, nil
}

// post performs one POST to the ASR service and returns the response body.
// Non-2xx statuses become *APIError.
func (c *Client) post(ctx context.Context, op, path, sessionID string, body []byte, contentType string) ([]byte, error) {
	u, err := url.Parse(c.config.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("%s: build URL: %w", op, err)
	}

	if sessionID != "" {
		q := u.Query()
		q.Set("session_id", sessionID)
		u.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(respBody)),
		}
	}

	return respBody, nil
}
