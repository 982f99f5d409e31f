// Package render submits text-to-audio jobs to a Replicate-style predictions
// API and models the completion callbacks it delivers.
package render

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StatusSucceeded is the completion status that carries a usable output
// asset. Every other status is acknowledged without action.
const StatusSucceeded = "succeeded"

// CompletionSignal is the body of the provider's completion callback. ID is
// the correlation id returned by Submit; Output is the location of the
// rendered source asset when Status is "succeeded".
type CompletionSignal struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output string `json:"output"`
}

// Succeeded reports whether the signal carries a successful render.
func (s CompletionSignal) Succeeded() bool {
	return s.Status == StatusSucceeded
}

// Client submits render jobs to the predictions API.
type Client struct {
	baseURL    string
	token      string
	version    string
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a render provider client. webhookURL is the completion
// callback target registered with every submitted job.
func NewClient(baseURL, token, version, webhookURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		version:    version,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type predictionInput struct {
	Text     string `json:"text"`
	Duration int    `json:"duration"`
}

type predictionRequest struct {
	Version             string          `json:"version"`
	Input               predictionInput `json:"input"`
	Webhook             string          `json:"webhook,omitempty"`
	WebhookEventsFilter []string        `json:"webhook_events_filter,omitempty"`
}

type predictionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Submit creates a render job for the given description and returns the
// provider's job id, which correlates the eventual completion callback back
// to the challenge.
func (c *Client) Submit(ctx context.Context, description string, durationSeconds int) (string, error) {
	body := predictionRequest{
		Version: c.version,
		Input:   predictionInput{Text: description, Duration: durationSeconds},
	}
	if c.webhookURL != "" {
		body.Webhook = c.webhookURL
		body.WebhookEventsFilter = []string{"completed"}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit prediction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("prediction API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode prediction response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("prediction API returned no job id (error=%q)", parsed.Error)
	}

	c.logger.Info("render job submitted",
		zap.String("correlation_id", parsed.ID),
		zap.Int("duration_seconds", durationSeconds),
	)
	return parsed.ID, nil
}

// FetchAsset downloads the rendered source asset to a local file. A partial
// file is removed on failure so retries start clean.
func (c *Client) FetchAsset(ctx context.Context, srcURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("build asset request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("asset fetch returned %d for %s", resp.StatusCode, srcURL)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create asset file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(destPath)
		return fmt.Errorf("write asset file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("close asset file: %w", err)
	}
	return nil
}

// SignPayload computes the hex HMAC-SHA256 signature for a callback body.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback body against the signature header using
// a constant-time comparison.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := SignPayload(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
