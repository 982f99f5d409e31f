// Package prompts obtains structured candidate sound descriptions from an
// OpenAI-compatible chat completions endpoint.
package prompts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soundclue/soundclue/internal/game/model"
	"go.uber.org/zap"
)

// ErrBadCandidateFormat is returned when the model's output cannot be parsed
// into the expected candidate map. Creation must fail outright on this error;
// no challenge record is persisted.
var ErrBadCandidateFormat = errors.New("prompt response does not match the expected candidate format")

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	topP        float64
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a prompt provider client.
func NewClient(baseURL, apiKey, chatModel string, temperature, topP float64, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       chatModel,
		temperature: temperature,
		topP:        topP,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// candidatePrompt asks for n numerically keyed {title, description} entries.
// The randomness instructions keep repeated requests from converging on the
// same descriptions.
const candidatePrompt = `provide %d distinctly unique short music descriptions with a title

add an element of randomness so they do not overlap

add an element of randomness so this request can be repeated again, and they still won't overlap

distinct enough for a user to guess the sound by the prompt, and distinct enough to not sound similar to one of the other sounds.

do not use any language to instruct, such as "craft" or "produce" or "create".

respond in json format with key names numerical, and nested title and description keys.

do not respond with anything but json`

// GenerateCandidates requests count candidate descriptions and parses them
// into the keyed candidate set. Unparseable output yields
// ErrBadCandidateFormat.
func (c *Client) GenerateCandidates(ctx context.Context, count int) (map[string]model.Choice, error) {
	body := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		TopP:        c.topP,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(candidatePrompt, count)},
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat completions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("chat completions returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrBadCandidateFormat)
	}

	candidates, err := ParseCandidates(parsed.Choices[0].Message.Content, count)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("candidates generated", zap.Int("count", count))
	return candidates, nil
}

// ParseCandidates parses raw model output into the candidate map and
// validates its shape: exactly count entries keyed "0".."count-1", each with
// a non-empty title and description.
func ParseCandidates(raw string, count int) (map[string]model.Choice, error) {
	raw = stripCodeFence(raw)

	var out map[string]model.Choice
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCandidateFormat, err)
	}
	if len(out) != count {
		return nil, fmt.Errorf("%w: got %d candidates, want %d", ErrBadCandidateFormat, len(out), count)
	}
	for i := 0; i < count; i++ {
		key := strconv.Itoa(i)
		choice, ok := out[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrBadCandidateFormat, key)
		}
		if choice.Title == "" || choice.Description == "" {
			return nil, fmt.Errorf("%w: candidate %q has empty title or description", ErrBadCandidateFormat, key)
		}
	}
	return out, nil
}

// stripCodeFence removes a surrounding markdown code fence, which chat models
// add despite being told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
