// Package client provides a typed Go client for the SoundClue gameplay API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Choice is one candidate sound description.
type Choice struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Challenge is the full challenge record returned by CreateChallenge. Reads
// during gameplay return the sanitized subset instead (see PublicChallenge).
type Challenge struct {
	ID                string            `json:"id"`
	CreatedAt         int64             `json:"created_at"`
	UpdatedAt         int64             `json:"updated_at"`
	NumberOfPrompts   int               `json:"number_of_prompts"`
	Choices           map[string]Choice `json:"choices"`
	ChallengeAnswer   string            `json:"challenge_answer"`
	CorrelationID     string            `json:"correlation_id"`
	ChallengeSoundURL string            `json:"challenge_sound_url"`
	BeepPosition      int               `json:"beep_position"`
	Status            string            `json:"status"`
}

// PublicChallenge is the answer-stripped challenge view served during play.
type PublicChallenge struct {
	ID                string            `json:"id"`
	NumberOfPrompts   int               `json:"number_of_prompts"`
	Choices           map[string]Choice `json:"choices"`
	ChallengeSoundURL string            `json:"challenge_sound_url"`
}

// PlayResult is the outcome of StartPlay. Err is the domain condition field
// ("already playing", "challenge not ready"); it is not a transport error.
type PlayResult struct {
	StartPlay int64  `json:"start_play"`
	Err       string `json:"error"`
}

// CheckResult is the outcome of a judged check. Err carries a domain
// condition such as "not playing".
type CheckResult struct {
	Success bool   `json:"success"`
	Err     string `json:"error"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client is the SoundClue API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the given API base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateChallenge creates a challenge with the given candidate count; pass
// zero for the server default.
func (c *Client) CreateChallenge(ctx context.Context, numberOfPrompts int) (*Challenge, error) {
	body := map[string]any{}
	if numberOfPrompts > 0 {
		body["number_of_prompts"] = numberOfPrompts
	}
	var out Challenge
	if err := c.do(ctx, http.MethodPost, "/v1/challenges", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RandomChallenge fetches a random playable challenge; pass zero for the
// server default candidate count. Returns (nil, nil) when no challenge is
// available.
func (c *Client) RandomChallenge(ctx context.Context, numberOfPrompts int) (*PublicChallenge, error) {
	path := "/v1/challenges/random"
	if numberOfPrompts > 0 {
		path += "?number_of_prompts=" + strconv.Itoa(numberOfPrompts)
	}

	var out struct {
		PublicChallenge
		Result string `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Result != "" {
		return nil, nil
	}
	return &out.PublicChallenge, nil
}

// GetChallenge fetches the sanitized challenge by id.
func (c *Client) GetChallenge(ctx context.Context, id string) (*PublicChallenge, error) {
	var out PublicChallenge
	if err := c.do(ctx, http.MethodGet, "/v1/challenges/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartPlay opens a play session.
func (c *Client) StartPlay(ctx context.Context, id string) (*PlayResult, error) {
	var out PlayResult
	if err := c.do(ctx, http.MethodPost, "/v1/challenges/"+url.PathEscape(id)+"/play", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckBeep reports the beep and ends the session.
func (c *Client) CheckBeep(ctx context.Context, id string) (*CheckResult, error) {
	var out CheckResult
	if err := c.do(ctx, http.MethodPost, "/v1/challenges/"+url.PathEscape(id)+"/beep", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckAnswer judges a candidate guess within the active session.
func (c *Client) CheckAnswer(ctx context.Context, id, guess string) (*CheckResult, error) {
	var out CheckResult
	body := map[string]any{"prompt_guess": guess}
	if err := c.do(ctx, http.MethodPost, "/v1/challenges/"+url.PathEscape(id)+"/answer", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckChallenge performs the stateless combined judgement.
func (c *Client) CheckChallenge(ctx context.Context, id string, beepPosition int, guess string) (*CheckResult, error) {
	q := url.Values{}
	q.Set("id", id)
	q.Set("beep_position", strconv.Itoa(beepPosition))
	q.Set("prompt_guess", guess)

	var out CheckResult
	if err := c.do(ctx, http.MethodGet, "/v1/check-challenge?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(msg, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
