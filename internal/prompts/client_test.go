package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const goodCandidates = `{
	"0": {"title": "Rain on Tin", "description": "steady rainfall hitting a corrugated metal roof"},
	"1": {"title": "Night Market", "description": "distant chatter and sizzling food stalls"},
	"2": {"title": "Old Clock", "description": "a heavy mechanical clock ticking in an empty hall"}
}`

// chatServer returns an httptest server whose chat completions endpoint
// responds with the given message content.
func chatServer(t *testing.T, content string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestGenerateCandidates_parsesResponse(t *testing.T) {
	var captured map[string]any
	srv := chatServer(t, goodCandidates, &captured)
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "test-model", 0.5, 0.8, zap.NewNop())
	got, err := c.GenerateCandidates(context.Background(), 3)
	if err != nil {
		t.Fatalf("GenerateCandidates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	if got["0"].Title != "Rain on Tin" {
		t.Errorf("candidate 0 title = %q", got["0"].Title)
	}
	if captured["model"] != "test-model" {
		t.Errorf("request model = %v, want test-model", captured["model"])
	}
	msgs, _ := captured["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("request has %d messages, want 1", len(msgs))
	}
	msg, _ := msgs[0].(map[string]any)
	if content, _ := msg["content"].(string); !strings.Contains(content, "3") {
		t.Errorf("prompt does not mention the candidate count: %q", content)
	}
}

func TestGenerateCandidates_stripsCodeFence(t *testing.T) {
	srv := chatServer(t, "```json\n"+goodCandidates+"\n```", nil)
	defer srv.Close()

	c := NewClient(srv.URL, "", "m", 0, 0, zap.NewNop())
	got, err := c.GenerateCandidates(context.Background(), 3)
	if err != nil {
		t.Fatalf("GenerateCandidates: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d candidates, want 3", len(got))
	}
}

func TestGenerateCandidates_badOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"prose", "Here are three lovely sounds for you!"},
		{"wrong count", `{"0": {"title": "a", "description": "b"}}`},
		{"non-numeric keys", `{"first": {"title": "a", "description": "b"}, "second": {"title": "c", "description": "d"}, "third": {"title": "e", "description": "f"}}`},
		{"empty description", `{"0": {"title": "a", "description": ""}, "1": {"title": "c", "description": "d"}, "2": {"title": "e", "description": "f"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.content, nil)
			defer srv.Close()

			c := NewClient(srv.URL, "", "m", 0, 0, zap.NewNop())
			_, err := c.GenerateCandidates(context.Background(), 3)
			if !errors.Is(err, ErrBadCandidateFormat) {
				t.Errorf("err = %v, want ErrBadCandidateFormat", err)
			}
		})
	}
}

func TestGenerateCandidates_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "m", 0, 0, zap.NewNop())
	_, err := c.GenerateCandidates(context.Background(), 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrBadCandidateFormat) {
		t.Errorf("transport failure misreported as format error: %v", err)
	}
}

func TestGenerateCandidates_sendsBearerToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, goodCandidates)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key", "m", 0, 0, zap.NewNop())
	if _, err := c.GenerateCandidates(context.Background(), 3); err != nil {
		t.Fatalf("GenerateCandidates: %v", err)
	}
	if auth != "Bearer secret-key" {
		t.Errorf("Authorization = %q, want Bearer secret-key", auth)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
