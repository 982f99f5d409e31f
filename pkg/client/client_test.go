package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateChallenge(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/challenges" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody) //nolint:errcheck
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Challenge{ //nolint:errcheck
			ID:              "11111111-1111-1111-1111-111111111111",
			NumberOfPrompts: 3,
			Status:          "PENDING",
			CorrelationID:   "job-1",
		})
	}))
	defer srv.Close()

	ch, err := New(srv.URL).CreateChallenge(context.Background(), 3)
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if ch.Status != "PENDING" || ch.CorrelationID != "job-1" {
		t.Errorf("challenge = %+v", ch)
	}
	if gotBody["number_of_prompts"] != float64(3) {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestRandomChallenge_noneAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"result": "no challenge available"}) //nolint:errcheck
	}))
	defer srv.Close()

	ch, err := New(srv.URL).RandomChallenge(context.Background(), 0)
	if err != nil {
		t.Fatalf("RandomChallenge: %v", err)
	}
	if ch != nil {
		t.Errorf("got %+v, want nil", ch)
	}
}

func TestRandomChallenge_found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("number_of_prompts"); got != "5" {
			t.Errorf("number_of_prompts = %q", got)
		}
		json.NewEncoder(w).Encode(PublicChallenge{ //nolint:errcheck
			ID:                "22222222-2222-2222-2222-222222222222",
			NumberOfPrompts:   5,
			ChallengeSoundURL: "http://assets.local/x.wav",
		})
	}))
	defer srv.Close()

	ch, err := New(srv.URL).RandomChallenge(context.Background(), 5)
	if err != nil {
		t.Fatalf("RandomChallenge: %v", err)
	}
	if ch == nil || ch.NumberOfPrompts != 5 {
		t.Errorf("challenge = %+v", ch)
	}
}

func TestStartPlay_domainCondition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "already playing"}) //nolint:errcheck
	}))
	defer srv.Close()

	res, err := New(srv.URL).StartPlay(context.Background(), "some-id")
	if err != nil {
		t.Fatalf("StartPlay: %v", err)
	}
	if res.Err != "already playing" {
		t.Errorf("Err = %q", res.Err)
	}
}

func TestDo_apiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "challenge not found"}) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetChallenge(context.Background(), "33333333-3333-3333-3333-333333333333")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "challenge not found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestCheckChallenge_buildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("id") == "" || q.Get("beep_position") != "4" || q.Get("prompt_guess") != "1" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(CheckResult{Success: true}) //nolint:errcheck
	}))
	defer srv.Close()

	res, err := New(srv.URL).CheckChallenge(context.Background(), "id-1", 4, "1")
	if err != nil {
		t.Fatalf("CheckChallenge: %v", err)
	}
	if !res.Success {
		t.Error("Success = false")
	}
}
