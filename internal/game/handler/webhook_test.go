package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soundclue/soundclue/internal/render"
)

func TestWebhook_completesChallenge(t *testing.T) {
	f := newAPIFixture(t, "")

	w, created := f.request(t, http.MethodPost, "/v1/challenges", nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	correlationID, _ := created["correlation_id"].(string)

	w, out := f.request(t, http.MethodPost, "/v1/receive-audio-challenge", map[string]any{
		"id": correlationID, "status": "succeeded", "output": "http://render.local/out.wav",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if out["result"] != "success" {
		t.Errorf("result = %v", out["result"])
	}

	// The challenge is now playable.
	id, _ := created["id"].(string)
	w, out = f.request(t, http.MethodPost, "/v1/challenges/"+id+"/play", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("play status = %d", w.Code)
	}
	if _, ok := out["start_play"]; !ok {
		t.Errorf("challenge not playable after callback: %v", out)
	}
}

func TestWebhook_unknownCorrelationID(t *testing.T) {
	f := newAPIFixture(t, "")

	w, out := f.request(t, http.MethodPost, "/v1/receive-audio-challenge", map[string]any{
		"id": "job-unknown", "status": "succeeded", "output": "http://render.local/out.wav",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 acknowledgement", w.Code)
	}
	if out["result"] != "error: no challenge found" {
		t.Errorf("result = %v", out["result"])
	}
}

func TestWebhook_nonSucceededAcknowledged(t *testing.T) {
	f := newAPIFixture(t, "")

	w, created := f.request(t, http.MethodPost, "/v1/challenges", nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	correlationID, _ := created["correlation_id"].(string)
	id, _ := created["id"].(string)

	w, out := f.request(t, http.MethodPost, "/v1/receive-audio-challenge", map[string]any{
		"id": correlationID, "status": "failed",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if out["result"] != "success" {
		t.Errorf("result = %v", out["result"])
	}

	// Still pending: play reports not ready.
	_, out = f.request(t, http.MethodPost, "/v1/challenges/"+id+"/play", nil, nil)
	if out["error"] != "challenge not ready" {
		t.Errorf("error = %v", out["error"])
	}
}

func TestWebhook_malformedBody(t *testing.T) {
	f := newAPIFixture(t, "")

	for _, body := range []string{"not json", `{"status":"succeeded"}`} {
		req := httptest.NewRequest(http.MethodPost, "/v1/receive-audio-challenge", bytes.NewReader([]byte(body)))
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestWebhook_signatureVerification(t *testing.T) {
	const secret = "webhook-secret"
	f := newAPIFixture(t, secret)

	w, created := f.request(t, http.MethodPost, "/v1/challenges", nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	correlationID, _ := created["correlation_id"].(string)

	payload, err := json.Marshal(map[string]any{
		"id": correlationID, "status": "succeeded", "output": "http://render.local/out.wav",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Missing signature is rejected.
	req := httptest.NewRequest(http.MethodPost, "/v1/receive-audio-challenge", bytes.NewReader(payload))
	w2 := httptest.NewRecorder()
	f.router.ServeHTTP(w2, req)
	if w2.Code != http.StatusUnauthorized {
		t.Errorf("unsigned callback: status = %d, want 401", w2.Code)
	}

	// A valid signature is accepted.
	req = httptest.NewRequest(http.MethodPost, "/v1/receive-audio-challenge", bytes.NewReader(payload))
	req.Header.Set("X-Webhook-Signature", render.SignPayload(secret, payload))
	w2 = httptest.NewRecorder()
	f.router.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Errorf("signed callback: status = %d: %s", w2.Code, w2.Body.String())
	}
}

func TestWebhook_duplicateDelivery(t *testing.T) {
	f := newAPIFixture(t, "")

	w, created := f.request(t, http.MethodPost, "/v1/challenges", nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	correlationID, _ := created["correlation_id"].(string)

	signal := map[string]any{"id": correlationID, "status": "succeeded", "output": "http://render.local/out.wav"}
	for i := 0; i < 2; i++ {
		w, out := f.request(t, http.MethodPost, "/v1/receive-audio-challenge", signal, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d", i, w.Code)
		}
		if out["result"] != "success" {
			t.Errorf("delivery %d: result = %v", i, out["result"])
		}
	}
}
