package frens

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	agent "github.com/TreasureProject/voicecore/core"
)

func TestRespondSendsHistoryAndParsesReply(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("unreadable request body: %v", err)
		}

		receipt, _ := json.Marshal(map[string]any{
			"success": true, "transaction": "0xabc", "network": "base",
		})
		w.Header().Set(paymentResponseHeader, base64.StdEncoding.EncodeToString(receipt))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"the lights are on"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()))

	history := []agent.Exchange{
		{Prompt: "hello", Reply: "hi there", At: time.Now()},
	}
	reply, err := client.Respond(context.Background(), "turn on the lights", history)
	if err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if reply != "the lights are on" {
		t.Fatalf("unexpected reply %q", reply)
	}

	if received.Message != "turn on the lights" {
		t.Fatalf("unexpected message %q", received.Message)
	}
	if received.SessionID == "" {
		t.Fatalf("missing session id")
	}
	want := []chatMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}
	if len(received.ChatHistory) != len(want) {
		t.Fatalf("unexpected history: %+v", received.ChatHistory)
	}
	for i := range want {
		if received.ChatHistory[i] != want[i] {
			t.Fatalf("history[%d] = %+v, want %+v", i, received.ChatHistory[i], want[i])
		}
	}
}

func TestRespondSurfacesBackendErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"payment required"}`, http.StatusPaymentRequired)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()))
	if _, err := client.Respond(context.Background(), "hello", nil); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestRespondKeepsSessionAcrossTurns(t *testing.T) {
	var sessions []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		sessions = append(sessions, req.SessionID)
		w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()))
	for range 2 {
		if _, err := client.Respond(context.Background(), "hello", nil); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
	}

	if len(sessions) != 2 || sessions[0] != sessions[1] {
		t.Fatalf("expected a stable session id, got %v", sessions)
	}
}
