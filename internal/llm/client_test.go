package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteSendsRequestAndParsesReply(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `{"tool":"news_search"}`}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "test-model", APIKey: "sk-x"})
	reply, err := client.Complete(context.Background(), "you are a planner", "what next?")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != `{"tool":"news_search"}` {
		t.Errorf("Unexpected reply %q", reply)
	}
	if gotAuth != "Bearer sk-x" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotReq.Model != "test-model" || len(gotReq.Messages) != 2 {
		t.Errorf("Unexpected request %+v", gotReq)
	}
	if gotReq.Messages[0].Role != "system" {
		t.Errorf("Expected system message first, got %s", gotReq.Messages[0].Role)
	}
}

func TestCompleteSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "m"})
	if _, err := client.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("Expected error for 503 response")
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Model: "m"})
	if _, err := client.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("Expected error for empty choices")
	}
}
