package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"matcha-back/models"
)

func TestStripReasoning(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"clean text", "こんにちは", "こんにちは"},
		{"empty", "", ""},
		{"leading span", "<think>hmm</think>hello", "hello"},
		{"trailing span", "hello<think>hmm</think>", "hello"},
		{"uppercase tags", "<THINK>loud</THINK>quiet", "quiet"},
		{"mixed case tags", "<Think>x</tHiNk>done", "done"},
		{"multiline span", "before<think>line one\nline two</think> after", "before after"},
		{"two spans", "<think>a</think>mid<think>b</think>", "mid"},
		{"span only", "<think>everything</think>", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := StripReasoning(tc.in)
			if got != tc.want {
				t.Fatalf("StripReasoning(%q) = %q, want %q", tc.in, got, tc.want)
			}
			if strings.Contains(strings.ToLower(got), "<think>") {
				t.Fatalf("output still contains a marker: %q", got)
			}
			if again := StripReasoning(got); again != got {
				t.Fatalf("not idempotent: strip(strip) = %q, strip = %q", again, got)
			}
		})
	}
}

func TestGeminiResponderSendTurn(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key query param")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{"content": {"parts": [
				{"text": "<think>internal monologue</think>「猫」の画像を生成しました！"},
				{"inlineData": {"mimeType": "image/jpeg", "data": "QUJD"}}
			]}}]
		}`))
	}))
	defer server.Close()

	responder := NewGeminiResponder(server.URL, "test-key", "", zap.NewNop())
	history := []models.Message{
		{Role: models.RoleUser, Text: "こんにちは"},
		{Role: models.RoleAssistant, Text: "こんにちは！"},
	}

	reply, err := responder.SendTurn(context.Background(), history, "猫を描いて")
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if reply.Text != "「猫」の画像を生成しました！" {
		t.Fatalf("reply text = %q, reasoning span not stripped", reply.Text)
	}
	if reply.Image != "data:image/jpeg;base64,QUJD" {
		t.Fatalf("reply image = %q, want data URL", reply.Image)
	}

	contents, ok := gotBody["contents"].([]interface{})
	if !ok || len(contents) != 3 {
		t.Fatalf("request carried %d contents, want history(2) + new text(1)", len(contents))
	}
	second := contents[1].(map[string]interface{})
	if second["role"] != "model" {
		t.Fatalf("assistant history role = %v, want model", second["role"])
	}
}

func TestGeminiResponderRequiresKey(t *testing.T) {
	responder := NewGeminiResponder("", "", "", zap.NewNop())
	if _, err := responder.SendTurn(context.Background(), nil, "hi"); err == nil {
		t.Fatal("expected an error without an api key")
	}
}

func TestGeminiResponderSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	responder := NewGeminiResponder(server.URL, "test-key", "", zap.NewNop())
	if _, err := responder.SendTurn(context.Background(), nil, "hi"); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
