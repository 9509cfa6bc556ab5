package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/deepresearch-backend/internal/platform/logger"
)

func responsesPayload(text string) map[string]any {
	return map[string]any{
		"output": []map[string]any{
			{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{
					{"type": "output_text", "text": text},
				},
			},
		},
		"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
	}
}

func newTestClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_MODEL", "test-model")
	t.Setenv("OPENAI_MAX_RETRIES", "2")

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	client, err := NewClient(log)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	if _, err := NewClient(log); err == nil {
		t.Fatalf("NewClient must fail without OPENAI_API_KEY")
	}
}

func TestGenerateJSONDecodesOutputText(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header: got=%q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		format, _ := req["text"].(map[string]any)["format"].(map[string]any)
		if format["type"] != "json_schema" || format["strict"] != true {
			t.Errorf("schema format not strict: %v", format)
		}
		json.NewEncoder(w).Encode(responsesPayload(`{"answer":42}`))
	}))

	obj, err := client.GenerateJSON(context.Background(), "sys", "user", "test",
		map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["answer"] != float64(42) {
		t.Fatalf("answer: got=%v", obj["answer"])
	}
}

func TestGenerateJSONRejectsMalformedOutput(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(responsesPayload("not json at all"))
	}))

	if _, err := client.GenerateJSON(context.Background(), "sys", "user", "test",
		map[string]any{"type": "object"}); err == nil {
		t.Fatalf("malformed output must error")
	}
}

func TestGenerateTextRetriesRateLimit(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(responsesPayload("hello"))
	}))

	text, err := client.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "hello" || attempts != 2 {
		t.Fatalf("got text=%q attempts=%d", text, attempts)
	}
}

func TestTemperatureFallback(t *testing.T) {
	var sawTemp []bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		_, hasTemp := req["temperature"]
		sawTemp = append(sawTemp, hasTemp)
		if hasTemp {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`))
			return
		}
		json.NewEncoder(w).Encode(responsesPayload("ok"))
	}))

	text, err := client.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText with fallback: %v", err)
	}
	if text != "ok" {
		t.Fatalf("text: got=%q", text)
	}
	if len(sawTemp) != 2 || !sawTemp[0] || sawTemp[1] {
		t.Fatalf("expected temp then no-temp: %v", sawTemp)
	}

	// The rejection is remembered; later calls omit temperature up front.
	if _, err := client.GenerateText(context.Background(), "sys", "again"); err != nil {
		t.Fatalf("second GenerateText: %v", err)
	}
	if len(sawTemp) != 3 || sawTemp[2] {
		t.Fatalf("model rejection not remembered: %v", sawTemp)
	}
}

func TestGenerateJSONRequiresSchema(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	}))

	if _, err := client.GenerateJSON(context.Background(), "sys", "user", "", map[string]any{}); err == nil {
		t.Fatalf("empty schema name must error")
	}
	if _, err := client.GenerateJSON(context.Background(), "sys", "user", "name", nil); err == nil {
		t.Fatalf("nil schema must error")
	}
}
