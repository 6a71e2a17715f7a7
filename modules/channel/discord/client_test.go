package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot TEST_TOKEN" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "42", "username": "sandy", "bot": true})
	}))
	defer srv.Close()

	user, err := NewClient("TEST_TOKEN", srv.URL).CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser() error: %v", err)
	}
	if user.ID != 42 || user.Username != "sandy" || !user.Bot {
		t.Errorf("user = %+v", user)
	}
}

func TestCreateMessage_Reply(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/channels/200/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["content"] != "hello" {
			t.Errorf("content = %v", body["content"])
		}
		ref, _ := body["message_reference"].(map[string]any)
		if ref["message_id"] != "99" {
			t.Errorf("message_reference = %v", body["message_reference"])
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "1000", "channel_id": "200", "content": "hello"})
	}))
	defer srv.Close()

	m, err := NewClient("T", srv.URL).CreateMessage(context.Background(), 200, "hello", 99)
	if err != nil {
		t.Fatalf("CreateMessage() error: %v", err)
	}
	if m.ID != 1000 {
		t.Errorf("ID = %d, want 1000", m.ID)
	}
}

func TestCreateMessage_NoReplyOmitsReference(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["message_reference"]; ok {
			t.Error("message_reference should be omitted")
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "1"})
	}))
	defer srv.Close()

	if _, err := NewClient("T", srv.URL).CreateMessage(context.Background(), 5, "x", 0); err != nil {
		t.Fatalf("CreateMessage() error: %v", err)
	}
}

func TestClient_RetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(t, w, http.StatusTooManyRequests, map[string]any{"message": "slow down", "retry_after": 0.01})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewClient("T", srv.URL).TriggerTyping(context.Background(), 7); err != nil {
		t.Fatalf("TriggerTyping() error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestClient_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]any{"code": 50013, "message": "Missing Permissions"})
	}))
	defer srv.Close()

	_, err := NewClient("T", srv.URL).CreateMessage(context.Background(), 1, "x", 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != 50013 {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestSnowflake_JSON(t *testing.T) {
	t.Parallel()

	var v struct {
		A Snowflake `json:"a"`
		B Snowflake `json:"b"`
		C Snowflake `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"123","b":456,"c":null}`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.A != 123 || v.B != 456 || v.C != 0 {
		t.Errorf("decoded %+v", v)
	}
	out, _ := json.Marshal(Snowflake(9))
	if string(out) != `"9"` {
		t.Errorf("Marshal = %s", out)
	}
}
