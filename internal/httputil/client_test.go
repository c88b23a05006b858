package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Client Tests
// =============================================================================

func TestNewClient(t *testing.T) {
	client := NewClient(ClientConfig{
		BaseURL:    "http://localhost:9090/",
		Timeout:    10 * time.Second,
		MaxRetries: 3,
	})

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.baseURL != "http://localhost:9090" {
		t.Errorf("baseURL = %s, want http://localhost:9090", client.baseURL)
	}
	if client.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", client.maxRetries)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://localhost:9090"})

	if client.maxRetries != 2 {
		t.Errorf("default maxRetries = %d, want 2", client.maxRetries)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", client.httpClient.Timeout)
	}
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Method = %s, want GET", r.Method)
		}
		if got := r.Header.Get(TraceHeader); got != "trace-1" {
			t.Errorf("trace header = %q, want trace-1", got)
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	resp, err := client.Get(WithTraceID(context.Background(), "trace-1"), "/services")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	var out map[string]string
	if err := DecodeResponse(resp, &out); err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %q, want ok", out["status"])
	}
}

func TestClient_PostSendsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["event"] != "token.moved" {
			t.Errorf("event = %v", body["event"])
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	resp, err := client.Post(context.Background(), "/events", map[string]string{"event": "token.moved"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if err := DecodeResponse(resp, nil); err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
}

func TestClient_RetriesUnavailable(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			ServiceUnavailable(w, "starting")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, RetryDelay: time.Millisecond})
	resp, err := client.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDecodeResponse_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, "service not found: ghost")
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	resp, err := client.Get(context.Background(), "/services/ghost")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	err = DecodeResponse(resp, &struct{}{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusNotFound || se.Message != "service not found: ghost" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestReadAllStrict(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("12345"), 4); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("error = %v, want ErrBodyTooLarge", err)
	}
	data, err := ReadAllStrict(strings.NewReader("1234"), 4)
	if err != nil || string(data) != "1234" {
		t.Errorf("ReadAllStrict() = %q, %v", data, err)
	}

	data, truncated, err := ReadAllWithLimit(io.LimitReader(strings.NewReader("abcdef"), 6), 3)
	if err != nil || !truncated || string(data) != "abc" {
		t.Errorf("ReadAllWithLimit() = %q, %v, %v", data, truncated, err)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ Name string }

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"Name":"x"}`))
	if err := DecodeJSON(r, &v, 1024); err != nil || v.Name != "x" {
		t.Errorf("DecodeJSON() = %+v, %v", v, err)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(r, &v, 1024); err != nil {
		t.Errorf("empty body error = %v", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"Name":`))
	if err := DecodeJSON(r, &v, 1024); err == nil {
		t.Error("malformed body accepted")
	}
}
