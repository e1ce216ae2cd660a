package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func TestSignalHireClientSubmitSuccess(t *testing.T) {
	t.Parallel()

	var gotBody personRequest
	var gotAPIKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/v1/person" {
			t.Errorf("path = %s, want /api/v1/person", r.URL.Path)
		}
		gotAPIKey = r.Header.Get("apikey")

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"requestId":"req-42"}`))
	}))
	defer server.Close()

	c, err := NewSignalHireClient(server.URL, "/api/v1", "secret-key")
	if err != nil {
		t.Fatalf("NewSignalHireClient() error = %v", err)
	}

	result, err := c.Submit(context.Background(), "https://linkedin.com/in/jane", "https://example.com/callback")
	if err != nil {
		t.Fatalf("Submit() unexpected error: %v", err)
	}

	if result.RequestID != "req-42" {
		t.Fatalf("RequestID = %q, want req-42", result.RequestID)
	}
	if result.Diagnostics.StatusCode != http.StatusCreated {
		t.Fatalf("Diagnostics.StatusCode = %d, want 201", result.Diagnostics.StatusCode)
	}
	if gotAPIKey != "secret-key" {
		t.Fatalf("apikey header = %q, want secret-key", gotAPIKey)
	}
	if len(gotBody.Items) != 1 || gotBody.Items[0] != "https://linkedin.com/in/jane" {
		t.Fatalf("request items = %v, want single identifier", gotBody.Items)
	}
	if gotBody.CallbackURL != "https://example.com/callback" {
		t.Fatalf("request callbackUrl = %q", gotBody.CallbackURL)
	}
}

func TestSignalHireClientSubmitRequestIDSpellings(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		body     string
		header   string
		wantID   string
	}{
		{name: "snake case", body: `{"request_id":"req-a"}`, wantID: "req-a"},
		{name: "header cased field", body: `{"Request-Id":"req-b"}`, wantID: "req-b"},
		{name: "bare id", body: `{"id":"req-c"}`, wantID: "req-c"},
		{name: "numeric id", body: `{"id":12345}`, wantID: "12345"},
		{name: "response header fallback", body: `{}`, header: "req-d", wantID: "req-d"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.header != "" {
					w.Header().Set("Request-Id", tc.header)
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			c, err := NewSignalHireClient(server.URL, "/api/v1", "secret-key")
			if err != nil {
				t.Fatalf("NewSignalHireClient() error = %v", err)
			}

			result, err := c.Submit(context.Background(), "id-1", "https://example.com/cb")
			if err != nil {
				t.Fatalf("Submit() unexpected error: %v", err)
			}
			if result.RequestID != tc.wantID {
				t.Fatalf("RequestID = %q, want %q", result.RequestID, tc.wantID)
			}
		})
	}
}

func TestSignalHireClientSubmitAcceptedWithoutRequestID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"accepted":true}`))
	}))
	defer server.Close()

	c, err := NewSignalHireClient(server.URL, "/api/v1", "secret-key")
	if err != nil {
		t.Fatalf("NewSignalHireClient() error = %v", err)
	}

	_, err = c.Submit(context.Background(), "id-1", "https://example.com/cb")
	if err == nil {
		t.Fatal("expected error for missing request id")
	}

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if providerErr.Transient {
		t.Fatal("missing request id should not be transient")
	}
	if providerErr.Diagnostics == nil || providerErr.Diagnostics.Body != `{"accepted":true}` {
		t.Fatalf("Diagnostics = %+v, want body snippet retained", providerErr.Diagnostics)
	}
}

func TestSignalHireClientSubmitErrorClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		body          string
		wantMessage   string
		wantTransient bool
	}{
		{name: "provider error text", statusCode: http.StatusPaymentRequired, body: `{"error":"insufficient credits"}`, wantMessage: "insufficient credits", wantTransient: false},
		{name: "generic http code", statusCode: http.StatusBadRequest, body: `nope`, wantMessage: "HTTP 400", wantTransient: false},
		{name: "rate limited is transient", statusCode: http.StatusTooManyRequests, body: ``, wantMessage: "HTTP 429", wantTransient: true},
		{name: "server error is transient", statusCode: http.StatusBadGateway, body: ``, wantMessage: "HTTP 502", wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			c, err := NewSignalHireClient(server.URL, "/api/v1", "secret-key")
			if err != nil {
				t.Fatalf("NewSignalHireClient() error = %v", err)
			}

			_, err = c.Submit(context.Background(), "id-1", "https://example.com/cb")
			if err == nil {
				t.Fatal("expected error")
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.StatusCode != tc.statusCode {
				t.Fatalf("StatusCode = %d, want %d", providerErr.StatusCode, tc.statusCode)
			}
			if providerErr.Reason() != tc.wantMessage {
				t.Fatalf("Reason() = %q, want %q", providerErr.Reason(), tc.wantMessage)
			}
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}
		})
	}
}

func TestSignalHireClientSubmitTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"requestId":"too-late"}`))
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(20 * time.Millisecond)

	c, err := NewSignalHireClientWithClient(server.URL, "/api/v1", "secret-key", client)
	if err != nil {
		t.Fatalf("NewSignalHireClientWithClient() error = %v", err)
	}

	_, err = c.Submit(context.Background(), "id-1", "https://example.com/cb")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false for timeout, err = %v", err)
	}
}

func TestNewSignalHireClientRequiresCredential(t *testing.T) {
	t.Parallel()

	if _, err := NewSignalHireClient("https://www.signalhire.com", "/api/v1", "  "); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := NewSignalHireClient("", "/api/v1", "key"); err == nil {
		t.Fatal("expected error for missing base url")
	}
}

func TestSignalHireClientCredits(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/credits" {
			t.Errorf("path = %s, want /api/v1/credits", r.URL.Path)
		}
		if r.URL.Query().Get("withoutContacts") != "true" {
			t.Errorf("withoutContacts = %q, want true", r.URL.Query().Get("withoutContacts"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"credits":120}`))
	}))
	defer server.Close()

	c, err := NewSignalHireClient(server.URL, "/api/v1", "secret-key")
	if err != nil {
		t.Fatalf("NewSignalHireClient() error = %v", err)
	}

	result, err := c.Credits(context.Background())
	if err != nil {
		t.Fatalf("Credits() unexpected error: %v", err)
	}
	if !result.OK {
		t.Fatal("OK = false, want true")
	}
	if string(result.Body) != `{"credits":120}` {
		t.Fatalf("Body = %s, want raw JSON passthrough", string(result.Body))
	}
}
