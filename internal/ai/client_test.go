package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func chatReply(content string) string {
	return fmt.Sprintf(`{"choices": [{"message": {"content": %q}}]}`, content)
}

// newTestClient points a Client at a test server with the retry delays
// collapsed so rate-limit tests finish instantly.
func newTestClient(serverURL string) *Client {
	c := NewClient(serverURL, "key", "test-model", "en")
	c.retrySchedule = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return c
}

func TestClient_Summarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("Authorization = %q", auth)
		}
		fmt.Fprint(w, chatReply("  A project that does useful things.  "))
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).Summarize(context.Background(), "owner/tool", "readme text")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "A project that does useful things." {
		t.Errorf("summary = %q, want trimmed reply", got)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server fault", http.StatusBadGateway, ErrEndpoint},
		{"other client error", http.StatusBadRequest, ErrEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Summarize(context.Background(), "owner/tool", "readme")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_NetworkFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	_, err := newTestClient(server.URL).Summarize(context.Background(), "owner/tool", "readme")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
}

func TestClient_ShortSummaryIsEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("短"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Summarize(context.Background(), "owner/tool", "readme")
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("err = %v, want ErrEmptyContent", err)
	}
}

func TestClient_SummaryTruncatedAtRunes(t *testing.T) {
	long := strings.Repeat("这是一个很长的摘要", 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply(long))
	}))
	defer server.Close()

	got, err := newTestClient(server.URL).Summarize(context.Background(), "owner/tool", "readme")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if n := len([]rune(got)); n != maxSummaryChars {
		t.Errorf("summary length = %d runes, want %d", n, maxSummaryChars)
	}
}

func TestSummarizeWithRetry_ExhaustsScheduleOnRateLimit(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SummarizeWithRetry(context.Background(), "owner/tool", "readme")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want one per schedule slot", got)
	}
}

func TestSummarizeWithRetry_NonRateLimitNotRetried(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).SummarizeWithRetry(context.Background(), "owner/tool", "readme")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("err = %v, want ErrInvalidAPIKey", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("hello", 10); got != "hello" {
		t.Errorf("short input changed: %q", got)
	}
	if got := truncateRunes("中文字符串测试", 3); got != "中文字" {
		t.Errorf("truncated = %q, want 3 runes intact", got)
	}
}
