package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func starredJSON(id int64, fullName string) string {
	return fmt.Sprintf(`{
		"starred_at": "2024-06-01T00:00:00Z",
		"repo": {
			"id": %d,
			"name": "repo",
			"full_name": %q,
			"owner": {"login": "owner", "avatar_url": "https://avatars.example/1"},
			"html_url": "https://github.com/%s",
			"description": "desc",
			"language": "Go",
			"stargazers_count": 7,
			"pushed_at": "2025-01-01T00:00:00Z"
		}
	}`, id, fullName, fullName)
}

// newStarsServer serves a paginated starred collection: pageItems[i] is the
// JSON array body of page i+1 and the Link header advertises the last page.
func newStarsServer(t *testing.T, pageItems []string) (*httptest.Server, *Client) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "token tok" {
			t.Errorf("Authorization = %q", auth)
		}

		if len(pageItems) > 1 {
			w.Header().Set("Link", fmt.Sprintf(
				`<%s/user/starred?per_page=100&page=%d>; rel="last"`, r.Host, len(pageItems)))
		}
		if r.Method == http.MethodHead {
			return
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		if page > len(pageItems) {
			fmt.Fprint(w, "[]")
			return
		}
		fmt.Fprint(w, pageItems[page-1])
	}))
	t.Cleanup(server.Close)

	client := NewClient("tok", server.Client())
	client.BaseURL = server.URL
	return server, client
}

func TestFetchAllStarred_SinglePage(t *testing.T) {
	_, client := newStarsServer(t, []string{
		"[" + starredJSON(1, "owner/one") + "," + starredJSON(2, "owner/two") + "]",
	})

	repos, err := client.FetchAllStarred(context.Background())
	if err != nil {
		t.Fatalf("FetchAllStarred: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("got %d repos, want 2", len(repos))
	}
	if repos[0].ID != 1 || repos[0].FullName != "owner/one" || repos[0].StargazersCount != 7 {
		t.Errorf("repo[0] = %+v", repos[0])
	}
	if repos[0].StarredAt != "2024-06-01T00:00:00Z" {
		t.Errorf("starred_at not captured: %q", repos[0].StarredAt)
	}
}

func TestFetchAllStarred_PaginatesInOrder(t *testing.T) {
	_, client := newStarsServer(t, []string{
		"[" + starredJSON(1, "owner/one") + "]",
		"[" + starredJSON(2, "owner/two") + "]",
		"[" + starredJSON(3, "owner/three") + "]",
	})

	repos, err := client.FetchAllStarred(context.Background())
	if err != nil {
		t.Fatalf("FetchAllStarred: %v", err)
	}
	if len(repos) != 3 {
		t.Fatalf("got %d repos, want 3", len(repos))
	}
	// Concurrent page fetches must not disturb collection order.
	for i, want := range []int64{1, 2, 3} {
		if repos[i].ID != want {
			t.Errorf("repos[%d].ID = %d, want %d", i, repos[i].ID, want)
		}
	}
}

func TestFetchAllStarred_SkipsRecordsWithoutID(t *testing.T) {
	_, client := newStarsServer(t, []string{
		`[` + starredJSON(1, "owner/one") + `, {"starred_at": "2024-06-02T00:00:00Z", "repo": {}}]`,
	})

	repos, err := client.FetchAllStarred(context.Background())
	if err != nil {
		t.Fatalf("FetchAllStarred: %v", err)
	}
	if len(repos) != 1 || repos[0].ID != 1 {
		t.Fatalf("repos = %+v, want only the valid record", repos)
	}
}

func TestFetchAllStarred_InvalidToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient("tok", server.Client())
	client.BaseURL = server.URL

	_, err := client.FetchAllStarred(context.Background())
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestFetchAllStarred_ServerFaultRetriedThenUnavailable(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient("tok", server.Client())
	client.BaseURL = server.URL

	_, err := client.FetchAllStarred(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if got := hits.Load(); got != maxAttempts {
		t.Errorf("attempts = %d, want %d", got, maxAttempts)
	}
}

func TestLastPagePattern(t *testing.T) {
	tests := []struct {
		name string
		link string
		want string
	}{
		{
			"github style",
			`<https://api.github.com/user/starred?per_page=100&page=2>; rel="next", <https://api.github.com/user/starred?per_page=100&page=7>; rel="last"`,
			"7",
		},
		{"no last", `<https://api.github.com/user/starred?page=2>; rel="next"`, ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := lastPagePattern.FindStringSubmatch(tt.link)
			got := ""
			if m != nil {
				got = m[1]
			}
			if got != tt.want {
				t.Errorf("pattern on %q = %q, want %q", tt.link, got, tt.want)
			}
		})
	}
}

func TestFetchReadme(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("# Hello\n\nWorld"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/owner/has/readme":
			fmt.Fprintf(w, `{"sha": "abc123", "content": %q, "encoding": "base64"}`, content)
		case "/repos/owner/none/readme":
			w.WriteHeader(http.StatusNotFound)
		case "/repos/owner/secret/readme":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := NewClient("tok", server.Client())
	client.BaseURL = server.URL
	ctx := context.Background()

	got, sha, err := client.FetchReadme(ctx, "owner/has")
	if err != nil {
		t.Fatalf("FetchReadme: %v", err)
	}
	if got != "# Hello\n\nWorld" || sha != "abc123" {
		t.Errorf("got %q / %q", got, sha)
	}

	got, sha, err = client.FetchReadme(ctx, "owner/none")
	if err != nil || got != "" || sha != "" {
		t.Errorf("missing readme: got %q / %q / %v, want empty and nil", got, sha, err)
	}

	if _, _, err = client.FetchReadme(ctx, "owner/secret"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}

	if _, _, err = client.FetchReadme(ctx, "owner/broken"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestRecentCommitMessages(t *testing.T) {
	const feed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Recent Commits</title>
  <entry>
    <id>tag:github.com,2008:Grit::Commit/1</id>
    <title>newest change</title>
    <updated>2025-02-01T12:00:00Z</updated>
  </entry>
  <entry>
    <id>tag:github.com,2008:Grit::Commit/2</id>
    <title>older change</title>
    <updated>2025-01-01T12:00:00Z</updated>
  </entry>
  <entry>
    <id>tag:github.com,2008:Grit::Commit/3</id>
    <title>ancient change</title>
    <updated>2024-01-01T12:00:00Z</updated>
  </entry>
</feed>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/owner/tool/commits.atom" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, feed)
	}))
	defer server.Close()

	client := NewClient("tok", server.Client())
	client.FeedBaseURL = server.URL

	since := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	messages, err := client.RecentCommitMessages(context.Background(), "owner/tool", since)
	if err != nil {
		t.Fatalf("RecentCommitMessages: %v", err)
	}
	want := []string{"newest change", "older change"}
	if len(messages) != len(want) {
		t.Fatalf("messages = %v, want %v", messages, want)
	}
	for i := range want {
		if messages[i] != want[i] {
			t.Errorf("messages[%d] = %q, want %q", i, messages[i], want[i])
		}
	}
}

func TestRecentCommitMessages_FeedUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient("tok", server.Client())
	client.FeedBaseURL = server.URL

	if _, err := client.RecentCommitMessages(context.Background(), "owner/tool", time.Time{}); err == nil {
		t.Fatal("expected an error for an unavailable feed")
	}
}
