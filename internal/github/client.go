// Package github wraps all direct interaction with the GitHub API: fetching
// the full starred collection with pagination and retry, retrieving README
// content for the AI pipeline, and reading recent commit messages for
// notification enrichment.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/xy2yp/stargazer/internal/models"
)

const (
	defaultBaseURL  = "https://api.github.com"
	defaultFeedURL  = "https://github.com"
	starsPerPage    = 100
	maxPageFetchers = 10
	httpTimeout     = 30 * time.Second

	// maxAttempts bounds retries for server-side and network faults.
	// Client errors are never retried.
	maxAttempts = 3
)

// Client is a GitHub API client scoped to one access token.
type Client struct {
	// BaseURL is the API root. FeedBaseURL is the HTML root serving the
	// public Atom feeds. Both default to the official endpoints.
	BaseURL     string
	FeedBaseURL string

	token  string
	client *http.Client
}

// NewClient creates a Client for the given access token. A nil httpClient
// falls back to a default with a 30-second timeout; pass NewHTTPClient's
// result to route requests through a proxy.
func NewClient(token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	return &Client{
		BaseURL:     defaultBaseURL,
		FeedBaseURL: defaultFeedURL,
		token:       token,
		client:      httpClient,
	}
}

// NewHTTPClient builds an HTTP client with the standard timeout and an
// optional outbound proxy. An empty proxyURL yields a direct client.
func NewHTTPClient(proxyURL string) *http.Client {
	client := &http.Client{Timeout: httpTimeout}
	if proxyURL == "" {
		return client
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		slog.Warn("ignoring unparsable proxy url", "url", proxyURL, "error", err)
		return client
	}

	client.Transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	return client
}

// starredItem is one entry of the /user/starred response with the
// star+json media type.
type starredItem struct {
	StarredAt string `json:"starred_at"`
	Repo      struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Full  string `json:"full_name"`
		Owner struct {
			Login     string `json:"login"`
			AvatarURL string `json:"avatar_url"`
		} `json:"owner"`
		HTMLURL         string `json:"html_url"`
		Description     string `json:"description"`
		Language        string `json:"language"`
		StargazersCount int    `json:"stargazers_count"`
		PushedAt        string `json:"pushed_at"`
	} `json:"repo"`
}

// FetchAllStarred retrieves the user's complete starred collection. It
// probes the total page count with a metadata-only request, fetches all
// pages concurrently, and normalizes each record. Entries without a repo id
// are skipped with a warning rather than failing the whole fetch.
func (c *Client) FetchAllStarred(ctx context.Context) ([]models.Repo, error) {
	totalPages, err := c.probeTotalPages(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("fetching starred repos", "pages", totalPages)

	pages := make([][]starredItem, totalPages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPageFetchers)
	for page := 1; page <= totalPages; page++ {
		g.Go(func() error {
			items, err := c.fetchStarsPage(gctx, page)
			if err != nil {
				return err
			}
			pages[page-1] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var repos []models.Repo
	for _, items := range pages {
		for _, item := range items {
			if item.Repo.ID == 0 {
				slog.Warn("skipping starred entry without a repo id", "starred_at", item.StarredAt)
				continue
			}
			repos = append(repos, models.Repo{
				ID:              item.Repo.ID,
				Name:            item.Repo.Name,
				FullName:        item.Repo.Full,
				OwnerLogin:      item.Repo.Owner.Login,
				OwnerAvatarURL:  item.Repo.Owner.AvatarURL,
				HTMLURL:         item.Repo.HTMLURL,
				Description:     item.Repo.Description,
				Language:        item.Repo.Language,
				StargazersCount: item.Repo.StargazersCount,
				PushedAt:        item.Repo.PushedAt,
				StarredAt:       item.StarredAt,
			})
		}
	}

	slog.Info("fetched starred repos", "count", len(repos))
	return repos, nil
}

var lastPagePattern = regexp.MustCompile(`[?&]page=(\d+)[^>]*>;\s*rel="last"`)

// probeTotalPages issues a HEAD request and reads the pagination Link header
// to determine how many pages the starred collection spans.
func (c *Client) probeTotalPages(ctx context.Context) (int, error) {
	resp, err := c.doWithRetry(ctx, http.MethodHead,
		fmt.Sprintf("%s/user/starred?per_page=%d", c.BaseURL, starsPerPage))
	if err != nil {
		return 0, fmt.Errorf("probing starred page count: %w", err)
	}
	defer resp.Body.Close()

	link := resp.Header.Get("Link")
	if link == "" {
		return 1, nil
	}

	m := lastPagePattern.FindStringSubmatch(link)
	if m == nil {
		return 1, nil
	}
	pages, err := strconv.Atoi(m[1])
	if err != nil || pages < 1 {
		return 1, nil
	}
	return pages, nil
}

// fetchStarsPage retrieves one page of the starred collection.
func (c *Client) fetchStarsPage(ctx context.Context, page int) ([]starredItem, error) {
	resp, err := c.doWithRetry(ctx, http.MethodGet,
		fmt.Sprintf("%s/user/starred?per_page=%d&page=%d", c.BaseURL, starsPerPage, page))
	if err != nil {
		return nil, fmt.Errorf("fetching starred page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading starred page %d: %w", page, err)
	}

	var items []starredItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decoding starred page %d: %w", page, err)
	}
	return items, nil
}

// doWithRetry performs one authenticated request. Invalid credentials are
// fatal and never retried; other client errors propagate immediately;
// server-side and network faults are retried with exponential backoff up to
// maxAttempts, after which ErrUnavailable surfaces to the caller.
func (c *Client) doWithRetry(ctx context.Context, method, rawURL string) (*http.Response, error) {
	var resp *http.Response

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Authorization", "token "+c.token)
		req.Header.Set("Accept", "application/vnd.github.star+json")

		r, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		switch {
		case r.StatusCode == http.StatusUnauthorized:
			r.Body.Close()
			return backoff.Permanent(ErrInvalidToken)
		case r.StatusCode >= 500:
			r.Body.Close()
			return fmt.Errorf("%w: status %d", ErrUnavailable, r.StatusCode)
		case r.StatusCode >= 400:
			r.Body.Close()
			return backoff.Permanent(fmt.Errorf("github responded with status %d", r.StatusCode))
		}

		resp = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)

	notify := func(err error, wait time.Duration) {
		slog.Warn("retrying github request", "method", method, "wait", wait.String(), "error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return resp, nil
}
