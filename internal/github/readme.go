package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// readmeResponse is the JSON body of /repos/{full_name}/readme. The content
// arrives base64-encoded with embedded newlines.
type readmeResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// FetchReadme retrieves the repo's README content and its blob SHA in a
// single request. A repo without a README is not an error: it returns empty
// content and an empty SHA. The SHA serves as the content revision marker
// the AI pipeline uses to detect README changes.
func (c *Client) FetchReadme(ctx context.Context, fullName string) (content, sha string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/readme", c.BaseURL, fullName), nil)
	if err != nil {
		return "", "", fmt.Errorf("creating readme request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: fetching readme for %s: %v", ErrUnavailable, fullName, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decoding
	case http.StatusNotFound:
		slog.Info("repo has no readme", "repo", fullName)
		return "", "", nil
	case http.StatusUnauthorized:
		return "", "", ErrInvalidToken
	default:
		return "", "", fmt.Errorf("%w: readme request for %s returned status %d",
			ErrUnavailable, fullName, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("%w: reading readme body for %s: %v", ErrUnavailable, fullName, err)
	}

	var decoded readmeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", "", fmt.Errorf("decoding readme response for %s: %w", fullName, err)
	}

	if decoded.Encoding == "base64" && decoded.Content != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(decoded.Content, "\n", ""))
		if err != nil {
			return "", "", fmt.Errorf("decoding readme content for %s: %w", fullName, err)
		}
		return string(raw), decoded.SHA, nil
	}

	return decoded.Content, decoded.SHA, nil
}
