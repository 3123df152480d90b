package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// maxCommitMessages bounds how many change descriptions a notification may
// carry.
const maxCommitMessages = 5

// RecentCommitMessages returns the messages of commits pushed to the repo's
// default branch since the given time, newest first. It reads the public
// commits Atom feed rather than the REST API, so it works without touching
// the API rate limit; the caller degrades gracefully when history is
// unavailable.
func (c *Client) RecentCommitMessages(ctx context.Context, fullName string, since time.Time) ([]string, error) {
	feedURL := fmt.Sprintf("%s/%s/commits.atom", c.FeedBaseURL, fullName)

	parser := gofeed.NewParser()
	parser.Client = c.client

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing commits feed for %s: %w", fullName, err)
	}

	var messages []string
	for _, item := range feed.Items {
		if len(messages) >= maxCommitMessages {
			break
		}

		when := item.UpdatedParsed
		if when == nil {
			when = item.PublishedParsed
		}
		if when != nil && !since.IsZero() && !when.After(since) {
			continue
		}

		// Entry titles are the first line of the commit message.
		message := strings.TrimSpace(item.Title)
		if message == "" {
			continue
		}
		messages = append(messages, message)
	}

	return messages, nil
}
