// Package research builds an optional pre-session topic brief from an RSS
// feed: matching items are summarized from their descriptions, and linked
// articles are scraped for a first paragraph. Everything here is best-effort
// enrichment; a session starts fine without a brief.
package research

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	DefaultMaxItems  = 3
	summaryMaxRunes  = 400
	excerptMaxRunes  = 500
	articleMaxBytes  = 2 * 1024 * 1024
	userAgentDefault = "clearside/1.0 (+topic research)"
)

type Item struct {
	Title   string
	Link    string
	Summary string
	Excerpt string
}

type Client struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	logPrefix  string
}

func NewClient(httpClient *http.Client, logPrefix string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{httpClient: httpClient, parser: gofeed.NewParser(), logPrefix: logPrefix}
}

// BuildTopicBrief fetches the feed, keeps items matching the topic, and
// renders a short plain-text brief suitable for appending to a session's
// topic context.
func (c *Client) BuildTopicBrief(ctx context.Context, feedURL, topic string, maxItems int) (string, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	items, err := c.fetchMatching(ctx, feedURL, topic, maxItems)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Recent coverage:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- %s", it.Title)
		if it.Summary != "" {
			fmt.Fprintf(&b, " — %s", it.Summary)
		}
		b.WriteString("\n")
		if it.Excerpt != "" {
			fmt.Fprintf(&b, "  %s\n", it.Excerpt)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (c *Client) fetchMatching(ctx context.Context, feedURL, topic string, maxItems int) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentDefault)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed status=%d", resp.StatusCode)
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	words := topicWords(topic)
	out := make([]Item, 0, maxItems)
	for _, fi := range feed.Items {
		if fi == nil {
			continue
		}
		if !matches(fi, words) {
			continue
		}
		item := Item{
			Title:   strings.TrimSpace(fi.Title),
			Link:    strings.TrimSpace(fi.Link),
			Summary: clip(HTMLText(fi.Description), summaryMaxRunes),
		}
		if item.Link != "" {
			if excerpt, err := c.articleExcerpt(ctx, item.Link); err != nil {
				log.Printf("%s article fetch failed: link=%s err=%v", c.logPrefix, item.Link, err)
			} else {
				item.Excerpt = excerpt
			}
		}
		out = append(out, item)
		if len(out) >= maxItems {
			break
		}
	}
	return out, nil
}

// articleExcerpt pulls the first meaningful paragraph from a linked page.
func (c *Client) articleExcerpt(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgentDefault)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("article status=%d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(http.MaxBytesReader(nil, resp.Body, articleMaxBytes))
	if err != nil {
		return "", err
	}

	excerpt := ""
	doc.Find("article p, main p, p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		t := strings.TrimSpace(sel.Text())
		if len(t) < 80 {
			return true
		}
		excerpt = clip(t, excerptMaxRunes)
		return false
	})
	return excerpt, nil
}

func topicWords(topic string) []string {
	fields := strings.Fields(strings.ToLower(topic))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'")
		if len(f) >= 4 {
			out = append(out, f)
		}
	}
	return out
}

func matches(it *gofeed.Item, words []string) bool {
	if len(words) == 0 {
		return true
	}
	hay := strings.ToLower(it.Title + " " + it.Description)
	for _, w := range words {
		if strings.Contains(hay, w) {
			return true
		}
	}
	return false
}

func clip(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}
