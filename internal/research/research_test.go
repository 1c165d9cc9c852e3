package research

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func feedXML(articleURL string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Tech Wire</title>
    <item>
      <title>Open models close the gap</title>
      <link>%s</link>
      <description>&lt;p&gt;New open models are closing the benchmark gap.&lt;/p&gt;</description>
    </item>
    <item>
      <title>Gardening tips for spring</title>
      <link>%s</link>
      <description>Tomatoes and herbs.</description>
    </item>
  </channel>
</rss>`, articleURL, articleURL)
}

const articleHTML = `<html><body>
<nav><p>Home</p></nav>
<article>
<p>short</p>
<p>Open-weight models released this quarter now match proprietary systems on several public benchmarks, according to three independent evaluations.</p>
</article>
</body></html>`

func TestBuildTopicBrief(t *testing.T) {
	article := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer article.Close()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "clearside") {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML(article.URL))
	}))
	defer feed.Close()

	c := NewClient(nil, "[test]")
	brief, err := c.BuildTopicBrief(context.Background(), feed.URL, "open models", 3)
	if err != nil {
		t.Fatalf("build brief: %v", err)
	}
	if !strings.Contains(brief, "Open models close the gap") {
		t.Fatalf("brief missing matched item title: %q", brief)
	}
	if strings.Contains(brief, "Gardening") {
		t.Fatalf("unrelated item leaked into brief: %q", brief)
	}
	if !strings.Contains(brief, "closing the benchmark gap") {
		t.Fatalf("brief missing summary text: %q", brief)
	}
	if !strings.Contains(brief, "Open-weight models released this quarter") {
		t.Fatalf("brief missing article excerpt: %q", brief)
	}
	if strings.Contains(brief, "<p>") {
		t.Fatalf("html tags leaked into brief: %q", brief)
	}
}

func TestBuildTopicBriefNoMatches(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML("http://127.0.0.1:1/unused"))
	}))
	defer feed.Close()

	c := NewClient(nil, "[test]")
	brief, err := c.BuildTopicBrief(context.Background(), feed.URL, "quantum annealing hardware", 3)
	if err != nil {
		t.Fatalf("build brief: %v", err)
	}
	if brief != "" {
		t.Fatalf("expected empty brief, got %q", brief)
	}
}

func TestBuildTopicBriefFeedError(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer feed.Close()

	c := NewClient(nil, "[test]")
	if _, err := c.BuildTopicBrief(context.Background(), feed.URL, "open models", 3); err == nil {
		t.Fatal("expected an error for a failing feed")
	}
}

func TestArticleFailureIsNonFatal(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML("http://127.0.0.1:1/dead"))
	}))
	defer feed.Close()

	c := NewClient(nil, "[test]")
	brief, err := c.BuildTopicBrief(context.Background(), feed.URL, "open models", 3)
	if err != nil {
		t.Fatalf("build brief: %v", err)
	}
	if !strings.Contains(brief, "Open models close the gap") {
		t.Fatalf("item dropped because its article was unreachable: %q", brief)
	}
}

func TestTopicWords(t *testing.T) {
	got := topicWords("The Future of AI regulation, explained!")
	want := []string{"future", "regulation", "explained"}
	if len(got) != len(want) {
		t.Fatalf("words = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("words = %v, want %v", got, want)
		}
	}
}

func TestClip(t *testing.T) {
	if got := clip("  a   b\n c ", 100); got != "a b c" {
		t.Fatalf("clip normalization = %q", got)
	}
	long := strings.Repeat("x", 20)
	if got := clip(long, 10); got != "xxxxxxxxxx…" {
		t.Fatalf("clip truncation = %q", got)
	}
}
