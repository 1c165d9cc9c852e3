package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/llm"
)

func fakeCompletions(t *testing.T, content string, gotUser *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, m := range body.Messages {
			if m.Role == "user" && gotUser != nil {
				*gotUser = m.Content
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, content)
	}))
}

func testConfig(url string) llm.ChatConfig {
	return llm.ChatConfig{
		BaseURL:        url,
		APIKey:         "test-key",
		Model:          "test-model",
		MaxRetries:     1,
		RequestTimeout: 5 * time.Second,
	}
}

func TestExtractParsesFencedJSON(t *testing.T) {
	raw := "```json\n" + `{
		"new_topics": ["inference cost"],
		"claims": [{"claim": "smaller models suffice", "stance": "hypothesis"}],
		"agreements_with": ["Jamie"],
		"disagreements_with": [],
		"is_key_point": true,
		"topic_marker": "inference cost",
		"emotional_indicators": ["excitement"]
	}` + "\n```"

	var gotUser string
	srv := fakeCompletions(t, raw, &gotUser)
	defer srv.Close()

	c := New(srv.Client(), testConfig(srv.URL), llm.RetryOptions{MaxRetries: 1})
	ext, err := c.Extract(context.Background(), "I think smaller models suffice.", "Alex Rivera", []string{"Jamie Chen"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if len(ext.NewTopics) != 1 || ext.NewTopics[0] != "inference cost" {
		t.Fatalf("topics = %v", ext.NewTopics)
	}
	if len(ext.Claims) != 1 || ext.Claims[0].Stance != "hypothesis" {
		t.Fatalf("claims = %+v", ext.Claims)
	}
	if !ext.IsKeyPoint || ext.TopicMarker != "inference cost" {
		t.Fatalf("extraction = %+v", ext)
	}
	if len(ext.AgreementsWith) != 1 || ext.AgreementsWith[0] != "Jamie" {
		t.Fatalf("agreements = %v", ext.AgreementsWith)
	}

	if !strings.Contains(gotUser, "Speaker: Alex Rivera") {
		t.Fatalf("prompt missing speaker: %q", gotUser)
	}
	if !strings.Contains(gotUser, "Other participants: Jamie Chen") {
		t.Fatalf("prompt missing other participants: %q", gotUser)
	}
}

func TestExtractRejectsUnparseableOutput(t *testing.T) {
	srv := fakeCompletions(t, "I could not analyze that.", nil)
	defer srv.Close()

	c := New(srv.Client(), testConfig(srv.URL), llm.RetryOptions{MaxRetries: 1, InitialBackoff: time.Millisecond})
	if _, err := c.Extract(context.Background(), "x", "Alex", nil); err == nil {
		t.Fatal("expected an error for non-JSON output")
	}
}
