// Package extract implements the extraction capability: one LLM call per
// finalized utterance returning structured facts for the context board.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openaigo "github.com/openai/openai-go/v3"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/llm"
)

type Client struct {
	httpClient *http.Client
	cfg        llm.ChatConfig
	retry      llm.RetryOptions
}

func New(httpClient *http.Client, cfg llm.ChatConfig, retry llm.RetryOptions) *Client {
	if httpClient == nil {
		httpClient = llm.NewHTTPClient()
	}
	return &Client{httpClient: httpClient, cfg: cfg, retry: retry}
}

const extractSystem = `You extract structured facts from one podcast utterance.
Return ONLY a JSON object:
{
  "new_topics": ["..."],
  "claims": [{"claim": "...", "stance": "assertion"|"hypothesis"|"question"}],
  "agreements_with": ["speaker name"],
  "disagreements_with": ["speaker name"],
  "is_key_point": bool,
  "topic_marker": "current topic or empty",
  "emotional_indicators": ["agreement"|"concession"|"frustration"|"excitement"]
}
Only list agreements/disagreements explicitly directed at another named speaker.`

func (c *Client) Extract(ctx context.Context, text, speakerName string, otherNames []string) (board.Extraction, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Speaker: %s\n", speakerName)
	if len(otherNames) > 0 {
		fmt.Fprintf(&b, "Other participants: %s\n", strings.Join(otherNames, ", "))
	}
	b.WriteString("Utterance:\n")
	b.WriteString(strings.TrimSpace(text))

	var out board.Extraction
	err := llm.Retry(ctx, c.retry, func() error {
		content, _, err := llm.ChatCompletion(ctx, c.httpClient, c.cfg, []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(extractSystem),
			openaigo.UserMessage(b.String()),
		})
		if err != nil {
			return err
		}
		var parsed board.Extraction
		if err := json.Unmarshal([]byte(llm.ExtractJSON(content)), &parsed); err != nil {
			return fmt.Errorf("extraction invalid json: %w (raw=%s)", err, content)
		}
		out = parsed
		return nil
	})
	if err != nil {
		return board.Extraction{}, err
	}
	return out, nil
}
