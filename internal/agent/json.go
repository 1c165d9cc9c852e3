package agent

import (
	"encoding/json"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/llm"
)

func unmarshalJSON(raw string, v any) error {
	return json.Unmarshal([]byte(llm.ExtractJSON(raw)), v)
}
