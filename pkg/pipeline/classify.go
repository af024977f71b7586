package pipeline

import (
	"context"
	"encoding/json"

	"github.com/malbeclabs/genbi/pkg/llm"
	"github.com/malbeclabs/genbi/pkg/profile"
)

type classifyResponse struct {
	Intent string          `json:"intent"`
	Slot   json.RawMessage `json:"slot"`
}

// Classify labels a question and extracts its entity slots. Output that cannot be
// parsed is treated as a normal search with no slots; a failed model call is
// returned as an error.
func (p *Pipeline) Classify(ctx context.Context, modelID, text string, prompts profile.PromptMap) (IntentResult, error) {
	if text == "" {
		return IntentResult{}, invalid(ErrEmptyQuestion)
	}

	response, err := p.complete(ctx, llm.PromptIntent, modelID, prompts, llm.PromptData{Question: text})
	if err != nil {
		return IntentResult{}, err
	}

	res, ok := parseClassifyResponse(response)
	if !ok {
		p.log.Info("pipeline: classify parse failed, defaulting to normal search")
	}
	return res, nil
}

func parseClassifyResponse(response string) (IntentResult, bool) {
	fallback := IntentResult{Intent: IntentNormal, Slots: []string{}}

	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return fallback, false
	}
	var parsed classifyResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return fallback, false
	}

	res := IntentResult{Intent: Intent(parsed.Intent), Slots: parseSlots(parsed.Slot)}
	if res.Intent == "" {
		res.Intent = IntentNormal
	}
	return res, true
}

// parseSlots accepts a list of entities, keeping only non-empty strings.
func parseSlots(raw json.RawMessage) []string {
	slots := []string{}
	if len(raw) == 0 {
		return slots
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return slots
	}
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			slots = append(slots, s)
		}
	}
	return slots
}
