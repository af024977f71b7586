package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/malbeclabs/genbi/pkg/executor"
	"github.com/malbeclabs/genbi/pkg/llm"
	"github.com/malbeclabs/genbi/pkg/profile"
)

// AnalyzeMode picks the summary prompt.
type AnalyzeMode string

const (
	ModeQuery AnalyzeMode = "query"
	ModeAgent AnalyzeMode = "agent"
)

// visualizationSampleRows is how many rows the model sees when picking a chart.
const visualizationSampleRows = 5

// Analyze summarizes result data for a question. In agent mode the data is the
// list of sub-question results.
func (p *Pipeline) Analyze(ctx context.Context, modelID string, prompts profile.PromptMap, question, data string, mode AnalyzeMode) (string, error) {
	name := llm.PromptDataSummary
	if mode == ModeAgent {
		name = llm.PromptAgentAnalyse
	}
	text, err := p.complete(ctx, name, modelID, prompts, llm.PromptData{Question: question, Data: data})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

type visualizationResponse struct {
	ShowType string   `json:"show_type"`
	Columns  []string `json:"columns"`
}

// RecommendVisualization asks the model how to display a result and returns the
// display type with the header and rows to plot. A chart plots two columns; any
// answer that does not name a known type and two existing columns falls back to a
// table of the full result.
func (p *Pipeline) RecommendVisualization(ctx context.Context, modelID, question string, result executor.Result, prompts profile.PromptMap) (string, [][]any, error) {
	response, err := p.complete(ctx, llm.PromptDataVisualization, modelID, prompts, llm.PromptData{
		Question: question,
		Data:     result.Format(visualizationSampleRows),
	})
	if err != nil {
		return "", nil, err
	}
	showType, data := chooseVisualization(response, result)
	return showType, data, nil
}

func chooseVisualization(response string, result executor.Result) (string, [][]any) {
	table := result.Table()

	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return ShowTypeTable, table
	}
	var parsed visualizationResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return ShowTypeTable, table
	}

	showType := strings.ToLower(strings.TrimSpace(parsed.ShowType))
	switch showType {
	case ShowTypeBar, ShowTypeLine, ShowTypePie:
	default:
		return ShowTypeTable, table
	}
	if len(parsed.Columns) != 2 {
		return ShowTypeTable, table
	}
	x := slices.Index(result.Columns, parsed.Columns[0])
	y := slices.Index(result.Columns, parsed.Columns[1])
	if x == -1 || y == -1 || x == y {
		return ShowTypeTable, table
	}

	data := make([][]any, 0, len(result.Rows)+1)
	data = append(data, []any{result.Columns[x], result.Columns[y]})
	for _, row := range result.Rows {
		if len(row) <= max(x, y) {
			return ShowTypeTable, table
		}
		data = append(data, []any{row[x], row[y]})
	}
	return showType, data
}

// Knowledge answers a question that needs no data.
func (p *Pipeline) Knowledge(ctx context.Context, modelID, question string, prompts profile.PromptMap) (string, error) {
	text, err := p.complete(ctx, llm.PromptKnowledge, modelID, prompts, llm.PromptData{Question: question})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// suggestionMarker prefixes each suggested question in the model output.
const suggestionMarker = "[generate]"

// Suggest returns follow-up questions for a question.
func (p *Pipeline) Suggest(ctx context.Context, modelID, question string, prompts profile.PromptMap) ([]string, error) {
	text, err := p.complete(ctx, llm.PromptSuggestion, modelID, prompts, llm.PromptData{Question: question})
	if err != nil {
		return nil, fmt.Errorf("failed to generate suggestions: %w", err)
	}
	return ParseSuggestions(text), nil
}

// ParseSuggestions splits model output on the [generate] marker, trimming each
// part and dropping empty ones.
func ParseSuggestions(text string) []string {
	suggestions := []string{}
	for _, part := range strings.Split(text, suggestionMarker) {
		if s := strings.TrimSpace(part); s != "" {
			suggestions = append(suggestions, s)
		}
	}
	return suggestions
}
