package pipeline

import (
	"strings"
	"testing"

	"github.com/malbeclabs/genbi/pkg/executor"
	"github.com/stretchr/testify/require"
)

func TestPipeline_ExtractSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain", "<sql>SELECT 1</sql>", "SELECT 1"},
		{"surrounding text", "Here you go:\n<sql>\nSELECT a\nFROM t\n</sql>\nThis selects a.", "SELECT a\nFROM t"},
		{"first block wins", "<sql>SELECT 1</sql> or <sql>SELECT 2</sql>", "SELECT 1"},
		{"missing end", "<sql>SELECT 1", ""},
		{"missing start", "SELECT 1</sql>", ""},
		{"end before start", "</sql>SELECT 1<sql>", ""},
		{"no markers", "SELECT 1", ""},
		{"empty block", "<sql></sql>", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ExtractSQL(tt.response))
		})
	}
}

func FuzzExtractSQL(f *testing.F) {
	f.Add("SELECT 1", "prefix ", " suffix")
	f.Add("  SELECT *\nFROM t  ", "", "")
	f.Add("", "<sq", "l>")
	f.Add("a < b AND c > d", "text", "</sq")

	f.Fuzz(func(t *testing.T, sql, prefix, suffix string) {
		// Never panics on arbitrary input.
		_ = ExtractSQL(prefix + sql + suffix)

		if strings.Contains(sql, sqlEndMarker) || strings.Contains(prefix, sqlStartMarker) {
			return
		}
		got := ExtractSQL(prefix + sqlStartMarker + sql + sqlEndMarker + suffix)
		if got != strings.TrimSpace(sql) {
			t.Fatalf("ExtractSQL round trip: got %q, want %q", got, strings.TrimSpace(sql))
		}
	})
}

func TestPipeline_ExplainText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Counts users per day.", ExplainText("<sql>SELECT 1</sql>\nCounts users per day."))
	require.Equal(t, "Intro.\n\nOutro.", ExplainText("Intro.\n<sql>SELECT 1</sql>\nOutro."))
	require.Equal(t, "no sql", ExplainText(" no sql "))
}

func TestPipeline_ParseTaskList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{
			name:     "object keeps key order",
			response: `{"task_2": "second", "task_1": "first", "task_10": "third"}`,
			want:     []string{"second", "first", "third"},
		},
		{
			name:     "fenced object with prose",
			response: "Plan:\n```json\n{\"task_1\": \"sales by month\", \"task_2\": \"orders by month\"}\n```\nDone.",
			want:     []string{"sales by month", "orders by month"},
		},
		{
			name:     "array",
			response: `Tasks: ["a", "b", 3, ""]`,
			want:     []string{"a", "b"},
		},
		{
			name:     "non-string values skipped",
			response: `{"task_1": {"q": "x"}, "task_2": " y "}`,
			want:     []string{"y"},
		},
		{name: "garbage", response: "I could not plan this.", want: []string{}},
		{name: "truncated", response: `{"task_1": "a", "task_2": `, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, parseTaskList(tt.response))
		})
	}
}

func TestPipeline_ParseClassifyResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     IntentResult
		wantOK   bool
	}{
		{
			name:     "intent and slots",
			response: `{"intent": "normal_search", "slot": ["shoes", "", 3, "berlin"]}`,
			want:     IntentResult{Intent: IntentNormal, Slots: []string{"shoes", "berlin"}},
			wantOK:   true,
		},
		{
			name:     "missing intent",
			response: `{"slot": ["x"]}`,
			want:     IntentResult{Intent: IntentNormal, Slots: []string{"x"}},
			wantOK:   true,
		},
		{
			name:     "unknown label kept",
			response: "```json\n{\"intent\": \"other\"}\n```",
			want:     IntentResult{Intent: "other", Slots: []string{}},
			wantOK:   true,
		},
		{
			name:     "not json",
			response: "reject_search",
			want:     IntentResult{Intent: IntentNormal, Slots: []string{}},
		},
		{
			name:     "slot not a list",
			response: `{"intent": "agent_search", "slot": "shoes"}`,
			want:     IntentResult{Intent: IntentAgent, Slots: []string{}},
			wantOK:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseClassifyResponse(tt.response)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPipeline_ChooseVisualization(t *testing.T) {
	t.Parallel()

	result := executor.Result{
		StatusCode: executor.StatusOK,
		Columns:    []string{"month", "region", "sales"},
		Rows:       [][]any{{"2024-01", "north", 10}, {"2024-02", "north", 12}},
	}
	table := result.Table()

	tests := []struct {
		name     string
		response string
		wantType string
		wantData [][]any
	}{
		{
			name:     "line chart",
			response: `{"show_type": "line", "columns": ["month", "sales"]}`,
			wantType: ShowTypeLine,
			wantData: [][]any{{"month", "sales"}, {"2024-01", 10}, {"2024-02", 12}},
		},
		{
			name:     "case insensitive type",
			response: `{"show_type": "Pie", "columns": ["region", "sales"]}`,
			wantType: ShowTypePie,
			wantData: [][]any{{"region", "sales"}, {"north", 10}, {"north", 12}},
		},
		{name: "table", response: `{"show_type": "table", "columns": []}`, wantType: ShowTypeTable, wantData: table},
		{name: "unknown type", response: `{"show_type": "scatter", "columns": ["month", "sales"]}`, wantType: ShowTypeTable, wantData: table},
		{name: "unknown column", response: `{"show_type": "bar", "columns": ["month", "profit"]}`, wantType: ShowTypeTable, wantData: table},
		{name: "one column", response: `{"show_type": "bar", "columns": ["sales"]}`, wantType: ShowTypeTable, wantData: table},
		{name: "not json", response: "bar chart", wantType: ShowTypeTable, wantData: table},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotType, gotData := chooseVisualization(tt.response, result)
			require.Equal(t, tt.wantType, gotType)
			require.Equal(t, tt.wantData, gotData)
		})
	}
}

func TestPipeline_ParseSuggestions(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a?", "b?"}, ParseSuggestions("[generate]a?\n[generate] b? "))
	require.Equal(t, []string{}, ParseSuggestions(""))
	require.Equal(t, []string{"no marker"}, ParseSuggestions("no marker"))
}
