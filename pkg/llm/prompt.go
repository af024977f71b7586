package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/malbeclabs/genbi/pkg/llm/prompts"
	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/malbeclabs/genbi/pkg/retrieval"
)

// Prompt names, also the keys of a profile's prompt map.
const (
	PromptIntent            = "intent"
	PromptText2SQL          = "text2sql"
	PromptKnowledge         = "knowledge"
	PromptAgentTask         = "agent"
	PromptDataSummary       = "data_summary"
	PromptAgentAnalyse      = "agent_analyse"
	PromptDataVisualization = "data_visualization"
	PromptSuggestion        = "suggestion"
)

var promptFiles = map[string]string{
	PromptIntent:            "INTENT",
	PromptText2SQL:          "TEXT2SQL",
	PromptKnowledge:         "KNOWLEDGE",
	PromptAgentTask:         "AGENT",
	PromptDataSummary:       "DATA_SUMMARY",
	PromptAgentAnalyse:      "AGENT_ANALYSE",
	PromptDataVisualization: "DATA_VISUALIZATION",
	PromptSuggestion:        "SUGGESTION",
}

// PromptData is the template data shared by every prompt.
type PromptData struct {
	Question    string
	TablesInfo  string
	Hints       string
	Dialect     string
	Examples    []retrieval.Example
	NERExamples []retrieval.Example
	COTExamples []retrieval.Example
	Data        string
}

var templateFuncs = template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

type promptPair struct {
	system string
	user   string
}

// Prompts holds the embedded default templates.
type Prompts struct {
	defaults map[string]promptPair
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{defaults: make(map[string]promptPair, len(promptFiles))}
	for name, file := range promptFiles {
		system, err := loadPrompt(file + "_SYSTEM.md")
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		user, err := loadPrompt(file + "_USER.md")
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		if _, err := parseTemplate(system); err != nil {
			return nil, fmt.Errorf("invalid %s system template: %w", file, err)
		}
		if _, err := parseTemplate(user); err != nil {
			return nil, fmt.Errorf("invalid %s user template: %w", file, err)
		}
		p.defaults[name] = promptPair{system: system, user: user}
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Render returns the system and user prompts for name, preferring the profile's
// overrides where set.
func (p *Prompts) Render(name string, overrides profile.PromptMap, data PromptData) (string, string, error) {
	pair, ok := p.defaults[name]
	if !ok {
		return "", "", fmt.Errorf("unknown prompt %q", name)
	}
	if o, ok := overrides[name]; ok {
		if o.System != "" {
			pair.system = o.System
		}
		if o.User != "" {
			pair.user = o.User
		}
	}
	system, err := renderTemplate(pair.system, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render %s system prompt: %w", name, err)
	}
	user, err := renderTemplate(pair.user, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to render %s user prompt: %w", name, err)
	}
	return system, user, nil
}

func parseTemplate(content string) (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).Parse(content)
}

func renderTemplate(content string, data any) (string, error) {
	tmpl, err := parseTemplate(content)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
