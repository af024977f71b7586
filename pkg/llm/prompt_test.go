package llm

import (
	"strings"
	"testing"

	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/malbeclabs/genbi/pkg/retrieval"
	"github.com/stretchr/testify/require"
)

func TestLLM_Prompts_LoadAll(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts()
	require.NoError(t, err)
	for name := range promptFiles {
		system, user, err := p.Render(name, nil, PromptData{Question: "q", TablesInfo: "t", Dialect: "postgresql"})
		require.NoError(t, err, name)
		require.NotEmpty(t, system, name)
		require.NotEmpty(t, user, name)
	}
}

func TestLLM_Prompts_Text2SQLIncludesExamplesInOrder(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts()
	require.NoError(t, err)

	system, user, err := p.Render(PromptText2SQL, nil, PromptData{
		Question:   "top 10 products by purchase count",
		TablesInfo: "CREATE TABLE items (...)",
		Hints:      "price is USD",
		Dialect:    "mysql",
		Examples: []retrieval.Example{
			{Score: 0.9, Question: "first q", Answer: "SELECT 1"},
			{Score: 0.8, Question: "second q", Answer: "SELECT 2"},
		},
		NERExamples: []retrieval.Example{{Question: "shoes", Answer: "category_l1 = 'shoes'"}},
	})
	require.NoError(t, err)
	require.Contains(t, system, "mysql expert")
	require.Contains(t, system, "price is USD")
	require.Contains(t, user, "Example 1:\nQuestion: first q")
	require.Contains(t, user, "Example 2:\nQuestion: second q")
	require.Less(t, strings.Index(user, "first q"), strings.Index(user, "second q"))
	require.Contains(t, user, "- shoes: category_l1 = 'shoes'")
	require.Contains(t, user, "Question: top 10 products by purchase count")
}

func TestLLM_Prompts_ProfileOverrides(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts()
	require.NoError(t, err)

	overrides := profile.PromptMap{
		PromptKnowledge: {System: "custom system for {{.Question}}"},
	}
	system, user, err := p.Render(PromptKnowledge, overrides, PromptData{Question: "what is GMV"})
	require.NoError(t, err)
	require.Equal(t, "custom system for what is GMV", system)
	require.Equal(t, "what is GMV", user)
}

func TestLLM_Prompts_Errors(t *testing.T) {
	t.Parallel()

	p, err := LoadPrompts()
	require.NoError(t, err)

	_, _, err = p.Render("nope", nil, PromptData{})
	require.ErrorContains(t, err, "unknown prompt")

	_, _, err = p.Render(PromptIntent, profile.PromptMap{PromptIntent: {User: "{{.Missing"}}, PromptData{})
	require.ErrorContains(t, err, "failed to render intent user prompt")
}
