package admin

import (
	"fmt"
	"io"
	"strings"

	"github.com/malbeclabs/genbi/pkg/pipeline"
	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/olekukonko/tablewriter"
)

// PrintProfiles writes one row per profile with its dialect and connection source.
func PrintProfiles(w io.Writer, registry *profile.Registry) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"profile", "dialect", "connection"})
	table.SetAutoFormatHeaders(false)
	for _, name := range registry.List() {
		p, err := registry.Get(name)
		if err != nil {
			return err
		}
		source := p.ConnName
		if p.DBURL != "" {
			source = redactURL(p.DBURL)
		}
		table.Append([]string{name, p.DBType, source})
	}
	table.Render()
	return nil
}

// redactURL hides the password of a connection URL.
func redactURL(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return url
	}
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return url
	}
	return scheme + "://" + user + ":***@" + host
}

// PrintAnswer writes a readable rendering of an answer.
func PrintAnswer(w io.Writer, answer *pipeline.Answer) {
	fmt.Fprintf(w, "Intent: %s\n", answer.QueryIntent)
	switch answer.QueryIntent {
	case pipeline.IntentReject:
		fmt.Fprintln(w, "The question is not supported.")
	case pipeline.IntentKnowledge:
		fmt.Fprintln(w, answer.KnowledgeSearchResult.KnowledgeResponse)
	case pipeline.IntentAgent:
		for _, task := range answer.AgentSearchResult.AgentSQLSearchResult {
			fmt.Fprintf(w, "\n## %s\n\nSQL:\n%s\n\n", task.SubTaskQuery, task.SQL)
			printRows(w, task.SQLData)
		}
		fmt.Fprintf(w, "\nSummary:\n%s\n", answer.AgentSearchResult.AgentSummary)
	default:
		fmt.Fprintf(w, "\nSQL:\n%s\n\n", answer.SQLSearchResult.SQL)
		printRows(w, answer.SQLSearchResult.SQLData)
		if answer.SQLSearchResult.DataAnalyse != "" {
			fmt.Fprintf(w, "\nAnalysis:\n%s\n", answer.SQLSearchResult.DataAnalyse)
		}
	}
	if len(answer.SuggestedQuestion) > 0 {
		fmt.Fprintln(w, "\nSuggested questions:")
		for _, q := range answer.SuggestedQuestion {
			fmt.Fprintf(w, "- %s\n", q)
		}
	}
}

// printRows renders a header row plus data rows.
func printRows(w io.Writer, data [][]any) {
	if len(data) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(toStrings(data[0]))
	for _, row := range data[1:] {
		table.Append(toStrings(row))
	}
	table.Render()
}

func toStrings(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}
