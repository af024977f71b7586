package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/malbeclabs/genbi/pkg/llm"
	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/malbeclabs/genbi/pkg/retrieval"
)

// SQL is read from between these markers in a model response.
const (
	sqlStartMarker = "<sql>"
	sqlEndMarker   = "</sql>"
)

type SearchRequest struct {
	Question string
	ModelID  string
	Profile  profile.Profile
	Dialect  string
	Slots    []string
	UseRAG   bool

	// Chain, when set, supplies examples already retrieved for this request and
	// receives those retrieved here.
	Chain *QueryChain
}

// NormalSearch generates one SQL statement for a question. An empty SQL in the
// result means the model response had no SQL; an error means generation failed.
func (p *Pipeline) NormalSearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	var entities []retrieval.Example
	if req.UseRAG && len(req.Slots) > 0 {
		entities = p.retrieveEntities(ctx, req.Profile.Name, req.Slots, 1, 0.7)
	}

	examples := []retrieval.Example{}
	fetched := false
	if req.Chain != nil {
		if cached, ok := req.Chain.Examples(); ok {
			examples, fetched = cached, true
		}
	}
	if req.UseRAG && !fetched {
		examples = p.retrieve(ctx, retrieval.Query{
			Text: req.Question, Kind: retrieval.KindQuery, Profile: req.Profile.Name, TopK: 3, Threshold: 0.5,
		})
		if req.Chain != nil {
			req.Chain.SetExamples(examples)
		}
	}

	response, err := p.generateSQL(ctx, req.ModelID, req.Profile, req.Dialect, req.Question, examples, entities)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{
		Query:    req.Question,
		SQL:      ExtractSQL(response),
		Response: response,
		Entities: entities,
		Examples: examples,
	}, nil
}

// retrieveEntities runs one NER lookup per slot concurrently and concatenates the
// matches in slot order.
func (p *Pipeline) retrieveEntities(ctx context.Context, profileName string, slots []string, topK int, threshold float64) []retrieval.Example {
	perSlot := make([][]retrieval.Example, len(slots))
	var wg sync.WaitGroup
	for i, slot := range slots {
		wg.Add(1)
		go func(i int, slot string) {
			defer wg.Done()
			perSlot[i] = p.retrieve(ctx, retrieval.Query{
				Text: slot, Kind: retrieval.KindNER, Profile: profileName, TopK: topK, Threshold: threshold,
			})
		}(i, slot)
	}
	wg.Wait()

	entities := []retrieval.Example{}
	for _, matches := range perSlot {
		entities = append(entities, matches...)
	}
	return entities
}

// generateSQL returns the full model response for a text-to-SQL request from the
// backend selected for SQL generation.
func (p *Pipeline) generateSQL(ctx context.Context, modelID string, prof profile.Profile, dialect, question string, examples, entities []retrieval.Example) (string, error) {
	backend := p.cfg.Backends.ForSQL()
	switch backend.Kind {
	case llm.BackendSpecializedSQL:
		start := p.cfg.Clock.Now()
		stream, err := backend.SQL.StreamSQL(ctx, sqlRequest(prof, dialect, question, examples, entities))
		if err != nil {
			return "", fmt.Errorf("SQL endpoint call failed: %w", err)
		}
		response, err := llm.Drain(stream, llm.NewSQLChunkDecoder().Decode)
		StageDuration.WithLabelValues(llm.PromptText2SQL).Observe(p.cfg.Clock.Since(start).Seconds())
		if err != nil {
			return "", fmt.Errorf("SQL endpoint stream failed: %w", err)
		}
		return response, nil
	default:
		return p.complete(ctx, llm.PromptText2SQL, modelID, prof.PromptMap, text2SQLData(prof, dialect, question, examples, entities))
	}
}

func sqlRequest(prof profile.Profile, dialect, question string, examples, entities []retrieval.Example) llm.SQLRequest {
	return llm.SQLRequest{
		TableInfo:   prof.TablesInfo,
		Hints:       prof.Hints,
		Question:    question,
		Examples:    examples,
		NERExamples: entities,
		Dialect:     dialect,
	}
}

func text2SQLData(prof profile.Profile, dialect, question string, examples, entities []retrieval.Example) llm.PromptData {
	return llm.PromptData{
		Question:    question,
		TablesInfo:  prof.TablesInfo,
		Hints:       prof.Hints,
		Dialect:     dialect,
		Examples:    examples,
		NERExamples: entities,
	}
}

// ExtractSQL returns the trimmed text between the first <sql> marker and the
// </sql> marker that follows it, or "" when either is missing.
func ExtractSQL(response string) string {
	start := strings.Index(response, sqlStartMarker)
	if start == -1 {
		return ""
	}
	rest := response[start+len(sqlStartMarker):]
	end := strings.Index(rest, sqlEndMarker)
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// ExplainText returns a model response with its SQL block removed.
func ExplainText(response string) string {
	start := strings.Index(response, sqlStartMarker)
	if start == -1 {
		return strings.TrimSpace(response)
	}
	end := strings.Index(response[start:], sqlEndMarker)
	if end == -1 {
		return strings.TrimSpace(response)
	}
	return strings.TrimSpace(response[:start] + response[start+end+len(sqlEndMarker):])
}
