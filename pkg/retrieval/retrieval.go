// Package retrieval finds previously recorded question/SQL pairs, entity
// descriptions and chain-of-thought plans similar to a question, and records new
// ones when a user accepts an answer.
package retrieval

import (
	"context"
	"sort"
)

type Kind string

const (
	KindQuery Kind = "query"
	KindNER   Kind = "ner"
	KindAgent Kind = "agent"
)

// Example is one retrieved pair. For KindNER the question is the entity and the
// answer its description; for KindAgent the answer is the newline-joined plan.
type Example struct {
	Score    float64 `json:"score"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
}

type Query struct {
	Text      string
	Kind      Kind
	Profile   string
	TopK      int
	Threshold float64
}

// Sample is a record written to the index.
type Sample struct {
	Question string `json:"question" yaml:"question"`
	SQL      string `json:"sql" yaml:"sql"`
}

// Gateway searches the example index. An empty result with a nil error means
// nothing matched; a non-nil error means the call failed.
type Gateway interface {
	Search(ctx context.Context, q Query) ([]Example, error)
}

// Recorder writes accepted answers back into the index.
type Recorder interface {
	AddSample(ctx context.Context, profile, question, sql string) error
	AddAgentCOTSample(ctx context.Context, profile, question, plan string) error
}

// Store is a Gateway that can also record samples.
type Store interface {
	Gateway
	Recorder
}

// rank orders examples by descending score, drops those under the threshold and
// truncates to topK.
func rank(examples []Example, topK int, threshold float64) []Example {
	out := make([]Example, 0, len(examples))
	for _, e := range examples {
		if e.Score >= threshold {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
