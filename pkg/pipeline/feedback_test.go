package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// Agent feedback stores each sub-question pair and the plan.
func TestPipeline_Record_Agent(t *testing.T) {
	t.Parallel()

	deps := newTestDeps()
	p := newTestPipeline(t, deps)

	ok := p.Record(context.Background(), Feedback{
		Profile: "shop",
		Query:   "why did revenue fall",
		Intent:  IntentAgent,
		Answers: []QueryAnswer{
			{Query: "revenue by month", SQL: "SELECT 1"},
			{Query: "orders by month", SQL: "SELECT 2"},
		},
	})
	require.True(t, ok)
	require.Equal(t, []recordedSample{
		{Kind: "query", Profile: "shop", Question: "revenue by month", Answer: "SELECT 1"},
		{Kind: "query", Profile: "shop", Question: "orders by month", Answer: "SELECT 2"},
		{Kind: "agent", Profile: "shop", Question: "why did revenue fall", Answer: "revenue by month\norders by month"},
	}, deps.recorder.samples)
}

func TestPipeline_Record(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		fb          Feedback
		recorderErr error
		want        bool
		wantSamples []recordedSample
	}{
		{
			name: "normal stores first pair",
			fb: Feedback{Profile: "shop", Query: "q", Intent: IntentNormal, Answers: []QueryAnswer{
				{Query: "q", SQL: "SELECT 1"}, {Query: "ignored", SQL: "SELECT 2"},
			}},
			want:        true,
			wantSamples: []recordedSample{{Kind: "query", Profile: "shop", Question: "q", Answer: "SELECT 1"}},
		},
		{
			name: "normal without answers",
			fb:   Feedback{Profile: "shop", Query: "q", Intent: IntentNormal},
			want: true,
		},
		{
			name: "knowledge stores nothing",
			fb:   Feedback{Profile: "shop", Query: "q", Intent: IntentKnowledge, Answers: []QueryAnswer{{Query: "q", SQL: "x"}}},
			want: true,
		},
		{
			name:        "store unavailable",
			fb:          Feedback{Profile: "shop", Query: "q", Intent: IntentNormal, Answers: []QueryAnswer{{Query: "q", SQL: "SELECT 1"}}},
			recorderErr: errors.New("cluster unavailable"),
			want:        false,
		},
		{
			name: "missing profile",
			fb:   Feedback{Query: "q", Intent: IntentNormal, Answers: []QueryAnswer{{Query: "q", SQL: "SELECT 1"}}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deps := newTestDeps()
			deps.recorder.err = tt.recorderErr
			p := newTestPipeline(t, deps)

			require.Equal(t, tt.want, p.Record(context.Background(), tt.fb))
			require.Equal(t, tt.wantSamples, deps.recorder.samples)
		})
	}
}
