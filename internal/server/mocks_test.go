package server

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/malbeclabs/genbi/pkg/pipeline"
	"github.com/malbeclabs/genbi/pkg/profile"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

type mockAsker struct {
	AskFunc       func(ctx context.Context, q pipeline.Question) (*pipeline.Answer, error)
	AskStreamFunc func(ctx context.Context, q pipeline.Question, sink pipeline.Sink) error
	RecordFunc    func(ctx context.Context, fb pipeline.Feedback) bool
	Models        []string
}

func (m *mockAsker) Ask(ctx context.Context, q pipeline.Question) (*pipeline.Answer, error) {
	if m.AskFunc == nil {
		return nil, errors.New("unexpected Ask call")
	}
	return m.AskFunc(ctx, q)
}

func (m *mockAsker) AskStream(ctx context.Context, q pipeline.Question, sink pipeline.Sink) error {
	if m.AskStreamFunc == nil {
		return errors.New("unexpected AskStream call")
	}
	return m.AskStreamFunc(ctx, q, sink)
}

func (m *mockAsker) Record(ctx context.Context, fb pipeline.Feedback) bool {
	if m.RecordFunc == nil {
		return false
	}
	return m.RecordFunc(ctx, fb)
}

func (m *mockAsker) ModelIDs() []string { return m.Models }

func testProfiles() *profile.Registry {
	return profile.NewRegistry([]profile.Profile{
		{Name: "shop", DBURL: "postgresql://u@h/shop", Comments: "Sales data.\nExamples:\nTop products?\n\nSales by region?"},
		{Name: "ads", DBURL: "clickhouse://h/ads"},
	}, nil)
}

func newTestHandler(t *testing.T, asker *mockAsker) *Handler {
	t.Helper()
	h, err := NewHandler(testLogger(t), Config{Asker: asker, Profiles: testProfiles()})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}
