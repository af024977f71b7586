package admin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/malbeclabs/genbi/pkg/pipeline"
	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/malbeclabs/genbi/pkg/retrieval"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

type mockSeeder struct {
	SeedFunc func(profile string, kind retrieval.Kind, samples []retrieval.Sample) (int, error)
}

func (m *mockSeeder) Seed(ctx context.Context, profile string, kind retrieval.Kind, samples []retrieval.Sample) (int, error) {
	return m.SeedFunc(profile, kind, samples)
}

func TestAdmin_LoadSamples_Default(t *testing.T) {
	t.Parallel()

	samples, err := LoadSamples("")
	require.NoError(t, err)
	require.Len(t, samples, 6)
	require.Equal(t, "What is the average price of products purchased by female users under 30?", samples[0].Question)
	require.True(t, bytes.HasPrefix([]byte(samples[0].SQL), []byte("SELECT AVG(price)\nFROM interactions i")))
}

func TestAdmin_LoadSamples_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("samples:\n  - question: ' how many users '\n    sql: SELECT COUNT(*) FROM users\n"), 0o644))
	samples, err := LoadSamples(good)
	require.NoError(t, err)
	require.Equal(t, []retrieval.Sample{{Question: "how many users", SQL: "SELECT COUNT(*) FROM users"}}, samples)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("samples:\n  - question: no sql\n"), 0o644))
	_, err = LoadSamples(bad)
	require.ErrorContains(t, err, "sample 0: question and sql are required")

	_, err = LoadSamples(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "failed to read samples")
}

func TestAdmin_Seed(t *testing.T) {
	t.Parallel()

	samples := []retrieval.Sample{{Question: "a", SQL: "SELECT 1"}, {Question: "b", SQL: "SELECT 2"}}

	t.Run("writes with default kind", func(t *testing.T) {
		t.Parallel()
		var gotKind retrieval.Kind
		store := &mockSeeder{SeedFunc: func(profile string, kind retrieval.Kind, s []retrieval.Sample) (int, error) {
			gotKind = kind
			return len(s), nil
		}}
		n, err := Seed(context.Background(), testLogger(t), store, SeedConfig{Profile: "shop", Samples: samples})
		require.NoError(t, err)
		require.Equal(t, 2, n)
		require.Equal(t, retrieval.KindQuery, gotKind)
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		t.Parallel()
		store := &mockSeeder{SeedFunc: func(string, retrieval.Kind, []retrieval.Sample) (int, error) {
			t.Error("unexpected Seed call")
			return 0, nil
		}}
		n, err := Seed(context.Background(), testLogger(t), store, SeedConfig{Profile: "shop", Samples: samples, DryRun: true})
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("partial failure", func(t *testing.T) {
		t.Parallel()
		store := &mockSeeder{SeedFunc: func(string, retrieval.Kind, []retrieval.Sample) (int, error) {
			return 1, errors.New("index closed")
		}}
		n, err := Seed(context.Background(), testLogger(t), store, SeedConfig{Profile: "shop", Samples: samples})
		require.ErrorContains(t, err, "seeded 1 of 2 samples: index closed")
		require.Equal(t, 1, n)
	})

	t.Run("missing profile", func(t *testing.T) {
		t.Parallel()
		_, err := Seed(context.Background(), testLogger(t), &mockSeeder{}, SeedConfig{Samples: samples})
		require.EqualError(t, err, "profile is required")
	})
}

func TestAdmin_RedactURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "postgresql://app:***@db:5432/shop", redactURL("postgresql://app:secret@db:5432/shop"))
	require.Equal(t, "clickhouse://default@ch:9000/ads", redactURL("clickhouse://default@ch:9000/ads"))
	require.Equal(t, "shop.duckdb", redactURL("shop.duckdb"))
}

func TestAdmin_PrintProfiles(t *testing.T) {
	t.Parallel()

	registry := profile.NewRegistry([]profile.Profile{
		{Name: "shop", DBURL: "postgresql://app:secret@db/shop", DBType: profile.DialectPostgreSQL},
		{Name: "ads", ConnName: "warehouse"},
	}, nil)

	var buf bytes.Buffer
	require.NoError(t, PrintProfiles(&buf, registry))
	out := buf.String()
	require.Contains(t, out, "app:***@db/shop")
	require.NotContains(t, out, "secret")
	require.Contains(t, out, "warehouse")
	require.Less(t, bytes.Index(buf.Bytes(), []byte("ads")), bytes.Index(buf.Bytes(), []byte("shop")))
}

func TestAdmin_PrintAnswer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	PrintAnswer(&buf, &pipeline.Answer{
		Query:       "top items",
		QueryIntent: pipeline.IntentNormal,
		SQLSearchResult: pipeline.SQLSearchResult{
			SQL:         "SELECT name, n FROM items",
			SQLData:     [][]any{{"name", "n"}, {"a", 3}, {"b", nil}},
			DataAnalyse: "a leads.",
		},
		SuggestedQuestion: []string{"bottom items?"},
	})
	out := buf.String()
	require.Contains(t, out, "Intent: normal_search")
	require.Contains(t, out, "SELECT name, n FROM items")
	require.Contains(t, out, "a leads.")
	require.Contains(t, out, "- bottom items?")

	buf.Reset()
	PrintAnswer(&buf, &pipeline.Answer{QueryIntent: pipeline.IntentReject})
	require.Contains(t, buf.String(), "not supported")
}
