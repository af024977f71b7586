package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/malbeclabs/genbi/pkg/retrieval"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func frame(payload string) string {
	return fmt.Sprintf(`{"bytes":"%s"}`, base64.StdEncoding.EncodeToString([]byte(payload)))
}

func newTestEndpoint(t *testing.T, handler http.HandlerFunc) *EndpointClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewEndpointClient(EndpointConfig{
		Logger:         testLogger(t),
		URL:            srv.URL,
		MaxElapsedTime: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestLLM_EndpointConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := EndpointConfig{}
	require.ErrorContains(t, cfg.Validate(), "logger is required")
	cfg.Logger = testLogger(t)
	require.ErrorContains(t, cfg.Validate(), "endpoint URL is required")
	cfg.URL = "http://x"
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.HTTPClient)
}

func TestLLM_Endpoint_StreamSQL(t *testing.T) {
	t.Parallel()

	var got SQLRequest
	c := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, frame("<sql>SELECT"))
		fmt.Fprintln(w, "not a frame")
		fmt.Fprintln(w)
		fmt.Fprintln(w, frame(" * FROM t</sql>"))
	})

	stream, err := c.StreamSQL(context.Background(), SQLRequest{
		TableInfo: "CREATE TABLE t (a INT)",
		Question:  "all rows",
		Examples:  []retrieval.Example{{Score: 0.9, Question: "q", Answer: "SELECT 1"}},
		Dialect:   "postgresql",
	})
	require.NoError(t, err)

	var chunks []string
	for stream.Next() {
		chunks = append(chunks, string(stream.Current()))
	}
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())
	require.Equal(t, []string{"<sql>SELECT", " * FROM t</sql>"}, chunks)
	require.Equal(t, "all rows", got.Question)
	require.Equal(t, "postgresql", got.Dialect)
	require.Len(t, got.Examples, 1)
}

func TestLLM_Endpoint_StreamExplain(t *testing.T) {
	t.Parallel()

	c := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		var req explainRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "SELECT 1", req.SQL)
		fmt.Fprintln(w, frame(`{"outputs":"Selects "}`))
		fmt.Fprintln(w, frame(`{"outputs":"one."}`))
	})

	stream, err := c.StreamExplain(context.Background(), "SELECT 1")
	require.NoError(t, err)
	text, err := Drain(stream, DecodeExplainChunk)
	require.NoError(t, err)
	require.Equal(t, "Selects one.", text)
}

func TestLLM_Endpoint_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	c := newTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := c.StreamSQL(context.Background(), SQLRequest{Question: "q"})
	require.ErrorContains(t, err, "400")
	require.Equal(t, 1, calls)
}
