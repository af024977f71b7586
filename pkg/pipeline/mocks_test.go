package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/malbeclabs/genbi/pkg/executor"
	"github.com/malbeclabs/genbi/pkg/llm"
	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/malbeclabs/genbi/pkg/retrieval"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

const testModel = "claude-sonnet-4-5"

// testPromptMap replaces every system prompt with its name so the chat mock can
// tell calls apart.
func testPromptMap() profile.PromptMap {
	m := profile.PromptMap{}
	for _, name := range []string{
		llm.PromptIntent, llm.PromptText2SQL, llm.PromptKnowledge, llm.PromptAgentTask,
		llm.PromptDataSummary, llm.PromptAgentAnalyse, llm.PromptDataVisualization, llm.PromptSuggestion,
	} {
		m[name] = profile.PromptTemplate{System: name}
	}
	return m
}

func testProfile() profile.Profile {
	return profile.Profile{
		Name:       "shop",
		DBURL:      "postgresql://u@h/shop",
		DBType:     profile.DialectPostgreSQL,
		TablesInfo: "CREATE TABLE items (name text, n int)",
		Hints:      "n is a purchase count",
		PromptMap:  testPromptMap(),
	}
}

type mockChat struct {
	mu           sync.Mutex
	calls        []llm.Request
	CompleteFunc func(req llm.Request) (string, error)
	StreamFunc   func(req llm.Request) (llm.EventStream, error)
}

func (m *mockChat) Complete(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.CompleteFunc == nil {
		return "", errors.New("unexpected Complete call")
	}
	return m.CompleteFunc(req)
}

func (m *mockChat) Stream(ctx context.Context, req llm.Request) (llm.EventStream, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.StreamFunc == nil {
		return nil, errors.New("unexpected Stream call")
	}
	return m.StreamFunc(req)
}

// callsFor returns the calls made with the named prompt.
func (m *mockChat) callsFor(name string) []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []llm.Request
	for _, c := range m.calls {
		if c.System == name {
			out = append(out, c)
		}
	}
	return out
}

// responder answers each prompt with a fixed response.
func responder(responses map[string]string) func(req llm.Request) (string, error) {
	return func(req llm.Request) (string, error) {
		resp, ok := responses[req.System]
		if !ok {
			return "", fmt.Errorf("unexpected prompt %q", req.System)
		}
		return resp, nil
	}
}

type mockGateway struct {
	mu         sync.Mutex
	queries    []retrieval.Query
	SearchFunc func(q retrieval.Query) ([]retrieval.Example, error)
}

func (m *mockGateway) Search(ctx context.Context, q retrieval.Query) ([]retrieval.Example, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.SearchFunc == nil {
		return []retrieval.Example{}, nil
	}
	return m.SearchFunc(q)
}

func (m *mockGateway) queriesFor(kind retrieval.Kind) []retrieval.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []retrieval.Query
	for _, q := range m.queries {
		if q.Kind == kind {
			out = append(out, q)
		}
	}
	return out
}

type recordedSample struct {
	Kind     string
	Profile  string
	Question string
	Answer   string
}

type mockRecorder struct {
	mu      sync.Mutex
	samples []recordedSample
	err     error
}

func (m *mockRecorder) AddSample(ctx context.Context, profile, question, sql string) error {
	return m.add(recordedSample{"query", profile, question, sql})
}

func (m *mockRecorder) AddAgentCOTSample(ctx context.Context, profile, question, plan string) error {
	return m.add(recordedSample{"agent", profile, question, plan})
}

func (m *mockRecorder) add(s recordedSample) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

type mockExecutor struct {
	mu          sync.Mutex
	statements  []string
	ExecuteFunc func(sql string) executor.Result
}

func (m *mockExecutor) Execute(ctx context.Context, conn profile.Connection, sql string) executor.Result {
	m.mu.Lock()
	m.statements = append(m.statements, sql)
	m.mu.Unlock()
	if m.ExecuteFunc == nil {
		return executor.Result{StatusCode: executor.StatusError, SQL: sql, Error: "unexpected execution"}
	}
	return m.ExecuteFunc(sql)
}

func (m *mockExecutor) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statements...)
}

type mockSQLEndpoint struct {
	mu            sync.Mutex
	requests      []llm.SQLRequest
	StreamSQLFunc func(req llm.SQLRequest) (llm.ChunkStream, error)
}

func (m *mockSQLEndpoint) StreamSQL(ctx context.Context, req llm.SQLRequest) (llm.ChunkStream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.StreamSQLFunc(req)
}

type mockExplainEndpoint struct {
	StreamExplainFunc func(sql string) (llm.ChunkStream, error)
}

func (m *mockExplainEndpoint) StreamExplain(ctx context.Context, sql string) (llm.ChunkStream, error) {
	return m.StreamExplainFunc(sql)
}

type sliceChunkStream struct {
	chunks [][]byte
	i      int
	closed bool
}

func newChunkStream(chunks ...string) *sliceChunkStream {
	s := &sliceChunkStream{i: -1}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

func (s *sliceChunkStream) Next() bool {
	s.i++
	return s.i < len(s.chunks)
}
func (s *sliceChunkStream) Current() []byte { return s.chunks[s.i] }
func (s *sliceChunkStream) Err() error      { return nil }
func (s *sliceChunkStream) Close() error    { s.closed = true; return nil }

type sliceEventStream struct {
	events []llm.Event
	i      int
	nexts  int
	closed bool
}

func newEventStream(events ...llm.Event) *sliceEventStream {
	return &sliceEventStream{events: events, i: -1}
}

func (s *sliceEventStream) Next() bool {
	s.nexts++
	s.i++
	return s.i < len(s.events)
}
func (s *sliceEventStream) Current() llm.Event { return s.events[s.i] }
func (s *sliceEventStream) Err() error         { return nil }
func (s *sliceEventStream) Close() error       { s.closed = true; return nil }

func delta(text string) llm.Event { return llm.Event{Type: llm.EventContentDelta, Text: text} }
func stop() llm.Event             { return llm.Event{Type: llm.EventContentStop} }

type collectSink struct {
	mu   sync.Mutex
	sent []string
}

func (s *collectSink) Send(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, content)
	return nil
}

func (s *collectSink) Joined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.sent, "")
}

type testDeps struct {
	chat     *mockChat
	gateway  *mockGateway
	recorder *mockRecorder
	executor *mockExecutor
	sql      llm.SQLEndpoint
	explain  llm.ExplainEndpoint
}

func newTestDeps() *testDeps {
	return &testDeps{
		chat:     &mockChat{},
		gateway:  &mockGateway{},
		recorder: &mockRecorder{},
		executor: &mockExecutor{},
	}
}

func newTestPipeline(t *testing.T, deps *testDeps) *Pipeline {
	t.Helper()

	prompts, err := llm.LoadPrompts()
	require.NoError(t, err)

	registry := profile.NewRegistry([]profile.Profile{testProfile()}, nil)
	log := testLogger(t)

	backends := llm.Backends{Chat: deps.chat}
	if deps.sql != nil {
		backends.SQL = deps.sql
	}
	if deps.explain != nil {
		backends.Explain = deps.explain
	}

	p, err := New(Config{
		Logger:    log,
		Profiles:  registry,
		Resolver:  profile.NewResolver(log, registry),
		Retrieval: deps.gateway,
		Recorder:  deps.recorder,
		Backends:  backends,
		Prompts:   prompts,
		Executor:  deps.executor,
		ModelIDs:  []string{testModel},
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func question(text string) Question {
	return Question{Query: text, ProfileName: "shop", ModelID: testModel}
}
