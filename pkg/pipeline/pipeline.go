// Package pipeline answers natural-language questions over a data profile. It
// classifies the question, retrieves similar examples, generates SQL, executes it
// and analyses the result, either in one call or streamed to a Sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/genbi/pkg/executor"
	"github.com/malbeclabs/genbi/pkg/llm"
	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/malbeclabs/genbi/pkg/retrieval"
)

const (
	defaultAgentPoolSize = 8
	defaultMaxTokens     = 4096
)

// ProfileSource looks up profiles by name.
type ProfileSource interface {
	Get(name string) (profile.Profile, error)
}

// ConnectionResolver returns the database connection behind a profile.
type ConnectionResolver interface {
	Resolve(p profile.Profile) (profile.Connection, error)
}

// Executor runs SQL. It reports failures in the Result, never as an error.
type Executor interface {
	Execute(ctx context.Context, conn profile.Connection, sql string) executor.Result
}

type Config struct {
	Logger    *slog.Logger
	Profiles  ProfileSource
	Resolver  ConnectionResolver
	Retrieval retrieval.Gateway
	Recorder  retrieval.Recorder
	Backends  llm.Backends
	Prompts   *llm.Prompts
	Executor  Executor
	ModelIDs  []string

	// Optional configuration.
	AgentPoolSize int
	MaxTokens     int64
	Clock         clockwork.Clock
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Profiles == nil {
		return errors.New("profiles are required")
	}
	if c.Resolver == nil {
		return errors.New("resolver is required")
	}
	if c.Retrieval == nil {
		return errors.New("retrieval gateway is required")
	}
	if c.Recorder == nil {
		return errors.New("recorder is required")
	}
	if err := c.Backends.Validate(); err != nil {
		return err
	}
	if c.Prompts == nil {
		return errors.New("prompts are required")
	}
	if c.Executor == nil {
		return errors.New("executor is required")
	}
	if len(c.ModelIDs) == 0 {
		return errors.New("at least one model id is required")
	}
	if c.AgentPoolSize <= 0 {
		c.AgentPoolSize = defaultAgentPoolSize
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Pipeline struct {
	log *slog.Logger
	cfg Config

	generatePool pond.ResultPool[AgentTask]
	executePool  pond.ResultPool[executor.Result]
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		log:          cfg.Logger,
		cfg:          cfg,
		generatePool: pond.NewResultPool[AgentTask](cfg.AgentPoolSize),
		executePool:  pond.NewResultPool[executor.Result](cfg.AgentPoolSize),
	}, nil
}

// Close waits for in-flight agent tasks and stops the worker pools.
func (p *Pipeline) Close() {
	p.generatePool.StopAndWait()
	p.executePool.StopAndWait()
}

// ModelIDs returns the supported model identifiers.
func (p *Pipeline) ModelIDs() []string {
	return slices.Clone(p.cfg.ModelIDs)
}

// request is a validated Question with its profile and connection.
type request struct {
	Question
	profile profile.Profile
	conn    profile.Connection
}

// prepare validates q without calling any external service.
func (p *Pipeline) prepare(q Question) (*request, error) {
	if !slices.Contains(p.cfg.ModelIDs, q.ModelID) {
		return nil, invalid(fmt.Errorf("%w: %q", ErrInvalidModelID, q.ModelID))
	}
	prof, err := p.cfg.Profiles.Get(q.ProfileName)
	if err != nil {
		return nil, invalid(err)
	}
	if q.Query == "" {
		return nil, invalid(ErrEmptyQuestion)
	}
	conn, err := p.cfg.Resolver.Resolve(prof)
	if err != nil {
		return nil, err
	}
	return &request{Question: q, profile: prof, conn: conn}, nil
}

// routeFor maps a classified intent to the branch that answers it. Labels other
// than the known ones route to normal search.
func routeFor(intent Intent, agentCOT bool) Intent {
	switch intent {
	case IntentReject:
		return IntentReject
	case IntentAgent:
		if agentCOT {
			return IntentAgent
		}
		return IntentNormal
	case IntentKnowledge:
		return IntentKnowledge
	default:
		return IntentNormal
	}
}

// Ask answers a question synchronously.
func (p *Pipeline) Ask(ctx context.Context, q Question) (*Answer, error) {
	req, err := p.prepare(q)
	if err != nil {
		return nil, err
	}

	route := IntentNormal
	var slots []string
	if req.IntentNER {
		res, err := p.Classify(ctx, req.ModelID, req.Query, req.profile.PromptMap)
		if err != nil {
			return nil, err
		}
		route = routeFor(res.Intent, req.AgentCOT)
		slots = res.Slots
		p.log.Info("pipeline: intent resolved", "profile", req.ProfileName, "intent", res.Intent, "route", route, "slots", len(slots))
	}
	AsksTotal.WithLabelValues(string(route), "sync").Inc()

	answer := newAnswer(req.Query, route)
	switch route {
	case IntentReject:
		return answer, nil
	case IntentKnowledge:
		text, err := p.Knowledge(ctx, req.ModelID, req.Query, req.profile.PromptMap)
		if err != nil {
			return nil, err
		}
		answer.KnowledgeSearchResult.KnowledgeResponse = text
		return answer, nil
	case IntentAgent:
		if err := p.answerAgent(ctx, req, answer); err != nil {
			return nil, err
		}
	default:
		if err := p.answerNormal(ctx, req, slots, answer); err != nil {
			return nil, err
		}
	}

	if req.GenSuggestedQuestion {
		suggestions, err := p.Suggest(ctx, req.ModelID, req.Query, req.profile.PromptMap)
		if err != nil {
			return nil, err
		}
		answer.SuggestedQuestion = suggestions
	}
	return answer, nil
}

func (p *Pipeline) answerNormal(ctx context.Context, req *request, slots []string, answer *Answer) error {
	sr, err := p.NormalSearch(ctx, SearchRequest{
		Question: req.Query,
		ModelID:  req.ModelID,
		Profile:  req.profile,
		Dialect:  req.conn.Dialect,
		Slots:    slots,
		UseRAG:   req.UseRAG,
	})
	if err != nil {
		return err
	}

	out := &answer.SQLSearchResult
	if sr.SQL == "" {
		p.log.Info("pipeline: no SQL in model response", "profile", req.ProfileName)
		out.SQL = noSQL
		out.DataAnalyse = noSQL
		return nil
	}
	out.SQL = sr.SQL
	if req.ExplainGenProcess {
		out.SQLGenProcess = ExplainText(sr.Response)
	}

	start := p.cfg.Clock.Now()
	result := p.cfg.Executor.Execute(ctx, req.conn, sr.SQL)
	StageDuration.WithLabelValues("execute").Observe(p.cfg.Clock.Since(start).Seconds())
	if !result.OK() {
		p.log.Info("pipeline: execution failed", "profile", req.ProfileName, "error", result.Error)
		out.DataAnalyse = noSQL
		return nil
	}
	if !result.HasRows() {
		return nil
	}

	records, err := result.RecordsJSON()
	if err != nil {
		p.log.Warn("pipeline: rows could not be encoded, skipping analysis", "profile", req.ProfileName, "error", err)
		out.SQLData = result.Table()
		out.DataShowType = ShowTypeTable
		return nil
	}
	summary, err := p.Analyze(ctx, req.ModelID, req.profile.PromptMap, req.Query, records, ModeQuery)
	if err != nil {
		return err
	}
	showType, data, err := p.RecommendVisualization(ctx, req.ModelID, req.Query, result, req.profile.PromptMap)
	if err != nil {
		return err
	}
	out.DataAnalyse = summary
	out.DataShowType = showType
	out.SQLData = data
	return nil
}

// agentSummaryEntry is what the summary prompt sees for each surviving task.
type agentSummaryEntry struct {
	Query      string `json:"query"`
	SQL        string `json:"sql"`
	Response   string `json:"response"`
	DataResult string `json:"data_result"`
}

func (p *Pipeline) answerAgent(ctx context.Context, req *request, answer *Answer) error {
	cot := p.retrieve(ctx, retrieval.Query{
		Text: req.Query, Kind: retrieval.KindAgent, Profile: req.ProfileName, TopK: 2, Threshold: 0.5,
	})
	tasks, err := p.PlanTasks(ctx, req.ModelID, req.profile, req.Query, cot)
	if err != nil {
		return err
	}
	p.log.Info("pipeline: planned agent tasks", "profile", req.ProfileName, "tasks", len(tasks))

	generated := p.AgentSearch(ctx, AgentRequest{
		ModelID: req.ModelID,
		Profile: req.profile,
		Dialect: req.conn.Dialect,
		UseRAG:  req.UseRAG,
		Tasks:   tasks,
	})
	executed := p.ExecuteTasks(ctx, req.conn, generated)

	out := &answer.AgentSearchResult
	entries := make([]agentSummaryEntry, 0, len(executed))
	for _, task := range executed {
		records, err := task.Result.RecordsJSON()
		if err != nil {
			p.log.Warn("pipeline: dropping agent task with unencodable rows", "query", task.Query, "error", err)
			continue
		}
		entries = append(entries, agentSummaryEntry{
			Query: task.Query, SQL: task.SQL, Response: task.Response, DataResult: records,
		})
		out.AgentSQLSearchResult = append(out.AgentSQLSearchResult, TaskSQLSearchResult{
			SubTaskQuery: task.Query,
			SQLData:      task.Result.Table(),
			SQL:          task.Result.SQL,
			DataShowType: ShowTypeTable,
		})
		out.SubSearchTask = append(out.SubSearchTask, task.Query)
	}

	data, err := marshalJSON(entries)
	if err != nil {
		return err
	}
	summary, err := p.Analyze(ctx, req.ModelID, req.profile.PromptMap, req.Query, data, ModeAgent)
	if err != nil {
		return err
	}
	out.AgentSummary = summary
	return nil
}

// complete renders a prompt and sends it to the chat backend.
func (p *Pipeline) complete(ctx context.Context, name, modelID string, overrides profile.PromptMap, data llm.PromptData) (string, error) {
	system, user, err := p.cfg.Prompts.Render(name, overrides, data)
	if err != nil {
		return "", err
	}
	start := p.cfg.Clock.Now()
	text, err := p.cfg.Backends.Chat.Complete(ctx, llm.Request{
		Model:     modelID,
		System:    system,
		User:      user,
		MaxTokens: p.cfg.MaxTokens,
	})
	StageDuration.WithLabelValues(name).Observe(p.cfg.Clock.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("%s call failed: %w", name, err)
	}
	return text, nil
}

// retrieve searches the example index. A failed search is logged and treated as
// no examples.
func (p *Pipeline) retrieve(ctx context.Context, q retrieval.Query) []retrieval.Example {
	start := p.cfg.Clock.Now()
	examples, err := p.cfg.Retrieval.Search(ctx, q)
	StageDuration.WithLabelValues("retrieve_" + string(q.Kind)).Observe(p.cfg.Clock.Since(start).Seconds())
	if err != nil {
		RetrievalFailuresTotal.WithLabelValues(string(q.Kind)).Inc()
		p.log.Warn("pipeline: retrieval failed, continuing without examples", "kind", q.Kind, "profile", q.Profile, "error", err)
		return []retrieval.Example{}
	}
	if examples == nil {
		return []retrieval.Example{}
	}
	return examples
}
