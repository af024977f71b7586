package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/malbeclabs/genbi/pkg/executor"
	"github.com/malbeclabs/genbi/pkg/llm"
	"github.com/malbeclabs/genbi/pkg/profile"
	"github.com/malbeclabs/genbi/pkg/retrieval"
)

// PlanTasks asks the model to break a question into sub-questions, using
// accepted plans for similar questions as examples. Sub-questions keep the order
// the model gave them in; output that cannot be parsed yields no tasks.
func (p *Pipeline) PlanTasks(ctx context.Context, modelID string, prof profile.Profile, question string, cot []retrieval.Example) ([]string, error) {
	response, err := p.complete(ctx, llm.PromptAgentTask, modelID, prof.PromptMap, llm.PromptData{
		Question:    question,
		TablesInfo:  prof.TablesInfo,
		COTExamples: cot,
	})
	if err != nil {
		return nil, err
	}
	tasks := parseTaskList(response)
	if len(tasks) == 0 {
		p.log.Info("pipeline: no tasks in planner response")
	}
	return tasks, nil
}

// parseTaskList reads either a JSON object whose values are sub-questions, in key
// order, or a JSON array of sub-questions. Non-string values are skipped.
func parseTaskList(response string) []string {
	tasks := []string{}

	raw := strings.TrimSpace(response)
	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	if arrStart != -1 && (objStart == -1 || arrStart < objStart) {
		var items []json.RawMessage
		if err := json.NewDecoder(strings.NewReader(raw[arrStart:])).Decode(&items); err != nil {
			return tasks
		}
		for _, item := range items {
			if s, ok := decodeTask(item); ok {
				tasks = append(tasks, s)
			}
		}
		return tasks
	}

	obj := extractJSON(raw)
	if obj == "" {
		return tasks
	}
	dec := json.NewDecoder(strings.NewReader(obj))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return tasks
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return []string{}
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return []string{}
		}
		if s, ok := decodeTask(value); ok {
			tasks = append(tasks, s)
		}
	}
	return tasks
}

func decodeTask(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

type AgentRequest struct {
	ModelID string
	Profile profile.Profile
	Dialect string
	UseRAG  bool
	Tasks   []string
}

// AgentSearch generates SQL for each task concurrently. Tasks whose generation
// fails, panics or whose response has no SQL are dropped; the rest keep task
// order.
func (p *Pipeline) AgentSearch(ctx context.Context, req AgentRequest) []AgentTask {
	group := p.generatePool.NewGroup()
	for _, query := range req.Tasks {
		group.Submit(func() AgentTask {
			return p.generateTask(ctx, req, query)
		})
	}
	results, err := group.Wait()
	if err != nil {
		p.log.Warn("pipeline: agent generation group failed", "error", err)
	}

	tasks := make([]AgentTask, 0, len(results))
	for _, task := range results {
		if task.SQL != "" {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func (p *Pipeline) generateTask(ctx context.Context, req AgentRequest, query string) (task AgentTask) {
	// A panic in one task must not cancel the group and discard its siblings.
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("pipeline: agent task generation panicked", "task", query, "panic", r)
			task = AgentTask{Query: query}
		}
	}()

	entities := []retrieval.Example{}
	examples := []retrieval.Example{}
	if req.UseRAG {
		entities = p.retrieve(ctx, retrieval.Query{
			Text: query, Kind: retrieval.KindNER, Profile: req.Profile.Name, TopK: 3, Threshold: 0.5,
		})
		examples = p.retrieve(ctx, retrieval.Query{
			Text: query, Kind: retrieval.KindQuery, Profile: req.Profile.Name, TopK: 3, Threshold: 0.5,
		})
	}

	response, err := p.generateSQL(ctx, req.ModelID, req.Profile, req.Dialect, query, examples, entities)
	if err != nil {
		p.log.Warn("pipeline: agent task generation failed", "task", query, "error", err)
		return AgentTask{Query: query}
	}
	return AgentTask{Query: query, SQL: ExtractSQL(response), Response: response}
}

// ExecuteTasks runs each task's SQL concurrently and keeps, in task order, those
// that succeeded with at least one row.
func (p *Pipeline) ExecuteTasks(ctx context.Context, conn profile.Connection, tasks []AgentTask) []AgentTask {
	group := p.executePool.NewGroup()
	for _, task := range tasks {
		group.Submit(func() executor.Result {
			return p.executeTask(ctx, conn, task.SQL)
		})
	}
	results, err := group.Wait()
	if err != nil {
		p.log.Warn("pipeline: agent execution group failed", "error", err)
	}

	kept := make([]AgentTask, 0, len(tasks))
	for i, result := range results {
		if i >= len(tasks) {
			break
		}
		if !result.HasRows() {
			p.log.Info("pipeline: dropping agent task", "task", tasks[i].Query, "status", result.StatusCode, "rows", len(result.Rows))
			continue
		}
		task := tasks[i]
		task.Result = result
		kept = append(kept, task)
	}
	return kept
}

func (p *Pipeline) executeTask(ctx context.Context, conn profile.Connection, sql string) (result executor.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = executor.Result{StatusCode: executor.StatusError, SQL: sql, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return p.cfg.Executor.Execute(ctx, conn, sql)
}
