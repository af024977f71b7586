package pipeline

import (
	"encoding/json"

	"github.com/malbeclabs/genbi/pkg/executor"
	"github.com/malbeclabs/genbi/pkg/retrieval"
)

// Intent labels a question and tags the Answer branch.
type Intent string

const (
	IntentNormal    Intent = "normal_search"
	IntentAgent     Intent = "agent_search"
	IntentKnowledge Intent = "knowledge_search"
	IntentReject    Intent = "reject_search"
)

// noSQL marks a normal answer for which no SQL was produced.
const noSQL = "-1"

const (
	ShowTypeTable = "table"
	ShowTypeBar   = "bar"
	ShowTypeLine  = "line"
	ShowTypePie   = "pie"
)

// Question is one inbound request.
type Question struct {
	Query       string `json:"query"`
	ProfileName string `json:"profile_name"`
	// ModelID keeps its historical wire name for client compatibility.
	ModelID string `json:"bedrock_model_id"`

	UseRAG               bool `json:"use_rag_flag"`
	IntentNER            bool `json:"intent_ner_recognition_flag"`
	AgentCOT             bool `json:"agent_cot_flag"`
	ExplainGenProcess    bool `json:"explain_gen_process_flag"`
	GenSuggestedQuestion bool `json:"gen_suggested_question_flag"`
	QueryResult          bool `json:"query_result"`

	SessionID string `json:"session_id,omitempty"`
}

// UnmarshalJSON accepts the legacy "keywords" field as the question text.
func (q *Question) UnmarshalJSON(data []byte) error {
	type plain Question
	var aux struct {
		plain
		Keywords string `json:"keywords"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*q = Question(aux.plain)
	if q.Query == "" {
		q.Query = aux.Keywords
	}
	return nil
}

type Answer struct {
	Query                 string                `json:"query"`
	QueryIntent           Intent                `json:"query_intent"`
	KnowledgeSearchResult KnowledgeSearchResult `json:"knowledge_search_result"`
	SQLSearchResult       SQLSearchResult       `json:"sql_search_result"`
	AgentSearchResult     AgentSearchResult     `json:"agent_search_result"`
	SuggestedQuestion     []string              `json:"suggested_question"`
}

type KnowledgeSearchResult struct {
	KnowledgeResponse string `json:"knowledge_response"`
}

type SQLSearchResult struct {
	SQLData       [][]any `json:"sql_data"`
	SQL           string  `json:"sql"`
	DataShowType  string  `json:"data_show_type"`
	SQLGenProcess string  `json:"sql_gen_process"`
	DataAnalyse   string  `json:"data_analyse"`
}

type AgentSearchResult struct {
	AgentSummary         string                `json:"agent_summary"`
	AgentSQLSearchResult []TaskSQLSearchResult `json:"agent_sql_search_result"`
	SubSearchTask        []string              `json:"sub_search_task"`
}

type TaskSQLSearchResult struct {
	SubTaskQuery  string  `json:"sub_task_query"`
	SQLData       [][]any `json:"sql_data"`
	SQL           string  `json:"sql"`
	DataShowType  string  `json:"data_show_type"`
	SQLGenProcess string  `json:"sql_gen_process"`
	DataAnalyse   string  `json:"data_analyse"`
}

// newAnswer returns an Answer with every branch at its default so the wire shape
// is the same whichever branch is taken.
func newAnswer(query string, intent Intent) *Answer {
	return &Answer{
		Query:       query,
		QueryIntent: intent,
		SQLSearchResult: SQLSearchResult{
			SQLData:      [][]any{},
			DataShowType: ShowTypeTable,
		},
		AgentSearchResult: AgentSearchResult{
			AgentSQLSearchResult: []TaskSQLSearchResult{},
			SubSearchTask:        []string{},
		},
		SuggestedQuestion: []string{},
	}
}

type IntentResult struct {
	Intent Intent
	Slots  []string
}

// SearchResult is one SQL candidate and what it was generated from.
type SearchResult struct {
	Query    string
	SQL      string
	Response string
	Entities []retrieval.Example
	Examples []retrieval.Example
}

// AgentTask is one sub-question of an agent run.
type AgentTask struct {
	Query    string
	SQL      string
	Response string
	Result   executor.Result
}

// QueryChain accumulates the state of one request. It is never shared.
type QueryChain struct {
	Profile  string
	Question string
	SQL      string
	Response string

	examples        []retrieval.Example
	examplesFetched bool
}

func NewQueryChain(profile, question string) *QueryChain {
	return &QueryChain{Profile: profile, Question: question}
}

// Examples returns the retrieved examples and whether retrieval already ran.
func (c *QueryChain) Examples() ([]retrieval.Example, bool) {
	return c.examples, c.examplesFetched
}

func (c *QueryChain) SetExamples(examples []retrieval.Example) {
	c.examples = examples
	c.examplesFetched = true
}

// QueryAnswer is one accepted question/SQL pair.
type QueryAnswer struct {
	Query string `json:"query"`
	SQL   string `json:"sql"`
}

// Feedback is a user's acceptance of an answer.
type Feedback struct {
	Profile string        `json:"data_profiles"`
	Query   string        `json:"query"`
	Intent  Intent        `json:"query_intent"`
	Answers []QueryAnswer `json:"query_answer_list"`
}
