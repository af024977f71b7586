// Package profile loads data profiles: the schema description, hints and prompt
// overrides for one queryable data source.
package profile

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownProfile    = errors.New("unknown profile")
	ErrUnknownConnection = errors.New("unknown connection")
)

const (
	DialectPostgreSQL = "postgresql"
	DialectClickHouse = "clickhouse"
	DialectDuckDB     = "duckdb"
	DialectMySQL      = "mysql"
)

const customQuestionsMarker = "Examples:"

// PromptTemplate overrides one of the embedded prompts for a profile.
type PromptTemplate struct {
	System string `yaml:"system_prompt"`
	User   string `yaml:"user_prompt"`
}

// PromptMap is keyed by prompt name (intent, text2sql, knowledge, agent, ...).
type PromptMap map[string]PromptTemplate

type Profile struct {
	Name       string    `yaml:"-"`
	ConnName   string    `yaml:"conn_name"`
	DBURL      string    `yaml:"db_url"`
	DBType     string    `yaml:"db_type"`
	TablesInfo string    `yaml:"tables_info"`
	Hints      string    `yaml:"hints"`
	Comments   string    `yaml:"comments"`
	PromptMap  PromptMap `yaml:"prompt_map"`
}

type Connection struct {
	Name    string `yaml:"-"`
	URL     string `yaml:"db_url"`
	Dialect string `yaml:"db_type"`
}

type fileConfig struct {
	Models      []string              `yaml:"models"`
	Connections map[string]Connection `yaml:"connections"`
	Profiles    map[string]Profile    `yaml:"profiles"`
}

// Registry is the read-only set of profiles loaded at startup.
type Registry struct {
	profiles    map[string]Profile
	connections map[string]Connection
	models      []string
}

func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}
	if len(cfg.Profiles) == 0 {
		return nil, errors.New("at least one profile is required")
	}

	r := &Registry{
		profiles:    make(map[string]Profile, len(cfg.Profiles)),
		connections: make(map[string]Connection, len(cfg.Connections)),
		models:      slices.Clone(cfg.Models),
	}
	for name, c := range cfg.Connections {
		c.Name = name
		if c.Dialect == "" {
			c.Dialect = DialectFromURL(c.URL)
		}
		r.connections[name] = c
	}
	for name, p := range cfg.Profiles {
		p.Name = name
		if p.DBURL == "" && p.ConnName == "" {
			return nil, fmt.Errorf("profile %q: db_url or conn_name is required", name)
		}
		if p.DBURL != "" && p.DBType == "" {
			p.DBType = DialectFromURL(p.DBURL)
		}
		r.profiles[name] = p
	}
	return r, nil
}

func NewRegistry(profiles []Profile, connections []Connection) *Registry {
	r := &Registry{
		profiles:    make(map[string]Profile, len(profiles)),
		connections: make(map[string]Connection, len(connections)),
	}
	for _, p := range profiles {
		r.profiles[p.Name] = p
	}
	for _, c := range connections {
		r.connections[c.Name] = c
	}
	return r
}

func (r *Registry) Get(name string) (Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return p, nil
}

// List returns the profile names in sorted order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the model identifiers declared in the profiles file, if any.
func (r *Registry) Models() []string {
	return slices.Clone(r.models)
}

// CustomQuestions returns the sample questions listed after "Examples:" in the
// profile comments, one per non-empty line.
func (r *Registry) CustomQuestions(name string) ([]string, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(p.Comments, customQuestionsMarker, 2)
	if len(parts) < 2 {
		return []string{}, nil
	}
	questions := []string{}
	for _, line := range strings.Split(parts[1], "\n") {
		if line != "" {
			questions = append(questions, line)
		}
	}
	return questions, nil
}

func (r *Registry) LookupConnection(name string) (Connection, error) {
	c, ok := r.connections[name]
	if !ok {
		return Connection{}, fmt.Errorf("%w: %s", ErrUnknownConnection, name)
	}
	return c, nil
}

// DialectFromURL derives the SQL dialect from a connection URL scheme.
func DialectFromURL(url string) string {
	scheme, _, ok := strings.Cut(url, "://")
	if !ok {
		if strings.HasSuffix(url, ".duckdb") || url == ":memory:" {
			return DialectDuckDB
		}
		return ""
	}
	scheme = strings.ToLower(scheme)
	if i := strings.Index(scheme, "+"); i >= 0 {
		scheme = scheme[:i]
	}
	switch scheme {
	case "postgres", "postgresql":
		return DialectPostgreSQL
	case "clickhouse", "tcp":
		return DialectClickHouse
	case "duckdb":
		return DialectDuckDB
	case "mysql":
		return DialectMySQL
	default:
		return scheme
	}
}
