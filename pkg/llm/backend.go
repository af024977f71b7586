package llm

import (
	"errors"
)

// BackendKind tags which backend serves a generation call.
type BackendKind int

const (
	BackendGeneralChat BackendKind = iota
	BackendSpecializedSQL
	BackendSpecializedExplain
)

func (k BackendKind) String() string {
	switch k {
	case BackendSpecializedSQL:
		return "specialized_sql"
	case BackendSpecializedExplain:
		return "specialized_explain"
	default:
		return "general_chat"
	}
}

// Backend is the backend selected for one call. Only the field matching Kind is set.
type Backend struct {
	Kind    BackendKind
	Chat    Client
	SQL     SQLEndpoint
	Explain ExplainEndpoint
}

// Backends holds the configured backends. SQL and Explain are optional.
type Backends struct {
	Chat    Client
	SQL     SQLEndpoint
	Explain ExplainEndpoint
}

func (b Backends) Validate() error {
	if b.Chat == nil {
		return errors.New("chat client is required")
	}
	return nil
}

// ForSQL selects the specialized SQL endpoint when configured, otherwise the chat model.
func (b Backends) ForSQL() Backend {
	if b.SQL != nil {
		return Backend{Kind: BackendSpecializedSQL, SQL: b.SQL}
	}
	return Backend{Kind: BackendGeneralChat, Chat: b.Chat}
}

// ForExplain selects the specialized explain endpoint. There is no chat fallback:
// the chat model explains its SQL inline.
func (b Backends) ForExplain() (Backend, bool) {
	if b.Explain != nil {
		return Backend{Kind: BackendSpecializedExplain, Explain: b.Explain}, true
	}
	return Backend{}, false
}
