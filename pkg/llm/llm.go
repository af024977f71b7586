// Package llm talks to the language model backends: a general chat model used for
// classification, generation and analysis, and optional specialized endpoints that
// stream SQL and its explanation as raw chunks.
package llm

import (
	"context"
)

const defaultMaxTokens = 4096

// Request is one prompt sent to a chat model.
type Request struct {
	Model     string
	System    string
	User      string
	MaxTokens int64
}

// Client is the general chat backend.
type Client interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, req Request) (string, error)
	// Stream sends a prompt and returns the response as an event stream.
	Stream(ctx context.Context, req Request) (EventStream, error)
}

type EventType string

const (
	EventContentDelta EventType = "content_delta"
	EventContentStop  EventType = "content_stop"
	EventOther        EventType = "other"
)

type Event struct {
	Type EventType
	Text string
}

// EventStream iterates structured events from a chat model.
type EventStream interface {
	Next() bool
	Current() Event
	Err() error
	Close() error
}

// ChunkStream iterates raw payloads from a specialized endpoint.
type ChunkStream interface {
	Next() bool
	Current() []byte
	Err() error
	Close() error
}
