package server

import (
	"context"
	"errors"
	"time"

	"github.com/malbeclabs/genbi/pkg/pipeline"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultMaxBodySize       = 1 << 20 // 1 MiB
)

// Asker answers questions and records feedback.
type Asker interface {
	Ask(ctx context.Context, q pipeline.Question) (*pipeline.Answer, error)
	AskStream(ctx context.Context, q pipeline.Question, sink pipeline.Sink) error
	Record(ctx context.Context, fb pipeline.Feedback) bool
	ModelIDs() []string
}

// Profiles lists the configured data profiles.
type Profiles interface {
	List() []string
	CustomQuestions(name string) ([]string, error)
}

type Config struct {
	Asker    Asker
	Profiles Profiles

	// Optional configuration.
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	// WriteTimeout bounds each websocket frame write.
	WriteTimeout time.Duration
	MaxBodySize  int64
	// CheckOrigin decides whether a websocket upgrade is allowed. All origins are
	// accepted when nil.
	CheckOrigin func(origin string) bool
}

func (c *Config) Validate() error {
	if c.Asker == nil {
		return errors.New("asker is required")
	}
	if c.Profiles == nil {
		return errors.New("profiles are required")
	}

	// Optional configuration.
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	return nil
}
