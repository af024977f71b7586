package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const backendAnthropic = "anthropic"

// AnthropicClient implements Client using the Anthropic Messages API.
type AnthropicClient struct {
	log       *slog.Logger
	client    anthropic.Client
	maxTokens int64
}

func NewAnthropicClient(log *slog.Logger, maxTokens int64, opts ...option.RequestOption) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicClient{
		log:       log,
		client:    anthropic.NewClient(opts...),
		maxTokens: maxTokens,
	}
}

func (c *AnthropicClient) params(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.System},
		}
	}
	return params
}

// Complete sends a prompt and returns the first text block of the response.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	c.log.Debug("llm: anthropic call starting", "model", req.Model, "userPromptLen", len(req.User))

	msg, err := c.client.Messages.New(ctx, c.params(req))

	duration := time.Since(start)
	RequestDuration.WithLabelValues(backendAnthropic, "complete").Observe(duration.Seconds())
	RequestsTotal.WithLabelValues(backendAnthropic, "complete", statusLabel(err)).Inc()
	if err != nil {
		c.log.Error("llm: anthropic call failed", "duration", duration, "error", err)
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	c.log.Debug("llm: anthropic call completed", "duration", duration, "stopReason", msg.StopReason)

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}

// Stream opens a streaming message. Connection errors surface from the first
// Next/Err of the returned stream.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (EventStream, error) {
	start := time.Now()
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))
	RequestDuration.WithLabelValues(backendAnthropic, "stream").Observe(time.Since(start).Seconds())
	if err := stream.Err(); err != nil {
		RequestsTotal.WithLabelValues(backendAnthropic, "stream", "error").Inc()
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}
	RequestsTotal.WithLabelValues(backendAnthropic, "stream", "ok").Inc()
	return &anthropicStream{stream: stream}, nil
}

type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (s *anthropicStream) Next() bool { return s.stream.Next() }
func (s *anthropicStream) Err() error { return s.stream.Err() }
func (s *anthropicStream) Close() error {
	return s.stream.Close()
}

func (s *anthropicStream) Current() Event {
	event := s.stream.Current()
	switch event.Type {
	case "content_block_delta":
		delta := event.AsContentBlockDelta()
		if delta.Delta.Type == "text_delta" {
			return Event{Type: EventContentDelta, Text: delta.Delta.Text}
		}
		return Event{Type: EventOther}
	case "content_block_stop":
		return Event{Type: EventContentStop}
	default:
		return Event{Type: EventOther}
	}
}
