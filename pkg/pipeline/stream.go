package pipeline

import (
	"context"
	"fmt"

	"github.com/malbeclabs/genbi/pkg/llm"
	"github.com/malbeclabs/genbi/pkg/retrieval"
)

// Sink receives streamed answer text in order.
type Sink interface {
	Send(content string) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(content string) error

func (f SinkFunc) Send(content string) error { return f(content) }

// AskStream answers a question by streaming the retrieved examples, the generated
// SQL with its explanation and, when requested, the query result to sink. It does
// not send the end or exception markers; the transport does.
func (p *Pipeline) AskStream(ctx context.Context, q Question, sink Sink) error {
	req, err := p.prepare(q)
	if err != nil {
		return err
	}
	AsksTotal.WithLabelValues(string(IntentNormal), "stream").Inc()

	chain := NewQueryChain(req.ProfileName, req.Query)
	if req.UseRAG {
		examples := p.retrieve(ctx, retrieval.Query{
			Text: req.Query, Kind: retrieval.KindQuery, Profile: req.ProfileName, TopK: 3, Threshold: 0.5,
		})
		chain.SetExamples(examples)

		encoded, err := marshalJSON(examples)
		if err != nil {
			return err
		}
		if err := sendAll(sink, "Examples:\n```json\n", encoded, "\n```\n"); err != nil {
			return err
		}
	}
	examples, _ := chain.Examples()
	if examples == nil {
		examples = []retrieval.Example{}
	}

	entities := []retrieval.Example{}
	if req.IntentNER {
		res, err := p.Classify(ctx, req.ModelID, req.Query, req.profile.PromptMap)
		if err != nil {
			return err
		}
		if res.Intent == IntentReject {
			return invalid(ErrNotSupported)
		}
		if len(res.Slots) > 0 {
			entities = p.retrieveEntities(ctx, req.ProfileName, res.Slots, 1, 0.7)
		}
	}

	backend := p.cfg.Backends.ForSQL()
	var response string
	switch backend.Kind {
	case llm.BackendSpecializedSQL:
		stream, err := backend.SQL.StreamSQL(ctx, sqlRequest(req.profile, req.conn.Dialect, req.Query, examples, entities))
		if err != nil {
			return fmt.Errorf("SQL endpoint call failed: %w", err)
		}
		response, err = ForwardChunks(stream, llm.NewSQLChunkDecoder().Decode, sink)
		if err != nil {
			return err
		}
		chain.Response = response
		chain.SQL = ExtractSQL(response)
		if err := sink.Send("\n"); err != nil {
			return err
		}
		if explain, ok := p.cfg.Backends.ForExplain(); ok {
			stream, err := explain.Explain.StreamExplain(ctx, chain.SQL)
			if err != nil {
				return fmt.Errorf("explain endpoint call failed: %w", err)
			}
			if _, err := ForwardChunks(stream, llm.DecodeExplainChunk, sink); err != nil {
				return err
			}
		}
	default:
		system, user, err := p.cfg.Prompts.Render(llm.PromptText2SQL, req.profile.PromptMap,
			text2SQLData(req.profile, req.conn.Dialect, req.Query, examples, entities))
		if err != nil {
			return err
		}
		stream, err := backend.Chat.Stream(ctx, llm.Request{
			Model: req.ModelID, System: system, User: user, MaxTokens: p.cfg.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("%s stream failed: %w", llm.PromptText2SQL, err)
		}
		response, err = ForwardEvents(stream, sink)
		if err != nil {
			return err
		}
		chain.Response = response
		chain.SQL = ExtractSQL(response)
	}

	if req.QueryResult {
		result := p.cfg.Executor.Execute(ctx, req.conn, chain.SQL)
		if err := sendAll(sink, "\n\nQuery result:  \n", result.Markdown(), "\n"); err != nil {
			return err
		}
	}
	p.log.Info("pipeline: streamed answer", "profile", req.ProfileName, "backend", backend.Kind, "sql", chain.SQL != "")
	return nil
}

// ForwardEvents sends each content delta to sink as it arrives and returns the
// accumulated text. A content stop ends the stream; later events are not read.
func ForwardEvents(stream llm.EventStream, sink Sink) (string, error) {
	defer stream.Close()
	var text []byte
	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case llm.EventContentDelta:
			text = append(text, event.Text...)
			if err := sink.Send(event.Text); err != nil {
				return string(text), err
			}
		case llm.EventContentStop:
			return string(text), nil
		}
	}
	if err := stream.Err(); err != nil {
		return string(text), fmt.Errorf("stream failed: %w", err)
	}
	return string(text), nil
}

// ForwardChunks decodes each chunk, sends it to sink and returns the accumulated
// text. Chunks that fail to decode are skipped.
func ForwardChunks(stream llm.ChunkStream, decode func([]byte) (string, error), sink Sink) (string, error) {
	defer stream.Close()
	var text []byte
	for stream.Next() {
		piece, err := decode(stream.Current())
		if err != nil {
			continue
		}
		text = append(text, piece...)
		if err := sink.Send(piece); err != nil {
			return string(text), err
		}
	}
	if err := stream.Err(); err != nil {
		return string(text), fmt.Errorf("stream failed: %w", err)
	}
	return string(text), nil
}

func sendAll(sink Sink, parts ...string) error {
	for _, part := range parts {
		if err := sink.Send(part); err != nil {
			return err
		}
	}
	return nil
}
