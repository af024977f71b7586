package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/malbeclabs/genbi/pkg/retrieval"
)

const (
	backendEndpoint = "endpoint"

	defaultEndpointMaxElapsedTime = 5 * time.Second
	maxChunkSize                  = 1 << 20
)

// SQLRequest is the fixed request shape of the specialized SQL endpoint.
type SQLRequest struct {
	TableInfo   string              `json:"table_info"`
	Hints       string              `json:"hints"`
	Question    string              `json:"question"`
	Examples    []retrieval.Example `json:"sql_examples"`
	NERExamples []retrieval.Example `json:"ner_examples"`
	Dialect     string              `json:"dialect"`
}

type explainRequest struct {
	SQL string `json:"sql"`
}

// SQLEndpoint streams SQL generated by a SQL-specialized model.
type SQLEndpoint interface {
	StreamSQL(ctx context.Context, req SQLRequest) (ChunkStream, error)
}

// ExplainEndpoint streams a natural-language explanation of a SQL statement.
type ExplainEndpoint interface {
	StreamExplain(ctx context.Context, sql string) (ChunkStream, error)
}

type EndpointConfig struct {
	Logger *slog.Logger
	URL    string

	// Optional configuration.
	HTTPClient     *http.Client
	MaxElapsedTime time.Duration
}

func (c *EndpointConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.URL == "" {
		return errors.New("endpoint URL is required")
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = defaultEndpointMaxElapsedTime
	}
	return nil
}

// EndpointClient posts a JSON request to a specialized inference endpoint and
// reads the response as newline-delimited frames of the form {"bytes": <base64>}.
type EndpointClient struct {
	log *slog.Logger
	cfg EndpointConfig
}

func NewEndpointClient(cfg EndpointConfig) (*EndpointClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EndpointClient{log: cfg.Logger, cfg: cfg}, nil
}

func (c *EndpointClient) StreamSQL(ctx context.Context, req SQLRequest) (ChunkStream, error) {
	return c.stream(ctx, "sql", req)
}

func (c *EndpointClient) StreamExplain(ctx context.Context, sql string) (ChunkStream, error) {
	return c.stream(ctx, "explain", explainRequest{SQL: sql})
}

func (c *EndpointClient) stream(ctx context.Context, mode string, payload any) (ChunkStream, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal endpoint request: %w", err)
	}

	start := time.Now()
	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/x-ndjson")
		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			err := fmt.Errorf("endpoint error: %s: %s", resp.Status, bytes.TrimSpace(msg))
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(c.cfg.MaxElapsedTime))

	RequestDuration.WithLabelValues(backendEndpoint, mode).Observe(time.Since(start).Seconds())
	RequestsTotal.WithLabelValues(backendEndpoint, mode, statusLabel(err)).Inc()
	if err != nil {
		c.log.Error("llm: endpoint call failed", "mode", mode, "error", err)
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkSize)
	return &frameStream{log: c.log, body: resp.Body, scanner: scanner}, nil
}

type frameStream struct {
	log     *slog.Logger
	body    io.ReadCloser
	scanner *bufio.Scanner
	current []byte
}

func (s *frameStream) Next() bool {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame struct {
			Bytes []byte `json:"bytes"`
		}
		if err := json.Unmarshal(line, &frame); err != nil {
			s.log.Debug("llm: skipping undecodable endpoint frame", "error", err)
			continue
		}
		s.current = frame.Bytes
		return true
	}
	return false
}

func (s *frameStream) Current() []byte { return s.current }
func (s *frameStream) Err() error      { return s.scanner.Err() }
func (s *frameStream) Close() error    { return s.body.Close() }
