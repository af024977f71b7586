package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/malbeclabs/genbi/pkg/pipeline"
)

var errMissingSessionID = errors.New("session_id is required")

func (h *Handler) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	WebSocketSessions.Inc()
	defer WebSocketSessions.Dec()

	s := &session{
		log:          h.log,
		conn:         conn,
		asker:        h.cfg.Asker,
		writeTimeout: h.cfg.WriteTimeout,
	}
	s.run(r.Context())
}

// session serves the questions sent over one websocket connection, one at a time.
type session struct {
	log          *slog.Logger
	conn         *websocket.Conn
	asker        Asker
	writeTimeout time.Duration

	writeMu sync.Mutex
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.conn.Close()

	// Unblocks the reader on server shutdown.
	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	// Reads happen on their own goroutine so a closed connection cancels the
	// question in flight.
	messages := make(chan []byte)
	go func() {
		defer cancel()
		defer close(messages)
		for {
			msgType, data, err := s.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Debug("websocket read failed", "error", err)
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			select {
			case messages <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range messages {
		if err := s.handle(ctx, data); err != nil {
			s.log.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// handle answers one question. The returned error is a write failure; pipeline
// failures are reported to the client as exception envelopes.
func (s *session) handle(ctx context.Context, data []byte) error {
	var q pipeline.Question
	if err := json.Unmarshal(data, &q); err != nil {
		WebSocketMessagesTotal.WithLabelValues("invalid_json").Inc()
		return s.send(Envelope{ContentType: ContentException, Content: "invalid json"})
	}
	if q.SessionID == "" {
		WebSocketMessagesTotal.WithLabelValues("missing_session_id").Inc()
		return s.send(Envelope{ContentType: ContentException, Content: errMissingSessionID.Error()})
	}

	sink := pipeline.SinkFunc(func(content string) error {
		return s.send(Envelope{SessionID: q.SessionID, ContentType: ContentCommon, Content: content})
	})
	if err := s.askStream(ctx, q, sink); err != nil {
		if ctx.Err() != nil {
			WebSocketMessagesTotal.WithLabelValues("canceled").Inc()
			return ctx.Err()
		}
		WebSocketMessagesTotal.WithLabelValues("error").Inc()
		s.log.Warn("streamed answer failed", "session", q.SessionID, "profile", q.ProfileName, "error", err)
		if err := s.send(Envelope{SessionID: q.SessionID, ContentType: ContentException, Content: err.Error()}); err != nil {
			return err
		}
	} else {
		WebSocketMessagesTotal.WithLabelValues("ok").Inc()
	}
	return s.send(Envelope{SessionID: q.SessionID, ContentType: ContentEnd, Content: ""})
}

func (s *session) askStream(ctx context.Context, q pipeline.Question, sink pipeline.Sink) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return s.asker.AskStream(ctx, q, sink)
}

func (s *session) send(env Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(env)
}
