package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/malbeclabs/genbi/pkg/pipeline"
	"github.com/malbeclabs/genbi/pkg/profile"
)

type Handler struct {
	log      *slog.Logger
	cfg      Config
	upgrader websocket.Upgrader
}

func NewHandler(log *slog.Logger, cfg Config) (*Handler, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("handler config validation failed: %w", err)
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	if cfg.CheckOrigin != nil {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			return cfg.CheckOrigin(r.Header.Get("Origin"))
		}
	}

	return &Handler{log: log, cfg: cfg, upgrader: upgrader}, nil
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(HealthzPath, h.healthzHandler)
	mux.HandleFunc(OptionPath, h.optionHandler)
	mux.HandleFunc(CustomQuestionPath, h.customQuestionHandler)
	mux.HandleFunc(AskPath, h.askHandler)
	mux.HandleFunc(UpvotePath, h.upvoteHandler)
	mux.HandleFunc(WebSocketPath, h.webSocketHandler)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
}

func (h *Handler) writeJSONError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, ErrorResponse{Error: msg, Code: status})
}

func (h *Handler) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	h.writeJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// decodeBody reads a JSON request body into v, writing the error response on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.writeJSONError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeJSONError(w, r, http.StatusBadRequest, "failed to read body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		h.writeJSONError(w, r, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (h *Handler) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		h.writeJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
	})
}

func (h *Handler) optionHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	h.writeJSON(w, r, http.StatusOK, OptionResponse{
		DataProfiles: h.cfg.Profiles.List(),
		ModelIDs:     h.cfg.Asker.ModelIDs(),
	})
}

func (h *Handler) customQuestionHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodGet) {
		return
	}
	name := r.URL.Query().Get("data_profile")
	if name == "" {
		h.writeJSONError(w, r, http.StatusBadRequest, "data_profile is required")
		return
	}
	questions, err := h.cfg.Profiles.CustomQuestions(name)
	if err != nil {
		if errors.Is(err, profile.ErrUnknownProfile) {
			h.writeJSONError(w, r, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("failed to load custom questions", "profile", name, "error", err)
		h.writeJSONError(w, r, http.StatusInternalServerError, "failed to load custom questions")
		return
	}
	h.writeJSON(w, r, http.StatusOK, CustomQuestionResponse{CustomQuestion: questions})
}

func (h *Handler) askHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	var q pipeline.Question
	if !h.decodeBody(w, r, &q) {
		return
	}

	answer, err := h.ask(r, q)
	if err != nil {
		if pipeline.IsValidationError(err) {
			h.writeJSONError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("failed to answer question", "profile", q.ProfileName, "error", err)
		h.writeJSONError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, answer)
}

// ask runs the pipeline and turns a panic into an error so one bad request does
// not take the server down.
func (h *Handler) ask(r *http.Request, q pipeline.Question) (answer *pipeline.Answer, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return h.cfg.Asker.Ask(r.Context(), q)
}

func (h *Handler) upvoteHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethod(w, r, http.MethodPost) {
		return
	}
	var fb pipeline.Feedback
	if !h.decodeBody(w, r, &fb) {
		return
	}
	h.writeJSON(w, r, http.StatusOK, h.cfg.Asker.Record(r.Context(), fb))
}
