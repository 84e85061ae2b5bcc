package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/popgen/internal/common/logctx"
	"github.com/G-Research/popgen/internal/common/logging"
	"github.com/G-Research/popgen/internal/common/popgenerrors"
	"github.com/G-Research/popgen/internal/popgen/manager"
	"github.com/G-Research/popgen/internal/popgen/request"
)

const maxConfigurationBytes = 1 << 20

// Server exposes a Manager over HTTP and WebSocket.
type Server struct {
	manager  *manager.Manager
	upgrader websocket.Upgrader
	log      *log.Entry
}

func New(m *manager.Manager) *Server {
	return &Server{
		manager: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: log.WithField("component", "server"),
	}
}

// Register adds every route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /requests", s.handleCreate)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /requests/{id}", s.handleStatus)
	mux.HandleFunc("POST /requests/{id}/{action}", s.handleTransition)
	mux.HandleFunc("GET /requests/{id}/results", s.handleResults)
	mux.HandleFunc("GET /requests/{id}/artifact", s.handleArtifact)
	mux.HandleFunc("GET /requests/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /ws", s.handleSocket)

	// Legacy routes, kept for existing clients.
	mux.HandleFunc("GET /zip/{id}", s.handleArtifact)
	mux.HandleFunc("GET /json/{id}", s.handleResults)
	mux.HandleFunc("DELETE /terminate/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.transition(w, r, r.PathValue("id"), "stop")
	})
}

type createdResponse struct {
	Uuid          string                `json:"uuid"`
	Configuration request.Configuration `json:"configuration"`
}

type statusResponse struct {
	Uuid   string `json:"uuid,omitempty"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, config, err := s.create(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createdResponse{Uuid: id, Configuration: config})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, config, err := s.create(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.manager.Start(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, createdResponse{Uuid: id, Configuration: config})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) (string, request.Configuration, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigurationBytes))
	if err != nil {
		return "", request.Configuration{}, &popgenerrors.ErrInvalidArgument{
			Name:    "configuration",
			Value:   "<body>",
			Message: err.Error(),
		}
	}
	config, err := request.ParseConfiguration(body, s.manager.Policy())
	if err != nil {
		return "", request.Configuration{}, err
	}
	id, err := s.manager.Create(s.requestContext(r), config)
	return id, config, err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, r.PathValue("id"), r.PathValue("action"))
}

var transitions = map[string]struct {
	apply func(*manager.Manager, string) error
	reply string
}{
	"start":  {apply: (*manager.Manager).Start, reply: "Started"},
	"pause":  {apply: (*manager.Manager).Pause, reply: "Paused"},
	"resume": {apply: (*manager.Manager).Resume, reply: "Resumed"},
	"stop":   {apply: (*manager.Manager).Stop, reply: "Stopped"},
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, id string, action string) {
	t, ok := transitions[action]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := t.apply(s.manager, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{Uuid: id, Status: t.reply})
}

// handleResults writes the pending records as a JSON array. Records are relayed verbatim.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	records, err := s.manager.PollResults(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "["+strings.Join(records, ",")+"]")
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	kindName := r.URL.Query().Get("kind")
	data, kind, err := s.manager.FetchArtifact(s.requestContext(r), id, kindName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ToLower(id)+"-"+string(kind)+`.zip"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log.WithError(err).Debug("Client went away during artifact download")
	}
}

func (s *Server) requestContext(r *http.Request) *logctx.Context {
	return logctx.New(r.Context(), s.log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Debug("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := popgenerrors.HTTPStatusFromError(err)
	logger := s.log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
	if status >= http.StatusInternalServerError {
		logging.WithStacktrace(logger, err).Error("Request failed")
	} else {
		logger.WithError(err).Debug("Request rejected")
	}
	s.writeJSON(w, status, errorResponse{Error: errors.Cause(err).Error()})
}
