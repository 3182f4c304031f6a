// Package api exposes the engine over HTTP: REST endpoints for
// memory CRUD, search, stats, graph queries, and a WebSocket stream
// of the event bus.
package api

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cortexmem/cortex/internal/engine"
)

// Server is the HTTP handler wired to an *engine.Engine.
type Server struct {
	eng *engine.Engine
	mux *http.ServeMux
}

// NewServer builds a Server and registers its routes.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{eng: eng, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler, stamping every response with an
// X-Request-Id so a client and the server logs can correlate a call.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Request-Id", newRequestID())
	s.mux.ServeHTTP(w, r)
}

// newRequestID mints a ULID: lexicographically sortable by creation
// time, unlike a random UUID, so request logs stay ordered on disk.
func newRequestID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/memories", s.handleAddMemory)
	s.mux.HandleFunc("GET /api/memories/{id}", s.handleGetMemory)
	s.mux.HandleFunc("PATCH /api/memories/{id}", s.handleUpdateMemory)
	s.mux.HandleFunc("DELETE /api/memories/{id}", s.handleDeleteMemory)

	s.mux.HandleFunc("GET /api/memories/recent", s.handleRecent)
	s.mux.HandleFunc("GET /api/memories/important", s.handleImportant)
	s.mux.HandleFunc("GET /api/memories/by-category/{category}", s.handleByCategory)
	s.mux.HandleFunc("GET /api/memories/by-type/{type}", s.handleByType)
	s.mux.HandleFunc("GET /api/memories/project/{project}", s.handleProjectMemories)

	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/suggestions", s.handleSuggestions)

	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/context", s.handleContext)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/consolidate", s.handleConsolidate)

	s.mux.HandleFunc("GET /api/links", s.handleLinks)

	s.mux.HandleFunc("GET /api/graph/entities", s.handleGraphEntities)
	s.mux.HandleFunc("GET /api/graph/query", s.handleGraphQuery)
	s.mux.HandleFunc("GET /api/graph/explain", s.handleGraphExplain)

	s.mux.HandleFunc("POST /api/control/pause", s.handlePause)
	s.mux.HandleFunc("POST /api/control/resume", s.handleResume)
	s.mux.HandleFunc("GET /api/project", s.handleGetProject)
	s.mux.HandleFunc("POST /api/project", s.handleSetProject)

	s.mux.HandleFunc("GET /ws/events", s.handleWS)
}
