package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cortexmem/cortex/internal/errs"
	"github.com/cortexmem/cortex/internal/kg"
	"github.com/cortexmem/cortex/internal/memstore"
	"github.com/cortexmem/cortex/internal/search"
	"github.com/cortexmem/cortex/internal/store"
)

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title        string            `json:"title"`
		Content      string            `json:"content"`
		Category     string            `json:"category"`
		Project      string            `json:"project"`
		Scope        string            `json:"scope"`
		Type         string            `json:"type"`
		Tags         []string          `json:"tags"`
		Transferable *bool             `json:"transferable"`
		Metadata     map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	req := memstore.AddRequest{
		Title: body.Title, Content: body.Content, Tags: body.Tags,
		Transferable: body.Transferable, Metadata: body.Metadata,
	}
	if body.Category != "" {
		cat := store.Category(body.Category)
		req.Category = &cat
	}
	if body.Project != "" {
		req.Project = &body.Project
	} else {
		req.Project = s.eng.ProjectPtr()
	}
	if body.Scope != "" {
		sc := store.Scope(body.Scope)
		req.Scope = &sc
	}
	if body.Type != "" {
		t := store.MemoryType(body.Type)
		req.Type = &t
	}

	m, err := s.eng.Memstore.Add(r.Context(), req)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	touch := r.URL.Query().Get("touch") != "false"
	m, err := s.eng.Memstore.Get(r.Context(), id, touch)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		Title        *string           `json:"title"`
		Content      *string           `json:"content"`
		Category     *string           `json:"category"`
		Type         *string           `json:"type"`
		Scope        *string           `json:"scope"`
		Transferable *bool             `json:"transferable"`
		Tags         []string          `json:"tags"`
		Salience     *float64          `json:"salience"`
		Metadata     map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	req := memstore.UpdateRequest{
		Title: body.Title, Content: body.Content, Transferable: body.Transferable,
		Tags: body.Tags, Salience: body.Salience, Metadata: body.Metadata,
	}
	if body.Category != nil {
		cat := store.Category(*body.Category)
		req.Category = &cat
	}
	if body.Type != nil {
		t := store.MemoryType(*body.Type)
		req.Type = &t
	}
	if body.Scope != nil {
		sc := store.Scope(*body.Scope)
		req.Scope = &sc
	}

	m, err := s.eng.Memstore.Update(r.Context(), id, req)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.eng.Memstore.Delete(r.Context(), id); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 20)
	mems, err := s.eng.Recent(r.Context(), s.projectParam(r), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": mems})
}

func (s *Server) handleImportant(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 20)
	mems, err := s.eng.Important(r.Context(), s.projectParam(r), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": mems})
}

func (s *Server) handleByCategory(w http.ResponseWriter, r *http.Request) {
	cat := store.Category(r.PathValue("category"))
	if !store.ValidCategories[cat] {
		respondError(w, http.StatusBadRequest, errs.New(errs.Validation, "unknown category"))
		return
	}
	limit := intParam(r, "limit", 20)
	mems, err := s.eng.ByCategory(r.Context(), s.projectParam(r), cat, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": mems})
}

func (s *Server) handleByType(w http.ResponseWriter, r *http.Request) {
	t := store.MemoryType(r.PathValue("type"))
	limit := intParam(r, "limit", 20)
	mems, err := s.eng.Memstore.ByType(r.Context(), t, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": mems})
}

func (s *Server) handleProjectMemories(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	mems, err := s.eng.Memstore.ProjectMemories(r.Context(), project)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": mems})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := intParam(r, "limit", 20)

	f := search.Filter{Project: s.projectParam(r)}
	if cat := r.URL.Query().Get("category"); cat != "" {
		c := store.Category(cat)
		f.Category = &c
	}
	if t := r.URL.Query().Get("type"); t != "" {
		mt := store.MemoryType(t)
		f.Type = &mt
	}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		f.Tags = strings.Split(tags, ",")
	}
	if ms := r.URL.Query().Get("min_salience"); ms != "" {
		if v, err := strconv.ParseFloat(ms, 64); err == nil {
			f.MinSalience = &v
		}
	}
	if id := r.URL.Query().Get("include_decayed"); id != "" {
		f.IncludeDecayed = id == "true"
	}
	if ig := r.URL.Query().Get("include_global"); ig != "" {
		v := ig == "true"
		f.IncludeGlobal = &v
	}

	results, err := s.eng.Search.Search(r.Context(), q, f, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := intParam(r, "limit", 5)
	mems, err := s.eng.Suggestions(r.Context(), q, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"suggestions": mems})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.eng.Stats(r.Context(), s.projectParam(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	summary, err := s.eng.ContextSummary(r.Context(), s.projectParam(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	size, err := s.eng.Store.SizeInfo(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	warn, err := s.eng.Store.IsWarn(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	blocked, _, err := s.eng.Store.IsBlocked(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"paused":        s.eng.Control.Paused(),
		"uptime":        s.eng.Control.UptimeHuman(),
		"size_bytes":    size,
		"warn":          warn,
		"over_capacity": blocked,
	})
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	if s.eng.Control.Paused() {
		respondError(w, statusFromError(errs.New(errs.Paused, "consolidation is paused")), errs.New(errs.Paused, "consolidation is paused"))
		return
	}
	if err := s.eng.Consolidate.MediumTick(r.Context()); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	var links []*store.MemoryLink
	err := s.eng.Store.WithTx(r.Context(), func(tx store.DBTX) error {
		var err error
		links, err = s.eng.Store.ListAllLinks(r.Context(), tx)
		return err
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"links": links})
}

func (s *Server) handleGraphEntities(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	minMentions := intParam(r, "min_mentions", 0)
	limit := intParam(r, "limit", 50)

	var entities []*store.Entity
	err := s.eng.Store.WithTx(r.Context(), func(tx store.DBTX) error {
		var err error
		entities, err = s.eng.Store.ListEntities(r.Context(), tx, typ, minMentions, limit)
		return err
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (s *Server) handleGraphQuery(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("entity_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	depth := intParam(r, "depth", kg.DefaultDepthCap)
	var predicates []string
	if p := r.URL.Query().Get("predicates"); p != "" {
		predicates = strings.Split(p, ",")
	}

	var neighbors []kg.Neighbor
	err = s.eng.Store.WithTx(r.Context(), func(tx store.DBTX) error {
		var err error
		neighbors, err = kg.Query(r.Context(), s.eng.Store, tx, id, depth, predicates)
		return err
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"neighbors": neighbors})
}

func (s *Server) handleGraphExplain(w http.ResponseWriter, r *http.Request) {
	fromID, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	toID, err := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	depth := intParam(r, "depth", kg.DefaultDepthCap)

	var path []kg.Neighbor
	var found bool
	err = s.eng.Store.WithTx(r.Context(), func(tx store.DBTX) error {
		var err error
		path, found, err = kg.Explain(r.Context(), s.eng.Store, tx, fromID, toID, depth)
		return err
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"path": path, "found": found})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.eng.Control.Pause()
	respondJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.eng.Control.Resume()
	respondJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"project": s.eng.Project()})
}

func (s *Server) handleSetProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Project string `json:"project"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	s.eng.SetProject(body.Project)
	respondJSON(w, http.StatusOK, map[string]string{"project": body.Project})
}

func (s *Server) projectParam(r *http.Request) *string {
	if p := r.URL.Query().Get("project"); p != "" {
		return &p
	}
	return s.eng.ProjectPtr()
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFromError(err error) int {
	switch errs.KindOf(err) {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Paused:
		return http.StatusServiceUnavailable
	case errs.OverCapacity:
		return http.StatusInsufficientStorage
	case errs.Contention:
		return http.StatusConflict
	case errs.Degraded:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}
