// Package engine wires together the store, event bus, embedding
// pipeline, control state, consolidator, and embed queue into one
// owned value — the "no package-level globals" contract: every API
// and MCP handler receives an *Engine rather than reaching into
// process-level state.
package engine

import (
	"context"
	"sync"

	"github.com/cortexmem/cortex/internal/clock"
	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/consolidate"
	"github.com/cortexmem/cortex/internal/control"
	"github.com/cortexmem/cortex/internal/embedding"
	"github.com/cortexmem/cortex/internal/eventbus"
	"github.com/cortexmem/cortex/internal/kg"
	"github.com/cortexmem/cortex/internal/memstore"
	"github.com/cortexmem/cortex/internal/search"
	"github.com/cortexmem/cortex/internal/store"
)

// Engine is the single owned handle to every subsystem. Construct one
// per process (or per test) via Open.
type Engine struct {
	Config      *config.Config
	Store       *store.Store
	Bus         *eventbus.Bus
	Memstore    *memstore.Store
	Search      *search.Engine
	Consolidate *consolidate.Worker
	EmbedQueue  *memstore.EmbedQueue
	Pipeline    *embedding.Pipeline
	Control     *control.State

	project   string
	projectMu sync.RWMutex

	cancel context.CancelFunc
}

// Open builds an Engine from resolved config: opens the store,
// constructs every subsystem, and starts the background workers
// (embed queue drain, consolidation ticks). Call Close to stop them.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	st, err := store.Open(cfg.DBPath, clock.System{})
	if err != nil {
		return nil, err
	}

	bus := eventbus.New(0)
	pipeline := embedding.Default()
	embedQ := memstore.NewEmbedQueue(st, pipeline)
	ctrl := control.New()
	ms := memstore.New(st, bus, embedQ, ctrl)
	se := search.New(st, pipeline)
	worker := consolidate.New(st, bus, ctrl)

	runCtx, cancel := context.WithCancel(ctx)
	e := &Engine{
		Config: cfg, Store: st, Bus: bus, Memstore: ms, Search: se,
		Consolidate: worker, EmbedQueue: embedQ, Pipeline: pipeline,
		Control: ctrl, project: cfg.Project, cancel: cancel,
	}

	go embedQ.Run(runCtx)
	go worker.Run(runCtx)

	return e, nil
}

// Close stops the background workers and the underlying store.
func (e *Engine) Close() error {
	e.cancel()
	return e.Store.Close()
}

// Project returns the currently active project scope.
func (e *Engine) Project() string {
	e.projectMu.RLock()
	defer e.projectMu.RUnlock()
	return e.project
}

// SetProject changes the active project scope (the set_project MCP
// tool / API endpoint).
func (e *Engine) SetProject(p string) {
	e.projectMu.Lock()
	defer e.projectMu.Unlock()
	e.project = p
}

// ProjectPtr returns a *string for the active project, or nil if unset
// (global scope), matching the store layer's nilable-project convention.
func (e *Engine) ProjectPtr() *string {
	p := e.Project()
	if p == "" {
		return nil
	}
	return &p
}

// KG exposes a fresh knowledge-graph pipeline bound to the engine's
// store, for graph_query/graph_entities/graph_explain handlers.
func (e *Engine) KG() *kg.Pipeline {
	return kg.NewPipeline(e.Store)
}
