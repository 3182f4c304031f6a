// Package consolidate runs the background light/medium consolidation
// ticks: periodic decay recomputation, STM->LTM promotion, tag/category
// link discovery, and decayed-row eviction.
package consolidate

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cortexmem/cortex/internal/control"
	"github.com/cortexmem/cortex/internal/eventbus"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/salience"
	"github.com/cortexmem/cortex/internal/store"
)

// LightTickInterval is how often the light tick recomputes decayed
// scores over a capped recently-accessed window.
const LightTickInterval = 60 * time.Second

// LightTickWindow bounds how many rows the light tick touches.
const LightTickWindow = 200

// PersistEveryKTicks makes the light tick recompute and persist decay
// only on every Kth tick; at 1 it does so on every tick.
const PersistEveryKTicks = 1

// MediumTickSchedule is the medium tick's cron expression: every 5
// minutes, per the consolidation contract's "on-demand or ~5min" cadence.
const MediumTickSchedule = "*/5 * * * *"

// PromotionSalienceThreshold is the salience an STM memory must reach
// before the medium tick promotes it to long_term.
const PromotionSalienceThreshold = 0.7

// PromotionSalienceBump is added to salience on promotion, capped at 1.0.
const PromotionSalienceBump = 0.1

// LinkDiscoveryMinSharedTags is the minimum tag/category overlap
// before two memories get an automatic "related" link.
const LinkDiscoveryMinSharedTags = 2

// LinkStrengthRelated is the strength assigned to discovered "related" links.
const LinkStrengthRelated = 0.5

// Worker owns the consolidation tickers. It holds no state beyond its
// dependencies — every tick reads fresh state from the store.
type Worker struct {
	st    *store.Store
	bus   *eventbus.Bus
	ctrl  *control.State
	log   zerolog.Logger
	cron  *cron.Cron
	ticks int
}

// New builds a consolidation Worker.
func New(st *store.Store, bus *eventbus.Bus, ctrl *control.State) *Worker {
	return &Worker{
		st:   st,
		bus:  bus,
		ctrl: ctrl,
		log:  logging.Component(logging.New(), "consolidate"),
		cron: cron.New(),
	}
}

// Run starts the light-tick ticker and the medium-tick cron schedule,
// blocking until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	if _, err := w.cron.AddFunc(MediumTickSchedule, func() {
		if w.ctrl.Paused() {
			return
		}
		if err := w.MediumTick(ctx); err != nil {
			w.log.Warn().Err(err).Msg("medium tick failed")
		}
	}); err != nil {
		w.log.Error().Err(err).Msg("failed to schedule medium tick")
	}
	w.cron.Start()
	defer w.cron.Stop()

	ticker := time.NewTicker(LightTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.ctrl.Paused() {
				continue
			}
			if err := w.LightTick(ctx); err != nil {
				w.log.Warn().Err(err).Msg("light tick failed")
			}
		}
	}
}

// LightTick recomputes decayed_score for the most-recently-accessed
// window of memories and publishes decay_tick.
func (w *Worker) LightTick(ctx context.Context) error {
	w.ticks++
	now := w.st.Clock().Now()
	touched := 0

	err := w.st.WithTx(ctx, func(tx store.DBTX) error {
		mems, err := w.st.ListRecentlyAccessed(ctx, tx, LightTickWindow)
		if err != nil {
			return err
		}
		if w.ticks%PersistEveryKTicks != 0 {
			return nil
		}
		for _, m := range mems {
			decayed := salience.Decay(m.Salience, m.Type, now.Sub(m.LastAccessed).Hours())
			if err := w.st.SetDecayedScore(ctx, tx, m.ID, decayed); err != nil {
				return err
			}
			touched++
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.bus.Publish(eventbus.DecayTick, map[string]interface{}{"touched": touched, "tick": w.ticks})
	w.bus.Publish(eventbus.WorkerLightTick, map[string]interface{}{"touched": touched})
	return nil
}

// MediumTick runs the heavier consolidation pass inside a single
// BEGIN IMMEDIATE transaction: promotion, link discovery, eviction.
func (w *Worker) MediumTick(ctx context.Context) error {
	w.bus.Publish(eventbus.UpdateStarted, nil)

	var promoted, linked, evicted int
	err := w.st.WithImmediateTx(ctx, func(tx store.DBTX) error {
		var err error
		promoted, err = w.promote(ctx, tx)
		if err != nil {
			return err
		}
		linked, err = w.discoverLinks(ctx, tx)
		if err != nil {
			return err
		}
		evicted, err = w.evict(ctx, tx)
		return err
	})
	if err != nil {
		w.bus.Publish(eventbus.UpdateFailed, map[string]string{"error": err.Error()})
		return err
	}

	w.bus.Publish(eventbus.ConsolidationComplete, map[string]int{
		"consolidated": promoted, "decayed": evicted, "deleted": evicted, "links_discovered": linked,
	})
	w.bus.Publish(eventbus.UpdateComplete, nil)
	w.bus.Publish(eventbus.WorkerMediumTick, map[string]int{"promoted": promoted, "evicted": evicted})
	return nil
}

// promote moves short_term memories at/above PromotionSalienceThreshold
// into long_term, bumping salience (capped at 1.0).
func (w *Worker) promote(ctx context.Context, tx store.DBTX) (int, error) {
	mems, err := w.st.ListByTypeAboveSalience(ctx, tx, store.ShortTerm, PromotionSalienceThreshold)
	if err != nil {
		return 0, err
	}
	for _, m := range mems {
		newSalience := m.Salience + PromotionSalienceBump
		if newSalience > 1 {
			newSalience = 1
		}
		if err := w.st.SetType(ctx, tx, m.ID, store.LongTerm, newSalience); err != nil {
			return 0, err
		}
	}
	return len(mems), nil
}

// discoverLinks creates "related" links between memory pairs sharing
// at least LinkDiscoveryMinSharedTags tags or the same category,
// within each project (global memories are compared project-agnostically).
func (w *Worker) discoverLinks(ctx context.Context, tx store.DBTX) (int, error) {
	mems, err := w.st.ListRecentlyAccessed(ctx, tx, LightTickWindow)
	if err != nil {
		return 0, err
	}

	existing, err := w.st.ListAllLinks(ctx, tx)
	if err != nil {
		return 0, err
	}
	have := make(map[[2]int64]bool, len(existing))
	for _, l := range existing {
		have[pairKey(l.SourceID, l.TargetID)] = true
	}

	now := w.st.Clock().Now()
	created := 0
	for i := 0; i < len(mems); i++ {
		for j := i + 1; j < len(mems); j++ {
			a, b := mems[i], mems[j]
			if have[pairKey(a.ID, b.ID)] {
				continue
			}
			crossProject := (a.Project == nil) != (b.Project == nil) ||
				(a.Project != nil && b.Project != nil && *a.Project != *b.Project)
			if crossProject && a.Scope != store.ScopeGlobal && b.Scope != store.ScopeGlobal {
				continue
			}
			shared := sharedTagCount(a.Tags, b.Tags)
			sameCategory := a.Category == b.Category
			if shared < LinkDiscoveryMinSharedTags && !sameCategory {
				continue
			}
			if _, err := w.st.CreateLink(ctx, tx, &store.MemoryLink{
				SourceID: a.ID, TargetID: b.ID, Relationship: "related",
				Strength: LinkStrengthRelated, CreatedAt: now,
			}); err != nil {
				return created, err
			}
			have[pairKey(a.ID, b.ID)] = true
			created++
			w.bus.Publish(eventbus.LinkDiscovered, map[string]int64{"source": a.ID, "target": b.ID})
		}
	}
	return created, nil
}

// evict deletes short_term/episodic rows whose decayed_score has
// fallen below the eviction floor.
func (w *Worker) evict(ctx context.Context, tx store.DBTX) (int, error) {
	count := 0
	for _, t := range []store.MemoryType{store.ShortTerm, store.Episodic} {
		mems, err := w.st.ListByTypeUnderThreshold(ctx, tx, t, salience.EvictionFloor)
		if err != nil {
			return count, err
		}
		for _, m := range mems {
			if err := w.st.DeleteMemory(ctx, tx, m.ID); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func sharedTagCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}
