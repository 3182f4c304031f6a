// Package salience computes static importance from text features and
// the time-decay/reinforcement/priority dynamics that model forgetting
// and reinforcement over a memory's lifetime.
package salience

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/orsinium-labs/stopwords"

	"github.com/cortexmem/cortex/internal/store"
)

// dictionaryEntry maps a keyword family to the category it suggests and
// the additive weight it contributes to static salience.
type dictionaryEntry struct {
	words    []string
	category store.Category
	weight   float64
}

var dictionaries = []dictionaryEntry{
	{words: []string{"architecture", "design pattern", "system design", "microservice", "monolith"}, category: store.CategoryArchitecture, weight: 0.25},
	{words: []string{"error", "bug", "exception", "crash", "failure", "fix"}, category: store.CategoryError, weight: 0.2},
	{words: []string{"decided", "decision", "chose", "we will", "going with"}, category: store.CategoryArchitecture, weight: 0.2},
	{words: []string{"learned", "learning", "discovered", "realized", "turns out"}, category: store.CategoryLearning, weight: 0.2},
	{words: []string{"prefer", "preference", "like to", "favorite", "always use"}, category: store.CategoryPreference, weight: 0.15},
	{words: []string{"pattern", "idiom", "convention", "best practice"}, category: store.CategoryPattern, weight: 0.2},
	{words: []string{"important", "critical", "crucial", "must", "never forget"}, category: store.CategoryContext, weight: 0.25},
	{words: []string{"todo", "task", "follow up", "pending"}, category: store.CategoryTodo, weight: 0.15},
}

// baseSalience is the static floor every memory starts from.
const baseSalience = 0.2

// globalMarkers are literal phrases that force scope=global regardless
// of category.
var globalMarkers = []string{"always", "never", "best practice"}

// Calculate computes static salience (0.2-1.0) from title+content via
// the keyword dictionaries above; each matched family contributes its
// weight additively, clamped to [0,1].
func Calculate(title, content string) float64 {
	text := strings.ToLower(title + " " + content)
	score := baseSalience
	for _, d := range dictionaries {
		for _, w := range d.words {
			if strings.Contains(text, w) {
				score += d.weight
				break
			}
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// SuggestCategory returns the category whose dictionary matched with
// the largest weight, defaulting to CategoryNote.
func SuggestCategory(title, content string) store.Category {
	text := strings.ToLower(title + " " + content)
	best := store.CategoryNote
	bestWeight := 0.0
	for _, d := range dictionaries {
		for _, w := range d.words {
			if strings.Contains(text, w) && d.weight > bestWeight {
				bestWeight = d.weight
				best = d.category
				break
			}
		}
	}
	return best
}

// HasGlobalMarker reports whether text contains an "always|never|best
// practice"-style marker that forces scope=global.
func HasGlobalMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range globalMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var stopset = stopwords.MustGet("en")

// ExtractTags tokenizes title+content, drops stopwords and very short
// tokens, and returns the most frequent remaining words as tags
// (ordered by frequency, ties broken alphabetically for determinism).
func ExtractTags(title, content string, max int) []string {
	text := strings.ToLower(title + " " + content)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})

	freq := make(map[string]int)
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if stopset.Contains(f) {
			continue
		}
		freq[f]++
	}

	type kv struct {
		word  string
		count int
	}
	kvs := make([]kv, 0, len(freq))
	for w, c := range freq {
		kvs = append(kvs, kv{w, c})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].word < kvs[j].word
	})

	if max <= 0 || max > len(kvs) {
		max = len(kvs)
	}
	out := make([]string, 0, max)
	for i := 0; i < max; i++ {
		out = append(out, kvs[i].word)
	}
	return out
}

// Explain returns a human-readable account of how Calculate arrived
// at its score, for debugging/UI display.
func Explain(title, content string) string {
	text := strings.ToLower(title + " " + content)
	var matched []string
	for _, d := range dictionaries {
		for _, w := range d.words {
			if strings.Contains(text, w) {
				matched = append(matched, fmt.Sprintf("%q (+%.2f, %s)", w, d.weight, d.category))
				break
			}
		}
	}
	if len(matched) == 0 {
		return fmt.Sprintf("base salience %.2f; no keyword dictionary matched", baseSalience)
	}
	return fmt.Sprintf("base %.2f + %s", baseSalience, strings.Join(matched, " + "))
}

// decayRate returns the per-hour multiplicative decay rate for a
// memory type.
func decayRate(t store.MemoryType) float64 {
	switch t {
	case store.ShortTerm:
		return 0.995
	case store.Episodic:
		return 0.998
	case store.LongTerm:
		return 0.9995
	default:
		return 0.995
	}
}

// Decay computes decayed(t) = salience * r^deltaHours.
func Decay(salienceVal float64, t store.MemoryType, deltaHours float64) float64 {
	if deltaHours < 0 {
		deltaHours = 0
	}
	return salienceVal * math.Pow(decayRate(t), deltaHours)
}

// EvictionFloor is the default decayed_score threshold below which a
// memory becomes eligible for eviction.
const EvictionFloor = 0.1

// ReinforcementBoost computes the diminishing-returns bump applied to
// salience on access; larger for STM than LTM.
func ReinforcementBoost(t store.MemoryType, accessCount int64) float64 {
	base := 0.05
	switch t {
	case store.ShortTerm:
		base = 0.08
	case store.Episodic:
		base = 0.05
	case store.LongTerm:
		base = 0.02
	}
	// Diminishing returns: boost shrinks as 1/(1+accessCount).
	return base / (1 + float64(accessCount))
}

// Reinforce returns the new salience after an access event.
func Reinforce(salienceVal float64, t store.MemoryType, accessCount int64) float64 {
	boosted := salienceVal + ReinforcementBoost(t, accessCount)
	if boosted > 1 {
		return 1
	}
	return boosted
}

func typeWeight(t store.MemoryType) float64 {
	switch t {
	case store.LongTerm:
		return 1.0
	case store.Episodic:
		return 0.6
	case store.ShortTerm:
		return 0.3
	default:
		return 0.3
	}
}

// PriorityLogK bounds the log1p(accessCount) term so heavily-accessed
// memories don't dominate priority.
const PriorityLogK = 5.0

// Priority computes the bounded composite used as a ranking term when
// no query is given.
func Priority(decayed, salienceVal float64, accessCount int64, t store.MemoryType) float64 {
	logTerm := math.Log1p(float64(accessCount)) / PriorityLogK
	if logTerm > 1 {
		logTerm = 1
	}
	return 0.4*decayed + 0.3*salienceVal + 0.2*logTerm + 0.1*typeWeight(t)
}
