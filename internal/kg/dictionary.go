// Package kg extracts entities and (subject, predicate, object)
// triples from memory text and resolves them against the existing
// entity table.
//
// The entity dictionary and text scanner share one canonicalizer and
// one Aho-Corasick automaton: the same normalization that produces a
// pattern at registration time is applied to the document at scan
// time, so "Go-Sqlite3" and "go-SQLITE3" collapse onto the same match.
package kg

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
)

// isJoiner reports punctuation kept INSIDE a canonicalized name —
// apostrophes, hyphens, dots, slashes — so multiword identifiers like
// "O'Brien" or "go.mod" survive canonicalization intact.
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘',
		'-', '–', '—',
		'.', '_', '/', '#':
		return true
	default:
		return false
	}
}

func isSeparator(r rune) bool {
	return !(unicode.IsLetter(r) || unicode.IsDigit(r) || isJoiner(r))
}

// Canonicalize lowercases, folds curly quotes/dashes to their ASCII
// equivalents, keeps letters/digits/joiners, and collapses every other
// run of characters to a single space. Used for BOTH pattern
// compilation and document scanning so the two always agree.
func Canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := fold(ch)
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}

	result := out.String()
	return strings.TrimSuffix(result, " ")
}

func fold(ch rune) rune {
	c := unicode.ToLower(ch)
	switch c {
	case '’', '‘':
		return '\''
	case '–', '—':
		return '-'
	default:
		return c
	}
}

// EntityInfo is what the dictionary returns for a matched pattern.
type EntityInfo struct {
	ID   int64
	Name string
	Type string
}

// Seed is one (name, type, aliases) entry used to build a Dictionary.
type Seed struct {
	ID      int64
	Name    string
	Type    string
	Aliases []string
}

// Dictionary is a compiled Aho-Corasick automaton over every known
// entity's surface forms, used to scan new memory text for mentions
// of entities the store already knows about.
type Dictionary struct {
	ac           *ahocorasick.Automaton
	patternToIDs [][]int64
	patternIndex map[string]int
	idToInfo     map[int64]*EntityInfo
	patterns     []string
}

// Compile builds a Dictionary from the current entity table.
func Compile(seeds []Seed) (*Dictionary, error) {
	d := &Dictionary{
		patternIndex: make(map[string]int),
		idToInfo:     make(map[int64]*EntityInfo),
	}

	for _, e := range seeds {
		d.idToInfo[e.ID] = &EntityInfo{ID: e.ID, Name: e.Name, Type: e.Type}

		surfaces := append([]string{e.Name}, e.Aliases...)
		for _, surface := range surfaces {
			key := Canonicalize(surface)
			if key == "" {
				continue
			}
			if idx, ok := d.patternIndex[key]; ok {
				d.patternToIDs[idx] = appendUniqueID(d.patternToIDs[idx], e.ID)
				continue
			}
			idx := len(d.patterns)
			d.patterns = append(d.patterns, key)
			d.patternIndex[key] = idx
			d.patternToIDs = append(d.patternToIDs, []int64{e.ID})
		}
	}

	if len(d.patterns) == 0 {
		return d, nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(d.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	d.ac = automaton
	return d, nil
}

// Match is one entity mention found in a scanned document, with
// offsets into the ORIGINAL (not canonicalized) text.
type Match struct {
	Start       int
	End         int
	MatchedText string
	EntityIDs   []int64
}

// Scan finds every known-entity mention in text.
func (d *Dictionary) Scan(text string) []Match {
	if d.ac == nil {
		return nil
	}

	canonical := Canonicalize(text)
	offsetMap := buildOffsetMap(text)

	raw := d.ac.FindAllOverlapping([]byte(canonical))
	out := make([]Match, 0, len(raw))
	for _, m := range raw {
		start := mapOffset(m.Start, offsetMap, len(text))
		end := mapOffset(m.End, offsetMap, len(text))
		if start >= len(text) || end > len(text) || start >= end {
			continue
		}
		idx := m.PatternID
		if idx < 0 || idx >= len(d.patternToIDs) {
			continue
		}
		out = append(out, Match{
			Start:       start,
			End:         end,
			MatchedText: text[start:end],
			EntityIDs:   d.patternToIDs[idx],
		})
	}
	return out
}

// InfoByID returns the EntityInfo registered under id, if any.
func (d *Dictionary) InfoByID(id int64) *EntityInfo {
	return d.idToInfo[id]
}

func buildOffsetMap(original string) []int {
	mapping := make([]int, 0, len(original)+1)
	lastWasSpace := true
	origPos := 0

	for _, ch := range original {
		runeLen := utf8.RuneLen(ch)
		c := fold(ch)

		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			canonLen := utf8.RuneLen(c)
			for i := 0; i < canonLen; i++ {
				mapping = append(mapping, origPos)
			}
			lastWasSpace = false
		} else if !lastWasSpace {
			mapping = append(mapping, origPos)
			lastWasSpace = true
		}
		origPos += runeLen
	}

	mapping = append(mapping, origPos)
	return mapping
}

func mapOffset(canonOffset int, mapping []int, originalLen int) int {
	if canonOffset >= len(mapping) {
		return originalLen
	}
	if canonOffset < 0 {
		return 0
	}
	return mapping[canonOffset]
}

func appendUniqueID(ids []int64, id int64) []int64 {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
