package kg

import (
	"regexp"
	"strings"

	"github.com/cortexmem/cortex/internal/store"
)

// ExtractedEntity is a candidate entity surfaced by the extractor,
// before resolution against the store.
type ExtractedEntity struct {
	Name string
	Type string
}

// ExtractedTriple is a candidate (subject, predicate, object) surfaced
// by the extractor, before entity resolution.
type ExtractedTriple struct {
	Subject   string
	Predicate string
	Object    string
}

// Result is what Extract returns for one memory.
type Result struct {
	Entities []ExtractedEntity
	Triples  []ExtractedTriple
}

// categoryPattern pairs a category with the regexes run against its
// memories — extraction is category-conditional: an architecture
// memory is scanned for "uses X" relations, a preference memory for
// "prefers X" relations, and so on.
type categoryPattern struct {
	category  store.Category
	predicate string
	re        *regexp.Regexp
}

// capitalizedWord matches a bare proper-noun-looking token: a run of
// capitalized words, optionally hyphenated/dotted (so "Go-Sqlite3" and
// "PostgreSQL" both qualify), used as the generic entity-name pattern.
var capitalizedWord = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]*(?:[-.][A-Za-z0-9]+)*(?:\s[A-Z][A-Za-z0-9]*)*)\b`)

var categoryPatterns = []categoryPattern{
	{store.CategoryArchitecture, "uses", regexp.MustCompile(`\b([A-Z][\w.\-]*)\s+(?i:use|uses|using|built on|built with)\s+([A-Z][\w.\-]*(?:\s[A-Z][\w.\-]*)*)`)},
	{store.CategoryPreference, "prefers", regexp.MustCompile(`\b([A-Z][\w.\-]*)\s+(?i:prefer(?:s|red)?)\s+([A-Z][\w.\-]*(?:\s[A-Z][\w.\-]*)*)`)},
	{store.CategoryError, "causes", regexp.MustCompile(`(?i)\b([A-Z][\w.\-]*)\s+(?:causes|caused|breaks|broke)\s+([A-Z][\w.\-]*(?:\s[A-Z][\w.\-]*)*)`)},
	{store.CategoryRelationship, "relates_to", regexp.MustCompile(`(?i)\b([A-Z][\w.\-]*)\s+(?:depends on|requires|relates to|connects to)\s+([A-Z][\w.\-]*(?:\s[A-Z][\w.\-]*)*)`)},
}

// genericEntityType is assigned to entities discovered outside any
// category-specific pattern, pending a future narrower classification.
const genericEntityType = "concept"

// Extract runs the category-conditional regex patterns for cat over
// title+content and returns every entity/triple found. This is
// intentionally pattern-based, not LLM-based, per the engine's
// extraction contract.
func Extract(title, content string, cat store.Category) Result {
	text := title + ". " + content
	var res Result
	seenEntities := make(map[string]bool)

	addEntity := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seenEntities[strings.ToLower(name)] {
			return
		}
		seenEntities[strings.ToLower(name)] = true
		res.Entities = append(res.Entities, ExtractedEntity{Name: name, Type: genericEntityType})
	}

	for _, cp := range categoryPatterns {
		if cp.category != cat {
			continue
		}
		matches := cp.re.FindAllStringSubmatch(text, -1)
		for _, m := range matches {
			switch len(m) {
			case 2:
				addEntity(m[1])
			case 3:
				addEntity(m[1])
				addEntity(m[2])
				res.Triples = append(res.Triples, ExtractedTriple{
					Subject: m[1], Predicate: cp.predicate, Object: m[2],
				})
			}
		}
	}

	// Every category also picks up bare capitalized-term mentions as
	// weak entity signals, regardless of which category-specific
	// pattern (if any) matched above.
	for _, m := range capitalizedWord.FindAllString(text, -1) {
		if len(m) < 2 {
			continue
		}
		addEntity(m)
	}

	return res
}
