// Package store provides the embedded SQLite-backed persistence layer:
// schema, migrations, WAL-mode connection handling, and the row types
// shared by every higher-level package.
package store

import "time"

// MemoryType is the tier a memory currently occupies.
type MemoryType string

const (
	ShortTerm MemoryType = "short_term"
	LongTerm  MemoryType = "long_term"
	Episodic  MemoryType = "episodic"
)

// Category is the closed set of memory categories.
type Category string

const (
	CategoryArchitecture Category = "architecture"
	CategoryPattern      Category = "pattern"
	CategoryPreference   Category = "preference"
	CategoryError        Category = "error"
	CategoryContext      Category = "context"
	CategoryLearning     Category = "learning"
	CategoryTodo         Category = "todo"
	CategoryNote         Category = "note"
	CategoryRelationship Category = "relationship"
	CategoryCustom       Category = "custom"
)

// ValidCategories lists every category accepted by the validation layer.
var ValidCategories = map[Category]bool{
	CategoryArchitecture: true, CategoryPattern: true, CategoryPreference: true,
	CategoryError: true, CategoryContext: true, CategoryLearning: true,
	CategoryTodo: true, CategoryNote: true, CategoryRelationship: true,
	CategoryCustom: true,
}

// Scope controls cross-project visibility.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// MaxContentBytes is the hard cap on Memory.Content; overflow is
// truncated with a visible marker.
const MaxContentBytes = 10 * 1024

// TruncationMarker is appended to content that exceeded MaxContentBytes.
const TruncationMarker = "\n…[truncated]"

// Memory is the primary record: a single stored recollection.
type Memory struct {
	ID           int64
	Type         MemoryType
	Category     Category
	Title        string
	Content      string
	Project      *string
	Scope        Scope
	Transferable bool
	Tags         []string
	Salience     float64
	DecayedScore float64
	AccessCount  int64
	LastAccessed time.Time
	CreatedAt    time.Time
	Embedding    []float32
	Metadata     map[string]string
}

// MemoryLink is a directed edge between two memories.
type MemoryLink struct {
	ID           int64
	SourceID     int64
	TargetID     int64
	Relationship string
	Strength     float64
	CreatedAt    time.Time
}

// Entity is a node in the knowledge graph.
type Entity struct {
	ID          int64
	Name        string
	Type        string
	Aliases     []string
	MemoryCount int64
}

// Triple is a directed, labelled edge between two entities, provenance
// tracked to the memory it was extracted from.
type Triple struct {
	ID             int64
	SubjectID      int64
	Predicate      string
	ObjectID       int64
	SourceMemoryID int64
}

// MemoryEntityRole describes how an entity relates to a memory mention.
type MemoryEntityRole string

const RoleMention MemoryEntityRole = "mention"

// MemoryEntity is the junction between memories and entities.
type MemoryEntity struct {
	MemoryID int64
	EntityID int64
	Role     MemoryEntityRole
}

// Session is optional bookkeeping for a client interaction window.
type Session struct {
	ID               int64
	Project          *string
	StartedAt        time.Time
	EndedAt          *time.Time
	Summary          string
	MemoriesCreated  int64
	MemoriesAccessed int64
}
