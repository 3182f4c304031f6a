package store

// schema defines the base tables. Columns added after the initial
// release live in migrateColumns instead, so migrate() stays additive
// and idempotent across upgrades (never drop or rewrite a column).
const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL DEFAULT 'short_term',
	category TEXT NOT NULL DEFAULT 'note',
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	project TEXT,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	salience REAL NOT NULL DEFAULT 0.5,
	tags TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
CREATE INDEX IF NOT EXISTS idx_memories_salience ON memories(salience);

CREATE TABLE IF NOT EXISTS memory_links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relationship TEXT NOT NULL,
	strength REAL NOT NULL DEFAULT 1.0,
	created_at INTEGER NOT NULL,
	UNIQUE(source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON memory_links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON memory_links(target_id);
CREATE INDEX IF NOT EXISTS idx_links_relationship ON memory_links(relationship);

CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	aliases TEXT NOT NULL DEFAULT '[]',
	memory_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_name_type ON entities(name, type);

CREATE TABLE IF NOT EXISTS triples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	predicate TEXT NOT NULL,
	object_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	source_memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	UNIQUE(subject_id, predicate, object_id, source_memory_id)
);

CREATE INDEX IF NOT EXISTS idx_triples_subject ON triples(subject_id);
CREATE INDEX IF NOT EXISTS idx_triples_object ON triples(object_id);
CREATE INDEX IF NOT EXISTS idx_triples_source ON triples(source_memory_id);

CREATE TABLE IF NOT EXISTS memory_entities (
	memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	role TEXT NOT NULL DEFAULT 'mention',
	PRIMARY KEY (memory_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_memory_entities_entity ON memory_entities(entity_id);

CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project TEXT,
	started_at INTEGER NOT NULL,
	ended_at INTEGER,
	summary TEXT NOT NULL DEFAULT '',
	memories_created INTEGER NOT NULL DEFAULT 0,
	memories_accessed INTEGER NOT NULL DEFAULT 0
);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	title, content, tags,
	content='memories',
	content_rowid='id',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, title, content, tags) VALUES (new.id, new.title, new.content, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, title, content, tags) VALUES ('delete', old.id, old.title, old.content, old.tags);
END;

CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, title, content, tags) VALUES ('delete', old.id, old.title, old.content, old.tags);
	INSERT INTO memories_fts(rowid, title, content, tags) VALUES (new.id, new.title, new.content, new.tags);
END;
`

// migrateColumns are additive columns introduced after the initial
// schema. Each is only added if not already present, keeping migrate()
// idempotent and safe to run on every startup.
var migrateColumns = []struct {
	table, column, ddl string
}{
	{"memories", "embedding", "ALTER TABLE memories ADD COLUMN embedding BLOB"},
	{"memories", "scope", "ALTER TABLE memories ADD COLUMN scope TEXT NOT NULL DEFAULT 'project'"},
	{"memories", "transferable", "ALTER TABLE memories ADD COLUMN transferable INTEGER NOT NULL DEFAULT 0"},
	{"memories", "decayed_score", "ALTER TABLE memories ADD COLUMN decayed_score REAL NOT NULL DEFAULT 0"},
}

// migrate applies the base schema then any additive column migrations
// that have not already been applied. Safe to call on every startup.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	for _, m := range migrateColumns {
		has, err := s.hasColumn(m.table, m.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := s.db.Exec(m.ddl); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
