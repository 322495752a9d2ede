// Package sqlite provides a durable Store backed by SQLite.
//
// Embedding vectors are stored as little-endian float32 BLOBs; similarity
// work happens in the application layer, which is fine for the collection
// sizes a single agent accumulates.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/neurabase/brain-go-sdk/brain"
)

// SQLiteStore implements brain.Store on a SQLite database. Each Put or
// UpsertEdge is a single statement, so record writes are atomic.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for an ephemeral database.
func New(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS memory_nodes (
			id TEXT PRIMARY KEY,
			raw_id TEXT,
			content TEXT NOT NULL,
			kind TEXT NOT NULL,
			project_id TEXT NOT NULL DEFAULT '',
			tags TEXT,            -- JSON array
			embedding BLOB,
			memory_layer TEXT NOT NULL,
			memory_state TEXT NOT NULL,
			topic_path TEXT,      -- JSON array
			skill_path TEXT,      -- JSON array
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed TEXT NOT NULL,
			reinforcement_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			emotional_weight REAL NOT NULL DEFAULT 0,
			integration_depth REAL NOT NULL DEFAULT 0,
			decay_rate REAL NOT NULL DEFAULT 0.1,
			priority_review INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_nodes_project ON memory_nodes(project_id);
		CREATE INDEX IF NOT EXISTS idx_nodes_layer ON memory_nodes(memory_layer);

		CREATE TABLE IF NOT EXISTS memory_connections (
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			connection_type TEXT NOT NULL,
			strength REAL NOT NULL DEFAULT 0.5,
			reinforcement_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_reinforced TEXT NOT NULL,
			PRIMARY KEY (source_id, target_id, connection_type),
			FOREIGN KEY (source_id) REFERENCES memory_nodes(id) ON DELETE CASCADE,
			FOREIGN KEY (target_id) REFERENCES memory_nodes(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_conn_source ON memory_connections(source_id);
		CREATE INDEX IF NOT EXISTS idx_conn_target ON memory_connections(target_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Put inserts or replaces a node record.
func (s *SQLiteStore) Put(ctx context.Context, n *brain.Node) error {
	tags, _ := json.Marshal(n.Tags)
	topic, _ := json.Marshal(n.TopicPath)
	skill, _ := json.Marshal(n.SkillPath)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memory_nodes (
			id, raw_id, content, kind, project_id, tags, embedding,
			memory_layer, memory_state, topic_path, skill_path,
			access_count, last_accessed, reinforcement_count, created_at,
			emotional_weight, integration_depth, decay_rate, priority_review
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RawID, n.Content, string(n.Kind), n.ProjectID, string(tags), encodeVector(n.Embedding),
		string(n.Layer), string(n.State), string(topic), string(skill),
		n.AccessCount, n.LastAccessed.UTC().Format(time.RFC3339Nano),
		n.ReinforcementCount, n.CreatedAt.UTC().Format(time.RFC3339Nano),
		n.EmotionalWeight, n.IntegrationDepth, n.DecayRate, boolToInt(n.PriorityReview),
	)
	if err != nil {
		return fmt.Errorf("put node: %w", err)
	}
	return nil
}

const nodeColumns = `id, raw_id, content, kind, project_id, tags, embedding,
	memory_layer, memory_state, topic_path, skill_path,
	access_count, last_accessed, reinforcement_count, created_at,
	emotional_weight, integration_depth, decay_rate, priority_review`

// Get returns the node with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*brain.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM memory_nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, &brain.NotFoundError{Kind: "node", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

// Delete removes a node; the foreign keys cascade to its edges.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &brain.NotFoundError{Kind: "node", ID: id}
	}
	return nil
}

// UpsertEdge inserts or replaces the edge with the same (source, target, type).
func (s *SQLiteStore) UpsertEdge(ctx context.Context, c *brain.Connection) error {
	if c.SourceID == c.TargetID {
		return &brain.InvalidReferenceError{NodeID: c.SourceID, Reason: "self-loop"}
	}
	for _, id := range []string{c.SourceID, c.TargetID} {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM memory_nodes WHERE id = ?`, id).Scan(&exists)
		if err == sql.ErrNoRows {
			return &brain.InvalidReferenceError{NodeID: id, Reason: "node does not exist"}
		}
		if err != nil {
			return fmt.Errorf("check endpoint: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memory_connections (
			source_id, target_id, connection_type, strength,
			reinforcement_count, created_at, last_reinforced
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.SourceID, c.TargetID, string(c.Type), c.Strength,
		c.ReinforcementCount,
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
		c.LastReinforced.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}
	return nil
}

const edgeColumns = `source_id, target_id, connection_type, strength,
	reinforcement_count, created_at, last_reinforced`

// Edge returns the edge with the given key.
func (s *SQLiteStore) Edge(ctx context.Context, key brain.EdgeKey) (*brain.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM memory_connections
		 WHERE source_id = ? AND target_id = ? AND connection_type = ?`,
		key.SourceID, key.TargetID, string(key.Type))
	c, err := scanEdge(row)
	if err == sql.ErrNoRows {
		return nil, &brain.NotFoundError{Kind: "edge", ID: key.SourceID + "->" + key.TargetID}
	}
	if err != nil {
		return nil, fmt.Errorf("get edge: %w", err)
	}
	return c, nil
}

// DeleteEdge removes an edge. Missing edges are ignored.
func (s *SQLiteStore) DeleteEdge(ctx context.Context, key brain.EdgeKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_connections
		 WHERE source_id = ? AND target_id = ? AND connection_type = ?`,
		key.SourceID, key.TargetID, string(key.Type))
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	return nil
}

// Neighbors returns the edges leaving a node, optionally filtered by type.
func (s *SQLiteStore) Neighbors(ctx context.Context, id string, types ...brain.ConnectionType) ([]*brain.Connection, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	query := `SELECT ` + edgeColumns + ` FROM memory_connections WHERE source_id = ?`
	args := []any{id}
	if len(types) > 0 {
		query += ` AND connection_type IN (?` + strings.Repeat(",?", len(types)-1) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	return s.queryEdges(ctx, query, args...)
}

// Incident returns every edge touching a node in either direction.
func (s *SQLiteStore) Incident(ctx context.Context, id string) ([]*brain.Connection, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.queryEdges(ctx,
		`SELECT `+edgeColumns+` FROM memory_connections WHERE source_id = ? OR target_id = ?`,
		id, id)
}

// Edges returns all edges.
func (s *SQLiteStore) Edges(ctx context.Context) ([]*brain.Connection, error) {
	return s.queryEdges(ctx, `SELECT `+edgeColumns+` FROM memory_connections`)
}

// Query loads every node and filters by predicate in the application layer.
// Predicates are arbitrary Go functions, so there is nothing to push down.
func (s *SQLiteStore) Query(ctx context.Context, p brain.Predicate) ([]*brain.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM memory_nodes`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var out []*brain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if p == nil || p(n) {
			out = append(out, n)
		}
	}
	return out, rows.Err()
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) queryEdges(ctx context.Context, query string, args ...any) ([]*brain.Connection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var out []*brain.Connection
	for rows.Next() {
		c, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*brain.Node, error) {
	var (
		n                        brain.Node
		kind, layer, state       string
		tags, topic, skill       sql.NullString
		embedding                []byte
		lastAccessed, createdAt  string
		priorityReview           int
	)
	err := row.Scan(
		&n.ID, &n.RawID, &n.Content, &kind, &n.ProjectID, &tags, &embedding,
		&layer, &state, &topic, &skill,
		&n.AccessCount, &lastAccessed, &n.ReinforcementCount, &createdAt,
		&n.EmotionalWeight, &n.IntegrationDepth, &n.DecayRate, &priorityReview,
	)
	if err != nil {
		return nil, err
	}
	n.Kind = brain.ContentKind(kind)
	n.Layer = brain.MemoryLayer(layer)
	n.State = brain.MemoryState(state)
	n.Embedding = decodeVector(embedding)
	n.PriorityReview = priorityReview != 0
	n.LastAccessed, _ = time.Parse(time.RFC3339Nano, lastAccessed)
	n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if tags.Valid {
		_ = json.Unmarshal([]byte(tags.String), &n.Tags)
	}
	if topic.Valid {
		_ = json.Unmarshal([]byte(topic.String), &n.TopicPath)
	}
	if skill.Valid {
		_ = json.Unmarshal([]byte(skill.String), &n.SkillPath)
	}
	return &n, nil
}

func scanEdge(row scanner) (*brain.Connection, error) {
	var (
		c                         brain.Connection
		typ                       string
		createdAt, lastReinforced string
	)
	err := row.Scan(&c.SourceID, &c.TargetID, &typ, &c.Strength,
		&c.ReinforcementCount, &createdAt, &lastReinforced)
	if err != nil {
		return nil, err
	}
	c.Type = brain.ConnectionType(typ)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	c.LastReinforced, _ = time.Parse(time.RFC3339Nano, lastReinforced)
	return &c, nil
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into a float32 slice.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ brain.Store = (*SQLiteStore)(nil)
