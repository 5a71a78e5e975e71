package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/vectormath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

// memoryTypes fixes the INT encoding of memory.Type for the `type` column.
// Order is part of the persisted layout; never reorder.
var memoryTypes = []memory.Type{memory.TypeEpisodic, memory.TypeSemantic, memory.TypeProcedural, memory.TypeFact}

func typeToInt(t memory.Type) int {
	for i, candidate := range memoryTypes {
		if candidate == t {
			return i
		}
	}
	return -1
}

func intToType(i int) memory.Type {
	if i < 0 || i >= len(memoryTypes) {
		return memory.TypeFact
	}
	return memoryTypes[i]
}

// SQLiteStore is the reference local embedded backend: one row table with a
// packed float32 vector column, indexes on owner/session/type/created_at/
// is_deleted/importance, and a paired FTS5 virtual table kept synchronized
// by triggers. Vector scans are exact: every matching row is scored by
// VectorMath.Cosine, not an approximate index.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
}

var _ MemoryStore = (*SQLiteStore)(nil)

// Options configures a SQLiteStore.
type Options struct {
	Dimension int
	WAL       bool
}

// Open creates or opens a SQLite-backed MemoryStore at path. An empty path
// opens an in-memory database (useful in tests that still want real SQL/FTS5
// semantics rather than MemStore's linear scan).
func Open(path string, opts Options) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, memerr.StorageErr(err, "create data directory %s", dir)
			}
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, memerr.StorageErr(err, "open sqlite database")
	}
	// Single writer: modernc.org/sqlite serializes through one connection,
	// matching the store's single-writer discipline.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if opts.WAL && path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, memerr.StorageErr(err, "apply pragma %q", p)
		}
	}

	s := &SQLiteStore{db: db, dimension: opts.Dimension}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Dimension() int { return s.dimension }

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		session TEXT,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		type INTEGER NOT NULL,
		importance REAL NOT NULL,
		access_count INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_accessed_at TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		topics TEXT NOT NULL DEFAULT '[]',
		entities TEXT NOT NULL DEFAULT '[]',
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner);
	CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type);
	CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
	CREATE INDEX IF NOT EXISTS idx_memories_is_deleted ON memories(is_deleted);
	CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
	CREATE INDEX IF NOT EXISTS idx_memories_owner_hash ON memories(owner, content_hash);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		id UNINDEXED, content, topics, entities
	);

	CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
		INSERT INTO fts_content(id, content, topics, entities)
		VALUES (new.id, new.content, new.topics, new.entities);
	END;
	CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
		DELETE FROM fts_content WHERE id = old.id;
	END;
	CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
		DELETE FROM fts_content WHERE id = old.id;
		INSERT INTO fts_content(id, content, topics, entities)
		VALUES (new.id, new.content, new.topics, new.entities);
	END;
	`
	if _, err := s.db.Exec(schema); err != nil {
		return memerr.StorageErr(err, "initialize sqlite schema")
	}
	return nil
}

// --- encoding helpers -------------------------------------------------

func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func encodeJSONStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func decodeJSONStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func encodeJSONMap(m map[string]string) string {
	if m == nil {
		m = map[string]string{}
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func decodeJSONMap(s string) map[string]string {
	if s == "" {
		return nil
	}
	var out map[string]string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

const isoFormat = time.RFC3339Nano

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(isoFormat), Valid: true}
}

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(isoFormat, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- CRUD --------------------------------------------------------------

func (s *SQLiteStore) validate(unit *memory.Unit) error {
	if unit.ID == "" {
		return memerr.Invalid("unit id is required")
	}
	if s.dimension > 0 && unit.Embedding != nil && len(unit.Embedding) != s.dimension {
		return memerr.ShapeErr("embedding has %d dims, collection requires %d", len(unit.Embedding), s.dimension)
	}
	return nil
}

func (s *SQLiteStore) upsertStmt() string {
	return `
	INSERT INTO memories (
		id, owner, session, content, content_hash, type, importance, access_count,
		created_at, updated_at, last_accessed_at, is_deleted, topics, entities, metadata, embedding
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET
		owner=excluded.owner, session=excluded.session, content=excluded.content,
		content_hash=excluded.content_hash, type=excluded.type, importance=excluded.importance,
		access_count=excluded.access_count, created_at=excluded.created_at, updated_at=excluded.updated_at,
		last_accessed_at=excluded.last_accessed_at, is_deleted=excluded.is_deleted,
		topics=excluded.topics, entities=excluded.entities, metadata=excluded.metadata, embedding=excluded.embedding
	`
}

func (s *SQLiteStore) execUpsert(tx *sql.Tx, unit *memory.Unit) error {
	var session sql.NullString
	if unit.SessionKey != "" {
		session = sql.NullString{String: unit.SessionKey, Valid: true}
	}
	isDeleted := 0
	if unit.IsDeleted {
		isDeleted = 1
	}
	_, err := tx.Exec(s.upsertStmt(),
		unit.ID, unit.OwnerKey, session, unit.Content, unit.ContentHash,
		typeToInt(unit.Type), unit.Importance, unit.AccessCount,
		formatTime(unit.CreatedAt), formatTime(unit.UpdatedAt), formatTime(unit.LastAccessedAt),
		isDeleted, encodeJSONStrings(unit.Topics), encodeJSONStrings(unit.Entities),
		encodeJSONMap(unit.Metadata), encodeVector(unit.Embedding),
	)
	return err
}

func (s *SQLiteStore) Upsert(ctx context.Context, unit *memory.Unit) error {
	if err := ctx.Err(); err != nil {
		return memerr.CancelledErr()
	}
	if err := s.validate(unit); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.StorageErr(err, "begin upsert transaction")
	}
	if err := s.execUpsert(tx, unit); err != nil {
		_ = tx.Rollback()
		return memerr.StorageErr(err, "upsert memory %s", unit.ID)
	}
	if err := tx.Commit(); err != nil {
		return memerr.StorageErr(err, "commit upsert")
	}
	return nil
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, units []*memory.Unit) error {
	if err := ctx.Err(); err != nil {
		return memerr.CancelledErr()
	}
	for _, u := range units {
		if err := s.validate(u); err != nil {
			return err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return memerr.StorageErr(err, "begin batch upsert transaction")
	}
	for _, u := range units {
		if err := s.execUpsert(tx, u); err != nil {
			_ = tx.Rollback()
			return memerr.StorageErr(err, "batch upsert memory %s", u.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return memerr.StorageErr(err, "commit batch upsert")
	}
	return nil
}

const selectCols = `id, owner, session, content, content_hash, type, importance, access_count,
	created_at, updated_at, last_accessed_at, is_deleted, topics, entities, metadata, embedding`

// memoriesSelectCols is selectCols with every column qualified by the
// memories. prefix, needed when joining against fts_content (which shares
// the content/topics/entities column names and would otherwise be ambiguous).
var memoriesSelectCols = qualifyCols(selectCols, "memories")

func qualifyCols(cols, prefix string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanUnit(row interface {
	Scan(dest ...any) error
}) (*memory.Unit, error) {
	var (
		u              memory.Unit
		session        sql.NullString
		typeInt        int
		createdAt      sql.NullString
		updatedAt      sql.NullString
		lastAccessedAt sql.NullString
		isDeleted      int
		topics         string
		entities       string
		metadata       string
		embedding      []byte
	)
	err := row.Scan(&u.ID, &u.OwnerKey, &session, &u.Content, &u.ContentHash, &typeInt,
		&u.Importance, &u.AccessCount, &createdAt, &updatedAt, &lastAccessedAt, &isDeleted,
		&topics, &entities, &metadata, &embedding)
	if err != nil {
		return nil, err
	}
	u.SessionKey = session.String
	u.Type = intToType(typeInt)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	u.LastAccessedAt = parseTime(lastAccessedAt)
	u.IsDeleted = isDeleted != 0
	u.Topics = decodeJSONStrings(topics)
	u.Entities = decodeJSONStrings(entities)
	u.Metadata = decodeJSONMap(metadata)
	u.Embedding = decodeVector(embedding)
	return &u, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*memory.Unit, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectCols+" FROM memories WHERE id = ? AND is_deleted = 0", id)
	u, err := scanUnit(row)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFoundErr("memory %q not found", id)
	}
	if err != nil {
		return nil, memerr.StorageErr(err, "get memory %s", id)
	}
	return u, nil
}

func (s *SQLiteStore) GetByContentHash(ctx context.Context, owner, hash string) (*memory.Unit, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectCols+" FROM memories WHERE owner = ? AND content_hash = ? AND is_deleted = 0 LIMIT 1", owner, hash)
	u, err := scanUnit(row)
	if err == sql.ErrNoRows {
		return nil, memerr.NotFoundErr("no memory for owner %q with hash %s", owner, hash)
	}
	if err != nil {
		return nil, memerr.StorageErr(err, "get by content hash")
	}
	return u, nil
}

func (s *SQLiteStore) GetMany(ctx context.Context, ids []string) ([]*memory.Unit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("SELECT %s FROM memories WHERE id IN (%s) AND is_deleted = 0", selectCols, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, memerr.StorageErr(err, "get_many")
	}
	defer rows.Close()

	var out []*memory.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, memerr.StorageErr(err, "scan get_many row")
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, unit *memory.Unit) error {
	if _, err := s.Get(ctx, unit.ID); err != nil {
		return err
	}
	return s.Upsert(ctx, unit)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string, hard bool) error {
	if hard {
		res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
		if err != nil {
			return memerr.StorageErr(err, "hard delete %s", id)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return memerr.NotFoundErr("memory %q not found", id)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx, "UPDATE memories SET is_deleted = 1, updated_at = ? WHERE id = ?", formatTime(time.Now()), id)
	if err != nil {
		return memerr.StorageErr(err, "soft delete %s", id)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return memerr.NotFoundErr("memory %q not found", id)
	}
	return nil
}

func (s *SQLiteStore) CountForOwner(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE owner = ? AND is_deleted = 0", owner).Scan(&n)
	if err != nil {
		return 0, memerr.StorageErr(err, "count_for_owner")
	}
	return n, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter memory.Filter, limit int) ([]*memory.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	where, args := filterClause(filter)
	query := "SELECT " + selectCols + " FROM memories" + where + " ORDER BY created_at DESC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, memerr.StorageErr(err, "list units")
	}
	defer rows.Close()

	out := make([]*memory.Unit, 0)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, memerr.StorageErr(err, "scan list row")
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.StorageErr(err, "iterate list")
	}
	return out, nil
}

// --- filter -> SQL -------------------------------------------------------

func filterClause(f memory.Filter) (string, []any) {
	var conds []string
	var args []any

	if f.OwnerKey != "" {
		conds = append(conds, "owner = ?")
		args = append(args, f.OwnerKey)
	}
	if f.SessionKey != "" {
		conds = append(conds, "session = ?")
		args = append(args, f.SessionKey)
	}
	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, typeToInt(t))
		}
		conds = append(conds, "type IN ("+strings.Join(placeholders, ",")+")")
	}
	if !f.CreatedAfter.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.CreatedAfter.UTC().Format(isoFormat))
	}
	if !f.CreatedBefore.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.CreatedBefore.UTC().Format(isoFormat))
	}
	if !f.IncludeDeleted {
		conds = append(conds, "is_deleted = 0")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) SearchVector(ctx context.Context, queryVec []float32, filter memory.Filter, limit int, minScore float32) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	where, args := filterClause(filter)
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectCols+" FROM memories"+where, args...)
	if err != nil {
		return nil, memerr.StorageErr(err, "vector scan")
	}
	defer rows.Close()

	hits := make([]VectorHit, 0)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, memerr.StorageErr(err, "scan vector row")
		}
		if u.Embedding == nil {
			continue
		}
		sim, err := vectormath.Cosine(u.Embedding, queryVec)
		if err != nil {
			return nil, err
		}
		if sim < minScore {
			continue
		}
		hits = append(hits, VectorHit{Unit: u, Score: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.StorageErr(err, "iterate vector scan")
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Unit.ID < hits[j].Unit.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *SQLiteStore) SearchFTS(ctx context.Context, query string, filter memory.Filter, limit int) ([]FTSHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	if strings.TrimSpace(query) == "" {
		return []FTSHit{}, nil
	}

	where, args := filterClause(filter)
	joinWhere := strings.Replace(where, " WHERE ", " AND ", 1)

	q := fmt.Sprintf(`
		SELECT %s, bm25(fts_content) AS raw_rank
		FROM fts_content
		JOIN memories ON memories.id = fts_content.id
		WHERE fts_content MATCH ?%s
		ORDER BY raw_rank ASC
	`, memoriesSelectCols, joinWhere)

	queryArgs := append([]any{query}, args...)
	rows, err := s.db.QueryContext(ctx, q, queryArgs...)
	if err != nil {
		return nil, memerr.StorageErr(err, "fts scan")
	}
	defer rows.Close()

	hits := make([]FTSHit, 0)
	for rows.Next() {
		var rawRank float64
		u, err := scanUnitWithRank(rows, &rawRank)
		if err != nil {
			return nil, memerr.StorageErr(err, "scan fts row")
		}
		// bm25() returns a negative-is-better score; normalize to (0,1].
		hits = append(hits, FTSHit{Unit: u, Score: float32(1 / (1 + math.Abs(rawRank)))})
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.StorageErr(err, "iterate fts scan")
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// scanUnitWithRank scans the extra trailing raw_rank column alongside the
// standard unit columns.
func scanUnitWithRank(rows *sql.Rows, rank *float64) (*memory.Unit, error) {
	var (
		u              memory.Unit
		session        sql.NullString
		typeInt        int
		createdAt      sql.NullString
		updatedAt      sql.NullString
		lastAccessedAt sql.NullString
		isDeleted      int
		topics         string
		entities       string
		metadata       string
		embedding      []byte
	)
	err := rows.Scan(&u.ID, &u.OwnerKey, &session, &u.Content, &u.ContentHash, &typeInt,
		&u.Importance, &u.AccessCount, &createdAt, &updatedAt, &lastAccessedAt, &isDeleted,
		&topics, &entities, &metadata, &embedding, rank)
	if err != nil {
		return nil, err
	}
	u.SessionKey = session.String
	u.Type = intToType(typeInt)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	u.LastAccessedAt = parseTime(lastAccessedAt)
	u.IsDeleted = isDeleted != 0
	u.Topics = decodeJSONStrings(topics)
	u.Entities = decodeJSONStrings(entities)
	u.Metadata = decodeJSONMap(metadata)
	u.Embedding = decodeVector(embedding)
	return &u, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
