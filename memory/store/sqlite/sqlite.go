package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/becomeliminal/convctx/core"
	"github.com/becomeliminal/convctx/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS exchange_vectors (
	id       TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	content  TEXT NOT NULL,
	metadata TEXT NOT NULL,
	vector   BLOB NOT NULL,
	PRIMARY KEY (owner_id, id)
);
CREATE INDEX IF NOT EXISTS idx_exchange_vectors_owner ON exchange_vectors(owner_id);
`

// Store is a durable vector index in a single SQLite file. Search is a
// brute-force cosine scan over the owner's rows.
type Store struct {
	db *sql.DB
}

var _ memory.VectorIndex = (*Store)(nil)

// Open opens (or creates) the database at path with WAL journaling and a
// 5 second busy timeout. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %s: %w", pragma, path, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Upsert inserts or replaces a point.
func (s *Store) Upsert(ctx context.Context, p memory.Point) error {
	if p.OwnerID == "" {
		return memory.ErrMissingOwner
	}
	vec, err := encodeVector(p.Vector)
	if err != nil {
		return err
	}
	md := make(map[string]string, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		md[k] = v
	}
	md[memory.MetaOwnerID] = p.OwnerID
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exchange_vectors (id, owner_id, content, metadata, vector) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata, vector = excluded.vector`,
		p.ID, p.OwnerID, p.Content, string(mdJSON), vec)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", p.ID, err)
	}
	return nil
}

// Search scores every row of the owner and returns the best matches.
func (s *Store) Search(ctx context.Context, q memory.Query) ([]memory.ScoredPoint, error) {
	if q.OwnerID == "" {
		return nil, memory.ErrMissingOwner
	}
	if q.Limit <= 0 {
		return nil, nil
	}
	points, err := s.List(ctx, q.OwnerID)
	if err != nil {
		return nil, err
	}

	var scored []memory.ScoredPoint
	for _, p := range points {
		if !matches(p.Metadata, q.Where) {
			continue
		}
		score := float32(memory.Cosine(q.Vector, p.Vector))
		if score < q.MinScore {
			continue
		}
		scored = append(scored, memory.ScoredPoint{Point: p, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}
	return scored, nil
}

// Retrieve returns one point or core.ErrNotFound.
func (s *Store) Retrieve(ctx context.Context, ownerID, id string) (*memory.Point, error) {
	if ownerID == "" {
		return nil, memory.ErrMissingOwner
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, content, metadata, vector FROM exchange_vectors WHERE owner_id = ? AND id = ?`,
		ownerID, id)
	p, err := scanPoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("retrieve %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", id, err)
	}
	return &p, nil
}

// DeleteOwner removes every row of the owner.
func (s *Store) DeleteOwner(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return memory.ErrMissingOwner
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchange_vectors WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("delete owner %s: %w", ownerID, err)
	}
	return nil
}

// List returns every point of the owner.
func (s *Store) List(ctx context.Context, ownerID string) ([]memory.Point, error) {
	if ownerID == "" {
		return nil, memory.ErrMissingOwner
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, content, metadata, vector FROM exchange_vectors WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ownerID, err)
	}
	defer rows.Close()

	var points []memory.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", ownerID, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", ownerID, err)
	}
	return points, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPoint(row scanner) (memory.Point, error) {
	var (
		p      memory.Point
		mdJSON string
		blob   []byte
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Content, &mdJSON, &blob); err != nil {
		return memory.Point{}, err
	}
	if err := json.Unmarshal([]byte(mdJSON), &p.Metadata); err != nil {
		return memory.Point{}, fmt.Errorf("decode metadata of %s: %w", p.ID, err)
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return memory.Point{}, fmt.Errorf("decode vector of %s: %w", p.ID, err)
	}
	p.Vector = vec
	return p, nil
}

func matches(md, where map[string]string) bool {
	for k, v := range where {
		if md[k] != v {
			return false
		}
	}
	return true
}

// encodeVector writes the vector as little-endian float32s.
func encodeVector(vec []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, vec); err != nil {
		return nil, err
	}
	return vec, nil
}
