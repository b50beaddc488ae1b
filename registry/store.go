package registry

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	watermark "github.com/yyyoichi/watermark_dct"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound  = errors.New("content not found")
	ErrDuplicate = errors.New("content already registered")
)

// Record is one registered piece of content.
type Record struct {
	ID          string
	Message     string
	PayloadHash string
	Config      watermark.Config
	Metadata    map[string]string
	// Reference is the luma plane of the unmarked frame.
	Reference *image.Gray
	CreatedAt time.Time
}

// Match is a stored feature vector close to a query.
type Match struct {
	ContentID  string
	Similarity float64
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts r. Registering an ID twice is ErrDuplicate.
func (s *Store) Put(ctx context.Context, r Record) error {
	if r.Reference == nil {
		return fmt.Errorf("record %q has no reference plane", r.ID)
	}
	var cfg bytes.Buffer
	if err := r.Config.Write(&cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	metadata, err := yaml.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	ref, err := encodeReference(r.Reference)
	if err != nil {
		return fmt.Errorf("failed to compress reference: %w", err)
	}

	size := r.Reference.Bounds().Size()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contents (id, message, payload_hash, config, metadata, width, height, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Message, r.PayloadHash, cfg.String(), string(metadata),
		size.X, size.Y, ref, r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicate, r.ID)
		}
		return fmt.Errorf("failed to insert content: %w", err)
	}
	return nil
}

// Get loads the record registered as id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, message, payload_hash, config, metadata, width, height, reference, created_at
		FROM contents WHERE id = ?`, id)
	return scanRecord(row)
}

// FindByHash returns the IDs registered with the payload hash, oldest first.
func (s *Store) FindByHash(ctx context.Context, hash string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM contents WHERE payload_hash = ? ORDER BY created_at, id", hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query contents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes the record registered as id and its features.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM features WHERE content_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete features: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM contents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// PutFeatures stores the feature vector of a registered content.
func (s *Store) PutFeatures(ctx context.Context, id string, vector []float64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO features (content_id, vector) VALUES (?, ?)",
		id, encodeVector(vector),
	)
	if err != nil {
		return fmt.Errorf("failed to insert features: %w", err)
	}
	return nil
}

// Similar returns stored vectors whose cosine similarity to query exceeds
// threshold, most similar first.
func (s *Store) Similar(ctx context.Context, query []float64, threshold float64) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT content_id, vector FROM features")
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan features: %w", err)
		}
		if sim := cosine(query, decodeVector(data)); sim > threshold {
			matches = append(matches, Match{ContentID: id, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortMatches(matches)
	return matches, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

func scanRecord(row *sql.Row) (Record, error) {
	var (
		r             Record
		cfg, metadata string
		width, height int
		ref           []byte
		createdAt     int64
	)
	err := row.Scan(&r.ID, &r.Message, &r.PayloadHash, &cfg, &metadata, &width, &height, &ref, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to query content: %w", err)
	}
	if r.Config, err = watermark.LoadConfig(strings.NewReader(cfg)); err != nil {
		return Record{}, err
	}
	if err := yaml.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
		return Record{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if r.Reference, err = decodeReference(ref, width, height); err != nil {
		return Record{}, err
	}
	r.CreatedAt = time.UnixMilli(createdAt)
	return r, nil
}
