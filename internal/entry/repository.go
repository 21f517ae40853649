package entry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for entry persistence.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	GetByName(ctx context.Context, name string) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)
	UpdateOptions(ctx context.Context, id string, entities []string) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
// Entity lists are stored as JSON arrays.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed entry repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entryColumns = `id, name, entities, option_entities, created_at, updated_at`

// Create inserts e. CreatedAt and UpdatedAt are set when zero.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}

	entities, err := encodeList(e.Entities)
	if err != nil {
		return err
	}
	var options sql.NullString
	if e.OptionEntities != nil {
		s, encErr := encodeList(e.OptionEntities)
		if encErr != nil {
			return encErr
		}
		options = sql.NullString{String: s, Valid: true}
	}

	const query = `INSERT INTO config_entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.Name, entities, options,
		e.CreatedAt.Format(time.RFC3339Nano), e.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrEntryExists, e.Name)
		}
		return fmt.Errorf("inserting entry %s: %w", e.ID, err)
	}
	return nil
}

// Get returns an entry by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Entry, error) {
	const query = `SELECT ` + entryColumns + ` FROM config_entries WHERE id = ?`
	return scanEntry(r.db.QueryRowContext(ctx, query, id))
}

// GetByName returns an entry by its exact name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Entry, error) {
	const query = `SELECT ` + entryColumns + ` FROM config_entries WHERE name = ?`
	return scanEntry(r.db.QueryRowContext(ctx, query, name))
}

// List returns every entry ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	const query = `SELECT ` + entryColumns + ` FROM config_entries ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// UpdateOptions replaces the reconfigured entity list.
func (r *SQLiteRepository) UpdateOptions(ctx context.Context, id string, entities []string) error {
	if entities == nil {
		entities = []string{}
	}
	encoded, err := encodeList(entities)
	if err != nil {
		return err
	}

	const query = `UPDATE config_entries SET option_entities = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, encoded, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("updating entry %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Delete removes an entry.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM config_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                    Entry
		entities             string
		options              sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&e.ID, &e.Name, &entities, &options, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("scanning entry: %w", err)
	}

	if err := json.Unmarshal([]byte(entities), &e.Entities); err != nil {
		return nil, fmt.Errorf("decoding entities of entry %s: %w", e.ID, err)
	}
	if e.Entities == nil {
		e.Entities = []string{}
	}
	if options.Valid {
		e.OptionEntities = []string{}
		if err := json.Unmarshal([]byte(options.String), &e.OptionEntities); err != nil {
			return nil, fmt.Errorf("decoding option entities of entry %s: %w", e.ID, err)
		}
	}

	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
	return &e, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encoding entity list: %w", err)
	}
	return string(b), nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
