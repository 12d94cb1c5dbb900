package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

// Schema creates the table backing the catalog
const Schema = `
CREATE TABLE IF NOT EXISTS chunk_manifest (
	id                UUID PRIMARY KEY,
	container         TEXT NOT NULL,
	source_content_id TEXT NOT NULL,
	manifest_id       TEXT NOT NULL,
	mimetype          TEXT NOT NULL DEFAULT '',
	byte_size         BIGINT NOT NULL,
	md5               TEXT NOT NULL,
	chunk_count       INTEGER NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	CONSTRAINT chunk_manifest_item_key UNIQUE (container, source_content_id)
)`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Catalog implements chunkstore.Catalog using PostgreSQL
type Catalog struct {
	db DBTX
}

var _ chunkstore.Catalog = (*Catalog)(nil)

// New creates a new PostgreSQL catalog
func New(db DBTX) *Catalog {
	return &Catalog{db: db}
}

// NewWithPool creates a new PostgreSQL catalog with connection pool
func NewWithPool(pool *pgxpool.Pool) *Catalog {
	return &Catalog{db: pool}
}

// Migrate creates the catalog table if it does not exist
func (c *Catalog) Migrate(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, Schema); err != nil {
		return c.handlePostgresError("migrate", err)
	}
	return nil
}

func (c *Catalog) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("manifest record already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return chunkstore.ErrRecordNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Record inserts record, replacing the record of the same item if one exists
func (c *Catalog) Record(ctx context.Context, record *chunkstore.ManifestRecord) error {
	query := `
		INSERT INTO chunk_manifest (
			id, container, source_content_id, manifest_id, mimetype,
			byte_size, md5, chunk_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (container, source_content_id) DO UPDATE SET
			manifest_id = EXCLUDED.manifest_id,
			mimetype = EXCLUDED.mimetype,
			byte_size = EXCLUDED.byte_size,
			md5 = EXCLUDED.md5,
			chunk_count = EXCLUDED.chunk_count,
			created_at = EXCLUDED.created_at`

	_, err := c.db.Exec(ctx, query,
		record.ID, record.Container, record.SourceContentID, record.ManifestID,
		record.Mimetype, record.ByteSize, record.MD5, record.ChunkCount, record.CreatedAt)
	if err != nil {
		return c.handlePostgresError("record manifest", err)
	}
	return nil
}

func (c *Catalog) Get(ctx context.Context, container, sourceContentID string) (*chunkstore.ManifestRecord, error) {
	query := `
		SELECT id, container, source_content_id, manifest_id, mimetype,
		       byte_size, md5, chunk_count, created_at
		FROM chunk_manifest WHERE container = $1 AND source_content_id = $2`

	record, err := scanRecord(c.db.QueryRow(ctx, query, container, sourceContentID))
	if err != nil {
		return nil, c.handlePostgresError("get manifest record", err)
	}
	return record, nil
}

func (c *Catalog) List(ctx context.Context, container string) ([]*chunkstore.ManifestRecord, error) {
	query := `
		SELECT id, container, source_content_id, manifest_id, mimetype,
		       byte_size, md5, chunk_count, created_at
		FROM chunk_manifest WHERE container = $1
		ORDER BY source_content_id`

	rows, err := c.db.Query(ctx, query, container)
	if err != nil {
		return nil, c.handlePostgresError("list manifest records", err)
	}
	defer rows.Close()

	var records []*chunkstore.ManifestRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, c.handlePostgresError("scan manifest record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, c.handlePostgresError("list manifest records", err)
	}
	return records, nil
}

func (c *Catalog) Delete(ctx context.Context, container, sourceContentID string) error {
	query := `DELETE FROM chunk_manifest WHERE container = $1 AND source_content_id = $2`
	tag, err := c.db.Exec(ctx, query, container, sourceContentID)
	if err != nil {
		return c.handlePostgresError("delete manifest record", err)
	}
	if tag.RowsAffected() == 0 {
		return chunkstore.ErrRecordNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*chunkstore.ManifestRecord, error) {
	var record chunkstore.ManifestRecord
	err := row.Scan(
		&record.ID, &record.Container, &record.SourceContentID, &record.ManifestID,
		&record.Mimetype, &record.ByteSize, &record.MD5, &record.ChunkCount, &record.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
