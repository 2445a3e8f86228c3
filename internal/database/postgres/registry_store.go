package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-attendance/internal/registry"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

// RegistryStore persists the face registry in the face_records table.
type RegistryStore struct {
	pool *Pool
}

// NewRegistryStore creates a registry store on pool.
func NewRegistryStore(pool *Pool) *RegistryStore {
	return &RegistryStore{pool: pool}
}

// Load returns every record in saved order.
func (s *RegistryStore) Load(ctx context.Context) ([]registry.Record, error) {
	rows, err := s.pool.db.QueryContext(ctx, `
		SELECT identity, signature, photo_ref
		FROM face_records
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query face records: %w", err)
	}
	defer rows.Close()

	var records []registry.Record
	for rows.Next() {
		var (
			rec registry.Record
			vec pgvector.Vector
		)
		if err := rows.Scan(&rec.Identity, &vec, &rec.PhotoRef); err != nil {
			return nil, fmt.Errorf("scan face record: %w", err)
		}
		rec.Signature = signature.Signature(vec.Slice())
		if len(rec.Signature) != signature.Size {
			return nil, fmt.Errorf("record %q has signature length %d, want %d", rec.Identity, len(rec.Signature), signature.Size)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face records: %w", err)
	}
	return records, nil
}

// Save replaces the stored registry with records in one transaction.
func (s *RegistryStore) Save(ctx context.Context, records []registry.Record) error {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM face_records"); err != nil {
		return fmt.Errorf("clear face records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_records (identity, position, signature, photo_ref, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.Identity, i, pgvector.NewVector(rec.Signature), rec.PhotoRef); err != nil {
			return fmt.Errorf("insert face record %q: %w", rec.Identity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit face records: %w", err)
	}
	return nil
}
