package monitoring

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed upload audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) RecordUpload(ctx context.Context, uploadID string, entries []*Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upload record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		var score sql.NullInt64
		if e.RiskScore != nil {
			score = sql.NullInt64{Int64: int64(*e.RiskScore), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO monitoring_uploads
				(entry_id, upload_id, tx_id, kind, amount, asset, from_entity, to_entity, risk_score, recorded_at)
			VALUES ($1, $2, $3, $4, $5::NUMERIC(30,10), $6, $7, $8, $9, $10)
			ON CONFLICT (entry_id) DO NOTHING
		`, e.ID, uploadID, e.TxID, string(e.Kind), e.Amount, e.Asset, e.From, e.To, score, e.Timestamp)
		if err != nil {
			return fmt.Errorf("record upload entry: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entity string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, tx_id, kind, amount::TEXT, asset, from_entity, to_entity, risk_score, recorded_at
		FROM monitoring_uploads
		WHERE from_entity = $1 OR to_entity = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, entity, limit)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		var kind string
		var score sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TxID, &kind, &e.Amount, &e.Asset, &e.From, &e.To, &score, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		if score.Valid {
			v := int(score.Int64)
			e.RiskScore = &v
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
