package screening

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, assessment *RiskAssessment) error {
	detailJSON, err := json.Marshal(struct {
		Categories     Categories     `json:"categories"`
		EntityInfo     EntityInfo     `json:"entityInfo"`
		DominantFactor *RiskFactor    `json:"dominantFactor,omitempty"`
		ActivityStats  *ActivityStats `json:"activityStats,omitempty"`
	}{assessment.Categories, assessment.EntityInfo, assessment.DominantFactor, assessment.ActivityStats})
	if err != nil {
		return fmt.Errorf("failed to marshal assessment detail: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (entity, score, detail, assessed_at)
		VALUES ($1, $2, $3, $4)
	`,
		assessment.Entity,
		assessment.Score,
		detailJSON,
		assessment.AssessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record risk assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByEntity(ctx context.Context, entity string, limit int) ([]*RiskAssessment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity, score, detail, assessed_at
		FROM risk_assessments
		WHERE entity = $1
		ORDER BY assessed_at DESC
		LIMIT $2
	`, entity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*RiskAssessment
	for rows.Next() {
		var a RiskAssessment
		var detailJSON []byte
		var assessedAt time.Time

		if err := rows.Scan(&a.Entity, &a.Score, &detailJSON, &assessedAt); err != nil {
			return nil, err
		}
		a.AssessedAt = assessedAt

		var detail struct {
			Categories     Categories     `json:"categories"`
			EntityInfo     EntityInfo     `json:"entityInfo"`
			DominantFactor *RiskFactor    `json:"dominantFactor"`
			ActivityStats  *ActivityStats `json:"activityStats"`
		}
		_ = json.Unmarshal(detailJSON, &detail)
		a.Categories = detail.Categories
		a.EntityInfo = detail.EntityInfo
		a.DominantFactor = detail.DominantFactor
		a.ActivityStats = detail.ActivityStats

		result = append(result, &a)
	}
	return result, rows.Err()
}
