package ratings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/matchbridge/internal/client/models"
	"github.com/dmitrijs2005/matchbridge/internal/common"
	"github.com/dmitrijs2005/matchbridge/internal/dbx"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func has(ctx context.Context, q dbx.DBTX, ratingToken string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ratings WHERE rating_token = ?`, ratingToken).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up rating token: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) Has(ctx context.Context, ratingToken string) (bool, error) {
	return has(ctx, r.db, ratingToken)
}

func (r *SQLiteRepository) Record(ctx context.Context, e Entry) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		seen, err := has(ctx, tx, e.RatingToken)
		if err != nil {
			return err
		}
		if seen {
			return fmt.Errorf("rating[%s]: %w", e.SubjectID, common.ErrAlreadyRated)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ratings (rating_id, session_id, subject_id, rating_token, kind, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.RatingID, e.SessionID, e.SubjectID, e.RatingToken, string(e.Kind), e.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to record rating[%s]: %w", e.SubjectID, err)
		}
		return nil
	})
}

func (r *SQLiteRepository) List(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rating_id, session_id, subject_id, rating_token, kind, created_at
		FROM ratings WHERE session_id = ? ORDER BY rowid
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			created string
		)
		if err := rows.Scan(&e.RatingID, &e.SessionID, &e.SubjectID, &e.RatingToken, &kind, &created); err != nil {
			return nil, fmt.Errorf("failed to scan rating row: %w", err)
		}
		e.Kind = models.RatingKind(kind)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("rating[%s] has bad timestamp %q: %w", e.SubjectID, created, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rating rows: %w", err)
	}
	return out, nil
}
