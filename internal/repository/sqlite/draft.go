package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/msomdec/agun-web/internal/domain"
)

// DraftRepository implements domain.DraftRepository using SQLite. The draft
// is stored as JSON; passwords are never written.
type DraftRepository struct {
	db *sql.DB
}

func NewDraftRepository(db *DB) *DraftRepository {
	return &DraftRepository{db: db.SqlDB}
}

// Create inserts a record, assigning a random ID when none is set.
func (r *DraftRepository) Create(ctx context.Context, rec *domain.DraftRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if !rec.Phase.Valid() {
		rec.Phase = domain.PhaseStep1
	}
	body, err := json.Marshal(rec.Draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO registration_drafts (id, phase, draft, failure, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Phase), string(body), rec.Failure, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (r *DraftRepository) GetByID(ctx context.Context, id string) (*domain.DraftRecord, error) {
	rec := &domain.DraftRecord{}
	var phase, body string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, phase, draft, failure, created_at, updated_at
		 FROM registration_drafts WHERE id = ?`, id,
	).Scan(&rec.ID, &phase, &body, &rec.Failure, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query draft by id: %w", err)
	}
	rec.Phase = domain.Phase(phase)
	rec.Draft = domain.NewDraft()
	if err := json.Unmarshal([]byte(body), &rec.Draft); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return rec, nil
}

// Update overwrites phase, draft and failure.
func (r *DraftRepository) Update(ctx context.Context, rec *domain.DraftRecord) error {
	body, err := json.Marshal(rec.Draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE registration_drafts SET phase = ?, draft = ?, failure = ?, updated_at = ?
		 WHERE id = ?`,
		string(rec.Phase), string(body), rec.Failure, now, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	rec.UpdatedAt = now
	return nil
}

// ClaimSubmission moves a draft from step3 or failed to submitting in one
// statement, so only one concurrent request wins.
func (r *DraftRepository) ClaimSubmission(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE registration_drafts SET phase = ?, failure = '', updated_at = ?
		 WHERE id = ? AND phase IN (?, ?)`,
		string(domain.PhaseSubmitting), time.Now().UTC(), id,
		string(domain.PhaseStep3), string(domain.PhaseFailed),
	)
	if err != nil {
		return false, fmt.Errorf("claim draft: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim draft rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM registration_drafts WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check draft: %w", err)
	}
	return false, nil
}

func (r *DraftRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM registration_drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// DeleteStale removes drafts not touched since before.
func (r *DraftRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM registration_drafts WHERE updated_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete stale drafts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale drafts rows affected: %w", err)
	}
	return n, nil
}
