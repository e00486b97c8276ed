package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"realtime-chat/internal/models"
)

var ErrAppealNotFound = errors.New("appeal not found")

// AppealRepository abstracts the ban_appeals collection.
type AppealRepository interface {
	CreateAppeal(ctx context.Context, appeal models.BanAppeal) (models.BanAppeal, error)
	GetAppeal(ctx context.Context, id string) (models.BanAppeal, error)
	ListAppeals(ctx context.Context) ([]models.BanAppeal, error)
	ResolveAppeal(ctx context.Context, id string) error
	DeleteResolved(ctx context.Context, before time.Time) (int64, error)
	CountPending(ctx context.Context) (int, error)
}

// AppealRepo is a sqlx implementation of AppealRepository.
type AppealRepo struct {
	db *sqlx.DB
}

// NewAppealRepo constructs an AppealRepo.
func NewAppealRepo(db *sqlx.DB) *AppealRepo {
	return &AppealRepo{db: db}
}

// CreateAppeal files a pending appeal.
func (r *AppealRepo) CreateAppeal(ctx context.Context, appeal models.BanAppeal) (models.BanAppeal, error) {
	if appeal.ID == "" {
		appeal.ID = uuid.NewString()
	}
	var out models.BanAppeal
	err := r.db.QueryRowxContext(ctx, `INSERT INTO ban_appeals (id, user_id, user_email, message, status)
        VALUES ($1, $2, $3, $4, $5) RETURNING id, user_id, user_email, message, status, created_at`,
		appeal.ID, appeal.UserID, appeal.UserEmail, appeal.Message, models.AppealPending).StructScan(&out)
	if err != nil {
		return models.BanAppeal{}, fmt.Errorf("create appeal: %w", err)
	}
	return out, nil
}

// GetAppeal fetches one appeal.
func (r *AppealRepo) GetAppeal(ctx context.Context, id string) (models.BanAppeal, error) {
	var a models.BanAppeal
	err := r.db.GetContext(ctx, &a, `SELECT id, user_id, user_email, message, status, created_at FROM ban_appeals WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BanAppeal{}, ErrAppealNotFound
	}
	return a, err
}

// ListAppeals returns all appeals, newest first.
func (r *AppealRepo) ListAppeals(ctx context.Context) ([]models.BanAppeal, error) {
	appeals := []models.BanAppeal{}
	err := r.db.SelectContext(ctx, &appeals, `SELECT id, user_id, user_email, message, status, created_at FROM ban_appeals ORDER BY created_at DESC`)
	return appeals, err
}

// ResolveAppeal marks an appeal resolved.
func (r *AppealRepo) ResolveAppeal(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE ban_appeals SET status=$1 WHERE id=$2`, models.AppealResolved, id))(ErrAppealNotFound)
}

// DeleteResolved batch-deletes resolved appeals created before the cutoff.
func (r *AppealRepo) DeleteResolved(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ban_appeals WHERE status=$1 AND created_at < $2`, models.AppealResolved, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountPending returns the number of appeals awaiting review.
func (r *AppealRepo) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM ban_appeals WHERE status=$1`, models.AppealPending)
	return n, err
}
