package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"realtime-chat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `uid, name, email, avatar_url, mobile, age, gender, custom_status, chat_wallpaper, is_banned, last_seen, created_at`

// UserRepository abstracts the users collection.
type UserRepository interface {
	GetUser(ctx context.Context, uid string) (models.User, error)
	EnsureUser(ctx context.Context, uid, email string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateProfile(ctx context.Context, uid string, upd models.ProfileUpdate) (models.User, error)
	SetBanned(ctx context.Context, uid string, banned bool) error
	SetLastSeen(ctx context.Context, uid string, at time.Time) error
	CountUsers(ctx context.Context) (int, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches one profile.
func (r *UserRepo) GetUser(ctx context.Context, uid string) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE uid=$1`, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

// EnsureUser creates an empty profile for uid on first contact and returns the stored row.
func (r *UserRepo) EnsureUser(ctx context.Context, uid, email string) (models.User, error) {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO users (uid, email) VALUES ($1, $2) ON CONFLICT (uid) DO NOTHING`, uid, email); err != nil {
		return models.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return r.GetUser(ctx, uid)
}

// ListUsers returns every profile ordered by name.
func (r *UserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY name ASC, uid ASC`)
	return users, err
}

// UpdateProfile merge-writes the non-nil fields of upd. A missing row is
// ErrUserNotFound; profiles are only created by EnsureUser.
func (r *UserRepo) UpdateProfile(ctx context.Context, uid string, upd models.ProfileUpdate) (models.User, error) {
	sets, args := profileAssignments(upd)
	if len(sets) == 0 {
		return r.GetUser(ctx, uid)
	}
	args = append(args, uid)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE uid=$%d RETURNING `+userColumns, strings.Join(sets, ", "), len(args))
	var u models.User
	err := r.db.GetContext(ctx, &u, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func profileAssignments(upd models.ProfileUpdate) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("name", upd.Name)
	add("email", upd.Email)
	add("avatar_url", upd.AvatarURL)
	add("mobile", upd.Mobile)
	add("age", upd.Age)
	add("gender", upd.Gender)
	add("custom_status", upd.CustomStatus)
	add("chat_wallpaper", upd.ChatWallpaper)
	return sets, args
}

// SetBanned sets the moderation flag.
func (r *UserRepo) SetBanned(ctx context.Context, uid string, banned bool) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE users SET is_banned=$1 WHERE uid=$2`, banned, uid))(ErrUserNotFound)
}

// SetLastSeen records the presence timestamp. Unknown uids are ignored.
func (r *UserRepo) SetLastSeen(ctx context.Context, uid string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_seen=$1 WHERE uid=$2`, at, uid)
	return err
}

// CountUsers returns the number of profiles.
func (r *UserRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`)
	return n, err
}

// expectOne turns a zero-rows update into notFound.
func expectOne(res sql.Result, err error) func(notFound error) error {
	return func(notFound error) error {
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return notFound
		}
		return nil
	}
}
