package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/tee-time-reservation/internal/model"
)

// UserRepo reads and writes the 'users' table.  It resolves the profile
// summaries attached to outgoing notifications.
type UserRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

// ErrBlankUserID is returned when a user id is empty after trimming.
var ErrBlankUserID = errors.New("user id is blank")

// Upsert inserts the user or refreshes its display fields.
func (r *UserRepo) Upsert(ctx context.Context, u model.User) error {
	id := strings.TrimSpace(u.ID)
	if id == "" {
		return ErrBlankUserID
	}
	now := toMillis(r.now())
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=? LIMIT 1", id).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			"INSERT INTO users (id, display_name, avatar_url, created_at, updated_at) VALUES (?,?,?,?,?)",
			id, u.DisplayName, u.AvatarURL, now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			"UPDATE users SET display_name=?, avatar_url=?, updated_at=? WHERE id=?",
			u.DisplayName, u.AvatarURL, now, id)
	}
	if err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	committed = true
	return nil
}

// GetByID fetches a user by id.  ErrNotFound is returned for unknown ids.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var (
		u                model.User
		avatar           sql.NullString
		created, updated int64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,display_name,avatar_url,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.DisplayName, &avatar, &created, &updated)
	if err != nil {
		return model.User{}, classify(err)
	}
	u.AvatarURL = avatar.String
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

// Resolve returns the public profile of userID.  Users that never
// registered a profile resolve to their bare id so notifications can
// still be rendered.
func (r *UserRepo) Resolve(ctx context.Context, userID string) (model.ProfileSummary, error) {
	u, err := r.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return model.ProfileSummary{UserID: userID, DisplayName: userID}, nil
	}
	if err != nil {
		return model.ProfileSummary{}, err
	}
	if strings.TrimSpace(u.DisplayName) == "" {
		u.DisplayName = u.ID
	}
	return u.Summary(), nil
}
