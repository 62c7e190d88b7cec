package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vidtube/apiserver/types"
)

// profileColumns never includes credential material.
const profileColumns = `id, username, email, full_name, avatar, cover_image, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID loads the full record including credential hashes.
func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT id, username, email, full_name, avatar, cover_image,
			password_hash, COALESCE(refresh_token_hash, ''), created_at, updated_at
		FROM users
		WHERE id = $1`
	return scanFullUser(r.db.QueryRowContext(ctx, query, id))
}

// GetProfileByID loads the sanitized projection along with the watch history IDs.
func (r *UserRepository) GetProfileByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + profileColumns + ` FROM users WHERE id = $1`
	user, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return types.User{}, err
	}

	history, err := r.watchHistoryIDs(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	user.WatchHistory = history
	return user, nil
}

// FindByUsernameOrEmail returns the first user matching either non-empty key.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error) {
	const query = `
		SELECT id, username, email, full_name, avatar, cover_image,
			password_hash, COALESCE(refresh_token_hash, ''), created_at, updated_at
		FROM users
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		ORDER BY id
		LIMIT 1`
	return scanFullUser(r.db.QueryRowContext(ctx, query, username, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, full_name, password_hash, avatar, cover_image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.Avatar,
		user.CoverImage,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

// UpdateDetails sets full name and email and returns the sanitized record.
func (r *UserRepository) UpdateDetails(ctx context.Context, id int, fullName, email string) (types.User, error) {
	const query = `
		UPDATE users
		SET full_name = $1,
			email = $2,
			updated_at = $3
		WHERE id = $4
		RETURNING ` + profileColumns
	user, err := scanProfile(r.db.QueryRowContext(ctx, query, fullName, email, time.Now(), id))
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id int, avatar string) (types.User, error) {
	const query = `
		UPDATE users
		SET avatar = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + profileColumns
	return scanProfile(r.db.QueryRowContext(ctx, query, avatar, time.Now(), id))
}

func (r *UserRepository) UpdateCoverImage(ctx context.Context, id int, coverImage string) (types.User, error) {
	const query = `
		UPDATE users
		SET cover_image = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + profileColumns
	return scanProfile(r.db.QueryRowContext(ctx, query, coverImage, time.Now(), id))
}

// UpdatePasswordHash replaces only the password digest.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, passwordHash, time.Now(), id)
}

// SetRefreshTokenHash replaces the single refresh token slot. A nil hash
// clears it.
func (r *UserRepository) SetRefreshTokenHash(ctx context.Context, id int, hash *string) error {
	const query = `UPDATE users SET refresh_token_hash = $1 WHERE id = $2`
	var value sql.NullString
	if hash != nil {
		value = sql.NullString{String: *hash, Valid: true}
	}
	return r.execOne(ctx, query, value, id)
}

func (r *UserRepository) watchHistoryIDs(ctx context.Context, userID int) ([]int, error) {
	const query = `SELECT video_id FROM watch_history WHERE user_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFullUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.Avatar,
		&user.CoverImage,
		&user.PasswordHash,
		&user.RefreshTokenHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func scanProfile(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.Avatar,
		&user.CoverImage,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}
