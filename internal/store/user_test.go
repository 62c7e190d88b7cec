package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidtube/apiserver/types"
)

func newUserRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepository(db), mock
}

var fullUserColumns = []string{
	"id", "username", "email", "full_name", "avatar", "cover_image",
	"password_hash", "refresh_token_hash", "created_at", "updated_at",
}

var profileUserColumns = []string{
	"id", "username", "email", "full_name", "avatar", "cover_image", "created_at", "updated_at",
}

func TestGetByIDLoadsCredentials(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(fullUserColumns).
			AddRow(7, "neo", "neo@matrix.io", "Neo Anderson", "http://cdn/a.png", "", "digest", "hash", now, now))

	user, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "neo", user.Username)
	assert.Equal(t, "digest", user.PasswordHash)
	assert.Equal(t, "hash", user.RefreshTokenHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery("FROM users").
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetProfileByIDOmitsCredentials(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+profileColumns+" FROM users WHERE id = $1")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(profileUserColumns).
			AddRow(7, "neo", "neo@matrix.io", "Neo Anderson", "http://cdn/a.png", "", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT video_id FROM watch_history WHERE user_id = $1 ORDER BY id")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"video_id"}).AddRow(3).AddRow(1))

	user, err := repo.GetProfileByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, user.PasswordHash)
	assert.Empty(t, user.RefreshTokenHash)
	assert.Equal(t, []int{3, 1}, user.WatchHistory)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUsernameOrEmail(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)")).
		WithArgs("", "neo@matrix.io").
		WillReturnRows(sqlmock.NewRows(fullUserColumns).
			AddRow(7, "neo", "neo@matrix.io", "Neo Anderson", "a", "", "digest", "", now, now))

	user, err := repo.FindByUsernameOrEmail(context.Background(), "", "neo@matrix.io")
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("neo", "neo@matrix.io", "Neo Anderson", "digest", "a", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Create(context.Background(), types.User{
		Username:     "neo",
		Email:        "neo@matrix.io",
		FullName:     "Neo Anderson",
		PasswordHash: "digest",
		Avatar:       "a",
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateReturnsID(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("neo", "neo@matrix.io", "Neo Anderson", "digest", "a", "c", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	user, err := repo.Create(context.Background(), types.User{
		Username:     "neo",
		Email:        "neo@matrix.io",
		FullName:     "Neo Anderson",
		PasswordHash: "digest",
		Avatar:       "a",
		CoverImage:   "c",
	})
	require.NoError(t, err)
	assert.Equal(t, 42, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestSetRefreshTokenHash(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)
	hash := "abc"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET refresh_token_hash = $1 WHERE id = $2")).
		WithArgs("abc", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET refresh_token_hash = $1 WHERE id = $2")).
		WithArgs(nil, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET refresh_token_hash = $1 WHERE id = $2")).
		WithArgs(nil, 8).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SetRefreshTokenHash(context.Background(), 7, &hash))
	require.NoError(t, repo.SetRefreshTokenHash(context.Background(), 7, nil))
	assert.ErrorIs(t, repo.SetRefreshTokenHash(context.Background(), 8, nil), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDetailsDuplicateEmail(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery("UPDATE users").
		WithArgs("Neo", "taken@matrix.io", sqlmock.AnyArg(), 7).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.UpdateDetails(context.Background(), 7, "Neo", "taken@matrix.io")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUpdateAvatarNotFound(t *testing.T) {
	repo, mock := newUserRepoWithMock(t)

	mock.ExpectQuery("UPDATE users").
		WithArgs("http://cdn/new.png", sqlmock.AnyArg(), 7).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.UpdateAvatar(context.Background(), 7, "http://cdn/new.png")
	assert.ErrorIs(t, err, ErrNotFound)
}
