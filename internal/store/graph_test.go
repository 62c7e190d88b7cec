package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraphRepoWithMock(t *testing.T) (*GraphRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewGraphRepository(db), mock
}

var channelColumns = []string{
	"id", "full_name", "username", "email", "avatar", "cover_image",
	"subscriber_count", "subscribed_to_count", "is_subscribed",
}

func TestChannelProfileWithViewer(t *testing.T) {
	repo, mock := newGraphRepoWithMock(t)
	viewer := 3

	mock.ExpectQuery(`WHERE u\.username = LOWER\(\$1\)`).
		WithArgs("neo", int64(3)).
		WillReturnRows(sqlmock.NewRows(channelColumns).
			AddRow(7, "Neo Anderson", "neo", "neo@matrix.io", "a", "c", 2, 1, true))

	profile, err := repo.ChannelProfile(context.Background(), "neo", &viewer)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.SubscriberCount)
	assert.Equal(t, 1, profile.SubscribedToCount)
	assert.True(t, profile.IsViewerSubscribed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChannelProfileAnonymous(t *testing.T) {
	repo, mock := newGraphRepoWithMock(t)

	mock.ExpectQuery("FROM users u").
		WithArgs("neo", nil).
		WillReturnRows(sqlmock.NewRows(channelColumns).
			AddRow(7, "Neo Anderson", "neo", "neo@matrix.io", "a", "", 0, 0, false))

	profile, err := repo.ChannelProfile(context.Background(), "neo", nil)
	require.NoError(t, err)
	assert.False(t, profile.IsViewerSubscribed)
}

func TestChannelProfileNotFound(t *testing.T) {
	repo, mock := newGraphRepoWithMock(t)

	mock.ExpectQuery("FROM users u").
		WithArgs("ghost", nil).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ChannelProfile(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatchHistoryMapsOwners(t *testing.T) {
	repo, mock := newGraphRepoWithMock(t)
	now := time.Now()

	columns := []string{
		"id", "video_file", "thumbnail", "title", "description", "duration", "views",
		"is_published", "created_at", "full_name", "username", "avatar",
	}
	mock.ExpectQuery(`ORDER BY wh\.id`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(10, "v.mp4", "t.png", "First", "d", 12.5, 100, true, now, "Trinity", "trinity", "ta").
			AddRow(11, "w.mp4", "u.png", "Orphan", "", 3.0, 0, false, now, nil, nil, nil))

	videos, err := repo.WatchHistory(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, videos, 2)

	assert.Equal(t, 10, videos[0].ID)
	require.NotNil(t, videos[0].Owner)
	assert.Equal(t, "trinity", videos[0].Owner.Username)
	assert.Equal(t, 11, videos[1].ID)
	assert.Nil(t, videos[1].Owner)
}

func TestWatchHistoryEmpty(t *testing.T) {
	repo, mock := newGraphRepoWithMock(t)

	mock.ExpectQuery("FROM watch_history wh").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	videos, err := repo.WatchHistory(context.Background(), 7)
	require.NoError(t, err)
	assert.NotNil(t, videos)
	assert.Empty(t, videos)
}
