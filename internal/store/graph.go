package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vidtube/apiserver/types"
)

// GraphRepository answers read-only queries over subscriptions and watch history.
type GraphRepository struct {
	db *sql.DB
}

func NewGraphRepository(db *sql.DB) *GraphRepository {
	return &GraphRepository{db: db}
}

// ChannelProfile aggregates the subscription edges of the channel owned by
// username. A nil viewerID never counts as subscribed.
func (r *GraphRepository) ChannelProfile(ctx context.Context, username string, viewerID *int) (types.ChannelProfile, error) {
	const query = `
		SELECT
			u.id,
			u.full_name,
			u.username,
			u.email,
			u.avatar,
			u.cover_image,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id) AS subscriber_count,
			(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id) AS subscribed_to_count,
			EXISTS (
				SELECT 1 FROM subscriptions s
				WHERE s.channel_id = u.id AND s.subscriber_id = $2
			) AS is_subscribed
		FROM users u
		WHERE u.username = LOWER($1)`

	var viewer sql.NullInt64
	if viewerID != nil {
		viewer = sql.NullInt64{Int64: int64(*viewerID), Valid: true}
	}

	var profile types.ChannelProfile
	err := r.db.QueryRowContext(ctx, query, username, viewer).Scan(
		&profile.ID,
		&profile.FullName,
		&profile.Username,
		&profile.Email,
		&profile.Avatar,
		&profile.CoverImage,
		&profile.SubscriberCount,
		&profile.SubscribedToCount,
		&profile.IsViewerSubscribed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ChannelProfile{}, ErrNotFound
		}
		return types.ChannelProfile{}, err
	}
	return profile, nil
}

// WatchHistory returns the user's watched videos in watch order, each with
// its owner summary.
func (r *GraphRepository) WatchHistory(ctx context.Context, userID int) ([]types.VideoSummary, error) {
	const query = `
		SELECT
			v.id,
			v.video_file,
			v.thumbnail,
			v.title,
			v.description,
			v.duration,
			v.views,
			v.is_published,
			v.created_at,
			o.full_name,
			o.username,
			o.avatar
		FROM watch_history wh
		JOIN videos v ON v.id = wh.video_id
		LEFT JOIN LATERAL (
			SELECT full_name, username, avatar
			FROM users
			WHERE users.id = v.owner_id
			LIMIT 1
		) o ON TRUE
		WHERE wh.user_id = $1
		ORDER BY wh.id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []types.VideoSummary{}
	for rows.Next() {
		var (
			video                    types.VideoSummary
			ownerName, ownerUsername sql.NullString
			ownerAvatar              sql.NullString
		)
		if err := rows.Scan(
			&video.ID,
			&video.VideoFile,
			&video.Thumbnail,
			&video.Title,
			&video.Description,
			&video.Duration,
			&video.Views,
			&video.IsPublished,
			&video.CreatedAt,
			&ownerName,
			&ownerUsername,
			&ownerAvatar,
		); err != nil {
			return nil, err
		}
		if ownerUsername.Valid {
			video.Owner = &types.OwnerSummary{
				FullName: ownerName.String,
				Username: ownerUsername.String,
				Avatar:   ownerAvatar.String,
			}
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return videos, nil
}
