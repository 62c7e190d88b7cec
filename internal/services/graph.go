package services

import (
	"context"
	"errors"
	"strings"

	"github.com/vidtube/apiserver/internal/apperr"
	"github.com/vidtube/apiserver/internal/store"
	"github.com/vidtube/apiserver/types"
)

// GraphRepository defines the read-only social graph queries.
type GraphRepository interface {
	ChannelProfile(ctx context.Context, username string, viewerID *int) (types.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID int) ([]types.VideoSummary, error)
}

// GraphService serves channel and watch history views.
type GraphService struct {
	repo GraphRepository
}

func NewGraphService(repo GraphRepository) *GraphService {
	return &GraphService{repo: repo}
}

// ChannelProfile returns the channel named username as seen by viewerID,
// which is nil for anonymous viewers.
func (s *GraphService) ChannelProfile(ctx context.Context, viewerID *int, username string) (types.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return types.ChannelProfile{}, apperr.ValidationError("username is missing")
	}

	profile, err := s.repo.ChannelProfile(ctx, username, viewerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.ChannelProfile{}, apperr.NotFoundError("channel does not exist")
		}
		return types.ChannelProfile{}, apperr.InternalError("failed to load channel", err)
	}
	return profile, nil
}

// WatchHistory returns the user's watched videos, oldest first.
func (s *GraphService) WatchHistory(ctx context.Context, userID int) ([]types.VideoSummary, error) {
	videos, err := s.repo.WatchHistory(ctx, userID)
	if err != nil {
		return nil, apperr.InternalError("failed to fetch watch history", err)
	}
	if videos == nil {
		videos = []types.VideoSummary{}
	}
	return videos, nil
}
