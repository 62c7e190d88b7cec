// Package testutil provides in-memory fakes for package tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vidtube/apiserver/internal/store"
	"github.com/vidtube/apiserver/types"
)

// Video is a seeded video row.
type Video struct {
	types.VideoSummary
	OwnerID int
}

// UserStore is an in-memory user and graph repository with the same
// not-found and duplicate semantics as the Postgres one.
type UserStore struct {
	mu      sync.Mutex
	nextID  int
	users   map[int]types.User
	subs    []types.Subscription
	videos  map[int]Video
	history map[int][]int

	// Err, when set, is returned by every method.
	Err error
	// SetRefreshErr, when set, is returned by SetRefreshTokenHash.
	SetRefreshErr error
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:   map[int]types.User{},
		videos:  map[int]Video{},
		history: map[int][]int{},
	}
}

func (s *UserStore) GetByID(_ context.Context, id int) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return types.User{}, s.Err
	}
	user, ok := s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (s *UserStore) GetProfileByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user = user.Sanitized()
	user.WatchHistory = append([]int{}, s.history[id]...)
	return user, nil
}

func (s *UserStore) FindByUsernameOrEmail(_ context.Context, username, email string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return types.User{}, s.Err
	}
	for _, id := range s.sortedIDs() {
		user := s.users[id]
		if (username != "" && user.Username == username) || (email != "" && user.Email == email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *UserStore) Create(_ context.Context, user types.User) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return types.User{}, s.Err
	}
	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	s.nextID++
	now := time.Now()
	user.ID = s.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = user
	return user, nil
}

func (s *UserStore) UpdateDetails(_ context.Context, id int, fullName, email string) (types.User, error) {
	return s.update(id, func(user *types.User) error {
		for otherID, other := range s.users {
			if otherID != id && other.Email == email {
				return store.ErrDuplicate
			}
		}
		user.FullName = fullName
		user.Email = email
		return nil
	})
}

func (s *UserStore) UpdateAvatar(_ context.Context, id int, avatar string) (types.User, error) {
	return s.update(id, func(user *types.User) error {
		user.Avatar = avatar
		return nil
	})
}

func (s *UserStore) UpdateCoverImage(_ context.Context, id int, coverImage string) (types.User, error) {
	return s.update(id, func(user *types.User) error {
		user.CoverImage = coverImage
		return nil
	})
}

func (s *UserStore) UpdatePasswordHash(_ context.Context, id int, passwordHash string) error {
	_, err := s.update(id, func(user *types.User) error {
		user.PasswordHash = passwordHash
		return nil
	})
	return err
}

func (s *UserStore) SetRefreshTokenHash(_ context.Context, id int, hash *string) error {
	if s.SetRefreshErr != nil {
		return s.SetRefreshErr
	}
	_, err := s.update(id, func(user *types.User) error {
		user.RefreshTokenHash = ""
		if hash != nil {
			user.RefreshTokenHash = *hash
		}
		return nil
	})
	return err
}

// ChannelProfile mirrors the Postgres aggregate query.
func (s *UserStore) ChannelProfile(_ context.Context, username string, viewerID *int) (types.ChannelProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return types.ChannelProfile{}, s.Err
	}
	for _, id := range s.sortedIDs() {
		user := s.users[id]
		if user.Username != username {
			continue
		}
		profile := types.ChannelProfile{
			ID:         user.ID,
			FullName:   user.FullName,
			Username:   user.Username,
			Email:      user.Email,
			Avatar:     user.Avatar,
			CoverImage: user.CoverImage,
		}
		for _, sub := range s.subs {
			if sub.ChannelID == user.ID {
				profile.SubscriberCount++
				if viewerID != nil && sub.SubscriberID == *viewerID {
					profile.IsViewerSubscribed = true
				}
			}
			if sub.SubscriberID == user.ID {
				profile.SubscribedToCount++
			}
		}
		return profile, nil
	}
	return types.ChannelProfile{}, store.ErrNotFound
}

// WatchHistory mirrors the Postgres watch history join.
func (s *UserStore) WatchHistory(_ context.Context, userID int) ([]types.VideoSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	videos := []types.VideoSummary{}
	for _, videoID := range s.history[userID] {
		video, ok := s.videos[videoID]
		if !ok {
			continue
		}
		summary := video.VideoSummary
		if owner, ok := s.users[video.OwnerID]; ok {
			summary.Owner = &types.OwnerSummary{
				FullName: owner.FullName,
				Username: owner.Username,
				Avatar:   owner.Avatar,
			}
		}
		videos = append(videos, summary)
	}
	return videos, nil
}

// Subscribe seeds a subscription edge.
func (s *UserStore) Subscribe(subscriberID, channelID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, types.Subscription{SubscriberID: subscriberID, ChannelID: channelID})
}

// AddVideo seeds a video owned by ownerID.
func (s *UserStore) AddVideo(video Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[video.ID] = video
}

// Watch appends videoID to the user's history.
func (s *UserStore) Watch(userID, videoID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[userID] = append(s.history[userID], videoID)
}

// User returns the stored record, credentials included.
func (s *UserStore) User(id int) types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *UserStore) update(id int, mutate func(*types.User) error) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return types.User{}, s.Err
	}
	user, ok := s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if err := mutate(&user); err != nil {
		return types.User{}, err
	}
	user.UpdatedAt = time.Now()
	s.users[id] = user
	return user.Sanitized(), nil
}

func (s *UserStore) sortedIDs() []int {
	ids := make([]int, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
