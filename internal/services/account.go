package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vidtube/apiserver/internal/apperr"
	"github.com/vidtube/apiserver/internal/auth"
	"github.com/vidtube/apiserver/internal/events"
	"github.com/vidtube/apiserver/internal/media"
	"github.com/vidtube/apiserver/internal/store"
	"github.com/vidtube/apiserver/types"
)

// MediaRelay moves staged files to object storage.
type MediaRelay interface {
	Upload(ctx context.Context, localPath string) (*media.Asset, error)
	Discard(ctx context.Context, rawURL string)
}

// EventPublisher receives account change notifications.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event)
}

// RegisterInput carries registration fields and staged upload paths.
type RegisterInput struct {
	Username       string
	FullName       string
	Email          string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// LoginInput identifies a user by username or email.
type LoginInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User types.User `json:"user"`
	auth.TokenPair
}

// AccountService composes users, sessions and media into account use-cases.
type AccountService struct {
	users    *UserService
	sessions *SessionManager
	relay    MediaRelay
	events   EventPublisher
	logger   zerolog.Logger
}

func NewAccountService(users *UserService, sessions *SessionManager, relay MediaRelay, publisher EventPublisher, logger zerolog.Logger) *AccountService {
	if publisher == nil {
		publisher = (*events.Publisher)(nil)
	}
	return &AccountService{
		users:    users,
		sessions: sessions,
		relay:    relay,
		events:   publisher,
		logger:   logger.With().Str("component", "accounts").Logger(),
	}
}

// Register creates an account. The avatar is required; a failed cover
// upload leaves the cover empty.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	if isBlank(in.Username) || isBlank(in.FullName) || isBlank(in.Email) || isBlank(in.Password) {
		return types.User{}, apperr.ValidationError("all fields are required")
	}

	exists, err := s.users.Exists(ctx, in.Username, in.Email)
	if err != nil {
		return types.User{}, err
	}
	if exists {
		return types.User{}, apperr.ConflictError(msgUserExists)
	}

	if in.AvatarPath == "" {
		return types.User{}, apperr.ValidationError("avatar file is required")
	}

	avatar, err := s.relay.Upload(ctx, in.AvatarPath)
	if err != nil || avatar == nil {
		return types.User{}, apperr.Wrap(apperr.Validation, "avatar upload failed", err)
	}

	coverImage := ""
	cover, err := s.relay.Upload(ctx, in.CoverImagePath)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cover image upload failed, continuing without it")
	} else if cover != nil {
		coverImage = cover.URL
	}

	created, err := s.users.Create(ctx, types.NewUser{
		Username:   in.Username,
		FullName:   in.FullName,
		Email:      in.Email,
		Password:   in.Password,
		Avatar:     avatar.URL,
		CoverImage: coverImage,
	})
	if err != nil {
		s.relay.Discard(ctx, avatar.URL)
		s.relay.Discard(ctx, coverImage)
		return types.User{}, err
	}

	user, err := s.users.GetProfile(ctx, created.ID)
	if err != nil || user.ID == 0 {
		return types.User{}, apperr.InternalError("something went wrong while registering the user", err)
	}

	s.events.Publish(ctx, events.NewEvent(events.UserRegistered, user))
	return user, nil
}

// Login verifies credentials and opens a session.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	user, err := s.users.FindByCredentialKey(ctx, in.Username, in.Email)
	if err != nil {
		return LoginResult{}, err
	}

	if !s.users.VerifyPassword(user, in.Password) {
		return LoginResult{}, apperr.UnauthorizedError("invalid user credentials")
	}

	pair, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	profile, err := s.users.GetProfile(ctx, user.ID)
	if err != nil {
		return LoginResult{}, apperr.InternalError("failed to load user", err)
	}
	return LoginResult{User: profile, TokenPair: pair}, nil
}

// Logout ends the user's session. It never fails.
func (s *AccountService) Logout(ctx context.Context, userID int) {
	s.sessions.Clear(ctx, userID)
}

// RefreshSession rotates the presented refresh token.
func (s *AccountService) RefreshSession(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	return s.sessions.Rotate(ctx, refreshToken)
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID int, oldPassword, newPassword string) error {
	if oldPassword == "" || isBlank(newPassword) {
		return apperr.ValidationError("old and new password are required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundError("user does not exist")
		}
		return apperr.InternalError("failed to load user", err)
	}

	if !s.users.VerifyPassword(user, oldPassword) {
		return apperr.ValidationError("invalid old password")
	}
	return s.users.SetPassword(ctx, user.ID, newPassword)
}

// UpdateProfile sets full name and email.
func (s *AccountService) UpdateProfile(ctx context.Context, userID int, fullName, email string) (types.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalizeKey(email)
	if fullName == "" || email == "" {
		return types.User{}, apperr.ValidationError("all fields are required")
	}

	user, err := s.users.repo.UpdateDetails(ctx, userID, fullName, email)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return types.User{}, apperr.ConflictError("email is already in use")
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, apperr.NotFoundError("user does not exist")
		}
		return types.User{}, apperr.InternalError("failed to update account details", err)
	}

	s.events.Publish(ctx, events.NewEvent(events.UserProfileUpdated, user))
	return user, nil
}

// UpdateAvatar replaces the avatar of current with the staged file.
func (s *AccountService) UpdateAvatar(ctx context.Context, current types.User, localPath string) (types.User, error) {
	if localPath == "" {
		return types.User{}, apperr.ValidationError("avatar file is missing")
	}

	asset, err := s.relay.Upload(ctx, localPath)
	if err != nil || asset == nil || asset.URL == "" {
		return types.User{}, apperr.Wrap(apperr.Validation, "error while uploading avatar", err)
	}

	user, err := s.users.repo.UpdateAvatar(ctx, current.ID, asset.URL)
	if err != nil {
		s.relay.Discard(ctx, asset.URL)
		return types.User{}, mapUpdateError(err)
	}

	s.relay.Discard(ctx, current.Avatar)
	s.events.Publish(ctx, events.NewEvent(events.UserAvatarUpdated, user))
	return user, nil
}

// UpdateCoverImage replaces the cover image of current with the staged file.
func (s *AccountService) UpdateCoverImage(ctx context.Context, current types.User, localPath string) (types.User, error) {
	if localPath == "" {
		return types.User{}, apperr.ValidationError("cover image file is missing")
	}

	asset, err := s.relay.Upload(ctx, localPath)
	if err != nil || asset == nil || asset.URL == "" {
		return types.User{}, apperr.Wrap(apperr.Validation, "error while uploading cover image", err)
	}

	user, err := s.users.repo.UpdateCoverImage(ctx, current.ID, asset.URL)
	if err != nil {
		s.relay.Discard(ctx, asset.URL)
		return types.User{}, mapUpdateError(err)
	}

	s.relay.Discard(ctx, current.CoverImage)
	s.events.Publish(ctx, events.NewEvent(events.UserCoverImageUpdated, user))
	return user, nil
}

func mapUpdateError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFoundError("user does not exist")
	}
	return apperr.InternalError("failed to update user", err)
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}
