package services

import (
	"context"
	"errors"
	"strings"

	"github.com/vidtube/apiserver/internal/apperr"
	"github.com/vidtube/apiserver/internal/auth"
	"github.com/vidtube/apiserver/internal/store"
	"github.com/vidtube/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetProfileByID(ctx context.Context, id int) (types.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateDetails(ctx context.Context, id int, fullName, email string) (types.User, error)
	UpdateAvatar(ctx context.Context, id int, avatar string) (types.User, error)
	UpdateCoverImage(ctx context.Context, id int, coverImage string) (types.User, error)
	UpdatePasswordHash(ctx context.Context, id int, passwordHash string) error
	SetRefreshTokenHash(ctx context.Context, id int, hash *string) error
}

const msgUserExists = "user with username or email already exists"

// UserService owns user records, password hashing and token minting.
type UserService struct {
	repo   UserRepository
	tokens *auth.Tokens
}

func NewUserService(repo UserRepository, tokens *auth.Tokens) *UserService {
	return &UserService{repo: repo, tokens: tokens}
}

// Create validates and stores a new user and returns it sanitized.
func (s *UserService) Create(ctx context.Context, in types.NewUser) (types.User, error) {
	in = normalizeNewUser(in)
	if in.Username == "" || in.FullName == "" || in.Email == "" || in.Password == "" {
		return types.User{}, apperr.ValidationError("all fields are required")
	}
	if in.Avatar == "" {
		return types.User{}, apperr.ValidationError("avatar is required")
	}

	exists, err := s.Exists(ctx, in.Username, in.Email)
	if err != nil {
		return types.User{}, err
	}
	if exists {
		return types.User{}, apperr.ConflictError(msgUserExists)
	}

	hashed, err := s.hashPassword(in.Password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hashed,
		Avatar:       in.Avatar,
		CoverImage:   in.CoverImage,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, apperr.ConflictError(msgUserExists)
		}
		return types.User{}, apperr.InternalError("failed to create user", err)
	}
	return user.Sanitized(), nil
}

// Exists reports whether a user holds either key.
func (s *UserService) Exists(ctx context.Context, username, email string) (bool, error) {
	_, err := s.FindByCredentialKey(ctx, username, email)
	switch {
	case err == nil:
		return true, nil
	case apperr.Is(err, apperr.NotFound):
		return false, nil
	default:
		return false, err
	}
}

// FindByCredentialKey returns the full user matching username or email.
func (s *UserService) FindByCredentialKey(ctx context.Context, username, email string) (types.User, error) {
	username = normalizeKey(username)
	email = normalizeKey(email)
	if username == "" && email == "" {
		return types.User{}, apperr.ValidationError("username or email is required")
	}

	user, err := s.repo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFoundError("user does not exist")
		}
		return types.User{}, apperr.InternalError("failed to look up user", err)
	}
	return user, nil
}

// GetByID returns the full record, credential hashes included.
func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetProfile returns the sanitized record.
func (s *UserService) GetProfile(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetProfileByID(ctx, id)
}

// VerifyPassword compares plaintext against the user's stored digest.
func (s *UserService) VerifyPassword(user types.User, plaintext string) bool {
	return auth.CheckPassword(user.PasswordHash, plaintext)
}

// SetPassword hashes and stores a new password without touching other fields.
func (s *UserService) SetPassword(ctx context.Context, id int, plaintext string) error {
	hashed, err := s.hashPassword(plaintext)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePasswordHash(ctx, id, hashed); err != nil {
		return apperr.InternalError("failed to update password", err)
	}
	return nil
}

func (s *UserService) MintAccessToken(user types.User) (string, error) {
	return s.tokens.MintAccess(user)
}

// MintRefreshToken signs a refresh token. It does not persist it.
func (s *UserService) MintRefreshToken(user types.User) (string, error) {
	return s.tokens.MintRefresh(user)
}

// ParseAccessToken verifies an access token and returns its user ID.
func (s *UserService) ParseAccessToken(token string) (int, error) {
	return s.tokens.ParseAccess(token)
}

// ParseRefreshToken verifies a refresh token and returns its user ID.
func (s *UserService) ParseRefreshToken(token string) (int, error) {
	return s.tokens.ParseRefresh(token)
}

func (s *UserService) hashPassword(plaintext string) (string, error) {
	hashed, err := auth.HashPassword(plaintext)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", apperr.ValidationError("password is too long")
		}
		return "", apperr.InternalError("failed to hash password", err)
	}
	return hashed, nil
}

func normalizeNewUser(in types.NewUser) types.NewUser {
	in.Username = normalizeKey(in.Username)
	in.Email = normalizeKey(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if strings.TrimSpace(in.Password) == "" {
		in.Password = ""
	}
	return in
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
