package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vidtube/apiserver/internal/apperr"
	"github.com/vidtube/apiserver/internal/auth"
	"github.com/vidtube/apiserver/internal/metrics"
	"github.com/vidtube/apiserver/internal/store"
)

const (
	msgUnauthorizedRequest = "unauthorized request"
	msgInvalidRefreshToken = "invalid refresh token"
	msgRefreshTokenUsed    = "refresh token is expired or used"
	msgTokenGeneration     = "something went wrong while generating tokens"
)

// SessionManager issues and rotates token pairs. Each user has a single
// refresh token slot; issuing a pair overwrites it.
//
// Two concurrent Rotate calls presenting the same live token can both pass
// the slot comparison before either writes. The last write wins and the
// other caller holds a pair whose refresh token is already superseded.
type SessionManager struct {
	users  *UserService
	repo   UserRepository
	logger zerolog.Logger
}

func NewSessionManager(users *UserService, repo UserRepository, logger zerolog.Logger) *SessionManager {
	return &SessionManager{
		users:  users,
		repo:   repo,
		logger: logger.With().Str("component", "sessions").Logger(),
	}
}

// Issue mints a new pair for userID and stores the refresh token's hash.
func (m *SessionManager) Issue(ctx context.Context, userID int) (auth.TokenPair, error) {
	user, err := m.repo.GetByID(ctx, userID)
	if err != nil {
		return auth.TokenPair{}, apperr.InternalError(msgTokenGeneration, err)
	}

	access, err := m.users.MintAccessToken(user)
	if err != nil {
		return auth.TokenPair{}, apperr.InternalError(msgTokenGeneration, err)
	}
	refresh, err := m.users.MintRefreshToken(user)
	if err != nil {
		return auth.TokenPair{}, apperr.InternalError(msgTokenGeneration, err)
	}

	hash := auth.HashToken(refresh)
	if err := m.repo.SetRefreshTokenHash(ctx, user.ID, &hash); err != nil {
		return auth.TokenPair{}, apperr.InternalError(msgTokenGeneration, err)
	}

	metrics.SessionEvents.WithLabelValues(metrics.SessionIssued).Inc()
	return auth.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Rotate exchanges the live refresh token for a new pair. Any other token,
// including one superseded by an earlier rotation, is rejected.
func (m *SessionManager) Rotate(ctx context.Context, presented string) (auth.TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return auth.TokenPair{}, m.reject(msgUnauthorizedRequest)
	}

	userID, err := m.users.ParseRefreshToken(presented)
	if err != nil {
		return auth.TokenPair{}, m.reject(msgInvalidRefreshToken)
	}

	user, err := m.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return auth.TokenPair{}, m.reject(msgInvalidRefreshToken)
		}
		return auth.TokenPair{}, apperr.InternalError("failed to load session", err)
	}

	presentedHash := auth.HashToken(presented)
	if user.RefreshTokenHash == "" ||
		subtle.ConstantTimeCompare([]byte(presentedHash), []byte(user.RefreshTokenHash)) != 1 {
		return auth.TokenPair{}, m.reject(msgRefreshTokenUsed)
	}

	pair, err := m.Issue(ctx, user.ID)
	if err != nil {
		return auth.TokenPair{}, err
	}
	metrics.SessionEvents.WithLabelValues(metrics.SessionRotated).Inc()
	return pair, nil
}

// Clear empties the refresh slot. Failures are logged, not returned.
func (m *SessionManager) Clear(ctx context.Context, userID int) {
	if err := m.repo.SetRefreshTokenHash(ctx, userID, nil); err != nil {
		m.logger.Error().Err(err).Int("user_id", userID).Msg("failed to clear refresh token")
		return
	}
	metrics.SessionEvents.WithLabelValues(metrics.SessionCleared).Inc()
}

func (m *SessionManager) reject(message string) error {
	metrics.SessionEvents.WithLabelValues(metrics.SessionRejected).Inc()
	return apperr.UnauthorizedError(message)
}
