package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
	"github.com/vidtube/apiserver/internal/apperr"
	"github.com/vidtube/apiserver/internal/services"
	"github.com/vidtube/apiserver/internal/store"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	msgUnauthorizedRequest = "unauthorized request"
	msgInvalidAccessToken  = "invalid access token"
)

var errMissingToken = errors.New("missing access token")

// Authenticator resolves the access token on a request to a user.
type Authenticator struct {
	users *services.UserService
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(users *services.UserService) *Authenticator {
	return &Authenticator{users: users}
}

// RequireUser rejects requests without a valid access token and attaches
// the sanitized user to the request context.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := accessToken(r)
		if err != nil {
			writeFailure(w, r, apperr.UnauthorizedError(msgUnauthorizedRequest))
			return
		}

		userID, err := a.users.ParseAccessToken(tokenString)
		if err != nil {
			writeFailure(w, r, apperr.Wrap(apperr.Unauthorized, msgInvalidAccessToken, err))
			return
		}

		user, err := a.users.GetProfile(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeFailure(w, r, apperr.Wrap(apperr.Unauthorized, msgInvalidAccessToken, err))
				return
			}
			writeFailure(w, r, apperr.InternalError("failed to load user", err))
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// OptionalUser attaches the user when a valid access token is present and
// otherwise lets the request through anonymously.
func (a *Authenticator) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := accessToken(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := a.users.ParseAccessToken(tokenString)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.users.GetProfile(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				hlog.FromRequest(r).Warn().Err(err).Msg("optional auth lookup failed")
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// accessToken prefers the cookie over the Authorization header.
func accessToken(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value, nil
		}
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errMissingToken
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
