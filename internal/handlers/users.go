package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/vidtube/apiserver/internal/apperr"
	"github.com/vidtube/apiserver/internal/auth"
	"github.com/vidtube/apiserver/internal/media"
	"github.com/vidtube/apiserver/internal/services"
	"github.com/vidtube/apiserver/types"
)

const (
	maxMultipartMemory = 8 << 20
	// multipartOverhead covers the text fields and part headers of a form.
	multipartOverhead = 1 << 20

	formFieldAvatar     = "avatar"
	formFieldCoverImage = "coverImage"
	formFieldUsername   = "username"
	formFieldFullName   = "fullName"
	formFieldEmail      = "email"
	formFieldPassword   = "password"
)

// CookieOptions controls the session cookies set on login and refresh.
type CookieOptions struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// UserHandler provides HTTP handlers for accounts and channel views.
type UserHandler struct {
	accounts *services.AccountService
	graph    *services.GraphService
	stager   *media.Stager
	cookies  CookieOptions
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(accounts *services.AccountService, graph *services.GraphService, stager *media.Stager, cookies CookieOptions) *UserHandler {
	return &UserHandler{
		accounts: accounts,
		graph:    graph,
		stager:   stager,
		cookies:  cookies,
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(
	r chi.Router,
	accounts *services.AccountService,
	graph *services.GraphService,
	authn *Authenticator,
	stager *media.Stager,
	cookies CookieOptions,
) {
	handler := NewUserHandler(accounts, graph, stager, cookies)

	r.Post("/", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.RefreshSession)
	r.With(authn.OptionalUser).Get("/channel/{username}", handler.ChannelProfile)

	r.Group(func(r chi.Router) {
		r.Use(authn.RequireUser)
		r.Post("/logout", handler.Logout)
		r.Post("/password", handler.ChangePassword)
		r.Get("/me", handler.CurrentUser)
		r.Patch("/me", handler.UpdateProfile)
		r.Patch("/avatar", handler.UpdateAvatar)
		r.Patch("/cover", handler.UpdateCoverImage)
		r.Get("/history", handler.WatchHistory)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email" validate:"required_without=Username"`
	Password string `json:"password" validate:"required"`
}

func (req *loginRequest) normalize() {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type updateProfileRequest struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required"`
}

func (req *updateProfileRequest) normalize() {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
}

// Register creates an account from a multipart form.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := h.parseMultipart(w, r, 2); err != nil {
		writeFailure(w, r, err)
		return
	}

	avatarPath, err := h.stage(r, formFieldAvatar)
	defer discardStaged(r, avatarPath)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	coverPath, err := h.stage(r, formFieldCoverImage)
	defer discardStaged(r, coverPath)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Username:       r.FormValue(formFieldUsername),
		FullName:       r.FormValue(formFieldFullName),
		Email:          r.FormValue(formFieldEmail),
		Password:       r.FormValue(formFieldPassword),
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, "User registered successfully")
}

// Login verifies credentials and sets the session cookies.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), services.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	h.setSessionCookies(w, result.TokenPair)
	writeSuccess(w, http.StatusOK, result, "User logged in successfully")
}

// Logout clears the stored session and the cookies.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeFailure(w, r, apperr.UnauthorizedError(msgUnauthorizedRequest))
		return
	}

	h.accounts.Logout(r.Context(), user.ID)
	h.clearSessionCookies(w)
	writeSuccess(w, http.StatusOK, struct{}{}, "User logged out")
}

// RefreshSession rotates the refresh token from the cookie or the body.
func (h *UserHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		token = strings.TrimSpace(cookie.Value)
	}
	if token == "" {
		var req refreshRequest
		// An empty or malformed body leaves the token blank.
		_ = json.NewDecoder(r.Body).Decode(&req)
		token = strings.TrimSpace(req.RefreshToken)
	}
	if token == "" {
		writeFailure(w, r, apperr.UnauthorizedError(msgUnauthorizedRequest))
		return
	}

	pair, err := h.accounts.RefreshSession(r.Context(), token)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	h.setSessionCookies(w, pair)
	writeSuccess(w, http.StatusOK, pair, "Access token refreshed")
}

// ChangePassword replaces the authenticated user's password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeFailure(w, r, apperr.UnauthorizedError(msgUnauthorizedRequest))
		return
	}

	var req changePasswordRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, struct{}{}, "Password changed successfully")
}

// CurrentUser returns the authenticated user.
func (h *UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeFailure(w, r, apperr.UnauthorizedError(msgUnauthorizedRequest))
		return
	}
	writeSuccess(w, http.StatusOK, user, "Current user fetched successfully")
}

// UpdateProfile sets the authenticated user's full name and email.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeFailure(w, r, apperr.UnauthorizedError(msgUnauthorizedRequest))
		return
	}

	var req updateProfileRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		writeFailure(w, r, err)
		return
	}

	updated, err := h.accounts.UpdateProfile(r.Context(), user.ID, req.FullName, req.Email)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, updated, "Account details updated successfully")
}

// UpdateAvatar replaces the avatar with the uploaded file.
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, formFieldAvatar, h.accounts.UpdateAvatar, "Avatar image updated successfully")
}

// UpdateCoverImage replaces the cover image with the uploaded file.
func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, formFieldCoverImage, h.accounts.UpdateCoverImage, "Cover image updated successfully")
}

// ChannelProfile returns the public view of a channel. The viewer is
// optional and only affects isSubscribed.
func (h *UserHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	var viewerID *int
	if viewer, ok := userFromContext(r.Context()); ok {
		viewerID = &viewer.ID
	}

	profile, err := h.graph.ChannelProfile(r.Context(), viewerID, chi.URLParam(r, "username"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, profile, "User channel fetched successfully")
}

// WatchHistory returns the authenticated user's watched videos in order.
func (h *UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeFailure(w, r, apperr.UnauthorizedError(msgUnauthorizedRequest))
		return
	}

	history, err := h.graph.WatchHistory(r.Context(), user.ID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, history, "Watch history fetched successfully")
}

type imageUpdater func(ctx context.Context, current types.User, localPath string) (types.User, error)

func (h *UserHandler) replaceImage(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	update imageUpdater,
	message string,
) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeFailure(w, r, apperr.UnauthorizedError(msgUnauthorizedRequest))
		return
	}

	if err := h.parseMultipart(w, r, 1); err != nil {
		writeFailure(w, r, err)
		return
	}

	path, err := h.stage(r, field)
	defer discardStaged(r, path)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	updated, err := update(r.Context(), user, path)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, updated, message)
}

// parseMultipart bounds the body to the given number of uploads plus form overhead.
func (h *UserHandler) parseMultipart(w http.ResponseWriter, r *http.Request, files int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, files*h.stager.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(apperr.Validation, "uploaded file too large", err)
		}
		return apperr.Wrap(apperr.Validation, "invalid multipart form", err)
	}
	return nil
}

// stage copies the named file part to local staging. A missing part is
// not an error and yields an empty path.
func (h *UserHandler) stage(r *http.Request, field string) (string, error) {
	if r.MultipartForm == nil {
		return "", nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return "", nil
	}
	if len(files) > 1 {
		return "", apperr.ValidationError("only one " + field + " file is allowed")
	}

	path, err := h.stager.Stage(files[0])
	if err != nil {
		if errors.Is(err, media.ErrFileTooLarge) {
			return "", apperr.Wrap(apperr.Validation, field+" file is too large", err)
		}
		return "", apperr.InternalError("failed to stage upload", err)
	}
	return path, nil
}

func discardStaged(r *http.Request, path string) {
	if err := media.Discard(path); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("path", path).Msg("failed to remove staged file")
	}
}

func (h *UserHandler) setSessionCookies(w http.ResponseWriter, pair auth.TokenPair) {
	http.SetCookie(w, h.cookie(accessTokenCookie, pair.AccessToken, h.cookies.AccessTTL))
	http.SetCookie(w, h.cookie(refreshTokenCookie, pair.RefreshToken, h.cookies.RefreshTTL))
}

func (h *UserHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		cookie := h.cookie(name, "", 0)
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		http.SetCookie(w, cookie)
	}
}

func (h *UserHandler) cookie(name, value string, ttl time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	return cookie
}
