package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"
	"github.com/vidtube/apiserver/internal/apperr"
	"github.com/vidtube/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

var requestValidator = validator.New()

// Response is the envelope for every API response.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// userFromContext returns the sanitized user attached by the authenticator.
func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID < 1 {
		return types.User{}, false
	}
	return user, true
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(w, status, Response{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{
		StatusCode: status,
		Data:       nil,
		Message:    message,
		Success:    false,
	})
}

// writeFailure maps err to the envelope. Causes are logged, never sent.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.As(err)
	status := appErr.Kind.Status()

	logger := hlog.FromRequest(r)
	event := logger.Debug()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(appErr.Err).Str("kind", appErr.Kind.String()).Msg(appErr.Message)

	message := appErr.Message
	if message == "" {
		message = apperr.GenericMessage
	}
	writeError(w, status, message)
}

type normalizer interface {
	normalize()
}

// decodeAndValidate decodes a single JSON object into dst, normalizes it
// when it knows how, and runs the presence checks from its validate tags.
func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)

	if err := decoder.Decode(dst); err != nil {
		return apperr.ValidationError("invalid JSON body")
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.ValidationError("invalid JSON body")
	}

	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}

	if err := requestValidator.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			field := lowerFirst(first.Field())
			switch first.Tag() {
			case "required":
				return apperr.ValidationError(fmt.Sprintf("%s is required", field))
			case "required_without":
				return apperr.ValidationError(fmt.Sprintf("%s or %s is required", field, lowerFirst(first.Param())))
			default:
				return apperr.ValidationError(fmt.Sprintf("%s is invalid", field))
			}
		}
		return apperr.ValidationError("invalid request")
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"}, "ok")
}
