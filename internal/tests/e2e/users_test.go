//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidtube/apiserver/config"
	"github.com/vidtube/apiserver/internal/db"
	"github.com/vidtube/apiserver/internal/logging"
	"github.com/vidtube/apiserver/internal/server"
)

const (
	serverPort = 18080
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setEnv()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid test configuration: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAccountLifecycle(t *testing.T) {
	suffix := time.Now().UnixNano()
	username := fmt.Sprintf("neo%d", suffix)
	email := fmt.Sprintf("neo%d@example.com", suffix)

	status, env := register(t, username, email)
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.NotContains(t, string(env.Data), "password")

	var user struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, username, user.Username)
	assert.NotEmpty(t, user.Avatar)

	status, _ = register(t, fmt.Sprintf("other%d", suffix), email)
	assert.Equal(t, http.StatusConflict, status)

	status, env = doJSON(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"username": username,
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = doJSON(t, http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"username": username,
		"password": "red.pill1",
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	var session struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))

	status, env = doJSON(t, http.MethodGet, "/api/v1/users/me", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), username)

	status, env = doJSON(t, http.MethodGet, "/api/v1/users/channel/"+username, session.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Contains(t, string(env.Data), `"subscriberCount":0`)

	status, env = doJSON(t, http.MethodGet, "/api/v1/users/history", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))

	status, env = doJSON(t, http.MethodPost, "/api/v1/users/refresh", "", map[string]string{
		"refreshToken": session.RefreshToken,
	})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, _ = doJSON(t, http.MethodPost, "/api/v1/users/refresh", "", map[string]string{
		"refreshToken": session.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func register(t *testing.T, username, email string) (int, envelope) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := map[string]string{
		"username": username,
		"fullName": "Test User",
		"email":    email,
		"password": "red.pill1",
	}
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	part, err := writer.CreateFormFile("avatar", "avatar.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\navatar"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/users", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return send(t, req)
}

func doJSON(t *testing.T, method, path, token string, payload any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), strings.TrimSpace(string(raw)))
	return resp.StatusCode, env
}

func setEnv() {
	values := map[string]string{
		"ENV":                  "test",
		"SERVER_PORT":          fmt.Sprintf("%d", serverPort),
		"ACCESS_TOKEN_SECRET":  "e2e-access-secret",
		"REFRESH_TOKEN_SECRET": "e2e-refresh-secret",
		"SECURE_COOKIES":       "false",
		"DB_HOST":              "localhost",
		"DB_PORT":              "5432",
		"DB_USER":              "vidtube",
		"DB_PASSWORD":          "vidtube",
		"DB_NAME":              "vidtube",
		"DB_USE_SSL":           "false",
		"STORAGE_BACKEND":      "minio",
		"MINIO_ENDPOINT":       "localhost:9000",
		"MINIO_ACCESS_KEY":     "minioadmin",
		"MINIO_SECRET_KEY":     "minioadmin",
		"MINIO_BUCKET":         "vidtube",
		"UPLOAD_TEMP_DIR":      filepath.Join(os.TempDir(), "vidtube-e2e"),
		"MQ_BACKEND":           "",
	}
	for key, value := range values {
		_ = os.Setenv(key, value)
	}
}

func waitForPostgres(ctx context.Context, cfg config.Config) error {
	conn, err := sql.Open("postgres", db.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string, cfg config.Config) error {
	migrationsURL := "file://" + filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New(migrationsURL, db.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func startServer(ctx context.Context, cfg config.Config) (*server.Server, error) {
	logger := logging.New(cfg.Env, "warn")
	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	go func() {
		_ = srv.Start()
	}()
	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
