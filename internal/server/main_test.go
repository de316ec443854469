package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"feedline/internal/artifact"
	"feedline/internal/config"
	"feedline/internal/database"
	"feedline/internal/repository"
	"feedline/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testJWTSecret = "server-test-secret-that-is-long-enough"

type testEnv struct {
	srv *Server
	app *fiber.App
	db  *gorm.DB
	fs  afero.Fs
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "test",
		AllowedOrigins:       "http://localhost:3000",
		FeatureFlags:         "image_staging=on,live_feed=on",
		AuthStrategy:         config.AuthStrategyToken,
		JWTSecret:            testJWTSecret,
		JWTIssuer:            "feedline-api",
		JWTAudience:          "feedline-client",
		TokenTTLMinutes:      60,
		SessionTTLMinutes:    60,
		BcryptCost:           bcrypt.MinCost,
		ImageMaxUploadSizeMB: 2,
		FeedPageSize:         2,
		ReadTimeoutSeconds:   5,
		WriteTimeoutSeconds:  5,
	}
}

func newTestEnv(t *testing.T, cfg *config.Config, rdb *redis.Client) *testEnv {
	t.Helper()
	return newTestEnvWithUsers(t, cfg, rdb, nil)
}

// newTestEnvWithUsers lets a test wrap the user repository, e.g. to inject failures.
func newTestEnvWithUsers(t *testing.T, cfg *config.Config, rdb *redis.Client, wrap func(repository.UserRepository) repository.UserRepository) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))

	users := repository.NewUserRepository(db)
	if wrap != nil {
		users = wrap(users)
	}
	fs := afero.NewMemMapFs()
	srv, err := NewServer(cfg, Deps{
		Repos: repository.Repositories{
			Posts: repository.NewPostRepository(db, rdb),
			Users: users,
		},
		Redis:     rdb,
		Artifacts: artifact.NewLocalStoreFs(fs),
		Checks: map[string]HealthCheck{
			"database": func(ctx context.Context) error { return sqlDB.PingContext(ctx) },
		},
	})
	require.NoError(t, err)
	return &testEnv{srv: srv, app: srv.App(), db: db, fs: fs}
}

// do sends req and decodes a JSON body, if any.
func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var body map[string]any
	if len(raw) > 0 && bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp, body
}

func jsonRequest(t *testing.T, method, path, token string, payload any) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

func multipartRequest(t *testing.T, method, path, token string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="photo.png"`)
		h.Set("Content-Type", "image/png")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

type account struct {
	ID    uint
	Name  string
	Token string
}

func (e *testEnv) signupAndLogin(t *testing.T, name, email string) account {
	t.Helper()
	resp, body := e.do(t, jsonRequest(t, http.MethodPut, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "secret", "name": name,
	}))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = e.do(t, jsonRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "secret",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return account{ID: uint(body["userId"].(float64)), Name: name, Token: body["token"].(string)}
}

// createPost uploads a fresh PNG with the post and returns the post body.
func (e *testEnv) createPost(t *testing.T, a account, title string) map[string]any {
	t.Helper()
	resp, body := e.do(t, multipartRequest(t, http.MethodPost, "/api/feed/post", a.Token,
		map[string]string{"title": title, "content": "content of " + title},
		testutil.TinyPNG(t, 4, 4)))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body["post"].(map[string]any)
}

func postPath(post map[string]any) string {
	return fmt.Sprintf("/api/feed/post/%d", uint(post["id"].(float64)))
}

func (e *testEnv) artifactExists(t *testing.T, url string) bool {
	t.Helper()
	ok, err := afero.Exists(e.fs, url)
	require.NoError(t, err)
	return ok
}
