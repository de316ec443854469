package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"feedline/internal/config"
	"feedline/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)

	resp, body := env.do(t, jsonRequest(t, http.MethodGet, "/health/live", "", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up", body["status"])

	resp, body = env.do(t, jsonRequest(t, http.MethodGet, "/health/ready", "", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "healthy", body["checks"].(map[string]any)["database"])
}

func TestReadiness_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	env := newTestEnv(t, testConfig(), rdb)

	mr.Close()
	resp, body := env.do(t, jsonRequest(t, http.MethodGet, "/health/ready", "", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unhealthy", body["checks"].(map[string]any)["redis"])
}

func TestFeatureFlags(t *testing.T) {
	cfg := testConfig()
	cfg.FeatureFlags = "image_staging=off"
	env := newTestEnv(t, cfg, nil)
	u := env.signupAndLogin(t, "Ada", "ada@example.com")

	resp, body := env.do(t, jsonRequest(t, http.MethodGet, "/api/feature-flags", "", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	evaluated := body["evaluated"].(map[string]any)
	assert.Equal(t, false, evaluated["image_staging"])
	assert.Equal(t, true, evaluated["live_feed"])
	assert.Equal(t, "off", body["raw"].(map[string]any)["image_staging"])

	resp, _ = env.do(t, multipartRequest(t, http.MethodPost, "/api/images", u.Token, nil, testutil.TinyPNG(t, 4, 4)))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStageImage(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.signupAndLogin(t, "Ada", "ada@example.com")

	resp, _ := env.do(t, multipartRequest(t, http.MethodPost, "/api/images", "", nil, testutil.TinyPNG(t, 4, 4)))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := env.do(t, multipartRequest(t, http.MethodPost, "/api/images", u.Token, map[string]string{"x": "y"}, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "No image provided.", body["message"])

	resp, body = env.do(t, multipartRequest(t, http.MethodPost, "/api/images", u.Token, nil, testutil.TinyPNG(t, 4, 4)))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	url := body["imageUrl"].(string)
	assert.True(t, strings.HasPrefix(url, "images/"))
	assert.True(t, env.artifactExists(t, url))
}

func TestServeImage_RejectsTraversal(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	resp, _ := env.do(t, jsonRequest(t, http.MethodGet, "/images/..%2F..%2Fetc%2Fpasswd", "", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, jsonRequest(t, http.MethodGet, "/images/missing.png", "", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeedSocket_RequiresUpgrade(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	resp, _ := env.do(t, jsonRequest(t, http.MethodGet, "/api/ws", "", nil))
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestFeedSocket_ReceivesPostEvents(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	u := env.signupAndLogin(t, "Ada", "ada@example.com")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = env.app.Listener(ln) }()
	t.Cleanup(func() { _ = env.app.Shutdown() })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/ws?token="+u.Token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return env.srv.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	post := env.createPost(t, u, "live")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Channel string         `json:"channel"`
		Action  string         `json:"action"`
		Post    map[string]any `json:"post"`
	}
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, "posts", event.Channel)
	assert.Equal(t, "create", event.Action)
	assert.Equal(t, post["id"], event.Post["id"])
	assert.Equal(t, "Ada", event.Post["creator"].(map[string]any)["name"])
}

func TestSessionMode_CSRF(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.AuthStrategy = config.AuthStrategySession
	cfg.SessionCookieKey = encryptcookie.GenerateKey()
	env := newTestEnv(t, cfg, rdb)

	cookies := map[string]*http.Cookie{}
	send := func(req *http.Request, token string) (*http.Response, map[string]any) {
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		if token != "" {
			req.Header.Set(CSRFHeader, token)
		}
		resp, body := env.do(t, req)
		for _, ck := range resp.Cookies() {
			cookies[ck.Name] = ck
		}
		return resp, body
	}

	resp, body := send(jsonRequest(t, http.MethodGet, "/api/auth/csrf", "", nil), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["csrfToken"].(string)
	require.NotEmpty(t, token)

	resp, _ = send(jsonRequest(t, http.MethodPut, "/api/auth/signup", "", map[string]string{
		"email": "ada@example.com", "password": "secret", "name": "Ada",
	}), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = send(jsonRequest(t, http.MethodPut, "/api/auth/signup", "", map[string]string{
		"email": "ada@example.com", "password": "secret", "name": "Ada",
	}), token)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = send(jsonRequest(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret",
	}), token)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Nil(t, body["token"])
	require.Contains(t, cookies, "session_id")

	resp, body = send(jsonRequest(t, http.MethodGet, "/api/feed/posts", "", nil), "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(0), body["totalItems"])

	resp, _ = send(jsonRequest(t, http.MethodPost, "/api/auth/logout", "", nil), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = send(jsonRequest(t, http.MethodGet, "/api/feed/posts", "", nil), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
