package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/tubeaccount/internal/assets"
	"github.com/and161185/tubeaccount/internal/limiter"
	"github.com/and161185/tubeaccount/internal/model"
	"github.com/and161185/tubeaccount/internal/repository/memory"
	"github.com/and161185/tubeaccount/internal/service"
)

type stubUploader struct{ fail bool }

func (u *stubUploader) Upload(_ context.Context, kind assets.Kind, f assets.File) (string, error) {
	if u.fail {
		return "", errors.New("asset host down")
	}
	if _, err := io.ReadAll(f.Body); err != nil {
		return "", err
	}
	return "https://assets.test/" + string(kind) + "/" + f.Name, nil
}

type harness struct {
	app   *fiber.App
	store *memory.Store
	up    *stubUploader
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	store := memory.New()
	up := &stubUploader{}
	log := zaptest.NewLogger(t)

	opts := Options{
		CookieSecure:   true,
		PublicUserList: true,
		MaxUploadBytes: 1 << 20,
		AccessTTL:      time.Minute,
		RefreshTTL:     time.Hour,
	}
	for _, m := range mutate {
		m(&opts)
	}

	tokens := service.NewTokenService(store, service.TokenConfig{
		AccessSecret:  []byte("test-access"),
		AccessTTL:     opts.AccessTTL,
		RefreshSecret: []byte("test-refresh"),
		RefreshTTL:    opts.RefreshTTL,
	})
	accounts := service.NewAccountService(store, tokens, up, limiter.Nop{}, log)
	channels := service.NewChannelService(store)

	srv := New(accounts, tokens, channels, opts, log)
	return &harness{app: srv.App(), store: store, up: up}
}

type testEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []string        `json:"errors"`
}

func (h *harness) do(t *testing.T, req *http.Request) (*http.Response, testEnvelope) {
	t.Helper()
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env testEnvelope
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &env), "body=%s", body)
	require.Equal(t, resp.StatusCode, env.StatusCode)
	return resp, env
}

func jsonReq(method, path string, body any, cookies ...*http.Cookie) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func multipartReq(t *testing.T, method, path string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for field, name := range files {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func registerFields(username, email string) map[string]string {
	return map[string]string{"fullName": "Alice A", "email": email, "username": username, "password": "pw123"}
}

func (h *harness) register(t *testing.T, username, email string) {
	t.Helper()
	req := multipartReq(t, http.MethodPost, "/api/v1/users/register", registerFields(username, email), map[string]string{"avatar": "a.png"})
	resp, env := h.do(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
}

type loginData struct {
	User struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *harness) login(t *testing.T, username string) (loginData, []*http.Cookie) {
	t.Helper()
	resp, env := h.do(t, jsonReq(http.MethodPost, "/api/v1/users/login", map[string]string{"username": username, "password": "pw123"}))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var d loginData
	require.NoError(t, json.Unmarshal(env.Data, &d))
	return d, resp.Cookies()
}

func cookieByName(cs []*http.Cookie, name string) *http.Cookie {
	for _, c := range cs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestScenario_RegisterLoginRefreshReuse(t *testing.T) {
	h := newHarness(t)

	req := multipartReq(t, http.MethodPost, "/api/v1/users/register", registerFields("Alice", "A@X.com"),
		map[string]string{"avatar": "a.png", "coverImage": "c.png"})
	resp, env := h.do(t, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, env.Success)
	require.NotContains(t, string(env.Data), "pw123")
	require.Contains(t, string(env.Data), `"username":"alice"`)
	require.Contains(t, string(env.Data), `"coverImage":"https://assets.test/covers/c.png"`)

	d, cookies := h.login(t, "alice")
	require.NotEmpty(t, d.AccessToken)
	access, refresh := cookieByName(cookies, "accessToken"), cookieByName(cookies, "refreshToken")
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	require.True(t, access.HttpOnly)
	require.True(t, access.Secure)
	require.Equal(t, "/", refresh.Path)
	require.Equal(t, d.RefreshToken, refresh.Value)

	resp, env = h.do(t, jsonReq(http.MethodPost, "/api/v1/users/refresh-token", map[string]string{"refreshToken": d.RefreshToken}))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var rotated struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	require.NotEqual(t, d.RefreshToken, rotated.RefreshToken)
	require.Equal(t, rotated.RefreshToken, cookieByName(resp.Cookies(), "refreshToken").Value)

	resp, env = h.do(t, jsonReq(http.MethodPost, "/api/v1/users/refresh-token", map[string]string{"refreshToken": d.RefreshToken}))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, env.Success)
	require.Equal(t, "refresh token is expired or already used", env.Message)
	require.NotNil(t, env.Errors)
}

func TestRefresh_FromCookie_and_Missing(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "a@x.com")
	_, cookies := h.login(t, "alice")

	resp, _ := h.do(t, jsonReq(http.MethodPost, "/api/v1/users/refresh-token", nil, cookieByName(cookies, "refreshToken")))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := h.do(t, jsonReq(http.MethodPost, "/api/v1/users/refresh-token", nil))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthorized request", env.Message)

	resp, env = h.do(t, jsonReq(http.MethodPost, "/api/v1/users/refresh-token", map[string]string{"refreshToken": "junk"}))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid refresh token", env.Message)
}

func TestRegister_Errors(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "a@x.com")

	req := multipartReq(t, http.MethodPost, "/api/v1/users/register", registerFields("ALICE", "other@x.com"), map[string]string{"avatar": "a.png"})
	resp, env := h.do(t, req)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "user with email or username already exists", env.Message)

	req = multipartReq(t, http.MethodPost, "/api/v1/users/register", registerFields("bob", "b@x.com"), nil)
	resp, env = h.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "avatar file is required", env.Message)

	fields := registerFields("bob", "b@x.com")
	fields["fullName"] = "   "
	req = multipartReq(t, http.MethodPost, "/api/v1/users/register", fields, map[string]string{"avatar": "a.png"})
	resp, env = h.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "all fields are required", env.Message)

	h.up.fail = true
	req = multipartReq(t, http.MethodPost, "/api/v1/users/register", registerFields("bob", "b@x.com"), map[string]string{"avatar": "a.png"})
	resp, env = h.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "avatar file is required", env.Message)
}

func TestLogin_Errors(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "a@x.com")

	resp, env := h.do(t, jsonReq(http.MethodPost, "/api/v1/users/login", map[string]string{"password": "pw123"}))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "username or email is required", env.Message)

	resp, env = h.do(t, jsonReq(http.MethodPost, "/api/v1/users/login", map[string]string{"email": "a@x.com", "password": "nope"}))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid user credentials", env.Message)
	require.Nil(t, cookieByName(resp.Cookies(), "accessToken"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	resp, env = h.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid request body", env.Message)
}

func TestAuthGate(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "a@x.com")
	d, cookies := h.login(t, "alice")

	resp, env := h.do(t, jsonReq(http.MethodGet, "/api/v1/users/current-user", nil))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthorized request", env.Message)

	resp, env = h.do(t, bearer(jsonReq(http.MethodGet, "/api/v1/users/current-user", nil), "garbage"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid access token", env.Message)

	resp, env = h.do(t, bearer(jsonReq(http.MethodGet, "/api/v1/users/current-user", nil), d.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(env.Data), `"username":"alice"`)
	require.NotContains(t, string(env.Data), "refresh")

	resp, _ = h.do(t, jsonReq(http.MethodGet, "/api/v1/users/current-user", nil, cookieByName(cookies, "accessToken")))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthGate_ExpiredAccess(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AccessTTL = -time.Minute })
	h.register(t, "alice", "a@x.com")
	d, _ := h.login(t, "alice")

	resp, env := h.do(t, bearer(jsonReq(http.MethodGet, "/api/v1/users/current-user", nil), d.AccessToken))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "access token expired", env.Message)
}

func TestLogout_ClearsCookiesAndRevokes(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "a@x.com")
	d, _ := h.login(t, "alice")

	resp, _ := h.do(t, bearer(jsonReq(http.MethodPost, "/api/v1/users/logout", nil), d.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, name := range []string{"accessToken", "refreshToken"} {
		c := cookieByName(resp.Cookies(), name)
		require.NotNil(t, c, name)
		require.Empty(t, c.Value)
		require.True(t, c.Expires.Before(time.Now()))
		require.True(t, c.HttpOnly)
	}

	resp, env := h.do(t, jsonReq(http.MethodPost, "/api/v1/users/refresh-token", map[string]string{"refreshToken": d.RefreshToken}))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "refresh token is expired or already used", env.Message)

	// the access token stays valid until it expires
	resp, _ = h.do(t, bearer(jsonReq(http.MethodGet, "/api/v1/users/current-user", nil), d.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChangePassword_and_UpdateAccount(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "a@x.com")
	h.register(t, "bob", "b@x.com")
	d, _ := h.login(t, "alice")

	resp, env := h.do(t, bearer(jsonReq(http.MethodPost, "/api/v1/users/change-password",
		map[string]string{"oldPassword": "bad", "newPassword": "n3w"}), d.AccessToken))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid old password", env.Message)

	resp, _ = h.do(t, bearer(jsonReq(http.MethodPost, "/api/v1/users/change-password",
		map[string]string{"oldPassword": "pw123", "newPassword": "n3w"}), d.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, jsonReq(http.MethodPost, "/api/v1/users/login", map[string]string{"username": "alice", "password": "n3w"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = h.do(t, bearer(jsonReq(http.MethodPatch, "/api/v1/users/update-account",
		map[string]string{"fullName": "Alice B", "email": "B@x.com"}), d.AccessToken))
	require.Equal(t, http.StatusConflict, resp.StatusCode, env.Message)

	resp, env = h.do(t, bearer(jsonReq(http.MethodPatch, "/api/v1/users/update-account",
		map[string]string{"fullName": "Alice B"}), d.AccessToken))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "all fields are required", env.Message)

	resp, env = h.do(t, bearer(jsonReq(http.MethodPatch, "/api/v1/users/update-account",
		map[string]string{"fullName": "Alice B", "email": "NEW@x.com"}), d.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(env.Data), `"email":"new@x.com"`)
}

func TestImageUpdates(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "a@x.com")
	d, _ := h.login(t, "alice")

	req := bearer(multipartReq(t, http.MethodPatch, "/api/v1/users/avatar", nil, map[string]string{"avatar": "new.png"}), d.AccessToken)
	resp, env := h.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(env.Data), "https://assets.test/avatars/new.png")

	req = bearer(multipartReq(t, http.MethodPatch, "/api/v1/users/coverImage", nil, map[string]string{"coverImage": "c.png"}), d.AccessToken)
	resp, env = h.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(env.Data), "https://assets.test/covers/c.png")

	req = bearer(multipartReq(t, http.MethodPatch, "/api/v1/users/avatar", nil, nil), d.AccessToken)
	resp, env = h.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "avatar file is missing", env.Message)

	h.up.fail = true
	req = bearer(multipartReq(t, http.MethodPatch, "/api/v1/users/coverImage", nil, map[string]string{"coverImage": "c.png"}), d.AccessToken)
	resp, env = h.do(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "error while uploading cover image", env.Message)
}

func TestGetUser_PublicAndGated(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "a@x.com")
	h.login(t, "alice")

	resp, env := h.do(t, jsonReq(http.MethodGet, "/api/v1/users/getuser", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	require.NotContains(t, list[0], "refreshToken")
	require.NotContains(t, list[0], "password")

	gated := newHarness(t, func(o *Options) { o.PublicUserList = false })
	resp, _ = gated.do(t, jsonReq(http.MethodGet, "/api/v1/users/getuser", nil))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChannel_and_History(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "a@x.com")
	h.register(t, "bob", "b@x.com")
	alice, _ := h.login(t, "alice")
	bob, _ := h.login(t, "bob")

	aliceID := uuid.FromStringOrNil(alice.User.ID)
	bobID := uuid.FromStringOrNil(bob.User.ID)
	h.store.Subscribe(bobID, aliceID)
	h.store.Watch(bobID, model.WatchedVideo{ID: uuid.Must(uuid.NewV4()), Title: "first",
		Owner: model.VideoOwner{ID: aliceID, Username: "alice"}})
	h.store.Watch(bobID, model.WatchedVideo{ID: uuid.Must(uuid.NewV4()), Title: "second",
		Owner: model.VideoOwner{ID: aliceID, Username: "alice"}})

	resp, env := h.do(t, bearer(jsonReq(http.MethodGet, "/api/v1/users/c/Alice", nil), bob.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	require.Contains(t, string(env.Data), `"subscribersCount":1`)
	require.Contains(t, string(env.Data), `"isSubscribed":true`)

	resp, env = h.do(t, bearer(jsonReq(http.MethodGet, "/api/v1/users/c/ghost", nil), bob.AccessToken))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "channel does not exist", env.Message)

	resp, env = h.do(t, bearer(jsonReq(http.MethodGet, "/api/v1/users/history", nil), bob.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist []struct {
		Title string `json:"title"`
		Owner struct {
			Username string `json:"username"`
		} `json:"owner"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.Len(t, hist, 2)
	require.Equal(t, "first", hist[0].Title)
	require.Equal(t, "alice", hist[0].Owner.Username)
}

func TestErrors_UnknownRouteAndPanic(t *testing.T) {
	h := newHarness(t)
	h.app.Get("/boom", func(*fiber.Ctx) error { panic("kaboom") })

	resp, env := h.do(t, jsonReq(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.False(t, env.Success)

	resp, env = h.do(t, jsonReq(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "internal server error", env.Message)

	resp, env = h.do(t, jsonReq(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)
}

func TestRegister_OversizedBodyUsesEnvelope(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxUploadBytes = 64 })

	req := multipartReq(t, http.MethodPost, "/api/v1/users/register",
		registerFields("alice", "a@x.com"), map[string]string{"avatar": "a.png"})
	resp, env := h.do(t, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.False(t, env.Success)
	require.NotNil(t, env.Errors)

	list, err := h.store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRegister_JSONBodyHasNoAvatar(t *testing.T) {
	h := newHarness(t)

	resp, env := h.do(t, jsonReq(http.MethodPost, "/api/v1/users/register", registerFields("alice", "a@x.com")))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.False(t, env.Success)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc ": "abc",
		"Basic abc":   "",
		"Bearer ":     "",
		"":            "",
	}
	for in, want := range cases {
		if got := bearerToken(in); got != want {
			t.Fatalf("bearerToken(%q)=%q want %q", in, got, want)
		}
	}
}
