package http

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"accounts/config"
	"accounts/internal/delivery/http/middleware"
	"accounts/internal/delivery/http/router"
	"accounts/internal/delivery/http/router/handler"
	"accounts/internal/infra/auth"
	"accounts/internal/infra/persistence/database"
	"accounts/internal/usecase/impl"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"golang.org/x/crypto/bcrypt"
)

// newTestServer wires the real stack over in-memory SQLite.
func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	cfg := config.Default()
	cfg.DB.Driver = config.DriverSQLite
	cfg.DB.Name = ":memory:"
	cfg.Auth.BcryptCost = bcrypt.MinCost
	logger := slog.New(slog.DiscardHandler)

	lc := fxtest.NewLifecycle(t)
	db, err := database.New(database.Params{Lifecycle: lc, Config: cfg, Logger: logger})
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(func() { lc.RequireStop() })

	uc, err := impl.NewUserService(impl.UserServiceParams{
		UserRepo: database.NewUserRepository(db),
		Hasher:   auth.NewBcryptHasher(cfg),
		Logger:   logger,
	})
	require.NoError(t, err)

	return newEcho(cfg, logger, router.RouterParams{
		UserHandler:    handler.NewUserHandler(uc, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(uc, cfg),
	})
}

func do(e *echo.Echo, method, body, user, pass string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/users", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/users", nil)
	}
	if user != "" {
		req.SetBasicAuth(user, pass)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func TestServer_RegisterAndList(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodPost, `{"username":"alice","password":"s3cret"}`, "", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1,"username":"alice"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = do(e, http.MethodPost, `{"username":"alice","password":"other"}`, "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"username already taken"}`, rec.Body.String())

	rec = do(e, http.MethodPost, `{"username":"bob","password":"pa:ss"}`, "", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(e, http.MethodGet, "", "alice", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"username":"alice"},{"id":2,"username":"bob"}]`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "$2a$")

	var listed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	for _, u := range listed {
		assert.ElementsMatch(t, []string{"id", "username"}, keys(u))
	}

	// bob's password contains a colon
	rec = do(e, http.MethodGet, "", "bob", "pa:ss")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ListRejectsBadCredentials(t *testing.T) {
	e := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(e, http.MethodPost, `{"username":"alice","password":"s3cret"}`, "", "").Code)

	tests := []struct {
		name string
		user string
		pass string
	}{
		{name: "no credentials"},
		{name: "wrong password", user: "alice", pass: "wrong"},
		{name: "unknown user", user: "mallory", pass: "s3cret"},
		{name: "case sensitive username", user: "Alice", pass: "s3cret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, "", tt.user, tt.pass)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, `Basic realm="accounts", charset="UTF-8"`, rec.Header().Get(echo.HeaderWWWAuthenticate))
			assert.JSONEq(t, `{"error":"authentication failed"}`, rec.Body.String())
		})
	}
}

func TestServer_ListWithLowercaseScheme(t *testing.T) {
	e := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(e, http.MethodPost, `{"username":"alice","password":"s3cret"}`, "", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set(echo.HeaderAuthorization, "basic "+base64.StdEncoding.EncodeToString([]byte("alice:s3cret")))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RegisterValidation(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodPost, `{"username":"","password":"x"}`, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, `{"username":"bob:x","password":"pw"}`, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"username must not contain ':'"}`, rec.Body.String())

	rec = do(e, http.MethodPost, `{"username":"carol","password":"`+strings.Repeat("p", 73)+`"}`, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"password must be at most 72 bytes"}`, rec.Body.String())

	rec = do(e, http.MethodPost, `{"username":"carol","password":"`+strings.Repeat("p", 72)+`"}`, "", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestServer_UnknownRoute(t *testing.T) {
	e := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
}

func TestServer_Health(t *testing.T) {
	e := newTestServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}
