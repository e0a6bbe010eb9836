package auth_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-cms/gatehouse/internal/auth"
	"github.com/gatehouse-cms/gatehouse/internal/authz"
	"github.com/gatehouse-cms/gatehouse/internal/graph"
	"github.com/gatehouse-cms/gatehouse/internal/identity"
	"github.com/gatehouse-cms/gatehouse/internal/session"
	"github.com/gatehouse-cms/gatehouse/internal/shared"
	_ "github.com/gatehouse-cms/gatehouse/testing"
)

const testSalt = "dGVzdC1zYWx0LTEyMw"

type fixture struct {
	router   chi.Router
	users    *identity.Service
	authz    *authz.Service
	sessions *session.Manager
	store    *graph.MemStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := graph.NewMemStore()
	hasher, err := identity.NewHasher(testSalt)
	require.NoError(t, err)
	users := identity.NewService(store, hasher)
	authzSvc := authz.NewService(store, slog.Default())
	sessions := session.NewManager(client, authzSvc, time.Hour)
	authzSvc.SetSessionInvalidator(sessions)

	handler := auth.NewHandler(slog.Default(), users, sessions, "gatehouse_session", false)
	router := chi.NewRouter()
	router.Route("/auth", handler.Routes)

	return &fixture{router: router, users: users, authz: authzSvc, sessions: sessions, store: store}
}

func (f *fixture) seedEditor(t *testing.T) identity.User {
	t.Helper()
	ctx := context.Background()
	user, err := f.users.Create(ctx, "alice", "s3cret")
	require.NoError(t, err)
	role, err := f.authz.CreateRole(ctx, "editor", "")
	require.NoError(t, err)
	perm, err := f.authz.CreatePermission(ctx, "content::write")
	require.NoError(t, err)
	require.NoError(t, f.authz.GrantPermission(ctx, role.ID, perm.ID))
	require.NoError(t, f.authz.AssignRole(ctx, user.ID, role.ID))
	return user
}

func postLogin(t *testing.T, router chi.Router, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	f.seedEditor(t)

	rr := postLogin(t, f.router, `{"login":"alice","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp struct {
		Token       string   `json:"token"`
		Login       string   `json:"login"`
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.Login)
	assert.Equal(t, []string{"editor"}, resp.Roles)
	assert.Equal(t, []string{"content::write"}, resp.Permissions)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "gatehouse_session", cookies[0].Name)
	assert.Equal(t, resp.Token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.seedEditor(t)

	rr := postLogin(t, f.router, `{"login":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginUnknownUserMatchesWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.seedEditor(t)

	rr := postLogin(t, f.router, `{"login":"nobody","password":"whatever"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginBlockedUser(t *testing.T) {
	f := newFixture(t)
	user := f.seedEditor(t)
	_, err := f.users.SetBlocked(context.Background(), user.ID, true)
	require.NoError(t, err)

	rr := postLogin(t, f.router, `{"login":"alice","password":"s3cret"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)

	rr := postLogin(t, f.router, `{"login":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postLogin(t, f.router, `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMeAndLogout(t *testing.T) {
	f := newFixture(t)
	f.seedEditor(t)

	rr := postLogin(t, f.router, `{"login":"alice","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	withToken := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req = req.WithContext(shared.ContextWithToken(req.Context(), resp.Token))
		out := httptest.NewRecorder()
		f.router.ServeHTTP(out, req)
		return out
	}

	me := withToken(http.MethodGet, "/auth/me")
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"login":"alice"`)

	logout := withToken(http.MethodPost, "/auth/logout")
	assert.Equal(t, http.StatusNoContent, logout.Code)

	meAfter := withToken(http.MethodGet, "/auth/me")
	assert.Equal(t, http.StatusUnauthorized, meAfter.Code)
}

func TestMeWithoutSession(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
