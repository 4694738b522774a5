package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	eduAuth "github.com/MrEthical07/eduAuth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator map[string]*eduAuth.AuthResult

func (f fakeValidator) ValidateAccess(_ context.Context, token string) (*eduAuth.AuthResult, error) {
	if res, ok := f[token]; ok {
		return res, nil
	}
	return nil, eduAuth.ErrTokenInvalid
}

var validator = fakeValidator{
	"student-token": {UserID: "u-1", Role: "student"},
	"teacher-token": {UserID: "u-2", Role: "teacher"},
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := AuthResultFromContext(r.Context())
		if assert.True(t, ok) {
			_, _ = w.Write([]byte(res.UserID))
		}
	})
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuard(t *testing.T) {
	h := Guard(validator)(okHandler(t))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwdw==", status: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid", header: "Bearer student-token", status: http.StatusOK, body: "u-1"},
		{name: "lowercase scheme", header: "bearer teacher-token", status: http.StatusOK, body: "u-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.header)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
			} else {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestGuardNilValidator(t *testing.T) {
	rec := serve(Guard(nil)(okHandler(t)), "Bearer student-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	h := Guard(validator)(RequireRole("teacher", "admin")(okHandler(t)))

	assert.Equal(t, http.StatusOK, serve(h, "Bearer teacher-token").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, "Bearer student-token").Code)

	unguarded := RequireRole("teacher")(http.NotFoundHandler())
	assert.Equal(t, http.StatusUnauthorized, serve(unguarded, "Bearer teacher-token").Code)
}

type noAccounts struct{}

func (noAccounts) FindByEmail(context.Context, string) (*eduAuth.Account, error) { return nil, nil }
func (noAccounts) FindByExternalID(context.Context, string, string) (*eduAuth.Account, error) {
	return nil, nil
}
func (noAccounts) FindByID(context.Context, string) (*eduAuth.Account, error) { return nil, nil }
func (noAccounts) Create(context.Context, *eduAuth.Account) error             { return nil }
func (noAccounts) Update(context.Context, *eduAuth.Account) error             { return nil }

func TestClientInfoReachesAudit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := eduAuth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	sink := eduAuth.NewChannelSink(4)
	engine, err := eduAuth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(noAccounts{}).
		WithAuditSink(sink).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	h := ClientInfo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := engine.Login(r.Context(), "ghost@school.example", "whatever-password")
		assert.ErrorIs(t, err, eduAuth.ErrInvalidCredentials)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "198.51.100.4:55123"
	req.Header.Set("User-Agent", "lms-app/2.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case ev := <-sink.Events():
		assert.Equal(t, "login_failure", ev.Type)
		assert.Equal(t, "198.51.100.4", ev.IP)
		assert.Equal(t, "lms-app/2.1", ev.Metadata["user_agent"])
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event")
	}
}

var _ Validator = (*eduAuth.Engine)(nil)
