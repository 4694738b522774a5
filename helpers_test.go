package eduAuth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/eduAuth/identity"
	"github.com/MrEthical07/eduAuth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*Account
	err  error
	// updateErr fails Update only.
	updateErr error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: make(map[string]*Account)}
}

func copyAccount(a *Account) *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.ExternalIdentity != nil {
		ext := *a.ExternalIdentity
		out.ExternalIdentity = &ext
	}
	return &out
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.byID {
		if a.Email == strings.ToLower(email) {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (m *memAccounts) FindByExternalID(_ context.Context, provider, externalID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.byID {
		if ext := a.ExternalIdentity; ext != nil && ext.Provider == provider && ext.ProviderID == externalID {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (m *memAccounts) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return copyAccount(m.byID[id]), nil
}

func (m *memAccounts) Create(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, a := range m.byID {
		if a.Email == account.Email {
			return errors.New("duplicate email")
		}
	}
	m.byID[account.ID] = copyAccount(account)
	return nil
}

func (m *memAccounts) Update(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.byID[account.ID]; !ok {
		return errors.New("no such account")
	}
	m.byID[account.ID] = copyAccount(account)
	return nil
}

func (m *memAccounts) get(id string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyAccount(m.byID[id])
}

func (m *memAccounts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memAccounts) mutate(id string, fn func(*Account)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.byID[id])
}

// fakeIdP is an in-process IdentityProvider that counts calls.
type fakeIdP struct {
	mu            sync.Mutex
	profile       identity.Profile
	exchangeErr   error
	profileErr    error
	exchangeCalls int
	profileCalls  int
	lastVerifier  string
}

func (p *fakeIdP) Name() string { return "google" }

func (p *fakeIdP) AuthorizationURL(state, codeChallenge string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	return "https://idp.example/authorize?" + q.Encode()
}

func (p *fakeIdP) Exchange(_ context.Context, _ string, codeVerifier string) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchangeCalls++
	p.lastVerifier = codeVerifier
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{AccessToken: "upstream-access"}, nil
}

func (p *fakeIdP) FetchProfile(context.Context, string) (*identity.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profileCalls++
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	out := p.profile
	return &out, nil
}

func (p *fakeIdP) setProfile(profile identity.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profile = profile
}

func (p *fakeIdP) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchangeCalls + p.profileCalls
}

type testEnv struct {
	engine   *Engine
	accounts *memAccounts
	idp      *fakeIdP
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	hasher   *password.Argon2
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Environment = EnvTest
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(testSecret)
	cfg.JWT.Issuer = "eduauth-test"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	env := &testEnv{
		accounts: newMemAccounts(),
		idp:      &fakeIdP{},
		mr:       mr,
		rdb:      rdb,
	}
	hasher, err := password.NewArgon2(cfg.passwordConfig())
	require.NoError(t, err)
	env.hasher = hasher

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(zaptest.NewLogger(t)).
		WithAccountStore(env.accounts).
		WithIdentityProvider(env.idp)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) addAccount(t *testing.T, email, plain string, verified bool) *Account {
	t.Helper()
	hash := ""
	if plain != "" {
		var err error
		hash, err = env.hasher.Hash(plain)
		require.NoError(t, err)
	}
	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         "student",
		IsActive:     true,
		IsVerified:   verified,
	}
	require.NoError(t, env.accounts.Create(context.Background(), account))
	return account
}

// startOAuth runs StartOAuth and returns the state token from the URL.
func (env *testEnv) startOAuth(t *testing.T, redirect string) string {
	t.Helper()
	authURL, err := env.engine.StartOAuth(context.Background(), redirect)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (env *testEnv) counter(id MetricID) uint64 {
	return env.engine.MetricsSnapshot().Counters[id]
}
