package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newTestManager(t *testing.T, mutate func(*Config)) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv := newEdKeys(t)
	cfg := Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "eduauth",
		Audience:      "api",
		Leeway:        30 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv
}

func TestIssueAndVerifyKinds(t *testing.T) {
	m, _ := newTestManager(t, nil)

	access, err := m.IssueAccess("u1", "ada@example.com", "teacher")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	refresh, err := m.IssueRefresh("u1", "ada@example.com")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	ac, err := m.Verify(access)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if ac.Kind != KindAccess || ac.UID != "u1" || ac.Role != "teacher" || ac.Email != "ada@example.com" {
		t.Fatalf("unexpected access claims: %+v", ac)
	}

	rc, err := m.Verify(refresh)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if rc.Kind != KindRefresh || rc.UID != "u1" || rc.Role != "" {
		t.Fatalf("unexpected refresh claims: %+v", rc)
	}
	if !rc.ExpiresAt.After(ac.ExpiresAt.Time) {
		t.Fatal("expected refresh token to outlive access token")
	}
}

func TestIssueRefreshIsUniquePerCall(t *testing.T) {
	m, _ := newTestManager(t, nil)

	a, err := m.IssueRefresh("u1", "")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	b, err := m.IssueRefresh("u1", "")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct refresh tokens for consecutive issues")
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	m, _ := newTestManager(t, nil)

	claims := Claims{UID: "u1", Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	_, err = m.Verify(token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyIssuerAudienceAndLeeway(t *testing.T) {
	m, priv := newTestManager(t, nil)

	sign := func(iss string, aud string, exp time.Time) string {
		c := Claims{UID: "u1", Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(exp),
			IssuedAt:  gjwt.NewNumericDate(exp.Add(-time.Minute)),
		}}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := m.Verify(sign("other", "api", time.Now().Add(time.Minute))); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Verify(sign("eduauth", "other-api", time.Now().Add(time.Minute))); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Verify(sign("eduauth", "api", time.Now().Add(-15*time.Second))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.Verify(sign("eduauth", "api", time.Now().Add(-2*time.Minute))); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestVerifyRejectsMissingKind(t *testing.T) {
	m, priv := newTestManager(t, nil)

	c := Claims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "eduauth",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for missing kind, got %v", err)
	}
}

func TestVerifyUsesInjectedClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m, _ := newTestManager(t, func(c *Config) {
		c.Leeway = 0
		c.Now = func() time.Time { return now }
	})

	token, err := m.IssueAccess("u1", "", "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(token); err != nil {
		t.Fatalf("expected fresh token to verify: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := m.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expiry under advanced clock, got %v", err)
	}
}

func TestVerifyUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UID: "u1", Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, err := m.IssueAccess("u1", "", "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, err := NewManager(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m2.Verify(good); err == nil {
		t.Fatal("expected verify failure with mismatched key set")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	pub, _ := newEdKeys(t)
	cases := []Config{
		{AccessTTL: 0, RefreshTTL: time.Hour, SigningMethod: MethodEd25519, PublicKey: pub},
		{AccessTTL: time.Hour, RefreshTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub},
		{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: "rs256"},
		{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}
