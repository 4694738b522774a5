package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func FuzzVerify(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	m, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "eduauth-fuzz",
		KeyID:         "2026-a",
		VerifyKeys:    map[string][]byte{"2026-a": pub},
	})
	if err != nil {
		f.Fatal(err)
	}
	issued, err := m.IssueRefresh("learner-7", "learner7@school.example")
	if err != nil {
		f.Fatal(err)
	}

	for _, seed := range []string{
		issued,
		"",
		"...",
		"a.b.c",
		"eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ4Iiwia25kIjoiYWNjZXNzIn0.",
		"eyJhbGciOiJIUzI1NiJ9.eyJ1aWQiOiJ4Iiwia25kIjoiYWNjZXNzIn0.c2ln",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := m.Verify(token)
		if err != nil {
			if !errors.Is(err, ErrTokenInvalid) {
				t.Fatalf("rejection not wrapped in ErrTokenInvalid: %v", err)
			}
			return
		}
		// Only something we signed can get here.
		if claims.UID == "" || claims.Issuer != "eduauth-fuzz" {
			t.Fatalf("accepted foreign claims %+v", claims)
		}
	})
}
