package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// FuzzParse feeds arbitrary strings to an access and a refresh manager that
// share everything but the secret. Parse must never panic, must fail with
// one of the two sentinel errors, and must never accept a token minted for
// the other class.
func FuzzParse(f *testing.F) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	access, err := NewManager(Config{TTL: 15 * time.Minute, Secret: []byte("access-secret-for-fuzzing"), Issuer: "profileauth", Now: clock.Now})
	if err != nil {
		f.Fatal(err)
	}
	refresh, err := NewManager(Config{TTL: 7 * 24 * time.Hour, Secret: []byte("refresh-secret-for-fuzzing"), Issuer: "profileauth", Now: clock.Now})
	if err != nil {
		f.Fatal(err)
	}

	accessTok, _, err := access.Issue("user-1", "alice")
	if err != nil {
		f.Fatal(err)
	}
	refreshTok, _, err := refresh.Issue("user-1", "alice")
	if err != nil {
		f.Fatal(err)
	}

	for _, seed := range []string{
		accessTok,
		refreshTok,
		accessTok + "x",
		strings.Replace(accessTok, ".", "..", 1),
		"",
		"a.b.c",
		"eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1c2VyLTEifQ.",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, token string) {
		a, aerr := access.Parse(token)
		r, rerr := refresh.Parse(token)

		for _, err := range []error{aerr, rerr} {
			if err != nil && !errors.Is(err, ErrTokenInvalid) && !errors.Is(err, ErrTokenExpired) {
				t.Fatalf("unexpected error class: %v", err)
			}
		}
		if aerr == nil && rerr == nil {
			t.Fatalf("token accepted by both classes: %q", token)
		}
		for _, c := range []*Claims{a, r} {
			if c != nil && c.Subject == "" {
				t.Fatal("accepted token without subject")
			}
		}
	})
}
