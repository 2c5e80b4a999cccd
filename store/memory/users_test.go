package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/profileauth"
)

func TestUsersCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	p := NewUsers()

	created, err := p.CreateUser(ctx, profileauth.CreateUserInput{UserID: "u-1", Login: "alice", Email: "alice@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.IsEmailVerified {
		t.Fatal("new users start unverified")
	}

	for name, get := range map[string]func() (profileauth.UserRecord, error){
		"id":    func() (profileauth.UserRecord, error) { return p.GetUserByID(ctx, "u-1") },
		"login": func() (profileauth.UserRecord, error) { return p.GetUserByLogin(ctx, "alice") },
		"email": func() (profileauth.UserRecord, error) { return p.GetUserByEmail(ctx, "alice@example.com") },
	} {
		u, err := get()
		if err != nil || u.UserID != "u-1" {
			t.Fatalf("lookup by %s: %+v, %v", name, u, err)
		}
	}

	if _, err := p.GetUserByLogin(ctx, "bob"); !errors.Is(err, profileauth.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestUsersRejectDuplicates(t *testing.T) {
	ctx := context.Background()
	p := NewUsers()
	p.Put(profileauth.UserRecord{UserID: "u-1", Login: "alice", Email: "alice@example.com"})
	p.Put(profileauth.UserRecord{UserID: "u-2", Login: "bob", Email: "bob@example.com"})

	if _, err := p.CreateUser(ctx, profileauth.CreateUserInput{UserID: "u-3", Login: "alice", Email: "x@example.com"}); !errors.Is(err, profileauth.ErrProviderDuplicate) {
		t.Fatalf("duplicate login: %v", err)
	}
	if _, err := p.CreateUser(ctx, profileauth.CreateUserInput{UserID: "u-3", Login: "carol", Email: "bob@example.com"}); !errors.Is(err, profileauth.ErrProviderDuplicate) {
		t.Fatalf("duplicate email: %v", err)
	}

	taken := "bob"
	if _, err := p.UpdateUser(ctx, "u-1", profileauth.UserUpdate{Login: &taken}); !errors.Is(err, profileauth.ErrProviderDuplicate) {
		t.Fatalf("update to taken login: %v", err)
	}
	same := "alice"
	if _, err := p.UpdateUser(ctx, "u-1", profileauth.UserUpdate{Login: &same}); err != nil {
		t.Fatalf("update to own login: %v", err)
	}
}

func TestUsersUpdateReindexes(t *testing.T) {
	ctx := context.Background()
	p := NewUsers()
	p.Put(profileauth.UserRecord{UserID: "u-1", Login: "alice", Email: "alice@example.com"})

	login, email := "alice2", "new@example.com"
	verified := true
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	u, err := p.UpdateUser(ctx, "u-1", profileauth.UserUpdate{Login: &login, Email: &email, IsEmailVerified: &verified, LastLoginChangeAt: &at})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if u.Login != login || u.Email != email || !u.IsEmailVerified || !u.LastLoginChangeAt.Equal(at) {
		t.Fatalf("unexpected record %+v", u)
	}
	if _, err := p.GetUserByLogin(ctx, "alice"); !errors.Is(err, profileauth.ErrProviderNotFound) {
		t.Fatalf("old login still indexed: %v", err)
	}
	if got, err := p.GetUserByEmail(ctx, email); err != nil || got.UserID != "u-1" {
		t.Fatalf("new email not indexed: %v", err)
	}

	if _, err := p.UpdateUser(ctx, "missing", profileauth.UserUpdate{}); !errors.Is(err, profileauth.ErrProviderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
