package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newAuthFixture() (*stubStore, *AuthService) {
	store := newStubStore()
	svc := NewAuthService(store, func(uid, email, name string, ttl time.Duration) (string, error) {
		return "token:" + uid + ":" + email, nil
	}, time.Hour)
	svc.now = func() time.Time { return time.Unix(0, 0) }
	svc.idGen = func() string { return "u1234567" }
	return store, svc
}

func TestAuthRegisterAndLogin(t *testing.T) {
	_, svc := newAuthFixture()
	ctx := context.Background()

	res, err := svc.Register(ctx, "Uma", " User@Example.com ", "Secret123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if res.User.ID != "u1234567" || res.User.Email != "user@example.com" {
		t.Fatalf("unexpected user %+v", res.User)
	}
	if res.AccessToken != "token:u1234567:user@example.com" {
		t.Fatalf("unexpected token %q", res.AccessToken)
	}

	_, err = svc.Register(ctx, "Uma", "user@example.com", "Secret123")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict || se.Reason != ReasonEmailTaken {
		t.Fatalf("expected email taken conflict, got %v", err)
	}

	loginRes, err := svc.Login(ctx, "USER@example.com", "Secret123")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if loginRes.AccessToken == "" {
		t.Fatalf("expected token in login response")
	}

	for _, c := range []struct{ email, pw string }{{"user@example.com", "wrong"}, {"missing@example.com", "Secret123"}} {
		_, err := svc.Login(ctx, c.email, c.pw)
		if se, ok := AsServiceError(err); !ok || se.Code != ErrorUnauthorized {
			t.Fatalf("expected unauthorized for %s, got %v", c.email, err)
		}
	}

	me, err := svc.Me(ctx, "u1234567")
	if err != nil || me.Name != "Uma" {
		t.Fatalf("Me returned %+v, %v", me, err)
	}
	if _, err := svc.Me(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuthValidation(t *testing.T) {
	_, svc := newAuthFixture()
	ctx := context.Background()
	if _, err := svc.Register(ctx, "", "a@b.c", "pw"); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if _, err := svc.Register(ctx, "A", "", "pw"); err == nil {
		t.Fatalf("expected error for missing email")
	}
	if _, err := svc.Login(ctx, "a@b.c", " "); err == nil {
		t.Fatalf("expected error for blank password")
	}
}

func TestAuthRequiresSigner(t *testing.T) {
	svc := NewAuthService(newStubStore(), nil, 0)
	if svc.TokenTTL() != 30*24*time.Hour {
		t.Fatalf("unexpected default ttl %v", svc.TokenTTL())
	}
	if _, err := svc.Register(context.Background(), "A", "a@b.c", "pw"); err == nil {
		t.Fatalf("expected error without signer")
	}
}
