package seed

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/Canvass/internal/api"
	"github.com/soaringjerry/Canvass/internal/models"
)

func TestRunPopulatesDemoWorkspace(t *testing.T) {
	ctx := context.Background()
	store := api.NewMemoryStore()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	sum, err := Run(ctx, store, now)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if sum.Users != 6 || sum.Surveys != 2 || sum.Invitations != 10 || sum.Responses != 9 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	owner, err := store.FindUserByEmail(ctx, "sarah.johnson@example.com")
	if err != nil || owner == nil {
		t.Fatalf("creator missing: %v", err)
	}
	if bcrypt.CompareHashAndPassword(owner.PassHash, []byte(DemoPassword)) != nil {
		t.Fatalf("demo password does not match")
	}

	surveys, err := store.ListSurveysByCreator(ctx, owner.ID)
	if err != nil || len(surveys) != 2 {
		t.Fatalf("surveys=%d err=%v", len(surveys), err)
	}
	responses, err := store.ListResponsesByCreator(ctx, owner.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 9 {
		t.Fatalf("expected 9 responses, got %d", len(responses))
	}
	for _, r := range responses {
		if r.SubmittedAt.After(now) || now.Sub(r.SubmittedAt) > 7*24*time.Hour {
			t.Fatalf("response %s outside the last week: %v", r.ID, r.SubmittedAt)
		}
	}

	invs, err := store.ListInvitationsByCreator(ctx, owner.ID)
	if err != nil {
		t.Fatalf("invitations: %v", err)
	}
	pending := 0
	for _, inv := range invs {
		if inv.Status == models.InvitationPending {
			pending++
		}
	}
	if pending != 1 {
		t.Fatalf("expected one pending invitation, got %d", pending)
	}
}

func TestRunRefusesSecondPass(t *testing.T) {
	ctx := context.Background()
	store := api.NewMemoryStore()
	if _, err := Run(ctx, store, time.Now()); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if _, err := Run(ctx, store, time.Now()); err == nil {
		t.Fatalf("expected second seed to fail")
	}
}
