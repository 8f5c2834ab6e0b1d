package api

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/soaringjerry/Canvass/internal/models"
)

func seedMemory(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []*models.User{
		{ID: "u-alice", Name: "Alice", Email: "alice@example.com", PassHash: []byte("hash")},
		{ID: "u-bob", Name: "Bob", Email: "bob@example.com"},
	} {
		if ok, err := s.AddUser(ctx, u); err != nil || !ok {
			t.Fatalf("add user %s: ok=%v err=%v", u.ID, ok, err)
		}
	}
	sv := &models.Survey{
		ID: "sv1", Title: "Team pulse", CreatorID: "u-alice", Status: models.SurveyActive,
		Questions: []models.Question{{QuestionID: "q1", QuestionText: "How are you?"}},
	}
	if err := s.AddSurvey(ctx, sv); err != nil {
		t.Fatalf("add survey: %v", err)
	}
}

func TestMemoryStoreUserEmailIsCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	seedMemory(t, s)
	ctx := context.Background()
	ok, err := s.AddUser(ctx, &models.User{ID: "u-x", Email: "  ALICE@example.com"})
	if err != nil || ok {
		t.Fatalf("expected duplicate email to be rejected, ok=%v err=%v", ok, err)
	}
	u, err := s.FindUserByEmail(ctx, "Bob@Example.com")
	if err != nil || u == nil || u.ID != "u-bob" {
		t.Fatalf("lookup by mixed-case email: %+v %v", u, err)
	}
}

func TestMemoryStoreCreateInvitationOncePerPair(t *testing.T) {
	s := NewMemoryStore()
	seedMemory(t, s)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv := &models.Invitation{
				ID: "inv" + string(rune('a'+i)), SurveyID: "sv1", CreatorID: "u-alice", UserID: "u-bob",
				Token: "tok" + string(rune('a'+i)), Status: models.InvitationPending,
			}
			ok, err := s.CreateInvitation(ctx, inv)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one invitation, got %d", wins)
	}
	list, _ := s.ListInvitationsBySurvey(ctx, "sv1")
	if len(list) != 1 {
		t.Fatalf("expected one stored invitation, got %d", len(list))
	}
}

func TestMemoryStoreCompleteInvitationOnce(t *testing.T) {
	s := NewMemoryStore()
	seedMemory(t, s)
	ctx := context.Background()
	inv := &models.Invitation{ID: "inv1", SurveyID: "sv1", CreatorID: "u-alice", UserID: "u-bob", Token: "tok1", Status: models.InvitationPending}
	if ok, err := s.CreateInvitation(ctx, inv); err != nil || !ok {
		t.Fatalf("create: %v %v", ok, err)
	}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	resp := &models.Response{ID: "r1", SurveyID: "sv1", RespondentID: "u-bob", InvitationID: "inv1",
		Answers: []models.Answer{{QuestionID: "q1", QuestionText: "How are you?", Answer: "fine"}}, SubmittedAt: at}
	if ok, err := s.CompleteInvitation(ctx, resp, at); err != nil || !ok {
		t.Fatalf("first complete: %v %v", ok, err)
	}
	again := *resp
	again.ID = "r2"
	if ok, err := s.CompleteInvitation(ctx, &again, at); err != nil || ok {
		t.Fatalf("second complete should lose: %v %v", ok, err)
	}
	got, _ := s.GetInvitation(ctx, "inv1")
	if got.Status != models.InvitationCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(at) {
		t.Fatalf("invitation not completed: %+v", got)
	}
	rs, _ := s.ListResponsesByCreator(ctx, "u-alice")
	if len(rs) != 1 || rs[0].ID != "r1" {
		t.Fatalf("responses by creator: %+v", rs)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	seedMemory(t, s)
	ctx := context.Background()
	sv, _ := s.GetSurvey(ctx, "sv1")
	sv.Title = "changed"
	sv.Questions[0].QuestionText = "changed"
	again, _ := s.GetSurvey(ctx, "sv1")
	if again.Title != "Team pulse" || again.Questions[0].QuestionText != "How are you?" {
		t.Fatalf("store leaked internal state: %+v", again)
	}
}

func TestMemoryStoreSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "snapshot.json")
	ctx := context.Background()
	s, err := NewMemoryStoreFromPath(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seedMemory(t, s)
	inv := &models.Invitation{ID: "inv1", SurveyID: "sv1", CreatorID: "u-alice", UserID: "u-bob", Token: "secret-token", Status: models.InvitationPending}
	if _, err := s.CreateInvitation(ctx, inv); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.AddAudit(ctx, models.AuditEntry{Actor: "u-alice", Action: "invitation.create", Target: "inv1"})

	reopened, err := NewMemoryStoreFromPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	byToken, _ := reopened.GetInvitationByToken(ctx, "secret-token")
	if byToken == nil || byToken.ID != "inv1" {
		t.Fatalf("token not persisted: %+v", byToken)
	}
	u, _ := reopened.GetUser(ctx, "u-alice")
	if u == nil || string(u.PassHash) != "hash" {
		t.Fatalf("password hash not persisted: %+v", u)
	}
	if ok, _ := reopened.CreateInvitation(ctx, &models.Invitation{ID: "inv2", SurveyID: "sv1", UserID: "u-bob", Token: "t2"}); ok {
		t.Fatalf("pair index not restored")
	}
	audit, _ := reopened.ListAudit(ctx)
	if len(audit) != 1 {
		t.Fatalf("audit not persisted: %+v", audit)
	}

	snap, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(snap.Users) != 2 || len(snap.Surveys) != 1 || len(snap.Invitations) != 1 || snap.Invitations[0].Token != "secret-token" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestNewMemoryStoreFromMissingPath(t *testing.T) {
	s, err := NewMemoryStoreFromPath(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing snapshot should start empty: %v", err)
	}
	list, _ := s.ListSurveysByCreator(context.Background(), "anyone")
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty, non-nil list, got %#v", list)
	}
}

func TestMemoryStoreUndoesWriteWhenSnapshotFails(t *testing.T) {
	s := newMemoryStore()
	seedMemory(t, s)
	ctx := context.Background()

	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	s.snapshotPath = filepath.Join(blocker, "snapshot.json")

	if ok, err := s.AddUser(ctx, &models.User{ID: "u-carol", Email: "carol@example.com"}); err == nil || ok {
		t.Fatalf("expected AddUser to fail, ok=%v err=%v", ok, err)
	}
	if u, _ := s.FindUserByEmail(ctx, "carol@example.com"); u != nil {
		t.Fatalf("failed AddUser left a user behind")
	}
	inv := &models.Invitation{ID: "i1", SurveyID: "sv1", CreatorID: "u-alice", UserID: "u-bob", Token: "t1", Status: models.InvitationPending}
	if ok, err := s.CreateInvitation(ctx, inv); err == nil || ok {
		t.Fatalf("expected CreateInvitation to fail, ok=%v err=%v", ok, err)
	}
	if ok, err := s.UpdateSurveyStatus(ctx, "sv1", models.SurveyActive, models.SurveyClosed, time.Now()); err == nil || ok {
		t.Fatalf("expected UpdateSurveyStatus to fail, ok=%v err=%v", ok, err)
	}
	if sv, _ := s.GetSurvey(ctx, "sv1"); sv.Status != models.SurveyActive {
		t.Fatalf("status change not undone: %s", sv.Status)
	}

	s.snapshotPath = ""
	if ok, err := s.CreateInvitation(ctx, inv); err != nil || !ok {
		t.Fatalf("pair and token should be free again: ok=%v err=%v", ok, err)
	}

	s.snapshotPath = filepath.Join(blocker, "snapshot.json")
	resp := &models.Response{ID: "r1", SurveyID: "sv1", RespondentID: "u-bob", InvitationID: "i1"}
	if ok, err := s.CompleteInvitation(ctx, resp, time.Now()); err == nil || ok {
		t.Fatalf("expected CompleteInvitation to fail, ok=%v err=%v", ok, err)
	}
	got, _ := s.GetInvitation(ctx, "i1")
	if got.Status != models.InvitationPending || got.CompletedAt != nil {
		t.Fatalf("invitation not restored: %+v", got)
	}
	if r, _ := s.GetResponse(ctx, "r1"); r != nil {
		t.Fatalf("failed completion left a response behind")
	}

	s.snapshotPath = ""
	if ok, err := s.CompleteInvitation(ctx, resp, time.Now()); err != nil || !ok {
		t.Fatalf("completion should succeed once the snapshot is writable: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreCreatorActivity(t *testing.T) {
	s := NewMemoryStore()
	seedMemory(t, s)
	ctx := context.Background()
	if err := s.AddSurvey(ctx, &models.Survey{ID: "sv-bob", Title: "Retro", CreatorID: "u-bob", Status: models.SurveyActive}); err != nil {
		t.Fatalf("add survey: %v", err)
	}
	for _, inv := range []*models.Invitation{
		{ID: "inv1", SurveyID: "sv1", CreatorID: "u-alice", UserID: "u-bob", Token: "tok1", Status: models.InvitationPending},
		{ID: "inv2", SurveyID: "sv-bob", CreatorID: "u-bob", UserID: "u-alice", Token: "tok2", Status: models.InvitationPending},
	} {
		if ok, err := s.CreateInvitation(ctx, inv); err != nil || !ok {
			t.Fatalf("create %s: %v %v", inv.ID, ok, err)
		}
	}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	resp := &models.Response{ID: "r1", SurveyID: "sv1", RespondentID: "u-bob", InvitationID: "inv1", SubmittedAt: at}
	if ok, err := s.CompleteInvitation(ctx, resp, at); err != nil || !ok {
		t.Fatalf("complete: %v %v", ok, err)
	}

	act, err := s.CreatorActivity(ctx, "u-alice")
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(act.Surveys) != 1 || len(act.Invitations) != 1 || len(act.Responses) != 1 {
		t.Fatalf("alice activity: %d surveys, %d invitations, %d responses", len(act.Surveys), len(act.Invitations), len(act.Responses))
	}
	act.Surveys[0].Title = "changed"
	again, _ := s.GetSurvey(ctx, "sv1")
	if again.Title != "Team pulse" {
		t.Fatalf("activity leaked internal state: %+v", again)
	}

	none, _ := s.CreatorActivity(ctx, "nobody")
	if none.Surveys == nil || none.Invitations == nil || none.Responses == nil {
		t.Fatalf("expected empty slices, got %+v", none)
	}
}
