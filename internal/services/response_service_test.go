package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soaringjerry/Canvass/internal/events"
	"github.com/soaringjerry/Canvass/internal/models"
)

func newResponseFixture() (*stubStore, *ResponseService, *recorder) {
	store := newStubStore()
	store.addUser("creator", "Casey", "creator@example.com")
	store.addUser("u1", "Uma", "uma@example.com")
	store.addSurvey("S1", "creator", "q1", "q2", "q3")
	store.addInvitation(&models.Invitation{ID: "I1", SurveyID: "S1", CreatorID: "creator", UserID: "u1", Status: models.InvitationPending})
	rec := &recorder{}
	svc := NewResponseService(store, rec)
	svc.now = fixedClock(time.Date(2025, 9, 17, 8, 30, 0, 0, time.UTC))
	svc.idGenerator = sequence("R")
	return store, svc, rec
}

func fullAnswers() []AnswerInput {
	return []AnswerInput{
		{QuestionID: "q3", Answer: "three"},
		{QuestionID: "q1", Answer: "one"},
		{QuestionID: "extra", Answer: "dropped"},
		{QuestionID: "q2", Answer: " two "},
	}
}

func TestSubmitResponseSuccess(t *testing.T) {
	store, svc, rec := newResponseFixture()
	resp, err := svc.SubmitResponse(context.Background(), SubmitRequest{
		InvitationID:   "I1",
		RespondentID:   "u1",
		Answers:        fullAnswers(),
		CompletionTime: 42,
	})
	if err != nil {
		t.Fatalf("SubmitResponse returned error: %v", err)
	}
	if len(resp.Answers) != 3 {
		t.Fatalf("expected 3 answers, got %d", len(resp.Answers))
	}
	for i, want := range []string{"q1", "q2", "q3"} {
		if resp.Answers[i].QuestionID != want {
			t.Fatalf("answer %d = %s, want %s", i, resp.Answers[i].QuestionID, want)
		}
	}
	if resp.Answers[1].Answer != "two" || resp.Answers[0].QuestionText != "Question q1" {
		t.Fatalf("unexpected answer contents %+v", resp.Answers)
	}
	if store.invitations["I1"].Status != models.InvitationCompleted || store.invitations["I1"].CompletedAt == nil {
		t.Fatalf("invitation not completed: %+v", store.invitations["I1"])
	}
	if got := rec.types(); len(got) != 1 || got[0] != events.TypeResponseSubmitted {
		t.Fatalf("unexpected events %v", got)
	}
	if rec.events[0].CreatorID != "creator" {
		t.Fatalf("event should target the survey creator, got %q", rec.events[0].CreatorID)
	}
}

func TestSubmitResponseTwiceIsDuplicate(t *testing.T) {
	store, svc, _ := newResponseFixture()
	req := SubmitRequest{InvitationID: "I1", RespondentID: "u1", Answers: fullAnswers()}
	if _, err := svc.SubmitResponse(context.Background(), req); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := svc.SubmitResponse(context.Background(), req)
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission, got %v", err)
	}
	if n := len(store.responses); n != 1 {
		t.Fatalf("expected exactly one response, got %d", n)
	}
}

func TestSubmitResponsePreconditionOrder(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*stubStore)
		req   SubmitRequest
		want  error
	}{
		{
			name: "missing invitation",
			req:  SubmitRequest{InvitationID: "nope", RespondentID: "u1", CompletionTime: -1},
			want: ErrNotFound,
		},
		{
			name: "wrong respondent wins over negative time",
			req:  SubmitRequest{InvitationID: "I1", RespondentID: "intruder", CompletionTime: -1},
			want: ErrAuthorization,
		},
		{
			name: "completed wins over incomplete answers",
			setup: func(s *stubStore) {
				s.invitations["I1"].Status = models.InvitationCompleted
			},
			req:  SubmitRequest{InvitationID: "I1", RespondentID: "u1"},
			want: ErrDuplicateSubmission,
		},
		{
			name: "incomplete answers",
			req:  SubmitRequest{InvitationID: "I1", RespondentID: "u1", Answers: []AnswerInput{{QuestionID: "q1", Answer: "x"}, {QuestionID: "q2", Answer: "  "}}},
			want: ErrIncompleteSubmission,
		},
	}
	for _, c := range cases {
		store, svc, _ := newResponseFixture()
		if c.setup != nil {
			c.setup(store)
		}
		if _, err := svc.SubmitResponse(context.Background(), c.req); !errors.Is(err, c.want) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.want, err)
		}
		if len(store.responses) != 0 {
			t.Fatalf("%s: no response should be stored", c.name)
		}
	}
}

func TestSubmitResponseNamesFirstMissingQuestion(t *testing.T) {
	_, svc, _ := newResponseFixture()
	_, err := svc.SubmitResponse(context.Background(), SubmitRequest{
		InvitationID: "I1",
		RespondentID: "u1",
		Answers:      []AnswerInput{{QuestionID: "q1", Answer: "x"}, {QuestionID: "q3", Answer: "z"}},
	})
	se, ok := AsServiceError(err)
	if !ok || se.Reason != ReasonIncompleteSubmission {
		t.Fatalf("expected incomplete submission, got %v", err)
	}
	if se.QuestionID != "q2" {
		t.Fatalf("expected q2 to be reported, got %q", se.QuestionID)
	}
}

func TestSubmitResponseNegativeCompletionTime(t *testing.T) {
	_, svc, _ := newResponseFixture()
	_, err := svc.SubmitResponse(context.Background(), SubmitRequest{InvitationID: "I1", RespondentID: "u1", Answers: fullAnswers(), CompletionTime: -5})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid || se.Reason != ReasonInvalid {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestSubmitResponseConcurrent(t *testing.T) {
	store, svc, _ := newResponseFixture()
	const workers = 12
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitResponse(context.Background(), SubmitRequest{InvitationID: "I1", RespondentID: "u1", Answers: fullAnswers()})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, dup := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateSubmission):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != workers-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d/%d", workers-1, ok, dup)
	}
	if len(store.responses) != 1 {
		t.Fatalf("expected one stored response, got %d", len(store.responses))
	}
}

func TestSurveyRoundTripCoversEveryQuestion(t *testing.T) {
	store := newStubStore()
	store.addUser("creator", "Casey", "creator@example.com")
	store.addUser("u1", "Uma", "uma@example.com")
	surveys := NewSurveyService(store, events.Nop{})
	invites := NewInvitationService(store, events.Nop{}, "http://localhost")
	responses := NewResponseService(store, events.Nop{})
	ctx := context.Background()

	qs := []models.Question{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		qs = append(qs, models.Question{QuestionID: id, QuestionText: "Q " + id})
	}
	sv, err := surveys.CreateSurvey(ctx, "creator", NewSurvey{Title: "Round trip", Questions: qs, Publish: true})
	if err != nil {
		t.Fatalf("CreateSurvey: %v", err)
	}
	batch, err := invites.SendInvitations(ctx, sv.ID, "creator", []string{"uma@example.com"})
	if err != nil || !batch.Results[0].Success {
		t.Fatalf("SendInvitations: %v %+v", err, batch)
	}
	answers := []AnswerInput{}
	for _, q := range qs {
		answers = append(answers, AnswerInput{QuestionID: q.QuestionID, Answer: "answer " + q.QuestionID})
	}
	resp, err := responses.SubmitResponse(ctx, SubmitRequest{InvitationID: batch.Results[0].InvitationID, RespondentID: "u1", Answers: answers})
	if err != nil {
		t.Fatalf("SubmitResponse: %v", err)
	}
	if len(resp.Answers) != len(qs) {
		t.Fatalf("expected %d answers, got %d", len(qs), len(resp.Answers))
	}
	got := map[string]bool{}
	for _, a := range resp.Answers {
		got[a.QuestionID] = true
	}
	for _, q := range qs {
		if !got[q.QuestionID] {
			t.Fatalf("missing answer for %s", q.QuestionID)
		}
	}
}

func TestGetAndListResponses(t *testing.T) {
	store, svc, _ := newResponseFixture()
	ctx := context.Background()
	store.addUser("other", "Olly", "olly@example.com")
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.addResponse(&models.Response{ID: "R2", SurveyID: "S1", RespondentID: "u1", SubmittedAt: t0.Add(time.Hour)})
	store.addResponse(&models.Response{ID: "R1", SurveyID: "S1", RespondentID: "u9", SubmittedAt: t0})

	if _, err := svc.GetResponse(ctx, "R2", "u1"); err != nil {
		t.Fatalf("respondent should see own response: %v", err)
	}
	if _, err := svc.GetResponse(ctx, "R2", "creator"); err != nil {
		t.Fatalf("creator should see response: %v", err)
	}
	if _, err := svc.GetResponse(ctx, "R2", "other"); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if _, err := svc.GetResponse(ctx, "missing", "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	list, err := svc.ListSurveyResponses(ctx, "S1", "creator")
	if err != nil {
		t.Fatalf("ListSurveyResponses: %v", err)
	}
	if len(list) != 2 || list[0].ID != "R1" || list[1].ID != "R2" {
		t.Fatalf("expected submission order, got %+v", list)
	}
	if _, err := svc.ListSurveyResponses(ctx, "S1", "u1"); !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}
