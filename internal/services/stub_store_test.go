package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soaringjerry/Canvass/internal/events"
	"github.com/soaringjerry/Canvass/internal/models"
)

// stubStore is a minimal in-memory double covering every service store interface.
type stubStore struct {
	mu          sync.Mutex
	users       map[string]*models.User
	surveys     map[string]*models.Survey
	invitations map[string]*models.Invitation
	responses   map[string]*models.Response
	audit       []models.AuditEntry

	failLookup   bool
	failActivity bool
}

func newStubStore() *stubStore {
	return &stubStore{
		users:       map[string]*models.User{},
		surveys:     map[string]*models.Survey{},
		invitations: map[string]*models.Invitation{},
		responses:   map[string]*models.Response{},
	}
}

var errStub = errors.New("stub failure")

func (s *stubStore) addUser(id, name, email string) *models.User {
	u := &models.User{ID: id, Name: name, Email: email, CreatedAt: time.Unix(0, 0).UTC()}
	s.users[id] = u
	return u
}

func (s *stubStore) addSurvey(id, creator string, qids ...string) *models.Survey {
	sv := &models.Survey{ID: id, Title: "Survey " + id, CreatorID: creator, Status: models.SurveyActive}
	for _, q := range qids {
		sv.Questions = append(sv.Questions, models.Question{QuestionID: q, QuestionText: "Question " + q})
	}
	s.surveys[id] = sv
	return sv
}

func (s *stubStore) addInvitation(inv *models.Invitation) {
	cp := *inv
	s.invitations[inv.ID] = &cp
}

func (s *stubStore) addResponse(r *models.Response) {
	cp := *r
	s.responses[r.ID] = &cp
}

func (s *stubStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLookup {
		return nil, errStub
	}
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) AddUser(_ context.Context, u *models.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.users {
		if ex.Email == u.Email {
			return false, nil
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return true, nil
}

func (s *stubStore) AddSurvey(_ context.Context, sv *models.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sv
	s.surveys[sv.ID] = &cp
	return nil
}

func (s *stubStore) GetSurvey(_ context.Context, id string) (*models.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sv, ok := s.surveys[id]; ok {
		cp := *sv
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) UpdateSurveyStatus(_ context.Context, id string, from, to models.SurveyStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.surveys[id]
	if !ok || sv.Status != from {
		return false, nil
	}
	sv.Status = to
	sv.UpdatedAt = at
	return true, nil
}

func (s *stubStore) ListSurveysByCreator(_ context.Context, creatorID string) ([]*models.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Survey{}
	for _, sv := range s.surveys {
		if sv.CreatorID == creatorID {
			cp := *sv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) CreateInvitation(_ context.Context, inv *models.Invitation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.invitations {
		if ex.SurveyID == inv.SurveyID && ex.UserID == inv.UserID {
			return false, nil
		}
	}
	cp := *inv
	s.invitations[inv.ID] = &cp
	return true, nil
}

func (s *stubStore) filterInvitations(keep func(*models.Invitation) bool) []*models.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Invitation{}
	for _, inv := range s.invitations {
		if keep(inv) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out
}

func (s *stubStore) GetInvitation(_ context.Context, id string) (*models.Invitation, error) {
	list := s.filterInvitations(func(inv *models.Invitation) bool { return inv.ID == id })
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *stubStore) GetInvitationByToken(_ context.Context, token string) (*models.Invitation, error) {
	list := s.filterInvitations(func(inv *models.Invitation) bool { return inv.Token == token })
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *stubStore) FindInvitation(_ context.Context, surveyID, userID string) (*models.Invitation, error) {
	list := s.filterInvitations(func(inv *models.Invitation) bool { return inv.SurveyID == surveyID && inv.UserID == userID })
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *stubStore) ListInvitationsBySurvey(_ context.Context, surveyID string) ([]*models.Invitation, error) {
	return s.filterInvitations(func(inv *models.Invitation) bool { return inv.SurveyID == surveyID }), nil
}

func (s *stubStore) ListInvitationsByUser(_ context.Context, userID string) ([]*models.Invitation, error) {
	return s.filterInvitations(func(inv *models.Invitation) bool { return inv.UserID == userID }), nil
}

func (s *stubStore) ListInvitationsByCreator(_ context.Context, creatorID string) ([]*models.Invitation, error) {
	return s.filterInvitations(func(inv *models.Invitation) bool { return inv.CreatorID == creatorID }), nil
}

func (s *stubStore) CompleteInvitation(_ context.Context, resp *models.Response, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[resp.InvitationID]
	if !ok || inv.Status != models.InvitationPending {
		return false, nil
	}
	inv.Status = models.InvitationCompleted
	t := completedAt
	inv.CompletedAt = &t
	cp := *resp
	s.responses[resp.ID] = &cp
	return true, nil
}

func (s *stubStore) GetResponse(_ context.Context, id string) (*models.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.responses[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) filterResponses(keep func(*models.Response) bool) []*models.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Response{}
	for _, r := range s.responses {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func (s *stubStore) ListResponsesBySurvey(_ context.Context, surveyID string) ([]*models.Response, error) {
	return s.filterResponses(func(r *models.Response) bool { return r.SurveyID == surveyID }), nil
}

func (s *stubStore) ListResponsesByCreator(_ context.Context, creatorID string) ([]*models.Response, error) {
	s.mu.Lock()
	owned := map[string]bool{}
	for _, sv := range s.surveys {
		if sv.CreatorID == creatorID {
			owned[sv.ID] = true
		}
	}
	s.mu.Unlock()
	return s.filterResponses(func(r *models.Response) bool { return owned[r.SurveyID] }), nil
}

func (s *stubStore) CreatorActivity(ctx context.Context, creatorID string) (*models.CreatorActivity, error) {
	if s.failActivity {
		return nil, errStub
	}
	surveys, _ := s.ListSurveysByCreator(ctx, creatorID)
	invs, _ := s.ListInvitationsByCreator(ctx, creatorID)
	resps, _ := s.ListResponsesByCreator(ctx, creatorID)
	return &models.CreatorActivity{Surveys: surveys, Invitations: invs, Responses: resps}, nil
}

func (s *stubStore) AddAudit(_ context.Context, e models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequence(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}
