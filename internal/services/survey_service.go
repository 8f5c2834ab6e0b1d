package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soaringjerry/Canvass/internal/events"
	"github.com/soaringjerry/Canvass/internal/models"
)

type SurveyStore interface {
	AddSurvey(ctx context.Context, sv *models.Survey) error
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	// UpdateSurveyStatus moves a survey from one status to another; false when the current status is not from.
	UpdateSurveyStatus(ctx context.Context, id string, from, to models.SurveyStatus, at time.Time) (bool, error)
	FindInvitation(ctx context.Context, surveyID, userID string) (*models.Invitation, error)
	CreatorActivity(ctx context.Context, creatorID string) (*models.CreatorActivity, error)
	AuditStore
}

type SurveyService struct {
	store       SurveyStore
	events      events.Publisher
	now         func() time.Time
	idGenerator func() string
}

func NewSurveyService(store SurveyStore, publisher events.Publisher) *SurveyService {
	return &SurveyService{store: store, events: publisher, now: utcNow, idGenerator: defaultID}
}

// NewSurvey carries an already-parsed question list.
type NewSurvey struct {
	Title            string
	Description      string
	Questions        []models.Question
	OriginalFilename string
	Publish          bool
}

func (s *SurveyService) CreateSurvey(ctx context.Context, creatorID string, in NewSurvey) (*models.Survey, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, NewInvalidError("title required")
	}
	questions, err := cleanQuestions(in.Questions)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sv := &models.Survey{
		ID:               s.idGenerator(),
		Title:            title,
		Description:      strings.TrimSpace(in.Description),
		CreatorID:        creatorID,
		Questions:        questions,
		Status:           models.SurveyDraft,
		OriginalFilename: in.OriginalFilename,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.Publish {
		sv.Status = models.SurveyActive
	}
	if err := s.store.AddSurvey(ctx, sv); err != nil {
		return nil, fmt.Errorf("add survey: %w", err)
	}
	s.store.AddAudit(ctx, models.AuditEntry{Time: now, Actor: creatorID, Action: "survey.create", Target: sv.ID})
	publish(ctx, s.events, events.Event{Type: events.TypeSurveyCreated, CreatorID: creatorID, SurveyID: sv.ID, At: now})
	return sv, nil
}

func cleanQuestions(in []models.Question) ([]models.Question, error) {
	if len(in) == 0 {
		return nil, NewInvalidError("at least one question is required")
	}
	if len(in) > models.MaxQuestions {
		return nil, NewInvalidError(fmt.Sprintf("at most %d questions are allowed", models.MaxQuestions))
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]models.Question, 0, len(in))
	for i, q := range in {
		q.QuestionID = strings.TrimSpace(q.QuestionID)
		q.QuestionText = strings.TrimSpace(q.QuestionText)
		if q.QuestionID == "" {
			return nil, NewInvalidError(fmt.Sprintf("question %d has no id", i+1))
		}
		if q.QuestionText == "" {
			return nil, NewInvalidError(fmt.Sprintf("question %s has no text", q.QuestionID))
		}
		if _, dup := seen[q.QuestionID]; dup {
			return nil, NewInvalidError(fmt.Sprintf("duplicate question id %s", q.QuestionID))
		}
		seen[q.QuestionID] = struct{}{}
		out = append(out, q)
	}
	return out, nil
}

// GetSurvey is visible to the creator and to invited users.
func (s *SurveyService) GetSurvey(ctx context.Context, id, requesterID string) (*models.Survey, error) {
	sv, err := s.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	if sv == nil {
		return nil, ErrNotFound
	}
	if sv.CreatorID == requesterID {
		return sv, nil
	}
	inv, err := s.store.FindInvitation(ctx, id, requesterID)
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}
	if inv == nil {
		return nil, ErrAuthorization
	}
	return sv, nil
}

type SurveySummary struct {
	models.Survey
	InvitationCount int `json:"invitationCount"`
	ResponseCount   int `json:"responseCount"`
}

// ListSurveys returns the creator's surveys, newest first.
func (s *SurveyService) ListSurveys(ctx context.Context, creatorID string) ([]SurveySummary, error) {
	act, err := s.store.CreatorActivity(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("load creator activity: %w", err)
	}
	surveys := act.Surveys
	invCount := map[string]int{}
	for _, inv := range act.Invitations {
		invCount[inv.SurveyID]++
	}
	respCount := map[string]int{}
	for _, r := range act.Responses {
		respCount[r.SurveyID]++
	}
	sort.SliceStable(surveys, func(i, j int) bool {
		if !surveys[i].CreatedAt.Equal(surveys[j].CreatedAt) {
			return surveys[i].CreatedAt.After(surveys[j].CreatedAt)
		}
		return surveys[i].ID < surveys[j].ID
	})
	out := make([]SurveySummary, 0, len(surveys))
	for _, sv := range surveys {
		out = append(out, SurveySummary{Survey: *sv, InvitationCount: invCount[sv.ID], ResponseCount: respCount[sv.ID]})
	}
	return out, nil
}

// allowedTransition encodes draft -> active <-> closed.
func allowedTransition(from, to models.SurveyStatus) bool {
	switch from {
	case models.SurveyDraft:
		return to == models.SurveyActive
	case models.SurveyActive:
		return to == models.SurveyClosed
	case models.SurveyClosed:
		return to == models.SurveyActive
	}
	return false
}

// UpdateStatus applies a creator-driven transition. Requesting the current status is a no-op.
func (s *SurveyService) UpdateStatus(ctx context.Context, id, creatorID string, to models.SurveyStatus) (*models.Survey, error) {
	if !to.Valid() {
		return nil, NewInvalidError("unknown status")
	}
	sv, err := s.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	if sv == nil {
		return nil, ErrNotFound
	}
	if sv.CreatorID != creatorID {
		return nil, ErrAuthorization
	}
	if sv.Status == to {
		return sv, nil
	}
	if !allowedTransition(sv.Status, to) {
		return nil, NewInvalidError(fmt.Sprintf("cannot move survey from %s to %s", sv.Status, to))
	}
	now := s.now()
	ok, err := s.store.UpdateSurveyStatus(ctx, id, sv.Status, to, now)
	if err != nil {
		return nil, fmt.Errorf("update survey status: %w", err)
	}
	if !ok {
		return nil, NewConflictError("survey status changed concurrently")
	}
	note := string(sv.Status) + "->" + string(to)
	sv.Status = to
	sv.UpdatedAt = now
	s.store.AddAudit(ctx, models.AuditEntry{Time: now, Actor: creatorID, Action: "survey.status", Target: id, Note: note})
	publish(ctx, s.events, events.Event{Type: events.TypeSurveyStatusChanged, CreatorID: creatorID, SurveyID: id, At: now})
	return sv, nil
}
