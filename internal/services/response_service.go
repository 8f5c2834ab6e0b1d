package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/soaringjerry/Canvass/internal/events"
	"github.com/soaringjerry/Canvass/internal/metrics"
	"github.com/soaringjerry/Canvass/internal/models"
)

// ResponseStore abstracts persistence operations required by ResponseService.
type ResponseStore interface {
	GetInvitation(ctx context.Context, id string) (*models.Invitation, error)
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	// CompleteInvitation flips the invitation from pending to completed and stores
	// resp in one atomic step. It reports false when the invitation was no longer pending.
	CompleteInvitation(ctx context.Context, resp *models.Response, completedAt time.Time) (bool, error)
	GetResponse(ctx context.Context, id string) (*models.Response, error)
	ListResponsesBySurvey(ctx context.Context, surveyID string) ([]*models.Response, error)
	AuditStore
}

// AnswerInput mirrors one inbound answer before it is matched against the survey.
type AnswerInput struct {
	QuestionID string
	Answer     string
}

// SubmitRequest transports the sanitized handler input into the service layer.
type SubmitRequest struct {
	InvitationID   string
	RespondentID   string
	Answers        []AnswerInput
	CompletionTime int
}

// ResponseService hosts the exactly-once submission workflow.
type ResponseService struct {
	store       ResponseStore
	events      events.Publisher
	now         func() time.Time
	idGenerator func() string
}

// NewResponseService constructs a service bound to the provided persistence interface.
func NewResponseService(store ResponseStore, publisher events.Publisher) *ResponseService {
	return &ResponseService{
		store:       store,
		events:      publisher,
		now:         utcNow,
		idGenerator: defaultID,
	}
}

// SubmitResponse checks preconditions in a fixed order and reports the first
// one violated. No partial response is ever stored.
func (s *ResponseService) SubmitResponse(ctx context.Context, req SubmitRequest) (resp *models.Response, err error) {
	defer func() {
		metrics.Submissions.WithLabelValues(reasonLabel(err)).Inc()
	}()

	inv, err := s.store.GetInvitation(ctx, req.InvitationID)
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	if inv.UserID != req.RespondentID {
		return nil, ErrAuthorization
	}
	if inv.Status != models.InvitationPending {
		return nil, ErrDuplicateSubmission
	}
	if req.CompletionTime < 0 {
		return nil, NewInvalidError("completionTime must not be negative")
	}
	survey, err := s.store.GetSurvey(ctx, inv.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	if survey == nil {
		return nil, ErrNotFound
	}
	answers, err := matchAnswers(survey, req.Answers)
	if err != nil {
		return nil, err
	}

	submittedAt := s.now()
	resp = &models.Response{
		ID:             s.idGenerator(),
		SurveyID:       inv.SurveyID,
		RespondentID:   req.RespondentID,
		InvitationID:   inv.ID,
		Answers:        answers,
		CompletionTime: req.CompletionTime,
		SubmittedAt:    submittedAt,
	}
	ok, err := s.store.CompleteInvitation(ctx, resp, submittedAt)
	if err != nil {
		return nil, fmt.Errorf("complete invitation: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateSubmission
	}

	metrics.CompletionSeconds.Observe(float64(req.CompletionTime))
	s.store.AddAudit(ctx, models.AuditEntry{Time: submittedAt, Actor: req.RespondentID, Action: "response.submit", Target: resp.ID, Note: inv.ID})
	publish(ctx, s.events, events.Event{
		Type:      events.TypeResponseSubmitted,
		CreatorID: inv.CreatorID,
		SurveyID:  inv.SurveyID,
		SubjectID: resp.ID,
		At:        submittedAt,
	})
	return resp, nil
}

// matchAnswers orders answers by the survey's questions. Unknown ids are
// dropped and the first unanswered question is reported.
func matchAnswers(survey *models.Survey, in []AnswerInput) ([]models.Answer, error) {
	byID := make(map[string]string, len(in))
	for _, a := range in {
		id := strings.TrimSpace(a.QuestionID)
		if id == "" {
			continue
		}
		if v := strings.TrimSpace(a.Answer); v != "" {
			byID[id] = v
		} else if _, seen := byID[id]; !seen {
			byID[id] = ""
		}
	}
	out := make([]models.Answer, 0, len(survey.Questions))
	for _, q := range survey.Questions {
		v := byID[q.QuestionID]
		if v == "" {
			return nil, newIncompleteError(q.QuestionID)
		}
		out = append(out, models.Answer{QuestionID: q.QuestionID, QuestionText: q.QuestionText, Answer: v})
	}
	return out, nil
}

// GetResponse is visible to the respondent and to the survey creator.
func (s *ResponseService) GetResponse(ctx context.Context, id, requesterID string) (*models.Response, error) {
	resp, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load response: %w", err)
	}
	if resp == nil {
		return nil, ErrNotFound
	}
	if resp.RespondentID == requesterID {
		return resp, nil
	}
	survey, err := s.store.GetSurvey(ctx, resp.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	if survey == nil || survey.CreatorID != requesterID {
		return nil, ErrAuthorization
	}
	return resp, nil
}

// ListSurveyResponses returns a survey's responses in submission order. Creator only.
func (s *ResponseService) ListSurveyResponses(ctx context.Context, surveyID, requesterID string) ([]*models.Response, error) {
	survey, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	if survey == nil {
		return nil, ErrNotFound
	}
	if survey.CreatorID != requesterID {
		return nil, ErrAuthorization
	}
	list, err := s.store.ListResponsesBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	sortBySubmission(list)
	return list, nil
}

func sortBySubmission(list []*models.Response) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].SubmittedAt.Equal(list[j].SubmittedAt) {
			return list[i].SubmittedAt.Before(list[j].SubmittedAt)
		}
		return list[i].ID < list[j].ID
	})
}
