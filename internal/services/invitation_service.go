package services

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soaringjerry/Canvass/internal/events"
	"github.com/soaringjerry/Canvass/internal/metrics"
	"github.com/soaringjerry/Canvass/internal/models"
)

type InvitationStore interface {
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	// CreateInvitation inserts inv unless (SurveyID, UserID) already exists; false means it existed.
	CreateInvitation(ctx context.Context, inv *models.Invitation) (bool, error)
	GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error)
	ListInvitationsBySurvey(ctx context.Context, surveyID string) ([]*models.Invitation, error)
	ListInvitationsByUser(ctx context.Context, userID string) ([]*models.Invitation, error)
	AuditStore
}

type InvitationService struct {
	store          InvitationStore
	events         events.Publisher
	baseURL        string
	now            func() time.Time
	idGenerator    func() string
	tokenGenerator func() string
}

func NewInvitationService(store InvitationStore, publisher events.Publisher, baseURL string) *InvitationService {
	return &InvitationService{
		store:          store,
		events:         publisher,
		baseURL:        strings.TrimRight(baseURL, "/"),
		now:            utcNow,
		idGenerator:    defaultID,
		tokenGenerator: defaultToken,
	}
}

type InvitationResult struct {
	Email        string `json:"email"`
	Success      bool   `json:"success"`
	InvitationID string `json:"invitationId,omitempty"`
	InviteLink   string `json:"inviteLink,omitempty"`
	Error        string `json:"error,omitempty"`
	Code         Reason `json:"code,omitempty"`
}

type InvitationSummary struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

type InvitationBatch struct {
	Summary InvitationSummary  `json:"summary"`
	Results []InvitationResult `json:"results"`
}

// InviteLink builds the shareable survey-taking link for an invitation token.
func (s *InvitationService) InviteLink(surveyID, token string) string {
	return fmt.Sprintf("%s/surveys/%s/take?token=%s", s.baseURL, url.PathEscape(surveyID), url.QueryEscape(token))
}

// SendInvitations invites every address independently. Only a missing or
// foreign survey aborts the whole batch.
func (s *InvitationService) SendInvitations(ctx context.Context, surveyID, creatorID string, emails []string) (*InvitationBatch, error) {
	if len(emails) == 0 {
		return nil, NewInvalidError("at least one email is required")
	}
	survey, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	if survey == nil {
		return nil, ErrNotFound
	}
	if survey.CreatorID != creatorID {
		return nil, ErrAuthorization
	}

	batch := &InvitationBatch{Results: make([]InvitationResult, 0, len(emails))}
	for _, raw := range emails {
		res := s.inviteOne(ctx, survey, raw)
		metrics.Invitations.WithLabelValues(metrics.Outcome(string(res.Code))).Inc()
		if res.Success {
			batch.Summary.Successful++
		} else {
			batch.Summary.Failed++
		}
		batch.Results = append(batch.Results, res)
	}
	batch.Summary.Total = len(batch.Results)
	return batch, nil
}

func (s *InvitationService) inviteOne(ctx context.Context, survey *models.Survey, raw string) InvitationResult {
	email := models.NormalizeEmail(raw)
	res := InvitationResult{Email: email}
	fail := func(err *ServiceError) InvitationResult {
		res.Error = err.Message
		res.Code = err.Reason
		return res
	}

	if email == "" {
		return fail(ErrUserNotFound)
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("email", email).Msg("lookup invitee")
		return fail(errInviteFailed)
	}
	if user == nil {
		return fail(ErrUserNotFound)
	}
	if user.ID == survey.CreatorID {
		return fail(ErrSelfInvitation)
	}

	inv := &models.Invitation{
		ID:        s.idGenerator(),
		SurveyID:  survey.ID,
		CreatorID: survey.CreatorID,
		UserID:    user.ID,
		Token:     s.tokenGenerator(),
		Status:    models.InvitationPending,
		CreatedAt: s.now(),
	}
	created, err := s.store.CreateInvitation(ctx, inv)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("survey", survey.ID).Msg("create invitation")
		return fail(errInviteFailed)
	}
	if !created {
		return fail(ErrDuplicateInvitation)
	}

	s.store.AddAudit(ctx, models.AuditEntry{Time: inv.CreatedAt, Actor: survey.CreatorID, Action: "invitation.create", Target: inv.ID, Note: email})
	publish(ctx, s.events, events.Event{
		Type:      events.TypeInvitationCreated,
		CreatorID: survey.CreatorID,
		SurveyID:  survey.ID,
		SubjectID: inv.ID,
		At:        inv.CreatedAt,
	})

	res.Success = true
	res.InvitationID = inv.ID
	res.InviteLink = s.InviteLink(survey.ID, inv.Token)
	return res
}

type InvitationView struct {
	models.Invitation
	RecipientName  string `json:"recipientName,omitempty"`
	RecipientEmail string `json:"recipientEmail,omitempty"`
	InviteLink     string `json:"inviteLink"`
}

// ListInvitations returns a survey's invitations, newest first. Creator only.
func (s *InvitationService) ListInvitations(ctx context.Context, surveyID, requesterID string) ([]InvitationView, error) {
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
	invs, err := s.store.ListInvitationsBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	sortNewestFirst(invs)

	users := map[string]*models.User{}
	out := make([]InvitationView, 0, len(invs))
	for _, inv := range invs {
		u, ok := users[inv.UserID]
		if !ok {
			if u, err = s.store.GetUser(ctx, inv.UserID); err != nil {
				return nil, fmt.Errorf("load recipient: %w", err)
			}
			users[inv.UserID] = u
		}
		view := InvitationView{Invitation: *inv, InviteLink: s.InviteLink(inv.SurveyID, inv.Token)}
		if u != nil {
			view.RecipientName = u.Name
			view.RecipientEmail = u.Email
		}
		out = append(out, view)
	}
	return out, nil
}

type ReceivedInvitation struct {
	models.Invitation
	SurveyTitle  string              `json:"surveyTitle"`
	SurveyStatus models.SurveyStatus `json:"surveyStatus"`
	CreatorName  string              `json:"creatorName,omitempty"`
	SurveyLink   string              `json:"surveyLink"`
}

// ReceivedInvitations is the recipient inbox, newest first. Invitations whose
// survey no longer resolves are skipped.
func (s *InvitationService) ReceivedInvitations(ctx context.Context, userID string) ([]ReceivedInvitation, error) {
	invs, err := s.store.ListInvitationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	sortNewestFirst(invs)

	surveys := map[string]*models.Survey{}
	creators := map[string]*models.User{}
	out := make([]ReceivedInvitation, 0, len(invs))
	for _, inv := range invs {
		sv, ok := surveys[inv.SurveyID]
		if !ok {
			if sv, err = s.store.GetSurvey(ctx, inv.SurveyID); err != nil {
				return nil, fmt.Errorf("load survey: %w", err)
			}
			surveys[inv.SurveyID] = sv
		}
		if sv == nil {
			continue
		}
		creator, ok := creators[sv.CreatorID]
		if !ok {
			if creator, err = s.store.GetUser(ctx, sv.CreatorID); err != nil {
				return nil, fmt.Errorf("load creator: %w", err)
			}
			creators[sv.CreatorID] = creator
		}
		item := ReceivedInvitation{
			Invitation:   *inv,
			SurveyTitle:  sv.Title,
			SurveyStatus: sv.Status,
			SurveyLink:   s.InviteLink(sv.ID, inv.Token),
		}
		if creator != nil {
			item.CreatorName = creator.Name
		}
		out = append(out, item)
	}
	return out, nil
}

type OpenedInvitation struct {
	Invitation models.Invitation `json:"invitation"`
	Survey     *models.Survey    `json:"survey"`
	Completed  bool              `json:"completed"`
}

// OpenInvitation resolves a shareable link token for the signed-in recipient.
func (s *InvitationService) OpenInvitation(ctx context.Context, token, userID string) (*OpenedInvitation, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	if inv.UserID != userID {
		return nil, ErrAuthorization
	}
	sv, err := s.store.GetSurvey(ctx, inv.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	if sv == nil {
		return nil, ErrNotFound
	}
	return &OpenedInvitation{Invitation: *inv, Survey: sv, Completed: inv.Status == models.InvitationCompleted}, nil
}

func sortNewestFirst(invs []*models.Invitation) {
	sort.SliceStable(invs, func(i, j int) bool {
		if !invs[i].CreatedAt.Equal(invs[j].CreatedAt) {
			return invs[i].CreatedAt.After(invs[j].CreatedAt)
		}
		return invs[i].ID < invs[j].ID
	})
}
