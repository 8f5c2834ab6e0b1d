package api

import (
	"context"
	"time"

	"github.com/soaringjerry/Canvass/internal/models"
	"github.com/soaringjerry/Canvass/internal/services"
)

// Store is the full persistence surface behind the HTTP layer. Both the
// in-memory store and db.SQLiteStore implement it.
type Store interface {
	AddUser(ctx context.Context, u *models.User) (bool, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)

	AddSurvey(ctx context.Context, sv *models.Survey) error
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	UpdateSurveyStatus(ctx context.Context, id string, from, to models.SurveyStatus, at time.Time) (bool, error)
	ListSurveysByCreator(ctx context.Context, creatorID string) ([]*models.Survey, error)

	CreateInvitation(ctx context.Context, inv *models.Invitation) (bool, error)
	GetInvitation(ctx context.Context, id string) (*models.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error)
	FindInvitation(ctx context.Context, surveyID, userID string) (*models.Invitation, error)
	ListInvitationsBySurvey(ctx context.Context, surveyID string) ([]*models.Invitation, error)
	ListInvitationsByUser(ctx context.Context, userID string) ([]*models.Invitation, error)
	ListInvitationsByCreator(ctx context.Context, creatorID string) ([]*models.Invitation, error)

	CompleteInvitation(ctx context.Context, resp *models.Response, completedAt time.Time) (bool, error)
	GetResponse(ctx context.Context, id string) (*models.Response, error)
	ListResponsesBySurvey(ctx context.Context, surveyID string) ([]*models.Response, error)
	ListResponsesByCreator(ctx context.Context, creatorID string) ([]*models.Response, error)
	CreatorActivity(ctx context.Context, creatorID string) (*models.CreatorActivity, error)

	AddAudit(ctx context.Context, e models.AuditEntry)
	ListAudit(ctx context.Context) ([]models.AuditEntry, error)

	Ping(ctx context.Context) error
}

var (
	_ Store                    = (*memoryStore)(nil)
	_ services.InvitationStore = Store(nil)
	_ services.ResponseStore   = Store(nil)
	_ services.DashboardStore  = Store(nil)
	_ services.SurveyStore     = Store(nil)
	_ services.AnalyticsStore  = Store(nil)
	_ services.AuthStore       = Store(nil)
)
