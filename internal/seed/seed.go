// Package seed loads a demo workspace: one creator with two surveys, a set of
// invited respondents and backdated responses so dashboards have a week of data.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/Canvass/internal/api"
	"github.com/soaringjerry/Canvass/internal/models"
	"github.com/soaringjerry/Canvass/internal/services"
)

// DemoPassword is shared by every seeded account.
const DemoPassword = "password123"

type person struct{ name, email string }

var (
	creator     = person{"Sarah Johnson", "sarah.johnson@example.com"}
	respondents = []person{
		{"Michael Chen", "michael.chen@example.com"},
		{"Emma Williams", "emma.williams@example.com"},
		{"James Rodriguez", "james.rodriguez@example.com"},
		{"Lisa Thompson", "lisa.thompson@example.com"},
		{"David Park", "david.park@example.com"},
	}
)

type demoSurvey struct {
	title    string
	filename string
	// questions in survey order; answers[i] holds respondent i's answers, nil for no response.
	questions []models.Question
	answers   [][]string
	ages      []time.Duration
	durations []int
}

var demoSurveys = []demoSurvey{
	{
		title:    "Employee Engagement & Workplace Satisfaction",
		filename: "employee_engagement_survey.csv",
		questions: []models.Question{
			{QuestionID: "Q001", QuestionText: "Rate your overall job satisfaction on a scale of 1-10"},
			{QuestionID: "Q002", QuestionText: "Which department do you work in?"},
			{QuestionID: "Q003", QuestionText: "How would you rate work-life balance? (Poor/Fair/Good/Excellent)"},
			{QuestionID: "Q004", QuestionText: "Describe what you enjoy most about your current role"},
			{QuestionID: "Q005", QuestionText: "Share any additional feedback or suggestions for improvement"},
		},
		answers: [][]string{
			{"8", "Engineering", "Good", "I love solving complex technical challenges with a great team", "More learning opportunities would be great"},
			{"9", "Marketing", "Excellent", "Creative campaigns and collaborating with diverse teams", "Keep up the excellent work"},
			{"4", "Sales", "Poor", "Not much honestly, the targets are unrealistic and pressure is constant", "The workload is unbearable and management is terrible"},
			{"6", "HR", "Fair", "Helping employees but the bureaucracy is frustrating", "Too much red tape and slow decision making"},
			nil,
		},
		ages:      []time.Duration{6 * 24 * time.Hour, 4 * 24 * time.Hour, 2 * 24 * time.Hour, 24 * time.Hour, 0},
		durations: []int{420, 380, 180, 450, 0},
	},
	{
		title:    "Professional Development & Career Growth",
		filename: "professional_development_survey.csv",
		questions: []models.Question{
			{QuestionID: "PD01", QuestionText: "How satisfied are you with your career progression? (1-10)"},
			{QuestionID: "PD02", QuestionText: "Have you received adequate training opportunities this year? (Yes/No/Somewhat)"},
			{QuestionID: "PD03", QuestionText: "What would make you feel more valued in your role?"},
		},
		answers: [][]string{
			{"7", "Somewhat", "More recognition for technical contributions and a clearer promotion path"},
			{"8", "Yes", "Already feel valued, more budget for innovative projects would be amazing"},
			{"3", "No", "Nothing at this point, I am actively job hunting"},
			{"5", "Somewhat", "Better tools and less bureaucracy"},
			{"9", "Yes", "Great mentorship, excited about the new leadership program"},
		},
		ages:      []time.Duration{3 * 24 * time.Hour, 2 * 24 * time.Hour, 24 * time.Hour, 12 * time.Hour, 2 * time.Hour},
		durations: []int{360, 330, 240, 300, 280},
	},
}

// Summary reports what Run created.
type Summary struct {
	Users       int
	Surveys     int
	Invitations int
	Responses   int
}

// Run populates store with demo data relative to now. It refuses to run when
// the demo creator already exists.
func Run(ctx context.Context, store api.Store, now time.Time) (*Summary, error) {
	existing, err := store.FindUserByEmail(ctx, creator.email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("demo data already present (%s exists)", creator.email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	sum := &Summary{}
	addUser := func(p person, at time.Time) (*models.User, error) {
		u := &models.User{ID: uuid.NewString(), Name: p.name, Email: p.email, PassHash: hash, CreatedAt: at}
		ok, err := store.AddUser(ctx, u)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("user %s already exists", p.email)
		}
		sum.Users++
		return u, nil
	}

	start := now.Add(-14 * 24 * time.Hour)
	owner, err := addUser(creator, start)
	if err != nil {
		return nil, err
	}
	people := make([]*models.User, 0, len(respondents))
	for _, p := range respondents {
		u, err := addUser(p, start)
		if err != nil {
			return nil, err
		}
		people = append(people, u)
	}

	surveySvc := services.NewSurveyService(store, nil)
	inviteSvc := services.NewInvitationService(store, nil, "")
	for _, ds := range demoSurveys {
		sv, err := surveySvc.CreateSurvey(ctx, owner.ID, services.NewSurvey{
			Title: ds.title, Questions: ds.questions, OriginalFilename: ds.filename, Publish: true,
		})
		if err != nil {
			return nil, fmt.Errorf("create survey %q: %w", ds.title, err)
		}
		sum.Surveys++

		emails := make([]string, 0, len(people))
		for _, u := range people {
			emails = append(emails, u.Email)
		}
		batch, err := inviteSvc.SendInvitations(ctx, sv.ID, owner.ID, emails)
		if err != nil {
			return nil, fmt.Errorf("invite for %q: %w", ds.title, err)
		}
		sum.Invitations += batch.Summary.Successful

		for i, u := range people {
			if ds.answers[i] == nil {
				continue
			}
			inv, err := store.FindInvitation(ctx, sv.ID, u.ID)
			if err != nil || inv == nil {
				return nil, fmt.Errorf("invitation for %s: %v", u.Email, err)
			}
			at := now.Add(-ds.ages[i])
			resp := &models.Response{
				ID: uuid.NewString(), SurveyID: sv.ID, RespondentID: u.ID, InvitationID: inv.ID,
				CompletionTime: ds.durations[i], SubmittedAt: at,
			}
			for qi, q := range ds.questions {
				resp.Answers = append(resp.Answers, models.Answer{QuestionID: q.QuestionID, QuestionText: q.QuestionText, Answer: ds.answers[i][qi]})
			}
			ok, err := store.CompleteInvitation(ctx, resp, at)
			if err != nil {
				return nil, err
			}
			if ok {
				sum.Responses++
			}
		}
		log.Ctx(ctx).Info().Str("survey", sv.Title).Int("invited", batch.Summary.Successful).Msg("seeded survey")
	}
	return sum, nil
}
