package models

import (
	"strings"
	"time"
)

// MaxQuestions bounds the question list imported for a single survey.
const MaxQuestions = 20

// User is a registered account. Email is unique, compared case-insensitively.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type SurveyStatus string

const (
	SurveyDraft  SurveyStatus = "draft"
	SurveyActive SurveyStatus = "active"
	SurveyClosed SurveyStatus = "closed"
)

// Valid reports whether s is one of the known survey states.
func (s SurveyStatus) Valid() bool {
	switch s {
	case SurveyDraft, SurveyActive, SurveyClosed:
		return true
	}
	return false
}

// Question is one imported survey question. QuestionID is unique within its survey.
type Question struct {
	QuestionID   string   `json:"questionId"`
	QuestionText string   `json:"questionText"`
	Type         string   `json:"type,omitempty"`
	Options      []string `json:"options,omitempty"`
}

type Survey struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	CreatorID        string       `json:"creatorId"`
	Questions        []Question   `json:"questions"`
	Status           SurveyStatus `json:"status"`
	OriginalFilename string       `json:"originalFilename,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// QuestionIDs returns the survey's question ids in survey order.
func (s *Survey) QuestionIDs() []string {
	out := make([]string, 0, len(s.Questions))
	for _, q := range s.Questions {
		out = append(out, q.QuestionID)
	}
	return out
}

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationCompleted InvitationStatus = "completed"
)

// Invitation ties one survey to one invited user. At most one exists per (SurveyID, UserID).
type Invitation struct {
	ID          string           `json:"id"`
	SurveyID    string           `json:"surveyId"`
	CreatorID   string           `json:"creatorId"`
	UserID      string           `json:"userId"`
	Token       string           `json:"-"`
	Status      InvitationStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// Answer is a single answered question inside a Response.
type Answer struct {
	QuestionID   string `json:"questionId"`
	QuestionText string `json:"questionText"`
	Answer       string `json:"answer"`
}

// Response is the immutable set of answers submitted for one invitation.
type Response struct {
	ID             string    `json:"id"`
	SurveyID       string    `json:"surveyId"`
	RespondentID   string    `json:"respondentId"`
	InvitationID   string    `json:"invitationId"`
	Answers        []Answer  `json:"responses"`
	CompletionTime int       `json:"completionTime"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// CreatorActivity is everything a creator's dashboard reads, taken at one point in time.
type CreatorActivity struct {
	Surveys     []*Survey
	Invitations []*Invitation
	Responses   []*Response
}

type AuditEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}

// NormalizeEmail lowercases and trims an address for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
