package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/soaringjerry/Canvass/internal/models"
	"github.com/soaringjerry/Canvass/internal/services"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type questionRequest struct {
	QuestionID   string   `json:"questionId" validate:"required,max=64"`
	QuestionText string   `json:"questionText" validate:"required,max=1000"`
	Type         string   `json:"type,omitempty" validate:"max=32"`
	Options      []string `json:"options,omitempty" validate:"max=50"`
}

type createSurveyRequest struct {
	Title            string            `json:"title" validate:"required,max=200"`
	Description      string            `json:"description" validate:"max=2000"`
	Questions        []questionRequest `json:"questions" validate:"required,min=1,max=20,dive"`
	OriginalFilename string            `json:"originalFilename" validate:"max=255"`
	Publish          bool              `json:"publish"`
	Status           string            `json:"status" validate:"omitempty,oneof=draft active"`
}

func (req createSurveyRequest) toInput() services.NewSurvey {
	qs := make([]models.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		qs = append(qs, models.Question{QuestionID: q.QuestionID, QuestionText: q.QuestionText, Type: q.Type, Options: q.Options})
	}
	return services.NewSurvey{
		Title:            req.Title,
		Description:      req.Description,
		Questions:        qs,
		OriginalFilename: req.OriginalFilename,
		Publish:          req.Publish || req.Status == string(models.SurveyActive),
	}
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active closed"`
}

type sendInvitationsRequest struct {
	UserEmails []string `json:"userEmails" validate:"max=500"`
}

type submitResponseRequest struct {
	InvitationID   string     `json:"invitationId" validate:"required"`
	Responses      answerList `json:"responses"`
	Answers        answerList `json:"answers"`
	CompletionTime int        `json:"completionTime"`
}

func (req submitResponseRequest) answers() []services.AnswerInput {
	if len(req.Responses) > 0 {
		return req.Responses
	}
	return req.Answers
}

// answerList accepts either [{questionId, answer}] or {"questionId": answer}.
// Object keys are sorted; matching against the survey fixes the final order.
type answerList []services.AnswerInput

func (a *answerList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = nil
		return nil
	}
	switch b[0] {
	case '[':
		var items []struct {
			QuestionID string          `json:"questionId"`
			Answer     json.RawMessage `json:"answer"`
		}
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make(answerList, 0, len(items))
		for _, it := range items {
			v, err := answerText(it.Answer)
			if err != nil {
				return fmt.Errorf("question %s: %w", it.QuestionID, err)
			}
			out = append(out, services.AnswerInput{QuestionID: it.QuestionID, Answer: v})
		}
		*a = out
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(answerList, 0, len(keys))
		for _, k := range keys {
			v, err := answerText(obj[k])
			if err != nil {
				return fmt.Errorf("question %s: %w", k, err)
			}
			out = append(out, services.AnswerInput{QuestionID: k, Answer: v})
		}
		*a = out
	default:
		return errors.New("answers must be a list or an object")
	}
	return nil
}

// answerText flattens a scalar JSON answer to its string form.
func answerText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	return "", errors.New("answer must be a string, number or boolean")
}
