package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/soaringjerry/Canvass/internal/models"
)

const (
	ExportLong = "long"
	ExportWide = "wide"
)

// ExportLongCSV renders one row per answered question.
func ExportLongCSV(responses []*models.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"response_id", "respondent_id", "submitted_at", "question_id", "question_text", "answer"})
	for _, r := range responses {
		submitted := r.SubmittedAt.UTC().Format(time.RFC3339)
		for _, a := range r.Answers {
			if err := w.Write([]string{r.ID, r.RespondentID, submitted, a.QuestionID, a.QuestionText, a.Answer}); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportWideCSV renders one row per response with a column per survey question, in survey order.
func ExportWideCSV(sv *models.Survey, responses []*models.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := append([]string{"response_id", "respondent_id", "submitted_at", "completion_time"}, sv.QuestionIDs()...)
	_ = w.Write(header)
	for _, r := range responses {
		byID := make(map[string]string, len(r.Answers))
		for _, a := range r.Answers {
			byID[a.QuestionID] = a.Answer
		}
		row := make([]string, 0, len(header))
		row = append(row, r.ID, r.RespondentID, r.SubmittedAt.UTC().Format(time.RFC3339), strconv.Itoa(r.CompletionTime))
		for _, q := range sv.Questions {
			row = append(row, byID[q.QuestionID])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Export renders a survey's responses as CSV and suggests a file name.
func (s *AnalyticsService) Export(ctx context.Context, surveyID, requesterID, format string) ([]byte, string, error) {
	if format == "" {
		format = ExportLong
	}
	if format != ExportLong && format != ExportWide {
		return nil, "", NewInvalidError("format must be long or wide")
	}
	sv, err := s.authorize(ctx, surveyID, requesterID)
	if err != nil {
		return nil, "", err
	}
	responses, err := s.store.ListResponsesBySurvey(ctx, surveyID)
	if err != nil {
		return nil, "", fmt.Errorf("list responses: %w", err)
	}
	sortBySubmission(responses)

	var data []byte
	if format == ExportWide {
		data, err = ExportWideCSV(sv, responses)
	} else {
		data, err = ExportLongCSV(responses)
	}
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("survey_%s_%s.csv", sv.ID, format), nil
}
