package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/Canvass/internal/models"
)

type AnalyticsStore interface {
	GetSurvey(ctx context.Context, id string) (*models.Survey, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListInvitationsBySurvey(ctx context.Context, surveyID string) ([]*models.Invitation, error)
	ListResponsesBySurvey(ctx context.Context, surveyID string) ([]*models.Response, error)
}

type AnalyticsService struct {
	store  AnalyticsStore
	scorer SentimentScorer
}

type AnswerCount struct {
	Answer string `json:"answer"`
	Count  int    `json:"count"`
}

type QuestionSummary struct {
	QuestionID   string        `json:"questionId"`
	QuestionText string        `json:"questionText"`
	Answered     int           `json:"answered"`
	TopAnswers   []AnswerCount `json:"topAnswers"`
	NumericMean  *float64      `json:"numericMean,omitempty"`
}

// PeriodStat is one UTC day of a survey's responses.
type PeriodStat struct {
	Date              string    `json:"date"`
	PeriodStart       time.Time `json:"periodStart"`
	ResponseCount     int       `json:"responseCount"`
	AvgCompletionTime float64   `json:"avgCompletionTime"`
}

type Respondent struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type RecentResponse struct {
	ID             string        `json:"id"`
	SubmittedAt    time.Time     `json:"submittedAt"`
	CompletionTime int           `json:"completionTime"`
	Sentiment      TextSentiment `json:"sentiment"`
	Respondent     Respondent    `json:"respondent"`
}

type AnalyticsSummary struct {
	SurveyID          string            `json:"surveyId"`
	Title             string            `json:"title"`
	TotalInvitations  int               `json:"totalInvitations"`
	TotalResponses    int               `json:"totalResponses"`
	CompletionRate    int               `json:"completionRate"`
	AvgCompletionTime float64           `json:"avgCompletionTime"`
	Timeseries        []PeriodStat      `json:"timeseries"`
	Questions         []QuestionSummary `json:"questions"`
	// Sentiment is the distribution over responses with free text.
	Sentiment        Sentiment        `json:"sentiment"`
	OverallSentiment TextSentiment    `json:"overallSentiment"`
	TopKeywords      []KeywordCount   `json:"topKeywords"`
	RecentResponses  []RecentResponse `json:"recentResponses"`
	Summary          string           `json:"summary"`
}

const (
	topAnswersPerQuestion = 5
	recentResponseLimit   = 10
	summaryThemes         = 3
)

func NewAnalyticsService(store AnalyticsStore) *AnalyticsService {
	return &AnalyticsService{store: store, scorer: DefaultSentimentScorer()}
}

// WithScorer replaces the sentiment model.
func (s *AnalyticsService) WithScorer(scorer SentimentScorer) *AnalyticsService {
	if scorer != nil {
		s.scorer = scorer
	}
	return s
}

// authorize loads a survey the requester owns.
func (s *AnalyticsService) authorize(ctx context.Context, surveyID, requesterID string) (*models.Survey, error) {
	sv, err := s.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	if sv == nil {
		return nil, ErrNotFound
	}
	if sv.CreatorID != requesterID {
		return nil, ErrAuthorization
	}
	return sv, nil
}

func (s *AnalyticsService) Summary(ctx context.Context, surveyID, requesterID string) (*AnalyticsSummary, error) {
	sv, err := s.authorize(ctx, surveyID, requesterID)
	if err != nil {
		return nil, err
	}
	invs, err := s.store.ListInvitationsBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	responses, err := s.store.ListResponsesBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	totalTime := 0
	var (
		texts  []string
		dist   Sentiment
		scored int
		total  float64
	)
	verdicts := make(map[string]TextSentiment, len(responses))
	for _, r := range responses {
		totalTime += r.CompletionTime
		free := freeText(r)
		texts = append(texts, free...)
		if len(free) == 0 {
			verdicts[r.ID] = TextSentiment{Label: SentimentNeutral}
			continue
		}
		v := s.scorer.Score(strings.Join(free, ". "))
		verdicts[r.ID] = v
		dist.add(v)
		total += v.Score
		scored++
	}
	overall := TextSentiment{Label: displayLabel(SentimentNeutral)}
	if scored > 0 {
		dist.Average = round2(total / float64(scored))
		overall = TextSentiment{Label: displayLabel(labelFor(dist.Average)), Score: dist.Average}
	}
	avgTime := 0.0
	if len(responses) > 0 {
		avgTime = math.Round(float64(totalTime)/float64(len(responses))*10) / 10
	}
	recent, err := s.recentResponses(ctx, responses, verdicts)
	if err != nil {
		return nil, err
	}

	summary := &AnalyticsSummary{
		SurveyID:          sv.ID,
		Title:             sv.Title,
		TotalInvitations:  len(invs),
		TotalResponses:    len(responses),
		CompletionRate:    percent(len(responses), len(invs)),
		AvgCompletionTime: avgTime,
		Timeseries:        buildPeriodStats(responses),
		Questions:         summarizeQuestions(sv, responses),
		Sentiment:         dist,
		OverallSentiment:  overall,
		TopKeywords:       TopKeywords(texts, 10),
		RecentResponses:   recent,
	}
	summary.Summary = describe(summary)
	return summary, nil
}

// displayLabel capitalizes a label for the survey-level headline ("Positive").
func displayLabel(label string) string {
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

// freeText returns the non-numeric answers of r.
func freeText(r *models.Response) []string {
	var out []string
	for _, a := range r.Answers {
		txt := strings.TrimSpace(a.Answer)
		if txt == "" {
			continue
		}
		if _, err := strconv.ParseFloat(txt, 64); err == nil {
			continue
		}
		out = append(out, txt)
	}
	return out
}

// recentResponses lists the newest submissions with their respondent.
func (s *AnalyticsService) recentResponses(ctx context.Context, responses []*models.Response, verdicts map[string]TextSentiment) ([]RecentResponse, error) {
	sorted := make([]*models.Response, len(responses))
	copy(sorted, responses)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].SubmittedAt.Equal(sorted[j].SubmittedAt) {
			return sorted[i].SubmittedAt.After(sorted[j].SubmittedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > recentResponseLimit {
		sorted = sorted[:recentResponseLimit]
	}
	users := map[string]*models.User{}
	out := make([]RecentResponse, 0, len(sorted))
	for _, r := range sorted {
		u, ok := users[r.RespondentID]
		if !ok && r.RespondentID != "" {
			var err error
			if u, err = s.store.GetUser(ctx, r.RespondentID); err != nil {
				return nil, fmt.Errorf("load respondent: %w", err)
			}
			users[r.RespondentID] = u
		}
		rr := RecentResponse{
			ID:             r.ID,
			SubmittedAt:    r.SubmittedAt,
			CompletionTime: r.CompletionTime,
			Sentiment:      verdicts[r.ID],
			Respondent:     Respondent{ID: r.RespondentID},
		}
		if u != nil {
			rr.Respondent.Name = u.Name
			rr.Respondent.Email = u.Email
		}
		out = append(out, rr)
	}
	return out, nil
}

// describe renders the one-paragraph summary shown above the charts.
func describe(a *AnalyticsSummary) string {
	if a.TotalResponses == 0 {
		return fmt.Sprintf("No responses yet; %d invitations sent.", a.TotalInvitations)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d invitees responded (%d%% completion rate).", a.TotalResponses, a.TotalInvitations, a.CompletionRate)
	scored := a.Sentiment.Positive + a.Sentiment.Neutral + a.Sentiment.Negative
	if scored > 0 {
		fmt.Fprintf(&b, " Overall sentiment is %s.", strings.ToLower(a.OverallSentiment.Label))
	}
	if len(a.TopKeywords) > 0 {
		n := min(summaryThemes, len(a.TopKeywords))
		words := make([]string, 0, n)
		for _, kw := range a.TopKeywords[:n] {
			words = append(words, kw.Word)
		}
		fmt.Fprintf(&b, " Key themes include %s.", joinWords(words))
	}
	return b.String()
}

func joinWords(words []string) string {
	if len(words) <= 1 {
		return strings.Join(words, "")
	}
	return strings.Join(words[:len(words)-1], ", ") + " and " + words[len(words)-1]
}

// buildPeriodStats buckets responses by UTC day with the mean completion time.
func buildPeriodStats(responses []*models.Response) []PeriodStat {
	type bucket struct{ count, seconds int }
	byDay := map[string]*bucket{}
	for _, r := range responses {
		d := r.SubmittedAt.UTC().Format("2006-01-02")
		b, ok := byDay[d]
		if !ok {
			b = &bucket{}
			byDay[d] = b
		}
		b.count++
		b.seconds += r.CompletionTime
	}
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]PeriodStat, 0, len(days))
	for _, d := range days {
		b := byDay[d]
		start, _ := time.Parse("2006-01-02", d)
		out = append(out, PeriodStat{
			Date:              d,
			PeriodStart:       start,
			ResponseCount:     b.count,
			AvgCompletionTime: math.Round(float64(b.seconds)/float64(b.count)*10) / 10,
		})
	}
	return out
}

func summarizeQuestions(sv *models.Survey, responses []*models.Response) []QuestionSummary {
	counts := make([]map[string]int, len(sv.Questions))
	index := make(map[string]int, len(sv.Questions))
	for i, q := range sv.Questions {
		counts[i] = map[string]int{}
		index[q.QuestionID] = i
	}
	for _, r := range responses {
		for _, a := range r.Answers {
			if i, ok := index[a.QuestionID]; ok {
				counts[i][a.Answer]++
			}
		}
	}

	out := make([]QuestionSummary, 0, len(sv.Questions))
	for i, q := range sv.Questions {
		qs := QuestionSummary{QuestionID: q.QuestionID, QuestionText: q.QuestionText, TopAnswers: []AnswerCount{}}
		sum, numeric := 0.0, true
		for ans, n := range counts[i] {
			qs.Answered += n
			qs.TopAnswers = append(qs.TopAnswers, AnswerCount{Answer: ans, Count: n})
			if v, err := strconv.ParseFloat(ans, 64); err == nil {
				sum += v * float64(n)
			} else {
				numeric = false
			}
		}
		if numeric && qs.Answered > 0 {
			mean := math.Round(sum/float64(qs.Answered)*100) / 100
			qs.NumericMean = &mean
		}
		sort.Slice(qs.TopAnswers, func(a, b int) bool {
			if qs.TopAnswers[a].Count != qs.TopAnswers[b].Count {
				return qs.TopAnswers[a].Count > qs.TopAnswers[b].Count
			}
			return qs.TopAnswers[a].Answer < qs.TopAnswers[b].Answer
		})
		if len(qs.TopAnswers) > topAnswersPerQuestion {
			qs.TopAnswers = qs.TopAnswers[:topAnswersPerQuestion]
		}
		out = append(out, qs)
	}
	return out
}

// Timeseries returns the daily buckets alone, for the lighter analytics poll.
func (s *AnalyticsService) Timeseries(ctx context.Context, surveyID, requesterID string) ([]PeriodStat, error) {
	if _, err := s.authorize(ctx, surveyID, requesterID); err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponsesBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return buildPeriodStats(responses), nil
}
