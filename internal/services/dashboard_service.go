package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/soaringjerry/Canvass/internal/models"
)

// DashboardStore is read-only; the aggregator never writes.
type DashboardStore interface {
	// CreatorActivity returns the creator's surveys, invitations and responses
	// from one consistent read.
	CreatorActivity(ctx context.Context, creatorID string) (*models.CreatorActivity, error)
}

type DashboardService struct {
	store          DashboardStore
	now            func() time.Time
	activityWindow time.Duration
}

func NewDashboardService(store DashboardStore, activityWindow time.Duration) *DashboardService {
	if activityWindow <= 0 {
		activityWindow = 7 * 24 * time.Hour
	}
	return &DashboardService{store: store, now: utcNow, activityWindow: activityWindow}
}

type DashboardStats struct {
	TotalSurveys         int `json:"totalSurveys"`
	TotalResponses       int `json:"totalResponses"`
	TotalInvitationsSent int `json:"totalInvitationsSent"`
	AvgResponseRate      int `json:"avgResponseRate"`
	RecentActivity       int `json:"recentActivity"`
}

type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type SurveyStat struct {
	SurveyID         string              `json:"surveyId"`
	Title            string              `json:"title"`
	Status           models.SurveyStatus `json:"status"`
	InvitationCount  int                 `json:"invitationCount"`
	ResponseCount    int                 `json:"responseCount"`
	CompletionRate   int                 `json:"completionRate"`
	LastResponseDate *time.Time          `json:"lastResponseDate,omitempty"`
}

type CrossSurveyAggregation struct {
	ResponseTrends []TrendPoint `json:"responseTrends"`
	SurveyStats    []SurveyStat `json:"surveyStats"`
	Insights       []Insight    `json:"insights"`
}

type snapshot struct {
	surveys     []*models.Survey
	invitations []*models.Invitation
	responses   []*models.Response
}

func (s *DashboardService) load(ctx context.Context, creatorID string) (*snapshot, error) {
	act, err := s.store.CreatorActivity(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("load creator activity: %w", err)
	}
	return &snapshot{surveys: act.Surveys, invitations: act.Invitations, responses: act.Responses}, nil
}

// Stats returns headline numbers for a creator. A creator with no data gets zeros.
func (s *DashboardService) Stats(ctx context.Context, creatorID string) (*DashboardStats, error) {
	snap, err := s.load(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	return computeStats(snap, s.now().Add(-s.activityWindow)), nil
}

func computeStats(snap *snapshot, since time.Time) *DashboardStats {
	total := map[string]int{}
	completed := map[string]int{}
	for _, inv := range snap.invitations {
		total[inv.SurveyID]++
		if inv.Status == models.InvitationCompleted {
			completed[inv.SurveyID]++
		}
	}
	sum := 0.0
	for _, sv := range snap.surveys {
		sum += ratio(completed[sv.ID], total[sv.ID])
	}
	avg := 0
	if len(snap.surveys) > 0 {
		avg = int(math.Round(sum / float64(len(snap.surveys)) * 100))
	}
	recent := 0
	for _, r := range snap.responses {
		if !r.SubmittedAt.Before(since) {
			recent++
		}
	}
	return &DashboardStats{
		TotalSurveys:         len(snap.surveys),
		TotalResponses:       len(snap.responses),
		TotalInvitationsSent: len(snap.invitations),
		AvgResponseRate:      avg,
		RecentActivity:       recent,
	}
}

// CrossSurvey groups responses by UTC calendar day and summarizes every survey.
func (s *DashboardService) CrossSurvey(ctx context.Context, creatorID string) (*CrossSurveyAggregation, error) {
	snap, err := s.load(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	agg := &CrossSurveyAggregation{
		ResponseTrends: buildTrends(snap.responses),
		SurveyStats:    buildSurveyStats(snap),
	}
	agg.Insights = GenerateInsights(agg.ResponseTrends, agg.SurveyStats)
	return agg, nil
}

func buildTrends(responses []*models.Response) []TrendPoint {
	countsByDay := map[string]int{}
	for _, r := range responses {
		countsByDay[r.SubmittedAt.UTC().Format("2006-01-02")]++
	}
	return buildTimeseries(countsByDay)
}

// buildTimeseries turns day buckets into an ascending series.
func buildTimeseries(countsByDay map[string]int) []TrendPoint {
	days := make([]string, 0, len(countsByDay))
	for d := range countsByDay {
		days = append(days, d)
	}
	sort.Strings(days)
	series := make([]TrendPoint, 0, len(days))
	for _, d := range days {
		series = append(series, TrendPoint{Date: d, Count: countsByDay[d]})
	}
	return series
}

func buildSurveyStats(snap *snapshot) []SurveyStat {
	invCount := map[string]int{}
	for _, inv := range snap.invitations {
		invCount[inv.SurveyID]++
	}
	respCount := map[string]int{}
	last := map[string]time.Time{}
	for _, r := range snap.responses {
		respCount[r.SurveyID]++
		if r.SubmittedAt.After(last[r.SurveyID]) {
			last[r.SurveyID] = r.SubmittedAt
		}
	}

	stats := make([]SurveyStat, 0, len(snap.surveys))
	for _, sv := range snap.surveys {
		st := SurveyStat{
			SurveyID:        sv.ID,
			Title:           sv.Title,
			Status:          sv.Status,
			InvitationCount: invCount[sv.ID],
			ResponseCount:   respCount[sv.ID],
		}
		st.CompletionRate = percent(st.ResponseCount, st.InvitationCount)
		if t, ok := last[sv.ID]; ok {
			t = t.UTC()
			st.LastResponseDate = &t
		}
		stats = append(stats, st)
	}
	sortSurveyStats(stats)
	return stats
}

// sortSurveyStats ranks the most recently answered surveys first; surveys
// without responses go last.
func sortSurveyStats(stats []SurveyStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		switch {
		case a.LastResponseDate != nil && b.LastResponseDate == nil:
			return true
		case a.LastResponseDate == nil && b.LastResponseDate != nil:
			return false
		case a.LastResponseDate != nil && !a.LastResponseDate.Equal(*b.LastResponseDate):
			return a.LastResponseDate.After(*b.LastResponseDate)
		}
		if a.ResponseCount != b.ResponseCount {
			return a.ResponseCount > b.ResponseCount
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.SurveyID < b.SurveyID
	})
}

func ratio(n, d int) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func percent(n, d int) int {
	return int(math.Round(ratio(n, d) * 100))
}
