package services

import (
	"fmt"
	"sort"
	"strings"
)

const maxInsights = 4

type Insight struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Metric      string `json:"metric,omitempty"`
}

// GenerateInsights applies the dashboard heuristics to one aggregation snapshot.
func GenerateInsights(trends []TrendPoint, stats []SurveyStat) []Insight {
	out := []Insight{}

	if in, ok := trendInsight(trends); ok {
		out = append(out, in)
	}

	answered := make([]SurveyStat, 0, len(stats))
	for _, st := range stats {
		if st.ResponseCount > 0 {
			answered = append(answered, st)
		}
	}
	if len(answered) > 1 {
		sort.SliceStable(answered, func(i, j int) bool {
			return ratio(answered[i].ResponseCount, answered[i].InvitationCount) > ratio(answered[j].ResponseCount, answered[j].InvitationCount)
		})
		best, worst := answered[0], answered[len(answered)-1]
		if rate := ratio(best.ResponseCount, best.InvitationCount) * 100; rate > 70 {
			out = append(out, Insight{
				Type:        "positive",
				Title:       "Top Performer",
				Description: fmt.Sprintf("%q has excellent completion rates", best.Title),
				Metric:      fmt.Sprintf("%.1f%% completion", rate),
			})
		}
		if rate := ratio(worst.ResponseCount, worst.InvitationCount) * 100; rate < 30 && rate > 0 {
			out = append(out, Insight{
				Type:        "warning",
				Title:       "Needs Attention",
				Description: fmt.Sprintf("%q has low completion rates", worst.Title),
				Metric:      fmt.Sprintf("%.1f%% completion", rate),
			})
		}
	}

	totalResp, totalInv := 0, 0
	for _, st := range stats {
		totalResp += st.ResponseCount
		totalInv += st.InvitationCount
	}
	overall := ratio(totalResp, totalInv) * 100
	switch {
	case overall > 60:
		out = append(out, Insight{
			Type:        "positive",
			Title:       "Strong Performance",
			Description: "Your surveys are performing well overall",
			Metric:      fmt.Sprintf("%.1f%% average completion", overall),
		})
	case overall < 30 && totalResp > 0:
		out = append(out, Insight{
			Type:        "warning",
			Title:       "Room for Improvement",
			Description: "Consider optimizing your survey design or invitation strategy",
			Metric:      fmt.Sprintf("%.1f%% average completion", overall),
		})
	}

	var inactive []string
	for _, st := range stats {
		if st.ResponseCount == 0 && st.InvitationCount > 0 {
			inactive = append(inactive, st.Title)
		}
	}
	if len(inactive) > 0 {
		desc := "1 survey hasn't received responses yet"
		if len(inactive) > 1 {
			desc = fmt.Sprintf("%d surveys haven't received responses yet", len(inactive))
		}
		metric := strings.Join(inactive[:min(2, len(inactive))], ", ")
		if len(inactive) > 2 {
			metric += "..."
		}
		out = append(out, Insight{Type: "info", Title: "Inactive Surveys", Description: desc, Metric: metric})
	}

	if len(out) > maxInsights {
		out = out[:maxInsights]
	}
	return out
}

// trendInsight compares the first and last three of the final seven points.
// It is skipped when the earlier window averages zero.
func trendInsight(trends []TrendPoint) (Insight, bool) {
	if len(trends) < 7 {
		return Insight{}, false
	}
	week := trends[len(trends)-7:]
	first := avgCount(week[:3])
	second := avgCount(week[4:])
	if first == 0 {
		return Insight{}, false
	}
	change := (second - first) / first * 100
	if change > 10 {
		return Insight{
			Type:        "positive",
			Title:       "Response Trend Analysis",
			Description: "Your surveys are trending upwards in responses this week",
			Metric:      fmt.Sprintf("%.1f%% increase", change),
		}, true
	}
	if change < -10 {
		return Insight{
			Type:        "negative",
			Title:       "Response Trend Analysis",
			Description: "Response activity has declined in recent days",
			Metric:      fmt.Sprintf("%.1f%% decrease", -change),
		}, true
	}
	return Insight{}, false
}

func avgCount(points []TrendPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0
	for _, p := range points {
		sum += p.Count
	}
	return float64(sum) / float64(len(points))
}
