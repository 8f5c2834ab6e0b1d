package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soaringjerry/Canvass/internal/models"
	"github.com/soaringjerry/Canvass/internal/services"
)

// POST /api/v1/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := rt.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := rt.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// POST /api/v1/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := rt.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := rt.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/v1/auth/me
func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := rt.accounts.Me(r.Context(), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// POST /api/v1/surveys
func (rt *Router) handleCreateSurvey(w http.ResponseWriter, r *http.Request) {
	var req createSurveyRequest
	if err := rt.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sv, err := rt.surveys.CreateSurvey(r.Context(), currentUser(r).UID, req.toInput())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"survey": sv})
}

// GET /api/v1/surveys
func (rt *Router) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	list, err := rt.surveys.ListSurveys(r.Context(), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"surveys": list})
}

// GET /api/v1/surveys/{surveyID}
func (rt *Router) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	sv, err := rt.surveys.GetSurvey(r.Context(), chi.URLParam(r, "surveyID"), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"survey": sv})
}

// PATCH /api/v1/surveys/{surveyID}/status
func (rt *Router) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := rt.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sv, err := rt.surveys.UpdateStatus(r.Context(), chi.URLParam(r, "surveyID"), currentUser(r).UID, models.SurveyStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"survey": sv})
}

// POST /api/v1/surveys/{surveyID}/invitations
// { userEmails: [..] } -> per-email results plus summary
func (rt *Router) handleSendInvitations(w http.ResponseWriter, r *http.Request) {
	var req sendInvitationsRequest
	if err := rt.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	batch, err := rt.invitations.SendInvitations(r.Context(), chi.URLParam(r, "surveyID"), currentUser(r).UID, req.UserEmails)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

// GET /api/v1/surveys/{surveyID}/invitations
func (rt *Router) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	list, err := rt.invitations.ListInvitations(r.Context(), chi.URLParam(r, "surveyID"), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": list})
}

// GET /api/v1/surveys/{surveyID}/responses
func (rt *Router) handleListResponses(w http.ResponseWriter, r *http.Request) {
	list, err := rt.responses.ListSurveyResponses(r.Context(), chi.URLParam(r, "surveyID"), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": list})
}

// GET /api/v1/surveys/{surveyID}/analytics, /api/v1/analytics/{surveyID}
func (rt *Router) handleSurveyAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.analytics.Summary(r.Context(), chi.URLParam(r, "surveyID"), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GET /api/v1/analytics/{surveyID}/time-series
func (rt *Router) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	points, err := rt.analytics.Timeseries(r.Context(), chi.URLParam(r, "surveyID"), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeseries": points})
}

// GET /api/v1/surveys/{surveyID}/export?format=long|wide
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = services.ExportLong
	}
	b, filename, err := rt.analytics.Export(r.Context(), chi.URLParam(r, "surveyID"), currentUser(r).UID, format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	_, _ = w.Write(b)
}

// GET /api/v1/invitations/received
func (rt *Router) handleReceivedInvitations(w http.ResponseWriter, r *http.Request) {
	list, err := rt.invitations.ReceivedInvitations(r.Context(), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": list})
}

// GET /api/v1/invitations/open/{token}
func (rt *Router) handleOpenInvitation(w http.ResponseWriter, r *http.Request) {
	opened, err := rt.invitations.OpenInvitation(r.Context(), chi.URLParam(r, "token"), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opened)
}

// POST /api/v1/responses
// { invitationId, responses: [{questionId, answer}] | {questionId: answer}, completionTime }
func (rt *Router) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req submitResponseRequest
	if err := rt.decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := rt.responses.SubmitResponse(r.Context(), services.SubmitRequest{
		InvitationID:   req.InvitationID,
		RespondentID:   currentUser(r).UID,
		Answers:        req.answers(),
		CompletionTime: req.CompletionTime,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GET /api/v1/responses/{responseID}
func (rt *Router) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := rt.responses.GetResponse(r.Context(), chi.URLParam(r, "responseID"), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": resp})
}

// GET /api/v1/dashboard/stats
func (rt *Router) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.dashboard.Stats(r.Context(), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/v1/dashboard/aggregation
func (rt *Router) handleCrossSurvey(w http.ResponseWriter, r *http.Request) {
	agg, err := rt.dashboard.CrossSurvey(r.Context(), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// GET /api/v1/analytics/poll?since=N
// Clients poll this cheaply and refetch dashboards only when updated is true.
func (rt *Router) handlePoll(w http.ResponseWriter, r *http.Request) {
	since := int64(-1)
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, services.NewInvalidError("since must be an integer"))
			return
		}
		since = v
	}
	version, err := rt.feed.Version(r.Context(), currentUser(r).UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": version != since, "version": version})
}
