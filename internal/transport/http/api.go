// Package http exposes the quiz over a JSON REST surface plus a websocket
// event stream. Request validation happens here; game rules live in app.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"quizbee/internal/app"
	"quizbee/internal/domain"

	"github.com/rs/zerolog"
)

// API wires the HTTP handlers to the game service. Reads that serve the
// canonical snapshot go through source so the redis cache can sit in front
// of the store.
type API struct {
	service       *app.GameService
	source        Source
	hub           *Hub
	adminPassword string
	log           zerolog.Logger
}

func NewAPI(service *app.GameService, source Source, hub *Hub, adminPassword string, log zerolog.Logger) *API {
	return &API{
		service:       service,
		source:        source,
		hub:           hub,
		adminPassword: adminPassword,
		log:           log,
	}
}

// Routes builds the full route table.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ws", a.hub.ServeWS)

	mux.HandleFunc("GET /api/state", a.handleState)
	mux.HandleFunc("POST /api/join/{token}", a.withDevice(a.handleJoin))
	mux.HandleFunc("POST /api/submit", a.withDevice(a.handleSubmit))

	mux.HandleFunc("GET /api/questions", a.requireAdmin(a.handleListQuestions))
	mux.HandleFunc("POST /api/questions", a.requireAdmin(a.handleCreateQuestion))
	mux.HandleFunc("PUT /api/questions/{id}", a.requireAdmin(a.handleUpdateQuestion))
	mux.HandleFunc("DELETE /api/questions/{id}", a.requireAdmin(a.handleDeleteQuestion))

	mux.HandleFunc("GET /api/teams", a.requireAdmin(a.handleListTeams))
	mux.HandleFunc("POST /api/teams", a.requireAdmin(a.handleCreateTeam))
	mux.HandleFunc("POST /api/teams/{id}/release", a.requireAdmin(a.handleReleaseTeam))
	mux.HandleFunc("POST /api/teams/{id}/adjust", a.requireAdmin(a.handleAdjustTeam))

	mux.HandleFunc("POST /api/game/set_current", a.requireAdmin(a.handleSetCurrent))
	mux.HandleFunc("POST /api/game/open", a.requireAdmin(a.handleOpen))
	mux.HandleFunc("POST /api/game/close", a.requireAdmin(a.handleClose))
	mux.HandleFunc("POST /api/game/reveal", a.requireAdmin(a.handleReveal))
	mux.HandleFunc("POST /api/game/reset_submissions", a.requireAdmin(a.handleResetSubmissions))

	mux.HandleFunc("GET /api/submissions", a.requireAdmin(a.handleListSubmissions))
	mux.HandleFunc("POST /api/submissions/{id}/mark", a.requireAdmin(a.handleMarkSubmission))
	mux.HandleFunc("GET /api/rankings", a.requireAdmin(a.handleRankings))

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind string) {
	writeJSON(w, status, map[string]string{"error": kind})
}

// writeDomainError maps the error taxonomy onto status codes and wire kinds.
func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "invalid_payload")
	case errors.Is(err, domain.ErrChoicesRequired):
		writeError(w, http.StatusBadRequest, "choices_required")
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusForbidden, "invalid_token")
	case errors.Is(err, domain.ErrTeamInUse):
		writeError(w, http.StatusForbidden, "in_use")
	case errors.Is(err, domain.ErrQuestionNotOpen):
		writeError(w, http.StatusBadRequest, "question_not_open")
	case errors.Is(err, domain.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "already_submitted")
	case errors.Is(err, domain.ErrNoCurrentQuestion):
		writeError(w, http.StatusBadRequest, "no_current_question")
	case errors.Is(err, domain.ErrInvalidQuestion):
		writeError(w, http.StatusBadRequest, "invalid_question")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	default:
		a.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := a.source.State(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	team, submitted, err := a.service.Join(r.Context(), r.PathValue("token"), deviceID(r))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"team": map[string]any{
			"id":    team.ID,
			"name":  team.Name,
			"token": team.Token,
		},
		"submitted_for_current": submitted,
	})
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string  `json:"token"`
		Answer *string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" || req.Answer == nil {
		writeError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	if _, err := a.service.Submit(r.Context(), req.Token, deviceID(r), *req.Answer); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type questionRequest struct {
	Type             string   `json:"type"`
	Prompt           string   `json:"prompt"`
	Choices          []string `json:"choices"`
	CorrectAnswer    string   `json:"correct_answer"`
	Points           *int     `json:"points"`
	TimeLimitSeconds *int     `json:"time_limit_seconds"`
}

func (q questionRequest) toDomain(id int64) (domain.Question, error) {
	if q.Type == "" || q.Prompt == "" || q.CorrectAnswer == "" || q.Points == nil {
		return domain.Question{}, domain.ErrInvalidPayload
	}
	return domain.Question{
		ID:               id,
		Type:             domain.QuestionType(q.Type),
		Prompt:           q.Prompt,
		Choices:          q.Choices,
		CorrectAnswer:    q.CorrectAnswer,
		Points:           *q.Points,
		TimeLimitSeconds: q.TimeLimitSeconds,
	}, nil
}

func (a *API) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.service.ListQuestions(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if questions == nil {
		questions = []domain.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (a *API) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	question, err := req.toDomain(0)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	id, err := a.service.CreateQuestion(r.Context(), question)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (a *API) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	question, err := req.toDomain(pathID(r))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if err := a.service.UpdateQuestion(r.Context(), question); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteQuestion(r.Context(), pathID(r)); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.service.ListTeams(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if teams == nil {
		teams = []domain.Team{}
	}
	writeJSON(w, http.StatusOK, teams)
}

func (a *API) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamName string `json:"team_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TeamName == "" {
		writeError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	team, err := a.service.CreateTeam(r.Context(), req.TeamName)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": team.ID, "token": team.Token})
}

func (a *API) handleReleaseTeam(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ReleaseDevice(r.Context(), pathID(r)); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleAdjustTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta *float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_delta")
		return
	}
	delta := 0
	if req.Delta != nil {
		delta = int(*req.Delta)
	}
	if err := a.service.AdjustPoints(r.Context(), pathID(r), delta); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID int64 `json:"question_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	if err := a.service.SetCurrent(r.Context(), req.QuestionID); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleOpen(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Open(r.Context()); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Close(r.Context()); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleReveal(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Reveal(r.Context()); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleResetSubmissions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID int64 `json:"question_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	if err := a.service.ResetSubmissions(r.Context(), req.QuestionID); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	questionID, _ := strconv.ParseInt(r.URL.Query().Get("question_id"), 10, 64)
	subs, err := a.service.SubmissionsForQuestion(r.Context(), questionID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.SubmissionWithTeam{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (a *API) handleMarkSubmission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsCorrect bool `json:"is_correct"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	if err := a.service.ManualMark(r.Context(), pathID(r), req.IsCorrect); err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) handleRankings(w http.ResponseWriter, r *http.Request) {
	rankings, err := a.source.Rankings(r.Context())
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if rankings == nil {
		rankings = []domain.RankingEntry{}
	}
	writeJSON(w, http.StatusOK, rankings)
}
