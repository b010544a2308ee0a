package server

import (
	"net/http"
	"strings"

	"github.com/Mofasaz/aegisai-web/internal/engine"
	"github.com/Mofasaz/aegisai-web/internal/model"
)

type questionRequest struct {
	Query string `json:"query" validate:"required"`
	// UserGrade is honored only when auth is off and no grade header is set.
	UserGrade string `json:"user_grade,omitempty"`
}

type analyzeRequest struct {
	Events []model.LogEvent `json:"events"`
}

type analyzeResponse struct {
	Anomalies []model.Anomaly `json:"anomalies"`
}

type narrativeRequest struct {
	Items []engine.NarrativeRequest `json:"items"`
}

type narrativeResponse struct {
	Items []engine.Narrative `json:"items"`
}

type pushRequest struct {
	Items []engine.PushItem `json:"items"`
}

type ruleRequest struct {
	Text string `json:"text" validate:"required"`
}

type draftRequest struct {
	Requirement string `json:"requirement" validate:"required"`
}

func (a *api) healthz(w http.ResponseWriter, _ *http.Request) {
	rs := a.engine.Store().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"rules":           rs.Len(),
		"ruleset_version": rs.Version(),
		"ruleset_hash":    rs.Hash(),
		"loaded_at":       rs.LoadedAt(),
		"intents":         a.engine.IntentIDs(),
	})
}

func (a *api) question(r *http.Request, req questionRequest) engine.Question {
	p := PrincipalFrom(r.Context())
	if p.Grade == "" && a.auth.Mode != AuthAPIKey {
		p.Grade = strings.TrimSpace(req.UserGrade)
	}
	return engine.Question{
		Query:         req.Query,
		Principal:     p,
		CorrelationID: r.Header.Get(HeaderCorrelationID),
	}
}

func (a *api) ask(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.engine.Ask(r.Context(), a.question(r, req))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) assess(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !a.decode(w, r, &req) {
		return
	}
	ra, err := a.engine.AssessQuery(r.Context(), a.question(r, req))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ra)
}

func (a *api) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !a.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Anomalies: a.engine.AnalyzeEvents(r.Context(), req.Events)})
}

func (a *api) narrative(w http.ResponseWriter, r *http.Request) {
	var req narrativeRequest
	if !a.decode(w, r, &req) {
		return
	}
	items := a.engine.Narrate(r.Context(), PrincipalFrom(r.Context()), req.Items)
	writeJSON(w, http.StatusOK, narrativeResponse{Items: items})
}

func (a *api) attest(w http.ResponseWriter, r *http.Request) {
	var req engine.AttestRequest
	if !a.decode(w, r, &req) {
		return
	}
	out, err := a.engine.Attest(r.Context(), PrincipalFrom(r.Context()), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) pushAnomalies(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if !a.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, a.engine.PushAnomalies(r.Context(), req.Items))
}

func (a *api) listRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.ListRules())
}

func (a *api) validateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !a.decode(w, r, &req) {
		return
	}
	staged, err := a.engine.ValidateAndStageRule(req.Text)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staged)
}

func (a *api) appendRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.engine.AppendRule(r.Context(), req.Text, actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *api) draftRule(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if !a.decode(w, r, &req) {
		return
	}
	staged, err := a.engine.DraftRule(r.Context(), req.Requirement)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, staged)
}

func (a *api) reloadRules(w http.ResponseWriter, r *http.Request) {
	res, err := a.engine.ReloadRules(r.Context(), actor(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func actor(r *http.Request) string {
	if id := PrincipalFrom(r.Context()).ID; id != "" {
		return id
	}
	return "api"
}
