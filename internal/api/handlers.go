// Package api exposes collection, analytics and recommendations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/brandlens/ai-visibility/internal/analytics"
	"github.com/brandlens/ai-visibility/internal/collector"
	"github.com/brandlens/ai-visibility/internal/jobs"
	"github.com/brandlens/ai-visibility/internal/models"
	"github.com/brandlens/ai-visibility/internal/recommendations"
	"github.com/brandlens/ai-visibility/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// CheckRunner runs a bounded synchronous batch of checks
type CheckRunner interface {
	RunChecks(ctx context.Context, req models.CheckRequest) (*models.BatchResult, error)
}

// JobManager submits and tracks asynchronous check runs
type JobManager interface {
	Submit(ctx context.Context, req models.CheckRequest) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
}

// Snapshotter reads the aggregated analytics of a project
type Snapshotter interface {
	Snapshot(ctx context.Context, q analytics.Query) (*analytics.Snapshot, error)
}

var (
	_ CheckRunner = (*collector.Service)(nil)
	_ JobManager  = (*jobs.Manager)(nil)
	_ Snapshotter = (*analytics.Service)(nil)
)

// Handler serves the HTTP API
type Handler struct {
	checks      CheckRunner
	jobs        JobManager
	store       storage.Store
	analytics   Snapshotter
	recommender *recommendations.Engine
	status      func() string
}

// NewHandler creates the API handler. status may be nil.
func NewHandler(checks CheckRunner, jobs JobManager, store storage.Store, snapshots Snapshotter, recommender *recommendations.Engine, status func() string) *Handler {
	return &Handler{
		checks:      checks,
		jobs:        jobs,
		store:       store,
		analytics:   snapshots,
		recommender: recommender,
		status:      status,
	}
}

// NewRouter wires every route. metrics serves the Prometheus scrape endpoint.
func NewRouter(h *Handler, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.statusHandler).Methods("GET")
	api.HandleFunc("/checks/run", h.runChecksHandler).Methods("POST")
	api.HandleFunc("/jobs", h.submitJobHandler).Methods("POST")
	api.HandleFunc("/jobs/{id}", h.getJobHandler).Methods("GET")
	api.HandleFunc("/observations", h.createObservationHandler).Methods("POST")
	api.HandleFunc("/projects", h.createProjectHandler).Methods("POST")
	api.HandleFunc("/projects", h.listProjectsHandler).Methods("GET")
	api.HandleFunc("/keywords", h.createKeywordHandler).Methods("POST")
	api.HandleFunc("/keywords/{id}", h.deleteKeywordHandler).Methods("DELETE")
	api.HandleFunc("/projects/{id}/analytics", h.analyticsHandler).Methods("GET")
	api.HandleFunc("/projects/{id}/recommendations", h.recommendationsHandler).Methods("GET")
	api.HandleFunc("/projects/{id}/keywords/stats", h.keywordStatsHandler).Methods("GET")

	return router
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) statusHandler(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.status()))
}

// runChecksHandler runs the request synchronously; large requests are
// rejected in favour of /api/jobs
func (h *Handler) runChecksHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CheckRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.checks.RunChecks(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkRunResponse{Count: result.Persisted, Result: result})
}

type checkRunResponse struct {
	Count  int                 `json:"count"`
	Result *models.BatchResult `json:"result"`
}

func (h *Handler) submitJobHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CheckRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	job, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) getJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// observationRequest is the manual insert body
type observationRequest struct {
	KeywordID      string            `json:"keyword_id"`
	Engine         models.Engine     `json:"engine"`
	Presence       bool              `json:"presence"`
	Position       *int              `json:"position"`
	CitationsCount int               `json:"citations_count"`
	Sentiment      *models.Sentiment `json:"sentiment"`
	AnswerSnippet  *string           `json:"answer_snippet"`
	ObservedURLs   []string          `json:"observed_urls"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]any    `json:"metadata"`
}

// createObservationHandler stores a manually reported observation. It goes
// through the same constructor as collected checks.
func (h *Handler) createObservationHandler(w http.ResponseWriter, r *http.Request) {
	var req observationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.KeywordID == "" {
		writeError(w, &models.ValidationError{Field: "keyword_id", Reason: "is required"})
		return
	}

	keywords, err := h.store.GetKeywords(r.Context(), []string{req.KeywordID})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(keywords) == 0 {
		writeError(w, &models.NotFoundError{Kind: "keyword", ID: req.KeywordID})
		return
	}

	obs, err := models.NewObservation(models.ObservationInput{
		KeywordID:      req.KeywordID,
		Engine:         req.Engine,
		Presence:       req.Presence,
		Position:       req.Position,
		CitationsCount: req.CitationsCount,
		Sentiment:      req.Sentiment,
		AnswerSnippet:  req.AnswerSnippet,
		ObservedURLs:   req.ObservedURLs,
		Timestamp:      req.Timestamp,
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Append(r.Context(), []models.Observation{obs}); err != nil {
		writeError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{"keyword_id": obs.KeywordID, "engine": obs.Engine.String()}).
		Debug("Stored manual observation")
	writeJSON(w, http.StatusCreated, obs)
}

type projectRequest struct {
	Name        string   `json:"name"`
	Domain      string   `json:"domain"`
	BrandName   string   `json:"brand_name"`
	Competitors []string `json:"competitors"`
}

func (h *Handler) createProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := required(map[string]string{"name": req.Name, "domain": req.Domain, "brand_name": req.BrandName}); err != nil {
		writeError(w, err)
		return
	}

	competitors := req.Competitors
	if competitors == nil {
		competitors = []string{}
	}
	project := &models.Project{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Domain:      strings.TrimSpace(req.Domain),
		BrandName:   strings.TrimSpace(req.BrandName),
		Competitors: competitors,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.SaveProject(r.Context(), project); err != nil {
		writeError(w, err)
		return
	}

	logrus.WithField("project_id", project.ID).Infof("Created project %s", project.Name)
	writeJSON(w, http.StatusCreated, project)
}

// listProjectsHandler returns projects newest first
func (h *Handler) listProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	for i, j := 0, len(projects)-1; i < j; i, j = i+1, j-1 {
		projects[i], projects[j] = projects[j], projects[i]
	}
	writeJSON(w, http.StatusOK, projects)
}

type keywordRequest struct {
	ProjectID string  `json:"project_id"`
	Keyword   string  `json:"keyword"`
	Category  *string `json:"category"`
	Priority  int     `json:"priority"`
}

func (h *Handler) createKeywordHandler(w http.ResponseWriter, r *http.Request) {
	var req keywordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := required(map[string]string{"project_id": req.ProjectID, "keyword": req.Keyword}); err != nil {
		writeError(w, err)
		return
	}
	if req.Priority == 0 {
		req.Priority = 1
	}
	if req.Priority < 1 || req.Priority > 3 {
		writeError(w, &models.ValidationError{Field: "priority", Reason: "must be between 1 and 3"})
		return
	}

	if _, err := h.store.GetProject(r.Context(), req.ProjectID); err != nil {
		writeError(w, err)
		return
	}

	keyword := models.Keyword{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		Keyword:   strings.TrimSpace(req.Keyword),
		Category:  req.Category,
		Priority:  req.Priority,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.SaveKeywords(r.Context(), []models.Keyword{keyword}); err != nil {
		writeError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{"project_id": keyword.ProjectID, "keyword_id": keyword.ID}).
		Infof("Added keyword %q", keyword.Keyword)
	writeJSON(w, http.StatusCreated, keyword)
}

func (h *Handler) deleteKeywordHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.DeleteKeyword(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	logrus.WithField("keyword_id", id).Info("Deleted keyword and its observations")
	w.WriteHeader(http.StatusNoContent)
}

// required reports the first blank field in alphabetical order
func required(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(fields[name]) == "" {
			return &models.ValidationError{Field: name, Reason: "is required"}
		}
	}
	return nil
}

func (h *Handler) analyticsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Analytics)
}

type recommendationsResponse struct {
	ProjectID string `json:"project_id"`
	recommendations.Result
}

func (h *Handler) recommendationsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}

	result := h.recommender.Generate(recommendations.InputFromAnalytics(snapshot.Analytics))
	writeJSON(w, http.StatusOK, recommendationsResponse{ProjectID: snapshot.Project.ID, Result: result})
}

func (h *Handler) keywordStatsHandler(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Analytics.Keywords)
}

// snapshot parses the shared analytics query parameters and writes the
// error response itself when the read fails
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (*analytics.Snapshot, bool) {
	q, err := parseQuery(mux.Vars(r)["id"], r)
	if err != nil {
		writeError(w, err)
		return nil, false
	}

	snapshot, err := h.analytics.Snapshot(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return snapshot, true
}

func parseQuery(projectID string, r *http.Request) (analytics.Query, error) {
	values := r.URL.Query()
	q := analytics.Query{
		ProjectID:  projectID,
		KeywordIDs: splitList(values.Get("keywords")),
	}

	for _, name := range splitList(values.Get("engines")) {
		engine, err := models.ParseEngine(name)
		if err != nil {
			return q, err
		}
		q.Engines = append(q.Engines, engine)
	}

	var err error
	if q.Since, err = parseTime("since", values.Get("since")); err != nil {
		return q, err
	}
	if q.Until, err = parseTime("until", values.Get("until")); err != nil {
		return q, err
	}
	return q, nil
}

// parseTime accepts RFC 3339 timestamps or plain dates (midnight UTC)
func parseTime(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, &models.ValidationError{Field: field, Reason: "must be an RFC 3339 timestamp or YYYY-MM-DD date"}
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var validation *models.ValidationError
		if errors.As(err, &validation) {
			return err
		}
		return &models.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case models.IsValidation(err):
		status = http.StatusBadRequest
	case models.IsNotFound(err):
		status = http.StatusNotFound
	default:
		logrus.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}
