package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/pitch-evaluator/internal/config"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
	"github.com/fairyhunter13/pitch-evaluator/internal/usecase"
)

// Server aggregates handlers dependencies.
type Server struct {
	Cfg         config.Config
	Submissions usecase.SubmissionService
	Evaluate    *usecase.EvaluateService
	Results     usecase.ResultService
	Companies   usecase.CompanyService
	DBCheck     func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
	KafkaCheck  func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, subs usecase.SubmissionService, eval *usecase.EvaluateService, results usecase.ResultService, companies usecase.CompanyService, dbCheck, redisCheck, kafkaCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:         cfg,
		Submissions: subs,
		Evaluate:    eval,
		Results:     results,
		Companies:   companies,
		DBCheck:     dbCheck,
		RedisCheck:  redisCheck,
		KafkaCheck:  kafkaCheck,
	}
}

type evaluateRequest struct {
	SubmissionID string `json:"submissionId" validate:"required,uuid"`
	ForceRefresh bool   `json:"forceRefresh"`
	Async        bool   `json:"async"`
}

type createSubmissionRequest struct {
	RubricID     string            `json:"rubricId" validate:"required,max=64"`
	Source       string            `json:"source" validate:"max=64"`
	UserID       string            `json:"userId" validate:"max=128"`
	CompanyName  string            `json:"companyName" validate:"required,max=200"`
	ContactName  string            `json:"contactName" validate:"max=200"`
	ContactEmail string            `json:"contactEmail" validate:"omitempty,email,max=254"`
	Website      string            `json:"website" validate:"omitempty,url,max=2048"`
	Answers      map[string]string `json:"answers" validate:"max=64,dive,keys,max=64,endkeys,max=20000"`
}

type submissionView struct {
	ID           string            `json:"id"`
	RubricID     string            `json:"rubricId"`
	Source       string            `json:"source"`
	UserID       string            `json:"userId,omitempty"`
	CompanyName  string            `json:"companyName"`
	ContactName  string            `json:"contactName,omitempty"`
	ContactEmail string            `json:"contactEmail,omitempty"`
	Website      string            `json:"website,omitempty"`
	Answers      map[string]string `json:"answers"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func newSubmissionView(s domain.Submission) submissionView {
	return submissionView{
		ID:           s.ID,
		RubricID:     s.RubricID,
		Source:       s.Source,
		UserID:       s.UserID,
		CompanyName:  s.CompanyName,
		ContactName:  s.ContactName,
		ContactEmail: s.ContactEmail,
		Website:      s.Website,
		Answers:      s.Answers,
		Status:       string(s.Status),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

type companyView struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submissionId,omitempty"`
	Name         string    `json:"name"`
	Source       string    `json:"source"`
	UserID       string    `json:"userId,omitempty"`
	Score        int       `json:"score"`
	MaxScore     int       `json:"maxScore"`
	ScorePercent int       `json:"scorePercent"`
	ContactName  string    `json:"contactName,omitempty"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	Website      string    `json:"website,omitempty"`
	Summary      string    `json:"summary"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func newCompanyView(c domain.Company) companyView {
	return companyView{
		ID:           c.ID,
		SubmissionID: c.SubmissionID,
		Name:         c.Name,
		Source:       c.Source,
		UserID:       c.UserID,
		Score:        c.Score,
		MaxScore:     c.MaxScore,
		ScorePercent: c.ScorePercent,
		ContactName:  c.ContactName,
		ContactEmail: c.ContactEmail,
		Website:      c.Website,
		Summary:      c.Summary,
		UpdatedAt:    c.UpdatedAt,
	}
}

func notAcceptable(w http.ResponseWriter, r *http.Request) bool {
	if acceptsJSON(r) {
		return false
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{
		Error:   "not acceptable",
		Code:    "INVALID_ARGUMENT",
		Details: map[string]string{"accept": r.Header.Get("Accept")},
	})
	return true
}

// EvaluateHandler evaluates the submission named in the body.
func (s *Server) EvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		var req evaluateRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if details, err := validateStruct(req); err != nil {
			writeError(w, r, err, details)
			return
		}
		s.evaluate(w, r, req)
	}
}

// SubmissionEvaluateHandler evaluates the submission named in the path.
func (s *Server) SubmissionEvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		var req evaluateRequest
		if err := decodeJSON(w, r, &req, true); err != nil {
			writeError(w, r, err, nil)
			return
		}
		req.SubmissionID = chi.URLParam(r, "id")
		if details, err := validateStruct(req); err != nil {
			writeError(w, r, err, details)
			return
		}
		s.evaluate(w, r, req)
	}
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request, req evaluateRequest) {
	ctx := r.Context()
	in := usecase.EvaluateInput{SubmissionID: req.SubmissionID, ForceRefresh: req.ForceRefresh}
	if req.Async {
		if err := s.Evaluate.EnqueueEvaluation(ctx, in); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "queued": true, "submissionId": req.SubmissionID})
		return
	}
	out, err := s.Evaluate.Evaluate(ctx, in)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"evaluation": usecase.NewEvaluationView(out.Evaluation),
		"cached":     out.Cached,
	})
}

// CreateSubmissionHandler stores a new pending submission.
func (s *Server) CreateSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		var req createSubmissionRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if details, err := validateStruct(req); err != nil {
			writeError(w, r, err, details)
			return
		}
		sub, err := s.Submissions.Create(r.Context(), domain.Submission{
			RubricID:     req.RubricID,
			Source:       req.Source,
			UserID:       req.UserID,
			CompanyName:  req.CompanyName,
			ContactName:  req.ContactName,
			ContactEmail: req.ContactEmail,
			Website:      req.Website,
			Answers:      req.Answers,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Location", "/v1/submissions/"+sub.ID)
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "submission": newSubmissionView(sub)})
	}
}

// ResultHandler returns submission status and the stored evaluation.
func (s *Server) ResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		status, res, etag, err := s.Results.Fetch(r.Context(), chi.URLParam(r, "id"), r.Header.Get("If-None-Match"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("ETag", `"`+etag+`"`)
		w.Header().Set("Cache-Control", "no-cache")
		if status == http.StatusNotModified {
			w.WriteHeader(status)
			return
		}
		res["success"] = true
		writeJSON(w, status, res)
	}
}

// CompaniesHandler lists companies, best score first.
func (s *Server) CompaniesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		in, details, err := parseListQuery(r.URL.Query())
		if err != nil {
			writeError(w, r, err, details)
			return
		}
		companies, page, err := s.Companies.List(r.Context(), in)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]companyView, 0, len(companies))
		for _, c := range companies {
			views = append(views, newCompanyView(c))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"companies": views,
			"page":      page.Page,
			"limit":     page.Limit,
		})
	}
}

// DeleteSubmissionHandler removes a submission and its evaluation.
func (s *Server) DeleteSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Submissions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler returns a readiness handler that probes DB, Redis and Kafka.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{
			{"db", s.DBCheck},
			{"redis", s.RedisCheck},
			{"kafka", s.KafkaCheck},
		}
		checks := make([]check, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: p.name, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
