package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sqlgate/sqlgate/pkg/errors"
	"github.com/sqlgate/sqlgate/pkg/infrastructure/metrics"
	"github.com/sqlgate/sqlgate/pkg/infrastructure/pool"
	"github.com/sqlgate/sqlgate/pkg/models"
	"github.com/sqlgate/sqlgate/pkg/repositories"
	"github.com/sqlgate/sqlgate/pkg/services"
)

// Options configures the HTTP surface.
type Options struct {
	// Users maps usernames to passwords for the login collaborator.
	Users map[string]string
}

// Server exposes the gateway to the web-chat front end. It is presentation
// only: every decision about whether and how SQL runs belongs to the gateway.
type Server struct {
	gateway    services.Gateway
	translator services.Translator
	schema     repositories.SchemaRepository
	sessions   *SessionManager
	pool       pool.ConnectionPool
	users      map[string]string
	logger     zerolog.Logger
	metrics    metrics.Collector
}

// New creates the HTTP server. translator and schema may be nil, which
// disables /v1/ask; sessions may be nil, which leaves every caller read-only.
func New(
	gateway services.Gateway,
	translator services.Translator,
	schema repositories.SchemaRepository,
	sessions *SessionManager,
	p pool.ConnectionPool,
	opts Options,
	logger zerolog.Logger,
	collector metrics.Collector,
) *Server {
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &Server{
		gateway:    gateway,
		translator: translator,
		schema:     schema,
		sessions:   sessions,
		pool:       p,
		users:      opts.Users,
		logger:     logger,
		metrics:    collector,
	}
}

// Handler builds the route table with logging and recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/query", s.handleQuery)
	mux.HandleFunc("POST /v1/ask", s.handleAsk)
	mux.HandleFunc("POST /v1/login", s.handleLogin)
	mux.HandleFunc("POST /v1/logout", s.handleLogout)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var handler http.Handler = mux
	handler = Logging(s.logger, s.metrics)(handler)
	handler = Recovery(s.logger)(handler)
	return handler
}

type queryRequest struct {
	SQL string `json:"sql"`
}

type askRequest struct {
	Question string `json:"question"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// queryResponse is the wire shape shared by /v1/query and /v1/ask. A single
// statement yields Result; a batch yields Results; failures yield only Error,
// always carrying the "ERROR: " prefix.
type queryResponse struct {
	Result  *models.StatementResult  `json:"result,omitempty"`
	Results []models.StatementResult `json:"results,omitempty"`
	SQL     string                   `json:"sql,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}

	results, err := s.gateway.Execute(r.Context(), req.SQL, s.authContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResults(w, results, "")
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.translator == nil || s.schema == nil {
		s.writeError(w, errors.New(errors.CodeUnavailable, "natural language translation is not configured"))
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, errors.New(errors.CodeInvalidRequest, "question cannot be empty"))
		return
	}

	schema, err := s.schema.DescribeSchema(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	candidate, err := s.translator.Translate(r.Context(), req.Question, schema)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Model output is untrusted; it goes through the full gateway pipeline.
	results, err := s.gateway.Execute(r.Context(), candidate, s.authContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResults(w, results, candidate)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeError(w, errors.New(errors.CodeUnavailable, "authentication is not configured"))
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(err, errors.CodeInvalidRequest, "invalid request body"))
		return
	}

	password, ok := s.users[req.Username]
	if !ok || subtle.ConstantTimeCompare([]byte(password), []byte(req.Password)) != 1 {
		s.metrics.IncrementCounter("login_failures_total")
		s.writeError(w, errors.New(errors.CodeUnauthorized, "invalid credentials"))
		return
	}

	token, err := s.sessions.Issue(req.Username, true)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info().Str("username", req.Username).Msg("Session issued")
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.sessions != nil {
		if token := bearerToken(r); token != "" {
			s.sessions.Revoke(token)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.HealthCheck(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authContext derives the caller's write capability for this request. The
// context re-validates the presented token at every policy decision.
func (s *Server) authContext(r *http.Request) services.AuthorizationContext {
	if s.sessions == nil {
		return services.ReadOnly
	}
	return s.sessions.Authorizer(bearerToken(r))
}

func bearerToken(r *http.Request) string {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if strings.HasPrefix(authorization, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
	}
	return ""
}

func (s *Server) writeResults(w http.ResponseWriter, results []models.StatementResult, sql string) {
	resp := queryResponse{SQL: sql}
	if len(results) == 1 {
		resp.Result = &results[0]
	} else {
		resp.Results = results
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.CodeInvalidRequest, errors.CodeQueryFailed:
		status = http.StatusBadRequest
	case errors.CodeUnauthorized:
		status = http.StatusUnauthorized
	case errors.CodePermissionDenied:
		status = http.StatusForbidden
	case errors.CodeDeadlineExceeded:
		status = http.StatusGatewayTimeout
	case errors.CodeUnavailable, errors.CodeConnectionFailed:
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, queryResponse{Error: errors.UserMessage(err)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
