package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"talentcore/internal/ratelimit"
	"talentcore/internal/servicetoken"
	"talentcore/internal/util"
	"talentcore/services/onboarding/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	InternalJWTKeyID         string
	InternalJWTPublicKeyPath string
	// Limiter throttles mutating endpoints per client; nil disables limiting.
	Limiter *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the onboarding service.
type Server struct {
	app          *app.App
	internalAuth *servicetoken.Verifier
	limiter      *ratelimit.FixedWindowLimiter
	mux          *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	s := &Server{
		app:     cfg.App,
		limiter: cfg.Limiter,
		mux:     http.NewServeMux(),
	}
	verifier, err := servicetoken.NewVerifier(servicetoken.VerifierOptions{
		PublicKeyPath:  strings.TrimSpace(cfg.InternalJWTPublicKeyPath),
		KeyID:          cfg.InternalJWTKeyID,
		Audience:       "onboarding",
		AllowedIssuers: []string{"hr-portal"},
		Leeway:         servicetoken.DefaultLeeway,
	})
	if err != nil {
		return nil, err
	}
	s.internalAuth = verifier
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithRequestID(util.WithRequestLog("onboarding", s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/onboarding/candidates/", s.withInternal(s.handleCandidate))
	s.mux.Handle("/onboarding/attachments", s.withInternal(s.handleAttachments))
	s.mux.Handle("/onboarding/audit/", s.withInternal(s.handleAudit))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withInternal(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if s.internalAuth == nil {
			writeError(w, http.StatusInternalServerError, "internal auth not configured")
			return
		}
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, err := s.internalAuth.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

// handleCandidate dispatches /onboarding/candidates/{id}/{action}.
func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/onboarding/candidates/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	candidateID, action := parts[0], parts[1]
	switch action {
	case "promote":
		s.promote(w, r, candidateID)
	case "retry-contract":
		s.retryContract(w, r, candidateID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) promote(w http.ResponseWriter, r *http.Request, candidateID string) {
	res, err := s.app.Promote(r.Context(), candidateID)
	if err != nil {
		writePromoteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) retryContract(w http.ResponseWriter, r *http.Request, candidateID string) {
	res, err := s.app.RetryContract(r.Context(), candidateID)
	if err != nil {
		writePromoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// partialResponse reports a promotion whose provisioning committed but whose
// contract step failed; clients retry via the retry-contract action.
type partialResponse struct {
	Error        string `json:"error"`
	Partial      bool   `json:"partial"`
	IdentityID   string `json:"identityId"`
	TempPassword string `json:"tempPassword,omitempty"`
}

func writePromoteError(w http.ResponseWriter, err error) {
	var pre *app.PreconditionError
	if errors.As(err, &pre) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  pre.Message,
			"reason": pre.Reason,
		})
		return
	}
	if errors.Is(err, app.ErrPromoteInFlight) {
		writeError(w, http.StatusConflict, "promotion already in flight")
		return
	}
	var partial *app.PartialSuccessError
	if errors.As(err, &partial) {
		writeJSON(w, http.StatusInternalServerError, partialResponse{
			Error:        "contract creation failed; employee was provisioned",
			Partial:      true,
			IdentityID:   partial.IdentityID,
			TempPassword: partial.TempPassword,
		})
		return
	}
	writeError(w, http.StatusInternalServerError, "promotion failed")
}

type attachmentRequest struct {
	Kind        string `json:"kind"`
	OwnerID     string `json:"ownerId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

func (s *Server) handleAttachments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req attachmentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 32<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	att, err := s.app.Attachments().UploadAndRegister(r.Context(), app.UploadRequest{
		Kind:        req.Kind,
		OwnerID:     req.OwnerID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Content:     req.Content,
	})
	if err != nil {
		if errors.Is(err, app.ErrDuplicateUpload) {
			writeError(w, http.StatusConflict, "identical content was already uploaded")
			return
		}
		var comp *app.CompensationFailureError
		if errors.As(err, &comp) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":      "attachment write failed and cleanup left an orphan blob",
				"orphanPath": comp.OrphanPath,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "attachment write failed")
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	correlationID := strings.TrimPrefix(r.URL.Path, "/onboarding/audit/")
	if correlationID == "" || strings.Contains(correlationID, "/") {
		http.NotFound(w, r)
		return
	}
	records, err := s.app.AuditTrail().List(r.Context(), correlationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
