// Package api exposes the election portal as a JSON HTTP API. Sessions ride
// in the X-Session-Token header; clients get generic error messages while the
// detail goes to the server log.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"

	"election-portal/integrity"
	"election-portal/models"
	"election-portal/service"
	"election-portal/storage"
)

const sessionHeader = "X-Session-Token"

type Server struct {
	sessions    *service.SessionManager
	auth        *service.AuthService
	nominations *service.NominationService
	voting      *service.VotingService
	results     *service.ResultsService
	tokens      *integrity.TokenCodec
	verifier    *integrity.Verifier
	reporter    *integrity.Reporter
	attestor    *integrity.Attestor
	audit       *service.Auditor
	store       *storage.Store
}

type Deps struct {
	Sessions    *service.SessionManager
	Auth        *service.AuthService
	Nominations *service.NominationService
	Voting      *service.VotingService
	Results     *service.ResultsService
	Tokens      *integrity.TokenCodec
	Verifier    *integrity.Verifier
	Reporter    *integrity.Reporter
	Attestor    *integrity.Attestor
	Audit       *service.Auditor
	Store       *storage.Store
}

func NewServer(d Deps) *Server {
	return &Server{
		sessions:    d.Sessions,
		auth:        d.Auth,
		nominations: d.Nominations,
		voting:      d.Voting,
		results:     d.Results,
		tokens:      d.Tokens,
		verifier:    d.Verifier,
		reporter:    d.Reporter,
		attestor:    d.Attestor,
		audit:       d.Audit,
		store:       d.Store,
	}
}

// Routes wires every endpoint onto a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)

	mux.HandleFunc("/api/candidates", s.handleCandidates)
	mux.HandleFunc("/api/nominations", s.handleSubmitNomination)
	mux.HandleFunc("/api/vote", s.handleVote)
	mux.HandleFunc("/api/verify", s.handleVerify)
	mux.HandleFunc("/api/results", s.handleResults)
	mux.HandleFunc("/api/stats", s.handleStats)

	mux.HandleFunc("/api/admin/login", s.handleAdminLogin)
	mux.HandleFunc("/api/admin/nominations", s.handleAdminNominations)
	mux.HandleFunc("/api/admin/nominations/approve", s.handleApproveNomination)
	mux.HandleFunc("/api/admin/nominations/delete", s.handleDeleteNomination)
	mux.HandleFunc("/api/admin/votes/delete", s.handleDeleteVote)
	mux.HandleFunc("/api/admin/settings", s.handleUpdateSetting)
	mux.HandleFunc("/api/admin/integrity-report", s.handleIntegrityReport)

	return mux
}

// --- auth & sessions ---

type registerResponse struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.auth.Register(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		s.fail(w, err, "registration")
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{UserID: user.ID, Username: user.Username})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	UserID   uint   `json:"user_id"`
	FullName string `json:"full_name,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.auth.Login(r.Context(), req.Username, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		s.fail(w, err, "login")
		return
	}
	sess := s.sessions.Create(user.ID, false)
	writeJSON(w, http.StatusOK, loginResponse{Token: sess.Token, UserID: user.ID, FullName: user.FullName})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	admin, err := s.auth.AdminLogin(r.Context(), req.Username, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		s.fail(w, err, "admin login")
		return
	}
	sess := s.sessions.Create(admin.ID, true)
	writeJSON(w, http.StatusOK, loginResponse{Token: sess.Token, UserID: admin.ID, FullName: admin.FullName})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if token := r.Header.Get(sessionHeader); token != "" {
		if sess, ok := s.sessions.Resolve(token); ok {
			userID := sess.UserID
			if sess.IsAdmin {
				s.audit.Record(r.Context(), "admin_logout", nil, nil, &userID, clientIP(r), r.UserAgent())
			} else {
				s.audit.Record(r.Context(), "logout", nil, &userID, nil, clientIP(r), r.UserAgent())
			}
		}
		s.sessions.Destroy(token)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- voter endpoints ---

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	grouped, err := s.nominations.CandidatesByPosition(r.Context())
	if err != nil {
		s.fail(w, err, "list candidates")
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

func (s *Server) handleSubmitNomination(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req service.SubmitNominationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	nom, err := s.nominations.Submit(r.Context(), sess.UserID, req, clientIP(r), r.UserAgent())
	if err != nil {
		s.fail(w, err, "submit nomination")
		return
	}
	writeJSON(w, http.StatusCreated, nom)
}

type voteRequest struct {
	Selections map[string]uint `json:"selections"`
}

type voteResponse struct {
	Success   bool                            `json:"success"`
	Positions map[string]integrity.CastResult `json:"positions"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results, err := s.voting.CastVotes(r.Context(), sess.UserID, req.Selections, clientIP(r), r.UserAgent())
	if err != nil {
		s.fail(w, err, "cast votes")
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{Success: true, Positions: results})
}

type verifyRequest struct {
	VoteID            uint   `json:"vote_id"`
	VerificationToken string `json:"verification_token"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.VoteID == 0 {
		http.Error(w, "Please enter a valid vote ID", http.StatusBadRequest)
		return
	}
	if req.VerificationToken == "" {
		http.Error(w, "Please enter your verification token", http.StatusBadRequest)
		return
	}

	valid, err := s.tokens.Validate(r.Context(), s.store, req.VoteID, req.VerificationToken)
	if err != nil {
		s.fail(w, err, "validate token")
		return
	}
	if !valid {
		http.Error(w, "Invalid verification token for this vote ID", http.StatusBadRequest)
		return
	}

	result, err := s.verifier.Verify(r.Context(), req.VoteID)
	if err != nil {
		s.fail(w, err, "verify vote")
		return
	}

	outcome := "invalid"
	if result.Valid {
		outcome = "valid"
	}
	s.audit.Record(r.Context(), "vote_verification_attempted", map[string]any{
		"vote_id":             req.VoteID,
		"verification_result": outcome,
	}, nil, nil, clientIP(r), r.UserAgent())

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	isAdmin := false
	if sess, ok := s.session(r); ok {
		isAdmin = sess.IsAdmin
	}
	available, err := s.results.Available(r.Context(), isAdmin)
	if err != nil {
		s.fail(w, err, "results availability")
		return
	}
	if !available {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":   "Results not yet available",
			"message": "Results will be available after voting ends",
		})
		return
	}

	results, err := s.results.Results(r.Context())
	if err != nil {
		s.fail(w, err, "tabulate results")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.results.Stats(r.Context())
	if err != nil {
		s.fail(w, err, "stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- admin endpoints ---

func (s *Server) handleAdminNominations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	noms, err := s.nominations.List(r.Context())
	if err != nil {
		s.fail(w, err, "list nominations")
		return
	}
	writeJSON(w, http.StatusOK, noms)
}

type approveNominationRequest struct {
	NominationID uint `json:"nomination_id"`
	Approve      bool `json:"approve"`
}

func (s *Server) handleApproveNomination(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req approveNominationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	nom, err := s.nominations.Approve(r.Context(), req.NominationID, sess.UserID, req.Approve, clientIP(r), r.UserAgent())
	if err != nil {
		s.fail(w, err, "approve nomination")
		return
	}
	writeJSON(w, http.StatusOK, nom)
}

type deleteRequest struct {
	NominationID uint `json:"nomination_id,omitempty"`
	VoteID       uint `json:"vote_id,omitempty"`
}

func (s *Server) handleDeleteNomination(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.nominations.Delete(r.Context(), req.NominationID, sess.UserID, clientIP(r), r.UserAgent()); err != nil {
		s.fail(w, err, "delete nomination")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.VoteID == 0 {
		http.Error(w, "vote_id is required", http.StatusBadRequest)
		return
	}
	if err := s.store.DeleteVote(r.Context(), req.VoteID); err != nil {
		if errors.Is(err, storage.ErrNoRow) {
			http.Error(w, "Vote not found", http.StatusBadRequest)
			return
		}
		s.fail(w, err, "delete vote")
		return
	}
	adminID := sess.UserID
	s.audit.Record(r.Context(), "vote_deleted", map[string]any{"vote_id": req.VoteID}, nil, &adminID, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	var req models.ElectionSetting
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		http.Error(w, "setting_key is required", http.StatusBadRequest)
		return
	}
	if err := s.store.UpsertSetting(r.Context(), req.Key, req.Value); err != nil {
		s.fail(w, err, "update setting")
		return
	}
	adminID := sess.UserID
	s.audit.Record(r.Context(), "setting_updated", map[string]any{"setting_key": req.Key}, nil, &adminID, clientIP(r), r.UserAgent())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleIntegrityReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	report, err := s.reporter.Generate(r.Context())
	if err != nil {
		s.fail(w, err, "integrity report")
		return
	}
	signed, err := s.attestor.SignReport(report)
	if err != nil {
		s.fail(w, err, "sign integrity report")
		return
	}
	writeJSON(w, http.StatusOK, signed)
}

// --- helpers ---

func (s *Server) session(r *http.Request) (*service.Session, bool) {
	token := r.Header.Get(sessionHeader)
	if token == "" {
		return nil, false
	}
	return s.sessions.Resolve(token)
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, ok := s.session(r)
	if !ok || sess.IsAdmin {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return nil, false
	}
	return sess, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, ok := s.session(r)
	if !ok || !sess.IsAdmin {
		http.Error(w, "Admin authentication required", http.StatusUnauthorized)
		return nil, false
	}
	return sess, true
}

// fail maps service errors onto HTTP responses: known user-facing errors keep
// their message, everything else logs the detail and returns a generic 500.
func (s *Server) fail(w http.ResponseWriter, err error, action string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		http.Error(w, ve.Msg, http.StatusBadRequest)
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountLocked),
		errors.Is(err, service.ErrAccountInactive),
		errors.Is(err, service.ErrVotingDisabled),
		errors.Is(err, service.ErrElectionInactive),
		errors.Is(err, service.ErrAlreadyVoted),
		errors.Is(err, service.ErrNoCandidates):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrRateLimited),
		errors.Is(err, service.ErrVoteRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		log.Printf("%s failed: %v", action, err)
		http.Error(w, "An error occurred. Please try again.", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the peer
// address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); net.ParseIP(ip) != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
