package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/automataweaver/backend/internal/auth/user"
	apperrors "github.com/automataweaver/backend/internal/platform/errors"
)

// genericAuthFailure is the only message credential failures ever produce.
const genericAuthFailure = "authentication failed"

type credentialsPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func userResponse(u user.User) map[string]any {
	return map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
	}
}

// issueLogin renews the session for the authenticated user and returns the
// JSON payload the front end expects.
func (s *Server) issueLogin(w http.ResponseWriter, r *http.Request, u user.User, status int) {
	sess, err := s.sessions.Renew(r.Context(), w, sessionFromContext(r.Context()), u.ID)
	if err != nil {
		log.Printf("issue session for %s: %v", u.ID, err)
		writeJSON(w, apperrors.CodeOf(err).HTTPStatus(), map[string]any{
			"success": false,
			"message": "failed to establish session",
		})
		return
	}
	sess.AddSuccess("Welcome, " + u.Username + "!")
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("save session %s: %v", sess.ID, err)
	}

	signed, err := s.tokens.Issue(u.ID)
	if err != nil {
		log.Printf("issue token for %s: %v", u.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "failed to issue token",
		})
		return
	}

	writeJSON(w, status, map[string]any{
		"success": true,
		"user":    userResponse(u),
		"token":   signed,
	})
}

// rejectLogin flashes and returns the constant-shaped credential failure.
func (s *Server) rejectLogin(w http.ResponseWriter, r *http.Request) {
	if sess := sessionFromContext(r.Context()); sess != nil {
		sess.AddError(genericAuthFailure)
		if err := s.sessions.Save(r.Context(), sess); err != nil {
			log.Printf("save session %s: %v", sess.ID, err)
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"success": false,
		"message": genericAuthFailure,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid JSON body"})
		return
	}

	verified, err := s.local.Verify(r.Context(), payload.Username, payload.Password)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeAuthenticationFailed {
			s.rejectLogin(w, r)
			return
		}
		log.Printf("verify credentials: %v", err)
		writeJSON(w, apperrors.CodeOf(err).HTTPStatus(), map[string]any{"success": false, "message": "service unavailable"})
		return
	}

	s.issueLogin(w, r, verified, http.StatusOK)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid JSON body"})
		return
	}
	if payload.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "password is required"})
		return
	}
	if s.users == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "service unavailable"})
		return
	}

	// Normalize the same way user.New stores them, so the existence check
	// sees the record a differently-spaced or differently-cased submission
	// would collide with.
	payload.Username = strings.TrimSpace(payload.Username)
	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))

	existing, err := s.users.FindByUsername(r.Context(), payload.Username)
	if err == nil && existing == nil && payload.Email != "" {
		existing, err = s.users.FindByGoogleIDOrEmail(r.Context(), "", payload.Email)
	}
	if err != nil {
		log.Printf("check existing account: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "service unavailable"})
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "account already exists"})
		return
	}

	hash, err := s.local.HashPassword(payload.Password)
	if err != nil {
		log.Printf("hash password: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "registration failed"})
		return
	}
	created, err := user.New(user.CreateUserInput{
		Username:     payload.Username,
		Email:        payload.Email,
		PasswordHash: hash,
	}, nil)
	if err != nil {
		writeJSON(w, apperrors.CodeOf(err).HTTPStatus(), map[string]any{"success": false, "message": err.Error()})
		return
	}
	if err := s.users.Insert(r.Context(), &created); err != nil {
		log.Printf("insert user: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "service unavailable"})
		return
	}

	s.issueLogin(w, r, created, http.StatusCreated)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := s.sessions.Destroy(r.Context(), w, sess); err != nil {
		log.Printf("destroy session: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "service unavailable"})
		return
	}

	state := uuid.NewString()
	sess.OAuthState = state
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("save oauth state: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "service unavailable"})
		return
	}
	http.Redirect(w, r, s.google.LoginURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "service unavailable"})
		return
	}

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		s.failFederatedLogin(w, r, "provider refused: "+errParam)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" || sess.OAuthState == "" || state != sess.OAuthState {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	sess.OAuthState = ""
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		log.Printf("clear oauth state: %v", err)
	}

	providerToken, err := s.google.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("exchange authorization code: %v", err)
		s.failFederatedLogin(w, r, genericAuthFailure)
		return
	}
	profile, err := s.google.FetchProfile(r.Context(), providerToken.AccessToken)
	if err != nil {
		log.Printf("fetch provider profile: %v", err)
		s.failFederatedLogin(w, r, genericAuthFailure)
		return
	}

	resolved, err := s.resolver.Resolve(r.Context(), profile)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeMissingRequiredAttribute {
			s.failFederatedLogin(w, r, genericAuthFailure)
			return
		}
		log.Printf("resolve federated identity: %v", err)
		writeJSON(w, apperrors.CodeOf(err).HTTPStatus(), map[string]any{"success": false, "message": "service unavailable"})
		return
	}

	renewed, err := s.sessions.Renew(r.Context(), w, sess, resolved.ID)
	if err != nil {
		log.Printf("issue session for %s: %v", resolved.ID, err)
		writeJSON(w, apperrors.CodeOf(err).HTTPStatus(), map[string]any{"success": false, "message": "failed to establish session"})
		return
	}
	renewed.AddSuccess("Welcome, " + resolved.Username + "!")
	if err := s.sessions.Save(r.Context(), renewed); err != nil {
		log.Printf("save session %s: %v", renewed.ID, err)
	}

	http.Redirect(w, r, "/redirect", http.StatusFound)
}

// failFederatedLogin flashes the failure and sends the browser back to the
// landing page, where the next render consumes the notice.
func (s *Server) failFederatedLogin(w http.ResponseWriter, r *http.Request, message string) {
	if sess := sessionFromContext(r.Context()); sess != nil {
		sess.AddError(message)
		if err := s.sessions.Save(r.Context(), sess); err != nil {
			log.Printf("save session %s: %v", sess.ID, err)
		}
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
