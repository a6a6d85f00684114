package httpapi

import (
	"errors"
	"net/http"

	appAuth "github.com/session-hub/session-hub/internal/application/auth"
	domainUser "github.com/session-hub/session-hub/internal/domain/user"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User *domainUser.Principal `json:"user"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "Invalid request body.")
		return
	}
	res, err := s.authSvc.Register(r.Context(), appAuth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		var verr *appAuth.ValidationError
		switch {
		case errors.As(err, &verr):
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", verr.Message)
		case errors.Is(err, appAuth.ErrAlreadyExists):
			respondError(w, http.StatusConflict, "CONFLICT", "Email or username already in use.")
		default:
			s.respondInternal(w, r, err)
		}
		return
	}
	s.setSessionCookie(w, res.Token, res.ExpiresAt)
	respondJSON(w, http.StatusCreated, userResponse{User: res.Principal})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials.")
		return
	}
	res, err := s.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, appAuth.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials.")
		case errors.Is(err, appAuth.ErrDisabled):
			respondError(w, http.StatusForbidden, "FORBIDDEN", "Account disabled.")
		default:
			s.respondInternal(w, r, err)
		}
		return
	}
	s.setSessionCookie(w, res.Token, res.ExpiresAt)
	respondJSON(w, http.StatusOK, userResponse{User: res.Principal})
}

// me reports the signed-in user. A stale session is rotated and its
// replacement token re-issued as the cookie.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	token := extractToken(r, s.sessionCookieName)
	if token == "" {
		respondJSON(w, http.StatusOK, userResponse{})
		return
	}
	res, err := s.authSvc.Me(r.Context(), token)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	if res == nil {
		s.clearSessionCookie(w)
		respondJSON(w, http.StatusOK, userResponse{})
		return
	}
	if res.Refreshed {
		s.setSessionCookie(w, res.Token, res.ExpiresAt)
	}
	respondJSON(w, http.StatusOK, userResponse{User: res.Principal})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r, s.sessionCookieName)
	if err := s.authSvc.Logout(r.Context(), token); err != nil {
		s.logger.Warn().Err(err).Msg("logout failed")
	}
	s.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	p := principalFromContext(r.Context())
	if p == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	n, err := s.authSvc.LogoutAll(r.Context(), p.UserID)
	if err != nil {
		s.respondInternal(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "deleted": n})
}
