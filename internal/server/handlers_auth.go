package server

import (
	"net/http"

	"nestling/internal/types"
)

type registerRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	DisplayName   string `json:"display_name"`
	InviteCode    string `json:"invite_code"`
	HouseholdName string `json:"household_name"`
}

type sessionResponse struct {
	Token     string           `json:"token"`
	ExpiresAt string           `json:"expires_at"`
	User      *types.User      `json:"user"`
	Household *types.Household `json:"household"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	actx, err := s.auth.Register(req.Email, req.Password, req.DisplayName, req.InviteCode, req.HouseholdName)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	sess, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.Format(timeLayout),
		User:      actx.User,
		Household: actx.Household,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	sess, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	actx, err := s.auth.Authenticate(sess.Token)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.Format(timeLayout),
		User:      actx.User,
		Household: actx.Household,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(bearerToken(r)); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":      actx.User,
		"household": actx.Household,
	})
}
