package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListBabies(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)

	babies, err := s.store.ListBabies(actx.Household.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"babies": babies,
		"count":  len(babies),
	})
}

type createBabyRequest struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD
	Sex       string `json:"sex"`
}

func (s *Server) handleCreateBaby(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)

	var req createBabyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	birth, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid birth_date, want YYYY-MM-DD")
		return
	}

	baby, err := s.store.CreateBaby(actx.Household.ID, req.Name, birth, req.Sex)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, baby)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)
	babyID := chi.URLParam(r, "babyID")
	if err := s.auth.AuthorizeBaby(actx, babyID); err != nil {
		writeStoreError(w, err)
		return
	}

	profile, err := s.store.GetProfile(babyID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	months, days := profile.AgeAt(time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile":    profile,
		"age_months": months,
		"age_days":   days,
	})
}

type updateProfileRequest struct {
	Name      *string `json:"name"`
	BirthDate *string `json:"birth_date"` // YYYY-MM-DD
	Sex       *string `json:"sex"`
	AvatarURL *string `json:"avatar_url"`
	Note      *string `json:"note"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)
	babyID := chi.URLParam(r, "babyID")
	if err := s.auth.AuthorizeBaby(actx, babyID); err != nil {
		writeStoreError(w, err)
		return
	}

	profile, err := s.store.GetProfile(babyID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	if req.Name != nil {
		profile.Name = *req.Name
	}
	if req.BirthDate != nil {
		birth, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid birth_date, want YYYY-MM-DD")
			return
		}
		profile.BirthDate = birth
	}
	if req.Sex != nil {
		profile.Sex = *req.Sex
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = *req.AvatarURL
	}
	if req.Note != nil {
		profile.Note = *req.Note
	}

	if err := s.store.UpdateProfile(profile); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
