package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"nestling/internal/store"
	"nestling/internal/types"
)

// addRecordRequest carries a new record. Tags may arrive as a list or as
// the raw comma-separated form-field string; the raw form wins when set.
type addRecordRequest struct {
	types.Record
	TagsRaw string `json:"tags_raw,omitempty"`
}

func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)

	var req addRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	rec := req.Record
	if req.TagsRaw != "" {
		rec.Tags = types.ParseTags(req.TagsRaw)
	}
	rec.CreatedBy = actx.User.ID

	if err := s.auth.AuthorizeBaby(actx, rec.BabyID); err != nil {
		writeStoreError(w, err)
		return
	}

	if _, err := s.store.AddRecord(&rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.records.WithLabelValues(string(rec.Type)).Inc()
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)

	rec, err := s.store.GetRecord(chi.URLParam(r, "recordID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.auth.AuthorizeBaby(actx, rec.BabyID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// recordPatch holds the updatable fields; nil means "leave as is".
type recordPatch struct {
	HappenedAt  *time.Time `json:"happened_at"`
	Note        *string    `json:"note"`
	Tags        *[]string  `json:"tags"`
	TagsRaw     *string    `json:"tags_raw"`
	Method      *string    `json:"method"`
	Side        *string    `json:"side"`
	AmountML    *float64   `json:"amount_ml"`
	DurationMin *float64   `json:"duration_min"`
	Kind        *string    `json:"kind"`
	// Raw so an explicit null (baby is still asleep) is distinguishable
	// from the field being absent.
	EndedAt  json.RawMessage `json:"ended_at"`
	Food     *string         `json:"food"`
	Amount   *string         `json:"amount"`
	Reaction *string         `json:"reaction"`
	HeightCM *float64        `json:"height_cm"`
	WeightKG *float64        `json:"weight_kg"`
	HeadCM   *float64        `json:"head_cm"`
	ImageURL *string         `json:"image_url"`
	Caption  *string         `json:"caption"`
}

func (p *recordPatch) apply(rec *types.Record) error {
	if p.HappenedAt != nil {
		rec.HappenedAt = *p.HappenedAt
	}
	if p.Note != nil {
		rec.Note = *p.Note
	}
	if p.Tags != nil {
		rec.Tags = *p.Tags
	}
	if p.TagsRaw != nil {
		rec.Tags = types.ParseTags(*p.TagsRaw)
	}
	if p.Method != nil {
		rec.Method = *p.Method
	}
	if p.Side != nil {
		rec.Side = *p.Side
	}
	if p.AmountML != nil {
		rec.AmountML = *p.AmountML
	}
	if p.DurationMin != nil {
		rec.DurationMin = *p.DurationMin
	}
	if p.Kind != nil {
		rec.Kind = *p.Kind
	}
	if len(p.EndedAt) > 0 {
		if string(p.EndedAt) == "null" {
			rec.EndedAt = nil
		} else {
			var t time.Time
			if err := json.Unmarshal(p.EndedAt, &t); err != nil {
				return fmt.Errorf("invalid ended_at: %w", err)
			}
			rec.EndedAt = &t
		}
	}
	if p.Food != nil {
		rec.Food = *p.Food
	}
	if p.Amount != nil {
		rec.Amount = *p.Amount
	}
	if p.Reaction != nil {
		rec.Reaction = *p.Reaction
	}
	if p.HeightCM != nil {
		rec.HeightCM = *p.HeightCM
	}
	if p.WeightKG != nil {
		rec.WeightKG = *p.WeightKG
	}
	if p.HeadCM != nil {
		rec.HeadCM = *p.HeadCM
	}
	if p.ImageURL != nil {
		rec.ImageURL = *p.ImageURL
	}
	if p.Caption != nil {
		rec.Caption = *p.Caption
	}
	return nil
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)

	rec, err := s.store.GetRecord(chi.URLParam(r, "recordID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.auth.AuthorizeBaby(actx, rec.BabyID); err != nil {
		writeStoreError(w, err)
		return
	}

	var patch recordPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := patch.apply(rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateRecord(rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)

	rec, err := s.store.GetRecord(chi.URLParam(r, "recordID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.auth.AuthorizeBaby(actx, rec.BabyID); err != nil {
		writeStoreError(w, err)
		return
	}

	if err := s.store.DeleteRecord(rec.ID); err != nil {
		writeStoreError(w, err)
		return
	}

	// Snapshot deletion garbage-collects the image once no other snapshot
	// references the same stored file.
	if rec.Type == types.RecordSnapshot && rec.ImageURL != "" {
		n, err := s.store.CountSnapshotsWithImage(rec.ImageURL)
		if err == nil && n == 0 {
			if err := s.images.Remove(rec.ImageURL); err != nil {
				s.logger.Warn("image gc failed", zap.Error(err))
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)
	babyID := chi.URLParam(r, "babyID")
	if err := s.auth.AuthorizeBaby(actx, babyID); err != nil {
		writeStoreError(w, err)
		return
	}

	q := r.URL.Query()
	opts, err := listOptionsFromQuery(babyID, q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := s.store.ListRecords(opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

func (s *Server) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)
	babyID := chi.URLParam(r, "babyID")
	if err := s.auth.AuthorizeBaby(actx, babyID); err != nil {
		writeStoreError(w, err)
		return
	}

	q := r.URL.Query()
	limit := intQuery(q.Get("limit"), 20)
	offset := intQuery(q.Get("offset"), 0)

	snaps, err := s.store.GetSnapshots(babyID, q.Get("tag"), limit, offset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

func (s *Server) handleGetMeasurements(w http.ResponseWriter, r *http.Request) {
	actx := authContext(r)
	babyID := chi.URLParam(r, "babyID")
	if err := s.auth.AuthorizeBaby(actx, babyID); err != nil {
		writeStoreError(w, err)
		return
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(timeLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = t
	}

	recs, err := s.store.GetMeasurementRecords(babyID, since)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"measurements": recs,
		"count":        len(recs),
	})
}

func (s *Server) handleGrowthSeries(w http.ResponseWriter, r *http.Request) {
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

	series, err := s.store.GrowthSeries(babyID, profile.BirthDate)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"baby_id": babyID,
		"points":  series,
	})
}

// listOptionsFromQuery composes store filter/sort/pagination options from
// query parameters: type, from, to, tag, sort=asc|desc, limit, offset.
func listOptionsFromQuery(babyID string, q url.Values) (store.ListOptions, error) {
	opts := store.ListOptions{
		BabyID: babyID,
		Type:   types.RecordType(q.Get("type")),
		Tag:    q.Get("tag"),
		Asc:    q.Get("sort") == "asc",
		Limit:  intQuery(q.Get("limit"), 50),
		Offset: intQuery(q.Get("offset"), 0),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(timeLayout, v)
		if err != nil {
			return opts, fmt.Errorf("invalid from timestamp")
		}
		opts.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(timeLayout, v)
		if err != nil {
			return opts, fmt.Errorf("invalid to timestamp")
		}
		opts.To = t
	}
	return opts, nil
}

func intQuery(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
