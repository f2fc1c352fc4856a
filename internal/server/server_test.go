package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"nestling/internal/auth"
	"nestling/internal/config"
	"nestling/internal/images"
	"nestling/internal/store"
	"nestling/internal/types"
)

// testServer bundles a wired Server with its router for handler tests.
type testServer struct {
	srv     *Server
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Server.Metrics = true

	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	imgs, err := images.New(cfg.ImagesDir(), cfg.Images.MaxUploadBytes, cfg.Images.MaxEdge, cfg.Images.JPEGQuality)
	require.NoError(t, err)

	authSvc := auth.New(st, time.Hour, bcrypt.MinCost, true)
	srv := New(cfg, st, authSvc, imgs, zap.NewNop())
	return &testServer{srv: srv, handler: srv.Routes()}
}

// do sends a request through the router and decodes the JSON response into out
// (when out is non-nil).
func (ts *testServer) do(t *testing.T, method, path, token string, body, out interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	if out != nil && rr.Code < 300 {
		require.NoError(t, json.NewDecoder(rr.Body).Decode(out),
			"decoding %s %s response", method, path)
	}
	return rr
}

// register creates an account and returns its session token.
func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	var resp sessionResponse
	rr := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":        email,
		"password":     "hunter2hunter2",
		"display_name": "Tester",
	}, &resp)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// createBaby adds a baby to the caller's household and returns its ID.
func (ts *testServer) createBaby(t *testing.T, token, name string) string {
	t.Helper()
	var baby types.BabyProfile
	rr := ts.do(t, http.MethodPost, "/api/babies", token, map[string]string{
		"name":       name,
		"birth_date": "2025-11-15",
		"sex":        "f",
	}, &baby)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NotEmpty(t, baby.BabyID)
	return baby.BabyID
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	var resp map[string]interface{}
	rr := ts.do(t, http.MethodGet, "/healthz", "", nil, &resp)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/babies", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/babies", "not-a-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRegisterLoginLogout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "mom@example.com")

	var me map[string]*json.RawMessage
	rr := ts.do(t, http.MethodGet, "/api/auth/me", token, nil, &me)
	require.Equal(t, http.StatusOK, rr.Code)

	var user types.User
	require.NoError(t, json.Unmarshal(*me["user"], &user))
	assert.Equal(t, "mom@example.com", user.Email)

	// Wrong password is rejected without leaking which part was wrong.
	rr = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "mom@example.com",
		"password": "wrong-password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var resp sessionResponse
	rr = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "mom@example.com",
		"password": "hunter2hunter2",
	}, &resp)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, resp.Token)

	rr = ts.do(t, http.MethodPost, "/api/auth/logout", resp.Token, nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/auth/me", resp.Token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestJoinHouseholdByInvite(t *testing.T) {
	ts := newTestServer(t)

	var first sessionResponse
	rr := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":          "mom@example.com",
		"password":       "hunter2hunter2",
		"household_name": "The Does",
	}, &first)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.NotEmpty(t, first.Household.InviteCode)

	var second sessionResponse
	rr = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":       "dad@example.com",
		"password":    "hunter2hunter2",
		"invite_code": first.Household.InviteCode,
	}, &second)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, first.Household.ID, second.Household.ID)
}

func TestBabyProfileFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "mom@example.com")
	babyID := ts.createBaby(t, token, "June")

	var list struct {
		Babies []*types.BabyProfile `json:"babies"`
		Count  int                  `json:"count"`
	}
	rr := ts.do(t, http.MethodGet, "/api/babies", token, nil, &list)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "June", list.Babies[0].Name)

	var prof struct {
		Profile   *types.BabyProfile `json:"profile"`
		AgeMonths int                `json:"age_months"`
		AgeDays   int                `json:"age_days"`
	}
	rr = ts.do(t, http.MethodGet, "/api/babies/"+babyID+"/profile", token, nil, &prof)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, babyID, prof.Profile.BabyID)
	assert.GreaterOrEqual(t, prof.AgeMonths, 0)

	note := "allergic to none so far"
	rr = ts.do(t, http.MethodPut, "/api/babies/"+babyID+"/profile", token, map[string]string{
		"name": "June Rose",
		"note": note,
	}, &prof.Profile)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "June Rose", prof.Profile.Name)
	assert.Equal(t, note, prof.Profile.Note)

	// Bad date format is rejected, profile untouched.
	rr = ts.do(t, http.MethodPut, "/api/babies/"+babyID+"/profile", token, map[string]string{
		"birth_date": "15/11/2025",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "mom@example.com")
	babyID := ts.createBaby(t, token, "June")

	happened := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	var created types.Record
	rr := ts.do(t, http.MethodPost, "/api/records", token, map[string]interface{}{
		"baby_id":     babyID,
		"type":        "feeding",
		"happened_at": happened.Format(time.RFC3339),
		"method":      "bottle",
		"amount_ml":   120,
		"tags_raw":    "Night, fussy",
	}, &created)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"night", "fussy"}, created.Tags)

	var fetched types.Record
	rr = ts.do(t, http.MethodGet, "/api/records/"+created.ID, token, nil, &fetched)
	require.Equal(t, http.StatusOK, rr.Code)
	if diff := cmp.Diff(created, fetched, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("fetched record differs from created (-want +got):\n%s", diff)
	}

	var patched types.Record
	rr = ts.do(t, http.MethodPatch, "/api/records/"+created.ID, token, map[string]interface{}{
		"amount_ml": 140,
		"note":      "finished the bottle",
	}, &patched)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 140.0, patched.AmountML)
	assert.Equal(t, "finished the bottle", patched.Note)
	assert.Equal(t, created.CreatedAt.Unix(), patched.CreatedAt.Unix())

	// Type changes are rejected.
	rr = ts.do(t, http.MethodPatch, "/api/records/"+created.ID, token, map[string]interface{}{
		"type": "diaper",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var list struct {
		Records []*types.Record `json:"records"`
		Count   int             `json:"count"`
	}
	rr = ts.do(t, http.MethodGet, "/api/babies/"+babyID+"/records?type=feeding&tag=night", token, nil, &list)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, list.Count)

	rr = ts.do(t, http.MethodDelete, "/api/records/"+created.ID, token, nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/api/records/"+created.ID, token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSleepEndClearedByNull(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "mom@example.com")
	babyID := ts.createBaby(t, token, "June")

	start := time.Date(2026, 2, 10, 13, 30, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	var created types.Record
	rr := ts.do(t, http.MethodPost, "/api/records", token, map[string]interface{}{
		"baby_id":     babyID,
		"type":        "sleep",
		"happened_at": start.Format(time.RFC3339),
		"ended_at":    end.Format(time.RFC3339),
	}, &created)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NotNil(t, created.EndedAt)

	// An explicit null reverts a mistakenly entered wake time to
	// "still asleep"; an absent field leaves it untouched.
	var patched types.Record
	rr = ts.do(t, http.MethodPatch, "/api/records/"+created.ID, token, map[string]interface{}{
		"ended_at": nil,
	}, &patched)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Nil(t, patched.EndedAt)

	rr = ts.do(t, http.MethodPatch, "/api/records/"+created.ID, token, map[string]interface{}{
		"note": "long nap",
	}, &patched)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, patched.EndedAt)

	newEnd := start.Add(2 * time.Hour)
	rr = ts.do(t, http.MethodPatch, "/api/records/"+created.ID, token, map[string]interface{}{
		"ended_at": newEnd.Format(time.RFC3339),
	}, &patched)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, patched.EndedAt)
	assert.Equal(t, newEnd, patched.EndedAt.UTC())

	rr = ts.do(t, http.MethodPatch, "/api/records/"+created.ID, token, map[string]interface{}{
		"ended_at": "not-a-time",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHouseholdIsolation(t *testing.T) {
	ts := newTestServer(t)
	momToken := ts.register(t, "mom@example.com")
	babyID := ts.createBaby(t, momToken, "June")

	strangerToken := ts.register(t, "stranger@example.com")

	rr := ts.do(t, http.MethodGet, "/api/babies/"+babyID+"/profile", strangerToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/records", strangerToken, map[string]interface{}{
		"baby_id":     babyID,
		"type":        "diaper",
		"kind":        "wet",
		"happened_at": time.Now().UTC().Format(time.RFC3339),
	}, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Records of a foreign household are invisible even by direct ID.
	var created types.Record
	rr = ts.do(t, http.MethodPost, "/api/records", momToken, map[string]interface{}{
		"baby_id":     babyID,
		"type":        "diaper",
		"kind":        "wet",
		"happened_at": time.Now().UTC().Format(time.RFC3339),
	}, &created)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/records/"+created.ID, strangerToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGrowthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "mom@example.com")
	babyID := ts.createBaby(t, token, "June")

	for i, m := range []struct {
		when   time.Time
		height float64
		weight float64
	}{
		{time.Date(2025, 12, 20, 10, 0, 0, 0, time.UTC), 52, 3.9},
		{time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), 54, 4.4},
		{time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC), 55, 4.6},
	} {
		rr := ts.do(t, http.MethodPost, "/api/records", token, map[string]interface{}{
			"baby_id":     babyID,
			"type":        "measurement",
			"happened_at": m.when.Format(time.RFC3339),
			"height_cm":   m.height,
			"weight_kg":   m.weight,
		}, nil)
		require.Equal(t, http.StatusCreated, rr.Code, "measurement %d", i)
	}

	var resp struct {
		BabyID string              `json:"baby_id"`
		Points []types.GrowthPoint `json:"points"`
	}
	rr := ts.do(t, http.MethodGet, "/api/babies/"+babyID+"/growth", token, nil, &resp)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, resp.Points, 2)

	// The latest measurement within a month wins.
	jan := resp.Points[1]
	assert.Equal(t, types.YearMonth{Year: 2026, Month: 1}, jan.YearMonth)
	assert.Equal(t, 55.0, jan.HeightCM)
	assert.Equal(t, 4.6, jan.WeightKG)
}

func TestSnapshotImageFlow(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "mom@example.com")
	babyID := ts.createBaby(t, token, "June")

	// Upload a generated PNG through the multipart endpoint.
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("image", "june.png")
	require.NoError(t, err)
	require.NoError(t, png.Encode(fw, testImage(400, 300)))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var uploaded map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&uploaded))
	imageURL := uploaded["url"]
	require.NotEmpty(t, imageURL)
	require.True(t, ts.srv.images.Exists(imageURL))

	// Stored file is served back.
	getRR := ts.do(t, http.MethodGet, imageURL, "", nil, nil)
	assert.Equal(t, http.StatusOK, getRR.Code)

	var snap types.Record
	crr := ts.do(t, http.MethodPost, "/api/records", token, map[string]interface{}{
		"baby_id":     babyID,
		"type":        "snapshot",
		"happened_at": time.Now().UTC().Format(time.RFC3339),
		"image_url":   imageURL,
		"caption":     "first smile",
		"tags_raw":    "milestone",
	}, &snap)
	require.Equal(t, http.StatusCreated, crr.Code, crr.Body.String())

	var snaps struct {
		Snapshots []*types.Record `json:"snapshots"`
		Count     int             `json:"count"`
	}
	srr := ts.do(t, http.MethodGet, "/api/babies/"+babyID+"/snapshots?tag=milestone", token, nil, &snaps)
	require.Equal(t, http.StatusOK, srr.Code)
	require.Equal(t, 1, snaps.Count)
	assert.Equal(t, "first smile", snaps.Snapshots[0].Caption)

	// Deleting the last snapshot referencing an image garbage-collects
	// the file.
	drr := ts.do(t, http.MethodDelete, "/api/records/"+snap.ID, token, nil, nil)
	require.Equal(t, http.StatusOK, drr.Code)
	assert.False(t, ts.srv.images.Exists(imageURL))
}

func TestUploadRejectsGarbage(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "mom@example.com")

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("image", "junk.bin")
	require.NoError(t, err)
	_, err = fw.Write([]byte("definitely not an image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, "/healthz", "", nil, nil)

	rr := ts.do(t, http.MethodGet, "/metrics", "", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "nestling_http_requests_total")
}

func TestListPagination(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "mom@example.com")
	babyID := ts.createBaby(t, token, "June")

	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rr := ts.do(t, http.MethodPost, "/api/records", token, map[string]interface{}{
			"baby_id":     babyID,
			"type":        "diaper",
			"kind":        "wet",
			"happened_at": base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
		}, nil)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	var page struct {
		Records []*types.Record `json:"records"`
		Count   int             `json:"count"`
	}
	rr := ts.do(t, http.MethodGet, fmt.Sprintf("/api/babies/%s/records?limit=2&offset=2&sort=asc", babyID), token, nil, &page)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 2, page.Count)
	assert.Equal(t, base.Add(2*time.Hour), page.Records[0].HappenedAt.UTC())
	assert.Equal(t, base.Add(3*time.Hour), page.Records[1].HappenedAt.UTC())
}

// TestRunShutdown exercises the full Run loop: listener, watcher and purge
// goroutines must all exit cleanly on cancel.
func TestRunShutdown(t *testing.T) {
	ts := newTestServer(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ts.srv.cfg.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.srv.Run(ctx, "") }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	return img
}
