package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conces/conces-api/internal/dto"
	"github.com/conces/conces-api/internal/middleware"
	"github.com/conces/conces-api/internal/models"
	"github.com/conces/conces-api/internal/service"
)

type handlerAlumniRepo struct {
	items      []models.AlumniDetail
	lastFilter models.AlumniFilter
	updates    map[string]models.AlumniUpdate
}

func (r *handlerAlumniRepo) List(ctx context.Context, filter models.AlumniFilter) ([]models.AlumniDetail, int, error) {
	r.lastFilter = filter
	params := filter.ListParams.Normalize(nil, "")
	start := (params.Page - 1) * params.Limit
	if start >= len(r.items) {
		return []models.AlumniDetail{}, len(r.items), nil
	}
	end := start + params.Limit
	if end > len(r.items) {
		end = len(r.items)
	}
	return r.items[start:end], len(r.items), nil
}

func (r *handlerAlumniRepo) FindByID(ctx context.Context, id string) (*models.AlumniDetail, error) {
	for i := range r.items {
		if r.items[i].ID == id {
			return &r.items[i], nil
		}
	}
	return nil, fmt.Errorf("alumni %s: %w", id, sql.ErrNoRows)
}

func (r *handlerAlumniRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return false, nil
}

func (r *handlerAlumniRepo) Create(ctx context.Context, alumni *models.Alumni) error {
	r.items = append(r.items, models.AlumniDetail{Alumni: *alumni})
	return nil
}

func (r *handlerAlumniRepo) UpdatePartial(ctx context.Context, id string, update models.AlumniUpdate) error {
	if r.updates == nil {
		r.updates = map[string]models.AlumniUpdate{}
	}
	r.updates[id] = update
	return nil
}

func (r *handlerAlumniRepo) Deactivate(ctx context.Context, id string) error {
	return nil
}

type handlerAuditStub struct{}

func (handlerAuditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func seedAlumni(n int) []models.AlumniDetail {
	items := make([]models.AlumniDetail, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, models.AlumniDetail{Alumni: models.Alumni{
			ID:       fmt.Sprintf("a-%d", i+1),
			FullName: fmt.Sprintf("Alumni %d", i+1),
			Email:    fmt.Sprintf("alumni%d@conces.org", i+1),
			Active:   true,
		}})
	}
	return items
}

func newAlumniTestHandler(repo *handlerAlumniRepo) *AlumniHandler {
	svc := service.NewAlumniService(repo, handlerAuditStub{}, nil, 0, nil, nil, nil)
	return NewAlumniHandler(svc, nil)
}

func performAlumni(t *testing.T, h *AlumniHandler, method, target string, body []byte, claims *models.JWTClaims) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	switch {
	case method == http.MethodGet:
		h.List(c)
	case method == http.MethodPost:
		h.Bulk(c)
	}
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestAlumniHandlerListDefaults(t *testing.T) {
	repo := &handlerAlumniRepo{items: seedAlumni(3)}
	h := newAlumniTestHandler(repo)

	w := performAlumni(t, h, http.MethodGet, "/alumni", nil,
		&models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)

	var page models.Pagination
	require.NoError(t, json.Unmarshal(envelope["pagination"], &page))
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, 3, page.Total)

	var items []models.AlumniDetail
	require.NoError(t, json.Unmarshal(envelope["data"], &items))
	assert.Len(t, items, 3)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(envelope["meta"], &meta))
	assert.Equal(t, float64(1), meta["showing_from"])
	assert.Equal(t, float64(3), meta["showing_to"])
	// No cache configured, so the page was assembled from the repository.
	assert.Equal(t, false, meta["cache_hit"])
}

func TestAlumniHandlerListOutOfRangePage(t *testing.T) {
	repo := &handlerAlumniRepo{items: seedAlumni(5)}
	h := newAlumniTestHandler(repo)

	w := performAlumni(t, h, http.MethodGet, "/alumni?page=9&limit=2", nil,
		&models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)

	var items []models.AlumniDetail
	require.NoError(t, json.Unmarshal(envelope["data"], &items))
	assert.Empty(t, items)

	var page models.Pagination
	require.NoError(t, json.Unmarshal(envelope["pagination"], &page))
	assert.Equal(t, 9, page.Page)
	assert.Equal(t, 5, page.Total)
}

func TestAlumniHandlerListMalformedFilterIgnored(t *testing.T) {
	repo := &handlerAlumniRepo{items: seedAlumni(2)}
	h := newAlumniTestHandler(repo)

	w := performAlumni(t, h, http.MethodGet, "/alumni?graduation_year=abc&is_mentor=maybe", nil,
		&models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, repo.lastFilter.GraduationYear)
	assert.Nil(t, repo.lastFilter.IsMentor)
}

func TestAlumniHandlerListBranchAdminPinned(t *testing.T) {
	repo := &handlerAlumniRepo{items: seedAlumni(1)}
	h := newAlumniTestHandler(repo)
	branch := "b-1"

	w := performAlumni(t, h, http.MethodGet, "/alumni?branch_id=b-other", nil,
		&models.JWTClaims{UserID: "ba", Role: models.RoleBranchAdmin, BranchID: &branch})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b-1", repo.lastFilter.BranchID)
}

func TestAlumniHandlerBulkSettles(t *testing.T) {
	repo := &handlerAlumniRepo{items: seedAlumni(2)}
	h := newAlumniTestHandler(repo)

	payload, _ := json.Marshal(dto.BulkActionRequest{
		Action: dto.BulkActionSetMentor,
		IDs:    []string{"a-1", "missing", "a-2"},
	})
	w := performAlumni(t, h, http.MethodPost, "/alumni/bulk", payload,
		&models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)

	var res dto.BulkActionResponse
	require.NoError(t, json.Unmarshal(envelope["data"], &res))
	assert.Equal(t, 3, res.Total)
	assert.ElementsMatch(t, []string{"a-1", "a-2"}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "missing", res.Failed[0].ID)
}

func TestAlumniHandlerBulkInvalidBody(t *testing.T) {
	h := newAlumniTestHandler(&handlerAlumniRepo{})

	w := performAlumni(t, h, http.MethodPost, "/alumni/bulk", []byte(`{"ids":`),
		&models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	require.Equal(t, http.StatusBadRequest, w.Code)
}
