package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/middleware"
	"github.com/sentraops/siteops-api/internal/models"
)

type changesetServiceMock struct {
	listQuery dto.ChangeSetQuery
	applyReq  dto.ApplyRecommendationsRequest
	applyErr  error
}

func (m *changesetServiceMock) Create(ctx context.Context, req dto.CreateChangeSetRequest, actor *models.JWTClaims) (*models.ChangeSet, error) {
	return &models.ChangeSet{ID: "cs-1", Description: req.Description, Status: models.ChangeSetStatusPending}, nil
}

func (m *changesetServiceMock) List(ctx context.Context, query dto.ChangeSetQuery) ([]models.ChangeSet, error) {
	m.listQuery = query
	return nil, nil
}

func (m *changesetServiceMock) Get(ctx context.Context, id string) (*dto.ChangeSetDetail, error) {
	return &dto.ChangeSetDetail{ChangeSet: models.ChangeSet{ID: id}}, nil
}

func (m *changesetServiceMock) ApplyRecommendations(ctx context.Context, changesetID string, req dto.ApplyRecommendationsRequest, actor *models.JWTClaims) (*dto.ChangeSetDetail, error) {
	m.applyReq = req
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	return &dto.ChangeSetDetail{ChangeSet: models.ChangeSet{ID: changesetID, Status: models.ChangeSetStatusApplied}}, nil
}

func (m *changesetServiceMock) Rollback(ctx context.Context, changesetID string, req dto.RollbackChangeSetRequest, actor *models.JWTClaims) (*models.RollbackResult, error) {
	return &models.RollbackResult{ChangeSetID: changesetID, FinalStatus: models.ChangeSetStatusRolledBack}, nil
}

func adminContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c, w
}

func TestChangeSetHandlerListParsesFilters(t *testing.T) {
	mock := &changesetServiceMock{}
	h := NewChangeSetHandler(mock)

	c, w := adminContext(t, http.MethodGet, "/changesets?status=applied,%20rolled_back&approved_by=admin-1&limit=20", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []models.ChangeSetStatus{models.ChangeSetStatusApplied, models.ChangeSetStatusRolledBack}, mock.listQuery.Status)
	require.Equal(t, "admin-1", mock.listQuery.ApprovedBy)
	require.Equal(t, 20, mock.listQuery.Limit)
}

func TestChangeSetHandlerApply(t *testing.T) {
	mock := &changesetServiceMock{}
	h := NewChangeSetHandler(mock)

	payload, _ := json.Marshal(dto.ApplyRecommendationsRequest{
		Recommendations: []dto.Recommendation{
			{EntityKind: "site", Action: "CREATE", Payload: json.RawMessage(`{"code":"BLR-01"}`)},
		},
	})
	c, w := adminContext(t, http.MethodPost, "/changesets/cs-1/apply", payload)
	c.Params = gin.Params{{Key: "id", Value: "cs-1"}}
	h.Apply(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mock.applyReq.Recommendations, 1)
}

func TestChangeSetHandlerApplyInvalidBody(t *testing.T) {
	h := NewChangeSetHandler(&changesetServiceMock{})

	c, w := adminContext(t, http.MethodPost, "/changesets/cs-1/apply", []byte(`invalid`))
	c.Params = gin.Params{{Key: "id", Value: "cs-1"}}
	h.Apply(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeSetHandlerCreateRequiresAuth(t *testing.T) {
	h := NewChangeSetHandler(&changesetServiceMock{})

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateChangeSetRequest{Description: "x"})
	req, _ := http.NewRequest(http.MethodPost, "/changesets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
