package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/sentraops/siteops-api/internal/dto"
	"github.com/sentraops/siteops-api/internal/middleware"
	"github.com/sentraops/siteops-api/internal/models"
	"github.com/sentraops/siteops-api/internal/service"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
)

type transitionServiceMock struct {
	params service.TransitionParams
	result *dto.TransitionResult
	err    error
}

func (m *transitionServiceMock) TransitionWithLock(ctx context.Context, params service.TransitionParams) (*dto.TransitionResult, error) {
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func newTransitionContext(t *testing.T, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, "/workorders/wo-1/transitions", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "wo-1"}}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func TestTransitionHandlerSuccess(t *testing.T) {
	mock := &transitionServiceMock{result: &dto.TransitionResult{
		Success: true, EntityKind: models.EntityKindWorkOrder, EntityID: "wo-1",
		FromStatus: models.StatusAssigned, ToStatus: models.StatusInProgress,
	}}
	h := NewTransitionHandler(mock)

	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	c, w := newTransitionContext(t, dto.TransitionRequest{ToStatus: models.StatusInProgress, Reason: "start"}, claims)

	h.TransitionWorkOrder(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.EntityKindWorkOrder, mock.params.EntityKind)
	require.Equal(t, "wo-1", mock.params.EntityID)
	require.Equal(t, claims, mock.params.Actor)
	require.False(t, mock.params.SkipPermissions)
}

func TestTransitionHandlerUnauthenticated(t *testing.T) {
	h := NewTransitionHandler(&transitionServiceMock{})
	c, w := newTransitionContext(t, dto.TransitionRequest{ToStatus: models.StatusInProgress, Reason: "start"}, nil)

	h.TransitionWorkOrder(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTransitionHandlerLockContentionSetsRetryAfter(t *testing.T) {
	mock := &transitionServiceMock{err: appErrors.ErrLockAcquisition}
	h := NewTransitionHandler(mock)

	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	c, w := newTransitionContext(t, dto.TransitionRequest{ToStatus: models.StatusInProgress, Reason: "start"}, claims)

	h.TransitionWorkOrder(c)
	require.Equal(t, appErrors.ErrLockAcquisition.Status, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestTransitionHandlerInvalidBody(t *testing.T) {
	h := NewTransitionHandler(&transitionServiceMock{})
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/jobs/job-1/transitions", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	h.TransitionJob(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
