package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursedesk/coursedesk-api/internal/middleware"
	"github.com/coursedesk/coursedesk-api/internal/models"
)

type userServiceMock struct {
	listResp       []models.User
	listFilter     models.UserFilter
	getResp        *models.User
	getErr         error
	updatedProfile *models.User
	updatedRole    *models.User
	roleErr        error
	roleUserID     string
	roleReq        models.UpdateRoleRequest
}

func (m *userServiceMock) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getResp, nil
}

func (m *userServiceMock) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	m.listFilter = filter
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, nil
}

func (m *userServiceMock) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	return m.updatedProfile, nil
}

func (m *userServiceMock) UpdateRole(ctx context.Context, userID string, req models.UpdateRoleRequest) (*models.User, error) {
	m.roleUserID = userID
	m.roleReq = req
	if m.roleErr != nil {
		return nil, m.roleErr
	}
	return m.updatedRole, nil
}

func TestUserHandlerListFiltersByRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &userServiceMock{listResp: []models.User{{ID: "u1", Role: models.RoleTeacher}}}
	handler := NewUserHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/users?role=teacher&page=2", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.listFilter.Role)
	assert.Equal(t, models.RoleTeacher, *mockSvc.listFilter.Role)
	assert.Equal(t, 2, mockSvc.listFilter.Page)
}

func TestUserHandlerListUnknownRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewUserHandler(&userServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/users?role=principal", nil)
	c.Request = req

	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandlerUpdateRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &userServiceMock{updatedRole: &models.User{ID: "u2", Role: models.RoleAdmin}}
	handler := NewUserHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/users/u2/role", bytes.NewBufferString(`{"role":"Admin"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "u2"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.UpdateRole(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u2", mockSvc.roleUserID)
	assert.Equal(t, "Admin", mockSvc.roleReq.Role)
}

func TestUserHandlerUpdateProfileRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewUserHandler(&userServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/users/me", bytes.NewBufferString(`{"given_name":"New"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.UpdateProfile(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
