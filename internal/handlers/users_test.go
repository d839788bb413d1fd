package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/averycrane/gatehouse/internal/models"
	"github.com/averycrane/gatehouse/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserHandler(service *MockUserService, audit *MockAuditQuery) *UserHandler {
	if service == nil {
		service = &MockUserService{}
	}
	if audit == nil {
		audit = &MockAuditQuery{}
	}
	return NewUserHandler(service, audit)
}

func TestMeHandler(t *testing.T) {
	service := &MockUserService{
		GetProfileFunc: func(ctx context.Context, userID string) (*services.ProfileResponse, error) {
			return &services.ProfileResponse{
				UserResponse:    testUserResponse(),
				LinkedProviders: []string{"google"},
			}, nil
		},
	}
	h := newUserHandler(service, nil)

	w := httptest.NewRecorder()
	h.Me(w, authedRequest(t, "GET", "/users/me", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp services.ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "user_123", resp.ID)
	assert.Equal(t, []string{"google"}, resp.LinkedProviders)
}

func TestMeHandler_Unauthenticated(t *testing.T) {
	h := newUserHandler(nil, nil)

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest("GET", "/users/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateMeHandler(t *testing.T) {
	var got services.UpdateProfileRequest
	service := &MockUserService{
		UpdateProfileFunc: func(ctx context.Context, userID string, req services.UpdateProfileRequest) (*services.UserResponse, error) {
			got = req
			return testUserResponse(), nil
		},
	}
	h := newUserHandler(service, nil)

	name := "Alice Updated"
	w := httptest.NewRecorder()
	h.UpdateMe(w, authedRequest(t, "PATCH", "/users/me", UpdateProfileRequest{
		DisplayName:  &name,
		CustomFields: map[string]any{"team": "platform"},
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.DisplayName)
	assert.Equal(t, "Alice Updated", *got.DisplayName)
	assert.Nil(t, got.Locale)
	assert.Equal(t, "platform", got.CustomFields["team"])
}

func TestUpdateMeHandler_InvalidAvatarURL(t *testing.T) {
	h := newUserHandler(nil, nil)

	avatar := "not a url"
	w := httptest.NewRecorder()
	h.UpdateMe(w, authedRequest(t, "PATCH", "/users/me", UpdateProfileRequest{AvatarURL: &avatar}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMeHandler_ProfileValidationError(t *testing.T) {
	service := &MockUserService{
		UpdateProfileFunc: func(ctx context.Context, userID string, req services.UpdateProfileRequest) (*services.UserResponse, error) {
			return nil, models.NewValidationError("profile_field_invalid", "custom field must be a scalar value")
		},
	}
	h := newUserHandler(service, nil)

	w := httptest.NewRecorder()
	h.UpdateMe(w, authedRequest(t, "PATCH", "/users/me", UpdateProfileRequest{
		CustomFields: map[string]any{"bad": map[string]any{}},
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "profile_field_invalid", errorCode(t, w.Body.Bytes()))
}

func TestDeactivateMeHandler(t *testing.T) {
	var gotUserID string
	service := &MockUserService{
		DeactivateFunc: func(ctx context.Context, userID string) error {
			gotUserID = userID
			return nil
		},
	}
	h := newUserHandler(service, nil)

	w := httptest.NewRecorder()
	h.DeactivateMe(w, authedRequest(t, "DELETE", "/users/me", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user_123", gotUserID)
}

func TestListUsersHandler(t *testing.T) {
	var gotLimit, gotOffset int
	service := &MockUserService{
		ListUsersFunc: func(ctx context.Context, limit, offset int) ([]*services.UserResponse, error) {
			gotLimit = limit
			gotOffset = offset
			return []*services.UserResponse{testUserResponse()}, nil
		},
	}
	h := newUserHandler(service, nil)

	w := httptest.NewRecorder()
	h.ListUsers(w, authedRequest(t, "GET", "/admin/users?limit=25&offset=50", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25, gotLimit)
	assert.Equal(t, 50, gotOffset)

	var resp struct {
		Users []*services.UserResponse `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "alice@example.com", resp.Users[0].Email)
}

func TestMyAuditEventsHandler(t *testing.T) {
	var gotLimit, gotOffset int
	audit := &MockAuditQuery{
		ListByUserFunc: func(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error) {
			gotLimit = limit
			gotOffset = offset
			return []*models.AuditEvent{{Action: "login.success", UserID: userID}}, nil
		},
	}
	h := newUserHandler(nil, audit)

	w := httptest.NewRecorder()
	h.MyAuditEvents(w, authedRequest(t, "GET", "/users/me/audit-events?limit=10&offset=20", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, gotLimit)
	assert.Equal(t, 20, gotOffset)

	var resp struct {
		Events []*models.AuditEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "login.success", resp.Events[0].Action)
}
