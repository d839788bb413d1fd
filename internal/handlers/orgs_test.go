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

func TestCreateOrgHandler(t *testing.T) {
	var gotName, gotUser string
	service := &MockOrgService{
		CreateOrgFunc: func(ctx context.Context, creatorUserID, name, slug string) (*services.OrgResponse, error) {
			gotUser = creatorUserID
			gotName = name
			return testOrgResponse(), nil
		},
	}
	h := NewOrgHandler(service)

	w := httptest.NewRecorder()
	h.Create(w, authedRequest(t, "POST", "/orgs", CreateOrgRequest{Name: "Acme"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "user_123", gotUser)
	assert.Equal(t, "Acme", gotName)
}

func TestCreateOrgHandler_SlugConflict(t *testing.T) {
	service := &MockOrgService{
		CreateOrgFunc: func(ctx context.Context, creatorUserID, name, slug string) (*services.OrgResponse, error) {
			return nil, models.ErrOrgSlugExists
		},
	}
	h := NewOrgHandler(service)

	w := httptest.NewRecorder()
	h.Create(w, authedRequest(t, "POST", "/orgs", CreateOrgRequest{Name: "Acme", Slug: "acme"}))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "org_slug_exists", errorCode(t, w.Body.Bytes()))
}

func TestCreateOrgHandler_Unauthenticated(t *testing.T) {
	h := NewOrgHandler(&MockOrgService{})

	w := httptest.NewRecorder()
	h.Create(w, jsonRequest(t, "POST", "/orgs", CreateOrgRequest{Name: "Acme"}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListOrgsHandler(t *testing.T) {
	h := NewOrgHandler(&MockOrgService{})

	w := httptest.NewRecorder()
	h.List(w, authedRequest(t, "GET", "/orgs", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Organizations []*services.OrgResponse `json:"organizations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Organizations, 1)
	assert.Equal(t, "org_1", resp.Organizations[0].ID)
}

func TestListMembersHandler(t *testing.T) {
	var gotOrgID, gotRequester string
	service := &MockOrgService{
		ListMembersFunc: func(ctx context.Context, orgID, requesterUserID string) ([]*services.MemberResponse, error) {
			gotOrgID = orgID
			gotRequester = requesterUserID
			return []*services.MemberResponse{
				{UserID: "user_123", Role: "admin"},
				{UserID: "user_456", Role: "member"},
			}, nil
		},
	}
	h := NewOrgHandler(service)

	req := authedRequest(t, "GET", "/orgs/org_1/members", nil)
	req = withURLParam(req, "orgID", "org_1")

	w := httptest.NewRecorder()
	h.ListMembers(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "org_1", gotOrgID)
	assert.Equal(t, "user_123", gotRequester)

	var resp struct {
		Members []*services.MemberResponse `json:"members"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Members, 2)
	assert.Equal(t, "member", resp.Members[1].Role)
}

func TestListMembersHandler_Forbidden(t *testing.T) {
	service := &MockOrgService{
		ListMembersFunc: func(ctx context.Context, orgID, requesterUserID string) ([]*services.MemberResponse, error) {
			return nil, models.ErrForbidden
		},
	}
	h := NewOrgHandler(service)

	req := authedRequest(t, "GET", "/orgs/org_1/members", nil)
	req = withURLParam(req, "orgID", "org_1")

	w := httptest.NewRecorder()
	h.ListMembers(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInviteHandler(t *testing.T) {
	var gotOrgID, gotEmail string
	var gotRole models.Role
	service := &MockOrgService{
		InviteFunc: func(ctx context.Context, orgID, inviterUserID, email string, role models.Role) (*services.InvitationResponse, error) {
			gotOrgID = orgID
			gotEmail = email
			gotRole = role
			return &services.InvitationResponse{ID: "inv_1", OrgID: orgID, Email: email, Role: string(role)}, nil
		},
	}
	h := NewOrgHandler(service)

	req := authedRequest(t, "POST", "/orgs/org_1/invitations", InviteRequest{
		Email: "bob@example.com",
		Role:  "member",
	})
	req = withURLParam(req, "orgID", "org_1")

	w := httptest.NewRecorder()
	h.Invite(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "org_1", gotOrgID)
	assert.Equal(t, "bob@example.com", gotEmail)
	assert.Equal(t, models.RoleMember, gotRole)
}

func TestInviteHandler_InvalidRoleRejectedBeforeService(t *testing.T) {
	var serviceCalled bool
	service := &MockOrgService{
		InviteFunc: func(ctx context.Context, orgID, inviterUserID, email string, role models.Role) (*services.InvitationResponse, error) {
			serviceCalled = true
			return nil, nil
		},
	}
	h := NewOrgHandler(service)

	req := authedRequest(t, "POST", "/orgs/org_1/invitations", InviteRequest{
		Email: "bob@example.com",
		Role:  "owner",
	})
	req = withURLParam(req, "orgID", "org_1")

	w := httptest.NewRecorder()
	h.Invite(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, serviceCalled)
}

func TestInviteHandler_Forbidden(t *testing.T) {
	service := &MockOrgService{
		InviteFunc: func(ctx context.Context, orgID, inviterUserID, email string, role models.Role) (*services.InvitationResponse, error) {
			return nil, models.ErrForbidden
		},
	}
	h := NewOrgHandler(service)

	req := authedRequest(t, "POST", "/orgs/org_1/invitations", InviteRequest{
		Email: "bob@example.com",
		Role:  "member",
	})
	req = withURLParam(req, "orgID", "org_1")

	w := httptest.NewRecorder()
	h.Invite(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAcceptInvitationHandler(t *testing.T) {
	var gotToken, gotEmail string
	service := &MockOrgService{
		AcceptInvitationFunc: func(ctx context.Context, opaqueToken, userID, userEmail string) (*services.OrgResponse, error) {
			gotToken = opaqueToken
			gotEmail = userEmail
			return testOrgResponse(), nil
		},
	}
	h := NewOrgHandler(service)

	w := httptest.NewRecorder()
	h.AcceptInvitation(w, authedRequest(t, "POST", "/invitations/accept", AcceptInvitationRequest{
		Token: "inv_1.secret",
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inv_1.secret", gotToken)
	// The email comes from the verified token claims, not the request body
	assert.Equal(t, "alice@example.com", gotEmail)
}

func TestAcceptInvitationHandler_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid", models.ErrInviteInvalid, 400, "invite_invalid"},
		{"expired", models.ErrInviteExpired, 400, "invite_expired"},
		{"email mismatch", models.ErrInviteEmailMismatch, 400, "invite_email_mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockOrgService{
				AcceptInvitationFunc: func(ctx context.Context, opaqueToken, userID, userEmail string) (*services.OrgResponse, error) {
					return nil, tt.err
				},
			}
			h := NewOrgHandler(service)

			w := httptest.NewRecorder()
			h.AcceptInvitation(w, authedRequest(t, "POST", "/invitations/accept", AcceptInvitationRequest{
				Token: "inv_1.secret",
			}))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w.Body.Bytes()))
		})
	}
}
