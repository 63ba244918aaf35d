package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/typeflow/typeflow/internal/credential"
)

// MockCredentialService is a mock implementation of credential.Service.
type MockCredentialService struct {
	mock.Mock
}

func (m *MockCredentialService) Create(ctx context.Context, tenantID, userID string, input credential.CreateCredentialInput) (*credential.Credential, error) {
	args := m.Called(ctx, tenantID, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credential.Credential), args.Error(1)
}

func (m *MockCredentialService) List(ctx context.Context, tenantID string, filter credential.CredentialListFilter, limit, offset int) ([]*credential.Credential, error) {
	args := m.Called(ctx, tenantID, filter, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*credential.Credential), args.Error(1)
}

func (m *MockCredentialService) GetByID(ctx context.Context, tenantID, credentialID string) (*credential.Credential, error) {
	args := m.Called(ctx, tenantID, credentialID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credential.Credential), args.Error(1)
}

func (m *MockCredentialService) GetValue(ctx context.Context, tenantID, credentialID, userID string) (*credential.DecryptedValue, error) {
	args := m.Called(ctx, tenantID, credentialID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credential.DecryptedValue), args.Error(1)
}

func (m *MockCredentialService) Update(ctx context.Context, tenantID, credentialID, userID string, input credential.UpdateCredentialInput) (*credential.Credential, error) {
	args := m.Called(ctx, tenantID, credentialID, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credential.Credential), args.Error(1)
}

func (m *MockCredentialService) Delete(ctx context.Context, tenantID, credentialID, userID string) error {
	args := m.Called(ctx, tenantID, credentialID, userID)
	return args.Error(0)
}

func (m *MockCredentialService) Rotate(ctx context.Context, tenantID, credentialID, userID string, input credential.RotateCredentialInput) (*credential.Credential, error) {
	args := m.Called(ctx, tenantID, credentialID, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credential.Credential), args.Error(1)
}

func (m *MockCredentialService) ListVersions(ctx context.Context, tenantID, credentialID string) ([]*credential.CredentialValue, error) {
	args := m.Called(ctx, tenantID, credentialID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*credential.CredentialValue), args.Error(1)
}

func (m *MockCredentialService) GetAccessLog(ctx context.Context, tenantID, credentialID string, limit, offset int) ([]*credential.AccessLog, error) {
	args := m.Called(ctx, tenantID, credentialID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*credential.AccessLog), args.Error(1)
}

func newTestCredentialHandler() (*CredentialHandler, *MockCredentialService) {
	mockService := new(MockCredentialService)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	handler := NewCredentialHandler(mockService, logger)
	return handler, mockService
}

// withCredentialParams attaches chi path params and the actor header used by
// the credential handler in place of session-derived tenant/user context.
func withCredentialParams(req *http.Request, organizationID, credentialID, userID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("organizationId", organizationID)
	if credentialID != "" {
		rctx.URLParams.Add("credentialId", credentialID)
	}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	return req
}

func TestCredentialCreate_Success(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	now := time.Now()
	input := credential.CreateCredentialInput{
		Name: "My API Key",
		Type: credential.TypeAPIKey,
		Value: map[string]interface{}{
			"api_key": "secret-key-123",
		},
	}
	expectedCred := &credential.Credential{
		ID:        "cred-123",
		TenantID:  "org-1",
		Name:      "My API Key",
		Type:      credential.TypeAPIKey,
		Status:    credential.StatusActive,
		CreatedBy: "user-123",
		CreatedAt: now,
		UpdatedAt: now,
	}

	mockService.On("Create", mock.Anything, "org-1", "user-123", input).Return(expectedCred, nil)

	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/credentials", bytes.NewReader(body))
	req = withCredentialParams(req, "org-1", "", "user-123")
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "cred-123", data["id"])
	assert.NotContains(t, data, "value")

	mockService.AssertExpectations(t)
}

func TestCredentialCreate_DefaultsActorWhenHeaderMissing(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	input := credential.CreateCredentialInput{Name: "Key", Type: credential.TypeAPIKey}
	mockService.On("Create", mock.Anything, "org-1", "system", input).Return(&credential.Credential{ID: "cred-1"}, nil)

	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/credentials", bytes.NewReader(body))
	req = withCredentialParams(req, "org-1", "", "")
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialCreate_ValidationError(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	input := credential.CreateCredentialInput{Type: credential.TypeAPIKey}
	mockService.On("Create", mock.Anything, "org-1", "user-123", input).
	Return(nil, &credential.ValidationError{Message: "name is required"})

	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/credentials", bytes.NewReader(body))
	req = withCredentialParams(req, "org-1", "", "user-123")
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialCreate_InvalidJSON(t *testing.T) {
	handler, _ := newTestCredentialHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/credentials", bytes.NewReader([]byte("not json")))
	req = withCredentialParams(req, "org-1", "", "user-123")
	w := httptest.NewRecorder()

	handler.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCredentialList_Success(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	now := time.Now()
	credentials := []*credential.Credential{
		{ID: "cred-1", TenantID: "org-1", Name: "Key 1", Type: credential.TypeAPIKey, CreatedAt: now, UpdatedAt: now},
		{ID: "cred-2", TenantID: "org-1", Name: "Token", Type: credential.TypeOAuth2, CreatedAt: now, UpdatedAt: now},
	}
	mockService.On("List", mock.Anything, "org-1", credential.CredentialListFilter{}, 20, 0).Return(credentials, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/credentials", nil)
	req = withCredentialParams(req, "org-1", "", "")
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialGet_Success(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	expectedCred := &credential.Credential{ID: "cred-123", TenantID: "org-1", Name: "My Key"}
	mockService.On("GetByID", mock.Anything, "org-1", "cred-123").Return(expectedCred, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/credentials/cred-123", nil)
	req = withCredentialParams(req, "org-1", "cred-123", "")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialGet_NotFound(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	mockService.On("GetByID", mock.Anything, "org-1", "missing").Return(nil, credential.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/credentials/missing", nil)
	req = withCredentialParams(req, "org-1", "missing", "")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialGetValue_Success(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	now := time.Now()
	expectedValue := &credential.DecryptedValue{Version: 1, Value: map[string]interface{}{"api_key": "secret"}, CreatedAt: now}
	mockService.On("GetValue", mock.Anything, "org-1", "cred-123", "user-123").Return(expectedValue, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/credentials/cred-123/value", nil)
	req = withCredentialParams(req, "org-1", "cred-123", "user-123")
	w := httptest.NewRecorder()

	handler.GetValue(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialGetValue_Unauthorized(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	mockService.On("GetValue", mock.Anything, "org-1", "cred-123", "user-123").Return(nil, credential.ErrUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/credentials/cred-123/value", nil)
	req = withCredentialParams(req, "org-1", "cred-123", "user-123")
	w := httptest.NewRecorder()

	handler.GetValue(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialUpdate_Success(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	newName := "Updated Name"
	input := credential.UpdateCredentialInput{Name: &newName}
	updatedCred := &credential.Credential{ID: "cred-123", TenantID: "org-1", Name: newName}
	mockService.On("Update", mock.Anything, "org-1", "cred-123", "user-123", input).Return(updatedCred, nil)

	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/organizations/org-1/credentials/cred-123", bytes.NewReader(body))
	req = withCredentialParams(req, "org-1", "cred-123", "user-123")
	w := httptest.NewRecorder()

	handler.Update(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialUpdate_ValidationError(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	invalidStatus := credential.CredentialStatus("invalid")
	input := credential.UpdateCredentialInput{Status: &invalidStatus}
	mockService.On("Update", mock.Anything, "org-1", "cred-123", "user-123", input).
	Return(nil, &credential.ValidationError{Message: "invalid status"})

	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/organizations/org-1/credentials/cred-123", bytes.NewReader(body))
	req = withCredentialParams(req, "org-1", "cred-123", "user-123")
	w := httptest.NewRecorder()

	handler.Update(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialDelete_Success(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	mockService.On("Delete", mock.Anything, "org-1", "cred-123", "user-123").Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/organizations/org-1/credentials/cred-123", nil)
	req = withCredentialParams(req, "org-1", "cred-123", "user-123")
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialDelete_NotFound(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	mockService.On("Delete", mock.Anything, "org-1", "missing", "user-123").Return(credential.ErrNotFound)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/organizations/org-1/credentials/missing", nil)
	req = withCredentialParams(req, "org-1", "missing", "user-123")
	w := httptest.NewRecorder()

	handler.Delete(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialRotate_Success(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	input := credential.RotateCredentialInput{Value: map[string]interface{}{"api_key": "new-secret"}}
	rotatedCred := &credential.Credential{ID: "cred-123", TenantID: "org-1"}
	mockService.On("Rotate", mock.Anything, "org-1", "cred-123", "user-123", input).Return(rotatedCred, nil)

	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations/org-1/credentials/cred-123/rotate", bytes.NewReader(body))
	req = withCredentialParams(req, "org-1", "cred-123", "user-123")
	w := httptest.NewRecorder()

	handler.Rotate(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialListVersions_Success(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	now := time.Now()
	versions := []*credential.CredentialValue{
		{ID: "ver-2", CredentialID: "cred-123", Version: 2, CreatedAt: now, IsActive: true},
		{ID: "ver-1", CredentialID: "cred-123", Version: 1, CreatedAt: now.Add(-24 * time.Hour)},
	}
	mockService.On("ListVersions", mock.Anything, "org-1", "cred-123").Return(versions, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/credentials/cred-123/versions", nil)
	req = withCredentialParams(req, "org-1", "cred-123", "")
	w := httptest.NewRecorder()

	handler.ListVersions(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialGetAccessLog_Success(t *testing.T) {
	handler, mockService := newTestCredentialHandler()

	now := time.Now()
	logs := []*credential.AccessLog{
		{ID: "log-1", CredentialID: "cred-123", TenantID: "org-1", AccessedBy: "user-123", AccessType: "read", AccessedAt: now, Success: true},
	}
	mockService.On("GetAccessLog", mock.Anything, "org-1", "cred-123", 20, 0).Return(logs, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/org-1/credentials/cred-123/access-log", nil)
	req = withCredentialParams(req, "org-1", "cred-123", "")
	w := httptest.NewRecorder()

	handler.GetAccessLog(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestCredentialGetTypes(t *testing.T) {
	handler, _ := newTestCredentialHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credential-types", nil)
	w := httptest.NewRecorder()

	handler.GetTypes(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCredentialValidateType_Invalid(t *testing.T) {
	handler, _ := newTestCredentialHandler()

	body, _ := json.Marshal(map[string]any{
		"type":  string(credential.TypeAPIKey),
		"value": map[string]any{},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/credential-types/validate", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.ValidateType(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
