package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/typeflow/typeflow/internal/api/response"
	"github.com/typeflow/typeflow/internal/credential"
	"github.com/typeflow/typeflow/internal/validation"
)

// CredentialHandler handles the credential CRUD and lifecycle surface.
type CredentialHandler struct {
	service credential.Service
	logger *slog.Logger
}

// NewCredentialHandler creates a new credential handler.
func NewCredentialHandler(service credential.Service, logger *slog.Logger) *CredentialHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialHandler{service: service, logger: logger}
}

// actorID identifies who is performing a credential operation for the audit
// log. Session/auth management is out of scope, so callers identify
// themselves with this header; it defaults to "system" when absent.
func actorID(r *http.Request) string {
	if id := r.Header.Get("X-User-Id"); id != "" {
		return id
	}
	return "system"
}

// Create creates a new credential.
func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	userID := actorID(r)

	var input credential.CreateCredentialInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	cred, err := h.service.Create(r.Context(), orgID, userID, input)
	if err != nil {
		if _, ok := err.(*credential.ValidationError); ok {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		h.logger.Error("failed to create credential", "error", err, "organization_id", orgID)
		response.InternalError(w, h.logger, "failed to create credential")
		return
	}

	response.Created(w, h.logger, map[string]any{"data": cred})
}

// List returns all credentials for the organization (metadata only).
func (h *CredentialHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)

	limit, _ := validation.ParsePaginationLimit(r.URL.Query().Get("limit"),
		validation.DefaultPaginationLimit,
		validation.MaxPaginationLimit,)
	offset, _ := validation.ParsePaginationOffset(r.URL.Query().Get("offset"))

	filter := credential.CredentialListFilter{
		Type: credential.CredentialType(r.URL.Query().Get("type")),
		Status: credential.CredentialStatus(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
	}

	credentials, err := h.service.List(r.Context(), orgID, filter, limit, offset)
	if err != nil {
		h.logger.Error("failed to list credentials", "error", err, "organization_id", orgID)
		response.InternalError(w, h.logger, "failed to list credentials")
		return
	}

	response.Paginated(w, h.logger, credentials, limit, offset, 0)
}

// Get retrieves a single credential's metadata.
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	credentialID := chi.URLParam(r, "credentialId")

	cred, err := h.service.GetByID(r.Context(), orgID, credentialID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("failed to get credential", "error", err, "credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to get credential")
		return
	}

	response.OK(w, h.logger, map[string]any{"data": cred})
}

// GetValue retrieves the decrypted credential value (restricted access).
func (h *CredentialHandler) GetValue(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	userID := actorID(r)
	credentialID := chi.URLParam(r, "credentialId")

	value, err := h.service.GetValue(r.Context(), orgID, credentialID, userID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		if err == credential.ErrUnauthorized {
			response.Forbidden(w, h.logger, "unauthorized access to credential value")
			return
		}
		h.logger.Error("failed to get credential value", "error", err, "credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to get credential value")
		return
	}

	response.OK(w, h.logger, map[string]any{"data": value})
}

// Update updates a credential's metadata.
func (h *CredentialHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	userID := actorID(r)
	credentialID := chi.URLParam(r, "credentialId")

	var input credential.UpdateCredentialInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	cred, err := h.service.Update(r.Context(), orgID, credentialID, userID, input)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		if _, ok := err.(*credential.ValidationError); ok {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		h.logger.Error("failed to update credential", "error", err, "credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to update credential")
		return
	}

	response.OK(w, h.logger, map[string]any{"data": cred})
}

// Delete deletes a credential.
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	userID := actorID(r)
	credentialID := chi.URLParam(r, "credentialId")

	err := h.service.Delete(r.Context(), orgID, credentialID, userID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("failed to delete credential", "error", err, "credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to delete credential")
		return
	}

	response.NoContent(w)
}

// Rotate creates a new version of the credential value.
func (h *CredentialHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	userID := actorID(r)
	credentialID := chi.URLParam(r, "credentialId")

	var input credential.RotateCredentialInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}

	cred, err := h.service.Rotate(r.Context(), orgID, credentialID, userID, input)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		if _, ok := err.(*credential.ValidationError); ok {
			response.BadRequest(w, h.logger, err.Error())
			return
		}
		h.logger.Error("failed to rotate credential", "error", err, "credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to rotate credential")
		return
	}

	response.OK(w, h.logger, map[string]any{"data": cred})
}

// ListVersions returns all versions of a credential.
func (h *CredentialHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	credentialID := chi.URLParam(r, "credentialId")

	versions, err := h.service.ListVersions(r.Context(), orgID, credentialID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("failed to list credential versions", "error", err, "credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to list credential versions")
		return
	}

	response.OK(w, h.logger, map[string]any{"data": versions})
}

// GetAccessLog returns access log entries for a credential.
func (h *CredentialHandler) GetAccessLog(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	credentialID := chi.URLParam(r, "credentialId")

	limit, _ := validation.ParsePaginationLimit(r.URL.Query().Get("limit"),
		validation.DefaultPaginationLimit,
		validation.MaxPaginationLimit,)
	offset, _ := validation.ParsePaginationOffset(r.URL.Query().Get("offset"))

	logs, err := h.service.GetAccessLog(r.Context(), orgID, credentialID, limit, offset)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("failed to get access log", "error", err, "credential_id", credentialID)
		response.InternalError(w, h.logger, "failed to get access log")
		return
	}

	response.Paginated(w, h.logger, logs, limit, offset, 0)
}

// Test validates a credential by attempting to decrypt its value. It does
// not return the value, only confirmation of validity.
func (h *CredentialHandler) Test(w http.ResponseWriter, r *http.Request) {
	orgID := organizationID(r)
	userID := actorID(r)
	credentialID := chi.URLParam(r, "credentialId")

	_, err := h.service.GetValue(r.Context(), orgID, credentialID, userID)
	if err != nil {
		if err == credential.ErrNotFound {
			response.NotFound(w, h.logger, "credential not found")
			return
		}
		h.logger.Error("credential test failed", "error", err, "credential_id", credentialID)
		response.OK(w, h.logger, map[string]any{
			"valid": false,
			"message": "credential validation failed: unable to decrypt",
		})
		return
	}

	response.OK(w, h.logger, map[string]any{
		"valid": true,
		"message": "credential is valid and decryptable",
	})
}

// GetTypes returns the list of supported credential types with their schemas.
func (h *CredentialHandler) GetTypes(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.logger, map[string]any{"data": credential.GetAllCredentialTypeSchemas()})
}

// ValidateType validates a credential value against a type's schema without
// storing anything.
func (h *CredentialHandler) ValidateType(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Type credential.CredentialType `json:"type"`
		Value map[string]any `json:"value"`
	}

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, h.logger, "invalid request body")
		return
	}
	if input.Type == "" {
		response.BadRequest(w, h.logger, "type is required")
		return
	}
	if len(input.Value) == 0 {
		response.BadRequest(w, h.logger, "value is required")
		return
	}

	if err := credential.ValidateCredentialValue(input.Type, input.Value); err != nil {
		response.OK(w, h.logger, map[string]any{
			"valid": false,
			"message": err.Error(),
			"schema": credential.GetCredentialTypeSchema(input.Type),
		})
		return
	}

	response.OK(w, h.logger, map[string]any{
		"valid": true,
		"message": "credential value is valid for type " + string(input.Type),
	})
}
