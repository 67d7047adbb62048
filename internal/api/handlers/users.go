package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/auth"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool               `json:"success"`
	User    models.SessionUser `json:"user"`
	Token   string             `json:"token"`
}

// Login handles POST /api/users/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.sendError(w, r, NewValidationError("email", "Email and password are required"))
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.sendError(w, r, NewInternalError("Login failed", err))
		return
	}
	// Passwords are stored and compared as given.
	if user == nil || user.Password != req.Password {
		h.logger.Info("Login rejected", "email", req.Email)
		h.sendError(w, r, ErrInvalidCredentials)
		return
	}

	token, err := h.tokens.GenerateToken(user)
	if err != nil {
		h.sendError(w, r, NewInternalError("Login failed", err))
		return
	}

	h.logger.Info("User logged in", "user_id", user.ID, "email", user.Email)
	h.sendJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User:    models.NewSessionUser(user),
		Token:   token,
	})
}

// RefreshToken handles POST /api/users/refresh. The renewed token carries
// the user's current role and permissions.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaimsFromContext(r.Context())
	if !ok {
		h.sendError(w, r, NewUnauthorizedError("Authentication required"))
		return
	}

	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		h.sendError(w, r, NewInternalError("Failed to refresh session", err))
		return
	}
	if user == nil {
		h.sendError(w, r, NewUnauthorizedError("User no longer exists"))
		return
	}

	renewed := *claims
	renewed.Email = user.Email
	renewed.Name = user.Name
	renewed.Role = user.Role
	renewed.Permissions = user.EffectivePermissions()
	token, err := h.tokens.RefreshToken(&renewed)
	if err != nil {
		h.sendError(w, r, NewInternalError("Failed to refresh session", err))
		return
	}

	h.logger.Debug("Session refreshed", "user_id", user.ID)
	h.sendJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User:    models.NewSessionUser(user),
		Token:   token,
	})
}

// ListUsers handles GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.sendError(w, r, NewInternalError("Failed to fetch users", err))
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]any{"users": users})
}

// projectRefs holds a project list given as ids, names, or a mix of both
type projectRefs struct {
	ids   []int64
	names []string
}

func (p *projectRefs) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("projects must be an array: %w", err)
	}
	p.ids, p.names = []int64{}, []string{}
	for _, item := range raw {
		var id int64
		if err := json.Unmarshal(item, &id); err == nil {
			p.ids = append(p.ids, id)
			continue
		}
		var name string
		if err := json.Unmarshal(item, &name); err != nil {
			return fmt.Errorf("project entries must be ids or names")
		}
		p.names = append(p.names, name)
	}
	return nil
}

type createUserRequest struct {
	Email       string       `json:"email"`
	Password    string       `json:"password"`
	Name        string       `json:"name"`
	Role        string       `json:"role"`
	Department  string       `json:"department"`
	Permissions []string     `json:"permissions"`
	Projects    *projectRefs `json:"projects"`
	Avatar      *string      `json:"avatar"`
}

// CreateUser handles POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, models.PermissionAdmin) {
		return
	}
	var req createUserRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		h.sendError(w, r, NewValidationError("", "Email, password, and name are required"))
		return
	}
	if apiErr, ok := validateRoleAndPermissions(req.Role, req.Permissions); !ok {
		h.sendError(w, r, apiErr)
		return
	}

	user := &models.User{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		Role:        req.Role,
		Department:  req.Department,
		Permissions: req.Permissions,
	}
	if req.Avatar != nil && *req.Avatar != "" {
		user.Avatar = req.Avatar
	}

	ctx := r.Context()
	if err := h.store.CreateUser(ctx, user, nil); err != nil {
		h.sendError(w, r, storeError(err, "Failed to create user",
			ErrUserNotFound, NewConflictError("User with this email already exists")))
		return
	}
	if req.Projects != nil {
		if err := h.store.SetUserProjects(ctx, user.ID, req.Projects.ids, req.Projects.names); err != nil {
			h.sendError(w, r, NewInternalError("Failed to create user", err))
			return
		}
	}

	h.logger.Info("User created", "user_id", user.ID, "email", user.Email, "role", user.Role)
	h.sendJSON(w, http.StatusCreated, successResponse{Success: true, ID: user.ID})
}

type updateUserRequest struct {
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	Name        string          `json:"name"`
	Role        string          `json:"role"`
	Department  *string         `json:"department"`
	Permissions *[]string       `json:"permissions"`
	Projects    *projectRefs    `json:"projects"`
	Avatar      json.RawMessage `json:"avatar"`
}

// UpdateUser handles PUT /api/users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, models.PermissionAdmin) {
		return
	}
	id, ok := h.pathID(w, r, NewValidationError("id", "Invalid user ID"))
	if !ok {
		return
	}

	var req updateUserRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	var permissions []string
	if req.Permissions != nil {
		permissions = *req.Permissions
	}
	if apiErr, ok := validateRoleAndPermissions(req.Role, permissions); !ok {
		h.sendError(w, r, apiErr)
		return
	}

	update := storage.UserUpdate{
		Department:  req.Department,
		Permissions: req.Permissions,
	}
	if req.Email != "" {
		update.Email = &req.Email
	}
	if req.Password != "" {
		update.Password = &req.Password
	}
	if req.Name != "" {
		update.Name = &req.Name
	}
	if req.Role != "" {
		update.Role = &req.Role
	}
	if len(req.Avatar) > 0 {
		var avatar *string
		if err := json.Unmarshal(req.Avatar, &avatar); err != nil {
			h.sendError(w, r, NewValidationError("avatar", "Avatar must be a string or null"))
			return
		}
		if avatar != nil && *avatar == "" {
			avatar = nil
		}
		update.AvatarSet = true
		update.Avatar = avatar
	}

	ctx := r.Context()
	if _, err := h.store.UpdateUser(ctx, id, update); err != nil {
		h.sendError(w, r, storeError(err, "Failed to update user",
			ErrUserNotFound, NewConflictError("Email already in use")))
		return
	}
	if req.Projects != nil {
		if err := h.store.SetUserProjects(ctx, id, req.Projects.ids, req.Projects.names); err != nil {
			h.sendError(w, r, storeError(err, "Failed to update user", ErrUserNotFound, ErrInternal))
			return
		}
	}

	h.logger.Info("User updated", "user_id", id)
	h.sendJSON(w, http.StatusOK, successResponse{Success: true})
}

// DeleteUser handles DELETE /api/users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.requirePermission(w, r, models.PermissionAdmin) {
		return
	}
	id, ok := h.pathID(w, r, NewValidationError("id", "Invalid user ID"))
	if !ok {
		return
	}

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		h.sendError(w, r, storeError(err, "Failed to delete user", ErrUserNotFound, ErrInternal))
		return
	}

	h.logger.Info("User deleted", "user_id", id)
	h.sendJSON(w, http.StatusOK, successResponse{Success: true})
}

func validateRoleAndPermissions(role string, permissions []string) (APIError, bool) {
	if role != "" && !models.IsValidRole(role) {
		return NewValidationError("role", fmt.Sprintf("Unknown role: %s", role)), false
	}
	for _, p := range permissions {
		if !models.IsValidPermission(p) {
			return NewValidationError("permissions", fmt.Sprintf("Unknown permission: %s", p)), false
		}
	}
	return APIError{}, true
}
