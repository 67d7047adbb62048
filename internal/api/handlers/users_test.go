package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("success", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users/login", map[string]string{
			"email":    "USER@iwconnect.com",
			"password": "user123",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeBody[loginResponse](t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "user@iwconnect.com", resp.User.Email)
		assert.Equal(t, models.RoleUser, resp.User.Role)
		assert.ElementsMatch(t, models.RolePermissions(models.RoleUser), resp.User.Permissions)
		require.Len(t, resp.User.Projects, 1)
		assert.Equal(t, "Project Alpha", resp.User.Projects[0].Name)

		claims, err := env.jwt.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, claims.UserID)
		assert.NotContains(t, w.Body.String(), "user123", "password never leaves the server")
	})

	t.Run("wrong password", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users/login", map[string]string{
			"email":    "user@iwconnect.com",
			"password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid email or password", errorMessage(t, w))
	})

	t.Run("unknown user", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users/login", map[string]string{
			"email":    "ghost@iwconnect.com",
			"password": "x",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users/login", map[string]string{"email": "user@iwconnect.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Email and password are required", errorMessage(t, w))
	})

	t.Run("invalid json", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users/login", "{")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, ErrInvalidJSON.Message, errorMessage(t, w))
	})
}

func TestListUsers(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[struct {
		Users []models.User `json:"users"`
	}](t, w)
	assert.Len(t, resp.Users, 4)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestCreateUser(t *testing.T) {
	env := setupTestEnv(t)
	alpha := env.user(t, "user@iwconnect.com").Projects[0]

	w := env.do(t, http.MethodPost, "/api/users", map[string]any{
		"email":    "new@iwconnect.com",
		"password": "secret",
		"name":     "New Person",
		"projects": []any{alpha.ID, "Project Gamma"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody[successResponse](t, w)
	assert.True(t, resp.Success)
	assert.NotZero(t, resp.ID)

	created := env.user(t, "new@iwconnect.com")
	assert.Equal(t, models.RoleUser, created.Role)
	assert.ElementsMatch(t, models.RolePermissions(models.RoleUser), created.Permissions)
	assert.ElementsMatch(t, []string{"Project Alpha", "Project Gamma"}, created.ProjectNames())

	t.Run("duplicate email", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users", map[string]any{
			"email":    "NEW@iwconnect.com",
			"password": "secret",
			"name":     "Again",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "User with this email already exists", errorMessage(t, w))
	})

	t.Run("missing fields", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users", map[string]any{"email": "x@iwconnect.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Email, password, and name are required", errorMessage(t, w))
	})

	t.Run("unknown role", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users", map[string]any{
			"email": "r@iwconnect.com", "password": "p", "name": "R", "role": "Owner",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown permission", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users", map[string]any{
			"email": "p@iwconnect.com", "password": "p", "name": "P", "permissions": []string{"fly"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateUser(t *testing.T) {
	env := setupTestEnv(t)
	viewer := env.user(t, "viewer@iwconnect.com")
	path := "/api/users/" + strconv.FormatInt(viewer.ID, 10)

	w := env.do(t, http.MethodPut, path, map[string]any{
		"name":        "Promoted Viewer",
		"role":        models.RoleUser,
		"permissions": []string{models.PermissionUpload, models.PermissionMigrate},
		"projects":    []string{"Project Beta"},
		"avatar":      "data:image/png;base64,AAAA",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated := env.user(t, "viewer@iwconnect.com")
	assert.Equal(t, "Promoted Viewer", updated.Name)
	assert.Equal(t, models.RoleUser, updated.Role)
	assert.Equal(t, []string{models.PermissionUpload, models.PermissionMigrate}, updated.Permissions)
	assert.Equal(t, []string{"Project Beta"}, updated.ProjectNames())
	require.NotNil(t, updated.Avatar)

	t.Run("null avatar clears it", func(t *testing.T) {
		w := env.do(t, http.MethodPut, path, `{"avatar": null}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, env.user(t, "viewer@iwconnect.com").Avatar)
	})

	t.Run("email in use", func(t *testing.T) {
		w := env.do(t, http.MethodPut, path, map[string]any{"email": "admin@iwconnect.com"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Email already in use", errorMessage(t, w))
	})

	t.Run("not found", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/users/99999", map[string]any{"name": "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/users/abc", map[string]any{"name": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid user ID", errorMessage(t, w))
	})
}

func TestDeleteUser(t *testing.T) {
	env := setupTestEnv(t)
	viewer := env.user(t, "viewer@iwconnect.com")

	w := env.do(t, http.MethodDelete, "/api/users/"+strconv.FormatInt(viewer.ID, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)

	gone, err := env.db.GetUserByEmail(context.Background(), "viewer@iwconnect.com")
	require.NoError(t, err)
	assert.Nil(t, gone)

	w = env.do(t, http.MethodDelete, "/api/users/"+strconv.FormatInt(viewer.ID, 10), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshToken(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("renews the session", func(t *testing.T) {
		w := env.doAs(t, "user@iwconnect.com", http.MethodPost, "/api/users/refresh", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decodeBody[loginResponse](t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "user@iwconnect.com", resp.User.Email)

		claims, err := env.jwt.ValidateToken(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, claims.UserID)
		assert.ElementsMatch(t, models.RolePermissions(models.RoleUser), claims.Permissions)
	})

	t.Run("picks up a role change", func(t *testing.T) {
		user := env.user(t, "viewer@iwconnect.com")
		token, err := env.jwt.GenerateToken(user)
		require.NoError(t, err)

		role := models.RoleUser
		permissions := models.RolePermissions(models.RoleUser)
		_, err = env.db.UpdateUser(context.Background(), user.ID, storage.UserUpdate{Role: &role, Permissions: &permissions})
		require.NoError(t, err)

		req := newJSONRequest(t, http.MethodPost, "/api/users/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		env.authed.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		claims, err := env.jwt.ValidateToken(decodeBody[loginResponse](t, w).Token)
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, claims.Role)
		assert.True(t, claims.HasPermission(models.PermissionMigrate))
	})

	t.Run("without a token", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/users/refresh", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Authentication required", errorMessage(t, w))
	})

	t.Run("deleted user", func(t *testing.T) {
		user := env.user(t, "demo@iwconnect.com")
		token, err := env.jwt.GenerateToken(user)
		require.NoError(t, err)
		require.NoError(t, env.db.DeleteUser(context.Background(), user.ID))

		req := newJSONRequest(t, http.MethodPost, "/api/users/refresh", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		env.authed.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAdminPermissionRequired(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name   string
		method string
		target string
		body   any
	}{
		{"create user", http.MethodPost, "/api/users", map[string]any{"email": "new@iwconnect.com", "password": "pw", "name": "New"}},
		{"update user", http.MethodPut, "/api/users/1", map[string]any{"name": "Renamed"}},
		{"delete user", http.MethodDelete, "/api/users/1", nil},
		{"create project", http.MethodPost, "/api/projects", map[string]any{"name": "Project Delta"}},
		{"update project", http.MethodPut, "/api/projects/1", map[string]any{"description": "changed"}},
		{"delete project", http.MethodDelete, "/api/projects/1", nil},
		{"clear migrations", http.MethodDelete, "/api/migrations", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.doAs(t, "user@iwconnect.com", tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
			assert.Equal(t, "Permission denied: admin permission required", errorMessage(t, w))
		})
	}

	users, err := env.db.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 4, "rejected requests change nothing")

	w := env.doAs(t, "admin@iwconnect.com", http.MethodPost, "/api/projects", map[string]any{"name": "Project Delta"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
