package handlers

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProjects(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[struct {
		Projects []models.Project `json:"projects"`
	}](t, w)
	require.Len(t, resp.Projects, 3)
	assert.Equal(t, "Project Alpha", resp.Projects[0].Name)
}

func TestCreateProject(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/projects", map[string]string{
		"name":        "Project Delta",
		"description": "Fourth wave",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotZero(t, decodeBody[successResponse](t, w).ID)

	w = env.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "project delta"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Project name is required", errorMessage(t, w))
}

func TestUpdateProject(t *testing.T) {
	env := setupTestEnv(t)
	alpha, err := env.db.GetProjectByName(context.Background(), "Project Alpha")
	require.NoError(t, err)
	path := "/api/projects/" + strconv.FormatInt(alpha.ID, 10)

	w := env.do(t, http.MethodPut, path, map[string]string{"name": "Project Omega"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"Project Omega"}, env.user(t, "user@iwconnect.com").ProjectNames())

	w = env.do(t, http.MethodPut, path, map[string]string{"name": "Project Beta"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPut, path, map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/projects/4242", map[string]string{"name": "Nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Project not found", errorMessage(t, w))
}

func TestDeleteProject_Cascades(t *testing.T) {
	env := setupTestEnv(t)
	alpha, err := env.db.GetProjectByName(context.Background(), "Project Alpha")
	require.NoError(t, err)

	w := env.do(t, http.MethodDelete, "/api/projects/"+strconv.FormatInt(alpha.ID, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, env.user(t, "user@iwconnect.com").ProjectNames())
	assert.Equal(t, []string{"Project Beta"}, env.user(t, "demo@iwconnect.com").ProjectNames())

	w = env.do(t, http.MethodDelete, "/api/projects/"+strconv.FormatInt(alpha.ID, 10), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/projects/zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
