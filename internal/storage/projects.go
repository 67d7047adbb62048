package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"gorm.io/gorm"
)

// ListProjects returns every project ordered by name
func (d *Database) ListProjects(ctx context.Context) ([]*models.Project, error) {
	var projects []*models.Project
	if err := d.db.WithContext(ctx).Order("name").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// GetProject returns the project or nil when it does not exist
func (d *Database) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	var project models.Project
	err := d.db.WithContext(ctx).First(&project, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// GetProjectByName looks a project up ignoring case; nil when absent
func (d *Database) GetProjectByName(ctx context.Context, name string) (*models.Project, error) {
	var project models.Project
	err := d.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name)).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project by name: %w", err)
	}
	return &project, nil
}

// CreateProject inserts project. Returns ErrConflict when the name is taken.
func (d *Database) CreateProject(ctx context.Context, project *models.Project) error {
	project.Name = strings.TrimSpace(project.Name)
	if project.Name == "" {
		return fmt.Errorf("%w: project name is required", ErrValidation)
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := projectNameTaken(tx, project.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: project %s", ErrConflict, project.Name)
		}

		if err := tx.Create(project).Error; err != nil {
			return translateWriteError(fmt.Errorf("failed to create project: %w", err), "project name")
		}
		return nil
	})
}

// UpdateProject renames or re-describes a project
func (d *Database) UpdateProject(ctx context.Context, id int64, name, description *string) (*models.Project, error) {
	var project models.Project
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&project, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: project %d", ErrNotFound, id)
			}
			return fmt.Errorf("failed to get project: %w", err)
		}

		updates := map[string]interface{}{}
		if name != nil {
			trimmed := strings.TrimSpace(*name)
			if trimmed == "" {
				return fmt.Errorf("%w: project name is required", ErrValidation)
			}
			taken, err := projectNameTaken(tx, trimmed, id)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: project %s", ErrConflict, trimmed)
			}
			updates["name"] = trimmed
		}
		if description != nil {
			updates["description"] = *description
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&project).Updates(updates).Error; err != nil {
			return translateWriteError(fmt.Errorf("failed to update project: %w", err), "project name")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// DeleteProject removes a project, drops it from every user's access set and
// detaches the migrations recorded against it.
func (d *Database) DeleteProject(ctx context.Context, id int64) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: project %d", ErrNotFound, id)
			}
			return fmt.Errorf("failed to get project: %w", err)
		}

		if err := tx.Where("project_id = ?", id).Delete(&models.UserProject{}).Error; err != nil {
			return fmt.Errorf("failed to remove project access: %w", err)
		}
		if err := tx.Model(&models.Migration{}).Where("project_id = ?", id).Update("project_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach migrations: %w", err)
		}
		if err := tx.Delete(&project).Error; err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return nil
	})
}

func projectNameTaken(tx *gorm.DB, name string, exceptID int64) (bool, error) {
	var count int64
	query := tx.Model(&models.Project{}).Where("LOWER(name) = LOWER(?)", name)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check project name: %w", err)
	}
	return count > 0, nil
}
