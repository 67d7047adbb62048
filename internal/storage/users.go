package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"gorm.io/gorm"
)

// UserUpdate carries a partial user update; nil fields are left unchanged.
type UserUpdate struct {
	Email       *string
	Password    *string
	Name        *string
	Role        *string
	Department  *string
	Permissions *[]string
	// AvatarSet distinguishes "clear the avatar" from "leave it alone"
	AvatarSet  bool
	Avatar     *string
	ProjectIDs *[]int64
}

// ListUsers returns every user with its accessible projects, ordered by id
func (d *Database) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := d.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	if err := d.attachProjects(ctx, users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUserByID returns the user or nil when it does not exist
func (d *Database) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := d.attachProjects(ctx, []*models.User{&user}); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail looks a user up ignoring case; nil when absent
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", strings.TrimSpace(email)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := d.attachProjects(ctx, []*models.User{&user}); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts user and links it to projectIDs. Returns ErrConflict
// when the email is taken.
func (d *Database) CreateUser(ctx context.Context, user *models.User, projectIDs []int64) error {
	user.Email = strings.TrimSpace(user.Email)
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if len(user.Permissions) == 0 {
		user.Permissions = models.RolePermissions(user.Role)
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := emailTaken(tx, user.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: email %s", ErrConflict, user.Email)
		}

		if err := tx.Create(user).Error; err != nil {
			return translateWriteError(fmt.Errorf("failed to create user: %w", err), "email")
		}

		if len(projectIDs) > 0 {
			if err := replaceUserProjects(tx, user.ID, projectIDs); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateUser applies a partial update. Returns ErrNotFound for an unknown id
// and ErrConflict when the new email belongs to someone else.
func (d *Database) UpdateUser(ctx context.Context, id int64, update UserUpdate) (*models.User, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		if err := tx.First(&existing, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d", ErrNotFound, id)
			}
			return fmt.Errorf("failed to get user: %w", err)
		}

		updates := map[string]interface{}{}
		if update.Email != nil {
			email := strings.TrimSpace(*update.Email)
			taken, err := emailTaken(tx, email, id)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: email %s", ErrConflict, email)
			}
			updates["email"] = email
		}
		if update.Password != nil && *update.Password != "" {
			updates["password"] = *update.Password
		}
		if update.Name != nil {
			updates["name"] = *update.Name
		}
		if update.Role != nil {
			updates["role"] = *update.Role
		}
		if update.Department != nil {
			updates["department"] = *update.Department
		}
		if update.AvatarSet {
			updates["avatar"] = update.Avatar
		}

		if len(updates) > 0 {
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return translateWriteError(fmt.Errorf("failed to update user: %w", err), "email")
			}
		}

		if update.Permissions != nil {
			encoded, err := json.Marshal(*update.Permissions)
			if err != nil {
				return fmt.Errorf("failed to encode permissions: %w", err)
			}
			if err := tx.Model(&existing).Update("permissions", string(encoded)).Error; err != nil {
				return fmt.Errorf("failed to update permissions: %w", err)
			}
		}

		if update.ProjectIDs != nil {
			return replaceUserProjects(tx, id, *update.ProjectIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return d.GetUserByID(ctx, id)
}

// DeleteUser removes a user and its project links
func (d *Database) DeleteUser(ctx context.Context, id int64) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.UserProject{}).Error; err != nil {
			return fmt.Errorf("failed to delete user projects: %w", err)
		}

		result := tx.Delete(&models.User{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil
	})
}

// CountUsers returns the number of users
func (d *Database) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func emailTaken(tx *gorm.DB, email string, exceptID int64) (bool, error) {
	var count int64
	query := tx.Model(&models.User{}).Where("LOWER(email) = LOWER(?)", email)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return count > 0, nil
}

// replaceUserProjects swaps the user's access set; unknown project ids are ignored
func replaceUserProjects(tx *gorm.DB, userID int64, projectIDs []int64) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.UserProject{}).Error; err != nil {
		return fmt.Errorf("failed to clear user projects: %w", err)
	}
	if len(projectIDs) == 0 {
		return nil
	}

	var existing []int64
	if err := tx.Model(&models.Project{}).Where("id IN ?", projectIDs).Pluck("id", &existing).Error; err != nil {
		return fmt.Errorf("failed to resolve projects: %w", err)
	}
	if len(existing) == 0 {
		return nil
	}

	links := make([]models.UserProject, 0, len(existing))
	for _, projectID := range existing {
		links = append(links, models.UserProject{UserID: userID, ProjectID: projectID})
	}
	if err := tx.Create(&links).Error; err != nil {
		return fmt.Errorf("failed to link user projects: %w", err)
	}
	return nil
}

// attachProjects loads the accessible projects of users in one query
func (d *Database) attachProjects(ctx context.Context, users []*models.User) error {
	if len(users) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
		u.Projects = []models.Project{}
	}

	var rows []struct {
		UserID      int64  `gorm:"column:user_id"`
		ID          int64  `gorm:"column:id"`
		Name        string `gorm:"column:name"`
		Description string `gorm:"column:description"`
	}
	err := d.db.WithContext(ctx).
		Table("projects p").
		Select("up.user_id, p.id, p.name, p.description").
		Joins("JOIN user_projects up ON up.project_id = p.id").
		Where("up.user_id IN ?", ids).
		Order("p.name").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to load user projects: %w", err)
	}

	byUser := make(map[int64]*models.User, len(users))
	for _, u := range users {
		byUser[u.ID] = u
	}
	for _, row := range rows {
		if u, ok := byUser[row.UserID]; ok {
			u.Projects = append(u.Projects, models.Project{ID: row.ID, Name: row.Name, Description: row.Description})
		}
	}
	return nil
}

// SetUserProjects replaces the user's access set. Projects may be named by id
// or by name; names are matched ignoring case and unknown ones are skipped.
func (d *Database) SetUserProjects(ctx context.Context, userID int64, projectIDs []int64, projectNames []string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}

		ids, err := resolveProjectNames(tx, projectNames)
		if err != nil {
			return err
		}
		return replaceUserProjects(tx, userID, append(ids, projectIDs...))
	})
}

func resolveProjectNames(tx *gorm.DB, names []string) ([]int64, error) {
	lowered := make([]string, 0, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			lowered = append(lowered, strings.ToLower(trimmed))
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	var ids []int64
	if err := tx.Model(&models.Project{}).Where("LOWER(name) IN ?", lowered).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve project names: %w", err)
	}
	return ids, nil
}
