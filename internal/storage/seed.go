package storage

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed seed/default.yaml
var defaultSeed []byte

// SeedData is the initial content of an empty store.
type SeedData struct {
	Projects []SeedProject `yaml:"projects"`
	Users    []SeedUser    `yaml:"users"`
}

// SeedProject is a project entry of a seed document
type SeedProject struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// SeedUser is a user entry of a seed document; Projects are project names
type SeedUser struct {
	Email       string   `yaml:"email"`
	Password    string   `yaml:"password"`
	Name        string   `yaml:"name"`
	Role        string   `yaml:"role"`
	Department  string   `yaml:"department"`
	Permissions []string `yaml:"permissions"`
	Projects    []string `yaml:"projects"`
}

// DefaultSeed returns the built-in demo users and projects
func DefaultSeed() (*SeedData, error) {
	return parseSeed(defaultSeed)
}

// LoadSeed reads a seed document from path. An empty path yields the default seed.
func LoadSeed(path string) (*SeedData, error) {
	if path == "" {
		return DefaultSeed()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) (*SeedData, error) {
	var seed SeedData
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	for i, u := range seed.Users {
		if u.Email == "" || u.Password == "" || u.Name == "" {
			return nil, fmt.Errorf("%w: seed user %d needs email, password and name", ErrValidation, i)
		}
		if u.Role != "" && !models.IsValidRole(u.Role) {
			return nil, fmt.Errorf("%w: seed user %s has unknown role %q", ErrValidation, u.Email, u.Role)
		}
	}
	return &seed, nil
}

// Seed populates empty tables. Projects are inserted only when there are no
// projects and users only when there are no users, so an operator's data is
// never touched. Returns whether anything was written.
func (d *Database) Seed(ctx context.Context, seed *SeedData) (bool, error) {
	if seed == nil {
		return false, nil
	}

	seeded := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var projectCount, userCount int64
		if err := tx.Model(&models.Project{}).Count(&projectCount).Error; err != nil {
			return fmt.Errorf("failed to count projects: %w", err)
		}
		if err := tx.Model(&models.User{}).Count(&userCount).Error; err != nil {
			return fmt.Errorf("failed to count users: %w", err)
		}

		if projectCount == 0 && len(seed.Projects) > 0 {
			projects := make([]models.Project, 0, len(seed.Projects))
			for _, p := range seed.Projects {
				projects = append(projects, models.Project{Name: p.Name, Description: p.Description})
			}
			if err := tx.Create(&projects).Error; err != nil {
				return translateWriteError(fmt.Errorf("failed to seed projects: %w", err), "project name")
			}
			seeded = true
		}

		if userCount > 0 {
			return nil
		}
		for _, su := range seed.Users {
			role := su.Role
			if role == "" {
				role = models.RoleUser
			}
			permissions := su.Permissions
			if len(permissions) == 0 {
				permissions = models.RolePermissions(role)
			}
			user := models.User{
				Email:       su.Email,
				Password:    su.Password,
				Name:        su.Name,
				Role:        role,
				Department:  su.Department,
				Permissions: permissions,
			}
			if err := tx.Create(&user).Error; err != nil {
				return translateWriteError(fmt.Errorf("failed to seed user %s: %w", su.Email, err), "email")
			}

			ids, err := resolveProjectNames(tx, su.Projects)
			if err != nil {
				return err
			}
			if err := replaceUserProjects(tx, user.ID, ids); err != nil {
				return err
			}
			seeded = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return seeded, nil
}
