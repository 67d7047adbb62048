package storage

import (
	"context"

	"github.com/kuhlman-labs/migration-accelerator/internal/models"
)

// UserReader defines read operations for users.
// This interface enables dependency injection and easier testing.
type UserReader interface {
	// ListUsers returns every user with its accessible projects.
	ListUsers(ctx context.Context) ([]*models.User, error)
	// GetUserByID returns nil when the user does not exist.
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	// GetUserByEmail matches the email ignoring case.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserWriter defines write operations for users.
type UserWriter interface {
	CreateUser(ctx context.Context, user *models.User, projectIDs []int64) error
	UpdateUser(ctx context.Context, id int64, update UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	SetUserProjects(ctx context.Context, userID int64, projectIDs []int64, projectNames []string) error
}

// UserStore combines read and write operations for users.
type UserStore interface {
	UserReader
	UserWriter
}

// ProjectStore defines project operations.
type ProjectStore interface {
	ListProjects(ctx context.Context) ([]*models.Project, error)
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	GetProjectByName(ctx context.Context, name string) (*models.Project, error)
	CreateProject(ctx context.Context, project *models.Project) error
	UpdateProject(ctx context.Context, id int64, name, description *string) (*models.Project, error)
	DeleteProject(ctx context.Context, id int64) error
}

// MigrationReader defines read operations for migration history.
type MigrationReader interface {
	// ListMigrations returns records newest first.
	ListMigrations(ctx context.Context, filter MigrationFilter) ([]models.MigrationRecord, error)
	// GetMigrationByExecutionID returns nil when no record has that id.
	GetMigrationByExecutionID(ctx context.Context, executionID string) (*models.MigrationRecord, error)
	CountMigrations(ctx context.Context) (int64, error)
	GetMigrationStats(ctx context.Context) (*models.MigrationStats, error)
}

// MigrationWriter defines write operations for migration history.
type MigrationWriter interface {
	// UpsertMigration reports created=true when a new row was inserted.
	UpsertMigration(ctx context.Context, in models.MigrationInput) (id int64, created bool, err error)
	DeleteMigration(ctx context.Context, id int64) error
	DeleteAllMigrations(ctx context.Context) (int64, error)
}

// MigrationStore combines read and write operations for migrations.
type MigrationStore interface {
	MigrationReader
	MigrationWriter
}

// Store is everything the management API needs.
type Store interface {
	UserStore
	ProjectStore
	MigrationStore
	Ping(ctx context.Context) error
}

// Compile-time check that Database implements Store.
var _ Store = (*Database)(nil)
