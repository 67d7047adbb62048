package models

import (
	"strings"
	"time"
)

// User is an account of the accelerator. Email is unique ignoring case.
type User struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Email       string    `json:"email" gorm:"column:email;not null;uniqueIndex;size:320"`
	Password    string    `json:"-" gorm:"column:password;not null"`
	Name        string    `json:"name" gorm:"column:name;not null"`
	Role        string    `json:"role" gorm:"column:role;not null;default:User;size:32"`
	Department  string    `json:"department" gorm:"column:department"`
	Permissions []string  `json:"permissions" gorm:"column:permissions;type:text;serializer:json"`
	Avatar      *string   `json:"avatar" gorm:"column:avatar;type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	// Projects is loaded separately from user_projects
	Projects []Project `json:"projects" gorm:"-"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// EffectivePermissions returns the explicit permission list when one is set,
// otherwise the defaults of the user's role.
func (u *User) EffectivePermissions() []string {
	if len(u.Permissions) > 0 {
		return u.Permissions
	}
	return RolePermissions(u.Role)
}

// HasPermission reports whether the user holds permission. The admin
// permission implies every other one.
func (u *User) HasPermission(permission string) bool {
	if u == nil {
		return false
	}
	for _, p := range u.EffectivePermissions() {
		if p == permission || p == PermissionAdmin {
			return true
		}
	}
	return false
}

// ProjectNames returns the names of the projects the user can access.
func (u *User) ProjectNames() []string {
	names := make([]string, 0, len(u.Projects))
	for _, p := range u.Projects {
		names = append(names, p.Name)
	}
	return names
}

// Project groups migrations. Name is unique ignoring case.
type Project struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"column:name;not null;uniqueIndex;size:255"`
	Description string    `json:"description" gorm:"column:description;type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for Project model
func (Project) TableName() string {
	return "projects"
}

// UserProject grants a user access to a project.
type UserProject struct {
	UserID    int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ProjectID int64 `gorm:"column:project_id;primaryKey;autoIncrement:false;index"`
}

// TableName specifies the table name for UserProject model
func (UserProject) TableName() string {
	return "user_projects"
}

// Preferences are the per-session notification and navigation flags.
// Absent flags read as enabled.
type Preferences struct {
	EmailNotifications   *bool `json:"emailNotifications,omitempty"`
	BrowserNotifications *bool `json:"browserNotifications,omitempty"`
	AutoNavigate         *bool `json:"autoNavigate,omitempty"`
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

// WantsEmail reports whether terminal migrations should be emailed.
func (p Preferences) WantsEmail() bool { return enabled(p.EmailNotifications) }

// WantsBrowser reports whether desktop notifications are on.
func (p Preferences) WantsBrowser() bool { return enabled(p.BrowserNotifications) }

// WantsAutoNavigate reports whether the client follows a started migration.
func (p Preferences) WantsAutoNavigate() bool { return enabled(p.AutoNavigate) }

// SessionUser is the profile returned by login and cached for the session.
type SessionUser struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Department  string    `json:"department"`
	Avatar      *string   `json:"avatar"`
	Permissions []string  `json:"permissions"`
	Projects    []Project `json:"projects"`
}

// NewSessionUser builds the session profile of u.
func NewSessionUser(u *User) SessionUser {
	projects := u.Projects
	if projects == nil {
		projects = []Project{}
	}
	return SessionUser{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		Department:  u.Department,
		Avatar:      u.Avatar,
		Permissions: u.EffectivePermissions(),
		Projects:    projects,
	}
}

// HasPermission reports whether the session holds permission.
func (s *SessionUser) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	u := User{Role: s.Role, Permissions: s.Permissions}
	return u.HasPermission(permission)
}

// Project looks up an accessible project by name. Names match
// case-insensitively, as they do on the server.
func (s *SessionUser) Project(name string) (Project, bool) {
	name = strings.TrimSpace(name)
	for _, p := range s.Projects {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Project{}, false
}

// ProjectID returns the id of the named project, if the session can see it.
func (s *SessionUser) ProjectID(name string) (int64, bool) {
	p, ok := s.Project(name)
	return p.ID, ok
}
