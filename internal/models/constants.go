// Package models provides domain types and constants for the migration accelerator.
//
// This file consolidates the status, role and permission constants used
// throughout the application. Import these constants instead of defining
// local ones.
package models

import (
	"fmt"
	"strings"
)

// MigrationStatus is the display form of a migration's lifecycle status.
type MigrationStatus string

// Migration statuses. The hyphenated display form is used on the wire and in
// the local cache; the relational store keeps the underscored form.
const (
	StatusPending    MigrationStatus = "pending"
	StatusInProgress MigrationStatus = "in-progress"
	StatusSuccess    MigrationStatus = "success"
	StatusFailed     MigrationStatus = "failed"
	StatusCancelled  MigrationStatus = "cancelled"
)

// storageInProgress is the only status whose storage spelling differs.
const storageInProgress = "in_progress"

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []MigrationStatus {
	return []MigrationStatus{StatusPending, StatusInProgress, StatusSuccess, StatusFailed, StatusCancelled}
}

// IsTerminal reports whether no further transition can leave this status.
func (s MigrationStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known statuses.
func (s MigrationStatus) IsValid() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// StorageValue returns the relational-store spelling of the status.
func (s MigrationStatus) StorageValue() string {
	if s == StatusInProgress {
		return storageInProgress
	}
	return string(s)
}

// StatusFromStorage converts a stored status back to its display form.
func StatusFromStorage(value string) MigrationStatus {
	if value == storageInProgress {
		return StatusInProgress
	}
	return MigrationStatus(value)
}

// ParseStatus accepts either spelling and rejects unknown values.
func ParseStatus(value string) (MigrationStatus, error) {
	status := StatusFromStorage(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("unknown migration status %q", value)
	}
	return status, nil
}

// Role names.
const (
	RoleAdmin  = "Admin"
	RoleUser   = "User"
	RoleViewer = "Viewer"
)

// ValidRoles returns all valid role names.
func ValidRoles() []string {
	return []string{RoleAdmin, RoleUser, RoleViewer}
}

// IsValidRole checks if a role name is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// Permission names.
const (
	PermissionUpload      = "upload"
	PermissionMigrate     = "migrate"
	PermissionCancel      = "cancel"
	PermissionViewHistory = "view_history"
	PermissionAdmin       = "admin"
)

// AllPermissions returns every permission in display order.
func AllPermissions() []string {
	return []string{PermissionUpload, PermissionMigrate, PermissionCancel, PermissionViewHistory, PermissionAdmin}
}

// IsValidPermission checks if a permission name is valid.
func IsValidPermission(permission string) bool {
	for _, p := range AllPermissions() {
		if p == permission {
			return true
		}
	}
	return false
}

// RolePermissions returns the default permission set granted by a role.
// Unknown roles get the Viewer set.
func RolePermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return AllPermissions()
	case RoleUser:
		return []string{PermissionUpload, PermissionMigrate, PermissionViewHistory}
	default:
		return []string{PermissionViewHistory}
	}
}

// DefaultProject is recorded when a migration has no project.
const DefaultProject = "Unassigned"

// Outcome messages recorded on migration records.
const (
	MessageInProgress = "Migration in progress..."
	MessageSucceeded  = "Migration completed successfully"
	MessageCancelled  = "Migration cancelled by user"
	MessageTimeout    = "Migration timeout"
	MessageJobFailed  = "Migration failed"

	MessageUploadTimeout = "Upload timed out after 5 minutes"
)
