package models

import "time"

type UserRole string

const (
	RoleSuperAdmin UserRole = "super_admin"
	RoleAdmin      UserRole = "admin"
	RoleUser       UserRole = "user"
)

func (r UserRole) Valid() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleUser
}

type User struct {
	ID           uint       `gorm:"primaryKey"`
	Name         string     `gorm:"size:100;not null"`
	Email        string     `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string     `gorm:"size:255;not null"`
	Role         UserRole   `gorm:"size:20;not null"`
	Department   Department `gorm:"size:30;index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
