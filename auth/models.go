package auth

import "time"

type Role string

const (
	RoleDoctor      Role = "doctor"
	RoleExpert      Role = "expert"
	RoleNurse       Role = "nurse"
	RoleCoordinator Role = "coordinator"
	RoleAdmin       Role = "admin"
)

// User is the domain representation of a clinical staff account.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID            string
	Email         string
	FullName      string
	PasswordHash  string
	Phone         *string
	Specialty     *string
	LicenseNumber *string
	FacilityID    *string
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	FullName      string  `json:"full_name"`
	Role          Role    `json:"role"`
	Specialty     *string `json:"specialty,omitempty"`
	LicenseNumber *string `json:"license_number,omitempty"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
