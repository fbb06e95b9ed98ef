package domain

import "time"

// Role names.
const (
	RoleAdmin        = "ROLE_ADMIN"
	RoleDoctor       = "ROLE_DOCTOR"
	RoleOptometrist  = "ROLE_OPTOMETRIST"
	RoleReceptionist = "ROLE_RECEPTIONIST"
	RoleCounselor    = "ROLE_COUNSELOR"
	RoleBillingStaff = "ROLE_BILLING_STAFF"

	// DefaultRole is assigned at registration when no role is requested.
	DefaultRole = RoleReceptionist
)

// SeedRoles is the role catalogue installed on an empty directory.
func SeedRoles() []Role {
	return []Role{
		{Name: RoleAdmin, Description: "System administrator"},
		{Name: RoleDoctor, Description: "Doctor"},
		{Name: RoleOptometrist, Description: "Optometrist"},
		{Name: RoleReceptionist, Description: "Front desk receptionist"},
		{Name: RoleCounselor, Description: "Counselor"},
		{Name: RoleBillingStaff, Description: "Billing staff"},
	}
}

// MaxLoginAttempts is the number of consecutive failed logins after which an
// account is locked.
const MaxLoginAttempts = 5

// User is an account that can authenticate.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	Active              bool
	AccountLocked       bool
	FailedLoginAttempts int
	LastLoginAt         *time.Time
	PasswordChangedAt   *time.Time
	Roles               []string
	BranchID            string

	FirstName   string
	LastName    string
	PhoneNumber string
	Designation string
	Department  string
	EmployeeID  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanAuthenticate reports whether the account may start or keep a session.
func (u *User) CanAuthenticate() bool {
	return u.Active && !u.AccountLocked
}

// Role is a named permission group attached to users.
type Role struct {
	Name        string
	Description string
}

// LoginFailure is the account state after a failed attempt was recorded.
// Recorded is false when the account was already locked and nothing changed.
type LoginFailure struct {
	Attempts int
	Locked   bool
	Recorded bool
}

// JustLocked reports whether this failure is the one that locked the account.
func (f LoginFailure) JustLocked() bool {
	return f.Recorded && f.Locked
}
