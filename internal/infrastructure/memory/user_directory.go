// Package memory holds in-process implementations of the directory and
// session ports. They back development runs and tests; each user gets its own
// critical section and no lock spans more than one user's records.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/yarago/auth-service/internal/core/domain"
)

type userRecord struct {
	mu   sync.Mutex
	user domain.User
}

// UserDirectory is a map-backed ports.UserDirectory.
type UserDirectory struct {
	mu         sync.RWMutex
	byID       map[string]*userRecord
	byUsername map[string]string
	byEmail    map[string]string
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{
		byID:       make(map[string]*userRecord),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	if u.PasswordChangedAt != nil {
		t := *u.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	return &c
}

func (d *UserDirectory) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byUsername[user.Username]; taken {
		return nil, domain.ErrDuplicateIdentifier
	}
	if _, taken := d.byEmail[user.Email]; taken {
		return nil, domain.ErrDuplicateIdentifier
	}
	if _, taken := d.byID[user.ID]; taken {
		return nil, domain.ErrDuplicateIdentifier
	}

	rec := &userRecord{user: *cloneUser(user)}
	d.byID[user.ID] = rec
	d.byUsername[user.Username] = user.ID
	d.byEmail[user.Email] = user.ID
	return cloneUser(&rec.user), nil
}

func (d *UserDirectory) FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	d.mu.RLock()
	id, ok := d.byUsername[identifier]
	if !ok {
		id, ok = d.byEmail[identifier]
	}
	d.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return d.FindByID(ctx, id)
}

func (d *UserDirectory) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	d.mu.RLock()
	id, ok := d.byUsername[username]
	d.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return d.FindByID(ctx, id)
}

func (d *UserDirectory) FindByID(_ context.Context, id string) (*domain.User, error) {
	rec, err := d.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return cloneUser(&rec.user), nil
}

func (d *UserDirectory) RecordLoginFailure(_ context.Context, userID string, maxAttempts int) (domain.LoginFailure, error) {
	rec, err := d.record(userID)
	if err != nil {
		return domain.LoginFailure{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	u := &rec.user
	if u.AccountLocked {
		return domain.LoginFailure{Attempts: u.FailedLoginAttempts, Locked: true}, nil
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		u.AccountLocked = true
	}
	u.UpdatedAt = time.Now().UTC()
	return domain.LoginFailure{Attempts: u.FailedLoginAttempts, Locked: u.AccountLocked, Recorded: true}, nil
}

func (d *UserDirectory) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	return d.update(userID, func(u *domain.User) error {
		if u.AccountLocked {
			return domain.ErrAccountLocked
		}
		u.FailedLoginAttempts = 0
		u.LastLoginAt = &at
		return nil
	})
}

func (d *UserDirectory) Unlock(_ context.Context, userID string) error {
	return d.update(userID, func(u *domain.User) error {
		u.AccountLocked = false
		u.FailedLoginAttempts = 0
		return nil
	})
}

func (d *UserDirectory) SetActive(_ context.Context, userID string, active bool) error {
	return d.update(userID, func(u *domain.User) error {
		u.Active = active
		return nil
	})
}

func (d *UserDirectory) UpdatePassword(_ context.Context, userID, passwordHash string, at time.Time) error {
	return d.update(userID, func(u *domain.User) error {
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = &at
		u.AccountLocked = false
		u.FailedLoginAttempts = 0
		return nil
	})
}

func (d *UserDirectory) record(id string) (*userRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return rec, nil
}

func (d *UserDirectory) update(id string, fn func(u *domain.User) error) error {
	rec, err := d.record(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := fn(&rec.user); err != nil {
		return err
	}
	rec.user.UpdatedAt = time.Now().UTC()
	return nil
}

// RoleDirectory is a fixed, read-only ports.RoleDirectory.
type RoleDirectory struct {
	roles []domain.Role
}

// NewRoleDirectory returns a directory holding roles, or domain.SeedRoles()
// when none are given.
func NewRoleDirectory(roles ...domain.Role) *RoleDirectory {
	if len(roles) == 0 {
		roles = domain.SeedRoles()
	}
	return &RoleDirectory{roles: slices.Clone(roles)}
}

func (d *RoleDirectory) FindByName(_ context.Context, name string) (*domain.Role, error) {
	for _, r := range d.roles {
		if r.Name == name {
			role := r
			return &role, nil
		}
	}
	return nil, domain.ErrRoleNotFound
}

func (d *RoleDirectory) List(_ context.Context) ([]domain.Role, error) {
	return slices.Clone(d.roles), nil
}
