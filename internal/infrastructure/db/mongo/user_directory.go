package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yarago/auth-service/internal/core/domain"
)

const usersCollection = "users"

// UserDirectory implements ports.UserDirectory on a MongoDB collection.
// Lockout bookkeeping relies on single-document atomic updates filtered on
// the lock flag, so concurrent failures never under-count.
type UserDirectory struct {
	col *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{col: db.Collection(usersCollection)}
}

type userDocument struct {
	ID                  string     `bson:"_id"`
	Username            string     `bson:"username"`
	Email               string     `bson:"email"`
	PasswordHash        string     `bson:"password_hash"`
	Active              bool       `bson:"active"`
	AccountLocked       bool       `bson:"account_locked"`
	FailedLoginAttempts int        `bson:"failed_login_attempts"`
	LastLoginAt         *time.Time `bson:"last_login_at,omitempty"`
	PasswordChangedAt   *time.Time `bson:"password_changed_at,omitempty"`
	Roles               []string   `bson:"roles"`
	BranchID            string     `bson:"branch_id,omitempty"`
	FirstName           string     `bson:"first_name,omitempty"`
	LastName            string     `bson:"last_name,omitempty"`
	PhoneNumber         string     `bson:"phone_number,omitempty"`
	Designation         string     `bson:"designation,omitempty"`
	Department          string     `bson:"department,omitempty"`
	EmployeeID          string     `bson:"employee_id,omitempty"`
	CreatedAt           time.Time  `bson:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at"`
}

func toUserDocument(u *domain.User) userDocument {
	return userDocument{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		PasswordHash:        u.PasswordHash,
		Active:              u.Active,
		AccountLocked:       u.AccountLocked,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LastLoginAt:         u.LastLoginAt,
		PasswordChangedAt:   u.PasswordChangedAt,
		Roles:               u.Roles,
		BranchID:            u.BranchID,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		PhoneNumber:         u.PhoneNumber,
		Designation:         u.Designation,
		Department:          u.Department,
		EmployeeID:          u.EmployeeID,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func (d userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:                  d.ID,
		Username:            d.Username,
		Email:               d.Email,
		PasswordHash:        d.PasswordHash,
		Active:              d.Active,
		AccountLocked:       d.AccountLocked,
		FailedLoginAttempts: d.FailedLoginAttempts,
		LastLoginAt:         d.LastLoginAt,
		PasswordChangedAt:   d.PasswordChangedAt,
		Roles:               d.Roles,
		BranchID:            d.BranchID,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		PhoneNumber:         d.PhoneNumber,
		Designation:         d.Designation,
		Department:          d.Department,
		EmployeeID:          d.EmployeeID,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

// EnsureIndexes creates the unique identifier indexes on the users collection.
func (r *UserDirectory) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *UserDirectory) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toUserDocument(user)
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

// FindByIdentifier matches the username first and falls back to the email, so
// a username that equals another user's email always resolves to its owner.
func (r *UserDirectory) FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	u, err := r.findOne(ctx, bson.M{"username": identifier})
	if !errors.Is(err, domain.ErrUserNotFound) {
		return u, err
	}
	return r.findOne(ctx, bson.M{"email": identifier})
}

func (r *UserDirectory) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserDirectory) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserDirectory) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

// RecordLoginFailure increments the counter and computes the lock flag in one
// pipeline update. The filter skips locked accounts, so a locked account is
// never incremented.
func (r *UserDirectory) RecordLoginFailure(ctx context.Context, userID string, maxAttempts int) (domain.LoginFailure, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "failed_login_attempts", Value: bson.D{{Key: "$add", Value: bson.A{"$failed_login_attempts", 1}}}},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "account_locked", Value: bson.D{{Key: "$gte", Value: bson.A{"$failed_login_attempts", maxAttempts}}}},
		}}},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"failed_login_attempts": 1, "account_locked": 1})

	var doc userDocument
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": userID, "account_locked": false}, pipeline, opts).Decode(&doc)
	if err == nil {
		return domain.LoginFailure{Attempts: doc.FailedLoginAttempts, Locked: doc.AccountLocked, Recorded: true}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.LoginFailure{}, fmt.Errorf("record login failure: %w", err)
	}

	// Either the account is gone or it is already locked.
	current, err := r.FindByID(ctx, userID)
	if err != nil {
		return domain.LoginFailure{}, err
	}
	return domain.LoginFailure{Attempts: current.FailedLoginAttempts, Locked: current.AccountLocked}, nil
}

func (r *UserDirectory) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": userID, "account_locked": false},
		bson.M{"$set": bson.M{
			"failed_login_attempts": 0,
			"last_login_at":         at,
			"updated_at":            time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, userID); err != nil {
			return err
		}
		return domain.ErrAccountLocked
	}
	return nil
}

func (r *UserDirectory) Unlock(ctx context.Context, userID string) error {
	return r.set(ctx, userID, bson.M{
		"account_locked":        false,
		"failed_login_attempts": 0,
	})
}

func (r *UserDirectory) SetActive(ctx context.Context, userID string, active bool) error {
	return r.set(ctx, userID, bson.M{"active": active})
}

func (r *UserDirectory) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	return r.set(ctx, userID, bson.M{
		"password_hash":         passwordHash,
		"password_changed_at":   at,
		"account_locked":        false,
		"failed_login_attempts": 0,
	})
}

func (r *UserDirectory) set(ctx context.Context, userID string, fields bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	fields["updated_at"] = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
