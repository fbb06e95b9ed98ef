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

const rolesCollection = "roles"

// RoleDirectory implements ports.RoleDirectory. Role names are document ids.
type RoleDirectory struct {
	col *mongo.Collection
}

func NewRoleDirectory(db *mongo.Database) *RoleDirectory {
	return &RoleDirectory{col: db.Collection(rolesCollection)}
}

type roleDocument struct {
	Name        string    `bson:"_id"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"created_at"`
}

// Seed inserts any of roles that do not exist yet. Existing roles are left
// untouched.
func (r *RoleDirectory) Seed(ctx context.Context, roles []domain.Role) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	for _, role := range roles {
		_, err := r.col.UpdateOne(ctx,
			bson.M{"_id": role.Name},
			bson.M{"$setOnInsert": roleDocument{Name: role.Name, Description: role.Description, CreatedAt: now}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", role.Name, err)
		}
	}
	return nil
}

func (r *RoleDirectory) FindByName(ctx context.Context, name string) (*domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc roleDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": name}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &domain.Role{Name: doc.Name, Description: doc.Description}, nil
}

func (r *RoleDirectory) List(ctx context.Context) ([]domain.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	var docs []roleDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}

	roles := make([]domain.Role, 0, len(docs))
	for _, d := range docs {
		roles = append(roles, domain.Role{Name: d.Name, Description: d.Description})
	}
	return roles, nil
}
