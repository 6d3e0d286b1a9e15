// Package data provides DB models and stores.
package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/PaulBabatuyi/copassenger-api/internal/normalize"
)

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is the "users" collection; its unique email index is created by db.CreateIndexes
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user with an already hashed password.
func (u *UsersStore) CreateUser(ctx context.Context, fullName, email, hashedPassword string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		FullName:        normalize.FullName(fullName),
		Email:           normalize.Email(email), // stored lower-case so lookups are case-insensitive
		Password:        hashedPassword,
		Role:            RoleUser,
		ProfileImageURL: DefaultProfileImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// the unique index is the source of truth for duplicates, even under concurrent signups
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		// the token may outlive the account
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserExists checks if a user exists by email.
func (u *UsersStore) UserExists(ctx context.Context, email string) (bool, error) {
	count, err := u.coll.CountDocuments(ctx, bson.M{"email": normalize.Email(email)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdatePassword replaces the stored hash. The previous password stops
// working as soon as this returns.
func (u *UsersStore) UpdatePassword(ctx context.Context, id bson.ObjectID, hashedPassword string) error {
	res, err := u.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"password": hashedPassword, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
