package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Role is a user's authorization role.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// DefaultProfileImageURL is assigned to users at signup.
const DefaultProfileImageURL = "/images/default.png"

// User maps to the users collection. Password holds a bcrypt hash, never plaintext.
type User struct {
	ID              bson.ObjectID `bson:"_id,omitempty"`
	FullName        string        `bson:"full_name"`
	Email           string        `bson:"email"`
	Password        string        `bson:"password"`
	Role            Role          `bson:"role"`
	ProfileImageURL string        `bson:"profile_image_url"`
	CreatedAt       time.Time     `bson:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at"`
}

// Message roles in a stored transcript.
const (
	MessageRoleUser = "user"
	MessageRoleBot  = "bot"
)

// ChatMessage is one transcript line. Audio and cues are never persisted.
type ChatMessage struct {
	Role      string    `bson:"role" json:"role" validate:"required,oneof=user bot"`
	Content   string    `bson:"content" json:"content" validate:"required"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Chat maps to the chats collection: one saved conversation owned by User.
type Chat struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	User      bson.ObjectID `bson:"user" json:"user"`
	Title     string        `bson:"title" json:"title"`
	Messages  []ChatMessage `bson:"messages" json:"messages"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updatedAt"`
}

// ChatSummary is the listing projection of a Chat.
type ChatSummary struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	Title     string        `bson:"title" json:"title"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updatedAt"`
}
