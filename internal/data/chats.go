package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// titleRunes is how much of the first message becomes a session title.
const titleRunes = 30

// ChatsStore persists chat sessions. Every query is scoped to the owning
// user, so a session belonging to someone else is indistinguishable from
// one that does not exist.
type ChatsStore struct {
	coll *mongo.Collection
}

// NewChatsStore returns a ChatsStore using the provided collection.
func NewChatsStore(coll *mongo.Collection) *ChatsStore {
	return &ChatsStore{coll: coll}
}

// ListSessions returns the user's sessions, most recently updated first.
func (s *ChatsStore) ListSessions(ctx context.Context, userID bson.ObjectID) ([]ChatSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetProjection(bson.D{{Key: "title", Value: 1}, {Key: "updated_at", Value: 1}})

	cursor, err := s.coll.Find(ctx, bson.M{"user": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []ChatSummary{} // encode as [] rather than null
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns one session if userID owns it.
func (s *ChatsStore) GetSession(ctx context.Context, userID bson.ObjectID, sessionID string) (*Chat, error) {
	id, err := bson.ObjectIDFromHex(sessionID)
	if err != nil {
		// a malformed id cannot name anything
		return nil, ErrNotFound
	}

	var chat Chat
	err = s.coll.FindOne(ctx, bson.M{"_id": id, "user": userID}).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &chat, nil
}

// UpsertSession saves a transcript. With an empty sessionID it creates a new
// session titled after the first user message; otherwise it replaces the
// message list of the session in a single document update, provided userID
// owns it.
func (s *ChatsStore) UpsertSession(ctx context.Context, userID bson.ObjectID, sessionID string, messages []ChatMessage) (*Chat, error) {
	if err := ValidateMessages(messages); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msgs := stampMessages(messages, now)

	if sessionID == "" {
		chat := &Chat{
			User:      userID,
			Title:     DeriveTitle(msgs),
			Messages:  msgs,
			CreatedAt: now,
			UpdatedAt: now,
		}
		res, err := s.coll.InsertOne(ctx, chat)
		if err != nil {
			return nil, fmt.Errorf("insert session: %w", err)
		}
		chat.ID = res.InsertedID.(bson.ObjectID)
		return chat, nil
	}

	id, err := bson.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$set": bson.M{"messages": msgs, "updated_at": now}}

	var chat Chat
	// the owner is part of the filter, so another user's id simply matches nothing
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id, "user": userID}, update, opts).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update session: %w", err)
	}
	return &chat, nil
}

// ValidateMessages rejects empty transcripts, unknown roles and blank content.
func ValidateMessages(messages []ChatMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages array is required", ErrValidation)
	}
	for i, m := range messages {
		if m.Role != MessageRoleUser && m.Role != MessageRoleBot {
			return fmt.Errorf("%w: message %d has invalid role %q", ErrValidation, i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%w: message %d has no content", ErrValidation, i)
		}
	}
	return nil
}

// DeriveTitle uses the first user message (or the first message if the user
// never spoke), cut to 30 characters with "..." appended when cut.
func DeriveTitle(messages []ChatMessage) string {
	if len(messages) == 0 {
		return ""
	}
	src := messages[0].Content
	for _, m := range messages {
		if m.Role == MessageRoleUser {
			src = m.Content
			break
		}
	}
	src = strings.Join(strings.Fields(src), " ")
	if utf8.RuneCountInString(src) <= titleRunes {
		return src
	}
	return string([]rune(src)[:titleRunes]) + "..."
}

// stampMessages copies messages, filling missing timestamps with now.
func stampMessages(messages []ChatMessage, now time.Time) []ChatMessage {
	out := make([]ChatMessage, len(messages))
	for i, m := range messages {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		out[i] = m
	}
	return out
}
