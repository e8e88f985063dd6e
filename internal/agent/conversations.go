package agent

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ContentPart is one block of message content. Text is the only part type
// the agent produces today; the shape leaves room for attachments.
type ContentPart struct {
	Type string `bson:"type" json:"type"`
	Text string `bson:"text,omitempty" json:"text,omitempty"`
}

// ChatMessage is one persisted transcript entry.
type ChatMessage struct {
	ID    string        `bson:"id" json:"id"`
	Role  string        `bson:"role" json:"role"`
	Parts []ContentPart `bson:"parts" json:"parts"`
}

// Text flattens the message parts into one string for the model.
func (m ChatMessage) Text() string {
	out := ""
	for _, part := range m.Parts {
		if part.Type == "text" {
			out += part.Text
		}
	}
	return out
}

// TextMessage builds a single-part text message.
func TextMessage(id, role, text string) ChatMessage {
	return ChatMessage{
		ID:    id,
		Role:  role,
		Parts: []ContentPart{{Type: "text", Text: text}},
	}
}

// Transcript is the authoritative stored conversation.
type Transcript struct {
	ID        string        `bson:"_id" json:"id"`
	TenantID  string        `bson:"tenant_id" json:"tenant_id"`
	UserID    string        `bson:"user_id" json:"user_id"`
	Title     string        `bson:"title,omitempty" json:"title,omitempty"`
	Messages  []ChatMessage `bson:"messages" json:"messages"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
}

// ConversationStore persists transcripts, always scoped to tenant and user.
type ConversationStore struct {
	collection *mongo.Collection
}

func NewConversationStore(db *mongo.Database) *ConversationStore {
	return &ConversationStore{collection: db.Collection("conversations")}
}

// Get returns nil with no error when the transcript does not exist yet.
func (s *ConversationStore) Get(ctx context.Context, tenantID, userID, id string) (*Transcript, error) {
	var transcript Transcript
	err := s.collection.FindOne(ctx, bson.M{
		"_id":       id,
		"tenant_id": tenantID,
		"user_id":   userID,
	}).Decode(&transcript)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transcript, nil
}

func (s *ConversationStore) Save(ctx context.Context, transcript Transcript) error {
	transcript.UpdatedAt = time.Now()
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": transcript.ID, "tenant_id": transcript.TenantID, "user_id": transcript.UserID},
		bson.M{"$set": transcript},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// List returns the caller's conversations, newest first, without message
// bodies.
func (s *ConversationStore) List(ctx context.Context, tenantID, userID string) ([]Transcript, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"tenant_id": tenantID, "user_id": userID},
		options.Find().
			SetSort(bson.M{"updated_at": -1}).
			SetProjection(bson.M{"messages": 0}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var transcripts []Transcript
	if err := cursor.All(ctx, &transcripts); err != nil {
		return nil, err
	}
	return transcripts, nil
}

func (s *ConversationStore) Delete(ctx context.Context, tenantID, userID, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":       id,
		"tenant_id": tenantID,
		"user_id":   userID,
	})
	return err
}
