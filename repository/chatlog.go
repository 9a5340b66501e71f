package repository

import (
	"context"
	"log/slog"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/avelkar/aria/backend/models"
)

// ChatLogRepository persists chat transcripts and agent bindings in the
// document store. Two collections: a per-user agent index and per-user-per-day
// chat documents.
type ChatLogRepository struct {
	index *mongo.Collection
	days  *mongo.Collection
}

func NewChatLogRepository(db *mongo.Database) *ChatLogRepository {
	return &ChatLogRepository{
		index: db.Collection("agent_index"),
		days:  db.Collection("chat_days"),
	}
}

// AppendEntry pushes one entry onto the user's chat document for the entry's
// calendar day, creating the document on first write, and records the day
// document id in the user's index.
func (r *ChatLogRepository) AppendEntry(ctx context.Context, userID string, entry models.ChatEntry) error {
	dayID := models.ChatDayID(userID, entry.Timestamp)

	_, err := r.days.UpdateByID(ctx, dayID, bson.M{
		"$setOnInsert": bson.M{"user_id": userID},
		"$push":        bson.M{"chat_history": entry},
	}, options.Update().SetUpsert(true))
	if err != nil {
		slog.Error("Failed to append chat entry", "error", err, "user_id", userID, "day_id", dayID)
		return err
	}

	_, err = r.index.UpdateByID(ctx, userID, bson.M{
		"$addToSet": bson.M{"chat_days": dayID},
	}, options.Update().SetUpsert(true))
	if err != nil {
		slog.Error("Failed to index chat day", "error", err, "user_id", userID, "day_id", dayID)
		return err
	}
	return nil
}

// History returns the user's full transcript in chronological order. Document
// and array order are storage artifacts, so entries are always flattened and
// re-sorted by timestamp.
func (r *ChatLogRepository) History(ctx context.Context, userID string) ([]models.ChatEntry, error) {
	cursor, err := r.days.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		slog.Error("Failed to load chat history", "error", err, "user_id", userID)
		return nil, err
	}

	var chatDays []models.ChatDay
	if err := cursor.All(ctx, &chatDays); err != nil {
		slog.Error("Failed to decode chat history", "error", err, "user_id", userID)
		return nil, err
	}

	return FlattenDays(chatDays), nil
}

// FlattenDays merges day buckets into one transcript sorted by timestamp.
// The sort is stable so entries sharing a timestamp keep their bucket order.
func FlattenDays(chatDays []models.ChatDay) []models.ChatEntry {
	entries := []models.ChatEntry{}
	for _, day := range chatDays {
		entries = append(entries, day.Entries...)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}

// GetBinding returns the user's agent binding for a persona, or nil when the
// user has never chatted with that persona.
func (r *ChatLogRepository) GetBinding(ctx context.Context, userID, persona string) (*models.AgentBinding, error) {
	var index models.AgentIndex
	err := r.index.FindOne(ctx, bson.M{"_id": userID}).Decode(&index)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		slog.Error("Failed to get agent binding", "error", err, "user_id", userID, "persona", persona)
		return nil, err
	}
	return index.BindingFor(persona), nil
}

// SaveBinding records a binding unless one already exists for the persona.
// The binding list is a set keyed by the persona-derived agent name, so a
// concurrent or repeated save never produces a duplicate.
func (r *ChatLogRepository) SaveBinding(ctx context.Context, userID string, binding models.AgentBinding) error {
	res, err := r.index.UpdateOne(ctx,
		bson.M{"_id": userID, "agents.persona": bson.M{"$ne": binding.Persona}},
		bson.M{"$push": bson.M{"agents": binding}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Upsert raced with an existing index doc that already holds the
			// persona; the existing binding wins.
			return nil
		}
		slog.Error("Failed to save agent binding", "error", err, "user_id", userID, "persona", binding.Persona)
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		slog.Info("Agent binding already present", "user_id", userID, "persona", binding.Persona)
	}
	return nil
}

// ListBindings returns every binding recorded for the user.
func (r *ChatLogRepository) ListBindings(ctx context.Context, userID string) ([]models.AgentBinding, error) {
	var index models.AgentIndex
	err := r.index.FindOne(ctx, bson.M{"_id": userID}).Decode(&index)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		slog.Error("Failed to list agent bindings", "error", err, "user_id", userID)
		return nil, err
	}
	return index.Bindings, nil
}

// DeleteUserData drops the user's index document and every chat day document.
func (r *ChatLogRepository) DeleteUserData(ctx context.Context, userID string) error {
	if _, err := r.days.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		slog.Error("Failed to delete chat days", "error", err, "user_id", userID)
		return err
	}
	if _, err := r.index.DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		slog.Error("Failed to delete agent index", "error", err, "user_id", userID)
		return err
	}
	slog.Info("Chat data deleted", "user_id", userID)
	return nil
}
