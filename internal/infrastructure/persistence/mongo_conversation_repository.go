package persistence

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
	"github.com/aria-ai/aria/internal/infrastructure/persistence/models"
	"github.com/aria-ai/aria/pkg/errors"
)

// MongoConversationRepository implements repository.ConversationRepository.
type MongoConversationRepository struct {
	coll *mongodriver.Collection
}

var _ repository.ConversationRepository = (*MongoConversationRepository)(nil)

// NewMongoConversationRepository creates the conversations repository.
func NewMongoConversationRepository(coll *mongodriver.Collection) *MongoConversationRepository {
	return &MongoConversationRepository{coll: coll}
}

func (r *MongoConversationRepository) FindByID(ctx context.Context, id string) (*entity.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.NewValidationError("invalid conversation id: " + id)
	}

	var doc models.ConversationDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err == mongodriver.ErrNoDocuments {
			return nil, errors.NewNotFoundError("conversation not found: " + id)
		}
		return nil, err
	}
	conv := doc.ToEntity()
	return &conv, nil
}

func (r *MongoConversationRepository) FindAll(ctx context.Context, status entity.ConversationStatus, limit, skip int) ([]entity.Conversation, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetProjection(bson.M{"messages": 0})
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.ConversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	convs := make([]entity.Conversation, len(docs))
	for i, d := range docs {
		convs[i] = d.ToEntity()
	}
	return convs, nil
}

func (r *MongoConversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	if conv.Status == "" {
		conv.Status = entity.ConversationActive
	}

	doc, err := models.ConversationDocFromEntity(conv)
	if err != nil {
		return errors.NewValidationError("invalid conversation: " + err.Error())
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	conv.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (r *MongoConversationRepository) UpdateMeta(ctx context.Context, id string, patch map[string]any) (*entity.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.NewValidationError("invalid conversation id: " + id)
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range patch {
		set[k] = v
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, errors.NewNotFoundError("conversation not found: " + id)
	}
	return r.FindByID(ctx, id)
}

func (r *MongoConversationRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.NewValidationError("invalid conversation id: " + id)
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errors.NewNotFoundError("conversation not found: " + id)
	}
	return nil
}

// AppendMessage pushes a message and bumps the stats counters in one atomic
// update. The whole document is never load-modify-written.
func (r *MongoConversationRepository) AppendMessage(ctx context.Context, id string, msg entity.Message, tokenDelta, toolCallDelta int) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.NewValidationError("invalid conversation id: " + id)
	}

	inc := bson.M{"stats.message_count": 1}
	if tokenDelta != 0 {
		inc["stats.total_tokens"] = tokenDelta
	}
	if toolCallDelta != 0 {
		inc["stats.tool_calls"] = toolCallDelta
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
		"$inc":  inc,
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errors.NewNotFoundError("conversation not found: " + id)
	}
	return nil
}

// RecentMessages loads the newest max messages via $slice, already in
// chronological order because the array is append-only.
func (r *MongoConversationRepository) RecentMessages(ctx context.Context, id string, max int) ([]entity.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.NewValidationError("invalid conversation id: " + id)
	}
	if max <= 0 {
		max = 20
	}

	opts := options.FindOne().SetProjection(bson.M{
		"messages": bson.M{"$slice": -max},
	})

	var doc models.ConversationDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		if err == mongodriver.ErrNoDocuments {
			return nil, errors.NewNotFoundError("conversation not found: " + id)
		}
		return nil, err
	}
	return doc.Messages, nil
}

func (r *MongoConversationRepository) UnprocessedMessages(ctx context.Context, id string) ([]entity.Message, error) {
	conv, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var out []entity.Message
	for _, m := range conv.Messages {
		if m.MemoryProcessed {
			continue
		}
		if m.Role != entity.RoleUser && m.Role != entity.RoleAssistant {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// MarkMessagesProcessed sets memory_processed=true on every message whose
// id is in ids, using a positional array filter.
func (r *MongoConversationRepository) MarkMessagesProcessed(ctx context.Context, id string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.NewValidationError("invalid conversation id: " + id)
	}

	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []any{bson.M{"m.id": bson.M{"$in": ids}}},
	})

	_, err = r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"messages.$[m].memory_processed": true},
	}, opts)
	return err
}
