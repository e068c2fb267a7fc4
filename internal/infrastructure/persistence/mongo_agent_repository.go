// Package persistence implements the domain repository ports on MongoDB.
package persistence

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
	"github.com/aria-ai/aria/internal/infrastructure/persistence/models"
	"github.com/aria-ai/aria/pkg/errors"
)

// MongoAgentRepository implements repository.AgentRepository.
type MongoAgentRepository struct {
	coll *mongodriver.Collection
}

var _ repository.AgentRepository = (*MongoAgentRepository)(nil)

// NewMongoAgentRepository creates the agents repository.
func NewMongoAgentRepository(coll *mongodriver.Collection) *MongoAgentRepository {
	return &MongoAgentRepository{coll: coll}
}

func (r *MongoAgentRepository) FindByID(ctx context.Context, id string) (*entity.Agent, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.NewValidationError("invalid agent id: " + id)
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *MongoAgentRepository) FindBySlug(ctx context.Context, slug string) (*entity.Agent, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *MongoAgentRepository) FindDefault(ctx context.Context) (*entity.Agent, error) {
	return r.findOne(ctx, bson.M{"is_default": true})
}

func (r *MongoAgentRepository) findOne(ctx context.Context, filter bson.M) (*entity.Agent, error) {
	var doc models.AgentDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongodriver.ErrNoDocuments {
			return nil, errors.NewNotFoundError("agent not found")
		}
		return nil, err
	}
	agent := doc.ToEntity()
	return &agent, nil
}

func (r *MongoAgentRepository) FindAll(ctx context.Context) ([]entity.Agent, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, mongoFindOptions(0, 0))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.AgentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	agents := make([]entity.Agent, len(docs))
	for i, d := range docs {
		agents[i] = d.ToEntity()
	}
	return agents, nil
}

func (r *MongoAgentRepository) Create(ctx context.Context, agent *entity.Agent) error {
	if existing, err := r.FindBySlug(ctx, agent.Slug); err == nil && existing != nil {
		return errors.NewAlreadyExistsError("agent slug already exists: " + agent.Slug)
	}

	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	doc, err := models.AgentDocFromEntity(agent)
	if err != nil {
		return errors.NewValidationError("invalid agent id")
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	agent.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (r *MongoAgentRepository) Update(ctx context.Context, id string, patch map[string]any) (*entity.Agent, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.NewValidationError("invalid agent id: " + id)
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
		return nil, errors.NewNotFoundError("agent not found: " + id)
	}
	return r.FindByID(ctx, id)
}

func (r *MongoAgentRepository) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.NewValidationError("invalid agent id: " + id)
	}

	agent, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if agent.IsDefault {
		return errors.NewValidationError("cannot delete default agent")
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errors.NewNotFoundError("agent not found: " + id)
	}
	return nil
}
