package memory

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aria-ai/aria/internal/domain/entity"
)

// memoryDoc is the BSON shape of a memory document. The embedding is
// excluded from reads that do not need it.
type memoryDoc struct {
	ID             primitive.ObjectID  `bson:"_id"`
	Content        string              `bson:"content"`
	ContentType    entity.ContentType  `bson:"content_type"`
	Categories     []string            `bson:"categories"`
	Importance     float64             `bson:"importance"`
	Confidence     *float64            `bson:"confidence"`
	Verified       bool                `bson:"verified"`
	Status         entity.MemoryStatus `bson:"status"`
	EmbeddingModel string              `bson:"embedding_model"`
	Source         entity.MemorySource `bson:"source"`
	AccessCount    int                 `bson:"access_count"`
	CreatedAt      time.Time           `bson:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at"`
	LastAccessedAt time.Time           `bson:"last_accessed_at"`
	Score          float64             `bson:"score"`
}

func (d memoryDoc) toEntity() entity.Memory {
	return entity.Memory{
		ID:             d.ID.Hex(),
		Content:        d.Content,
		ContentType:    d.ContentType,
		Categories:     d.Categories,
		Importance:     d.Importance,
		Confidence:     d.Confidence,
		Verified:       d.Verified,
		Status:         d.Status,
		EmbeddingModel: d.EmbeddingModel,
		Source:         d.Source,
		AccessCount:    d.AccessCount,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		LastAccessedAt: d.LastAccessedAt,
		Score:          d.Score,
	}
}

func toEntities(docs []memoryDoc) []entity.Memory {
	memories := make([]entity.Memory, len(docs))
	for i, d := range docs {
		memories[i] = d.toEntity()
	}
	return memories
}

// memoryProjection selects the fields decoded after a search stage plus the
// stage's relevance score. The embedding binary stays behind.
func memoryProjection(scoreMeta string) bson.M {
	return bson.M{
		"content":          1,
		"content_type":     1,
		"categories":       1,
		"importance":       1,
		"confidence":       1,
		"verified":         1,
		"status":           1,
		"embedding_model":  1,
		"source":           1,
		"access_count":     1,
		"created_at":       1,
		"updated_at":       1,
		"last_accessed_at": 1,
		"score":            bson.M{"$meta": scoreMeta},
	}
}

func mongoFindOptions(limit, skip int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}
