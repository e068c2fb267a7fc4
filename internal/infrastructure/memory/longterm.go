// Package memory implements the durable memory layers: the long-term store
// with hybrid retrieval, the short-term conversation window, and the
// background extractor.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/pkg/errors"
)

const (
	vectorIndexName = "memory_vector_index"
	textIndexName   = "memory_text_index"
	rrfK            = 60
)

// Embedder is the slice of the embedding service the store needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LongTermStore provides CRUD and hybrid search over the memories
// collection.
type LongTermStore struct {
	coll     *mongodriver.Collection
	embedder Embedder
	model    string // embedding model tag written with every vector
	logger   *zap.Logger
}

// NewLongTermStore creates the long-term memory store.
func NewLongTermStore(coll *mongodriver.Collection, embedder Embedder, model string, logger *zap.Logger) *LongTermStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LongTermStore{coll: coll, embedder: embedder, model: model, logger: logger}
}

// Create embeds content and inserts a new active memory, returning its id.
func (s *LongTermStore) Create(ctx context.Context, content string, contentType entity.ContentType, categories []string, importance float64, confidence *float64, source entity.MemorySource) (string, error) {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", err
	}

	if categories == nil {
		categories = []string{}
	}
	now := time.Now().UTC()
	doc := bson.M{
		"content":          content,
		"content_type":     contentType,
		"embedding":        VectorToBinary(vec),
		"embedding_model":  s.model,
		"source":           source,
		"status":           entity.MemoryActive,
		"importance":       importance,
		"confidence":       confidence,
		"verified":         false,
		"created_at":       now,
		"updated_at":       now,
		"last_accessed_at": now,
		"access_count":     0,
		"categories":       categories,
		"entities":         []string{},
	}

	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}
	id := res.InsertedID.(primitive.ObjectID)
	return id.Hex(), nil
}

// Update applies a patch to a memory. A content change recomputes the
// embedding and rewrites it in the same update, so no observable state ever
// pairs new content with a stale vector.
func (s *LongTermStore) Update(ctx context.Context, id string, patch map[string]any) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.NewValidationError("invalid memory id: " + id)
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range patch {
		set[k] = v
	}

	if content, ok := patch["content"].(string); ok {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			return err
		}
		set["embedding"] = VectorToBinary(vec)
		set["embedding_model"] = s.model
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errors.NewNotFoundError("memory not found: " + id)
	}
	return nil
}

// SoftDelete marks a memory deleted. The document remains retrievable by id
// but is excluded from search.
func (s *LongTermStore) SoftDelete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.NewValidationError("invalid memory id: " + id)
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"status": entity.MemoryDeleted, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errors.NewNotFoundError("memory not found: " + id)
	}
	return nil
}

// IncrementAccess bumps the access counter and touch timestamp.
func (s *LongTermStore) IncrementAccess(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.NewValidationError("invalid memory id: " + id)
	}
	_, err = s.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"last_accessed_at": time.Now().UTC()},
		"$inc": bson.M{"access_count": 1},
	})
	return err
}

// Get fetches a memory by id regardless of status.
func (s *LongTermStore) Get(ctx context.Context, id string) (*entity.Memory, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.NewValidationError("invalid memory id: " + id)
	}
	var doc memoryDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err == mongodriver.ErrNoDocuments {
			return nil, errors.NewNotFoundError("memory not found: " + id)
		}
		return nil, err
	}
	m := doc.toEntity()
	return &m, nil
}

// List returns active memories, newest first, with optional content_type
// filter.
func (s *LongTermStore) List(ctx context.Context, contentType entity.ContentType, limit, skip int) ([]entity.Memory, error) {
	filter := bson.M{"status": entity.MemoryActive}
	if contentType != "" {
		filter["content_type"] = contentType
	}

	opts := mongoFindOptions(limit, skip)
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []memoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	memories := make([]entity.Memory, len(docs))
	for i, d := range docs {
		memories[i] = d.toEntity()
	}
	return memories, nil
}

// Search runs hybrid retrieval: vector and lexical lanes in parallel over
// active memories, fused with reciprocal rank fusion (k=60). Either lane
// failing degrades to the other lane's ranking.
func (s *LongTermStore) Search(ctx context.Context, query string, limit int, filters map[string]any) ([]entity.Memory, error) {
	if limit <= 0 {
		limit = 10
	}

	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	baseFilter := bson.M{"status": entity.MemoryActive}
	for k, v := range filters {
		baseFilter[k] = v
	}

	var (
		wg             sync.WaitGroup
		vectorResults  []entity.Memory
		lexicalResults []entity.Memory
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorResults = s.vectorSearch(ctx, qv, baseFilter, limit*2)
	}()
	go func() {
		defer wg.Done()
		lexicalResults = s.lexicalSearch(ctx, query, baseFilter, limit*2)
	}()
	wg.Wait()

	fused := rrfFuse(vectorResults, lexicalResults, rrfK)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// vectorSearch runs the $vectorSearch lane. Failures are logged and return
// an empty list, never an error.
func (s *LongTermStore) vectorSearch(ctx context.Context, qv []float32, filter bson.M, limit int) []entity.Memory {
	pipeline := mongodriver.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         vectorIndexName,
			"path":          "embedding",
			"queryVector":   qv,
			"numCandidates": limit * 10,
			"limit":         limit,
			"filter":        filter,
		}}},
		{{Key: "$project", Value: memoryProjection("vectorSearchScore")}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		s.logger.Warn("Vector search failed, degrading to lexical only", zap.Error(err))
		return nil
	}
	defer cursor.Close(ctx)

	var docs []memoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		s.logger.Warn("Vector search decode failed", zap.Error(err))
		return nil
	}
	return toEntities(docs)
}

// lexicalSearch runs the $search lane (BM25-class scoring, single-edit
// fuzzy) over content and categories. Failures degrade to empty.
func (s *LongTermStore) lexicalSearch(ctx context.Context, query string, filter bson.M, limit int) []entity.Memory {
	pipeline := mongodriver.Pipeline{
		{{Key: "$search", Value: bson.M{
			"index": textIndexName,
			"text": bson.M{
				"query": query,
				"path":  []string{"content", "categories"},
				"fuzzy": bson.M{"maxEdits": 1},
			},
		}}},
		{{Key: "$match", Value: filter}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$project", Value: memoryProjection("searchScore")}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		s.logger.Warn("Lexical search failed, degrading to vector only", zap.Error(err))
		return nil
	}
	defer cursor.Close(ctx)

	var docs []memoryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		s.logger.Warn("Lexical search decode failed", zap.Error(err))
		return nil
	}
	return toEntities(docs)
}

// rrfFuse combines two ranked lists with reciprocal rank fusion:
// score = Σ 1/(k+rank) over the lists a document appears in, rank 1-based.
// Sorting is stable so ties keep first-seen order.
func rrfFuse(vector, lexical []entity.Memory, k int) []entity.Memory {
	type fusedEntry struct {
		memory entity.Memory
		score  float64
		order  int
	}

	entries := make(map[string]*fusedEntry)
	order := 0
	accumulate := func(list []entity.Memory) {
		for rank, m := range list {
			e, ok := entries[m.ID]
			if !ok {
				e = &fusedEntry{memory: m, order: order}
				entries[m.ID] = e
				order++
			}
			e.score += 1.0 / float64(k+rank+1)
		}
	}
	accumulate(vector)
	accumulate(lexical)

	fused := make([]*fusedEntry, 0, len(entries))
	for _, e := range entries {
		fused = append(fused, e)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].order < fused[j].order
	})

	result := make([]entity.Memory, len(fused))
	for i, e := range fused {
		e.memory.Score = e.score
		result[i] = e.memory
	}
	return result
}
