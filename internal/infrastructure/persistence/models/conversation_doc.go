package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aria-ai/aria/internal/domain/entity"
)

// ConversationDoc is the conversations collection document. Messages embed
// directly; they are appended with $push and never rewritten in place.
type ConversationDoc struct {
	ID        primitive.ObjectID        `bson:"_id,omitempty"`
	AgentID   primitive.ObjectID        `bson:"agent_id"`
	Title     string                    `bson:"title"`
	Summary   string                    `bson:"summary,omitempty"`
	Status    entity.ConversationStatus `bson:"status"`
	LLM       entity.LLMSnapshot        `bson:"llm_config"`
	Messages  []entity.Message          `bson:"messages"`
	Tags      []string                  `bson:"tags"`
	Pinned    bool                      `bson:"pinned"`
	Stats     entity.ConversationStats  `bson:"stats"`
	CreatedAt time.Time                 `bson:"created_at"`
	UpdatedAt time.Time                 `bson:"updated_at"`
}

// ToEntity converts the document to the domain entity.
func (d ConversationDoc) ToEntity() entity.Conversation {
	return entity.Conversation{
		ID:        d.ID.Hex(),
		AgentID:   d.AgentID.Hex(),
		Title:     d.Title,
		Summary:   d.Summary,
		Status:    d.Status,
		LLM:       d.LLM,
		Messages:  d.Messages,
		Tags:      d.Tags,
		Pinned:    d.Pinned,
		Stats:     d.Stats,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// ConversationDocFromEntity converts a domain entity to its document form.
func ConversationDocFromEntity(c *entity.Conversation) (ConversationDoc, error) {
	agentOID, err := primitive.ObjectIDFromHex(c.AgentID)
	if err != nil {
		return ConversationDoc{}, err
	}
	doc := ConversationDoc{
		AgentID:   agentOID,
		Title:     c.Title,
		Summary:   c.Summary,
		Status:    c.Status,
		LLM:       c.LLM,
		Messages:  c.Messages,
		Tags:      c.Tags,
		Pinned:    c.Pinned,
		Stats:     c.Stats,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.ID != "" {
		oid, err := primitive.ObjectIDFromHex(c.ID)
		if err != nil {
			return ConversationDoc{}, err
		}
		doc.ID = oid
	}
	if doc.Messages == nil {
		doc.Messages = []entity.Message{}
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return doc, nil
}
