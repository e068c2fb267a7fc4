// Package models holds the BSON document shapes backing the domain
// entities. Documents use ObjectID primary keys; entities carry them as hex
// strings.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aria-ai/aria/internal/domain/entity"
)

// AgentDoc is the agents collection document.
type AgentDoc struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty"`
	Slug         string                 `bson:"slug"`
	Name         string                 `bson:"name"`
	SystemPrompt string                 `bson:"system_prompt"`
	LLM          entity.LLMTriple       `bson:"llm"`
	Fallbacks    []entity.FallbackEntry `bson:"fallback_chain,omitempty"`
	Capabilities entity.Capabilities    `bson:"capabilities"`
	Memory       entity.MemorySettings  `bson:"memory"`
	EnabledTools []string               `bson:"enabled_tools,omitempty"`
	IsDefault    bool                   `bson:"is_default"`
	CreatedAt    time.Time              `bson:"created_at"`
	UpdatedAt    time.Time              `bson:"updated_at"`
}

// ToEntity converts the document to the domain entity.
func (d AgentDoc) ToEntity() entity.Agent {
	return entity.Agent{
		ID:           d.ID.Hex(),
		Slug:         d.Slug,
		Name:         d.Name,
		SystemPrompt: d.SystemPrompt,
		LLM:          d.LLM,
		Fallbacks:    d.Fallbacks,
		Capabilities: d.Capabilities,
		Memory:       d.Memory,
		EnabledTools: d.EnabledTools,
		IsDefault:    d.IsDefault,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// AgentDocFromEntity converts a domain entity to its document form. A blank
// entity id yields a zero ObjectID for the driver to fill on insert.
func AgentDocFromEntity(a *entity.Agent) (AgentDoc, error) {
	doc := AgentDoc{
		Slug:         a.Slug,
		Name:         a.Name,
		SystemPrompt: a.SystemPrompt,
		LLM:          a.LLM,
		Fallbacks:    a.Fallbacks,
		Capabilities: a.Capabilities,
		Memory:       a.Memory,
		EnabledTools: a.EnabledTools,
		IsDefault:    a.IsDefault,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.ID != "" {
		oid, err := primitive.ObjectIDFromHex(a.ID)
		if err != nil {
			return AgentDoc{}, err
		}
		doc.ID = oid
	}
	return doc, nil
}
