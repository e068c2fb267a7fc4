package entity

import "time"

// LLMTriple selects a backend/model pair with sampling parameters.
type LLMTriple struct {
	Backend     string  `bson:"backend" json:"backend"`
	Model       string  `bson:"model" json:"model"`
	Temperature float64 `bson:"temperature" json:"temperature"`
	MaxTokens   int     `bson:"max_tokens" json:"max_tokens"`
}

// FallbackConditions gate when a fallback entry may be used.
// OnContextOverflow and MaxInputTokens are recognized configuration but
// currently unhonored; only OnError is consulted.
type FallbackConditions struct {
	OnError           bool `bson:"on_error" json:"on_error"`
	OnContextOverflow bool `bson:"on_context_overflow" json:"on_context_overflow"`
	MaxInputTokens    int  `bson:"max_input_tokens,omitempty" json:"max_input_tokens,omitempty"`
}

// FallbackEntry is one alternate LLM triple in the ordered fallback chain.
type FallbackEntry struct {
	LLMTriple  `bson:",inline"`
	Conditions FallbackConditions `bson:"conditions" json:"conditions"`
}

// Capabilities are the agent's feature flags.
type Capabilities struct {
	MemoryEnabled bool `bson:"memory_enabled" json:"memory_enabled"`
	ToolsEnabled  bool `bson:"tools_enabled" json:"tools_enabled"`
}

// MemorySettings are the agent's retrieval and extraction knobs.
type MemorySettings struct {
	AutoExtract       bool `bson:"auto_extract" json:"auto_extract"`
	ShortTermMessages int  `bson:"short_term_messages" json:"short_term_messages"`
	LongTermResults   int  `bson:"long_term_results" json:"long_term_results"`
}

// DefaultMemorySettings mirrors the defaults applied to new agents.
func DefaultMemorySettings() MemorySettings {
	return MemorySettings{
		AutoExtract:       true,
		ShortTermMessages: 20,
		LongTermResults:   10,
	}
}

// Agent is the immutable-after-create configuration document. Exactly one
// agent per database carries IsDefault=true; the default agent cannot be
// deleted.
type Agent struct {
	ID           string          `bson:"_id,omitempty" json:"id"`
	Slug         string          `bson:"slug" json:"slug"`
	Name         string          `bson:"name" json:"name"`
	SystemPrompt string          `bson:"system_prompt" json:"system_prompt"`
	LLM          LLMTriple       `bson:"llm" json:"llm"`
	Fallbacks    []FallbackEntry `bson:"fallback_chain,omitempty" json:"fallback_chain,omitempty"`
	Capabilities Capabilities    `bson:"capabilities" json:"capabilities"`
	Memory       MemorySettings  `bson:"memory" json:"memory"`
	EnabledTools []string        `bson:"enabled_tools,omitempty" json:"enabled_tools,omitempty"`
	IsDefault    bool            `bson:"is_default" json:"is_default"`
	CreatedAt    time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at" json:"updated_at"`
}
