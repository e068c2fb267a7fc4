package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
	"github.com/aria-ai/aria/pkg/errors"
)

const defaultAgentSlug = "aria"

const defaultSystemPrompt = `You are Aria, a personal assistant with persistent memory.
Answer directly and concisely. Use the available tools when a question
needs filesystem, shell, or web access, and rely on remembered context
about the user when it is relevant.`

// SeedLLM mirrors the agent's LLM triple in seed files.
type SeedLLM struct {
	Backend     string  `yaml:"backend"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// SeedFallback is one fallback chain entry. OnError defaults to true
// when omitted, matching how agents behave without explicit conditions.
type SeedFallback struct {
	SeedLLM           `yaml:",inline"`
	OnError           *bool `yaml:"on_error"`
	OnContextOverflow bool  `yaml:"on_context_overflow"`
	MaxInputTokens    int   `yaml:"max_input_tokens"`
}

// SeedCapabilities mirrors the agent feature flags.
type SeedCapabilities struct {
	MemoryEnabled bool `yaml:"memory_enabled"`
	ToolsEnabled  bool `yaml:"tools_enabled"`
}

// SeedMemory overrides memory settings; zero fields keep the defaults.
type SeedMemory struct {
	AutoExtract       *bool `yaml:"auto_extract"`
	ShortTermMessages int   `yaml:"short_term_messages"`
	LongTermResults   int   `yaml:"long_term_results"`
}

// AgentSeed is one agent definition from an agents.d/*.yaml file.
type AgentSeed struct {
	Slug          string            `yaml:"slug"`
	Name          string            `yaml:"name"`
	SystemPrompt  string            `yaml:"system_prompt"`
	LLM           SeedLLM           `yaml:"llm"`
	FallbackChain []SeedFallback    `yaml:"fallback_chain"`
	Capabilities  *SeedCapabilities `yaml:"capabilities"`
	Memory        *SeedMemory       `yaml:"memory"`
	EnabledTools  []string          `yaml:"enabled_tools"`
	Default       bool              `yaml:"default"`
}

func (s *AgentSeed) validate() error {
	if s.Slug == "" || s.Name == "" || s.SystemPrompt == "" {
		return fmt.Errorf("slug, name and system_prompt are required")
	}
	if s.LLM.Backend == "" || s.LLM.Model == "" {
		return fmt.Errorf("llm.backend and llm.model are required")
	}
	return nil
}

func (s *AgentSeed) toAgent(now time.Time) *entity.Agent {
	caps := entity.Capabilities{MemoryEnabled: true, ToolsEnabled: true}
	if s.Capabilities != nil {
		caps = entity.Capabilities(*s.Capabilities)
	}

	mem := entity.DefaultMemorySettings()
	if s.Memory != nil {
		if s.Memory.AutoExtract != nil {
			mem.AutoExtract = *s.Memory.AutoExtract
		}
		if s.Memory.ShortTermMessages > 0 {
			mem.ShortTermMessages = s.Memory.ShortTermMessages
		}
		if s.Memory.LongTermResults > 0 {
			mem.LongTermResults = s.Memory.LongTermResults
		}
	}

	var fallbacks []entity.FallbackEntry
	for _, f := range s.FallbackChain {
		onError := true
		if f.OnError != nil {
			onError = *f.OnError
		}
		fallbacks = append(fallbacks, entity.FallbackEntry{
			LLMTriple: entity.LLMTriple{
				Backend:     f.Backend,
				Model:       f.Model,
				Temperature: f.Temperature,
				MaxTokens:   f.MaxTokens,
			},
			Conditions: entity.FallbackConditions{
				OnError:           onError,
				OnContextOverflow: f.OnContextOverflow,
				MaxInputTokens:    f.MaxInputTokens,
			},
		})
	}

	return &entity.Agent{
		Slug:         s.Slug,
		Name:         s.Name,
		SystemPrompt: s.SystemPrompt,
		LLM: entity.LLMTriple{
			Backend:     s.LLM.Backend,
			Model:       s.LLM.Model,
			Temperature: s.LLM.Temperature,
			MaxTokens:   s.LLM.MaxTokens,
		},
		Fallbacks:    fallbacks,
		Capabilities: caps,
		Memory:       mem,
		EnabledTools: s.EnabledTools,
		IsDefault:    s.Default,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Seeder creates agents from seed files at startup and guarantees a
// default agent exists.
type Seeder struct {
	agents repository.AgentRepository
	logger *zap.Logger
}

// NewSeeder creates an agent seeder.
func NewSeeder(agents repository.AgentRepository, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{agents: agents, logger: logger}
}

// Run loads seed files from dir and creates any agents that do not
// exist yet, then ensures a default agent. A missing dir is fine;
// malformed or conflicting seed files are logged and skipped so one bad
// file cannot block startup.
func (s *Seeder) Run(ctx context.Context, dir string) error {
	seeds, err := loadAgentSeeds(dir, s.logger)
	if err != nil {
		return err
	}

	hasDefault := true
	if _, err := s.agents.FindDefault(ctx); errors.IsNotFound(err) {
		hasDefault = false
	}

	for _, seed := range seeds {
		if _, err := s.agents.FindBySlug(ctx, seed.Slug); err == nil {
			continue
		}

		agent := seed.toAgent(time.Now().UTC())
		if agent.IsDefault && hasDefault {
			s.logger.Warn("Seed marked default but a default agent exists, demoting",
				zap.String("slug", seed.Slug))
			agent.IsDefault = false
		}

		if err := s.agents.Create(ctx, agent); err != nil {
			s.logger.Warn("Failed to create seed agent",
				zap.String("slug", seed.Slug), zap.Error(err))
			continue
		}
		if agent.IsDefault {
			hasDefault = true
		}
		s.logger.Info("Created agent from seed",
			zap.String("slug", seed.Slug), zap.Bool("default", agent.IsDefault))
	}

	if !hasDefault {
		return s.createBuiltinDefault(ctx)
	}
	return nil
}

// createBuiltinDefault installs the stock assistant so a fresh database
// is immediately usable.
func (s *Seeder) createBuiltinDefault(ctx context.Context) error {
	now := time.Now().UTC()
	agent := &entity.Agent{
		Slug:         defaultAgentSlug,
		Name:         "Aria",
		SystemPrompt: defaultSystemPrompt,
		LLM: entity.LLMTriple{
			Backend:     "ollama",
			Model:       "qwen3:8b",
			Temperature: 0.7,
		},
		Capabilities: entity.Capabilities{MemoryEnabled: true, ToolsEnabled: true},
		Memory:       entity.DefaultMemorySettings(),
		IsDefault:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		if errors.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("create default agent: %w", err)
	}
	s.logger.Info("Created built-in default agent", zap.String("slug", agent.Slug))
	return nil
}

// loadAgentSeeds reads every *.yaml/*.yml file in dir, in name order.
func loadAgentSeeds(dir string, logger *zap.Logger) ([]AgentSeed, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read seed dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var seeds []AgentSeed
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read seed file", zap.String("path", path), zap.Error(err))
			continue
		}
		var seed AgentSeed
		if err := yaml.Unmarshal(data, &seed); err != nil {
			logger.Warn("Malformed seed file", zap.String("path", path), zap.Error(err))
			continue
		}
		if err := seed.validate(); err != nil {
			logger.Warn("Invalid seed file", zap.String("path", path), zap.Error(err))
			continue
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}
