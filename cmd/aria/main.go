package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/application"
	"github.com/aria-ai/aria/internal/domain/contextbuild"
	domaintool "github.com/aria-ai/aria/internal/domain/tool"
	"github.com/aria-ai/aria/internal/infrastructure/config"
	"github.com/aria-ai/aria/internal/infrastructure/embedding"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
	"github.com/aria-ai/aria/internal/infrastructure/logger"
	"github.com/aria-ai/aria/internal/infrastructure/mcp"
	"github.com/aria-ai/aria/internal/infrastructure/memory"
	"github.com/aria-ai/aria/internal/infrastructure/mongodb"
	"github.com/aria-ai/aria/internal/infrastructure/persistence"
	"github.com/aria-ai/aria/internal/infrastructure/tool"
	httpiface "github.com/aria-ai/aria/internal/interfaces/http"
	"github.com/aria-ai/aria/internal/interfaces/http/handlers"
	"github.com/aria-ai/aria/internal/interfaces/telegram"
	"github.com/aria-ai/aria/internal/interfaces/websocket"
	"github.com/aria-ai/aria/pkg/safego"

	// Adapter registration.
	_ "github.com/aria-ai/aria/internal/infrastructure/llm/anthropic"
	_ "github.com/aria-ai/aria/internal/infrastructure/llm/ollama"
	_ "github.com/aria-ai/aria/internal/infrastructure/llm/openai"
	_ "github.com/aria-ai/aria/internal/infrastructure/llm/openrouter"
)

const (
	appName    = "aria"
	appVersion = "0.2.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Aria — personal AI agent runtime",
		Long:  "Aria runs the agent server: REST API, websocket chat, optional Telegram bot.",
		RunE:  runServe,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the server (same as running with no subcommand)",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting Aria",
		zap.String("version", appVersion),
		zap.String("addr", cfg.API.Addr()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage.
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := mongodb.Connect(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.Database, log)
	cancel()
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Close(closeCtx)
	}()

	agents := persistence.NewMongoAgentRepository(client.Agents())
	conversations := persistence.NewMongoConversationRepository(client.Conversations())

	if err := application.NewSeeder(agents, log).Run(ctx, cfg.Agents.SeedDir); err != nil {
		return fmt.Errorf("seed agents: %w", err)
	}

	// Memory.
	embedder := buildEmbedder(cfg, log)
	if err := embedder.Probe(ctx); err != nil {
		if errors.Is(err, embedding.ErrDimensionMismatch) {
			return fmt.Errorf("embedding probe: %w", err)
		}
		// The provider may simply not be running yet; search degrades to
		// keyword-only until it is.
		log.Warn("Embedding probe failed", zap.Error(err))
	}
	longTerm := memory.NewLongTermStore(client.Memories(), embedder, cfg.Embedding.Model, log)
	shortTerm := memory.NewShortTerm(conversations)
	builder := contextbuild.NewBuilder(longTerm, shortTerm, log)

	// LLM backends.
	llmManager := llm.NewManager(llm.Credentials{
		OllamaURL:        cfg.Ollama.URL,
		AnthropicAPIKey:  cfg.Anthropic.APIKey,
		OpenAIAPIKey:     cfg.OpenAI.APIKey,
		OpenRouterAPIKey: cfg.OpenRouter.APIKey,
	}, log)

	// Tools: builtins plus MCP servers from the registry file.
	router := domaintool.NewRouter(log)
	registerBuiltins(router, log)

	mcpManager := mcp.NewManager(log)
	defer mcpManager.ShutdownAll()

	toolSync := application.NewToolSync(router, mcpManager, log)
	if registry, err := config.LoadMCPServers(cfg.MCP.ConfigPath); err != nil {
		log.Warn("Failed to load MCP registry", zap.Error(err))
	} else {
		toolSync.Apply(ctx, registry)
	}
	safego.Go(log, "mcp-registry-watch", func() {
		err := config.WatchMCPServers(ctx, cfg.MCP.ConfigPath, log, func(registry *config.MCPServers) {
			toolSync.Apply(ctx, registry)
		})
		if err != nil {
			log.Warn("MCP registry watch stopped", zap.Error(err))
		}
	})

	// Core flow.
	extractor := application.NewExtractor(conversations, longTerm, llmManager, log)
	orchestrator := application.NewOrchestrator(
		agents, conversations, builder, llmManager, router, extractor, log)

	// Surfaces.
	wsHandler := websocket.NewHandler(orchestrator, log)

	mode := "release"
	if cfg.Debug {
		mode = "debug"
	}
	server := httpiface.NewServer(
		httpiface.Config{Host: cfg.API.Host, Port: cfg.API.Port, Mode: mode},
		httpiface.Handlers{
			Health:        handlers.NewHealthHandler(client, llmManager, log),
			Agents:        handlers.NewAgentHandler(agents, log),
			Conversations: handlers.NewConversationHandler(conversations, agents, orchestrator, log),
			Memories:      handlers.NewMemoryHandler(longTerm, conversations, agents, extractor, log),
			Tools:         handlers.NewToolHandler(router, toolSync, mcpManager, log),
			Chat:          wsHandler.GinHandler(),
		},
		log,
	)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	var bot *telegram.Bot
	if cfg.Telegram.Token != "" {
		bot, err = telegram.NewBot(telegram.Config{
			Token:          cfg.Telegram.Token,
			AllowedUserIDs: cfg.Telegram.AllowIDs,
			Debug:          cfg.Debug,
		}, agents, conversations, orchestrator, log)
		if err != nil {
			log.Warn("Telegram bot unavailable", zap.Error(err))
		} else if err := bot.Start(ctx); err != nil {
			log.Warn("Telegram bot failed to start", zap.Error(err))
			bot = nil
		}
	}

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if bot != nil {
		bot.Stop()
	}
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("Server shutdown error", zap.Error(err))
	}
	return nil
}

// buildEmbedder assembles the provider chain. Ollama is the usual
// primary; Voyage serves as the other leg whenever its key is set.
func buildEmbedder(cfg *config.Config, log *zap.Logger) *embedding.Service {
	ollama := embedding.NewOllamaProvider(cfg.Ollama.URL, cfg.Embedding.Model, log)

	var primary, fallback embedding.Provider = ollama, nil
	if cfg.Voyage.APIKey != "" {
		voyage := embedding.NewVoyageProvider(cfg.Voyage.APIKey, "")
		if cfg.Embedding.Provider == "voyage" {
			primary, fallback = voyage, ollama
		} else {
			fallback = voyage
		}
	}
	return embedding.NewService(primary, fallback, cfg.Embedding.Dimension, cfg.Embedding.BatchSize, log)
}

func registerBuiltins(router *domaintool.Router, log *zap.Logger) {
	builtins := []domaintool.Tool{
		tool.NewFilesystemTool(nil, nil, log),
		tool.NewShellTool(tool.DefaultShellTimeout, nil, nil, "", log),
		tool.NewWebTool(tool.DefaultFetchTimeout, tool.DefaultMaxResponseSize, log),
	}
	for _, t := range builtins {
		if err := router.Register(t); err != nil {
			log.Warn("Builtin tool registration failed",
				zap.String("tool", t.Name()), zap.Error(err))
		}
	}
}
