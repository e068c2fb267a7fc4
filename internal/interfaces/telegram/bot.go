// Package telegram runs the long-polling Telegram front end. Each chat
// is mapped to one conversation; replies stream through the same
// orchestrator as the HTTP surface and are delivered as single messages.
package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/domain/entity"
	"github.com/aria-ai/aria/internal/domain/repository"
	"github.com/aria-ai/aria/internal/infrastructure/llm"
	"github.com/aria-ai/aria/pkg/safego"
)

// messageLimit is Telegram's hard cap per message.
const messageLimit = 4096

const helpText = `I am Aria. Send me a message and I will answer.

/new - start a fresh conversation
/help - this message`

// Config is the bot configuration.
type Config struct {
	Token          string
	AllowedUserIDs []int64
	Debug          bool
}

// MessageProcessor runs one user turn and streams the reply.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, conversationID, userText string) <-chan llm.Chunk
}

// Bot is the Telegram adapter.
type Bot struct {
	api           *tgbotapi.BotAPI
	config        Config
	agents        repository.AgentRepository
	conversations repository.ConversationRepository
	processor     MessageProcessor
	logger        *zap.Logger

	mu       sync.Mutex
	sessions map[int64]string // chat id -> conversation id
	cancel   context.CancelFunc
}

// NewBot authorizes against the Bot API and builds the adapter.
func NewBot(
	config Config,
	agents repository.AgentRepository,
	conversations repository.ConversationRepository,
	processor MessageProcessor,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, err
	}
	api.Debug = config.Debug

	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	return &Bot{
		api:           api,
		config:        config,
		agents:        agents,
		conversations: conversations,
		processor:     processor,
		logger:        logger,
		sessions:      map[int64]string{},
	}, nil
}

// Start begins long polling. Returns immediately; updates are handled
// in the background until Stop or ctx cancellation.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	innerCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "new", Description: "Start a fresh conversation"},
		tgbotapi.BotCommand{Command: "help", Description: "Show help"},
	)
	if _, err := b.api.Request(commands); err != nil {
		b.logger.Warn("Failed to set bot commands", zap.Error(err))
	}

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Starting Telegram polling")

	safego.Go(b.logger, "telegram-poll", func() {
		for {
			select {
			case <-innerCtx.Done():
				b.api.StopReceivingUpdates()
				b.logger.Info("Telegram adapter stopped")
				return
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				msg := update.Message
				safego.Go(b.logger, "telegram-update", func() {
					b.handleMessage(innerCtx, msg)
				})
			}
		}
	})

	return nil
}

// Stop halts polling.
func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}
	if !b.allowed(msg.From.ID) {
		b.logger.Warn("Unauthorized Telegram user",
			zap.Int64("user_id", msg.From.ID),
			zap.String("username", msg.From.UserName),
		)
		return
	}

	switch msg.Command() {
	case "start", "help":
		b.sendPlain(msg.Chat.ID, helpText)
		return
	case "new":
		b.mu.Lock()
		delete(b.sessions, msg.Chat.ID)
		b.mu.Unlock()
		b.sendPlain(msg.Chat.ID, "Started a new conversation.")
		return
	}

	conversationID, err := b.conversationFor(ctx, msg.Chat.ID)
	if err != nil {
		b.logger.Error("Failed to resolve conversation",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Error(err),
		)
		b.sendPlain(msg.Chat.ID, "Something went wrong: "+err.Error())
		return
	}

	b.api.Send(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping))

	reply, errText := b.collectReply(ctx, conversationID, msg.Text)
	if errText != "" {
		b.sendPlain(msg.Chat.ID, "Something went wrong: "+errText)
		return
	}
	if strings.TrimSpace(reply) == "" {
		return
	}
	b.sendMarkdown(msg.Chat.ID, reply)
}

// conversationFor returns the chat's conversation, creating one bound
// to the default agent on first contact. A conversation deleted through
// the API is replaced transparently.
func (b *Bot) conversationFor(ctx context.Context, chatID int64) (string, error) {
	b.mu.Lock()
	id, ok := b.sessions[chatID]
	b.mu.Unlock()
	if ok {
		if _, err := b.conversations.FindByID(ctx, id); err == nil {
			return id, nil
		}
	}

	agent, err := b.agents.FindDefault(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	conv := &entity.Conversation{
		AgentID: agent.ID,
		Title:   "Telegram chat",
		Status:  entity.ConversationActive,
		LLM: entity.LLMSnapshot{
			Backend:     agent.LLM.Backend,
			Model:       agent.LLM.Model,
			Temperature: agent.LLM.Temperature,
		},
		Messages:  []entity.Message{},
		Tags:      []string{"telegram"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.conversations.Create(ctx, conv); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.sessions[chatID] = conv.ID
	b.mu.Unlock()
	return conv.ID, nil
}

// collectReply drains one turn into a full reply. Tool markers arrive
// as text chunks and are kept inline.
func (b *Bot) collectReply(ctx context.Context, conversationID, userText string) (reply, errText string) {
	var sb strings.Builder
	for chunk := range b.processor.ProcessMessage(ctx, conversationID, userText) {
		switch chunk.Type {
		case llm.ChunkText:
			sb.WriteString(chunk.Text)
		case llm.ChunkError:
			return "", chunk.Error
		}
	}
	return sb.String(), ""
}

// sendMarkdown delivers a reply as Telegram HTML, chunked under the
// message cap, with a plain-text retry if Telegram rejects the markup.
func (b *Bot) sendMarkdown(chatID int64, markdown string) {
	for _, part := range splitMessage(MarkdownToHTML(markdown), messageLimit) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := b.api.Send(msg); err != nil {
			if strings.Contains(err.Error(), "can't parse entities") {
				b.logger.Warn("HTML rejected, retrying as plain text",
					zap.Int64("chat_id", chatID),
					zap.Error(err),
				)
				b.sendPlain(chatID, markdown)
				return
			}
			b.logger.Error("Failed to send Telegram message",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
			return
		}
	}
}

func (b *Bot) sendPlain(chatID int64, text string) {
	for _, part := range splitMessage(text, messageLimit) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			b.logger.Error("Failed to send Telegram message",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
			return
		}
	}
}

func (b *Bot) allowed(userID int64) bool {
	if len(b.config.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range b.config.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// splitMessage breaks text into limit-sized parts, preferring newline
// boundaries so code blocks and paragraphs stay readable.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		parts = append(parts, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
