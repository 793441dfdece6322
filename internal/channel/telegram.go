// Package channel hosts the optional chat surfaces that feed turns into the
// engine. Telegram is the only enabled channel; each Telegram chat maps onto
// its own gateway conversation.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"solgate/internal/engine"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram polls the Bot API and routes messages through the engine.
type Telegram struct {
	token     string
	allowFrom []int64 // allowed user IDs, empty = allow all

	bot    *tgbotapi.BotAPI
	engine *engine.Engine
	logger *slog.Logger

	// conversations maps a Telegram chat onto its gateway conversation so
	// pending transfer confirmations survive across messages.
	conversations   map[int64]string
	conversationsMu sync.Mutex
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig, eng *engine.Engine) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:         cfg.Token,
		allowFrom:     allowed,
		engine:        eng,
		logger:        cfg.Logger,
		conversations: make(map[int64]string),
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Run connects to Telegram and polls for updates until the context ends.
func (t *Telegram) Run(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", update.Message.From.UserName)
		t.sendMessage(chatID, "⛔ Unauthorized. Your user ID is not in the allow list.")
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	if update.Message.IsCommand() {
		t.handleCommand(chatID, update.Message)
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text))

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	result := t.engine.HandleTurn(ctx, t.conversationFor(chatID), text)
	t.rememberConversation(chatID, result.ConversationID)
	t.sendMessage(chatID, result.Message)
}

func (t *Telegram) handleCommand(chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		t.sendMessage(chatID, "👋 Hello! I'm your Solana assistant.\n\nAsk me about wallet balances, transactions, or PnL, or say something like \"send 0.5 SOL to <address>\" to start a transfer.\n\nCommands:\n/new — Start a fresh conversation\n/help — Show this message")
	case "help":
		t.sendMessage(chatID, "📖 Help\n\nI can:\n• Look up wallet balances\n• Look up transactions by signature\n• Summarize wallet PnL and its distribution\n• Prepare SOL transfers (you confirm before anything is sent)\n\nCommands:\n/new — Start a fresh conversation\n/help — Show this message")
	case "new":
		t.conversationsMu.Lock()
		delete(t.conversations, chatID)
		t.conversationsMu.Unlock()
		t.sendMessage(chatID, "🗑 Started a fresh conversation.")
	default:
		t.sendMessage(chatID, "Unknown command. Type /help for available commands.")
	}
}

func (t *Telegram) conversationFor(chatID int64) string {
	t.conversationsMu.Lock()
	defer t.conversationsMu.Unlock()
	return t.conversations[chatID]
}

func (t *Telegram) rememberConversation(chatID int64, conversationID string) {
	t.conversationsMu.Lock()
	t.conversations[chatID] = conversationID
	t.conversationsMu.Unlock()
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		t.sendChunk(chatID, chunk)
	}
}

// splitMessage breaks text into chunks under Telegram's per-message limit,
// preferring newline boundaries in the second half of a chunk.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

// sendChunk sends one chunk with rate limit handling and backoff.
func (t *Telegram) sendChunk(chatID int64, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1)
			time.Sleep(retryAfter)
			continue
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries",
			"err", err, "attempts", telegramMaxSendRetries+1)
	}
}
