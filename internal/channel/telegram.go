package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"novabot/internal/agent"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram runs the bot over long polling, one conversation per chat.
type Telegram struct {
	token     string
	allowFrom []int64 // empty = allow all

	bot    *tgbotapi.BotAPI
	orch   *agent.Orchestrator
	logger *slog.Logger
}

type TelegramConfig struct {
	Token        string
	AllowFrom    []string
	Orchestrator *agent.Orchestrator
	Logger       *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
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
		token:     cfg.Token,
		allowFrom: allowed,
		orch:      cfg.Orchestrator,
		logger:    cfg.Logger,
	}
}

// Start connects to Telegram and polls for updates until ctx is
// cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

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
		t.logger.Warn("unauthorized telegram user", "user_id", userID, "username", update.Message.From.UserName)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	if update.Message.IsCommand() {
		t.handleCommand(ctx, chatID, update.Message)
		return
	}

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	res, err := t.orch.Chat(ctx, strconv.FormatInt(userID, 10), text)
	if err != nil {
		t.logger.Error("telegram chat failed", "user_id", userID, "error", err)
		t.sendMessage(chatID, "Something went wrong. Please try again.")
		return
	}
	t.sendMessage(chatID, res.Response)
}

func (t *Telegram) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)

	switch msg.Command() {
	case "start":
		t.sendMessage(chatID, "Hi, I'm Nova. Just talk to me and I'll remember what matters.\n\nCommands:\n/profile — What I know about you\n/memories — Recent things we discussed\n/clear — Start the conversation over\n/forget — Erase everything I know about you")
	case "profile":
		p, err := t.orch.Profile(ctx, userID)
		if err != nil || p.Empty() {
			t.sendMessage(chatID, "I don't know anything about you yet.")
			return
		}
		var sb strings.Builder
		sb.WriteString("Here's what I know:\n")
		if p.Name != "" {
			sb.WriteString("- name: " + p.Name + "\n")
		}
		if p.Location != "" {
			sb.WriteString("- location: " + p.Location + "\n")
		}
		if len(p.Preferences) > 0 {
			sb.WriteString("- preferences: " + strings.Join(p.Preferences, ", ") + "\n")
		}
		if p.Tone != "" {
			sb.WriteString("- tone: " + p.Tone + "\n")
		}
		t.sendMessage(chatID, sb.String())
	case "memories":
		items := t.orch.RecentMemories(userID, 5)
		if len(items) == 0 {
			t.sendMessage(chatID, "Nothing remembered yet.")
			return
		}
		var sb strings.Builder
		sb.WriteString("Recent memories:\n")
		for _, m := range items {
			sb.WriteString("- " + m.Text + "\n")
		}
		t.sendMessage(chatID, sb.String())
	case "clear":
		t.orch.ClearSession(userID)
		t.sendMessage(chatID, "Conversation cleared. Your profile and memories are kept.")
	case "forget":
		if _, err := t.orch.ForgetUser(ctx, userID); err != nil {
			t.logger.Error("forget failed", "user_id", userID, "error", err)
			t.sendMessage(chatID, "Couldn't erase everything, please try again.")
			return
		}
		t.sendMessage(chatID, "Done. I've forgotten everything about you.")
	default:
		t.sendMessage(chatID, "Unknown command. Type /start for the list.")
	}
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

// sendMessage splits long replies at newline boundaries to stay under
// Telegram's per-message limit.
func (t *Telegram) sendMessage(chatID int64, text string) {
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		t.sendChunk(chatID, chunk)
	}
}

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
			t.logger.Warn("telegram rate limited, backing off", "retry_after", retryAfter, "attempt", attempt+1)
			time.Sleep(retryAfter)
			continue
		}
		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		t.logger.Error("telegram send failed after retries", "error", err, "attempts", attempt+1)
	}
}
