package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	chatapp "marketchat/internal/app/chat"
	"marketchat/internal/domain/chat"
)

// Telegram mirrors marketplace messages onto a Telegram chat. It backs the
// chat-app transport: sellers can opt in with a bot chat id, and threads
// that originated on Telegram are answered through it directly.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	enabled bool
	logger  *slog.Logger
}

type TelegramConfig struct {
	Token   string
	Enabled bool
	Logger  *slog.Logger
}

// NewTelegram connects the bot when the transport is enabled and a token
// is present; otherwise it returns a disabled instance so wiring stays
// uniform.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	t := &Telegram{enabled: cfg.Enabled, logger: cfg.Logger}
	if !cfg.Enabled || cfg.Token == "" {
		t.enabled = false
		return t, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot init: %w", err)
	}
	t.bot = bot
	if cfg.Logger != nil {
		cfg.Logger.Info("telegram transport connected", "username", bot.Self.UserName)
	}
	return t, nil
}

var _ chatapp.NotificationTransport = (*Telegram)(nil)

func (t *Telegram) Kind() string { return chatapp.TransportChatApp }

func (t *Telegram) Enabled() bool { return t.enabled }

func (t *Telegram) Send(ctx context.Context, to chatapp.Contact, msg *chat.Message, conv *chat.Conversation) (string, error) {
	if t.bot == nil {
		return "", errors.New("notify: telegram bot not connected")
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(to.ChatID), 10, 64)
	if err != nil {
		return "", fmt.Errorf("notify: invalid telegram chat id %q: %w", to.ChatID, err)
	}
	out := tgbotapi.NewMessage(chatID, renderText(msg))
	sent, err := t.bot.Send(out)
	if err != nil {
		return "", fmt.Errorf("notify: telegram send: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

func renderText(msg *chat.Message) string {
	var b strings.Builder
	if msg.SenderName != "" {
		b.WriteString(msg.SenderName)
		b.WriteString(":\n")
	}
	b.WriteString(msg.Content)
	if msg.ProductContext != "" {
		b.WriteString("\n\n")
		b.WriteString(msg.ProductContext)
	}
	return b.String()
}
