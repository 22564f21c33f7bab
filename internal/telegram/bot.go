package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"adslot-service/internal/util"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MaxMessageLength is the Bot API limit for one text message
const MaxMessageLength = 4096

// Bot sends messages through the Telegram Bot API. The bot must be an admin
// of every channel it posts to.
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewBot connects with the bot token and verifies it with getMe. endpoint is a
// Bot API URL template ("…/bot%s/%s"); empty means api.telegram.org.
func NewBot(token, endpoint string) (*Bot, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}

	logger := util.GetLogger()
	logger.Info("Telegram bot connected", zap.String("username", api.Self.UserName))
	return &Bot{api: api, logger: logger}, nil
}

// SendToChannel posts text to a public channel
func (b *Bot) SendToChannel(ctx context.Context, username, text string) error {
	username = "@" + strings.TrimPrefix(username, "@")
	return b.send(ctx, tgbotapi.NewMessageToChannel(username, truncate(text)))
}

// SendToUser sends a direct message. The user must have started the bot.
func (b *Bot) SendToUser(ctx context.Context, telegramID int64, text string) error {
	return b.send(ctx, tgbotapi.NewMessage(telegramID, truncate(text)))
}

func (b *Bot) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxMessageLength {
		return text
	}
	return string([]rune(text)[:MaxMessageLength])
}
