package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramNotifier pushes through a Telegram bot to a fixed chat.
type telegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

func newTelegram(cfg map[string]any, client *http.Client) Notifier {
	chatID := stringField(cfg, "chat_id")
	if chatID == "" {
		// Accept a numeric chat id as well; JSON decodes it as float64.
		if v, ok := cfg["chat_id"].(float64); ok {
			chatID = strconv.FormatInt(int64(v), 10)
		}
	}
	return &telegramNotifier{
		botToken: stringField(cfg, "bot_token"),
		chatID:   chatID,
		client:   client,
	}
}

func (n *telegramNotifier) Name() string { return "telegram" }

func (n *telegramNotifier) Send(ctx context.Context, title, content string) error {
	if n.botToken == "" || n.chatID == "" {
		return fmt.Errorf("telegram: bot_token or chat_id is not configured")
	}

	chatID, err := strconv.ParseInt(n.chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat_id %q: %w", n.chatID, err)
	}

	// Creating the bot validates the token against the API.
	bot, err := tgbotapi.NewBotAPIWithClient(n.botToken, tgbotapi.APIEndpoint, n.client)
	if err != nil {
		return fmt.Errorf("telegram: creating bot: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("*%s*\n\n%s", title, content))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: sending message: %w", err)
	}
	return nil
}
