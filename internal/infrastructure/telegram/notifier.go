package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"PaperDigest/internal/ports"
)

const (
	defaultEndpoint  = tgbotapi.APIEndpoint
	maxMessageLength = 4096
)

// ErrNotConfigured is returned when the bot token or chat id is missing.
var ErrNotConfigured = errors.New("telegram notifier misconfigured")

// Notifier posts run reports to an operator chat. The bot client is created
// on first use so a disabled or unreachable bot never blocks startup.
type Notifier struct {
	token    string
	chatID   string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier; endpoint defaults to the public Bot API.
func NewNotifier(token, chatID, endpoint string) *Notifier {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Notifier{
		token:    token,
		chatID:   chatID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether reports can be published.
func (n *Notifier) Enabled() bool {
	return n != nil && n.token != "" && n.chatID != ""
}

// PublishReport sends report as a plain-text message.
func (n *Notifier) PublishReport(ctx context.Context, report string) error {
	if !n.Enabled() {
		return ErrNotConfigured
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(n.chatID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", n.chatID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := n.api()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, clip(report, maxMessageLength))
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (n *Notifier) api() (*tgbotapi.BotAPI, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.bot != nil {
		return n.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(n.token, n.endpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	n.bot = bot
	return bot, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
