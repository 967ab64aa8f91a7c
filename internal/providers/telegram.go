package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"facility-alerting/internal/config"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"
	"facility-alerting/internal/utils"
)

type telegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// Telegram sends through one shared bot, throttled by a global limiter.
type Telegram struct {
	token   string
	limiter *rate.Limiter
	logger  *logging.Logger

	mu     sync.Mutex
	sender telegramSender
}

func NewTelegram(cfg config.Config, logger *logging.Logger) *Telegram {
	perSecond := cfg.RateLimit.TelegramRateLimiter
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Telegram{
		token:   cfg.Telegram.BotToken,
		limiter: rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond),
		logger:  logger,
	}
}

func (t *Telegram) client() (telegramSender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sender != nil {
		return t.sender, nil
	}
	if t.token == "" {
		return nil, fmt.Errorf("missing Telegram configuration: bot token is empty")
	}
	b, err := bot.New(t.token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	t.sender = b
	return b, nil
}

func (t *Telegram) Send(ctx context.Context, msg models.Message, cp models.ContactPoint) error {
	chatID, ok := models.ParseInt(cp.Configuration["chat_id"])
	if !ok || chatID == 0 {
		return fmt.Errorf("missing chat_id in Telegram configuration for contact point %s", contactLabel(cp))
	}
	sender, err := t.client()
	if err != nil {
		return err
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf("*%s*\n%s", bot.EscapeMarkdown(msg.Subject), bot.EscapeMarkdown(msg.Body)),
		ParseMode: tgmodels.ParseModeMarkdown,
	}
	return utils.Retry(ctx, t.logger, sendAttempts, retryDelay, func() error {
		if _, err := sender.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
		}
		return nil
	})
}
