// Package bot is the Telegram front end: learners register, study cards by typing
// answers, override misses, and receive daily reminders.
package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/cardsched/internal/scheduler"
	"github.com/example/cardsched/internal/session"
	"github.com/example/cardsched/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Telegram is the part of *tgbotapi.BotAPI the bot uses.
type Telegram interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// LearnerStore finds and registers learners by chat. Lookups that find nothing
// return database.ErrLearnerNotFound.
type LearnerStore interface {
	GetByChatID(ctx context.Context, chatID int64) (*models.Learner, error)
	Create(ctx context.Context, l *models.Learner) error
}

// ProgressSource reports a learner's due counts and mastery.
type ProgressSource interface {
	SessionStats(ctx context.Context, learnerID string) (scheduler.Stats, error)
	Progress(ctx context.Context, learnerID string) (scheduler.Progress, error)
}

// Bot represents the Telegram bot application
type Bot struct {
	api      Telegram
	learners LearnerStore
	sessions *session.Manager
	progress ProgressSource
	config   *BotConfig
	logger   *zap.Logger

	wg sync.WaitGroup
}

// New creates a new bot instance. A nil config means DefaultConfig.
func New(api Telegram, learners LearnerStore, sessions *session.Manager, progress ProgressSource, config *BotConfig, logger *zap.Logger) *Bot {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:      api,
		learners: learners,
		sessions: sessions,
		progress: progress,
		config:   config,
		logger:   logger,
	}
}

// Connect authorises token against the Telegram API.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	return api, nil
}

// Start handles incoming updates until ctx is cancelled, then waits for
// in-flight handlers to finish.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout
	updates := b.api.GetUpdatesChan(updateConfig)
	b.logger.Info("bot started")

	defer func() {
		b.api.StopReceivingUpdates()
		b.wg.Wait()
		b.logger.Info("bot stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// SendReminder implements the scheduler.Notifier interface
func (b *Bot) SendReminder(learner models.Learner, stats scheduler.Stats) error {
	if learner.ChatID == 0 {
		return fmt.Errorf("learner %s has no chat", learner.ID)
	}
	msg := tgbotapi.NewMessage(learner.ChatID, reminderText(stats))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "📚 Study now", CallbackData: callbackStudy}}})
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send reminder: %w", err)
	}
	return nil
}

// learnerID derives the learner id of a chat.
func (b *Bot) learnerID(chatID int64) string {
	return fmt.Sprintf("%s%d", b.config.LearnerPrefix, chatID)
}

// sendMessage sends msg and logs failures
func (b *Bot) sendMessage(msg tgbotapi.MessageConfig) error {
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat", msg.ChatID), zap.Error(err))
		return err
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string, buttons [][]MenuButton) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		msg.ReplyMarkup = createKeyboard(buttons)
	}
	return b.sendMessage(msg)
}

var _ scheduler.Notifier = (*Bot)(nil)
