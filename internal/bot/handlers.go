package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/cardsched/internal/bkt"
	"github.com/example/cardsched/internal/database"
	"github.com/example/cardsched/internal/scheduler"
	"github.com/example/cardsched/internal/session"
	"github.com/example/cardsched/pkg/models"
)

// Constants for callback data
const (
	callbackStudy    = "study"
	callbackOverride = "override"
	callbackNext     = "next"
	callbackStats    = "stats"
)

var errNotRegistered = errors.New("chat is not registered")

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		if update.Message.IsCommand() {
			err = b.HandleCommand(ctx, update.Message)
		} else {
			err = b.handleAnswer(ctx, update.Message)
		}
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	}
	if err != nil {
		b.logger.Error("failed to handle update", zap.Int("update", update.UpdateID), zap.Error(err))
	}
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	switch message.Command() {
	case "start":
		return b.handleStart(ctx, message)
	case "help":
		return b.reply(chatID, helpText, nil)
	case "study":
		return b.withLearner(ctx, chatID, func(l *models.Learner) error {
			return b.startSession(ctx, chatID, l)
		})
	case "stats":
		return b.withLearner(ctx, chatID, func(l *models.Learner) error {
			return b.sendStats(ctx, chatID, l)
		})
	default:
		return b.reply(chatID, "Unknown command. Use /help to see what I can do.", nil)
	}
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	_, err := b.learners.GetByChatID(ctx, chatID)
	switch {
	case errors.Is(err, database.ErrLearnerNotFound):
		// Регистрируем ученика при первом обращении
		learner := &models.Learner{ID: b.learnerID(chatID), ChatID: chatID}
		if message.From != nil {
			learner.Name = strings.TrimSpace(message.From.FirstName + " " + message.From.LastName)
		}
		if err := b.learners.Create(ctx, learner); err != nil {
			return fmt.Errorf("failed to create learner: %w", err)
		}
		b.logger.Info("learner registered", zap.String("learner", learner.ID), zap.Int64("chat", chatID))
	case err != nil:
		return fmt.Errorf("failed to look up learner: %w", err)
	}

	return b.reply(chatID, welcomeText, [][]MenuButton{
		{{Text: "📚 Study", CallbackData: callbackStudy}},
		{{Text: "📊 Statistics", CallbackData: callbackStats}},
	})
}

// withLearner resolves the chat's learner or asks the user to /start.
func (b *Bot) withLearner(ctx context.Context, chatID int64, fn func(l *models.Learner) error) error {
	l, err := b.learners.GetByChatID(ctx, chatID)
	if errors.Is(err, database.ErrLearnerNotFound) {
		if err := b.reply(chatID, "Please send /start first.", nil); err != nil {
			return err
		}
		return errNotRegistered
	}
	if err != nil {
		return fmt.Errorf("failed to look up learner: %w", err)
	}
	return fn(l)
}

func (b *Bot) startSession(ctx context.Context, chatID int64, l *models.Learner) error {
	s, err := b.sessions.Start(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return b.showCurrent(chatID, s)
}

// showCurrent sends the current card, or the summary once the session is over.
func (b *Bot) showCurrent(chatID int64, s *session.Session) error {
	card, ok := s.Current()
	if !ok {
		b.sessions.End(s.LearnerID())
		return b.reply(chatID, summaryText(s.Answered(), s.Accuracy()), [][]MenuButton{
			{{Text: "📊 Statistics", CallbackData: callbackStats}},
		})
	}
	return b.reply(chatID, cardText(card), nil)
}

// handleAnswer grades a free-text answer to the current card.
func (b *Bot) handleAnswer(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	return b.withLearner(ctx, chatID, func(l *models.Learner) error {
		s, ok := b.sessions.Get(l.ID)
		if !ok || s.Done() {
			return b.reply(chatID, "Send /study to start a session.", nil)
		}
		if s.Phase() != session.PhaseInput {
			return b.reply(chatID, "Press Next ▶ to continue.", nil)
		}
		card, _ := s.Current()
		grade := GradeAnswer(message.Text, card)
		if err := s.Answer(ctx, grade.Correct); err != nil {
			if errors.Is(err, session.ErrWrongPhase) {
				// another message answered this card first
				return b.reply(chatID, "Press Next ▶ to continue.", nil)
			}
			_ = b.reply(chatID, "Could not save your answer, please try again.", nil)
			return fmt.Errorf("failed to record answer: %w", err)
		}

		buttons := [][]MenuButton{{{Text: "Next ▶", CallbackData: callbackNext}}}
		if !grade.Correct {
			buttons = [][]MenuButton{{
				{Text: "✅ I was right", CallbackData: callbackOverride},
				{Text: "Next ▶", CallbackData: callbackNext},
			}}
		}
		return b.reply(chatID, resultText(grade), buttons)
	})
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback.Message == nil || callback.Message.Chat == nil {
		return fmt.Errorf("callback %s without message", callback.ID)
	}
	chatID := callback.Message.Chat.ID
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Debug("failed to answer callback", zap.Error(err))
	}

	return b.withLearner(ctx, chatID, func(l *models.Learner) error {
		switch callback.Data {
		case callbackStudy:
			return b.startSession(ctx, chatID, l)
		case callbackStats:
			return b.sendStats(ctx, chatID, l)
		case callbackOverride:
			s, ok := b.sessions.Get(l.ID)
			if !ok {
				return b.reply(chatID, "This session has ended.", nil)
			}
			err := s.Override(ctx)
			if errors.Is(err, session.ErrNothingToOverride) || errors.Is(err, session.ErrWrongPhase) {
				return b.reply(chatID, "Nothing to override.", nil)
			}
			if err != nil {
				return fmt.Errorf("failed to override: %w", err)
			}
			return b.reply(chatID, "✅ Marked as correct.", [][]MenuButton{{{Text: "Next ▶", CallbackData: callbackNext}}})
		case callbackNext:
			s, ok := b.sessions.Get(l.ID)
			if !ok {
				return b.reply(chatID, "Send /study to start a session.", nil)
			}
			if err := s.Next(ctx); err != nil && !errors.Is(err, session.ErrWrongPhase) {
				return fmt.Errorf("failed to advance: %w", err)
			}
			return b.showCurrent(chatID, s)
		default:
			return fmt.Errorf("unknown callback %q", callback.Data)
		}
	})
}

func (b *Bot) sendStats(ctx context.Context, chatID int64, l *models.Learner) error {
	stats, err := b.progress.SessionStats(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("failed to get session stats: %w", err)
	}
	progress, err := b.progress.Progress(ctx, l.ID)
	if err != nil {
		return fmt.Errorf("failed to get progress: %w", err)
	}
	return b.reply(chatID, statsText(stats, progress), [][]MenuButton{
		{{Text: "📚 Study", CallbackData: callbackStudy}},
	})
}

const welcomeText = "👋 Welcome!\n\n" +
	"I show you a Chinese word and you type its meaning or its pinyin.\n" +
	"Cards you struggle with come back sooner; the weakest areas come first.\n\n" +
	"/study - start a session\n" +
	"/stats - your progress\n" +
	"/help - this message"

const helpText = "📖 Commands\n\n" +
	"/study - start a study session\n" +
	"/stats - due cards and mastery by category\n\n" +
	"While studying, just type the answer. After a miss you can press \"I was right\" " +
	"if the grader was too strict."

func cardText(card models.Card) string {
	instruction := "Type the English meaning"
	if card.Type == models.CardPinyin {
		instruction = "Type the pinyin"
	}
	return fmt.Sprintf("%s\n\n[%s · %s] %s", card.Prompt, card.Category, card.Type, instruction)
}

func resultText(g Grade) string {
	if g.Correct {
		return "✅ Correct! " + g.Hint
	}
	return "❌ Incorrect. Expected: " + g.Hint
}

func summaryText(answered int, accuracy float64) string {
	if answered == 0 {
		return "🎉 Nothing to review right now. Come back tomorrow!"
	}
	return fmt.Sprintf("🏁 Session complete: %d cards, %.0f%% correct.", answered, accuracy*100)
}

func reminderText(stats scheduler.Stats) string {
	return fmt.Sprintf("🔔 You have %d cards due for review and %d new cards waiting.", stats.DueCount, stats.NewCount)
}

func statsText(stats scheduler.Stats, progress scheduler.Progress) string {
	var sb strings.Builder
	sb.WriteString("📊 Your statistics\n\n")
	fmt.Fprintf(&sb, "Due today: %d\nNew: %d\nTotal cards: %d\n", stats.DueCount, stats.NewCount, stats.Total)
	fmt.Fprintf(&sb, "Overall mastery: %.0f%% (%s)\n", progress.Overall*100, bkt.Label(progress.Overall))
	if progress.Mature > 0 {
		fmt.Fprintf(&sb, "Mature cards: %d\n", progress.Mature)
	}
	if len(progress.Categories) > 0 {
		sb.WriteString("\nBy category (weakest first):\n")
		for _, c := range progress.Categories {
			fmt.Fprintf(&sb, "• %s: %.0f%% %s\n", c.Category, c.Mastery*100, bkt.Label(c.Mastery))
		}
	}
	return sb.String()
}
