package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/cardsched/internal/bkt"
	"github.com/example/cardsched/internal/bot"
	"github.com/example/cardsched/internal/config"
	"github.com/example/cardsched/internal/excel"
	"github.com/example/cardsched/internal/metrics"
	"github.com/example/cardsched/internal/scheduler"
	"github.com/example/cardsched/internal/session"
	"github.com/example/cardsched/pkg/models"
)

// --- Global Command Variables ---
var (
	envFiles []string

	importSheet    string
	importStartRow int
	importCategory string
	importIDColumn string

	rootCmd = &cobra.Command{
		Use:           "cardsched",
		Short:         "Adaptive flashcard scheduler for Chinese vocabulary",
		Long:          `cardsched schedules vocabulary cards with SM-2 intervals and ranks them by Bayesian Knowledge Tracing mastery.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	botCmd = &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram study bot with daily reminders",
		Args:  cobra.NoArgs,
		RunE:  runBot,
	}

	importCmd = &cobra.Command{
		Use:   "import [file.xlsx|file.csv]",
		Short: "Import vocabulary words into the database",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	queueCmd = &cobra.Command{
		Use:   "queue [learner]",
		Short: "Print the learner's next study session",
		Args:  cobra.ExactArgs(1),
		RunE:  runQueue,
	}

	statsCmd = &cobra.Command{
		Use:   "stats [learner]",
		Short: "Print due counts and mastery by category",
		Args:  cobra.ExactArgs(1),
		RunE:  runStats,
	}

	wordsCmd = &cobra.Command{
		Use:   "words [category]",
		Short: "List imported words, optionally of one category",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWords,
	}

	learnersCmd = &cobra.Command{
		Use:   "learners",
		Short: "List known learners",
		Args:  cobra.NoArgs,
		RunE:  runLearners,
	}

	deleteLearnerCmd = &cobra.Command{
		Use:   "delete-learner [learner]",
		Short: "Delete a learner with all model state and review history",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleteLearner,
	}

	reviewCmd = &cobra.Command{
		Use:       "review [learner] [card] [correct|incorrect|override]",
		Short:     "Record one answer for a card",
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{"correct", "incorrect", "override"},
		RunE:      runReview,
	}
)

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")

	importCmd.Flags().StringVar(&importSheet, "sheet", "Sheet1", "worksheet to read from an .xlsx file")
	importCmd.Flags().IntVar(&importStartRow, "start-row", 2, "first data row (1-based)")
	importCmd.Flags().StringVar(&importCategory, "category", "other", "category for rows without one")
	importCmd.Flags().StringVar(&importIDColumn, "id-column", "", "column holding stable word ids")

	rootCmd.AddCommand(botCmd, importCmd, queueCmd, statsCmd, reviewCmd, wordsCmd, learnersCmd, deleteLearnerCmd)
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	api, err := bot.Connect(a.cfg.TelegramToken)
	if err != nil {
		return err
	}
	a.logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	sessions := session.NewManager(a.scheduler, a.recorder, a.cfg.SessionLimit)
	b := bot.New(api, a.learners, sessions, a.scheduler, nil, a.logger.Named("bot"))

	reminder := scheduler.NewReminder(a.learners, a.scheduler, b, a.cfg.ReminderHour, a.cfg.Location, a.logger.Named("reminder"))
	if err := reminder.Start(ctx); err != nil {
		return err
	}
	defer reminder.Stop()

	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, a.cfg.MetricsAddr); err != nil {
				a.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	return b.Start(ctx)
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newBaseApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := excel.DefaultImportConfig()
	cfg.FilePath = args[0]
	cfg.SheetName = importSheet
	cfg.StartRow = importStartRow
	cfg.DefaultCategory = importCategory
	cfg.IDColumn = importIDColumn

	res, err := excel.ImportWords(cfg, a.words)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "processed %d rows: %d created, %d updated, %d skipped\n",
		res.TotalProcessed, res.Created, res.Updated, res.Skipped)
	for _, e := range res.Errors {
		fmt.Fprintln(out, "  "+e)
	}
	return nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.scheduler.BuildQueue(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if q.Empty() {
		fmt.Fprintln(out, "nothing to study")
		return nil
	}
	fmt.Fprintf(out, "%d cards (%d due, %d new)\n", len(q.IDs), q.Due, q.New)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, id := range q.IDs {
		card, _ := a.catalog.Card(id)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, id, card.Prompt, card.Component)
	}
	return w.Flush()
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	learnerID := args[0]

	stats, err := a.scheduler.SessionStats(ctx, learnerID)
	if err != nil {
		return err
	}
	progress, err := a.scheduler.Progress(ctx, learnerID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "due %d  new %d  total %d\n", stats.DueCount, stats.NewCount, stats.Total)
	fmt.Fprintf(out, "overall mastery %.2f (%s)\n", progress.Overall, bkt.Label(progress.Overall))

	if a.cfg.Store == config.StoreSQL {
		history, err := a.stats.GetLearnerStatistics(ctx, learnerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "reviews %d  accuracy %.0f%%  overrides %d\n",
			history.Total, history.Accuracy()*100, history.Overrides)

		perComponent, err := a.stats.GetComponentStatistics(ctx, learnerID)
		if err != nil {
			return err
		}
		for _, c := range perComponent {
			fmt.Fprintf(out, "  %s: %d reviews, %.0f%% correct\n", c.Component, c.Total, c.Accuracy()*100)
		}
	}
	if progress.Mature > 0 {
		fmt.Fprintf(out, "mature cards %d\n", progress.Mature)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\ncomponent\tp_known\tlabel\tcards")
	for _, c := range progress.Components {
		fmt.Fprintf(w, "%s\t%.3f\t%s\t%d\n", c.Component, c.PKnown, c.Label, c.Cards)
	}
	return w.Flush()
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	learnerID, cardID, verdict := args[0], args[1], strings.ToLower(args[2])

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ensureLearner(ctx, learnerID); err != nil {
		return err
	}

	switch verdict {
	case "correct", "incorrect":
		err = a.recorder.RecordReview(ctx, learnerID, cardID, verdict == "correct")
	case "override":
		err = a.recorder.OverrideToCorrect(ctx, learnerID, cardID)
	default:
		return fmt.Errorf("verdict must be correct, incorrect or override, got %q", verdict)
	}
	if err != nil {
		return err
	}

	is, err := a.store.GetIntervalState(ctx, learnerID, cardID)
	if err != nil {
		return err
	}
	card, _ := a.catalog.Card(cardID)
	ms, err := a.store.GetMasteryState(ctx, learnerID, card.Component)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: next review %s in %d days (interval %d, ease %.2f); %s p_known %.3f\n",
		cardID, is.DueDate, a.clock.Today().DaysUntil(is.DueDate), is.Interval, is.EaseFactor, card.Component, ms.PKnown)
	return nil
}

func runWords(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newBaseApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var words []models.Word
	if len(args) == 1 {
		words, err = a.words.GetByCategory(ctx, args[0])
	} else {
		words, err = a.words.GetAll(ctx)
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, word := range words {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", word.ID, word.Hanzi, word.Pinyin, word.English, word.Category)
	}
	return w.Flush()
}

func runLearners(cmd *cobra.Command, _ []string) error {
	a, err := newBaseApp()
	if err != nil {
		return err
	}
	defer a.Close()

	learners, err := a.learners.GetAll(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, l := range learners {
		fmt.Fprintf(w, "%s\t%s\t%d\n", l.ID, l.Name, l.ChatID)
	}
	return w.Flush()
}

func runDeleteLearner(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.deleteLearner(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted learner %s\n", args[0])
	return nil
}

// executeContext runs the root command with ctx, used by tests.
func executeContext(ctx context.Context, args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
