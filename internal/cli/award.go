package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluentia/fluentia/internal/app/engagement"
)

func init() {
	f := awardCmd.Flags()
	f.StringVar(&awardFlags.user, "user", "", "User ID")
	f.StringVar(&awardFlags.source, "source", "", "Activity source (grammar, vocabulary, ...)")
	f.StringVar(&awardFlags.slug, "slug", "", "Content slug")
	f.StringVar(&awardFlags.session, "session", "", "Session ID")
	f.StringVar(&awardFlags.date, "date", "", "Completion date, YYYY-MM-DD (default today, UTC)")
	f.BoolVar(&awardFlags.perfect, "perfect", false, "All answers correct")
	f.IntVar(&awardFlags.correct, "correct", 0, "Correct answers")
	f.IntVar(&awardFlags.answers, "answers", 0, "Total answers")
	rootCmd.AddCommand(awardCmd)
}

var awardFlags struct {
	user, source, slug, session, date string
	perfect                           bool
	correct, answers                  int
}

var awardCmd = &cobra.Command{
	Use:   "award",
	Short: "Record a completed activity and award XP",
	Long: `Record a completed activity. XP is granted at most once per user and
<source>:<slug>; repeating the command reports the current totals.`,
	Example: `  fluentia award --user u1 --source grammar --slug past-simple-01 --answers 10`,
	RunE:    runAward,
}

func runAward(cmd *cobra.Command, args []string) error {
	if err := requireUser(awardFlags.user); err != nil {
		return err
	}
	if awardFlags.source == "" || awardFlags.slug == "" {
		return fmt.Errorf("--source and --slug are required")
	}

	req := engagement.AwardRequest{
		UserID:     awardFlags.user,
		Source:     awardFlags.source,
		SourceSlug: awardFlags.slug,
		SessionID:  awardFlags.session,
		DedupeKey:  engagement.DefaultDedupeKey(awardFlags.source, awardFlags.slug),
		Inputs: engagement.XPInputs{
			Perfect: awardFlags.perfect,
			Correct: awardFlags.correct,
			Answers: awardFlags.answers,
		},
	}
	if awardFlags.date != "" {
		day, err := engagement.ParseDate(awardFlags.date)
		if err != nil {
			return err
		}
		req.CompletedOn = day
	}

	e, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.awards.Complete(cmd.Context(), req)
	if err != nil {
		return err
	}

	if res.AlreadyCompleted {
		printf(cmd, "Already completed %s. No XP awarded.\n", req.DedupeKey)
	} else {
		printf(cmd, "+%d XP (%s)\n", res.XPAwarded, req.DedupeKey)
	}
	printf(cmd, "Level %d  %d XP total  %d to next level\n", res.Level, res.XPTotal, res.XPToNextLevel)
	if res.Streak != nil {
		printf(cmd, "Streak %d days (best %d)\n", res.Streak.CurrentStreak, res.Streak.BestStreak)
	}
	if len(res.NewlyAwardedBadges) > 0 {
		titles := make([]string, 0, len(res.NewlyAwardedBadges))
		for _, b := range res.NewlyAwardedBadges {
			titles = append(titles, b.Title)
		}
		printf(cmd, "New badges: %s\n", strings.Join(titles, ", "))
	}
	return nil
}
