package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluentia/fluentia/internal/domain"
)

func init() {
	streakCmd.Flags().StringVar(&streakUser, "user", "", "User ID")
	rootCmd.AddCommand(streakCmd)
}

var streakUser string

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show a user's daily practice streak",
	RunE:  runStreak,
}

func runStreak(cmd *cobra.Command, args []string) error {
	if err := requireUser(streakUser); err != nil {
		return err
	}
	e, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	s, err := e.awards.Streaks().Current(cmd.Context(), streakUser)
	if err != nil {
		return err
	}

	last := "-"
	if !s.LastActivityDate.IsZero() {
		last = s.LastActivityDate.Format(domain.DateLayout)
	}
	w := newTable(cmd)
	fmt.Fprintf(w, "USER\tCURRENT\tBEST\tLAST ACTIVE\n")
	fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", streakUser, s.CurrentStreak, s.BestStreak, last)
	return w.Flush()
}
