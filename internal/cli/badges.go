package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluentia/fluentia/internal/domain"
)

func init() {
	badgesCmd.Flags().StringVar(&badgesUser, "user", "", "Show badges earned by this user")
	rootCmd.AddCommand(badgesCmd)
}

var badgesUser string

var badgesCmd = &cobra.Command{
	Use:   "badges",
	Short: "List the badge catalog, or a user's earned badges",
	RunE:  runBadges,
}

func runBadges(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	defs := e.awards.Badges().Definitions()
	if badgesUser != "" {
		defs, err = e.awards.Badges().Earned(cmd.Context(), badgesUser)
		if err != nil {
			return err
		}
		if len(defs) == 0 {
			printf(cmd, "%s has no badges yet.\n", badgesUser)
			return nil
		}
	}

	w := newTable(cmd)
	fmt.Fprintf(w, "SLUG\tTITLE\tRULE\n")
	for _, d := range defs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Slug, d.Title, describeRule(d.Rule))
	}
	return w.Flush()
}

func describeRule(r domain.UnlockRule) string {
	s := string(r.Kind) + " " + strconv.FormatInt(r.Value, 10)
	if r.Source != "" {
		s += " (" + r.Source + ")"
	}
	return s
}
