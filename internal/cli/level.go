package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	levelCmd.Flags().StringVar(&levelUser, "user", "", "User ID")
	rootCmd.AddCommand(levelCmd)
}

var levelUser string

var levelCmd = &cobra.Command{
	Use:   "level",
	Short: "Show a user's XP and level",
	RunE:  runLevel,
}

func runLevel(cmd *cobra.Command, args []string) error {
	if err := requireUser(levelUser); err != nil {
		return err
	}
	e, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	total, err := e.store.GetXPTotal(cmd.Context(), levelUser)
	if err != nil {
		return err
	}
	curve := e.awards.Curve()
	p, err := curve.Compute(total.XPTotal)
	if err != nil {
		return err
	}

	w := newTable(cmd)
	fmt.Fprintf(w, "USER\tXP\tLEVEL\tIN LEVEL\tTO NEXT\tNEXT AT\n")
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
		levelUser, total.XPTotal, p.Level, p.XPInCurrentLevel, p.XPToNextLevel, curve.XPForLevel(p.Level+1))
	return w.Flush()
}
