package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluentia/fluentia/internal/app/engagement"
)

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Report users whose XP total disagrees with their award ledger",
	Long: `Compare each user's XP total with the sum of their award records.
Mismatches are reported only; nothing is repaired.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	found, err := engagement.NewReconciler(e.store, nil).Scan(cmd.Context())
	if err != nil {
		return err
	}
	if len(found) == 0 {
		printf(cmd, "Ledger and XP totals agree.\n")
		return nil
	}

	w := newTable(cmd)
	fmt.Fprintf(w, "USER\tLEDGER XP\tTOTAL XP\tDIFF\n")
	for _, d := range found {
		fmt.Fprintf(w, "%s\t%d\t%d\t%+d\n", d.UserID, d.LedgerXP, d.TotalXP, d.LedgerXP-d.TotalXP)
	}
	return w.Flush()
}
