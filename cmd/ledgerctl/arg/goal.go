package arg

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/ActivityLedger/internal/ipc"
)

var (
	goalIn string
	goalAt string
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage the goal deadline",
	Long:  `Set or clear the deadline of the configured goal`,
}

var goalSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the goal deadline",
	Long: `Set the goal deadline relative to now or at an absolute time.
Examples:
  ledgerctl goal set --in 48h
  ledgerctl goal set --at "2026-01-20T18:00:00+01:00"`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dueAt, err := resolveDeadline(goalIn, goalAt, time.Now())
		if err != nil {
			log.Fatal(err)
		}

		conn, obj := ledgerObject()
		defer conn.Close()

		if err := obj.Call(ipc.InterfaceName+".SetGoalDue", 0, dueAt.UnixMilli()).Err; err != nil {
			log.Fatal("Failed to set goal deadline:", err)
		}
		fmt.Printf("Goal deadline set to %s\n", dueAt.Format(time.RFC3339))
	},
}

var goalClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the goal deadline",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		conn, obj := ledgerObject()
		defer conn.Close()

		if err := obj.Call(ipc.InterfaceName+".ClearGoal", 0).Err; err != nil {
			log.Fatal("Failed to clear goal deadline:", err)
		}
		fmt.Println("Goal deadline cleared")
	},
}

// resolveDeadline turns --in or --at into an absolute deadline.
func resolveDeadline(in, at string, now time.Time) (time.Time, error) {
	switch {
	case in != "" && at != "":
		return time.Time{}, errors.New("use either --in or --at, not both")
	case in != "":
		d, err := time.ParseDuration(in)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --in duration: %w", err)
		}
		if d <= 0 {
			return time.Time{}, errors.New("--in must be positive")
		}
		return now.Add(d), nil
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --at format (use RFC3339): %w", err)
		}
		return t, nil
	}
	return time.Time{}, errors.New("must specify either --in or --at")
}

func init() {
	goalSetCmd.Flags().StringVar(&goalIn, "in", "", "deadline relative to now (e.g. 48h)")
	goalSetCmd.Flags().StringVar(&goalAt, "at", "", "absolute deadline (RFC3339)")

	goalCmd.AddCommand(goalSetCmd)
	goalCmd.AddCommand(goalClearCmd)
	rootCmd.AddCommand(goalCmd)
}
