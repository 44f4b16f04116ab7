package arg

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/ActivityLedger/internal/engine"
	"github.com/SoarinFerret/ActivityLedger/internal/ipc"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show accrued time, sessions, streak and goal",
	Run: func(cmd *cobra.Command, args []string) {
		conn, obj := ledgerObject()
		defer conn.Close()

		var result string
		err := obj.Call(ipc.InterfaceName+".GetSnapshot", 0).Store(&result)
		if err != nil {
			log.Fatal("Failed to call method:", err)
		}

		if statusJSON {
			fmt.Println(result)
			return
		}

		var snap engine.Snapshot
		if err := json.Unmarshal([]byte(result), &snap); err != nil {
			log.Fatal("Failed to parse response:", err)
		}
		printSnapshot(os.Stdout, snap)
	},
}

func printSnapshot(w io.Writer, s engine.Snapshot) {
	title := "Instance: " + s.Instance
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
	fmt.Fprintf(w, "Today:      %s\n", ipc.FormatSeconds(s.TodaySeconds))
	fmt.Fprintf(w, "This week:  %s\n", ipc.FormatSeconds(s.WeekSeconds))
	fmt.Fprintf(w, "This month: %s\n", ipc.FormatSeconds(s.MonthSeconds))
	fmt.Fprintf(w, "Sessions:   %d\n", s.SessionsToday)
	fmt.Fprintf(w, "Streak:     %d day(s)\n", s.StreakCount)

	if s.Qualifying {
		fmt.Fprintln(w, "Activity:   active")
	} else {
		fmt.Fprintln(w, "Activity:   idle")
	}

	if s.Goal.Active {
		line := "Goal:       " + s.Goal.Text
		if s.Goal.HasDeadline {
			line += fmt.Sprintf(" (%s, %s)", s.Goal.Label, s.Goal.Status)
		}
		fmt.Fprintln(w, line)
	}
	if s.Skipped {
		fmt.Fprintln(w, "Warning:    last tick could not reach the store")
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw snapshot")
	rootCmd.AddCommand(statusCmd)
}
