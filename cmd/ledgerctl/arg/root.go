package arg

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	instance  string
	systemBus bool
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "ledgerctl is the command line tool for ActivityLedger",
	Long: `ledgerctl talks to running ledgerd instances over D-Bus.
You can use it to read the ledger, report activity and manage the goal deadline.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&instance, "instance", "i", "", "talk to this instance instead of the primary one")
	rootCmd.PersistentFlags().BoolVar(&systemBus, "system", false, "use the system bus instead of the session bus")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
