package arg

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/ActivityLedger/internal/ipc"
)

var pingCmd = &cobra.Command{
	Use:     "ping",
	Aliases: []string{"p"},
	Short:   "Report a user interaction",
	Long:    "Report a deliberate user interaction so the instance counts as recently active.",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		conn, obj := ledgerObject()
		defer conn.Close()

		if err := obj.Call(ipc.InterfaceName+".RecordInteraction", 0).Err; err != nil {
			log.Fatal("Failed to call method:", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
