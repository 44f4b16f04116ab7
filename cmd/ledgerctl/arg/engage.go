package arg

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/ActivityLedger/internal/ipc"
)

// parseSwitch accepts on/off style arguments.
func parseSwitch(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", arg)
}

func switchCommand(use, method, short string) *cobra.Command {
	return &cobra.Command{
		Use:       use + " <on|off>",
		Short:     short,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		Run: func(cmd *cobra.Command, args []string) {
			value, err := parseSwitch(args[0])
			if err != nil {
				log.Fatal(err)
			}

			conn, obj := ledgerObject()
			defer conn.Close()

			if err := obj.Call(ipc.InterfaceName+"."+method, 0, value).Err; err != nil {
				log.Fatal("Failed to call method:", err)
			}
			fmt.Printf("%s set to %s\n", use, args[0])
		},
	}
}

func init() {
	rootCmd.AddCommand(switchCommand("visible", "SetVisible", "Mark the instance visible or hidden"))
	rootCmd.AddCommand(switchCommand("focus", "SetFocused", "Mark the instance focused or unfocused"))
}
