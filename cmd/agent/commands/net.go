package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"kite-agent/lib/campus"
)

func init() {
	rootCmd.AddCommand(netCmd)
}

var netCmd = &cobra.Command{
	Use:   "net",
	Short: "Probe whether the campus network can reach the open internet.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(campus.CheckAvailability(cmd.Context()))
	},
}
