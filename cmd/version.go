package cmd

import (
	"fmt"

	"github.com/AllegroVivo/StaffPartyBotv2-sub000/partybus"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the application",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf(
			"version=%s commit=%s built: %s",
			partybus.Version,
			partybus.CommitSHA,
			partybus.BuildTime,
		)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
