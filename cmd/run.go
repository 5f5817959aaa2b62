package cmd

import (
	"log"

	"github.com/AllegroVivo/StaffPartyBotv2-sub000/partybus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Starts the Staff Party Bus bot and admin API",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		bus, err := partybus.New(cfg)
		if err != nil {
			log.Fatalf("error creating bot: %s", err.Error())
		}

		if err = bus.Run(ctx); err != nil {
			log.Fatalf("error running bot: %s", err.Error())
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
