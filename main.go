package main

import "github.com/AllegroVivo/StaffPartyBotv2-sub000/cmd"

func main() {
	cmd.Execute()
}
