package main

import (
	"os"

	"wellnest/cmd/wellnest/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
