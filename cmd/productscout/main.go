package main

import (
	"os"

	"ProductScout/cmd/productscout/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
