package main

import (
	"os"

	"github.com/tjfontaine/mealgen/cmd/mealgen/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
