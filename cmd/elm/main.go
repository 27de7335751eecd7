package main

import (
	"os"

	"github.com/folkelib/elm/cmd/elm/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
