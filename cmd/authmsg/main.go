package main

import (
	"fmt"
	"os"

	"authmsg/cmd/authmsg/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(commands.ExitCodeFor(err).Int())
	}
}
